package models

// CreatePostRequest is the body of POST /api/posts
type CreatePostRequest struct {
	Post       string `json:"post" binding:"required,max=5000"`
	UserID     int64  `json:"userId" binding:"gte=0"`
	IsApproved bool   `json:"isApproved"`
}

// BatchEmbeddingRequest is the body of POST /api/posts/embeddings/batch
type BatchEmbeddingRequest struct {
	PostIDs []int64 `json:"postIds"`
}

// SimilarSearchRequest is the body of POST /api/posts/search/similar.
// Absent limit and threshold fall back to configured defaults.
type SimilarSearchRequest struct {
	Query     string   `json:"query"`
	Limit     *int     `json:"limit"`
	Threshold *float64 `json:"threshold"`
}
