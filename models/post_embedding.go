package models

import "time"

// PostEmbedding is the single current vector representation of a post.
// At most one record exists per PostID.
type PostEmbedding struct {
	ID          int64     `json:"id"`
	PostID      int64     `json:"postId"`
	Vector      []float32 `json:"-"`
	Model       string    `json:"model"`
	TextContent string    `json:"textContent"` // text as it was when embedded
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Dimensions returns the vector length
func (e *PostEmbedding) Dimensions() int {
	return len(e.Vector)
}

// SimilarPost joins an embedded post with its similarity to a query vector.
// Similarity lies in [0, 1]; it is recomputed per query and never stored.
type SimilarPost struct {
	PostID      int64     `json:"postId"`
	Content     string    `json:"post"`
	TextContent string    `json:"textContent"`
	UserID      int64     `json:"userId"`
	IsApproved  bool      `json:"isApproved"`
	CreatedAt   time.Time `json:"createdAt"`
	Similarity  float64   `json:"similarity"`
}
