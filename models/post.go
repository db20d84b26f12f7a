package models

import "time"

// Post is the text document the embedding subsystem works on. Rows are owned by the
// post CRUD layer; embedding code only reads them.
type Post struct {
	ID         int64     `bson:"_id" json:"id"`
	Content    string    `bson:"post" json:"post"`
	UserID     int64     `bson:"user_id" json:"userId"`
	IsApproved bool      `bson:"is_approved" json:"isApproved"`
	IsActive   bool      `bson:"is_active" json:"isActive"`
	IsDeleted  bool      `bson:"is_deleted" json:"isDeleted"`
	CreatedAt  time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updatedAt"`
}

// Searchable reports whether the post may appear in similarity results.
func (p *Post) Searchable(approvedOnly bool) bool {
	if p.IsDeleted || !p.IsActive {
		return false
	}
	return !approvedOnly || p.IsApproved
}

// CreatedPost is returned by the post creation hook
type CreatedPost struct {
	Post         *Post         `json:"post"`
	RelatedPosts []SimilarPost `json:"relatedPosts"`
	RelatedCount int           `json:"relatedCount"`
}
