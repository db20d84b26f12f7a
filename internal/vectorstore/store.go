// Package vectorstore persists posts' embeddings and answers ranked nearest-neighbour
// queries over them. Each backend enforces one embedding per post at the storage level.
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"posts-rag-service/internal/config"
	"posts-rag-service/models"
)

var (
	ErrPostNotFound       = errors.New("post not found")
	ErrEmbeddingNotFound  = errors.New("embedding not found")
	ErrDuplicateEmbedding = errors.New("embedding already exists for post")
)

// NeighborQuery asks for the Limit embeddings closest to Vector by cosine distance,
// restricted to posts that are active and not deleted.
type NeighborQuery struct {
	Vector        []float32
	Limit         int
	ApprovedOnly  bool
	ExcludePostID *int64
}

// Candidate is one ranked row. Embedding.Vector is not loaded.
type Candidate struct {
	Embedding models.PostEmbedding
	Post      models.Post
	Distance  float64
}

// Store is the persistence boundary of the embedding subsystem
type Store interface {
	// CreatePost stores a new post and assigns its ID. Post CRUD proper lives
	// elsewhere; this is the hook the creation path and tests use.
	CreatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id int64) (*models.Post, error)

	FindEmbedding(ctx context.Context, postID int64) (*models.PostEmbedding, error)
	// InsertEmbedding returns ErrDuplicateEmbedding when the post already has one.
	InsertEmbedding(ctx context.Context, rec *models.PostEmbedding) error

	// NearestNeighbors returns candidates ordered by ascending cosine distance.
	NearestNeighbors(ctx context.Context, q NeighborQuery) ([]Candidate, error)

	// PostsMissingEmbeddings lists active, non-deleted posts with no embedding yet.
	PostsMissingEmbeddings(ctx context.Context, limit int) ([]int64, error)

	Close() error
}

// Open connects to the backend selected in the configuration
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.VectorStore {
	case config.StoreSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath)
	case config.StorePostgres:
		db, err := config.ConnectPostgres(cfg)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(db, cfg.VectorDimensions), nil
	case config.StoreMongo:
		client, err := config.ConnectMongoDB(cfg)
		if err != nil {
			return nil, err
		}
		return NewMongoStore(client, cfg.DBName, cfg.VectorIndexName), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore)
	}
}
