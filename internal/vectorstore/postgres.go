package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"posts-rag-service/models"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type postRow struct {
	ID         int64     `gorm:"column:id;primaryKey"`
	Post       string    `gorm:"column:post;type:text;not null"`
	UserID     int64     `gorm:"column:user_id;not null"`
	IsApproved bool      `gorm:"column:is_approved;not null"`
	IsActive   bool      `gorm:"column:is_active;not null"`
	IsDeleted  bool      `gorm:"column:is_deleted;not null"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (postRow) TableName() string { return "posts" }

func (r *postRow) toModel() *models.Post {
	return &models.Post{
		ID:         r.ID,
		Content:    r.Post,
		UserID:     r.UserID,
		IsApproved: r.IsApproved,
		IsActive:   r.IsActive,
		IsDeleted:  r.IsDeleted,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

type embeddingRow struct {
	ID          int64           `gorm:"column:id;primaryKey"`
	PostID      int64           `gorm:"column:post_id"`
	Embedding   pgvector.Vector `gorm:"column:embedding"`
	Model       string          `gorm:"column:model"`
	TextContent string          `gorm:"column:text_content"`
	CreatedAt   time.Time       `gorm:"column:created_at"`
	UpdatedAt   time.Time       `gorm:"column:updated_at"`
}

func (embeddingRow) TableName() string { return "post_embeddings" }

func (r *embeddingRow) toModel() *models.PostEmbedding {
	return &models.PostEmbedding{
		ID:          r.ID,
		PostID:      r.PostID,
		Vector:      r.Embedding.Slice(),
		Model:       r.Model,
		TextContent: r.TextContent,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type neighborRow struct {
	ID            int64     `gorm:"column:id"`
	PostID        int64     `gorm:"column:post_id"`
	Model         string    `gorm:"column:model"`
	TextContent   string    `gorm:"column:text_content"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
	Post          string    `gorm:"column:post"`
	UserID        int64     `gorm:"column:user_id"`
	IsApproved    bool      `gorm:"column:is_approved"`
	IsActive      bool      `gorm:"column:is_active"`
	IsDeleted     bool      `gorm:"column:is_deleted"`
	PostCreatedAt time.Time `gorm:"column:post_created_at"`
	PostUpdatedAt time.Time `gorm:"column:post_updated_at"`
	Distance      float64   `gorm:"column:distance"`
}

// PostgresStore keeps vectors in a pgvector column and ranks with the <=> cosine
// distance operator, backed by an HNSW index.
type PostgresStore struct {
	db         *gorm.DB
	dimensions int
}

func NewPostgresStore(db *gorm.DB, dimensions int) *PostgresStore {
	return &PostgresStore{db: db, dimensions: dimensions}
}

// Migrate creates the pgvector extension, both tables and their indexes.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("vectorstore: enable pgvector: %w", err)
	}
	if err := db.AutoMigrate(&postRow{}); err != nil {
		return fmt.Errorf("vectorstore: migrate posts: %w", err)
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS post_embeddings (
			id BIGSERIAL PRIMARY KEY,
			post_id BIGINT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			embedding vector(%d) NOT NULL,
			model TEXT NOT NULL,
			text_content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.dimensions),
		`CREATE UNIQUE INDEX IF NOT EXISTS post_embeddings_post_id_key ON post_embeddings (post_id)`,
		`CREATE INDEX IF NOT EXISTS post_embeddings_embedding_hnsw ON post_embeddings USING hnsw (embedding vector_cosine_ops)`,
		`CREATE INDEX IF NOT EXISTS posts_visibility_idx ON posts (is_deleted, is_active, is_approved)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("vectorstore: migrate post_embeddings: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) CreatePost(ctx context.Context, post *models.Post) error {
	row := postRow{
		Post:       post.Content,
		UserID:     post.UserID,
		IsApproved: post.IsApproved,
		IsActive:   post.IsActive,
		IsDeleted:  post.IsDeleted,
		CreatedAt:  post.CreatedAt,
		UpdatedAt:  post.UpdatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("vectorstore: insert post: %w", err)
	}
	post.ID = row.ID
	post.CreatedAt = row.CreatedAt
	post.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *PostgresStore) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	var row postRow
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("vectorstore: get post %d: %w", id, err)
	}
	return row.toModel(), nil
}

func (s *PostgresStore) FindEmbedding(ctx context.Context, postID int64) (*models.PostEmbedding, error) {
	var row embeddingRow
	err := s.db.WithContext(ctx).Where("post_id = ?", postID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEmbeddingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("vectorstore: find embedding for post %d: %w", postID, err)
	}
	return row.toModel(), nil
}

func (s *PostgresStore) InsertEmbedding(ctx context.Context, rec *models.PostEmbedding) error {
	row := embeddingRow{
		PostID:      rec.PostID,
		Embedding:   pgvector.NewVector(rec.Vector),
		Model:       rec.Model,
		TextContent: rec.TextContent,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
	err := s.db.WithContext(ctx).Create(&row).Error
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateEmbedding
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return ErrPostNotFound
	case err != nil:
		return fmt.Errorf("vectorstore: insert embedding for post %d: %w", rec.PostID, err)
	}
	rec.ID = row.ID
	return nil
}

func (s *PostgresStore) NearestNeighbors(ctx context.Context, q NeighborQuery) ([]Candidate, error) {
	if q.Limit <= 0 {
		return nil, nil
	}

	query := s.db.WithContext(ctx).
		Table("post_embeddings AS pe").
		Select(`pe.id, pe.post_id, pe.model, pe.text_content, pe.created_at, pe.updated_at,
			p.post, p.user_id, p.is_approved, p.is_active, p.is_deleted,
			p.created_at AS post_created_at, p.updated_at AS post_updated_at,
			pe.embedding <=> ? AS distance`, pgvector.NewVector(q.Vector)).
		Joins("JOIN posts p ON p.id = pe.post_id").
		Where("p.is_deleted = ? AND p.is_active = ?", false, true)
	if q.ApprovedOnly {
		query = query.Where("p.is_approved = ?", true)
	}
	if q.ExcludePostID != nil {
		query = query.Where("pe.post_id <> ?", *q.ExcludePostID)
	}

	var rows []neighborRow
	if err := query.Order("distance ASC").Order("pe.id ASC").Limit(q.Limit).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("vectorstore: nearest neighbours: %w", err)
	}

	out := make([]Candidate, 0, len(rows))
	for _, r := range rows {
		out = append(out, Candidate{
			Embedding: models.PostEmbedding{
				ID:          r.ID,
				PostID:      r.PostID,
				Model:       r.Model,
				TextContent: r.TextContent,
				CreatedAt:   r.CreatedAt,
				UpdatedAt:   r.UpdatedAt,
			},
			Post: models.Post{
				ID:         r.PostID,
				Content:    r.Post,
				UserID:     r.UserID,
				IsApproved: r.IsApproved,
				IsActive:   r.IsActive,
				IsDeleted:  r.IsDeleted,
				CreatedAt:  r.PostCreatedAt,
				UpdatedAt:  r.PostUpdatedAt,
			},
			Distance: r.Distance,
		})
	}
	return out, nil
}

func (s *PostgresStore) PostsMissingEmbeddings(ctx context.Context, limit int) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).
		Table("posts AS p").
		Joins("LEFT JOIN post_embeddings pe ON pe.post_id = p.id").
		Where("pe.id IS NULL AND p.is_deleted = ? AND p.is_active = ?", false, true).
		Order("p.id ASC").
		Limit(limit).
		Pluck("p.id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("vectorstore: posts missing embeddings: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ Store = (*PostgresStore)(nil)
