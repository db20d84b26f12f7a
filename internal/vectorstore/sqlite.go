package vectorstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"posts-rag-service/models"
	"posts-rag-service/utils"

	sqlite "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		post TEXT NOT NULL,
		user_id INTEGER NOT NULL DEFAULT 0,
		is_approved INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS post_embeddings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		post_id INTEGER NOT NULL UNIQUE REFERENCES posts(id) ON DELETE CASCADE,
		embedding BLOB NOT NULL,
		model TEXT NOT NULL,
		text_content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_visibility ON posts(is_deleted, is_active, is_approved)`,
}

var registerOnce sync.Once

// registerVectorFunctions makes vec_cosine_distance available on connections opened
// afterwards. It yields NULL when the distance is undefined.
func registerVectorFunctions() {
	registerOnce.Do(func() {
		_ = sqlite.RegisterDeterministicScalarFunction("vec_cosine_distance", 2, vecCosineDistance)
	})
}

func vecCosineDistance(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("vec_cosine_distance: expected 2 arguments, got %d", len(args))
	}
	a, ok := args[0].([]byte)
	if !ok {
		return nil, nil
	}
	b, ok := args[1].([]byte)
	if !ok {
		return nil, nil
	}
	va, err := utils.DecodeVector(a)
	if err != nil {
		return nil, err
	}
	vb, err := utils.DecodeVector(b)
	if err != nil {
		return nil, err
	}
	d, err := utils.CosineDistance(va, vb)
	if err != nil {
		return nil, nil
	}
	return d, nil
}

// isSQLiteUniqueViolation checks whether a database error is a UNIQUE constraint failure.
// modernc.org/sqlite does not expose a typed error for constraint violations.
func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isSQLiteForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// SQLiteStore is the pure-Go Store backend. Cosine distance is computed by a
// registered SQL function so ranking, filtering and LIMIT stay inside one query.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path. ":memory:" is accepted.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	registerVectorFunctions()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open sqlite store: %w", err)
	}

	// One connection keeps ":memory:" databases alive and serialises writers.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, stmt := range append(pragmas, sqliteSchema...) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("vectorstore: apply sqlite schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreatePost(ctx context.Context, post *models.Post) error {
	now := time.Now().UTC()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	if post.UpdatedAt.IsZero() {
		post.UpdatedAt = post.CreatedAt
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO posts(post, user_id, is_approved, is_active, is_deleted, created_at, updated_at) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		post.Content, post.UserID, post.IsApproved, post.IsActive, post.IsDeleted,
		post.CreatedAt.UnixMilli(), post.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("vectorstore: insert post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	post.ID = id
	return nil
}

func (s *SQLiteStore) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	var (
		p                    models.Post
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, post, user_id, is_approved, is_active, is_deleted, created_at, updated_at FROM posts WHERE id = ?`, id,
	).Scan(&p.ID, &p.Content, &p.UserID, &p.IsApproved, &p.IsActive, &p.IsDeleted, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("vectorstore: get post %d: %w", id, err)
	}
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

func (s *SQLiteStore) FindEmbedding(ctx context.Context, postID int64) (*models.PostEmbedding, error) {
	var (
		e                    models.PostEmbedding
		blob                 []byte
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, post_id, embedding, model, text_content, created_at, updated_at FROM post_embeddings WHERE post_id = ?`, postID,
	).Scan(&e.ID, &e.PostID, &blob, &e.Model, &e.TextContent, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEmbeddingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("vectorstore: find embedding for post %d: %w", postID, err)
	}
	if e.Vector, err = utils.DecodeVector(blob); err != nil {
		return nil, fmt.Errorf("vectorstore: decode embedding for post %d: %w", postID, err)
	}
	e.CreatedAt = fromMillis(createdAt)
	e.UpdatedAt = fromMillis(updatedAt)
	return &e, nil
}

func (s *SQLiteStore) InsertEmbedding(ctx context.Context, rec *models.PostEmbedding) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO post_embeddings(post_id, embedding, model, text_content, created_at, updated_at) VALUES(?, ?, ?, ?, ?, ?)`,
		rec.PostID, utils.EncodeVector(rec.Vector), rec.Model, rec.TextContent,
		rec.CreatedAt.UnixMilli(), rec.UpdatedAt.UnixMilli(),
	)
	switch {
	case isSQLiteUniqueViolation(err):
		return ErrDuplicateEmbedding
	case isSQLiteForeignKeyViolation(err):
		return ErrPostNotFound
	case err != nil:
		return fmt.Errorf("vectorstore: insert embedding for post %d: %w", rec.PostID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rec.ID = id
	return nil
}

func (s *SQLiteStore) NearestNeighbors(ctx context.Context, q NeighborQuery) ([]Candidate, error) {
	if q.Limit <= 0 {
		return nil, nil
	}

	where := []string{"p.is_deleted = 0", "p.is_active = 1"}
	args := []any{utils.EncodeVector(q.Vector)}
	if q.ApprovedOnly {
		where = append(where, "p.is_approved = 1")
	}
	if q.ExcludePostID != nil {
		where = append(where, "e.post_id <> ?")
		args = append(args, *q.ExcludePostID)
	}
	args = append(args, q.Limit)

	query := `SELECT * FROM (
		SELECT e.id, e.post_id, e.model, e.text_content, e.created_at, e.updated_at,
			p.post, p.user_id, p.is_approved, p.is_active, p.is_deleted,
			p.created_at AS post_created_at, p.updated_at AS post_updated_at,
			vec_cosine_distance(e.embedding, ?) AS distance
		FROM post_embeddings e
		JOIN posts p ON p.id = e.post_id
		WHERE ` + strings.Join(where, " AND ") + `
	) WHERE distance IS NOT NULL
	ORDER BY distance ASC, id ASC
	LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: nearest neighbours: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var (
			c                                      Candidate
			eCreated, eUpdated, pCreated, pUpdated int64
		)
		if err := rows.Scan(
			&c.Embedding.ID, &c.Embedding.PostID, &c.Embedding.Model, &c.Embedding.TextContent, &eCreated, &eUpdated,
			&c.Post.Content, &c.Post.UserID, &c.Post.IsApproved, &c.Post.IsActive, &c.Post.IsDeleted,
			&pCreated, &pUpdated, &c.Distance,
		); err != nil {
			return nil, err
		}
		c.Post.ID = c.Embedding.PostID
		c.Embedding.CreatedAt = fromMillis(eCreated)
		c.Embedding.UpdatedAt = fromMillis(eUpdated)
		c.Post.CreatedAt = fromMillis(pCreated)
		c.Post.UpdatedAt = fromMillis(pUpdated)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) PostsMissingEmbeddings(ctx context.Context, limit int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id FROM posts p
		LEFT JOIN post_embeddings e ON e.post_id = p.id
		WHERE e.id IS NULL AND p.is_deleted = 0 AND p.is_active = 1
		ORDER BY p.id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: posts missing embeddings: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

var _ Store = (*SQLiteStore)(nil)
