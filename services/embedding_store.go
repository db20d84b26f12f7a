package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"posts-rag-service/internal/ai"
	"posts-rag-service/internal/logger"
	"posts-rag-service/internal/telemetry"
	"posts-rag-service/internal/vectorstore"
	"posts-rag-service/models"
)

// EmbeddingEnsurer is satisfied by EmbeddingStore; batch and ingestion code depend on it.
type EmbeddingEnsurer interface {
	EnsureEmbedding(ctx context.Context, postID int64) (*models.PostEmbedding, error)
}

// EmbeddingStore guarantees each post has exactly one embedding, generating it on
// first request.
type EmbeddingStore struct {
	store    vectorstore.Store
	provider ai.Provider
	metrics  *telemetry.Metrics
	now      func() time.Time
}

func NewEmbeddingStore(store vectorstore.Store, provider ai.Provider, metrics *telemetry.Metrics) *EmbeddingStore {
	return &EmbeddingStore{
		store:    store,
		provider: provider,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// EnsureEmbedding returns the post's embedding, creating it if absent. An existing
// record is returned unchanged without calling the provider. Concurrent callers for
// the same post converge on the single stored record.
func (s *EmbeddingStore) EnsureEmbedding(ctx context.Context, postID int64) (*models.PostEmbedding, error) {
	rec, _, err := s.Ensure(ctx, postID)
	return rec, err
}

// Ensure is EnsureEmbedding that also reports whether this call stored the record.
func (s *EmbeddingStore) Ensure(ctx context.Context, postID int64) (*models.PostEmbedding, bool, error) {
	post, err := s.store.GetPost(ctx, postID)
	if errors.Is(err, vectorstore.ErrPostNotFound) {
		return nil, false, ErrPostNotFound
	}
	if err != nil {
		return nil, false, &EmbeddingGenerationError{PostID: postID, Err: err}
	}

	existing, err := s.store.FindEmbedding(ctx, postID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, vectorstore.ErrEmbeddingNotFound) {
		return nil, false, &EmbeddingGenerationError{PostID: postID, Err: err}
	}

	vec, err := s.provider.Generate(ctx, post.Content)
	if err != nil {
		logger.Warn("embedding generation failed",
			"post_id", postID,
			"kind", ai.FailureKind(err),
			"error", err,
		)
		return nil, false, &EmbeddingGenerationError{PostID: postID, Err: err}
	}

	now := s.now()
	rec := &models.PostEmbedding{
		PostID:      postID,
		Vector:      vec,
		Model:       s.provider.Model(),
		TextContent: strings.TrimSpace(post.Content),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.store.InsertEmbedding(ctx, rec)
	switch {
	case errors.Is(err, vectorstore.ErrDuplicateEmbedding):
		// Lost the race to a concurrent caller; theirs is the record.
		existing, findErr := s.store.FindEmbedding(ctx, postID)
		if findErr != nil {
			return nil, false, &EmbeddingGenerationError{PostID: postID, Err: findErr}
		}
		return existing, false, nil
	case errors.Is(err, vectorstore.ErrPostNotFound):
		return nil, false, ErrPostNotFound
	case err != nil:
		return nil, false, &EmbeddingGenerationError{PostID: postID, Err: err}
	}

	s.metrics.RecordEmbeddingGenerated(ctx, rec.Model)
	logger.Debug("embedding stored", "post_id", postID, "model", rec.Model, "dimensions", rec.Dimensions())
	return rec, true, nil
}
