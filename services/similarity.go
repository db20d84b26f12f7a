package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"posts-rag-service/internal/ai"
	"posts-rag-service/internal/telemetry"
	"posts-rag-service/internal/vectorstore"
	"posts-rag-service/models"
	"posts-rag-service/utils"
)

const (
	MaxQueryLength  = 1000
	DefaultMaxLimit = 50
	candidateFactor = 2
)

// SearchRequest describes one similarity query.
type SearchRequest struct {
	Query     string
	Limit     int
	Threshold float64
	// ExcludePostID drops one post from the results, usually the query's own source.
	ExcludePostID *int64
	// ApprovedOnly restricts results to moderated posts.
	ApprovedOnly bool
}

// Searcher is satisfied by SimilaritySearchEngine
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) ([]models.SimilarPost, error)
}

// SimilaritySearchEngine ranks visible posts by cosine similarity to a text query
type SimilaritySearchEngine struct {
	store    vectorstore.Store
	provider ai.Provider
	maxLimit int
	metrics  *telemetry.Metrics
}

func NewSimilaritySearchEngine(store vectorstore.Store, provider ai.Provider, maxLimit int, metrics *telemetry.Metrics) *SimilaritySearchEngine {
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	return &SimilaritySearchEngine{
		store:    store,
		provider: provider,
		maxLimit: maxLimit,
		metrics:  metrics,
	}
}

// Search embeds the query and returns at most req.Limit posts whose similarity is at
// least req.Threshold, best first. The store is asked for twice the limit so that
// threshold filtering still leaves enough results. The result is never nil.
func (e *SimilaritySearchEngine) Search(ctx context.Context, req SearchRequest) ([]models.SimilarPost, error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}

	start := time.Now()
	results, err := e.search(ctx, req)
	e.metrics.RecordSearch(ctx, time.Since(start).Seconds(), len(results), err == nil)
	if err != nil {
		return nil, &SearchError{Err: err}
	}
	return results, nil
}

func (e *SimilaritySearchEngine) validate(req SearchRequest) error {
	query := strings.TrimSpace(req.Query)
	switch {
	case query == "":
		return invalid("query", "must not be empty")
	case utf8.RuneCountInString(query) > MaxQueryLength:
		return invalid("query", "must be at most %d characters", MaxQueryLength)
	case req.Limit < 1 || req.Limit > e.maxLimit:
		return invalid("limit", "must be between 1 and %d", e.maxLimit)
	case !(req.Threshold >= 0 && req.Threshold <= 1):
		return invalid("threshold", "must be between 0 and 1")
	}
	return nil
}

func (e *SimilaritySearchEngine) search(ctx context.Context, req SearchRequest) ([]models.SimilarPost, error) {
	vec, err := e.provider.Generate(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	candidates, err := e.store.NearestNeighbors(ctx, vectorstore.NeighborQuery{
		Vector:        vec,
		Limit:         req.Limit * candidateFactor,
		ApprovedOnly:  req.ApprovedOnly,
		ExcludePostID: req.ExcludePostID,
	})
	if err != nil {
		return nil, err
	}

	results := make([]models.SimilarPost, 0, req.Limit)
	for _, c := range candidates {
		if !c.Post.Searchable(req.ApprovedOnly) {
			continue
		}
		if req.ExcludePostID != nil && c.Post.ID == *req.ExcludePostID {
			continue
		}
		similarity := utils.SimilarityFromDistance(c.Distance)
		if similarity < req.Threshold {
			continue
		}
		results = append(results, models.SimilarPost{
			PostID:      c.Post.ID,
			Content:     c.Post.Content,
			TextContent: c.Embedding.TextContent,
			UserID:      c.Post.UserID,
			IsApproved:  c.Post.IsApproved,
			CreatedAt:   c.Embedding.CreatedAt,
			Similarity:  similarity,
		})
		if len(results) == req.Limit {
			break
		}
	}
	return results, nil
}
