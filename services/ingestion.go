package services

import (
	"context"
	"strings"

	"posts-rag-service/internal/logger"
	"posts-rag-service/models"
)

const (
	DefaultRAGLimit     = 5
	DefaultRAGThreshold = 0.5
)

// RetryEnqueuer schedules a later embedding attempt for a post
type RetryEnqueuer interface {
	EnqueueEmbed(ctx context.Context, postID int64) error
}

// IngestionPipeline runs after a post has been durably created: it embeds the post
// and attaches related approved posts. It never fails the creation.
type IngestionPipeline struct {
	embeddings EmbeddingEnsurer
	searcher   Searcher
	retry      RetryEnqueuer
	limit      int
	threshold  float64
}

func NewIngestionPipeline(embeddings EmbeddingEnsurer, searcher Searcher, limit int, threshold float64) *IngestionPipeline {
	if limit <= 0 {
		limit = DefaultRAGLimit
	}
	return &IngestionPipeline{
		embeddings: embeddings,
		searcher:   searcher,
		limit:      limit,
		threshold:  threshold,
	}
}

// WithRetryQueue enqueues a retry whenever the embedding step fails
func (p *IngestionPipeline) WithRetryQueue(retry RetryEnqueuer) *IngestionPipeline {
	p.retry = retry
	return p
}

// OnPostCreated embeds the post and finds up to limit related approved posts,
// excluding the post itself. Failures are logged and degrade to an empty list.
func (p *IngestionPipeline) OnPostCreated(ctx context.Context, post *models.Post) *models.CreatedPost {
	out := &models.CreatedPost{
		Post:         post,
		RelatedPosts: []models.SimilarPost{},
	}

	if _, err := p.embeddings.EnsureEmbedding(ctx, post.ID); err != nil {
		logger.Warn("post created without embedding",
			"post_id", post.ID,
			"kind", ErrorKind(err),
			"error", err,
		)
		p.enqueueRetry(ctx, post.ID)
		return out
	}

	query := truncateRunes(strings.TrimSpace(post.Content), MaxQueryLength)
	if query == "" {
		return out
	}

	related, err := p.searcher.Search(ctx, SearchRequest{
		Query:         query,
		Limit:         p.limit,
		Threshold:     p.threshold,
		ExcludePostID: &post.ID,
		ApprovedOnly:  true,
	})
	if err != nil {
		logger.Warn("related post search failed",
			"post_id", post.ID,
			"kind", ErrorKind(err),
			"error", err,
		)
		return out
	}

	out.RelatedPosts = related
	out.RelatedCount = len(related)
	return out
}

func (p *IngestionPipeline) enqueueRetry(ctx context.Context, postID int64) {
	if p.retry == nil {
		return
	}
	if err := p.retry.EnqueueEmbed(ctx, postID); err != nil {
		logger.Error("failed to enqueue embedding retry", "post_id", postID, "error", err)
		return
	}
	logger.Info("embedding retry enqueued", "post_id", postID)
}

// truncateRunes cuts s to at most n runes
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
