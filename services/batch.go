package services

import (
	"context"

	"posts-rag-service/internal/logger"
	"posts-rag-service/internal/telemetry"
	"posts-rag-service/models"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxBatchSize     = 100
	DefaultBatchConcurrency = 4
)

// BatchOrchestrator embeds many posts in one best-effort call. Individual failures
// are reported in the result; only a malformed request fails the call.
type BatchOrchestrator struct {
	embeddings   EmbeddingEnsurer
	maxBatchSize int
	concurrency  int
	metrics      *telemetry.Metrics
}

func NewBatchOrchestrator(embeddings EmbeddingEnsurer, maxBatchSize, concurrency int, metrics *telemetry.Metrics) *BatchOrchestrator {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}
	return &BatchOrchestrator{
		embeddings:   embeddings,
		maxBatchSize: maxBatchSize,
		concurrency:  concurrency,
		metrics:      metrics,
	}
}

// MaxBatchSize is the largest accepted number of post ids per call
func (b *BatchOrchestrator) MaxBatchSize() int {
	return b.maxBatchSize
}

type batchOutcome struct {
	embedding *models.PostEmbedding
	err       error
}

// ProcessBatch ensures an embedding for every id. Successful and Failed both follow
// the order of postIDs regardless of completion order.
func (b *BatchOrchestrator) ProcessBatch(ctx context.Context, postIDs []int64) (*models.BatchResult, error) {
	if err := b.validate(postIDs); err != nil {
		return nil, err
	}

	outcomes := make([]batchOutcome, len(postIDs))

	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i, id := range postIDs {
		g.Go(func() error {
			rec, err := b.embeddings.EnsureEmbedding(ctx, id)
			outcomes[i] = batchOutcome{embedding: rec, err: err}
			return nil
		})
	}
	_ = g.Wait()

	result := &models.BatchResult{
		Successful:     make([]*models.PostEmbedding, 0, len(postIDs)),
		Failed:         make([]models.BatchFailure, 0),
		TotalProcessed: len(postIDs),
	}
	for i, o := range outcomes {
		if o.err != nil {
			result.Failed = append(result.Failed, models.BatchFailure{
				PostID: postIDs[i],
				Reason: o.err.Error(),
				Kind:   ErrorKind(o.err),
			})
			b.metrics.RecordBatchItem(ctx, "failed")
			continue
		}
		result.Successful = append(result.Successful, o.embedding)
		b.metrics.RecordBatchItem(ctx, "succeeded")
	}
	result.SuccessCount = len(result.Successful)
	result.FailureCount = len(result.Failed)

	logger.Info("batch embedding finished",
		"total", result.TotalProcessed,
		"succeeded", result.SuccessCount,
		"failed", result.FailureCount,
	)
	return result, nil
}

func (b *BatchOrchestrator) validate(postIDs []int64) error {
	if len(postIDs) == 0 {
		return invalid("postIds", "must contain at least one id")
	}
	if len(postIDs) > b.maxBatchSize {
		return invalid("postIds", "must contain at most %d ids", b.maxBatchSize)
	}
	for _, id := range postIDs {
		if id < 1 {
			return invalid("postIds", "id %d is not a positive integer", id)
		}
	}
	return nil
}
