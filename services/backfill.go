package services

import (
	"context"
	"time"

	"posts-rag-service/internal/logger"
	"posts-rag-service/models"

	"github.com/go-co-op/gocron"
)

const backfillTag = "embedding-backfill"

// MissingEmbeddingsLister finds posts that still need an embedding
type MissingEmbeddingsLister interface {
	PostsMissingEmbeddings(ctx context.Context, limit int) ([]int64, error)
}

// BackfillScheduler periodically embeds posts that were created while the provider
// was unavailable.
type BackfillScheduler struct {
	scheduler *gocron.Scheduler
	lister    MissingEmbeddingsLister
	batch     *BatchOrchestrator
	interval  time.Duration
	batchSize int
	timeout   time.Duration
}

func NewBackfillScheduler(lister MissingEmbeddingsLister, batch *BatchOrchestrator, interval time.Duration, batchSize int) *BackfillScheduler {
	if batchSize <= 0 || batchSize > batch.MaxBatchSize() {
		batchSize = batch.MaxBatchSize()
	}
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()

	return &BackfillScheduler{
		scheduler: s,
		lister:    lister,
		batch:     batch,
		interval:  interval,
		batchSize: batchSize,
		timeout:   5 * time.Minute,
	}
}

// Start schedules the backfill job and runs it immediately
func (b *BackfillScheduler) Start() error {
	_, err := b.scheduler.Every(b.interval).Tag(backfillTag).SingletonMode().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		if _, err := b.RunOnce(ctx); err != nil {
			logger.Error("embedding backfill failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	b.scheduler.StartAsync()
	logger.Info("embedding backfill scheduled", "interval", b.interval.String(), "batch_size", b.batchSize)
	return nil
}

// Stop stops the scheduler
func (b *BackfillScheduler) Stop() {
	b.scheduler.Stop()
}

// RunOnce embeds up to batchSize posts that have no embedding yet.
// TODO: posts that keep failing are retried first on every run and can starve newer ones.
func (b *BackfillScheduler) RunOnce(ctx context.Context) (*models.BatchResult, error) {
	ids, err := b.lister.PostsMissingEmbeddings(ctx, b.batchSize)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return &models.BatchResult{
			Successful: []*models.PostEmbedding{},
			Failed:     []models.BatchFailure{},
		}, nil
	}
	return b.batch.ProcessBatch(ctx, ids)
}
