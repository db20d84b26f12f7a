package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"posts-rag-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessBatch_MixedOutcome(t *testing.T) {
	store := newTestStore(t)
	es := NewEmbeddingStore(store, newWordProvider(), nil)
	batch := NewBatchOrchestrator(es, DefaultMaxBatchSize, 2, nil)

	first := addPost(t, store, "alpha beta", true)
	third := addPost(t, store, "gamma delta", true)
	missing := third.ID + 100

	result, err := batch.ProcessBatch(context.Background(), []int64{first.ID, missing, third.ID})
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalProcessed)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 1, result.FailureCount)
	require.Len(t, result.Successful, 2)
	assert.Equal(t, first.ID, result.Successful[0].PostID)
	assert.Equal(t, third.ID, result.Successful[1].PostID)

	require.Len(t, result.Failed, 1)
	assert.Equal(t, missing, result.Failed[0].PostID)
	assert.Equal(t, KindDocumentNotFound, result.Failed[0].Kind)
	assert.NotEmpty(t, result.Failed[0].Reason)
}

func TestProcessBatch_Validation(t *testing.T) {
	provider := newWordProvider()
	es := NewEmbeddingStore(newTestStore(t), provider, nil)
	batch := NewBatchOrchestrator(es, 3, 2, nil)

	for name, ids := range map[string][]int64{
		"empty":    {},
		"too many": {1, 2, 3, 4},
		"zero id":  {1, 0},
		"negative": {-5},
	} {
		t.Run(name, func(t *testing.T) {
			result, err := batch.ProcessBatch(context.Background(), ids)
			assert.Nil(t, result)
			var validationErr *ValidationError
			assert.ErrorAs(t, err, &validationErr)
		})
	}
	assert.Zero(t, provider.calls.Load())
}

func TestProcessBatch_AllFailWithDegradedProvider(t *testing.T) {
	store := newTestStore(t)
	batch := NewBatchOrchestrator(NewEmbeddingStore(store, zeroProvider{}, nil), DefaultMaxBatchSize, 4, nil)
	a := addPost(t, store, "one", true)
	b := addPost(t, store, "two", true)

	result, err := batch.ProcessBatch(context.Background(), []int64{a.ID, b.ID})
	require.NoError(t, err)
	assert.Empty(t, result.Successful)
	assert.NotNil(t, result.Successful)
	require.Len(t, result.Failed, 2)
	for _, f := range result.Failed {
		assert.Equal(t, KindEmbeddingGenerationFailed, f.Kind)
	}
}

func TestProcessBatch_RepeatedIDsReuseRecord(t *testing.T) {
	store := newTestStore(t)
	provider := newWordProvider()
	batch := NewBatchOrchestrator(NewEmbeddingStore(store, provider, nil), DefaultMaxBatchSize, 1, nil)
	p := addPost(t, store, "alpha", true)

	result, err := batch.ProcessBatch(context.Background(), []int64{p.ID, p.ID})
	require.NoError(t, err)
	require.Len(t, result.Successful, 2)
	assert.Equal(t, result.Successful[0].ID, result.Successful[1].ID)
	assert.EqualValues(t, 1, provider.calls.Load())
}

// slowEnsurer finishes later items first and tracks how many calls overlap.
type slowEnsurer struct {
	total    int
	inFlight atomic.Int64
	mu       sync.Mutex
	peak     int64
}

func (s *slowEnsurer) EnsureEmbedding(ctx context.Context, postID int64) (*models.PostEmbedding, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	s.mu.Lock()
	if n > s.peak {
		s.peak = n
	}
	s.mu.Unlock()

	time.Sleep(time.Duration(int64(s.total)-postID) * time.Millisecond)
	return &models.PostEmbedding{PostID: postID}, nil
}

func TestProcessBatch_PreservesInputOrderUnderConcurrency(t *testing.T) {
	const n = 20
	ensurer := &slowEnsurer{total: n + 1}
	batch := NewBatchOrchestrator(ensurer, DefaultMaxBatchSize, 3, nil)

	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(i + 1)
	}

	result, err := batch.ProcessBatch(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, result.Successful, n)
	for i, rec := range result.Successful {
		assert.Equal(t, ids[i], rec.PostID)
	}
	assert.LessOrEqual(t, ensurer.peak, int64(3))
}
