package services

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"posts-rag-service/internal/ai"
	"posts-rag-service/internal/vectorstore"
	"posts-rag-service/models"

	"github.com/stretchr/testify/require"
)

const testDims = 32

// wordProvider embeds text as a bag-of-words count vector, one dimension per
// distinct word. "alpha beta" and "alpha beta gamma" end up about 0.816 apart.
type wordProvider struct {
	mu    sync.Mutex
	vocab map[string]int
	calls atomic.Int64
	err   error
}

func newWordProvider() *wordProvider {
	return &wordProvider{vocab: map[string]int{}}
}

func (p *wordProvider) Generate(ctx context.Context, text string) ([]float32, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ai.ErrEmptyInput
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	vec := make([]float32, testDims)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		idx, ok := p.vocab[w]
		if !ok {
			idx = len(p.vocab) % testDims
			p.vocab[w] = idx
		}
		vec[idx]++
	}
	return vec, nil
}

func (p *wordProvider) Model() string { return "word-count" }

func (p *wordProvider) failWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// zeroProvider behaves like a degraded upstream: well-formed, all-zero vectors.
type zeroProvider struct{}

func (zeroProvider) Generate(ctx context.Context, text string) ([]float32, error) {
	return nil, ai.ValidateVector(make([]float32, testDims))
}

func (zeroProvider) Model() string { return "zero" }

func newTestStore(t *testing.T) *vectorstore.SQLiteStore {
	t.Helper()
	s, err := vectorstore.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func addPost(t *testing.T, s vectorstore.Store, content string, approved bool) *models.Post {
	t.Helper()
	p := &models.Post{Content: content, UserID: 1, IsApproved: approved, IsActive: true}
	require.NoError(t, s.CreatePost(context.Background(), p))
	return p
}

func embedPost(t *testing.T, es *EmbeddingStore, p *models.Post) *models.PostEmbedding {
	t.Helper()
	rec, err := es.EnsureEmbedding(context.Background(), p.ID)
	require.NoError(t, err)
	return rec
}
