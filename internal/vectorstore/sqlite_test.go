package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"posts-rag-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, newSQLiteStore)
}

func TestSQLiteStore_InsertEmbeddingForMissingPost(t *testing.T) {
	s := newSQLiteStore(t)
	err := s.InsertEmbedding(context.Background(), newEmbedding(42, []float32{1}))
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "posts.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	post := models.Post{Content: "kept", IsActive: true}
	require.NoError(t, s.CreatePost(ctx, &post))
	require.NoError(t, s.InsertEmbedding(ctx, newEmbedding(post.ID, []float32{0.5, 0.5})))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.FindEmbedding(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, got.Vector)

	p, err := s.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, post.CreatedAt.UnixMilli(), p.CreatedAt.UnixMilli())
}

func TestSQLiteStore_SkipsMismatchedDimensions(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	a := createPost(t, s, "three", true)
	b := createPost(t, s, "two", true)
	require.NoError(t, s.InsertEmbedding(ctx, newEmbedding(a.ID, []float32{1, 0, 0})))
	require.NoError(t, s.InsertEmbedding(ctx, newEmbedding(b.ID, []float32{1, 0})))

	got, err := s.NearestNeighbors(ctx, NeighborQuery{Vector: []float32{1, 0, 0}, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID}, candidateIDs(got))
}
