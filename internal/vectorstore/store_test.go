package vectorstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"posts-rag-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreSuite exercises the behaviour every backend must share.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("GetPostNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetPost(context.Background(), 987654)
		assert.ErrorIs(t, err, ErrPostNotFound)
	})

	t.Run("EmbeddingRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		post := createPost(t, s, "alpha beta", true)

		_, err := s.FindEmbedding(ctx, post.ID)
		assert.ErrorIs(t, err, ErrEmbeddingNotFound)

		rec := newEmbedding(post.ID, []float32{0.25, -0.5, 1})
		require.NoError(t, s.InsertEmbedding(ctx, rec))
		assert.NotZero(t, rec.ID)

		got, err := s.FindEmbedding(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.Vector, got.Vector)
		assert.Equal(t, "test-model", got.Model)
		assert.Equal(t, "alpha beta", got.TextContent)
	})

	t.Run("DuplicateEmbedding", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		post := createPost(t, s, "alpha", true)

		require.NoError(t, s.InsertEmbedding(ctx, newEmbedding(post.ID, []float32{1, 0, 0})))
		err := s.InsertEmbedding(ctx, newEmbedding(post.ID, []float32{0, 1, 0}))
		assert.ErrorIs(t, err, ErrDuplicateEmbedding)

		got, err := s.FindEmbedding(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 0, 0}, got.Vector)
	})

	t.Run("ConcurrentInsertKeepsOneRecord", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		post := createPost(t, s, "race", true)

		var (
			wg         sync.WaitGroup
			mu         sync.Mutex
			successes  int
			duplicates int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.InsertEmbedding(ctx, newEmbedding(post.ID, []float32{1, 1, 0}))
				mu.Lock()
				defer mu.Unlock()
				switch err {
				case nil:
					successes++
				case ErrDuplicateEmbedding:
					duplicates++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, 7, duplicates)
	})

	t.Run("NearestNeighborsOrderingAndFilters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		near := createPost(t, s, "near", true)
		far := createPost(t, s, "far", true)
		pending := createPost(t, s, "pending", false)
		deleted := createPostWith(t, s, models.Post{Content: "deleted", IsApproved: true, IsActive: true, IsDeleted: true})
		inactive := createPostWith(t, s, models.Post{Content: "inactive", IsApproved: true})

		require.NoError(t, s.InsertEmbedding(ctx, newEmbedding(near.ID, []float32{1, 0.1, 0})))
		require.NoError(t, s.InsertEmbedding(ctx, newEmbedding(far.ID, []float32{0, 1, 0})))
		require.NoError(t, s.InsertEmbedding(ctx, newEmbedding(pending.ID, []float32{1, 0, 0})))
		require.NoError(t, s.InsertEmbedding(ctx, newEmbedding(deleted.ID, []float32{1, 0, 0})))
		require.NoError(t, s.InsertEmbedding(ctx, newEmbedding(inactive.ID, []float32{1, 0, 0})))

		query := []float32{1, 0, 0}

		all, err := s.NearestNeighbors(ctx, NeighborQuery{Vector: query, Limit: 10})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []int64{pending.ID, near.ID, far.ID}, candidateIDs(all))
		for i := 1; i < len(all); i++ {
			assert.LessOrEqual(t, all[i-1].Distance, all[i].Distance)
		}
		assert.InDelta(t, 0, all[0].Distance, 1e-4)
		assert.InDelta(t, 1, all[2].Distance, 1e-4)
		assert.Equal(t, "pending", all[0].Post.Content)

		approved, err := s.NearestNeighbors(ctx, NeighborQuery{Vector: query, Limit: 10, ApprovedOnly: true})
		require.NoError(t, err)
		assert.Equal(t, []int64{near.ID, far.ID}, candidateIDs(approved))

		excluded, err := s.NearestNeighbors(ctx, NeighborQuery{Vector: query, Limit: 10, ApprovedOnly: true, ExcludePostID: &near.ID})
		require.NoError(t, err)
		assert.Equal(t, []int64{far.ID}, candidateIDs(excluded))

		limited, err := s.NearestNeighbors(ctx, NeighborQuery{Vector: query, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []int64{pending.ID}, candidateIDs(limited))
	})

	t.Run("PostsMissingEmbeddings", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := createPost(t, s, "a", true)
		b := createPost(t, s, "b", false)
		c := createPost(t, s, "c", true)
		createPostWith(t, s, models.Post{Content: "gone", IsActive: true, IsDeleted: true})
		require.NoError(t, s.InsertEmbedding(ctx, newEmbedding(b.ID, []float32{1})))

		ids, err := s.PostsMissingEmbeddings(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []int64{a.ID, c.ID}, ids)

		ids, err = s.PostsMissingEmbeddings(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{a.ID}, ids)
	})
}

func createPost(t *testing.T, s Store, content string, approved bool) *models.Post {
	t.Helper()
	return createPostWith(t, s, models.Post{Content: content, UserID: 7, IsApproved: approved, IsActive: true})
}

func createPostWith(t *testing.T, s Store, p models.Post) *models.Post {
	t.Helper()
	require.NoError(t, s.CreatePost(context.Background(), &p))
	require.NotZero(t, p.ID)
	return &p
}

func newEmbedding(postID int64, vec []float32) *models.PostEmbedding {
	now := time.Now().UTC()
	return &models.PostEmbedding{
		PostID:      postID,
		Vector:      vec,
		Model:       "test-model",
		TextContent: "alpha beta",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func candidateIDs(cs []Candidate) []int64 {
	ids := make([]int64, 0, len(cs))
	for _, c := range cs {
		ids = append(ids, c.Post.ID)
	}
	return ids
}
