package vectorstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"posts-rag-service/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceFromAtlasScore(t *testing.T) {
	assert.InDelta(t, 0, distanceFromAtlasScore(1), 1e-9)
	assert.InDelta(t, 1, distanceFromAtlasScore(0.5), 1e-9)
	assert.InDelta(t, 2, distanceFromAtlasScore(0), 1e-9)
}

// Requires an Atlas deployment; $vectorSearch is not available on plain mongod.
func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	runStoreSuite(t, func(t *testing.T) Store {
		cfg := &config.Config{MongoURI: uri, DBName: fmt.Sprintf("posts_test_%d", time.Now().UnixNano())}
		client, err := config.ConnectMongoDB(cfg)
		require.NoError(t, err)

		ctx := context.Background()
		require.NoError(t, config.EnsureVectorSearchIndex(ctx, client, cfg.DBName, "post_embeddings_vector", 3))
		t.Cleanup(func() {
			client.Database(cfg.DBName).Drop(context.Background())
			client.Disconnect(context.Background())
		})
		return NewMongoStore(client, cfg.DBName, "post_embeddings_vector")
	})
}
