package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Test connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	if err := createIndexes(ctx, client, cfg.DBName); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return client, nil
}

func createIndexes(ctx context.Context, client *mongo.Client, dbName string) error {
	db := client.Database(dbName)

	// Posts collection indexes
	postIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "is_deleted", Value: 1},
				{Key: "is_active", Value: 1},
				{Key: "is_approved", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
	}
	if _, err := db.Collection("posts").Indexes().CreateMany(ctx, postIndexes); err != nil {
		return err
	}

	// One embedding per post
	embeddingIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "post_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("post_embeddings_post_id_key"),
		},
	}
	if _, err := db.Collection("post_embeddings").Indexes().CreateMany(ctx, embeddingIndexes); err != nil {
		return err
	}

	return nil
}

// EnsureVectorSearchIndex creates the Atlas vectorSearch index over post_embeddings.embedding.
// Only Atlas deployments support search indexes; callers treat failure as a warning.
func EnsureVectorSearchIndex(ctx context.Context, client *mongo.Client, dbName, indexName string, dims int) error {
	view := client.Database(dbName).Collection("post_embeddings").SearchIndexes()

	cursor, err := view.List(ctx, options.SearchIndexes().SetName(indexName))
	if err != nil {
		return fmt.Errorf("failed to list search indexes: %w", err)
	}
	var existing []bson.M
	if err := cursor.All(ctx, &existing); err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	definition := bson.M{
		"fields": []bson.M{
			{"type": "vector", "path": "embedding", "numDimensions": dims, "similarity": "cosine"},
			{"type": "filter", "path": "post_id"},
		},
	}
	_, err = view.CreateOne(ctx, mongo.SearchIndexModel{
		Definition: definition,
		Options:    options.SearchIndexes().SetName(indexName).SetType("vectorSearch"),
	})
	if err != nil {
		return fmt.Errorf("failed to create vector search index: %w", err)
	}
	return nil
}
