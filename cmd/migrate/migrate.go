package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"posts-rag-service/internal/ai"
	"posts-rag-service/internal/config"
	"posts-rag-service/internal/logger"
	"posts-rag-service/internal/vectorstore"
	"posts-rag-service/models"
	"posts-rag-service/services"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/migrate <command>")
		fmt.Println("Commands:")
		fmt.Println("  migrate   - Create tables, indexes and the vector index for VECTOR_STORE")
		fmt.Println("  backfill  - Embed one batch of posts that have no embedding yet")
		os.Exit(1)
	}

	command := os.Args[1]

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.InitLogger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	switch command {
	case "migrate":
		if err := migrate(ctx, cfg); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Printf("Schema ready for %s store", cfg.VectorStore)

	case "backfill":
		result, err := backfill(ctx, cfg)
		if err != nil {
			log.Fatalf("Backfill failed: %v", err)
		}
		log.Printf("Backfill done: %d processed, %d succeeded, %d failed",
			result.TotalProcessed, result.SuccessCount, result.FailureCount)

	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}

func migrate(ctx context.Context, cfg *config.Config) error {
	switch cfg.VectorStore {
	case config.StoreSQLite:
		// OpenSQLite applies its schema on open
		store, err := vectorstore.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return err
		}
		return store.Close()

	case config.StorePostgres:
		db, err := config.ConnectPostgres(cfg)
		if err != nil {
			return err
		}
		store := vectorstore.NewPostgresStore(db, cfg.VectorDimensions)
		defer store.Close()
		return store.Migrate(ctx)

	case config.StoreMongo:
		// ConnectMongoDB creates the regular indexes
		client, err := config.ConnectMongoDB(cfg)
		if err != nil {
			return err
		}
		defer client.Disconnect(context.Background())

		if err := config.EnsureVectorSearchIndex(ctx, client, cfg.DBName, cfg.VectorIndexName, cfg.VectorDimensions); err != nil {
			logger.Warn("vector search index not created; $vectorSearch needs MongoDB Atlas", "error", err)
		}
		return nil

	default:
		return fmt.Errorf("unknown vector store: %s", cfg.VectorStore)
	}
}

func backfill(ctx context.Context, cfg *config.Config) (*models.BatchResult, error) {
	store, err := vectorstore.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	provider, closeProvider, err := ai.NewProvider(ctx, cfg, nil, nil)
	if err != nil {
		return nil, err
	}
	defer closeProvider()

	embeddings := services.NewEmbeddingStore(store, provider, nil)
	batch := services.NewBatchOrchestrator(embeddings, cfg.BatchMaxSize, cfg.BatchConcurrency, nil)
	return services.NewBackfillScheduler(store, batch, cfg.BackfillInterval, cfg.BackfillBatch).RunOnce(ctx)
}
