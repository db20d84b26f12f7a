package main

import (
	"context"
	"log"

	"posts-rag-service/internal/ai"
	"posts-rag-service/internal/config"
	"posts-rag-service/internal/logger"
	"posts-rag-service/internal/queue"
	"posts-rag-service/internal/telemetry"
	"posts-rag-service/internal/vectorstore"
	"posts-rag-service/services"

	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	ctx := context.Background()

	store, err := vectorstore.Open(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to open vector store:", err)
	}
	defer store.Close()

	provider, closeProvider, err := ai.NewProvider(ctx, cfg, nil, metrics)
	if err != nil {
		log.Fatal("Failed to initialize embeddings provider:", err)
	}
	defer closeProvider()

	// Redis options for Asynq
	redisOpt, err := queue.RedisConnOpt(cfg)
	if err != nil {
		log.Fatal("Failed to configure Redis:", err)
	}

	// Create Asynq server
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.BatchConcurrency,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "task", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(services.NewEmbeddingStore(store, provider, metrics))

	mux := asynq.NewServeMux()
	processor.Register(mux)

	logger.Info("Starting Asynq worker",
		"concurrency", cfg.BatchConcurrency,
		"redis", redisOpt.Addr,
		"model", provider.Model(),
	)

	// Start the server
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
