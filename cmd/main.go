package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"posts-rag-service/internal/ai"
	"posts-rag-service/internal/config"
	"posts-rag-service/internal/logger"
	"posts-rag-service/internal/queue"
	"posts-rag-service/internal/telemetry"
	"posts-rag-service/internal/vectorstore"
	"posts-rag-service/middleware"
	"posts-rag-service/routes"
	"posts-rag-service/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	serviceName    = "posts-rag-service"
	maxRequestSize = 1 << 20
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer(cfg, serviceName)
	if err != nil {
		log.Fatal("Failed to initialize tracer:", err)
	}
	defer shutdownTracer()

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

	// Redis backs the query cache, the retry queue and rate limiting; all optional
	var rdb *redis.Client
	if cfg.QueryCacheEnabled || cfg.EmbedRetryEnabled || cfg.RateLimitEnabled {
		rdb, err = config.NewRedisClient(cfg)
		if err != nil {
			log.Fatal("Failed to connect to Redis:", err)
		}
		defer rdb.Close()
	}

	provider, closeProvider, err := ai.NewProvider(ctx, cfg, rdb, metrics)
	if err != nil {
		log.Fatal("Failed to initialize embeddings provider:", err)
	}
	defer closeProvider()

	embeddings := services.NewEmbeddingStore(store, provider, metrics)
	engine := services.NewSimilaritySearchEngine(store, provider, cfg.SearchMaxLimit, metrics)
	batch := services.NewBatchOrchestrator(embeddings, cfg.BatchMaxSize, cfg.BatchConcurrency, metrics)
	pipeline := services.NewIngestionPipeline(embeddings, engine, cfg.RAGLimit, cfg.RAGThreshold)

	if cfg.EmbedRetryEnabled {
		redisOpt, err := queue.RedisConnOpt(cfg)
		if err != nil {
			log.Fatal("Failed to configure retry queue:", err)
		}
		queueClient := queue.NewClient(redisOpt)
		defer queueClient.Close()
		pipeline.WithRetryQueue(queueClient)
	}

	if cfg.BackfillEnabled {
		backfill := services.NewBackfillScheduler(store, batch, cfg.BackfillInterval, cfg.BackfillBatch)
		if err := backfill.Start(); err != nil {
			log.Fatal("Failed to start embedding backfill:", err)
		}
		defer backfill.Stop()
	}

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware(serviceName))
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.RequestSizeLimit(maxRequestSize))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":       "healthy",
			"timestamp":    time.Now(),
			"vector_store": cfg.VectorStore,
			"model":        provider.Model(),
		})
	})

	var postMiddleware []gin.HandlerFunc
	if cfg.RateLimitEnabled {
		postMiddleware = append(postMiddleware, middleware.RateLimitMiddleware(rdb, cfg))
	}

	routes.SetupPostRoutes(router, cfg, routes.PostServices{
		Store:      store,
		Embeddings: embeddings,
		Search:     engine,
		Batch:      batch,
		Pipeline:   pipeline,
	}, postMiddleware...)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port, "vector_store", cfg.VectorStore, "model", provider.Model())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
