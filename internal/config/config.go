package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Vector store backends
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Embedding providers
const (
	ProviderCloudflare = "cloudflare"
	ProviderOpenAI     = "openai"
	ProviderGoogle     = "google"
)

type Config struct {
	Port           string
	GinMode        string
	CORSOrigins    []string
	RequestTimeout time.Duration

	// Vector store
	VectorStore      string // "sqlite" (default), "postgres", "mongo"
	SQLitePath       string
	DatabaseURL      string
	MongoURI         string
	DBName           string
	VectorIndexName  string
	VectorDimensions int

	// Embeddings configuration
	EmbeddingsProvider    string // "cloudflare" (default), "openai", "google"
	CloudflareAPIKey      string
	CloudflareAccountID   string
	OpenAIAPIKey          string
	EmbeddingBaseURL      string
	EmbeddingModel        string
	GeminiAPIKey          string
	GoogleEmbeddingsModel string
	EmbeddingRPM          int
	EmbeddingTimeout      time.Duration

	// Similarity search
	SearchDefaultLimit     int
	SearchMaxLimit         int
	SearchDefaultThreshold float64
	RAGLimit               int
	RAGThreshold           float64

	// Batch processing
	BatchMaxSize     int
	BatchConcurrency int

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	QueryCacheEnabled bool
	QueryCacheTTL     time.Duration
	EmbedRetryEnabled bool

	// Per-client rate limiting of the /api/posts routes (Redis fixed window)
	RateLimitEnabled bool
	RateLimitReqs    int
	RateLimitWindow  time.Duration

	// Backfill of posts created while the provider was down
	BackfillEnabled  bool
	BackfillInterval time.Duration
	BackfillBatch    int

	// OpenTelemetry
	OTelEnabled     bool
	OTelEndpoint    string
	OTelSampleRatio float64
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		CORSOrigins:    strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),

		VectorStore:      strings.ToLower(getEnv("VECTOR_STORE", StoreSQLite)),
		SQLitePath:       getEnv("SQLITE_PATH", "./storage/posts.db"),
		DatabaseURL:      getEnv("DATABASE_URL", "postgres://localhost:5432/posts?sslmode=disable"),
		MongoURI:         getEnv("MONGO_URI", "mongodb://localhost:27017/posts"),
		DBName:           getEnv("DB_NAME", "posts"),
		VectorIndexName:  getEnv("MONGODB_VECTOR_INDEX", "post_embeddings_vector"),
		VectorDimensions: getEnvInt("VECTOR_DIM", 1024), // bge-m3 produces 1024-dimensional vectors

		EmbeddingsProvider:    strings.ToLower(getEnv("EMBEDDINGS_PROVIDER", ProviderCloudflare)),
		CloudflareAPIKey:      getEnv("CLOUDFLARE_API_KEY", ""),
		CloudflareAccountID:   getEnv("CLOUDFLARE_ACCOUNT_ID", ""),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		EmbeddingBaseURL:      getEnv("EMBEDDING_BASE_URL", ""),
		EmbeddingModel:        getEnv("EMBEDDING_MODEL", ""),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		EmbeddingRPM:          getEnvInt("EMBEDDING_RPM", 300),
		EmbeddingTimeout:      getEnvDuration("EMBEDDING_TIMEOUT", 30*time.Second),

		SearchDefaultLimit:     getEnvInt("SEARCH_DEFAULT_LIMIT", 10),
		SearchMaxLimit:         getEnvInt("SEARCH_MAX_LIMIT", 50),
		SearchDefaultThreshold: getEnvFloat64("SEARCH_DEFAULT_THRESHOLD", 0.7),
		RAGLimit:               getEnvInt("RAG_LIMIT", 5),
		RAGThreshold:           getEnvFloat64("RAG_THRESHOLD", 0.5),

		BatchMaxSize:     getEnvInt("BATCH_MAX_SIZE", 100),
		BatchConcurrency: getEnvInt("BATCH_CONCURRENCY", 4),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		QueryCacheEnabled: getEnvBool("QUERY_CACHE_ENABLED", false),
		QueryCacheTTL:     getEnvDuration("QUERY_CACHE_TTL", 24*time.Hour),
		EmbedRetryEnabled: getEnvBool("EMBED_RETRY_ENABLED", false),

		RateLimitEnabled: getEnvBool("RATE_LIMIT_ENABLED", false),
		RateLimitReqs:    getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:  getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		BackfillEnabled:  getEnvBool("BACKFILL_ENABLED", false),
		BackfillInterval: getEnvDuration("BACKFILL_INTERVAL", 15*time.Minute),
		BackfillBatch:    getEnvInt("BACKFILL_BATCH", 50),

		OTelEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:    getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OTelSampleRatio: getEnvFloat64("OTEL_SAMPLE_RATIO", 0.1),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the settings required by the selected backends are present
func (c *Config) Validate() error {
	switch c.VectorStore {
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite vector store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres vector store")
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for the mongo vector store")
		}
	default:
		return fmt.Errorf("unknown vector store: %s", c.VectorStore)
	}

	switch c.EmbeddingsProvider {
	case ProviderCloudflare:
		if c.CloudflareAPIKey == "" || c.CloudflareAccountID == "" {
			return fmt.Errorf("CLOUDFLARE_API_KEY and CLOUDFLARE_ACCOUNT_ID are required - set them in .env file")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required - set it in .env file")
		}
	case ProviderGoogle:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
		}
	default:
		return fmt.Errorf("unknown embeddings provider: %s", c.EmbeddingsProvider)
	}

	if c.SearchMaxLimit < 1 {
		return fmt.Errorf("SEARCH_MAX_LIMIT must be positive")
	}
	if c.SearchDefaultLimit < 1 || c.SearchDefaultLimit > c.SearchMaxLimit {
		return fmt.Errorf("SEARCH_DEFAULT_LIMIT must be between 1 and %d", c.SearchMaxLimit)
	}
	if c.RAGLimit < 1 || c.RAGLimit > c.SearchMaxLimit {
		return fmt.Errorf("RAG_LIMIT must be between 1 and %d", c.SearchMaxLimit)
	}
	if !validThreshold(c.SearchDefaultThreshold) || !validThreshold(c.RAGThreshold) {
		return fmt.Errorf("similarity thresholds must be between 0 and 1")
	}
	if c.BatchMaxSize < 1 {
		return fmt.Errorf("BATCH_MAX_SIZE must be positive")
	}

	return nil
}

// IsDebug reports whether the service runs in gin debug mode
func (c *Config) IsDebug() bool {
	return c.GinMode == "debug"
}

func validThreshold(v float64) bool {
	return v >= 0 && v <= 1
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
