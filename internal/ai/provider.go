package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"posts-rag-service/internal/config"
	"posts-rag-service/internal/telemetry"

	"github.com/redis/go-redis/v9"
)

// Provider turns text into a fixed-dimension vector through a remote model.
// Implementations trim the input, never retry, and validate the returned vector
// with ValidateVector before handing it out.
type Provider interface {
	Generate(ctx context.Context, text string) ([]float32, error)
	// Model identifies the model that produced the vectors.
	Model() string
}

// ValidateVector rejects empty vectors and vectors whose every component is zero.
// An all-zero vector is a well-formed response from a degraded provider; storing it
// would silently corrupt similarity ranking.
func ValidateVector(vec []float32) error {
	if len(vec) == 0 {
		return ErrProviderResponseInvalid
	}
	for _, v := range vec {
		if v != 0 {
			return nil
		}
	}
	return ErrDegradedProvider
}

// checkDimensions enforces the dimension agreed with the provider when one is configured
func checkDimensions(vec []float32, want int) error {
	if want > 0 && len(vec) != want {
		return fmt.Errorf("%w: got %d dimensions, want %d", ErrProviderResponseInvalid, len(vec), want)
	}
	return nil
}

func normalizeInput(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyInput
	}
	return text, nil
}

// NewProvider builds the configured provider chain: optional Redis cache in front of the
// breaker/limiter guard around the base client. The returned close func releases the
// base client.
func NewProvider(ctx context.Context, cfg *config.Config, rdb *redis.Client, metrics *telemetry.Metrics) (Provider, func() error, error) {
	var (
		base    Provider
		closeFn = func() error { return nil }
	)

	switch cfg.EmbeddingsProvider {
	case config.ProviderCloudflare, "":
		model := cfg.EmbeddingModel
		if model == "" {
			model = DefaultCloudflareModel
		}
		baseURL := cfg.EmbeddingBaseURL
		if baseURL == "" {
			baseURL = CloudflareBaseURL(cfg.CloudflareAccountID)
		}
		p := NewOpenAICompatProvider(cfg.CloudflareAPIKey, baseURL, model, cfg.EmbeddingTimeout)
		p.ExpectDimensions = cfg.VectorDimensions
		base = p

	case config.ProviderOpenAI:
		model := cfg.EmbeddingModel
		if model == "" {
			model = DefaultOpenAIModel
		}
		p := NewOpenAICompatProvider(cfg.OpenAIAPIKey, cfg.EmbeddingBaseURL, model, cfg.EmbeddingTimeout)
		p.Dimensions = cfg.VectorDimensions
		p.ExpectDimensions = cfg.VectorDimensions
		base = p

	case config.ProviderGoogle:
		p, err := NewGoogleProvider(ctx, cfg.GeminiAPIKey, cfg.GoogleEmbeddingsModel)
		if err != nil {
			return nil, nil, err
		}
		p.ExpectDimensions = cfg.VectorDimensions
		base = p
		closeFn = p.Close

	default:
		return nil, nil, fmt.Errorf("unknown embeddings provider: %s", cfg.EmbeddingsProvider)
	}

	var cache VectorCache
	if cfg.QueryCacheEnabled && rdb != nil {
		cache = NewRedisVectorCache(rdb)
	}

	return chain(base, cache, cfg.QueryCacheTTL, cfg.EmbeddingRPM, metrics), closeFn, nil
}

// chain puts the cache in front of the guard so cache hits never spend limiter
// tokens or count toward the breaker. A nil cache leaves only the guard.
func chain(base Provider, cache VectorCache, ttl time.Duration, rpm int, metrics *telemetry.Metrics) Provider {
	guarded := NewGuardedProvider(base, rpm, metrics)
	if cache == nil {
		return guarded
	}
	return NewCachedProvider(guarded, cache, ttl)
}
