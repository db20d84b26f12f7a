package ai

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"posts-rag-service/internal/logger"
	"posts-rag-service/internal/telemetry"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

// GuardedProvider protects a provider with a rate limiter and a circuit breaker and
// traces every call. It performs no retries.
type GuardedProvider struct {
	next    Provider
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	metrics *telemetry.Metrics
}

// NewGuardedProvider wraps next. rpm <= 0 disables rate limiting.
func NewGuardedProvider(next Provider, rpm int, metrics *telemetry.Metrics) *GuardedProvider {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "EmbeddingProvider",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		// Bad input says nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrEmptyInput) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			metrics.RecordCircuitBreakerState(name, to.String())
		},
	})

	limiter := rate.NewLimiter(rate.Inf, 1)
	if rpm > 0 {
		burst := rpm / 10
		if burst < 1 {
			burst = 1
		}
		// RPM limit with some buffer
		limiter = rate.NewLimiter(rate.Limit(float64(rpm)*0.9/60.0), burst)
	}

	return &GuardedProvider{
		next:    next,
		breaker: breaker,
		limiter: limiter,
		metrics: metrics,
	}
}

func (g *GuardedProvider) Model() string {
	return g.next.Model()
}

func (g *GuardedProvider) Generate(ctx context.Context, text string) ([]float32, error) {
	tracer := otel.Tracer("embedding-provider")
	ctx, span := tracer.Start(ctx, "embeddings.generate")
	defer span.End()

	span.SetAttributes(
		attribute.String("embedding.model", g.next.Model()),
		attribute.Int("embedding.input_chars", utf8.RuneCountInString(text)),
	)

	if err := g.limiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("embedding.rate_limited", true))
		span.SetStatus(codes.Error, err.Error())
		return nil, unavailable(err)
	}

	start := time.Now()
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Generate(ctx, text)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		span.SetAttributes(attribute.Bool("embedding.circuit_breaker_open", true))
		err = unavailable(err)
	}
	g.metrics.RecordProviderCall(ctx, g.next.Model(), time.Since(start).Seconds(), FailureKind(err))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, FailureKind(err))
		return nil, err
	}

	vec := result.([]float32)
	span.SetAttributes(attribute.Int("embedding.dimensions", len(vec)))
	return vec, nil
}
