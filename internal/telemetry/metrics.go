package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	EmbeddingsGenerated metric.Int64Counter
	ProviderFailures    metric.Int64Counter
	ProviderDuration    metric.Float64Histogram
	SearchDuration      metric.Float64Histogram
	SearchResults       metric.Int64Histogram
	BatchItems          metric.Int64Counter
	CircuitBreakerState metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("posts-rag-service")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	embeddingsGenerated, err := meter.Int64Counter(
		"embeddings.generated",
		metric.WithDescription("Embedding records persisted"),
	)
	if err != nil {
		return nil, err
	}

	providerFailures, err := meter.Int64Counter(
		"embeddings.provider.failures",
		metric.WithDescription("Embedding provider failures by kind"),
	)
	if err != nil {
		return nil, err
	}

	providerDuration, err := meter.Float64Histogram(
		"embeddings.provider.duration",
		metric.WithDescription("Embedding provider call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	searchDuration, err := meter.Float64Histogram(
		"similarity.search.duration",
		metric.WithDescription("Similarity search duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	searchResults, err := meter.Int64Histogram(
		"similarity.search.results",
		metric.WithDescription("Results returned per similarity search"),
	)
	if err != nil {
		return nil, err
	}

	batchItems, err := meter.Int64Counter(
		"embeddings.batch.items",
		metric.WithDescription("Batch embedding items by outcome"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		EmbeddingsGenerated: embeddingsGenerated,
		ProviderFailures:    providerFailures,
		ProviderDuration:    providerDuration,
		SearchDuration:      searchDuration,
		SearchResults:       searchResults,
		BatchItems:          batchItems,
		CircuitBreakerState: circuitBreakerState,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordEmbeddingGenerated counts a newly persisted embedding
func (m *Metrics) RecordEmbeddingGenerated(ctx context.Context, model string) {
	if m == nil {
		return
	}
	m.EmbeddingsGenerated.Add(ctx, 1, metric.WithAttributes(attribute.String("embedding.model", model)))
}

// RecordProviderCall records the duration of a provider call and, on failure, its kind
func (m *Metrics) RecordProviderCall(ctx context.Context, model string, duration float64, failureKind string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("embedding.model", model))
	m.ProviderDuration.Record(ctx, duration, attrs)
	if failureKind != "" {
		m.ProviderFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("embedding.model", model),
			attribute.String("failure.kind", failureKind),
		))
	}
}

// RecordSearch records similarity search latency and result count
func (m *Metrics) RecordSearch(ctx context.Context, duration float64, results int, success bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("search.success", success))
	m.SearchDuration.Record(ctx, duration, attrs)
	m.SearchResults.Record(ctx, int64(results), attrs)
}

// RecordBatchItem records the outcome of one batch item
func (m *Metrics) RecordBatchItem(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.BatchItems.Add(ctx, 1, metric.WithAttributes(attribute.String("batch.outcome", outcome)))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("state", state),
	}

	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
