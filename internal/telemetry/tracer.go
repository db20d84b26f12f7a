package telemetry

import (
	"context"
	"fmt"

	"posts-rag-service/internal/config"
	"posts-rag-service/internal/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// InitTracer initializes OpenTelemetry tracing. When tracing is disabled the global
// no-op provider stays in place and the returned shutdown func does nothing.
func InitTracer(cfg *config.Config, serviceName string) (func(), error) {
	if !cfg.OTelEnabled {
		return func() {}, nil
	}

	ctx := context.Background()

	// Create OTLP exporter (to Jaeger, Tempo, etc.)
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTelEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	environment := "production"
	if cfg.IsDebug() {
		environment = "development"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String("1.0.0"),
			semconv.DeploymentEnvironmentKey.String(environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.OTelSampleRatio))),
	)

	otel.SetTracerProvider(tp)

	logger.Info("OpenTelemetry tracer initialized", "service", serviceName, "endpoint", cfg.OTelEndpoint)

	return func() {
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Failed to shutdown tracer", "error", err)
		}
	}, nil
}
