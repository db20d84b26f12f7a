package ai

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type stubProvider struct {
	calls atomic.Int32
	vec   []float32
	err   error
}

func (s *stubProvider) Model() string { return "stub" }

func (s *stubProvider) Generate(ctx context.Context, text string) ([]float32, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}

func TestGuardedProvider_PassesThrough(t *testing.T) {
	stub := &stubProvider{vec: []float32{1, 2}}
	g := NewGuardedProvider(stub, 0, nil)

	vec, err := g.Generate(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
	assert.Equal(t, "stub", g.Model())
}

func TestGuardedProvider_OpensAfterRepeatedFailures(t *testing.T) {
	stub := &stubProvider{err: unavailable(errors.New("connection refused"))}
	g := NewGuardedProvider(stub, 0, nil)

	for i := 0; i < 3; i++ {
		_, err := g.Generate(context.Background(), "text")
		assert.ErrorIs(t, err, ErrProviderUnavailable)
	}

	_, err := g.Generate(context.Background(), "text")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.EqualValues(t, 3, stub.calls.Load(), "open breaker must not reach the provider")
}

func TestGuardedProvider_EmptyInputDoesNotTrip(t *testing.T) {
	stub := &stubProvider{err: ErrEmptyInput}
	g := NewGuardedProvider(stub, 0, nil)

	for i := 0; i < 5; i++ {
		_, err := g.Generate(context.Background(), "")
		assert.ErrorIs(t, err, ErrEmptyInput)
	}
	assert.EqualValues(t, 5, stub.calls.Load())
}

func TestGuardedProvider_CancelledContext(t *testing.T) {
	stub := &stubProvider{vec: []float32{1}}
	g := NewGuardedProvider(stub, 1, nil)

	// drain the single burst token
	_, err := g.Generate(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Generate(ctx, "second")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.EqualValues(t, 1, stub.calls.Load())
}

func TestGuardedProvider_SpanCountsCharacters(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	g := NewGuardedProvider(&stubProvider{vec: []float32{1}}, 0, nil)
	_, err := g.Generate(context.Background(), "héllo wörld")
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	var chars int64 = -1
	for _, kv := range spans[0].Attributes() {
		if kv.Key == attribute.Key("embedding.input_chars") {
			chars = kv.Value.AsInt64()
		}
	}
	assert.EqualValues(t, 11, chars)
}
