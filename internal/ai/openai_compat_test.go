package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmbeddingServer(t *testing.T, handler func(w http.ResponseWriter, req embeddingRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req embeddingRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		handler(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeVectors(w http.ResponseWriter, vectors ...[]float32) {
	type item struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	}
	resp := struct {
		Data  []item `json:"data"`
		Model string `json:"model"`
	}{Model: "test-model"}
	// reversed on purpose: clients must order by index
	for i := len(vectors) - 1; i >= 0; i-- {
		resp.Data = append(resp.Data, item{Index: i, Embedding: vectors[i]})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func TestOpenAICompatProvider_GenerateTrimsInput(t *testing.T) {
	srv := newEmbeddingServer(t, func(w http.ResponseWriter, req embeddingRequest) {
		assert.Equal(t, []string{"hello world"}, req.Input)
		assert.Equal(t, "test-model", req.Model)
		assert.Zero(t, req.Dimensions)
		writeVectors(w, []float32{0.1, 0.2, 0.3})
	})

	p := NewOpenAICompatProvider("test-key", srv.URL, "test-model", time.Second)
	vec, err := p.Generate(context.Background(), "  hello world \n")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "test-model", p.Model())
}

func TestOpenAICompatProvider_GenerateManyKeepsInputOrder(t *testing.T) {
	srv := newEmbeddingServer(t, func(w http.ResponseWriter, req embeddingRequest) {
		assert.Equal(t, 8, req.Dimensions)
		writeVectors(w, []float32{1, 0}, []float32{0, 1}, []float32{1, 1})
	})

	p := NewOpenAICompatProvider("test-key", srv.URL, "test-model", time.Second)
	p.Dimensions = 8
	vectors, err := p.GenerateMany(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}, {1, 1}}, vectors)
}

func TestOpenAICompatProvider_AllZeroVectorIsDegraded(t *testing.T) {
	srv := newEmbeddingServer(t, func(w http.ResponseWriter, req embeddingRequest) {
		writeVectors(w, make([]float32, 16))
	})

	p := NewOpenAICompatProvider("test-key", srv.URL, "test-model", time.Second)
	_, err := p.Generate(context.Background(), "text")
	assert.ErrorIs(t, err, ErrDegradedProvider)
	assert.Equal(t, "degraded_provider", FailureKind(err))
}

func TestOpenAICompatProvider_EmptyDataIsInvalid(t *testing.T) {
	srv := newEmbeddingServer(t, func(w http.ResponseWriter, req embeddingRequest) {
		writeVectors(w)
	})

	p := NewOpenAICompatProvider("test-key", srv.URL, "test-model", time.Second)
	_, err := p.Generate(context.Background(), "text")
	assert.ErrorIs(t, err, ErrProviderResponseInvalid)
}

func TestOpenAICompatProvider_DimensionMismatchIsInvalid(t *testing.T) {
	srv := newEmbeddingServer(t, func(w http.ResponseWriter, req embeddingRequest) {
		writeVectors(w, []float32{1, 2, 3})
	})

	p := NewOpenAICompatProvider("test-key", srv.URL, "test-model", time.Second)
	p.ExpectDimensions = 4
	_, err := p.Generate(context.Background(), "text")
	assert.ErrorIs(t, err, ErrProviderResponseInvalid)
}

func TestOpenAICompatProvider_NonSuccessStatus(t *testing.T) {
	srv := newEmbeddingServer(t, func(w http.ResponseWriter, req embeddingRequest) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	})

	p := NewOpenAICompatProvider("test-key", srv.URL, "test-model", time.Second)
	_, err := p.Generate(context.Background(), "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestOpenAICompatProvider_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := NewOpenAICompatProvider("test-key", url, "test-model", time.Second)
	_, err := p.Generate(context.Background(), "text")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, "provider_unavailable", FailureKind(err))
}

func TestOpenAICompatProvider_EmptyInputNeverCallsRemote(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	p := NewOpenAICompatProvider("test-key", srv.URL, "test-model", time.Second)
	_, err := p.Generate(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.False(t, called)
}

func TestCloudflareBaseURL(t *testing.T) {
	assert.Equal(t, "https://api.cloudflare.com/client/v4/accounts/acc123/ai/v1", CloudflareBaseURL("acc123"))
}

func TestValidateVector(t *testing.T) {
	assert.ErrorIs(t, ValidateVector(nil), ErrProviderResponseInvalid)
	assert.ErrorIs(t, ValidateVector([]float32{0, 0, 0}), ErrDegradedProvider)
	assert.NoError(t, ValidateVector([]float32{0, 0, 0.0001}))
}
