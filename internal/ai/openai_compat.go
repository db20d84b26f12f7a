package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultCloudflareModel = "@cf/baai/bge-m3"
	DefaultOpenAIModel     = "text-embedding-3-small"
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
)

// CloudflareBaseURL returns the OpenAI-compatible Workers AI endpoint for an account
func CloudflareBaseURL(accountID string) string {
	return fmt.Sprintf("https://api.cloudflare.com/client/v4/accounts/%s/ai/v1", accountID)
}

// OpenAICompatProvider calls an OpenAI-compatible /embeddings endpoint
// (OpenAI itself, Cloudflare Workers AI, or any gateway speaking the same API).
type OpenAICompatProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client

	// Dimensions is sent with the request when > 0 (models that support shortening).
	Dimensions int
	// ExpectDimensions rejects vectors of any other length when > 0.
	ExpectDimensions int
}

// NewOpenAICompatProvider creates a provider for the given endpoint
func NewOpenAICompatProvider(apiKey, baseURL, model string, timeout time.Duration) *OpenAICompatProvider {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAICompatProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

func (p *OpenAICompatProvider) Model() string {
	return p.model
}

// Generate embeds a single text
func (p *OpenAICompatProvider) Generate(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.GenerateMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// GenerateMany embeds several texts in one request. Vectors come back in input order.
func (p *OpenAICompatProvider) GenerateMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	inputs := make([]string, len(texts))
	for i, t := range texts {
		in, err := normalizeInput(t)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		inputs[i] = in
	}

	body, err := json.Marshal(embeddingRequest{Input: inputs, Model: p.model, Dimensions: p.Dimensions})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, unavailable(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unavailable(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 512)}
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderResponseInvalid, err)
	}
	if len(parsed.Data) != len(inputs) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrProviderResponseInvalid, len(parsed.Data), len(inputs))
	}

	vectors := make([][]float32, len(inputs))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vectors) || vectors[d.Index] != nil {
			return nil, fmt.Errorf("%w: unexpected embedding index %d", ErrProviderResponseInvalid, d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, vec := range vectors {
		if err := ValidateVector(vec); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		if err := checkDimensions(vec, p.ExpectDimensions); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}

	return vectors, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
