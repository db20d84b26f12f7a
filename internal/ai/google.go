package ai

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GoogleProvider generates embeddings with Google Generative AI (text-embedding-004).
type GoogleProvider struct {
	client *genai.Client
	model  string

	// ExpectDimensions rejects vectors of any other length when > 0.
	ExpectDimensions int
}

// NewGoogleProvider opens a genai client. Close must be called when done.
func NewGoogleProvider(ctx context.Context, apiKey, model string) (*GoogleProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
	}
	if model == "" {
		model = "text-embedding-004"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GoogleProvider{client: client, model: model}, nil
}

func (p *GoogleProvider) Model() string {
	return p.model
}

func (p *GoogleProvider) Generate(ctx context.Context, text string) ([]float32, error) {
	text, err := normalizeInput(text)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.EmbeddingModel(p.model).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, unavailable(err)
	}
	if resp == nil || resp.Embedding == nil {
		return nil, ErrProviderResponseInvalid
	}

	// genai SDK returns []float32 for Embedding.Values
	vec := resp.Embedding.Values
	if err := ValidateVector(vec); err != nil {
		return nil, err
	}
	if err := checkDimensions(vec, p.ExpectDimensions); err != nil {
		return nil, err
	}
	return vec, nil
}

// Close the client
func (p *GoogleProvider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
