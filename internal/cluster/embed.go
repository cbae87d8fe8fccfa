package cluster

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"
)

const (
	// DefaultEmbeddingModel produces 768-dim vectors via Matryoshka truncation.
	DefaultEmbeddingModel      = "gemini-embedding-001"
	defaultEmbeddingDimensions = int32(768)
	maxEmbeddingInput          = 8000
)

// Embedder computes a dense vector for a text. The clusterer assumes all
// vectors from one Embedder share a dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// GenaiEmbedder is the Gemini-backed Embedder.
type GenaiEmbedder struct {
	client *genai.Client
	model  string
}

// NewGenaiEmbedder creates an embedder. The API key comes from the
// environment; model may be empty to use the default.
func NewGenaiEmbedder(ctx context.Context, model string) (*GenaiEmbedder, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("credential missing: GEMINI_API_KEY is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &GenaiEmbedder{client: client, model: model}, nil
}

// Embed returns a 768-dim vector for the text, truncating long inputs to
// stay inside the model's token limit.
func (e *GenaiEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if len(text) > maxEmbeddingInput {
		text = text[:maxEmbeddingInput]
	}
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: text}},
		Role:  "user",
	}}
	dims := defaultEmbeddingDimensions
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, fmt.Errorf("generate embedding: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("no embedding values returned")
	}
	values := resp.Embeddings[0].Values
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out, nil
}
