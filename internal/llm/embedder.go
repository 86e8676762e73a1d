package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Embedder turns text into a fixed-length vector. Implementations must fail
// with an error rather than return a partial vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimensions returns the length of every vector produced
	Dimensions() int
	Close() error
}

// GeminiEmbedder implements Embedder with a Gemini embedding model. It does
// not pace requests; wrap it in a RateLimitedEmbedder for that.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
	dim    int
}

// NewGeminiEmbedder creates a Gemini embedder
func NewGeminiEmbedder(ctx context.Context, config *Config, apiKey string) (*GeminiEmbedder, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config.EmbeddingDim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", config.EmbeddingDim)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiEmbedder{
		client: client,
		model:  config.EmbeddingModel,
		dim:    config.EmbeddingDim,
	}, nil
}

// Embed returns the embedding for text
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.EmbeddingModel(e.model).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, &APICallError{Message: "failed to embed content", Cause: err}
	}
	if resp == nil || resp.Embedding == nil {
		return nil, &APICallError{Message: "empty embedding response"}
	}

	return checkDimensions(resp.Embedding.Values, e.dim)
}

// Dimensions returns the configured vector length
func (e *GeminiEmbedder) Dimensions() int {
	return e.dim
}

// Close releases resources held by the embedder
func (e *GeminiEmbedder) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

func checkDimensions(vec []float32, dim int) ([]float32, error) {
	if len(vec) != dim {
		return nil, &DimensionError{Expected: dim, Actual: len(vec)}
	}
	return vec, nil
}
