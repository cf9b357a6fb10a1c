package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"pdfreader/internal/config"
)

// Embedder maps text to a fixed-length vector. Satisfied by
// langchaingo's EmbedderImpl and by deterministic stand-ins in tests.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// New builds the embedder selected by cfg. The OpenAI provider covers
// any OpenAI-compatible endpoint via base_url; the Ollama provider
// talks to a locally hosted model server.
func New(cfg *config.Config) (Embedder, error) {
	var inner Embedder
	var err error
	switch cfg.Embedding.Provider {
	case "ollama":
		inner, err = newOllamaEmbedder(&cfg.Embedding)
	default:
		inner, err = newOpenAIEmbedder(&cfg.Embedding, cfg.APIKey)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Embedding.Normalize {
		return &normalizing{inner: inner}, nil
	}
	return inner, nil
}

func newOpenAIEmbedder(cfg *config.EmbeddingConfig, apiKey string) (*embeddings.EmbedderImpl, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(apiKey, "Bearer ")),
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing embedding client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return embedder, nil
}

func newOllamaEmbedder(cfg *config.EmbeddingConfig) (*embeddings.EmbedderImpl, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing embedding client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return embedder, nil
}

// normalizing scales every vector to unit length so similarity scores
// are comparable across embedding models.
type normalizing struct {
	inner Embedder
}

func (n *normalizing) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := n.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return Normalize(vec), nil
}

// Normalize returns v scaled to unit L2 norm. Zero vectors are
// returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
