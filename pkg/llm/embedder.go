package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"
	"golang.org/x/time/rate"

	"github.com/hmle/talkdocs/internal/types"
)

// EmbedderConfig represents the configuration for the embedding gateway.
type EmbedderConfig struct {
	Model     string
	BaseURL   string // Ollama server URL
	VectorDim int
	BatchSize int
	RateLimit float64 // requests per second, 0 disables limiting
}

// Embedder is the embedding gateway: text in, fixed-dimension vector
// out. Batching is an optimization only; calls are rate limited so
// ingestion cannot starve the model server.
type Embedder struct {
	config  EmbedderConfig
	llm     *ollama.LLM
	limiter *rate.Limiter
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}
	if config.BatchSize == 0 {
		config.BatchSize = 16
	}

	llm, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	return &Embedder{
		config:  config,
		llm:     llm,
		limiter: limiter,
	}, nil
}

// EmbedTexts embeds every text, batching the calls. One vector comes
// back per input, in input order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		batch, err := e.llm.CreateEmbedding(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create embeddings: %v", types.ErrUpstream, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("%w: embedding count mismatch: want %d, got %d",
				types.ErrUpstream, end-start, len(batch))
		}
		vectors = append(vectors, batch...)
	}

	for _, v := range vectors {
		if len(v) != e.config.VectorDim {
			return nil, fmt.Errorf("%w: embedding dimension mismatch: want %d, got %d",
				types.ErrUpstream, e.config.VectorDim, len(v))
		}
	}

	return vectors, nil
}

func (e *Embedder) Dimension() int {
	return e.config.VectorDim
}
