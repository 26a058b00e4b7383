package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/cartograph/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder calls an OpenAI-compatible embedding endpoint. Vectors come back
// in request order, one per input text.
type Embedder struct {
	backend embeddings.Embedder
	model   string
	logger  *slog.Logger
}

func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Local OpenAI-compatible servers (ollama, llama.cpp) accept any token;
	// "none" keeps the client from requiring a real key.
	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken("none"),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("embedding client for %s: %w", config.EmbeddingHost, err)
	}

	backend, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Embedder{
		backend: backend,
		model:   config.EmbeddingModel,
		logger:  slog.Default().With("component", "openai-embedder"),
	}, nil
}

// NewEmbedder returns the interface type so callers stay decoupled from the
// transport.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedText embeds one text. An empty vector (no error) means the endpoint
// accepted the request but produced nothing; callers treat that as a failed
// item.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.backend.EmbedDocuments(ctx, []string{text})
	if err != nil {
		e.logger.Error("embedding request failed", "model", e.model, "err", err)
		return nil, err
	}
	if len(vectors) == 0 {
		e.logger.Warn("endpoint returned no vector", "model", e.model, "length", len(text))
		return []float32{}, nil
	}
	return vectors[0], nil
}

// EmbedTexts embeds a batch in one request.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("embedding batch", "count", len(texts))

	vectors, err := e.backend.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("batch embedding request failed", "model", e.model, "count", len(texts), "err", err)
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(vectors))
	}
	return vectors, nil
}
