package ai

import "context"

// Embedder generates vector embeddings from text.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a
	// batch. The returned slice contains embeddings in the same order as the
	// input texts. Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Tagger extracts topical tags from a message.
// Implementations must be thread-safe for concurrent use.
type Tagger interface {
	// TagMessage returns lowercase topical tags for one message, most
	// relevant first. Returns an empty slice when nothing tag-worthy is
	// found. LLM-backed and heuristic implementations share this output
	// schema, so the tagging artifact is method-independent.
	TagMessage(ctx context.Context, text string) ([]string, error)
}

// Summarizer condenses conversational text.
// Implementations must be thread-safe for concurrent use.
type Summarizer interface {
	// SummarizeChat produces a short prose summary of one conversation.
	SummarizeChat(ctx context.Context, title string, messages []string) (string, error)

	// SummarizeCluster produces a short prose summary of thematically
	// related excerpts drawn from many conversations.
	SummarizeCluster(ctx context.Context, excerpts []string) (string, error)
}

// Clusterer groups embedding vectors and projects them to the plane.
// Clustering runs in-process over the full vector corpus, so unlike the
// other services it is not split by provider: every provider wires the
// same implementation.
type Clusterer interface {
	// Cluster assigns each vector a cluster label and 2-D coordinates.
	// Vectors that fit no cluster receive NoiseLabel. len(Labels) and
	// len(Coords) always equal len(vectors).
	Cluster(ctx context.Context, vectors [][]float32) (*Clustering, error)
}

// Provider aggregates AI services for convenient initialization and
// lifecycle management. The cloud and local providers return services that
// produce identical output schemas; only quality differs.
type Provider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Tagger returns the message tagging service.
	Tagger() Tagger

	// Summarizer returns the summarization service.
	Summarizer() Summarizer

	// Clusterer returns the embedding clustering service.
	Clusterer() Clusterer

	// Close releases resources held by the provider and its services.
	Close() error
}
