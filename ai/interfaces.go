package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in one call.
	// The returned slice contains embeddings in the same order as the input texts.
	// Callers are responsible for keeping len(texts) within the provider's
	// per-call limit; see BatchEmbedder.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Analyzer produces a structured project analysis from document text.
// Implementations must be thread-safe for concurrent use.
type Analyzer interface {
	// Analyze never returns a Go error. Failures are reported through the
	// Kind of the returned result so callers can tell an unavailable provider
	// from a malformed response.
	Analyze(ctx context.Context, documentText string, opts AnalyzeOptions) AnalysisResult
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Analyzer returns the document analysis service.
	Analyzer() Analyzer

	// Close releases resources held by the provider and its services.
	Close() error
}
