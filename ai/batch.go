package ai

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBatchSize is the documented per-call embedding limit.
	DefaultBatchSize = 100

	// MaxBatchSize is the largest batch any supported provider accepts.
	MaxBatchSize = 2048
)

// BatchEmbedder splits embedding work into provider-sized batches and paces
// successive calls. A BatchEmbedder is safe for concurrent use; the pacing
// limiter is shared by all callers.
type BatchEmbedder struct {
	embedder    Embedder
	batchSize   int
	dimension   int
	maxChars    int
	callTimeout time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// BatchOption configures a BatchEmbedder.
type BatchOption func(*BatchEmbedder) error

// WithBatchSize sets the maximum number of texts per provider call.
func WithBatchSize(size int) BatchOption {
	return func(b *BatchEmbedder) error {
		if size < 1 || size > MaxBatchSize {
			return fmt.Errorf("%w: %d", ErrInvalidBatchSize, size)
		}
		b.batchSize = size
		return nil
	}
}

// WithBatchDelay sets the minimum pause between successive provider calls.
func WithBatchDelay(delay time.Duration) BatchOption {
	return func(b *BatchEmbedder) error {
		if delay <= 0 {
			b.limiter = rate.NewLimiter(rate.Inf, 1)
			return nil
		}
		b.limiter = rate.NewLimiter(rate.Every(delay), 1)
		return nil
	}
}

// WithDimension requires every returned vector to have dim values.
func WithDimension(dim int) BatchOption {
	return func(b *BatchEmbedder) error {
		b.dimension = dim
		return nil
	}
}

// WithMaxChars sets the validation limit applied to every text.
func WithMaxChars(n int) BatchOption {
	return func(b *BatchEmbedder) error {
		b.maxChars = n
		return nil
	}
}

// WithCallTimeout bounds each provider call.
func WithCallTimeout(timeout time.Duration) BatchOption {
	return func(b *BatchEmbedder) error {
		b.callTimeout = timeout
		return nil
	}
}

// WithBatchLogger sets the logger.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchEmbedder) error {
		b.logger = logger
		return nil
	}
}

// NewBatchEmbedder wraps embedder with batching and pacing.
func NewBatchEmbedder(embedder Embedder, opts ...BatchOption) (*BatchEmbedder, error) {
	b := &BatchEmbedder{
		embedder:  embedder,
		batchSize: DefaultBatchSize,
		limiter:   rate.NewLimiter(rate.Inf, 1),
		logger:    slog.Default().With("component", "batch-embedder"),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// NewBatchEmbedderFromConfig builds a BatchEmbedder from the embedding settings of cfg.
func NewBatchEmbedderFromConfig(embedder Embedder, cfg *Config, opts ...BatchOption) (*BatchEmbedder, error) {
	base := []BatchOption{
		WithBatchSize(cfg.EmbeddingBatchSize),
		WithBatchDelay(cfg.EmbeddingBatchDelay),
		WithDimension(cfg.EmbeddingDimension),
		WithMaxChars(cfg.MaxEmbeddingChars),
	}
	return NewBatchEmbedder(embedder, append(base, opts...)...)
}

// BatchSize returns the per-call limit.
func (b *BatchEmbedder) BatchSize() int {
	return b.batchSize
}

// MaxChars returns the validation limit, zero when unlimited.
func (b *BatchEmbedder) MaxChars() int {
	return b.maxChars
}

// Embed returns one vector per text, in order. Every text is validated
// before any call is made. If any batch fails the whole call fails and no
// vectors are returned.
func (b *BatchEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	for i, text := range texts {
		if err := ValidateTextForEmbedding(text, b.maxChars); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))

		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		batch, err := b.embedBatch(ctx, texts[start:end])
		if err != nil {
			b.logger.Error("embedding batch failed", "start", start, "size", end-start, "err", err)
			return nil, err
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("%w: batch at %d expected %d vectors, got %d",
				ErrEmbeddingMismatch, start, end-start, len(batch))
		}
		vectors = append(vectors, batch...)
	}

	if err := b.checkDimensions(vectors); err != nil {
		return nil, err
	}
	b.logger.Debug("embedded texts", "count", len(texts), "batches", batchCount(len(texts), b.batchSize))
	return vectors, nil
}

// EmbedQuery embeds a single search query under the same pacing and limits.
func (b *BatchEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := b.Embed(ctx, []string{TruncateForEmbedding(query, b.maxChars)})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (b *BatchEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if b.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.callTimeout)
		defer cancel()
	}
	return b.embedder.EmbedTexts(ctx, texts)
}

func (b *BatchEmbedder) checkDimensions(vectors [][]float32) error {
	want := b.dimension
	for i, v := range vectors {
		if want == 0 {
			want = len(v)
		}
		if len(v) == 0 || len(v) != want {
			return fmt.Errorf("%w: vector %d has dimension %d, expected %d", ErrEmbeddingMismatch, i, len(v), want)
		}
		for _, x := range v {
			if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
				return fmt.Errorf("%w: vector %d contains non-finite values", ErrEmbeddingMismatch, i)
			}
		}
	}
	return nil
}

func batchCount(n, size int) int {
	return (n + size - 1) / size
}
