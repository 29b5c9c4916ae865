package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docanalysis/ai"
	"github.com/poiesic/docanalysis/chunker"
	"github.com/poiesic/docanalysis/storage"
)

// Orchestrator admits analysis jobs and drives them through the pipeline.
// All methods are safe for concurrent use.
type Orchestrator struct {
	records   storage.AnalysisRepository
	vectors   storage.VectorIndex
	queue     storage.JobQueue
	documents storage.DocumentStore
	chunker   *chunker.Chunker
	embedder  *ai.BatchEmbedder
	analyzer  ai.Analyzer
	pool      *ants.Pool
	config    Config
	now       func() time.Time
	logger    *slog.Logger

	// tenantLocks serializes duplicate detection and admission per organization.
	tenantLocks sync.Map

	// inflight tracks jobs handed to the pool by the dispatcher.
	inflight sync.WaitGroup

	// running holds the IDs of jobs a worker in this process is executing.
	running sync.Map
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithConfig replaces the whole configuration. Options applied after it
// still override individual fields.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) error {
		o.config = cfg
		return nil
	}
}

// WithWorkers sets the worker pool size.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) error {
		o.config.Workers = max(n, 1)
		return nil
	}
}

// WithRetryPolicy sets the retry budget and backoff bounds.
func WithRetryPolicy(maxRetries int, baseDelay, maxDelay time.Duration) Option {
	return func(o *Orchestrator) error {
		o.config.MaxRetries = maxRetries
		o.config.RetryBaseDelay = baseDelay
		o.config.RetryMaxDelay = maxDelay
		return nil
	}
}

// WithTenantLimits sets the per-organization admission gates.
func WithTenantLimits(maxConcurrentJobs int, dailyCostLimit float64) Option {
	return func(o *Orchestrator) error {
		o.config.MaxConcurrentJobs = maxConcurrentJobs
		o.config.DailyCostLimit = dailyCostLimit
		return nil
	}
}

// WithCallTimeout bounds every external call.
func WithCallTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) error {
		o.config.CallTimeout = timeout
		return nil
	}
}

// WithBatchEmbedder replaces the embedder built from the provider.
func WithBatchEmbedder(embedder *ai.BatchEmbedder) Option {
	return func(o *Orchestrator) error {
		o.embedder = embedder
		return nil
	}
}

// WithChunker replaces the default chunker.
func WithChunker(c *chunker.Chunker) Option {
	return func(o *Orchestrator) error {
		o.chunker = c
		return nil
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) error {
		o.now = now
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// NewOrchestrator creates an orchestrator over the given stores.
// Pass storage.DisabledVectorIndex{} to run without vector indexing.
func NewOrchestrator(
	records storage.AnalysisRepository,
	vectors storage.VectorIndex,
	queue storage.JobQueue,
	documents storage.DocumentStore,
	provider ai.AIProvider,
	opts ...Option,
) (*Orchestrator, error) {
	if records == nil {
		return nil, ErrRecordStoreRequired
	}
	if vectors == nil {
		return nil, ErrVectorIndexRequired
	}
	if queue == nil {
		return nil, ErrQueueRequired
	}
	if documents == nil {
		return nil, ErrDocumentStoreRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	o := &Orchestrator{
		records:   records,
		vectors:   vectors,
		queue:     queue,
		documents: documents,
		analyzer:  provider.Analyzer(),
		config:    DefaultConfig(),
		now:       time.Now,
		logger:    slog.Default().With("component", "orchestrator"),
	}

	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if err := o.config.Validate(); err != nil {
		return nil, err
	}

	if o.chunker == nil {
		o.chunker = chunker.New(chunker.WithLogger(o.logger))
	}
	if o.embedder == nil {
		embedder, err := ai.NewBatchEmbedder(provider.Embedder(),
			ai.WithCallTimeout(o.config.CallTimeout), ai.WithBatchLogger(o.logger))
		if err != nil {
			return nil, err
		}
		o.embedder = embedder
	}

	pool, err := ants.NewPool(o.config.Workers)
	if err != nil {
		return nil, err
	}
	o.pool = pool

	return o, nil
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.config
}

// Release waits for jobs already handed to workers and releases the pool.
// The orchestrator should not be used after calling Release.
func (o *Orchestrator) Release() {
	o.inflight.Wait()
	if o.pool != nil {
		o.pool.Release()
	}
}

// tenantLock returns the admission mutex of an organization.
func (o *Orchestrator) tenantLock(organizationID string) *sync.Mutex {
	lock, _ := o.tenantLocks.LoadOrStore(organizationID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// withTimeout bounds a single external call.
func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.config.CallTimeout)
}
