package storage

import (
	"context"
	"time"

	"github.com/poiesic/docanalysis/core"
)

// AnalysisRepository persists analysis records. Every method is scoped to one
// organization. Implementations must be thread-safe.
type AnalysisRepository interface {
	// Create inserts a new record without admission checks.
	// Returns ErrDuplicateKey if the id already exists.
	Create(ctx context.Context, record *core.AnalysisRecord) error

	// Admit checks the organization's concurrency ceiling and daily cost
	// budget and inserts the record, atomically.
	// Returns *core.TenantLimitError when a limit would be exceeded.
	Admit(ctx context.Context, record *core.AnalysisRecord, limits AdmissionLimits) error

	// Get retrieves a record with its audit trail and external call log.
	// Returns ErrNotFound if the record doesn't exist, belongs to another
	// organization or was soft-deleted.
	Get(ctx context.Context, organizationID, id string) (*core.AnalysisRecord, error)

	// Update writes the mutable pipeline fields of a record: stage, progress,
	// confidence, result, metadata, cost, next retry and timestamps.
	// Status, retry count and the cancel flag have dedicated methods.
	Update(ctx context.Context, record *core.AnalysisRecord) error

	// UpdateStatus moves a record from one status to another if, and only if,
	// it is still in the from status. Appends an audit entry for the change.
	// Returns core.ErrInvalidTransition for edges that are not allowed and
	// ErrStatusConflict when another writer moved the record first.
	UpdateStatus(ctx context.Context, organizationID, id string, from, to core.Status, update StatusUpdate) error

	// RequestCancel sets the cancel flag on a record.
	RequestCancel(ctx context.Context, organizationID, id string) error

	// IncrementRetryCount adds exactly one to the retry count and sets the
	// next retry time. Returns the new count, or ErrRetryBudgetExhausted if
	// the count already equals max_retries.
	IncrementRetryCount(ctx context.Context, organizationID, id string, nextRetryAt *time.Time) (int, error)

	// AddExternalServiceCall appends to the record's external call log.
	AddExternalServiceCall(ctx context.Context, organizationID, id string, call core.ExternalServiceCall) error

	// AddAuditEntry appends to the record's audit trail.
	AddAuditEntry(ctx context.Context, organizationID, id string, entry core.AuditEntry) error

	// FindPendingAnalyses returns PENDING records that are due at now.
	FindPendingAnalyses(ctx context.Context, organizationID string, now time.Time, limit int) ([]*core.AnalysisRecord, error)

	// FindFailedAnalyses returns FAILED records with retry budget left.
	FindFailedAnalyses(ctx context.Context, organizationID string, limit int) ([]*core.AnalysisRecord, error)

	// FindDueRetries returns FAILED records whose scheduled retry is due.
	FindDueRetries(ctx context.Context, organizationID string, now time.Time, limit int) ([]*core.AnalysisRecord, error)

	// FindActiveByHash returns a PENDING or PROCESSING record for the
	// document hash. Returns ErrNotFound if there is none.
	FindActiveByHash(ctx context.Context, organizationID, hash string) (*core.AnalysisRecord, error)

	// FindSimilarAnalyses returns completed records of the same document type
	// whose size is within 20% of the given record, best confidence first.
	FindSimilarAnalyses(ctx context.Context, organizationID, id string, limit int) ([]*core.AnalysisRecord, error)

	// List returns one page of records matching filter.
	// Returns ErrInvalidSortField for a sort field outside the allow-list.
	List(ctx context.Context, organizationID string, filter ListFilter) (*Page, error)

	// GetStats aggregates the organization's records.
	GetStats(ctx context.Context, organizationID string) (*Stats, error)

	// DailyCost sums the cost of records created on day (UTC).
	DailyCost(ctx context.Context, organizationID string, day time.Time) (float64, error)

	// ListTenants returns the distinct organization ids with live records.
	ListTenants(ctx context.Context) ([]string, error)

	// PurgeExpired soft-deletes terminal records last updated before cutoff
	// and returns their ids.
	PurgeExpired(ctx context.Context, organizationID string, cutoff time.Time) ([]string, error)

	// SoftDelete hides a record from every query.
	SoftDelete(ctx context.Context, organizationID, id string) error

	// Close closes the store and releases resources.
	Close() error
}

// VectorIndex stores chunk embeddings for similarity search.
type VectorIndex interface {
	// Upsert stores records for a document in batches. Records with the same
	// (document, chunk index) replace earlier ones. On failure the result
	// reports how many records were stored before the failing batch.
	Upsert(ctx context.Context, documentID string, records []core.VectorRecord) (UpsertResult, error)

	// Search returns up to topK records by descending cosine similarity.
	// Returns ErrIndexNotConfigured when no vector store backs the index.
	Search(ctx context.Context, query []float32, filter VectorFilter, topK int) ([]VectorMatch, error)

	// DeleteByDocument removes every vector of a document.
	DeleteByDocument(ctx context.Context, documentID string) error

	// Configured reports whether the index has a backing store.
	Configured() bool
}

// JobQueue is a durable work queue with leases and delayed delivery.
type JobQueue interface {
	// Enqueue makes a job available at availableAt. Enqueueing a job that is
	// already waiting reschedules it; enqueueing a leased job returns ErrJobLeased.
	Enqueue(ctx context.Context, job Job, availableAt time.Time) error

	// Dequeue leases the earliest job due at now. Returns nil when none is due.
	Dequeue(ctx context.Context, now time.Time, lease time.Duration) (*Delivery, error)

	// Ack removes a leased job.
	Ack(ctx context.Context, jobID string) error

	// Extend moves the lease of a leased job to until. Returns ErrNotFound
	// for an unknown job and ErrJobNotLeased for a waiting one.
	Extend(ctx context.Context, jobID string, until time.Time) error

	// Release returns a leased job to the queue, available at availableAt.
	Release(ctx context.Context, jobID string, availableAt time.Time) error

	// Remove deletes a waiting job. Reports whether a job was removed.
	// Returns ErrJobLeased if a consumer holds it.
	Remove(ctx context.Context, jobID string) (bool, error)

	// Contains reports whether the job is waiting or leased.
	Contains(ctx context.Context, jobID string) (bool, error)

	// RecoverExpired returns jobs whose lease ended before now to the queue.
	RecoverExpired(ctx context.Context, now time.Time) (int, error)

	// Len returns the number of waiting and leased jobs.
	Len(ctx context.Context) (int, error)
}

// DocumentStore keeps submitted document bytes for workers and retries.
type DocumentStore interface {
	Put(ctx context.Context, documentID string, data []byte) error
	// Get returns ErrNotFound if no document is stored under documentID.
	Get(ctx context.Context, documentID string) ([]byte, error)
	Delete(ctx context.Context, documentID string) error
}
