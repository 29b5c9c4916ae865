package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/docanalysis/core"
	"github.com/poiesic/docanalysis/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) (*Store, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	store, err := Open(filepath.Join(t.TempDir(), "analyses.db"), WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, clock
}

func newRecord(org, name string, size int64) *core.AnalysisRecord {
	return &core.AnalysisRecord{
		OrganizationID:    org,
		UserID:            "user-1",
		DocumentName:      name,
		DocumentHash:      core.DocumentHash(name, []byte(name)),
		DocumentType:      core.DocumentTypeProjectProposal,
		DocumentSize:      size,
		Status:            core.StatusPending,
		MaxRetries:        3,
		ProcessingOptions: core.ProcessingOptions{Depth: core.DepthDetailed},
	}
}

func moveTo(t *testing.T, s *Store, r *core.AnalysisRecord, path ...core.Status) {
	t.Helper()
	for _, next := range path {
		require.NoError(t, s.UpdateStatus(context.Background(), r.OrganizationID, r.ID, r.Status, next,
			storage.StatusUpdate{Record: r}))
	}
}

func TestOpen_MigratesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "analyses.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	var applied int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, 1, applied)
	assert.Equal(t, path, store.Path())
}

func TestOpen_Memory(t *testing.T) {
	store, err := Open(MemoryPath)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Create(context.Background(), newRecord("org-1", "a.txt", 10)))
}

func TestCreateGet(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	record := newRecord("org-1", "plan.md", 500)
	record.ProcessingOptions.ExtractFields = []string{"budget"}
	record.AuditTrail = []core.AuditEntry{{Action: "submitted", ToStatus: core.StatusPending}}
	require.NoError(t, store.Create(ctx, record))
	require.NotEmpty(t, record.ID)

	got, err := store.Get(ctx, "org-1", record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.DocumentName, got.DocumentName)
	assert.Equal(t, record.DocumentHash, got.DocumentHash)
	assert.Equal(t, core.StatusPending, got.Status)
	assert.Equal(t, 3, got.MaxRetries)
	assert.Equal(t, []string{"budget"}, got.ProcessingOptions.ExtractFields)
	assert.True(t, got.CreatedAt.Equal(clock.Now()))
	require.Len(t, got.AuditTrail, 1)
	assert.Equal(t, "submitted", got.AuditTrail[0].Action)

	err = store.Create(ctx, record)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestGet_TenantScoped(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	record := newRecord("org-1", "plan.md", 500)
	require.NoError(t, store.Create(ctx, record))

	_, err := store.Get(ctx, "org-2", record.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = store.RequestCancel(ctx, "org-2", record.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = store.AddAuditEntry(ctx, "org-2", record.ID, core.AuditEntry{Action: "inspect"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGet_ChildRowsTenantScoped(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	record := newRecord("org-1", "plan.md", 500)
	require.NoError(t, store.Create(ctx, record))
	require.NoError(t, store.AddAuditEntry(ctx, "org-1", record.ID, core.AuditEntry{Action: "reviewed", Actor: "user-1"}))
	require.NoError(t, store.AddExternalServiceCall(ctx, "org-1", record.ID, core.ExternalServiceCall{
		Service: core.ServiceLLM, Operation: "analyze", Status: core.CallSuccess,
	}))

	// Rows filed under another organization never leak into the record.
	at := clock.Now().UnixMilli()
	_, err := store.db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, analysis_id, organization_id, at, action)
		VALUES ('foreign-audit', ?, 'org-2', ?, 'foreign')`, record.ID, at)
	require.NoError(t, err)
	_, err = store.db.ExecContext(ctx, `
		INSERT INTO service_calls (id, analysis_id, organization_id, service, operation, status, at)
		VALUES ('foreign-call', ?, 'org-2', 'llm', 'foreign', 'success', ?)`, record.ID, at)
	require.NoError(t, err)

	got, err := store.Get(ctx, "org-1", record.ID)
	require.NoError(t, err)
	for _, entry := range got.AuditTrail {
		assert.NotEqual(t, "foreign", entry.Action)
	}
	require.Len(t, got.Metadata.ExternalServiceCalls, 1)
	assert.Equal(t, "analyze", got.Metadata.ExternalServiceCalls[0].Operation)
}

func TestUpdate_PersistsMutableFields(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	record := newRecord("org-1", "plan.md", 500)
	require.NoError(t, store.Create(ctx, record))

	clock.Advance(time.Minute)
	score := 0.82
	now := clock.Now()
	record.ConfidenceScore = &score
	record.ConfidenceLevel = core.LevelForScore(score)
	record.AnalysisResult = &core.StructuredAnalysis{Objectives: []string{"ship"}}
	record.Metadata.ChunkCount = 3
	record.Metadata.ErrorDetails = &core.ErrorDetails{Kind: core.ErrorKindStage, Stage: core.StageEmbed, Message: "boom"}
	record.Cost = 0.25
	record.CurrentStage = core.StageAnalyze
	record.Progress = 75
	record.StartedAt = &now
	require.NoError(t, store.Update(ctx, record))

	got, err := store.Get(ctx, "org-1", record.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ConfidenceScore)
	assert.InDelta(t, 0.82, *got.ConfidenceScore, 1e-9)
	assert.Equal(t, core.ConfidenceHigh, got.ConfidenceLevel)
	assert.Equal(t, []string{"ship"}, got.AnalysisResult.Objectives)
	assert.Equal(t, 3, got.Metadata.ChunkCount)
	require.NotNil(t, got.Metadata.ErrorDetails)
	assert.Equal(t, core.StageEmbed, got.Metadata.ErrorDetails.Stage)
	assert.Equal(t, 75, got.Progress)
	assert.True(t, got.UpdatedAt.Equal(now))
	assert.Equal(t, core.StatusPending, got.Status, "Update must not change status")

	missing := newRecord("org-1", "ghost.md", 1)
	missing.ID = "ghost"
	assert.ErrorIs(t, store.Update(ctx, missing), storage.ErrNotFound)
}

func TestUpdateStatus(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	record := newRecord("org-1", "plan.md", 500)
	require.NoError(t, store.Create(ctx, record))

	t.Run("allowed edge", func(t *testing.T) {
		record.CurrentStage = core.StageParse
		err := store.UpdateStatus(ctx, "org-1", record.ID, core.StatusPending, core.StatusProcessing,
			storage.StatusUpdate{Record: record, Message: "worker picked up job", Actor: "worker-1"})
		require.NoError(t, err)
		assert.Equal(t, core.StatusProcessing, record.Status)

		got, err := store.Get(ctx, "org-1", record.ID)
		require.NoError(t, err)
		assert.Equal(t, core.StatusProcessing, got.Status)
		assert.Equal(t, core.StageParse, got.CurrentStage)
		require.Len(t, got.AuditTrail, 1)
		assert.Equal(t, core.StatusPending, got.AuditTrail[0].FromStatus)
		assert.Equal(t, core.StatusProcessing, got.AuditTrail[0].ToStatus)
		assert.Equal(t, "worker-1", got.AuditTrail[0].Actor)
	})

	t.Run("stale from status", func(t *testing.T) {
		err := store.UpdateStatus(ctx, "org-1", record.ID, core.StatusPending, core.StatusCancelled, storage.StatusUpdate{})
		assert.ErrorIs(t, err, storage.ErrStatusConflict)
	})

	t.Run("edge not allowed", func(t *testing.T) {
		err := store.UpdateStatus(ctx, "org-1", record.ID, core.StatusProcessing, core.StatusPending, storage.StatusUpdate{})
		assert.ErrorIs(t, err, core.ErrInvalidTransition)
	})

	t.Run("unknown record", func(t *testing.T) {
		err := store.UpdateStatus(ctx, "org-1", "missing", core.StatusPending, core.StatusProcessing, storage.StatusUpdate{})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("terminal", func(t *testing.T) {
		moveTo(t, store, record, core.StatusCompleted)
		err := store.UpdateStatus(ctx, "org-1", record.ID, core.StatusCompleted, core.StatusPending, storage.StatusUpdate{})
		assert.ErrorIs(t, err, core.ErrInvalidTransition)
	})
}

func TestRequestCancel(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	record := newRecord("org-1", "plan.md", 500)
	require.NoError(t, store.Create(ctx, record))
	require.NoError(t, store.RequestCancel(ctx, "org-1", record.ID))

	got, err := store.Get(ctx, "org-1", record.ID)
	require.NoError(t, err)
	assert.True(t, got.CancelRequested)
}

func TestIncrementRetryCount(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	record := newRecord("org-1", "plan.md", 500)
	record.MaxRetries = 2
	require.NoError(t, store.Create(ctx, record))

	next := clock.Now().Add(2 * time.Second)
	count, err := store.IncrementRetryCount(ctx, "org-1", record.ID, &next)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := store.Get(ctx, "org-1", record.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextRetryAt)
	assert.True(t, got.NextRetryAt.Equal(next))

	count, err = store.IncrementRetryCount(ctx, "org-1", record.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = store.IncrementRetryCount(ctx, "org-1", record.ID, nil)
	assert.ErrorIs(t, err, storage.ErrRetryBudgetExhausted)

	got, err = store.Get(ctx, "org-1", record.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RetryCount, "count never exceeds max retries")

	_, err = store.IncrementRetryCount(ctx, "org-1", "missing", nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAdmit_ConcurrencyLimit(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	limits := storage.AdmissionLimits{MaxConcurrentJobs: 2}

	for _, name := range []string{"a.txt", "b.txt"} {
		r := newRecord("org-1", name, 100)
		require.NoError(t, store.Admit(ctx, r, limits))
		moveTo(t, store, r, core.StatusProcessing)
	}

	// Other tenants are unaffected.
	require.NoError(t, store.Admit(ctx, newRecord("org-2", "c.txt", 100), limits))

	rejected := newRecord("org-1", "d.txt", 100)
	err := store.Admit(ctx, rejected, limits)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTenantLimit)

	var limitErr *core.TenantLimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, core.LimitConcurrency, limitErr.Limit)
	assert.Equal(t, 2.0, limitErr.Current)

	page, err := store.List(ctx, "org-1", storage.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total, "rejected submission must not create a record")
}

func TestAdmit_DailyCost(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	limits := storage.AdmissionLimits{DailyCostLimit: 1.0}

	spent := newRecord("org-1", "a.txt", 100)
	require.NoError(t, store.Admit(ctx, spent, limits))
	spent.Cost = 1.5
	require.NoError(t, store.Update(ctx, spent))

	cost, err := store.DailyCost(ctx, "org-1", clock.Now())
	require.NoError(t, err)
	assert.InDelta(t, 1.5, cost, 1e-9)

	err = store.Admit(ctx, newRecord("org-1", "b.txt", 100), limits)
	var limitErr *core.TenantLimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, core.LimitDailyCost, limitErr.Limit)

	// The budget resets at UTC midnight.
	clock.Advance(24 * time.Hour)
	require.NoError(t, store.Admit(ctx, newRecord("org-1", "b.txt", 100), limits))
}

func TestFindQueries(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	pending := newRecord("org-1", "pending.txt", 100)
	require.NoError(t, store.Create(ctx, pending))

	processing := newRecord("org-1", "processing.txt", 100)
	require.NoError(t, store.Create(ctx, processing))
	moveTo(t, store, processing, core.StatusProcessing)

	failed := newRecord("org-1", "failed.txt", 100)
	require.NoError(t, store.Create(ctx, failed))
	moveTo(t, store, failed, core.StatusProcessing, core.StatusFailed)
	next := clock.Now().Add(2 * time.Second)
	_, err := store.IncrementRetryCount(ctx, "org-1", failed.ID, &next)
	require.NoError(t, err)

	exhausted := newRecord("org-1", "exhausted.txt", 100)
	exhausted.MaxRetries = 0
	require.NoError(t, store.Create(ctx, exhausted))
	moveTo(t, store, exhausted, core.StatusProcessing, core.StatusFailed)

	require.NoError(t, store.Create(ctx, newRecord("org-2", "other.txt", 100)))

	found, err := store.FindPendingAnalyses(ctx, "org-1", clock.Now(), 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, pending.ID, found[0].ID)

	found, err = store.FindFailedAnalyses(ctx, "org-1", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, failed.ID, found[0].ID)

	found, err = store.FindDueRetries(ctx, "org-1", clock.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, found, "retry not yet due")

	found, err = store.FindDueRetries(ctx, "org-1", next, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, failed.ID, found[0].ID)

	active, err := store.FindActiveByHash(ctx, "org-1", processing.DocumentHash)
	require.NoError(t, err)
	assert.Equal(t, processing.ID, active.ID)

	_, err = store.FindActiveByHash(ctx, "org-1", failed.DocumentHash)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.FindActiveByHash(ctx, "org-2", pending.DocumentHash)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFindSimilarAnalyses(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	base := newRecord("org-1", "base.txt", 1000)
	require.NoError(t, store.Create(ctx, base))

	complete := func(name string, size int64, confidence float64, docType core.DocumentType) *core.AnalysisRecord {
		r := newRecord("org-1", name, size)
		r.DocumentType = docType
		require.NoError(t, store.Create(ctx, r))
		r.ConfidenceScore = &confidence
		moveTo(t, store, r, core.StatusProcessing, core.StatusCompleted)
		return r
	}

	low := complete("low.txt", 850, 0.5, core.DocumentTypeProjectProposal)
	high := complete("high.txt", 1150, 0.9, core.DocumentTypeProjectProposal)
	complete("too-big.txt", 1300, 0.95, core.DocumentTypeProjectProposal)
	complete("other-type.txt", 1000, 0.99, core.DocumentTypeContract)
	pending := newRecord("org-1", "pending.txt", 1000)
	require.NoError(t, store.Create(ctx, pending))

	similar, err := store.FindSimilarAnalyses(ctx, "org-1", base.ID, 10)
	require.NoError(t, err)
	require.Len(t, similar, 2)
	assert.Equal(t, high.ID, similar[0].ID)
	assert.Equal(t, low.ID, similar[1].ID)

	_, err = store.FindSimilarAnalyses(ctx, "org-2", base.ID, 10)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestList(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	var records []*core.AnalysisRecord
	for i, name := range []string{"c.txt", "a.txt", "b.txt", "d.txt", "e.txt"} {
		r := newRecord("org-1", name, int64(100*(i+1)))
		r.Cost = float64(i) / 10
		if i%2 == 0 {
			r.ProcessingOptions.Depth = core.DepthBasic
		}
		require.NoError(t, store.Create(ctx, r))
		records = append(records, r)
		clock.Advance(time.Minute)
	}
	records[1].Metadata.ErrorDetails = &core.ErrorDetails{Kind: core.ErrorKindStage, Message: "x"}
	require.NoError(t, store.Update(ctx, records[1]))
	moveTo(t, store, records[2], core.StatusProcessing)

	t.Run("default sort newest first", func(t *testing.T) {
		page, err := store.List(ctx, "org-1", storage.ListFilter{})
		require.NoError(t, err)
		require.Len(t, page.Records, 5)
		assert.Equal(t, records[4].ID, page.Records[0].ID)
		assert.Equal(t, 1, page.TotalPages)
	})

	t.Run("paging", func(t *testing.T) {
		page, err := store.List(ctx, "org-1", storage.ListFilter{Page: 2, PageSize: 2, SortBy: "documentName", SortOrder: "asc"})
		require.NoError(t, err)
		assert.Equal(t, 5, page.Total)
		assert.Equal(t, 3, page.TotalPages)
		require.Len(t, page.Records, 2)
		assert.Equal(t, "c.txt", page.Records[0].DocumentName)
		assert.Equal(t, "d.txt", page.Records[1].DocumentName)
	})

	t.Run("filters", func(t *testing.T) {
		yes := true
		maxCost := 0.15
		tests := []struct {
			name   string
			filter storage.ListFilter
			want   int
		}{
			{"status", storage.ListFilter{Status: core.StatusProcessing}, 1},
			{"depth", storage.ListFilter{Depth: core.DepthBasic}, 3},
			{"has errors", storage.ListFilter{HasErrors: &yes}, 1},
			{"max cost", storage.ListFilter{MaxCost: &maxCost}, 2},
			{"created after", storage.ListFilter{CreatedAfter: records[3].CreatedAt}, 2},
			{"created before", storage.ListFilter{CreatedBefore: records[1].CreatedAt}, 1},
			{"document type", storage.ListFilter{DocumentType: core.DocumentTypeContract}, 0},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				page, err := store.List(ctx, "org-1", tt.filter)
				require.NoError(t, err)
				assert.Equal(t, tt.want, page.Total)
			})
		}
	})

	t.Run("invalid sort field", func(t *testing.T) {
		_, err := store.List(ctx, "org-1", storage.ListFilter{SortBy: "organization_id"})
		assert.ErrorIs(t, err, storage.ErrInvalidSortField)
	})

	t.Run("other tenant", func(t *testing.T) {
		page, err := store.List(ctx, "org-2", storage.ListFilter{})
		require.NoError(t, err)
		assert.Zero(t, page.Total)
	})
}

func TestGetStats(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	done := newRecord("org-1", "done.txt", 100)
	require.NoError(t, store.Create(ctx, done))
	started := clock.Now()
	done.StartedAt = &started
	moveTo(t, store, done, core.StatusProcessing)
	clock.Advance(4 * time.Second)
	completed := clock.Now()
	score := 0.7
	done.CompletedAt = &completed
	done.ConfidenceScore = &score
	done.ConfidenceLevel = core.ConfidenceHigh
	done.Cost = 0.5
	moveTo(t, store, done, core.StatusCompleted)

	failed := newRecord("org-1", "failed.txt", 100)
	require.NoError(t, store.Create(ctx, failed))
	failed.Metadata.ErrorDetails = &core.ErrorDetails{Kind: core.ErrorKindProviderDegraded}
	moveTo(t, store, failed, core.StatusProcessing, core.StatusFailed)

	require.NoError(t, store.Create(ctx, newRecord("org-1", "queued.txt", 100)))

	stats, err := store.GetStats(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[core.StatusCompleted])
	assert.Equal(t, 1, stats.ByStatus[core.StatusFailed])
	assert.Equal(t, 1, stats.ByStatus[core.StatusPending])
	assert.Equal(t, 3, stats.ByDepth[core.DepthDetailed])
	assert.Equal(t, 3, stats.ByDocumentType[core.DocumentTypeProjectProposal])
	assert.Equal(t, 1, stats.ByConfidenceLevel[core.ConfidenceHigh])
	assert.Equal(t, 4*time.Second, stats.AverageProcessingTime)
	assert.InDelta(t, 0.5, stats.TotalCost, 1e-9)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)
	assert.InDelta(t, 1.0/3.0, stats.ErrorRate, 1e-9)

	empty, err := store.GetStats(ctx, "org-2")
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.SuccessRate)
}

func TestServiceCalls(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	record := newRecord("org-1", "plan.md", 500)
	require.NoError(t, store.Create(ctx, record))

	require.NoError(t, store.AddExternalServiceCall(ctx, "org-1", record.ID, core.ExternalServiceCall{
		Service: core.ServiceEmbedding, Operation: "embed", Status: core.CallSuccess,
		Duration: 1500 * time.Millisecond, Tokens: 120, Cost: 0.01,
	}))
	require.NoError(t, store.AddExternalServiceCall(ctx, "org-1", record.ID, core.ExternalServiceCall{
		Service: core.ServiceVectorIndex, Operation: "upsert", Status: core.CallSkipped,
	}))
	err := store.AddExternalServiceCall(ctx, "org-2", record.ID, core.ExternalServiceCall{Service: core.ServiceLLM})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := store.Get(ctx, "org-1", record.ID)
	require.NoError(t, err)
	calls := got.Metadata.ExternalServiceCalls
	require.Len(t, calls, 2)
	assert.Equal(t, core.ServiceEmbedding, calls[0].Service)
	assert.Equal(t, 1500*time.Millisecond, calls[0].Duration)
	assert.Equal(t, 120, calls[0].Tokens)
	assert.Equal(t, core.CallSkipped, calls[1].Status)
}

func TestPurgeExpiredAndTenants(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	old := newRecord("org-1", "old.txt", 100)
	require.NoError(t, store.Create(ctx, old))
	moveTo(t, store, old, core.StatusProcessing, core.StatusCompleted)

	oldPending := newRecord("org-1", "old-pending.txt", 100)
	require.NoError(t, store.Create(ctx, oldPending))

	failedPermanently := newRecord("org-1", "schema-error.txt", 100)
	require.NoError(t, store.Create(ctx, failedPermanently))
	moveTo(t, store, failedPermanently, core.StatusProcessing, core.StatusFailed)

	awaitingRetry := newRecord("org-1", "retrying.txt", 100)
	require.NoError(t, store.Create(ctx, awaitingRetry))
	moveTo(t, store, awaitingRetry, core.StatusProcessing, core.StatusFailed)
	next := clock.Now().Add(72 * time.Hour)
	_, err := store.IncrementRetryCount(ctx, "org-1", awaitingRetry.ID, &next)
	require.NoError(t, err)

	require.NoError(t, store.Create(ctx, newRecord("org-2", "x.txt", 100)))

	clock.Advance(48 * time.Hour)
	fresh := newRecord("org-1", "fresh.txt", 100)
	require.NoError(t, store.Create(ctx, fresh))
	moveTo(t, store, fresh, core.StatusProcessing, core.StatusCancelled)

	tenants, err := store.ListTenants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"org-1", "org-2"}, tenants)

	purged, err := store.PurgeExpired(ctx, "org-1", clock.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{old.ID, failedPermanently.ID}, purged,
		"a failure with no retry scheduled is terminal despite remaining budget")

	_, err = store.Get(ctx, "org-1", old.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.Get(ctx, "org-1", oldPending.ID)
	assert.NoError(t, err, "non-terminal records are kept")
	_, err = store.Get(ctx, "org-1", awaitingRetry.ID)
	assert.NoError(t, err, "a scheduled retry is kept")

	require.NoError(t, store.SoftDelete(ctx, "org-2", mustOnlyID(t, store, "org-2")))
	tenants, err = store.ListTenants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"org-1"}, tenants)
}

func mustOnlyID(t *testing.T, s *Store, org string) string {
	t.Helper()
	page, err := s.List(context.Background(), org, storage.ListFilter{})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	return page.Records[0].ID
}
