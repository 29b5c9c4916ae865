package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/docanalysis/core"
	"github.com/poiesic/docanalysis/storage"
)

// JobStatus is a polled snapshot of a job. Progress moves in stage-sized steps.
type JobStatus struct {
	JobID                  string
	Status                 core.Status
	Progress               int
	CurrentStage           core.Stage
	CurrentStepDescription string
	EstimatedCompletion    *time.Time
	Result                 *core.StructuredAnalysis
	ConfidenceScore        *float64
	ConfidenceLevel        core.ConfidenceLevel
	Error                  *core.ErrorDetails
	RetryCount             int
	MaxRetries             int
	NextRetryAt            *time.Time
	Cost                   float64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Status returns the current state of a job.
func (o *Orchestrator) Status(ctx context.Context, organizationID, jobID string) (*JobStatus, error) {
	record, err := o.records.Get(ctx, organizationID, jobID)
	if err != nil {
		return nil, err
	}

	status := &JobStatus{
		JobID:                  record.ID,
		Status:                 record.Status,
		Progress:               record.Progress,
		CurrentStage:           record.CurrentStage,
		CurrentStepDescription: stepDescription(record),
		EstimatedCompletion:    estimateCompletion(record, o.now().UTC()),
		ConfidenceScore:        record.ConfidenceScore,
		ConfidenceLevel:        record.ConfidenceLevel,
		Error:                  record.Metadata.ErrorDetails,
		RetryCount:             record.RetryCount,
		MaxRetries:             record.MaxRetries,
		NextRetryAt:            record.NextRetryAt,
		Cost:                   record.Cost,
		CreatedAt:              record.CreatedAt,
		UpdatedAt:              record.UpdatedAt,
	}
	if record.Status == core.StatusCompleted {
		status.Result = record.AnalysisResult
	}
	return status, nil
}

// Result returns the analysis of a COMPLETED job.
// Returns ErrNotCompleted for a job in any other status.
func (o *Orchestrator) Result(ctx context.Context, organizationID, jobID string) (*core.StructuredAnalysis, error) {
	record, err := o.records.Get(ctx, organizationID, jobID)
	if err != nil {
		return nil, err
	}
	if record.Status != core.StatusCompleted || record.AnalysisResult == nil {
		return nil, fmt.Errorf("%w: job %s is %s", ErrNotCompleted, jobID, record.Status)
	}
	return record.AnalysisResult, nil
}

// Record returns the full analysis record, audit trail and call log included.
func (o *Orchestrator) Record(ctx context.Context, organizationID, jobID string) (*core.AnalysisRecord, error) {
	return o.records.Get(ctx, organizationID, jobID)
}

// Cancel stops a job. A PENDING job is removed from the queue and cancelled
// at once; a PROCESSING job is flagged and stops at the next stage boundary.
// Returns ErrNotCancellable for any other status.
func (o *Orchestrator) Cancel(ctx context.Context, organizationID, jobID string) error {
	record, err := o.records.Get(ctx, organizationID, jobID)
	if err != nil {
		return err
	}

	switch record.Status {
	case core.StatusPending:
		removed, err := o.queue.Remove(ctx, jobID)
		if errors.Is(err, storage.ErrJobLeased) {
			// A worker holds it; it observes the flag before the first stage.
			return o.requestCancel(ctx, record)
		}
		if err != nil {
			return err
		}
		err = o.records.UpdateStatus(ctx, organizationID, jobID, core.StatusPending, core.StatusCancelled,
			storage.StatusUpdate{Message: "cancelled while queued", Actor: actorAPI})
		if errors.Is(err, storage.ErrStatusConflict) {
			return o.requestCancel(ctx, record)
		}
		if err != nil {
			return err
		}
		o.logger.Info("analysis cancelled", "job_id", jobID, "organization_id", organizationID,
			"dequeued", removed)
		return nil

	case core.StatusProcessing:
		return o.requestCancel(ctx, record)
	}

	return fmt.Errorf("%w: job %s is %s", ErrNotCancellable, jobID, record.Status)
}

func (o *Orchestrator) requestCancel(ctx context.Context, record *core.AnalysisRecord) error {
	if err := o.records.RequestCancel(ctx, record.OrganizationID, record.ID); err != nil {
		return err
	}
	o.audit(ctx, record, core.AuditEntry{
		Action:     "cancel_requested",
		FromStatus: record.Status,
		Stage:      record.CurrentStage,
		Actor:      actorAPI,
	})
	o.logger.Info("cancellation requested", "job_id", record.ID, "organization_id", record.OrganizationID)
	return nil
}

// Retry re-runs a FAILED job now. A retry that is already scheduled is
// brought forward; otherwise the retry count is incremented first.
// Returns ErrNotRetryable unless the job is FAILED, and
// storage.ErrRetryBudgetExhausted when no retries remain.
func (o *Orchestrator) Retry(ctx context.Context, organizationID, jobID string) error {
	record, err := o.records.Get(ctx, organizationID, jobID)
	if err != nil {
		return err
	}
	if record.Status != core.StatusFailed {
		return fmt.Errorf("%w: job %s is %s", ErrNotRetryable, jobID, record.Status)
	}

	now := o.now().UTC()
	message := "scheduled retry brought forward"
	if record.NextRetryAt != nil {
		record.NextRetryAt = &now
		if err := o.records.Update(ctx, record); err != nil {
			return err
		}
	} else {
		count, err := o.records.IncrementRetryCount(ctx, organizationID, jobID, &now)
		if err != nil {
			return err
		}
		record.RetryCount = count
		message = fmt.Sprintf("manual retry %d of %d", count, record.MaxRetries)
	}

	job := storage.Job{ID: jobID, OrganizationID: organizationID, EnqueuedAt: now}
	if err := o.queue.Enqueue(ctx, job, now); err != nil && !errors.Is(err, storage.ErrJobLeased) {
		return err
	}

	o.audit(ctx, record, core.AuditEntry{Action: "retry_requested", Message: message, Actor: actorAPI})
	o.logger.Info("retry requested", "job_id", jobID, "organization_id", organizationID,
		"retry", record.RetryCount)
	return nil
}

// List returns one page of the organization's analyses.
func (o *Orchestrator) List(ctx context.Context, organizationID string, filter storage.ListFilter) (*storage.Page, error) {
	return o.records.List(ctx, organizationID, filter)
}

// Stats aggregates the organization's analyses.
func (o *Orchestrator) Stats(ctx context.Context, organizationID string) (*storage.Stats, error) {
	return o.records.GetStats(ctx, organizationID)
}

// SimilarAnalyses returns completed analyses resembling a job's document.
func (o *Orchestrator) SimilarAnalyses(ctx context.Context, organizationID, jobID string, limit int) ([]*core.AnalysisRecord, error) {
	return o.records.FindSimilarAnalyses(ctx, organizationID, jobID, limit)
}
