package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docanalysis/core"
	"github.com/poiesic/docanalysis/storage"
)

// Audit actors
const (
	actorWorker = "worker"
	actorAPI    = "api"
)

// stageProgress is the progress snapshot written after each stage.
var stageProgress = map[core.Stage]int{
	core.StageParse:   25,
	core.StageEmbed:   50,
	core.StageIndex:   75,
	core.StageAnalyze: 100,
}

// jobRun carries the intermediate results of one pass through the stages.
type jobRun struct {
	record  *core.AnalysisRecord
	chunks  []core.Chunk
	vectors [][]float32
	logger  *slog.Logger
}

type stage struct {
	name core.Stage
	run  func(ctx context.Context, run *jobRun) error
}

func (o *Orchestrator) stages() []stage {
	return []stage{
		{core.StageParse, o.parse},
		{core.StageEmbed, o.embed},
		{core.StageIndex, o.index},
		{core.StageAnalyze, o.analyze},
	}
}

// ProcessNext leases one due job and processes it synchronously.
// Reports whether a job was found. The error is the job's stage failure,
// if any; the job itself is settled either way.
func (o *Orchestrator) ProcessNext(ctx context.Context) (bool, error) {
	delivery, err := o.queue.Dequeue(ctx, o.now().UTC(), o.config.LeaseDuration)
	if err != nil {
		return false, err
	}
	if delivery == nil {
		return false, nil
	}
	return true, o.handle(ctx, delivery)
}

// handle moves a delivered job to PROCESSING and runs it.
func (o *Orchestrator) handle(ctx context.Context, delivery *storage.Delivery) error {
	job := delivery.Job
	logger := o.logger.With("job_id", job.ID, "organization_id", job.OrganizationID)

	// A lease that lapsed mid-run redelivers the job while its first worker
	// still owns it. That worker acks or releases the entry when it settles.
	if _, busy := o.running.LoadOrStore(job.ID, struct{}{}); busy {
		logger.Warn("job redelivered while running, leaving it with its worker")
		return nil
	}
	defer o.running.Delete(job.ID)

	stop := o.keepLeased(ctx, job.ID, logger)
	defer stop()

	record, err := o.records.Get(ctx, job.OrganizationID, job.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger.Warn("dropping job without analysis record")
			o.ack(ctx, job.ID)
			return nil
		}
		o.release(context.WithoutCancel(ctx), job.ID, o.now().UTC().Add(o.backoff(1)))
		return err
	}

	now := o.now().UTC()
	switch record.Status {
	case core.StatusCompleted, core.StatusCancelled:
		logger.Debug("dropping job for settled record", "status", record.Status)
		o.ack(ctx, job.ID)
		return nil

	case core.StatusFailed:
		if record.NextRetryAt != nil && record.NextRetryAt.After(now) {
			o.release(ctx, job.ID, *record.NextRetryAt)
			return nil
		}
		record.NextRetryAt = nil
		err := o.records.UpdateStatus(ctx, record.OrganizationID, record.ID, core.StatusFailed, core.StatusPending,
			storage.StatusUpdate{
				Record:  record,
				Stage:   record.CurrentStage,
				Message: fmt.Sprintf("retry %d of %d", record.RetryCount, record.MaxRetries),
				Actor:   actorWorker,
			})
		if err != nil {
			return o.settleError(ctx, job.ID, err)
		}
		fallthrough

	case core.StatusPending:
		if record.CancelRequested {
			return o.cancel(ctx, record, core.StatusPending, logger)
		}
		started := now
		record.StartedAt = &started
		record.CompletedAt = nil
		record.CurrentStage = core.StageParse
		record.Progress = 0
		err := o.records.UpdateStatus(ctx, record.OrganizationID, record.ID, core.StatusPending, core.StatusProcessing,
			storage.StatusUpdate{Record: record, Stage: core.StageParse, Actor: actorWorker})
		if err != nil {
			return o.settleError(ctx, job.ID, err)
		}

	case core.StatusProcessing:
		logger.Info("resuming interrupted job", "stage", record.CurrentStage)
	}

	return o.run(ctx, record, logger)
}

// settleError handles a failed status write on a leased job.
func (o *Orchestrator) settleError(ctx context.Context, jobID string, err error) error {
	if errors.Is(err, storage.ErrStatusConflict) {
		// Another writer moved the record; the next delivery sees its new status.
		o.release(ctx, jobID, o.now().UTC())
		return nil
	}
	o.release(context.WithoutCancel(ctx), jobID, o.now().UTC().Add(o.backoff(1)))
	return err
}

// run drives a PROCESSING record through every stage.
func (o *Orchestrator) run(ctx context.Context, record *core.AnalysisRecord, logger *slog.Logger) error {
	run := &jobRun{record: record, logger: logger}

	for _, s := range o.stages() {
		if cancelled, err := o.cancelRequested(ctx, record); err != nil {
			return o.interrupted(ctx, record, err)
		} else if cancelled {
			return o.cancel(ctx, record, core.StatusProcessing, logger)
		}

		o.extendLease(ctx, record.ID, logger)
		record.CurrentStage = s.name
		run.logger = logger.With("stage", s.name)
		started := time.Now()

		if err := s.run(ctx, run); err != nil {
			if ctx.Err() != nil {
				return o.interrupted(ctx, record, ctx.Err())
			}
			return o.fail(ctx, record, err, run.logger)
		}

		record.Progress = stageProgress[s.name]
		if s.name != core.StageAnalyze {
			if err := o.records.Update(ctx, record); err != nil {
				return o.interrupted(ctx, record, err)
			}
		}
		run.logger.Debug("stage complete", "duration", time.Since(started), "progress", record.Progress)
	}

	if cancelled, err := o.cancelRequested(ctx, record); err != nil {
		return o.interrupted(ctx, record, err)
	} else if cancelled {
		return o.cancel(ctx, record, core.StatusProcessing, logger)
	}
	return o.complete(ctx, record, logger)
}

// keepLeased renews the job's lease on a wall-clock ticker until the
// returned func is called.
func (o *Orchestrator) keepLeased(ctx context.Context, jobID string, logger *slog.Logger) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(max(o.config.LeaseDuration/3, time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.extendLease(ctx, jobID, logger)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// extendLease pushes the job's lease one LeaseDuration past now. A job that
// was already acked or released has no lease left to extend.
func (o *Orchestrator) extendLease(ctx context.Context, jobID string, logger *slog.Logger) {
	err := o.queue.Extend(ctx, jobID, o.now().UTC().Add(o.config.LeaseDuration))
	if err == nil || ctx.Err() != nil ||
		errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrJobNotLeased) {
		return
	}
	logger.Warn("error extending job lease", "err", err)
}

// cancelRequested re-reads the cancel flag written by Cancel.
func (o *Orchestrator) cancelRequested(ctx context.Context, record *core.AnalysisRecord) (bool, error) {
	current, err := o.records.Get(ctx, record.OrganizationID, record.ID)
	if err != nil {
		return false, err
	}
	return current.CancelRequested, nil
}

func (o *Orchestrator) complete(ctx context.Context, record *core.AnalysisRecord, logger *slog.Logger) error {
	completed := o.now().UTC()
	record.CompletedAt = &completed
	record.Progress = 100
	record.NextRetryAt = nil
	record.Metadata.ErrorDetails = nil

	message := ""
	if record.ConfidenceScore != nil {
		message = fmt.Sprintf("confidence %.2f (%s)", *record.ConfidenceScore, record.ConfidenceLevel)
	}
	err := o.records.UpdateStatus(ctx, record.OrganizationID, record.ID, core.StatusProcessing, core.StatusCompleted,
		storage.StatusUpdate{Record: record, Stage: core.StageAnalyze, Message: message, Actor: actorWorker})
	if err != nil {
		return o.interrupted(ctx, record, err)
	}

	o.ack(ctx, record.ID)
	logger.Info("analysis completed", "confidence_level", record.ConfidenceLevel,
		"chunks", record.Metadata.ChunkCount, "vectors", record.Metadata.VectorCount, "cost", record.Cost)
	return nil
}

// fail records a stage failure and schedules a retry while budget remains.
func (o *Orchestrator) fail(ctx context.Context, record *core.AnalysisRecord, err error, logger *slog.Logger) error {
	var stageErr *core.StageError
	if !errors.As(err, &stageErr) {
		stageErr = &core.StageError{Stage: record.CurrentStage, Retryable: true, Err: err}
	}

	now := o.now().UTC()
	record.Metadata.ErrorDetails = &core.ErrorDetails{
		Kind:       stageErr.Kind(),
		Stage:      stageErr.Stage,
		Message:    stageErr.Error(),
		Retryable:  stageErr.Retryable,
		OccurredAt: now,
	}
	record.NextRetryAt = nil

	updateErr := o.records.UpdateStatus(ctx, record.OrganizationID, record.ID, core.StatusProcessing, core.StatusFailed,
		storage.StatusUpdate{Record: record, Stage: stageErr.Stage, Message: stageErr.Error(), Actor: actorWorker})
	if updateErr != nil {
		logger.Error("error recording stage failure", "err", updateErr)
		return o.interrupted(ctx, record, updateErr)
	}

	if stageErr.Retryable && record.RetryCount < record.MaxRetries {
		next := now.Add(o.backoff(record.RetryCount + 1))
		count, incErr := o.records.IncrementRetryCount(ctx, record.OrganizationID, record.ID, &next)
		switch {
		case incErr == nil:
			record.RetryCount = count
			record.NextRetryAt = &next
			o.audit(ctx, record, core.AuditEntry{
				Action:  "retry_scheduled",
				Stage:   stageErr.Stage,
				Message: fmt.Sprintf("retry %d of %d at %s", count, record.MaxRetries, next.Format(time.RFC3339)),
				Actor:   actorWorker,
			})
			o.release(ctx, record.ID, next)
			logger.Warn("stage failed, retry scheduled", "err", stageErr.Err,
				"retry", count, "max_retries", record.MaxRetries, "next_retry_at", next)
			return stageErr
		case !errors.Is(incErr, storage.ErrRetryBudgetExhausted):
			logger.Error("error scheduling retry", "err", incErr)
			o.release(context.WithoutCancel(ctx), record.ID, next)
			return errors.Join(stageErr, incErr)
		}
	}

	o.ack(ctx, record.ID)
	logger.Error("stage failed permanently", "err", stageErr.Err,
		"retryable", stageErr.Retryable, "retries", record.RetryCount)
	return stageErr
}

// cancel settles a job whose cancellation was requested.
func (o *Orchestrator) cancel(ctx context.Context, record *core.AnalysisRecord, from core.Status, logger *slog.Logger) error {
	if o.vectors.Configured() {
		if err := o.vectors.DeleteByDocument(ctx, record.ID); err != nil {
			logger.Warn("error deleting vectors of cancelled job", "err", err)
		}
	}

	record.NextRetryAt = nil
	err := o.records.UpdateStatus(ctx, record.OrganizationID, record.ID, from, core.StatusCancelled,
		storage.StatusUpdate{Record: record, Stage: record.CurrentStage, Message: "cancelled on request", Actor: actorWorker})
	if err != nil {
		return o.settleError(ctx, record.ID, err)
	}

	o.ack(ctx, record.ID)
	logger.Info("analysis cancelled", "stage", record.CurrentStage)
	return nil
}

// interrupted hands a job back to the queue without touching its status, so
// the next delivery resumes it.
func (o *Orchestrator) interrupted(ctx context.Context, record *core.AnalysisRecord, err error) error {
	o.logger.Warn("job interrupted, returning to queue", "job_id", record.ID,
		"stage", record.CurrentStage, "err", err)
	o.release(context.WithoutCancel(ctx), record.ID, o.now().UTC())
	return err
}

// recordCall appends an external call to the record's log.
func (o *Orchestrator) recordCall(ctx context.Context, record *core.AnalysisRecord, call core.ExternalServiceCall) {
	if call.At.IsZero() {
		call.At = o.now().UTC()
	}
	record.Metadata.ExternalServiceCalls = append(record.Metadata.ExternalServiceCalls, call)
	if err := o.records.AddExternalServiceCall(ctx, record.OrganizationID, record.ID, call); err != nil {
		o.logger.Warn("error recording external call", "job_id", record.ID,
			"service", call.Service, "err", err)
	}
}

// audit appends to the record's audit trail.
func (o *Orchestrator) audit(ctx context.Context, record *core.AnalysisRecord, entry core.AuditEntry) {
	if entry.At.IsZero() {
		entry.At = o.now().UTC()
	}
	record.AuditTrail = append(record.AuditTrail, entry)
	if err := o.records.AddAuditEntry(ctx, record.OrganizationID, record.ID, entry); err != nil {
		o.logger.Warn("error writing audit entry", "job_id", record.ID, "action", entry.Action, "err", err)
	}
}
