package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/poiesic/docanalysis/storage"
	"golang.org/x/sync/errgroup"
)

// sweepLimit bounds the records one recovery query returns per organization.
const sweepLimit = 500

// Run recovers interrupted work and then runs the dispatcher, the retry
// scheduler and the retention cleanup until ctx is cancelled. Jobs already
// handed to workers finish before Run returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	if _, err := o.Recover(ctx); err != nil {
		o.logger.Error("error recovering jobs", "err", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.dispatch(ctx)
	})
	g.Go(func() error {
		return o.every(ctx, o.config.SchedulerInterval, func(ctx context.Context) error {
			_, err := o.Recover(ctx)
			return err
		})
	})
	if o.config.Retention > 0 {
		g.Go(func() error {
			return o.every(ctx, o.config.CleanupInterval, func(ctx context.Context) error {
				_, err := o.Cleanup(ctx)
				return err
			})
		})
	}

	err := g.Wait()
	o.inflight.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// dispatch leases due jobs and hands them to the worker pool.
func (o *Orchestrator) dispatch(ctx context.Context) error {
	o.logger.Info("dispatcher started", "workers", o.pool.Cap())
	defer o.logger.Info("dispatcher stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if o.pool.Free() == 0 {
			if err := sleep(ctx, o.config.PollInterval); err != nil {
				return err
			}
			continue
		}

		delivery, err := o.queue.Dequeue(ctx, o.now().UTC(), o.config.LeaseDuration)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.logger.Error("error dequeuing job", "err", err)
		}
		if delivery == nil {
			if err := sleep(ctx, o.config.PollInterval); err != nil {
				return err
			}
			continue
		}

		o.inflight.Add(1)
		submitErr := o.pool.Submit(func() {
			defer o.inflight.Done()
			if err := o.handle(ctx, delivery); err != nil {
				o.logger.Debug("job finished with error", "job_id", delivery.Job.ID, "err", err)
			}
		})
		if submitErr != nil {
			o.inflight.Done()
			o.logger.Error("error submitting job to pool", "job_id", delivery.Job.ID, "err", submitErr)
			o.release(context.WithoutCancel(ctx), delivery.Job.ID, o.now().UTC())
		}
	}
}

// every runs fn on each tick of interval until ctx is cancelled. Errors are
// logged and do not stop the loop.
func (o *Orchestrator) every(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				o.logger.Error("background sweep failed", "err", err)
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Recover returns expired leases to the queue and enqueues every due
// PENDING record and due retry that the queue does not hold. Returns the
// number of jobs enqueued.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	now := o.now().UTC()

	if _, err := o.queue.RecoverExpired(ctx, now); err != nil {
		return 0, err
	}

	tenants, err := o.records.ListTenants(ctx)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, organizationID := range tenants {
		pending, err := o.records.FindPendingAnalyses(ctx, organizationID, now, sweepLimit)
		if err != nil {
			return enqueued, err
		}
		retries, err := o.records.FindDueRetries(ctx, organizationID, now, sweepLimit)
		if err != nil {
			return enqueued, err
		}

		for _, record := range append(pending, retries...) {
			queued, err := o.queue.Contains(ctx, record.ID)
			if err != nil {
				return enqueued, err
			}
			if queued {
				continue
			}
			job := storage.Job{ID: record.ID, OrganizationID: record.OrganizationID, EnqueuedAt: now}
			if err := o.queue.Enqueue(ctx, job, now); err != nil {
				return enqueued, err
			}
			enqueued++
		}
	}

	if enqueued > 0 {
		o.logger.Info("re-enqueued orphaned jobs", "count", enqueued)
	}
	return enqueued, nil
}

// Cleanup soft-deletes terminal records older than the retention period and
// removes their vectors, documents and queue entries. Returns the number of
// records purged.
func (o *Orchestrator) Cleanup(ctx context.Context) (int, error) {
	if o.config.Retention <= 0 {
		return 0, nil
	}
	cutoff := o.now().UTC().Add(-o.config.Retention)

	tenants, err := o.records.ListTenants(ctx)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, organizationID := range tenants {
		ids, err := o.records.PurgeExpired(ctx, organizationID, cutoff)
		if err != nil {
			return purged, err
		}
		for _, id := range ids {
			if err := o.vectors.DeleteByDocument(ctx, id); err != nil {
				o.logger.Warn("error deleting vectors of purged analysis", "job_id", id, "err", err)
			}
			if err := o.documents.Delete(ctx, id); err != nil {
				o.logger.Warn("error deleting document of purged analysis", "job_id", id, "err", err)
			}
			if _, err := o.queue.Remove(ctx, id); err != nil {
				o.logger.Warn("error removing queue entry of purged analysis", "job_id", id, "err", err)
			}
		}
		purged += len(ids)
	}

	if purged > 0 {
		o.logger.Info("purged expired analyses", "count", purged, "cutoff", cutoff)
	}
	return purged, nil
}
