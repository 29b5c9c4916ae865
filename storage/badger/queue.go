package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docanalysis/storage"
)

// JobQueue implements storage.JobQueue on BadgerDB.
//
// Each job has an entry key holding its state. A waiting job also has a ready
// key ordered by due time and enqueue sequence; a leased job has a lease key
// ordered by expiry. Dequeue moves a job from ready to leased inside one
// optimistic transaction, so concurrent consumers never share a job.
type JobQueue struct {
	backend *Backend
	seq     *badger.Sequence
	logger  *slog.Logger
}

var _ storage.JobQueue = (*JobQueue)(nil)

// queueEntry is the stored state of one job.
type queueEntry struct {
	Job         storage.Job `json:"job"`
	AvailableAt time.Time   `json:"availableAt"`
	Seq         uint64      `json:"seq"`
	Leased      bool        `json:"leased"`
	LeaseUntil  time.Time   `json:"leaseUntil"`
}

// NewJobQueue creates a job queue on backend.
func NewJobQueue(backend *Backend) (*JobQueue, error) {
	seq, err := backend.GetSequence(jobSeq)
	if err != nil {
		return nil, err
	}
	return &JobQueue{
		backend: backend,
		seq:     seq,
		logger:  slog.Default().With("component", "job-queue"),
	}, nil
}

// Close releases the queue's sequence.
func (q *JobQueue) Close() error {
	return q.seq.Release()
}

func getEntry(tx *badger.Txn, jobID string) (*queueEntry, error) {
	item, err := tx.Get(makeJobEntryKey(jobID))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var entry queueEntry
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entry)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	return &entry, nil
}

func putEntry(tx *badger.Txn, entry *queueEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	return tx.Set(makeJobEntryKey(entry.Job.ID), data)
}

// schedule writes the ready key of a waiting entry.
func (q *JobQueue) schedule(tx *badger.Txn, entry *queueEntry, availableAt time.Time) error {
	seq, err := q.seq.Next()
	if err != nil {
		return err
	}
	entry.AvailableAt = availableAt.UTC()
	entry.Seq = seq
	entry.Leased = false
	entry.LeaseUntil = time.Time{}

	job, err := storage.MarshalJob(&entry.Job)
	if err != nil {
		return err
	}
	if err := tx.Set(makeJobReadyKey(entry.AvailableAt, seq), job); err != nil {
		return err
	}
	return putEntry(tx, entry)
}

// Enqueue makes a job available at availableAt, rescheduling it if it is
// already waiting.
func (q *JobQueue) Enqueue(ctx context.Context, job storage.Job, availableAt time.Time) error {
	if job.ID == "" {
		return fmt.Errorf("%w: job id is required", storage.ErrInvalidQuery)
	}
	return q.backend.Update(func(tx *badger.Txn) error {
		entry, err := getEntry(tx, job.ID)
		if err != nil {
			return err
		}
		if entry == nil {
			if job.EnqueuedAt.IsZero() {
				job.EnqueuedAt = time.Now().UTC()
			}
			entry = &queueEntry{Job: job}
		} else {
			if entry.Leased {
				return fmt.Errorf("%w: %s", storage.ErrJobLeased, job.ID)
			}
			if err := tx.Delete(makeJobReadyKey(entry.AvailableAt, entry.Seq)); err != nil {
				return err
			}
		}
		return q.schedule(tx, entry, availableAt)
	})
}

// Dequeue leases the earliest job due at now. Returns nil when none is due.
func (q *JobQueue) Dequeue(ctx context.Context, now time.Time, lease time.Duration) (*storage.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var delivery *storage.Delivery
	err := q.backend.Update(func(tx *badger.Txn) error {
		delivery = nil

		var readyKey []byte
		var job *storage.Job
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(jobReadyPrefix + ":")
		opts.PrefetchSize = 1
		iter := tx.NewIterator(opts)
		iter.Rewind()
		if iter.Valid() {
			item := iter.Item()
			if !parseJobReadyTime(item.Key()).After(now) {
				readyKey = item.KeyCopy(nil)
				err := item.Value(func(val []byte) error {
					var err error
					job, err = storage.UnmarshalJob(val)
					return err
				})
				if err != nil {
					iter.Close()
					return err
				}
			}
		}
		iter.Close()
		if readyKey == nil {
			return nil
		}

		entry, err := getEntry(tx, job.ID)
		if err != nil {
			return err
		}
		if err := tx.Delete(readyKey); err != nil {
			return err
		}
		if entry == nil {
			// Orphaned ready key; drop it and let the caller poll again.
			q.logger.Warn("dropping orphaned queue key", "job_id", job.ID)
			return nil
		}

		entry.Leased = true
		entry.LeaseUntil = now.Add(lease).UTC()
		if err := tx.Set(makeJobLeaseKey(entry.LeaseUntil, entry.Job.ID), []byte(entry.Job.ID)); err != nil {
			return err
		}
		if err := putEntry(tx, entry); err != nil {
			return err
		}
		delivery = &storage.Delivery{
			Job:         entry.Job,
			AvailableAt: entry.AvailableAt,
			LeaseUntil:  entry.LeaseUntil,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return delivery, nil
}

// Ack removes a job, leased or waiting.
func (q *JobQueue) Ack(ctx context.Context, jobID string) error {
	return q.backend.Update(func(tx *badger.Txn) error {
		entry, err := getEntry(tx, jobID)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("%w: job %s", storage.ErrNotFound, jobID)
		}
		return deleteEntry(tx, entry)
	})
}

func deleteEntry(tx *badger.Txn, entry *queueEntry) error {
	if entry.Leased {
		if err := tx.Delete(makeJobLeaseKey(entry.LeaseUntil, entry.Job.ID)); err != nil {
			return err
		}
	} else {
		if err := tx.Delete(makeJobReadyKey(entry.AvailableAt, entry.Seq)); err != nil {
			return err
		}
	}
	return tx.Delete(makeJobEntryKey(entry.Job.ID))
}

// Extend moves the lease of a leased job to until.
func (q *JobQueue) Extend(ctx context.Context, jobID string, until time.Time) error {
	return q.backend.Update(func(tx *badger.Txn) error {
		entry, err := getEntry(tx, jobID)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("%w: job %s", storage.ErrNotFound, jobID)
		}
		if !entry.Leased {
			return fmt.Errorf("%w: %s", storage.ErrJobNotLeased, jobID)
		}
		if err := tx.Delete(makeJobLeaseKey(entry.LeaseUntil, jobID)); err != nil {
			return err
		}
		entry.LeaseUntil = until.UTC()
		if err := tx.Set(makeJobLeaseKey(entry.LeaseUntil, jobID), []byte(jobID)); err != nil {
			return err
		}
		return putEntry(tx, entry)
	})
}

// Release returns a leased job to the queue, available at availableAt.
func (q *JobQueue) Release(ctx context.Context, jobID string, availableAt time.Time) error {
	return q.backend.Update(func(tx *badger.Txn) error {
		entry, err := getEntry(tx, jobID)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("%w: job %s", storage.ErrNotFound, jobID)
		}
		if entry.Leased {
			if err := tx.Delete(makeJobLeaseKey(entry.LeaseUntil, jobID)); err != nil {
				return err
			}
		} else {
			if err := tx.Delete(makeJobReadyKey(entry.AvailableAt, entry.Seq)); err != nil {
				return err
			}
		}
		return q.schedule(tx, entry, availableAt)
	})
}

// Remove deletes a waiting job.
func (q *JobQueue) Remove(ctx context.Context, jobID string) (bool, error) {
	var removed bool
	err := q.backend.Update(func(tx *badger.Txn) error {
		removed = false
		entry, err := getEntry(tx, jobID)
		if err != nil || entry == nil {
			return err
		}
		if entry.Leased {
			return fmt.Errorf("%w: %s", storage.ErrJobLeased, jobID)
		}
		if err := deleteEntry(tx, entry); err != nil {
			return err
		}
		removed = true
		return nil
	})
	return removed, err
}

// Contains reports whether the job is waiting or leased.
func (q *JobQueue) Contains(ctx context.Context, jobID string) (bool, error) {
	var found bool
	err := q.backend.View(func(tx *badger.Txn) error {
		entry, err := getEntry(tx, jobID)
		found = entry != nil
		return err
	})
	return found, err
}

// RecoverExpired returns jobs whose lease ended before now to the queue,
// immediately available.
func (q *JobQueue) RecoverExpired(ctx context.Context, now time.Time) (int, error) {
	var recovered int
	err := q.backend.Update(func(tx *badger.Txn) error {
		recovered = 0
		var expired []string
		for _, key := range prefixKeys(tx, []byte(jobLeasePrefix+":")) {
			until, jobID := parseJobLeaseKey(key)
			if !until.Before(now) {
				// Lease keys are ordered by expiry.
				break
			}
			expired = append(expired, jobID)
		}

		for _, jobID := range expired {
			entry, err := getEntry(tx, jobID)
			if err != nil {
				return err
			}
			if entry == nil || !entry.Leased {
				continue
			}
			if err := tx.Delete(makeJobLeaseKey(entry.LeaseUntil, jobID)); err != nil {
				return err
			}
			if err := q.schedule(tx, entry, now); err != nil {
				return err
			}
			recovered++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if recovered > 0 {
		q.logger.Info("recovered expired leases", "count", recovered)
	}
	return recovered, nil
}

// Len returns the number of waiting and leased jobs.
func (q *JobQueue) Len(ctx context.Context) (int, error) {
	var n int
	err := q.backend.View(func(tx *badger.Txn) error {
		n = len(prefixKeys(tx, []byte(jobEntryPrefix+":")))
		return nil
	})
	return n, err
}
