package badger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/docanalysis/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func TestJobQueue_OrderAndDelay(t *testing.T) {
	q := newTestStores(t, 0).Queue
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, storage.Job{ID: "late", OrganizationID: "org-1"}, t0.Add(time.Minute)))
	require.NoError(t, q.Enqueue(ctx, storage.Job{ID: "first", OrganizationID: "org-1"}, t0))
	require.NoError(t, q.Enqueue(ctx, storage.Job{ID: "second", OrganizationID: "org-2"}, t0))

	d, err := q.Dequeue(ctx, t0, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "first", d.Job.ID)
	assert.Equal(t, "org-1", d.Job.OrganizationID)
	assert.True(t, d.LeaseUntil.Equal(t0.Add(time.Minute)))

	d, err = q.Dequeue(ctx, t0, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "second", d.Job.ID)

	d, err = q.Dequeue(ctx, t0, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, d, "delayed job is not due yet")

	d, err = q.Dequeue(ctx, t0.Add(time.Minute), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "late", d.Job.ID)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "leased jobs stay until acked")
}

func TestJobQueue_EnqueueIsIdempotent(t *testing.T) {
	q := newTestStores(t, 0).Queue
	ctx := context.Background()

	job := storage.Job{ID: "job-1", OrganizationID: "org-1"}
	require.NoError(t, q.Enqueue(ctx, job, t0.Add(time.Hour)))
	require.NoError(t, q.Enqueue(ctx, job, t0))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	d, err := q.Dequeue(ctx, t0, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, d, "rescheduled job is due at the new time")

	d, err = q.Dequeue(ctx, t0.Add(2*time.Hour), time.Minute)
	require.NoError(t, err)
	assert.Nil(t, d, "old schedule was replaced")

	err = q.Enqueue(ctx, job, t0)
	assert.ErrorIs(t, err, storage.ErrJobLeased)
}

func TestJobQueue_AckReleaseRemove(t *testing.T) {
	q := newTestStores(t, 0).Queue
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, storage.Job{ID: "a"}, t0))
	require.NoError(t, q.Enqueue(ctx, storage.Job{ID: "b"}, t0))

	d, err := q.Dequeue(ctx, t0, time.Minute)
	require.NoError(t, err)
	require.Equal(t, "a", d.Job.ID)

	removed, err := q.Remove(ctx, "a")
	assert.ErrorIs(t, err, storage.ErrJobLeased)
	assert.False(t, removed)

	// Release with a delay, as a retry would.
	require.NoError(t, q.Release(ctx, "a", t0.Add(2*time.Second)))
	d, err = q.Dequeue(ctx, t0.Add(time.Second), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "b", d.Job.ID)
	require.NoError(t, q.Ack(ctx, "b"))

	d, err = q.Dequeue(ctx, t0.Add(2*time.Second), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "a", d.Job.ID)
	require.NoError(t, q.Ack(ctx, "a"))

	assert.ErrorIs(t, q.Ack(ctx, "a"), storage.ErrNotFound)
	assert.ErrorIs(t, q.Release(ctx, "a", t0), storage.ErrNotFound)

	require.NoError(t, q.Enqueue(ctx, storage.Job{ID: "c"}, t0))
	removed, err = q.Remove(ctx, "c")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = q.Remove(ctx, "c")
	require.NoError(t, err)
	assert.False(t, removed)

	found, err := q.Contains(ctx, "c")
	require.NoError(t, err)
	assert.False(t, found)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJobQueue_RecoverExpired(t *testing.T) {
	q := newTestStores(t, 0).Queue
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, storage.Job{ID: "short"}, t0))
	require.NoError(t, q.Enqueue(ctx, storage.Job{ID: "long"}, t0))
	_, err := q.Dequeue(ctx, t0, time.Second)
	require.NoError(t, err)
	_, err = q.Dequeue(ctx, t0, time.Hour)
	require.NoError(t, err)

	recovered, err := q.RecoverExpired(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	d, err := q.Dequeue(ctx, t0.Add(time.Minute), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "short", d.Job.ID)

	d, err = q.Dequeue(ctx, t0.Add(time.Minute), time.Minute)
	require.NoError(t, err)
	assert.Nil(t, d, "unexpired lease stays with its consumer")
}

func TestJobQueue_Extend(t *testing.T) {
	q := newTestStores(t, 0).Queue
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, storage.Job{ID: "job-1"}, t0))
	require.NoError(t, q.Enqueue(ctx, storage.Job{ID: "job-2"}, t0.Add(time.Hour)))
	_, err := q.Dequeue(ctx, t0, time.Minute)
	require.NoError(t, err)

	require.NoError(t, q.Extend(ctx, "job-1", t0.Add(10*time.Minute)))

	recovered, err := q.RecoverExpired(ctx, t0.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, recovered, "extended lease has not expired")

	recovered, err = q.RecoverExpired(ctx, t0.Add(11*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	err = q.Extend(ctx, "job-2", t0.Add(time.Hour))
	assert.ErrorIs(t, err, storage.ErrJobNotLeased, "waiting jobs are not leased by Extend")
	err = q.Extend(ctx, "missing", t0)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestJobQueue_ConcurrentConsumers(t *testing.T) {
	q := newTestStores(t, 0).Queue
	ctx := context.Background()

	const jobs = 40
	for i := 0; i < jobs; i++ {
		require.NoError(t, q.Enqueue(ctx, storage.Job{ID: string(rune('A' + i))}, t0))
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				d, err := q.Dequeue(ctx, t0, time.Minute)
				if err != nil {
					t.Error(err)
					return
				}
				if d == nil {
					return
				}
				mu.Lock()
				seen[d.Job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, jobs)
	for id, n := range seen {
		assert.Equal(t, 1, n, "job %s delivered more than once", id)
	}
}
