package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enqueue(t *testing.T, q *Queue, source, key string) *Job {
	t.Helper()
	job, created := q.Enqueue(EnqueueRequest{Source: source, DedupeKey: key})
	require.True(t, created)
	require.NotNil(t, job)
	return job
}

func waitForStatus(t *testing.T, q *Queue, id string, want Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		got, ok := q.Get(id)
		return ok && got.Status == want
	}, time.Second, 10*time.Millisecond)
}

func TestQueue_Enqueue_SetsInitialFields(t *testing.T) {
	q := NewQueue(1, nil)

	job := enqueue(t, q, "cron", "Bad Genius.mkv|en")

	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, "cron", job.Source)
	assert.False(t, job.CreatedAt.IsZero())
	assert.False(t, job.UpdatedAt.IsZero())
}

func TestQueue_Enqueue_DeduplicatesSameKey(t *testing.T) {
	q := NewQueue(2, nil)

	first := enqueue(t, q, "manual", "ep1.mkv|en")

	// Second enqueue for the same key returns the live job, whatever
	// source asked for it.
	dup, created := q.Enqueue(EnqueueRequest{Source: "cron", DedupeKey: "ep1.mkv|en"})
	assert.False(t, created)
	require.NotNil(t, dup)
	assert.Equal(t, first.ID, dup.ID)

	other := enqueue(t, q, "cron", "ep2.mkv|en")
	assert.NotEqual(t, first.ID, other.ID)
	assert.Len(t, q.List(), 2)
}

func TestQueue_Enqueue_AllowsRetryAfterTerminalState(t *testing.T) {
	cases := map[string]struct {
		firstRunErr error
		wantStatus  Status
	}{
		"after failure": {firstRunErr: assert.AnError, wantStatus: StatusFailed},
		"after success": {firstRunErr: nil, wantStatus: StatusSuccess},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			q := NewQueue(1, nil)
			runs := 0
			q.Start(func(context.Context, *Job) error {
				runs++
				if runs == 1 {
					return tc.firstRunErr
				}
				return nil
			})
			defer q.Stop()

			first := enqueue(t, q, "manual", "retry.mkv|en")
			waitForStatus(t, q, first.ID, tc.wantStatus)

			// Terminal jobs release the dedupe key, so the same media
			// can be queued again under a fresh id.
			second := enqueue(t, q, "manual", "retry.mkv|en")
			assert.NotEqual(t, first.ID, second.ID)
			waitForStatus(t, q, second.ID, StatusSuccess)
		})
	}
}

func TestQueue_Get_UnknownID(t *testing.T) {
	q := NewQueue(1, nil)
	job, ok := q.Get("job-404")
	assert.False(t, ok)
	assert.Nil(t, job)
}

func TestQueue_List_ReturnsCopies(t *testing.T) {
	q := NewQueue(1, nil)
	job := enqueue(t, q, "manual", "ep1.mkv|en")

	listed := q.List()
	require.Len(t, listed, 1)
	listed[0].Status = StatusFailed
	listed[0].Error = "mutated by caller"

	kept, ok := q.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, kept.Status)
	assert.Empty(t, kept.Error)
}
