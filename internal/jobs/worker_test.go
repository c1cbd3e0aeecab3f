package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_Workers_DrainBacklogAcrossPool(t *testing.T) {
	q := NewQueue(2, nil)
	q.Start(func(_ context.Context, job *Job) error {
		if job.DedupeKey == "bad.mkv|en" {
			return errors.New("whisper exited with status 1")
		}
		return nil
	})
	defer q.Stop()

	keys := []string{"a.mkv|en", "b.mkv|en", "bad.mkv|en", "c.mkv|en"}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		job, created := q.Enqueue(EnqueueRequest{Source: "cron", DedupeKey: key})
		require.True(t, created)
		ids = append(ids, job.ID)
	}

	require.Eventually(t, func() bool {
		for _, id := range ids {
			got, ok := q.Get(id)
			if !ok || (got.Status != StatusSuccess && got.Status != StatusFailed) {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	failed := 0
	for _, job := range q.List() {
		if job.Status == StatusFailed {
			failed++
			assert.Equal(t, "whisper exited with status 1", job.Error)
		}
	}
	assert.Equal(t, 1, failed)
}
