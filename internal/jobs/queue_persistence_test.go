package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func newMemoryStore() *memoryStore {
	return &memoryStore{jobs: make(map[string]*Job)}
}

func (m *memoryStore) seed(id, key string, status Status, media string) {
	now := time.Now()
	m.jobs[id] = &Job{
		ID:        id,
		Source:    "cron",
		DedupeKey: key,
		Status:    status,
		Payload:   Payload{MediaFile: media},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (m *memoryStore) get(id string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	return j.clone(), true
}

func (m *memoryStore) LoadJobs(context.Context) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		ret = append(ret, j.clone())
	}
	return ret, nil
}

func (m *memoryStore) UpsertJob(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job.clone()
	return nil
}

func (m *memoryStore) DeleteJob(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, jobID)
	return nil
}

func (m *memoryStore) DeleteJobData(context.Context, string) error { return nil }

func TestQueue_RestoresJobsFromStore(t *testing.T) {
	store := newMemoryStore()
	store.seed("job-1", "m1.mkv|en", StatusPending, "/media/ep1.mkv")
	// A job that was mid-run when the process died comes back as
	// pending so it gets picked up again.
	store.seed("job-2", "m2.mkv|en", StatusRunning, "/media/ep2.mkv")

	q := NewQueue(1, store)

	restored, ok := q.Get("job-2")
	require.True(t, ok)
	assert.Equal(t, StatusPending, restored.Status)

	// Restored pending jobs hold their dedupe keys.
	_, created := q.Enqueue(EnqueueRequest{Source: "manual", DedupeKey: "m1.mkv|en"})
	assert.False(t, created)

	q.Start(func(context.Context, *Job) error { return nil })
	defer q.Stop()

	for _, id := range []string{"job-1", "job-2"} {
		waitForStatus(t, q, id, StatusSuccess)
	}

	// The terminal status reaches the store too.
	persisted, ok := store.get("job-1")
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, persisted.Status)

	// New ids must not collide with the restored ones.
	fresh, created := q.Enqueue(EnqueueRequest{Source: "manual", DedupeKey: "m3.mkv|en"})
	require.True(t, created)
	assert.Equal(t, "job-3", fresh.ID)
}
