package jobs

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pranot/segtrans/pkg/log"
)

type Executor func(ctx context.Context, job *Job) error

// Queue is an in-memory work queue with optional persistence. Jobs are
// deduplicated by key while pending or running, dispatched to a fixed pool
// of workers, and pruned oldest-first once the terminal backlog exceeds
// maxJobs.
type Queue struct {
	workerCount int
	maxJobs     int
	store       Store

	mu         sync.RWMutex
	jobs       map[string]*Job
	dedupe     map[string]string
	idCounter  uint64
	started    bool
	pendingIDs chan string
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func NewQueue(workerCount int, store Store) *Queue {
	if workerCount <= 0 {
		workerCount = 1
	}
	q := &Queue{
		workerCount: workerCount,
		maxJobs:     1000,
		store:       store,
		jobs:        make(map[string]*Job),
		dedupe:      make(map[string]string),
		pendingIDs:  make(chan string, 1024),
		stopCh:      make(chan struct{}),
	}
	q.restore(context.Background())
	return q
}

// Enqueue adds a job unless one with the same dedupe key is still pending
// or running. The second return value reports whether a new job was created.
func (q *Queue) Enqueue(req EnqueueRequest) (*Job, bool) {
	now := time.Now()

	q.mu.Lock()
	if id, ok := q.dedupe[req.DedupeKey]; ok {
		if existing, exists := q.jobs[id]; exists {
			snapshot := existing.clone()
			q.mu.Unlock()
			return snapshot, false
		}
		delete(q.dedupe, req.DedupeKey)
	}

	id := fmt.Sprintf("job-%d", atomic.AddUint64(&q.idCounter, 1))
	job := &Job{
		ID:        id,
		Source:    req.Source,
		DedupeKey: req.DedupeKey,
		Payload:   req.Payload,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	q.jobs[id] = job
	if req.DedupeKey != "" {
		q.dedupe[req.DedupeKey] = id
	}
	started := q.started
	snapshot := job.clone()
	q.mu.Unlock()

	q.persist(snapshot)
	if started {
		q.dispatch(id)
	}
	return snapshot, true
}

func (q *Queue) Get(id string) (*Job, bool) {
	q.mu.RLock()
	job, ok := q.jobs[id]
	q.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return job.clone(), true
}

func (q *Queue) List() []*Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	ret := make([]*Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		ret = append(ret, job.clone())
	}
	return ret
}

// Start launches the worker pool and dispatches any jobs that were pending
// before Start, including ones restored from the store. Calling Start twice
// is a no-op.
func (q *Queue) Start(exec Executor) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true

	backlog := make([]string, 0)
	for id, job := range q.jobs {
		if job.Status == StatusPending {
			backlog = append(backlog, id)
		}
	}
	q.mu.Unlock()

	for _, id := range backlog {
		q.dispatch(id)
	}

	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.worker(exec)
	}
}

// Stop signals the workers and blocks until they exit. A job currently
// executing finishes its run first.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		close(q.stopCh)
		q.wg.Wait()
	})
}

func (q *Queue) worker(exec Executor) {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopCh:
			return
		case id := <-q.pendingIDs:
			job, ok := q.claim(id)
			if !ok {
				continue
			}
			q.settle(id, exec(context.Background(), job))
		}
	}
}

// dispatch hands a job id to the workers without ever blocking the caller.
// The channel is generously sized; the goroutine fallback only triggers
// under a burst larger than its capacity.
func (q *Queue) dispatch(id string) {
	select {
	case q.pendingIDs <- id:
	default:
		go func() { q.pendingIDs <- id }()
	}
}

// claim transitions a pending job to running. Stale ids (pruned jobs,
// already-claimed duplicates) are dropped.
func (q *Queue) claim(id string) (*Job, bool) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || job.Status != StatusPending {
		q.mu.Unlock()
		return nil, false
	}
	job.Status = StatusRunning
	job.UpdatedAt = time.Now()
	snapshot := job.clone()
	q.mu.Unlock()

	q.persist(snapshot)
	return snapshot, true
}

// settle records the outcome of a run, releases the dedupe key so the job
// can be enqueued again, and prunes old terminal jobs.
func (q *Queue) settle(id string, runErr error) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	if runErr != nil {
		job.Status = StatusFailed
		job.Error = runErr.Error()
	} else {
		job.Status = StatusSuccess
		job.Error = ""
	}
	job.UpdatedAt = time.Now()
	q.dropDedupeLocked(job)
	pruned := q.pruneLocked()
	snapshot := job.clone()
	q.mu.Unlock()

	q.persist(snapshot)
	q.forget(pruned)
}

// dropDedupeLocked releases the key only when this job still owns it.
// A newer job may have claimed the same key after this one went terminal.
func (q *Queue) dropDedupeLocked(job *Job) {
	if job == nil || job.DedupeKey == "" {
		return
	}
	if owner := q.dedupe[job.DedupeKey]; owner == job.ID {
		delete(q.dedupe, job.DedupeKey)
	}
}

// pruneLocked evicts the oldest terminal jobs once the map exceeds maxJobs.
// Pending and running jobs are never evicted. Returns the evicted ids so
// the caller can clean up the store outside the lock.
func (q *Queue) pruneLocked() []string {
	if q.maxJobs <= 0 || len(q.jobs) <= q.maxJobs {
		return nil
	}

	terminal := make([]*Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		if job == nil || job.Status == StatusPending || job.Status == StatusRunning {
			continue
		}
		terminal = append(terminal, job)
	}
	if len(terminal) == 0 {
		return nil
	}
	slices.SortFunc(terminal, func(a, b *Job) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})

	toRemove := min(len(q.jobs)-q.maxJobs, len(terminal))
	pruned := make([]string, 0, toRemove)
	for _, job := range terminal[:toRemove] {
		q.dropDedupeLocked(job)
		delete(q.jobs, job.ID)
		pruned = append(pruned, job.ID)
	}
	return pruned
}

// forget removes pruned jobs and their auxiliary data from the store.
func (q *Queue) forget(ids []string) {
	if q.store == nil || len(ids) == 0 {
		return
	}
	for _, id := range ids {
		if err := q.store.DeleteJobData(context.Background(), id); err != nil {
			log.Error("Failed to clear run data for pruned job %s: %v", id, err)
		}
		if err := q.store.DeleteJob(context.Background(), id); err != nil {
			log.Error("Failed to remove pruned job %s from store: %v", id, err)
		}
	}
}

// restore loads persisted jobs at construction time. Jobs that were running
// when the previous process died are demoted to pending so they run again.
func (q *Queue) restore(ctx context.Context) {
	if q.store == nil {
		return
	}
	loaded, err := q.store.LoadJobs(ctx)
	if err != nil {
		log.Error("Failed to restore jobs from store: %v", err)
		return
	}

	now := time.Now()
	demoted := make([]*Job, 0)
	q.mu.Lock()
	for _, raw := range loaded {
		if raw == nil || raw.ID == "" {
			continue
		}
		job := raw.clone()
		if job.Status == StatusRunning {
			job.Status = StatusPending
			job.UpdatedAt = now
			demoted = append(demoted, job.clone())
		}
		q.jobs[job.ID] = job
		if job.Status == StatusPending && job.DedupeKey != "" {
			q.dedupe[job.DedupeKey] = job.ID
		}
		q.bumpIDCounterLocked(job.ID)
	}
	q.mu.Unlock()

	for _, job := range demoted {
		q.persist(job)
	}
}

// bumpIDCounterLocked keeps new ids from colliding with restored ones.
func (q *Queue) bumpIDCounterLocked(jobID string) {
	if !strings.HasPrefix(jobID, "job-") {
		return
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(jobID, "job-"), 10, 64)
	if err != nil {
		return
	}
	if n > q.idCounter {
		q.idCounter = n
	}
}

func (q *Queue) persist(job *Job) {
	if q.store == nil || job == nil {
		return
	}
	if err := q.store.UpsertJob(context.Background(), job); err != nil {
		log.Error("Failed to save job %s: %v", job.ID, err)
	}
}

func (j *Job) clone() *Job {
	if j == nil {
		return nil
	}
	tmp := *j
	return &tmp
}
