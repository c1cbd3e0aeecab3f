package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/pranot/segtrans/internal/batch"
	"github.com/pranot/segtrans/internal/checkpoint"
	"github.com/pranot/segtrans/internal/progress"
	"github.com/pranot/segtrans/internal/route"
	"github.com/pranot/segtrans/internal/segment"
	"github.com/pranot/segtrans/pkg/log"
)

// Orchestrator runs one stage of a job: it fans segments out to a
// bounded worker pool, collects results back into segment-ID order,
// and persists progress through the batcher and checkpoint store so an
// interrupted run resumes instead of restarting.
type Orchestrator struct {
	cfg         Config
	checkpoints *checkpoint.Store
	batcher     *batch.Batcher
	processor   Processor

	mu             sync.Mutex
	state          State
	tracker        *progress.Tracker
	totalSegments  int
	processedCount int
	cacheHits      int
	tierCounts     map[route.Tier]int
	cost           float64
	failed         []int
	durabilityWarn int
}

type workResult struct {
	seg segment.Segment
	out Outcome
	err error
}

func New(cfg Config, checkpoints *checkpoint.Store, batcher *batch.Batcher, processor Processor) *Orchestrator {
	cfg.applyDefaults()
	return &Orchestrator{
		cfg:         cfg,
		checkpoints: checkpoints,
		batcher:     batcher,
		processor:   processor,
		state:       StateFresh,
		tierCounts:  make(map[route.Tier]int),
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	log.Debug("Job %s stage %s -> %s", o.cfg.JobID, o.cfg.Stage, s)
}

// Stats returns a snapshot of the running totals, safe to call from
// other goroutines while Run is in flight.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Stats{
		State:              o.state,
		SegmentsProcessed:  o.processedCount,
		TotalSegments:      o.totalSegments,
		CacheHits:          o.cacheHits,
		TierCounts:         make(map[route.Tier]int, len(o.tierCounts)),
		CostEstimate:       o.cost,
		FailedSegments:     append([]int(nil), o.failed...),
		DurabilityWarnings: o.durabilityWarn,
	}
	for tier, n := range o.tierCounts {
		s.TierCounts[tier] = n
	}
	if o.tracker != nil {
		s.Elapsed = o.tracker.Elapsed()
		s.Speed = o.tracker.Speed()
		s.ETA, s.ETAKnown = o.tracker.ETA()
	}
	return s
}

func (o *Orchestrator) recordOutcome(out Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.processedCount++
	o.tierCounts[out.Tier]++
	o.cost += out.Cost
	if out.CacheHit {
		o.cacheHits++
	}
}

func (o *Orchestrator) recordFailure(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, id)
}

func (o *Orchestrator) failedSnapshot() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.failed) == 0 {
		return nil
	}
	return append([]int(nil), o.failed...)
}

func (o *Orchestrator) recordDurabilityWarning() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.durabilityWarn++
}

// Run processes segments in order, resuming from any prior checkpoint
// for this (job, stage) pair. Segments must be sorted by ID. On
// cancellation it drains in-flight work within the configured grace
// period, persists progress, and returns ErrInterrupted.
func (o *Orchestrator) Run(ctx context.Context, segments []segment.Segment) (*Report, error) {
	sorted := sort.SliceIsSorted(segments, func(i, j int) bool {
		return segments[i].ID < segments[j].ID
	})
	if !sorted {
		return nil, fmt.Errorf("segments must be sorted by id")
	}

	o.mu.Lock()
	o.totalSegments = len(segments)
	o.mu.Unlock()

	record, found, err := o.checkpoints.Load(o.cfg.JobID, o.cfg.Stage)
	if err != nil {
		o.setState(StateFailed)
		return nil, err
	}

	start := 0
	if found {
		o.setState(StateResuming)
		for start < len(segments) && segments[start].ID <= record.LastCompletedIndex {
			start++
		}
		if len(record.FailedIDs) > 0 {
			// Failures from the interrupted run sit behind the resume
			// point and are never reprocessed, so carry them forward.
			o.mu.Lock()
			o.failed = append(o.failed, record.FailedIDs...)
			o.mu.Unlock()
		}
		log.Info("Resuming job %s stage %s from segment %d of %d",
			o.cfg.JobID, o.cfg.Stage, start, len(segments))
	} else {
		record = checkpoint.Record{
			JobID:              o.cfg.JobID,
			Stage:              o.cfg.Stage,
			LastCompletedIndex: -1,
			TotalExpected:      len(segments),
		}
	}

	var remaining float64
	for _, seg := range segments[start:] {
		remaining += seg.Duration()
	}
	o.mu.Lock()
	o.tracker = progress.NewTracker(remaining)
	o.mu.Unlock()

	if start < len(segments) {
		record = o.processRange(ctx, segments, start, record)
	}
	o.setState(StateFlushing)

	if err := o.batcher.Flush(); err != nil {
		o.setState(StateFailed)
		return nil, fmt.Errorf("final flush: %w", err)
	}

	if ctx.Err() != nil {
		if err := o.checkpoints.Save(record); err != nil {
			log.Error("Interrupt checkpoint for job %s failed: %v", o.cfg.JobID, err)
			o.recordDurabilityWarning()
		}
		o.setState(StateInterrupted)
		return o.report(nil), ErrInterrupted
	}

	merged, err := o.batcher.LoadAll()
	if err != nil {
		o.setState(StateFailed)
		return nil, fmt.Errorf("load completed segments: %w", err)
	}
	if err := o.checkpoints.Delete(o.cfg.JobID, o.cfg.Stage); err != nil {
		log.Warn("Delete checkpoint for job %s: %v", o.cfg.JobID, err)
		o.recordDurabilityWarning()
	}
	o.setState(StateCompleted)
	return o.report(merged), nil
}

// processRange runs the worker pool and the in-order collector over
// segments[start:], returning the checkpoint record advanced to the
// last durably flushed index.
func (o *Orchestrator) processRange(ctx context.Context, segments []segment.Segment, start int, record checkpoint.Record) checkpoint.Record {
	o.setState(StateRunning)

	// Workers get a context detached from the caller's so cancellation
	// stops the feeder first and in-flight segments may finish within
	// the drain grace period.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-done:
		case <-ctx.Done():
			timer := time.NewTimer(o.cfg.DrainGrace)
			defer timer.Stop()
			select {
			case <-done:
			case <-timer.C:
				log.Warn("Drain grace expired for job %s, aborting in-flight segments", o.cfg.JobID)
				cancelWork()
			}
		}
	}()

	jobs := make(chan segment.Segment)
	results := make(chan workResult, o.cfg.Workers)

	go func() {
		defer close(jobs)
		for _, seg := range segments[start:] {
			select {
			case jobs <- seg:
			case <-ctx.Done():
				return
			case <-workCtx.Done():
				return
			}
		}
	}()

	var group errgroup.Group
	for i := 0; i < o.cfg.Workers; i++ {
		group.Go(func() error {
			for seg := range jobs {
				out, err := o.processWithRetry(workCtx, seg)
				results <- workResult{seg: seg, out: out, err: err}
			}
			return nil
		})
	}
	go func() {
		_ = group.Wait()
		close(results)
	}()

	pending := make(map[int]workResult)
	next := segments[start].ID
	sinceCheckpoint := 0

	for res := range results {
		pending[res.seg.ID] = res

		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			if ready.err != nil && (errors.Is(ready.err, context.Canceled) || errors.Is(ready.err, context.DeadlineExceeded)) {
				// Aborted by shutdown, not failed; the resumed run
				// reprocesses it.
				break
			}
			delete(pending, next)

			if ready.err != nil {
				log.Error("Segment %d failed after %d attempts: %v", next, o.cfg.MaxRetries, ready.err)
				o.recordFailure(next)
			} else {
				if err := o.batcher.Add(ready.out.Segment); err != nil {
					log.Error("Buffer segment %d: %v", next, err)
					o.recordDurabilityWarning()
				}
				o.recordOutcome(ready.out)
				o.tracker.Update(ready.seg.Duration())
				record.LastTimestamp = ready.seg.EndTime
			}

			next++
			sinceCheckpoint++
			if sinceCheckpoint >= o.cfg.CheckpointInterval {
				record = o.persistProgress(record, next-1)
				sinceCheckpoint = 0
			}
		}
	}

	if sinceCheckpoint > 0 && next > segments[start].ID {
		record.LastCompletedIndex = next - 1
		record.ThroughputEstimate = o.tracker.Speed()
		record.FailedIDs = o.failedSnapshot()
	}
	return record
}

// persistProgress flushes the buffer first so the checkpoint never
// points past the durable data, then saves the record. Failures are
// logged and counted; the run continues and retries next interval.
func (o *Orchestrator) persistProgress(record checkpoint.Record, lastCompleted int) checkpoint.Record {
	if err := o.batcher.Flush(); err != nil {
		log.Error("Checkpoint flush for job %s: %v", o.cfg.JobID, err)
		o.recordDurabilityWarning()
		return record
	}

	record.LastCompletedIndex = lastCompleted
	record.ThroughputEstimate = o.tracker.Speed()
	record.FailedIDs = o.failedSnapshot()
	if err := o.checkpoints.Save(record); err != nil {
		log.Error("Checkpoint save for job %s: %v", o.cfg.JobID, err)
		o.recordDurabilityWarning()
		return record
	}
	log.Debug("Checkpoint job %s stage %s at segment %d", o.cfg.JobID, o.cfg.Stage, lastCompleted)
	return record
}

// processWithRetry attempts a segment up to MaxRetries times with
// exponential backoff. Context cancellation is permanent; everything
// else is treated as transient.
func (o *Orchestrator) processWithRetry(ctx context.Context, seg segment.Segment) (Outcome, error) {
	var out Outcome
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = o.cfg.RetryInitialWait

	operation := func() error {
		res, err := o.processor.Process(ctx, seg)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(err)
			}
			log.Warn("Segment %d attempt failed: %v", seg.ID, err)
			return err
		}
		out = res
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(o.cfg.MaxRetries-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return Outcome{}, err
	}
	return out, nil
}

func (o *Orchestrator) report(segments []segment.Segment) *Report {
	return &Report{
		JobID:    o.cfg.JobID,
		Stage:    o.cfg.Stage,
		Stats:    o.Stats(),
		Segments: segments,
	}
}
