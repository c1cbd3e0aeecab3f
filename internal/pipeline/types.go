package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/pranot/segtrans/internal/checkpoint"
	"github.com/pranot/segtrans/internal/route"
	"github.com/pranot/segtrans/internal/segment"
)

// State is the orchestrator's job lifecycle state.
type State string

const (
	StateFresh       State = "fresh"
	StateResuming    State = "resuming"
	StateRunning     State = "running"
	StateFlushing    State = "flushing"
	StateCompleted   State = "completed"
	StateInterrupted State = "interrupted"
	StateFailed      State = "failed"
)

// ErrInterrupted reports that a run stopped on cancellation after
// persisting its progress.
var ErrInterrupted = errors.New("pipeline interrupted")

// Outcome is the result of processing one segment.
type Outcome struct {
	Segment  segment.Segment
	Tier     route.Tier
	Cost     float64
	CacheHit bool
}

// Processor handles one segment of the current stage. Implementations
// must be safe for concurrent use; errors are retried by the
// orchestrator up to its configured limit.
type Processor interface {
	Process(ctx context.Context, seg segment.Segment) (Outcome, error)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, seg segment.Segment) (Outcome, error)

func (f ProcessorFunc) Process(ctx context.Context, seg segment.Segment) (Outcome, error) {
	return f(ctx, seg)
}

// Stats is a read-only snapshot of a job's running totals.
type Stats struct {
	State              State              `json:"state"`
	SegmentsProcessed  int                `json:"segments_processed"`
	TotalSegments      int                `json:"total_segments"`
	CacheHits          int                `json:"cache_hits"`
	TierCounts         map[route.Tier]int `json:"tier_counts"`
	CostEstimate       float64            `json:"cost_estimate"`
	Elapsed            time.Duration      `json:"elapsed"`
	Speed              float64            `json:"speed"`
	ETA                time.Duration      `json:"eta"`
	ETAKnown           bool               `json:"eta_known"`
	FailedSegments     []int              `json:"failed_segments"`
	DurabilityWarnings int                `json:"durability_warnings"`
}

// Report is the final outcome of one stage run.
type Report struct {
	JobID    string
	Stage    checkpoint.Stage
	Stats    Stats
	Segments []segment.Segment
}

// Config holds the orchestration knobs for one stage run.
type Config struct {
	JobID              string
	Stage              checkpoint.Stage
	Workers            int
	CheckpointInterval int
	MaxRetries         int
	RetryInitialWait   time.Duration
	DrainGrace         time.Duration
}

func (c *Config) applyDefaults() {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.Workers > 4 {
		c.Workers = 4
	}
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = 10
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryInitialWait <= 0 {
		c.RetryInitialWait = 500 * time.Millisecond
	}
	if c.DrainGrace <= 0 {
		c.DrainGrace = 10 * time.Second
	}
}
