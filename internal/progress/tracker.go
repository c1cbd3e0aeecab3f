package progress

import (
	"sync"
	"time"
)

// Tracker measures throughput as cumulative processed media seconds
// over cumulative wall-clock seconds since start. The cumulative ratio
// keeps ETA from oscillating the way an instantaneous rate would.
type Tracker struct {
	mu            sync.Mutex
	start         time.Time
	processed     float64
	totalExpected float64

	// now is swappable in tests.
	now func() time.Time
}

// NewTracker starts the wall clock immediately. totalExpected is the
// full media duration in seconds; zero means unknown.
func NewTracker(totalExpected float64) *Tracker {
	t := &Tracker{
		totalExpected: totalExpected,
		now:           time.Now,
	}
	t.start = t.now()
	return t
}

// Update adds processed media seconds.
func (t *Tracker) Update(durationProcessed float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processed += durationProcessed
}

// Processed returns cumulative processed media seconds.
func (t *Tracker) Processed() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.processed
}

// Speed returns processed media seconds per wall second. Zero until
// any work completes.
func (t *Tracker) Speed() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.speedLocked()
}

func (t *Tracker) speedLocked() float64 {
	elapsed := t.now().Sub(t.start).Seconds()
	if elapsed <= 0 || t.processed <= 0 {
		return 0
	}
	return t.processed / elapsed
}

// ETA estimates remaining wall time. ok is false while speed is zero
// or the total is unknown; callers must treat that as "unknown", not
// as an error.
func (t *Tracker) ETA() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	speed := t.speedLocked()
	if speed == 0 || t.totalExpected <= 0 {
		return 0, false
	}
	remaining := t.totalExpected - t.processed
	if remaining < 0 {
		remaining = 0
	}
	return time.Duration(remaining / speed * float64(time.Second)), true
}

// Elapsed returns wall time since the tracker started.
func (t *Tracker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now().Sub(t.start)
}
