package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pranot/segtrans/internal/segment"
	"github.com/pranot/segtrans/pkg/file"
	"github.com/pranot/segtrans/pkg/log"
)

const DefaultBatchSize = 100

var batchFilePattern = regexp.MustCompile(`^segments_(\d{4,})\.json$`)

// Batcher accumulates segments in memory and flushes them to numbered,
// write-once JSON batch files. A batch index is never rewritten, so a
// crash can corrupt at most the file being written, and that write is
// atomic anyway.
type Batcher struct {
	dir       string
	batchSize int

	mu        sync.Mutex
	buffer    []segment.Segment
	nextIndex int
}

// NewBatcher scans dir for existing batch files and continues
// numbering after the highest one, so resumed jobs append rather than
// overwrite.
func NewBatcher(dir string, batchSize int) (*Batcher, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create batch directory: %w", err)
	}

	indices, err := listBatchIndices(dir)
	if err != nil {
		return nil, err
	}
	next := 0
	if len(indices) > 0 {
		next = indices[len(indices)-1] + 1
	}

	return &Batcher{
		dir:       dir,
		batchSize: batchSize,
		nextIndex: next,
	}, nil
}

// Add buffers one segment and flushes when the buffer fills.
func (b *Batcher) Add(seg segment.Segment) error {
	b.mu.Lock()
	b.buffer = append(b.buffer, seg)
	full := len(b.buffer) >= b.batchSize
	b.mu.Unlock()

	if full {
		return b.Flush()
	}
	return nil
}

// Flush writes any buffered segments to the next batch file. A flush
// of an empty buffer is a no-op.
func (b *Batcher) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.buffer) == 0 {
		return nil
	}

	data, err := json.MarshalIndent(b.buffer, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	path := filepath.Join(b.dir, fmt.Sprintf("segments_%04d.json", b.nextIndex))
	if err := file.WriteAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("flush batch %d: %w", b.nextIndex, err)
	}

	log.Debug("Flushed batch %d (%d segments)", b.nextIndex, len(b.buffer))
	b.nextIndex++
	b.buffer = b.buffer[:0]
	return nil
}

// Buffered reports how many segments wait in memory.
func (b *Batcher) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}

// LoadAll reads every batch file in ascending numeric order and
// concatenates the segments. A malformed file is quarantined and
// loading stops at the last known-good prefix, so resumes only trust
// contiguous durable data.
func (b *Batcher) LoadAll() ([]segment.Segment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	indices, err := listBatchIndices(b.dir)
	if err != nil {
		return nil, err
	}

	var all []segment.Segment
	for _, idx := range indices {
		path := filepath.Join(b.dir, fmt.Sprintf("segments_%04d.json", idx))
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read batch %d: %w", idx, err)
		}

		var segs []segment.Segment
		if err := json.Unmarshal(data, &segs); err != nil {
			quarantined, qerr := file.Quarantine(path, fmt.Sprintf("corrupt-%d", time.Now().Unix()))
			if qerr != nil {
				return nil, fmt.Errorf("quarantine batch %d: %w", idx, qerr)
			}
			log.Warn("Corrupt batch file quarantined as %s, keeping %d segments loaded so far",
				quarantined, len(all))
			break
		}
		all = append(all, segs...)
	}

	all = dedupeByID(all)

	if overlaps, err := segment.ValidateSequence(all); err != nil {
		return nil, fmt.Errorf("batch sequence invalid: %w", err)
	} else {
		for _, o := range overlaps {
			log.Warn("Loaded batches: %s", o)
		}
	}
	return all, nil
}

// dedupeByID drops repeated segment IDs, keeping the earliest durable
// copy. A crash between a flush and the following checkpoint save makes
// the resumed run re-emit segments that already reached disk, so later
// batches can legitimately repeat IDs.
func dedupeByID(segs []segment.Segment) []segment.Segment {
	seen := make(map[int]bool, len(segs))
	out := segs[:0]
	for _, seg := range segs {
		if seen[seg.ID] {
			continue
		}
		seen[seg.ID] = true
		out = append(out, seg)
	}
	if dropped := len(segs) - len(out); dropped > 0 {
		log.Warn("Dropped %d duplicate segments from loaded batches", dropped)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Clear removes all batch files, used when a job is force-restarted
// or its final output has been committed.
func (b *Batcher) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	indices, err := listBatchIndices(b.dir)
	if err != nil {
		return err
	}
	for _, idx := range indices {
		path := filepath.Join(b.dir, fmt.Sprintf("segments_%04d.json", idx))
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove batch %d: %w", idx, err)
		}
	}
	b.buffer = b.buffer[:0]
	b.nextIndex = 0
	return nil
}

func listBatchIndices(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read batch directory: %w", err)
	}

	var indices []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := batchFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices, nil
}
