package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pranot/segtrans/pkg/file"
	"github.com/pranot/segtrans/pkg/log"
)

// Stage identifies which processing stage a checkpoint belongs to.
type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageTranslate  Stage = "translate"
)

// Record is the durable progress state for one (job, stage) pair.
// Exactly one live record exists per pair; it is overwritten atomically
// on each save and deleted when the stage completes.
type Record struct {
	JobID              string    `json:"job_id"`
	Stage              Stage     `json:"stage"`
	LastCompletedIndex int       `json:"last_completed_index"`
	LastTimestamp      float64   `json:"last_timestamp"`
	TotalExpected      int       `json:"total_expected"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	ThroughputEstimate float64   `json:"throughput_estimate"`
	FailedIDs          []int     `json:"failed_ids,omitempty"`
}

// Store persists checkpoint records as JSON files under a job
// directory. Saves are atomic; concurrent saves are serialized.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates the checkpoint directory if needed. Failure to
// create it is fatal for the job.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(jobID string, stage Stage) string {
	return filepath.Join(s.dir, fmt.Sprintf("checkpoint_%s_%s.json", jobID, stage))
}

// Save writes the record atomically. An I/O failure here is a
// durability risk, not a correctness one; callers may continue and
// retry on the next interval.
func (s *Store) Save(record Record) error {
	if record.JobID == "" {
		return fmt.Errorf("checkpoint record has empty job id")
	}
	record.UpdatedAt = time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = record.UpdatedAt
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := file.WriteAtomic(s.path(record.JobID, record.Stage), data, 0644); err != nil {
		return fmt.Errorf("save checkpoint %s/%s: %w", record.JobID, record.Stage, err)
	}
	return nil
}

// Load returns found=false when no record exists. A record that exists
// but cannot be parsed is quarantined and reported as not found, so a
// stale corrupt file never blocks a fresh start.
func (s *Store) Load(jobID string, stage Stage) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(jobID, stage)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("read checkpoint %s/%s: %w", jobID, stage, err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		quarantined, qerr := file.Quarantine(path, fmt.Sprintf("corrupt-%d", time.Now().Unix()))
		if qerr != nil {
			return Record{}, false, fmt.Errorf("quarantine corrupt checkpoint: %w", qerr)
		}
		log.Warn("Corrupt checkpoint %s quarantined as %s", path, quarantined)
		return Record{}, false, nil
	}
	return record, true, nil
}

// Delete removes the record once a stage completes. Missing records
// are not an error.
func (s *Store) Delete(jobID string, stage Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(jobID, stage))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete checkpoint %s/%s: %w", jobID, stage, err)
	}
	return nil
}

// jobHashPrefix bounds how much of the input file feeds the job hash.
// A content-stable prefix is enough to tell inputs apart without
// reading multi-gigabyte media end to end.
const jobHashPrefix = 1 << 20

// JobID derives a stable job identity from the input file's leading
// content plus the parameters that shape the output. Re-running the
// same input with the same parameters finds the same checkpoint;
// changing a parameter starts fresh.
func JobID(inputPath string, params ...string) (string, error) {
	f, err := os.Open(inputPath)
	if err != nil {
		return "", fmt.Errorf("open input for job id: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyN(h, f, jobHashPrefix); err != nil && err != io.EOF {
		return "", fmt.Errorf("hash input prefix: %w", err)
	}
	for _, p := range params {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}

	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:8]), nil
}
