package jobs

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   Payload
}

// Payload names the input files for one processing job. SubtitleFile
// is optional; when a source-language subtitle already exists the
// transcription stage is skipped. NFOFile is optional media metadata
// used to build translation context.
type Payload struct {
	MediaFile    string `json:"media_file"`
	SubtitleFile string `json:"subtitle_file,omitempty"`
	NFOFile      string `json:"nfo_file,omitempty"`
}

type Job struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	DedupeKey string    `json:"dedupe_key"`
	Payload   Payload   `json:"payload"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
