package persistence

import "time"

// RunReport is the persisted summary of one completed stage run,
// queryable after the work directory has been cleaned up.
type RunReport struct {
	ID                 int64     `json:"id"`
	JobID              string    `json:"job_id"`
	Stage              string    `json:"stage"`
	SegmentsProcessed  int       `json:"segments_processed"`
	CacheHits          int       `json:"cache_hits"`
	CheapCount         int       `json:"cheap_count"`
	ExpensiveCount     int       `json:"expensive_count"`
	CostEstimate       float64   `json:"cost_estimate"`
	ElapsedSeconds     float64   `json:"elapsed_seconds"`
	FailedSegments     []int     `json:"failed_segments"`
	DurabilityWarnings int       `json:"durability_warnings"`
	CreatedAt          time.Time `json:"created_at"`
}

// MediaMetaCache caches the subtitle-stream probe of one media file so
// periodic library scans do not re-probe unchanged files.
type MediaMetaCache struct {
	MediaPath         string
	TargetLanguage    string
	ExternalLanguages []string
	EmbeddedLanguages []string
	HasTargetExternal bool
	HasTargetEmbedded bool
	ExpiresAt         time.Time
	UpdatedAt         time.Time
}
