package segment

import (
	"errors"
	"fmt"
)

// Word is a single recognized word with its timing inside a segment.
type Word struct {
	Text        string  `json:"text"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability"`
}

// Segment is one timed span of source content and the text produced
// for it by a processing stage. IDs are 0-based and monotonic within
// a job.
type Segment struct {
	ID         int     `json:"id"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Words      []Word  `json:"words,omitempty"`
}

// Duration returns the covered span in seconds.
func (s Segment) Duration() float64 {
	return s.EndTime - s.StartTime
}

var ErrInvalidTiming = errors.New("segment start time after end time")

// New builds a segment and enforces the timing invariant.
func New(id int, start, end float64, text string, confidence float64) (Segment, error) {
	if start > end {
		return Segment{}, fmt.Errorf("segment %d: %w (start=%.3f end=%.3f)",
			id, ErrInvalidTiming, start, end)
	}
	return Segment{
		ID:         id,
		StartTime:  start,
		EndTime:    end,
		Text:       text,
		Confidence: confidence,
	}, nil
}

// Overlap describes two adjacent segments whose time ranges intersect.
// Overlaps are reported as warnings, never as hard failures.
type Overlap struct {
	PrevID int
	NextID int
	Amount float64
}

func (o Overlap) String() string {
	return fmt.Sprintf("segment %d overlaps segment %d by %.3fs",
		o.NextID, o.PrevID, o.Amount)
}

// ValidateSequence checks that IDs strictly increase and reports any
// time overlaps between consecutive segments. Gaps are tolerated.
func ValidateSequence(segments []Segment) ([]Overlap, error) {
	var overlaps []Overlap
	for i := 1; i < len(segments); i++ {
		prev, cur := segments[i-1], segments[i]
		if cur.ID <= prev.ID {
			return nil, fmt.Errorf("segment ids not strictly increasing: %d after %d",
				cur.ID, prev.ID)
		}
		if cur.StartTime < prev.EndTime {
			overlaps = append(overlaps, Overlap{
				PrevID: prev.ID,
				NextID: cur.ID,
				Amount: prev.EndTime - cur.StartTime,
			})
		}
	}
	return overlaps, nil
}

// TotalDuration sums the covered seconds of all segments.
func TotalDuration(segments []Segment) float64 {
	var total float64
	for _, s := range segments {
		total += s.Duration()
	}
	return total
}
