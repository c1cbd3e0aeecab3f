package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// TriggerInfo describes where a cron schedule sits relative to a
// reference time, for status reporting.
type TriggerInfo struct {
	Expression string
	Next       time.Time
	Last       time.Time

	TimeSinceLast time.Duration
	TimeUntilNext time.Duration
}

var parser = cron.NewParser(cron.Minute | cron.Hour |
	cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Parse validates a standard five-field cron expression (descriptors
// like @hourly allowed) and returns its schedule.
func Parse(expr string) (cron.Schedule, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// GetTriggerInfo reports the previous and next trigger of expr around
// refTime. Last stays zero when no trigger occurred within the past year.
func GetTriggerInfo(expr string, refTime time.Time) (*TriggerInfo, error) {
	schedule, err := Parse(expr)
	if err != nil {
		return nil, err
	}

	info := &TriggerInfo{
		Expression: expr,
		Next:       schedule.Next(refTime),
	}
	info.TimeUntilNext = info.Next.Sub(refTime)

	// Step back until a trigger at or before refTime is found.
	for back := time.Hour; back <= 366*24*time.Hour; back *= 2 {
		candidate := schedule.Next(refTime.Add(-back))
		for !candidate.IsZero() && candidate.Before(refTime) {
			info.Last = candidate
			next := schedule.Next(candidate)
			if !next.After(candidate) {
				break
			}
			candidate = next
		}
		if !info.Last.IsZero() {
			break
		}
	}

	if !info.Last.IsZero() {
		info.TimeSinceLast = refTime.Sub(info.Last)
	}
	return info, nil
}
