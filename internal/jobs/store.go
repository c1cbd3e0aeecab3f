package jobs

import "context"

// Store persists job states so a restarted process picks up where the
// queue left off.
type Store interface {
	LoadJobs(ctx context.Context) ([]*Job, error)
	UpsertJob(ctx context.Context, job *Job) error
	DeleteJob(ctx context.Context, jobID string) error
	// DeleteJobData removes auxiliary data (run reports, cached scan
	// metadata) for a job.
	DeleteJobData(ctx context.Context, jobID string) error
}
