package store

import "time"

// Job statuses persisted in sync_jobs.status.
//
// A job that finished with failed or skipped items stays StatusCompleted in
// the database with a non-empty ErrorMessage; the engine reports that
// combination to callers as "completed_with_errors".
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
)

// Item statuses persisted in sync_job_items.status.
const (
	ItemPending = "pending"
	ItemSuccess = "success"
	ItemFailed  = "failed"
	ItemSkipped = "skipped"
)

// Job is one synchronization run over a commit's file set.
type Job struct {
	ID               int64
	CommitSHA        string
	Status           string
	TotalItems       int
	CompletedItems   int
	FailedItems      int
	RateLimitResetAt *time.Time
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Resumable reports whether the engine may pick this job up.
func (j *Job) Resumable() bool {
	return j.Status == StatusPending || j.Status == StatusRunning || j.Status == StatusPaused
}

// Item tracks one file within a job.
type Item struct {
	ID           int64
	JobID        int64
	FilePath     string
	Status       string
	RetryCount   int
	ErrorMessage string
	UpdatedAt    time.Time
}

// Document is one synced markdown document, keyed by repository file path.
type Document struct {
	FilePath    string
	Title       string
	Category    string
	Description string
	Content     string
	Tags        []string
	CommitSHA   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
