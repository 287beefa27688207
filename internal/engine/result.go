package engine

import "time"

// Result statuses reported to callers. ResultCompletedWithErrors is a
// reporting-level distinction: the job row itself is stored as completed
// with a non-empty error message.
const (
	ResultCompleted           = "completed"
	ResultCompletedWithErrors = "completed_with_errors"
	ResultPaused              = "paused"
	ResultSkipped             = "skipped"
	ResultNothingToRetry      = "nothing_to_retry"
)

// Result summarizes one engine invocation.
type Result struct {
	Success          bool       `json:"success"`
	Status           string     `json:"status"`
	JobID            int64      `json:"job_id,omitempty"`
	CommitSHA        string     `json:"commit_sha,omitempty"`
	Total            int        `json:"total_items"`
	Completed        int        `json:"completed_items"`
	Failed           int        `json:"failed_items"`
	Skipped          int        `json:"skipped_items"`
	Pending          int        `json:"pending_items"`
	RateLimitResetAt *time.Time `json:"rate_limit_reset_at,omitempty"`
	Message          string     `json:"message"`
}
