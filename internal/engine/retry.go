package engine

import (
	"context"
	"fmt"
)

// RetryFailed resets a job's eligible failed items back to pending and
// re-runs the job. Items that have already failed maxItemRetries times are
// left alone; use the administrative reset commands to force those.
//
// This is the only path that moves items backward from a terminal state
// automatically.
func (e *Engine) RetryFailed(ctx context.Context, jobID int64) (*Result, error) {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("loading job %d: %w", jobID, err)
	}

	n, err := e.store.ResetFailedItems(ctx, jobID, maxItemRetries)
	if err != nil {
		return nil, fmt.Errorf("resetting failed items: %w", err)
	}
	if n == 0 {
		return &Result{
			Success:   true,
			Status:    ResultNothingToRetry,
			JobID:     job.ID,
			CommitSHA: job.CommitSHA,
			Total:     job.TotalItems,
			Completed: job.CompletedItems,
			Failed:    job.FailedItems,
			Message:   fmt.Sprintf("Job %d has no retryable failed items", jobID),
		}, nil
	}

	e.logger.Printf("Retrying %d failed items for job %d", n, jobID)
	return e.runJob(ctx, job)
}
