package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateJob inserts a new pending job with one pending item per file path
// and returns the job ID.
//
// The insert and the bulk item creation run in one transaction. If another
// non-terminal job exists, the one-active-job index rejects the insert and
// CreateJob returns ErrActiveJobExists without side effects.
func (s *Store) CreateJob(ctx context.Context, commitSHA string, paths []string) (int64, error) {
	if commitSHA == "" {
		return 0, errors.New("commit SHA is required")
	}
	if len(paths) == 0 {
		return 0, errors.New("at least one file path is required")
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ts := now()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO sync_jobs (commit_sha, status, total_items, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		commitSHA, StatusPending, len(paths), ts, ts,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrActiveJobExists
		}
		return 0, fmt.Errorf("failed to create job: %w", err)
	}

	jobID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read job id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sync_job_items (job_id, file_path, status, updated_at)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare item insert: %w", err)
	}
	defer stmt.Close()

	for _, path := range paths {
		if _, err := stmt.ExecContext(ctx, jobID, path, ItemPending, ts); err != nil {
			return 0, fmt.Errorf("failed to create item for %s: %w", path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit job creation: %w", err)
	}

	return jobID, nil
}

// GetJob fetches a job by ID. Returns ErrNotFound if it doesn't exist.
func (s *Store) GetJob(ctx context.Context, jobID int64) (*Job, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, commit_sha, status, total_items, completed_items, failed_items,
		       rate_limit_reset_at, error_message, created_at, updated_at
		FROM sync_jobs WHERE id = ?`, jobID)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

// GetResumableJob returns the most recent non-terminal job, or (nil, nil)
// when no job is resumable. Pending counts as resumable so a job stranded
// between creation and pickup can still be driven to completion.
func (s *Store) GetResumableJob(ctx context.Context) (*Job, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, commit_sha, status, total_items, completed_items, failed_items,
		       rate_limit_reset_at, error_message, created_at, updated_at
		FROM sync_jobs
		WHERE status IN (?, ?, ?)
		ORDER BY id DESC LIMIT 1`, StatusPending, StatusRunning, StatusPaused)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// ListJobs returns the most recent jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, commit_sha, status, total_items, completed_items, failed_items,
		       rate_limit_reset_at, error_message, created_at, updated_at
		FROM sync_jobs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// SetJobStatus updates a job's status. errorMessage overwrites the stored
// summary when non-empty; resetAt records when a paused job may resume and
// is cleared whenever the job is not paused.
func (s *Store) SetJobStatus(ctx context.Context, jobID int64, status string, errorMessage string, resetAt *time.Time) error {
	var resetStr sql.NullString
	if status == StatusPaused && resetAt != nil {
		resetStr = sql.NullString{String: resetAt.UTC().Format(time.RFC3339), Valid: true}
	}

	var errStr sql.NullString
	if errorMessage != "" {
		errStr = sql.NullString{String: errorMessage, Valid: true}
	}

	res, err := s.conn.ExecContext(ctx, `
		UPDATE sync_jobs
		SET status = ?,
		    error_message = COALESCE(?, error_message),
		    rate_limit_reset_at = ?,
		    updated_at = ?
		WHERE id = ?`,
		status, errStr, resetStr, now(), jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to set job %d status: %w", jobID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateJobCounts recomputes the cached item counts from sync_job_items.
// Called after every batch so the job row always reflects item state.
func (s *Store) UpdateJobCounts(ctx context.Context, jobID int64) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE sync_jobs SET
			completed_items = (SELECT COUNT(*) FROM sync_job_items WHERE job_id = ? AND status = ?),
			failed_items    = (SELECT COUNT(*) FROM sync_job_items WHERE job_id = ? AND status = ?),
			updated_at = ?
		WHERE id = ?`,
		jobID, ItemSuccess, jobID, ItemFailed, now(), jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job %d counts: %w", jobID, err)
	}
	return nil
}

// LastSyncSHA returns the last fully-synced commit SHA, or "" if no sync
// has completed yet.
func (s *Store) LastSyncSHA(ctx context.Context) (string, error) {
	var sha string
	err := s.conn.QueryRowContext(ctx,
		"SELECT last_commit_sha FROM sync_state WHERE id = 1").Scan(&sha)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read last sync SHA: %w", err)
	}
	return sha, nil
}

// SetLastSyncSHA records the commit SHA of the last completed sync.
func (s *Store) SetLastSyncSHA(ctx context.Context, sha string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO sync_state (id, last_commit_sha, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_commit_sha = excluded.last_commit_sha,
			updated_at = excluded.updated_at`,
		sha, now(),
	)
	if err != nil {
		return fmt.Errorf("failed to record last sync SHA: %w", err)
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var resetAt, errMsg sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&job.ID,
		&job.CommitSHA,
		&job.Status,
		&job.TotalItems,
		&job.CompletedItems,
		&job.FailedItems,
		&resetAt,
		&errMsg,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	if resetAt.Valid {
		if t, err := time.Parse(time.RFC3339, resetAt.String); err == nil {
			job.RateLimitResetAt = &t
		}
	}
	job.ErrorMessage = errMsg.String
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		job.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		job.UpdatedAt = t
	}

	return &job, nil
}
