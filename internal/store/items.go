package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PendingItems returns up to limit pending items for a job, in insertion
// order. Batch iteration over this query is the engine's only work source,
// so the ordering here is the processing order guarantee.
func (s *Store) PendingItems(ctx context.Context, jobID int64, limit int) ([]*Item, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, job_id, file_path, status, retry_count, error_message, updated_at
		FROM sync_job_items
		WHERE job_id = ? AND status = ?
		ORDER BY id ASC LIMIT ?`, jobID, ItemPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// UpdateItem records the outcome of one processing attempt.
//
// Moving to failed increments retry_count; every other transition leaves it
// untouched. errorMessage replaces the stored message ("" clears it).
func (s *Store) UpdateItem(ctx context.Context, itemID int64, status string, errorMessage string) error {
	var errStr sql.NullString
	if errorMessage != "" {
		errStr = sql.NullString{String: errorMessage, Valid: true}
	}

	res, err := s.conn.ExecContext(ctx, `
		UPDATE sync_job_items
		SET status = ?,
		    error_message = ?,
		    retry_count = retry_count + (CASE WHEN ? = 'failed' THEN 1 ELSE 0 END),
		    updated_at = ?
		WHERE id = ?`,
		status, errStr, status, now(), itemID,
	)
	if err != nil {
		return fmt.Errorf("failed to update item %d: %w", itemID, err)
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

// SkippedCount returns how many of a job's items are skipped.
func (s *Store) SkippedCount(ctx context.Context, jobID int64) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sync_job_items WHERE job_id = ? AND status = ?",
		jobID, ItemSkipped).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count skipped items: %w", err)
	}
	return count, nil
}

// AllSuccessfulPaths returns every file path marked success across the
// job's full history, including batches from earlier invocations. This is
// the keep-set for reconciliation.
func (s *Store) AllSuccessfulPaths(ctx context.Context, jobID int64) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT file_path FROM sync_job_items WHERE job_id = ? AND status = ? ORDER BY id ASC",
		jobID, ItemSuccess)
	if err != nil {
		return nil, fmt.Errorf("failed to query successful paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// ResetFailedItems moves failed items with retry_count below maxRetries back
// to pending and returns how many were reset. This is the retry controller's
// eligibility rule; items at or past the ceiling stay failed.
func (s *Store) ResetFailedItems(ctx context.Context, jobID int64, maxRetries int) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE sync_job_items
		SET status = ?, error_message = NULL, updated_at = ?
		WHERE job_id = ? AND status = ? AND retry_count < ?`,
		ItemPending, now(), jobID, ItemFailed, maxRetries,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed items: %w", err)
	}
	return res.RowsAffected()
}

// ResetAllFailed is the administrative bulk reset: every failed item (and
// optionally every skipped item) returns to pending with a zeroed retry
// count, regardless of the retry ceiling.
func (s *Store) ResetAllFailed(ctx context.Context, jobID int64, includeSkipped bool) (int64, error) {
	statuses := []string{ItemFailed}
	if includeSkipped {
		statuses = append(statuses, ItemSkipped)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := []any{ItemPending, now(), jobID}
	for _, st := range statuses {
		args = append(args, st)
	}

	res, err := s.conn.ExecContext(ctx, `
		UPDATE sync_job_items
		SET status = ?, retry_count = 0, error_message = NULL, updated_at = ?
		WHERE job_id = ? AND status IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk-reset items: %w", err)
	}
	return res.RowsAffected()
}

// ResetItem moves a single failed or skipped item back to pending.
// Returns false when the item doesn't exist or isn't eligible.
func (s *Store) ResetItem(ctx context.Context, itemID int64) (bool, error) {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE sync_job_items
		SET status = ?, retry_count = 0, error_message = NULL, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		ItemPending, now(), itemID, ItemFailed, ItemSkipped,
	)
	if err != nil {
		return false, fmt.Errorf("failed to reset item %d: %w", itemID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SkipItem marks a pending or failed item skipped with an optional reason.
// Returns false when the item doesn't exist or is already terminal.
func (s *Store) SkipItem(ctx context.Context, itemID int64, reason string) (bool, error) {
	if reason == "" {
		reason = "Manually skipped"
	}

	res, err := s.conn.ExecContext(ctx, `
		UPDATE sync_job_items
		SET status = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		ItemSkipped, reason, now(), itemID, ItemPending, ItemFailed,
	)
	if err != nil {
		return false, fmt.Errorf("failed to skip item %d: %w", itemID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteItem removes an item's tracking record entirely.
// Returns false when the item doesn't exist.
func (s *Store) DeleteItem(ctx context.Context, itemID int64) (bool, error) {
	res, err := s.conn.ExecContext(ctx,
		"DELETE FROM sync_job_items WHERE id = ?", itemID)
	if err != nil {
		return false, fmt.Errorf("failed to delete item %d: %w", itemID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListFailedItems returns failed items, newest first. jobID of 0 means all
// jobs.
func (s *Store) ListFailedItems(ctx context.Context, jobID int64, limit int) ([]*Item, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, job_id, file_path, status, retry_count, error_message, updated_at
		FROM sync_job_items
		WHERE status = ?`
	args := []any{ItemFailed}

	if jobID > 0 {
		query += " AND job_id = ?"
		args = append(args, jobID)
	}
	query += " ORDER BY updated_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// GetItem fetches one item by ID. Returns ErrNotFound if it doesn't exist.
func (s *Store) GetItem(ctx context.Context, itemID int64) (*Item, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, job_id, file_path, status, retry_count, error_message, updated_at
		FROM sync_job_items WHERE id = ?`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query item %d: %w", itemID, err)
	}
	defer rows.Close()

	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return items[0], nil
}

func scanItems(rows *sql.Rows) ([]*Item, error) {
	var items []*Item
	for rows.Next() {
		var item Item
		var errMsg sql.NullString
		var updatedAt string

		err := rows.Scan(
			&item.ID,
			&item.JobID,
			&item.FilePath,
			&item.Status,
			&item.RetryCount,
			&errMsg,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}

		item.ErrorMessage = errMsg.String
		if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			item.UpdatedAt = t
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Item{}
	}
	return items, nil
}
