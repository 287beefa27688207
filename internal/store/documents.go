package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UpsertDocument inserts or updates a document keyed by file path.
//
// The upsert is idempotent: re-processing the same path after a partial
// failure or retry converges to the same row. Tags are stored as a JSON
// array string, matching how the engine hands them over.
func (s *Store) UpsertDocument(ctx context.Context, doc *Document) error {
	if doc.FilePath == "" {
		return errors.New("document file path is required")
	}
	if doc.Title == "" {
		return errors.New("document title is required")
	}

	tags := doc.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	var category, description sql.NullString
	if doc.Category != "" {
		category = sql.NullString{String: doc.Category, Valid: true}
	}
	if doc.Description != "" {
		description = sql.NullString{String: doc.Description, Valid: true}
	}

	ts := now()
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO documents (
			file_path, title, category, description, content, tags,
			commit_sha, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			title = excluded.title,
			category = excluded.category,
			description = excluded.description,
			content = excluded.content,
			tags = excluded.tags,
			commit_sha = excluded.commit_sha,
			updated_at = excluded.updated_at`,
		doc.FilePath, doc.Title, category, description, doc.Content,
		string(tagsJSON), doc.CommitSHA, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", doc.FilePath, err)
	}

	return nil
}

// GetDocument fetches one document by file path.
// Returns ErrNotFound if it doesn't exist.
func (s *Store) GetDocument(ctx context.Context, filePath string) (*Document, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT file_path, title, category, description, content, tags,
		       commit_sha, created_at, updated_at
		FROM documents WHERE file_path = ?`, filePath)

	var doc Document
	var category, description sql.NullString
	var tagsJSON, createdAt, updatedAt string

	err := row.Scan(
		&doc.FilePath,
		&doc.Title,
		&category,
		&description,
		&doc.Content,
		&tagsJSON,
		&doc.CommitSHA,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}

	doc.Category = category.String
	doc.Description = description.String
	if tagsJSON != "" && tagsJSON != "null" {
		if err := json.Unmarshal([]byte(tagsJSON), &doc.Tags); err != nil {
			return nil, fmt.Errorf("failed to parse tags for %s: %w", filePath, err)
		}
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		doc.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		doc.UpdatedAt = t
	}

	return &doc, nil
}

// DeleteDocumentsNotIn removes every document whose path is absent from
// keep, returning how many were deleted. This is the reconciliation step
// that drops documents for files deleted upstream.
//
// An empty keep-set deletes nothing: reconciliation only ever runs after a
// completed job, and a completed job always has at least one recorded path
// or no reconciliation call at all.
func (s *Store) DeleteDocumentsNotIn(ctx context.Context, keep []string) (int64, error) {
	if len(keep) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keep)), ",")
	args := make([]any, len(keep))
	for i, p := range keep {
		args[i] = p
	}

	res, err := s.conn.ExecContext(ctx,
		"DELETE FROM documents WHERE file_path NOT IN ("+placeholders+")", args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale documents: %w", err)
	}
	return res.RowsAffected()
}

// DocumentCount returns the total number of synced documents.
func (s *Store) DocumentCount(ctx context.Context) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}
