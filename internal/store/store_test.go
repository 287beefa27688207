package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	return s
}

func createTestJob(t *testing.T, s *Store, sha string, paths []string) int64 {
	t.Helper()

	jobID, err := s.CreateJob(context.Background(), sha, paths)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	return jobID
}

func TestCreateJob(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	jobID := createTestJob(t, s, "abc123", []string{"content/a.md", "content/b.md"})

	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Status != StatusPending {
		t.Errorf("status = %q, want pending", job.Status)
	}
	if job.CommitSHA != "abc123" {
		t.Errorf("commit SHA = %q, want abc123", job.CommitSHA)
	}
	if job.TotalItems != 2 {
		t.Errorf("total items = %d, want 2", job.TotalItems)
	}

	items, err := s.PendingItems(ctx, jobID, 10)
	if err != nil {
		t.Fatalf("PendingItems failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 pending items, got %d", len(items))
	}
	if items[0].FilePath != "content/a.md" || items[1].FilePath != "content/b.md" {
		t.Errorf("items out of insertion order: %v, %v", items[0].FilePath, items[1].FilePath)
	}
}

func TestCreateJobRejectsSecondActive(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	createTestJob(t, s, "abc123", []string{"content/a.md"})

	_, err := s.CreateJob(ctx, "def456", []string{"content/b.md"})
	if !errors.Is(err, ErrActiveJobExists) {
		t.Errorf("expected ErrActiveJobExists, got %v", err)
	}
}

func TestCreateJobAllowedAfterCompletion(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first := createTestJob(t, s, "abc123", []string{"content/a.md"})
	if err := s.SetJobStatus(ctx, first, StatusCompleted, "", nil); err != nil {
		t.Fatalf("SetJobStatus failed: %v", err)
	}

	if _, err := s.CreateJob(ctx, "def456", []string{"content/b.md"}); err != nil {
		t.Errorf("expected new job after completion, got %v", err)
	}
}

func TestGetResumableJob(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	job, err := s.GetResumableJob(ctx)
	if err != nil {
		t.Fatalf("GetResumableJob failed: %v", err)
	}
	if job != nil {
		t.Fatalf("expected no resumable job, got %+v", job)
	}

	jobID := createTestJob(t, s, "abc123", []string{"content/a.md"})

	// Freshly created jobs are resumable before first pickup.
	job, err = s.GetResumableJob(ctx)
	if err != nil {
		t.Fatalf("GetResumableJob failed: %v", err)
	}
	if job == nil || job.ID != jobID || job.Status != StatusPending {
		t.Errorf("expected pending job %d to be resumable, got %+v", jobID, job)
	}

	if err := s.SetJobStatus(ctx, jobID, StatusPaused, "", nil); err != nil {
		t.Fatalf("SetJobStatus failed: %v", err)
	}
	job, err = s.GetResumableJob(ctx)
	if err != nil {
		t.Fatalf("GetResumableJob failed: %v", err)
	}
	if job == nil || job.ID != jobID {
		t.Errorf("expected paused job %d to be resumable, got %+v", jobID, job)
	}
}

func TestSetJobStatusResetTime(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	jobID := createTestJob(t, s, "abc123", []string{"content/a.md"})

	resetAt := time.Now().UTC().Add(45 * time.Minute).Truncate(time.Second)
	if err := s.SetJobStatus(ctx, jobID, StatusPaused, "", &resetAt); err != nil {
		t.Fatalf("SetJobStatus failed: %v", err)
	}

	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.RateLimitResetAt == nil || !job.RateLimitResetAt.Equal(resetAt) {
		t.Errorf("reset time = %v, want %v", job.RateLimitResetAt, resetAt)
	}

	// Returning to running clears the reset time.
	if err := s.SetJobStatus(ctx, jobID, StatusRunning, "", nil); err != nil {
		t.Fatalf("SetJobStatus failed: %v", err)
	}
	job, err = s.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.RateLimitResetAt != nil {
		t.Errorf("reset time should be cleared when not paused, got %v", job.RateLimitResetAt)
	}
}

func TestUpdateItemRetryCount(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	jobID := createTestJob(t, s, "abc123", []string{"content/a.md"})
	items, _ := s.PendingItems(ctx, jobID, 1)
	itemID := items[0].ID

	for i := 1; i <= 3; i++ {
		if err := s.UpdateItem(ctx, itemID, ItemFailed, "boom"); err != nil {
			t.Fatalf("UpdateItem failed: %v", err)
		}
		item, err := s.GetItem(ctx, itemID)
		if err != nil {
			t.Fatalf("GetItem failed: %v", err)
		}
		if item.RetryCount != i {
			t.Errorf("retry count after %d failures = %d", i, item.RetryCount)
		}
	}

	// Success does not touch retry_count.
	if err := s.UpdateItem(ctx, itemID, ItemSuccess, ""); err != nil {
		t.Fatalf("UpdateItem failed: %v", err)
	}
	item, _ := s.GetItem(ctx, itemID)
	if item.RetryCount != 3 {
		t.Errorf("retry count changed on success: %d", item.RetryCount)
	}
	if item.ErrorMessage != "" {
		t.Errorf("error message not cleared on success: %q", item.ErrorMessage)
	}
}

func TestUpdateJobCounts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	jobID := createTestJob(t, s, "abc123", []string{"content/a.md", "content/b.md", "content/c.md"})
	items, _ := s.PendingItems(ctx, jobID, 10)

	s.UpdateItem(ctx, items[0].ID, ItemSuccess, "")
	s.UpdateItem(ctx, items[1].ID, ItemFailed, "boom")

	if err := s.UpdateJobCounts(ctx, jobID); err != nil {
		t.Fatalf("UpdateJobCounts failed: %v", err)
	}

	job, _ := s.GetJob(ctx, jobID)
	if job.CompletedItems != 1 || job.FailedItems != 1 {
		t.Errorf("counts = completed %d, failed %d; want 1, 1", job.CompletedItems, job.FailedItems)
	}
}

func TestResetFailedItemsHonorsCeiling(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	jobID := createTestJob(t, s, "abc123", []string{"content/a.md", "content/b.md"})
	items, _ := s.PendingItems(ctx, jobID, 10)

	// First item fails once, second fails three times (at the ceiling).
	s.UpdateItem(ctx, items[0].ID, ItemFailed, "once")
	for i := 0; i < 3; i++ {
		s.UpdateItem(ctx, items[1].ID, ItemFailed, "again")
	}

	n, err := s.ResetFailedItems(ctx, jobID, 3)
	if err != nil {
		t.Fatalf("ResetFailedItems failed: %v", err)
	}
	if n != 1 {
		t.Errorf("reset %d items, want 1", n)
	}

	pending, _ := s.PendingItems(ctx, jobID, 10)
	if len(pending) != 1 || pending[0].ID != items[0].ID {
		t.Errorf("wrong item reset: %+v", pending)
	}
}

func TestResetAllFailed(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	jobID := createTestJob(t, s, "abc123", []string{"content/a.md", "content/b.md", "content/c.md"})
	items, _ := s.PendingItems(ctx, jobID, 10)

	for i := 0; i < 5; i++ {
		s.UpdateItem(ctx, items[0].ID, ItemFailed, "poison")
	}
	s.UpdateItem(ctx, items[1].ID, ItemSkipped, "gave up")
	s.UpdateItem(ctx, items[2].ID, ItemSuccess, "")

	n, err := s.ResetAllFailed(ctx, jobID, false)
	if err != nil {
		t.Fatalf("ResetAllFailed failed: %v", err)
	}
	if n != 1 {
		t.Errorf("reset %d items without skipped, want 1", n)
	}

	item, _ := s.GetItem(ctx, items[0].ID)
	if item.Status != ItemPending || item.RetryCount != 0 {
		t.Errorf("poison item not fully reset: %+v", item)
	}

	n, err = s.ResetAllFailed(ctx, jobID, true)
	if err != nil {
		t.Fatalf("ResetAllFailed failed: %v", err)
	}
	if n != 1 {
		t.Errorf("reset %d skipped items, want 1", n)
	}
}

func TestResetSkipDeleteItem(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	jobID := createTestJob(t, s, "abc123", []string{"content/a.md", "content/b.md"})
	items, _ := s.PendingItems(ctx, jobID, 10)

	ok, err := s.SkipItem(ctx, items[0].ID, "bad encoding")
	if err != nil || !ok {
		t.Fatalf("SkipItem = %v, %v", ok, err)
	}
	item, _ := s.GetItem(ctx, items[0].ID)
	if item.Status != ItemSkipped || item.ErrorMessage != "bad encoding" {
		t.Errorf("unexpected skipped item: %+v", item)
	}

	// Skipping again fails: already terminal.
	ok, _ = s.SkipItem(ctx, items[0].ID, "")
	if ok {
		t.Error("expected skip of skipped item to report false")
	}

	ok, err = s.ResetItem(ctx, items[0].ID)
	if err != nil || !ok {
		t.Fatalf("ResetItem = %v, %v", ok, err)
	}
	item, _ = s.GetItem(ctx, items[0].ID)
	if item.Status != ItemPending {
		t.Errorf("item not reset: %+v", item)
	}

	// Pending items are not resettable.
	ok, _ = s.ResetItem(ctx, items[1].ID)
	if ok {
		t.Error("expected reset of pending item to report false")
	}

	ok, err = s.DeleteItem(ctx, items[0].ID)
	if err != nil || !ok {
		t.Fatalf("DeleteItem = %v, %v", ok, err)
	}
	if _, err := s.GetItem(ctx, items[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestListFailedItems(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	jobID := createTestJob(t, s, "abc123", []string{"content/a.md", "content/b.md"})
	items, _ := s.PendingItems(ctx, jobID, 10)
	s.UpdateItem(ctx, items[0].ID, ItemFailed, "boom")

	failed, err := s.ListFailedItems(ctx, 0, 100)
	if err != nil {
		t.Fatalf("ListFailedItems failed: %v", err)
	}
	if len(failed) != 1 || failed[0].FilePath != "content/a.md" {
		t.Errorf("unexpected failed items: %+v", failed)
	}

	failed, err = s.ListFailedItems(ctx, jobID+1, 100)
	if err != nil {
		t.Fatalf("ListFailedItems failed: %v", err)
	}
	if len(failed) != 0 {
		t.Errorf("expected no items for other job, got %d", len(failed))
	}
}

func TestAllSuccessfulPaths(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	jobID := createTestJob(t, s, "abc123", []string{"content/a.md", "content/b.md", "content/c.md"})
	items, _ := s.PendingItems(ctx, jobID, 10)

	s.UpdateItem(ctx, items[0].ID, ItemSuccess, "")
	s.UpdateItem(ctx, items[2].ID, ItemSuccess, "")

	paths, err := s.AllSuccessfulPaths(ctx, jobID)
	if err != nil {
		t.Fatalf("AllSuccessfulPaths failed: %v", err)
	}
	if len(paths) != 2 || paths[0] != "content/a.md" || paths[1] != "content/c.md" {
		t.Errorf("paths = %v", paths)
	}
}

func TestUpsertDocumentIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	doc := &Document{
		FilePath:  "content/a.md",
		Title:     "A",
		Category:  "systems",
		Content:   "body",
		Tags:      []string{"x", "y"},
		CommitSHA: "abc123",
	}

	for i := 0; i < 2; i++ {
		if err := s.UpsertDocument(ctx, doc); err != nil {
			t.Fatalf("UpsertDocument failed: %v", err)
		}
	}

	count, _ := s.DocumentCount(ctx)
	if count != 1 {
		t.Errorf("document count = %d, want 1", count)
	}

	doc.Title = "A v2"
	doc.CommitSHA = "def456"
	if err := s.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("UpsertDocument failed: %v", err)
	}

	got, err := s.GetDocument(ctx, "content/a.md")
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if got.Title != "A v2" || got.CommitSHA != "def456" {
		t.Errorf("document not updated: %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "x" {
		t.Errorf("tags = %v", got.Tags)
	}
}

func TestDeleteDocumentsNotIn(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, p := range []string{"content/a.md", "content/b.md", "content/c.md"} {
		doc := &Document{FilePath: p, Title: p, Content: "x", CommitSHA: "abc"}
		if err := s.UpsertDocument(ctx, doc); err != nil {
			t.Fatalf("UpsertDocument failed: %v", err)
		}
	}

	deleted, err := s.DeleteDocumentsNotIn(ctx, []string{"content/a.md", "content/c.md"})
	if err != nil {
		t.Fatalf("DeleteDocumentsNotIn failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if _, err := s.GetDocument(ctx, "content/b.md"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected b.md gone, got %v", err)
	}

	// Empty keep-set is a no-op, never a mass delete.
	deleted, err = s.DeleteDocumentsNotIn(ctx, nil)
	if err != nil {
		t.Fatalf("DeleteDocumentsNotIn failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("empty keep-set deleted %d documents", deleted)
	}
}

func TestLastSyncSHA(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	sha, err := s.LastSyncSHA(ctx)
	if err != nil {
		t.Fatalf("LastSyncSHA failed: %v", err)
	}
	if sha != "" {
		t.Errorf("expected empty SHA before first sync, got %q", sha)
	}

	for _, want := range []string{"abc123", "def456"} {
		if err := s.SetLastSyncSHA(ctx, want); err != nil {
			t.Fatalf("SetLastSyncSHA failed: %v", err)
		}
		sha, err = s.LastSyncSHA(ctx)
		if err != nil {
			t.Fatalf("LastSyncSHA failed: %v", err)
		}
		if sha != want {
			t.Errorf("sha = %q, want %q", sha, want)
		}
	}
}
