// Package engine drives content synchronization jobs from creation through
// completion.
//
// A job walks every markdown file under the configured path prefix at one
// commit, fetches each file, parses its frontmatter, and upserts the result
// into the document store. Progress is persisted per item, so a run
// interrupted by rate limiting or a crash resumes from where it stopped
// instead of starting over. Processing is strictly sequential: one job, one
// item at a time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/elimelt/notesync/internal/frontmatter"
	"github.com/elimelt/notesync/internal/github"
	"github.com/elimelt/notesync/internal/store"
)

const (
	// batchSize bounds how many pending items are claimed per loop iteration.
	batchSize = 50

	// maxItemRetries is the retry-controller eligibility ceiling: items that
	// have failed this many times are not reset by RetryFailed.
	maxItemRetries = 3

	// skipAfterRetries is the poison threshold. Items that reach this many
	// failures are skipped without another fetch attempt.
	skipAfterRetries = 5

	// resumeWaitCap bounds how long a resume blocks waiting for a paused
	// job's rate-limit window. Past the cap we proceed and let the fetcher
	// pause the job again if the quota is still gone.
	resumeWaitCap = 5 * time.Second
)

// systemClock is the default wall clock when Options.Clock is unset.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Options configures an Engine.
type Options struct {
	Store  *store.Store
	Client *github.Client

	// Branch is the branch to sync from. Defaults to "main".
	Branch string

	// PathPrefix restricts the sync to files under this repository
	// directory. Defaults to "content".
	PathPrefix string

	// FileExt restricts the sync to files with this extension.
	// Defaults to ".md".
	FileExt string

	// Clock overrides real time, for tests.
	Clock github.Clock

	// Logger for job lifecycle activity. Nil means a stderr default.
	Logger *log.Logger

	// Notifier receives progress events. Nil means no notifications.
	Notifier Notifier
}

// Engine runs synchronization jobs.
type Engine struct {
	store      *store.Store
	client     *github.Client
	branch     string
	pathPrefix string
	fileExt    string
	clock      github.Clock
	logger     *log.Logger
	notifier   Notifier
}

// New creates an Engine from opts, applying defaults for anything unset.
func New(opts Options) *Engine {
	e := &Engine{
		store:      opts.Store,
		client:     opts.Client,
		branch:     opts.Branch,
		pathPrefix: opts.PathPrefix,
		fileExt:    opts.FileExt,
		clock:      opts.Clock,
		logger:     opts.Logger,
		notifier:   opts.Notifier,
	}
	if e.branch == "" {
		e.branch = "main"
	}
	if e.pathPrefix == "" {
		e.pathPrefix = "content"
	}
	if e.fileExt == "" {
		e.fileExt = ".md"
	}
	if e.clock == nil {
		e.clock = systemClock{}
	}
	if e.logger == nil {
		e.logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	if e.notifier == nil {
		e.notifier = nopNotifier{}
	}
	return e
}

// Run starts or resumes a synchronization.
//
// An existing non-terminal job is always picked up first; a new job is only
// created when nothing is resumable. When the repository head matches
// the last fully-synced commit and force is false, Run returns a skipped
// result without creating a job record.
func (e *Engine) Run(ctx context.Context, force bool) (*Result, error) {
	job, err := e.store.GetResumableJob(ctx)
	if err != nil {
		return nil, fmt.Errorf("looking up resumable job: %w", err)
	}
	if job != nil {
		e.logger.Printf("Resuming job %d (%s, commit %s)", job.ID, job.Status, shortSHA(job.CommitSHA))
		return e.resume(ctx, job)
	}

	sha, err := e.client.LatestCommit(ctx, e.branch)
	if err != nil {
		return nil, fmt.Errorf("resolving head of %s: %w", e.branch, err)
	}

	lastSHA, err := e.store.LastSyncSHA(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading last sync state: %w", err)
	}
	if !force && sha == lastSHA {
		e.logger.Printf("Already up to date with commit %s", shortSHA(sha))
		return &Result{
			Success:   true,
			Status:    ResultSkipped,
			CommitSHA: sha,
			Message:   "Already up to date with commit " + shortSHA(sha),
		}, nil
	}

	paths, err := e.client.ContentTree(ctx, e.branch, e.pathPrefix, e.fileExt)
	if err != nil {
		return nil, fmt.Errorf("listing %s files: %w", e.fileExt, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no %s files found under %s/ at commit %s", e.fileExt, e.pathPrefix, shortSHA(sha))
	}

	jobID, err := e.store.CreateJob(ctx, sha, paths)
	if errors.Is(err, store.ErrActiveJobExists) {
		// Lost the creation race; pick up whichever job won.
		job, lookupErr := e.store.GetResumableJob(ctx)
		if lookupErr != nil {
			return nil, fmt.Errorf("looking up competing job: %w", lookupErr)
		}
		if job == nil {
			return nil, err
		}
		e.logger.Printf("Job %d already active, resuming it", job.ID)
		return e.resume(ctx, job)
	}
	if err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	e.logger.Printf("Created job %d: %d files at commit %s", jobID, len(paths), shortSHA(sha))
	job, err = e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return e.runJob(ctx, job)
}

// Resume continues a specific running or paused job.
func (e *Engine) Resume(ctx context.Context, jobID int64) (*Result, error) {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("loading job %d: %w", jobID, err)
	}
	if !job.Resumable() {
		return nil, fmt.Errorf("job %d is %s and cannot be resumed", jobID, job.Status)
	}
	return e.resume(ctx, job)
}

// resume applies the bounded rate-limit wait before re-entering the job loop.
func (e *Engine) resume(ctx context.Context, job *store.Job) (*Result, error) {
	if job.Status == store.StatusPaused && job.RateLimitResetAt != nil {
		wait := job.RateLimitResetAt.Sub(e.clock.Now())
		if wait > 0 {
			if wait > resumeWaitCap {
				wait = resumeWaitCap
			}
			e.logger.Printf("Job %d paused until %s, waiting %s before retrying", job.ID, job.RateLimitResetAt.Format(time.RFC3339), wait.Round(time.Millisecond))
			if err := e.clock.Sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}
	return e.runJob(ctx, job)
}

// runJob is the batch loop: claim pending items, process each one, persist
// the outcome, and refresh the job counters until nothing is pending or the
// quota runs out.
func (e *Engine) runJob(ctx context.Context, job *store.Job) (*Result, error) {
	if err := e.store.SetJobStatus(ctx, job.ID, store.StatusRunning, "", nil); err != nil {
		return nil, err
	}
	e.notifyJob(ctx, job.ID)

	for {
		items, err := e.store.PendingItems(ctx, job.ID, batchSize)
		if err != nil {
			return nil, fmt.Errorf("claiming pending items: %w", err)
		}
		if len(items) == 0 {
			break
		}

		for _, item := range items {
			if item.RetryCount >= skipAfterRetries {
				e.logger.Printf("Skipping %s: %d failed attempts", item.FilePath, item.RetryCount)
				if err := e.store.UpdateItem(ctx, item.ID, store.ItemSkipped, "Exceeded maximum retry attempts"); err != nil {
					return nil, err
				}
				e.notifyItem(ctx, item.ID)
				continue
			}

			outcome, cause, err := e.processItem(ctx, job, item)
			if err != nil {
				return nil, err
			}

			switch outcome {
			case outcomeSuccess:
				if err := e.store.UpdateItem(ctx, item.ID, store.ItemSuccess, ""); err != nil {
					return nil, err
				}
			case outcomeFailed:
				e.logger.Printf("Item %s failed: %s", item.FilePath, cause)
				if err := e.store.UpdateItem(ctx, item.ID, store.ItemFailed, cause); err != nil {
					return nil, err
				}
			case outcomeRateLimited:
				return e.pause(ctx, job)
			}
			e.notifyItem(ctx, item.ID)
		}

		if err := e.store.UpdateJobCounts(ctx, job.ID); err != nil {
			return nil, err
		}
		e.notifyJob(ctx, job.ID)
	}

	return e.finish(ctx, job)
}

// itemOutcome tags the result of one processing attempt. Rate limiting is a
// job-level signal, not an item failure: the item stays pending and the job
// pauses.
type itemOutcome int

const (
	outcomeSuccess itemOutcome = iota
	outcomeFailed
	outcomeRateLimited
)

// processItem fetches, parses, and stores one file. The returned error is
// non-nil only for storage failures or context cancellation; everything
// else is encoded in the outcome tag.
func (e *Engine) processItem(ctx context.Context, job *store.Job, item *store.Item) (itemOutcome, string, error) {
	raw, err := e.client.FileContent(ctx, item.FilePath)
	if errors.Is(err, github.ErrRateLimited) {
		return outcomeRateLimited, "", nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return 0, "", ctx.Err()
		}
		return outcomeFailed, err.Error(), nil
	}

	meta, body := frontmatter.Parse(raw)
	title := frontmatter.DeriveTitle(meta, item.FilePath)
	if title == "" {
		return outcomeFailed, "could not derive a title from frontmatter or file name", nil
	}

	doc := &store.Document{
		FilePath:    item.FilePath,
		Title:       title,
		Category:    meta.String("category"),
		Description: meta.String("description"),
		Content:     body,
		Tags:        frontmatter.NormalizeTags(meta["tags"]),
		CommitSHA:   job.CommitSHA,
	}
	if err := e.store.UpsertDocument(ctx, doc); err != nil {
		return 0, "", fmt.Errorf("storing document %s: %w", item.FilePath, err)
	}
	return outcomeSuccess, "", nil
}

// pause parks the job until the quota window resets. Remaining pending items
// are untouched so a later resume picks them up.
func (e *Engine) pause(ctx context.Context, job *store.Job) (*Result, error) {
	if err := e.store.UpdateJobCounts(ctx, job.ID); err != nil {
		return nil, err
	}

	var resetAt *time.Time
	if rl := e.client.RateLimit(); rl != nil && !rl.ResetAt.IsZero() {
		t := rl.ResetAt
		resetAt = &t
	}
	if err := e.store.SetJobStatus(ctx, job.ID, store.StatusPaused, "", resetAt); err != nil {
		return nil, err
	}
	e.notifyJob(ctx, job.ID)

	res, err := e.result(ctx, job.ID, ResultPaused, "Sync paused: GitHub rate limit reached")
	if err != nil {
		return nil, err
	}
	if resetAt != nil {
		e.logger.Printf("Job %d paused until %s (%d/%d items done)", job.ID, resetAt.Format(time.RFC3339), res.Completed, res.Total)
	} else {
		e.logger.Printf("Job %d paused, rate limit reset time unknown", job.ID)
	}
	return res, nil
}

// finish decides the terminal status, reconciles the document store, and
// records the synced commit.
func (e *Engine) finish(ctx context.Context, job *store.Job) (*Result, error) {
	if err := e.store.UpdateJobCounts(ctx, job.ID); err != nil {
		return nil, err
	}
	current, err := e.store.GetJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	skipped, err := e.store.SkippedCount(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	status := ResultCompleted
	message := "Sync completed"
	errorMessage := ""
	if current.FailedItems > 0 || skipped > 0 {
		status = ResultCompletedWithErrors
		message = fmt.Sprintf("Sync completed with %d failed and %d skipped items", current.FailedItems, skipped)
		errorMessage = message
	}
	if err := e.store.SetJobStatus(ctx, job.ID, store.StatusCompleted, errorMessage, nil); err != nil {
		return nil, err
	}

	// Reconciliation only runs on terminal completion. The keep-set spans
	// every successful item in the job's history, not just this invocation.
	keep, err := e.store.AllSuccessfulPaths(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	deleted, err := e.store.DeleteDocumentsNotIn(ctx, keep)
	if err != nil {
		return nil, fmt.Errorf("reconciling documents: %w", err)
	}
	if deleted > 0 {
		e.logger.Printf("Reconciliation removed %d stale documents", deleted)
	}

	if err := e.store.SetLastSyncSHA(ctx, job.CommitSHA); err != nil {
		return nil, err
	}

	res, err := e.result(ctx, job.ID, status, message)
	if err != nil {
		return nil, err
	}
	e.logger.Printf("Job %d %s: %d succeeded, %d failed, %d skipped", job.ID, status, res.Completed, res.Failed, res.Skipped)
	e.notifier.SyncComplete(res)
	return res, nil
}

// result assembles the caller-facing summary from the job's current rows.
func (e *Engine) result(ctx context.Context, jobID int64, status, message string) (*Result, error) {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	skipped, err := e.store.SkippedCount(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &Result{
		Success:          true,
		Status:           status,
		JobID:            job.ID,
		CommitSHA:        job.CommitSHA,
		Total:            job.TotalItems,
		Completed:        job.CompletedItems,
		Failed:           job.FailedItems,
		Skipped:          skipped,
		Pending:          job.TotalItems - job.CompletedItems - job.FailedItems - skipped,
		RateLimitResetAt: job.RateLimitResetAt,
		Message:          message,
	}, nil
}

func (e *Engine) notifyJob(ctx context.Context, jobID int64) {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return
	}
	e.notifier.JobUpdate(job)
}

func (e *Engine) notifyItem(ctx context.Context, itemID int64) {
	item, err := e.store.GetItem(ctx, itemID)
	if err != nil {
		return
	}
	e.notifier.ItemProgress(item)
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
