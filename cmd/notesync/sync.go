package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/elimelt/notesync/internal/engine"
	"github.com/elimelt/notesync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Sync notes from GitHub into the local store",
	Long: `Run a synchronization against the configured repository.

If the repository head matches the last fully-synced commit, nothing
happens (use --force to sync anyway). If a previous job is still running
or paused, that job is resumed instead of starting a new one.`,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		runEngine(func(ctx context.Context, e *engine.Engine) (*engine.Result, error) {
			return e.Run(ctx, force)
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:     "resume <job-id>",
	GroupID: "sync",
	Short:   "Resume a specific paused or interrupted job",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := parseID(args[0])
		runEngine(func(ctx context.Context, e *engine.Engine) (*engine.Result, error) {
			return e.Resume(ctx, jobID)
		})
	},
}

var retryCmd = &cobra.Command{
	Use:     "retry <job-id>",
	GroupID: "sync",
	Short:   "Retry a job's failed items",
	Long: `Reset a job's retryable failed items back to pending and re-run it.

Items that have already failed three times are left alone; use
'notesync jobs reset-failed' to force those back into the queue.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := parseID(args[0])
		runEngine(func(ctx context.Context, e *engine.Engine) (*engine.Result, error) {
			return e.RetryFailed(ctx, jobID)
		})
	},
}

// runEngine wires up config, store, and engine, then executes op with
// Ctrl+C cancelling the run (the job stays resumable).
func runEngine(op func(context.Context, *engine.Engine) (*engine.Result, error)) {
	cfg := mustConfig()
	if err := cfg.Validate(); err != nil {
		fatal("%v", err)
	}

	st := mustStore(cfg)
	defer st.Close()

	e := buildEngine(cfg, st, nil, nil)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	res, err := op(ctx, e)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintf(os.Stderr, "\n%s Sync interrupted; run 'notesync sync' to resume\n", ui.RenderWarn("⚠"))
			os.Exit(1)
		}
		fatal("%v", err)
	}
	printResult(res)
}

func printResult(res *engine.Result) {
	fmt.Printf("%s %s\n", ui.StatusGlyph(res.Status), res.Message)
	if res.JobID == 0 {
		return
	}

	fmt.Printf("   Job: %d  Commit: %s\n", res.JobID, shortSHA(res.CommitSHA))
	fmt.Printf("   Items: %d total, %d completed, %d failed, %d skipped, %d pending\n",
		res.Total, res.Completed, res.Failed, res.Skipped, res.Pending)
	if res.RateLimitResetAt != nil {
		fmt.Printf("   Rate limit resets at %s\n", res.RateLimitResetAt.Local().Format(time.RFC1123))
	}
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		fatal("invalid id %q", s)
	}
	return id
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

func init() {
	syncCmd.Flags().Bool("force", false, "sync even if already up to date")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(retryCmd)
}
