package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/elimelt/notesync/internal/store"
	"github.com/elimelt/notesync/internal/ui"
)

var jobsCmd = &cobra.Command{
	Use:     "jobs",
	GroupID: "jobs",
	Short:   "Inspect and manage sync jobs and their items",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sync jobs",
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg := mustConfig()
		st := mustStore(cfg)
		defer st.Close()

		jobs, err := st.ListJobs(context.Background(), limit)
		if err != nil {
			fatal("listing jobs: %v", err)
		}
		if len(jobs) == 0 {
			fmt.Println("No sync jobs yet")
			return
		}

		for _, job := range jobs {
			status := job.Status
			if job.Status == store.StatusCompleted && job.ErrorMessage != "" {
				status = "completed_with_errors"
			}
			fmt.Printf("%s %4d  %-22s %s  %d/%d items",
				ui.StatusGlyph(status), job.ID, status, shortSHA(job.CommitSHA),
				job.CompletedItems, job.TotalItems)
			if job.FailedItems > 0 {
				fmt.Printf("  %s", ui.RenderFail(fmt.Sprintf("%d failed", job.FailedItems)))
			}
			fmt.Printf("  %s\n", ui.RenderSubtle(job.UpdatedAt.Local().Format(time.DateTime)))
		}
	},
}

var jobsFailedItemsCmd = &cobra.Command{
	Use:   "failed-items",
	Short: "List failed items across jobs",
	Run: func(cmd *cobra.Command, args []string) {
		jobID, _ := cmd.Flags().GetInt64("job")
		limit, _ := cmd.Flags().GetInt("limit")

		cfg := mustConfig()
		st := mustStore(cfg)
		defer st.Close()

		items, err := st.ListFailedItems(context.Background(), jobID, limit)
		if err != nil {
			fatal("listing failed items: %v", err)
		}
		if len(items) == 0 {
			fmt.Printf("%s No failed items\n", ui.RenderPass("✓"))
			return
		}

		for _, item := range items {
			fmt.Printf("%s %4d  job %d  %s  (%d retries)\n",
				ui.StatusGlyph(item.Status), item.ID, item.JobID, item.FilePath, item.RetryCount)
			if item.ErrorMessage != "" {
				fmt.Printf("        %s\n", ui.RenderSubtle(item.ErrorMessage))
			}
		}
	},
}

var jobsResetItemCmd = &cobra.Command{
	Use:   "reset-item <item-id>",
	Short: "Move a failed or skipped item back to pending",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		itemID := parseID(args[0])

		cfg := mustConfig()
		st := mustStore(cfg)
		defer st.Close()

		ok, err := st.ResetItem(context.Background(), itemID)
		if err != nil {
			fatal("resetting item: %v", err)
		}
		if !ok {
			fatal("item %d not found or not in a resettable state", itemID)
		}
		fmt.Printf("%s Item %d reset to pending\n", ui.RenderPass("✓"), itemID)
	},
}

var jobsSkipItemCmd = &cobra.Command{
	Use:   "skip-item <item-id>",
	Short: "Mark a pending or failed item as skipped",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		itemID := parseID(args[0])
		reason, _ := cmd.Flags().GetString("reason")

		cfg := mustConfig()
		st := mustStore(cfg)
		defer st.Close()

		ok, err := st.SkipItem(context.Background(), itemID, reason)
		if err != nil {
			fatal("skipping item: %v", err)
		}
		if !ok {
			fatal("item %d not found or already terminal", itemID)
		}
		fmt.Printf("%s Item %d skipped\n", ui.RenderWarn("⚠"), itemID)
	},
}

var jobsDeleteItemCmd = &cobra.Command{
	Use:   "delete-item <item-id>",
	Short: "Delete an item's tracking record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		itemID := parseID(args[0])

		cfg := mustConfig()
		st := mustStore(cfg)
		defer st.Close()

		ok, err := st.DeleteItem(context.Background(), itemID)
		if err != nil {
			fatal("deleting item: %v", err)
		}
		if !ok {
			fatal("item %d not found", itemID)
		}
		fmt.Printf("%s Item %d deleted\n", ui.RenderPass("✓"), itemID)
	},
}

var jobsResetFailedCmd = &cobra.Command{
	Use:   "reset-failed <job-id>",
	Short: "Reset all of a job's failed items, ignoring the retry ceiling",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := parseID(args[0])
		includeSkipped, _ := cmd.Flags().GetBool("include-skipped")

		cfg := mustConfig()
		st := mustStore(cfg)
		defer st.Close()

		n, err := st.ResetAllFailed(context.Background(), jobID, includeSkipped)
		if err != nil {
			fatal("resetting items: %v", err)
		}
		fmt.Printf("%s Reset %d items for job %d; run 'notesync retry %d' to process them\n",
			ui.RenderPass("✓"), n, jobID, jobID)
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "jobs",
	Short:   "Show sync state at a glance",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		st := mustStore(cfg)
		defer st.Close()

		ctx := context.Background()

		count, err := st.DocumentCount(ctx)
		if err != nil {
			fatal("counting documents: %v", err)
		}
		sha, err := st.LastSyncSHA(ctx)
		if err != nil {
			fatal("reading sync state: %v", err)
		}

		fmt.Printf("Documents: %d\n", count)
		if sha == "" {
			fmt.Printf("Last sync: %s\n", ui.RenderSubtle("never"))
		} else {
			fmt.Printf("Last sync: commit %s\n", shortSHA(sha))
		}

		job, err := st.GetResumableJob(ctx)
		if err != nil {
			fatal("looking up active job: %v", err)
		}
		if job == nil {
			fmt.Printf("Active job: %s\n", ui.RenderSubtle("none"))
			return
		}

		fmt.Printf("Active job: %s %d (%s) %d/%d items\n",
			ui.StatusGlyph(job.Status), job.ID, job.Status, job.CompletedItems, job.TotalItems)
		if job.Status == store.StatusPaused && job.RateLimitResetAt != nil {
			fmt.Printf("   Rate limit resets at %s\n", job.RateLimitResetAt.Local().Format(time.RFC1123))
		}
	},
}

func init() {
	jobsListCmd.Flags().Int("limit", 20, "maximum jobs to list")
	jobsFailedItemsCmd.Flags().Int64("job", 0, "restrict to one job (0 = all jobs)")
	jobsFailedItemsCmd.Flags().Int("limit", 100, "maximum items to list")
	jobsSkipItemCmd.Flags().String("reason", "", "reason recorded on the item")
	jobsResetFailedCmd.Flags().Bool("include-skipped", false, "also reset skipped items")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsFailedItemsCmd)
	jobsCmd.AddCommand(jobsResetItemCmd)
	jobsCmd.AddCommand(jobsSkipItemCmd)
	jobsCmd.AddCommand(jobsDeleteItemCmd)
	jobsCmd.AddCommand(jobsResetFailedCmd)

	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(statusCmd)
}
