package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/elimelt/notesync/internal/dashboard"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Start the standalone WebSocket progress dashboard",
	Long: `Start a WebSocket server that broadcasts sync progress to connected
clients.

WebSocket messages include:
- job_update: a job's status or counters changed
- item_progress: one file finished processing
- sync_complete: a sync run reached a terminal state

Example usage:
  notesync dashboard                # default port 8080
  notesync dashboard --port 9000

Connect with a WebSocket client:
  ws://localhost:8080/ws

Usually you want 'notesync daemon --dashboard' instead, which feeds this
server from the running engine.`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")
		if port == 0 {
			port = mustConfig().DashboardPort
		}

		server := dashboard.NewServer(&dashboard.Config{
			Port:   port,
			Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
		})

		if err := server.Start(); err != nil {
			fatal("failed to start dashboard: %v", err)
		}

		fmt.Printf("Dashboard server started on http://localhost:%d\n", port)
		fmt.Printf("WebSocket endpoint: ws://localhost:%d/ws\n", port)
		fmt.Printf("Health check: http://localhost:%d/health\n", port)
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		<-ctx.Done()

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			fatal("during shutdown: %v", err)
		}
	},
}

func init() {
	dashboardCmd.Flags().Int("port", 0, "port to listen on (default from config)")

	rootCmd.AddCommand(dashboardCmd)
}
