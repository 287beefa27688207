package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/elimelt/notesync/internal/config"
	"github.com/elimelt/notesync/internal/dashboard"
	"github.com/elimelt/notesync/internal/engine"
	"github.com/elimelt/notesync/internal/scheduler"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "advanced",
	Short:   "Run periodic syncs in the foreground",
	Long: `Run notesync as a long-lived process that syncs on an interval.

The first sync happens immediately; later runs follow sync_interval
(default 6h). Editing the config file adjusts the interval without a
restart. With --dashboard, a WebSocket server broadcasts live progress.

When log_file is configured, output goes to a size-rotated log instead
of stderr.`,
	Run: func(cmd *cobra.Command, args []string) {
		interval, _ := cmd.Flags().GetDuration("interval")
		withDashboard, _ := cmd.Flags().GetBool("dashboard")

		cfg := mustConfig()
		if err := cfg.Validate(); err != nil {
			fatal("%v", err)
		}
		if interval > 0 {
			cfg.SyncInterval = interval
		}

		logOut := io.Writer(os.Stderr)
		if cfg.LogFile != "" {
			logOut = &lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
				Compress:   true,
			}
		}
		logger := log.New(logOut, "[daemon] ", log.LstdFlags)

		st := mustStore(cfg)
		defer st.Close()

		var notifier engine.Notifier
		if withDashboard {
			server := dashboard.NewServer(&dashboard.Config{
				Port:   cfg.DashboardPort,
				Logger: logger,
			})
			if err := server.Start(); err != nil {
				fatal("starting dashboard: %v", err)
			}
			defer server.Stop()
			notifier = dashboard.NewNotifier(server, logger)
			logger.Printf("Dashboard at ws://localhost:%d/ws", cfg.DashboardPort)
		}

		e := buildEngine(cfg, st, logger, notifier)

		schedCfg := &scheduler.Config{
			Interval: cfg.SyncInterval,
			Logger:   logger,
		}
		// Hot-reload only works when the config came from a file.
		if cfg.FileUsed != "" && interval <= 0 {
			schedCfg.ConfigPath = cfg.FileUsed
			schedCfg.ReloadInterval = func() (time.Duration, error) {
				fresh, err := config.Load(cfgFile)
				if err != nil {
					return 0, err
				}
				return fresh.SyncInterval, nil
			}
		}

		sched, err := scheduler.New(e, schedCfg)
		if err != nil {
			fatal("creating scheduler: %v", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		fmt.Printf("Syncing %s every %s. Press Ctrl+C to stop.\n", cfg.Repo, cfg.SyncInterval)
		if err := sched.Start(ctx); err != nil {
			fatal("%v", err)
		}
	},
}

func init() {
	daemonCmd.Flags().Duration("interval", 0, "override sync_interval (disables config hot reload)")
	daemonCmd.Flags().Bool("dashboard", false, "serve the WebSocket progress dashboard")

	rootCmd.AddCommand(daemonCmd)
}
