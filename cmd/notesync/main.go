// Command notesync synchronizes markdown notes from a GitHub repository
// into a local SQLite document store, with resumable, rate-limit-aware jobs.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/elimelt/notesync/internal/config"
	"github.com/elimelt/notesync/internal/engine"
	"github.com/elimelt/notesync/internal/github"
	"github.com/elimelt/notesync/internal/store"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "notesync",
	Short: "Resumable GitHub notes synchronization",
	Long: `notesync pulls markdown documents from a GitHub repository, parses
their YAML frontmatter, and stores them in a local SQLite database.

Progress is tracked per file, so a sync interrupted by GitHub rate
limiting (or anything else) resumes exactly where it stopped. Configure
via notesync.yaml, NOTESYNC_* environment variables, or flags.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: notesync.yaml in . or ~/.config/notesync)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "jobs", Title: "Job Management:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// mustConfig loads and returns the configuration, exiting on failure.
func mustConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fatal("%v", err)
	}
	return cfg
}

// mustStore opens the database and ensures the schema exists.
func mustStore(cfg *config.Config) *store.Store {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		fatal("opening database: %v", err)
	}
	if err := st.InitSchema(context.Background()); err != nil {
		st.Close()
		fatal("initializing database: %v", err)
	}
	return st
}

// buildEngine wires the fetcher and store into an engine. notifier may be
// nil.
func buildEngine(cfg *config.Config, st *store.Store, logger *log.Logger, notifier engine.Notifier) *engine.Engine {
	client := github.New(github.Options{
		Token:  cfg.Token,
		Repo:   cfg.Repo,
		Logger: logger,
	})
	return engine.New(engine.Options{
		Store:      st,
		Client:     client,
		Branch:     cfg.Branch,
		PathPrefix: cfg.PathPrefix,
		FileExt:    cfg.FileExt,
		Logger:     logger,
		Notifier:   notifier,
	})
}
