// Package scheduler runs the sync engine on a fixed interval.
//
// The scheduler:
// 1. Runs a sync immediately on start
// 2. Repeats every Interval thereafter
// 3. Watches the config file and applies interval changes without restart
// 4. Handles graceful shutdown
package scheduler

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/elimelt/notesync/internal/engine"
)

// Runner is the engine surface the scheduler drives.
type Runner interface {
	Run(ctx context.Context, force bool) (*engine.Result, error)
}

// Config holds configuration for the scheduler.
type Config struct {
	// Interval between sync runs (default: 6h)
	Interval time.Duration

	// ConfigPath is an optional file to watch for interval changes.
	// When it changes, ReloadInterval is consulted for the new value.
	ConfigPath string

	// ReloadInterval re-reads the configured interval after ConfigPath
	// changes. Required when ConfigPath is set.
	ReloadInterval func() (time.Duration, error)

	// Logger for scheduler activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval: 6 * time.Hour,
		Logger:   log.New(os.Stderr, "[scheduler] ", log.LstdFlags),
	}
}

// Scheduler drives periodic sync runs.
type Scheduler struct {
	runner Runner
	config *Config

	watcher *fsnotify.Watcher

	intervalMu sync.Mutex
	interval   time.Duration
	reloaded   chan struct{}

	// runMu makes runs single-flight: a tick or manual trigger that
	// arrives mid-run is skipped, never queued.
	runMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler driving runner.
func New(runner Runner, config *Config) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Interval <= 0 {
		config.Interval = 6 * time.Hour
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[scheduler] ", log.LstdFlags)
	}
	if config.ConfigPath != "" && config.ReloadInterval == nil {
		return nil, fmt.Errorf("ReloadInterval is required when ConfigPath is set")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		runner:   runner,
		config:   config,
		interval: config.Interval,
		reloaded: make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins periodic syncing. The first run happens immediately.
//
// This blocks until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.config.Logger.Printf("Starting scheduler, interval %s", s.Interval())

	if s.config.ConfigPath != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		s.watcher = watcher

		// Watch the directory: editors and viper replace the file on save,
		// which an exact-path watch would lose.
		dir := filepath.Dir(s.config.ConfigPath)
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("failed to watch config directory %s: %w", dir, err)
		}
		s.config.Logger.Printf("Watching config: %s", s.config.ConfigPath)

		s.wg.Add(1)
		go s.watchConfig()
	}

	s.RunNow(ctx)

	timer := time.NewTimer(s.Interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.config.Logger.Println("Shutdown signal received")
			return s.Stop()

		case <-s.ctx.Done():
			return nil

		case <-s.reloaded:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.Interval())
			s.config.Logger.Printf("Interval changed, next run in %s", s.Interval())

		case <-timer.C:
			s.RunNow(ctx)
			timer.Reset(s.Interval())
		}
	}
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.config.Logger.Println("Stopping scheduler")

	s.cancel()

	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			s.config.Logger.Printf("Error closing watcher: %v", err)
		}
	}

	s.wg.Wait()

	s.config.Logger.Println("Scheduler stopped")
	return nil
}

// Interval returns the currently configured run interval.
func (s *Scheduler) Interval() time.Duration {
	s.intervalMu.Lock()
	defer s.intervalMu.Unlock()
	return s.interval
}

// RunNow triggers a sync immediately. If a run is already in progress the
// trigger is skipped.
func (s *Scheduler) RunNow(ctx context.Context) {
	if !s.runMu.TryLock() {
		s.config.Logger.Println("Sync already in progress, skipping run")
		return
	}
	defer s.runMu.Unlock()

	start := time.Now()
	res, err := s.runner.Run(ctx, false)
	if err != nil {
		s.config.Logger.Printf("Sync failed: %v", err)
		return
	}
	s.config.Logger.Printf("Sync %s in %s: %d completed, %d failed, %d pending",
		res.Status, time.Since(start).Round(time.Millisecond), res.Completed, res.Failed, res.Pending)
}

// watchConfig applies interval changes when the config file is rewritten.
func (s *Scheduler) watchConfig() {
	defer s.wg.Done()

	target := filepath.Clean(s.config.ConfigPath)

	for {
		select {
		case <-s.ctx.Done():
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			s.applyReload()

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (s *Scheduler) applyReload() {
	interval, err := s.config.ReloadInterval()
	if err != nil {
		s.config.Logger.Printf("Config reload failed: %v", err)
		return
	}
	if interval <= 0 {
		s.config.Logger.Printf("Ignoring invalid interval %s", interval)
		return
	}

	s.intervalMu.Lock()
	changed := interval != s.interval
	s.interval = interval
	s.intervalMu.Unlock()

	if changed {
		select {
		case s.reloaded <- struct{}{}:
		default:
		}
	}
}
