package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Run from an empty directory so no stray notesync.yaml is found.
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Branch != "main" {
		t.Errorf("branch = %q, want main", cfg.Branch)
	}
	if cfg.PathPrefix != "content" || cfg.FileExt != ".md" {
		t.Errorf("content defaults = %q %q", cfg.PathPrefix, cfg.FileExt)
	}
	if cfg.SyncInterval != 6*time.Hour {
		t.Errorf("sync interval = %s, want 6h", cfg.SyncInterval)
	}
	if cfg.DashboardPort != 8080 {
		t.Errorf("dashboard port = %d, want 8080", cfg.DashboardPort)
	}
	if cfg.FileUsed != "" {
		t.Errorf("no config file should be in use, got %q", cfg.FileUsed)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notesync.yaml")
	content := `repo: octo/notes
branch: develop
token: tkn123
path_prefix: docs
sync_interval: 1h30m
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Repo != "octo/notes" || cfg.Branch != "develop" || cfg.Token != "tkn123" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.PathPrefix != "docs" {
		t.Errorf("path prefix = %q", cfg.PathPrefix)
	}
	if cfg.SyncInterval != 90*time.Minute {
		t.Errorf("sync interval = %s, want 1h30m", cfg.SyncInterval)
	}
	if cfg.FileExt != ".md" {
		t.Errorf("unset key lost its default: %q", cfg.FileExt)
	}
	if cfg.FileUsed != path {
		t.Errorf("file used = %q, want %q", cfg.FileUsed, path)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("NOTESYNC_REPO", "octo/from-env")
	t.Setenv("NOTESYNC_BRANCH", "env-branch")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Repo != "octo/from-env" || cfg.Branch != "env-branch" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Repo: "octo/notes", DBPath: "x.db"}, false},
		{"missing repo", Config{DBPath: "x.db"}, true},
		{"malformed repo", Config{Repo: "octonotes", DBPath: "x.db"}, true},
		{"missing db path", Config{Repo: "octo/notes"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
