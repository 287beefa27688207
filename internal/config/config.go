// Package config loads notesync configuration from file, environment, and
// defaults.
//
// Sources are merged in viper's usual order: explicit file (or a
// notesync.yaml found in the search path), then NOTESYNC_* environment
// variables, then built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration.
type Config struct {
	// Repo is the "owner/name" GitHub repository to sync from.
	Repo string `mapstructure:"repo"`

	// Branch to sync. Default "main".
	Branch string `mapstructure:"branch"`

	// Token is an optional GitHub API token.
	Token string `mapstructure:"token"`

	// PathPrefix restricts the sync to files under this directory.
	PathPrefix string `mapstructure:"path_prefix"`

	// FileExt restricts the sync to files with this extension.
	FileExt string `mapstructure:"file_ext"`

	// DBPath is the SQLite database location.
	DBPath string `mapstructure:"db_path"`

	// SyncInterval is the daemon's run interval.
	SyncInterval time.Duration `mapstructure:"sync_interval"`

	// DashboardPort is the WebSocket dashboard listen port.
	DashboardPort int `mapstructure:"dashboard_port"`

	// LogFile receives daemon logs (rotated). Empty means stderr.
	LogFile string `mapstructure:"log_file"`

	// FileUsed is the config file that was actually loaded, if any.
	FileUsed string `mapstructure:"-"`
}

func newViper(cfgFile string) *viper.Viper {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("notesync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/notesync")
	}

	v.SetEnvPrefix("NOTESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("repo", "")
	v.SetDefault("branch", "main")
	v.SetDefault("token", "")
	v.SetDefault("path_prefix", "content")
	v.SetDefault("file_ext", ".md")
	v.SetDefault("db_path", ".notesync/sync.db")
	v.SetDefault("sync_interval", 6*time.Hour)
	v.SetDefault("dashboard_port", 8080)
	v.SetDefault("log_file", "")

	return v
}

// Load reads configuration. cfgFile may be empty, in which case the default
// search path applies and a missing file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := newViper(cfgFile)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.FileUsed = v.ConfigFileUsed()

	return &cfg, nil
}

// Validate checks the fields every sync operation requires.
func (c *Config) Validate() error {
	if c.Repo == "" {
		return errors.New("repo is required (set repo in notesync.yaml or NOTESYNC_REPO)")
	}
	if !strings.Contains(c.Repo, "/") {
		return fmt.Errorf("repo %q must be in owner/name form", c.Repo)
	}
	if c.DBPath == "" {
		return errors.New("db_path cannot be empty")
	}
	return nil
}
