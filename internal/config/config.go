package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Bridge is the messaging-service collaborator endpoint.
	Bridge BridgeConfig `mapstructure:"bridge" json:"bridge"`

	// Storage paths for the local stores.
	Storage StorageConfig `mapstructure:"storage" json:"storage"`

	// Sync behavior.
	Sync SyncConfig `mapstructure:"sync" json:"sync"`

	// Logging.
	Log LogConfig `mapstructure:"log" json:"log"`
}

// BridgeConfig for communication with the history source bridge.
type BridgeConfig struct {
	BaseURL   string        `mapstructure:"base_url" json:"base_url"`
	StreamURL string        `mapstructure:"stream_url" json:"stream_url"`
	Timeout   time.Duration `mapstructure:"timeout" json:"timeout"`
}

// StorageConfig for local database paths.
type StorageConfig struct {
	DataDir     string `mapstructure:"data_dir" json:"data_dir"`
	MessagesDB  string `mapstructure:"messages_db" json:"messages_db"`
	StagingDB   string `mapstructure:"staging_db" json:"staging_db"`
	StateDBName string `mapstructure:"state_db" json:"state_db"`
}

// SyncConfig for the fetch/persist/checkpoint loop.
type SyncConfig struct {
	BatchSize          int           `mapstructure:"batch_size" json:"batch_size"`
	CheckpointInterval int           `mapstructure:"checkpoint_interval" json:"checkpoint_interval"`
	BatchDelay         time.Duration `mapstructure:"batch_delay" json:"batch_delay"`
	DefaultMaxRecords  int           `mapstructure:"default_max_records" json:"default_max_records"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" json:"format"` // text, json
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".chatsync"

	return &Config{
		Bridge: BridgeConfig{
			BaseURL: "http://localhost:8081",
			Timeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			DataDir:     dataDir,
			MessagesDB:  "messages.db",
			StagingDB:   "staging.db",
			StateDBName: "checkpoints.db",
		},
		Sync: SyncConfig{
			BatchSize:          100,
			CheckpointInterval: 100,
			BatchDelay:         2 * time.Second,
			DefaultMaxRecords:  10000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// MessagesPath returns the authoritative store path.
func (c *Config) MessagesPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.MessagesDB)
}

// StagingPath returns the staging store path.
func (c *Config) StagingPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.StagingDB)
}

// StatePath returns the checkpoint store path.
func (c *Config) StatePath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.StateDBName)
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Bridge.BaseURL == "" {
		return errors.New("bridge.base_url is required")
	}

	if c.Bridge.Timeout <= 0 {
		return errors.New("bridge.timeout must be positive")
	}

	if c.Sync.BatchSize <= 0 {
		return errors.New("sync.batch_size must be positive")
	}

	if c.Sync.CheckpointInterval <= 0 {
		return errors.New("sync.checkpoint_interval must be positive")
	}

	if c.Sync.DefaultMaxRecords <= 0 {
		return errors.New("sync.default_max_records must be positive")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Storage.DataDir, 0700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	return nil
}
