package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from file and environment.
type Loader struct {
	configPath string
}

// NewLoader creates a config loader. An empty path searches the default
// locations.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load reads configuration from file and CHATSYNC_-prefixed environment
// variables, on top of the defaults.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()

	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("CHATSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if l.configPath != "" {
		v.SetConfigFile(l.configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", l.configPath, err)
		}
	} else {
		v.SetConfigName("chatsync")
		v.SetConfigType("json")
		v.AddConfigPath(".")
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "chatsync"))
		}

		var notFound viper.ConfigFileNotFoundError
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every config key so env-only overrides work.
func setDefaults(v *viper.Viper, def *Config) {
	v.SetDefault("bridge.base_url", def.Bridge.BaseURL)
	v.SetDefault("bridge.stream_url", def.Bridge.StreamURL)
	v.SetDefault("bridge.timeout", def.Bridge.Timeout)

	v.SetDefault("storage.data_dir", def.Storage.DataDir)
	v.SetDefault("storage.messages_db", def.Storage.MessagesDB)
	v.SetDefault("storage.staging_db", def.Storage.StagingDB)
	v.SetDefault("storage.state_db", def.Storage.StateDBName)

	v.SetDefault("sync.batch_size", def.Sync.BatchSize)
	v.SetDefault("sync.checkpoint_interval", def.Sync.CheckpointInterval)
	v.SetDefault("sync.batch_delay", def.Sync.BatchDelay)
	v.SetDefault("sync.default_max_records", def.Sync.DefaultMaxRecords)

	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
}
