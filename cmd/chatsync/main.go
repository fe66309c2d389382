package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/chatsync/internal/client"
	"github.com/TheMichaelB/chatsync/internal/config"
	"github.com/TheMichaelB/chatsync/internal/events"
)

var (
	cfgPath    string
	jsonOutput bool
	logLevel   string

	cfg    *config.Config
	logger *events.Logger
	app    *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "chatsync",
	Short: "Checkpointed chat history synchronization",
	Long: `Chatsync pulls a complete conversation archive from the messaging
bridge into a durable local store, incrementally and resumably. Each chat
syncs behind its own checkpoint, so an interrupted run continues from the
last persisted cursor instead of starting over.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.NewLoader(cfgPath).Load()
		if err != nil {
			return err
		}

		level := cfg.Log.Level
		if logLevel != "" {
			level = logLevel
		}
		logger = events.NewLogger(level, cfg.Log.Format, os.Stderr)

		app, err = client.New(cfg, logger)
		if err != nil {
			return fmt.Errorf("initialize client: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app != nil {
			if err := app.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close client")
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "",
		"Config file path (default: chatsync.json)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output results as JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
