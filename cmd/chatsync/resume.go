package main

import (
	"context"

	"github.com/spf13/cobra"
)

var resumeMaxRecords int

var resumeCmd = &cobra.Command{
	Use:   "resume <chat-jid>",
	Short: "Resume an interrupted or failed sync",
	Long: `Resume continues a sync from the last persisted cursor. Only
checkpoints in INTERRUPTED or FAILED state can be resumed; the chat is
never restarted from zero.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targetID := args[0]

		maxRecords := resumeMaxRecords
		if maxRecords <= 0 {
			maxRecords = cfg.Sync.DefaultMaxRecords
		}

		if _, err := app.Sync.Resume(context.Background(), targetID, maxRecords); err != nil {
			return err
		}

		app.Sync.Wait()

		final, err := app.Sync.Status(targetID)
		if err != nil {
			return err
		}
		printSnapshot(final)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <chat-jid>",
	Short: "Cancel an active or interrupted sync",
	Long: `Cancel marks the chat's checkpoint CANCELLED. A running loop
observes it at its next batch boundary, so at most one in-flight batch
completes after the cancel. An interrupted sync with no running loop is
cancelled directly, abandoning it permanently.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := app.Sync.Cancel(args[0])
		if err != nil {
			return err
		}
		printSnapshot(snap)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(cancelCmd)

	resumeCmd.Flags().IntVarP(&resumeMaxRecords, "max-records", "n", 0,
		"Stop after this many records (default from config)")
}
