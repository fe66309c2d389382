package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/chatsync/internal/models"
)

var statusCmd = &cobra.Command{
	Use:   "status <chat-jid>",
	Short: "Show the sync checkpoint for a chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := app.Sync.Status(args[0])
		if err != nil {
			return err
		}
		printSnapshot(snap)
		return nil
	},
}

var listStatus string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List sync checkpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		snaps, err := app.Sync.List(models.Status(listStatus))
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(snaps)
			return nil
		}

		if len(snaps) == 0 {
			fmt.Println("No checkpoints found.")
			return nil
		}

		fmt.Printf("%-40s %-12s %10s  %s\n", "TARGET", "STATUS", "RECORDS", "UPDATED")
		for _, snap := range snaps {
			fmt.Printf("%-40s %-12s %10d  %s\n",
				snap.TargetID, snap.Status, snap.RecordsSynced,
				snap.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listStatus, "status", "",
		"Filter by status (e.g. INTERRUPTED, COMPLETED)")
}
