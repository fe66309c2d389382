package main

import (
	"context"

	"github.com/spf13/cobra"
)

var drainLimit int

var drainCmd = &cobra.Command{
	Use:   "drain <chat-jid>",
	Short: "Merge staged records into the authoritative store",
	Long: `Drain moves a chat's rows from the staging database into the
authoritative store and clears them afterwards. The staging store is
disposable scratch space; it can always be rebuilt by re-running sync.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		written, err := app.Sync.DrainStaging(context.Background(), args[0], drainLimit)
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(map[string]interface{}{"target_id": args[0], "records": written})
			return nil
		}
		printSuccess("Drained %d staged records for %s", written, args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(drainCmd)

	drainCmd.Flags().IntVar(&drainLimit, "limit", 1000,
		"Maximum staged records to merge")
}
