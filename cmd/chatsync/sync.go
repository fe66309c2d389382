package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/chatsync/internal/models"
)

var syncCmd = &cobra.Command{
	Use:   "sync <chat-jid>",
	Short: "Sync a chat's history into the local store",
	Long: `Sync fetches a chat's history from the bridge batch by batch,
persisting records and checkpoint progress as it goes. Interrupting the
command (Ctrl-C) cancels cooperatively after the in-flight batch.`,
	Example: `  chatsync sync 123456789@s.whatsapp.net
  chatsync sync 123456789@s.whatsapp.net --max-records 5000`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

var (
	syncMaxRecords int
	syncResume     bool
)

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().IntVarP(&syncMaxRecords, "max-records", "n", 0,
		"Stop after this many records (default from config)")
	syncCmd.Flags().BoolVar(&syncResume, "resume", false,
		"Continue from the last persisted cursor")
}

func runSync(cmd *cobra.Command, args []string) error {
	targetID := args[0]

	maxRecords := syncMaxRecords
	if maxRecords <= 0 {
		maxRecords = cfg.Sync.DefaultMaxRecords
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		printWarning("\nInterrupt received, cancelling after current batch...")
		if _, err := app.Sync.Cancel(targetID); err != nil {
			cancel()
		}
	}()

	snap, accepted, err := app.Sync.StartSync(ctx, targetID, syncResume, maxRecords)
	if err != nil {
		return err
	}
	if !accepted {
		printWarning("Sync already active for %s", targetID)
		printSnapshot(snap)
		return nil
	}

	// Block until the background loop exits, then report the outcome.
	app.Sync.Wait()

	final, err := app.Sync.Status(targetID)
	if err != nil {
		return err
	}
	printSnapshot(final)

	switch final.Status {
	case models.StatusCompleted:
		printSuccess("Sync completed: %d records", final.RecordsSynced)
	case models.StatusCancelled:
		printWarning("Sync cancelled after %d records", final.RecordsSynced)
	case models.StatusInterrupted:
		printWarning("Sync interrupted, resume with: chatsync resume %s", targetID)
	case models.StatusFailed:
		printError("Sync failed: %s", final.ErrorDetail)
	}

	return nil
}
