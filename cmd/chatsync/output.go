package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/TheMichaelB/chatsync/internal/models"
)

var (
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
)

func printSuccess(format string, args ...interface{}) {
	successColor.Fprintf(os.Stdout, format+"\n", args...)
}

func printWarning(format string, args ...interface{}) {
	warnColor.Fprintf(os.Stderr, format+"\n", args...)
}

func printError(format string, args ...interface{}) {
	errorColor.Fprintf(os.Stderr, format+"\n", args...)
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		printError("marshal output: %v", err)
		return
	}
	fmt.Println(string(data))
}

func printSnapshot(snap *models.CheckpointSnapshot) {
	if jsonOutput {
		printJSON(snap)
		return
	}

	fmt.Printf("%-28s %s\n", "Target:", snap.TargetID)
	fmt.Printf("%-28s %s\n", "Status:", snap.Status)
	fmt.Printf("%-28s %d\n", "Records synced:", snap.RecordsSynced)
	if snap.Cursor != "" {
		fmt.Printf("%-28s %s\n", "Cursor:", snap.Cursor)
	}
	if snap.LastTimestamp != 0 {
		fmt.Printf("%-28s %d\n", "Last record timestamp:", snap.LastTimestamp)
	}
	if snap.ErrorDetail != "" {
		fmt.Printf("%-28s %s\n", "Error:", snap.ErrorDetail)
	}
	fmt.Printf("%-28s %s\n", "Updated:", snap.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
}
