package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var flagOlderThan int

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old snapshots and compact the database",
	Long: `Delete snapshots collected more than --older-than days ago, then vacuum.

Usage of windows that start before the cutoff can no longer be reconciled
exactly once their baseline snapshots are gone.`,
	RunE: runPrune,
}

func init() {
	pruneCmd.Flags().IntVar(&flagOlderThan, "older-than", 90, "Age in days of the snapshots to delete")
	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, _ []string) error {
	if flagOlderThan < 1 {
		return errors.New("--older-than must be at least 1 day")
	}

	mgr, cleanup, err := openManager(nil)
	if err != nil {
		return err
	}
	defer cleanup()

	cutoff := time.Now().AddDate(0, 0, -flagOlderThan)
	n, err := mgr.Database().DeleteSnapshotsBefore(cmd.Context(), cutoff)
	if err != nil {
		return err
	}
	if err := mgr.Database().Vacuum(); err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}
	fmt.Printf("Deleted %d snapshots collected before %s\n", n, cutoff.Local().Format(time.DateOnly))
	return nil
}
