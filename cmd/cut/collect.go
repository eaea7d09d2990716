package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/j-veylop/cliproxy-usage-tui/internal/ui/components"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Take one snapshot of the proxy counters and store it",
	RunE:  runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, _ []string) error {
	mgr, cleanup, err := openManager(nil)
	if err != nil {
		return err
	}
	defer cleanup()

	snap, err := mgr.Collector().Collect(cmd.Context())
	if err != nil {
		return fmt.Errorf("collect failed: %w", err)
	}

	fmt.Printf("Stored snapshot #%d at %s\n", snap.ID, snap.CollectedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("  %d keys, %s requests, %s tokens, %s cumulative\n",
		len(snap.Counters),
		components.FormatCount(snap.TotalRequests),
		components.FormatTokens(snap.TotalTokens),
		components.FormatCost(snap.CumulativeCost))
	for _, d := range snap.Defects {
		fmt.Printf("  skipped: %s\n", d)
	}
	return nil
}
