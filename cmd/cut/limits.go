package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/j-veylop/cliproxy-usage-tui/internal/db"
)

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Evaluate and list configured rate limits",
	RunE:  runLimits,
}

var resetCmd = &cobra.Command{
	Use:   "reset <id>",
	Short: "Start a new window for a rate limit now",
	Long: `Record a manual reset for the rate limit with the given ID (see "cut limits" for IDs).
Usage before the reset no longer counts towards the limit.`,
	Args: cobra.ExactArgs(1),
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(limitsCmd, resetCmd)
}

func runLimits(cmd *cobra.Command, _ []string) error {
	mgr, cleanup, err := openManager(nil)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Printf("\n  Rate limits from %s\n\n", mgr.Config().RateLimitsPath)

	statuses, err := mgr.RateLimits().Evaluate(cmd.Context())
	renderStatuses(os.Stdout, statuses)
	return err
}

func runReset(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid rate limit id %q", args[0])
	}

	mgr, cleanup, err := openManager(nil)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := mgr.ResetLimit(cmd.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("no rate limit with id %d", id)
		}
		return err
	}

	statuses, err := mgr.RateLimits().Evaluate(cmd.Context())
	if err != nil {
		return err
	}
	for _, st := range statuses {
		if st.ConfigID == id {
			fmt.Printf("Reset %q, next reset %s\n", st.Name, st.NextReset.Local().Format("Jan 02 15:04"))
			return nil
		}
	}
	fmt.Printf("Reset rate limit %d\n", id)
	return nil
}
