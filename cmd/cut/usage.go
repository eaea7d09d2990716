package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/j-veylop/cliproxy-usage-tui/internal/ui/components"
	engine "github.com/j-veylop/cliproxy-usage-tui/internal/usage"
)

var (
	flagFrom     string
	flagTo       string
	flagMinutes  int
	flagGroupBy  string
	flagChartDay int
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show reconciled usage for a window",
	Long: `Show reconciled usage for a window.

With no flags the window is today. --from and --to select calendar days
(YYYY-MM-DD, inclusive). --minutes selects a sliding window ending now.`,
	RunE: runUsage,
}

func init() {
	usageCmd.Flags().StringVar(&flagFrom, "from", "", "First day (YYYY-MM-DD)")
	usageCmd.Flags().StringVar(&flagTo, "to", "", "Last day (YYYY-MM-DD), defaults to today")
	usageCmd.Flags().IntVarP(&flagMinutes, "minutes", "m", 0, "Sliding window length in minutes")
	usageCmd.Flags().StringVarP(&flagGroupBy, "by", "b", "key", "Group rows by key, model or endpoint")
	usageCmd.Flags().IntVar(&flagChartDay, "chart", 0, "Also chart daily tokens for the last N days")
	usageCmd.MarkFlagsMutuallyExclusive("minutes", "from")
	usageCmd.MarkFlagsMutuallyExclusive("minutes", "to")
	rootCmd.AddCommand(usageCmd)
}

// usageSpec builds the window described by the flags.
func usageSpec(now time.Time, loc *time.Location) (engine.WindowSpec, string, error) {
	if flagMinutes < 0 {
		return engine.WindowSpec{}, "", errors.New("--minutes must be positive")
	}
	if flagMinutes > 0 {
		d := time.Duration(flagMinutes) * time.Minute
		return engine.Sliding(now, d), "last " + d.String(), nil
	}

	to := now.In(loc)
	if flagTo != "" {
		t, err := time.ParseInLocation(time.DateOnly, flagTo, loc)
		if err != nil {
			return engine.WindowSpec{}, "", fmt.Errorf("invalid --to: %w", err)
		}
		to = t
	}
	from := to
	if flagFrom != "" {
		f, err := time.ParseInLocation(time.DateOnly, flagFrom, loc)
		if err != nil {
			return engine.WindowSpec{}, "", fmt.Errorf("invalid --from: %w", err)
		}
		from = f
	}

	if from.Format(time.DateOnly) == to.Format(time.DateOnly) {
		return engine.Day(to), to.Format(time.DateOnly), nil
	}
	return engine.Days(from, to), from.Format(time.DateOnly) + " to " + to.Format(time.DateOnly), nil
}

func runUsage(cmd *cobra.Command, _ []string) error {
	mgr, cleanup, err := openManager(nil)
	if err != nil {
		return err
	}
	defer cleanup()

	svc := mgr.Usage()
	spec, label, err := usageSpec(time.Now(), svc.Planner().Location)
	if err != nil {
		return err
	}

	res, err := svc.Window(cmd.Context(), spec)
	if err != nil {
		return err
	}

	fmt.Printf("\n  Usage %s (%s)\n\n", label, svc.Planner().Location)
	if err := renderResult(os.Stdout, res, flagGroupBy); err != nil {
		return err
	}

	if flagChartDay <= 0 {
		return nil
	}
	daily, err := svc.Daily(cmd.Context(), flagChartDay)
	if err != nil {
		return err
	}
	input := make([]float64, len(daily))
	output := make([]float64, len(daily))
	for i, d := range daily {
		input[i] = float64(d.InputTokens)
		output[i] = float64(d.OutputTokens)
	}
	fmt.Println()
	fmt.Println(components.RenderTokenChart(input, output, 70, 10, fmt.Sprintf("Tokens, last %d days", len(daily))))
	return nil
}
