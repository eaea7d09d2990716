package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/j-veylop/cliproxy-usage-tui/internal/app"
	"github.com/j-veylop/cliproxy-usage-tui/internal/config"
	"github.com/j-veylop/cliproxy-usage-tui/internal/logger"
	"github.com/j-veylop/cliproxy-usage-tui/internal/services"
	"github.com/j-veylop/cliproxy-usage-tui/internal/ui/tabs/info"
	"github.com/j-veylop/cliproxy-usage-tui/internal/ui/tabs/limits"
	"github.com/j-veylop/cliproxy-usage-tui/internal/ui/tabs/usage"
)

var (
	flagDatabase   string
	flagRateLimits string
	flagProxyURL   string
)

var rootCmd = &cobra.Command{
	Use:   "cut",
	Short: "CLIProxy usage tracker",
	Long: `Track token, request and cost usage of a CLIProxy instance.

Snapshots of the proxy's cumulative counters are stored in SQLite and
reconciled into per-window usage. Rate limits defined in a TOML file are
evaluated against that usage.

Keyboard shortcuts (dashboard):
  1-3             Switch between tabs (Usage, Limits, Info)
  Tab/Shift+Tab   Navigate between tabs
  j/k, Up/Down    Navigate lists
  r               Collect and refresh now
  ?               Toggle help
  q, Ctrl+C       Quit

Configuration is read from .env files and environment variables such as
CLIPROXY_URL, DATABASE_PATH and RATE_LIMITS_PATH.`,
	SilenceUsage: true,
	RunE:         runDashboard,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDatabase, "db", "", "SQLite database path (overrides DATABASE_PATH)")
	rootCmd.PersistentFlags().StringVar(&flagRateLimits, "limits-file", "", "Rate limits TOML file (overrides RATE_LIMITS_PATH)")
	rootCmd.PersistentFlags().StringVar(&flagProxyURL, "proxy", "", "CLIProxy base URL (overrides CLIPROXY_URL)")
}

// loadConfig loads configuration, applies flag overrides and configures
// logging. Logs go to the configured log file, mirrored to console when it is
// not nil.
func loadConfig(console io.Writer) (*config.Config, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if flagDatabase != "" {
		cfg.DatabasePath = flagDatabase
	}
	if flagRateLimits != "" {
		cfg.RateLimitsPath = flagRateLimits
	}
	if flagProxyURL != "" {
		cfg.CLIProxyURL = flagProxyURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	for _, dir := range []string{filepath.Dir(cfg.DatabasePath), filepath.Dir(cfg.RateLimitsPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	w, closeLog := io.Discard, func() {}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w, closeLog = f, func() { _ = f.Close() }
	}
	if console != nil {
		w = io.MultiWriter(w, console)
	}
	if err := logger.Configure(w, cfg.LogLevel, cfg.LogFormat); err != nil {
		closeLog()
		return nil, nil, err
	}
	return cfg, closeLog, nil
}

// openManager loads configuration and wires the services without starting
// background polling.
func openManager(console io.Writer) (*services.Manager, func(), error) {
	cfg, closeLog, err := loadConfig(console)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := services.NewManager(cfg)
	if err != nil {
		closeLog()
		return nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	cleanup := func() {
		if err := mgr.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: error closing services: %v\n", err)
		}
		closeLog()
	}
	return mgr, cleanup, nil
}

func runDashboard(_ *cobra.Command, _ []string) error {
	// The dashboard owns the terminal, so logs only go to the file.
	mgr, cleanup, err := openManager(nil)
	if err != nil {
		return err
	}
	defer cleanup()

	mgr.Start()

	model := app.NewModel(mgr)
	state := model.GetState()
	model.SetTabs([]app.Tab{
		usage.New(state),
		limits.New(state),
		info.New(state, mgr.Config(), mgr.Collector()),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())

	go func() {
		if _, ok := <-sigChan; ok {
			p.Send(tea.Quit())
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
