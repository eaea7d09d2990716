// Package config contains everything related to configuration
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// appDirName is the directory under ~/.config holding the database and files.
const appDirName = "cliproxy-usage-tui"

// Config holds the application configuration.
type Config struct {
	DatabasePath   string `envconfig:"DATABASE_PATH"`
	RateLimitsPath string `envconfig:"RATE_LIMITS_PATH"`
	LogFile        string `envconfig:"LOG_FILE"`
	CLIProxyURL    string `envconfig:"CLIPROXY_URL" default:"http://localhost:8317"`
	ManagementKey  string `envconfig:"CLIPROXY_MANAGEMENT_KEY"`
	PricingURL     string `envconfig:"PRICING_URL" default:"https://www.llm-prices.com/current-v1.json"`
	ListenAddr     string `envconfig:"LISTEN_ADDR" default:"127.0.0.1:5001"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat      string `envconfig:"LOG_FORMAT" default:"text"`
	WeeklyResetDay string `envconfig:"WEEKLY_RESET_DAY" default:"monday"`

	CollectorInterval  Duration `envconfig:"COLLECTOR_INTERVAL" default:"300"`
	StalenessThreshold Duration `envconfig:"STALENESS_THRESHOLD"`
	HTTPTimeout        Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`

	FalseStartCostUSD   float64 `envconfig:"FALSE_START_COST_USD" default:"0"`
	TimezoneOffsetHours int     `envconfig:"TIMEZONE_OFFSET_HOURS" default:"7"`
	WarningPercent      int     `envconfig:"WARNING_PERCENT" default:"70"`
	CriticalPercent     int     `envconfig:"CRITICAL_PERCENT" default:"90"`
	RemotePricing       bool    `envconfig:"REMOTE_PRICING" default:"true"`
}

// Duration is a time.Duration read from the environment.
// Accepts values like "30s", "1m", "500ms", or a bare number of seconds.
type Duration time.Duration

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		*d = 0
		return nil
	}
	if duration, err := time.ParseDuration(value); err == nil {
		*d = Duration(duration)
		return nil
	}
	// Try parsing as seconds if no unit specified
	secs, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid duration %q", value)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load reads configuration from .env files and environment variables.
func Load() (*Config, error) {
	// Try loading .env from multiple locations
	for _, path := range getEnvPaths() {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}

	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	// Ensure database directory exists
	if err := ensureDir(filepath.Dir(cfg.DatabasePath)); err != nil {
		return nil, err
	}
	if err := ensureDir(filepath.Dir(cfg.RateLimitsPath)); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromEnv decodes and validates the configuration from the current
// environment without touching the filesystem.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if cfg.DatabasePath == "" {
		cfg.DatabasePath = getDefaultPath("usage.db")
	}
	if cfg.RateLimitsPath == "" {
		cfg.RateLimitsPath = getDefaultPath("rate_limits.toml")
	}
	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(filepath.Dir(cfg.DatabasePath), "cut.log")
	}
	if _, set := os.LookupEnv("STALENESS_THRESHOLD"); !set {
		cfg.StalenessThreshold = cfg.CollectorInterval
	}
	cfg.CLIProxyURL = strings.TrimRight(cfg.CLIProxyURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges that envconfig cannot express.
func (c *Config) Validate() error {
	if c.TimezoneOffsetHours < -12 || c.TimezoneOffsetHours > 14 {
		return fmt.Errorf("TIMEZONE_OFFSET_HOURS must be between -12 and 14, got %d", c.TimezoneOffsetHours)
	}
	if c.CollectorInterval.Std() <= 0 {
		return fmt.Errorf("COLLECTOR_INTERVAL must be positive")
	}
	if c.StalenessThreshold.Std() < 0 {
		return fmt.Errorf("STALENESS_THRESHOLD must not be negative")
	}
	if c.WarningPercent <= 0 || c.CriticalPercent <= 0 || c.WarningPercent > c.CriticalPercent {
		return fmt.Errorf("thresholds must satisfy 0 < WARNING_PERCENT (%d) <= CRITICAL_PERCENT (%d)",
			c.WarningPercent, c.CriticalPercent)
	}
	if c.FalseStartCostUSD < 0 {
		return fmt.Errorf("FALSE_START_COST_USD must not be negative")
	}
	if _, err := c.ResetWeekday(); err != nil {
		return err
	}
	return nil
}

// Location returns the fixed time zone used for calendar days.
func (c *Config) Location() *time.Location {
	name := fmt.Sprintf("UTC%+d", c.TimezoneOffsetHours)
	return time.FixedZone(name, c.TimezoneOffsetHours*60*60)
}

// ResetWeekday parses WEEKLY_RESET_DAY.
func (c *Config) ResetWeekday() (time.Weekday, error) {
	s := strings.ToLower(strings.TrimSpace(c.WeeklyResetDay))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) >= 3 && strings.HasPrefix(name, s)) {
			return d, nil
		}
	}
	return time.Monday, fmt.Errorf("WEEKLY_RESET_DAY %q is not a weekday", c.WeeklyResetDay)
}

// getEnvPaths returns a list of paths to check for .env files.
func getEnvPaths() []string {
	var paths []string

	// Current directory
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}

	// Home directory locations
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", appDirName, ".env"),
			filepath.Join(home, ".cli-proxy-api", ".env"),
		)
	}

	// Parent directory (useful for development)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(cwd), ".env"))
	}

	return paths
}

// getDefaultPath returns name inside the application config directory.
func getDefaultPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".config", appDirName, name)
}

// ensureDir creates a directory and all parent directories if they don't exist.
func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o750)
}
