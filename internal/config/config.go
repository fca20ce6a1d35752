// Package config loads sitecheck settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sitecheck/internal/browser"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all sitecheck configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Browser connection and viewport
	Browser browser.Config `yaml:"browser"`

	// Per-step and per-session waits
	Timing TimingConfig `yaml:"timing"`

	// What to run and how to report it
	Run RunConfig `yaml:"run"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// TimingConfig holds durations as Go duration strings ("10s", "500ms").
type TimingConfig struct {
	MaxWait        string `yaml:"max_wait"`
	PollInterval   string `yaml:"poll_interval"`
	ActionTimeout  string `yaml:"action_timeout"`
	Settle         string `yaml:"settle"`
	SessionTimeout string `yaml:"session_timeout"`
}

// RunConfig selects the plan and catalogue.
type RunConfig struct {
	Mode        string `yaml:"mode"` // quick, full
	Concurrency int    `yaml:"concurrency"`
	Catalog     string `yaml:"catalog"`
	Selectors   string `yaml:"selectors"`
	Output      string `yaml:"output"` // table, json, markdown
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "sitecheck",
		Version: "1.0.0",
		Browser: browser.DefaultConfig(),
		Timing: TimingConfig{
			MaxWait:        "10s",
			PollInterval:   "500ms",
			ActionTimeout:  "10s",
			Settle:         "300ms",
			SessionTimeout: "3m",
		},
		Run: RunConfig{
			Mode:        "quick",
			Concurrency: 2,
			Catalog:     "products.yaml",
			Selectors:   "selectors.yaml",
			Output:      "table",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func (c *Config) applyEnvOverrides() error {
	if url := os.Getenv("SITECHECK_DEBUGGER_URL"); url != "" {
		c.Browser.DebuggerURL = url
	}
	if v := os.Getenv("SITECHECK_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: SITECHECK_HEADLESS=%q: %v", ErrInvalidConfig, v, err)
		}
		c.Browser.Headless = b
	}
	if bin := os.Getenv("SITECHECK_CHROME_BIN"); bin != "" {
		if len(c.Browser.Launch) == 0 {
			c.Browser.Launch = []string{bin}
		} else {
			c.Browser.Launch[0] = bin
		}
	}
	if path := os.Getenv("SITECHECK_CATALOG"); path != "" {
		c.Run.Catalog = path
	}
	if mode := os.Getenv("SITECHECK_MODE"); mode != "" {
		c.Run.Mode = mode
	}
	if level := os.Getenv("SITECHECK_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	return nil
}

func duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// GetMaxWait returns the element polling budget.
func (c *Config) GetMaxWait() time.Duration { return duration(c.Timing.MaxWait, 10*time.Second) }

// GetPollInterval returns the polling period.
func (c *Config) GetPollInterval() time.Duration {
	return duration(c.Timing.PollInterval, 500*time.Millisecond)
}

// GetActionTimeout returns the click/navigation timeout.
func (c *Config) GetActionTimeout() time.Duration {
	return duration(c.Timing.ActionTimeout, 10*time.Second)
}

// GetSettle returns how long to wait for late script errors.
func (c *Config) GetSettle() time.Duration { return duration(c.Timing.Settle, 300*time.Millisecond) }

// GetSessionTimeout returns the per-session bound.
func (c *Config) GetSessionTimeout() time.Duration {
	return duration(c.Timing.SessionTimeout, 3*time.Minute)
}

// ValidModes lists the check plans.
var ValidModes = []string{"quick", "full"}

// ValidOutputs lists the report formats.
var ValidOutputs = []string{"table", "json", "markdown"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var problems []string

	if !contains(ValidModes, strings.ToLower(c.Run.Mode)) {
		problems = append(problems, fmt.Sprintf("run.mode %q (valid: %v)", c.Run.Mode, ValidModes))
	}
	if c.Run.Output != "" && !contains(ValidOutputs, c.Run.Output) {
		problems = append(problems, fmt.Sprintf("run.output %q (valid: %v)", c.Run.Output, ValidOutputs))
	}
	if c.Run.Concurrency < 1 {
		problems = append(problems, fmt.Sprintf("run.concurrency %d must be at least 1", c.Run.Concurrency))
	}
	for name, v := range map[string]string{
		"timing.max_wait":        c.Timing.MaxWait,
		"timing.poll_interval":   c.Timing.PollInterval,
		"timing.action_timeout":  c.Timing.ActionTimeout,
		"timing.settle":          c.Timing.Settle,
		"timing.session_timeout": c.Timing.SessionTimeout,
	} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			problems = append(problems, fmt.Sprintf("%s %q is not a valid duration", name, v))
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
