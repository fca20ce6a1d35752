// Command sitecheck runs diagnostic checks against storefront product pages
// and classifies every problem it finds.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"sitecheck/internal/config"
	"sitecheck/internal/logging"
)

// version is set at build time with -ldflags.
var version = "dev"

var (
	// Global flags
	configPath string
	verbose    bool
	timeout    time.Duration
	jsonOut    bool
	output     string
	mode       string

	cfg *config.Config
)

// errChecksFailed signals that the run completed with website bugs.
var errChecksFailed = errors.New("checks found website bugs")

var rootCmd = &cobra.Command{
	Use:   "sitecheck",
	Short: "Diagnostic checks for storefront product pages",
	Long: `sitecheck drives a real browser through product pages and classifies
every failure as a website bug, a missing feature, a timeout, a test error or
a network error. Only website bugs fail a step.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlags(cmd, loaded)
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded

		opts := cfg.Logging.Options()
		if verbose {
			opts.Level = "debug"
		}
		if err := logging.Initialize(opts); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.Boot("sitecheck %s: config %s, mode %s", version, configPath, cfg.Run.Mode)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
	},
}

// applyFlags lets explicitly set flags win over file and environment values.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		c.Run.Mode = mode
	}
	if flags.Changed("output") {
		c.Run.Output = output
	}
	if jsonOut {
		c.Run.Output = "json"
	}
	if flags.Changed("timeout") {
		c.Timing.SessionTimeout = timeout.String()
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "sitecheck.yaml", "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 3*time.Minute, "Per-product session timeout")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Write the report as JSON")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Report format: table, json, markdown")
	rootCmd.PersistentFlags().StringVarP(&mode, "mode", "m", "quick", "Check plan: quick, full")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(selectorsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errChecksFailed) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
