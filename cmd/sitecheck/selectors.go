package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sitecheck/internal/report"
	"sitecheck/internal/selectors"
)

var selectorsCmd = &cobra.Command{
	Use:   "selectors",
	Short: "List the selectors in effect",
	Long: `Prints every selector key per group with the selector list that will be
tried, after merging the selector file over the built-in defaults.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := selectors.Load(cfg.Run.Selectors)
		if err != nil {
			return err
		}
		styles := report.DetectStyles()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "platform: %s\n\n", mgr.Platform())
		for _, g := range selectors.Groups() {
			keys := mgr.Keys(g)
			if len(keys) == 0 {
				continue
			}
			width := 0
			for _, key := range keys {
				width = max(width, len(key))
			}
			fmt.Fprintln(out, styles.Title.Render(string(g)))
			for _, key := range keys {
				fmt.Fprintf(out, "  %s  %s\n", styles.Bold.Render(fmt.Sprintf("%-*s", width, key)), strings.Join(mgr.List(g, key), styles.Muted.Render(" | ")))
			}
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "sitecheck %s\n", version)
		return nil
	},
}
