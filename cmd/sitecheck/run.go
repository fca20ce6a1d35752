package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"sitecheck/internal/catalog"
	"sitecheck/internal/checks"
	"sitecheck/internal/session"
)

var runName string

var runCmd = &cobra.Command{
	Use:   "run [url|product-id]",
	Short: "Check a single product page",
	Long: `Checks one product. The argument is either a full http(s) URL or the id
of a product in the configured catalogue.

Example:
  sitecheck run https://shop.example/products/city-bike
  sitecheck run city-bike --mode full`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, overrides, err := resolveTarget(args[0], runName, cfg.Run.Catalog)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()
		return runTargets(ctx, cmd.OutOrStdout(), cfg, overrides, []session.Target{target})
	},
}

func init() {
	runCmd.Flags().StringVar(&runName, "name", "", "Display name when checking a bare URL")
}

// resolveTarget turns a URL or catalogue id into a target.
func resolveTarget(arg, name, catalogPath string) (session.Target, checks.Overrides, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		u, err := url.Parse(arg)
		if err != nil || u.Host == "" {
			return session.Target{}, nil, fmt.Errorf("invalid url %q", arg)
		}
		if name == "" {
			name = u.Host + u.Path
		}
		return session.Target{Name: name, URL: arg}, nil, nil
	}

	cat, err := catalog.Load(catalogPath)
	if err != nil {
		return session.Target{}, nil, err
	}
	p, ok := cat.Find(arg)
	if !ok {
		return session.Target{}, nil, fmt.Errorf("product %q not found in %s", arg, catalogPath)
	}
	return p.Target(), overridesFor([]catalog.Product{p}), nil
}

// overridesFor collects per-product selector overrides.
func overridesFor(products []catalog.Product) checks.Overrides {
	o := make(checks.Overrides)
	for _, p := range products {
		if len(p.Selectors) > 0 {
			o[p.Target().ID] = p.Selectors
		}
	}
	return o
}
