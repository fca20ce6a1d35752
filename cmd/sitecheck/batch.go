package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"sitecheck/internal/catalog"
	"sitecheck/internal/logging"
	"sitecheck/internal/session"
)

var (
	batchPriorities  []string
	batchCategory    string
	batchTag         string
	batchLimit       int
	batchDiverse     bool
	batchVariants    bool
	batchConcurrency int
	batchWatch       bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Check products from the catalogue",
	Long: `Checks every catalogue product that passes the filters, running
sessions concurrently on separate pages.

With --watch the batch runs again whenever the catalogue or selector file
changes, until interrupted.

Example:
  sitecheck batch --priority P0 --limit 5
  sitecheck batch --diverse --limit 10 --mode full
  sitecheck batch --watch`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("concurrency") {
			cfg.Run.Concurrency = batchConcurrency
		}
		filter, err := batchFilter()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		out := cmd.OutOrStdout()
		if !batchWatch {
			return runBatch(ctx, out, filter)
		}
		return watchBatch(ctx, out, filter)
	},
}

func init() {
	batchCmd.Flags().StringSliceVarP(&batchPriorities, "priority", "p", nil, "Only these priorities (P0, P1, P2)")
	batchCmd.Flags().StringVar(&batchCategory, "category", "", "Only this category")
	batchCmd.Flags().StringVar(&batchTag, "tag", "", "Only products with this tag")
	batchCmd.Flags().IntVarP(&batchLimit, "limit", "n", 0, "At most this many products")
	batchCmd.Flags().BoolVar(&batchDiverse, "diverse", false, "Prefer one product per category")
	batchCmd.Flags().BoolVar(&batchVariants, "include-variants", false, "Include variant-anchor entries")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 2, "Sessions to run at once")
	batchCmd.Flags().BoolVarP(&batchWatch, "watch", "w", false, "Re-run when the catalogue or selectors change")
}

// batchFilter builds the catalogue filter from flags.
func batchFilter() (catalog.Filter, error) {
	f := catalog.Filter{
		Category:        batchCategory,
		Tag:             batchTag,
		Limit:           batchLimit,
		Diverse:         batchDiverse,
		IncludeVariants: batchVariants,
	}
	for _, p := range batchPriorities {
		switch pr := catalog.Priority(strings.ToUpper(strings.TrimSpace(p))); pr {
		case catalog.P0, catalog.P1, catalog.P2:
			f.Priorities = append(f.Priorities, pr)
		default:
			return catalog.Filter{}, fmt.Errorf("unknown priority %q (valid: P0, P1, P2)", p)
		}
	}
	return f, nil
}

// selectTargets loads the catalogue and applies the filter.
func selectTargets(path string, f catalog.Filter) ([]catalog.Product, []session.Target, error) {
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, nil, err
	}
	products := cat.Select(f)
	targets := make([]session.Target, 0, len(products))
	for _, p := range products {
		targets = append(targets, p.Target())
	}
	return products, targets, nil
}

func runBatch(ctx context.Context, out io.Writer, f catalog.Filter) error {
	products, targets, err := selectTargets(cfg.Run.Catalog, f)
	if err != nil {
		return err
	}
	logging.Suite("batch: %d products selected from %s", len(targets), cfg.Run.Catalog)
	return runTargets(ctx, out, cfg, overridesFor(products), targets)
}

func watchBatch(ctx context.Context, out io.Writer, f catalog.Filter) error {
	rerun := func(ctx context.Context, changed []string) {
		if ctx.Err() != nil {
			return
		}
		logging.Suite("changed: %s, re-running batch", strings.Join(changed, ", "))
		if err := runBatch(ctx, out, f); err != nil && !errors.Is(err, errChecksFailed) {
			logging.SuiteWarn("batch run: %v", err)
		}
	}

	w, err := catalog.NewWatcher([]string{cfg.Run.Catalog, cfg.Run.Selectors}, rerun)
	if err != nil {
		return fmt.Errorf("failed to watch catalogue: %w", err)
	}
	w.Start(ctx)
	defer w.Stop()

	rerun(ctx, []string{cfg.Run.Catalog})
	<-ctx.Done()
	return nil
}
