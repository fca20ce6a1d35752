package session

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"sitecheck/internal/driver"
	"sitecheck/internal/logging"
)

// Planner builds the check plan for a target.
type Planner func(Target) []Check

// SuiteOptions configures a batch run.
type SuiteOptions struct {
	// Concurrency caps how many sessions run at once. Values below 1 mean 1.
	Concurrency int
	Session     Options
}

// Suite runs one session per target, each on a fresh page.
type Suite struct {
	factory driver.PageFactory
	plan    Planner
	opts    SuiteOptions
}

// NewSuite returns a suite that opens pages from factory.
func NewSuite(factory driver.PageFactory, plan Planner, opts SuiteOptions) *Suite {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Suite{factory: factory, plan: plan, opts: opts}
}

// Run executes every target and returns results in target order. A
// session that fails to start or loses its browser never stops the others.
func (s *Suite) Run(ctx context.Context, targets []Target) []*Result {
	start := time.Now()
	audit := logging.Audit()
	audit.SuiteStart(len(targets))
	logging.Suite("suite started: %d targets, concurrency %d", len(targets), s.opts.Concurrency)

	results := make([]*Result, len(targets))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.opts.Concurrency)

	for i, target := range targets {
		eg.Go(func() error {
			results[i] = s.runOne(egCtx, target)
			return nil
		})
	}
	_ = eg.Wait()

	status := "passed"
	for _, r := range results {
		if st := overallStatus(r.Steps); st == "failed" {
			status = st
			break
		} else if st == "skipped" {
			status = st
		}
	}
	audit.SuiteComplete(time.Since(start), status)
	logging.Suite("suite finished in %v: %s", time.Since(start), status)
	return results
}

func (s *Suite) runOne(ctx context.Context, target Target) *Result {
	checks := s.plan(target)

	page, err := s.factory.NewPage(ctx)
	if err != nil {
		logging.SuiteWarn("cannot open page for %s: %v", target.Name, err)
		return unstarted(target, checks, fmt.Sprintf("aborted: cannot open browser page: %v", err))
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			logging.SuiteWarn("close page for %s: %v", target.Name, cerr)
		}
	}()

	sess := New(page, target, checks, s.opts.Session)
	res, err := sess.Run(ctx)
	if err != nil {
		logging.SuiteWarn("session for %s did not start: %v", target.Name, err)
		return unstarted(target, checks, fmt.Sprintf("aborted: %v", err))
	}
	return res
}

// unstarted builds a result whose steps are all skipped with reason.
func unstarted(target Target, checks []Check, reason string) *Result {
	now := time.Now()
	sess := New(nil, target, checks, Options{})
	sess.abortFrom(0, reason)
	return &Result{
		ID:        sess.id,
		Target:    target,
		Steps:     sess.steps,
		StartTime: now,
		EndTime:   now,
		Aborted:   reason,
	}
}
