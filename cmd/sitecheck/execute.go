package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sitecheck/internal/browser"
	"sitecheck/internal/checks"
	"sitecheck/internal/config"
	"sitecheck/internal/driver"
	"sitecheck/internal/logging"
	"sitecheck/internal/report"
	"sitecheck/internal/selectors"
	"sitecheck/internal/session"
)

// sessionOptions maps the timing section onto session options.
func sessionOptions(c *config.Config) session.Options {
	return session.Options{
		Timeout: c.GetSessionTimeout(),
		Timing: session.Timing{
			MaxWait:       c.GetMaxWait(),
			Interval:      c.GetPollInterval(),
			ActionTimeout: c.GetActionTimeout(),
			Settle:        c.GetSettle(),
		},
	}
}

// checkSuite runs targets against pages from factory and builds the report.
func checkSuite(ctx context.Context, c *config.Config, factory driver.PageFactory, sel *selectors.Manager, overrides checks.Overrides, targets []session.Target) (*report.Report, error) {
	m, err := checks.ParseMode(c.Run.Mode)
	if err != nil {
		return nil, err
	}
	suite := session.NewSuite(factory, checks.Planner(m, sel, overrides), session.SuiteOptions{
		Concurrency: c.Run.Concurrency,
		Session:     sessionOptions(c),
	})

	start := time.Now()
	results := suite.Run(ctx, targets)
	return report.Build(string(m), results, start, time.Now()), nil
}

// runTargets starts a browser, checks every target and writes the report.
func runTargets(ctx context.Context, out io.Writer, c *config.Config, overrides checks.Overrides, targets []session.Target) error {
	if len(targets) == 0 {
		return fmt.Errorf("no products selected")
	}
	sel, err := selectors.Load(c.Run.Selectors)
	if err != nil {
		return err
	}

	mgr := browser.NewManager(c.Browser)
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	logging.Boot("browser ready at %s", mgr.ControlURL())
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			logging.BootWarn("browser shutdown: %v", err)
		}
	}()

	rep, err := checkSuite(ctx, c, mgr, sel, overrides, targets)
	if err != nil {
		return err
	}
	if rep.Totals.Aborted > 0 && !mgr.IsConnected() {
		logging.BootWarn("browser at %s stopped responding during the run", mgr.ControlURL())
	}
	if err := writeReport(out, c.Run.Output, rep); err != nil {
		return err
	}
	if rep.HasFailures() {
		return errChecksFailed
	}
	return nil
}

// writeReport renders rep in the configured format.
func writeReport(out io.Writer, format string, rep *report.Report) error {
	switch format {
	case "json":
		return rep.WriteJSON(out)
	case "markdown":
		_, err := io.WriteString(out, rep.Markdown())
		return err
	default:
		_, err := io.WriteString(out, rep.Text(report.DetectStyles(), 100))
		return err
	}
}

// signalContext cancels on interrupt or terminate.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
