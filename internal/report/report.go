// Package report turns session results into JSON and terminal output.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"

	"sitecheck/internal/logging"
	"sitecheck/internal/session"
)

// Product-level statuses.
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusAborted = "aborted"
)

// Summary counts steps.
type Summary struct {
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	Skipped  int     `json:"skipped"`
	PassRate float64 `json:"pass_rate"`
	Duration float64 `json:"duration"`
}

// PassRate is passed/total as a percentage rounded to one decimal, 0 for
// an empty total.
func PassRate(passed, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(passed)/float64(total)*1000) / 10
}

// Product is the report for one session.
type Product struct {
	SessionID    string          `json:"session_id"`
	ID           string          `json:"product_id,omitempty"`
	Name         string          `json:"product_name"`
	URL          string          `json:"url"`
	Priority     string          `json:"priority,omitempty"`
	Status       string          `json:"status"`
	Aborted      string          `json:"aborted,omitempty"`
	StartTime    time.Time       `json:"start_time"`
	Steps        []*session.Step `json:"steps"`
	Summary      Summary         `json:"summary"`
	ScriptErrors int             `json:"script_errors"`
}

// Totals summarises the whole run.
type Totals struct {
	Products int     `json:"products"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	Aborted  int     `json:"aborted"`
	Steps    Summary `json:"steps"`
}

// Report is the full run report.
type Report struct {
	RunID       string    `json:"run_id"`
	Mode        string    `json:"mode"`
	GeneratedAt time.Time `json:"generated_at"`
	Duration    float64   `json:"duration"`
	Products    []Product `json:"products"`
	Totals      Totals    `json:"totals"`
}

// Build assembles a report from session results.
func Build(mode string, results []*session.Result, started, finished time.Time) *Report {
	r := &Report{
		RunID:       uuid.NewString(),
		Mode:        mode,
		GeneratedAt: finished,
		Duration:    finished.Sub(started).Seconds(),
		Products:    make([]Product, 0, len(results)),
	}
	for _, res := range results {
		p := product(res)
		r.Products = append(r.Products, p)

		r.Totals.Products++
		switch p.Status {
		case StatusFailed:
			r.Totals.Failed++
		case StatusAborted:
			r.Totals.Aborted++
		default:
			r.Totals.Passed++
		}
		r.Totals.Steps.Total += p.Summary.Total
		r.Totals.Steps.Passed += p.Summary.Passed
		r.Totals.Steps.Failed += p.Summary.Failed
		r.Totals.Steps.Skipped += p.Summary.Skipped
		r.Totals.Steps.Duration += p.Summary.Duration
	}
	r.Totals.Steps.PassRate = PassRate(r.Totals.Steps.Passed, r.Totals.Steps.Total)
	logging.ReportDebug("report %s built: %d products, %d steps", r.RunID, r.Totals.Products, r.Totals.Steps.Total)
	return r
}

func product(res *session.Result) Product {
	p := Product{
		SessionID:    res.ID,
		ID:           res.Target.ID,
		Name:         res.Target.Name,
		URL:          res.Target.URL,
		Priority:     res.Target.Priority,
		Aborted:      res.Aborted,
		StartTime:    res.StartTime,
		Steps:        res.Steps,
		ScriptErrors: len(res.Signals),
	}
	for _, st := range res.Steps {
		p.Summary.Total++
		switch st.State {
		case session.StatePassed:
			p.Summary.Passed++
		case session.StateFailed:
			p.Summary.Failed++
		case session.StateSkipped:
			p.Summary.Skipped++
		}
	}
	p.Summary.PassRate = PassRate(p.Summary.Passed, p.Summary.Total)
	p.Summary.Duration = res.Duration().Seconds()

	switch {
	case p.Summary.Failed > 0:
		p.Status = StatusFailed
	case res.Aborted != "":
		p.Status = StatusAborted
	default:
		p.Status = StatusPassed
	}
	return p
}

// HasFailures reports whether any product failed.
func (r *Report) HasFailures() bool {
	return r.Totals.Failed > 0
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}
