// Package session runs ordered check plans against a product page and
// records the outcome of every step.
//
// A Session owns one page, one signal log and one ordered list of steps.
// Steps run strictly in order; a Suite runs many sessions side by side,
// each in its own browser context.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sitecheck/internal/driver"
	"sitecheck/internal/logging"
	"sitecheck/internal/signals"
)

// Abort reasons written to skipped steps.
const (
	ReasonOuterTimeout   = "aborted by outer timeout"
	ReasonConnectionLost = "aborted: browser connection lost"
)

// Target is the product page under test.
type Target struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Priority string `json:"priority,omitempty"`
}

// Options configures a session.
type Options struct {
	// Timeout bounds the whole session. Zero means no bound beyond ctx.
	Timeout time.Duration
	Timing  Timing
}

// Result is the record of one finished session.
type Result struct {
	ID        string
	Target    Target
	Steps     []*Step
	StartTime time.Time
	EndTime   time.Time
	// Aborted holds the abort reason when the session stopped early.
	Aborted string
	// Signals is every script error the page raised during the session.
	Signals []signals.Entry
}

// Duration is the wall time of the session.
func (r *Result) Duration() time.Duration { return r.EndTime.Sub(r.StartTime) }

// Session runs one check plan against one page.
type Session struct {
	id     string
	target Target
	page   driver.Page
	log    *signals.Log
	checks []Check
	steps  []*Step
	opts   Options
	now    func() time.Time
}

// New builds a session with one pending step per check.
func New(page driver.Page, target Target, checks []Check, opts Options) *Session {
	steps := make([]*Step, len(checks))
	for i, c := range checks {
		steps[i] = NewStep(i+1, c.Name, c.Description)
	}
	return &Session{
		id:     uuid.New().String(),
		target: target,
		page:   page,
		log:    signals.New(),
		checks: checks,
		steps:  steps,
		opts:   opts,
		now:    time.Now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Steps returns the session's steps in order.
func (s *Session) Steps() []*Step { return s.steps }

// Log returns the session's signal log.
func (s *Session) Log() *signals.Log { return s.log }

// Run executes every step in order. It returns an error only when the
// session could not start; step problems are recorded in the result.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	if err := s.log.Subscribe(s.page); err != nil {
		return nil, fmt.Errorf("session %s: %w", s.id, err)
	}
	defer s.log.Close()

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	audit := logging.AuditWithSession(s.id, s.target.Name)
	runner := NewRunner(s.page, s.log, s.target, s.opts.Timing)
	runner.audit = audit
	runner.now = s.now

	res := &Result{ID: s.id, Target: s.target, Steps: s.steps, StartTime: s.now()}
	audit.SessionStart(len(s.steps))
	logging.Session("session %s started for %s (%d steps)", s.id, s.target.URL, len(s.steps))

	for i, check := range s.checks {
		step := s.steps[i]
		if ctx.Err() != nil {
			res.Aborted = s.abortFrom(i, ReasonOuterTimeout)
			break
		}

		err := runner.Run(ctx, step, check)
		switch {
		case err == nil:
		case errors.Is(err, driver.ErrDisconnected):
			logging.SessionWarn("session %s: %v", s.id, err)
			res.Aborted = s.abortFrom(i, ReasonConnectionLost)
		case ctx.Err() != nil:
			res.Aborted = s.abortFrom(i, ReasonOuterTimeout)
		default:
			logging.SessionWarn("session %s: step %d: %v", s.id, step.Number, err)
		}
		if res.Aborted != "" {
			break
		}

		if check.Required && step.State != StatePassed {
			res.Aborted = s.abortFrom(i+1, fmt.Sprintf("aborted: prerequisite step %d did not pass", step.Number))
			break
		}
	}

	if res.Aborted != "" {
		audit.SessionAbort(res.Aborted)
	}
	res.EndTime = s.now()
	res.Signals = s.log.Entries()
	audit.SessionEnd(res.Duration(), overallStatus(s.steps))
	logging.Session("session %s finished in %v: %s", s.id, res.Duration(), overallStatus(s.steps))
	return res, nil
}

// abortFrom skips every non-terminal step from index i on and returns reason
// when at least one step was skipped.
func (s *Session) abortFrom(i int, reason string) string {
	now := s.now()
	aborted := false
	for _, st := range s.steps[i:] {
		if st.abort(now, reason) {
			aborted = true
		}
	}
	if !aborted {
		return ""
	}
	return reason
}

func overallStatus(steps []*Step) string {
	status := StatePassed
	for _, st := range steps {
		switch st.State {
		case StateFailed:
			return StateFailed.String()
		case StateSkipped:
			status = StateSkipped
		}
	}
	return status.String()
}
