package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sitecheck/internal/classify"
	"sitecheck/internal/driver"
	"sitecheck/internal/logging"
	"sitecheck/internal/probe"
	"sitecheck/internal/signals"
)

// Timing holds the per-step waits.
type Timing struct {
	// MaxWait bounds polling for late elements.
	MaxWait time.Duration
	// Interval is the polling period.
	Interval time.Duration
	// ActionTimeout bounds a single click or navigation.
	ActionTimeout time.Duration
	// Settle is how long to wait after an action for late script errors.
	Settle time.Duration
}

// DefaultTiming returns the waits used by the CLI.
func DefaultTiming() Timing {
	return Timing{
		MaxWait:       probe.DefaultMaxWait,
		Interval:      probe.DefaultInterval,
		ActionTimeout: 10 * time.Second,
		Settle:        300 * time.Millisecond,
	}
}

// Outcome is what a check observed after performing its action.
type Outcome struct {
	// Succeeded is true when the expected post-condition held.
	Succeeded bool
	// Skip marks a step that could not be meaningfully run (for example an
	// empty cart). It wins over Succeeded.
	Skip bool
	// Message is the step message on success or skip.
	Message string
	// Problem describes what went wrong when Succeeded is false.
	Problem string
	// Observed records the post-condition values, for diagnostics.
	Observed string
	// Unavailable marks a Problem caused by an element that exists but is
	// not usable (hidden). Without script errors behind it the step is
	// skipped as a missing feature instead of passing as benign.
	Unavailable bool
}

// Env is what a check's action can reach.
type Env struct {
	Page   driver.Page
	Target Target
	// Element is the detection result for the check's selectors. For checks
	// without selectors it reports an existing element with no handle.
	Element probe.Result
	Probe   *probe.Probe
	Poller  *probe.Poller
	Timing  Timing
}

// Await polls for selectors with the session's timing.
func (e *Env) Await(ctx context.Context, selectors []string, name string) probe.Result {
	return e.Poller.AwaitElement(ctx, selectors, name, e.Timing.MaxWait, e.Timing.Interval)
}

// Check is one entry in a check plan.
type Check struct {
	Name        string
	Description string
	// Scenario and Operation describe the check in issue reports.
	Scenario  string
	Operation string
	// Feature names the element for probe messages.
	Feature   string
	Selectors []string
	// Await polls for the selectors instead of probing once.
	Await bool
	// Required aborts the remaining steps when this check does not pass.
	Required bool
	Act      func(ctx context.Context, env *Env) (Outcome, error)
}

// Runner drives single steps through probe, act, observe, classify.
type Runner struct {
	page   driver.Page
	log    *signals.Log
	probe  *probe.Probe
	poller *probe.Poller
	timing Timing
	target Target
	audit  *logging.AuditLogger
	now    func() time.Time
}

// NewRunner returns a runner bound to one page and its signal log.
func NewRunner(page driver.Page, log *signals.Log, target Target, timing Timing) *Runner {
	p := probe.New(page)
	return &Runner{
		page:   page,
		log:    log,
		probe:  p,
		poller: probe.NewPoller(p),
		timing: timing,
		target: target,
		audit:  logging.Audit(),
		now:    time.Now,
	}
}

// Run executes check as step. Problems found by the check end up in the
// step; the returned error is reserved for conditions that end the whole
// session: driver.ErrDisconnected or cancellation of ctx. In both cases
// the step is left running for the session to abort.
func (r *Runner) Run(ctx context.Context, step *Step, check Check) error {
	if err := step.Start(r.now()); err != nil {
		return err
	}
	r.audit.StepStart(step.Number, step.Name)

	element := probe.Result{Exists: true, Visible: true, Enabled: true}
	if len(check.Selectors) > 0 {
		feature := check.Feature
		if feature == "" {
			feature = check.Name
		}
		if check.Await {
			element = r.poller.AwaitElement(ctx, check.Selectors, feature, r.timing.MaxWait, r.timing.Interval)
		} else {
			element = r.probe.Detect(ctx, check.Selectors, feature)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if element.Fatal != nil {
			return fmt.Errorf("step %d %s: %w", step.Number, step.Name, element.Fatal)
		}
		if !element.Exists {
			c := classify.Classify(classify.Input{Element: element})
			return r.finish(step, c, fmt.Sprintf("feature not implemented: %s", c.Reason), nil, nil)
		}
	}

	baseline := r.log.Baseline()
	env := &Env{
		Page:    r.page,
		Target:  r.target,
		Element: element,
		Probe:   r.probe,
		Poller:  r.poller,
		Timing:  r.timing,
	}

	var (
		outcome Outcome
		actErr  error
	)
	if check.Act != nil {
		outcome, actErr = check.Act(ctx, env)
	} else {
		outcome = Outcome{Succeeded: true}
	}

	if errors.Is(actErr, driver.ErrDisconnected) {
		return fmt.Errorf("step %d %s: %w", step.Number, step.Name, actErr)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if !outcome.Succeeded && r.timing.Settle > 0 {
		t := time.NewTimer(r.timing.Settle)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	delta := r.log.Delta(baseline)

	if actErr == nil && outcome.Skip {
		c := classify.Classification{Kind: classify.None, Reason: outcome.Message}
		step.Classification = &c
		if err := step.Complete(r.now(), StateSkipped, outcome.Message, nil, nil); err != nil {
			return err
		}
		r.audit.StepComplete(step.Number, step.State.String(), step.Duration(), step.Message, "")
		return nil
	}

	c := classify.Classify(classify.Input{
		Element:            element,
		OperationSucceeded: actErr == nil && outcome.Succeeded,
		Delta:              delta,
		Exception:          classify.KindOf(actErr),
	})
	if c.Kind == classify.Benign && outcome.Unavailable {
		c = classify.Classification{Kind: classify.MissingFeature, Reason: outcome.Problem}
	}

	var details *IssueDetails
	if c.Kind == classify.WebsiteBug {
		problem := outcome.Problem
		if problem == "" {
			problem = fmt.Sprintf("%s had no effect", check.Operation)
		}
		details = &IssueDetails{
			Scenario:     check.Scenario,
			Operation:    check.Operation,
			Problem:      problem,
			RootCause:    c.Reason,
			ScriptErrors: delta.Messages(),
		}
	}
	return r.finish(step, c, stepMessage(c, outcome), actErr, details)
}

func (r *Runner) finish(step *Step, c classify.Classification, message string, actErr error, details *IssueDetails) error {
	step.Classification = &c
	logging.ClassifyDebug("step %d %s -> %s: %s", step.Number, step.Name, c.Kind, c.Reason)
	r.audit.Classified(step.Number, string(c.Kind), c.Reason)

	if err := step.Complete(r.now(), stateForKind(c.Kind), message, actErr, details); err != nil {
		return err
	}
	errMsg := ""
	if actErr != nil {
		errMsg = actErr.Error()
	}
	r.audit.StepComplete(step.Number, step.State.String(), step.Duration(), step.Message, errMsg)
	return nil
}

func stepMessage(c classify.Classification, out Outcome) string {
	switch c.Kind {
	case classify.None:
		if out.Message != "" {
			return out.Message
		}
		return "ok"
	case classify.Benign:
		if out.Problem != "" {
			return fmt.Sprintf("no observable effect (%s); no script errors", out.Problem)
		}
		return "no observable effect; no script errors"
	case classify.MissingFeature:
		return "feature not implemented: " + c.Reason
	case classify.WebsiteBug:
		if out.Problem != "" {
			return out.Problem
		}
		return c.Reason
	default:
		return fmt.Sprintf("%s: %s", c.Kind, c.Reason)
	}
}
