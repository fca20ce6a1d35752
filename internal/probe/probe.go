// Package probe answers whether a page element exists, is visible and is
// enabled, and polls for elements that render late.
package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sitecheck/internal/driver"
	"sitecheck/internal/logging"
)

// Result is the outcome of one detection attempt.
type Result struct {
	Exists       bool   `json:"exists"`
	Visible      bool   `json:"visible"`
	Enabled      bool   `json:"enabled"`
	SelectorUsed string `json:"selector_used,omitempty"`
	Error        string `json:"error,omitempty"`

	// Handle is the matched element, nil when Exists is false.
	Handle driver.Handle `json:"-"`

	// Fatal is set when the browser connection was lost during detection.
	// The other fields say nothing about the page in that case.
	Fatal error `json:"-"`
}

// Functional reports whether the element can be interacted with.
func (r Result) Functional() bool {
	return r.Exists && r.Visible && r.Enabled
}

// Probe resolves ordered selector lists against a page.
type Probe struct {
	page driver.Page
}

// New returns a probe over page.
func New(page driver.Page) *Probe {
	return &Probe{page: page}
}

// Detect tries selectors in order without waiting. The first selector that
// resolves wins, even when the element turns out hidden or disabled. A lost
// browser connection stops detection and is reported in Result.Fatal.
func (p *Probe) Detect(ctx context.Context, selectors []string, name string) Result {
	if len(selectors) == 0 {
		return Result{Error: fmt.Sprintf("%s: no selectors configured", name)}
	}

	var failures []string
	for _, sel := range selectors {
		if err := ctx.Err(); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", sel, err))
			break
		}

		h, err := p.page.Resolve(ctx, sel)
		if errors.Is(err, driver.ErrDisconnected) {
			return disconnected(name, sel, err)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", sel, err))
			continue
		}
		if h == nil {
			continue
		}

		res := Result{Exists: true, SelectorUsed: sel, Handle: h}
		state, err := h.Inspect(ctx)
		if errors.Is(err, driver.ErrDisconnected) {
			return disconnected(name, sel, err)
		}
		if err != nil {
			res.Error = fmt.Sprintf("inspect %s: %v", sel, err)
		} else {
			res.Visible = state.Visible
			res.Enabled = state.Enabled
		}
		logging.ProbeDebug("%s matched %q visible=%v enabled=%v", name, sel, res.Visible, res.Enabled)
		return res
	}

	msg := fmt.Sprintf("%s not found (tried %s)", name, strings.Join(selectors, ", "))
	if len(failures) > 0 {
		msg += "; errors: " + strings.Join(failures, "; ")
	}
	logging.ProbeDebug("%s", msg)
	return Result{Error: msg}
}

func disconnected(name, sel string, err error) Result {
	logging.ProbeDebug("%s: connection lost at %q: %v", name, sel, err)
	return Result{
		Error: fmt.Sprintf("%s: %s: %v", name, sel, err),
		Fatal: fmt.Errorf("detect %s: %w", name, err),
	}
}
