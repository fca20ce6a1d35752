// Package checks builds the product-page check plans run by a session.
//
// Quick mode covers the purchase path: the page loads, the product is
// shown, it can be added to the cart, the cart holds it and checkout can
// be reached. Full mode adds presence checks for the rest of the page and
// exercises variant and quantity controls.
package checks

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"sitecheck/internal/driver"
	"sitecheck/internal/probe"
	"sitecheck/internal/selectors"
	"sitecheck/internal/session"
)

// Mode selects a plan.
type Mode string

const (
	Quick Mode = "quick"
	Full  Mode = "full"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Quick, "":
		return Quick, nil
	case Full:
		return Full, nil
	}
	return "", fmt.Errorf("unknown mode %q (want quick or full)", s)
}

// Overrides maps a target ID to per-product base selector overrides.
type Overrides map[string]map[string]string

// Planner returns a session.Planner for mode.
func Planner(mode Mode, mgr *selectors.Manager, overrides Overrides) session.Planner {
	return func(t session.Target) []session.Check {
		r := resolver{mgr: mgr, local: overrides[t.ID]}
		if mode == Full {
			return fullPlan(r)
		}
		return quickPlan(r)
	}
}

type resolver struct {
	mgr   *selectors.Manager
	local map[string]string
}

func (r resolver) base(key string) []string {
	if v, ok := r.local[key]; ok && strings.TrimSpace(v) != "" {
		return selectors.Split(v)
	}
	return r.mgr.List(selectors.Base, key)
}

func (r resolver) variants() []string {
	return append(r.mgr.List(selectors.Variant, selectors.Color), r.mgr.List(selectors.Variant, selectors.Size)...)
}

func quickPlan(r resolver) []session.Check {
	return []session.Check{
		pageAccess(),
		productInfo(r),
		addToCart(r),
		cartVerification(r),
		checkoutFlow(r),
	}
}

func fullPlan(r resolver) []session.Check {
	return []session.Check{
		pageAccess(),
		pageStructure(r),
		presence("product title", "title is visible", r.base(selectors.ProductTitle), false),
		productPrice(r),
		presence("product images", "gallery images are visible", r.base(selectors.ProductImages), true),
		presence("product description", "description is visible", r.base(selectors.ProductDescription), true),
		presence("related products", "recommendations are visible", r.base(selectors.RelatedProducts), true),
		variantSelection(r),
		quantityIncrement(r),
		addToCart(r),
		cartVerification(r),
		checkoutFlow(r),
	}
}

// click presses h within the action timeout.
func click(ctx context.Context, env *session.Env, h driver.Handle) error {
	actx, cancel := context.WithTimeout(ctx, env.Timing.ActionTimeout)
	defer cancel()
	if err := h.Click(actx, env.Timing.ActionTimeout); err != nil {
		return fmt.Errorf("click %s: %w", env.Element.SelectorUsed, err)
	}
	return nil
}

// waitFor evaluates cond on the session poller until it holds or the poll
// budget runs out. It returns the last observation.
func waitFor(ctx context.Context, env *session.Env, cond func() (bool, string, error)) (bool, string, error) {
	var (
		ok       bool
		observed string
	)
	_, err := env.Poller.Until(ctx, env.Timing.MaxWait, env.Timing.Interval, func() (bool, error) {
		var err error
		ok, observed, err = cond()
		return ok, err
	})
	return ok, observed, err
}

// detect runs the probe and surfaces a lost connection as an error.
func detect(ctx context.Context, env *session.Env, sels []string, name string) (probe.Result, error) {
	res := env.Probe.Detect(ctx, sels, name)
	return res, res.Fatal
}

// disabled is the outcome for a control that exists but cannot be used.
func disabled(what string) session.Outcome {
	return session.Outcome{
		Succeeded: true,
		Message:   fmt.Sprintf("%s present but disabled (a variant may need to be selected)", what),
	}
}

// cartURL derives the cart page from the product URL's origin.
func cartURL(productURL string) (string, error) {
	u, err := url.Parse(productURL)
	if err != nil {
		return "", fmt.Errorf("parse product url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("product url %q is not absolute", productURL)
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/cart"}).String(), nil
}
