package probe

import (
	"context"
	"time"

	"sitecheck/internal/logging"
)

// DefaultInterval is used when a non-positive interval is given.
const DefaultInterval = 500 * time.Millisecond

// DefaultMaxWait is the budget the step runner uses for late elements.
const DefaultMaxWait = 10 * time.Second

// Poller repeats Detect until an element shows up or the budget runs out.
type Poller struct {
	probe *Probe
	now   func() time.Time
}

// NewPoller returns a poller backed by probe.
func NewPoller(probe *Probe) *Poller {
	return &Poller{probe: probe, now: time.Now}
}

// Until evaluates cond every interval until it reports done, returns an
// error, or maxWait has elapsed. A final evaluation always runs at the end
// of the budget. It returns the number of evaluations and ctx's error when
// ctx ends first.
func (w *Poller) Until(ctx context.Context, maxWait, interval time.Duration, cond func() (bool, error)) (int, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	deadline := w.now().Add(maxWait)
	attempts := 0

	for {
		attempts++
		done, err := cond()
		if err != nil || done {
			return attempts, err
		}

		remaining := deadline.Sub(w.now())
		if remaining <= 0 {
			return attempts, nil
		}

		wait := interval
		if remaining < wait {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempts, ctx.Err()
		case <-timer.C:
		}
	}
}

// AwaitElement polls every interval until the element exists or maxWait has
// elapsed, and returns the last detection result. Cancelling ctx or losing
// the browser connection stops polling early.
func (w *Poller) AwaitElement(ctx context.Context, selectors []string, name string, maxWait, interval time.Duration) Result {
	var res Result
	attempts, _ := w.Until(ctx, maxWait, interval, func() (bool, error) {
		res = w.probe.Detect(ctx, selectors, name)
		return res.Exists, res.Fatal
	})

	switch {
	case res.Exists && attempts > 1:
		logging.ProbeDebug("%s appeared after %d attempts", name, attempts)
	case !res.Exists && res.Fatal == nil && ctx.Err() == nil:
		logging.ProbeDebug("%s still absent after %v (%d attempts)", name, maxWait, attempts)
	}
	return res
}
