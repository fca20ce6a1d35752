package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"sitecheck/internal/classify"
	"sitecheck/internal/driver"
	"sitecheck/internal/driver/drivertest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testTiming = Timing{
	MaxWait:       50 * time.Millisecond,
	Interval:      5 * time.Millisecond,
	ActionTimeout: 50 * time.Millisecond,
}

var shop = Target{Name: "Linen Shirt", URL: "https://shop.example/products/linen-shirt"}

func runSession(t *testing.T, page *drivertest.Page, checks ...Check) *Result {
	t.Helper()
	res, err := New(page, shop, checks, Options{Timing: testTiming}).Run(context.Background())
	require.NoError(t, err)
	return res
}

func clickCheck(name string, selectors []string, observe func(ctx context.Context, env *Env) (Outcome, error)) Check {
	return Check{
		Name:      name,
		Scenario:  name + " scenario",
		Operation: "click " + name,
		Feature:   name,
		Selectors: selectors,
		Act: func(ctx context.Context, env *Env) (Outcome, error) {
			if err := env.Element.Handle.Click(ctx, env.Timing.ActionTimeout); err != nil {
				return Outcome{}, err
			}
			return observe(ctx, env)
		},
	}
}

func TestScenarioQuantityIncrementBroken(t *testing.T) {
	page := drivertest.NewPage()
	qty := page.Add("input.qty", &drivertest.Element{Visible: true, Enabled: true, Value: "1"})
	page.Add("button.qty-plus", &drivertest.Element{
		Visible: true,
		Enabled: true,
		OnClick: func(ctx context.Context, p *drivertest.Page) error {
			p.EmitRuntimeError("TypeError: cannot read property 'length' of null")
			return nil
		},
	})

	check := clickCheck("quantity increment", []string{"button.qty-plus"}, func(ctx context.Context, env *Env) (Outcome, error) {
		v := qty.Value
		if v == "1" {
			return Outcome{Problem: "quantity stayed at 1 after clicking +", Observed: v}, nil
		}
		return Outcome{Succeeded: true}, nil
	})
	res := runSession(t, page, check)

	step := res.Steps[0]
	assert.Equal(t, StateFailed, step.State)
	require.NotNil(t, step.Details)
	assert.Equal(t, []string{"TypeError: cannot read property 'length' of null"}, step.Details.ScriptErrors)
	assert.Equal(t, "click quantity increment", step.Details.Operation)
	assert.Equal(t, "quantity stayed at 1 after clicking +", step.Details.Problem)
	assert.Equal(t, classify.WebsiteBug, step.Classification.Kind)
}

func TestScenarioMissingCheckoutButton(t *testing.T) {
	page := drivertest.NewPage()
	acted := false
	check := Check{
		Name:      "checkout",
		Feature:   "checkout button",
		Selectors: []string{"button.checkout"},
		Act: func(ctx context.Context, env *Env) (Outcome, error) {
			acted = true
			return Outcome{Succeeded: true}, nil
		},
	}
	res := runSession(t, page, check)

	step := res.Steps[0]
	assert.Equal(t, StateSkipped, step.State)
	assert.Contains(t, step.Message, "checkout button")
	assert.Contains(t, step.Message, "not implemented")
	assert.Nil(t, step.Details)
	assert.False(t, acted)
}

func TestScenarioCheckoutNavigatesDespiteOldErrors(t *testing.T) {
	page := drivertest.NewPage()
	page.Add("button.checkout", &drivertest.Element{
		Visible: true,
		Enabled: true,
		OnClick: func(ctx context.Context, p *drivertest.Page) error {
			go func() {
				time.Sleep(10 * time.Millisecond)
				p.SetURL("https://shop.example/checkout/abc")
			}()
			return nil
		},
	})

	open := Check{
		Name: "page access",
		Act: func(ctx context.Context, env *Env) (Outcome, error) {
			env.Page.(*drivertest.Page).EmitRuntimeError("ReferenceError: analytics is not defined")
			return Outcome{Succeeded: true}, nil
		},
	}
	checkout := clickCheck("checkout", []string{"button.checkout"}, func(ctx context.Context, env *Env) (Outcome, error) {
		deadline := time.Now().Add(env.Timing.MaxWait)
		for time.Now().Before(deadline) {
			u, err := env.Page.URL(ctx)
			if err != nil {
				return Outcome{}, err
			}
			if strings.Contains(u, "/checkout") {
				return Outcome{Succeeded: true, Message: "reached " + u}, nil
			}
			time.Sleep(env.Timing.Interval)
		}
		return Outcome{Problem: "still on product page"}, nil
	})
	res := runSession(t, page, open, checkout)

	assert.Equal(t, StatePassed, res.Steps[0].State)
	step := res.Steps[1]
	assert.Equal(t, StatePassed, step.State)
	assert.NotEqual(t, classify.WebsiteBug, step.Classification.Kind)
	assert.Len(t, res.Signals, 1)
}

func TestScenarioClickTimeout(t *testing.T) {
	page := drivertest.NewPage()
	page.Add("button.add", &drivertest.Element{
		Visible: true,
		Enabled: true,
		OnClick: func(ctx context.Context, p *drivertest.Page) error {
			return fmt.Errorf("click: %w", context.DeadlineExceeded)
		},
	})
	check := clickCheck("add to cart", []string{"button.add"}, func(ctx context.Context, env *Env) (Outcome, error) {
		return Outcome{Succeeded: true}, nil
	})
	res := runSession(t, page, check)

	step := res.Steps[0]
	assert.Equal(t, StateSkipped, step.State)
	assert.Equal(t, classify.TestTimeout, step.Classification.Kind)
	assert.Contains(t, step.Error, "deadline exceeded")
}

func TestIneffectiveClickWithoutErrorsPasses(t *testing.T) {
	page := drivertest.NewPage()
	page.Add("button.add", &drivertest.Element{Visible: true, Enabled: true})
	check := clickCheck("add to cart", []string{"button.add"}, func(ctx context.Context, env *Env) (Outcome, error) {
		return Outcome{Problem: "cart count unchanged"}, nil
	})
	res := runSession(t, page, check)

	assert.Equal(t, StatePassed, res.Steps[0].State)
	assert.Equal(t, classify.Benign, res.Steps[0].Classification.Kind)
	assert.Contains(t, res.Steps[0].Message, "cart count unchanged")
}

func TestNetworkErrorSkipsAndAbortsRequired(t *testing.T) {
	page := drivertest.NewPage()
	page.OnNavigate = func(ctx context.Context, p *drivertest.Page, url string) error {
		return errors.New("navigate: net::ERR_CONNECTION_REFUSED")
	}
	open := Check{
		Name:     "page access",
		Required: true,
		Act: func(ctx context.Context, env *Env) (Outcome, error) {
			if err := env.Page.Navigate(ctx, env.Target.URL); err != nil {
				return Outcome{}, err
			}
			return Outcome{Succeeded: true}, nil
		},
	}
	later := Check{Name: "price", Selectors: []string{".price"}}
	res := runSession(t, page, open, later)

	assert.Equal(t, StateSkipped, res.Steps[0].State)
	assert.Equal(t, classify.NetworkError, res.Steps[0].Classification.Kind)
	assert.Equal(t, StateSkipped, res.Steps[1].State)
	assert.Equal(t, "aborted: prerequisite step 1 did not pass", res.Steps[1].Message)
	assert.Equal(t, "aborted: prerequisite step 1 did not pass", res.Aborted)
	assert.Zero(t, page.ResolveCount(".price"))
}

func TestOuterTimeoutSkipsRemainingSteps(t *testing.T) {
	page := drivertest.NewPage()
	page.NavigateDelay = time.Second
	open := Check{
		Name: "page access",
		Act: func(ctx context.Context, env *Env) (Outcome, error) {
			return Outcome{Succeeded: true}, env.Page.Navigate(ctx, env.Target.URL)
		},
	}
	res, err := New(page, shop, []Check{{Name: "first"}, open, {Name: "third"}}, Options{
		Timeout: 30 * time.Millisecond,
		Timing:  testTiming,
	}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatePassed, res.Steps[0].State)
	for _, st := range res.Steps[1:] {
		assert.Equal(t, StateSkipped, st.State)
		assert.Equal(t, ReasonOuterTimeout, st.Message)
	}
	assert.Equal(t, ReasonOuterTimeout, res.Aborted)
}

func TestDisconnectAbortsSession(t *testing.T) {
	page := drivertest.NewPage()
	first := Check{Name: "first"}
	dies := Check{
		Name: "dies",
		Act: func(ctx context.Context, env *Env) (Outcome, error) {
			return Outcome{}, fmt.Errorf("click: %w", driver.ErrDisconnected)
		},
	}
	res := runSession(t, page, first, dies, Check{Name: "never"})

	assert.Equal(t, StatePassed, res.Steps[0].State)
	assert.Equal(t, StateSkipped, res.Steps[1].State)
	assert.Equal(t, ReasonConnectionLost, res.Steps[1].Message)
	assert.Equal(t, StateSkipped, res.Steps[2].State)
	assert.Equal(t, ReasonConnectionLost, res.Aborted)
}

func TestDisconnectWhileLocatingAbortsSession(t *testing.T) {
	page := drivertest.NewPage()
	page.FailResolve(".price", fmt.Errorf("resolve: %w", driver.ErrDisconnected))
	page.FailResolve(".title", fmt.Errorf("resolve: %w", driver.ErrDisconnected))

	res := runSession(t, page,
		Check{Name: "price", Selectors: []string{".price"}, Await: true},
		Check{Name: "title", Selectors: []string{".title"}},
	)

	for _, st := range res.Steps {
		assert.Equal(t, StateSkipped, st.State)
		assert.Equal(t, ReasonConnectionLost, st.Message)
		assert.Nil(t, st.Classification)
	}
	assert.Equal(t, ReasonConnectionLost, res.Aborted)
	assert.Equal(t, 1, page.ResolveCount(".price"))
	assert.Zero(t, page.ResolveCount(".title"))
}

func TestDisconnectWhileInspectingAbortsSession(t *testing.T) {
	page := drivertest.NewPage()
	page.Add(".gallery", &drivertest.Element{InspectErr: fmt.Errorf("eval: %w", driver.ErrDisconnected)})

	res := runSession(t, page,
		Check{Name: "first"},
		Check{Name: "images", Selectors: []string{".gallery"}},
		Check{Name: "never"},
	)

	assert.Equal(t, StatePassed, res.Steps[0].State)
	assert.Equal(t, StateSkipped, res.Steps[1].State)
	assert.Equal(t, ReasonConnectionLost, res.Steps[1].Message)
	assert.Equal(t, StateSkipped, res.Steps[2].State)
	assert.Equal(t, ReasonConnectionLost, res.Aborted)
}

func TestUnavailableElementWithoutErrorsIsMissingFeature(t *testing.T) {
	page := drivertest.NewPage()
	page.Add(".gallery", &drivertest.Element{Visible: false, Enabled: true})
	res := runSession(t, page, Check{
		Name:      "images",
		Selectors: []string{".gallery"},
		Act: func(ctx context.Context, env *Env) (Outcome, error) {
			return Outcome{Problem: "images are present but not visible", Unavailable: true}, nil
		},
	})

	assert.Equal(t, StateSkipped, res.Steps[0].State)
	assert.Equal(t, classify.MissingFeature, res.Steps[0].Classification.Kind)
	assert.Equal(t, "feature not implemented: images are present but not visible", res.Steps[0].Message)
}

func TestUnavailableElementWithErrorsIsBug(t *testing.T) {
	page := drivertest.NewPage()
	page.Add(".gallery", &drivertest.Element{Visible: false, Enabled: true})
	res := runSession(t, page, Check{
		Name:      "images",
		Selectors: []string{".gallery"},
		Act: func(ctx context.Context, env *Env) (Outcome, error) {
			page.EmitRuntimeError("ReferenceError: lazyLoad is not defined")
			return Outcome{Problem: "images are present but not visible", Unavailable: true}, nil
		},
	})

	assert.Equal(t, StateFailed, res.Steps[0].State)
	require.NotNil(t, res.Steps[0].Details)
	assert.Equal(t, []string{"ReferenceError: lazyLoad is not defined"}, res.Steps[0].Details.ScriptErrors)
}

func TestActErrorsStayInsideStep(t *testing.T) {
	page := drivertest.NewPage()
	boom := Check{
		Name: "boom",
		Act: func(ctx context.Context, env *Env) (Outcome, error) {
			return Outcome{}, errors.New("element is not clickable at point")
		},
	}
	res := runSession(t, page, boom, Check{Name: "after"})

	assert.Equal(t, StateSkipped, res.Steps[0].State)
	assert.Equal(t, classify.TestError, res.Steps[0].Classification.Kind)
	assert.Equal(t, StatePassed, res.Steps[1].State)
	assert.Empty(t, res.Aborted)
}

func TestSkipOutcome(t *testing.T) {
	page := drivertest.NewPage()
	res := runSession(t, page, Check{
		Name: "cart",
		Act: func(ctx context.Context, env *Env) (Outcome, error) {
			return Outcome{Skip: true, Message: "cart is empty"}, nil
		},
	})
	assert.Equal(t, StateSkipped, res.Steps[0].State)
	assert.Equal(t, "cart is empty", res.Steps[0].Message)
}

func TestAwaitPollsForLateElement(t *testing.T) {
	page := drivertest.NewPage()
	page.Add(".related", &drivertest.Element{Visible: true, Enabled: true, AppearAfter: 3})
	res := runSession(t, page, Check{Name: "related", Selectors: []string{".related"}, Await: true})

	assert.Equal(t, StatePassed, res.Steps[0].State)
	assert.Equal(t, 4, page.ResolveCount(".related"))
}

func TestSessionSubscribesOnceAndClosesLog(t *testing.T) {
	page := drivertest.NewPage()
	sess := New(page, shop, []Check{{Name: "only"}}, Options{Timing: testTiming})
	_, err := sess.Run(context.Background())
	require.NoError(t, err)

	page.EmitRuntimeError("late")
	assert.Zero(t, sess.Log().Len())

	_, err = sess.Run(context.Background())
	assert.Error(t, err)
}

func TestSuiteRunsConcurrentlyInOrder(t *testing.T) {
	var built int32
	factory := drivertest.NewFactory()
	factory.Build = func() *drivertest.Page {
		atomic.AddInt32(&built, 1)
		return drivertest.NewPage()
	}

	targets := make([]Target, 6)
	for i := range targets {
		targets[i] = Target{Name: fmt.Sprintf("p%d", i), URL: fmt.Sprintf("https://shop.example/p/%d", i)}
	}
	plan := func(t Target) []Check {
		return []Check{{Name: "visit " + t.Name}}
	}

	results := NewSuite(factory, plan, SuiteOptions{Concurrency: 3, Session: Options{Timing: testTiming}}).
		Run(context.Background(), targets)

	require.Len(t, results, len(targets))
	for i, r := range results {
		assert.Equal(t, targets[i].Name, r.Target.Name)
		assert.Equal(t, "visit "+targets[i].Name, r.Steps[0].Name)
		assert.Equal(t, StatePassed, r.Steps[0].State)
	}
	assert.EqualValues(t, 6, atomic.LoadInt32(&built))
}

func TestSuitePageFailureIsIsolated(t *testing.T) {
	factory := drivertest.NewFactory()
	factory.Err = errors.New("browser context refused")
	plan := func(Target) []Check { return []Check{{Name: "a"}, {Name: "b"}} }

	results := NewSuite(factory, plan, SuiteOptions{}).Run(context.Background(), []Target{shop})

	require.Len(t, results, 1)
	for _, st := range results[0].Steps {
		assert.Equal(t, StateSkipped, st.State)
		assert.Contains(t, st.Message, "browser context refused")
	}
}

func TestSuiteClosesPages(t *testing.T) {
	page := drivertest.NewPage()
	NewSuite(drivertest.NewFactory(page), func(Target) []Check { return []Check{{Name: "a"}} }, SuiteOptions{}).
		Run(context.Background(), []Target{shop})
	assert.True(t, page.Closed())
}

func TestStepJSONShape(t *testing.T) {
	page := drivertest.NewPage()
	page.Add("button.qty-plus", &drivertest.Element{
		Visible: true, Enabled: true,
		OnClick: func(ctx context.Context, p *drivertest.Page) error {
			p.EmitConsoleError("Uncaught qty handler")
			return nil
		},
	})
	res := runSession(t, page, clickCheck("qty", []string{"button.qty-plus"}, func(ctx context.Context, env *Env) (Outcome, error) {
		return Outcome{Problem: "quantity unchanged"}, nil
	}))

	raw, err := json.Marshal(res.Steps[0])
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, float64(1), got["number"])
	assert.Equal(t, "failed", got["status"])
	details, ok := got["issueDetails"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"Uncaught qty handler"}, details["script_errors"])
	assert.Contains(t, details, "root_cause")
}
