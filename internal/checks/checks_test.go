package checks

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitecheck/internal/classify"
	"sitecheck/internal/driver"
	"sitecheck/internal/driver/drivertest"
	"sitecheck/internal/selectors"
	"sitecheck/internal/session"
)

var fast = session.Timing{
	MaxWait:       40 * time.Millisecond,
	Interval:      5 * time.Millisecond,
	ActionTimeout: 40 * time.Millisecond,
}

var scooter = session.Target{ID: "s1", Name: "Scooter", URL: "https://shop.example/products/scooter?variant=2"}

// storefront scripts a working product page and cart.
func storefront() *drivertest.Page {
	page := drivertest.NewPage()
	page.Add(".product-title", &drivertest.Element{Visible: true, Enabled: true, Text: "Scooter"})
	page.Add(".price--highlight", &drivertest.Element{Visible: true, Enabled: true, Text: "$499"})
	count := page.Add(".cart-count", &drivertest.Element{Visible: true, Enabled: true, Text: "0"})
	page.Add("button[name='add']", &drivertest.Element{
		Visible: true, Enabled: true,
		OnClick: func(ctx context.Context, p *drivertest.Page) error {
			count.SetText("1")
			return nil
		},
	})
	page.OnNavigate = func(ctx context.Context, p *drivertest.Page, url string) error {
		if strings.HasSuffix(url, "/cart") {
			p.Add(".cart-item", &drivertest.Element{Visible: true, Enabled: true})
			p.Add("button[name='checkout']", &drivertest.Element{
				Visible: true, Enabled: true,
				OnClick: func(ctx context.Context, p *drivertest.Page) error {
					p.SetURL("https://shop.example/checkout/123")
					return nil
				},
			})
		}
		return nil
	}
	return page
}

func run(t *testing.T, page *drivertest.Page, mode Mode) *session.Result {
	t.Helper()
	plan := Planner(mode, selectors.NewManager(), nil)(scooter)
	res, err := session.New(page, scooter, plan, session.Options{Timing: fast}).Run(context.Background())
	require.NoError(t, err)
	return res
}

func TestQuickPlanHappyPath(t *testing.T) {
	res := run(t, storefront(), Quick)

	require.Len(t, res.Steps, 5)
	for _, st := range res.Steps {
		assert.Equal(t, session.StatePassed, st.State, "%s: %s", st.Name, st.Message)
	}
	assert.Contains(t, res.Steps[1].Message, "$499")
	assert.Contains(t, res.Steps[4].Message, "/checkout")
}

func TestFullPlanHasTwelveSteps(t *testing.T) {
	plan := Planner(Full, selectors.NewManager(), nil)(scooter)
	require.Len(t, plan, 12)
	assert.True(t, plan[0].Required)
	assert.Equal(t, "checkout flow", plan[11].Name)
}

func TestQuantityIncrementBroken(t *testing.T) {
	page := storefront()
	page.Add("input[name='quantity']", &drivertest.Element{Visible: true, Enabled: true, Value: "1"})
	page.Add("button[name='plus']", &drivertest.Element{
		Visible: true, Enabled: true,
		OnClick: func(ctx context.Context, p *drivertest.Page) error {
			p.EmitRuntimeError("TypeError: cannot read property 'length' of null")
			return nil
		},
	})

	res := run(t, page, Full)

	var qty *session.Step
	for _, st := range res.Steps {
		if st.Name == "quantity increment" {
			qty = st
		}
	}
	require.NotNil(t, qty)
	assert.Equal(t, session.StateFailed, qty.State)
	require.NotNil(t, qty.Details)
	assert.Equal(t, []string{"TypeError: cannot read property 'length' of null"}, qty.Details.ScriptErrors)
	assert.Equal(t, "quantity stayed at 1 after clicking +", qty.Details.Problem)
}

func TestQuantityIncrementWorks(t *testing.T) {
	page := storefront()
	input := page.Add("input[name='quantity']", &drivertest.Element{Visible: true, Enabled: true, Value: "1"})
	page.Add("button[name='plus']", &drivertest.Element{
		Visible: true, Enabled: true,
		OnClick: func(ctx context.Context, p *drivertest.Page) error {
			input.SetValue("2")
			return nil
		},
	})

	res := run(t, page, Full)
	assert.Equal(t, session.StatePassed, res.Steps[8].State)
	assert.Contains(t, res.Steps[8].Message, "1 -> 2")
}

func TestMissingCheckoutIsSkipped(t *testing.T) {
	page := storefront()
	page.OnNavigate = func(ctx context.Context, p *drivertest.Page, url string) error {
		if strings.HasSuffix(url, "/cart") {
			p.Add(".cart-item", &drivertest.Element{Visible: true, Enabled: true})
		}
		return nil
	}

	res := run(t, page, Quick)
	last := res.Steps[4]
	assert.Equal(t, session.StateSkipped, last.State)
	assert.Contains(t, last.Message, "checkout button")
	assert.Equal(t, classify.MissingFeature, last.Classification.Kind)
}

func TestEmptyCartIsSkipped(t *testing.T) {
	page := storefront()
	page.OnNavigate = func(ctx context.Context, p *drivertest.Page, url string) error {
		if strings.HasSuffix(url, "/cart") {
			p.Add(".cart-empty", &drivertest.Element{Visible: true})
		}
		return nil
	}
	res := run(t, page, Quick)
	assert.Equal(t, session.StateSkipped, res.Steps[3].State)
	assert.Contains(t, res.Steps[3].Message, "empty")
}

func TestDisabledAddToCartPasses(t *testing.T) {
	page := storefront()
	button := page.Add("button[name='add']", &drivertest.Element{Visible: true, Enabled: false})
	res := run(t, page, Quick)
	assert.Equal(t, session.StatePassed, res.Steps[2].State)
	assert.Contains(t, res.Steps[2].Message, "disabled")
	assert.Zero(t, button.Clicks())
}

func TestHiddenImagesAreSkippedAsMissing(t *testing.T) {
	page := storefront()
	page.Add(".product__media img", &drivertest.Element{Visible: false, Enabled: true})

	res := run(t, page, Full)

	images := res.Steps[4]
	require.Equal(t, "product images", images.Name)
	assert.Equal(t, session.StateSkipped, images.State)
	assert.Equal(t, classify.MissingFeature, images.Classification.Kind)
	assert.Equal(t, "feature not implemented: product images is present but not visible", images.Message)
}

func TestDisconnectReadingCartCountAbortsSession(t *testing.T) {
	page := storefront()
	page.FailResolve(".cart-count", fmt.Errorf("resolve: %w", driver.ErrDisconnected))

	res := run(t, page, Quick)

	assert.Equal(t, session.StatePassed, res.Steps[1].State)
	for _, st := range res.Steps[2:] {
		assert.Equal(t, session.StateSkipped, st.State, st.Name)
		assert.Equal(t, session.ReasonConnectionLost, st.Message)
	}
	assert.Equal(t, session.ReasonConnectionLost, res.Aborted)
}

func TestCheckoutNeverNavigatesWithErrorsIsBug(t *testing.T) {
	page := storefront()
	page.OnNavigate = func(ctx context.Context, p *drivertest.Page, url string) error {
		if strings.HasSuffix(url, "/cart") {
			p.Add(".cart-item", &drivertest.Element{Visible: true})
			p.Add("button[name='checkout']", &drivertest.Element{
				Visible: true, Enabled: true,
				OnClick: func(ctx context.Context, p *drivertest.Page) error {
					p.EmitConsoleError("checkout handler crashed")
					return nil
				},
			})
		}
		return nil
	}
	res := run(t, page, Quick)
	assert.Equal(t, session.StateFailed, res.Steps[4].State)
	assert.Contains(t, res.Steps[4].Message, "checkout did not open")
}

func TestPerProductOverrides(t *testing.T) {
	page := storefront()
	page.Add("#custom-title", &drivertest.Element{Visible: true, Text: "Custom"})
	overrides := Overrides{"s1": {selectors.ProductTitle: "#custom-title"}}
	plan := Planner(Quick, selectors.NewManager(), overrides)(scooter)
	assert.Equal(t, []string{"#custom-title"}, plan[1].Selectors)
}

func TestCartURL(t *testing.T) {
	u, err := cartURL("https://shop.example/products/x?variant=1#top")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example/cart", u)

	_, err = cartURL("/products/x")
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("FULL")
	require.NoError(t, err)
	assert.Equal(t, Full, m)
	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Quick, m)
	_, err = ParseMode("deep")
	assert.Error(t, err)
}
