package checks

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"sitecheck/internal/driver"
	"sitecheck/internal/selectors"
	"sitecheck/internal/session"
)

func pageAccess() session.Check {
	return session.Check{
		Name:        "page access",
		Description: "product page loads",
		Scenario:    "open the product page",
		Operation:   "navigate",
		Required:    true,
		Act: func(ctx context.Context, env *session.Env) (session.Outcome, error) {
			actx, cancel := context.WithTimeout(ctx, env.Timing.ActionTimeout)
			defer cancel()
			if err := env.Page.Navigate(actx, env.Target.URL); err != nil {
				return session.Outcome{}, fmt.Errorf("navigate %s: %w", env.Target.URL, err)
			}
			current, err := env.Page.URL(ctx)
			if err != nil {
				return session.Outcome{}, err
			}
			return session.Outcome{Succeeded: true, Message: "page loaded: " + current, Observed: current}, nil
		},
	}
}

func pageStructure(r resolver) session.Check {
	return session.Check{
		Name:        "page structure",
		Description: "header and main content are present",
		Scenario:    "inspect the page layout",
		Operation:   "inspect layout",
		Act: func(ctx context.Context, env *session.Env) (session.Outcome, error) {
			header, err := detect(ctx, env, r.base(selectors.PageHeader), "page header")
			if err != nil {
				return session.Outcome{}, err
			}
			main, err := detect(ctx, env, r.base(selectors.PageMain), "main content")
			if err != nil {
				return session.Outcome{}, err
			}
			if header.Exists && main.Exists {
				return session.Outcome{Succeeded: true, Message: "page structure complete (header, main)"}, nil
			}
			var missing []string
			if !header.Exists {
				missing = append(missing, "header")
			}
			if !main.Exists {
				missing = append(missing, "main")
			}
			return session.Outcome{Succeeded: true, Message: "page loaded, structure incomplete: missing " + strings.Join(missing, ", ")}, nil
		},
	}
}

// presence checks that an element is visible.
func presence(name, description string, sels []string, await bool) session.Check {
	return session.Check{
		Name:        name,
		Description: description,
		Scenario:    "view the product page",
		Operation:   "look for " + name,
		Feature:     name,
		Selectors:   sels,
		Await:       await,
		Act: func(ctx context.Context, env *session.Env) (session.Outcome, error) {
			if !env.Element.Visible {
				return session.Outcome{Problem: name + " is present but not visible", Unavailable: true}, nil
			}
			return session.Outcome{Succeeded: true, Message: name + " visible"}, nil
		},
	}
}

func productInfo(r resolver) session.Check {
	return session.Check{
		Name:        "product info",
		Description: "title and price are shown",
		Scenario:    "view the product page",
		Operation:   "read title and price",
		Feature:     "product title",
		Selectors:   r.base(selectors.ProductTitle),
		Await:       true,
		Act: func(ctx context.Context, env *session.Env) (session.Outcome, error) {
			if !env.Element.Visible {
				return session.Outcome{Problem: "product title is not visible", Unavailable: true}, nil
			}
			title, err := env.Element.Handle.Text(ctx)
			if err != nil {
				return session.Outcome{}, err
			}
			msg := "title: " + strings.TrimSpace(title)
			price, err := readPrice(ctx, env, r)
			if err != nil {
				return session.Outcome{}, err
			}
			if price != "" {
				msg += ", price: " + price
			} else {
				msg += ", price not found"
			}
			return session.Outcome{Succeeded: true, Message: msg}, nil
		},
	}
}

func productPrice(r resolver) session.Check {
	return session.Check{
		Name:        "product price",
		Description: "price is shown",
		Scenario:    "view the product page",
		Operation:   "read price",
		Feature:     "product price",
		Selectors:   r.base(selectors.ProductPrice),
		Await:       true,
		Act: func(ctx context.Context, env *session.Env) (session.Outcome, error) {
			price, err := priceOf(ctx, env)
			if err != nil {
				return session.Outcome{}, err
			}
			if price == "" {
				return session.Outcome{Problem: "price element is empty or hidden"}, nil
			}
			return session.Outcome{Succeeded: true, Message: "price: " + price, Observed: price}, nil
		},
	}
}

// readPrice returns "" when no price can be read. Only a lost connection is
// an error.
func readPrice(ctx context.Context, env *session.Env, r resolver) (string, error) {
	res, err := detect(ctx, env, r.base(selectors.ProductPrice), "product price")
	if err != nil || !res.Exists {
		return "", err
	}
	sub := *env
	sub.Element = res
	price, err := priceOf(ctx, &sub)
	if errors.Is(err, driver.ErrDisconnected) {
		return "", err
	}
	return price, nil
}

// priceOf reads the matched price element. Meta tags carry the amount in
// their content attribute.
func priceOf(ctx context.Context, env *session.Env) (string, error) {
	h := env.Element.Handle
	if strings.HasPrefix(env.Element.SelectorUsed, "meta") {
		v, _, err := h.Attribute(ctx, "content")
		return strings.TrimSpace(v), err
	}
	if !env.Element.Visible {
		return "", nil
	}
	text, err := h.Text(ctx)
	return strings.TrimSpace(text), err
}

func variantSelection(r resolver) session.Check {
	return session.Check{
		Name:        "variant selection",
		Description: "a variant option can be chosen",
		Scenario:    "choose a product option",
		Operation:   "click variant option",
		Feature:     "variant options",
		Selectors:   r.variants(),
		Act: func(ctx context.Context, env *session.Env) (session.Outcome, error) {
			if !env.Element.Functional() {
				return disabled("variant option"), nil
			}
			if err := click(ctx, env, env.Element.Handle); err != nil {
				return session.Outcome{}, err
			}
			return session.Outcome{Succeeded: true, Message: "selected variant via " + env.Element.SelectorUsed}, nil
		},
	}
}

// quantityIncrement clicks "+" and expects the quantity to grow.
func quantityIncrement(r resolver) session.Check {
	return session.Check{
		Name:        "quantity increment",
		Description: "the + control raises the quantity",
		Scenario:    "increase quantity before adding to cart",
		Operation:   "click quantity +",
		Feature:     "quantity increment",
		Selectors:   r.base(selectors.QuantityIncrement),
		Act: func(ctx context.Context, env *session.Env) (session.Outcome, error) {
			if !env.Element.Functional() {
				return disabled("quantity control"), nil
			}
			input, err := detect(ctx, env, r.base(selectors.QuantityInput), "quantity input")
			if err != nil {
				return session.Outcome{}, err
			}
			if !input.Exists {
				if err := click(ctx, env, env.Element.Handle); err != nil {
					return session.Outcome{}, err
				}
				return session.Outcome{Succeeded: true, Message: "clicked +, no quantity field to verify"}, nil
			}

			before, err := quantity(ctx, input.Handle)
			if err != nil {
				return session.Outcome{}, err
			}
			if err := click(ctx, env, env.Element.Handle); err != nil {
				return session.Outcome{}, err
			}
			ok, observed, err := waitFor(ctx, env, func() (bool, string, error) {
				after, err := quantity(ctx, input.Handle)
				if err != nil {
					return false, "", err
				}
				return after > before, strconv.Itoa(after), nil
			})
			if err != nil {
				return session.Outcome{}, err
			}
			if !ok {
				return session.Outcome{
					Problem:  fmt.Sprintf("quantity stayed at %d after clicking +", before),
					Observed: observed,
				}, nil
			}
			return session.Outcome{Succeeded: true, Message: fmt.Sprintf("quantity %d -> %s", before, observed), Observed: observed}, nil
		},
	}
}

func quantity(ctx context.Context, input driver.Handle) (int, error) {
	v, err := input.Value(ctx)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("quantity %q is not a number", v)
	}
	return n, nil
}
