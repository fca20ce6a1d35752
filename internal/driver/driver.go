// Package driver defines the contract between the check engine and whatever
// actually drives the browser. The engine never talks to CDP directly; it
// resolves elements, clicks them and reads back values through these
// interfaces. internal/browser provides the go-rod implementation and
// internal/driver/drivertest a scripted in-memory one.
package driver

import (
	"context"
	"errors"
	"time"
)

// ErrDisconnected reports that the browser connection is gone. It is fatal
// for the whole session, not just the current step.
var ErrDisconnected = errors.New("driver: browser connection lost")

// State is the interactive state of a resolved element, read in one pass.
type State struct {
	Visible bool
	Enabled bool
}

// Handle is a live reference to one element on the page.
type Handle interface {
	// Inspect reads visibility and interactability together so both values
	// describe the same DOM instant.
	Inspect(ctx context.Context) (State, error)
	Click(ctx context.Context, timeout time.Duration) error
	// Attribute returns the attribute value and whether it is present.
	Attribute(ctx context.Context, name string) (string, bool, error)
	// Value returns the element's current form value (the live property,
	// not the initial attribute).
	Value(ctx context.Context) (string, error)
	Text(ctx context.Context) (string, error)
}

// Page is one isolated browser page/context.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	// Resolve returns (nil, nil) when nothing matches. It never waits for
	// the selector to appear; polling belongs to the caller.
	Resolve(ctx context.Context, selector string) (Handle, error)
	SubscribeRuntimeError(fn func(message string))
	SubscribeConsoleError(fn func(message string))
	Close() error
}

// PageFactory opens a fresh, isolated page for one session.
type PageFactory interface {
	NewPage(ctx context.Context) (Page, error)
}
