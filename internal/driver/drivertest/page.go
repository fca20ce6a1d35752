// Package drivertest provides a scripted in-memory driver.Page for tests.
package drivertest

import (
	"context"
	"errors"
	"sync"
	"time"

	"sitecheck/internal/driver"
)

// Element is a scripted element. Zero value is an element that exists but
// is hidden and disabled.
type Element struct {
	Visible bool
	Enabled bool
	Text    string
	Value   string
	Attrs   map[string]string

	// AppearAfter hides the element from the first N Resolve calls.
	AppearAfter int
	// InspectErr is returned from Inspect when set.
	InspectErr error
	// OnClick runs on every click. A non-nil error is returned from Click.
	OnClick func(ctx context.Context, p *Page) error

	mu     sync.Mutex
	clicks int
}

// Clicks returns how many times the element was clicked.
func (e *Element) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

// SetValue updates the live value (used from OnClick hooks).
func (e *Element) SetValue(v string) {
	e.mu.Lock()
	e.Value = v
	e.mu.Unlock()
}

// SetText updates the text content.
func (e *Element) SetText(v string) {
	e.mu.Lock()
	e.Text = v
	e.mu.Unlock()
}

// Page is a scripted driver.Page.
type Page struct {
	mu        sync.Mutex
	url       string
	elements  map[string]*Element
	errs      map[string]error
	resolves  map[string]int
	runtimeCb []func(string)
	consoleCb []func(string)
	closed    bool

	// OnNavigate runs on Navigate; returning an error fails the navigation.
	OnNavigate func(ctx context.Context, p *Page, url string) error
	// NavigateDelay blocks Navigate for the given time or until ctx is done.
	NavigateDelay time.Duration
}

// NewPage returns an empty page.
func NewPage() *Page {
	return &Page{
		elements: make(map[string]*Element),
		errs:     make(map[string]error),
		resolves: make(map[string]int),
	}
}

var _ driver.Page = (*Page)(nil)

// Add registers an element under a selector and returns it.
func (p *Page) Add(selector string, el *Element) *Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[selector] = el
	return el
}

// Remove deletes the element registered under selector.
func (p *Page) Remove(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, selector)
}

// FailResolve makes Resolve(selector) return err.
func (p *Page) FailResolve(selector string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[selector] = err
}

// ResolveCount returns how many times selector was resolved.
func (p *Page) ResolveCount(selector string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resolves[selector]
}

// SetURL sets the current URL without a navigation.
func (p *Page) SetURL(u string) {
	p.mu.Lock()
	p.url = u
	p.mu.Unlock()
}

// EmitRuntimeError delivers an uncaught exception to subscribers.
func (p *Page) EmitRuntimeError(msg string) {
	p.mu.Lock()
	cbs := append([]func(string){}, p.runtimeCb...)
	p.mu.Unlock()
	for _, cb := range cbs {
		cb(msg)
	}
}

// EmitConsoleError delivers a console.error to subscribers.
func (p *Page) EmitConsoleError(msg string) {
	p.mu.Lock()
	cbs := append([]func(string){}, p.consoleCb...)
	p.mu.Unlock()
	for _, cb := range cbs {
		cb(msg)
	}
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Navigate implements driver.Page.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if p.NavigateDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.NavigateDelay):
		}
	}
	if p.OnNavigate != nil {
		if err := p.OnNavigate(ctx, p, url); err != nil {
			return err
		}
	}
	p.SetURL(url)
	return nil
}

// URL implements driver.Page.
func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", driver.ErrDisconnected
	}
	return p.url, nil
}

// Resolve implements driver.Page.
func (p *Page) Resolve(ctx context.Context, selector string) (driver.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.resolves[selector]++
	if err, ok := p.errs[selector]; ok {
		return nil, err
	}
	el, ok := p.elements[selector]
	if !ok {
		return nil, nil
	}
	if p.resolves[selector] <= el.AppearAfter {
		return nil, nil
	}
	return &handle{page: p, el: el}, nil
}

// SubscribeRuntimeError implements driver.Page.
func (p *Page) SubscribeRuntimeError(fn func(string)) {
	p.mu.Lock()
	p.runtimeCb = append(p.runtimeCb, fn)
	p.mu.Unlock()
}

// SubscribeConsoleError implements driver.Page.
func (p *Page) SubscribeConsoleError(fn func(string)) {
	p.mu.Lock()
	p.consoleCb = append(p.consoleCb, fn)
	p.mu.Unlock()
}

// Close implements driver.Page.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type handle struct {
	page *Page
	el   *Element
}

func (h *handle) Inspect(ctx context.Context) (driver.State, error) {
	h.el.mu.Lock()
	defer h.el.mu.Unlock()
	if h.el.InspectErr != nil {
		return driver.State{}, h.el.InspectErr
	}
	return driver.State{Visible: h.el.Visible, Enabled: h.el.Enabled}, nil
}

func (h *handle) Click(ctx context.Context, timeout time.Duration) error {
	h.el.mu.Lock()
	h.el.clicks++
	fn := h.el.OnClick
	h.el.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, h.page)
}

func (h *handle) Attribute(ctx context.Context, name string) (string, bool, error) {
	h.el.mu.Lock()
	defer h.el.mu.Unlock()
	v, ok := h.el.Attrs[name]
	return v, ok, nil
}

func (h *handle) Value(ctx context.Context) (string, error) {
	h.el.mu.Lock()
	defer h.el.mu.Unlock()
	return h.el.Value, nil
}

func (h *handle) Text(ctx context.Context) (string, error) {
	h.el.mu.Lock()
	defer h.el.mu.Unlock()
	return h.el.Text, nil
}

// Factory hands out pre-built pages in order, then falls back to Build.
type Factory struct {
	mu    sync.Mutex
	pages []*Page
	Err   error
	Build func() *Page
}

// NewFactory returns a factory over pages.
func NewFactory(pages ...*Page) *Factory {
	return &Factory{pages: pages}
}

// NewPage implements driver.PageFactory.
func (f *Factory) NewPage(ctx context.Context) (driver.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if len(f.pages) == 0 {
		if f.Build != nil {
			return f.Build(), nil
		}
		return nil, errors.New("drivertest: no pages left")
	}
	p := f.pages[0]
	f.pages = f.pages[1:]
	return p, nil
}
