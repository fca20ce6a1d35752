package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"sitecheck/internal/driver"
	"sitecheck/internal/logging"
)

// Page is a rod-backed driver.Page.
type Page struct {
	page      *rod.Page
	incognito *rod.Browser
	info      Info
	cfg       Config
	onClose   func()

	// events is cancelled on Close to stop the CDP event loop.
	events context.Context
	stop   context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	runtimeCb []func(string)
	consoleCb []func(string)
	closed    bool
}

var _ driver.Page = (*Page)(nil)

func newPage(rp *rod.Page, incognito *rod.Browser, info Info, cfg Config, onClose func()) (*Page, error) {
	if err := (proto.RuntimeEnable{}).Call(rp); err != nil {
		return nil, fmt.Errorf("enable runtime events: %w", mapError(err))
	}
	events, stop := context.WithCancel(context.Background())
	p := &Page{
		page:      rp,
		incognito: incognito,
		info:      info,
		cfg:       cfg,
		onClose:   onClose,
		events:    events,
		stop:      stop,
		done:      make(chan struct{}),
	}
	p.startEventStream()
	return p, nil
}

// startEventStream forwards uncaught exceptions and console.error calls to
// subscribers for the lifetime of the page.
func (p *Page) startEventStream() {
	wait := p.page.Context(p.events).EachEvent(
		func(ev *proto.RuntimeExceptionThrown) {
			d := ev.ExceptionDetails
			if d == nil {
				return
			}
			if p.cfg.IgnoreInternalScripts && isInternalScript(d.URL) {
				return
			}
			msg := d.Text
			if d.Exception != nil && d.Exception.Description != "" {
				msg = d.Exception.Description
			}
			p.emit(&p.runtimeCb, msg)
		},
		func(ev *proto.RuntimeConsoleAPICalled) {
			if ev.Type != proto.RuntimeConsoleAPICalledTypeError {
				return
			}
			p.emit(&p.consoleCb, stringifyConsoleArgs(ev.Args))
		},
	)
	go func() {
		defer close(p.done)
		wait()
	}()
}

func (p *Page) emit(cbs *[]func(string), msg string) {
	p.mu.Lock()
	fns := append([]func(string){}, (*cbs)...)
	p.mu.Unlock()
	logging.BrowserDebug("page %s script error: %s", p.info.ID, msg)
	for _, fn := range fns {
		fn(msg)
	}
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

// Navigate loads url and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string) error {
	rp := p.page.Context(ctx).Timeout(p.cfg.NavigationTimeout())
	if err := rp.Navigate(url); err != nil {
		return mapError(err)
	}
	if err := rp.WaitLoad(); err != nil {
		return mapError(err)
	}
	return nil
}

// URL returns the current document URL.
func (p *Page) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", mapError(err)
	}
	return info.URL, nil
}

var hasTextRe = regexp.MustCompile(`^(.*):has-text\((["'])(.*)["']\)$`)

// Resolve returns the first element matching selector without waiting.
// A trailing :has-text("x") keeps only elements whose text contains x.
func (p *Page) Resolve(ctx context.Context, selector string) (driver.Handle, error) {
	css, text := selector, ""
	if m := hasTextRe.FindStringSubmatch(selector); m != nil {
		css, text = strings.TrimSpace(m[1]), m[3]
		if css == "" {
			css = "*"
		}
	}

	rp := p.page.Context(ctx)
	if text == "" {
		has, el, err := rp.Has(css)
		if err != nil {
			return nil, mapError(err)
		}
		if !has {
			return nil, nil
		}
		return &handle{el: el}, nil
	}

	els, err := rp.Elements(css)
	if err != nil {
		return nil, mapError(err)
	}
	for _, el := range els {
		t, err := el.Text()
		if err != nil {
			continue
		}
		if strings.Contains(t, text) {
			return &handle{el: el}, nil
		}
	}
	return nil, nil
}

// Close stops the event stream and disposes of the incognito context.
func (p *Page) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.stop()
	err := p.page.Close()
	if cerr := p.incognito.Close(); err == nil {
		err = cerr
	}
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		logging.BrowserWarn("page %s event stream did not stop", p.info.ID)
	}
	if p.onClose != nil {
		p.onClose()
	}
	return mapError(err)
}

type handle struct {
	el *rod.Element
}

// inspectJS computes visibility and enabled state in one evaluation.
const inspectJS = `() => {
	const el = this;
	const style = window.getComputedStyle(el);
	const rect = el.getBoundingClientRect();
	const visible = rect.width > 0 && rect.height > 0 &&
		style.display !== 'none' && style.visibility !== 'hidden';
	const enabled = !el.disabled &&
		el.getAttribute('aria-disabled') !== 'true' &&
		style.pointerEvents !== 'none';
	return { visible, enabled };
}`

func (h *handle) Inspect(ctx context.Context) (driver.State, error) {
	res, err := h.el.Context(ctx).Eval(inspectJS)
	if err != nil {
		return driver.State{}, mapError(err)
	}
	return driver.State{
		Visible: res.Value.Get("visible").Bool(),
		Enabled: res.Value.Get("enabled").Bool(),
	}, nil
}

func (h *handle) Click(ctx context.Context, timeout time.Duration) error {
	el := h.el.Context(ctx)
	if timeout > 0 {
		el = el.Timeout(timeout)
	}
	return mapError(el.Click(proto.InputMouseButtonLeft, 1))
}

func (h *handle) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := h.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, mapError(err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (h *handle) Value(ctx context.Context) (string, error) {
	v, err := h.el.Context(ctx).Property("value")
	if err != nil {
		return "", mapError(err)
	}
	return v.Str(), nil
}

func (h *handle) Text(ctx context.Context) (string, error) {
	t, err := h.el.Context(ctx).Text()
	return t, mapError(err)
}

// mapError turns lost-connection failures into driver.ErrDisconnected.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || isConnectionLost(err.Error()) {
		return fmt.Errorf("%w: %v", driver.ErrDisconnected, err)
	}
	return err
}

func isConnectionLost(msg string) bool {
	msg = strings.ToLower(msg)
	for _, s := range []string{
		"use of closed network connection",
		"websocket: close",
		"cdp connection closed",
		"target closed",
		"no target with given id",
		"session with given id not found",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func stringifyConsoleArgs(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		if !a.Value.Nil() {
			parts = append(parts, a.Value.String())
			continue
		}
		if a.Description != "" {
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}

func isInternalScript(url string) bool {
	internalPrefixes := []string{
		"chrome://",
		"chrome-extension://",
		"devtools://",
		"about:",
	}
	for _, prefix := range internalPrefixes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}
