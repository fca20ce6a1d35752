// Package browser drives Chrome over the DevTools protocol with go-rod and
// implements the driver contracts used by sessions. Every page lives in its
// own incognito context so cookies and carts never leak between products.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"sitecheck/internal/driver"
	"sitecheck/internal/logging"
)

// Info describes an open page.
type Info struct {
	ID        string    `json:"id"`
	TargetID  string    `json:"target_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Config holds browser configuration.
type Config struct {
	DebuggerURL         string   `yaml:"debugger_url" json:"debugger_url"`
	Launch              []string `yaml:"launch" json:"launch"`
	Headless            bool     `yaml:"headless" json:"headless"`
	ViewportWidth       int      `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight      int      `yaml:"viewport_height" json:"viewport_height"`
	NavigationTimeoutMs int      `yaml:"navigation_timeout_ms" json:"navigation_timeout_ms"`
	// IgnoreInternalScripts drops exceptions thrown by extension or
	// devtools scripts.
	IgnoreInternalScripts bool `yaml:"ignore_internal_scripts" json:"ignore_internal_scripts"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:              true,
		ViewportWidth:         1920,
		ViewportHeight:        1080,
		NavigationTimeoutMs:   30000,
		IgnoreInternalScripts: true,
	}
}

// GetViewportWidth returns viewport width.
func (c Config) GetViewportWidth() int {
	if c.ViewportWidth == 0 {
		return 1920
	}
	return c.ViewportWidth
}

// GetViewportHeight returns viewport height.
func (c Config) GetViewportHeight() int {
	if c.ViewportHeight == 0 {
		return 1080
	}
	return c.ViewportHeight
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// Manager owns the Chrome instance and hands out isolated pages.
type Manager struct {
	cfg        Config
	mu         sync.RWMutex
	browser    *rod.Browser
	pages      map[string]*Page
	controlURL string
}

// NewManager creates a manager. Chrome is started lazily.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg, pages: make(map[string]*Page)}
}

var _ driver.PageFactory = (*Manager)(nil)

// Start connects to an existing Chrome or launches a new one.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		logging.BrowserWarn("stale browser connection detected, reconnecting")
		_ = m.browser.Close()
		m.browser = nil
		m.controlURL = ""
		m.pages = make(map[string]*Page)
	}

	controlURL := m.cfg.DebuggerURL
	if controlURL == "" && len(m.cfg.Launch) > 0 {
		bin := m.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(m.cfg.Headless)
		for _, rawFlag := range m.cfg.Launch[1:] {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err != nil {
			fallback := launcher.New().Bin(bin).Headless(m.cfg.Headless)
			alt, altErr := fallback.Launch()
			if altErr != nil {
				return fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
			}
			logging.BrowserWarn("chrome rejected launch flags, started without them: %v", err)
			url = alt
		}
		controlURL = url
	}

	if controlURL == "" {
		url, err := launcher.New().Headless(m.cfg.Headless).Launch()
		if err != nil {
			return fmt.Errorf("no debugger_url and failed to launch: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = browser
	m.controlURL = controlURL
	logging.Browser("connected to chrome at %s", controlURL)
	return nil
}

func (m *Manager) ensureStarted(ctx context.Context) error {
	m.mu.RLock()
	if m.browser != nil {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()
	return m.Start(ctx)
}

// ControlURL returns the DevTools websocket URL.
func (m *Manager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

// IsConnected reports whether a browser is attached and still answers.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	browser := m.browser
	m.mu.RUnlock()
	if browser == nil {
		return false
	}
	_, err := browser.Version()
	return err == nil
}

// List returns the open pages, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.pages))
	for _, p := range m.pages {
		out = append(out, p.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// NewPage opens a blank page in a fresh incognito context with Runtime
// events enabled.
func (m *Manager) NewPage(ctx context.Context) (driver.Page, error) {
	if err := m.ensureStarted(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	browser := m.browser
	m.mu.RUnlock()
	if browser == nil {
		return nil, errors.New("browser not connected")
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", mapError(err))
	}

	rp, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("create page: %w", mapError(err))
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.GetViewportWidth(),
		Height:            m.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(rp); err != nil {
		logging.BrowserWarn("failed to set viewport: %v", err)
	}

	info := Info{ID: uuid.NewString(), TargetID: string(rp.TargetID), CreatedAt: time.Now()}
	p, err := newPage(rp, incognito, info, m.cfg, func() { m.forget(info.ID) })
	if err != nil {
		_ = rp.Close()
		_ = incognito.Close()
		return nil, err
	}

	m.mu.Lock()
	m.pages[info.ID] = p
	m.mu.Unlock()
	logging.BrowserDebug("opened page %s (target %s)", info.ID, info.TargetID)
	return p, nil
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	delete(m.pages, id)
	m.mu.Unlock()
}

// Shutdown closes every page and the browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	pages := make([]*Page, 0, len(m.pages))
	for _, p := range m.pages {
		pages = append(pages, p)
	}
	m.mu.Unlock()

	for _, p := range pages {
		_ = p.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	m.controlURL = ""
	return err
}
