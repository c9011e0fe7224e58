// Package browser drives Chrome through Rod for capture sessions: launch
// or connect, open stealth pages, observe network responses, settle and
// serialise the rendered document.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/prerender/prerender/internal/session"
)

// Viewport is the emulated window size.
type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Stealth applies go-rod/stealth evasions to every page.
	Stealth bool

	// Headful runs Chrome with a window on an Xvfb display.
	Headful bool

	// XvfbDisplay is the first display tried in headful mode; each manager
	// takes the next free one. Default: ":99".
	XvfbDisplay string

	// Viewport of every page. Default: 2560x1440.
	Viewport Viewport

	// ResourceBlocking lists resource types to block (images, fonts, media, stylesheets).
	ResourceBlocking []string

	// NavigationTimeout bounds navigation plus settling. Default: 60s.
	NavigationTimeout time.Duration

	// Settle is the quiet window the network must reach before the page
	// counts as loaded. Default: 500ms.
	Settle time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		c.Viewport = Viewport{Width: 2560, Height: 1440}
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 60 * time.Second
	}
	if c.Settle <= 0 {
		c.Settle = 500 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns one Chrome process (or remote connection). It implements
// session.Browser.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	xvfb    *exec.Cmd
	closed  bool

	xvfbExited <-chan error
	display    string
	displayNum int
}

// NewManager creates a browser Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome or connects to the remote instance.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return nil
	}

	b, err := m.launch(ctx)
	if err != nil {
		m.cleanup()
		return err
	}
	m.browser = b
	return nil
}

// NewPage opens a new tab with stealth, viewport and resource blocking
// applied.
func (m *Manager) NewPage(ctx context.Context) (session.Page, error) {
	m.mu.Lock()
	b := m.browser
	m.mu.Unlock()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}
	b = b.Context(ctx)

	var (
		rp  *rod.Page
		err error
	)
	if m.cfg.Stealth {
		rp, err = stealth.Page(b)
	} else {
		rp, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if err := rp.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.Viewport.Width,
		Height:            m.cfg.Viewport.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		rp.Close()
		return nil, fmt.Errorf("browser: set viewport: %w", err)
	}

	p := &Page{page: rp, cfg: &m.cfg}
	if len(m.cfg.ResourceBlocking) > 0 {
		p.router = applyResourceBlocking(rp, m.cfg.ResourceBlocking)
	}
	return p, nil
}

// Close shuts down Chrome and Xvfb. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.cleanup()
}

func (m *Manager) launch(ctx context.Context) (*rod.Browser, error) {
	log := m.cfg.Logger

	if m.cfg.Headful && m.cfg.RemoteURL == "" {
		if err := m.startXvfb(); err != nil {
			return nil, fmt.Errorf("browser: xvfb: %w", err)
		}
	}

	var wsURL string

	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Context(ctx)

		if m.cfg.Headful {
			l = l.Headless(false).Env(append(os.Environ(), "DISPLAY="+m.display)...)
		} else {
			l = l.Headless(true)
		}

		// Anti-detection flags.
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "headful", m.cfg.Headful)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}

	return b, nil
}

func (m *Manager) cleanup() error {
	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.stopXvfb()
	if err != nil {
		return fmt.Errorf("browser: close: %w", err)
	}
	return nil
}
