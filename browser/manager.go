package browser

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Manager owns the process-wide browser session. At most one session is open
// at a time; opening for a different site identity closes the current one
// first. All other workflow state is per-run, this is the only shared
// mutable resource.
type Manager struct {
	mu      sync.Mutex
	factory DriverFactory
	logger  *zap.Logger

	driver Driver
	site   string
}

// NewManager creates a session manager around the given driver factory.
func NewManager(factory DriverFactory, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{factory: factory, logger: logger}
}

// Open navigates to url under the given site identity. An existing session
// is reused when the identity matches, otherwise it is closed and reopened.
func (m *Manager) Open(ctx context.Context, rawURL, site string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if site == "" {
		site = SiteNameFromURL(rawURL)
	}

	if m.driver != nil && m.site != site {
		m.logger.Info("switching site, closing current session",
			zap.String("from", m.site), zap.String("to", site))
		if err := m.driver.Close(); err != nil {
			m.logger.Warn("close previous session failed", zap.Error(err))
		}
		m.driver = nil
		m.site = ""
	}

	if m.driver == nil {
		d, err := m.factory(ctx)
		if err != nil {
			return "", fmt.Errorf("open browser session: %w", err)
		}
		m.driver = d
		m.site = site
	}

	if err := m.driver.Navigate(ctx, rawURL); err != nil {
		return "", fmt.Errorf("navigate to %s: %w", rawURL, err)
	}
	m.logger.Info("session open", zap.String("site", site), zap.String("url", rawURL))
	return fmt.Sprintf("Browser open at %s (site: %s)", rawURL, site), nil
}

// IsOpen reports whether a session is live.
func (m *Manager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.driver != nil
}

// Driver returns the live driver, or ErrNoSession.
func (m *Manager) Driver() (Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.driver == nil {
		return nil, ErrNoSession
	}
	return m.driver, nil
}

// CurrentInfo resolves the live URL and site identity from the open browser.
// This is the source of truth for where an error actually happened — the
// relevant URL may have changed since planning. Sentinels are returned when
// no session is open or the URL is unreadable.
func (m *Manager) CurrentInfo(ctx context.Context) (url, site string) {
	d, err := m.Driver()
	if err != nil {
		return "unknown_url", "unknown_site"
	}
	u, err := d.CurrentURL(ctx)
	if err != nil {
		m.logger.Warn("read current URL failed", zap.Error(err))
		return "unknown_url", "unknown_site"
	}
	return u, SiteNameFromURL(u)
}

// PageSnapshot returns a short human-readable description of the current
// page (title + leading visible text) for planner context. Failures degrade
// to descriptive strings, never errors.
func (m *Manager) PageSnapshot(ctx context.Context, maxChars int) string {
	d, err := m.Driver()
	if err != nil {
		return "Browser is NOT open. First step must be 'Open Browser'."
	}
	title, terr := d.Title(ctx)
	text, xerr := d.VisibleText(ctx, maxChars)
	if terr != nil || xerr != nil {
		return "Browser is open but page content is unreadable."
	}
	return fmt.Sprintf("Page Title: %s\nVisible Text Snippet: %s...", title, text)
}

// Close shuts down the live session if any. Safe to call repeatedly; used in
// deferred cleanup on every run exit path.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.driver == nil {
		return nil
	}
	err := m.driver.Close()
	m.driver = nil
	m.site = ""
	if err != nil {
		return fmt.Errorf("close browser session: %w", err)
	}
	m.logger.Info("browser session closed")
	return nil
}
