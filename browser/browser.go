// Package browser provides the browser automation surface consumed by the
// execution worker: a single shared session manager, a driver abstraction,
// and the tool registry exposed to the tool-calling loop.
package browser

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

// ErrNoSession is returned when a page operation runs without an open session.
var ErrNoSession = errors.New("browser session not open")

// IndexedElement is an interactive element tagged by the numeric overlay.
type IndexedElement struct {
	Index   int    `json:"index"`
	Tag     string `json:"tag"`
	Type    string `json:"type,omitempty"` // button, input, link, select
	Text    string `json:"text,omitempty"`
	Visible bool   `json:"visible"`
}

// InputField describes a visible form input.
type InputField struct {
	Index       int    `json:"index"`
	Name        string `json:"name,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Value       string `json:"value,omitempty"`
	Type        string `json:"type,omitempty"`
}

// ElementSelector is the result of selector extraction for one named element.
// The "schema" of an extraction is just the requested key set; results are
// validated post-hoc against it rather than compiled into a type per call.
type ElementSelector struct {
	Selector string `json:"selector"`
	Strategy string `json:"strategy,omitempty"`
}

// Driver is the per-session browser control surface. Implementations must be
// safe for sequential use from a single workflow run; the Manager provides
// the cross-run locking.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	// VisibleText waits for document readiness up to the driver's configured
	// bound, then returns at most maxChars characters of body text.
	VisibleText(ctx context.Context, maxChars int) (string, error)
	HTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	IndexElements(ctx context.Context) ([]IndexedElement, error)
	ClickIndex(ctx context.Context, index int) error
	FillIndex(ctx context.Context, index int, text string) error
	Scroll(ctx context.Context, direction string) error
	PressKey(ctx context.Context, key string) error
	Hover(ctx context.Context, index int) error
	InputFields(ctx context.Context) ([]InputField, error)
	ExtractText(ctx context.Context, selector string) (string, error)
	ExtractAttribute(ctx context.Context, selector, attr string) (string, error)
	SelectOption(ctx context.Context, selector, value string) error
	Close() error
}

// DriverFactory opens a fresh driver session.
type DriverFactory func(ctx context.Context) (Driver, error)

// Config configures browser sessions.
type Config struct {
	Headless       bool          `yaml:"headless"`
	ViewportWidth  int           `yaml:"viewport_width"`
	ViewportHeight int           `yaml:"viewport_height"`
	UserAgent      string        `yaml:"user_agent"`
	// ReadyTimeout bounds the wait for document readiness before page reads
	// give up and report unreadable content.
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:       true,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		ReadyTimeout:   30 * time.Second,
	}
}

// SiteNameFromURL derives the site identity from a URL: hostname without the
// "www." prefix, or a sentinel when the URL has no usable host.
func SiteNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "local_or_unknown"
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
