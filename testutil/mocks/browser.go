package mocks

import (
	"context"
	"sync"
)

// MockBrowser 是浏览器会话视图的模拟实现。结构上满足
// workflow.BrowserContext 与 workflow.BrowserSession。
type MockBrowser struct {
	mu sync.Mutex

	Open     bool
	URL      string
	Site     string
	Snapshot string

	Closed int
}

// NewMockBrowser 创建已打开的模拟浏览器。
func NewMockBrowser(url, site string) *MockBrowser {
	return &MockBrowser{
		Open:     true,
		URL:      url,
		Site:     site,
		Snapshot: "Page Title: Mock\nVisible Text Snippet: mock page...",
	}
}

func (m *MockBrowser) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Open
}

func (m *MockBrowser) CurrentInfo(context.Context) (string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Open {
		return "unknown_url", "unknown_site"
	}
	return m.URL, m.Site
}

func (m *MockBrowser) PageSnapshot(context.Context, int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Open {
		return "Browser is NOT open. First step must be 'Open Browser'."
	}
	return m.Snapshot
}

func (m *MockBrowser) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Open = false
	m.Closed++
	return nil
}
