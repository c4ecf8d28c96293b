package mocks

import (
	"context"
	"sync"
)

// StoredError 一次 StoreError 调用的记录。
type StoredError struct {
	Error     string
	Fix       string
	URL       string
	Site      string
	StepIndex int
}

// StoredNote 一次 StoreNote 调用的记录。
type StoredNote struct {
	Content string
	URL     string
	Site    string
	Task    string
	Agent   string
}

// MockMemory 是错误记忆的模拟实现，记录全部写入并返回
// 预设的检索文本。结构上满足 workflow.MemoryStore。
type MockMemory struct {
	mu sync.Mutex

	RetrieveText string

	Errors []StoredError
	Notes  []StoredNote
}

// NewMockMemory 创建模拟记忆。
func NewMockMemory() *MockMemory {
	return &MockMemory{RetrieveText: "No previous errors found for these sites."}
}

func (m *MockMemory) RetrieveErrors(_ context.Context, sites []string) string {
	if len(sites) == 0 {
		return "No specific sites identified yet."
	}
	return m.RetrieveText
}

func (m *MockMemory) StoreError(_ context.Context, errText, fix, url, site string, stepIndex int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors = append(m.Errors, StoredError{errText, fix, url, site, stepIndex})
}

func (m *MockMemory) StoreNote(_ context.Context, content, url, site, task, agent string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notes = append(m.Notes, StoredNote{content, url, site, task, agent})
}
