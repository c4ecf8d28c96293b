package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/BaSui01/browserflow/llm"
)

// ToolCallRecord 一次工具执行的记录。
type ToolCallRecord struct {
	Name string
	Args string
}

// MockTools 是浏览器工具面的模拟实现。结构上满足
// workflow.ToolSurface。
type MockTools struct {
	mu sync.Mutex

	// Results 按工具名预设返回值，缺省返回 "ok"。
	Results map[string]string
	// Extraction 标记哪些工具属于提取类。
	Extraction map[string]bool

	Calls []ToolCallRecord
}

// NewMockTools 创建模拟工具面。
func NewMockTools() *MockTools {
	return &MockTools{
		Results:    map[string]string{},
		Extraction: map[string]bool{},
	}
}

func (m *MockTools) Schemas() []llm.ToolSchema {
	return []llm.ToolSchema{
		{Name: "click_id", Description: "Click an element", Parameters: json.RawMessage(`{"type":"object","properties":{"id":{"type":"integer"}}}`)},
		{Name: "scrape_data_using_text", Description: "Extract structured data", Parameters: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}}}`)},
	}
}

func (m *MockTools) Execute(_ context.Context, name string, rawArgs json.RawMessage) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, ToolCallRecord{Name: name, Args: string(rawArgs)})
	if out, ok := m.Results[name]; ok {
		return out
	}
	return "ok"
}

func (m *MockTools) IsExtraction(name string) bool {
	return m.Extraction[name]
}

// CallNames 返回按序的工具名调用列表。
func (m *MockTools) CallNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		names[i] = c.Name
	}
	return names
}
