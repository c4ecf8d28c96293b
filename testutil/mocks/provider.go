// Package mocks 提供测试用的模拟实现。
//
// 支持脚本化响应序列与错误注入场景。
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/browserflow/llm"
)

// scripted 单次调用的脚本：响应或错误二选一。
type scripted struct {
	resp *llm.ChatResponse
	err  error
}

// MockProvider 是 llm.Provider 的模拟实现。按 With* 配置的
// 顺序消费脚本，脚本耗尽后重复最后一条。
type MockProvider struct {
	mu sync.Mutex

	name   string
	native bool
	script []scripted

	// 调用记录
	Requests []*llm.ChatRequest
}

// NewMockProvider 创建模拟提供商。
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name, native: true}
}

// WithText 追加一条纯文本响应脚本。
func (m *MockProvider) WithText(text string) *MockProvider {
	m.script = append(m.script, scripted{resp: textResponse(text)})
	return m
}

// WithToolCall 追加一条发起工具调用的响应脚本。
func (m *MockProvider) WithToolCall(id, name, args string) *MockProvider {
	m.script = append(m.script, scripted{resp: &llm.ChatResponse{
		Model: m.name,
		Choices: []llm.ChatChoice{{
			FinishReason: "tool_calls",
			Message: llm.Message{
				Role: llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{{
					ID: id, Name: name, Arguments: []byte(args),
				}},
			},
		}},
	}})
	return m
}

// WithError 追加一条错误脚本。
func (m *MockProvider) WithError(err error) *MockProvider {
	m.script = append(m.script, scripted{err: err})
	return m
}

// WithoutNativeToolCalling 标记为不支持原生函数调用。
func (m *MockProvider) WithoutNativeToolCalling() *MockProvider {
	m.native = false
	return m
}

// Completion 实现 llm.Provider。
func (m *MockProvider) Completion(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)
	if len(m.script) == 0 {
		return textResponse("mock response"), nil
	}
	idx := len(m.Requests) - 1
	if idx >= len(m.script) {
		idx = len(m.script) - 1
	}
	s := m.script[idx]
	return s.resp, s.err
}

// Name 实现 llm.Provider。
func (m *MockProvider) Name() string { return m.name }

// SupportsNativeFunctionCalling 实现 llm.Provider。
func (m *MockProvider) SupportsNativeFunctionCalling() bool { return m.native }

// Calls 返回已记录的调用次数。
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

func textResponse(text string) *llm.ChatResponse {
	return &llm.ChatResponse{
		Choices: []llm.ChatChoice{{
			FinishReason: "stop",
			Message:      llm.Message{Role: llm.RoleAssistant, Content: text},
		}},
	}
}
