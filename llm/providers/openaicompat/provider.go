// Package openaicompat 提供 OpenAI Chat Completions 兼容协议的通用 Provider 基座。
// Groq、SambaNova、Ollama 等兼容端点直接复用，差异仅在 BaseURL、默认模型与认证头。
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/browserflow/llm"
)

// Config 配置一个兼容端点。
type Config struct {
	Name          string        // Provider 标识（gemini/groq/...）
	BaseURL       string        // 不含尾部斜杠，如 https://api.groq.com/openai/v1
	APIKey        string
	Model         string        // 默认模型，请求未指定时使用
	Timeout       time.Duration // 单次请求超时，0 表示不限制
	ExtraHeaders  map[string]string
	NativeToolUse bool // 端点是否支持原生 function calling
}

// Provider 是 llm.Provider 的 OpenAI 兼容实现。
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New 创建兼容 Provider。
func New(cfg Config, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("provider", cfg.Name)),
	}
}

func (p *Provider) Name() string                        { return p.cfg.Name }
func (p *Provider) SupportsNativeFunctionCalling() bool { return p.cfg.NativeToolUse }

// wire 格式：与 OpenAI /chat/completions 对齐。
type wireToolCall struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type"`
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    any            `json:"content"` // string，或 vision 请求的分片数组
	Name       string         `json:"name,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireContentPart struct {
	Type     string `json:"type"` // text / image_url
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Tools       []wireTool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
}

type wireResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		FinishReason string      `json:"finish_reason"`
		Message      wireMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// Completion 实现 llm.Provider。
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	body := wireRequest{
		Model:       model,
		Messages:    toWireMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
		ToolChoice:  req.ToolChoice,
	}
	for _, t := range req.Tools {
		wt := wireTool{Type: "function"}
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.Parameters
		body.Tools = append(body.Tools, wt)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
	for k, v := range p.cfg.ExtraHeaders {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &llm.Error{
			Code: llm.ErrUpstreamError, Message: fmt.Sprintf("%s: %v", p.cfg.Name, err),
			Retryable: true, Provider: p.cfg.Name,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, &llm.Error{
			Code: llm.ErrUpstreamError, Message: fmt.Sprintf("%s: read body: %v", p.cfg.Name, err),
			Retryable: true, Provider: p.cfg.Name,
		}
	}

	if resp.StatusCode != http.StatusOK {
		code, retryable := llm.ClassifyHTTPStatus(resp.StatusCode)
		return nil, &llm.Error{
			Code: code, Message: fmt.Sprintf("%s: HTTP %d: %s", p.cfg.Name, resp.StatusCode, truncate(string(raw), 512)),
			HTTPStatus: resp.StatusCode, Retryable: retryable, Provider: p.cfg.Name,
		}
	}

	var wr wireResponse
	if err := json.Unmarshal(raw, &wr); err != nil {
		return nil, &llm.Error{
			Code: llm.ErrUpstreamError, Message: fmt.Sprintf("%s: decode response: %v", p.cfg.Name, err),
			Retryable: false, Provider: p.cfg.Name,
		}
	}
	if wr.Error != nil {
		return nil, &llm.Error{
			Code: llm.ErrUpstreamError, Message: fmt.Sprintf("%s: %s", p.cfg.Name, wr.Error.Message),
			Retryable: false, Provider: p.cfg.Name,
		}
	}
	if len(wr.Choices) == 0 {
		return nil, &llm.Error{
			Code: llm.ErrEmptyOutput, Message: fmt.Sprintf("%s: empty output", p.cfg.Name),
			Retryable: true, Provider: p.cfg.Name,
		}
	}

	out := &llm.ChatResponse{
		ID:        wr.ID,
		Provider:  p.cfg.Name,
		Model:     wr.Model,
		CreatedAt: time.Now(),
		Usage: llm.ChatUsage{
			PromptTokens:     wr.Usage.PromptTokens,
			CompletionTokens: wr.Usage.CompletionTokens,
			TotalTokens:      wr.Usage.TotalTokens,
		},
	}
	for _, c := range wr.Choices {
		out.Choices = append(out.Choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message:      fromWireMessage(c.Message),
		})
	}

	p.logger.Debug("completion ok",
		zap.String("model", model),
		zap.Int("total_tokens", wr.Usage.TotalTokens),
		zap.Duration("latency", time.Since(start)))
	return out, nil
}

func toWireMessages(msgs []llm.Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := wireMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		if len(m.Images) > 0 {
			parts := []wireContentPart{{Type: "text", Text: m.Content}}
			for _, img := range m.Images {
				p := wireContentPart{Type: "image_url"}
				p.ImageURL = &struct {
					URL string `json:"url"`
				}{URL: img}
				parts = append(parts, p)
			}
			wm.Content = parts
		}
		for _, tc := range m.ToolCalls {
			wtc := wireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = tc.Arguments
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		out = append(out, wm)
	}
	return out
}

func fromWireMessage(wm wireMessage) llm.Message {
	content, _ := wm.Content.(string)
	m := llm.Message{
		Role:       llm.Role(wm.Role),
		Content:    content,
		Name:       wm.Name,
		ToolCallID: wm.ToolCallID,
	}
	for _, tc := range wm.ToolCalls {
		m.ToolCalls = append(m.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return m
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
