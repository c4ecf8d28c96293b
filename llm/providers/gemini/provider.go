// Package gemini 提供 Google Gemini 模型的 Provider 适配实现。
// 直接对接 generativelanguage.googleapis.com REST API，自行处理请求构建、
// 响应解析与原生 Function Calling，不依赖 openaicompat 兼容层。
package gemini

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

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	// DefaultModel 是默认模型。
	DefaultModel = "gemini-2.5-flash"
)

// Config 配置 Gemini Provider。
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Provider 是 llm.Provider 的 Gemini 原生实现。
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New 创建 Gemini Provider。
func New(cfg Config, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("provider", "gemini")),
	}
}

func (p *Provider) Name() string                        { return "gemini" }
func (p *Provider) SupportsNativeFunctionCalling() bool { return true }

// Gemini 原生请求/响应结构。
type geminiPart struct {
	Text         string `json:"text,omitempty"`
	FunctionCall *struct {
		Name string         `json:"name"`
		Args map[string]any `json:"args"`
	} `json:"functionCall,omitempty"`
	FunctionResponse *struct {
		Name     string         `json:"name"`
		Response map[string]any `json:"response"`
	} `json:"functionResponse,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiTool struct {
	FunctionDeclarations []struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters,omitempty"`
	} `json:"functionDeclarations"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Tools             []geminiTool    `json:"tools,omitempty"`
	GenerationConfig  *struct {
		Temperature     float32  `json:"temperature,omitempty"`
		MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
		StopSequences   []string `json:"stopSequences,omitempty"`
	} `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Completion 实现 llm.Provider。
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	body := geminiRequest{}
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
		case llm.RoleTool:
			part := geminiPart{}
			part.FunctionResponse = &struct {
				Name     string         `json:"name"`
				Response map[string]any `json:"response"`
			}{Name: m.Name, Response: map[string]any{"result": m.Content}}
			body.Contents = append(body.Contents, geminiContent{Role: "user", Parts: []geminiPart{part}})
		case llm.RoleAssistant:
			content := geminiContent{Role: "model"}
			if m.Content != "" {
				content.Parts = append(content.Parts, geminiPart{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal(tc.Arguments, &args)
				part := geminiPart{}
				part.FunctionCall = &struct {
					Name string         `json:"name"`
					Args map[string]any `json:"args"`
				}{Name: tc.Name, Args: args}
				content.Parts = append(content.Parts, part)
			}
			body.Contents = append(body.Contents, content)
		default:
			body.Contents = append(body.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	if len(req.Tools) > 0 {
		tool := geminiTool{}
		for _, t := range req.Tools {
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, struct {
				Name        string          `json:"name"`
				Description string          `json:"description,omitempty"`
				Parameters  json.RawMessage `json:"parameters,omitempty"`
			}{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
		}
		body.Tools = []geminiTool{tool}
	}
	if req.Temperature != 0 || req.MaxTokens != 0 || len(req.Stop) > 0 {
		body.GenerationConfig = &struct {
			Temperature     float32  `json:"temperature,omitempty"`
			MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
			StopSequences   []string `json:"stopSequences,omitempty"`
		}{Temperature: req.Temperature, MaxOutputTokens: req.MaxTokens, StopSequences: req.Stop}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.cfg.BaseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: fmt.Sprintf("gemini: %v", err), Retryable: true, Provider: "gemini"}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: fmt.Sprintf("gemini: read body: %v", err), Retryable: true, Provider: "gemini"}
	}
	if resp.StatusCode != http.StatusOK {
		code, retryable := llm.ClassifyHTTPStatus(resp.StatusCode)
		return nil, &llm.Error{
			Code: code, Message: fmt.Sprintf("gemini: HTTP %d: %s", resp.StatusCode, string(raw[:min(len(raw), 512)])),
			HTTPStatus: resp.StatusCode, Retryable: retryable, Provider: "gemini",
		}
	}

	var gr geminiResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: fmt.Sprintf("gemini: decode: %v", err), Provider: "gemini"}
	}
	if gr.Error != nil {
		return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: fmt.Sprintf("gemini: %s", gr.Error.Message), Provider: "gemini"}
	}
	if len(gr.Candidates) == 0 {
		return nil, &llm.Error{Code: llm.ErrEmptyOutput, Message: "gemini: empty output", Retryable: true, Provider: "gemini"}
	}

	out := &llm.ChatResponse{
		Provider:  "gemini",
		Model:     model,
		CreatedAt: time.Now(),
		Usage: llm.ChatUsage{
			PromptTokens:     gr.UsageMetadata.PromptTokenCount,
			CompletionTokens: gr.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      gr.UsageMetadata.TotalTokenCount,
		},
	}
	for i, cand := range gr.Candidates {
		msg := llm.Message{Role: llm.RoleAssistant}
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				msg.Content += part.Text
			}
			if part.FunctionCall != nil {
				args, _ := json.Marshal(part.FunctionCall.Args)
				msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
					ID:        fmt.Sprintf("call_%d_%s", i, part.FunctionCall.Name),
					Name:      part.FunctionCall.Name,
					Arguments: args,
				})
			}
		}
		out.Choices = append(out.Choices, llm.ChatChoice{
			Index:        i,
			FinishReason: cand.FinishReason,
			Message:      msg,
		})
	}
	return out, nil
}
