// Package groq 提供 Groq 推理端点的 Provider 适配（OpenAI 兼容协议）。
package groq

import (
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/browserflow/llm/providers/openaicompat"
)

const (
	defaultBaseURL = "https://api.groq.com/openai/v1"
	// DefaultModel 是主力文本模型。
	DefaultModel = "llama-3.3-70b-versatile"
	// DefaultVisionModel 是视觉模型。
	DefaultVisionModel = "llama-3.2-90b-vision-preview"
)

// New 创建 Groq Provider。model 为空时使用 DefaultModel。
func New(apiKey, model string, logger *zap.Logger) *openaicompat.Provider {
	if model == "" {
		model = DefaultModel
	}
	return openaicompat.New(openaicompat.Config{
		Name:          "groq",
		BaseURL:       defaultBaseURL,
		APIKey:        apiKey,
		Model:         model,
		Timeout:       120 * time.Second,
		NativeToolUse: true,
	}, logger)
}
