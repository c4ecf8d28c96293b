// Package sambanova 提供 SambaNova Cloud 的 Provider 适配（OpenAI 兼容协议）。
package sambanova

import (
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/browserflow/llm/providers/openaicompat"
)

const (
	defaultBaseURL = "https://api.sambanova.ai/v1"
	// DefaultModel 是默认文本模型。
	DefaultModel = "Meta-Llama-3.3-70B-Instruct"
)

// New 创建 SambaNova Provider。model 为空时使用 DefaultModel。
func New(apiKey, model string, logger *zap.Logger) *openaicompat.Provider {
	if model == "" {
		model = DefaultModel
	}
	return openaicompat.New(openaicompat.Config{
		Name:          "sambanova",
		BaseURL:       defaultBaseURL,
		APIKey:        apiKey,
		Model:         model,
		Timeout:       120 * time.Second,
		NativeToolUse: true,
	}, logger)
}
