// Package ollama 提供本地 Ollama 实例的 Provider 适配。
// Chat 走 OpenAI 兼容端点（/v1），探活走原生 /api/tags。
// 本地实例无限流，vision 能力探活成功后恒定置于轮换头部。
package ollama

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/browserflow/llm"
	"github.com/BaSui01/browserflow/llm/providers/openaicompat"
)

const (
	// DefaultEndpoint 是本地 Ollama 的默认地址。
	DefaultEndpoint = "http://localhost:11434"
	// DefaultModel 是默认文本模型。
	DefaultModel = "llama3.1:8b"
	// DefaultVisionModel 是默认视觉模型。
	DefaultVisionModel = "llama3.2-vision:11b"
)

// Provider 在 openaicompat 基座上叠加原生探活能力。
type Provider struct {
	*openaicompat.Provider
	endpoint string
	client   *http.Client
}

var _ llm.HealthChecker = (*Provider)(nil)

// New 创建 Ollama Provider。endpoint/model 为空时使用默认值。
func New(endpoint, model string, logger *zap.Logger) *Provider {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if model == "" {
		model = DefaultModel
	}
	return &Provider{
		Provider: openaicompat.New(openaicompat.Config{
			Name:          "ollama",
			BaseURL:       endpoint + "/v1",
			Model:         model,
			Timeout:       300 * time.Second, // 本地推理慢，放宽超时
			NativeToolUse: true,
		}, logger),
		endpoint: endpoint,
		client:   &http.Client{Timeout: 3 * time.Second},
	}
}

// HealthCheck 用 /api/tags 做轻量探活。
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/api/tags", nil)
	if err != nil {
		return &llm.HealthStatus{Healthy: false}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return &llm.HealthStatus{Healthy: false}, err
	}
	defer resp.Body.Close()
	return &llm.HealthStatus{
		Healthy: resp.StatusCode == http.StatusOK,
		Latency: time.Since(start),
	}, nil
}
