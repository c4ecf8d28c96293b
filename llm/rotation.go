package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Capability 标识一次调用需要的模型能力。
type Capability string

const (
	CapabilityMain      Capability = "main"      // 规划/格式化等文本推理
	CapabilityExecution Capability = "execution" // 工具调用执行
	CapabilityVision    Capability = "vision"    // 截图理解
)

// Candidate 是轮换列表中的一个候选：标识名 + 可调用的 Provider。
type Candidate struct {
	Name     string
	Provider Provider
}

// FamilyConfig 描述一个凭证族：按注册顺序的 Key 列表和对应的构造函数。
// 同族的多个 Key 展开为多个候选（gemini_llm1、gemini_llm2、...）。
type FamilyConfig struct {
	Name  string
	Keys  []string
	Build func(apiKey string) (Provider, error)
}

// LocalConfig 描述本地部署的 Provider（如 ollama）。
// 仅在探活成功后进入轮换；探活结果进程内缓存。
type LocalConfig struct {
	Name  string
	Build func() (Provider, error)
}

// RouterConfig 固定每种能力的构建顺序。
type RouterConfig struct {
	Main      []FamilyConfig
	Execution []FamilyConfig
	Vision    []FamilyConfig
	Local     *LocalConfig
}

// Router 按能力构建候选轮换列表。
// 无隐藏全局状态：由上层构造并注入编排器（探活缓存除外，进程生命周期）。
type Router struct {
	cfg    RouterConfig
	logger *zap.Logger

	probeGroup singleflight.Group
	mu         sync.Mutex
	probed     bool
	alive      bool
	local      Provider
}

// NewRouter 创建路由器。
func NewRouter(cfg RouterConfig, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{cfg: cfg, logger: logger}
}

// Rotate 把列表循环左移 k 位：rotated[i] = list[(k+i) mod len]。
// k=0 或列表为空时原样返回。
func Rotate[T any](list []T, k int) []T {
	n := len(list)
	if n == 0 {
		return list
	}
	k = ((k % n) + n) % n
	if k == 0 {
		return list
	}
	rotated := make([]T, 0, n)
	rotated = append(rotated, list[k:]...)
	rotated = append(rotated, list[:k]...)
	return rotated
}

// Rotation 返回某能力的有序候选列表，从 startIndex 开始循环轮换。
// providerFilter 非空时只保留该族的候选；过滤后为空返回 ErrNoProviders。
// vision 能力在探活成功时把本地 Provider 置于列表头部，不参与轮换偏移。
func (r *Router) Rotation(ctx context.Context, cap Capability, startIndex int, providerFilter string) ([]Candidate, error) {
	var families []FamilyConfig
	switch cap {
	case CapabilityMain:
		families = r.cfg.Main
	case CapabilityExecution:
		families = r.cfg.Execution
	case CapabilityVision:
		families = r.cfg.Vision
	default:
		return nil, fmt.Errorf("unknown capability %q: %w", cap, ErrNoProviders)
	}

	list := r.buildCandidates(families, providerFilter)
	list = Rotate(list, startIndex)

	// 本地 Provider：vision 恒定置顶；其余能力仅在显式过滤时加入。
	if r.cfg.Local != nil {
		wantLocal := cap == CapabilityVision || providerFilter == r.cfg.Local.Name
		if wantLocal {
			if p := r.localProvider(ctx); p != nil {
				list = append([]Candidate{{Name: r.cfg.Local.Name, Provider: p}}, list...)
			}
		}
	}

	if len(list) == 0 {
		if providerFilter != "" {
			return nil, fmt.Errorf("provider %q: %w", providerFilter, ErrNoProviders)
		}
		return nil, fmt.Errorf("capability %q: %w", cap, ErrNoProviders)
	}
	return list, nil
}

func (r *Router) buildCandidates(families []FamilyConfig, filter string) []Candidate {
	var list []Candidate
	for _, fam := range families {
		if filter != "" && filter != fam.Name {
			continue
		}
		for i, key := range fam.Keys {
			p, err := fam.Build(key)
			if err != nil {
				r.logger.Warn("provider init failed, skipping key",
					zap.String("family", fam.Name),
					zap.Int("key_index", i+1),
					zap.Error(err))
				continue
			}
			list = append(list, Candidate{
				Name:     fmt.Sprintf("%s_llm%d", fam.Name, i+1),
				Provider: p,
			})
		}
	}
	return list
}

// localProvider 返回探活成功的本地 Provider；首次调用探活，之后复用结果。
// singleflight 保证并发 Rotation 只触发一次探针。
func (r *Router) localProvider(ctx context.Context) Provider {
	r.mu.Lock()
	if r.probed {
		defer r.mu.Unlock()
		if r.alive {
			return r.local
		}
		return nil
	}
	r.mu.Unlock()

	v, _, _ := r.probeGroup.Do("probe", func() (any, error) {
		p, err := r.cfg.Local.Build()
		if err != nil {
			r.recordProbe(false, nil)
			return nil, nil //nolint:nilerr // 探活失败不是错误，只是不入轮换
		}
		alive := false
		if hc, ok := p.(HealthChecker); ok {
			probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if st, err := hc.HealthCheck(probeCtx); err == nil && st.Healthy {
				alive = true
			}
		}
		if !alive {
			r.logger.Info("local provider not reachable, excluded from rotation",
				zap.String("provider", r.cfg.Local.Name))
			r.recordProbe(false, nil)
			return nil, nil
		}
		r.logger.Info("local provider added to rotation",
			zap.String("provider", r.cfg.Local.Name))
		r.recordProbe(true, p)
		return p, nil
	})
	if p, ok := v.(Provider); ok {
		return p
	}
	return nil
}

func (r *Router) recordProbe(alive bool, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probed = true
	r.alive = alive
	r.local = p
}
