package workflow

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/browserflow/llm"
	llmcache "github.com/BaSui01/browserflow/llm/cache"
)

const formatterSystemPrompt = `You format extracted web data for the user.
Follow the formatting instruction exactly. Output only the formatted result,
no commentary.`

// Formatter 把累积的提取内容按指令整理成最终输出。
// 单次直连调用，无工具循环；失败也总是继续路由，
// 让运行能以诊断性 Output 收尾。
type Formatter struct {
	rotator Rotator
	cache   llmcache.ResponseCache
	logger  *zap.Logger
}

// NewFormatter 创建格式化工作器。cache 可为 nil。
func NewFormatter(rotator Rotator, cache llmcache.ResponseCache, logger *zap.Logger) *Formatter {
	if cache == nil {
		cache = llmcache.NopCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Formatter{rotator: rotator, cache: cache, logger: logger}
}

// Format 执行一次格式化并返回状态增量。恒不向上抛错。
func (f *Formatter) Format(ctx context.Context, st *State, instruction string) Delta {
	req := &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: formatterSystemPrompt},
			{Role: llm.RoleUser, Content: fmt.Sprintf(
				"INSTRUCTION:\n%s\n\nRAW DATA:\n%s",
				instruction, strings.Join(st.OutputContent, "\n---\n"))},
		},
	}

	if cached, err := f.cache.Get(ctx, req); err == nil {
		f.logger.Debug("formatter cache hit")
		return Delta{Output: strPtr(cached.Text())}
	}

	candidates, err := f.rotator.Rotation(ctx, llm.CapabilityMain, st.CurrentModelIndex, "")
	if err != nil {
		f.logger.Error("formatter rotation unavailable", zap.Error(err))
		return Delta{Output: strPtr(fmt.Sprintf("Formatting failed: %v", err))}
	}

	var lastErr error
	for i, cand := range candidates {
		resp, cerr := cand.Provider.Completion(ctx, req)
		if cerr != nil {
			lastErr = cerr
			if llm.IsRotatable(cerr) {
				f.logger.Warn("formatter candidate rotated",
					zap.String("model", cand.Name), zap.Error(cerr))
				continue
			}
			break
		}
		if err := f.cache.Set(ctx, req, resp); err != nil {
			f.logger.Warn("formatter cache write failed", zap.Error(err))
		}
		offset := (st.CurrentModelIndex + i) % len(candidates)
		f.logger.Info("output formatted", zap.String("model", cand.Name))
		return Delta{
			Output:            strPtr(resp.Text()),
			CurrentModelIndex: intPtr(offset),
		}
	}

	return Delta{Output: strPtr(fmt.Sprintf("Formatting failed: %v", lastErr))}
}
