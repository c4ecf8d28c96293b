package workflow

import (
	"context"

	"go.uber.org/zap"
)

// RAGWorker 把任务上下文写进长期记忆。全程尽力而为：
// 任何失败只记日志，绝不中断运行。
type RAGWorker struct {
	memory  MemoryStore
	browser BrowserContext
	logger  *zap.Logger
}

// NewRAGWorker 创建记忆工作器。
func NewRAGWorker(memory MemoryStore, browser BrowserContext, logger *zap.Logger) *RAGWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RAGWorker{memory: memory, browser: browser, logger: logger}
}

// Store 持久化一条记忆。URL 与站点在调用时从实时浏览器解析，
// 规划时的 URL 可能已经过期。task/agent 取自下一个待执行的
// 计划步骤（分派时 StepIndex 已预先推进）。
func (w *RAGWorker) Store(ctx context.Context, st *State, message string) Delta {
	url, site := w.browser.CurrentInfo(ctx)

	task, agent := "Unknown", "Unknown"
	if st.StepIndex >= 0 && st.StepIndex < len(st.Plan) {
		task = st.Plan[st.StepIndex].Query
		agent = string(st.Plan[st.StepIndex].Agent)
	}

	w.memory.StoreNote(ctx, message, url, site, task, agent)
	w.logger.Debug("memory note stored", zap.String("site", site))
	return Delta{}
}
