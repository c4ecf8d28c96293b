package workflow

import (
	"context"
	"encoding/json"

	"github.com/BaSui01/browserflow/llm"
)

// Rotator 按能力与起始游标给出有序的候选模型列表。
// *llm.Router 实现此接口。
type Rotator interface {
	Rotation(ctx context.Context, cap llm.Capability, startIndex int, providerFilter string) ([]llm.Candidate, error)
}

// BrowserContext 是编排核心看到的浏览器会话视图。
// *browser.Manager 实现此接口。
type BrowserContext interface {
	IsOpen() bool
	// CurrentInfo 解析当前实时 URL 与站点标识；规划时记下的
	// URL 可能早已失效，错误上下文以此处为准。
	CurrentInfo(ctx context.Context) (url, site string)
	// PageSnapshot 返回页面标题与可见文本摘要，失败时退化为
	// 描述性字符串而非错误。
	PageSnapshot(ctx context.Context, maxChars int) string
}

// ToolSurface 执行工作器驱动的工具面。*browser.Registry 实现。
type ToolSurface interface {
	Schemas() []llm.ToolSchema
	// Execute 运行一个工具，所有失败都以 "Error: ..." 字符串
	// 返回，绝不抛出。
	Execute(ctx context.Context, name string, rawArgs json.RawMessage) string
	// IsExtraction 报告该工具的结果应收集进 output_content。
	IsExtraction(name string) bool
}

// MemoryStore 长期错误/经验记忆。*rag.Memory 实现。
// 全部尽力而为：写入失败只记日志。
type MemoryStore interface {
	RetrieveErrors(ctx context.Context, sites []string) string
	StoreError(ctx context.Context, errText, fix, url, site string, stepIndex int)
	StoreNote(ctx context.Context, content, url, site, task, agent string)
}
