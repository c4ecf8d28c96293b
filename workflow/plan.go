// Package workflow 实现浏览器自动化的编排状态机：
// 规划器产出有序步骤计划，重定向器在执行、记忆、格式化等
// 工作器之间分派控制流，轮换层让每次模型调用都能在限流与
// 瞬时故障下自愈。
package workflow

import (
	"fmt"
	"strings"
)

// AgentTag 标识一个计划步骤交给哪个工作器。封闭枚举，
// 未知值属于计划数据完整性错误。
type AgentTag string

const (
	AgentRAG       AgentTag = "RAG"
	AgentExecution AgentTag = "EXECUTION"
	AgentFormatter AgentTag = "OUTPUT_FORMATTING"
	AgentPlanner   AgentTag = "PLANNER"
	AgentEnd       AgentTag = "end"
)

// Valid 报告 tag 是否为已知工作器。
func (t AgentTag) Valid() bool {
	switch t {
	case AgentRAG, AgentExecution, AgentFormatter, AgentPlanner, AgentEnd:
		return true
	}
	return false
}

// ParseAgentTag 宽容解析模型输出中的 agent 标签：
// 去空白，对已知标签做大小写归一（"end" 恒为小写）。
func ParseAgentTag(s string) (AgentTag, error) {
	trimmed := strings.TrimSpace(s)
	if strings.EqualFold(trimmed, string(AgentEnd)) {
		return AgentEnd, nil
	}
	tag := AgentTag(strings.ToUpper(trimmed))
	if !tag.Valid() {
		return "", fmt.Errorf("unknown agent tag %q", s)
	}
	return tag, nil
}

// Step 一个计划步骤。
type Step struct {
	// StepNumber 从 1 开始，计划每次重建后按位置稠密重编号。
	StepNumber int      `json:"step_number"`
	Agent      AgentTag `json:"agent"`
	// Query 给目标工作器的自由文本指令。
	Query string `json:"query"`
	// Content 仅 OUTPUT_FORMATTING 用作额外原始数据，
	// 或 end 用作最终用户消息。
	Content string `json:"content,omitempty"`
	// RAGMessage 仅 RAG 步骤使用，缺省回退到 Query。
	RAGMessage string `json:"rag_message,omitempty"`
}

// Plan 有序步骤序列。一个阶段开始执行后，已完成前缀
// （下标 < step_index）在任何重规划中必须逐字节保留。
type Plan []Step

// Renumber 按位置重排 StepNumber，使 StepNumber == 位置+1。
// 每次计划变更后都必须调用。
func (p Plan) Renumber() {
	for i := range p {
		p[i].StepNumber = i + 1
	}
}

// Clone 深拷贝计划，保护已完成前缀不被共享切片改写。
func (p Plan) Clone() Plan {
	if p == nil {
		return nil
	}
	out := make(Plan, len(p))
	copy(out, p)
	return out
}

// Validate 校验计划结构：标签合法、指令非空（end 除外）。
func (p Plan) Validate() error {
	for i, step := range p {
		if !step.Agent.Valid() {
			return fmt.Errorf("step %d: unknown agent tag %q", i, step.Agent)
		}
		if step.Agent != AgentEnd && strings.TrimSpace(step.Query) == "" {
			return fmt.Errorf("step %d: agent %s requires a query", i, step.Agent)
		}
	}
	return nil
}

// Describe 渲染计划为可读文本，供提示词中的历史回顾使用。
func (p Plan) Describe() string {
	if len(p) == 0 {
		return "(empty plan)"
	}
	var b strings.Builder
	for _, step := range p {
		fmt.Fprintf(&b, "%d. [%s] %s\n", step.StepNumber, step.Agent, step.Query)
	}
	return strings.TrimRight(b.String(), "\n")
}
