package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/browserflow/llm"
)

// maxToolIterations 单条指令的工具循环上限。
const maxToolIterations = 30

// 执行结果文本中的失败信号关键词；出现 "no error" 时不触发。
var failureKeywords = []string{"unable", "error", "couldn't", "failed", "execution failed"}

const executionSystemPrompt = `You are a browser automation executor. Carry out
exactly the single instruction you are given using the available tools, step by
step. Tools return strings; a result starting with "Error:" means that call
failed and you should try a different approach. When the instruction is done,
answer with a short summary of what happened (include extracted data verbatim
if any). If you cannot complete the instruction, say clearly what failed.`

// textToolProtocol 不支持原生函数调用的模型使用的降级协议。
const textToolProtocol = `
You do not have native tool calling. To invoke a tool, reply with ONLY a JSON
object: {"tool": "<name>", "args": {...}}. To finish, reply with plain text.
Available tools:
`

// Executor 消费一条指令，通过轮换模型驱动浏览器工具面，
// 返回前进增量或回灌规划器的失败信号。
type Executor struct {
	rotator Rotator
	tools   ToolSurface
	logger  *zap.Logger
}

// NewExecutor 创建执行工作器。
func NewExecutor(rotator Rotator, tools ToolSurface, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{rotator: rotator, tools: tools, logger: logger}
}

type execResult struct {
	finalText string
	payloads  []string
}

// Execute 执行一条指令。返回的 Route 指向重定向器（成功）、
// 规划器（软/硬失败）或终态（轮换耗尽）。
func (e *Executor) Execute(ctx context.Context, st *State, instruction string) Route {
	candidates, err := e.rotator.Rotation(ctx, llm.CapabilityExecution, st.CurrentModelIndex, "")
	if err != nil {
		e.logger.Error("execution rotation unavailable", zap.Error(err))
		return Terminate(Delta{
			LastError: strPtr(fmt.Sprintf("Execution failed: no model candidates available: %v", err)),
		})
	}

	for i, cand := range candidates {
		res, lerr := e.runLoop(ctx, cand, instruction)
		offset := (st.CurrentModelIndex + i) % len(candidates)

		if lerr != nil {
			if llm.IsRotatable(lerr) || llm.IsToolIncompatible(lerr) {
				e.logger.Warn("execution candidate rotated",
					zap.String("model", cand.Name), zap.Error(lerr))
				continue
			}
			// 非轮换类异常与提供商无关，立即放弃轮换交给规划器
			e.logger.Error("execution failed hard",
				zap.String("model", cand.Name), zap.Error(lerr))
			return GoTo(WorkerPlanner, Delta{
				LastError:         strPtr(lerr.Error()),
				CurrentModelIndex: intPtr(offset),
			})
		}

		if isFailureAnswer(res.finalText) {
			// 软失败：游标额外前进一位，重规划后的重试不再从
			// 刚给出失败回答的模型开始
			e.logger.Warn("execution reported failure",
				zap.String("model", cand.Name), zap.String("answer", res.finalText))
			return GoTo(WorkerPlanner, Delta{
				LastError:         strPtr(res.finalText),
				CurrentModelIndex: intPtr((offset + 1) % len(candidates)),
			})
		}

		payloads := res.payloads
		if len(payloads) == 0 && looksStructured(res.finalText) {
			payloads = []string{res.finalText}
		}
		e.logger.Info("execution step done",
			zap.String("model", cand.Name), zap.Int("payloads", len(payloads)))
		return GoTo(WorkerRedirector, Delta{
			OutputContent:     payloads,
			CurrentModelIndex: intPtr(offset),
		})
	}

	// 执行中途没有可安全回退的状态，轮换耗尽即硬终止
	return Terminate(Delta{
		LastError: strPtr("Execution failed: all model candidates exhausted for instruction: " + instruction),
	})
}

// runLoop 对单个候选模型跑完整的工具循环。
func (e *Executor) runLoop(ctx context.Context, cand llm.Candidate, instruction string) (execResult, error) {
	native := cand.Provider.SupportsNativeFunctionCalling()
	schemas := e.tools.Schemas()

	system := executionSystemPrompt
	if !native {
		system += textToolProtocol + describeTools(schemas)
	}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: instruction},
	}

	var result execResult
	for iter := 0; iter < maxToolIterations; iter++ {
		req := &llm.ChatRequest{Messages: messages}
		if native {
			req.Tools = schemas
		}
		resp, err := cand.Provider.Completion(ctx, req)
		if err != nil {
			return execResult{}, err
		}

		if calls := resp.FirstToolCalls(); native && len(calls) > 0 {
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, ToolCalls: calls})
			for _, call := range calls {
				out := e.runTool(ctx, call.Name, call.Arguments, &result)
				messages = append(messages, llm.Message{
					Role: llm.RoleTool, ToolCallID: call.ID, Name: call.Name, Content: out,
				})
			}
			continue
		}

		text := resp.Text()
		if !native {
			name, args, ok, malformed := parseTextToolCall(text)
			if malformed {
				// 解析容错：格式错误在循环内纠正，不算硬失败
				messages = append(messages,
					llm.Message{Role: llm.RoleAssistant, Content: text},
					llm.Message{Role: llm.RoleUser, Content: `Your tool call was malformed. Reply with ONLY {"tool": "<name>", "args": {...}} or a plain-text final answer.`})
				continue
			}
			if ok {
				out := e.runTool(ctx, name, args, &result)
				messages = append(messages,
					llm.Message{Role: llm.RoleAssistant, Content: text},
					llm.Message{Role: llm.RoleUser, Content: "Tool result:\n" + out})
				continue
			}
		}

		result.finalText = text
		return result, nil
	}

	// 关键词触发软失败路径
	result.finalText = "Execution failed: tool iteration limit reached before the instruction completed."
	return result, nil
}

func (e *Executor) runTool(ctx context.Context, name string, args json.RawMessage, result *execResult) string {
	out := e.tools.Execute(ctx, name, args)
	if e.tools.IsExtraction(name) && !strings.HasPrefix(out, "Error:") {
		result.payloads = append(result.payloads, out)
	}
	return out
}

type textToolCall struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

// parseTextToolCall 解析降级协议的工具调用。
// ok 表示解析出合法调用；malformed 表示文本疑似工具调用但格式错误。
func parseTextToolCall(text string) (name string, args json.RawMessage, ok, malformed bool) {
	looksLikeCall := strings.Contains(text, `"tool"`)
	var call textToolCall
	if err := json.Unmarshal([]byte(llm.ExtractJSON(text)), &call); err != nil {
		return "", nil, false, looksLikeCall
	}
	if call.Tool == "" {
		return "", nil, false, looksLikeCall
	}
	if len(call.Args) == 0 {
		call.Args = json.RawMessage(`{}`)
	}
	return call.Tool, call.Args, true, false
}

func describeTools(schemas []llm.ToolSchema) string {
	var b strings.Builder
	for _, s := range schemas {
		fmt.Fprintf(&b, "- %s: %s\n  parameters: %s\n", s.Name, s.Description, string(s.Parameters))
	}
	return b.String()
}

// isFailureAnswer 扫描最终回答中的失败关键词，
// 显式否定（"no error"）抑制触发。
func isFailureAnswer(text string) bool {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "no error") {
		return false
	}
	for _, kw := range failureKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// looksStructured 报告裸回答是否像结构化数据，可以
// 兜底收进 output_content。
func looksStructured(text string) bool {
	return len(text) > 20 && (strings.Contains(text, "{") || strings.Contains(text, "["))
}
