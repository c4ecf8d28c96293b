package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/BaSui01/browserflow/llm"
)

const (
	// 注入提示词的页面摘要与片段预算
	snapshotMaxChars  = 2000
	promptTokenBudget = 6000
)

const plannerSystemPrompt = `You are the planning supervisor of a browser automation workflow.
Given the task context, respond with a single JSON object and nothing else:
{
  "target_urls": ["..."],
  "site_names": ["..."],
  "steps": [
    {"agent": "RAG|EXECUTION|OUTPUT_FORMATTING|PLANNER|end", "query": "...", "content": "...", "rag_message": "..."}
  ]
}
Rules:
- agent must be one of RAG, EXECUTION, OUTPUT_FORMATTING, PLANNER, end.
- Every step except "end" needs a non-empty query.
- The final step of a finished task must have agent "end".
- When the task needs extracted data before you can plan the rest, end the
  current phase with a PLANNER step so planning resumes after extraction.`

// Planner 根据用户意图、页面状态、历史错误与已提取数据
// 产出或更新计划。三种模式：数据驱动续规划、错误恢复、全新规划。
type Planner struct {
	rotator Rotator
	browser BrowserContext
	memory  MemoryStore
	logger  *zap.Logger

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

// NewPlanner 创建规划器。
func NewPlanner(rotator Rotator, browser BrowserContext, memory MemoryStore, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{rotator: rotator, browser: browser, memory: memory, logger: logger}
}

type planMode int

const (
	modeFresh planMode = iota
	modeContinuation
	modeRecovery
)

func (m planMode) String() string {
	switch m {
	case modeContinuation:
		return "continuation"
	case modeRecovery:
		return "recovery"
	default:
		return "fresh"
	}
}

// 模型结构化输出的线格式
type plannerResponse struct {
	TargetURLs []string      `json:"target_urls"`
	SiteNames  []string      `json:"site_names"`
	Steps      []plannedStep `json:"steps"`
}

type plannedStep struct {
	Agent      string `json:"agent"`
	Query      string `json:"query"`
	Content    string `json:"content,omitempty"`
	RAGMessage string `json:"rag_message,omitempty"`
}

// Plan 执行一次规划并返回状态增量。任何失败都退化为
// “保留原计划”的增量，绝不向上抛错。
func (p *Planner) Plan(ctx context.Context, st *State) Delta {
	mode := p.selectMode(st)
	retained := p.retainedPrefix(st, mode)

	req := p.buildRequest(ctx, st, mode, retained)

	candidates, err := p.rotator.Rotation(ctx, llm.CapabilityMain, st.CurrentModelIndex, "")
	if err != nil {
		p.logger.Error("planner rotation unavailable", zap.Error(err))
		return p.fallback(st, retained)
	}

	for i, cand := range candidates {
		resp, cerr := cand.Provider.Completion(ctx, req)
		if cerr != nil {
			if llm.IsRotatable(cerr) {
				p.logger.Warn("planner candidate rotated",
					zap.String("model", cand.Name), zap.Error(cerr))
				continue
			}
			p.logger.Error("planner candidate failed hard",
				zap.String("model", cand.Name), zap.Error(cerr))
			break
		}

		parsed, perr := parsePlannerResponse(resp.Text())
		if perr != nil {
			p.logger.Error("planner response rejected",
				zap.String("model", cand.Name), zap.Error(perr))
			break
		}

		newSteps, serr := convertSteps(parsed.Steps)
		if serr != nil {
			p.logger.Error("planner produced invalid steps",
				zap.String("model", cand.Name), zap.Error(serr))
			break
		}

		full := append(retained.Clone(), newSteps...)
		full.Renumber()

		if mode == modeRecovery && len(newSteps) > 0 {
			url, site := p.browser.CurrentInfo(ctx)
			p.memory.StoreError(ctx, st.LastError, newSteps[0].Query, url, site, len(retained))
		}

		offset := st.CurrentModelIndex
		if len(candidates) > 0 {
			offset = (st.CurrentModelIndex + i) % len(candidates)
		}
		p.logger.Info("plan updated",
			zap.String("mode", mode.String()),
			zap.String("model", cand.Name),
			zap.Int("retained", len(retained)),
			zap.Int("new_steps", len(newSteps)))

		return Delta{
			Plan:              planPtr(full),
			StepIndex:         intPtr(len(retained)),
			SiteNames:         parsed.SiteNames,
			URLs:              parsed.TargetURLs,
			LastError:         strPtr(""),
			CurrentModelIndex: intPtr(offset),
		}
	}

	return p.fallback(st, retained)
}

// selectMode 按优先级确定规划模式。
func (p *Planner) selectMode(st *State) planMode {
	if len(st.OutputContent) > 0 && st.StepIndex == 0 {
		return modeContinuation
	}
	if st.LastError != "" {
		return modeRecovery
	}
	return modeFresh
}

// retainedPrefix 返回本次规划必须逐字节保留的已完成前缀。
// 仅错误恢复模式保留：下标小于 StepIndex 的步骤全部原样保留，
// 新步骤只允许追加在其后。
func (p *Planner) retainedPrefix(st *State, mode planMode) Plan {
	if mode != modeRecovery {
		return nil
	}
	end := st.StepIndex
	if end > len(st.Plan) {
		end = len(st.Plan)
	}
	if end < 0 {
		end = 0
	}
	return st.Plan[:end].Clone()
}

func (p *Planner) buildRequest(ctx context.Context, st *State, mode planMode, retained Plan) *llm.ChatRequest {
	var b strings.Builder
	fmt.Fprintf(&b, "TASK: %s\n\n", llm.EscapeBraces(st.UserInput))
	fmt.Fprintf(&b, "CURRENT PAGE:\n%s\n\n", llm.EscapeBraces(p.browser.PageSnapshot(ctx, snapshotMaxChars)))

	switch mode {
	case modeContinuation:
		fmt.Fprintf(&b, "COMPLETED STEPS:\n%s\n\n", llm.EscapeBraces(st.Plan.Describe()))
		fmt.Fprintf(&b, "EXTRACTED DATA (most recent):\n%s\n\n",
			llm.EscapeBraces(lastFragments(st.OutputContent, 2)))
		b.WriteString("The steps above are already done. Propose ONLY new steps that continue from where extraction left off. Do not repeat completed steps.\n")

	case modeRecovery:
		fmt.Fprintf(&b, "RETAINED STEPS (already completed, do not repeat):\n%s\n\n",
			llm.EscapeBraces(retained.Describe()))
		fmt.Fprintf(&b, "FAILED WITH ERROR:\n%s\n\n", llm.EscapeBraces(st.LastError))
		fmt.Fprintf(&b, "KNOWN ISSUES FOR THESE SITES:\n%s\n\n",
			llm.EscapeBraces(p.memory.RetrieveErrors(ctx, st.SiteNames)))
		fmt.Fprintf(&b, "Produce ONLY new steps, starting from step %d, that fix the error above. Do not repeat the retained steps.\n", st.StepIndex+1)

	default:
		fmt.Fprintf(&b, "KNOWN ISSUES FOR THESE SITES:\n%s\n\n",
			llm.EscapeBraces(p.memory.RetrieveErrors(ctx, st.SiteNames)))
		b.WriteString("Build a complete plan from scratch for the task.\n")
	}

	return &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: plannerSystemPrompt},
			{Role: llm.RoleUser, Content: p.truncateTokens(b.String(), promptTokenBudget)},
		},
	}
}

// fallback 降级路径：保留原计划，进度回到保留前缀末尾，
// 清空 last_error。调用方负责检测无进展循环。
func (p *Planner) fallback(st *State, retained Plan) Delta {
	p.logger.Warn("planner falling back to prior plan",
		zap.Int("step_index", len(retained)), zap.Int("plan_len", len(st.Plan)))
	return Delta{
		Plan:      planPtr(st.Plan),
		StepIndex: intPtr(len(retained)),
		LastError: strPtr(""),
	}
}

func parsePlannerResponse(text string) (*plannerResponse, error) {
	raw := llm.ExtractJSON(text)
	var resp plannerResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("decode planner response: %w", err)
	}
	if len(resp.Steps) == 0 {
		return nil, fmt.Errorf("planner response has no steps")
	}
	return &resp, nil
}

func convertSteps(in []plannedStep) (Plan, error) {
	steps := make(Plan, 0, len(in))
	for i, ps := range in {
		tag, err := ParseAgentTag(ps.Agent)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		if tag != AgentEnd && strings.TrimSpace(ps.Query) == "" {
			return nil, fmt.Errorf("step %d: agent %s requires a query", i, tag)
		}
		steps = append(steps, Step{
			Agent:      tag,
			Query:      strings.TrimSpace(ps.Query),
			Content:    ps.Content,
			RAGMessage: ps.RAGMessage,
		})
	}
	return steps, nil
}

func lastFragments(fragments []string, n int) string {
	if len(fragments) == 0 {
		return "(none)"
	}
	if len(fragments) > n {
		fragments = fragments[len(fragments)-n:]
	}
	return strings.Join(fragments, "\n---\n")
}

// truncateTokens 把文本裁剪到 token 预算内；编码器不可用时
// 按字符近似（1 token ≈ 4 字符）。
func (p *Planner) truncateTokens(text string, budget int) string {
	p.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			p.logger.Warn("tokenizer unavailable, using char estimate", zap.Error(err))
			return
		}
		p.enc = enc
	})
	if p.enc == nil {
		limit := budget * 4
		if len(text) > limit {
			return text[:limit]
		}
		return text
	}
	tokens := p.enc.Encode(text, nil, nil)
	if len(tokens) <= budget {
		return text
	}
	return p.enc.Decode(tokens[:budget])
}
