package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/browserflow/internal/metrics"
)

// maxNoProgressPlans 规划器连续无进展的容忍次数。规划降级会
// 原样保留计划，失败步骤会再次失败并回到规划器——不设上限时
// 运行可能永远循环。
const maxNoProgressPlans = 3

// BrowserSession 编排器持有的浏览器句柄，运行结束时必须关闭。
type BrowserSession interface {
	BrowserContext
	Close() error
}

// RunResult 单次运行的最终结果，二选一。
// 失败永远以字符串消息呈现，不向调用方抛出。
type RunResult struct {
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Orchestrator 工作流编排器：在规划器、重定向器与各工作器之间
// 串行推进单次运行，按字段合并规则应用每个工作器的状态增量。
type Orchestrator struct {
	planner   *Planner
	executor  *Executor
	formatter *Formatter
	rag       *RAGWorker
	browser   BrowserSession
	metrics   *metrics.Collector
	tracer    trace.Tracer
	logger    *zap.Logger
}

// NewOrchestrator 组装编排器。collector 可为 nil。
func NewOrchestrator(planner *Planner, executor *Executor, formatter *Formatter, rag *RAGWorker, browser BrowserSession, collector *metrics.Collector, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		planner:   planner,
		executor:  executor,
		formatter: formatter,
		rag:       rag,
		browser:   browser,
		metrics:   collector,
		tracer:    otel.Tracer("github.com/BaSui01/browserflow/workflow"),
		logger:    logger,
	}
}

// Run 执行一条自然语言指令直到终态。无论成败，浏览器资源
// 都在返回前释放。
func (o *Orchestrator) Run(ctx context.Context, instruction string) RunResult {
	runID := uuid.NewString()
	logger := o.logger.With(zap.String("run_id", runID))

	ctx, span := o.tracer.Start(ctx, "workflow.run",
		trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()

	started := time.Now()
	defer func() {
		if err := o.browser.Close(); err != nil {
			logger.Warn("browser cleanup failed", zap.Error(err))
		}
	}()

	logger.Info("run started", zap.String("instruction", instruction))
	st := NewState(instruction)

	current := WorkerPlanner
	var endMessage string

	// 无进展检测：对比相邻两次进入规划器时的计划快照
	noProgress := 0
	lastPlanFP := ""
	lastPlanIdx := -1

	for {
		if err := ctx.Err(); err != nil {
			return o.finish(logger, started, RunResult{Error: fmt.Sprintf("Run aborted: %v", err)})
		}

		switch current {
		case WorkerPlanner:
			o.metrics.RecordDispatch("planner")
			fp := st.Plan.Describe()
			if fp == lastPlanFP && st.StepIndex == lastPlanIdx {
				noProgress++
				o.metrics.RecordPlannerFallback()
				if noProgress >= maxNoProgressPlans {
					return o.finish(logger, started, RunResult{
						Error: "Workflow aborted: repeated planning attempts made no progress.",
					})
				}
			} else {
				noProgress = 0
			}
			lastPlanFP, lastPlanIdx = fp, st.StepIndex

			mode := o.planner.selectMode(st)
			o.metrics.RecordPlannerMode(mode.String())
			pctx, pspan := o.tracer.Start(ctx, "workflow.planner",
				trace.WithAttributes(attribute.String("planner.mode", mode.String())))
			prevCursor := st.CurrentModelIndex
			st.Apply(o.planner.Plan(pctx, st))
			pspan.End()
			if st.CurrentModelIndex != prevCursor {
				o.metrics.RecordRotationAdvance("planner")
			}
			current = WorkerRedirector

		case WorkerRedirector:
			o.metrics.RecordDispatch("redirector")
			// end 步骤的 Content 是最终用户消息，在路由清空计划前截留
			if st.StepIndex < len(st.Plan) {
				if step := st.Plan[st.StepIndex]; step.Agent == AgentEnd && step.Content != "" {
					endMessage = step.Content
				}
			}
			route := Redirect(st.Plan, st.StepIndex)
			st.Apply(route.Delta)
			if route.Terminal {
				return o.finish(logger, started, o.resolve(st, endMessage))
			}
			current = route.Worker

		case WorkerExecution:
			o.metrics.RecordDispatch("execution")
			ectx, espan := o.tracer.Start(ctx, "workflow.execution")
			route := o.executor.Execute(ectx, st, lastMessage(st.ExecutionMessages))
			espan.End()
			prevCursor := st.CurrentModelIndex
			st.Apply(route.Delta)
			if st.CurrentModelIndex != prevCursor {
				o.metrics.RecordRotationAdvance("execution")
			}
			if route.Terminal {
				o.metrics.RecordRotationExhausted("execution")
				return o.finish(logger, started, RunResult{Error: st.LastError})
			}
			current = route.Worker

		case WorkerRAG:
			o.metrics.RecordDispatch("rag")
			rctx, rspan := o.tracer.Start(ctx, "workflow.rag")
			st.Apply(o.rag.Store(rctx, st, lastMessage(st.RAGMessages)))
			rspan.End()
			current = WorkerRedirector

		case WorkerFormatter:
			o.metrics.RecordDispatch("formatter")
			fctx, fspan := o.tracer.Start(ctx, "workflow.formatter")
			prevCursor := st.CurrentModelIndex
			st.Apply(o.formatter.Format(fctx, st, lastMessage(st.OutputAgentMessages)))
			fspan.End()
			if st.CurrentModelIndex != prevCursor {
				o.metrics.RecordRotationAdvance("formatter")
			}
			current = WorkerRedirector

		default:
			return o.finish(logger, started, RunResult{
				Error: fmt.Sprintf("Workflow aborted: unknown worker %q", current),
			})
		}
	}
}

// resolve 把终态状态折算成运行结果。
func (o *Orchestrator) resolve(st *State, endMessage string) RunResult {
	switch {
	case st.Output != "":
		return RunResult{Output: st.Output}
	case endMessage != "":
		return RunResult{Output: endMessage}
	case st.LastError != "":
		return RunResult{Error: st.LastError}
	default:
		return RunResult{Error: "Workflow completed without producing any output."}
	}
}

func (o *Orchestrator) finish(logger *zap.Logger, started time.Time, result RunResult) RunResult {
	status := "success"
	if result.Error != "" {
		status = "error"
	}
	o.metrics.RecordRun(status, time.Since(started))
	logger.Info("run finished",
		zap.String("status", status),
		zap.Duration("duration", time.Since(started)))
	return result
}

func lastMessage(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[len(list)-1]
}
