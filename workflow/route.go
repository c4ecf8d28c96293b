package workflow

import "fmt"

// Worker 重定向器可分派的目标。
type Worker string

const (
	WorkerPlanner    Worker = "planner"
	WorkerRedirector Worker = "redirector"
	WorkerExecution  Worker = "execution"
	WorkerRAG        Worker = "rag"
	WorkerFormatter  Worker = "formatter"
)

// Route 重定向决策：要么终止，要么携带状态增量转到某个工作器。
// 显式的标签联合代替字符串 goto，纯函数可单测。
type Route struct {
	Terminal bool
	Worker   Worker
	Delta    Delta
}

// GoTo 构造转移路由。
func GoTo(w Worker, d Delta) Route { return Route{Worker: w, Delta: d} }

// Terminate 构造终止路由。
func Terminate(d Delta) Route { return Route{Terminal: true, Delta: d} }

// Redirect 纯分派函数：由当前计划与步骤下标决定下一个工作器。
// 不做任何模型或浏览器调用。每次调用恰好发生
// StepIndex+1 与 StepIndex=0 之一，绝不同时。
func Redirect(plan Plan, stepIndex int) Route {
	if stepIndex >= len(plan) {
		return Terminate(Delta{})
	}

	step := plan[stepIndex]
	next := stepIndex + 1

	switch step.Agent {
	case AgentPlanner:
		// 多阶段交接：回到规划器并重置进度
		return GoTo(WorkerPlanner, Delta{StepIndex: intPtr(0)})

	case AgentRAG:
		msg := step.RAGMessage
		if msg == "" {
			msg = step.Query
		}
		return GoTo(WorkerRAG, Delta{
			StepIndex:   intPtr(next),
			RAGMessages: []string{msg},
		})

	case AgentExecution:
		return GoTo(WorkerExecution, Delta{
			StepIndex:         intPtr(next),
			ExecutionMessages: []string{step.Query},
		})

	case AgentFormatter:
		d := Delta{
			StepIndex:           intPtr(next),
			OutputAgentMessages: []string{step.Query},
		}
		if step.Content != "" {
			d.OutputContent = []string{step.Content}
		}
		return GoTo(WorkerFormatter, d)

	case AgentEnd:
		return Terminate(Delta{
			StepIndex: intPtr(0),
			Plan:      planPtr(nil),
		})

	default:
		// 数据完整性错误：带诊断回到规划器，绝不静默丢步骤
		diag := fmt.Sprintf("plan integrity error at step %d: unknown agent tag %q", stepIndex, step.Agent)
		return GoTo(WorkerPlanner, Delta{LastError: strPtr(diag)})
	}
}
