package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/browserflow/testutil/mocks"
)

type fixture struct {
	plannerLLM   *mocks.MockProvider
	executorLLM  *mocks.MockProvider
	formatterLLM *mocks.MockProvider
	tools        *mocks.MockTools
	memory       *mocks.MockMemory
	browser      *mocks.MockBrowser
	orch         *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{
		plannerLLM:   mocks.NewMockProvider("planner_llm"),
		executorLLM:  mocks.NewMockProvider("executor_llm"),
		formatterLLM: mocks.NewMockProvider("formatter_llm"),
		tools:        mocks.NewMockTools(),
		memory:       mocks.NewMockMemory(),
		browser:      mocks.NewMockBrowser("https://www.expedia.com", "expedia.com"),
	}
	planner := NewPlanner(rotatorOf(f.plannerLLM), f.browser, f.memory, nil)
	executor := NewExecutor(rotatorOf(f.executorLLM), f.tools, nil)
	formatter := NewFormatter(rotatorOf(f.formatterLLM), nil, nil)
	rag := NewRAGWorker(f.memory, f.browser, nil)
	f.orch = NewOrchestrator(planner, executor, formatter, rag, f.browser, nil, nil)
	return f
}

func TestOrchestrator_HappyPath(t *testing.T) {
	f := newFixture()
	f.plannerLLM.WithText(planJSON(
		`{"agent":"EXECUTION","query":"search flights"},` +
			`{"agent":"RAG","query":"note search done","rag_message":"searched flights"},` +
			`{"agent":"OUTPUT_FORMATTING","query":"format as table"},` +
			`{"agent":"end"}`))
	f.executorLLM.WithText(`Found flights: {"flights":[{"price":120}]}`)
	f.formatterLLM.WithText("| Price |\n| 120 |")

	result := f.orch.Run(context.Background(), "find flights")

	assert.Empty(t, result.Error)
	assert.Equal(t, "| Price |\n| 120 |", result.Output)
	require.Len(t, f.memory.Notes, 1)
	assert.Equal(t, "searched flights", f.memory.Notes[0].Content)
	assert.Equal(t, 1, f.browser.Closed, "browser released at run end")
}

func TestOrchestrator_EndContentBecomesOutputWithoutFormatter(t *testing.T) {
	f := newFixture()
	f.plannerLLM.WithText(planJSON(
		`{"agent":"EXECUTION","query":"click accept"},{"agent":"end","content":"Cookies accepted."}`))
	f.executorLLM.WithText("Clicked the accept button")

	result := f.orch.Run(context.Background(), "accept cookies")

	assert.Empty(t, result.Error)
	assert.Equal(t, "Cookies accepted.", result.Output)
}

func TestOrchestrator_SoftFailureTriggersReplan(t *testing.T) {
	f := newFixture()
	f.plannerLLM.
		WithText(planJSON(`{"agent":"EXECUTION","query":"pick dates"},{"agent":"end","content":"ok"}`)).
		WithText(planJSON(`{"agent":"EXECUTION","query":"pick dates via keyboard"},{"agent":"end","content":"ok"}`))
	f.executorLLM.
		WithText("Date picker failed: couldn't open calendar").
		WithText("Dates selected via keyboard")

	result := f.orch.Run(context.Background(), "book hotel")

	assert.Empty(t, result.Error)
	assert.Equal(t, "ok", result.Output)
	assert.Equal(t, 2, f.plannerLLM.Calls(), "error recovery replanned once")
	// 重规划成功时错误与修复写入记忆
	require.Len(t, f.memory.Errors, 1)
	assert.Contains(t, f.memory.Errors[0].Error, "couldn't open calendar")
}

func TestOrchestrator_ExecutionExhaustionEndsRun(t *testing.T) {
	f := newFixture()
	f.plannerLLM.WithText(planJSON(`{"agent":"EXECUTION","query":"click"},{"agent":"end"}`))
	f.executorLLM.WithError(rateLimited())

	result := f.orch.Run(context.Background(), "task")

	assert.Empty(t, result.Output)
	assert.Contains(t, result.Error, "Execution failed")
	assert.Equal(t, 1, f.browser.Closed)
}

func TestOrchestrator_NoProgressAborts(t *testing.T) {
	f := newFixture()
	// 首次规划产出带 PLANNER 交接的两阶段计划，之后全部限流：
	// 续规划降级原样保留计划与进度，交接步骤把运行送回规划器，
	// 每一圈规划器看到的计划快照完全相同
	f.plannerLLM.
		WithText(planJSON(`{"agent":"EXECUTION","query":"extract page one"},{"agent":"PLANNER","query":"plan next phase"}`)).
		WithError(rateLimited())
	f.executorLLM.WithText(`{"items":["a","b","c","d"]}`)

	result := f.orch.Run(context.Background(), "task")

	assert.Contains(t, result.Error, "no progress")
	assert.Equal(t, 1, f.browser.Closed)
}

func TestOrchestrator_EmptyPlanEndsWithDiagnostic(t *testing.T) {
	f := newFixture()
	f.plannerLLM.WithText("not json at all")

	result := f.orch.Run(context.Background(), "task")

	assert.Empty(t, result.Output)
	assert.Contains(t, result.Error, "without producing any output")
}

func TestOrchestrator_CancellationReleasesBrowser(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := f.orch.Run(ctx, "task")

	assert.Contains(t, result.Error, "aborted")
	assert.Equal(t, 1, f.browser.Closed)
}
