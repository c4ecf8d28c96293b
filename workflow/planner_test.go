package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/browserflow/testutil/mocks"
)

func plannerWith(rot *stubRotator) (*Planner, *mocks.MockBrowser, *mocks.MockMemory) {
	browser := mocks.NewMockBrowser("https://www.expedia.com/flights", "expedia.com")
	memory := mocks.NewMockMemory()
	return NewPlanner(rot, browser, memory, nil), browser, memory
}

func TestPlanner_ModeSelection(t *testing.T) {
	p, _, _ := plannerWith(rotatorOf())

	fresh := NewState("task")
	assert.Equal(t, modeFresh, p.selectMode(fresh))

	recovery := NewState("task")
	recovery.StepIndex = 2
	recovery.LastError = "boom"
	assert.Equal(t, modeRecovery, p.selectMode(recovery))

	// 数据驱动续规划优先于错误恢复
	continuation := NewState("task")
	continuation.OutputContent = []string{"data"}
	continuation.LastError = "boom"
	continuation.StepIndex = 0
	assert.Equal(t, modeContinuation, p.selectMode(continuation))

	// step_index 非 0 时提取数据不触发续规划
	midRun := NewState("task")
	midRun.OutputContent = []string{"data"}
	midRun.StepIndex = 2
	assert.Equal(t, modeFresh, p.selectMode(midRun))
}

func TestPlanner_FreshStart(t *testing.T) {
	provider := mocks.NewMockProvider("gemini_llm1").WithText(planJSON(
		`{"agent":"EXECUTION","query":"open expedia and search"},{"agent":"end","content":"done"}`))
	p, _, _ := plannerWith(rotatorOf(provider))

	st := NewState("find flights")
	st.Apply(p.Plan(context.Background(), st))

	require.Len(t, st.Plan, 2)
	assert.Equal(t, AgentExecution, st.Plan[0].Agent)
	assert.Equal(t, 1, st.Plan[0].StepNumber)
	assert.Equal(t, 2, st.Plan[1].StepNumber)
	assert.Equal(t, 0, st.StepIndex)
	assert.Equal(t, []string{"expedia.com"}, st.SiteNames)
	assert.Equal(t, []string{"https://www.expedia.com"}, st.URLs)
	assert.Empty(t, st.LastError)
}

func TestPlanner_PromptEscapesBraces(t *testing.T) {
	provider := mocks.NewMockProvider("m").WithText(planJSON(`{"agent":"end"}`))
	p, _, _ := plannerWith(rotatorOf(provider))

	st := NewState(`extract {price} fields`)
	p.Plan(context.Background(), st)

	require.NotEmpty(t, provider.Requests)
	user := provider.Requests[0].Messages[1].Content
	assert.Contains(t, user, "extract {{price}} fields")
}

func TestPlanner_ErrorRecoveryRetainsPrefixAndStoresFix(t *testing.T) {
	provider := mocks.NewMockProvider("m").WithText(planJSON(
		`{"agent":"EXECUTION","query":"retry the date picker with keyboard input"},{"agent":"end"}`))
	p, _, memory := plannerWith(rotatorOf(provider))

	st := NewState("task")
	st.Plan = Plan{
		{StepNumber: 1, Agent: AgentExecution, Query: "open expedia"},
		{StepNumber: 2, Agent: AgentExecution, Query: "pick dates"},
		{StepNumber: 3, Agent: AgentEnd},
	}
	st.StepIndex = 2
	st.LastError = "couldn't open the date picker"

	st.Apply(p.Plan(context.Background(), st))

	require.Len(t, st.Plan, 4)
	assert.Equal(t, "open expedia", st.Plan[0].Query, "prefix below step_index preserved verbatim")
	assert.Equal(t, "pick dates", st.Plan[1].Query, "prefix below step_index preserved verbatim")
	assert.Equal(t, "retry the date picker with keyboard input", st.Plan[2].Query, "new steps appended after the prefix")
	assert.Equal(t, 2, st.StepIndex, "resumes at the first new step")
	assert.Empty(t, st.LastError, "cleared on successful re-plan")

	require.Len(t, memory.Errors, 1)
	assert.Equal(t, "couldn't open the date picker", memory.Errors[0].Error)
	assert.Equal(t, "retry the date picker with keyboard input", memory.Errors[0].Fix)
	assert.Equal(t, "expedia.com", memory.Errors[0].Site)
}

func TestPlanner_PrefixRetentionProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "planLen")
		plan := make(Plan, n)
		for i := range plan {
			plan[i] = Step{
				StepNumber: i + 1,
				Agent:      AgentExecution,
				Query:      fmt.Sprintf("step-%d-%s", i, rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "q")),
			}
		}
		failIdx := rapid.IntRange(0, n-1).Draw(t, "failIdx")

		provider := mocks.NewMockProvider("m").WithText(planJSON(
			`{"agent":"EXECUTION","query":"replacement"},{"agent":"end"}`))
		p, _, _ := plannerWith(rotatorOf(provider))

		st := NewState("task")
		st.Plan = plan.Clone()
		st.StepIndex = failIdx + 1
		st.LastError = "failure"

		st.Apply(p.Plan(context.Background(), st))

		for i := 0; i <= failIdx; i++ {
			if st.Plan[i] != plan[i] {
				t.Fatalf("prefix step %d changed: %+v != %+v", i, st.Plan[i], plan[i])
			}
		}
		if st.Plan[failIdx+1].Query != "replacement" {
			t.Fatalf("new steps must start right after the prefix, got %+v", st.Plan[failIdx+1])
		}
		if st.StepIndex != failIdx+1 {
			t.Fatalf("must resume at the first new step, got %d", st.StepIndex)
		}
		for i, step := range st.Plan {
			if step.StepNumber != i+1 {
				t.Fatalf("step %d numbered %d", i, step.StepNumber)
			}
		}
	})
}

func TestPlanner_RotatesOnRateLimit(t *testing.T) {
	failing := mocks.NewMockProvider("gemini_llm1").WithError(rateLimited())
	working := mocks.NewMockProvider("groq_llm1").WithText(planJSON(`{"agent":"end"}`))
	p, _, _ := plannerWith(rotatorOf(failing, working))

	st := NewState("task")
	st.Apply(p.Plan(context.Background(), st))

	assert.Equal(t, 1, failing.Calls())
	assert.Equal(t, 1, working.Calls())
	assert.Equal(t, 1, st.CurrentModelIndex, "cursor advances to the model that succeeded")
}

func TestPlanner_StartsRotationAtCursor(t *testing.T) {
	first := mocks.NewMockProvider("a").WithText(planJSON(`{"agent":"end"}`))
	second := mocks.NewMockProvider("b").WithText(planJSON(`{"agent":"end"}`))
	rot := rotatorOf(first, second)
	p, _, _ := plannerWith(rot)

	st := NewState("task")
	st.CurrentModelIndex = 1
	st.Apply(p.Plan(context.Background(), st))

	assert.Zero(t, first.Calls())
	assert.Equal(t, 1, second.Calls())
	assert.Equal(t, 1, st.CurrentModelIndex)
}

func TestPlanner_HardErrorFallsBackWithoutFurtherRotation(t *testing.T) {
	hard := mocks.NewMockProvider("a").WithError(errors.New("invalid API key"))
	never := mocks.NewMockProvider("b").WithText(planJSON(`{"agent":"end"}`))
	p, _, _ := plannerWith(rotatorOf(hard, never))

	st := NewState("task")
	prior := Plan{{StepNumber: 1, Agent: AgentExecution, Query: "keep me"}}
	st.Plan = prior.Clone()
	st.StepIndex = 1
	st.LastError = "step failed"

	st.Apply(p.Plan(context.Background(), st))

	assert.Zero(t, never.Calls(), "non-retryable failure aborts the rotation loop")
	assert.Equal(t, prior, st.Plan, "prior plan kept unmodified")
	assert.Equal(t, 1, st.StepIndex, "progress kept at the retained prefix length")
	assert.Empty(t, st.LastError)
}

func TestPlanner_ExhaustionFallsBackToPriorPlan(t *testing.T) {
	a := mocks.NewMockProvider("a").WithError(rateLimited())
	b := mocks.NewMockProvider("b").WithError(rateLimited())
	p, _, _ := plannerWith(rotatorOf(a, b))

	st := NewState("task")
	prior := Plan{
		{StepNumber: 1, Agent: AgentExecution, Query: "done already"},
		{StepNumber: 2, Agent: AgentExecution, Query: "failing step"},
	}
	st.Plan = prior.Clone()
	st.StepIndex = 2
	st.LastError = "element not found"

	st.Apply(p.Plan(context.Background(), st))

	assert.Equal(t, 1, a.Calls())
	assert.Equal(t, 1, b.Calls())
	assert.Equal(t, prior, st.Plan)
	assert.Equal(t, 2, st.StepIndex)
	assert.Empty(t, st.LastError)
}

func TestPlanner_MalformedResponseFallsBack(t *testing.T) {
	provider := mocks.NewMockProvider("m").WithText("sorry, I cannot help with that")
	p, _, _ := plannerWith(rotatorOf(provider))

	st := NewState("task")
	st.Apply(p.Plan(context.Background(), st))

	assert.Empty(t, st.Plan)
	assert.Equal(t, 0, st.StepIndex)
}

func TestPlanner_InvalidAgentTagRejected(t *testing.T) {
	provider := mocks.NewMockProvider("m").WithText(planJSON(`{"agent":"WIZARD","query":"x"}`))
	p, _, _ := plannerWith(rotatorOf(provider))

	st := NewState("task")
	st.Apply(p.Plan(context.Background(), st))

	assert.Empty(t, st.Plan, "unknown agent tag is a hard planning error")
}

func TestPlanner_ContinuationReferencesExtractedData(t *testing.T) {
	provider := mocks.NewMockProvider("m").WithText(planJSON(
		`{"agent":"EXECUTION","query":"use the extracted list"},{"agent":"end"}`))
	p, _, _ := plannerWith(rotatorOf(provider))

	st := NewState("task")
	st.Plan = Plan{{StepNumber: 1, Agent: AgentExecution, Query: "extract titles"}}
	st.StepIndex = 0
	st.OutputContent = []string{"frag1", "frag2", `{"titles":["a","b"]}`}

	st.Apply(p.Plan(context.Background(), st))

	require.NotEmpty(t, provider.Requests)
	user := provider.Requests[0].Messages[1].Content
	assert.Contains(t, user, "COMPLETED STEPS:")
	assert.Contains(t, user, "frag2", "last two fragments included")
	assert.NotContains(t, user, "frag1", "older fragments trimmed")

	// 续规划不保留旧计划：新计划整体替换
	require.Len(t, st.Plan, 2)
	assert.Equal(t, "use the extracted list", st.Plan[0].Query)
	assert.Equal(t, 0, st.StepIndex)
}
