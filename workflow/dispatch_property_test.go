package workflow

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestDispatchProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("terminal exactly when index is past the plan", prop.ForAll(
		func(n, idx int) bool {
			plan := make(Plan, n)
			for i := range plan {
				plan[i] = Step{StepNumber: i + 1, Agent: AgentExecution, Query: "q"}
			}
			return Redirect(plan, idx).Terminal == (idx >= n)
		},
		gen.IntRange(0, 12),
		gen.IntRange(0, 24),
	))

	properties.Property("dispatch carries the step's own query", prop.ForAll(
		func(n int) bool {
			plan := make(Plan, n)
			for i := range plan {
				plan[i] = Step{StepNumber: i + 1, Agent: AgentExecution, Query: fmt.Sprintf("step-%d", i)}
			}
			for i := 0; i < n; i++ {
				r := Redirect(plan, i)
				if len(r.Delta.ExecutionMessages) != 1 ||
					r.Delta.ExecutionMessages[0] != plan[i].Query {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 10),
	))

	properties.Property("dedup append is idempotent", prop.ForAll(
		func(items []string) bool {
			once := appendUnique(nil, items)
			twice := appendUnique(once, items)
			return len(once) == len(twice)
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
