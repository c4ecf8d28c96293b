package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/browserflow/testutil/mocks"
)

func TestRAGWorker_StoresWithLiveBrowserContext(t *testing.T) {
	browser := mocks.NewMockBrowser("https://www.imdb.com/chart/top", "imdb.com")
	memory := mocks.NewMockMemory()
	w := NewRAGWorker(memory, browser, nil)

	st := NewState("task")
	st.Plan = Plan{
		{StepNumber: 1, Agent: AgentRAG, Query: "note the top movie", RAGMessage: "Top movie is Shawshank"},
		{StepNumber: 2, Agent: AgentExecution, Query: "open the movie page"},
	}
	st.StepIndex = 1 // 重定向器已推进，指向下一个待执行步骤

	w.Store(context.Background(), st, "Top movie is Shawshank")

	require.Len(t, memory.Notes, 1)
	note := memory.Notes[0]
	assert.Equal(t, "Top movie is Shawshank", note.Content)
	assert.Equal(t, "https://www.imdb.com/chart/top", note.URL)
	assert.Equal(t, "imdb.com", note.Site)
	assert.Equal(t, "open the movie page", note.Task, "tagged with the upcoming step")
	assert.Equal(t, "EXECUTION", note.Agent)
}

func TestRAGWorker_PastEndOfPlanUsesUnknown(t *testing.T) {
	browser := mocks.NewMockBrowser("https://www.imdb.com", "imdb.com")
	memory := mocks.NewMockMemory()
	w := NewRAGWorker(memory, browser, nil)

	st := NewState("task")
	st.Plan = Plan{{StepNumber: 1, Agent: AgentRAG, Query: "note something"}}
	st.StepIndex = 1

	w.Store(context.Background(), st, "message")

	require.Len(t, memory.Notes, 1)
	assert.Equal(t, "Unknown", memory.Notes[0].Task)
	assert.Equal(t, "Unknown", memory.Notes[0].Agent)
}

func TestRAGWorker_ClosedBrowserUsesSentinels(t *testing.T) {
	browser := mocks.NewMockBrowser("https://x.com", "x.com")
	require.NoError(t, browser.Close())
	memory := mocks.NewMockMemory()
	w := NewRAGWorker(memory, browser, nil)

	st := NewState("task")
	w.Store(context.Background(), st, "message")

	require.Len(t, memory.Notes, 1)
	assert.Equal(t, "unknown_url", memory.Notes[0].URL)
	assert.Equal(t, "unknown_site", memory.Notes[0].Site)
}
