package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/browserflow/llm"
	"github.com/BaSui01/browserflow/testutil/mocks"
)

func TestFormatter_Success(t *testing.T) {
	provider := mocks.NewMockProvider("m").WithText("| Movie | Year |\n| Heat | 1995 |")
	f := NewFormatter(rotatorOf(provider), nil, nil)

	st := NewState("task")
	st.OutputContent = []string{`{"movies":[{"title":"Heat","year":1995}]}`}
	st.Apply(f.Format(context.Background(), st, "format as a markdown table"))

	assert.Equal(t, "| Movie | Year |\n| Heat | 1995 |", st.Output)
	require.NotEmpty(t, provider.Requests)
	user := provider.Requests[0].Messages[1].Content
	assert.Contains(t, user, "format as a markdown table")
	assert.Contains(t, user, "Heat")
}

func TestFormatter_AllCandidatesRateLimited(t *testing.T) {
	a := mocks.NewMockProvider("a").WithError(rateLimited())
	b := mocks.NewMockProvider("b").WithError(&llm.Error{
		Code: llm.ErrQuotaExceeded, Message: "quota exhausted for today", Retryable: true,
	})
	f := NewFormatter(rotatorOf(a, b), nil, nil)

	st := NewState("task")
	d := f.Format(context.Background(), st, "format")

	require.NotNil(t, d.Output)
	assert.Contains(t, *d.Output, "Formatting failed:")
	assert.Contains(t, *d.Output, "quota exhausted", "last captured error is embedded")
	assert.Equal(t, 1, a.Calls())
	assert.Equal(t, 1, b.Calls())
}

func TestFormatter_NonRetryableStopsRotation(t *testing.T) {
	hard := mocks.NewMockProvider("a").WithError(errors.New("model deprecated"))
	never := mocks.NewMockProvider("b").WithText("unused")
	f := NewFormatter(rotatorOf(hard, never), nil, nil)

	d := f.Format(context.Background(), NewState("task"), "format")

	require.NotNil(t, d.Output)
	assert.Contains(t, *d.Output, "Formatting failed:")
	assert.Zero(t, never.Calls())
}

func TestFormatter_NoProviders(t *testing.T) {
	f := NewFormatter(&stubRotator{}, nil, nil)
	d := f.Format(context.Background(), NewState("task"), "format")
	require.NotNil(t, d.Output)
	assert.Contains(t, *d.Output, "Formatting failed:")
}

type canned struct {
	resp *llm.ChatResponse
	sets int
}

func (c *canned) Get(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
	if c.resp == nil {
		return nil, errors.New("miss")
	}
	return c.resp, nil
}

func (c *canned) Set(_ context.Context, _ *llm.ChatRequest, resp *llm.ChatResponse) error {
	c.sets++
	c.resp = resp
	return nil
}

func TestFormatter_CacheHitSkipsModel(t *testing.T) {
	provider := mocks.NewMockProvider("m").WithText("fresh result")
	cache := &canned{}
	f := NewFormatter(rotatorOf(provider), cache, nil)

	st := NewState("task")
	st.OutputContent = []string{"data"}

	st.Apply(f.Format(context.Background(), st, "format"))
	assert.Equal(t, "fresh result", st.Output)
	assert.Equal(t, 1, provider.Calls())
	assert.Equal(t, 1, cache.sets)

	// 第二次相同请求命中缓存，不再调用模型
	st.Apply(f.Format(context.Background(), st, "format"))
	assert.Equal(t, "fresh result", st.Output)
	assert.Equal(t, 1, provider.Calls())
}
