package workflow

import (
	"context"
	"sync"

	"github.com/BaSui01/browserflow/llm"
	"github.com/BaSui01/browserflow/testutil/mocks"
)

// stubRotator 按 llm.Rotate 的语义返回预设候选列表。
type stubRotator struct {
	mu         sync.Mutex
	candidates []llm.Candidate
	err        error

	caps   []llm.Capability
	starts []int
}

func (r *stubRotator) Rotation(_ context.Context, cap llm.Capability, startIndex int, _ string) ([]llm.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps = append(r.caps, cap)
	r.starts = append(r.starts, startIndex)
	if r.err != nil {
		return nil, r.err
	}
	if len(r.candidates) == 0 {
		return nil, llm.ErrNoProviders
	}
	return llm.Rotate(r.candidates, startIndex%len(r.candidates)), nil
}

func rotatorOf(providers ...*mocks.MockProvider) *stubRotator {
	r := &stubRotator{}
	for _, p := range providers {
		r.candidates = append(r.candidates, llm.Candidate{Name: p.Name(), Provider: p})
	}
	return r
}

func rateLimited() error {
	return &llm.Error{
		Code:      llm.ErrRateLimited,
		Message:   "429 rate limit exceeded",
		Retryable: true,
	}
}

// planJSON 规划器结构化响应的便捷构造。
func planJSON(steps string) string {
	return `{"target_urls":["https://www.expedia.com"],"site_names":["expedia.com"],"steps":[` + steps + `]}`
}
