package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRotatable_Signatures(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("HTTP 429: too many requests"), true},
		{errors.New("Rate Limit exceeded for model"), true},
		{errors.New("quota exceeded for project"), true},
		{errors.New("RESOURCE_EXHAUSTED: out of tokens"), true},
		{errors.New("HTTP 413: request too large"), true},
		{errors.New("planner returned empty output"), true},
		{errors.New("element not found on page"), false},
		{errors.New("connection refused"), false},
		{nil, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsRotatable(tc.err), "err=%v", tc.err)
	}
}

func TestIsRotatable_StructuredError(t *testing.T) {
	assert.True(t, IsRotatable(&Error{Code: ErrRateLimited, Retryable: true}))
	assert.False(t, IsRotatable(&Error{Code: ErrUnauthorized, Retryable: false}))

	// wrap 之后仍可识别
	wrapped := fmt.Errorf("planner: %w", &Error{Code: ErrQuotaExceeded, Retryable: true})
	assert.True(t, IsRotatable(wrapped))
}

func TestIsToolIncompatible(t *testing.T) {
	assert.True(t, IsToolIncompatible(errors.New("Failed to call a function: bad args")))
	assert.True(t, IsToolIncompatible(errors.New("invalid tool_call id")))
	assert.True(t, IsToolIncompatible(errors.New("model_not_found")))
	assert.True(t, IsToolIncompatible(errors.New("model does not exist or you lack access")))
	assert.True(t, IsToolIncompatible(&Error{Code: ErrModelNotFound}))
	assert.False(t, IsToolIncompatible(errors.New("429 too many requests")))
	assert.False(t, IsToolIncompatible(nil))
}

func TestClassifyHTTPStatus(t *testing.T) {
	code, retryable := ClassifyHTTPStatus(429)
	assert.Equal(t, ErrRateLimited, code)
	assert.True(t, retryable)

	code, retryable = ClassifyHTTPStatus(413)
	assert.Equal(t, ErrPayloadTooLarge, code)
	assert.True(t, retryable)

	code, retryable = ClassifyHTTPStatus(401)
	assert.Equal(t, ErrUnauthorized, code)
	assert.False(t, retryable)

	code, retryable = ClassifyHTTPStatus(503)
	assert.Equal(t, ErrUpstreamError, code)
	assert.True(t, retryable)
}
