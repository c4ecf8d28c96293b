package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmpkg "github.com/BaSui01/browserflow/llm"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisCache(client, time.Minute, nil), mr
}

func formatReq(instruction, data string) *llmpkg.ChatRequest {
	return &llmpkg.ChatRequest{
		Model: "test-model",
		Messages: []llmpkg.Message{
			{Role: llmpkg.RoleSystem, Content: instruction},
			{Role: llmpkg.RoleUser, Content: data},
		},
	}
}

func TestRedisCache_RoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	req := formatReq("format as JSON", "raw scraped rows")
	_, err := c.Get(ctx, req)
	assert.ErrorIs(t, err, ErrMiss)

	resp := &llmpkg.ChatResponse{
		Model:   "test-model",
		Choices: []llmpkg.ChatChoice{{Message: llmpkg.Message{Role: llmpkg.RoleAssistant, Content: `{"rows":[]}`}}},
	}
	require.NoError(t, c.Set(ctx, req, resp))

	got, err := c.Get(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, `{"rows":[]}`, got.Text())
}

func TestRedisCache_SkipsToolRequests(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	req := formatReq("do things", "data")
	req.Tools = []llmpkg.ToolSchema{{Name: "click_id", Parameters: json.RawMessage(`{}`)}}

	require.NoError(t, c.Set(ctx, req, &llmpkg.ChatResponse{Model: "m"}))
	assert.Empty(t, mr.Keys(), "tool-bearing requests must not be cached")

	_, err := c.Get(ctx, req)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisCache_KeyIsDeterministic(t *testing.T) {
	a := Key(formatReq("x", "y"))
	b := Key(formatReq("x", "y"))
	other := Key(formatReq("x", "z"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, other)
}

func TestRedisCache_CorruptEntryEvicted(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	req := formatReq("fmt", "data")
	require.NoError(t, mr.Set(Key(req), "not-json"))

	_, err := c.Get(ctx, req)
	assert.ErrorIs(t, err, ErrMiss)
	assert.False(t, mr.Exists(Key(req)))
}

func TestNopCache(t *testing.T) {
	var c NopCache
	_, err := c.Get(context.Background(), formatReq("a", "b"))
	assert.ErrorIs(t, err, ErrMiss)
	assert.NoError(t, c.Set(context.Background(), formatReq("a", "b"), &llmpkg.ChatResponse{}))
}
