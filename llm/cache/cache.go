// Package cache 提供 LLM 响应的 Redis 缓存。
// 格式化是纯 prompt/response 变换，相同指令 + 相同原始数据的重复运行
// 可以直接命中缓存，省掉一次轮换调用。含 Tools 的请求不缓存。
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	llmpkg "github.com/BaSui01/browserflow/llm"
)

// ErrMiss 表示缓存未命中。
var ErrMiss = errors.New("llm cache miss")

// ResponseCache 是 ChatRequest → ChatResponse 的缓存。
type ResponseCache interface {
	Get(ctx context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatResponse, error)
	Set(ctx context.Context, req *llmpkg.ChatRequest, resp *llmpkg.ChatResponse) error
}

// RedisCache 是基于 Redis 的 ResponseCache 实现。
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache 创建 Redis 缓存。ttl <= 0 时默认 1 小时。
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

// Key 生成请求的缓存键：全请求 SHA-256 的前 16 字节。
func Key(req *llmpkg.ChatRequest) string {
	data, err := json.Marshal(req)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", req))
	}
	sum := sha256.Sum256(data)
	return "llm:cache:" + hex.EncodeToString(sum[:16])
}

// cacheable 判断请求是否可缓存：带工具的调用有副作用，跳过。
func cacheable(req *llmpkg.ChatRequest) bool {
	return req != nil && len(req.Tools) == 0
}

// Get 实现 ResponseCache。
func (c *RedisCache) Get(ctx context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatResponse, error) {
	if !cacheable(req) {
		return nil, ErrMiss
	}
	raw, err := c.client.Get(ctx, Key(req)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		// Redis 故障按未命中处理，不阻断调用链
		c.logger.Warn("cache get failed", zap.Error(err))
		return nil, ErrMiss
	}
	var resp llmpkg.ChatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.logger.Warn("cache entry corrupt, evicting", zap.Error(err))
		c.client.Del(ctx, Key(req))
		return nil, ErrMiss
	}
	return &resp, nil
}

// Set 实现 ResponseCache。
func (c *RedisCache) Set(ctx context.Context, req *llmpkg.ChatRequest, resp *llmpkg.ChatResponse) error {
	if !cacheable(req) || resp == nil {
		return nil
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal cached response: %w", err)
	}
	if err := c.client.Set(ctx, Key(req), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.Error(err))
	}
	return nil
}

// NopCache 在未配置 Redis 时使用，一律未命中。
type NopCache struct{}

func (NopCache) Get(context.Context, *llmpkg.ChatRequest) (*llmpkg.ChatResponse, error) {
	return nil, ErrMiss
}
func (NopCache) Set(context.Context, *llmpkg.ChatRequest, *llmpkg.ChatResponse) error { return nil }
