package rag

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Embedder 把文本转为向量。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

const hashDims = 256

// HashEmbedder 是确定性的本地特征哈希嵌入器。
// 记忆层只需要“相似错误聚在一起”的弱语义，token 级哈希加 L2 归一化
// 对这个用途足够，而且零启动成本、零网络依赖——错误恢复路径不能
// 因为嵌入模型不可用而失效。
type HashEmbedder struct{}

// Embed 实现 Embedder，恒不出错。
func (HashEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, hashDims)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		idx := int(h.Sum32() % hashDims)
		// 符号位用第二个哈希，减少碰撞偏置
		h2 := fnv.New32()
		_, _ = h2.Write([]byte(token))
		if h2.Sum32()%2 == 0 {
			vec[idx]++
		} else {
			vec[idx]--
		}
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
