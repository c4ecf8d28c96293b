// Package rag 提供 workflow 记忆层：向量存储、嵌入与错误经验检索。
package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Document 是带嵌入向量与元数据的记忆文档。
type Document struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding []float64         `json:"embedding,omitempty"`
}

// SearchResult 向量搜索结果。
type SearchResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// VectorStore 向量数据库接口。filter 按元数据做等值过滤。
type VectorStore interface {
	Add(ctx context.Context, docs []Document) error
	Search(ctx context.Context, queryEmbedding []float64, topK int, filter map[string]string) ([]SearchResult, error)
	Count(ctx context.Context) (int, error)
}

// InMemoryVectorStore 内存向量存储（测试与临时运行）。
type InMemoryVectorStore struct {
	mu        sync.RWMutex
	documents []Document
	logger    *zap.Logger
}

// NewInMemoryVectorStore 创建内存向量存储。
func NewInMemoryVectorStore(logger *zap.Logger) *InMemoryVectorStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryVectorStore{logger: logger}
}

// Add 添加文档。
func (s *InMemoryVectorStore) Add(ctx context.Context, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		if doc.Embedding == nil {
			return fmt.Errorf("document %s has no embedding", doc.ID)
		}
		s.documents = append(s.documents, doc)
	}
	s.logger.Debug("documents added", zap.Int("count", len(docs)), zap.Int("total", len(s.documents)))
	return nil
}

// Search 按余弦相似度搜索，filter 全部匹配才入选。
func (s *InMemoryVectorStore) Search(ctx context.Context, queryEmbedding []float64, topK int, filter map[string]string) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]SearchResult, 0, len(s.documents))
	for _, doc := range s.documents {
		if doc.Embedding == nil || !matchesFilter(doc.Metadata, filter) {
			continue
		}
		results = append(results, SearchResult{
			Document: doc,
			Score:    CosineSimilarity(queryEmbedding, doc.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Count 返回文档数量。
func (s *InMemoryVectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents), nil
}

func matchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// CosineSimilarity 计算两个向量的余弦相似度；维度不符或零向量返回 0。
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
