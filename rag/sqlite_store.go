package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// memoryRecord 是持久化记忆的 GORM 模型。Embedding 与 Metadata 以 JSON
// 存储，site_name 单列冗余用于过滤。
type memoryRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	Content   string `gorm:"type:text"`
	SiteName  string `gorm:"index;size:255"`
	Metadata  string `gorm:"type:text"`
	Embedding string `gorm:"type:text"`
	CreatedAt time.Time
}

func (memoryRecord) TableName() string { return "memory_records" }

// SQLiteVectorStore 基于 SQLite 的持久化向量存储。相似度在应用层计算，
// 记忆集合按站点过滤后规模很小，足够用。
type SQLiteVectorStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSQLiteVectorStore 打开（或创建）path 处的数据库并迁移表结构。
func NewSQLiteVectorStore(path string, logger *zap.Logger) (*SQLiteVectorStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open memory database: %w", err)
	}
	if err := db.AutoMigrate(&memoryRecord{}); err != nil {
		return nil, fmt.Errorf("migrate memory schema: %w", err)
	}
	return &SQLiteVectorStore{db: db, logger: logger}, nil
}

// Add 实现 VectorStore。
func (s *SQLiteVectorStore) Add(ctx context.Context, docs []Document) error {
	records := make([]memoryRecord, 0, len(docs))
	for _, doc := range docs {
		if doc.Embedding == nil {
			return fmt.Errorf("document %s has no embedding", doc.ID)
		}
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", doc.ID, err)
		}
		emb, err := json.Marshal(doc.Embedding)
		if err != nil {
			return fmt.Errorf("marshal embedding for %s: %w", doc.ID, err)
		}
		records = append(records, memoryRecord{
			ID:        doc.ID,
			Content:   doc.Content,
			SiteName:  doc.Metadata["site_name"],
			Metadata:  string(meta),
			Embedding: string(emb),
		})
	}
	if err := s.db.WithContext(ctx).Create(&records).Error; err != nil {
		return fmt.Errorf("persist memory records: %w", err)
	}
	return nil
}

// Search 实现 VectorStore。site_name 过滤下推到 SQL，其余过滤与相似度
// 在应用层完成。
func (s *SQLiteVectorStore) Search(ctx context.Context, queryEmbedding []float64, topK int, filter map[string]string) ([]SearchResult, error) {
	q := s.db.WithContext(ctx).Model(&memoryRecord{})
	if site, ok := filter["site_name"]; ok {
		q = q.Where("site_name = ?", site)
	}
	var records []memoryRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load memory records: %w", err)
	}

	results := make([]SearchResult, 0, len(records))
	for _, rec := range records {
		doc, err := rec.toDocument()
		if err != nil {
			s.logger.Warn("skip corrupt memory record", zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		if !matchesFilter(doc.Metadata, filter) {
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

// Count 实现 VectorStore。
func (s *SQLiteVectorStore) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&memoryRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count memory records: %w", err)
	}
	return int(n), nil
}

func (r memoryRecord) toDocument() (Document, error) {
	doc := Document{ID: r.ID, Content: r.Content}
	if r.Metadata != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &doc.Metadata); err != nil {
			return Document{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(r.Embedding), &doc.Embedding); err != nil {
		return Document{}, fmt.Errorf("decode embedding: %w", err)
	}
	return doc, nil
}
