package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrStoreUnavailable 后备向量存储打开失败。打开失败会被缓存，
// 之后所有调用直接降级。
var ErrStoreUnavailable = errors.New("memory store unavailable")

// Sentinel strings returned by RetrieveErrors. Callers inject these directly
// into planning prompts, so they read as natural language rather than errors.
const (
	NoSitesSentinel     = "No specific sites identified yet."
	NoErrorsSentinel    = "No previous errors found for these sites."
	UnavailableSentinel = "Past error memory is unavailable."
)

const errorsPerSite = 3

// Memory is the long-term error/lesson store behind the planner. The backing
// vector store is opened lazily on first use and the failure is cached: a
// broken database degrades every call to sentinels instead of failing the run.
type Memory struct {
	open     func() (VectorStore, error)
	embedder Embedder
	logger   *zap.Logger

	once  sync.Once
	store VectorStore
	err   error
}

// NewMemory creates a Memory over a lazily-opened vector store.
func NewMemory(open func() (VectorStore, error), embedder Embedder, logger *zap.Logger) *Memory {
	if embedder == nil {
		embedder = HashEmbedder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{open: open, embedder: embedder, logger: logger}
}

func (m *Memory) backend() (VectorStore, error) {
	m.once.Do(func() {
		m.store, m.err = m.open()
		if m.err != nil {
			m.err = fmt.Errorf("%w: %v", ErrStoreUnavailable, m.err)
			m.logger.Error("memory store open failed", zap.Error(m.err))
		}
	})
	return m.store, m.err
}

// StoreError persists an error together with the fix that was planned for it,
// keyed by the site where it actually happened. Failures are logged and
// swallowed: memory is advisory, a write failure must never break recovery.
func (m *Memory) StoreError(ctx context.Context, errText, fix, url, site string, stepIndex int) {
	content := fmt.Sprintf("ERROR: %s\nFIX: %s", errText, fix)
	m.add(ctx, Document{
		ID:      uuid.NewString(),
		Content: content,
		Metadata: map[string]string{
			"type":       "error_fix",
			"site_name":  site,
			"url":        url,
			"step_index": fmt.Sprintf("%d", stepIndex),
			"stored_at":  time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// StoreNote persists a general observation about a site for future runs.
func (m *Memory) StoreNote(ctx context.Context, content, url, site, task, agent string) {
	m.add(ctx, Document{
		ID:      uuid.NewString(),
		Content: content,
		Metadata: map[string]string{
			"type":      "note",
			"site_name": site,
			"url":       url,
			"task":      task,
			"agent":     agent,
			"stored_at": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func (m *Memory) add(ctx context.Context, doc Document) {
	store, err := m.backend()
	if err != nil {
		return
	}
	emb, err := m.embedder.Embed(ctx, doc.Content)
	if err != nil {
		m.logger.Warn("embed memory document failed", zap.Error(err))
		return
	}
	doc.Embedding = emb
	if err := store.Add(ctx, []Document{doc}); err != nil {
		m.logger.Warn("store memory document failed", zap.Error(err))
		return
	}
	m.logger.Debug("memory stored",
		zap.String("type", doc.Metadata["type"]),
		zap.String("site", doc.Metadata["site_name"]))
}

// RetrieveErrors returns a prompt-ready digest of past error/fix pairs for
// the given sites, up to 3 per site. Always returns a usable string, never an
// error.
func (m *Memory) RetrieveErrors(ctx context.Context, sites []string) string {
	if len(sites) == 0 {
		return NoSitesSentinel
	}
	store, err := m.backend()
	if err != nil {
		return UnavailableSentinel
	}

	query, err := m.embedder.Embed(ctx, "error failure fix lesson")
	if err != nil {
		m.logger.Warn("embed retrieval query failed", zap.Error(err))
		return UnavailableSentinel
	}

	var lines []string
	for _, site := range sites {
		results, err := store.Search(ctx, query, errorsPerSite, map[string]string{
			"type":      "error_fix",
			"site_name": site,
		})
		if err != nil {
			m.logger.Warn("memory search failed", zap.String("site", site), zap.Error(err))
			continue
		}
		for _, r := range results {
			lines = append(lines, fmt.Sprintf("[%s] %s", site, r.Document.Content))
		}
	}
	if len(lines) == 0 {
		return NoErrorsSentinel
	}
	return "PAST ERRORS/LESSONS:\n" + strings.Join(lines, "\n")
}
