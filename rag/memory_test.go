package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryOver(t *testing.T, store VectorStore) *Memory {
	t.Helper()
	return NewMemory(func() (VectorStore, error) { return store, nil }, nil, nil)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 0}, []float64{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1}, []float64{1, 2}), "dimension mismatch")
	assert.Equal(t, 0.0, CosineSimilarity([]float64{0, 0}, []float64{1, 1}), "zero vector")
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := HashEmbedder{}
	ctx := context.Background()
	a, err := e.Embed(ctx, "element not found on expedia search page")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "element not found on expedia search page")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := e.Embed(ctx, "completely unrelated text about cooking")
	require.NoError(t, err)
	sim := CosineSimilarity(a, c)
	self := CosineSimilarity(a, b)
	assert.Greater(t, self, sim, "identical text must score above unrelated text")
}

func TestInMemoryVectorStore_SearchFiltersAndRanks(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryVectorStore(nil)
	e := HashEmbedder{}

	add := func(id, content, site string) {
		emb, err := e.Embed(ctx, content)
		require.NoError(t, err)
		require.NoError(t, store.Add(ctx, []Document{{
			ID: id, Content: content, Embedding: emb,
			Metadata: map[string]string{"site_name": site, "type": "error_fix"},
		}}))
	}
	add("a", "click failed on login button", "expedia.com")
	add("b", "date picker would not open", "expedia.com")
	add("c", "click failed on login button", "youtube.com")

	query, err := e.Embed(ctx, "click failed login")
	require.NoError(t, err)
	results, err := store.Search(ctx, query, 10, map[string]string{"site_name": "expedia.com"})
	require.NoError(t, err)
	require.Len(t, results, 2, "filter must exclude other sites")
	assert.Equal(t, "a", results[0].Document.ID, "closest match ranks first")
}

func TestMemory_StoreAndRetrieveErrors(t *testing.T) {
	ctx := context.Background()
	mem := memoryOver(t, NewInMemoryVectorStore(nil))

	mem.StoreError(ctx, "TimeoutError: element #search not found", "Wait for page load before locating", "https://www.expedia.com", "expedia.com", 2)

	digest := mem.RetrieveErrors(ctx, []string{"expedia.com"})
	assert.Contains(t, digest, "PAST ERRORS/LESSONS:")
	assert.Contains(t, digest, "TimeoutError")
	assert.Contains(t, digest, "Wait for page load")
}

func TestMemory_RetrieveSentinels(t *testing.T) {
	ctx := context.Background()

	mem := memoryOver(t, NewInMemoryVectorStore(nil))
	assert.Equal(t, NoSitesSentinel, mem.RetrieveErrors(ctx, nil))
	assert.Equal(t, NoErrorsSentinel, mem.RetrieveErrors(ctx, []string{"expedia.com"}))

	broken := NewMemory(func() (VectorStore, error) {
		return nil, errors.New("disk corrupt")
	}, nil, nil)
	assert.Equal(t, UnavailableSentinel, broken.RetrieveErrors(ctx, []string{"expedia.com"}))
	// failure is cached, the second call must not retry the open
	assert.Equal(t, UnavailableSentinel, broken.RetrieveErrors(ctx, []string{"expedia.com"}))
	_, err := broken.backend()
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestMemory_LazyOpenOnce(t *testing.T) {
	ctx := context.Background()
	opens := 0
	mem := NewMemory(func() (VectorStore, error) {
		opens++
		return NewInMemoryVectorStore(nil), nil
	}, nil, nil)

	assert.Zero(t, opens, "store must not open before first use")
	mem.StoreError(ctx, "e1", "f1", "u", "s1", 0)
	mem.StoreNote(ctx, "note", "u", "s1", "task", "planner")
	_ = mem.RetrieveErrors(ctx, []string{"s1"})
	assert.Equal(t, 1, opens)
}

func TestMemory_PerSiteLimit(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryVectorStore(nil)
	mem := memoryOver(t, store)

	for i := 0; i < 5; i++ {
		mem.StoreError(ctx, "err", "fix", "u", "expedia.com", i)
	}
	mem.StoreError(ctx, "other err", "other fix", "u", "youtube.com", 0)

	digest := mem.RetrieveErrors(ctx, []string{"expedia.com", "youtube.com"})
	assert.Equal(t, 3, strings.Count(digest, "[expedia.com]"), "at most 3 entries per site")
	assert.Equal(t, 1, strings.Count(digest, "[youtube.com]"))
}

func TestSQLiteVectorStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteVectorStore(t.TempDir()+"/memory.db", nil)
	require.NoError(t, err)

	e := HashEmbedder{}
	emb, err := e.Embed(ctx, "search box missing")
	require.NoError(t, err)
	require.NoError(t, store.Add(ctx, []Document{{
		ID: "r1", Content: "search box missing", Embedding: emb,
		Metadata: map[string]string{"site_name": "imdb.com", "type": "error_fix"},
	}}))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := store.Search(ctx, emb, 5, map[string]string{"site_name": "imdb.com"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "search box missing", results[0].Document.Content)
	assert.Equal(t, "imdb.com", results[0].Document.Metadata["site_name"])

	none, err := store.Search(ctx, emb, 5, map[string]string{"site_name": "other.com"})
	require.NoError(t, err)
	assert.Empty(t, none)
}
