package embedding

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// mockRemote returns a distinct vector per text so order is observable.
type mockRemote struct {
	calls   int
	batches [][]string
	err     error
}

func (m *mockRemote) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls++
	m.batches = append(m.batches, texts)
	if m.err != nil {
		return nil, m.err
	}
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vecs[i] = []float32{float32(len(text))}
	}
	return vecs, nil
}

// memCache is an in-memory Cache with optional injected failures.
type memCache struct {
	data   map[string][]float32
	sets   int
	getErr error
	setErr error
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]float32)}
}

func (c *memCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	vec, ok := c.data[key]
	return vec, ok, nil
}

func (c *memCache) Set(ctx context.Context, key string, vector []float32, ttl time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.sets++
	c.data[key] = vector
	return nil
}

func (c *memCache) Close() error { return nil }

func TestEmbedBatch_CacheHitSkipsRemote(t *testing.T) {
	remote := &mockRemote{}
	cache := newMemCache()
	e := NewEmbedder(remote, cache, "test-model", time.Hour, nil)

	ctx := context.Background()
	first, err := e.EmbedBatch(ctx, []string{"squat depth analysis"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if remote.calls != 1 {
		t.Fatalf("expected 1 remote call, got %d", remote.calls)
	}

	second, err := e.EmbedBatch(ctx, []string{"squat depth analysis"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if remote.calls != 1 {
		t.Errorf("expected cached result without a second remote call, got %d calls", remote.calls)
	}
	if len(second) != 1 || second[0][0] != first[0][0] {
		t.Errorf("cached vector differs: %v vs %v", second, first)
	}
}

func TestEmbedBatch_NormalizationSharesCacheEntries(t *testing.T) {
	remote := &mockRemote{}
	cache := newMemCache()
	e := NewEmbedder(remote, cache, "test-model", time.Hour, nil)

	ctx := context.Background()
	if _, err := e.EmbedBatch(ctx, []string{"Knee  Valgus "}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.EmbedBatch(ctx, []string{"knee valgus"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if remote.calls != 1 {
		t.Errorf("expected case and whitespace variants to share a cache entry, got %d remote calls", remote.calls)
	}
}

func TestEmbedBatch_PreservesInputOrder(t *testing.T) {
	remote := &mockRemote{}
	cache := newMemCache()
	e := NewEmbedder(remote, cache, "test-model", time.Hour, nil)

	ctx := context.Background()
	// Prime the middle text so the batch mixes hits and misses.
	if _, err := e.EmbedBatch(ctx, []string{"bb"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vecs, err := e.EmbedBatch(ctx, []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []float32{1, 2, 3}
	for i, w := range want {
		if vecs[i][0] != w {
			t.Errorf("position %d: got %v, want %v", i, vecs[i][0], w)
		}
	}
}

func TestEmbedBatch_SubBatchesLargeInputs(t *testing.T) {
	remote := &mockRemote{}
	e := NewEmbedder(remote, NopCache{}, "test-model", time.Hour, nil)

	texts := make([]string, 25)
	for i := range texts {
		texts[i] = fmt.Sprintf("text number %d", i)
	}

	if _, err := e.EmbedBatch(context.Background(), texts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if remote.calls != 3 {
		t.Errorf("expected 3 sub-batches for 25 texts, got %d", remote.calls)
	}
	if len(remote.batches[0]) != 10 || len(remote.batches[1]) != 10 || len(remote.batches[2]) != 5 {
		t.Errorf("unexpected sub-batch sizes: %d/%d/%d",
			len(remote.batches[0]), len(remote.batches[1]), len(remote.batches[2]))
	}
}

func TestEmbedBatch_CacheFailuresDoNotFailRequest(t *testing.T) {
	remote := &mockRemote{}
	cache := newMemCache()
	cache.getErr = errors.New("connection refused")
	cache.setErr = errors.New("connection refused")
	e := NewEmbedder(remote, cache, "test-model", time.Hour, nil)

	vecs, err := e.EmbedBatch(context.Background(), []string{"hip shift correction"})
	if err != nil {
		t.Fatalf("cache failure must not fail the request: %v", err)
	}
	if len(vecs) != 1 {
		t.Fatalf("expected 1 vector, got %d", len(vecs))
	}
	if remote.calls != 1 {
		t.Errorf("expected remote fallback, got %d calls", remote.calls)
	}
}

func TestEmbedBatch_RemoteErrorPropagates(t *testing.T) {
	remote := &mockRemote{err: errors.New("model not found")}
	e := NewEmbedder(remote, NopCache{}, "test-model", time.Hour, nil)

	if _, err := e.EmbedBatch(context.Background(), []string{"text"}); err == nil {
		t.Fatal("expected remote error to propagate")
	}
}

func TestCacheKey_DependsOnModel(t *testing.T) {
	cache := newMemCache()
	a := NewEmbedder(&mockRemote{}, cache, "model-a", time.Hour, nil)
	b := NewEmbedder(&mockRemote{}, cache, "model-b", time.Hour, nil)

	if a.cacheKey("same text") == b.cacheKey("same text") {
		t.Error("different models must not share cache keys")
	}
}

func TestNormalize_Truncates(t *testing.T) {
	long := make([]byte, maxTextLen+500)
	for i := range long {
		long[i] = 'a'
	}
	if got := len(normalize(string(long))); got != maxTextLen {
		t.Errorf("expected normalized length %d, got %d", maxTextLen, got)
	}
}
