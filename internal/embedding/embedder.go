package embedding

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/movelytics/biorag/internal/observability"
)

const (
	// maxTextLen bounds normalized input; embedding models truncate anyway,
	// better to do it before hashing so equal prefixes share a cache entry.
	maxTextLen = 8000
	// subBatchSize bounds the number of texts sent to the model per request.
	subBatchSize = 10
)

// Remote computes embeddings on a remote model service.
type Remote interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder converts text into vectors, consulting the cache first. Cache
// failures are logged and otherwise ignored; the remote model is the
// fallback for every miss.
type Embedder struct {
	remote Remote
	cache  Cache
	model  string
	ttl    time.Duration
	logger *slog.Logger
}

// NewEmbedder creates an Embedder. The model name participates in cache
// keys so switching models never serves stale vectors.
func NewEmbedder(remote Remote, cache Cache, model string, ttl time.Duration, logger *slog.Logger) *Embedder {
	if cache == nil {
		cache = NopCache{}
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{remote: remote, cache: cache, model: model, ttl: ttl, logger: logger}
}

// Embed returns the vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per input text, in input order. Cached
// entries are served without a remote call; the remainder is computed in
// sub-batches and written back to the cache.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := observability.StartEmbeddingSpan(ctx, e.model, len(texts))
	defer span.End()

	vectors := make([][]float32, len(texts))

	var (
		uncached        []string
		uncachedIndices []int
	)
	for i, text := range texts {
		normalized := normalize(text)
		vec, ok, err := e.cache.Get(ctx, e.cacheKey(normalized))
		if err != nil {
			e.logger.Warn("embedding cache read failed", "error", err)
		}
		if ok {
			vectors[i] = vec
			continue
		}
		uncached = append(uncached, normalized)
		uncachedIndices = append(uncachedIndices, i)
	}

	if len(uncached) > 0 {
		e.logger.Debug("batch embeddings",
			"total", len(texts),
			"cached", len(texts)-len(uncached))
	}

	for start := 0; start < len(uncached); start += subBatchSize {
		end := start + subBatchSize
		if end > len(uncached) {
			end = len(uncached)
		}
		batch := uncached[start:end]

		computed, err := e.remote.Embed(ctx, batch)
		if err != nil {
			err = fmt.Errorf("embedding batch: %w", err)
			observability.RecordError(span, err)
			return nil, err
		}
		if len(computed) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(computed), len(batch))
		}

		for j, vec := range computed {
			vectors[uncachedIndices[start+j]] = vec
			if err := e.cache.Set(ctx, e.cacheKey(batch[j]), vec, e.ttl); err != nil {
				e.logger.Warn("embedding cache write failed", "error", err)
			}
		}
	}

	observability.RecordEmbeddingResult(span, len(texts)-len(uncached), len(uncached))
	return vectors, nil
}

// cacheKey hashes the model id together with the normalized text.
func (e *Embedder) cacheKey(normalized string) string {
	sum := md5.Sum([]byte(e.model + ":" + normalized))
	return hex.EncodeToString(sum[:])
}

// normalize trims, lowercases, collapses whitespace, and truncates. The
// normalized form is the cache-key basis, not the raw text.
func normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxTextLen {
		s = s[:maxTextLen]
	}
	return s
}
