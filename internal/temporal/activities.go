package temporal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/movelytics/biorag/internal/corpus"
)

// ReindexDocumentResult is the serializable per-document activity result.
type ReindexDocumentResult struct {
	Chunks int
}

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Processor *corpus.Processor
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

// ListDocumentsActivity returns the paths of every *.json document under dir.
func ListDocumentsActivity(ctx context.Context, dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("documents directory: %w", err)
	}
	return filepath.Glob(filepath.Join(dir, "*.json"))
}

// ReindexDocumentActivity removes a document's stale chunks and re-indexes
// it from the file at path.
func ReindexDocumentActivity(ctx context.Context, path string) (ReindexDocumentResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ReindexDocumentResult{}, fmt.Errorf("reading document: %w", err)
	}

	var doc corpus.ScientificDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return ReindexDocumentResult{}, fmt.Errorf("parsing document: %w", err)
	}

	if err := deps.Processor.ReprocessDocument(ctx, &doc); err != nil {
		return ReindexDocumentResult{}, err
	}

	chunks := len(corpus.ChunkText(doc.Content))
	return ReindexDocumentResult{Chunks: chunks}, nil
}
