package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/movelytics/biorag/internal/embedding"
	"github.com/movelytics/biorag/internal/observability"
	"github.com/movelytics/biorag/internal/vector"
)

// avgChunksPerDoc is the estimate used to derive a document count from a
// chunk count; the engine has no native aggregation over payload fields.
const avgChunksPerDoc = 15

// removeScanLimit caps the zero-vector scan used to find a document's
// points before deletion.
const removeScanLimit = 1000

// BatchResult summarizes a directory ingestion run.
type BatchResult struct {
	Processed   int
	Failed      int
	TotalChunks int
	Elapsed     time.Duration
	Errors      []string
}

// Stats summarizes the indexed corpus. Document counts are estimates.
type Stats struct {
	TotalDocuments  int
	TotalChunks     uint64
	AvgChunksPerDoc float64
}

// Processor chunks, embeds, and indexes scientific documents.
type Processor struct {
	embedder  *embedding.Embedder
	store     vector.Store
	dimension int
	logger    *slog.Logger
}

// NewProcessor creates a Processor. The dimension must match the store's
// collection configuration; it sizes the dummy vector used for scans.
func NewProcessor(embedder *embedding.Embedder, store vector.Store, dimension int, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{embedder: embedder, store: store, dimension: dimension, logger: logger}
}

// ProcessDocument chunks one document, embeds the chunks, and upserts the
// points. Returns the number of chunks indexed.
func (p *Processor) ProcessDocument(ctx context.Context, doc *ScientificDocument) (int, error) {
	ctx, span := observability.StartIngestSpan(ctx, doc.DOI)
	defer span.End()

	warnings, err := doc.Validate()
	if err != nil {
		err = fmt.Errorf("invalid document: %w", err)
		observability.RecordError(span, err)
		return 0, err
	}
	for _, w := range warnings {
		p.logger.Warn(w)
	}

	chunks := ChunkText(doc.Content)
	if len(chunks) == 0 {
		p.logger.Warn("document produced no chunks", "doi", doc.DOI)
		return 0, nil
	}
	p.logger.Debug("document chunked", "doi", doc.DOI, "chunks", len(chunks))

	vectors, err := p.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embedding document %s: %w", doc.DOI, err)
	}

	points := make([]vector.Point, len(chunks))
	for i, chunk := range chunks {
		points[i] = vector.Point{
			ID:     ChunkPointID(doc.DOI, i),
			Vector: vectors[i],
			Text:   chunk,
			Metadata: vector.ChunkMetadata{
				Title:            doc.Title,
				Authors:          doc.Authors,
				Year:             doc.Year,
				Journal:          doc.Journal,
				DOI:              doc.DOI,
				EvidenceLevel:    doc.Metadata.EvidenceLevel,
				DeviationType:    doc.Metadata.DeviationTypes[0],
				ExerciseCategory: doc.Metadata.ExerciseCategories[0],
				ChunkIndex:       i,
			},
		}
	}

	if err := p.store.Upsert(ctx, vector.KnowledgeCollection, points); err != nil {
		err = fmt.Errorf("indexing document %s: %w", doc.DOI, err)
		observability.RecordError(span, err)
		return 0, err
	}
	observability.RecordIngestResult(span, len(points))
	return len(points), nil
}

// ProcessDirectory ingests every *.json document in dir. A document that
// fails to parse or index is recorded and skipped; the run continues.
func (p *Processor) ProcessDirectory(ctx context.Context, dir string) (*BatchResult, error) {
	start := time.Now()

	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("documents directory: %w", err)
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	p.logger.Info("found documents to process", "count", len(paths), "dir", dir)

	result := &BatchResult{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		doc, err := loadDocument(path)
		if err != nil {
			p.recordFailure(result, path, err)
			continue
		}

		chunks, err := p.ProcessDocument(ctx, doc)
		if err != nil {
			p.recordFailure(result, path, err)
			continue
		}

		result.Processed++
		result.TotalChunks += chunks
		p.logger.Info("processed document", "title", doc.Title, "chunks", chunks)
	}

	result.Elapsed = time.Since(start)
	p.logger.Info("processing completed",
		"documents", result.Processed,
		"failed", result.Failed,
		"chunks", result.TotalChunks,
		"elapsed", result.Elapsed)
	return result, nil
}

func (p *Processor) recordFailure(result *BatchResult, path string, err error) {
	result.Failed++
	result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", filepath.Base(path), err))
	p.logger.Error("failed to process document", "file", filepath.Base(path), "error", err)
}

// RemoveDocument deletes every indexed chunk of the document with the
// given DOI. The engine has no prefix lookup over point ids, so the points
// are found with a zero-vector search filtered on the DOI payload field.
func (p *Processor) RemoveDocument(ctx context.Context, doi string) error {
	matches, err := p.store.Search(ctx, vector.SearchParams{
		Collection: vector.KnowledgeCollection,
		Vector:     make([]float32, p.dimension),
		Limit:      removeScanLimit,
		Filter:     &vector.Filter{DOI: doi},
	})
	if err != nil {
		return fmt.Errorf("locating chunks for %s: %w", doi, err)
	}
	if len(matches) == 0 {
		p.logger.Warn("no chunks found for document", "doi", doi)
		return nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	if err := p.store.DeletePoints(ctx, vector.KnowledgeCollection, ids); err != nil {
		return fmt.Errorf("removing chunks for %s: %w", doi, err)
	}
	p.logger.Info("removed document chunks", "doi", doi, "chunks", len(ids))
	return nil
}

// ReprocessDocument removes then re-indexes a document. Removal completes
// before indexing starts so stale chunks never outlive the update.
func (p *Processor) ReprocessDocument(ctx context.Context, doc *ScientificDocument) error {
	p.logger.Info("reprocessing document", "title", doc.Title)

	if err := p.RemoveDocument(ctx, doc.DOI); err != nil {
		return err
	}
	if _, err := p.ProcessDocument(ctx, doc); err != nil {
		return err
	}
	return nil
}

// CorpusStats reports chunk counts and an estimated document count. On
// failure it returns zeroed stats rather than an error; callers treat the
// figures as informational.
func (p *Processor) CorpusStats(ctx context.Context) Stats {
	info, err := p.store.CollectionInfo(ctx, vector.KnowledgeCollection)
	if err != nil {
		p.logger.Error("failed to get corpus stats", "error", err)
		return Stats{}
	}

	totalChunks := info.PointsCount
	estimatedDocs := int((totalChunks + avgChunksPerDoc/2) / avgChunksPerDoc)
	stats := Stats{
		TotalDocuments: estimatedDocs,
		TotalChunks:    totalChunks,
	}
	if estimatedDocs > 0 {
		stats.AvgChunksPerDoc = float64(totalChunks) / float64(estimatedDocs)
	}
	return stats
}

func loadDocument(path string) (*ScientificDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading: %w", err)
	}
	var doc ScientificDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	return &doc, nil
}
