package vector

import "context"

// Collection names owned by the pipeline.
const (
	KnowledgeCollection = "biomechanics_knowledge"
	ExerciseCollection  = "exercise_library"
)

// ChunkMetadata is the payload metadata attached to every indexed chunk.
type ChunkMetadata struct {
	Title            string `json:"title"`
	Authors          string `json:"authors"`
	Year             int    `json:"year"`
	Journal          string `json:"journal"`
	DOI              string `json:"doi"`
	EvidenceLevel    string `json:"evidence_level"`
	DeviationType    string `json:"deviation_type"`
	ExerciseCategory string `json:"exercise_category"`
	ChunkIndex       int    `json:"chunk_index"`
}

// Point is the unit persisted in the index: one chunk, one vector.
type Point struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata ChunkMetadata
}

// ScoredPoint is a single match from a similarity search.
type ScoredPoint struct {
	ID       string
	Score    float32
	Text     string
	Metadata ChunkMetadata
}

// SearchParams describes one filtered top-k query.
type SearchParams struct {
	Collection     string
	Vector         []float32
	Limit          int
	Filter         *Filter
	ScoreThreshold float32
}

// CollectionInfo summarizes one collection's state.
type CollectionInfo struct {
	Name        string
	PointsCount uint64
	Status      string
}

// Store provides vector storage and filtered similarity search.
type Store interface {
	// EnsureCollections creates missing collections and payload indices.
	EnsureCollections(ctx context.Context) error
	// Search runs a filtered top-k similarity query.
	Search(ctx context.Context, params SearchParams) ([]ScoredPoint, error)
	// Upsert inserts or updates points, waiting for durability.
	Upsert(ctx context.Context, collection string, points []Point) error
	// DeletePoints removes points by id, waiting for durability.
	DeletePoints(ctx context.Context, collection string, ids []string) error
	// CollectionInfo reports point counts and status for a collection.
	CollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error)
	// HealthCheck verifies the backing engine is reachable.
	HealthCheck(ctx context.Context) error
	// Close releases resources.
	Close() error
}
