package retrieval

import "github.com/movelytics/biorag/internal/vector"

// excerptLen is how much of a chunk is surfaced as a source excerpt.
const excerptLen = 200

// Source is one scientific publication backing the retrieved context.
// Relevance is the best score among the publication's matched chunks.
type Source struct {
	Title         string  `json:"title"`
	Authors       string  `json:"authors"`
	Year          int     `json:"year"`
	Journal       string  `json:"journal"`
	DOI           string  `json:"doi"`
	EvidenceLevel string  `json:"evidence_level"`
	Excerpt       string  `json:"excerpt"`
	Relevance     float32 `json:"relevance"`
}

// Chunk is one retrieved text fragment with its similarity score.
type Chunk struct {
	Text     string               `json:"text"`
	Metadata vector.ChunkMetadata `json:"metadata"`
	Score    float32              `json:"score"`
}

// Result is the outcome of one context search. A failed search has
// Success false and empty slices; it never carries an error, so one bad
// deviation cannot sink a multi-deviation analysis.
type Result struct {
	Success bool      `json:"success"`
	Sources []Source  `json:"sources"`
	Chunks  []Chunk   `json:"chunks"`
	Scores  []float32 `json:"scores"`
}

// Context is the consolidated evidence across all searched deviations.
// AverageRelevance is the mean over every retrieved chunk score, not over
// the deduplicated sources.
type Context struct {
	Sources          []Source  `json:"sources"`
	Chunks           []Chunk   `json:"chunks"`
	TotalChunks      int       `json:"totalChunks"`
	RelevanceScores  []float32 `json:"relevanceScores"`
	AverageRelevance float32   `json:"averageRelevance"`
}

// Deviation is one movement fault to retrieve evidence for.
type Deviation struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
}
