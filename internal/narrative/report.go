package narrative

import (
	"time"

	"github.com/movelytics/biorag/internal/retrieval"
)

// Severity levels recognized on findings. Anything else is treated as
// non-critical.
const (
	SeverityMild     = "mild"
	SeverityModerate = "moderate"
	SeveritySevere   = "severe"
)

// Finding is one detected movement deviation to analyze. Percentage is
// the share of frames showing the deviation; AverageValue is the mean
// measured angle in degrees. Both are optional and only enrich the
// prompt when present.
type Finding struct {
	Type         string  `json:"type"`
	Severity     string  `json:"severity"`
	Percentage   float64 `json:"percentage,omitempty"`
	AverageValue float64 `json:"average_value,omitempty"`
}

// Critical reports whether the finding warrants deep analysis.
func (f Finding) Critical() bool {
	return f.Severity == SeverityModerate || f.Severity == SeveritySevere
}

// Report is the outcome of one deep analysis.
type Report struct {
	Narrative          string             `json:"llm_narrative"`
	Sources            []retrieval.Source `json:"rag_sources_used"`
	DeviationsAnalyzed []string           `json:"deviations_analyzed"`
	TotalChunks        int                `json:"total_chunks"`
	AverageRelevance   float32            `json:"average_relevance"`
	ProcessingTime     time.Duration      `json:"processing_time_ms"`
}
