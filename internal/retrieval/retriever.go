package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/movelytics/biorag/internal/observability"
	"github.com/movelytics/biorag/internal/vector"
)

// acceptedEvidenceLevels is the allow-list applied to every context
// search. Case reports and expert opinion never reach the narrative.
var acceptedEvidenceLevels = []string{"meta-analysis", "systematic-review", "rct"}

// queryTemplates map deviation types to hand-tuned search phrasings that
// outperform the bare deviation name in the embedding space.
var queryTemplates = map[string]string{
	"knee_valgus":              "dynamic knee valgus correction treatment exercises hip abductor strengthening neuromuscular control",
	"butt_wink":                "lumbar flexion pelvic posterior tilt squat correction hip mobility ankle dorsiflexion",
	"forward_lean":             "excessive trunk lean forward squat correction ankle mobility core strength",
	"heel_rise":                "heel rise ankle dorsiflexion limitation calf flexibility soleus gastrocnemius stretch",
	"asymmetric_loading":       "bilateral asymmetry unilateral strength imbalance correction single leg training",
	"excessive_spinal_flexion": "spinal flexion deadlift correction neutral spine core stability",
	"shoulder_impingement":     "shoulder impingement overhead press scapular dyskinesis rotator cuff",
	"hip_shift":                "hip shift lateral deviation squat correction hip mobility gluteal activation",
}

// exerciseCategories maps exercise id substrings to corpus categories.
// Matching is a substring scan, so "barbell-back-squat" lands on "squat".
var exerciseCategories = map[string]string{
	"squat":             "lower_body_compound",
	"back-squat":        "lower_body_compound",
	"front-squat":       "lower_body_compound",
	"goblet-squat":      "lower_body_compound",
	"deadlift":          "posterior_chain",
	"romanian-deadlift": "posterior_chain",
	"bench-press":       "upper_body_push",
	"overhead-press":    "upper_body_push",
	"military-press":    "upper_body_push",
	"row":               "upper_body_pull",
	"barbell-row":       "upper_body_pull",
	"pull-up":           "upper_body_pull",
	"clean":             "olympic_lift",
	"snatch":            "olympic_lift",
	"plank":             "core",
}

// defaultExerciseCategory is used when no substring matches.
const defaultExerciseCategory = "lower_body_compound"

// QueryEmbedder turns a query string into a vector.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Options tune retrieval behavior.
type Options struct {
	TopKPerDeviation int
	ScoreThreshold   float32
	MinYear          int
	Dimension        int
}

// DefaultOptions returns the reference retrieval settings.
func DefaultOptions() Options {
	return Options{
		TopKPerDeviation: 3,
		ScoreThreshold:   0.5,
		MinYear:          2010,
		Dimension:        768,
	}
}

// Retriever finds scientific context for movement deviations.
type Retriever struct {
	embedder QueryEmbedder
	store    vector.Store
	opts     Options
	logger   *slog.Logger
}

// NewRetriever creates a Retriever. Zero-valued option fields fall back
// to the defaults.
func NewRetriever(embedder QueryEmbedder, store vector.Store, opts Options, logger *slog.Logger) *Retriever {
	def := DefaultOptions()
	if opts.TopKPerDeviation <= 0 {
		opts.TopKPerDeviation = def.TopKPerDeviation
	}
	if opts.ScoreThreshold <= 0 {
		opts.ScoreThreshold = def.ScoreThreshold
	}
	if opts.MinYear <= 0 {
		opts.MinYear = def.MinYear
	}
	if opts.Dimension <= 0 {
		opts.Dimension = def.Dimension
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, store: store, opts: opts, logger: logger}
}

// SearchParams describe one single-deviation context search.
type SearchParams struct {
	DeviationType string
	ExerciseID    string
	Severity      string
	TopK          int
}

// SearchContext retrieves evidence for one deviation. Any failure yields
// Success false with empty slices; errors are logged, not returned.
func (r *Retriever) SearchContext(ctx context.Context, params SearchParams) Result {
	ctx, span := observability.StartRetrievalSpan(ctx, params.DeviationType)
	defer span.End()

	query := buildQuery(params.DeviationType, params.ExerciseID)
	r.logger.Debug("context query", "deviation", params.DeviationType, "query", query)

	queryVector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Error("query embedding failed", "deviation", params.DeviationType, "error", err)
		observability.RecordError(span, err)
		return failedResult()
	}

	topK := params.TopK
	if topK <= 0 {
		topK = r.opts.TopKPerDeviation
	}

	matches, err := r.store.Search(ctx, vector.SearchParams{
		Collection: vector.KnowledgeCollection,
		Vector:     queryVector,
		Limit:      topK,
		Filter: &vector.Filter{
			DeviationTypes:     []string{params.DeviationType},
			ExerciseCategories: []string{ExerciseCategory(params.ExerciseID)},
			EvidenceLevels:     acceptedEvidenceLevels,
			YearFrom:           r.opts.MinYear,
		},
		ScoreThreshold: r.opts.ScoreThreshold,
	})
	if err != nil {
		r.logger.Error("context search failed", "deviation", params.DeviationType, "error", err)
		observability.RecordError(span, err)
		return failedResult()
	}

	result := resultFromMatches(matches, false)
	observability.RecordRetrievalResult(span, len(result.Chunks), len(result.Sources), meanScore(result.Scores))
	r.logger.Info("context retrieved",
		"deviation", params.DeviationType,
		"chunks", len(result.Chunks),
		"sources", len(result.Sources))
	return result
}

func meanScore(scores []float32) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += float64(s)
	}
	return sum / float64(len(scores))
}

// SearchByDOI returns every indexed chunk of one publication, located by
// a zero-vector scan on the DOI payload field. Scores are pinned to 1.0
// since similarity against the zero vector is meaningless.
func (r *Retriever) SearchByDOI(ctx context.Context, doi string) Result {
	matches, err := r.store.Search(ctx, vector.SearchParams{
		Collection: vector.KnowledgeCollection,
		Vector:     make([]float32, r.opts.Dimension),
		Limit:      100,
		Filter:     &vector.Filter{DOI: doi},
	})
	if err != nil {
		r.logger.Error("doi search failed", "doi", doi, "error", err)
		return failedResult()
	}
	return resultFromMatches(matches, true)
}

// CorpusChunkCount reports how many chunks are indexed. Informational;
// failures report zero.
func (r *Retriever) CorpusChunkCount(ctx context.Context) uint64 {
	info, err := r.store.CollectionInfo(ctx, vector.KnowledgeCollection)
	if err != nil {
		r.logger.Error("failed to read corpus size", "error", err)
		return 0
	}
	return info.PointsCount
}

func failedResult() Result {
	return Result{Success: false, Sources: []Source{}, Chunks: []Chunk{}, Scores: []float32{}}
}

func resultFromMatches(matches []vector.ScoredPoint, pinScores bool) Result {
	result := Result{
		Success: true,
		Sources: extractSources(matches, pinScores),
		Chunks:  make([]Chunk, len(matches)),
		Scores:  make([]float32, len(matches)),
	}
	for i, m := range matches {
		score := m.Score
		if pinScores {
			score = 1.0
		}
		result.Chunks[i] = Chunk{Text: m.Text, Metadata: m.Metadata, Score: score}
		result.Scores[i] = score
	}
	return result
}

// buildQuery resolves the deviation's query template, falling back to a
// generic phrasing, and appends the exercise id for context.
func buildQuery(deviationType, exerciseID string) string {
	base, ok := queryTemplates[deviationType]
	if !ok {
		base = deviationType + " biomechanics correction treatment"
	}
	return base + " " + exerciseID
}

// ExerciseCategory resolves the corpus category for an exercise id.
func ExerciseCategory(exerciseID string) string {
	lowered := strings.ToLower(exerciseID)
	for key, category := range exerciseCategories {
		if strings.Contains(lowered, key) {
			return category
		}
	}
	return defaultExerciseCategory
}

// extractSources collapses matches into unique publications keyed by DOI,
// keeping each publication's best score, ordered most relevant first. The
// excerpt comes from the first chunk seen for the publication.
func extractSources(matches []vector.ScoredPoint, pinScores bool) []Source {
	byDOI := make(map[string]int)
	sources := []Source{}

	for _, m := range matches {
		score := m.Score
		if pinScores {
			score = 1.0
		}
		if i, seen := byDOI[m.Metadata.DOI]; seen {
			if score > sources[i].Relevance {
				sources[i].Relevance = score
			}
			continue
		}
		byDOI[m.Metadata.DOI] = len(sources)
		sources = append(sources, Source{
			Title:         m.Metadata.Title,
			Authors:       m.Metadata.Authors,
			Year:          m.Metadata.Year,
			Journal:       m.Metadata.Journal,
			DOI:           m.Metadata.DOI,
			EvidenceLevel: m.Metadata.EvidenceLevel,
			Excerpt:       excerpt(m.Text),
			Relevance:     score,
		})
	}

	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Relevance > sources[j].Relevance
	})
	return sources
}

func excerpt(text string) string {
	if len(text) <= excerptLen {
		return text + "..."
	}
	return text[:excerptLen] + "..."
}
