package narrative

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/movelytics/biorag/internal/llm"
	"github.com/movelytics/biorag/internal/observability"
	"github.com/movelytics/biorag/internal/retrieval"
)

// ContextSearcher retrieves consolidated evidence for a set of deviations.
type ContextSearcher interface {
	SearchDeviations(ctx context.Context, deviations []retrieval.Deviation, exerciseID string, topKPerDeviation int) *retrieval.Context
}

// Options tune narrative generation.
type Options struct {
	Temperature      float64
	TopP             float64
	MaxTokens        int
	TopKPerDeviation int
}

// DefaultOptions returns the reference generation settings: low
// creativity, high precision.
func DefaultOptions() Options {
	return Options{
		Temperature:      0.3,
		TopP:             0.9,
		MaxTokens:        1500,
		TopKPerDeviation: 3,
	}
}

// Analyzer runs the deep-analysis pipeline: gate on critical findings,
// retrieve scientific context, generate the narrative.
type Analyzer struct {
	searcher ContextSearcher
	provider llm.Provider
	opts     Options
	logger   *slog.Logger
}

// NewAnalyzer creates an Analyzer. Zero-valued option fields fall back to
// the defaults.
func NewAnalyzer(searcher ContextSearcher, provider llm.Provider, opts Options, logger *slog.Logger) *Analyzer {
	def := DefaultOptions()
	if opts.Temperature <= 0 {
		opts.Temperature = def.Temperature
	}
	if opts.TopP <= 0 {
		opts.TopP = def.TopP
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	if opts.TopKPerDeviation <= 0 {
		opts.TopKPerDeviation = def.TopKPerDeviation
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{searcher: searcher, provider: provider, opts: opts, logger: logger}
}

// Analyze produces a narrative report for the critical findings. Mild or
// unknown severities are filtered out first; when nothing critical
// remains, Analyze returns (nil, nil) without touching retrieval or the
// model. Generation failures after retry exhaustion propagate unchanged.
func (a *Analyzer) Analyze(ctx context.Context, findings []Finding, exerciseID string) (*Report, error) {
	start := time.Now()

	var critical []Finding
	for _, f := range findings {
		if f.Critical() {
			critical = append(critical, f)
		}
	}
	if len(critical) == 0 {
		a.logger.Warn("deep analysis called with no critical deviations")
		return nil, nil
	}
	ctx, span := observability.StartAnalysisSpan(ctx, exerciseID, len(critical))
	defer span.End()
	a.logger.Info("analyzing critical deviations", "count", len(critical), "exercise", exerciseID)

	deviations := make([]retrieval.Deviation, len(critical))
	types := make([]string, len(critical))
	for i, f := range critical {
		deviations[i] = retrieval.Deviation{Type: f.Type, Severity: f.Severity}
		types[i] = f.Type
	}

	scientificContext := a.searcher.SearchDeviations(ctx, deviations, exerciseID, a.opts.TopKPerDeviation)
	a.logger.Info("context retrieved",
		"chunks", scientificContext.TotalChunks,
		"sources", len(scientificContext.Sources))
	if scientificContext.TotalChunks == 0 {
		a.logger.Warn("no scientific context found, proceeding with limited analysis")
	}

	prompt := buildPrompt(critical, scientificContext, exerciseID)
	llmCtx, llmSpan := observability.StartLLMSpan(ctx, a.provider.Name(), "")
	llmStart := time.Now()
	generation, err := a.provider.Generate(llmCtx, prompt, &llm.GenerateOptions{
		Temperature: &a.opts.Temperature,
		TopP:        &a.opts.TopP,
		MaxTokens:   &a.opts.MaxTokens,
	})
	if err != nil {
		err = fmt.Errorf("narrative generation: %w", err)
		observability.RecordError(llmSpan, err)
		llmSpan.End()
		observability.RecordError(span, err)
		return nil, err
	}
	observability.RecordLLMMetrics(llmSpan, generation.InputTokens, generation.OutputTokens, time.Since(llmStart))
	llmSpan.End()

	elapsed := time.Since(start)
	a.logger.Info("deep analysis completed", "elapsed", elapsed)

	return &Report{
		Narrative:          generation.Text,
		Sources:            scientificContext.Sources,
		DeviationsAnalyzed: types,
		TotalChunks:        scientificContext.TotalChunks,
		AverageRelevance:   scientificContext.AverageRelevance,
		ProcessingTime:     elapsed,
	}, nil
}
