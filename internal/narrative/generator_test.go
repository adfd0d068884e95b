package narrative

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/movelytics/biorag/internal/llm"
	"github.com/movelytics/biorag/internal/retrieval"
)

// fakeSearcher returns a canned context and counts invocations.
type fakeSearcher struct {
	calls      int
	deviations []retrieval.Deviation
	context    *retrieval.Context
}

func (f *fakeSearcher) SearchDeviations(ctx context.Context, deviations []retrieval.Deviation, exerciseID string, topK int) *retrieval.Context {
	f.calls++
	f.deviations = deviations
	if f.context != nil {
		return f.context
	}
	return &retrieval.Context{
		Sources:         []retrieval.Source{},
		Chunks:          []retrieval.Chunk{},
		RelevanceScores: []float32{},
	}
}

// fakeProvider records the last generation request.
type fakeProvider struct {
	calls  int
	prompt *llm.Prompt
	opts   *llm.GenerateOptions
	text   string
	err    error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, prompt *llm.Prompt, opts *llm.GenerateOptions) (*llm.Generation, error) {
	f.calls++
	f.prompt = prompt
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Generation{Text: f.text}, nil
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func richContext() *retrieval.Context {
	return &retrieval.Context{
		Sources: []retrieval.Source{
			{Title: "Hip strength and valgus", Authors: "Smith J", Year: 2019, DOI: "10.1/a", EvidenceLevel: "rct", Excerpt: "hip abductor...", Relevance: 0.9},
			{Title: "Pelvic tilt under load", Authors: "Doe A", Year: 2017, DOI: "10.1/b", EvidenceLevel: "meta-analysis", Excerpt: "posterior tilt...", Relevance: 0.8},
		},
		Chunks:           []retrieval.Chunk{{Score: 0.9}, {Score: 0.8}},
		TotalChunks:      2,
		RelevanceScores:  []float32{0.9, 0.8},
		AverageRelevance: 0.85,
	}
}

func TestFinding_Critical(t *testing.T) {
	cases := []struct {
		severity string
		want     bool
	}{
		{SeverityMild, false},
		{SeverityModerate, true},
		{SeveritySevere, true},
		{"unknown", false},
		{"", false},
	}
	for _, tc := range cases {
		f := Finding{Type: "knee_valgus", Severity: tc.severity}
		if got := f.Critical(); got != tc.want {
			t.Errorf("Critical(%q) = %v, want %v", tc.severity, got, tc.want)
		}
	}
}

func TestAnalyze_NoCriticalShortCircuits(t *testing.T) {
	searcher := &fakeSearcher{}
	provider := &fakeProvider{}
	a := NewAnalyzer(searcher, provider, Options{}, nil)

	report, err := a.Analyze(context.Background(), []Finding{
		{Type: "knee_valgus", Severity: SeverityMild},
		{Type: "heel_rise", Severity: "unknown"},
	}, "back-squat")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report != nil {
		t.Error("expected nil report for non-critical findings")
	}
	if searcher.calls != 0 {
		t.Errorf("retrieval must not run: %d calls", searcher.calls)
	}
	if provider.calls != 0 {
		t.Errorf("generation must not run: %d calls", provider.calls)
	}
}

func TestAnalyze_GeneratesReport(t *testing.T) {
	searcher := &fakeSearcher{context: richContext()}
	provider := &fakeProvider{text: "## Executive Summary\nFindings..."}
	a := NewAnalyzer(searcher, provider, Options{}, nil)

	findings := []Finding{
		{Type: "knee_valgus", Severity: SeverityModerate, Percentage: 45, AverageValue: 12.3},
		{Type: "heel_rise", Severity: SeverityMild},
		{Type: "butt_wink", Severity: SeveritySevere},
	}

	report, err := a.Analyze(context.Background(), findings, "back-squat")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report == nil {
		t.Fatal("expected a report")
	}

	// Only the critical findings reach retrieval.
	if len(searcher.deviations) != 2 {
		t.Fatalf("expected 2 deviations searched, got %d", len(searcher.deviations))
	}
	if searcher.deviations[0].Type != "knee_valgus" || searcher.deviations[1].Type != "butt_wink" {
		t.Errorf("wrong deviations: %+v", searcher.deviations)
	}

	if report.Narrative != "## Executive Summary\nFindings..." {
		t.Errorf("unexpected narrative %q", report.Narrative)
	}
	if len(report.Sources) != 2 || report.TotalChunks != 2 {
		t.Errorf("report missing context: %+v", report)
	}
	if len(report.DeviationsAnalyzed) != 2 || report.DeviationsAnalyzed[1] != "butt_wink" {
		t.Errorf("wrong deviations analyzed: %v", report.DeviationsAnalyzed)
	}

	// Reference generation settings.
	if provider.opts == nil || provider.opts.Temperature == nil || *provider.opts.Temperature != 0.3 {
		t.Errorf("expected temperature 0.3, got %+v", provider.opts)
	}
	if *provider.opts.TopP != 0.9 || *provider.opts.MaxTokens != 1500 {
		t.Errorf("unexpected generation options: %+v", provider.opts)
	}
}

func TestAnalyze_GenerationFailurePropagates(t *testing.T) {
	exhausted := &llm.ExhaustedError{Attempts: 3, Last: errors.New("503 Service Unavailable")}
	searcher := &fakeSearcher{context: richContext()}
	provider := &fakeProvider{err: exhausted}
	a := NewAnalyzer(searcher, provider, Options{}, nil)

	report, err := a.Analyze(context.Background(), []Finding{
		{Type: "knee_valgus", Severity: SeveritySevere},
	}, "back-squat")

	if report != nil {
		t.Error("failed generation must not produce a report")
	}
	var target *llm.ExhaustedError
	if !errors.As(err, &target) {
		t.Fatalf("expected ExhaustedError to propagate, got %v", err)
	}
	if target.Attempts != 3 {
		t.Errorf("expected attempts preserved, got %d", target.Attempts)
	}
}

func TestAnalyze_ProceedsWithoutContext(t *testing.T) {
	searcher := &fakeSearcher{} // empty context
	provider := &fakeProvider{text: "general analysis"}
	a := NewAnalyzer(searcher, provider, Options{}, nil)

	report, err := a.Analyze(context.Background(), []Finding{
		{Type: "hip_shift", Severity: SeverityModerate},
	}, "front-squat")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report == nil {
		t.Fatal("expected a report even without retrieved context")
	}
	if !strings.Contains(provider.prompt.User, "general biomechanics knowledge") {
		t.Error("prompt should fall back to general-knowledge wording")
	}
}
