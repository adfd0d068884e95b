package retrieval

import (
	"context"
	"math"
	"testing"

	"github.com/movelytics/biorag/internal/vector"
)

func TestConsolidate_SkipsFailedResults(t *testing.T) {
	ok := Result{
		Success: true,
		Sources: []Source{{DOI: "10.1/a", Relevance: 0.7}},
		Chunks:  []Chunk{{Text: "text", Score: 0.7}},
		Scores:  []float32{0.7},
	}
	failed := Result{Success: false, Sources: []Source{}, Chunks: []Chunk{}, Scores: []float32{}}

	ctx := Consolidate([]Result{failed, ok, failed})
	if ctx.TotalChunks != 1 {
		t.Errorf("expected 1 chunk, got %d", ctx.TotalChunks)
	}
	if len(ctx.Sources) != 1 {
		t.Errorf("expected 1 source, got %d", len(ctx.Sources))
	}
	if ctx.AverageRelevance != 0.7 {
		t.Errorf("expected average 0.7, got %v", ctx.AverageRelevance)
	}
}

func TestConsolidate_EmptyInput(t *testing.T) {
	ctx := Consolidate(nil)
	if ctx.TotalChunks != 0 || ctx.AverageRelevance != 0 {
		t.Errorf("empty consolidation should be zeroed: %+v", ctx)
	}
	if ctx.Sources == nil || ctx.Chunks == nil || ctx.RelevanceScores == nil {
		t.Error("consolidated slices must be non-nil")
	}
}

func TestConsolidate_DedupAcrossDeviations(t *testing.T) {
	kneeValgus := Result{
		Success: true,
		Sources: []Source{
			{DOI: "10.1/shared", Title: "Shared study", Relevance: 0.6},
			{DOI: "10.1/knee", Relevance: 0.9},
		},
		Chunks: []Chunk{{Score: 0.9}, {Score: 0.6}},
		Scores: []float32{0.9, 0.6},
	}
	buttWink := Result{
		Success: true,
		Sources: []Source{
			{DOI: "10.1/shared", Title: "Shared study", Relevance: 0.8},
			{DOI: "10.1/wink", Relevance: 0.55},
		},
		Chunks: []Chunk{{Score: 0.8}, {Score: 0.55}},
		Scores: []float32{0.8, 0.55},
	}

	ctx := Consolidate([]Result{kneeValgus, buttWink})

	if len(ctx.Sources) != 3 {
		t.Fatalf("expected 3 unique sources, got %d", len(ctx.Sources))
	}
	// Sorted desc: knee 0.9, shared 0.8 (max of 0.6/0.8), wink 0.55.
	if ctx.Sources[0].DOI != "10.1/knee" {
		t.Errorf("unexpected order: %+v", ctx.Sources)
	}
	if ctx.Sources[1].DOI != "10.1/shared" || ctx.Sources[1].Relevance != 0.8 {
		t.Errorf("shared source must keep max relevance: %+v", ctx.Sources[1])
	}

	// Average over raw chunk scores, not deduplicated sources.
	if ctx.TotalChunks != 4 {
		t.Errorf("expected 4 chunks, got %d", ctx.TotalChunks)
	}
	want := (0.9 + 0.6 + 0.8 + 0.55) / 4
	if math.Abs(float64(ctx.AverageRelevance)-want) > 1e-6 {
		t.Errorf("expected average %v, got %v", want, ctx.AverageRelevance)
	}
}

// Two deviations on a back squat, three chunks each, with one publication
// surfaced by both searches.
func TestSearchDeviations_EndToEnd(t *testing.T) {
	store := &fakeStore{byType: map[string][]vector.ScoredPoint{
		"knee_valgus": {
			chunk("10.1/shared", 0.92, "shared publication chunk about valgus"),
			chunk("10.1/knee", 0.85, "knee valgus specific chunk content"),
			chunk("10.1/shared", 0.70, "another shared publication chunk"),
		},
		"butt_wink": {
			chunk("10.1/wink", 0.88, "butt wink pelvic tilt chunk content"),
			chunk("10.1/shared", 0.95, "shared publication chunk about wink"),
			chunk("10.1/wink2", 0.60, "secondary wink study chunk content"),
		},
	}}
	r := NewRetriever(&fakeEmbedder{}, store, Options{}, nil)

	deviations := []Deviation{
		{Type: "knee_valgus", Severity: "moderate"},
		{Type: "butt_wink", Severity: "severe"},
	}
	ctx := r.SearchDeviations(context.Background(), deviations, "back-squat", 3)

	if ctx.TotalChunks != 6 {
		t.Fatalf("expected 6 chunks, got %d", ctx.TotalChunks)
	}
	if len(ctx.RelevanceScores) != 6 {
		t.Fatalf("expected 6 raw scores, got %d", len(ctx.RelevanceScores))
	}

	// Four unique publications across both searches.
	if len(ctx.Sources) != 4 {
		t.Fatalf("expected 4 unique sources, got %d", len(ctx.Sources))
	}

	// The shared publication keeps its best score from either deviation.
	var shared *Source
	for i := range ctx.Sources {
		if ctx.Sources[i].DOI == "10.1/shared" {
			shared = &ctx.Sources[i]
		}
	}
	if shared == nil {
		t.Fatal("shared source missing")
	}
	if shared.Relevance != 0.95 {
		t.Errorf("expected shared relevance 0.95, got %v", shared.Relevance)
	}
	if ctx.Sources[0].DOI != "10.1/shared" {
		t.Errorf("expected shared source first after sort, got %s", ctx.Sources[0].DOI)
	}
	for i := 1; i < len(ctx.Sources); i++ {
		if ctx.Sources[i].Relevance > ctx.Sources[i-1].Relevance {
			t.Fatalf("sources not sorted desc at %d: %+v", i, ctx.Sources)
		}
	}

	// Chunks merge in deviation slice order regardless of goroutine timing.
	if ctx.Chunks[0].Metadata.DOI != "10.1/shared" || ctx.Chunks[3].Metadata.DOI != "10.1/wink" {
		t.Errorf("chunks not merged in deviation order: %s, %s",
			ctx.Chunks[0].Metadata.DOI, ctx.Chunks[3].Metadata.DOI)
	}

	want := (0.92 + 0.85 + 0.70 + 0.88 + 0.95 + 0.60) / 6
	if math.Abs(float64(ctx.AverageRelevance)-want) > 1e-6 {
		t.Errorf("expected average %v over raw scores, got %v", want, ctx.AverageRelevance)
	}
}

func TestSearchDeviations_PartialFailure(t *testing.T) {
	store := &fakeStore{byType: map[string][]vector.ScoredPoint{
		"knee_valgus": {chunk("10.1/knee", 0.85, "knee valgus specific chunk content")},
		// butt_wink has no entry: empty result, still Success true
	}}
	r := NewRetriever(&fakeEmbedder{}, store, Options{}, nil)

	ctx := r.SearchDeviations(context.Background(), []Deviation{
		{Type: "knee_valgus", Severity: "moderate"},
		{Type: "butt_wink", Severity: "severe"},
	}, "back-squat", 3)

	if ctx.TotalChunks != 1 {
		t.Errorf("expected 1 chunk from the succeeding search, got %d", ctx.TotalChunks)
	}
	if len(ctx.Sources) != 1 {
		t.Errorf("expected 1 source, got %d", len(ctx.Sources))
	}
}
