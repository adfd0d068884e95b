package retrieval

import (
	"context"
	"sort"
	"sync"
)

// SearchDeviations retrieves context for every deviation concurrently and
// consolidates the results. Per-deviation failures surface as empty
// results inside the consolidation, never as an error.
func (r *Retriever) SearchDeviations(ctx context.Context, deviations []Deviation, exerciseID string, topKPerDeviation int) *Context {
	results := make([]Result, len(deviations))

	var wg sync.WaitGroup
	for i, deviation := range deviations {
		wg.Add(1)
		go func(i int, deviation Deviation) {
			defer wg.Done()
			results[i] = r.SearchContext(ctx, SearchParams{
				DeviationType: deviation.Type,
				ExerciseID:    exerciseID,
				Severity:      deviation.Severity,
				TopK:          topKPerDeviation,
			})
		}(i, deviation)
	}
	wg.Wait()

	return Consolidate(results)
}

// Consolidate merges per-deviation results into one context. Results are
// merged in slice order, so the output is deterministic for a given set
// of inputs regardless of search completion order. Sources are
// deduplicated by DOI keeping the highest relevance; the average is taken
// over the raw chunk scores before deduplication.
func Consolidate(results []Result) *Context {
	consolidated := &Context{
		Sources:         []Source{},
		Chunks:          []Chunk{},
		RelevanceScores: []float32{},
	}

	var all []Source
	for _, result := range results {
		if !result.Success {
			continue
		}
		all = append(all, result.Sources...)
		consolidated.Chunks = append(consolidated.Chunks, result.Chunks...)
		consolidated.RelevanceScores = append(consolidated.RelevanceScores, result.Scores...)
	}

	consolidated.Sources = dedupeSources(all)
	sort.SliceStable(consolidated.Sources, func(i, j int) bool {
		return consolidated.Sources[i].Relevance > consolidated.Sources[j].Relevance
	})

	consolidated.TotalChunks = len(consolidated.Chunks)
	if n := len(consolidated.RelevanceScores); n > 0 {
		var sum float32
		for _, s := range consolidated.RelevanceScores {
			sum += s
		}
		consolidated.AverageRelevance = sum / float32(n)
	}
	return consolidated
}

// dedupeSources keeps one entry per DOI. When the same publication was
// surfaced by several deviations, the entry keeps the highest relevance
// seen; other fields come from the first occurrence.
func dedupeSources(sources []Source) []Source {
	byDOI := make(map[string]int)
	unique := []Source{}
	for _, source := range sources {
		if i, seen := byDOI[source.DOI]; seen {
			if source.Relevance > unique[i].Relevance {
				unique[i].Relevance = source.Relevance
			}
			continue
		}
		byDOI[source.DOI] = len(unique)
		unique = append(unique, source)
	}
	return unique
}
