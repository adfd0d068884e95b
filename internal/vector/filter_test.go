package vector

import (
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
)

func TestFilter_Empty(t *testing.T) {
	var nilFilter *Filter
	if !nilFilter.Empty() {
		t.Error("nil filter must be empty")
	}
	if !(&Filter{}).Empty() {
		t.Error("zero filter must be empty")
	}
	if (&Filter{DOI: "10.1000/x"}).Empty() {
		t.Error("filter with DOI must not be empty")
	}
	if (&Filter{YearFrom: 2010}).Empty() {
		t.Error("filter with year bound must not be empty")
	}
}

func TestFilter_ToQdrant_EmptyIsNil(t *testing.T) {
	if (&Filter{}).toQdrant() != nil {
		t.Error("empty filter must compile to nil, not match-nothing")
	}
}

func TestFilter_ToQdrant_Conditions(t *testing.T) {
	f := &Filter{
		DeviationTypes:     []string{"knee_valgus"},
		ExerciseCategories: []string{"lower_body_compound"},
		EvidenceLevels:     []string{"meta-analysis", "systematic-review", "rct"},
		YearFrom:           2010,
	}

	compiled := f.toQdrant()
	if compiled == nil {
		t.Fatal("expected a filter")
	}
	if len(compiled.Must) != 4 {
		t.Fatalf("expected 4 conditions, got %d", len(compiled.Must))
	}

	byKey := map[string]*pb.FieldCondition{}
	for _, cond := range compiled.Must {
		field := cond.GetField()
		if field == nil {
			t.Fatal("expected only field conditions")
		}
		byKey[field.Key] = field
	}

	if dev := byKey["metadata.deviation_type"]; dev == nil || dev.Match.GetKeyword() != "knee_valgus" {
		t.Errorf("bad deviation condition: %v", byKey["metadata.deviation_type"])
	}
	if ev := byKey["metadata.evidence_level"]; ev == nil || len(ev.Match.GetKeywords().GetStrings()) != 3 {
		t.Errorf("bad evidence condition: %v", byKey["metadata.evidence_level"])
	}
	year := byKey["metadata.year"]
	if year == nil || year.Range == nil || year.Range.Gte == nil || *year.Range.Gte != 2010 {
		t.Errorf("bad year condition: %v", year)
	}
	if year != nil && year.Range != nil && year.Range.Lte != nil {
		t.Error("unbounded upper year must not set Lte")
	}
}

func TestFilter_ToQdrant_DOI(t *testing.T) {
	compiled := (&Filter{DOI: "10.1234/abc"}).toQdrant()
	if compiled == nil || len(compiled.Must) != 1 {
		t.Fatalf("expected exactly one condition: %v", compiled)
	}
	field := compiled.Must[0].GetField()
	if field.Key != "metadata.doi" || field.Match.GetKeyword() != "10.1234/abc" {
		t.Errorf("bad doi condition: %v", field)
	}
}
