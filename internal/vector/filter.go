package vector

import (
	pb "github.com/qdrant/go-client/qdrant"
)

// Filter expresses the domain-level search predicates independently of the
// engine's wire format. All populated fields are conjunctive. A filter with
// no populated fields means "no filter", never "match nothing".
type Filter struct {
	DeviationTypes     []string
	ExerciseCategories []string
	EvidenceLevels     []string
	DOI                string
	YearFrom           int
	YearTo             int
}

// Empty reports whether no predicate is populated.
func (f *Filter) Empty() bool {
	if f == nil {
		return true
	}
	return len(f.DeviationTypes) == 0 &&
		len(f.ExerciseCategories) == 0 &&
		len(f.EvidenceLevels) == 0 &&
		f.DOI == "" &&
		f.YearFrom == 0 &&
		f.YearTo == 0
}

// toQdrant compiles the filter into the engine's native DSL. Returns nil
// for an empty filter so the engine searches unfiltered.
func (f *Filter) toQdrant() *pb.Filter {
	if f.Empty() {
		return nil
	}

	var must []*pb.Condition

	if cond := matchAny("metadata.deviation_type", f.DeviationTypes); cond != nil {
		must = append(must, cond)
	}
	if cond := matchAny("metadata.exercise_category", f.ExerciseCategories); cond != nil {
		must = append(must, cond)
	}
	if cond := matchAny("metadata.evidence_level", f.EvidenceLevels); cond != nil {
		must = append(must, cond)
	}
	if f.DOI != "" {
		must = append(must, matchKeyword("metadata.doi", f.DOI))
	}
	if f.YearFrom != 0 || f.YearTo != 0 {
		r := &pb.Range{}
		if f.YearFrom != 0 {
			gte := float64(f.YearFrom)
			r.Gte = &gte
		}
		if f.YearTo != 0 {
			lte := float64(f.YearTo)
			r.Lte = &lte
		}
		must = append(must, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{Key: "metadata.year", Range: r},
			},
		})
	}

	return &pb.Filter{Must: must}
}

// matchAny builds an any-of keyword condition; a single value compiles to
// an exact match.
func matchAny(key string, values []string) *pb.Condition {
	switch len(values) {
	case 0:
		return nil
	case 1:
		return matchKeyword(key, values[0])
	default:
		return &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: key,
					Match: &pb.Match{
						MatchValue: &pb.Match_Keywords{
							Keywords: &pb.RepeatedStrings{Strings: values},
						},
					},
				},
			},
		}
	}
}

func matchKeyword(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
