package scoring

import (
	"github.com/spigell/knot-matcher/internal/catalog"
	"github.com/spigell/knot-matcher/internal/questionnaire"
)

// Similarity compares two answers to question q and returns a value in [0,1].
// The second result is false when the pair is unscored: an answer is missing,
// its kind does not fit the question, the question is free text, both choice
// sets are empty, or the scale has a single option.
func Similarity(q catalog.Question, a, b questionnaire.Answer) (float64, bool) {
	want := questionnaire.KindFor(q.Type)
	if a.Kind() != want || b.Kind() != want {
		return 0, false
	}

	switch q.Type {
	case catalog.SingleChoice, catalog.Boolean:
		if a.Equal(b) {
			return 1, true
		}
		return 0, true

	case catalog.MultipleChoice:
		return jaccard(a.Choices(), b.Choices())

	case catalog.Scale:
		n := len(q.Options)
		if n <= 1 {
			return 0, false
		}
		ia, _ := a.Index()
		ib, _ := b.Index()
		diff := ia - ib
		if diff < 0 {
			diff = -diff
		}
		return clamp01(1 - float64(diff)/float64(n-1)), true

	default:
		return 0, false
	}
}

func jaccard(a, b []string) (float64, bool) {
	union := make(map[string]struct{}, len(a)+len(b))
	inA := make(map[string]struct{}, len(a))
	for _, v := range a {
		inA[v] = struct{}{}
		union[v] = struct{}{}
	}

	shared := 0
	for _, v := range b {
		if _, ok := union[v]; !ok {
			union[v] = struct{}{}
			continue
		}
		if _, ok := inA[v]; ok {
			shared++
			delete(inA, v)
		}
	}

	if len(union) == 0 {
		return 0, false
	}
	return float64(shared) / float64(len(union)), true
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
