package scoring

import (
	"math"

	"github.com/spigell/knot-matcher/internal/catalog"
	"github.com/spigell/knot-matcher/internal/questionnaire"
)

const (
	// StrongThreshold marks a category as an area of strong alignment.
	StrongThreshold = 80.0
	// ConcernThreshold marks a category as a concern.
	ConcernThreshold = 50.0
)

// CategoryScore is the outcome for one category of a pair.
type CategoryScore struct {
	Category string  `json:"category"`
	Score    float64 `json:"score"`
	// Scored is the number of questions both parties answered in a comparable way.
	Scored int     `json:"scored"`
	Weight float64 `json:"weight"`

	sum float64
}

func (c CategoryScore) Strong() bool { return c.Score >= StrongThreshold }

func (c CategoryScore) Concern() bool { return c.Score < ConcernThreshold }

// Scorer aggregates question similarities into category and overall scores.
// It holds no mutable state and is safe for concurrent use.
type Scorer struct {
	catalog *catalog.Catalog
	weights Weights
}

func NewScorer(cat *catalog.Catalog, weights Weights) *Scorer {
	return &Scorer{catalog: cat, weights: weights}
}

type tally struct {
	sum   float64
	count int
}

func (s *Scorer) tallyCategory(category string, a, b questionnaire.Response) tally {
	var t tally
	for _, q := range s.catalog.ByCategory(category) {
		if sim, ok := s.similarity(q, a, b); ok {
			t.sum += sim
			t.count++
		}
	}
	return t
}

func (s *Scorer) similarity(q catalog.Question, a, b questionnaire.Response) (float64, bool) {
	aa, ok := a.Answer(q.ID)
	if !ok {
		return 0, false
	}
	bb, ok := b.Answer(q.ID)
	if !ok {
		return 0, false
	}
	return Similarity(q, aa, bb)
}

// CategoryScore returns 100 times the mean similarity of the category's
// mutually answered questions, or 0 when there are none.
func (s *Scorer) CategoryScore(category string, a, b questionnaire.Response) float64 {
	return s.tallyCategory(category, a, b).score()
}

// CategoryScores scores every catalog category in catalog order.
func (s *Scorer) CategoryScores(a, b questionnaire.Response) []CategoryScore {
	categories := s.catalog.Categories()
	out := make([]CategoryScore, 0, len(categories))
	for _, category := range categories {
		t := s.tallyCategory(category, a, b)
		out = append(out, CategoryScore{
			Category: category,
			Score:    t.score(),
			Scored:   t.count,
			Weight:   s.weights.Of(category),
			sum:      t.sum,
		})
	}
	return out
}

// OverallScore is the weighted mean similarity over all scored questions,
// scaled to 0..100 and rounded half up. Categories weigh in proportionally to
// the number of questions they scored.
func (s *Scorer) OverallScore(a, b questionnaire.Response) int {
	return Overall(s.CategoryScores(a, b))
}

// Overall folds the result of CategoryScores into the overall score.
func Overall(scores []CategoryScore) int {
	var num, den float64
	for _, c := range scores {
		if c.Scored == 0 {
			continue
		}
		num += c.Weight * c.sum
		den += c.Weight * float64(c.Scored)
	}
	if den == 0 {
		return 0
	}
	return roundScore(100 * num / den)
}

func (t tally) score() float64 {
	if t.count == 0 {
		return 0
	}
	return 100 * t.sum / float64(t.count)
}

func roundScore(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	r := int(math.Floor(v + 0.5 + 1e-9))
	switch {
	case r < 0:
		return 0
	case r > 100:
		return 100
	default:
		return r
	}
}
