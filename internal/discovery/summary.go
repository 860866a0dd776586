package discovery

import (
	"slices"
	"strings"

	"github.com/spigell/knot-matcher/internal/catalog"
	"github.com/spigell/knot-matcher/internal/questionnaire"
)

// Tier names the qualitative band of a score.
func Tier(score int) string {
	switch {
	case score >= 90:
		return "Exceptional"
	case score >= 80:
		return "Very strong"
	case score >= 70:
		return "Good"
	default:
		return "Moderate"
	}
}

var tierOpenings = map[string]string{
	"Exceptional": "Exceptional compatibility!",
	"Very strong": "Very strong compatibility.",
	"Good":        "Good compatibility potential.",
	"Moderate":    "Moderate compatibility.",
}

// Summarize renders the deterministic narrative of a match.
func Summarize(score int, strong, traits, concerns []string) string {
	clauses := []string{tierOpenings[Tier(score)]}

	if len(strong) > 0 {
		clauses = append(clauses, "You align particularly well in "+strings.Join(firstN(strong, 2), " and ")+".")
	}

	if len(traits) > 0 {
		clauses = append(clauses, "You both value "+strings.Join(firstN(traits, 2), " and ")+".")
	}

	if len(concerns) > 0 {
		clauses = append(clauses, "Consider discussing "+concerns[0]+" to ensure alignment.")
	} else {
		clauses = append(clauses, "No significant concerns identified.")
	}

	return strings.Join(clauses, " ")
}

// SharedTraits flattens the intersections of both parties' multiple choice
// answers. Questions follow catalog order, options follow a's answer order,
// and duplicates across questions are dropped. Questions listed in skip are
// ignored.
func SharedTraits(cat *catalog.Catalog, a, b questionnaire.Response, skip ...string) []string {
	var traits []string
	seen := make(map[string]struct{})

	for _, q := range cat.Questions() {
		if q.Type != catalog.MultipleChoice || slices.Contains(skip, q.ID) {
			continue
		}
		aa, okA := a.Answer(q.ID)
		bb, okB := b.Answer(q.ID)
		if !okA || !okB {
			continue
		}
		for _, option := range aa.Choices() {
			if !bb.Has(option) {
				continue
			}
			if _, dup := seen[option]; dup {
				continue
			}
			seen[option] = struct{}{}
			traits = append(traits, option)
		}
	}

	return traits
}

func firstN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
