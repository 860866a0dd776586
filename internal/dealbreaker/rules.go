package dealbreaker

import (
	"fmt"
	"strings"

	"github.com/spigell/knot-matcher/internal/catalog"
	"github.com/spigell/knot-matcher/internal/questionnaire"
)

// Rule inspects a pair of responses for one hard incompatibility. Check must
// be symmetric in its verdict and must not depend on any score.
type Rule interface {
	Name() string
	Check(a, b questionnaire.Response) (string, bool)
}

// OpposingChoices fires when one party's answer contains Want and the other's
// contains Refuse. Matching is a case-insensitive substring test.
type OpposingChoices struct {
	RuleName    string
	Question    string
	Want        string
	Refuse      string
	Description string
}

func (r OpposingChoices) Name() string { return r.RuleName }

func (r OpposingChoices) Check(a, b questionnaire.Response) (string, bool) {
	va, okA := choiceLower(a, r.Question)
	vb, okB := choiceLower(b, r.Question)
	if !okA || !okB {
		return "", false
	}
	want, refuse := strings.ToLower(r.Want), strings.ToLower(r.Refuse)
	if (strings.Contains(va, want) && strings.Contains(vb, refuse)) ||
		(strings.Contains(vb, want) && strings.Contains(va, refuse)) {
		return r.Description, true
	}
	return "", false
}

// ScaleGap fires when two scale answers are MinGap or more steps apart once
// the scale is normalised to five points.
type ScaleGap struct {
	RuleName    string
	Question    catalog.Question
	MinGap      float64
	Description string
}

func (r ScaleGap) Name() string { return r.RuleName }

func (r ScaleGap) Check(a, b questionnaire.Response) (string, bool) {
	n := len(r.Question.Options)
	if n <= 1 {
		return "", false
	}
	ia, okA := index(a, r.Question.ID)
	ib, okB := index(b, r.Question.ID)
	if !okA || !okB {
		return "", false
	}
	gap := float64(ia - ib)
	if gap < 0 {
		gap = -gap
	}
	gap = gap * 4 / float64(n-1)
	if gap+1e-9 >= r.MinGap {
		return r.Description, true
	}
	return "", false
}

// DirectionalPair fires when one party answered From and the other answered To,
// in either order.
type DirectionalPair struct {
	RuleName    string
	Question    string
	From        string
	To          string
	Description string
}

func (r DirectionalPair) Name() string { return r.RuleName }

func (r DirectionalPair) Check(a, b questionnaire.Response) (string, bool) {
	va, okA := a.Choice(r.Question)
	vb, okB := b.Choice(r.Question)
	if !okA || !okB {
		return "", false
	}
	if (va == r.From && vb == r.To) || (vb == r.From && va == r.To) {
		return r.Description, true
	}
	return "", false
}

// Violation decides whether other violates a deal-breaker that self declared.
type Violation func(self, other questionnaire.Response) bool

// DeclaredDealbreaker checks the deal-breakers a party selected on a multiple
// choice question against the other party's answers, in both directions.
// Selections without a registered violation are ignored.
type DeclaredDealbreaker struct {
	RuleName   string
	Question   string
	Violations map[string]Violation
	// Order fixes the reporting order of fired selections.
	Order []string
}

func (r DeclaredDealbreaker) Name() string { return r.RuleName }

func (r DeclaredDealbreaker) Check(a, b questionnaire.Response) (string, bool) {
	var fired []string
	for _, option := range r.Order {
		violated, ok := r.Violations[option]
		if !ok {
			continue
		}
		if (declared(a, r.Question, option) && violated(a, b)) ||
			(declared(b, r.Question, option) && violated(b, a)) {
			fired = append(fired, option)
		}
	}
	if len(fired) == 0 {
		return "", false
	}
	return fmt.Sprintf("Declared deal-breaker: %s", strings.Join(fired, ", ")), true
}

func declared(r questionnaire.Response, question, option string) bool {
	a, ok := r.Answer(question)
	return ok && a.Has(option)
}

func choiceLower(r questionnaire.Response, question string) (string, bool) {
	v, ok := r.Choice(question)
	return strings.ToLower(v), ok
}

func index(r questionnaire.Response, question string) (int, bool) {
	a, ok := r.Answer(question)
	if !ok {
		return 0, false
	}
	return a.Index()
}
