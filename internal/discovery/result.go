package discovery

import (
	"github.com/spigell/knot-matcher/internal/scoring"
)

// MatchResult is one ranked, explained match. Concerns lists weak categories
// first, then deal-breaker descriptions; Dealbreakers repeats the latter.
type MatchResult struct {
	Candidate        MatchCandidate          `json:"candidate"`
	Score            int                     `json:"score"`
	SharedTraits     []string                `json:"shared_traits"`
	StrongCategories []string                `json:"strong_categories"`
	Concerns         []string                `json:"concerns"`
	Dealbreakers     []string                `json:"dealbreakers,omitempty"`
	CategoryScores   []scoring.CategoryScore `json:"category_scores,omitempty"`
	Summary          string                  `json:"summary"`
	// Narrative is an optional model-written text shown next to Summary.
	Narrative string `json:"narrative,omitempty"`
}

// Stats counts what happened to every pool entry during a pass.
type Stats struct {
	Pool           int `json:"pool"`
	Self           int `json:"self"`
	Excluded       int `json:"excluded"`
	Incomplete     int `json:"incomplete"`
	Malformed      int `json:"malformed"`
	Ineligible     int `json:"ineligible"`
	Unprojectable  int `json:"unprojectable"`
	BelowThreshold int `json:"below_threshold"`
	Matched        int `json:"matched"`
	Returned       int `json:"returned"`
	// SubjectRejected holds the reason the subject itself could not be matched.
	SubjectRejected string `json:"subject_rejected,omitempty"`
}

const (
	OutcomeSelf           = "self"
	OutcomeExcluded       = "excluded"
	OutcomeIncomplete     = "incomplete"
	OutcomeMalformed      = "malformed"
	OutcomeIneligible     = "ineligible"
	OutcomeUnprojectable  = "unprojectable"
	OutcomeBelowThreshold = "below_threshold"
	OutcomeMatched        = "matched"
)

// Outcomes maps every outcome label to its count.
func (s Stats) Outcomes() map[string]int {
	return map[string]int{
		OutcomeSelf:           s.Self,
		OutcomeExcluded:       s.Excluded,
		OutcomeIncomplete:     s.Incomplete,
		OutcomeMalformed:      s.Malformed,
		OutcomeIneligible:     s.Ineligible,
		OutcomeUnprojectable:  s.Unprojectable,
		OutcomeBelowThreshold: s.BelowThreshold,
		OutcomeMatched:        s.Matched,
	}
}
