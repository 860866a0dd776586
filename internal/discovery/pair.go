package discovery

import (
	"context"

	"go.uber.org/zap"

	"github.com/spigell/knot-matcher/internal/logger"
	"github.com/spigell/knot-matcher/internal/questionnaire"
	"github.com/spigell/knot-matcher/internal/scoring"
)

// PairReport explains how two responses compare regardless of thresholds.
type PairReport struct {
	A              string                  `json:"a"`
	B              string                  `json:"b"`
	Eligible       bool                    `json:"eligible"`
	Score          int                     `json:"score"`
	Tier           string                  `json:"tier"`
	CategoryScores []scoring.CategoryScore `json:"category_scores"`
	Dealbreakers   []string                `json:"dealbreakers"`
	SharedTraits   []string                `json:"shared_traits"`
	// Problems lists validation failures of either side; scores are still
	// computed from whatever answers are usable.
	Problems []string `json:"problems,omitempty"`
}

// Pair compares a with b for auditing. Unlike FindMatches it reports
// ineligible and low scoring pairs instead of dropping them.
func (e *Engine) Pair(_ context.Context, a, b questionnaire.Response) PairReport {
	report := PairReport{
		A:        a.ID,
		B:        b.ID,
		Eligible: e.policy.IsEligible(a, b),
	}

	for _, r := range []questionnaire.Response{a, b} {
		if err := questionnaire.Validate(e.catalog, r); err != nil {
			report.Problems = append(report.Problems, err.Error())
		}
	}

	report.CategoryScores = e.scorer.CategoryScores(a, b)
	report.Score = scoring.Overall(report.CategoryScores)
	report.Tier = Tier(report.Score)
	report.Dealbreakers = e.detector.Detect(a, b)
	report.SharedTraits = SharedTraits(e.catalog, a, b, e.traitSkip...)

	e.logger.Debug("pair compared",
		zap.String(logger.FieldResponseID, a.ID),
		zap.String(logger.FieldCandidateID, b.ID),
		zap.Int(logger.FieldScore, report.Score),
		zap.Bool("eligible", report.Eligible),
	)

	return report
}
