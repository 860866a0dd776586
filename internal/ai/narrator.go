// Package ai lets a language model describe a match in prose next to the
// rule-based summary.
package ai

import (
	"context"

	"go.uber.org/zap"

	"github.com/spigell/knot-matcher/internal/discovery"
	"github.com/spigell/knot-matcher/internal/logger"
)

type Narrative struct {
	Text       string
	Icebreaker string
	Raw        string
}

type Narrator interface {
	Narrate(ctx context.Context, match discovery.MatchResult) (*Narrative, error)
}

// Annotate fills Narrative of every result. A failed narration is logged and
// leaves the result untouched; only context cancellation stops the loop.
func Annotate(ctx context.Context, n Narrator, results []discovery.MatchResult, l *zap.Logger) error {
	if n == nil {
		return nil
	}
	l = logger.WithFields(l)

	for i := range results {
		if err := ctx.Err(); err != nil {
			return err
		}

		narrative, err := n.Narrate(ctx, results[i])
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.Warn("narration failed",
				zap.String(logger.FieldCandidateID, results[i].Candidate.ResponseID),
				zap.Error(err),
			)
			continue
		}

		results[i].Narrative = narrative.Text
		if narrative.Icebreaker != "" {
			results[i].Narrative += "\nIcebreaker: " + narrative.Icebreaker
		}
	}
	return nil
}
