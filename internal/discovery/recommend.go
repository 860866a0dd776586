package discovery

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/knot-matcher/internal/logger"
	"github.com/spigell/knot-matcher/internal/questionnaire"
	"github.com/spigell/knot-matcher/internal/store"
)

// Recommend loads every response from accessor, resolves the subject behind ref
// and runs a discovery pass for it with the engine defaults. An unknown or
// incomplete subject yields an empty list; only accessor failures are errors.
func (e *Engine) Recommend(ctx context.Context, accessor store.Accessor, ref questionnaire.SubjectRef, opts ...Option) ([]MatchResult, Stats, error) {
	responses, err := accessor.Responses(ctx)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("loading responses: %w", err)
	}

	subject, err := store.FindBySubject(responses, ref)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.logger.Info("no questionnaire response for subject",
				zap.String(logger.FieldSubjectID, ref.String()),
			)
			return []MatchResult{}, Stats{Pool: len(responses), SubjectRejected: err.Error()}, nil
		}
		return nil, Stats{}, err
	}

	if !subject.IsComplete {
		e.logger.Info("subject questionnaire is not complete",
			zap.String(logger.FieldSubjectID, ref.String()),
			zap.String(logger.FieldResponseID, subject.ID),
		)
		return []MatchResult{}, Stats{Pool: len(responses), SubjectRejected: "subject response is incomplete"}, nil
	}

	results, stats := e.FindMatches(ctx, subject, responses, opts...)
	return results, stats, nil
}
