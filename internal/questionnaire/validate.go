package questionnaire

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spigell/knot-matcher/internal/catalog"
)

var (
	ErrMalformedResponse = errors.New("malformed response")
	ErrUnknownQuestion   = errors.New("unknown question")
)

// Validate checks that r is well formed against cat. Every problem found is
// reported; the result wraps ErrMalformedResponse.
// Option membership is not enforced so catalogs may evolve wording without
// invalidating stored answers.
func Validate(cat *catalog.Catalog, r Response) error {
	var errs []error

	if strings.TrimSpace(r.ID) == "" {
		errs = append(errs, errors.New("empty response id"))
	}
	if !r.Subject.Valid() {
		errs = append(errs, fmt.Errorf("subject must reference exactly one of user or lead (user=%q lead=%q)", r.Subject.UserID, r.Subject.LeadID))
	}

	ids := make([]string, 0, len(r.Answers))
	for id := range r.Answers {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		a := r.Answers[id]
		q, ok := cat.Question(id)
		if !ok {
			errs = append(errs, fmt.Errorf("%w %q", ErrUnknownQuestion, id))
			continue
		}
		if a.IsZero() {
			continue
		}
		if want := KindFor(q.Type); a.Kind() != want {
			errs = append(errs, fmt.Errorf("question %q: %s answer for %s question", id, a.Kind(), q.Type))
			continue
		}
		if i, ok := a.Index(); ok && (i < 0 || i >= len(q.Options)) {
			errs = append(errs, fmt.Errorf("question %q: scale index %d outside [0, %d]", id, i, len(q.Options)-1))
		}
	}

	if r.IsComplete {
		if missing := r.Missing(cat); len(missing) > 0 {
			errs = append(errs, fmt.Errorf("marked complete but missing required answers: %s", strings.Join(missing, ", ")))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w %q: %w", ErrMalformedResponse, r.ID, errors.Join(errs...))
}
