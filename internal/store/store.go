package store

import (
	"context"
	"errors"
	"slices"

	"github.com/spigell/knot-matcher/internal/questionnaire"
)

var ErrNotFound = errors.New("response not found")

// Accessor supplies every questionnaire response available for matching.
// Implementations do their own I/O; the matching engine only sees the result.
type Accessor interface {
	Responses(ctx context.Context) ([]questionnaire.Response, error)
}

// Static is an in-memory Accessor.
type Static []questionnaire.Response

func (s Static) Responses(context.Context) ([]questionnaire.Response, error) {
	return slices.Clone(s), nil
}

// FindByID returns the response with the given id.
func FindByID(responses []questionnaire.Response, id string) (questionnaire.Response, error) {
	for _, r := range responses {
		if r.ID == id {
			return r, nil
		}
	}
	return questionnaire.Response{}, ErrNotFound
}

// FindBySubject returns the most recently updated response of the person
// behind ref. Among equally recent responses the first one wins.
func FindBySubject(responses []questionnaire.Response, ref questionnaire.SubjectRef) (questionnaire.Response, error) {
	if !ref.Valid() {
		return questionnaire.Response{}, ErrNotFound
	}

	found := -1
	for i, r := range responses {
		if r.Subject != ref {
			continue
		}
		if found < 0 || r.UpdatedAt.After(responses[found].UpdatedAt) {
			found = i
		}
	}
	if found < 0 {
		return questionnaire.Response{}, ErrNotFound
	}
	return responses[found], nil
}
