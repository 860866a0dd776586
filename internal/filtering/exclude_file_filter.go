package filtering

import (
	"context"

	"github.com/spigell/knot-matcher/internal/questionnaire"
)

const NameExcluded = "excluded"

type excludedFilter struct {
	ids map[string]struct{}
}

// NewExcluded removes candidates whose response id is listed in ids.
func NewExcluded(ids []string) Filter {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return &excludedFilter{ids: set}
}

func (f *excludedFilter) Name() string { return NameExcluded }

func (f *excludedFilter) Validate() error { return nil }

func (f *excludedFilter) Apply(_ context.Context, p *Pool) (*Pool, Step, error) {
	if len(f.ids) == 0 {
		return p, Step{Initial: p.Len(), Left: p.Len()}, nil
	}
	return apply(p, func(r questionnaire.Response) bool {
		_, ok := f.ids[r.ID]
		return ok
	})
}
