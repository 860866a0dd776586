package filtering

import (
	"slices"

	"github.com/spigell/knot-matcher/internal/questionnaire"
)

// Pool is an ordered set of candidate responses. Removal keeps the order of
// the remaining items so that ranking ties stay stable.
type Pool struct {
	Items []questionnaire.Response
}

// NewPool copies responses into a new pool.
func NewPool(responses []questionnaire.Response) *Pool {
	return &Pool{Items: slices.Clone(responses)}
}

func (p *Pool) Len() int {
	return len(p.Items)
}

// Exclude removes every response matching drop and returns the removed ids.
func (p *Pool) Exclude(drop func(questionnaire.Response) bool) []string {
	var excluded []string
	kept := p.Items[:0]
	for _, r := range p.Items {
		if drop(r) {
			excluded = append(excluded, r.ID)
			continue
		}
		kept = append(kept, r)
	}
	clear(p.Items[len(kept):])
	p.Items = kept
	return excluded
}
