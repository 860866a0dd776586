package eligibility

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spigell/knot-matcher/internal/catalog"
	"github.com/spigell/knot-matcher/internal/questionnaire"
)

var ErrInvalidPolicy = errors.New("invalid eligibility policy")

const (
	DefaultIdentityQuestion   = "gender"
	DefaultPreferenceQuestion = "looking_for_gender"
	DefaultOpenValue          = "Any gender"
)

// Policy describes which answers carry a party's self-identifier and its
// preference for the other party.
type Policy struct {
	IdentityQuestion   string
	PreferenceQuestion string
	// OpenValues are preferences that admit every identity.
	OpenValues []string
	// Aliases maps a preference to the identities it admits besides itself,
	// e.g. "Women only" -> ["Female"].
	Aliases map[string][]string
}

// NewPolicy validates p. When cat is not nil both questions must exist in it.
func NewPolicy(p Policy, cat *catalog.Catalog) (Policy, error) {
	p.IdentityQuestion = strings.TrimSpace(p.IdentityQuestion)
	p.PreferenceQuestion = strings.TrimSpace(p.PreferenceQuestion)

	var errs []error
	if p.IdentityQuestion == "" {
		errs = append(errs, errors.New("identity question is empty"))
	}
	if p.PreferenceQuestion == "" {
		errs = append(errs, errors.New("preference question is empty"))
	}
	if cat != nil {
		for _, id := range []string{p.IdentityQuestion, p.PreferenceQuestion} {
			if id == "" {
				continue
			}
			if _, ok := cat.Question(id); !ok {
				errs = append(errs, fmt.Errorf("question %q is not in catalog %q", id, cat.Version()))
			}
		}
	}
	if len(errs) > 0 {
		return Policy{}, fmt.Errorf("%w: %w", ErrInvalidPolicy, errors.Join(errs...))
	}

	aliases := make(map[string][]string, len(p.Aliases))
	for pref, ids := range p.Aliases {
		aliases[normalize(pref)] = slices.Clone(ids)
	}
	p.Aliases = aliases
	p.OpenValues = slices.Clone(p.OpenValues)

	return p, nil
}

// DefaultPolicy matches the built-in catalog: gender against looking_for_gender.
func DefaultPolicy() Policy {
	return Policy{
		IdentityQuestion:   DefaultIdentityQuestion,
		PreferenceQuestion: DefaultPreferenceQuestion,
		OpenValues:         []string{DefaultOpenValue},
	}
}

// Admits reports whether a stated preference accepts identity.
func (p Policy) Admits(preference, identity string) bool {
	pref, id := normalize(preference), normalize(identity)
	if pref == "" || id == "" {
		return false
	}
	for _, open := range p.OpenValues {
		if normalize(open) == pref {
			return true
		}
	}
	if pref == id {
		return true
	}
	for _, alias := range p.Aliases[pref] {
		if normalize(alias) == id {
			return true
		}
	}
	return false
}

// IsEligible reports whether both parties' preferences admit each other.
// A party without an identity or a preference is never eligible.
func (p Policy) IsEligible(a, b questionnaire.Response) bool {
	idA, okA := a.Choice(p.IdentityQuestion)
	idB, okB := b.Choice(p.IdentityQuestion)
	prefA, okPA := a.Choice(p.PreferenceQuestion)
	prefB, okPB := b.Choice(p.PreferenceQuestion)
	if !okA || !okB || !okPA || !okPB {
		return false
	}
	return p.Admits(prefA, idB) && p.Admits(prefB, idA)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
