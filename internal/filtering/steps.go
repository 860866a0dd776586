package filtering

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spigell/knot-matcher/internal/catalog"
	"github.com/spigell/knot-matcher/internal/eligibility"
	"github.com/spigell/knot-matcher/internal/logger"
	"github.com/spigell/knot-matcher/internal/questionnaire"
)

const (
	NameSelf        = "self"
	NameIncomplete  = "incomplete"
	NameMalformed   = "malformed"
	NameEligibility = "eligibility"
)

func apply(p *Pool, drop func(questionnaire.Response) bool) (*Pool, Step, error) {
	initial := p.Len()
	excluded := p.Exclude(drop)
	return p, Step{Initial: initial, Dropped: len(excluded), Left: p.Len(), Excluded: excluded}, nil
}

type selfFilter struct {
	subject questionnaire.Response
}

// NewSelf removes the subject's own response and any other response of the same person.
func NewSelf(subject questionnaire.Response) Filter {
	return &selfFilter{subject: subject}
}

func (f *selfFilter) Name() string { return NameSelf }

func (f *selfFilter) Validate() error {
	if f.subject.ID == "" {
		return errors.New("subject response id is required")
	}
	return nil
}

func (f *selfFilter) Apply(_ context.Context, p *Pool) (*Pool, Step, error) {
	return apply(p, func(r questionnaire.Response) bool {
		if r.ID == f.subject.ID {
			return true
		}
		return f.subject.Subject.Valid() && r.Subject == f.subject.Subject
	})
}

type incompleteFilter struct{}

// NewIncomplete removes responses that are not marked complete.
func NewIncomplete() Filter {
	return &incompleteFilter{}
}

func (f *incompleteFilter) Name() string { return NameIncomplete }

func (f *incompleteFilter) Validate() error { return nil }

func (f *incompleteFilter) Apply(_ context.Context, p *Pool) (*Pool, Step, error) {
	return apply(p, func(r questionnaire.Response) bool { return !r.IsComplete })
}

type malformedFilter struct {
	catalog *catalog.Catalog
	logger  *zap.Logger
}

// NewMalformed removes responses that fail structural validation against the catalog.
func NewMalformed(cat *catalog.Catalog, l *zap.Logger) Filter {
	return &malformedFilter{catalog: cat, logger: logger.WithFields(l)}
}

func (f *malformedFilter) Name() string { return NameMalformed }

func (f *malformedFilter) Validate() error {
	if f.catalog == nil {
		return errors.New("catalog is required")
	}
	return nil
}

func (f *malformedFilter) Apply(_ context.Context, p *Pool) (*Pool, Step, error) {
	return apply(p, func(r questionnaire.Response) bool {
		err := questionnaire.Validate(f.catalog, r)
		if err != nil {
			f.logger.Debug("skipping malformed response",
				zap.String(logger.FieldResponseID, r.ID),
				zap.String(logger.FieldReason, err.Error()),
			)
		}
		return err != nil
	})
}

type eligibilityFilter struct {
	subject questionnaire.Response
	policy  eligibility.Policy
}

// NewEligibility removes candidates that do not mutually satisfy the subject's preferences.
func NewEligibility(subject questionnaire.Response, policy eligibility.Policy) Filter {
	return &eligibilityFilter{subject: subject, policy: policy}
}

func (f *eligibilityFilter) Name() string { return NameEligibility }

func (f *eligibilityFilter) Validate() error {
	if f.policy.IdentityQuestion == "" || f.policy.PreferenceQuestion == "" {
		return errors.New("eligibility policy is not configured")
	}
	return nil
}

func (f *eligibilityFilter) Apply(_ context.Context, p *Pool) (*Pool, Step, error) {
	return apply(p, func(r questionnaire.Response) bool {
		return !f.policy.IsEligible(f.subject, r)
	})
}
