package discovery

import (
	"github.com/spigell/knot-matcher/internal/questionnaire"
)

const anonymousName = "Anonymous"

// MatchCandidate is a read-only view of a candidate built from a response.
type MatchCandidate struct {
	ResponseID string                   `json:"response_id"`
	Subject    questionnaire.SubjectRef `json:"subject"`
	Kind       string                   `json:"kind"`
	Name       string                   `json:"name"`
	Email      string                   `json:"email,omitempty"`
	Phone      string                   `json:"phone,omitempty"`
	Location   string                   `json:"location,omitempty"`
	Profession string                   `json:"profession,omitempty"`
	Education  string                   `json:"education,omitempty"`
}

// NewCandidate projects r into a candidate. A response carrying neither a name
// nor an email cannot be presented and is rejected.
func NewCandidate(r questionnaire.Response) (MatchCandidate, bool) {
	if r.Identity.Name == "" && r.Identity.Email == "" {
		return MatchCandidate{}, false
	}

	c := MatchCandidate{
		ResponseID: r.ID,
		Subject:    r.Subject,
		Kind:       r.Subject.Kind(),
		Name:       r.Identity.Name,
		Email:      r.Identity.Email,
		Phone:      r.Identity.Phone,
	}
	if c.Name == "" {
		c.Name = anonymousName
	}
	if c.Kind == "" {
		c.Kind = questionnaire.SubjectUser
	}

	c.Location, _ = r.Choice("living_situation_preference")
	c.Profession, _ = r.Choice("profession")
	c.Education, _ = r.Choice("education_level")

	return c, true
}
