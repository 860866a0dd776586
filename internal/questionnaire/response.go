package questionnaire

import (
	"strings"
	"time"

	"github.com/spigell/knot-matcher/internal/catalog"
)

const (
	SubjectUser = "user"
	SubjectLead = "lead"
)

// SubjectRef points to the person behind a response: a registered user or a
// not-yet-registered lead, never both.
type SubjectRef struct {
	UserID string `json:"user_id,omitempty"`
	LeadID string `json:"lead_id,omitempty"`
}

func UserRef(id string) SubjectRef { return SubjectRef{UserID: strings.TrimSpace(id)} }

func LeadRef(id string) SubjectRef { return SubjectRef{LeadID: strings.TrimSpace(id)} }

// Valid reports whether exactly one of UserID and LeadID is set.
func (s SubjectRef) Valid() bool {
	return (s.UserID == "") != (s.LeadID == "")
}

// Kind returns "user", "lead" or an empty string for an invalid ref.
func (s SubjectRef) Kind() string {
	switch {
	case !s.Valid():
		return ""
	case s.UserID != "":
		return SubjectUser
	default:
		return SubjectLead
	}
}

// ID returns whichever identifier is set.
func (s SubjectRef) ID() string {
	if s.UserID != "" {
		return s.UserID
	}
	return s.LeadID
}

func (s SubjectRef) String() string {
	if !s.Valid() {
		return "invalid"
	}
	return s.Kind() + ":" + s.ID()
}

// Identity is the optional contact metadata attached to a response.
type Identity struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Response is one person's answer set.
type Response struct {
	ID          string
	Subject     SubjectRef
	Identity    Identity
	Answers     map[string]Answer
	IsComplete  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	// Source names where the response was loaded from, for logging only.
	Source string
}

// Answer returns the answer for question id when one is present.
func (r Response) Answer(id string) (Answer, bool) {
	a, ok := r.Answers[id]
	if !ok || a.IsZero() {
		return Answer{}, false
	}
	return a, true
}

// Choice is a shortcut for the selected option of a single choice question.
func (r Response) Choice(id string) (string, bool) {
	a, ok := r.Answer(id)
	if !ok {
		return "", false
	}
	return a.Choice()
}

// Missing returns the required question ids the response has no answer for.
func (r Response) Missing(cat *catalog.Catalog) []string {
	var missing []string
	for _, id := range cat.Required() {
		if a, ok := r.Answers[id]; !ok || !a.Answered() {
			missing = append(missing, id)
		}
	}
	return missing
}
