package questionnaire

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/spigell/knot-matcher/internal/catalog"
)

// Record is the stored, untyped form of a response as it appears in response
// files and database rows.
type Record struct {
	ID          string         `mapstructure:"id" json:"id"`
	UserID      string         `mapstructure:"user_id" json:"user_id,omitempty"`
	LeadID      string         `mapstructure:"lead_id" json:"lead_id,omitempty"`
	Name        string         `mapstructure:"name" json:"name,omitempty"`
	Email       string         `mapstructure:"email" json:"email,omitempty"`
	Phone       string         `mapstructure:"phone" json:"phone,omitempty"`
	Answers     map[string]any `mapstructure:"answers" json:"answers"`
	IsComplete  bool           `mapstructure:"is_complete" json:"is_complete"`
	CreatedAt   time.Time      `mapstructure:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `mapstructure:"updated_at" json:"updated_at"`
	CompletedAt *time.Time     `mapstructure:"completed_at" json:"completed_at,omitempty"`
}

// DecodeRecord converts a generic map (a decoded JSON object or a database row)
// into a Record. Timestamps are accepted as RFC 3339 strings or time.Time values.
func DecodeRecord(raw map[string]any) (Record, error) {
	var rec Record
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		Result: &rec,
	})
	if err != nil {
		return Record{}, fmt.Errorf("creating record decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return Record{}, fmt.Errorf("decoding record: %w", err)
	}
	return rec, nil
}

// NewRecord renders r back into its stored form.
func NewRecord(r Response) Record {
	answers := make(map[string]any, len(r.Answers))
	for id, a := range r.Answers {
		if a.IsZero() {
			continue
		}
		answers[id] = a.Value()
	}
	return Record{
		ID:          r.ID,
		UserID:      r.Subject.UserID,
		LeadID:      r.Subject.LeadID,
		Name:        r.Identity.Name,
		Email:       r.Identity.Email,
		Phone:       r.Identity.Phone,
		Answers:     answers,
		IsComplete:  r.IsComplete,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		CompletedAt: r.CompletedAt,
	}
}

// Response types the record's answers using cat.
func (rec Record) Response(cat *catalog.Catalog) (Response, error) {
	answers, err := DecodeAnswers(cat, rec.Answers)
	if err != nil {
		return Response{}, fmt.Errorf("%w %q: %w", ErrMalformedResponse, rec.ID, err)
	}
	return Response{
		ID:      strings.TrimSpace(rec.ID),
		Subject: SubjectRef{UserID: strings.TrimSpace(rec.UserID), LeadID: strings.TrimSpace(rec.LeadID)},
		Identity: Identity{
			Name:  strings.TrimSpace(rec.Name),
			Email: strings.TrimSpace(rec.Email),
			Phone: strings.TrimSpace(rec.Phone),
		},
		Answers:     answers,
		IsComplete:  rec.IsComplete,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		CompletedAt: rec.CompletedAt,
	}, nil
}

// DecodeAnswers types raw answer values according to the catalog questions
// they belong to. Null and blank values are treated as unanswered.
func DecodeAnswers(cat *catalog.Catalog, raw map[string]any) (map[string]Answer, error) {
	answers := make(map[string]Answer, len(raw))
	var errs []error

	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		q, ok := cat.Question(id)
		if !ok {
			errs = append(errs, fmt.Errorf("%w %q", ErrUnknownQuestion, id))
			continue
		}
		a, err := decodeAnswer(q, raw[id])
		if err != nil {
			errs = append(errs, fmt.Errorf("question %q: %w", id, err))
			continue
		}
		if !a.IsZero() {
			answers[id] = a
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return answers, nil
}

func decodeAnswer(q catalog.Question, v any) (Answer, error) {
	if v == nil {
		return Answer{}, nil
	}

	switch q.Type {
	case catalog.SingleChoice, catalog.Boolean:
		switch val := v.(type) {
		case string:
			return NewChoice(val), nil
		case bool:
			if val {
				return NewChoice("Yes"), nil
			}
			return NewChoice("No"), nil
		}
	case catalog.MultipleChoice:
		switch val := v.(type) {
		case string:
			if strings.TrimSpace(val) == "" {
				return Answer{}, nil
			}
			return NewChoices(val), nil
		case []string:
			return NewChoices(val...), nil
		case []any:
			options := make([]string, 0, len(val))
			for _, item := range val {
				s, ok := item.(string)
				if !ok {
					return Answer{}, fmt.Errorf("multiple choice entry %v is not a string", item)
				}
				options = append(options, s)
			}
			return NewChoices(options...), nil
		}
	case catalog.Scale:
		return decodeIndex(q, v)
	case catalog.FreeText:
		if s, ok := v.(string); ok {
			return NewText(s), nil
		}
	}

	return Answer{}, fmt.Errorf("unsupported %T value for %s question", v, q.Type)
}

func decodeIndex(q catalog.Question, v any) (Answer, error) {
	switch val := v.(type) {
	case int:
		return NewIndex(val), nil
	case int32:
		return NewIndex(int(val)), nil
	case int64:
		return NewIndex(int(val)), nil
	case float64:
		if val != math.Trunc(val) {
			return Answer{}, fmt.Errorf("scale position %v is not an integer", val)
		}
		return NewIndex(int(val)), nil
	case json.Number:
		i, err := strconv.Atoi(val.String())
		if err != nil {
			return Answer{}, fmt.Errorf("scale position %q: %w", val, err)
		}
		return NewIndex(i), nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return Answer{}, nil
		}
		if idx, ok := q.OptionIndex(s); ok {
			return NewIndex(idx), nil
		}
		i, err := strconv.Atoi(s)
		if err != nil {
			return Answer{}, fmt.Errorf("scale answer %q is neither an option nor a position", s)
		}
		return NewIndex(i), nil
	}
	return Answer{}, fmt.Errorf("unsupported %T value for scale question", v)
}
