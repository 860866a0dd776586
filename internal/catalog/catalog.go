package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// AnswerType tells which answer shape a question accepts and how two answers are compared.
type AnswerType string

const (
	SingleChoice   AnswerType = "single_choice"
	MultipleChoice AnswerType = "multiple_choice"
	Scale          AnswerType = "scale"
	FreeText       AnswerType = "free_text"
	Boolean        AnswerType = "boolean"
)

var ErrInvalidCatalog = errors.New("invalid catalog")

//go:embed default.yaml
var defaultCatalog []byte

// Valid reports whether t is one of the supported answer types.
func (t AnswerType) Valid() bool {
	switch t {
	case SingleChoice, MultipleChoice, Scale, FreeText, Boolean:
		return true
	default:
		return false
	}
}

func (t AnswerType) needsOptions() bool {
	return t == SingleChoice || t == MultipleChoice || t == Scale
}

// Question is a single questionnaire definition.
// Order is used for display only and never affects scoring.
type Question struct {
	ID       string     `yaml:"id" json:"id"`
	Category string     `yaml:"category" json:"category"`
	Text     string     `yaml:"text" json:"text"`
	Type     AnswerType `yaml:"type" json:"type"`
	Options  []string   `yaml:"options,omitempty" json:"options,omitempty"`
	Required bool       `yaml:"required" json:"required"`
	Order    int        `yaml:"order" json:"order"`
}

// Catalog is an immutable, versioned, ordered list of questions.
type Catalog struct {
	version    string
	questions  []Question
	index      map[string]int
	categories []string
	byCategory map[string][]int
}

type document struct {
	Version   string     `yaml:"version"`
	Questions []Question `yaml:"questions"`
}

// New validates the questions and builds a catalog keeping their input order.
func New(version string, questions []Question) (*Catalog, error) {
	c := &Catalog{
		version:    strings.TrimSpace(version),
		questions:  make([]Question, 0, len(questions)),
		index:      make(map[string]int, len(questions)),
		byCategory: make(map[string][]int),
	}

	var errs []error
	for i, q := range questions {
		q.ID = strings.TrimSpace(q.ID)
		q.Category = strings.TrimSpace(q.Category)
		q.Options = slices.Clone(q.Options)

		switch {
		case q.ID == "":
			errs = append(errs, fmt.Errorf("question #%d: empty id", i))
			continue
		case q.Category == "":
			errs = append(errs, fmt.Errorf("question %q: empty category", q.ID))
			continue
		case !q.Type.Valid():
			errs = append(errs, fmt.Errorf("question %q: unknown answer type %q", q.ID, q.Type))
			continue
		case q.Type.needsOptions() && len(q.Options) == 0:
			errs = append(errs, fmt.Errorf("question %q: %s requires options", q.ID, q.Type))
			continue
		}
		if _, dup := c.index[q.ID]; dup {
			errs = append(errs, fmt.Errorf("question %q: duplicate id", q.ID))
			continue
		}

		pos := len(c.questions)
		c.questions = append(c.questions, q)
		c.index[q.ID] = pos
		if _, seen := c.byCategory[q.Category]; !seen {
			c.categories = append(c.categories, q.Category)
		}
		c.byCategory[q.Category] = append(c.byCategory[q.Category], pos)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, errors.Join(errs...))
	}
	if len(c.questions) == 0 {
		return nil, fmt.Errorf("%w: no questions", ErrInvalidCatalog)
	}

	return c, nil
}

// Parse builds a catalog from its YAML representation.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(doc.Version, doc.Questions)
}

// Load reads a YAML catalog from path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %q: %w", path, err)
	}
	return Parse(data)
}

// Default returns the built-in questionnaire.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("built-in catalog is broken: %v", err))
	}
	return c
}

func (c *Catalog) Version() string { return c.version }

func (c *Catalog) Len() int { return len(c.questions) }

// Question looks up a question by id.
func (c *Catalog) Question(id string) (Question, bool) {
	pos, ok := c.index[id]
	if !ok {
		return Question{}, false
	}
	return c.questions[pos].clone(), true
}

// Questions returns all questions in catalog order.
func (c *Catalog) Questions() []Question {
	out := make([]Question, len(c.questions))
	for i, q := range c.questions {
		out[i] = q.clone()
	}
	return out
}

// Categories returns category names in order of first appearance.
func (c *Catalog) Categories() []string {
	return slices.Clone(c.categories)
}

// ByCategory returns the questions of one category in catalog order.
func (c *Catalog) ByCategory(category string) []Question {
	positions := c.byCategory[category]
	out := make([]Question, 0, len(positions))
	for _, pos := range positions {
		out = append(out, c.questions[pos].clone())
	}
	return out
}

// Required returns ids of all required questions.
func (c *Catalog) Required() []string {
	var ids []string
	for _, q := range c.questions {
		if q.Required {
			ids = append(ids, q.ID)
		}
	}
	return ids
}

// Marshal renders the catalog back to YAML.
func (c *Catalog) Marshal() ([]byte, error) {
	return yaml.Marshal(document{Version: c.version, Questions: c.questions})
}

func (q Question) clone() Question {
	q.Options = slices.Clone(q.Options)
	return q
}

// OptionIndex returns the position of option in the question's option list.
func (q Question) OptionIndex(option string) (int, bool) {
	idx := slices.Index(q.Options, option)
	return idx, idx >= 0
}
