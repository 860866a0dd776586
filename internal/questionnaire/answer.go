package questionnaire

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spigell/knot-matcher/internal/catalog"
)

// Kind is the shape of an answer value.
type Kind int

const (
	KindNone Kind = iota
	// KindChoice holds one option; used by single choice and boolean questions.
	KindChoice
	// KindChoices holds a set of options; used by multiple choice questions.
	KindChoices
	// KindIndex holds a position in a scale's option list.
	KindIndex
	// KindText holds free text.
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindChoice:
		return "choice"
	case KindChoices:
		return "choices"
	case KindIndex:
		return "index"
	case KindText:
		return "text"
	default:
		return "none"
	}
}

// KindFor maps a question answer type to the answer kind it accepts.
func KindFor(t catalog.AnswerType) Kind {
	switch t {
	case catalog.SingleChoice, catalog.Boolean:
		return KindChoice
	case catalog.MultipleChoice:
		return KindChoices
	case catalog.Scale:
		return KindIndex
	case catalog.FreeText:
		return KindText
	default:
		return KindNone
	}
}

// Answer is a tagged union of the answer shapes. The zero value means "not answered".
type Answer struct {
	kind    Kind
	choice  string
	choices []string
	index   int
	text    string
}

// NewChoice returns a single option answer. Blank input yields the zero Answer.
func NewChoice(option string) Answer {
	option = strings.TrimSpace(option)
	if option == "" {
		return Answer{}
	}
	return Answer{kind: KindChoice, choice: option}
}

// NewChoices returns a set answer. Blank entries are dropped and duplicates
// collapse to their first occurrence.
func NewChoices(options ...string) Answer {
	set := make([]string, 0, len(options))
	for _, o := range options {
		o = strings.TrimSpace(o)
		if o == "" || slices.Contains(set, o) {
			continue
		}
		set = append(set, o)
	}
	return Answer{kind: KindChoices, choices: set}
}

func NewIndex(i int) Answer {
	return Answer{kind: KindIndex, index: i}
}

// NewText returns a free text answer. Blank input yields the zero Answer.
func NewText(s string) Answer {
	s = strings.TrimSpace(s)
	if s == "" {
		return Answer{}
	}
	return Answer{kind: KindText, text: s}
}

func (a Answer) Kind() Kind { return a.kind }

func (a Answer) IsZero() bool { return a.kind == KindNone }

// Answered reports whether the answer counts toward required-question completeness.
func (a Answer) Answered() bool {
	switch a.kind {
	case KindNone:
		return false
	case KindChoices:
		return len(a.choices) > 0
	default:
		return true
	}
}

func (a Answer) Choice() (string, bool) {
	return a.choice, a.kind == KindChoice
}

// Choices returns a copy of the selected options; nil for other kinds.
func (a Answer) Choices() []string {
	if a.kind != KindChoices {
		return nil
	}
	return slices.Clone(a.choices)
}

func (a Answer) Index() (int, bool) {
	return a.index, a.kind == KindIndex
}

// Has reports whether option is part of a choice or choices answer.
func (a Answer) Has(option string) bool {
	switch a.kind {
	case KindChoice:
		return a.choice == option
	case KindChoices:
		return slices.Contains(a.choices, option)
	default:
		return false
	}
}

// Value returns the raw form used in stored records.
func (a Answer) Value() any {
	switch a.kind {
	case KindChoice:
		return a.choice
	case KindChoices:
		return slices.Clone(a.choices)
	case KindIndex:
		return a.index
	case KindText:
		return a.text
	default:
		return nil
	}
}

// Equal compares two answers; choice sets compare without regard to order.
func (a Answer) Equal(b Answer) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindChoice:
		return a.choice == b.choice
	case KindChoices:
		if len(a.choices) != len(b.choices) {
			return false
		}
		for _, c := range a.choices {
			if !slices.Contains(b.choices, c) {
				return false
			}
		}
		return true
	case KindIndex:
		return a.index == b.index
	case KindText:
		return a.text == b.text
	default:
		return true
	}
}

func (a Answer) String() string {
	switch a.kind {
	case KindChoice:
		return a.choice
	case KindChoices:
		return strings.Join(a.choices, ", ")
	case KindIndex:
		return strconv.Itoa(a.index)
	case KindText:
		return a.text
	default:
		return ""
	}
}

// GoString keeps %#v output readable in test failures.
func (a Answer) GoString() string {
	return fmt.Sprintf("questionnaire.Answer{%s: %q}", a.kind, a.String())
}
