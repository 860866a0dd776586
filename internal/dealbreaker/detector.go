package dealbreaker

import (
	"slices"
	"strings"

	"github.com/spigell/knot-matcher/internal/catalog"
	"github.com/spigell/knot-matcher/internal/questionnaire"
)

// Detector runs every rule against a pair. Rules fire independently.
type Detector struct {
	rules []Rule
}

func NewDetector(rules ...Rule) *Detector {
	return &Detector{rules: slices.Clone(rules)}
}

// Detect returns the descriptions of all fired rules in rule order, without duplicates.
func (d *Detector) Detect(a, b questionnaire.Response) []string {
	var found []string
	for _, rule := range d.rules {
		desc, ok := rule.Check(a, b)
		if !ok || desc == "" || slices.Contains(found, desc) {
			continue
		}
		found = append(found, desc)
	}
	return found
}

// Rules returns the names of the configured rules.
func (d *Detector) Rules() []string {
	names := make([]string, 0, len(d.rules))
	for _, r := range d.rules {
		names = append(names, r.Name())
	}
	return names
}

// DefaultRules builds the standard rule set for cat. Rules whose question is
// missing from the catalog are left out.
func DefaultRules(cat *catalog.Catalog) []Rule {
	var rules []Rule

	if _, ok := cat.Question("children_desire"); ok {
		rules = append(rules, OpposingChoices{
			RuleName:    "children",
			Question:    "children_desire",
			Want:        "definitely want",
			Refuse:      "definitely do not want",
			Description: "Strong disagreement on having children",
		})
	}

	if q, ok := cat.Question("religious_importance"); ok && q.Type == catalog.Scale {
		rules = append(rules, ScaleGap{
			RuleName:    "religious_importance",
			Question:    q,
			MinGap:      3,
			Description: "Significant difference in religious importance",
		})
	}

	if _, ok := cat.Question("smoking_habits"); ok {
		rules = append(rules, DirectionalPair{
			RuleName:    "smoking",
			Question:    "smoking_habits",
			From:        "Regular smoker",
			To:          "Never smoked",
			Description: "Smoking habits difference",
		})
	}

	if _, ok := cat.Question("deal_breakers"); ok {
		rules = append(rules, DeclaredDealbreaker{
			RuleName:   "declared",
			Question:   "deal_breakers",
			Violations: defaultViolations(),
			Order:      []string{"Smoking", "No desire for children", "Very different religious views"},
		})
	}

	return rules
}

func defaultViolations() map[string]Violation {
	return map[string]Violation{
		"Smoking": func(_, other questionnaire.Response) bool {
			v, ok := other.Choice("smoking_habits")
			return ok && (v == "Regular smoker" || v == "Occasional social smoker")
		},
		"No desire for children": func(_, other questionnaire.Response) bool {
			v, ok := other.Choice("children_desire")
			return ok && strings.Contains(strings.ToLower(v), "do not want")
		},
		"Very different religious views": func(self, other questionnaire.Response) bool {
			mine, okA := self.Choice("religion")
			theirs, okB := other.Choice("religion")
			if !okA || !okB || mine == "Other" || theirs == "Other" {
				return false
			}
			return mine != theirs
		},
	}
}
