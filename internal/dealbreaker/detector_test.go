package dealbreaker

import (
	"testing"

	"github.com/spigell/knot-matcher/internal/catalog"
	"github.com/spigell/knot-matcher/internal/questionnaire"
)

func resp(answers map[string]questionnaire.Answer) questionnaire.Response {
	return questionnaire.Response{ID: "r", Subject: questionnaire.UserRef("u"), Answers: answers}
}

func choice(v string) questionnaire.Answer { return questionnaire.NewChoice(v) }

func TestDefaultRules(t *testing.T) {
	t.Parallel()

	detector := NewDetector(DefaultRules(catalog.Default())...)

	tests := []struct {
		name   string
		a, b   map[string]questionnaire.Answer
		expect []string
	}{
		{
			name:   "opposing children desire",
			a:      map[string]questionnaire.Answer{"children_desire": choice("Definitely want children")},
			b:      map[string]questionnaire.Answer{"children_desire": choice("Definitely do not want children")},
			expect: []string{"Strong disagreement on having children"},
		},
		{
			name: "probable answers do not fire",
			a:    map[string]questionnaire.Answer{"children_desire": choice("Probably want children")},
			b:    map[string]questionnaire.Answer{"children_desire": choice("Definitely do not want children")},
		},
		{
			name:   "religious importance three steps apart",
			a:      map[string]questionnaire.Answer{"religious_importance": questionnaire.NewIndex(0)},
			b:      map[string]questionnaire.Answer{"religious_importance": questionnaire.NewIndex(3)},
			expect: []string{"Significant difference in religious importance"},
		},
		{
			name: "religious importance two steps apart",
			a:    map[string]questionnaire.Answer{"religious_importance": questionnaire.NewIndex(1)},
			b:    map[string]questionnaire.Answer{"religious_importance": questionnaire.NewIndex(3)},
		},
		{
			name:   "regular smoker and never smoked",
			a:      map[string]questionnaire.Answer{"smoking_habits": choice("Never smoked")},
			b:      map[string]questionnaire.Answer{"smoking_habits": choice("Regular smoker")},
			expect: []string{"Smoking habits difference"},
		},
		{
			name: "declared smoking deal-breaker",
			a: map[string]questionnaire.Answer{
				"deal_breakers":  questionnaire.NewChoices("Smoking", "Lack of ambition"),
				"smoking_habits": choice("Former smoker (quit)"),
			},
			b:      map[string]questionnaire.Answer{"smoking_habits": choice("Occasional social smoker")},
			expect: []string{"Declared deal-breaker: Smoking"},
		},
		{
			name: "several rules fire together",
			a: map[string]questionnaire.Answer{
				"children_desire": choice("Definitely want children"),
				"smoking_habits":  choice("Regular smoker"),
				"deal_breakers":   questionnaire.NewChoices("No desire for children"),
			},
			b: map[string]questionnaire.Answer{
				"children_desire": choice("Definitely do not want children"),
				"smoking_habits":  choice("Never smoked"),
			},
			expect: []string{
				"Strong disagreement on having children",
				"Smoking habits difference",
				"Declared deal-breaker: No desire for children",
			},
		},
		{
			name: "missing answers never fire",
			a:    map[string]questionnaire.Answer{"smoking_habits": choice("Regular smoker")},
			b:    map[string]questionnaire.Answer{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			for _, order := range [][2]map[string]questionnaire.Answer{{tt.a, tt.b}, {tt.b, tt.a}} {
				got := detector.Detect(resp(order[0]), resp(order[1]))
				if len(got) != len(tt.expect) {
					t.Fatalf("expected %v, got %v", tt.expect, got)
				}
				for i := range got {
					if got[i] != tt.expect[i] {
						t.Fatalf("expected %v, got %v", tt.expect, got)
					}
				}
			}
		})
	}
}

func TestScaleGapNormalisesLongScales(t *testing.T) {
	t.Parallel()

	q := catalog.Question{ID: "q", Type: catalog.Scale, Options: []string{"0", "1", "2", "3", "4", "5", "6", "7", "8"}}
	rule := ScaleGap{RuleName: "gap", Question: q, MinGap: 3, Description: "gap"}

	// 6 of 8 steps equals 3 of 4 on a five point scale.
	if _, ok := rule.Check(
		resp(map[string]questionnaire.Answer{"q": questionnaire.NewIndex(0)}),
		resp(map[string]questionnaire.Answer{"q": questionnaire.NewIndex(6)}),
	); !ok {
		t.Fatalf("expected rule to fire")
	}
	if _, ok := rule.Check(
		resp(map[string]questionnaire.Answer{"q": questionnaire.NewIndex(0)}),
		resp(map[string]questionnaire.Answer{"q": questionnaire.NewIndex(5)}),
	); ok {
		t.Fatalf("expected rule not to fire")
	}
}

func TestDetectDeduplicates(t *testing.T) {
	t.Parallel()

	rule := DirectionalPair{RuleName: "x", Question: "q", From: "a", To: "b", Description: "same"}
	detector := NewDetector(rule, rule)

	got := detector.Detect(
		resp(map[string]questionnaire.Answer{"q": choice("a")}),
		resp(map[string]questionnaire.Answer{"q": choice("b")}),
	)
	if len(got) != 1 {
		t.Fatalf("expected one description, got %v", got)
	}
	if names := detector.Rules(); len(names) != 2 {
		t.Fatalf("unexpected rule names %v", names)
	}
}

func TestDefaultRulesSkipMissingQuestions(t *testing.T) {
	t.Parallel()

	cat, err := catalog.New("tiny", []catalog.Question{{ID: "x", Category: "Values", Type: catalog.FreeText}})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if rules := DefaultRules(cat); len(rules) != 0 {
		t.Fatalf("expected no rules, got %d", len(rules))
	}
}
