package discovery

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/knot-matcher/internal/catalog"
	"github.com/spigell/knot-matcher/internal/dealbreaker"
	"github.com/spigell/knot-matcher/internal/eligibility"
	"github.com/spigell/knot-matcher/internal/questionnaire"
	"github.com/spigell/knot-matcher/internal/scoring"
	"github.com/spigell/knot-matcher/internal/store"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()

	cat, err := catalog.New("test", []catalog.Question{
		{ID: "gender", Category: "Basic Info", Type: catalog.SingleChoice, Options: []string{"Male", "Female"}, Required: true},
		{ID: "looking_for_gender", Category: "Basic Info", Type: catalog.SingleChoice, Options: []string{"Male", "Female", "Any gender"}, Required: true},
		{ID: "children_desire", Category: "Future", Type: catalog.SingleChoice, Options: []string{"Definitely want children", "Not sure yet", "Definitely do not want children"}, Required: true},
		{ID: "smoking_habits", Category: "Lifestyle", Type: catalog.SingleChoice, Options: []string{"Never smoked", "Regular smoker"}, Required: true},
		{ID: "hobbies", Category: "Lifestyle", Type: catalog.MultipleChoice, Options: []string{"Travel", "Reading", "Cooking"}},
		{ID: "religious_importance", Category: "Values", Type: catalog.Scale, Options: []string{"0", "1", "2", "3", "4"}, Required: true},
		{ID: "career", Category: "Values", Type: catalog.SingleChoice, Options: []string{"a", "b"}, Required: true},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return cat
}

type answers map[string]questionnaire.Answer

func baseAnswers() answers {
	return answers{
		"gender":               questionnaire.NewChoice("Female"),
		"looking_for_gender":   questionnaire.NewChoice("Female"),
		"children_desire":      questionnaire.NewChoice("Not sure yet"),
		"smoking_habits":       questionnaire.NewChoice("Never smoked"),
		"hobbies":              questionnaire.NewChoices("Travel", "Reading"),
		"religious_importance": questionnaire.NewIndex(2),
		"career":               questionnaire.NewChoice("a"),
	}
}

func person(id string, overrides answers) questionnaire.Response {
	a := baseAnswers()
	for k, v := range overrides {
		a[k] = v
	}
	return questionnaire.Response{
		ID:         id,
		Subject:    questionnaire.UserRef("user-" + id),
		Identity:   questionnaire.Identity{Name: "Person " + id, Email: id + "@example.com"},
		Answers:    a,
		IsComplete: true,
	}
}

func newEngine(t *testing.T, cat *catalog.Catalog, mutate func(*Config)) *Engine {
	t.Helper()

	cfg := DefaultConfig(cat)
	cfg.Weights = scoring.Weights{}
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEngine(cat, cfg, nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return e
}

func ids(results []MatchResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Candidate.ResponseID)
	}
	return out
}

func TestFindMatches(t *testing.T) {
	cat := testCatalog(t)
	e := newEngine(t, cat, nil)

	subject := person("s", nil)
	noContact := person("anon", nil)
	noContact.Identity = questionnaire.Identity{Phone: "+100"}
	incomplete := person("inc", nil)
	incomplete.IsComplete = false
	malformed := person("bad", answers{"shoe_size": questionnaire.NewChoice("9")})

	pool := []questionnaire.Response{
		subject,
		person("h", answers{"hobbies": questionnaire.NewChoices("Reading", "Cooking"), "career": questionnaire.NewChoice("b")}),
		person("low", answers{
			"career":          questionnaire.NewChoice("b"),
			"children_desire": questionnaire.NewChoice("Definitely do not want children"),
			"smoking_habits":  questionnaire.NewChoice("Regular smoker"),
		}),
		person("p1", nil),
		incomplete,
		person("man", answers{"gender": questionnaire.NewChoice("Male")}),
		noContact,
		malformed,
		person("p2", nil),
	}

	results, stats := e.FindMatches(context.Background(), subject, pool)

	if got, want := ids(results), []string{"p1", "p2", "h"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	want := Stats{
		Pool:           9,
		Self:           1,
		Incomplete:     1,
		Malformed:      1,
		Ineligible:     1,
		Unprojectable:  1,
		BelowThreshold: 1,
		Matched:        3,
		Returned:       3,
	}
	if stats != want {
		t.Fatalf("expected stats %+v, got %+v", want, stats)
	}

	h := results[2]
	if h.Score != 76 {
		t.Fatalf("expected score 76, got %d", h.Score)
	}
	if !reflect.DeepEqual(h.StrongCategories, []string{"Basic Info", "Future"}) {
		t.Fatalf("unexpected strong categories %v", h.StrongCategories)
	}
	if len(h.Concerns) != 0 {
		t.Fatalf("unexpected concerns %v", h.Concerns)
	}
	if !reflect.DeepEqual(h.SharedTraits, []string{"Reading"}) {
		t.Fatalf("unexpected shared traits %v", h.SharedTraits)
	}
	expectSummary := "Good compatibility potential. You align particularly well in Basic Info and Future. You both value Reading. No significant concerns identified."
	if h.Summary != expectSummary {
		t.Fatalf("unexpected summary:\n%s", h.Summary)
	}

	p1 := results[0]
	if p1.Score != 100 || p1.Candidate.Name != "Person p1" || p1.Candidate.Kind != questionnaire.SubjectUser {
		t.Fatalf("unexpected top result %+v", p1)
	}
}

func TestFindMatchesTruncatesAfterRanking(t *testing.T) {
	cat := testCatalog(t)
	e := newEngine(t, cat, nil)

	pool := []questionnaire.Response{
		person("h", answers{"career": questionnaire.NewChoice("b")}),
		person("p1", nil),
		person("p2", nil),
	}

	results, stats := e.FindMatches(context.Background(), person("s", nil), pool, WithMaxResults(2))
	if got := ids(results); !reflect.DeepEqual(got, []string{"p1", "p2"}) {
		t.Fatalf("unexpected results %v", got)
	}
	if stats.Matched != 3 || stats.Returned != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestFindMatchesNobodyReachesMinScore(t *testing.T) {
	cat := testCatalog(t)
	e := newEngine(t, cat, nil)

	pool := []questionnaire.Response{
		person("low", answers{
			"career":          questionnaire.NewChoice("b"),
			"children_desire": questionnaire.NewChoice("Definitely do not want children"),
			"smoking_habits":  questionnaire.NewChoice("Regular smoker"),
		}),
	}

	results, stats := e.FindMatches(context.Background(), person("s", nil), pool, WithMinScore(70))
	if results == nil || len(results) != 0 {
		t.Fatalf("expected an empty, non-nil list, got %#v", results)
	}
	if stats.BelowThreshold != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	results, _ = e.FindMatches(context.Background(), person("s", nil), nil)
	if len(results) != 0 {
		t.Fatalf("expected no results for an empty pool")
	}
}

func TestFindMatchesRejectsUnusableSubject(t *testing.T) {
	cat := testCatalog(t)
	e := newEngine(t, cat, nil)

	incomplete := person("s", nil)
	incomplete.IsComplete = false
	malformed := person("s", answers{"career": questionnaire.NewChoices("a")})

	for _, subject := range []questionnaire.Response{incomplete, malformed} {
		results, stats := e.FindMatches(context.Background(), subject, []questionnaire.Response{person("p1", nil)})
		if len(results) != 0 {
			t.Fatalf("expected no results, got %v", ids(results))
		}
		if stats.SubjectRejected == "" {
			t.Fatalf("expected a rejection reason")
		}
	}

	results, stats := e.FindMatches(context.Background(), person("s", nil), []questionnaire.Response{person("p1", nil)}, WithMaxResults(0))
	if len(results) != 0 || stats.SubjectRejected == "" {
		t.Fatalf("invalid per-call options must yield an empty list, got %v", ids(results))
	}
}

func TestFindMatchesDealbreakersDoNotChangeScore(t *testing.T) {
	cat := testCatalog(t)
	withRules := newEngine(t, cat, nil)
	withoutRules := newEngine(t, cat, func(c *Config) { c.Rules = nil })

	subject := person("s", answers{"smoking_habits": questionnaire.NewChoice("Regular smoker")})
	candidate := person("c", answers{"smoking_habits": questionnaire.NewChoice("Never smoked")})
	pool := []questionnaire.Response{candidate}

	flagged, _ := withRules.FindMatches(context.Background(), subject, pool, WithMinScore(0))
	plain, _ := withoutRules.FindMatches(context.Background(), subject, pool, WithMinScore(0))

	if len(flagged) != 1 || len(plain) != 1 {
		t.Fatalf("expected one result each, got %d and %d", len(flagged), len(plain))
	}
	if flagged[0].Score != plain[0].Score {
		t.Fatalf("deal-breakers changed the score: %d vs %d", flagged[0].Score, plain[0].Score)
	}
	if !reflect.DeepEqual(flagged[0].Dealbreakers, []string{"Smoking habits difference"}) {
		t.Fatalf("unexpected deal-breakers %v", flagged[0].Dealbreakers)
	}
	last := flagged[0].Concerns[len(flagged[0].Concerns)-1]
	if last != "Smoking habits difference" {
		t.Fatalf("deal-breaker must be appended to concerns, got %v", flagged[0].Concerns)
	}
	if len(plain[0].Dealbreakers) != 0 {
		t.Fatalf("unexpected deal-breakers without rules: %v", plain[0].Dealbreakers)
	}
}

func TestFindMatchesWomenOnlyExcludesMan(t *testing.T) {
	cat := testCatalog(t)
	e := newEngine(t, cat, func(c *Config) {
		c.Policy.Aliases = map[string][]string{"Women only": {"Woman", "Female"}}
	})

	subject := person("s", answers{
		"gender":             questionnaire.NewChoice("Female"),
		"looking_for_gender": questionnaire.NewChoice("Women only"),
	})
	man := person("m", answers{
		"gender":             questionnaire.NewChoice("Man"),
		"looking_for_gender": questionnaire.NewChoice("Any gender"),
	})

	results, stats := e.FindMatches(context.Background(), subject, []questionnaire.Response{man}, WithMinScore(0))
	if len(results) != 0 || stats.Ineligible != 1 {
		t.Fatalf("expected the man to be excluded, got %v (%+v)", ids(results), stats)
	}
}

func TestFindMatchesSkipsExcludedCandidates(t *testing.T) {
	cat := testCatalog(t)
	e := newEngine(t, cat, nil)

	pool := []questionnaire.Response{person("p1", nil), person("p2", nil), person("p3", nil)}

	results, stats := e.FindMatches(context.Background(), person("s", nil), pool, WithExclude("p2"), WithExclude("p3"))
	if got := ids(results); !reflect.DeepEqual(got, []string{"p1"}) {
		t.Fatalf("expected only p1, got %v", got)
	}
	if stats.Excluded != 2 || stats.Returned != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(e.Options().Exclude) != 0 {
		t.Fatalf("per-call exclusions leaked into engine defaults: %v", e.Options().Exclude)
	}
}

func TestFindMatchesParallelMatchesSequential(t *testing.T) {
	cat := testCatalog(t)
	e := newEngine(t, cat, nil)

	hobbies := [][]string{{"Travel"}, {"Reading"}, {"Travel", "Reading"}, {"Cooking"}, {}}
	var pool []questionnaire.Response
	for i := 0; i < 60; i++ {
		pool = append(pool, person(fmt.Sprintf("c%02d", i), answers{
			"hobbies":              questionnaire.NewChoices(hobbies[i%len(hobbies)]...),
			"religious_importance": questionnaire.NewIndex(i % 5),
			"career":               questionnaire.NewChoice([]string{"a", "b"}[i%2]),
		}))
	}
	subject := person("s", nil)

	sequential, seqStats := e.FindMatches(context.Background(), subject, pool, WithMinScore(50), WithMaxResults(25))
	parallel, parStats := e.FindMatches(context.Background(), subject, pool, WithMinScore(50), WithMaxResults(25), WithWorkers(8))

	if !reflect.DeepEqual(sequential, parallel) {
		t.Fatalf("parallel results differ:\n%v\n%v", ids(sequential), ids(parallel))
	}
	if seqStats != parStats {
		t.Fatalf("parallel stats differ: %+v vs %+v", seqStats, parStats)
	}

	again, _ := e.FindMatches(context.Background(), subject, pool, WithMinScore(50), WithMaxResults(25))
	if !reflect.DeepEqual(sequential, again) {
		t.Fatalf("repeated invocation is not idempotent")
	}

	for i := 1; i < len(sequential); i++ {
		if sequential[i-1].Score < sequential[i].Score {
			t.Fatalf("results are not sorted by score")
		}
	}
}

func TestFindMatchesLogsSteps(t *testing.T) {
	cat := testCatalog(t)
	core, observed := observer.New(zapcore.InfoLevel)

	e, err := NewEngine(cat, DefaultConfig(cat), zap.New(core))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	e.FindMatches(context.Background(), person("s", nil), []questionnaire.Response{person("p1", nil)})

	if n := observed.FilterMessage("filter step").Len(); n != 5 {
		t.Fatalf("expected 5 filter step entries, got %d", n)
	}
	finished := observed.FilterMessage("discovery finished").All()
	if len(finished) != 1 {
		t.Fatalf("expected a summary entry")
	}
	if ctx := finished[0].ContextMap(); ctx["returned"] != int64(1) || ctx["response_id"] != "s" {
		t.Fatalf("unexpected summary context %v", ctx)
	}
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	cat := testCatalog(t)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero max results", mutate: func(c *Config) { c.Options.MaxResults = 0 }},
		{name: "min score above range", mutate: func(c *Config) { c.Options.MinScore = 101 }},
		{name: "negative min score", mutate: func(c *Config) { c.Options.MinScore = -1 }},
		{name: "negative workers", mutate: func(c *Config) { c.Options.Workers = -2 }},
		{name: "unknown eligibility question", mutate: func(c *Config) { c.Policy.IdentityQuestion = "sex" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(cat)
			tt.mutate(&cfg)
			if _, err := NewEngine(cat, cfg, nil); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	if _, err := NewEngine(nil, DefaultConfig(cat), nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig without catalog, got %v", err)
	}
}

func TestFindMatchesUnscoredCategoryIsConcern(t *testing.T) {
	cat, err := catalog.New("test", []catalog.Question{
		{ID: "gender", Category: "Basic Info", Type: catalog.SingleChoice, Options: []string{"Male", "Female"}, Required: true},
		{ID: "looking_for_gender", Category: "Basic Info", Type: catalog.SingleChoice, Options: []string{"Male", "Female", "Any gender"}, Required: true},
		{ID: "travel_style", Category: "Adventure", Type: catalog.SingleChoice, Options: []string{"Backpacking", "Resorts"}},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	e := newEngine(t, cat, nil)

	respondent := func(id string, travel bool) questionnaire.Response {
		r := questionnaire.Response{
			ID:       id,
			Subject:  questionnaire.UserRef("user-" + id),
			Identity: questionnaire.Identity{Name: "Person " + id},
			Answers: map[string]questionnaire.Answer{
				"gender":             questionnaire.NewChoice("Female"),
				"looking_for_gender": questionnaire.NewChoice("Female"),
			},
			IsComplete: true,
		}
		if travel {
			r.Answers["travel_style"] = questionnaire.NewChoice("Backpacking")
		}
		return r
	}

	results, _ := e.FindMatches(context.Background(), respondent("s", true), []questionnaire.Response{respondent("c", false)}, WithMinScore(0))
	if len(results) != 1 {
		t.Fatalf("expected one match, got %v", ids(results))
	}

	r := results[0]
	if r.Score != 100 {
		t.Fatalf("unscored categories must not drag the overall score, got %d", r.Score)
	}
	if !reflect.DeepEqual(r.Concerns, []string{"Adventure"}) {
		t.Fatalf("expected Adventure as the only concern, got %v", r.Concerns)
	}
	if !reflect.DeepEqual(r.StrongCategories, []string{"Basic Info"}) {
		t.Fatalf("unexpected strong categories %v", r.StrongCategories)
	}
	for _, cs := range r.CategoryScores {
		if cs.Category == "Adventure" && (cs.Score != 0 || cs.Scored != 0) {
			t.Fatalf("expected an empty Adventure score, got %+v", cs)
		}
	}
}

func TestEngineFingerprint(t *testing.T) {
	cat := testCatalog(t)

	base := newEngine(t, cat, nil)
	same := newEngine(t, cat, nil)
	if base.Fingerprint() == "" || base.Fingerprint() != same.Fingerprint() {
		t.Fatalf("equal settings must share a fingerprint: %q vs %q", base.Fingerprint(), same.Fingerprint())
	}

	parallel := newEngine(t, cat, func(c *Config) { c.Options.Workers = 4 })
	if parallel.Fingerprint() != base.Fingerprint() {
		t.Fatalf("options must not change the fingerprint")
	}

	changes := map[string]func(*Config){
		"weights": func(c *Config) {
			w, err := scoring.NewWeights(map[string]float64{"Values": 5})
			if err != nil {
				t.Fatalf("weights: %v", err)
			}
			c.Weights = w
		},
		"policy":     func(c *Config) { c.Policy.Aliases = map[string][]string{"Women only": {"Female"}} },
		"rules":      func(c *Config) { c.Rules = nil },
		"trait skip": func(c *Config) { c.TraitSkip = []string{"hobbies"} },
	}
	for name, mutate := range changes {
		if got := newEngine(t, cat, mutate).Fingerprint(); got == base.Fingerprint() {
			t.Fatalf("%s: fingerprint did not change", name)
		}
	}

	other, err := catalog.New("test", cat.Questions()[:3])
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if newEngine(t, other, nil).Fingerprint() == base.Fingerprint() {
		t.Fatalf("a different catalog with the same version must change the fingerprint")
	}
}

func TestRecommend(t *testing.T) {
	cat := testCatalog(t)
	e := newEngine(t, cat, nil)

	incomplete := person("lead", nil)
	incomplete.Subject = questionnaire.LeadRef("l1")
	incomplete.IsComplete = false

	accessor := store.Static{person("s", nil), person("p1", nil), incomplete}

	results, _, err := e.Recommend(context.Background(), accessor, questionnaire.UserRef("user-s"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ids(results); !reflect.DeepEqual(got, []string{"p1"}) {
		t.Fatalf("unexpected recommendations %v", got)
	}

	for _, ref := range []questionnaire.SubjectRef{questionnaire.LeadRef("l1"), questionnaire.UserRef("ghost"), {}} {
		results, _, err := e.Recommend(context.Background(), accessor, ref)
		if err != nil || len(results) != 0 {
			t.Fatalf("expected empty recommendations for %s, got %v (%v)", ref, ids(results), err)
		}
	}

	_, _, err = e.Recommend(context.Background(), failingAccessor{}, questionnaire.UserRef("user-s"))
	if err == nil {
		t.Fatalf("expected accessor error")
	}
}

type failingAccessor struct{}

func (failingAccessor) Responses(context.Context) ([]questionnaire.Response, error) {
	return nil, errors.New("database is down")
}

func TestPair(t *testing.T) {
	cat := testCatalog(t)
	e := newEngine(t, cat, func(c *Config) {
		c.Rules = dealbreaker.DefaultRules(cat)
		c.Policy = eligibility.DefaultPolicy()
	})

	a := person("a", answers{"children_desire": questionnaire.NewChoice("Definitely want children")})
	b := person("b", answers{
		"gender":          questionnaire.NewChoice("Male"),
		"children_desire": questionnaire.NewChoice("Definitely do not want children"),
	})

	report := e.Pair(context.Background(), a, b)
	if report.Eligible {
		t.Fatalf("pair must be ineligible")
	}
	if !reflect.DeepEqual(report.Dealbreakers, []string{"Strong disagreement on having children"}) {
		t.Fatalf("unexpected deal-breakers %v", report.Dealbreakers)
	}
	// 7 questions, gender and children differ.
	if report.Score != 71 || report.Tier != "Good" {
		t.Fatalf("unexpected score %d (%s)", report.Score, report.Tier)
	}
	if len(report.Problems) != 0 {
		t.Fatalf("unexpected problems %v", report.Problems)
	}
}
