package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/spigell/knot-matcher/internal/catalog"
	"github.com/spigell/knot-matcher/internal/dealbreaker"
	"github.com/spigell/knot-matcher/internal/eligibility"
	"github.com/spigell/knot-matcher/internal/filtering"
	"github.com/spigell/knot-matcher/internal/logger"
	"github.com/spigell/knot-matcher/internal/questionnaire"
	"github.com/spigell/knot-matcher/internal/scoring"
)

// Config wires the engine's collaborators.
type Config struct {
	Weights scoring.Weights
	Policy  eligibility.Policy
	Rules   []dealbreaker.Rule
	Options Options
	// TraitSkip lists multiple choice questions left out of shared traits.
	TraitSkip []string
}

// DefaultConfig returns the standard configuration for cat.
func DefaultConfig(cat *catalog.Catalog) Config {
	return Config{
		Weights:   scoring.DefaultWeights(),
		Policy:    eligibility.DefaultPolicy(),
		Rules:     dealbreaker.DefaultRules(cat),
		Options:   DefaultOptions(),
		TraitSkip: []string{"deal_breakers"},
	}
}

// Engine finds and explains matches. It keeps no state between calls and is
// safe for concurrent use.
type Engine struct {
	catalog   *catalog.Catalog
	scorer    *scoring.Scorer
	detector  *dealbreaker.Detector
	policy    eligibility.Policy
	options   Options
	traitSkip []string
	// fingerprint identifies everything besides Options that shapes results.
	fingerprint string
	logger      *zap.Logger
}

func NewEngine(cat *catalog.Catalog, cfg Config, l *zap.Logger) (*Engine, error) {
	if cat == nil {
		return nil, fmt.Errorf("%w: catalog is required", ErrInvalidConfig)
	}
	if err := cfg.Options.Validate(); err != nil {
		return nil, err
	}
	policy, err := eligibility.NewPolicy(cfg.Policy, cat)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	e := &Engine{
		catalog:   cat,
		scorer:    scoring.NewScorer(cat, cfg.Weights),
		detector:  dealbreaker.NewDetector(cfg.Rules...),
		policy:    policy,
		options:   cfg.Options,
		traitSkip: slices.Clone(cfg.TraitSkip),
		logger:    logger.WithFields(l),
	}

	e.fingerprint, err = e.settingsFingerprint(cfg.Weights)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	e.logger.Debug("discovery engine ready",
		zap.String("catalog_version", cat.Version()),
		zap.Strings("dealbreaker_rules", e.detector.Rules()),
		zap.String("fingerprint", e.fingerprint),
	)

	return e, nil
}

type engineSettings struct {
	Catalog   []byte             `json:"catalog"`
	Weights   map[string]float64 `json:"weights"`
	Policy    eligibility.Policy `json:"policy"`
	Rules     []string           `json:"rules"`
	TraitSkip []string           `json:"trait_skip"`
}

func (e *Engine) settingsFingerprint(weights scoring.Weights) (string, error) {
	catalogDoc, err := e.catalog.Marshal()
	if err != nil {
		return "", fmt.Errorf("encoding catalog: %w", err)
	}

	b, err := json.Marshal(engineSettings{
		Catalog:   catalogDoc,
		Weights:   weights.Map(),
		Policy:    e.policy,
		Rules:     e.detector.Rules(),
		TraitSkip: e.traitSkip,
	})
	if err != nil {
		return "", fmt.Errorf("encoding engine settings: %w", err)
	}

	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

func (e *Engine) Options() Options { return e.options }

// Fingerprint changes whenever the catalog, weights, eligibility policy,
// deal-breaker rules or trait settings change. Per-call options are not part
// of it.
func (e *Engine) Fingerprint() string { return e.fingerprint }

// Resolve applies per-call overrides to the engine defaults.
func (e *Engine) Resolve(opts ...Option) (Options, error) {
	o := e.options
	for _, opt := range opts {
		opt(&o)
	}
	return o, o.Validate()
}

// FindMatches ranks the candidates in pool against subject. Bad records are
// skipped and counted in Stats; the pass itself never fails. The returned list
// is empty when the subject is unusable, the options are invalid or nobody
// reaches the minimum score.
func (e *Engine) FindMatches(ctx context.Context, subject questionnaire.Response, pool []questionnaire.Response, opts ...Option) ([]MatchResult, Stats) {
	log := logger.WithFields(e.logger, logger.SubjectFields(subject)...)
	stats := Stats{Pool: len(pool)}

	o, err := e.Resolve(opts...)
	if err != nil {
		log.Error("rejecting discovery options", zap.Error(err))
		stats.SubjectRejected = err.Error()
		return []MatchResult{}, stats
	}

	if reason := e.rejectSubject(subject); reason != "" {
		log.Warn("subject cannot be matched", zap.String(logger.FieldReason, reason))
		stats.SubjectRejected = reason
		return []MatchResult{}, stats
	}

	filters := filtering.New([]filtering.Filter{
		filtering.NewSelf(subject),
		filtering.NewExcluded(o.Exclude),
		filtering.NewIncomplete(),
		filtering.NewMalformed(e.catalog, log),
		filtering.NewEligibility(subject, e.policy),
	}, log)
	log.Debug("filtering candidates", zap.Strings("filters", filters.Names()))

	left, steps, err := filters.RunFilters(ctx, filtering.NewPool(pool))
	if err != nil {
		log.Error("filtering candidates", zap.Error(err))
		stats.SubjectRejected = err.Error()
		return []MatchResult{}, stats
	}
	for _, step := range steps {
		switch step.Name {
		case filtering.NameSelf:
			stats.Self = step.Dropped
		case filtering.NameExcluded:
			stats.Excluded = step.Dropped
		case filtering.NameIncomplete:
			stats.Incomplete = step.Dropped
		case filtering.NameMalformed:
			stats.Malformed = step.Dropped
		case filtering.NameEligibility:
			stats.Ineligible = step.Dropped
		}
	}

	evaluated := e.evaluateAll(subject, left.Items, o)

	results := make([]MatchResult, 0, len(evaluated))
	for i, ev := range evaluated {
		switch ev.outcome {
		case OutcomeUnprojectable:
			stats.Unprojectable++
			log.Debug("skipping candidate without name or email",
				zap.String(logger.FieldCandidateID, left.Items[i].ID),
			)
		case OutcomeBelowThreshold:
			stats.BelowThreshold++
		case OutcomeMatched:
			stats.Matched++
			results = append(results, ev.result)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > o.MaxResults {
		results = results[:o.MaxResults]
	}
	stats.Returned = len(results)

	log.Info("discovery finished",
		zap.Int("pool", stats.Pool),
		zap.Int("eligible", left.Len()),
		zap.Int("matched", stats.Matched),
		zap.Int("returned", stats.Returned),
		zap.Int("min_score", o.MinScore),
	)

	return results, stats
}

func (e *Engine) rejectSubject(subject questionnaire.Response) string {
	if !subject.IsComplete {
		return "subject response is incomplete"
	}
	if err := questionnaire.Validate(e.catalog, subject); err != nil {
		return err.Error()
	}
	return ""
}

type evaluation struct {
	result  MatchResult
	outcome string
}

// evaluateAll scores every candidate. With more than one worker the work is
// fanned out; each result lands at its candidate's index so ordering matches
// the sequential run exactly.
func (e *Engine) evaluateAll(subject questionnaire.Response, candidates []questionnaire.Response, o Options) []evaluation {
	out := make([]evaluation, len(candidates))

	workers := o.Workers
	if workers > len(candidates) {
		workers = len(candidates)
	}
	if workers <= 1 {
		for i, c := range candidates {
			out[i] = e.evaluate(subject, c, o.MinScore)
		}
		return out
	}

	idx := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range idx {
				out[i] = e.evaluate(subject, candidates[i], o.MinScore)
			}
		}()
	}
	for i := range candidates {
		idx <- i
	}
	close(idx)
	wg.Wait()

	return out
}

func (e *Engine) evaluate(subject, other questionnaire.Response, minScore int) evaluation {
	candidate, ok := NewCandidate(other)
	if !ok {
		return evaluation{outcome: OutcomeUnprojectable}
	}

	categories := e.scorer.CategoryScores(subject, other)
	score := scoring.Overall(categories)
	if score < minScore {
		return evaluation{outcome: OutcomeBelowThreshold}
	}

	return evaluation{
		result:  e.explain(candidate, subject, other, categories, score),
		outcome: OutcomeMatched,
	}
}

func (e *Engine) explain(candidate MatchCandidate, subject, other questionnaire.Response, categories []scoring.CategoryScore, score int) MatchResult {
	strong := []string{}
	concerns := []string{}
	for _, c := range categories {
		switch {
		case c.Strong():
			strong = append(strong, c.Category)
		case c.Concern():
			concerns = append(concerns, c.Category)
		}
	}

	dealbreakers := e.detector.Detect(subject, other)
	concerns = append(concerns, dealbreakers...)

	traits := SharedTraits(e.catalog, subject, other, e.traitSkip...)
	if traits == nil {
		traits = []string{}
	}

	return MatchResult{
		Candidate:        candidate,
		Score:            score,
		SharedTraits:     traits,
		StrongCategories: strong,
		Concerns:         concerns,
		Dealbreakers:     dealbreakers,
		CategoryScores:   categories,
		Summary:          Summarize(score, strong, traits, concerns),
	}
}
