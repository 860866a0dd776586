package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/knot-matcher/internal/ai"
	"github.com/spigell/knot-matcher/internal/ai/gemini"
	"github.com/spigell/knot-matcher/internal/cache"
	"github.com/spigell/knot-matcher/internal/catalog"
	"github.com/spigell/knot-matcher/internal/discovery"
	"github.com/spigell/knot-matcher/internal/eligibility"
	"github.com/spigell/knot-matcher/internal/scoring"
	"github.com/spigell/knot-matcher/internal/secrets"
	"github.com/spigell/knot-matcher/internal/store"
	"github.com/spigell/knot-matcher/internal/store/file"
	"github.com/spigell/knot-matcher/internal/store/postgres"
)

func loadCatalog(cfg CatalogConfig) (*catalog.Catalog, error) {
	path := strings.TrimSpace(cfg.File)
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(path)
}

func newEngine(cfg *Config, cat *catalog.Catalog, logger *zap.Logger) (*discovery.Engine, error) {
	engineCfg := discovery.DefaultConfig(cat)

	weights, err := buildWeights(cat, cfg.Matching.Weights)
	if err != nil {
		return nil, err
	}
	engineCfg.Weights = weights

	engineCfg.Policy = buildPolicy(cfg.Eligibility)
	engineCfg.Options = discovery.Options{
		MinScore:   cfg.Matching.MinScore,
		MaxResults: cfg.Matching.MaxResults,
		Workers:    cfg.Matching.Workers,
	}

	return discovery.NewEngine(cat, engineCfg, logger)
}

// buildWeights overrides the default weights. Configuration keys lose their
// case on the way through viper, so they are matched to catalog categories
// case-insensitively.
func buildWeights(cat *catalog.Catalog, configured map[string]float64) (scoring.Weights, error) {
	if len(configured) == 0 {
		return scoring.DefaultWeights(), nil
	}

	weights := scoring.DefaultWeights().Map()
	for key, w := range configured {
		category := ""
		for _, c := range cat.Categories() {
			if strings.EqualFold(c, key) {
				category = c
				break
			}
		}
		if category == "" {
			return scoring.Weights{}, fmt.Errorf("matching.weights: unknown category %q", key)
		}
		weights[category] = w
	}

	return scoring.NewWeights(weights)
}

func buildPolicy(cfg EligibilityConfig) eligibility.Policy {
	policy := eligibility.DefaultPolicy()
	if v := strings.TrimSpace(cfg.IdentityQuestion); v != "" {
		policy.IdentityQuestion = v
	}
	if v := strings.TrimSpace(cfg.PreferenceQuestion); v != "" {
		policy.PreferenceQuestion = v
	}
	if len(cfg.OpenValues) > 0 {
		policy.OpenValues = cfg.OpenValues
	}
	if len(cfg.Aliases) > 0 {
		policy.Aliases = cfg.Aliases
	}
	return policy
}

// openStore returns the configured accessor and a function releasing it.
func openStore(ctx context.Context, cfg StoreConfig, cat *catalog.Catalog, logger *zap.Logger) (store.Accessor, func(), error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case storeDriverPostgres:
		pgCfg := cfg.Postgres.Config
		if strings.TrimSpace(cfg.Postgres.DSNFile) != "" {
			dsn, err := secrets.Load(secrets.Source{Name: "postgres dsn", File: cfg.Postgres.DSNFile})
			if err != nil {
				return nil, nil, err
			}
			pgCfg.DSN = dsn
		}

		db, err := postgres.Connect(ctx, pgCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}

		s, err := postgres.New(db.SQLDB(), pgCfg.Table, cat, logger)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return s, func() { db.Close() }, nil
	default:
		s, err := file.New(cfg.File, cat, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
}

func openCache(ctx context.Context, cfg CacheConfig, logger *zap.Logger) (*cache.ResultCache, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	password := cfg.Password
	if strings.TrimSpace(cfg.PasswordFile) != "" {
		p, err := secrets.Load(secrets.Source{Name: "redis password", File: cfg.PasswordFile})
		if err != nil {
			return nil, err
		}
		password = p
	}

	return cache.Connect(ctx, cache.Config{
		Addr:     cfg.Address,
		Password: password,
		DB:       cfg.DB,
		TTL:      cfg.TTL,
	}, logger), nil
}

func newNarrator(ctx context.Context, cfg *AIConfig, logger *zap.Logger) (ai.Narrator, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	gcfg := cfg.Gemini
	if gcfg == nil {
		gcfg = &GeminiConfig{}
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		File:  gcfg.APIKeyFile,
		Env:   "GEMINI_API_KEY",
		Value: gcfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
	}

	generator, err := gemini.NewGenerator(ctx, apiKey, gcfg.Model, gcfg.MaxRetries, logger)
	if err != nil {
		return nil, err
	}

	narrator := gemini.NewNarrator(generator, gcfg.MaxLogLength, logger)
	narrator.SetPromptOverrides(cfg.Prompt)

	return narrator, nil
}
