package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/knot-matcher/internal/ai/gemini"
	"github.com/spigell/knot-matcher/internal/discovery"
	"github.com/spigell/knot-matcher/internal/store/postgres"
)

const (
	app       = "knot-matcher"
	envPrefix = "KNOT"

	storeDriverFile     = "file"
	storeDriverPostgres = "postgres"
)

type Config struct {
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Matching    MatchingConfig    `mapstructure:"matching"`
	Eligibility EligibilityConfig `mapstructure:"eligibility"`
	Store       StoreConfig       `mapstructure:"store"`
	Cache       CacheConfig       `mapstructure:"cache"`
	AI          *AIConfig         `mapstructure:"ai"`
	MetricsFile string            `mapstructure:"metrics-file"`
	ExcludeFile string            `mapstructure:"exclude-file"`
}

type CatalogConfig struct {
	File string `mapstructure:"file"`
}

type MatchingConfig struct {
	MinScore   int                `mapstructure:"min-score"`
	MaxResults int                `mapstructure:"max-results"`
	Workers    int                `mapstructure:"workers"`
	Weights    map[string]float64 `mapstructure:"weights"`
}

type EligibilityConfig struct {
	IdentityQuestion   string              `mapstructure:"identity-question"`
	PreferenceQuestion string              `mapstructure:"preference-question"`
	OpenValues         []string            `mapstructure:"open-values"`
	Aliases            map[string][]string `mapstructure:"aliases"`
}

type StoreConfig struct {
	Driver   string         `mapstructure:"driver"`
	File     string         `mapstructure:"file"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	postgres.Config `mapstructure:",squash"`
	DSNFile         string `mapstructure:"dsn-file"`
}

type CacheConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password" json:"-"`
	PasswordFile string        `mapstructure:"password-file"`
	DB           int           `mapstructure:"db"`
	TTL          time.Duration `mapstructure:"ttl"`
}

type AIConfig struct {
	Enabled  bool                   `mapstructure:"enabled"`
	Provider string                 `mapstructure:"provider"`
	Gemini   *GeminiConfig          `mapstructure:"gemini"`
	Prompt   gemini.PromptOverrides `mapstructure:"prompt"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key" json:"-"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "knot-matcher scores questionnaire responses against each other and finds compatible matches",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is knot-matcher.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults()
}

func setDefaults() {
	viper.SetDefault("matching.min-score", discovery.DefaultMinScore)
	viper.SetDefault("matching.max-results", discovery.DefaultMaxResults)
	viper.SetDefault("matching.workers", 1)
	viper.SetDefault("store.driver", storeDriverFile)
	viper.SetDefault("store.file", "responses.json")
	viper.SetDefault("store.postgres.table", postgres.DefaultTable)
	viper.SetDefault("cache.address", "localhost:6379")
	viper.SetDefault("cache.ttl", "10m")
}

// envKeys are configuration keys without a default. AutomaticEnv only
// resolves keys viper already knows, so these are bound explicitly to make
// e.g. KNOT_STORE_POSTGRES_DSN reach Unmarshal.
var envKeys = []string{
	"catalog.file",
	"eligibility.identity-question",
	"eligibility.preference-question",
	"store.postgres.dsn",
	"store.postgres.dsn-file",
	"store.postgres.connect-timeout",
	"store.postgres.max-conns",
	"cache.enabled",
	"cache.password",
	"cache.password-file",
	"cache.db",
	"ai.enabled",
	"ai.provider",
	"ai.gemini.api-key",
	"ai.gemini.api-key-file",
	"ai.gemini.model",
	"ai.gemini.max-retries",
	"ai.gemini.max-log-length",
	"metrics-file",
	"exclude-file",
}

func configureEnv() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	for _, key := range envKeys {
		viper.BindEnv(key)
	}
}

func initConfig() {
	// version needs no configuration.
	if versionCmd.CalledAs() != "" {
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env file: %v", err)
	}

	configureEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Defaults are enough to run against responses.json, so only an explicit
	// --config must exist.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}
	if config == nil {
		return nil, errors.New("empty configuration")
	}

	return config, config.Validate()
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error

	opts := discovery.Options{
		MinScore:   c.Matching.MinScore,
		MaxResults: c.Matching.MaxResults,
		Workers:    c.Matching.Workers,
	}
	if err := opts.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("matching: %w", err))
	}

	for category, w := range c.Matching.Weights {
		if w <= 0 {
			errs = append(errs, fmt.Errorf("matching.weights.%s must be greater than zero, got %v", category, w))
		}
	}

	switch driver := strings.ToLower(strings.TrimSpace(c.Store.Driver)); driver {
	case storeDriverFile:
		if strings.TrimSpace(c.Store.File) == "" {
			errs = append(errs, errors.New("store.file is required for the file driver"))
		}
	case storeDriverPostgres:
		if strings.TrimSpace(c.Store.Postgres.DSN) == "" && strings.TrimSpace(c.Store.Postgres.DSNFile) == "" {
			errs = append(errs, errors.New("store.postgres.dsn or store.postgres.dsn-file is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}

	if c.Cache.Enabled && strings.TrimSpace(c.Cache.Address) == "" {
		errs = append(errs, errors.New("cache.address is required when the cache is enabled"))
	}

	if c.AI != nil && c.AI.Enabled {
		provider := strings.ToLower(strings.TrimSpace(c.AI.Provider))
		if provider != "" && provider != gemini.Provider {
			errs = append(errs, fmt.Errorf("unsupported ai provider: %s", c.AI.Provider))
		}
	}

	return errors.Join(errs...)
}
