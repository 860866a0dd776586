package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/knot-matcher/internal/ai"
	"github.com/spigell/knot-matcher/internal/cache"
	"github.com/spigell/knot-matcher/internal/discovery"
	"github.com/spigell/knot-matcher/internal/filtering"
	"github.com/spigell/knot-matcher/internal/logger"
	"github.com/spigell/knot-matcher/internal/metrics"
	"github.com/spigell/knot-matcher/internal/questionnaire"
	"github.com/spigell/knot-matcher/internal/store"
)

const (
	PromptSummaries = "Show match summaries"
	PromptStrength  = "Relationship strength report"
	PromptDump      = "Dump matches to file"
	PromptExclude   = "Append all matches to exclude file"
	PromptExit      = "Exit"

	outputText = "text"
	outputJSON = "json"

	logFieldRunID = logger.FieldRunID
)

var errExit = errors.New("exit requested")

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Find the most compatible candidates for one questionnaire response",
	Run: func(cmd *cobra.Command, _ []string) {
		runMatch(cmd)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().String("response", "", "id of the subject's questionnaire response")
	matchCmd.Flags().String("user", "", "user id whose latest response is the subject")
	matchCmd.Flags().String("lead", "", "lead id whose latest response is the subject")
	matchCmd.Flags().Int("min-score", discovery.DefaultMinScore, "lowest overall score to return")
	matchCmd.Flags().Int("max-results", discovery.DefaultMaxResults, "maximum number of matches to return")
	matchCmd.Flags().Int("workers", 1, "number of goroutines scoring candidates")
	matchCmd.Flags().StringP("output", "o", outputText, "result format: text or json")
	matchCmd.Flags().BoolP("no-prompt", "y", false, "print results and exit without the interactive menu")
	matchCmd.Flags().Bool("no-cache", false, "skip the result cache for this run")
	matchCmd.Flags().Bool("ai", false, "add a model-written narrative to every match")
	matchCmd.Flags().StringP("exclude-file", "e", "", "file with already seen candidates to skip. Default is unset.")

	viper.BindPFlag("matching.min-score", matchCmd.Flags().Lookup("min-score"))
	viper.BindPFlag("matching.max-results", matchCmd.Flags().Lookup("max-results"))
	viper.BindPFlag("matching.workers", matchCmd.Flags().Lookup("workers"))
	viper.BindPFlag("ai.enabled", matchCmd.Flags().Lookup("ai"))
	viper.BindPFlag("exclude-file", matchCmd.Flags().Lookup("exclude-file"))

	matchCmd.MarkFlagsMutuallyExclusive("response", "user", "lead")
	matchCmd.MarkFlagsOneRequired("response", "user", "lead")
}

// subjectQuery names the subject either by response id or by person.
type subjectQuery struct {
	responseID string
	ref        questionnaire.SubjectRef
}

func (q subjectQuery) key() string {
	if q.responseID != "" {
		return "response:" + q.responseID
	}
	return q.ref.String()
}

func subjectFromFlags(cmd *cobra.Command) subjectQuery {
	flags := cmd.Flags()
	response, _ := flags.GetString("response")
	user, _ := flags.GetString("user")
	lead, _ := flags.GetString("lead")

	switch {
	case strings.TrimSpace(user) != "":
		return subjectQuery{ref: questionnaire.UserRef(user)}
	case strings.TrimSpace(lead) != "":
		return subjectQuery{ref: questionnaire.LeadRef(lead)}
	default:
		return subjectQuery{responseID: strings.TrimSpace(response)}
	}
}

func runMatch(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(logger.Options{JSON: viper.GetBool("json"), Debug: viper.GetBool("debug")})
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	runID := uuid.NewString()
	logger = logger.With(zap.String(logFieldRunID, runID))
	logger.Info("starting the knot-matcher", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	cat, err := loadCatalog(config.Catalog)
	if err != nil {
		logger.Fatal("loading the question catalog", zap.Error(err))
	}

	engine, err := newEngine(config, cat, logger)
	if err != nil {
		logger.Fatal("building the discovery engine", zap.Error(err))
	}

	accessor, closeStore, err := openStore(ctx, config.Store, cat, logger)
	if err != nil {
		logger.Fatal("opening the response store", zap.Error(err))
	}
	defer closeStore()

	responses, err := accessor.Responses(ctx)
	if err != nil {
		logger.Fatal("loading responses", zap.Error(err))
	}
	logger.Info("loaded responses", zap.Int("count", len(responses)))

	noCache, _ := cmd.Flags().GetBool("no-cache")
	var resultCache *cache.ResultCache
	if !noCache {
		resultCache, err = openCache(ctx, config.Cache, logger)
		if err != nil {
			logger.Fatal("opening the result cache", zap.Error(err))
		}
	}

	var opts []discovery.Option
	if config.ExcludeFile != "" {
		excluded, err := filtering.LoadExcludeFile(config.ExcludeFile)
		if err != nil {
			logger.Fatal("reading the exclude file", zap.Error(err))
		}
		opts = append(opts, discovery.WithExclude(excluded.ResponseIDs()...))
	}

	recorder := metrics.NewRecorder()
	query := subjectFromFlags(cmd)

	results, stats, err := discover(ctx, engine, resultCache, recorder, query, responses, logger, opts...)
	if err != nil {
		logger.Fatal("discovering matches", zap.Error(err))
	}

	if config.MetricsFile != "" {
		if err := recorder.WriteTextfile(config.MetricsFile); err != nil {
			logger.Warn("writing metrics", zap.Error(err))
		}
	}

	if stats.SubjectRejected != "" {
		logger.Info("exiting", zap.String("reason", stats.SubjectRejected))
		return
	}

	narrator, err := newNarrator(ctx, config.AI, logger)
	if err != nil {
		logger.Warn("skipping ai narratives", zap.Error(err))
	}
	if err := ai.Annotate(ctx, narrator, results, logger); err != nil {
		logger.Warn("ai narratives interrupted", zap.Error(err))
	}

	output, _ := cmd.Flags().GetString("output")
	if err := printResults(os.Stdout, output, results, stats); err != nil {
		logger.Fatal("printing results", zap.Error(err))
	}

	if len(results) == 0 {
		logger.Info("exiting", zap.String("reason", "no matches found"))
		return
	}

	if noPrompt, _ := cmd.Flags().GetBool("no-prompt"); noPrompt {
		return
	}

	for {
		items := []string{PromptSummaries, PromptStrength, PromptDump}
		if config.ExcludeFile != "" {
			items = append(items, PromptExclude)
		}
		items = append(items, PromptExit)

		prompt := promptui.Select{
			Label: "What next?",
			Items: items,
		}

		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := handleAction(action, logger, config.ExcludeFile, results); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

// discover answers from the cache when possible and runs a discovery pass
// otherwise.
func discover(ctx context.Context, engine *discovery.Engine, resultCache *cache.ResultCache, recorder *metrics.Recorder, query subjectQuery, responses []questionnaire.Response, log *zap.Logger, opts ...discovery.Option) ([]discovery.MatchResult, discovery.Stats, error) {
	var key string
	if resultCache != nil {
		resolved, err := engine.Resolve(opts...)
		if err != nil {
			return nil, discovery.Stats{}, err
		}
		fingerprint, err := cache.Fingerprint(responses)
		if err != nil {
			return nil, discovery.Stats{}, err
		}
		key = cache.Key(query.key(), engine.Fingerprint(), resolved, fingerprint)

		entry, ok, err := resultCache.Get(ctx, key)
		if err != nil {
			log.Warn("reading the result cache", zap.Error(err))
		}
		if ok {
			log.Info("using cached matches", zap.Time("cached_at", entry.CachedAt))
			recorder.ObserveCached()
			return entry.Results, entry.Stats, nil
		}
	}

	started := time.Now()

	var (
		results []discovery.MatchResult
		stats   discovery.Stats
	)
	if query.responseID != "" {
		subject, err := store.FindByID(responses, query.responseID)
		if err != nil {
			return nil, discovery.Stats{}, fmt.Errorf("response %q: %w", query.responseID, err)
		}
		results, stats = engine.FindMatches(ctx, subject, responses, opts...)
	} else {
		var err error
		results, stats, err = engine.Recommend(ctx, store.Static(responses), query.ref, opts...)
		if err != nil {
			return nil, discovery.Stats{}, err
		}
	}

	recorder.Observe(stats, time.Since(started))

	if resultCache != nil && stats.SubjectRejected == "" {
		if err := resultCache.Set(ctx, key, cache.Entry{Results: results, Stats: stats}); err != nil {
			log.Warn("writing the result cache", zap.Error(err))
		}
	}

	return results, stats, nil
}

func handleAction(action string, logger *zap.Logger, excludeFile string, results []discovery.MatchResult) error {
	switch action {
	case PromptSummaries:
		return printText(os.Stdout, results)
	case PromptStrength:
		for _, r := range results {
			report := discovery.Strength(r)
			fmt.Printf("%s (%d): %s\n", r.Candidate.Name, r.Score, report.Strength)
			for _, f := range report.Factors {
				fmt.Printf("  + %s\n", f)
			}
			for _, rec := range report.Recommendations {
				fmt.Printf("  > %s\n", rec)
			}
		}
		return nil
	case PromptDump:
		filename, err := dumpToTmpFile(results)
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		logger.Info("dumping result to file", zap.String("filename", filename))
		return nil
	case PromptExclude:
		if err := appendToExcludeFile(excludeFile, results, time.Now().UTC()); err != nil {
			return fmt.Errorf("append to exclude file: %w", err)
		}
		logger.Info("appended to exclude file", zap.String("filename", excludeFile))
		return errExit
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func printResults(w io.Writer, format string, results []discovery.MatchResult, stats discovery.Stats) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Matches []discovery.MatchResult `json:"matches"`
			Stats   discovery.Stats         `json:"stats"`
		}{Matches: results, Stats: stats})
	case outputText, "":
		return printText(w, results)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func printText(w io.Writer, results []discovery.MatchResult) error {
	for i, r := range results {
		if _, err := fmt.Fprintf(w, "%d. %s [%s] score %d\n   %s\n", i+1, r.Candidate.Name, r.Candidate.ResponseID, r.Score, r.Summary); err != nil {
			return err
		}
		if len(r.Concerns) > 0 {
			if _, err := fmt.Fprintf(w, "   concerns: %s\n", strings.Join(r.Concerns, "; ")); err != nil {
				return err
			}
		}
		if r.Narrative != "" {
			if _, err := fmt.Fprintf(w, "   %s\n", strings.ReplaceAll(r.Narrative, "\n", "\n   ")); err != nil {
				return err
			}
		}
	}
	return nil
}

func dumpToTmpFile(results []discovery.MatchResult) (string, error) {
	file, err := os.CreateTemp("", "matches_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return "", err
	}
	return file.Name(), nil
}

func appendToExcludeFile(path string, results []discovery.MatchResult, now time.Time) error {
	excluded, err := filtering.LoadExcludeFile(path)
	if err != nil {
		return err
	}

	for _, r := range results {
		excluded.Append(&filtering.ExcludedMatch{
			ResponseID: r.Candidate.ResponseID,
			Name:       r.Candidate.Name,
			ExcludedAt: now,
		})
	}

	return excluded.ToFile(path)
}
