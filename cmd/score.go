package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/knot-matcher/internal/discovery"
	"github.com/spigell/knot-matcher/internal/logger"
	"github.com/spigell/knot-matcher/internal/store"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Explain the compatibility of two questionnaire responses",
	Run: func(cmd *cobra.Command, _ []string) {
		runScore(cmd)
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().String("a", "", "id of the first response")
	scoreCmd.Flags().String("b", "", "id of the second response")
	scoreCmd.Flags().StringP("output", "o", outputText, "report format: text or json")

	scoreCmd.MarkFlagRequired("a")
	scoreCmd.MarkFlagRequired("b")
}

func runScore(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(logger.Options{JSON: viper.GetBool("json"), Debug: viper.GetBool("debug")})
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

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

	idA, _ := cmd.Flags().GetString("a")
	idB, _ := cmd.Flags().GetString("b")

	a, err := store.FindByID(responses, strings.TrimSpace(idA))
	if err != nil {
		logger.Fatal("finding the first response", zap.String("id", idA), zap.Error(err))
	}
	b, err := store.FindByID(responses, strings.TrimSpace(idB))
	if err != nil {
		logger.Fatal("finding the second response", zap.String("id", idB), zap.Error(err))
	}

	output, _ := cmd.Flags().GetString("output")
	if err := printPair(os.Stdout, output, engine.Pair(ctx, a, b)); err != nil {
		logger.Fatal("printing the report", zap.Error(err))
	}
}

func printPair(w io.Writer, format string, report discovery.PairReport) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case outputText, "":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s vs %s: score %d (%s), eligible: %t\n", report.A, report.B, report.Score, report.Tier, report.Eligible)
	for _, cs := range report.CategoryScores {
		fmt.Fprintf(&b, "  %-14s %6.1f  (%d scored, weight %.1f)\n", cs.Category, cs.Score, cs.Scored, cs.Weight)
	}
	if len(report.SharedTraits) > 0 {
		fmt.Fprintf(&b, "  shared traits: %s\n", strings.Join(report.SharedTraits, ", "))
	}
	for _, d := range report.Dealbreakers {
		fmt.Fprintf(&b, "  deal-breaker: %s\n", d)
	}
	for _, p := range report.Problems {
		fmt.Fprintf(&b, "  problem: %s\n", p)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
