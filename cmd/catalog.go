package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/knot-matcher/internal/catalog"
	"github.com/spigell/knot-matcher/internal/logger"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Validate and print the question catalog",
	Run: func(cmd *cobra.Command, _ []string) {
		runCatalog(cmd)
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)

	catalogCmd.Flags().String("file", "", "catalog file to validate instead of the configured one")
	catalogCmd.Flags().StringP("output", "o", outputText, "format: text or yaml")

	viper.BindPFlag("catalog.file", catalogCmd.Flags().Lookup("file"))
}

func runCatalog(cmd *cobra.Command) {
	logger, err := logger.New(logger.Options{JSON: viper.GetBool("json"), Debug: viper.GetBool("debug")})
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	cat, err := loadCatalog(CatalogConfig{File: viper.GetString("catalog.file")})
	if err != nil {
		logger.Fatal("loading the question catalog", zap.Error(err))
	}

	logger.Info("catalog is valid",
		zap.String("version", cat.Version()),
		zap.Int("questions", cat.Len()),
		zap.Strings("categories", cat.Categories()),
	)

	output, _ := cmd.Flags().GetString("output")
	if err := printCatalog(os.Stdout, output, cat); err != nil {
		logger.Fatal("printing the catalog", zap.Error(err))
	}
}

func printCatalog(w io.Writer, format string, cat *catalog.Catalog) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "yaml":
		data, err := cat.Marshal()
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case outputText, "":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "catalog %s, %d questions\n", cat.Version(), cat.Len())
	for _, category := range cat.Categories() {
		fmt.Fprintf(&b, "\n%s\n", category)
		for _, q := range cat.ByCategory(category) {
			required := ""
			if q.Required {
				required = " *"
			}
			fmt.Fprintf(&b, "  %-28s %-15s%s\n", q.ID, q.Type, required)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
