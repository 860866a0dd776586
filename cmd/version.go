package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spigell/knot-matcher/internal/catalog"
)

// Actual version can be specified in build command.
var version = "unknown"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and the built-in catalog version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("%s version: %s, built-in catalog: %s\n", app, version, catalog.Default().Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
