package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/knot-matcher/internal/logger"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the match result cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached discovery result",
	Run: func(_ *cobra.Command, _ []string) {
		runCacheClear()
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func runCacheClear() {
	ctx := context.Background()

	logger, err := logger.New(logger.Options{JSON: viper.GetBool("json"), Debug: viper.GetBool("debug")})
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	if !config.Cache.Enabled {
		logger.Info("nothing to clear", zap.String("reason", "cache is disabled"))
		return
	}

	resultCache, err := openCache(ctx, config.Cache, logger)
	if err != nil {
		logger.Fatal("opening the result cache", zap.Error(err))
	}

	if err := resultCache.Invalidate(ctx); err != nil {
		logger.Fatal("clearing the result cache", zap.Error(err))
	}
	logger.Info("result cache cleared", zap.String("address", config.Cache.Address))
}
