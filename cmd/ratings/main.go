// Command ratings fits team strength ratings to game results.
//
// Usage:
//
//	ratings rank --teams 1A.txt --scores scores.txt --generations 200
//	ratings rank --teams 1A.txt --teams 1AA.txt --scores scores.txt --resume pool.csv --save pool.csv
//	ratings simulate --teams 1A.txt --out scores.txt --truth truth.txt
//	ratings import --teams 1A.txt --scores scores.txt
//	ratings serve --addr :8080
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/utakatalp/league-ratings/internal/config"
	"github.com/utakatalp/league-ratings/internal/logging"
)

var (
	configPath string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:           "ratings",
		Short:         "Fit team strength ratings to game results",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to the YAML configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(rankCmd, simulateCmd, importCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger shared by every
// command.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
