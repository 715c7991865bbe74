// Package main is the entry point for the Quorum CLI.
// Quorum is a model-routing and consensus-orchestration engine: it keeps a
// local catalog of marketplace models, picks the best model per pipeline
// stage, and drives multi-model consensus runs with inline file-operation
// extraction.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/normanking/quorum/internal/config"
	"github.com/normanking/quorum/internal/logging"
)

var (
	version = "0.1.0"
	cfgPath string
	verbose bool

	cfg      *config.Config
	closeLog func() error
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "quorum",
		Short: "Quorum - multi-model consensus routing engine",
		Long: `Quorum routes development tasks across a marketplace of models:
  • Local model catalog with programming/cost/performance rankings
  • Per-stage model selection with budget and preference constraints
  • Direct vs consensus routing from six classification triggers
  • Generator → Refiner → Validator → Curator consensus pipeline
  • Inline file-operation extraction from streamed answers

Run a task:              quorum run "add retry logic to the fetcher"
Catalog upkeep:          quorum maintain [--daemon]
Inspect the catalog:     quorum models --category programming
Inspect stored profiles: quorum profiles`,
		PersistentPreRunE:  initApp,
		PersistentPostRunE: shutdownApp,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.quorum/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Quorum v%s\n", version)
		},
	})

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(maintainCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(profilesCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// INITIALIZATION
// ═══════════════════════════════════════════════════════════════════════════════

func initApp(cmd *cobra.Command, args []string) error {
	var err error
	if cfgPath != "" {
		cfg, err = config.LoadFromPath(cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	closeLog, err = logging.Setup(&logging.Config{
		Level:    level,
		FilePath: cfg.Logging.File,
		Console:  true,
	})
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}

	log.Debug().Str("config", cfgPath).Str("data_dir", cfg.Data.Dir).Msg("quorum starting")
	return nil
}

func shutdownApp(cmd *cobra.Command, args []string) error {
	if closeLog != nil {
		return closeLog()
	}
	return nil
}
