package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/normanking/quorum/internal/catalog"
	"github.com/normanking/quorum/internal/config"
	"github.com/normanking/quorum/internal/data"
	"github.com/normanking/quorum/internal/llm"
	"github.com/normanking/quorum/internal/maintenance"
	"github.com/normanking/quorum/internal/pipeline"
	"github.com/normanking/quorum/internal/routing"
	"github.com/normanking/quorum/internal/selection"
)

// ═══════════════════════════════════════════════════════════════════════════════
// WIRING
// ═══════════════════════════════════════════════════════════════════════════════

type app struct {
	store    *data.Store
	catalog  *catalog.Catalog
	selector *selection.Selector
	engine   *routing.Engine
	runner   *maintenance.Maintenance
}

func buildApp(cfg *config.Config) (*app, error) {
	store, err := data.NewDB(cfg.Data.Dir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	client := catalog.NewClient(catalog.ClientConfig{
		Endpoint: cfg.Marketplace.Endpoint,
		APIKey:   cfg.Marketplace.APIKey,
		Referer:  cfg.Marketplace.Referer,
		Title:    cfg.Marketplace.Title,
		Timeout:  cfg.Marketplace.Timeout,
	})
	cat := catalog.New(store, client)

	selector := selection.NewSelector(cat, store, selection.Config{
		ProgrammingPoolSize:     cfg.Selection.ProgrammingPoolSize,
		CostPoolSize:            cfg.Selection.CostPoolSize,
		BlendPoolSize:           cfg.Selection.BlendPoolSize,
		ProviderReputation:      cfg.Selection.ProviderReputation,
		QualityProviders:        cfg.Selection.QualityProviders,
		EstimatedTokensPerStage: cfg.Selection.EstimatedTokensPerStage,
	})

	engine := routing.NewEngine(routing.Config{
		ConfidenceThreshold: cfg.Routing.ConfidenceThreshold,
		ComplexityThreshold: cfg.Routing.ComplexityThreshold,
		Policy:              policyFromConfig(cfg.Routing.Policy),
		SimplePhrases:       cfg.Routing.SimplePhrases,
		ComplexPhrases:      cfg.Routing.ComplexPhrases,
	})

	runner := maintenance.New(cat, store, nil, maintenance.Config{
		Interval:          cfg.Maintenance.Interval,
		FlagshipProviders: cfg.Maintenance.FlagshipProviders,
		FlagshipKeywords:  cfg.Maintenance.FlagshipKeywords,
		FastKeywords:      cfg.Maintenance.FastKeywords,
		PatternTokens:     cfg.Maintenance.PatternTokens,
	})

	return &app{store: store, catalog: cat, selector: selector, engine: engine, runner: runner}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: closing store: %v\n", err)
	}
}

func policyFromConfig(policy map[string]string) map[routing.Trigger]routing.Decision {
	if len(policy) == 0 {
		return nil
	}
	out := make(map[routing.Trigger]routing.Decision, len(policy))
	for trigger, decision := range policy {
		out[routing.Trigger(trigger)] = routing.Decision(decision)
	}
	return out
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// ═══════════════════════════════════════════════════════════════════════════════
// RUN COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func runCmd() *cobra.Command {
	var (
		highRisk   bool
		archChange bool
		analyze    bool
		multi      bool
		confidence float64
		complexity float64
		direct     bool
	)

	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Classify a task and execute it through the consensus pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task := args[0]

			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signalContext()
			defer cancel()

			criteria := routing.Criteria{
				HighRiskOperation:     highRisk,
				ArchitecturalChange:   archChange,
				UserRequestedAnalysis: analyze,
				MultipleApproaches:    multi,
				ConfidenceLevel:       confidence,
				ComplexityScore:       complexity,
			}
			result := a.engine.Classify(criteria)

			// The pre-filter hint can only widen the direct path when no
			// explicit trigger fired; it never overrides the classification.
			decision := result.Decision
			if direct || (decision == routing.DecisionDirect && a.engine.ShouldUseDirectPath(task)) {
				decision = routing.DecisionDirect
			}
			if direct && len(result.Triggers) > 0 {
				fmt.Fprintf(os.Stderr, "Warning: --direct ignores fired triggers %v\n", result.Triggers)
			}

			fmt.Printf("Routing: %s\n\n", decision)

			provider := llm.NewClient(&llm.Config{
				Endpoint:    cfg.Marketplace.Endpoint,
				APIKey:      cfg.Marketplace.APIKey,
				Referer:     cfg.Marketplace.Referer,
				Title:       cfg.Marketplace.Title,
				MaxTokens:   cfg.Pipeline.MaxTokens,
				Temperature: cfg.Pipeline.Temperature,
				Timeout:     cfg.Marketplace.Timeout,
			})

			executor := pipeline.NewExecutor(a.selector, provider, nil, &consoleCallbacks{}, pipeline.Config{
				MaxTokens:      cfg.Pipeline.MaxTokens,
				Temperature:    cfg.Pipeline.Temperature,
				ChunkQueueSize: cfg.Pipeline.ChunkQueueSize,
			})

			conversationID := uuid.NewString()
			selectionCriteria := selection.Criteria{Complexity: fmt.Sprintf("%.2f", complexity)}

			if decision == routing.DecisionDirect {
				_, err = executor.RunDirect(ctx, conversationID, task, selectionCriteria)
			} else {
				_, err = executor.Run(ctx, conversationID, task, selectionCriteria)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&highRisk, "high-risk", false, "flag the task as a high-risk operation")
	cmd.Flags().BoolVar(&archChange, "arch-change", false, "flag the task as an architectural change")
	cmd.Flags().BoolVar(&analyze, "analyze", false, "the user explicitly requested analysis")
	cmd.Flags().BoolVar(&multi, "multi-approach", false, "multiple viable approaches exist")
	cmd.Flags().Float64Var(&confidence, "confidence", 1.0, "confidence level (0.0-1.0)")
	cmd.Flags().Float64Var(&complexity, "complexity", 0.0, "complexity score (0.0-1.0)")
	cmd.Flags().BoolVar(&direct, "direct", false, "force the single-stage direct path")

	return cmd
}

// consoleCallbacks streams pipeline progress to stdout.
type consoleCallbacks struct{}

func (consoleCallbacks) OnStageStart(stage selection.Stage, modelID string) error {
	fmt.Printf("── %s (%s) ──\n", stage, modelID)
	return nil
}

func (consoleCallbacks) OnStageChunk(stage selection.Stage, chunk string, runningTotal int) error {
	fmt.Print(chunk)
	return nil
}

func (consoleCallbacks) OnStageProgress(selection.Stage, string) error { return nil }

func (consoleCallbacks) OnStageComplete(stage selection.Stage, result *pipeline.StageResult) error {
	fmt.Printf("\n\n[%s done in %s]\n\n", stage, result.Duration.Round(10*time.Millisecond))
	return nil
}

func (consoleCallbacks) OnError(stage selection.Stage, err error) error {
	fmt.Fprintf(os.Stderr, "\n[%s failed: %v]\n", stage, err)
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// MAINTAIN COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func maintainCmd() *cobra.Command {
	var daemon bool

	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Sync the catalog and repair stored profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signalContext()
			defer cancel()

			if daemon {
				scheduler := maintenance.NewScheduler(a.runner, cfg.Maintenance.CronSpec)
				if err := scheduler.Start(ctx); err != nil {
					return err
				}
				fmt.Printf("Maintenance daemon running (cron %q), ctrl-c to stop\n", cfg.Maintenance.CronSpec)
				<-ctx.Done()
				scheduler.Stop()
				return nil
			}

			report := a.runner.Run(ctx)
			printReport(report)
			if report.SyncError != "" || len(report.Errors) > 0 {
				return fmt.Errorf("maintenance completed with errors")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&daemon, "daemon", false, "run on the configured cron schedule until interrupted")
	return cmd
}

func printReport(report *maintenance.MaintenanceReport) {
	fmt.Printf("Maintenance run %s → %s\n", report.StartedAt.Format("15:04:05"), report.FinishedAt.Format("15:04:05"))
	if report.SyncError != "" {
		fmt.Printf("  sync:     FAILED (%s)\n", report.SyncError)
	} else {
		fmt.Printf("  sync:     %d models\n", report.SyncedModels)
	}
	fmt.Printf("  profiles: %d checked, %d invalid, %d migrated\n",
		report.ProfilesChecked, len(report.InvalidProfiles), len(report.MigratedProfiles))
	for _, e := range report.Errors {
		fmt.Printf("  error:    %s\n", e)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// MODELS COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func modelsCmd() *cobra.Command {
	var (
		category string
		limit    int
		sync     bool
	)

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List ranked catalog models",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signalContext()
			defer cancel()

			if sync {
				count, err := a.catalog.Sync(ctx)
				if err != nil {
					return fmt.Errorf("sync catalog: %w", err)
				}
				fmt.Printf("Synced %d models\n\n", count)
			}

			cat := catalog.Category(category)
			ranked, err := a.catalog.TopRanked(ctx, cat, limit)
			if err != nil {
				return fmt.Errorf("query rankings: %w", err)
			}
			if len(ranked) == 0 {
				fmt.Println("No ranked models. Run `quorum maintain` or `quorum models --sync` first.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			fmt.Fprintf(w, "RANK\tMODEL\tPROVIDER\tCONTEXT\tPRICE/1M\tSCORE\n")
			for _, rm := range ranked {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t$%.2f\t%.1f\n",
					rm.Position, rm.ExternalID, rm.Provider, rm.ContextWindow,
					rm.BlendedPrice()*1_000_000, rm.Score)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&category, "category", string(catalog.CategoryProgramming), "ranking category (programming, cost, performance)")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of models to show")
	cmd.Flags().BoolVar(&sync, "sync", false, "sync the catalog before listing")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// PROFILES COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func profilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List stored routing profiles with validation status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signalContext()
			defer cancel()

			profiles, err := a.store.Profiles(ctx)
			if err != nil {
				return fmt.Errorf("list profiles: %w", err)
			}
			if len(profiles) == 0 {
				fmt.Println("No stored profiles.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			fmt.Fprintf(w, "PROFILE\tSLOT\tMODEL\tSTATUS\n")
			for _, p := range profiles {
				for _, slot := range data.ProfileSlots {
					externalID := p.ModelFor(slot)
					status := "active"
					active, err := a.store.ActiveModelByExternalID(ctx, externalID)
					if err != nil {
						status = fmt.Sprintf("error: %v", err)
					} else if active == nil {
						status = "STALE"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, slot, externalID, status)
				}
			}
			return w.Flush()
		},
	}

	return cmd
}
