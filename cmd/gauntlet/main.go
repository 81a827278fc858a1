package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zen-systems/gauntlet/pkg/adapter"
	"github.com/zen-systems/gauntlet/pkg/classify"
	"github.com/zen-systems/gauntlet/pkg/config"
	"github.com/zen-systems/gauntlet/pkg/events"
	"github.com/zen-systems/gauntlet/pkg/stats"
	"github.com/zen-systems/gauntlet/pkg/store"
	"github.com/zen-systems/gauntlet/pkg/tournament"
)

var (
	configFile   string
	mockFlag     bool
	storeDirFlag string
	auditDirFlag string
	debugFlag    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gauntlet",
		Short: "Multi-provider generation tournaments with verified execution",
		Long: `Gauntlet runs generation tasks as tournaments across multiple LLM
	providers, judges the candidates, and learns which providers win which
	kinds of work. The verify command runs the cheap-generate,
	expensive-verify gate instead of a full tournament.`,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to engine config file")
	rootCmd.PersistentFlags().BoolVar(&mockFlag, "mock", false, "back every provider with a deterministic mock adapter")
	rootCmd.PersistentFlags().StringVar(&storeDirFlag, "store-dir", "", "directory for the persistent store (defaults to in-memory)")
	rootCmd.PersistentFlags().StringVar(&auditDirFlag, "audit-dir", "", "directory for round and verification audit records")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(providersCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(experimentCmd())
	rootCmd.AddCommand(validateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var minProviders int
	var maxCost float64
	var maxLatencyMs int64
	var hints []string
	var experimentID string
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Run a generation tournament for a task",
		Long: `Classifies the task, selects providers from the learned profiles,
	fans the task out concurrently, and judges the candidates. The winning
	output goes to stdout; the ranking goes to stderr.

	An inconclusive round (too few providers answered in time) still
	records every candidate but names no winner.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			engine, repo, cleanup, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			if experimentID != "" {
				exp, err := repo.LoadExperiment(ctx, experimentID)
				if err != nil {
					return fmt.Errorf("failed to load experiment %s: %w", experimentID, err)
				}
				engine.SetExperiment(exp, nil)
			}

			task := tournament.NewTask(args[0], hints, tournament.Constraints{
				MaxCost:      maxCost,
				MaxLatency:   time.Duration(maxLatencyMs) * time.Millisecond,
				MinProviders: minProviders,
			})

			result, err := engine.RunTournament(ctx, task)
			if result == nil {
				return err
			}

			if jsonFlag {
				data, merr := json.MarshalIndent(result, "", "  ")
				if merr != nil {
					return merr
				}
				fmt.Println(string(data))
				return err
			}

			fmt.Fprintf(os.Stderr, "Task %s classified as %s\n", task.ID, result.TaskType)
			if result.LowConfidence {
				fmt.Fprintln(os.Stderr, "Classification confidence was low; treated as general.")
			}
			if result.ExploredSlot != "" {
				fmt.Fprintf(os.Stderr, "Exploration slot went to %s\n", result.ExploredSlot)
			}

			if len(result.Ranking) > 0 {
				w := tabwriter.NewWriter(os.Stderr, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "RANK\tPROVIDER\tSCORE\tCOST\tLATENCY")
				for i, entry := range result.Ranking {
					fmt.Fprintf(w, "%d\t%s\t%.3f\t$%.4f\t%dms\n",
						i+1, entry.ProviderID, entry.Score, entry.Cost, entry.LatencyMs)
				}
				w.Flush()
			}
			fmt.Fprintf(os.Stderr, "Round %s total cost $%.4f (%d tokens)\n",
				result.Round.ID, result.TotalCost, result.TotalUsage.TotalTokens)

			if winner := result.Winner(); winner != nil {
				fmt.Println(winner.Content)
			}
			return err
		},
	}

	cmd.Flags().IntVar(&minProviders, "min-providers", 0, "minimum providers that must answer (0 uses the configured default)")
	cmd.Flags().Float64Var(&maxCost, "max-cost", 0, "estimated cost ceiling for the round in USD (0 disables)")
	cmd.Flags().Int64Var(&maxLatencyMs, "max-latency-ms", 0, "per-call timeout override in milliseconds (0 uses the configured default)")
	cmd.Flags().StringArrayVar(&hints, "hint", nil, "task-type hint (repeatable)")
	cmd.Flags().StringVar(&experimentID, "experiment", "", "record this round against a stored experiment")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print the full round result as JSON")

	return cmd
}

func verifyCmd() *cobra.Command {
	var generatorID string
	var verifierID string
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "verify [task]",
		Short: "Run a task through the verification gate",
		Long: `Generates with a cheap provider and has an expensive provider verify
	the output. Rejected drafts get repair feedback and another attempt, up
	to the configured retry budget; after that the verifier generates the
	output itself.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if generatorID == "" || verifierID == "" {
				return fmt.Errorf("--generator and --verifier are required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			engine, _, cleanup, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			task := tournament.NewTask(args[0], nil, tournament.Constraints{})
			rec, err := engine.RunVerifiedGeneration(ctx, task, generatorID, verifierID)
			if rec == nil {
				return err
			}

			if jsonFlag {
				data, merr := json.MarshalIndent(rec, "", "  ")
				if merr != nil {
					return merr
				}
				fmt.Println(string(data))
				return err
			}

			fmt.Fprintf(os.Stderr, "Decision: %s after %d retries, total cost $%.4f\n",
				rec.Decision, rec.RetryCount, rec.TotalCost)
			if rec.BaselineCost > 0 {
				fmt.Fprintf(os.Stderr, "Baseline (verifier-only) cost $%.4f, savings %.1f%%\n",
					rec.BaselineCost, rec.CostSavingsPct*100)
			}
			for _, item := range rec.Feedback {
				fmt.Fprintf(os.Stderr, "  - %s\n", item)
			}

			if rec.FinalContent != "" {
				fmt.Println(rec.FinalContent)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&generatorID, "generator", "", "provider that drafts the output (required)")
	cmd.Flags().StringVar(&verifierID, "verifier", "", "provider that verifies and escalates (required)")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print the full verification record as JSON")

	return cmd
}

func classifyCmd() *cobra.Command {
	var hints []string
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "classify [task]",
		Short: "Show how a task would be classified",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			adapters, err := createAdapters(cfg)
			if err != nil {
				return fmt.Errorf("failed to create adapters: %w", err)
			}

			classifier := classify.NewClassifier(adapters, cfg.Engine, classify.WithLogger(newLogger()))
			result, err := classifier.Classify(context.Background(), args[0], hints)
			if err != nil {
				return err
			}

			if jsonFlag {
				data, merr := json.MarshalIndent(result, "", "  ")
				if merr != nil {
					return merr
				}
				fmt.Println(string(data))
				return nil
			}

			source := "heuristic"
			if result.UsedLLM {
				source = fmt.Sprintf("%s/%s", result.ClassifierAdapter, result.ClassifierModel)
			}
			fmt.Printf("Type: %s (confidence %.2f, %s)\n", result.TaskType, result.Confidence, source)
			if result.LowConfidence {
				fmt.Println("Confidence below threshold; tasks like this run as general.")
			}
			for _, reason := range result.Reasons {
				fmt.Printf("  - %s\n", reason)
			}

			if len(result.Candidates) > 0 {
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "CANDIDATE\tSCORE\tTRIGGERS")
				for _, c := range result.Candidates {
					fmt.Fprintf(w, "%s\t%d\t%s\n", c.TaskType, c.Score, strings.Join(c.Triggers, ", "))
				}
				w.Flush()
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&hints, "hint", nil, "task-type hint (repeatable)")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print the full classification as JSON")

	return cmd
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List provider profiles and their learned statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			engine, _, cleanup, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tADAPTER\tMODEL\tWIN RATE\tSAMPLES\tWINS\tAVG LATENCY\tAVG COST\tSTATUS")
			for _, p := range engine.Registry().Snapshot() {
				status := engine.Registry().BreakerState(p.ProviderID).String()
				if p.Disabled {
					status = "disabled"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%d\t%d\t%.0fms\t$%.4f\t%s\n",
					p.ProviderID, p.Adapter, p.Model, p.WinRate, p.SampleCount, p.Wins,
					p.AvgLatencyMs, p.AvgCost, status)
			}
			return w.Flush()
		},
	}
}

func historyCmd() *cobra.Command {
	var showVerifications bool

	cmd := &cobra.Command{
		Use:   "history [task-id]",
		Short: "Show stored rounds and verifications for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			repo, cleanup, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := context.Background()
			taskID := args[0]

			if showVerifications {
				records, err := repo.ListVerifications(ctx, taskID)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Printf("No verifications recorded for task %s\n", taskID)
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "DECISION\tGENERATOR\tVERIFIER\tRETRIES\tCOST\tSAVINGS\tCOMPLETED")
				for _, rec := range records {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t$%.4f\t%.1f%%\t%s\n",
						rec.Decision, rec.GeneratorProviderID, rec.VerifierProviderID,
						rec.RetryCount, rec.TotalCost, rec.CostSavingsPct*100,
						rec.CompletedAt.Format(time.RFC3339))
				}
				return w.Flush()
			}

			rounds, err := repo.ListRounds(ctx, taskID)
			if err != nil {
				return err
			}
			if len(rounds) == 0 {
				fmt.Printf("No rounds recorded for task %s\n", taskID)
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ROUND\tTYPE\tWINNER\tOK\tINCONCLUSIVE\tSTARTED")
			for _, round := range rounds {
				winner := round.WinnerProviderID
				if winner == "" {
					winner = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%v\t%s\n",
					round.ID, round.TaskType, winner, round.OKCount(), len(round.Candidates),
					round.Inconclusive, round.StartedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&showVerifications, "verifications", false, "show verification records instead of rounds")

	return cmd
}

func experimentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "experiment",
		Short: "Manage A/B experiments over selection policies",
	}
	cmd.AddCommand(experimentStartCmd())
	cmd.AddCommand(experimentReportCmd())
	return cmd
}

func experimentStartCmd() *cobra.Command {
	var name string
	var policyA string
	var policyB string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Create and store a new experiment",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" || policyA == "" || policyB == "" {
				return fmt.Errorf("--name, --policy-a, and --policy-b are required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			repo, cleanup, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			exp := stats.NewExperiment(name, policyA, policyB)
			if err := repo.SaveExperiment(context.Background(), exp); err != nil {
				return fmt.Errorf("failed to store experiment: %w", err)
			}

			fmt.Printf("Experiment %s created.\n", exp.ID)
			fmt.Printf("Run rounds with --experiment %s to collect samples.\n", exp.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "experiment name")
	cmd.Flags().StringVar(&policyA, "policy-a", "", "policy name for arm a")
	cmd.Flags().StringVar(&policyB, "policy-b", "", "policy name for arm b")

	return cmd
}

func experimentReportCmd() *cobra.Command {
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "report [experiment-id]",
		Short: "Report outcome rates and significance for an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			repo, cleanup, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			exp, err := repo.LoadExperiment(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to load experiment %s: %w", args[0], err)
			}

			report := exp.Report(cfg.Engine.SignificanceMinSamples)
			if jsonFlag {
				data, merr := json.MarshalIndent(report, "", "  ")
				if merr != nil {
					return merr
				}
				fmt.Println(string(data))
				return nil
			}

			a := exp.Samples[stats.VariantA]
			b := exp.Samples[stats.VariantB]
			fmt.Printf("Experiment: %s (%s)\n", exp.Name, exp.ID)
			fmt.Printf("  a=%s: %d/%d (rate %.3f)\n", exp.VariantA, a.Successes, a.Trials, report.RateA)
			fmt.Printf("  b=%s: %d/%d (rate %.3f)\n", exp.VariantB, b.Successes, b.Trials, report.RateB)
			if !report.InsufficientData {
				fmt.Printf("  z=%.3f p=%.4f significant=%v\n", report.ZScore, report.PValue, report.Significant)
				if report.Winner != "" {
					fmt.Printf("  winner: %s\n", report.Winner)
				}
			}
			fmt.Printf("Recommendation: %s\n", report.Recommendation)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print the report as JSON")

	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [engine.yaml]",
		Short: "Validate an engine config file",
		Long:  "Checks provider declarations, tuning ranges, and model names without running anything.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engineCfg, err := config.LoadEngineConfig(args[0])
			if err != nil {
				return err
			}
			if err := engineCfg.Validate(); err != nil {
				return err
			}

			modelAliases, _ := config.LoadAliasesWithFallback("configs/models.yaml")
			if modelAliases == nil || len(modelAliases.Providers) == 0 {
				modelAliases = config.DefaultAliases()
			}
			if errs := modelAliases.ValidateEngineConfig(engineCfg); len(errs) > 0 {
				fmt.Fprintf(os.Stderr, "Found %d validation errors:\n", len(errs))
				for _, err := range errs {
					fmt.Fprintf(os.Stderr, "  - %s\n", err)
				}
				return fmt.Errorf("validation failed")
			}

			fmt.Println("Engine config is valid.")
			return nil
		},
	}
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadWithEngineFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func createAdapters(cfg *config.Config) (map[string]adapter.Adapter, error) {
	adapters := make(map[string]adapter.Adapter)

	if mockFlag {
		for _, spec := range cfg.Engine.Providers {
			if _, ok := adapters[spec.Adapter]; !ok {
				adapters[spec.Adapter] = adapter.NewMockAdapterNamed(spec.Adapter, "")
			}
		}
		adapters["mock"] = adapter.NewMockAdapter()
		return adapters, nil
	}

	if cfg.AnthropicAPIKey != "" {
		a, err := adapter.NewAnthropicAdapter(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create anthropic adapter: %w", err)
		}
		adapters["anthropic"] = a
	}

	if cfg.OpenAIAPIKey != "" {
		a, err := adapter.NewOpenAIAdapter(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai adapter: %w", err)
		}
		adapters["openai"] = a
	}

	if cfg.GoogleAPIKey != "" {
		a, err := adapter.NewGoogleAdapter(cfg.GoogleAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create google adapter: %w", err)
		}
		adapters["google"] = a
	}

	if cfg.DeepSeekAPIKey != "" {
		a, err := adapter.NewDeepSeekAdapter(cfg.DeepSeekAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create deepseek adapter: %w", err)
		}
		adapters["deepseek"] = a
	}

	adapters["mock"] = adapter.NewMockAdapter()

	if len(adapters) == 1 {
		fmt.Fprintln(os.Stderr, "No API keys configured; only the mock adapter is available. Use --mock to back every provider with mocks.")
	}

	return adapters, nil
}

func newLogger() *zap.Logger {
	if !debugFlag {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// openStore opens the configured store: badger when a directory is set,
// in-memory otherwise.
func openStore(cfg *config.Config) (store.Repository, func(), error) {
	dir := storeDirFlag
	if dir == "" {
		dir = cfg.StoreDir
	}
	if dir == "" {
		repo := store.NewMemory()
		return repo, func() { repo.Close() }, nil
	}

	repo, err := store.OpenBadger(dir, store.WithBadgerLogger(newLogger()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store at %s: %w", dir, err)
	}
	return repo, func() { repo.Close() }, nil
}

func buildEngine(cfg *config.Config) (*tournament.Engine, store.Repository, func(), error) {
	logger := newLogger()

	adapters, err := createAdapters(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create adapters: %w", err)
	}

	repo, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	emitter := events.NewEmitter(events.WithLogger(logger))
	if auditDirFlag != "" {
		writer, err := events.NewWriter(auditDirFlag, events.WithWriterLogger(logger))
		if err != nil {
			closeStore()
			return nil, nil, nil, fmt.Errorf("failed to create audit writer: %w", err)
		}
		emitter.Subscribe(writer)
	}

	engine := tournament.NewEngine(cfg.Engine, adapters,
		tournament.WithLogger(logger),
		tournament.WithRepository(repo),
		tournament.WithEmitter(emitter),
	)

	if err := engine.Restore(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not restore profiles: %v\n", err)
	}

	cleanup := func() {
		closeStore()
		_ = logger.Sync()
	}
	return engine, repo, cleanup, nil
}
