// Command prp turns a requirements document into executed, verified work
// items: it decomposes the document into a backlog, researches implementation
// contracts with bounded concurrency, and executes subtasks serially in
// dependency order, persisting progress after every step.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/term"

	"prp/pkg/agent"
	"prp/pkg/agent/llm"
	"prp/pkg/config"
	"prp/pkg/logx"
	"prp/pkg/metrics"
	"prp/pkg/persistence"
	"prp/pkg/pipeline"
	"prp/pkg/runerrors"
	"prp/pkg/utils"
)

// buildVersion is stamped by the release build via -ldflags.
var buildVersion = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		requirementsPath    string
		workDir             string
		continueOnError     bool
		researchConcurrency int
		cacheTTL            time.Duration
		dryRun              bool
		showVersion         bool
	)
	flag.StringVar(&requirementsPath, "requirements", "", "Path to the requirements markdown document")
	flag.StringVar(&workDir, "workdir", "", "Working directory (default: current directory)")
	flag.BoolVar(&continueOnError, "continue-on-error", false, "Record every error as non-fatal and keep going")
	flag.IntVar(&researchConcurrency, "research-concurrency", 0, "Concurrent contract generations (default from config)")
	flag.DurationVar(&cacheTTL, "cache-ttl", 0, "Research cache entry lifetime (default from config)")
	flag.BoolVar(&dryRun, "dry-run", false, "Decompose and reconcile only, execute nothing")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("prp %s\n", buildVersion)
		return 0
	}

	logger := logx.NewLogger("prp")

	if requirementsPath == "" {
		fmt.Fprintln(os.Stderr, "missing required flag: -requirements")
		flag.Usage()
		return 1
	}
	if workDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			logger.Error("Cannot determine working directory: %v", err)
			return 1
		}
		workDir = cwd
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		logger.Error("Configuration error: %v", err)
		return 1
	}
	if researchConcurrency > 0 {
		cfg.Research.Concurrency = researchConcurrency
	}
	if cacheTTL > 0 {
		cfg.Research.CacheTTL = config.Duration(cacheTTL)
	}
	continueOnError = continueOnError || cfg.ContinueOnError

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recorder := metrics.NewPrometheusRecorder(prometheus.DefaultRegisterer)

	opts := pipeline.ControllerOptions{
		Config:          cfg,
		WorkDir:         workDir,
		ContinueOnError: continueOnError,
		DryRun:          dryRun,
		Recorder:        recorder,
	}

	if !dryRun {
		secrets, err := loadSecrets(workDir)
		if err != nil {
			logger.Error("Cannot load secrets: %v", err)
			return 1
		}

		factory := agent.NewClientFactory(cfg, secrets, recorder)
		researchClient, err := clientWithPrompt(factory, secrets, cfg, recorder, cfg.Research.Model, "researcher")
		if err != nil {
			logger.Error("Cannot create research client: %v", err)
			return 1
		}
		executorClient, err := clientWithPrompt(factory, secrets, cfg, recorder, cfg.Executor.Model, "executor")
		if err != nil {
			logger.Error("Cannot create executor client: %v", err)
			return 1
		}
		opts.Researcher = agent.NewResearchAgent(researchClient)
		opts.Executor = agent.NewExecutionAgent(executorClient)

		if err := utils.EnsureDir(filepath.Join(workDir, config.DotDirName)); err != nil {
			logger.Error("Cannot create %s directory: %v", config.DotDirName, err)
			return 1
		}
		reports, err := persistence.Open(filepath.Join(workDir, config.DotDirName, "runs.db"))
		if err != nil {
			logger.Error("Cannot open run database: %v", err)
			return 1
		}
		defer func() { _ = reports.Close() }()
		opts.Reports = reports
	}

	result, runErr := pipeline.NewController(opts).Run(ctx, requirementsPath)
	printResult(result, dryRun)
	if runErr == nil && !dryRun && cfg.PrometheusURL != "" {
		printUsageTotals(logger, cfg.PrometheusURL)
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Info("Run interrupted; state flushed, resume with the same command")
		} else {
			logger.Error("Run aborted: %v", runErr)
		}
		return 1
	}
	return 0
}

// loadSecrets decrypts the secrets file if one exists, prompting for the
// password on the terminal.
func loadSecrets(workDir string) (map[string]string, error) {
	if !config.SecretsFileExists(workDir) {
		return nil, nil
	}
	password, err := promptSecret("Secrets file password")
	if err != nil {
		return nil, err
	}
	return config.DecryptSecretsFile(workDir, password)
}

// clientWithPrompt builds a provider client, falling back to an interactive
// API key prompt when neither secrets nor environment provide one.
func clientWithPrompt(factory *agent.ClientFactory, secrets map[string]string, cfg *config.Config, recorder metrics.Recorder, model, role string) (llm.LLMClient, error) {
	client, err := factory.ClientForModel(model, role)
	if err == nil {
		return client, nil
	}
	if !runerrors.Is(err, runerrors.KindConfiguration) || !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, err
	}

	provider, perr := config.ProviderForModel(model)
	if perr != nil {
		return nil, err
	}
	env := config.APIKeyEnv(provider)
	if env == "" {
		return nil, err
	}

	key, perr := promptSecret(fmt.Sprintf("%s (for %s)", env, model))
	if perr != nil || key == "" {
		return nil, err
	}
	if secrets == nil {
		secrets = map[string]string{}
	}
	secrets[env] = key
	return agent.NewClientFactory(cfg, secrets, recorder).ClientForModel(model, role)
}

// promptSecret reads a secret from the terminal without echo.
func promptSecret(label string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", runerrors.NewConfiguration("stdin is not a terminal; cannot prompt for " + label)
	}
	fmt.Fprintf(os.Stderr, "%s: ", label)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", label, err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// printUsageTotals queries the configured Prometheus server for the cache
// and token counters recorded during runs and prints them after the summary.
// Scrapes lag the process, so the numbers are best effort; query failures
// are warnings, never run failures.
func printUsageTotals(logger *logx.Logger, prometheusURL string) {
	svc, err := metrics.NewQueryService(prometheusURL)
	if err != nil {
		logger.Warn("Cannot reach Prometheus at %s: %v", prometheusURL, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	totals, err := svc.GetRunMetrics(ctx)
	if err != nil {
		logger.Warn("Prometheus query failed: %v", err)
		return
	}
	fmt.Printf("Usage totals: %d tokens (%d prompt, %d completion), cache %d hits / %d misses\n",
		totals.TotalTokens, totals.PromptTokens, totals.CompletionTokens,
		totals.CacheHits, totals.CacheMisses)

	byModel, err := svc.GetTokensByModel(ctx)
	if err != nil {
		logger.Warn("Prometheus query failed: %v", err)
		return
	}
	models := make([]string, 0, len(byModel))
	for name := range byModel {
		models = append(models, name)
	}
	sort.Strings(models)
	for _, name := range models {
		fmt.Printf("  %s: %d tokens\n", name, byModel[name])
	}
}

// printResult writes the run summary to stdout: what ran, what failed and
// why, and what was skipped, so failures are actionable without re-running.
func printResult(result *pipeline.RunResult, dryRun bool) {
	if result == nil {
		return
	}

	if result.Changes != nil && !result.Changes.Empty() {
		fmt.Printf("Delta: %d added, %d reset, %d obsoleted, %d unchanged\n",
			len(result.Changes.Added), len(result.Changes.Reset),
			len(result.Changes.Obsoleted), len(result.Changes.Unchanged))
	}
	if dryRun {
		fmt.Println("Dry run: backlog staged, nothing executed")
		return
	}
	if result.Summary == nil {
		return
	}

	s := result.Summary
	fmt.Printf("Run summary: %d completed, %d failed, %d skipped\n", s.Completed, s.Failed, s.Skipped)
	for _, o := range s.Outcomes {
		switch o.Status {
		case pipeline.OutcomeFailed:
			fmt.Printf("  FAILED  %s (%s): %s\n", o.SubtaskID, o.Title, o.Failure)
		case pipeline.OutcomeSkipped:
			fmt.Printf("  SKIPPED %s (%s): blocked dependency\n", o.SubtaskID, o.Title)
		}
	}
	if result.RunID != "" {
		fmt.Printf("Run recorded: %s\n", result.RunID)
	}
}
