// -----------------------------------------------------------------------
// compilot - LLM-assisted iterative build tool
// Usage: compilot [flags] run <project_path>
// -----------------------------------------------------------------------

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/compilot/internal/analyzer"
	"github.com/ternarybob/compilot/internal/common"
	"github.com/ternarybob/compilot/internal/deps"
	"github.com/ternarybob/compilot/internal/engine"
	"github.com/ternarybob/compilot/internal/executor"
	"github.com/ternarybob/compilot/internal/models"
	"github.com/ternarybob/compilot/internal/runlog"
	"github.com/ternarybob/compilot/internal/services/diagnosis"
	"github.com/ternarybob/compilot/internal/services/llm"
)

var (
	// Command-line flags
	configFile   = flag.String("config", "", "Configuration file path")
	configFileC  = flag.String("c", "", "Configuration file path (shorthand)")
	logLevel     = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	maxRetry     = flag.Int("max-retry", 0, "Maximum repair attempts (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] run <project_path>\n\nFlags:\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Compilot version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) != 2 || args[0] != "run" {
		usage()
		os.Exit(1)
	}
	projectPath := args[1]

	// Startup sequence:
	// 1. Load config (defaults -> file -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner
	configPath := *configFile
	if *configFileC != "" {
		configPath = *configFileC
	}
	if configPath == "" {
		// Auto-discover config file in the current directory
		if _, err := os.Stat("compilot.toml"); err == nil {
			configPath = "compilot.toml"
		}
	}

	config, err := common.LoadFromFile(configPath)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Str("path", configPath).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	if *logLevel != "" {
		config.Logging.Level = strings.ToLower(*logLevel)
	}
	if *maxRetry > 0 {
		config.Engine.MaxRetry = *maxRetry
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Str("project", projectPath).
		Str("provider", config.Oracle.Provider).
		Int("max_retry", config.Engine.MaxRetry).
		Msg("Starting compile run")

	os.Exit(run(config, logger, projectPath))
}

// run wires the components and executes one compile run, returning the
// process exit code
func run(config *common.Config, logger arbor.ILogger, projectPath string) int {
	oracle, err := llm.NewClient(&config.Oracle, config.OracleTimeout(), config.OracleRateLimit(), logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize oracle client")
		return 1
	}
	defer oracle.Close()

	recorder, err := runlog.New(config.RunLog.Path)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open run log")
		return 1
	}
	defer recorder.Close()

	handler := diagnosis.New(oracle, logger)
	runner := executor.New(config.Engine.OutputLimitBytes, logger)

	eng := engine.New(engine.Options{
		Analyzer:  analyzer.New(handler, logger),
		Runner:    runner,
		Deps:      deps.New(runner, config.BuildTimeout(), config.PackageTimeout(), logger),
		Diagnoser: handler,
		Recorder:  recorder,
		MaxRetry:  config.Engine.MaxRetry,
		Logger:    logger,
	})

	// Cancel the run cleanly on interrupt; in-flight commands are killed
	// through context cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warn().Str("signal", sig.String()).Msg("Interrupt received, cancelling run")
		cancel()
	}()

	result, err := eng.Run(ctx, projectPath)
	if err != nil {
		logger.Error().Err(err).Msg("Run failed before the build loop started")
		return 1
	}

	fmt.Println(result.Message())
	if result.State == models.StateSuccess && len(result.Artifacts) > 0 {
		fmt.Println("Artifacts:")
		for _, artifact := range result.Artifacts {
			fmt.Printf("  %s\n", artifact)
		}
	}

	return result.State.ExitCode()
}
