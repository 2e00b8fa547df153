package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-fund/internal/app"
	"github.com/rxtech-lab/argo-fund/internal/backtest/engine"
	v1 "github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1"
	"github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1/writers"
	"github.com/rxtech-lab/argo-fund/internal/config"
	"github.com/rxtech-lab/argo-fund/internal/logger"
	"github.com/rxtech-lab/argo-fund/internal/version"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// runAction runs a single backtest described by a YAML run file and writes
// its results.
func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg := config.Default()

	if path := cmd.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}

		cfg = loaded
	}

	runLogger, err := logger.NewLoggerWithLevel(cmd.String("log-level"))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer runLogger.Sync() //nolint:errcheck

	data, err := os.ReadFile(cmd.String("run"))
	if err != nil {
		return fmt.Errorf("failed to read run file: %w", err)
	}

	var request v1.RunRequest
	if err := yaml.Unmarshal(data, &request); err != nil {
		return fmt.Errorf("failed to parse run file: %w", err)
	}

	backtestConfig, err := request.ToBacktestConfig(cfg.RunDefaults())
	if err != nil {
		return err
	}

	dataSources, err := app.BuildDataSources(cfg.DataSources, runLogger)
	if err != nil {
		return err
	}
	defer dataSources.Close()

	algorithms, modules, err := app.BuildAlgorithms(cfg.Algorithms, runLogger)
	if err != nil {
		return err
	}

	if modules != nil {
		defer modules.Close(context.Background())
	}

	backtester := v1.NewBacktestEngineV1(dataSources, algorithms, runLogger)

	var bar *progressbar.ProgressBar

	onStart := engine.OnRunStartCallback(func(_ string, totalBars int) error {
		bar = progressbar.NewOptions(totalBars,
			progressbar.OptionSetDescription(fmt.Sprintf("Backtesting %s with %s", backtestConfig.Symbol, backtestConfig.AlgorithmID)),
			progressbar.OptionShowCount(),
		)

		return nil
	})
	onData := engine.OnProcessDataCallback(func(current int, _ int) error {
		return bar.Set(current)
	})
	onEnd := engine.OnRunEndCallback(func(runID string, err error) {
		if bar != nil {
			_ = bar.Finish()
		}

		if err != nil {
			runLogger.Error("Backtest failed", zap.String("run_id", runID), zap.Error(err))
		}
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()

	result, err := backtester.Run(ctx, runID, backtestConfig, engine.LifecycleCallbacks{
		OnRunStart:    &onStart,
		OnRunEnd:      &onEnd,
		OnProcessData: &onData,
	})
	if err != nil {
		return err
	}

	writer, err := writers.NewResultWriter(runLogger)
	if err != nil {
		return err
	}
	defer writer.Close()

	folder := v1.GetResultFolder(cmd.String("output"), runID, backtestConfig)

	stats, err := writer.Write(folder, runID, backtestConfig, result)
	if err != nil {
		return err
	}

	report, err := yaml.Marshal(stats.Report)
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	fmt.Printf("\n%s\nResults written to %s\n", report, folder)

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "backtest",
		Usage:   "Run a single backtest from a run file",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "run",
				Aliases:  []string{"r"},
				Usage:    "Path to the YAML run `FILE`",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the server config `FILE` providing data sources and defaults",
				Sources: cli.EnvVars("ARGO_FUND_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Results folder",
				Value:   config.DefaultResultsFolder,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
				Value: "warn",
			},
		},
		Action: runAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
