// Package app wires the configured data sources, algorithms, engine,
// service and HTTP API into a runnable server.
package app

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rxtech-lab/argo-fund/internal/algorithm"
	"github.com/rxtech-lab/argo-fund/internal/algorithm/wasm"
	"github.com/rxtech-lab/argo-fund/internal/api"
	"github.com/rxtech-lab/argo-fund/internal/backtest/engine"
	v1 "github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1"
	"github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1/writers"
	"github.com/rxtech-lab/argo-fund/internal/backtest/service"
	"github.com/rxtech-lab/argo-fund/internal/config"
	"github.com/rxtech-lab/argo-fund/internal/logger"
	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const readHeaderTimeout = 10 * time.Second

type App struct {
	config      config.Config
	log         *logger.Logger
	dataSources *datasource.Registry
	algorithms  *algorithm.Registry
	wasm        *wasm.Runtime
	engine      engine.Engine
	writer      *writers.ResultWriter
	service     *service.Service
	server      *http.Server
}

// New builds every component described by cfg.
func New(cfg config.Config, log *logger.Logger) (*App, error) {
	dataSources, err := BuildDataSources(cfg.DataSources, log)
	if err != nil {
		return nil, err
	}

	algorithms, modules, err := BuildAlgorithms(cfg.Algorithms, log)
	if err != nil {
		dataSources.Close()

		return nil, err
	}

	eng := v1.NewBacktestEngineV1(dataSources, algorithms, log)

	var (
		writer       *writers.ResultWriter
		resultWriter service.ResultWriter
	)

	if cfg.Backtest.ResultsFolder != "" {
		writer, err = writers.NewResultWriter(log)
		if err != nil {
			dataSources.Close()

			if modules != nil {
				modules.Close(context.Background())
			}

			return nil, err
		}

		resultWriter = writer
	}

	svc := service.NewService(eng, resultWriter, service.Config{
		MaxConcurrentRuns: cfg.Backtest.MaxConcurrentRuns,
		Retention:         cfg.Backtest.Retention,
		ResultsFolder:     cfg.Backtest.ResultsFolder,
	}, log)

	handler := api.NewServer(svc, eng, algorithms, dataSources, cfg.RunDefaults(), log).Router()

	return &App{
		config:      cfg,
		log:         log,
		dataSources: dataSources,
		algorithms:  algorithms,
		wasm:        modules,
		engine:      eng,
		writer:      writer,
		service:     svc,
		server: &http.Server{
			Addr:              cfg.Server.ListenAddress,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}, nil
}

// BuildAlgorithms returns the builtin algorithms plus the WebAssembly modules
// found in cfg.Dir. The runtime is nil when no directory is configured and
// must otherwise be closed after the last run.
func BuildAlgorithms(cfg config.AlgorithmsConfig, log *logger.Logger) (*algorithm.Registry, *wasm.Runtime, error) {
	registry := algorithm.DefaultRegistry()
	if cfg.Dir == "" {
		return registry, nil, nil
	}

	ctx := context.Background()
	modules := wasm.NewRuntime(ctx, cfg.CallTimeout, log)

	loaded, err := modules.LoadDir(ctx, cfg.Dir, registry)
	if err != nil {
		modules.Close(ctx)

		return nil, nil, err
	}

	log.Info("Loaded algorithm modules", zap.String("dir", cfg.Dir), zap.Int("count", len(loaded)))

	return registry, modules, nil
}

// Handler returns the HTTP handler of the API.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run serves the API until ctx is done, then stops accepting requests,
// cancels in-flight backtests and releases the data sources.
func (a *App) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		a.log.Info("Starting HTTP server",
			zap.String("address", a.server.Addr),
			zap.Strings("data_sources", a.dataSources.Names()),
		)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()

		return a.shutdown()
	})

	return group.Wait()
}

func (a *App) shutdown() error {
	timeout := a.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a.log.Info("Shutting down")

	serverErr := a.server.Shutdown(ctx)

	if err := a.service.Shutdown(ctx); err != nil {
		a.log.Warn("Backtests did not stop in time", zap.Error(err))
	}

	if a.writer != nil {
		if err := a.writer.Close(); err != nil {
			a.log.Warn("Failed to close result writer", zap.Error(err))
		}
	}

	if err := a.dataSources.Close(); err != nil {
		a.log.Warn("Failed to close data sources", zap.Error(err))
	}

	if a.wasm != nil {
		if err := a.wasm.Close(ctx); err != nil {
			a.log.Warn("Failed to close algorithm modules", zap.Error(err))
		}
	}

	return serverErr
}

// BuildDataSources creates a registry holding one source per config entry.
func BuildDataSources(configs []config.DataSourceConfig, log *logger.Logger) (*datasource.Registry, error) {
	registry, err := datasource.NewRegistry()
	if err != nil {
		return nil, err
	}

	for _, cfg := range configs {
		source, err := buildDataSource(cfg, log)
		if err != nil {
			registry.Close()

			return nil, err
		}

		if err := registry.Register(source); err != nil {
			source.Close()
			registry.Close()

			return nil, err
		}

		log.Debug("Registered data source", zap.String("name", cfg.Name), zap.String("type", string(cfg.Type)))
	}

	return registry, nil
}

func buildDataSource(cfg config.DataSourceConfig, log *logger.Logger) (datasource.DataSource, error) {
	switch cfg.Type {
	case config.DataSourceTypeMemory:
		return datasource.NewInMemoryDataSource(cfg.Name), nil
	case config.DataSourceTypeSynthetic:
		return buildSyntheticDataSource(cfg)
	case config.DataSourceTypeDuckDB:
		source, err := datasource.NewDataSource(cfg.Name, cfg.Database, log)
		if err != nil {
			return nil, err
		}

		if err := source.Initialize(cfg.Path); err != nil {
			source.Close()

			return nil, err
		}

		return source, nil
	case config.DataSourceTypePolygon:
		return datasource.NewPolygonDataSource(cfg.Name, os.Getenv(cfg.APIKeyEnv), cfg.RequestsPerMinute, log)
	case config.DataSourceTypeBinance:
		return datasource.NewBinanceDataSource(cfg.Name, cfg.BaseURL, cfg.RequestsPerMinute, log), nil
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "unknown data source type %q", cfg.Type)
	}
}

func buildSyntheticDataSource(cfg config.DataSourceConfig) (datasource.DataSource, error) {
	synthetic := cfg.Synthetic
	if synthetic == nil {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "data source %s has no synthetic settings", cfg.Name)
	}

	start, err := time.Parse(time.DateOnly, synthetic.Start)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "data source %s has an invalid start date", cfg.Name)
	}

	pattern := datasource.SimulationPattern(synthetic.Pattern)
	if pattern == "" {
		pattern = datasource.PatternVolatile
	}

	source := datasource.NewInMemoryDataSource(cfg.Name)

	for i, symbol := range synthetic.Symbols {
		bars, err := datasource.NewGenerator(datasource.GeneratorConfig{
			Symbol:             strings.ToUpper(symbol),
			StartTime:          start,
			Timeframe:          orTimeframe(synthetic.Timeframe),
			NumBars:            synthetic.NumBars,
			Pattern:            pattern,
			InitialPrice:       synthetic.InitialPrice,
			MaxDrawdownPercent: synthetic.MaxDrawdownPercent,
			VolatilityPercent:  synthetic.VolatilityPercent,
			TrendStrength:      0,
			// every symbol gets its own deterministic series
			Seed: synthetic.Seed + int64(i),
		}).Generate()
		if err != nil {
			return nil, err
		}

		source.Load(bars)
	}

	return source, nil
}

func orTimeframe(tf types.Timeframe) types.Timeframe {
	if tf == "" {
		return types.Timeframe1d
	}

	return tf
}
