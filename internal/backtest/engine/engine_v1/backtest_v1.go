package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rxtech-lab/argo-fund/internal/algorithm"
	"github.com/rxtech-lab/argo-fund/internal/backtest/engine"
	"github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1/slippage"
	"github.com/rxtech-lab/argo-fund/internal/logger"
	"github.com/rxtech-lab/argo-fund/internal/statistics"
	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
	"go.uber.org/zap"
)

type BacktestEngineV1 struct {
	dataSources *datasource.Registry
	algorithms  *algorithm.Registry
	log         *logger.Logger
	now         func() time.Time
}

func NewBacktestEngineV1(dataSources *datasource.Registry, algorithms *algorithm.Registry, log *logger.Logger) engine.Engine {
	return newBacktestEngineV1(dataSources, algorithms, log, time.Now)
}

func newBacktestEngineV1(dataSources *datasource.Registry, algorithms *algorithm.Registry, log *logger.Logger, now func() time.Time) *BacktestEngineV1 {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &BacktestEngineV1{
		dataSources: dataSources,
		algorithms:  algorithms,
		log:         log,
		now:         now,
	}
}

// run is the state of one Run call.
type run struct {
	id        string
	config    types.BacktestConfig
	algorithm algorithm.Algorithm
	ctx       *algorithm.Context
	trading   *BacktestTrading
	bars      []types.Bar
	benchmark []types.Bar
}

// Run implements engine.Engine.
func (b *BacktestEngineV1) Run(ctx context.Context, runID string, config types.BacktestConfig, callbacks engine.LifecycleCallbacks) (result *types.RunResult, err error) {
	defer func() {
		if callbacks.OnRunEnd != nil {
			(*callbacks.OnRunEnd)(runID, err)
		}
	}()

	// the wall-clock budget covers the prefetch too
	startedAt := b.now()

	prepareCtx := ctx
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		prepareCtx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	r, err := b.prepare(prepareCtx, runID, config)
	if err != nil {
		if ctx.Err() == nil && errors.Is(prepareCtx.Err(), context.DeadlineExceeded) {
			err = errors.Wrapf(errors.ErrCodeTimeout, err, "exceeded %s while fetching bars", config.Timeout)
		}

		b.log.Error("Failed to prepare backtest", zap.String("run_id", runID), zap.Error(err))

		return nil, err
	}

	defer func() {
		if releaseErr := algorithm.Release(r.algorithm); releaseErr != nil {
			b.log.Warn("Failed to release algorithm", zap.String("run_id", runID), zap.Error(releaseErr))
		}
	}()

	total := len(r.bars)

	if callbacks.OnRunStart != nil {
		if err := (*callbacks.OnRunStart)(runID, total); err != nil {
			return nil, errors.Wrap(errors.ErrCodeCallbackFailed, "run start callback failed", err)
		}
	}

	b.log.Debug("Running backtest",
		zap.String("run_id", runID),
		zap.String("symbol", config.Symbol),
		zap.String("algorithm", r.algorithm.Name()),
		zap.Int("bars", total),
	)

	for i, bar := range r.bars {
		if ctxErr := ctx.Err(); ctxErr != nil {
			b.log.Info("Backtest cancelled", zap.String("run_id", runID), zap.Int("bars_processed", i))

			return b.result(r), errors.Wrapf(errors.ErrCodeCancellationRequested, ctxErr, "cancelled after %d of %d bars", i, total)
		}

		if config.Timeout > 0 && b.now().Sub(startedAt) > config.Timeout {
			b.log.Info("Backtest timed out", zap.String("run_id", runID), zap.Int("bars_processed", i))

			return b.result(r), errors.Newf(errors.ErrCodeTimeout, "exceeded %s after %d of %d bars", config.Timeout, i, total)
		}

		if err := b.step(r, i, bar); err != nil {
			b.log.Error("Backtest failed",
				zap.String("run_id", runID),
				zap.Time("bar", bar.Time),
				zap.Error(err),
			)

			return b.result(r), err
		}

		if callbacks.OnProcessData != nil {
			if err := (*callbacks.OnProcessData)(i+1, total); err != nil {
				return b.result(r), errors.Wrap(errors.ErrCodeCallbackFailed, "process data callback failed", err)
			}
		}
	}

	r.trading.ExpirePending(r.bars[total-1].Time)

	result = b.result(r)

	b.log.Debug("Backtest finished",
		zap.String("run_id", runID),
		zap.Int("trades", len(result.Trades)),
		zap.Float64("total_return", result.Report.TotalReturn),
	)

	return result, nil
}

// prepare resolves everything a run needs and prefetches its bars.
func (b *BacktestEngineV1) prepare(ctx context.Context, runID string, config types.BacktestConfig) (_ *run, err error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	ds, err := b.dataSources.Get(config.DataSource)
	if err != nil {
		return nil, err
	}

	algo, err := b.algorithms.NewForRun(config.AlgorithmID, config.AlgorithmParams, config.Lookback)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err != nil {
			_ = algorithm.Release(algo)
		}
	}()

	slippageModel, err := slippage.New(config.Slippage)
	if err != nil {
		return nil, err
	}

	commission, err := commission_fee.New(config.Commission)
	if err != nil {
		return nil, err
	}

	bars, err := datasource.Prefetch(ctx, ds, config.Symbol, config.Start, config.End, config.Timeframe, config.GapPolicy)
	if err != nil {
		return nil, err
	}

	return &run{
		id:        runID,
		config:    config,
		algorithm: algo,
		ctx:       algorithm.NewContext(config.Risk, config.Lookback),
		trading:   NewBacktestTrading(runID, config.InitialCapital, slippageModel, commission, config.Risk, b.log),
		bars:      bars,
		benchmark: b.fetchBenchmark(ctx, ds, config),
	}, nil
}

// fetchBenchmark loads the benchmark series. A benchmark that cannot be
// loaded leaves the benchmark metrics null instead of failing the run.
func (b *BacktestEngineV1) fetchBenchmark(ctx context.Context, ds datasource.DataSource, config types.BacktestConfig) []types.Bar {
	if config.Benchmark == "" {
		return nil
	}

	bars, err := datasource.Prefetch(ctx, ds, config.Benchmark, config.Start, config.End, config.Timeframe, types.GapPolicySkip)
	if err != nil {
		b.log.Warn("Benchmark unavailable",
			zap.String("benchmark", config.Benchmark),
			zap.String("data_source", config.DataSource),
			zap.Error(err),
		)

		return nil
	}

	return bars
}

// step settles pending orders on bar, then lets the algorithm react to it.
func (b *BacktestEngineV1) step(r *run, index int, bar types.Bar) error {
	if err := r.trading.ProcessBar(bar); err != nil {
		return err
	}

	r.ctx.Advance(bar, index, r.trading.Portfolio(bar.Time))

	requests, err := b.onBar(r, bar)
	if err != nil {
		return err
	}

	return r.trading.PlaceOrders(requests, index, bar.Time)
}

// onBar calls the algorithm and converts both errors and panics into an
// AlgorithmError carrying the bar timestamp.
func (b *BacktestEngineV1) onBar(r *run, bar types.Bar) (requests []types.OrderRequest, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			requests = nil
			err = errors.Newf(errors.ErrCodeAlgorithmError, "%s panicked at %s: %v",
				r.algorithm.Name(), bar.Time.Format(time.RFC3339), recovered)
		}
	}()

	requests, err = r.algorithm.OnBar(r.ctx, bar)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeAlgorithmError, err, "%s failed at %s",
			r.algorithm.Name(), bar.Time.Format(time.RFC3339))
	}

	return requests, nil
}

func (b *BacktestEngineV1) result(r *run) *types.RunResult {
	equity := r.trading.Equity()
	trades := r.trading.Trades()

	report := statistics.Calculate(statistics.Input{
		Equity:       equity,
		Trades:       trades,
		Fills:        r.trading.Fills(),
		Benchmark:    r.benchmark,
		RiskFreeRate: r.config.RiskFreeRate,
		Timeframe:    r.config.Timeframe,
	})

	return &types.RunResult{
		Report: report,
		Equity: equity,
		Trades: trades,
		Orders: r.trading.Orders(),
	}
}

// GetConfigSchema implements engine.Engine.
func (b *BacktestEngineV1) GetConfigSchema() (string, error) {
	request := RunRequest{}

	schema, err := request.GenerateSchemaJSON()
	if err != nil {
		return "", fmt.Errorf("failed to generate schema: %w", err)
	}

	return schema, nil
}
