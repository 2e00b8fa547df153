package engine

import (
	"context"

	"github.com/rxtech-lab/argo-fund/internal/types"
)

// Lifecycle callback types for a backtest run.
// Callbacks with an error return abort the run when they return an error.

// OnRunStartCallback is called once the bars are prefetched and before the first bar is processed.
type OnRunStartCallback func(runID string, totalBars int) error

// OnRunEndCallback is called when the run ends, successfully or not (always called via defer).
type OnRunEndCallback func(runID string, err error)

// OnProcessDataCallback is called after each bar is fully processed.
type OnProcessDataCallback func(current int, total int) error

// LifecycleCallbacks holds all lifecycle callback functions for the backtest engine.
// All fields are pointers - nil means no callback will be invoked.
type LifecycleCallbacks struct {
	OnRunStart    *OnRunStartCallback
	OnRunEnd      *OnRunEndCallback
	OnProcessData *OnProcessDataCallback
}

// Engine runs a single backtest to completion.
type Engine interface {
	// Run prefetches the bars, replays them through the algorithm and the
	// execution simulator, and computes the statistics report.
	// The context is checked at every bar boundary. When the run stops early
	// because of cancellation or timeout, the partial result is returned
	// together with the error.
	Run(ctx context.Context, runID string, config types.BacktestConfig, callbacks LifecycleCallbacks) (*types.RunResult, error)
	// GetConfigSchema returns the JSON schema of a run request.
	GetConfigSchema() (string, error)
}
