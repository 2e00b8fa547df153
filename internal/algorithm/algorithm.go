// Package algorithm defines the contract between the backtest engine and
// trading algorithms, plus the registry of built-in algorithms.
package algorithm

import (
	"io"

	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
)

// Algorithm decides which orders to place after each bar.
//
// OnBar must not perform external I/O. Internal state belongs to the
// instance, which is created fresh for every run by a Factory, or to the
// run's Context cache.
type Algorithm interface {
	Name() string
	OnBar(ctx *Context, bar types.Bar) ([]types.OrderRequest, error)
}

// Warmup is implemented by algorithms that need a minimum number of bars
// in their history window before they can emit a signal.
type Warmup interface {
	WarmupBars() int
}

// CheckLookback fails with ErrCodeInvalidParameter when algo needs more
// history than a run keeping lookback bars can provide. Such a run would
// complete without ever trading.
func CheckLookback(algo Algorithm, lookback int) error {
	if lookback <= 0 {
		lookback = DefaultLookback
	}

	w, ok := algo.(Warmup)
	if !ok {
		return nil
	}

	if need := w.WarmupBars(); need > lookback {
		return errors.Newf(errors.ErrCodeInvalidParameter,
			"%s needs %d bars of history but the lookback is %d", algo.Name(), need, lookback)
	}

	return nil
}

// Release frees what an instance holds outside the Go heap, such as a
// WebAssembly module instance. Instances that hold nothing are left alone.
func Release(algo Algorithm) error {
	if closer, ok := algo.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}

// Factory creates a new algorithm instance from its raw parameters.
type Factory func(params map[string]any) (Algorithm, error)

// AlgorithmType groups algorithms in the dashboard listing.
type AlgorithmType string

const (
	AlgorithmTypeBaseline       AlgorithmType = "baseline"
	AlgorithmTypeTrendFollowing AlgorithmType = "trend_following"
	AlgorithmTypeMeanReversion  AlgorithmType = "mean_reversion"
	// AlgorithmTypeCustom marks algorithms loaded from WebAssembly modules.
	AlgorithmTypeCustom AlgorithmType = "custom"
)

// Metadata describes a registered algorithm.
type Metadata struct {
	ID          string        `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	Type        AlgorithmType `json:"type" yaml:"type"`
	Description string        `json:"description" yaml:"description"`
	// Version is a semantic version, bumped when the algorithm's behavior changes.
	Version string `json:"version" yaml:"version"`
}
