package algorithm

import (
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1/cache"
	"github.com/rxtech-lab/argo-fund/internal/indicator"
	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
)

const MomentumID = "momentum"

type MomentumParams struct {
	FastPeriod int `mapstructure:"fast_period" json:"fast_period" validate:"gt=0"`
	SlowPeriod int `mapstructure:"slow_period" json:"slow_period" validate:"gtfield=FastPeriod"`
	Sizing     `mapstructure:",squash"`
}

// Momentum trades SMA crossovers. With shorting allowed the cross below
// reverses into a short position instead of going flat.
type Momentum struct {
	params MomentumParams
}

func NewMomentum(params map[string]any) (Algorithm, error) {
	p := MomentumParams{
		FastPeriod: 10,
		SlowPeriod: 30,
		Sizing:     defaultSizing(),
	}
	if err := DecodeParams(params, &p); err != nil {
		return nil, err
	}

	return &Momentum{params: p}, nil
}

func (m *Momentum) Name() string {
	return MomentumID
}

// WarmupBars implements Warmup.
func (m *Momentum) WarmupBars() int {
	return m.params.SlowPeriod
}

func (m *Momentum) OnBar(ctx *Context, bar types.Bar) ([]types.OrderRequest, error) {
	closes := ctx.History().Closes(bar.Symbol)

	fast, err := indicator.SMA(closes, m.params.FastPeriod)
	if err != nil {
		return nil, ignoreWarmup(err)
	}

	slow, err := indicator.SMA(closes, m.params.SlowPeriod)
	if err != nil {
		return nil, ignoreWarmup(err)
	}

	above := fast > slow
	state := ctx.Cache()
	previous := state.CrossoverState
	state.CrossoverState = optional.Some(cache.CrossoverState{
		FastAboveSlow: above,
		LastFast:      fast,
		LastSlow:      slow,
		Symbol:        bar.Symbol,
	})

	if previous.IsNone() || previous.Unwrap().FastAboveSlow == above {
		return nil, nil
	}

	current := ctx.Portfolio().Quantity(bar.Symbol)

	if above {
		if current > 0 {
			return nil, nil
		}

		return moveTo(bar.Symbol, current, m.params.size(ctx, bar.Symbol, bar.Close), "sma_cross_up"), nil
	}

	target := 0.0
	if ctx.Config().AllowShort {
		target = -m.params.size(ctx, bar.Symbol, bar.Close)
	}

	return moveTo(bar.Symbol, current, target, "sma_cross_down"), nil
}

// ignoreWarmup treats a history window that is still too short as "no signal".
func ignoreWarmup(err error) error {
	if errors.IsInsufficientDataError(err) {
		return nil
	}

	return err
}
