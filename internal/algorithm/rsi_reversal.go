package algorithm

import (
	"github.com/rxtech-lab/argo-fund/internal/indicator"
	"github.com/rxtech-lab/argo-fund/internal/types"
)

const RSIReversalID = "rsi-reversal"

type RSIReversalParams struct {
	Period     int     `mapstructure:"period" json:"period" validate:"gt=0"`
	Oversold   float64 `mapstructure:"oversold" json:"oversold" validate:"gt=0,lt=100"`
	Overbought float64 `mapstructure:"overbought" json:"overbought" validate:"lt=100,gtfield=Oversold"`
	Sizing     `mapstructure:",squash"`
}

// RSIReversal buys oversold markets and sells overbought ones.
type RSIReversal struct {
	params RSIReversalParams
}

func NewRSIReversal(params map[string]any) (Algorithm, error) {
	p := RSIReversalParams{
		Period:     14,
		Oversold:   30,
		Overbought: 70,
		Sizing:     defaultSizing(),
	}
	if err := DecodeParams(params, &p); err != nil {
		return nil, err
	}

	return &RSIReversal{params: p}, nil
}

func (r *RSIReversal) Name() string {
	return RSIReversalID
}

// WarmupBars implements Warmup.
func (r *RSIReversal) WarmupBars() int {
	return r.params.Period + 1
}

func (r *RSIReversal) OnBar(ctx *Context, bar types.Bar) ([]types.OrderRequest, error) {
	rsi, err := indicator.RSI(ctx.History().Closes(bar.Symbol), r.params.Period)
	if err != nil {
		return nil, ignoreWarmup(err)
	}

	current := ctx.Portfolio().Quantity(bar.Symbol)

	switch {
	case rsi < r.params.Oversold && current <= 0:
		return moveTo(bar.Symbol, current, r.params.size(ctx, bar.Symbol, bar.Close), "rsi_oversold"), nil
	case rsi > r.params.Overbought && current > 0:
		return moveTo(bar.Symbol, current, 0, "rsi_overbought"), nil
	case rsi > r.params.Overbought && current == 0 && ctx.Config().AllowShort:
		return moveTo(bar.Symbol, 0, -r.params.size(ctx, bar.Symbol, bar.Close), "rsi_overbought"), nil
	}

	return nil, nil
}
