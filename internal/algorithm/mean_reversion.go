package algorithm

import (
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1/cache"
	"github.com/rxtech-lab/argo-fund/internal/indicator"
	"github.com/rxtech-lab/argo-fund/internal/types"
)

const MeanReversionID = "mean-reversion"

type MeanReversionParams struct {
	Period int     `mapstructure:"period" json:"period" validate:"gt=1"`
	NumStd float64 `mapstructure:"num_std" json:"num_std" validate:"gt=0"`
	// ExitZ is how close to the middle band, in standard deviations, the position is closed.
	ExitZ  float64 `mapstructure:"exit_z" json:"exit_z" validate:"gte=0,ltfield=NumStd"`
	Sizing `mapstructure:",squash"`
}

// MeanReversion enters when the close leaves the Bollinger bands and exits
// once it returns to the middle band.
type MeanReversion struct {
	params MeanReversionParams
}

func NewMeanReversion(params map[string]any) (Algorithm, error) {
	p := MeanReversionParams{
		Period: 20,
		NumStd: 2,
		ExitZ:  0,
		Sizing: defaultSizing(),
	}
	if err := DecodeParams(params, &p); err != nil {
		return nil, err
	}

	return &MeanReversion{params: p}, nil
}

func (m *MeanReversion) Name() string {
	return MeanReversionID
}

// WarmupBars implements Warmup.
func (m *MeanReversion) WarmupBars() int {
	return m.params.Period
}

func (m *MeanReversion) OnBar(ctx *Context, bar types.Bar) ([]types.OrderRequest, error) {
	bands, err := indicator.Bollinger(ctx.History().Closes(bar.Symbol), m.params.Period, m.params.NumStd)
	if err != nil {
		return nil, ignoreWarmup(err)
	}

	z := bands.ZScore(bar.Close)
	current := ctx.Portfolio().Quantity(bar.Symbol)
	state := ctx.Cache()

	switch {
	case current == 0 && z <= -m.params.NumStd:
		state.ReversionState = optional.Some(cache.ReversionState{EnteredBelow: true, EntryZScore: z, Symbol: bar.Symbol})

		return moveTo(bar.Symbol, 0, m.params.size(ctx, bar.Symbol, bar.Close), "below_lower_band"), nil
	case current == 0 && z >= m.params.NumStd && ctx.Config().AllowShort:
		state.ReversionState = optional.Some(cache.ReversionState{EnteredBelow: false, EntryZScore: z, Symbol: bar.Symbol})

		return moveTo(bar.Symbol, 0, -m.params.size(ctx, bar.Symbol, bar.Close), "above_upper_band"), nil
	case current > 0 && z >= -m.params.ExitZ, current < 0 && z <= m.params.ExitZ:
		state.ReversionState = optional.None[cache.ReversionState]()

		return moveTo(bar.Symbol, current, 0, "reverted_to_mean"), nil
	}

	return nil, nil
}
