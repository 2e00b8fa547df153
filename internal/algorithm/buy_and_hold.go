package algorithm

import "github.com/rxtech-lab/argo-fund/internal/types"

const BuyAndHoldID = "buy-and-hold"

type BuyAndHoldParams struct {
	Sizing `mapstructure:",squash"`
}

// BuyAndHold opens one long position as early as it can and never sells.
type BuyAndHold struct {
	params  BuyAndHoldParams
	entered bool
}

func NewBuyAndHold(params map[string]any) (Algorithm, error) {
	p := BuyAndHoldParams{Sizing: defaultSizing()}
	if err := DecodeParams(params, &p); err != nil {
		return nil, err
	}

	return &BuyAndHold{params: p, entered: false}, nil
}

func (b *BuyAndHold) Name() string {
	return BuyAndHoldID
}

func (b *BuyAndHold) OnBar(ctx *Context, bar types.Bar) ([]types.OrderRequest, error) {
	if b.entered {
		return nil, nil
	}

	// the entry order can be rejected, for example when the next open gaps up,
	// so keep asking until the position shows up in the portfolio
	if ctx.Portfolio().Quantity(bar.Symbol) != 0 {
		b.entered = true

		return nil, nil
	}

	qty := b.params.size(ctx, bar.Symbol, bar.Close)
	if qty <= 0 {
		return nil, nil
	}

	return moveTo(bar.Symbol, 0, qty, "initial_entry"), nil
}
