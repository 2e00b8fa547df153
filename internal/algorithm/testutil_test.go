package algorithm

import (
	"time"

	"github.com/rxtech-lab/argo-fund/internal/types"
)

var testStart = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func barsFromCloses(symbol string, closes ...float64) []types.Bar {
	bars := make([]types.Bar, len(closes))
	for i, c := range closes {
		bars[i] = types.Bar{
			Symbol: symbol,
			Time:   testStart.AddDate(0, 0, i),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 1000,
		}
	}

	return bars
}

// replay feeds bars to algo with a fixed portfolio and returns the orders of every bar.
func replay(algo Algorithm, ctx *Context, portfolio types.PortfolioState, bars []types.Bar) ([][]types.OrderRequest, error) {
	out := make([][]types.OrderRequest, len(bars))

	for i, bar := range bars {
		ctx.Advance(bar, i, portfolio)

		orders, err := algo.OnBar(ctx, bar)
		if err != nil {
			return nil, err
		}

		out[i] = orders
	}

	return out, nil
}

// replayPortfolios is replay with the portfolio the engine would show after each bar settled.
func replayPortfolios(algo Algorithm, ctx *Context, portfolios []types.PortfolioState, bars []types.Bar) ([][]types.OrderRequest, error) {
	out := make([][]types.OrderRequest, len(bars))

	for i, bar := range bars {
		ctx.Advance(bar, i, portfolios[i])

		orders, err := algo.OnBar(ctx, bar)
		if err != nil {
			return nil, err
		}

		out[i] = orders
	}

	return out, nil
}

func cashOnly(cash float64) types.PortfolioState {
	return types.PortfolioState{Cash: cash, Positions: map[string]types.Position{}}
}

func holding(cash float64, symbol string, qty float64) types.PortfolioState {
	return types.PortfolioState{
		Cash: cash,
		Positions: map[string]types.Position{
			symbol: {Symbol: symbol, Quantity: qty, AverageCost: 100},
		},
	}
}
