package algorithm

import (
	"math"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-fund/internal/types"
)

// Sizing decides how many shares a new position gets. A fixed Quantity wins
// over Allocation, which is the fraction of equity to commit.
type Sizing struct {
	Quantity   float64 `mapstructure:"quantity" json:"quantity" validate:"gte=0"`
	Allocation float64 `mapstructure:"allocation" json:"allocation" validate:"gt=0,lte=1"`
}

func defaultSizing() Sizing {
	return Sizing{
		Quantity:   0,
		Allocation: 0.95,
	}
}

func (s Sizing) size(ctx *Context, symbol string, price float64) float64 {
	if s.Quantity > 0 {
		return s.Quantity
	}

	if price <= 0 {
		return 0
	}

	return math.Floor(ctx.Equity(symbol, price) * s.Allocation / price)
}

// moveTo returns the market order that takes the position from current to target.
func moveTo(symbol string, current float64, target float64, reason string) []types.OrderRequest {
	delta := target - current
	if delta == 0 {
		return nil
	}

	side := types.PurchaseTypeBuy
	if delta < 0 {
		side = types.PurchaseTypeSell
		delta = -delta
	}

	return []types.OrderRequest{{
		Symbol:     symbol,
		Side:       side,
		Type:       types.OrderTypeMarket,
		Quantity:   delta,
		LimitPrice: optional.None[float64](),
		Reason:     reason,
	}}
}
