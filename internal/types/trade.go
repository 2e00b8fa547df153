package types

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Trade is a closed (or partially closed) round trip. One is produced every
// time a fill reduces an open position.
type Trade struct {
	ID         string       `yaml:"id" json:"id" csv:"id"`
	Symbol     string       `yaml:"symbol" json:"symbol" csv:"symbol"`
	Side       PositionType `yaml:"side" json:"type" csv:"side"`
	EntryTime  time.Time    `yaml:"entry_time" json:"entry" csv:"entry_time"`
	ExitTime   time.Time    `yaml:"exit_time" json:"exit" csv:"exit_time"`
	EntryPrice float64      `yaml:"entry_price" json:"entryPrice" csv:"entry_price"`
	ExitPrice  float64      `yaml:"exit_price" json:"exitPrice" csv:"exit_price"`
	Quantity   float64      `yaml:"quantity" json:"quantity" csv:"quantity"`
	// PnL is the realized profit and loss of the closed quantity.
	// For example, you hold 300 shares of AAPL at $100.01 average entry price
	// (entry fee included) and sell 100 shares at $110.0 with no exit fee.
	// Then the PnL is (110.0-100.01)*100 = $999.
	PnL float64 `yaml:"pnl" json:"pnl" csv:"pnl"`
	// Return is PnL divided by the cost basis of the closed quantity.
	Return float64 `yaml:"return" json:"return" csv:"return"`
	// Commission is the exit commission charged on this trade.
	Commission float64 `yaml:"commission" json:"commission" csv:"commission"`
}

// IsWinner reports whether the trade has positive realized PnL.
func (t Trade) IsWinner() bool {
	return t.PnL > 0
}

// Position represents current holdings of an asset.
type Position struct {
	Symbol string `yaml:"symbol" json:"symbol" csv:"symbol"`
	// Quantity is signed: negative means short.
	Quantity float64 `yaml:"quantity" json:"quantity" csv:"quantity"`
	// AverageCost includes the entry commission. For longs it is
	// (notional + fee) / qty, for shorts (proceeds - fee) / qty.
	AverageCost float64   `yaml:"average_cost" json:"averageCost" csv:"average_cost"`
	OpenedAt    time.Time `yaml:"opened_at" json:"openedAt" csv:"opened_at"`
}

// Type returns LONG or SHORT depending on the sign of the quantity.
func (p Position) Type() PositionType {
	if p.Quantity < 0 {
		return PositionTypeShort
	}

	return PositionTypeLong
}

// MarketValue is the signed value of the position at price.
func (p Position) MarketValue(price float64) float64 {
	return p.Quantity * price
}

// UnrealizedPnL is the open profit and loss at price.
func (p Position) UnrealizedPnL(price float64) float64 {
	if p.Quantity == 0 {
		return 0
	}

	return RealizedPnL(p.Type(), p.AverageCost, price, math.Abs(p.Quantity), 0)
}

// RealizedPnL computes the PnL of closing qty at exitPrice against an average
// entry cost, less the exit commission. Computed in decimal so that simple
// round trips produce exact results.
func RealizedPnL(side PositionType, averageCost, exitPrice, qty, exitCommission float64) float64 {
	avgDec := decimal.NewFromFloat(averageCost)
	exitDec := decimal.NewFromFloat(exitPrice)
	qtyDec := decimal.NewFromFloat(qty)

	var gross decimal.Decimal
	if side == PositionTypeShort {
		// the way we calculate short pnl is the opposite of long pnl
		gross = avgDec.Sub(exitDec).Mul(qtyDec)
	} else {
		gross = exitDec.Sub(avgDec).Mul(qtyDec)
	}

	result, _ := gross.Sub(decimal.NewFromFloat(exitCommission)).Float64()

	return result
}
