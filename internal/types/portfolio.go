package types

import (
	"maps"
	"time"
)

// PortfolioState is the cash and open positions of a run at a point in time.
type PortfolioState struct {
	Cash      float64             `yaml:"cash" json:"cash"`
	Positions map[string]Position `yaml:"positions" json:"positions"`
	Time      time.Time           `yaml:"time" json:"time"`
}

// Clone returns a deep copy, so that callers can never mutate the simulator's state.
func (p PortfolioState) Clone() PortfolioState {
	return PortfolioState{
		Cash:      p.Cash,
		Positions: maps.Clone(p.Positions),
		Time:      p.Time,
	}
}

// Position returns the open position for symbol and whether one exists.
func (p PortfolioState) Position(symbol string) (Position, bool) {
	pos, ok := p.Positions[symbol]

	return pos, ok
}

// Quantity returns the signed quantity held for symbol, 0 when flat.
func (p PortfolioState) Quantity(symbol string) float64 {
	return p.Positions[symbol].Quantity
}

// EquityPoint is one sample of the equity curve, appended after every bar.
type EquityPoint struct {
	Time        time.Time `yaml:"time" json:"time" csv:"time"`
	TotalEquity float64   `yaml:"total_equity" json:"totalEquity" csv:"total_equity"`
	Cash        float64   `yaml:"cash" json:"cash" csv:"cash"`
	MarketValue float64   `yaml:"market_value" json:"marketValue" csv:"market_value"`
}
