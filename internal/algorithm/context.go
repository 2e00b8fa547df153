package algorithm

import (
	"github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1/cache"
	"github.com/rxtech-lab/argo-fund/internal/types"
)

// DefaultLookback is the history window used when a run does not set one.
const DefaultLookback = 200

// Context is the read-only view of a run that an algorithm receives on every bar.
type Context struct {
	portfolio types.PortfolioState
	history   *History
	limits    types.RiskLimits
	barIndex  int
	cache     *cache.CacheV1
}

// NewContext creates the context of one run. A non-positive lookback uses DefaultLookback.
func NewContext(limits types.RiskLimits, lookback int) *Context {
	if lookback <= 0 {
		lookback = DefaultLookback
	}

	return &Context{
		portfolio: types.PortfolioState{Positions: map[string]types.Position{}},
		history:   NewHistory(lookback),
		limits:    limits,
		barIndex:  -1,
		cache:     cache.NewCacheV1().(*cache.CacheV1),
	}
}

// Advance moves the context to bar. It is called by the engine before OnBar.
func (c *Context) Advance(bar types.Bar, index int, portfolio types.PortfolioState) {
	c.history.add(bar)
	c.barIndex = index
	c.portfolio = portfolio.Clone()
}

// Portfolio returns a snapshot of cash and positions after the current bar settled.
func (c *Context) Portfolio() types.PortfolioState {
	return c.portfolio.Clone()
}

// History returns the bars seen so far, including the current one.
func (c *Context) History() *History {
	return c.history
}

// Config returns the risk limits of the run.
func (c *Context) Config() types.RiskLimits {
	return c.limits
}

// BarIndex returns the zero-based index of the current bar.
func (c *Context) BarIndex() int {
	return c.barIndex
}

// Cache returns the scratch space of the run.
func (c *Context) Cache() *cache.CacheV1 {
	return c.cache
}

// Equity values the portfolio at the given price for symbol.
func (c *Context) Equity(symbol string, price float64) float64 {
	return c.portfolio.Cash + c.portfolio.Quantity(symbol)*price
}
