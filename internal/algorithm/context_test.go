package algorithm

import (
	"testing"

	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/stretchr/testify/suite"
)

type ContextTestSuite struct {
	suite.Suite
}

func TestContextSuite(t *testing.T) {
	suite.Run(t, new(ContextTestSuite))
}

func (suite *ContextTestSuite) TestDefaults() {
	ctx := NewContext(types.RiskLimits{AllowShort: true}, 0)

	suite.Equal(DefaultLookback, ctx.History().MaxSize())
	suite.Equal(-1, ctx.BarIndex())
	suite.True(ctx.Config().AllowShort)
	suite.NotNil(ctx.Cache())
	suite.Equal(0.0, ctx.Portfolio().Cash)
}

func (suite *ContextTestSuite) TestAdvance() {
	ctx := NewContext(types.RiskLimits{}, 2)
	bars := barsFromCloses("AAPL", 100, 101, 102)

	for i, bar := range bars {
		ctx.Advance(bar, i, holding(500, "AAPL", 5))
	}

	suite.Equal(2, ctx.BarIndex())
	suite.Equal([]float64{101, 102}, ctx.History().Closes("AAPL"))
	suite.Equal(5.0, ctx.Portfolio().Quantity("AAPL"))
	suite.InDelta(500+5*102.0, ctx.Equity("AAPL", 102), 1e-9)
}

func (suite *ContextTestSuite) TestPortfolioIsASnapshot() {
	ctx := NewContext(types.RiskLimits{}, 10)
	state := holding(500, "AAPL", 5)
	ctx.Advance(barsFromCloses("AAPL", 100)[0], 0, state)

	snapshot := ctx.Portfolio()
	snapshot.Positions["AAPL"] = types.Position{Symbol: "AAPL", Quantity: 999}
	state.Positions["AAPL"] = types.Position{Symbol: "AAPL", Quantity: 42}

	suite.Equal(5.0, ctx.Portfolio().Quantity("AAPL"))
}
