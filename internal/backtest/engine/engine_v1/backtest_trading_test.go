package engine

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1/slippage"
	"github.com/rxtech-lab/argo-fund/internal/logger"
	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
	"github.com/stretchr/testify/suite"
)

// BacktestTradingTestSuite is a test suite for BacktestTrading
type BacktestTradingTestSuite struct {
	suite.Suite
	logger         *logger.Logger
	initialBalance float64
}

func TestBacktestTradingSuite(t *testing.T) {
	suite.Run(t, new(BacktestTradingTestSuite))
}

func (suite *BacktestTradingTestSuite) SetupSuite() {
	suite.logger = logger.NewNopLogger()
	suite.initialBalance = 10000.0
}

var tradingStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func ohlc(day int, open, high, low, close float64) types.Bar {
	return types.Bar{
		Symbol: "AAPL",
		Time:   tradingStart.AddDate(0, 0, day),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close,
		Volume: 1_000_000,
	}
}

func marketOrder(side types.PurchaseType, qty float64) types.OrderRequest {
	return types.OrderRequest{
		Symbol:     "AAPL",
		Side:       side,
		Type:       types.OrderTypeMarket,
		Quantity:   qty,
		LimitPrice: optional.None[float64](),
		Reason:     "test",
	}
}

func limitOrder(side types.PurchaseType, qty float64, limit float64) types.OrderRequest {
	return types.OrderRequest{
		Symbol:     "AAPL",
		Side:       side,
		Type:       types.OrderTypeLimit,
		Quantity:   qty,
		LimitPrice: optional.Some(limit),
		Reason:     "test",
	}
}

func (suite *BacktestTradingTestSuite) newTrading(risk types.RiskLimits) *BacktestTrading {
	return NewBacktestTrading("run-1", suite.initialBalance, slippage.NewNoSlippage(),
		commission_fee.NewZeroCommissionFee(), risk, suite.logger)
}

// place queues requests as if they were emitted on the bar before bar.
func (suite *BacktestTradingTestSuite) place(trading *BacktestTrading, bar types.Bar, requests ...types.OrderRequest) {
	suite.Require().NoError(trading.PlaceOrders(requests, 0, bar.Time.AddDate(0, 0, -1)))
}

func (suite *BacktestTradingTestSuite) lastEntry(trading *BacktestTrading) types.OrderLogEntry {
	orders := trading.Orders()
	suite.Require().NotEmpty(orders)

	return orders[len(orders)-1]
}

func (suite *BacktestTradingTestSuite) TestMarketOrderFillsAtOpenWithCosts() {
	trading := NewBacktestTrading("run-1", suite.initialBalance, slippage.NewFixedSlippage(0.001),
		commission_fee.NewPercentageCommissionFee(0.001), types.RiskLimits{}, suite.logger)

	bar := ohlc(1, 100, 105, 99, 104)
	suite.place(trading, bar, marketOrder(types.PurchaseTypeBuy, 10))
	suite.Require().NoError(trading.ProcessBar(bar))

	fills := trading.Fills()
	suite.Require().Len(fills, 1)
	suite.InDelta(100.1, fills[0].Price, 1e-9)
	suite.InDelta(1.0, fills[0].SlippageCost, 1e-9)
	suite.InDelta(1.001, fills[0].Commission, 1e-9)
	suite.Equal(bar.Time, fills[0].Time)

	suite.InDelta(10000-1001-1.001, trading.Cash(), 1e-9)

	pos, ok := trading.Portfolio(bar.Time).Position("AAPL")
	suite.Require().True(ok)
	suite.Equal(10.0, pos.Quantity)
	suite.InDelta(100.2001, pos.AverageCost, 1e-9)

	equity := trading.Equity()
	suite.Require().Len(equity, 1)
	suite.InDelta(trading.Cash()+10*104, equity[0].TotalEquity, 1e-9)
	suite.InDelta(1040, equity[0].MarketValue, 1e-9)
}

func (suite *BacktestTradingTestSuite) TestOrdersAreSettledOnTheNextBarOnly() {
	trading := suite.newTrading(types.RiskLimits{})

	first := ohlc(0, 100, 101, 99, 100)
	suite.Require().NoError(trading.ProcessBar(first))
	suite.Require().NoError(trading.PlaceOrders([]types.OrderRequest{marketOrder(types.PurchaseTypeBuy, 1)}, 0, first.Time))
	suite.Empty(trading.Fills())
	suite.Len(trading.PendingOrders(), 1)

	second := ohlc(1, 102, 103, 101, 102)
	suite.Require().NoError(trading.ProcessBar(second))
	suite.Require().Len(trading.Fills(), 1)
	suite.Equal(102.0, trading.Fills()[0].Price)
	suite.Empty(trading.PendingOrders())

	entry := suite.lastEntry(trading)
	suite.Equal(types.OrderStatusFilled, entry.Order.Status)
	suite.Equal(0, entry.Order.CreatedAtBar)
	suite.Equal(first.Time, entry.Order.CreatedAt)
	suite.Equal("test", entry.Order.Reason.Reason)
}

func (suite *BacktestTradingTestSuite) TestLimitOrderFillsInsideRange() {
	tests := []struct {
		name  string
		side  types.PurchaseType
		limit float64
	}{
		{name: "buy at low", side: types.PurchaseTypeBuy, limit: 95},
		{name: "buy inside", side: types.PurchaseTypeBuy, limit: 98},
		{name: "sell at high", side: types.PurchaseTypeSell, limit: 105},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			trading := suite.newTrading(types.RiskLimits{AllowShort: true})
			bar := ohlc(1, 100, 105, 95, 101)
			suite.place(trading, bar, limitOrder(tc.side, 5, tc.limit))
			suite.Require().NoError(trading.ProcessBar(bar))

			fills := trading.Fills()
			suite.Require().Len(fills, 1)
			suite.Equal(tc.limit, fills[0].Price)
			suite.Zero(fills[0].SlippageCost)
		})
	}
}

func (suite *BacktestTradingTestSuite) TestLimitOrderExpiresAfterOneExtraBar() {
	trading := suite.newTrading(types.RiskLimits{})
	first := ohlc(1, 100, 102, 98, 101)
	suite.place(trading, first, limitOrder(types.PurchaseTypeBuy, 5, 90))

	suite.Require().NoError(trading.ProcessBar(first))
	pending := trading.PendingOrders()
	suite.Require().Len(pending, 1)
	suite.Equal(1, pending[0].BarsPending)
	suite.Equal(types.OrderStatusPending, pending[0].Status)

	suite.Require().NoError(trading.ProcessBar(ohlc(2, 100, 102, 97, 99)))
	suite.Empty(trading.PendingOrders())
	suite.Empty(trading.Fills())

	entry := suite.lastEntry(trading)
	suite.Equal(types.OrderStatusExpired, entry.Order.Status)
	suite.Equal(types.OrderReasonExpired, entry.Order.Reason.Reason)
	suite.Nil(entry.Fill)
	suite.Equal(suite.initialBalance, trading.Cash())
}

func (suite *BacktestTradingTestSuite) TestLimitOrderFillsOnSecondBar() {
	trading := suite.newTrading(types.RiskLimits{})
	first := ohlc(1, 100, 102, 98, 101)
	suite.place(trading, first, limitOrder(types.PurchaseTypeBuy, 5, 95))

	suite.Require().NoError(trading.ProcessBar(first))
	suite.Require().NoError(trading.ProcessBar(ohlc(2, 97, 98, 94, 96)))

	fills := trading.Fills()
	suite.Require().Len(fills, 1)
	suite.Equal(95.0, fills[0].Price)
}

func (suite *BacktestTradingTestSuite) TestRejections() {
	tests := []struct {
		name    string
		risk    types.RiskLimits
		setup   []types.OrderRequest
		request types.OrderRequest
		reason  string
	}{
		{
			name:    "insufficient funds",
			request: marketOrder(types.PurchaseTypeBuy, 101),
			reason:  types.RejectReasonInsufficientFunds,
		},
		{
			name:    "sell without position",
			request: marketOrder(types.PurchaseTypeSell, 1),
			reason:  types.RejectReasonInsufficientPosition,
		},
		{
			name:    "sell more than held",
			setup:   []types.OrderRequest{marketOrder(types.PurchaseTypeBuy, 5)},
			request: marketOrder(types.PurchaseTypeSell, 6),
			reason:  types.RejectReasonInsufficientPosition,
		},
		{
			name:    "zero quantity",
			request: marketOrder(types.PurchaseTypeBuy, 0),
			reason:  types.RejectReasonInvalidQuantity,
		},
		{
			name:    "negative quantity",
			request: marketOrder(types.PurchaseTypeBuy, -3),
			reason:  types.RejectReasonInvalidQuantity,
		},
		{
			name: "unknown symbol",
			request: types.OrderRequest{
				Symbol:   "MSFT",
				Side:     types.PurchaseTypeBuy,
				Type:     types.OrderTypeMarket,
				Quantity: 1,
			},
			reason: types.RejectReasonSymbolNotFound,
		},
		{
			name:    "position above limit",
			risk:    types.RiskLimits{MaxPositionQuantity: 10},
			request: marketOrder(types.PurchaseTypeBuy, 11),
			reason:  types.RejectReasonRiskLimit,
		},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			trading := suite.newTrading(tc.risk)

			if len(tc.setup) > 0 {
				setupBar := ohlc(1, 100, 101, 99, 100)
				suite.place(trading, setupBar, tc.setup...)
				suite.Require().NoError(trading.ProcessBar(setupBar))
			}

			cash := trading.Cash()
			bar := ohlc(2, 100, 101, 99, 100)
			suite.place(trading, bar, tc.request)
			suite.Require().NoError(trading.ProcessBar(bar))

			entry := suite.lastEntry(trading)
			suite.Equal(types.OrderStatusRejected, entry.Order.Status)
			suite.Equal(tc.reason, entry.Order.Reason.Reason)
			suite.NotEmpty(entry.Order.Reason.Message)
			suite.Equal(cash, trading.Cash())
			suite.Equal(1, trading.RejectionCount()[tc.reason])
		})
	}
}

func (suite *BacktestTradingTestSuite) TestApplyRejectionCarriesTradingCode() {
	tests := []struct {
		name   string
		order  types.Order
		code   errors.ErrorCode
		reason string
	}{
		{
			name:   "insufficient funds",
			order:  types.Order{OrderID: "o-1", Symbol: "AAPL", Side: types.PurchaseTypeBuy, Type: types.OrderTypeMarket, Quantity: 1000},
			code:   errors.ErrCodeInsufficientFunds,
			reason: types.RejectReasonInsufficientFunds,
		},
		{
			name:   "no position to sell",
			order:  types.Order{OrderID: "o-2", Symbol: "AAPL", Side: types.PurchaseTypeSell, Type: types.OrderTypeMarket, Quantity: 1},
			code:   errors.ErrCodeInsufficientPosition,
			reason: types.RejectReasonInsufficientPosition,
		},
		{
			name:   "missing symbol",
			order:  types.Order{OrderID: "o-3", Symbol: "MSFT", Side: types.PurchaseTypeBuy, Type: types.OrderTypeMarket, Quantity: 1},
			code:   errors.ErrCodeSymbolNotFound,
			reason: types.RejectReasonSymbolNotFound,
		},
		{
			name:   "zero quantity",
			order:  types.Order{OrderID: "o-4", Symbol: "AAPL", Side: types.PurchaseTypeBuy, Type: types.OrderTypeMarket, Quantity: 0},
			code:   errors.ErrCodeInvalidQuantity,
			reason: types.RejectReasonInvalidQuantity,
		},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			trading := suite.newTrading(types.RiskLimits{})
			order := tc.order
			order.Status = types.OrderStatusPending

			exec := trading.Apply(&order, ohlc(1, 100, 101, 99, 100))
			suite.Require().NotNil(exec.Rejection)
			suite.Nil(exec.Fill)
			suite.Equal(tc.code, exec.Rejection.Code)
			suite.Equal(tc.reason, exec.Rejection.Reason)
			suite.Equal(tc.reason, order.Reason.Reason)
			suite.Equal(types.OrderStatusRejected, order.Status)
		})
	}
}

func (suite *BacktestTradingTestSuite) TestPlaceOrdersAcceptsOrdersWithoutReason() {
	trading := suite.newTrading(types.RiskLimits{})
	request := marketOrder(types.PurchaseTypeBuy, 1)
	request.Reason = ""

	bar := ohlc(1, 100, 101, 99, 100)
	suite.place(trading, bar, request)
	suite.Require().Len(trading.PendingOrders(), 1)
	suite.Empty(trading.PendingOrders()[0].Reason.Reason)

	suite.Require().NoError(trading.ProcessBar(bar))
	suite.Len(trading.Fills(), 1)
}

func (suite *BacktestTradingTestSuite) TestRiskLimitAllowsReducingPosition() {
	trading := suite.newTrading(types.RiskLimits{MaxPositionQuantity: 10})

	bar := ohlc(1, 100, 101, 99, 100)
	suite.place(trading, bar, marketOrder(types.PurchaseTypeBuy, 10))
	suite.Require().NoError(trading.ProcessBar(bar))

	next := ohlc(2, 100, 101, 99, 100)
	suite.place(trading, next, marketOrder(types.PurchaseTypeSell, 4))
	suite.Require().NoError(trading.ProcessBar(next))

	suite.Len(trading.Fills(), 2)
	suite.Equal(6.0, trading.Portfolio(next.Time).Quantity("AAPL"))
}

func (suite *BacktestTradingTestSuite) TestRoundTripProducesTrade() {
	trading := suite.newTrading(types.RiskLimits{})

	buy := ohlc(1, 100, 101, 99, 100)
	suite.place(trading, buy, marketOrder(types.PurchaseTypeBuy, 10))
	suite.Require().NoError(trading.ProcessBar(buy))

	sell := ohlc(2, 110, 111, 109, 110)
	suite.place(trading, sell, marketOrder(types.PurchaseTypeSell, 10))
	suite.Require().NoError(trading.ProcessBar(sell))

	trades := trading.Trades()
	suite.Require().Len(trades, 1)
	suite.Equal(types.PositionTypeLong, trades[0].Side)
	suite.Equal(100.0, trades[0].EntryPrice)
	suite.Equal(110.0, trades[0].ExitPrice)
	suite.Equal(100.0, trades[0].PnL)
	suite.InDelta(0.1, trades[0].Return, 1e-12)
	suite.Equal(buy.Time, trades[0].EntryTime)
	suite.Equal(sell.Time, trades[0].ExitTime)

	suite.Equal(10100.0, trading.Cash())
	_, open := trading.Portfolio(sell.Time).Position("AAPL")
	suite.False(open)
}

func (suite *BacktestTradingTestSuite) TestPartialCloseKeepsAverageCost() {
	trading := suite.newTrading(types.RiskLimits{})

	suite.place(trading, ohlc(1, 100, 101, 99, 100), marketOrder(types.PurchaseTypeBuy, 10))
	suite.Require().NoError(trading.ProcessBar(ohlc(1, 100, 101, 99, 100)))
	suite.place(trading, ohlc(2, 120, 121, 119, 120), marketOrder(types.PurchaseTypeBuy, 10))
	suite.Require().NoError(trading.ProcessBar(ohlc(2, 120, 121, 119, 120)))
	suite.place(trading, ohlc(3, 130, 131, 129, 130), marketOrder(types.PurchaseTypeSell, 5))
	suite.Require().NoError(trading.ProcessBar(ohlc(3, 130, 131, 129, 130)))

	pos, ok := trading.Portfolio(tradingStart).Position("AAPL")
	suite.Require().True(ok)
	suite.Equal(15.0, pos.Quantity)
	suite.InDelta(110.0, pos.AverageCost, 1e-9)

	trades := trading.Trades()
	suite.Require().Len(trades, 1)
	suite.Equal(5.0, trades[0].Quantity)
	suite.InDelta(100.0, trades[0].PnL, 1e-9)
}

func (suite *BacktestTradingTestSuite) TestShortSellingWhenAllowed() {
	trading := suite.newTrading(types.RiskLimits{AllowShort: true})

	open := ohlc(1, 100, 101, 99, 100)
	suite.place(trading, open, marketOrder(types.PurchaseTypeSell, 10))
	suite.Require().NoError(trading.ProcessBar(open))
	suite.Equal(11000.0, trading.Cash())
	suite.Equal(-10.0, trading.Portfolio(open.Time).Quantity("AAPL"))
	suite.InDelta(10000.0, trading.Equity()[0].TotalEquity, 1e-9)

	cover := ohlc(2, 90, 91, 89, 90)
	suite.place(trading, cover, marketOrder(types.PurchaseTypeBuy, 10))
	suite.Require().NoError(trading.ProcessBar(cover))

	trades := trading.Trades()
	suite.Require().Len(trades, 1)
	suite.Equal(types.PositionTypeShort, trades[0].Side)
	suite.Equal(100.0, trades[0].PnL)
	suite.Equal(10100.0, trading.Cash())
}

func (suite *BacktestTradingTestSuite) TestFlipFromLongToShort() {
	trading := suite.newTrading(types.RiskLimits{AllowShort: true})

	suite.place(trading, ohlc(1, 100, 101, 99, 100), marketOrder(types.PurchaseTypeBuy, 10))
	suite.Require().NoError(trading.ProcessBar(ohlc(1, 100, 101, 99, 100)))

	flip := ohlc(2, 105, 106, 104, 105)
	suite.place(trading, flip, marketOrder(types.PurchaseTypeSell, 15))
	suite.Require().NoError(trading.ProcessBar(flip))

	trades := trading.Trades()
	suite.Require().Len(trades, 1)
	suite.Equal(10.0, trades[0].Quantity)
	suite.Equal(50.0, trades[0].PnL)

	pos, ok := trading.Portfolio(flip.Time).Position("AAPL")
	suite.Require().True(ok)
	suite.Equal(-5.0, pos.Quantity)
	suite.Equal(105.0, pos.AverageCost)
	suite.Equal(flip.Time, pos.OpenedAt)
}

func (suite *BacktestTradingTestSuite) TestExpirePending() {
	trading := suite.newTrading(types.RiskLimits{})
	last := ohlc(1, 100, 101, 99, 100)
	suite.Require().NoError(trading.ProcessBar(last))
	suite.Require().NoError(trading.PlaceOrders([]types.OrderRequest{marketOrder(types.PurchaseTypeBuy, 1)}, 0, last.Time))

	trading.ExpirePending(last.Time)

	suite.Empty(trading.PendingOrders())
	entry := suite.lastEntry(trading)
	suite.Equal(types.OrderStatusExpired, entry.Order.Status)
	suite.Equal(last.Time, entry.ClosedAt)
	suite.Len(trading.Equity(), 1)
}

func (suite *BacktestTradingTestSuite) TestMalformedRequestIsAlgorithmError() {
	trading := suite.newTrading(types.RiskLimits{})

	err := trading.PlaceOrders([]types.OrderRequest{{
		Symbol:   "AAPL",
		Side:     types.PurchaseTypeBuy,
		Type:     types.OrderTypeLimit,
		Quantity: 1,
	}}, 3, tradingStart)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeAlgorithmError))
	suite.Empty(trading.PendingOrders())
}

func (suite *BacktestTradingTestSuite) TestIDsAreDeterministic() {
	run := func() []string {
		trading := suite.newTrading(types.RiskLimits{})
		bar := ohlc(1, 100, 101, 99, 100)
		suite.place(trading, bar, marketOrder(types.PurchaseTypeBuy, 1), marketOrder(types.PurchaseTypeBuy, 2))
		suite.Require().NoError(trading.ProcessBar(bar))

		ids := []string{}
		for _, entry := range trading.Orders() {
			ids = append(ids, entry.Order.OrderID)
		}

		return ids
	}

	first := run()
	suite.Len(first, 2)
	suite.NotEqual(first[0], first[1])
	suite.Equal(first, run())
}

func (suite *BacktestTradingTestSuite) TestEquityPointPerBar() {
	trading := suite.newTrading(types.RiskLimits{})

	for day := range 5 {
		suite.Require().NoError(trading.ProcessBar(ohlc(day, 100, 101, 99, 100+float64(day))))
	}

	equity := trading.Equity()
	suite.Require().Len(equity, 5)

	for i, point := range equity {
		suite.Equal(suite.initialBalance, point.TotalEquity)
		suite.Equal(tradingStart.AddDate(0, 0, i), point.Time)
	}
}
