package engine

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1/slippage"
	"github.com/rxtech-lab/argo-fund/internal/logger"
	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
	"go.uber.org/zap"
)

// quantityEpsilon treats float residue after partial closes as flat.
const quantityEpsilon = 1e-9

// Execution is the outcome of applying an order to a bar. Both fields are
// nil while the order is still pending.
type Execution struct {
	Fill      *types.Fill
	Rejection *types.Rejection
	Expired   bool
}

// BacktestTrading is the execution simulator of one run. It owns the cash,
// positions and order book, and is not safe for concurrent use.
type BacktestTrading struct {
	runID      string
	cash       float64
	positions  map[string]types.Position
	lastPrices map[string]float64
	pending    []types.Order
	slippage   slippage.Slippage
	commission commission_fee.CommissionFee
	risk       types.RiskLimits
	equity     []types.EquityPoint
	fills      []types.Fill
	trades     []types.Trade
	orderLog   []types.OrderLogEntry
	sequence   int
	log        *logger.Logger
}

func NewBacktestTrading(
	runID string,
	initialCapital float64,
	slippageModel slippage.Slippage,
	commission commission_fee.CommissionFee,
	risk types.RiskLimits,
	log *logger.Logger,
) *BacktestTrading {
	return &BacktestTrading{
		runID:      runID,
		cash:       initialCapital,
		positions:  make(map[string]types.Position),
		lastPrices: make(map[string]float64),
		pending:    []types.Order{},
		slippage:   slippageModel,
		commission: commission,
		risk:       risk,
		equity:     []types.EquityPoint{},
		fills:      []types.Fill{},
		trades:     []types.Trade{},
		orderLog:   []types.OrderLogEntry{},
		sequence:   0,
		log:        log,
	}
}

// nextID derives a stable id from the run id so repeated runs produce identical logs.
func (b *BacktestTrading) nextID(kind string) string {
	b.sequence++

	return uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "%s/%s/%d", b.runID, kind, b.sequence)).String()
}

// PlaceOrders queues the requests emitted on barIndex. They are evaluated
// against the next bar. A malformed request is an algorithm error.
func (b *BacktestTrading) PlaceOrders(requests []types.OrderRequest, barIndex int, at time.Time) error {
	for _, req := range requests {
		if err := req.Validate(); err != nil {
			return errors.Wrapf(errors.ErrCodeAlgorithmError, err, "algorithm emitted an invalid order at %s", at.Format(time.RFC3339))
		}

		limit := optional.None[float64]()
		if req.Type == types.OrderTypeLimit {
			limit = req.LimitPrice
		}

		order := types.Order{
			OrderID:      b.nextID("order"),
			Symbol:       req.Symbol,
			Side:         req.Side,
			Type:         req.Type,
			Quantity:     req.Quantity,
			LimitPrice:   limit,
			CreatedAtBar: barIndex,
			CreatedAt:    at,
			Status:       types.OrderStatusPending,
			BarsPending:  0,
			Reason:       types.Reason{Reason: req.Reason, Message: ""},
		}

		if err := order.Validate(); err != nil {
			return errors.Wrapf(errors.ErrCodeAlgorithmError, err, "algorithm emitted an invalid order at %s", at.Format(time.RFC3339))
		}

		b.pending = append(b.pending, order)
	}

	return nil
}

// ProcessBar settles every pending order against bar, marks positions to the
// close and appends one equity point.
func (b *BacktestTrading) ProcessBar(bar types.Bar) error {
	remaining := make([]types.Order, 0, len(b.pending))

	for _, order := range b.pending {
		exec := b.Apply(&order, bar)

		switch {
		case exec.Fill != nil:
			b.close(order, exec.Fill, bar.Time)
		case exec.Rejection != nil, exec.Expired:
			b.close(order, nil, bar.Time)
		default:
			remaining = append(remaining, order)
		}
	}

	b.pending = remaining
	b.lastPrices[bar.Symbol] = bar.Close
	b.markToMarket(bar.Time)

	return b.checkInvariants(bar)
}

// Apply evaluates one order against bar and mutates the portfolio when it fills.
func (b *BacktestTrading) Apply(order *types.Order, bar types.Bar) Execution {
	if order.Status.IsTerminal() {
		return Execution{}
	}

	if order.Symbol != bar.Symbol {
		return b.reject(order, bar.Time, errors.Newf(errors.ErrCodeSymbolNotFound,
			"no bar for %s at %s", order.Symbol, bar.Time.Format(time.RFC3339)))
	}

	if order.Quantity <= 0 || math.IsNaN(order.Quantity) || math.IsInf(order.Quantity, 0) {
		return b.reject(order, bar.Time, errors.Newf(errors.ErrCodeInvalidQuantity,
			"quantity must be positive, got %v", order.Quantity))
	}

	var price, reference float64

	switch order.Type {
	case types.OrderTypeMarket:
		reference = bar.Open
		price = b.slippage.Apply(order.Side, bar.Open, order.Quantity, bar.Volume)
	case types.OrderTypeLimit:
		limit := order.LimitPrice.Unwrap()
		if bar.Low > limit || limit > bar.High {
			order.BarsPending++
			if order.BarsPending >= 2 {
				order.Status = types.OrderStatusExpired
				order.Reason = types.Reason{
					Reason:  types.OrderReasonExpired,
					Message: fmt.Sprintf("limit %v not reached within %d bars", limit, order.BarsPending),
				}

				return Execution{Expired: true}
			}

			return Execution{}
		}

		reference = limit
		price = limit
	}

	commission := b.commission.Calculate(order.Quantity, price)

	if rejection := b.checkOrder(order, price, commission); rejection != nil {
		return b.reject(order, bar.Time, rejection)
	}

	fill := &types.Fill{
		OrderID:      order.OrderID,
		Symbol:       order.Symbol,
		Side:         order.Side,
		Price:        price,
		Quantity:     order.Quantity,
		Commission:   commission,
		SlippageCost: math.Abs(price-reference) * order.Quantity,
		Time:         bar.Time,
	}

	b.applyFill(fill)
	order.Status = types.OrderStatusFilled

	return Execution{Fill: fill}
}

// checkOrder returns the trading error that rejects order, or nil when it can fill.
func (b *BacktestTrading) checkOrder(order *types.Order, price float64, commission float64) *errors.Error {
	current := b.positions[order.Symbol].Quantity
	next := current + signedQuantity(order.Side, order.Quantity)

	if b.risk.MaxPositionQuantity > 0 && math.Abs(next) > b.risk.MaxPositionQuantity && math.Abs(next) > math.Abs(current) {
		return errors.Newf(errors.ErrCodeRiskLimit, "position %v would exceed the limit of %v", next, b.risk.MaxPositionQuantity)
	}

	if order.Side == types.PurchaseTypeSell && !b.risk.AllowShort && order.Quantity > current+quantityEpsilon {
		return errors.Newf(errors.ErrCodeInsufficientPosition, "cannot sell %v of %s, holding %v", order.Quantity, order.Symbol, current)
	}

	cashAfter := b.cash - signedQuantity(order.Side, order.Quantity)*price - commission
	if cashAfter < 0 && (!b.risk.AllowShort || order.Side == types.PurchaseTypeBuy) {
		return errors.Newf(errors.ErrCodeInsufficientFunds, "order needs %.2f, cash is %.2f", b.cash-cashAfter, b.cash)
	}

	return nil
}

func (b *BacktestTrading) reject(order *types.Order, at time.Time, cause *errors.Error) Execution {
	reason := types.RejectReasonFor(cause.Code)

	order.Status = types.OrderStatusRejected
	order.Reason = types.Reason{Reason: reason, Message: cause.Message}

	b.log.Debug("Order rejected",
		zap.String("run_id", b.runID),
		zap.String("order_id", order.OrderID),
		zap.String("reason", reason),
		zap.Int("code", int(cause.Code)),
		zap.String("message", cause.Message),
	)

	return Execution{Rejection: &types.Rejection{
		OrderID: order.OrderID,
		Code:    cause.Code,
		Reason:  reason,
		Message: cause.Message,
		Time:    at,
	}}
}

func (b *BacktestTrading) close(order types.Order, fill *types.Fill, at time.Time) {
	if fill != nil {
		b.fills = append(b.fills, *fill)
	}

	b.orderLog = append(b.orderLog, types.OrderLogEntry{Order: order, Fill: fill, ClosedAt: at})
}

func signedQuantity(side types.PurchaseType, qty float64) float64 {
	if side == types.PurchaseTypeSell {
		return -qty
	}

	return qty
}

// applyFill moves cash and updates the position, producing a trade for any reduced quantity.
func (b *BacktestTrading) applyFill(fill *types.Fill) {
	delta := signedQuantity(fill.Side, fill.Quantity)
	b.cash -= delta*fill.Price + fill.Commission

	pos, ok := b.positions[fill.Symbol]
	if !ok || math.Abs(pos.Quantity) < quantityEpsilon {
		b.positions[fill.Symbol] = openPosition(fill.Symbol, delta, fill.Price, fill.Commission, fill.Time)

		return
	}

	if (pos.Quantity > 0) == (delta > 0) {
		b.positions[fill.Symbol] = addToPosition(pos, delta, fill.Price, fill.Commission)

		return
	}

	closed := math.Min(fill.Quantity, math.Abs(pos.Quantity))
	exitCommission := fill.Commission * closed / fill.Quantity
	b.recordTrade(pos, fill, closed, exitCommission)

	remaining := pos.Quantity + delta

	switch {
	case math.Abs(remaining) < quantityEpsilon:
		delete(b.positions, fill.Symbol)
	case (remaining > 0) == (pos.Quantity > 0):
		pos.Quantity = remaining
		b.positions[fill.Symbol] = pos
	default:
		b.positions[fill.Symbol] = openPosition(fill.Symbol, remaining, fill.Price, fill.Commission-exitCommission, fill.Time)
	}
}

// openPosition builds a new position whose average cost carries the entry fee.
func openPosition(symbol string, qty float64, price float64, commission float64, at time.Time) types.Position {
	size := math.Abs(qty)

	avg := (size*price + commission) / size
	if qty < 0 {
		avg = (size*price - commission) / size
	}

	return types.Position{Symbol: symbol, Quantity: qty, AverageCost: avg, OpenedAt: at}
}

func addToPosition(pos types.Position, delta float64, price float64, commission float64) types.Position {
	oldSize := math.Abs(pos.Quantity)
	addSize := math.Abs(delta)

	basis := oldSize*pos.AverageCost + addSize*price + commission
	if pos.Quantity < 0 {
		basis = oldSize*pos.AverageCost + addSize*price - commission
	}

	pos.AverageCost = basis / (oldSize + addSize)
	pos.Quantity += delta

	return pos
}

func (b *BacktestTrading) recordTrade(pos types.Position, fill *types.Fill, qty float64, exitCommission float64) {
	side := pos.Type()
	pnl := types.RealizedPnL(side, pos.AverageCost, fill.Price, qty, exitCommission)

	ret := 0.0
	if basis := pos.AverageCost * qty; basis != 0 {
		ret = pnl / basis
	}

	b.trades = append(b.trades, types.Trade{
		ID:         b.nextID("trade"),
		Symbol:     fill.Symbol,
		Side:       side,
		EntryTime:  pos.OpenedAt,
		ExitTime:   fill.Time,
		EntryPrice: pos.AverageCost,
		ExitPrice:  fill.Price,
		Quantity:   qty,
		PnL:        pnl,
		Return:     ret,
		Commission: exitCommission,
	})
}

func (b *BacktestTrading) marketValue() float64 {
	value := 0.0

	// sorted so the float sum is identical between runs
	for _, symbol := range slices.Sorted(maps.Keys(b.positions)) {
		pos := b.positions[symbol]

		price, ok := b.lastPrices[symbol]
		if !ok {
			price = pos.AverageCost
		}

		value += pos.MarketValue(price)
	}

	return value
}

func (b *BacktestTrading) markToMarket(at time.Time) {
	mv := b.marketValue()

	b.equity = append(b.equity, types.EquityPoint{
		Time:        at,
		TotalEquity: b.cash + mv,
		Cash:        b.cash,
		MarketValue: mv,
	})
}

func (b *BacktestTrading) checkInvariants(bar types.Bar) error {
	if math.IsNaN(b.cash) || math.IsInf(b.cash, 0) {
		return errors.Newf(errors.ErrCodeInvariantViolation, "cash is not finite after bar %s", bar.Time.Format(time.RFC3339))
	}

	if b.cash < -quantityEpsilon && !b.risk.AllowShort {
		return errors.Newf(errors.ErrCodeInvariantViolation, "cash %.6f is negative after bar %s", b.cash, bar.Time.Format(time.RFC3339))
	}

	return nil
}

// ExpirePending expires every order still waiting when the data ends.
func (b *BacktestTrading) ExpirePending(at time.Time) {
	for _, order := range b.pending {
		order.Status = types.OrderStatusExpired
		order.Reason = types.Reason{Reason: types.OrderReasonExpired, Message: "no more bars"}
		b.close(order, nil, at)
	}

	b.pending = []types.Order{}
}

// Portfolio returns a snapshot of cash and positions.
func (b *BacktestTrading) Portfolio(at time.Time) types.PortfolioState {
	return types.PortfolioState{
		Cash:      b.cash,
		Positions: maps.Clone(b.positions),
		Time:      at,
	}
}

func (b *BacktestTrading) Cash() float64 {
	return b.cash
}

func (b *BacktestTrading) PendingOrders() []types.Order {
	return slices.Clone(b.pending)
}

func (b *BacktestTrading) Equity() []types.EquityPoint {
	return slices.Clone(b.equity)
}

func (b *BacktestTrading) Fills() []types.Fill {
	return slices.Clone(b.fills)
}

func (b *BacktestTrading) Trades() []types.Trade {
	return slices.Clone(b.trades)
}

// Orders returns the terminal record of every closed order in closing order.
func (b *BacktestTrading) Orders() []types.OrderLogEntry {
	return slices.Clone(b.orderLog)
}

// RejectionCount returns how many orders were rejected, by reason.
func (b *BacktestTrading) RejectionCount() map[string]int {
	counts := map[string]int{}

	for _, entry := range b.orderLog {
		if entry.Order.Status == types.OrderStatusRejected {
			counts[entry.Order.Reason.Reason]++
		}
	}

	return counts
}
