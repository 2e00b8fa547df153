package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
)

type PurchaseType string

type OrderType string

type OrderStatus string

type PositionType string

const (
	OrderStatusPending  OrderStatus = "PENDING"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusRejected OrderStatus = "REJECTED"
	OrderStatusExpired  OrderStatus = "EXPIRED"
)

const (
	PositionTypeLong  PositionType = "LONG"
	PositionTypeShort PositionType = "SHORT"
)

const (
	PurchaseTypeBuy  PurchaseType = "BUY"
	PurchaseTypeSell PurchaseType = "SELL"
)

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// Rejection reason codes recorded in the order log.
const (
	RejectReasonInsufficientFunds    string = "insufficient_funds"
	RejectReasonInsufficientPosition string = "insufficient_position"
	RejectReasonSymbolNotFound       string = "symbol_not_found"
	RejectReasonInvalidQuantity      string = "invalid_quantity"
	RejectReasonRiskLimit            string = "risk_limit"

	// OrderReasonExpired is recorded on limit orders that never reached their price.
	OrderReasonExpired string = "expired"
)

var rejectReasons = map[errors.ErrorCode]string{
	errors.ErrCodeInsufficientFunds:    RejectReasonInsufficientFunds,
	errors.ErrCodeInsufficientPosition: RejectReasonInsufficientPosition,
	errors.ErrCodeSymbolNotFound:       RejectReasonSymbolNotFound,
	errors.ErrCodeInvalidQuantity:      RejectReasonInvalidQuantity,
	errors.ErrCodeRiskLimit:            RejectReasonRiskLimit,
}

// RejectReasonFor returns the order log reason code of a trading error code,
// or "" when code is not a rejection cause.
func RejectReasonFor(code errors.ErrorCode) string {
	return rejectReasons[code]
}

// IsTerminal reports whether no further transition is possible from s.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusRejected || s == OrderStatusExpired
}

type Reason struct {
	Reason  string `yaml:"reason" json:"reason" csv:"reason"`
	Message string `yaml:"message" json:"message" csv:"message"`
}

// OrderRequest is what an algorithm emits from OnBar. The simulator turns it
// into an Order on the next bar.
type OrderRequest struct {
	Symbol   string       `yaml:"symbol" json:"symbol" validate:"required"`
	Side     PurchaseType `yaml:"side" json:"side" validate:"required,oneof=BUY SELL"`
	Type     OrderType    `yaml:"type" json:"type" validate:"required,oneof=MARKET LIMIT"`
	Quantity float64      `yaml:"quantity" json:"quantity"`
	// LimitPrice is required for limit orders and ignored for market orders.
	LimitPrice optional.Option[float64] `yaml:"limit_price" json:"limit_price"`
	// Reason is free text from the algorithm, like "sma_cross_up".
	Reason string `yaml:"reason" json:"reason"`
}

// Validate checks the request shape. Quantity is not checked here since a
// non-positive quantity is an order rejection, not a malformed request.
func (r *OrderRequest) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order request", err)
	}

	if r.Type == OrderTypeLimit {
		if r.LimitPrice.IsNone() {
			return errors.New(errors.ErrCodeInvalidOrder, "limit order requires a limit price")
		}

		if r.LimitPrice.Unwrap() <= 0 {
			return errors.New(errors.ErrCodeInvalidOrder, "limit price must be positive")
		}
	}

	return nil
}

// Order is an accepted order request tracked by the simulator.
type Order struct {
	OrderID    string                   `yaml:"order_id" json:"orderId" csv:"order_id"`
	Symbol     string                   `yaml:"symbol" json:"symbol" csv:"symbol" validate:"required"`
	Side       PurchaseType             `yaml:"side" json:"side" csv:"side" validate:"required,oneof=BUY SELL"`
	Type       OrderType                `yaml:"type" json:"type" csv:"type" validate:"required,oneof=MARKET LIMIT"`
	Quantity   float64                  `yaml:"quantity" json:"quantity" csv:"quantity"`
	LimitPrice optional.Option[float64] `yaml:"limit_price" json:"limitPrice" csv:"limit_price"`
	// CreatedAtBar is the index of the bar whose OnBar emitted the order.
	CreatedAtBar int       `yaml:"created_at_bar" json:"createdAtBar" csv:"created_at_bar"`
	CreatedAt    time.Time `yaml:"created_at" json:"createdAt" csv:"created_at"`
	// Status is PENDING until the order is filled, rejected or expired.
	Status OrderStatus `yaml:"status" json:"status" csv:"status"`
	// BarsPending counts the bars the order has been evaluated against without filling.
	BarsPending int `yaml:"bars_pending" json:"-" csv:"bars_pending"`
	// Reason holds the algorithm's reason while pending and the rejection
	// or expiry reason once terminal.
	Reason Reason `yaml:"reason" json:"reason" csv:"reason"`
}

// Fill is the executed result of an order.
type Fill struct {
	OrderID  string       `yaml:"order_id" json:"orderId" csv:"order_id"`
	Symbol   string       `yaml:"symbol" json:"symbol" csv:"symbol"`
	Side     PurchaseType `yaml:"side" json:"side" csv:"side"`
	Price    float64      `yaml:"price" json:"price" csv:"price"`
	Quantity float64      `yaml:"quantity" json:"quantity" csv:"quantity"`
	// Commission is deducted from cash at fill time.
	Commission float64 `yaml:"commission" json:"commission" csv:"commission"`
	// SlippageCost is |fill price - reference price| * quantity.
	SlippageCost float64   `yaml:"slippage_cost" json:"slippageCost" csv:"slippage_cost"`
	Time         time.Time `yaml:"time" json:"time" csv:"time"`
}

// Rejection records why an order was not filled.
type Rejection struct {
	OrderID string `yaml:"order_id" json:"orderId" csv:"order_id"`
	// Code is one of the trading error codes (500-599).
	Code    errors.ErrorCode `yaml:"code" json:"code" csv:"code"`
	Reason  string           `yaml:"reason" json:"reason" csv:"reason"`
	Message string           `yaml:"message" json:"message" csv:"message"`
	Time    time.Time        `yaml:"time" json:"time" csv:"time"`
}

// OrderLogEntry is the terminal record of an order.
type OrderLogEntry struct {
	Order    Order     `yaml:"order" json:"order"`
	Fill     *Fill     `yaml:"fill,omitempty" json:"fill,omitempty"`
	ClosedAt time.Time `yaml:"closed_at" json:"closedAt"`
}

// Validate validates the Order struct.
func (o *Order) Validate() error {
	validate := validator.New()
	if err := validate.Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order", err)
	}

	return nil
}
