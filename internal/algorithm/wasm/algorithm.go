package wasm

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-fund/internal/algorithm"
	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
	"github.com/tetratelabs/wazero/api"
)

// BarRequest is the JSON document passed to argo_algorithm_on_bar.
type BarRequest struct {
	Bar       WireBar            `json:"bar"`
	BarIndex  int                `json:"barIndex"`
	Cash      float64            `json:"cash"`
	Positions map[string]float64 `json:"positions"`
	// Closes are the closes of the bar's symbol in the history window, oldest first.
	Closes     []float64 `json:"closes"`
	AllowShort bool      `json:"allowShort"`
}

type WireBar struct {
	Symbol string    `json:"symbol"`
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// BarResponse is the JSON document returned by argo_algorithm_on_bar.
type BarResponse struct {
	Orders []WireOrder `json:"orders"`
	// Error fails the run with an algorithm error when set.
	Error string `json:"error"`
}

type WireOrder struct {
	Symbol string `json:"symbol"`
	// Side is BUY or SELL.
	Side string `json:"side"`
	// Type is MARKET or LIMIT. Empty means MARKET.
	Type       string   `json:"type"`
	Quantity   float64  `json:"quantity"`
	LimitPrice *float64 `json:"limitPrice,omitempty"`
	Reason     string   `json:"reason"`
}

// Algorithm is one sandboxed module instance. It is not safe for concurrent use.
type Algorithm struct {
	id          string
	warmup      int
	module      api.Module
	malloc      api.Function
	free        api.Function
	initFunc    api.Function
	onBarFunc   api.Function
	callTimeout time.Duration
}

func (a *Algorithm) Name() string {
	return a.id
}

// WarmupBars implements algorithm.Warmup.
func (a *Algorithm) WarmupBars() int {
	return a.warmup
}

// Close releases the module instance.
func (a *Algorithm) Close() error {
	return a.module.Close(context.Background())
}

func (a *Algorithm) initialize(params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}

	input, err := json.Marshal(params)
	if err != nil {
		return errors.Wrap(errors.ErrCodeAlgorithmConfigError, "algorithm parameters are not serializable", err)
	}

	output, err := a.call(a.initFunc, input)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeAlgorithmConfigError, err, "failed to initialize %s", a.id)
	}

	// a non-empty result is the module's description of what is wrong
	if message := strings.TrimSpace(string(output)); message != "" {
		return errors.Newf(errors.ErrCodeAlgorithmConfigError, "%s rejected its parameters: %s", a.id, message)
	}

	return nil
}

func (a *Algorithm) OnBar(ctx *algorithm.Context, bar types.Bar) ([]types.OrderRequest, error) {
	portfolio := ctx.Portfolio()

	positions := make(map[string]float64, len(portfolio.Positions))
	for symbol, position := range portfolio.Positions {
		positions[symbol] = position.Quantity
	}

	input, err := json.Marshal(BarRequest{
		Bar: WireBar{
			Symbol: bar.Symbol,
			Time:   bar.Time,
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: bar.Volume,
		},
		BarIndex:   ctx.BarIndex(),
		Cash:       portfolio.Cash,
		Positions:  positions,
		Closes:     ctx.History().Closes(bar.Symbol),
		AllowShort: ctx.Config().AllowShort,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAlgorithmError, "failed to encode bar", err)
	}

	output, err := a.call(a.onBarFunc, input)
	if err != nil {
		return nil, err
	}

	if len(output) == 0 {
		return nil, nil
	}

	var response BarResponse
	if err := json.Unmarshal(output, &response); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeAlgorithmError, err, "%s returned an invalid response", a.id)
	}

	if response.Error != "" {
		return nil, errors.New(errors.ErrCodeAlgorithmError, response.Error)
	}

	orders := make([]types.OrderRequest, 0, len(response.Orders))
	for _, o := range response.Orders {
		orders = append(orders, o.toRequest())
	}

	return orders, nil
}

func (o WireOrder) toRequest() types.OrderRequest {
	orderType := types.OrderType(strings.ToUpper(o.Type))
	if orderType == "" {
		orderType = types.OrderTypeMarket
	}

	limit := optional.None[float64]()
	if o.LimitPrice != nil {
		limit = optional.Some(*o.LimitPrice)
	}

	return types.OrderRequest{
		Symbol:     strings.ToUpper(o.Symbol),
		Side:       types.PurchaseType(strings.ToUpper(o.Side)),
		Type:       orderType,
		Quantity:   o.Quantity,
		LimitPrice: limit,
		Reason:     o.Reason,
	}
}

// call copies input into the module, invokes fn and returns a copy of its result.
func (a *Algorithm) call(fn api.Function, input []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.callTimeout)
	defer cancel()

	results, err := a.malloc.Call(ctx, uint64(len(input)))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeAlgorithmError, err, "%s failed to allocate %d bytes", a.id, len(input))
	}

	ptr := uint32(results[0])
	defer func() {
		_, _ = a.free.Call(ctx, uint64(ptr))
	}()

	if !a.module.Memory().Write(ptr, input) {
		return nil, errors.Newf(errors.ErrCodeAlgorithmError, "%s allocated memory out of range", a.id)
	}

	results, err = fn.Call(ctx, uint64(ptr), uint64(len(input)))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeAlgorithmError, err, "%s call failed", a.id)
	}

	return readResult(a.module, results[0])
}

// readResult unpacks a (ptr << 32) | size result and copies the bytes out of
// the module's memory.
func readResult(module api.Module, packed uint64) ([]byte, error) {
	ptr := uint32(packed >> 32)
	size := uint32(packed)

	if size == 0 {
		return nil, nil
	}

	data, ok := module.Memory().Read(ptr, size)
	if !ok {
		return nil, errors.Newf(errors.ErrCodeAlgorithmError, "result [%d, %d) is out of memory range", ptr, uint64(ptr)+uint64(size))
	}

	return bytes.Clone(data), nil
}
