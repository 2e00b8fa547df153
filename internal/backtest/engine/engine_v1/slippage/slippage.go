package slippage

import (
	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
)

// Slippage moves a reference price against the order's side.
type Slippage interface {
	// Apply returns the fill price for an order of quantity at price on a bar
	// that traded barVolume. Buys never fill below price and sells never above.
	Apply(side types.PurchaseType, price float64, quantity float64, barVolume float64) float64
}

// New returns the slippage handler for model. An empty model type is a configuration error.
func New(model types.SlippageModel) (Slippage, error) {
	switch model.Type {
	case types.SlippageModelFixed:
		return NewFixedSlippage(model.Rate), nil
	case types.SlippageModelVolume:
		return NewVolumeSlippage(model.Rate, model.MaxRate), nil
	case types.SlippageModelNone:
		return NewNoSlippage(), nil
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "unknown slippage model %q", model.Type)
	}
}

func adjust(side types.PurchaseType, price float64, rate float64) float64 {
	if side == types.PurchaseTypeBuy {
		return price * (1 + rate)
	}

	return price * (1 - rate)
}

// FixedSlippage moves the price by a constant fraction.
type FixedSlippage struct {
	rate float64
}

func NewFixedSlippage(rate float64) Slippage {
	return &FixedSlippage{rate: rate}
}

func (s *FixedSlippage) Apply(side types.PurchaseType, price float64, _ float64, _ float64) float64 {
	return adjust(side, price, s.rate)
}

// VolumeSlippage grows with the share of the bar's volume the order takes:
// rate = coefficient * quantity / barVolume, capped at maxRate when set.
// A bar without volume gets the cap.
type VolumeSlippage struct {
	coefficient float64
	maxRate     float64
}

func NewVolumeSlippage(coefficient float64, maxRate float64) Slippage {
	return &VolumeSlippage{
		coefficient: coefficient,
		maxRate:     maxRate,
	}
}

func (s *VolumeSlippage) Apply(side types.PurchaseType, price float64, quantity float64, barVolume float64) float64 {
	var rate float64

	if barVolume <= 0 {
		rate = s.maxRate
	} else {
		rate = s.coefficient * quantity / barVolume
	}

	if s.maxRate > 0 && rate > s.maxRate {
		rate = s.maxRate
	}

	return adjust(side, price, rate)
}

// NoSlippage fills at the reference price.
type NoSlippage struct{}

func NewNoSlippage() Slippage {
	return &NoSlippage{}
}

func (s *NoSlippage) Apply(_ types.PurchaseType, price float64, _ float64, _ float64) float64 {
	return price
}
