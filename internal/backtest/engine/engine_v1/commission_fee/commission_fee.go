package commission_fee

import (
	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
)

type CommissionFee interface {
	// Calculate the commission fee for a fill of quantity shares at price and returns the fee in USD
	Calculate(quantity float64, price float64) float64
}

// New returns the fee handler for model. There is no implicit default: an
// empty model type is a configuration error.
func New(model types.CommissionModel) (CommissionFee, error) {
	switch model.Type {
	case types.CommissionModelFixed:
		return NewPerShareCommissionFee(model.PerShare, model.Minimum), nil
	case types.CommissionModelPercentage:
		return NewPercentageCommissionFee(model.Rate), nil
	case types.CommissionModelNone:
		return NewZeroCommissionFee(), nil
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "unknown commission model %q", model.Type)
	}
}
