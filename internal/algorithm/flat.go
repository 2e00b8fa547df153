package algorithm

import "github.com/rxtech-lab/argo-fund/internal/types"

const FlatID = "flat"

// Flat never places an order.
type Flat struct{}

type flatParams struct{}

func NewFlat(params map[string]any) (Algorithm, error) {
	if err := DecodeParams(params, &flatParams{}); err != nil {
		return nil, err
	}

	return &Flat{}, nil
}

func (f *Flat) Name() string {
	return FlatID
}

func (f *Flat) OnBar(_ *Context, _ types.Bar) ([]types.OrderRequest, error) {
	return nil, nil
}
