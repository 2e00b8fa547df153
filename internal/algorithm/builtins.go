package algorithm

type builtin struct {
	metadata Metadata
	factory  Factory
}

func builtins() []builtin {
	return []builtin{
		{
			metadata: Metadata{
				ID:          FlatID,
				Name:        "Flat",
				Type:        AlgorithmTypeBaseline,
				Description: "Never trades. Useful as a baseline and to check cost assumptions.",
				Version:     "1.0.0",
			},
			factory: NewFlat,
		},
		{
			metadata: Metadata{
				ID:          BuyAndHoldID,
				Name:        "Buy and Hold",
				Type:        AlgorithmTypeBaseline,
				Description: "Buys on the first bar and holds until the end of the run.",
				Version:     "1.0.0",
			},
			factory: NewBuyAndHold,
		},
		{
			metadata: Metadata{
				ID:          MomentumID,
				Name:        "Momentum",
				Type:        AlgorithmTypeTrendFollowing,
				Description: "Goes long when the fast SMA crosses above the slow SMA and exits on the cross below.",
				Version:     "1.1.0",
			},
			factory: NewMomentum,
		},
		{
			metadata: Metadata{
				ID:          MeanReversionID,
				Name:        "Mean Reversion",
				Type:        AlgorithmTypeMeanReversion,
				Description: "Buys when the close falls outside the lower Bollinger band and exits back at the mean.",
				Version:     "1.0.0",
			},
			factory: NewMeanReversion,
		},
		{
			metadata: Metadata{
				ID:          RSIReversalID,
				Name:        "RSI Reversal",
				Type:        AlgorithmTypeMeanReversion,
				Description: "Buys when RSI is oversold and sells when it becomes overbought.",
				Version:     "1.0.0",
			},
			factory: NewRSIReversal,
		},
	}
}
