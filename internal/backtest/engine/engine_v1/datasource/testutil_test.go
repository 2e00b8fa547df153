package datasource

import (
	"iter"
	"time"

	"github.com/rxtech-lab/argo-fund/internal/types"
)

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// dailyBars returns one bar per day starting at testStart with the given closes.
func dailyBars(symbol string, closes ...float64) []types.Bar {
	bars := make([]types.Bar, len(closes))
	for i, c := range closes {
		bars[i] = types.Bar{
			Symbol: symbol,
			Time:   testStart.AddDate(0, 0, i),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000,
		}
	}

	return bars
}

func sliceSeq(bars []types.Bar) iter.Seq2[types.Bar, error] {
	return func(yield func(types.Bar, error) bool) {
		for _, b := range bars {
			if !yield(b, nil) {
				return
			}
		}
	}
}

func drain(seq iter.Seq2[types.Bar, error]) ([]types.Bar, error) {
	var out []types.Bar

	for bar, err := range seq {
		if err != nil {
			return out, err
		}

		out = append(out, bar)
	}

	return out, nil
}
