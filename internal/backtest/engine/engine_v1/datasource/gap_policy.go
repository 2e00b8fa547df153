package datasource

import (
	"iter"
	"time"

	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
)

// ApplyGapPolicy enforces ordering on seq and handles invalid or missing bars
// according to policy. A bar is invalid when a price is non-positive or its
// high is below its low. A gap is a jump between consecutive bars larger than
// the timeframe's MaxGap.
func ApplyGapPolicy(seq iter.Seq2[types.Bar, error], policy types.GapPolicy, timeframe types.Timeframe) iter.Seq2[types.Bar, error] {
	return func(yield func(types.Bar, error) bool) {
		var (
			prev    types.Bar
			hasPrev bool
		)

		emit := func(bar types.Bar) bool {
			prev = bar
			hasPrev = true

			return yield(bar, nil)
		}

		for bar, err := range seq {
			if err != nil {
				yield(types.Bar{}, err)

				return
			}

			if hasPrev && !bar.Time.After(prev.Time) {
				yield(types.Bar{}, errors.Newf(errors.ErrCodeInvalidBarSequence,
					"bar at %s for %s is not after %s", bar.Time.Format(time.RFC3339), bar.Symbol,
					prev.Time.Format(time.RFC3339)))

				return
			}

			invalid := !bar.IsValid()
			gap := hasPrev && bar.Time.Sub(prev.Time) > timeframe.MaxGap()

			switch policy {
			case types.GapPolicyError:
				if invalid {
					yield(types.Bar{}, errors.Newf(errors.ErrCodeDataUnavailable,
						"invalid bar for %s at %s", bar.Symbol, bar.Time.Format(time.RFC3339)))

					return
				}

				if gap {
					yield(types.Bar{}, errors.Newf(errors.ErrCodeDataUnavailable,
						"missing bars for %s between %s and %s", bar.Symbol,
						prev.Time.Format(time.RFC3339), bar.Time.Format(time.RFC3339)))

					return
				}

			case types.GapPolicyForwardFill:
				if gap {
					for t := timeframe.Next(prev.Time); t.Before(bar.Time); t = timeframe.Next(t) {
						if !emit(flatBar(prev, t)) {
							return
						}
					}
				}

				if invalid {
					// nothing to carry forward before the first valid bar
					if !hasPrev {
						continue
					}

					bar = flatBar(prev, bar.Time)
				}

			default:
				if invalid {
					continue
				}
			}

			if !emit(bar) {
				return
			}
		}
	}
}

// flatBar repeats the previous close at t with zero volume.
func flatBar(prev types.Bar, t time.Time) types.Bar {
	return types.Bar{
		Symbol: prev.Symbol,
		Time:   t,
		Open:   prev.Close,
		High:   prev.Close,
		Low:    prev.Close,
		Close:  prev.Close,
		Volume: 0,
	}
}
