package datasource

import (
	"context"
	"iter"
	"time"

	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
)

// DataSource produces canonical OHLCV bars for a symbol.
type DataSource interface {
	// Name is the identifier requests use to select this source.
	Name() string
	// FetchBars returns a lazy sequence of bars in [start, end), ascending by
	// time. Each call starts a new independent sequence.
	FetchBars(ctx context.Context, symbol string, start time.Time, end time.Time, timeframe types.Timeframe) iter.Seq2[types.Bar, error]
	// Close closes the data source and releases any resources
	Close() error
}

// ValidateRange fails with ErrCodeInvalidRange when start is not before end.
func ValidateRange(start time.Time, end time.Time) error {
	if !start.Before(end) {
		return errors.Newf(errors.ErrCodeInvalidRange, "start %s must be before end %s",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	return nil
}

// Collect drains a fetch into memory. The range is validated before any I/O,
// an empty result fails with ErrCodeDataUnavailable and any timestamp that is
// not strictly after the previous one fails with ErrCodeInvalidBarSequence.
func Collect(ctx context.Context, ds DataSource, symbol string, start time.Time, end time.Time, timeframe types.Timeframe) ([]types.Bar, error) {
	if err := ValidateRange(start, end); err != nil {
		return nil, err
	}

	return collect(ds.FetchBars(ctx, symbol, start, end, timeframe), symbol, start, end, timeframe)
}

// Prefetch is Collect with policy applied to invalid and missing bars.
func Prefetch(ctx context.Context, ds DataSource, symbol string, start time.Time, end time.Time, timeframe types.Timeframe, policy types.GapPolicy) ([]types.Bar, error) {
	if err := ValidateRange(start, end); err != nil {
		return nil, err
	}

	seq := ApplyGapPolicy(ds.FetchBars(ctx, symbol, start, end, timeframe), policy, timeframe)

	return collect(seq, symbol, start, end, timeframe)
}

func collect(seq iter.Seq2[types.Bar, error], symbol string, start time.Time, end time.Time, timeframe types.Timeframe) ([]types.Bar, error) {
	var bars []types.Bar

	for bar, err := range seq {
		if err != nil {
			return nil, err
		}

		if len(bars) > 0 && !bar.Time.After(bars[len(bars)-1].Time) {
			return nil, errors.Newf(errors.ErrCodeInvalidBarSequence,
				"bar at %s for %s is not after %s", bar.Time.Format(time.RFC3339), symbol,
				bars[len(bars)-1].Time.Format(time.RFC3339))
		}

		bars = append(bars, bar)
	}

	if len(bars) == 0 {
		return nil, errors.Newf(errors.ErrCodeDataUnavailable, "no %s bars for %s between %s and %s",
			timeframe, symbol, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	return bars, nil
}

// errorSeq yields a single error.
func errorSeq(err error) iter.Seq2[types.Bar, error] {
	return func(yield func(types.Bar, error) bool) {
		yield(types.Bar{}, err)
	}
}
