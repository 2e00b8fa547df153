// Package indicator holds the technical indicators used by the built-in
// algorithms. Every function is pure: it reads a series ordered oldest
// first and uses the trailing period values.
package indicator

import (
	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
)

// Closes extracts the close prices of bars in order.
func Closes(bars []types.Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}

	return closes
}

func checkWindow(name string, values []float64, period int, required int) error {
	if period <= 0 {
		return errors.Newf(errors.ErrCodeInvalidPeriod, "%s period must be a positive integer, got %d", name, period)
	}

	if len(values) < required {
		return errors.NewInsufficientDataErrorf(required, len(values), "",
			"insufficient data for %s: need %d values, got %d", name, required, len(values))
	}

	return nil
}
