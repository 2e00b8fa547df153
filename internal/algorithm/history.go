package algorithm

import (
	"slices"
	"time"

	"github.com/rxtech-lab/argo-fund/internal/types"
)

// History keeps the most recent bars per symbol in a sliding window.
// The oldest bar is evicted once the window is full.
type History struct {
	maxSize int
	// data stores bars per symbol, ordered by time (oldest first)
	data map[string][]types.Bar
}

func NewHistory(maxSize int) *History {
	return &History{
		maxSize: maxSize,
		data:    make(map[string][]types.Bar),
	}
}

// add appends bar to the window of its symbol. A bar with the same timestamp
// as the last one replaces it, an older bar is inserted in order.
func (h *History) add(bar types.Bar) {
	if h.maxSize <= 0 {
		return
	}

	bars := h.data[bar.Symbol]

	if len(bars) == 0 {
		h.data[bar.Symbol] = append(make([]types.Bar, 0, h.maxSize), bar)

		return
	}

	last := bars[len(bars)-1].Time

	switch {
	case bar.Time.After(last):
		bars = append(bars, bar)
	case bar.Time.Equal(last):
		bars[len(bars)-1] = bar
	default:
		idx, found := slices.BinarySearchFunc(bars, bar.Time, func(b types.Bar, t time.Time) int {
			return b.Time.Compare(t)
		})
		if found {
			bars[idx] = bar
		} else {
			bars = slices.Insert(bars, idx, bar)
		}
	}

	if len(bars) > h.maxSize {
		bars = slices.Clone(bars[len(bars)-h.maxSize:])
	}

	h.data[bar.Symbol] = bars
}

// Bars returns a copy of every bar in the window for symbol.
func (h *History) Bars(symbol string) []types.Bar {
	return slices.Clone(h.data[symbol])
}

// Last returns the last count bars for symbol, oldest first.
// It reports false when the window holds fewer bars.
func (h *History) Last(symbol string, count int) ([]types.Bar, bool) {
	bars := h.data[symbol]
	if count <= 0 || len(bars) < count {
		return nil, false
	}

	return slices.Clone(bars[len(bars)-count:]), true
}

// Closes returns the close prices of the whole window for symbol.
func (h *History) Closes(symbol string) []float64 {
	bars := h.data[symbol]

	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}

	return closes
}

// Latest returns the newest bar for symbol.
func (h *History) Latest(symbol string) (types.Bar, bool) {
	bars := h.data[symbol]
	if len(bars) == 0 {
		return types.Bar{}, false
	}

	return bars[len(bars)-1], true
}

// Size returns the number of bars held for symbol.
func (h *History) Size(symbol string) int {
	return len(h.data[symbol])
}

// MaxSize returns the window size per symbol.
func (h *History) MaxSize() int {
	return h.maxSize
}
