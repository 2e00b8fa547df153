package datasource

import (
	"context"
	"iter"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
)

// InMemoryDataSource serves preloaded bars indexed by symbol. Bars are
// returned at the timeframe they were loaded with; the requested timeframe
// is not resampled.
type InMemoryDataSource struct {
	name string

	// data[symbol] holds that symbol's bars in chronological order
	data map[string][]types.Bar

	mu sync.RWMutex
}

// NewInMemoryDataSource creates an empty in-memory source registered under name.
func NewInMemoryDataSource(name string) *InMemoryDataSource {
	return &InMemoryDataSource{
		name: name,
		data: make(map[string][]types.Bar),
		mu:   sync.RWMutex{},
	}
}

// Load adds bars to the source. Bars may be for several symbols and in any order.
// A bar with the same symbol and timestamp as an existing one replaces it.
func (ds *InMemoryDataSource) Load(bars []types.Bar) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	incoming := make(map[string][]types.Bar)
	for _, bar := range bars {
		incoming[bar.Symbol] = append(incoming[bar.Symbol], bar)
	}

	for symbol, newBars := range incoming {
		// always build a fresh slice so running fetches keep a stable view
		symbolData := slices.Concat(ds.data[symbol], newBars)
		sort.SliceStable(symbolData, func(i, j int) bool {
			return symbolData[i].Time.Before(symbolData[j].Time)
		})

		// keep the last loaded bar for duplicated timestamps
		deduped := make([]types.Bar, 0, len(symbolData))
		for i, bar := range symbolData {
			if i+1 < len(symbolData) && symbolData[i+1].Time.Equal(bar.Time) {
				continue
			}

			deduped = append(deduped, bar)
		}

		ds.data[symbol] = deduped
	}
}

// Symbols returns the loaded symbols in sorted order.
func (ds *InMemoryDataSource) Symbols() []string {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	symbols := make([]string, 0, len(ds.data))
	for symbol := range ds.data {
		symbols = append(symbols, symbol)
	}

	slices.Sort(symbols)

	return symbols
}

// Name implements DataSource.
func (ds *InMemoryDataSource) Name() string {
	return ds.name
}

// FetchBars implements DataSource.
func (ds *InMemoryDataSource) FetchBars(ctx context.Context, symbol string, start time.Time, end time.Time, _ types.Timeframe) iter.Seq2[types.Bar, error] {
	if err := ValidateRange(start, end); err != nil {
		return errorSeq(err)
	}

	return func(yield func(types.Bar, error) bool) {
		ds.mu.RLock()
		symbolData := ds.data[symbol]
		ds.mu.RUnlock()

		if len(symbolData) == 0 {
			yield(types.Bar{}, errors.Newf(errors.ErrCodeDataUnavailable, "no data loaded for %s", symbol))

			return
		}

		// Binary search for the first bar at or after start
		idx := sort.Search(len(symbolData), func(i int) bool {
			return !symbolData[i].Time.Before(start)
		})

		for ; idx < len(symbolData) && symbolData[idx].Time.Before(end); idx++ {
			if err := ctx.Err(); err != nil {
				yield(types.Bar{}, errors.Wrap(errors.ErrCodeCancellationRequested, "fetch cancelled", err))

				return
			}

			if !yield(symbolData[idx], nil) {
				return
			}
		}
	}
}

// Close implements DataSource.
func (ds *InMemoryDataSource) Close() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	ds.data = make(map[string][]types.Bar)

	return nil
}
