package datasource

import (
	"context"
	"iter"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/rxtech-lab/argo-fund/internal/logger"
	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const binanceMaxKlines = 1000

// BinanceDataSource fetches klines from the Binance public REST API.
type BinanceDataSource struct {
	name     string
	client   *binance.Client
	limiter  *rate.Limiter
	logger   *logger.Logger
	pageSize int
}

// NewBinanceDataSource creates a binance source. An empty baseURL uses the production API.
func NewBinanceDataSource(name string, baseURL string, requestsPerMinute int, logger *logger.Logger) *BinanceDataSource {
	client := binance.NewClient("", "")
	if baseURL != "" {
		client.BaseURL = baseURL
	}

	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
	}

	return &BinanceDataSource{
		name:     name,
		client:   client,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
		pageSize: binanceMaxKlines,
	}
}

// Name implements DataSource.
func (b *BinanceDataSource) Name() string {
	return b.name
}

// FetchBars implements DataSource. Binance interval names match our timeframes.
func (b *BinanceDataSource) FetchBars(ctx context.Context, symbol string, start time.Time, end time.Time, timeframe types.Timeframe) iter.Seq2[types.Bar, error] {
	if err := ValidateRange(start, end); err != nil {
		return errorSeq(err)
	}

	if _, err := types.ParseTimeframe(string(timeframe)); err != nil {
		return errorSeq(err)
	}

	return func(yield func(types.Bar, error) bool) {
		// Binance API uses milliseconds for timestamps and an inclusive end
		currentStartTime := start.UnixMilli()
		endTimeMillis := end.UnixMilli() - 1

		for currentStartTime <= endTimeMillis {
			if err := b.limiter.Wait(ctx); err != nil {
				yield(types.Bar{}, errors.Wrap(errors.ErrCodeCancellationRequested, "rate limiter wait aborted", err))

				return
			}

			klines, err := b.client.NewKlinesService().
				Symbol(symbol).
				Interval(string(timeframe)).
				StartTime(currentStartTime).
				EndTime(endTimeMillis).
				Limit(b.pageSize).
				Do(ctx)
			if err != nil {
				yield(types.Bar{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err,
					"failed to fetch klines for %s from binance", symbol))

				return
			}

			b.logger.Debug("Fetched binance klines",
				zap.String("symbol", symbol),
				zap.Int("count", len(klines)),
				zap.Int64("start_ms", currentStartTime),
			)

			for _, k := range klines {
				bar, err := klineToBar(symbol, k)
				if err != nil {
					yield(types.Bar{}, err)

					return
				}

				if !yield(bar, nil) {
					return
				}
			}

			// Break conditions: no data or a short page (last page)
			if len(klines) < b.pageSize {
				return
			}

			// Use the close time of the last kline + 1ms to avoid duplicates
			currentStartTime = klines[len(klines)-1].CloseTime + 1
		}
	}
}

// Close implements DataSource.
func (b *BinanceDataSource) Close() error {
	return nil
}

// klineToBar converts Binance kline data to a Bar, using the open time as the bar timestamp.
func klineToBar(symbol string, k *binance.Kline) (types.Bar, error) {
	values := make([]float64, 5)

	for i, raw := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return types.Bar{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err,
				"malformed kline for %s at %d", symbol, k.OpenTime)
		}

		values[i] = v
	}

	return types.Bar{
		Symbol: symbol,
		Time:   time.UnixMilli(k.OpenTime).UTC(),
		Open:   values[0],
		High:   values[1],
		Low:    values[2],
		Close:  values[3],
		Volume: values[4],
	}, nil
}
