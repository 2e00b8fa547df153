package datasource

import (
	"context"
	"iter"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/rxtech-lab/argo-fund/internal/logger"
	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// PolygonDataSource fetches aggregates from the polygon.io REST API.
type PolygonDataSource struct {
	name    string
	client  *polygon.Client
	limiter *rate.Limiter
	logger  *logger.Logger
}

// NewPolygonDataSource creates a polygon source. requestsPerMinute <= 0 disables rate limiting.
func NewPolygonDataSource(name string, apiKey string, requestsPerMinute int, logger *logger.Logger) (*PolygonDataSource, error) {
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "polygon api key is required")
	}

	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
	}

	return &PolygonDataSource{
		name:    name,
		client:  polygon.New(apiKey),
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}, nil
}

// Name implements DataSource.
func (p *PolygonDataSource) Name() string {
	return p.name
}

// FetchBars implements DataSource.
func (p *PolygonDataSource) FetchBars(ctx context.Context, symbol string, start time.Time, end time.Time, timeframe types.Timeframe) iter.Seq2[types.Bar, error] {
	if err := ValidateRange(start, end); err != nil {
		return errorSeq(err)
	}

	timespan, err := polygonTimespan(timeframe)
	if err != nil {
		return errorSeq(err)
	}

	return func(yield func(types.Bar, error) bool) {
		if err := p.limiter.Wait(ctx); err != nil {
			yield(types.Bar{}, errors.Wrap(errors.ErrCodeCancellationRequested, "rate limiter wait aborted", err))

			return
		}

		p.logger.Debug("Fetching polygon aggregates",
			zap.String("symbol", symbol),
			zap.Time("start", start),
			zap.Time("end", end),
			zap.String("timespan", string(timespan)),
		)

		//nolint:exhaustruct // third-party struct with many optional fields
		params := models.ListAggsParams{
			Ticker:     symbol,
			Multiplier: 1,
			Timespan:   timespan,
			From:       models.Millis(start),
			To:         models.Millis(end),
		}.WithLimit(50000)

		it := p.client.ListAggs(ctx, params)

		for it.Next() {
			agg := it.Item()

			bar := types.Bar{
				Symbol: symbol,
				Time:   time.Time(agg.Timestamp).UTC(),
				Open:   agg.Open,
				High:   agg.High,
				Low:    agg.Low,
				Close:  agg.Close,
				Volume: agg.Volume,
			}

			// polygon's range is inclusive on both ends
			if !bar.Time.Before(end) {
				break
			}

			if !yield(bar, nil) {
				return
			}
		}

		if it.Err() != nil {
			yield(types.Bar{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, it.Err(),
				"error iterating polygon aggregates for %s", symbol))
		}
	}
}

// Close implements DataSource.
func (p *PolygonDataSource) Close() error {
	return nil
}

func polygonTimespan(timeframe types.Timeframe) (models.Timespan, error) {
	switch timeframe {
	case types.Timeframe1m:
		return models.Minute, nil
	case types.Timeframe1h:
		return models.Hour, nil
	case types.Timeframe1d:
		return models.Day, nil
	case types.Timeframe1w:
		return models.Week, nil
	case types.Timeframe1M:
		return models.Month, nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidTimeframe, "unsupported timeframe for polygon: %s", timeframe)
	}
}
