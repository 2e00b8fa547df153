package main

import (
	"os"

	"github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-fund/internal/logger"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
)

type MarketProvider = string

const (
	MarketProviderPolygon MarketProvider = "polygon"
	MarketProviderBinance MarketProvider = "binance"
)

// polygonAPIKeyEnv holds the polygon api key.
const polygonAPIKeyEnv = "POLYGON_API_KEY"

// newProvider creates the data source bars are downloaded from.
func newProvider(provider MarketProvider, requestsPerMinute int, log *logger.Logger) (datasource.DataSource, error) {
	switch provider {
	case MarketProviderPolygon:
		return datasource.NewPolygonDataSource(provider, os.Getenv(polygonAPIKeyEnv), requestsPerMinute, log)
	case MarketProviderBinance:
		return datasource.NewBinanceDataSource(provider, "", requestsPerMinute, log), nil
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "unknown provider %q", provider)
	}
}
