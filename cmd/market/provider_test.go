package main

import (
	"testing"

	"github.com/rxtech-lab/argo-fund/internal/logger"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type ProviderTestSuite struct {
	suite.Suite
}

func TestProviderSuite(t *testing.T) {
	suite.Run(t, new(ProviderTestSuite))
}

func (suite *ProviderTestSuite) TestBinance() {
	provider, err := newProvider(MarketProviderBinance, 0, logger.NewNopLogger())
	suite.Require().NoError(err)
	suite.Equal(MarketProviderBinance, provider.Name())
}

func (suite *ProviderTestSuite) TestPolygonRequiresAPIKey() {
	suite.T().Setenv(polygonAPIKeyEnv, "")

	_, err := newProvider(MarketProviderPolygon, 5, logger.NewNopLogger())
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ProviderTestSuite) TestPolygonWithAPIKey() {
	suite.T().Setenv(polygonAPIKeyEnv, "test-key")

	provider, err := newProvider(MarketProviderPolygon, 5, logger.NewNopLogger())
	suite.Require().NoError(err)
	suite.Equal(MarketProviderPolygon, provider.Name())
}

func (suite *ProviderTestSuite) TestUnknownProvider() {
	_, err := newProvider("bloomberg", 0, logger.NewNopLogger())
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (suite *ProviderTestSuite) TestOutputPath() {
	suite.Equal("data/AAPL_1d.parquet", outputPath("data", "aapl", "1d"))
	suite.Equal("out/BTCUSDT_1h.parquet", outputPath("out", "BTCUSDT", "1h"))
}
