package writers

import (
	"context"
	"path/filepath"

	"github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-fund/internal/logger"
	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
)

func (suite *ResultWriterTestSuite) TestExportBarsReadableByDuckDBSource() {
	bars, err := datasource.NewGenerator(datasource.GeneratorConfig{
		Symbol:    "AAPL",
		StartTime: start,
		Timeframe: types.Timeframe1d,
		NumBars:   2500,
		Pattern:   datasource.PatternIncreasing,
		Seed:      3,
	}).Generate()
	suite.Require().NoError(err)

	path := filepath.Join(suite.T().TempDir(), "data", "aapl.parquet")
	suite.Require().NoError(suite.writer.ExportBars(path, bars))

	source, err := datasource.NewDataSource("parquet", "", logger.NewNopLogger())
	suite.Require().NoError(err)
	defer source.Close()

	suite.Require().NoError(source.Initialize(path))

	var fetched []types.Bar

	for bar, err := range source.FetchBars(context.Background(), "AAPL", start, start.AddDate(0, 0, 10), types.Timeframe1d) {
		suite.Require().NoError(err)

		fetched = append(fetched, bar)
	}

	suite.Require().Len(fetched, 10)
	suite.True(fetched[0].Time.Equal(bars[0].Time))
	suite.InDelta(bars[0].Close, fetched[0].Close, 1e-9)
	suite.InDelta(bars[9].Close, fetched[9].Close, 1e-9)
}

func (suite *ResultWriterTestSuite) TestExportNoBars() {
	err := suite.writer.ExportBars(filepath.Join(suite.T().TempDir(), "empty.parquet"), nil)
	suite.True(errors.HasCode(err, errors.ErrCodeDataUnavailable))
}
