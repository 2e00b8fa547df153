package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

const fullConfig = `
server:
  listen_address: ":9090"
  shutdown_timeout: 10s
log:
  level: debug
backtest:
  max_concurrent_runs: 2
  timeout: 5m
  retention: 100
  lookback: 300
  results_folder: /var/lib/argo-fund/results
  default_data_source: parquet
  default_timeframe: 1h
  gap_policy: forward_fill
  slippage:
    type: fixed
    rate: 0.001
  commission:
    type: percentage
    rate: 0.001
algorithms:
  dir: /etc/argo-fund/algorithms
  call_timeout: 2s
data_sources:
  - name: parquet
    type: duckdb
    path: /data/bars/*.parquet
  - name: polygon
    type: polygon
    api_key_env: POLYGON_API_KEY
    requests_per_minute: 5
  - name: binance
    type: binance
  - name: demo
    type: synthetic
    synthetic:
      symbols: [AAPL, SPY]
      start: "2023-01-02"
      num_bars: 250
      pattern: volatile
      seed: 7
`

func (suite *ConfigTestSuite) TestParseFullConfig() {
	config, err := Parse([]byte(fullConfig))
	suite.Require().NoError(err)

	suite.Equal(":9090", config.Server.ListenAddress)
	suite.Equal(10*time.Second, config.Server.ShutdownTimeout)
	suite.Equal("debug", config.Log.Level)
	suite.Equal(2, config.Backtest.MaxConcurrentRuns)
	suite.Equal(5*time.Minute, config.Backtest.Timeout)
	suite.Equal(100, config.Backtest.Retention)
	suite.Equal(types.Timeframe1h, config.Backtest.DefaultTimeframe)
	suite.Equal("/etc/argo-fund/algorithms", config.Algorithms.Dir)
	suite.Equal(2*time.Second, config.Algorithms.CallTimeout)
	suite.Require().Len(config.DataSources, 4)
	suite.Equal(DataSourceTypeDuckDB, config.DataSources[0].Type)
	suite.Equal("/data/bars/*.parquet", config.DataSources[0].Path)
	suite.Equal("POLYGON_API_KEY", config.DataSources[1].APIKeyEnv)
	suite.Require().NotNil(config.DataSources[3].Synthetic)
	suite.Equal([]string{"AAPL", "SPY"}, config.DataSources[3].Synthetic.Symbols)
	suite.Equal(int64(7), config.DataSources[3].Synthetic.Seed)

	defaults := config.RunDefaults()
	suite.Equal("parquet", defaults.DataSource)
	suite.Equal(types.Timeframe1h, defaults.Timeframe)
	suite.Equal(types.GapPolicyForwardFill, defaults.GapPolicy)
	suite.Equal(300, defaults.Lookback)
	suite.Equal(5*time.Minute, defaults.Timeout)
	suite.Require().True(defaults.Slippage.IsSome())
	suite.Equal(types.SlippageModel{Type: types.SlippageModelFixed, Rate: 0.001, MaxRate: 0}, defaults.Slippage.Unwrap())
	suite.Require().True(defaults.Commission.IsSome())
	suite.Equal(types.CommissionModelPercentage, defaults.Commission.Unwrap().Type)
}

func (suite *ConfigTestSuite) TestParseEmptyUsesDefaults() {
	config, err := Parse([]byte(""))
	suite.Require().NoError(err)

	suite.Equal(Default(), config)

	defaults := config.RunDefaults()
	suite.Equal("memory", defaults.DataSource)
	suite.True(defaults.Slippage.IsNone())
	suite.True(defaults.Commission.IsNone())
}

func (suite *ConfigTestSuite) TestParseKeepsUnsetDefaults() {
	config, err := Parse([]byte("backtest:\n  retention: 10\n"))
	suite.Require().NoError(err)

	suite.Equal(10, config.Backtest.Retention)
	suite.Equal(DefaultMaxConcurrentRuns, config.Backtest.MaxConcurrentRuns)
	suite.Equal(DefaultListenAddress, config.Server.ListenAddress)
	suite.Len(config.DataSources, 1)
}

func (suite *ConfigTestSuite) TestInvalidConfigs() {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "malformed yaml",
			yaml: "server: [",
		},
		{
			name: "unknown log level",
			yaml: "log:\n  level: verbose\n",
		},
		{
			name: "zero concurrency",
			yaml: "backtest:\n  max_concurrent_runs: 0\n",
		},
		{
			name: "unknown data source type",
			yaml: "data_sources:\n  - name: x\n    type: ftp\n",
		},
		{
			name: "duckdb without path",
			yaml: "data_sources:\n  - name: x\n    type: duckdb\n",
		},
		{
			name: "polygon without key env",
			yaml: "data_sources:\n  - name: x\n    type: polygon\n",
		},
		{
			name: "synthetic without settings",
			yaml: "data_sources:\n  - name: x\n    type: synthetic\n",
		},
		{
			name: "duplicate data source",
			yaml: "data_sources:\n  - name: x\n    type: memory\n  - name: x\n    type: binance\n",
		},
		{
			name: "undefined default data source",
			yaml: "backtest:\n  default_data_source: parquet\n",
		},
		{
			name: "unknown timeframe",
			yaml: "backtest:\n  default_timeframe: 3d\n",
		},
		{
			name: "unknown gap policy",
			yaml: "backtest:\n  gap_policy: interpolate\n",
		},
		{
			name: "negative module call timeout",
			yaml: "algorithms:\n  call_timeout: -1s\n",
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			_, err := Parse([]byte(tt.yaml))
			suite.Require().Error(err)
			suite.Contains(
				[]errors.ErrorCode{errors.ErrCodeInvalidConfiguration, errors.ErrCodeInvalidTimeframe},
				errors.GetCode(err),
			)
		})
	}
}

func (suite *ConfigTestSuite) TestLoad() {
	path := filepath.Join(suite.T().TempDir(), "config.yaml")
	suite.Require().NoError(os.WriteFile(path, []byte(fullConfig), 0o600))

	config, err := Load(path)
	suite.Require().NoError(err)
	suite.Equal(":9090", config.Server.ListenAddress)

	_, err = Load(filepath.Join(suite.T().TempDir(), "missing.yaml"))
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}
