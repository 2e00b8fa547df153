// Package config loads the server configuration from YAML.
package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	v1 "github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1"
	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
	"gopkg.in/yaml.v3"
)

type DataSourceType string

const (
	DataSourceTypeMemory    DataSourceType = "memory"
	DataSourceTypeSynthetic DataSourceType = "synthetic"
	DataSourceTypeDuckDB    DataSourceType = "duckdb"
	DataSourceTypePolygon   DataSourceType = "polygon"
	DataSourceTypeBinance   DataSourceType = "binance"
)

const (
	DefaultListenAddress     = ":8080"
	DefaultLogLevel          = "info"
	DefaultMaxConcurrentRuns = 4
	DefaultResultsFolder     = "results"
)

type Config struct {
	Server      ServerConfig       `yaml:"server"`
	Log         LogConfig          `yaml:"log"`
	Backtest    BacktestConfig     `yaml:"backtest"`
	Algorithms  AlgorithmsConfig   `yaml:"algorithms"`
	DataSources []DataSourceConfig `yaml:"data_sources" validate:"required,min=1,dive"`
}

type ServerConfig struct {
	ListenAddress string `yaml:"listen_address" validate:"required"`
	// ShutdownTimeout bounds how long running backtests get to stop on shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

type BacktestConfig struct {
	MaxConcurrentRuns int `yaml:"max_concurrent_runs" validate:"gt=0"`
	// Timeout is the default wall-clock budget of a run. 0 means no limit.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
	// Retention is how many finished runs are kept in memory. 0 keeps all.
	Retention int `yaml:"retention" validate:"gte=0"`
	Lookback  int `yaml:"lookback" validate:"gte=0"`
	// ResultsFolder is where completed runs are written. Empty disables writing.
	ResultsFolder     string          `yaml:"results_folder"`
	DefaultDataSource string          `yaml:"default_data_source"`
	DefaultTimeframe  types.Timeframe `yaml:"default_timeframe"`
	GapPolicy         types.GapPolicy `yaml:"gap_policy" validate:"omitempty,oneof=skip forward_fill error"`
	// Slippage and Commission are used when a request has no cost model.
	// Leaving them unset makes the cost models mandatory on every request.
	Slippage   *types.SlippageModel   `yaml:"slippage"`
	Commission *types.CommissionModel `yaml:"commission"`
}

// AlgorithmsConfig locates WebAssembly algorithm modules.
type AlgorithmsConfig struct {
	// Dir holds *.wasm modules registered next to the builtins. Empty loads none.
	Dir string `yaml:"dir"`
	// CallTimeout bounds a single call into a module.
	CallTimeout time.Duration `yaml:"call_timeout" validate:"gte=0"`
}

type DataSourceConfig struct {
	Name string         `yaml:"name" validate:"required"`
	Type DataSourceType `yaml:"type" validate:"required,oneof=memory synthetic duckdb polygon binance"`
	// Path is the parquet file or glob read by duckdb sources.
	Path string `yaml:"path" validate:"required_if=Type duckdb"`
	// Database is the duckdb database file. Empty means in-memory.
	Database string `yaml:"database"`
	// APIKeyEnv names the environment variable holding the polygon api key.
	APIKeyEnv         string `yaml:"api_key_env" validate:"required_if=Type polygon"`
	RequestsPerMinute int    `yaml:"requests_per_minute" validate:"gte=0"`
	// BaseURL overrides the binance endpoint.
	BaseURL   string           `yaml:"base_url"`
	Synthetic *SyntheticConfig `yaml:"synthetic" validate:"required_if=Type synthetic"`
}

// SyntheticConfig generates deterministic bars for demo environments.
type SyntheticConfig struct {
	Symbols            []string        `yaml:"symbols" validate:"required,min=1"`
	Start              string          `yaml:"start" validate:"required"`
	NumBars            int             `yaml:"num_bars" validate:"gt=0"`
	Timeframe          types.Timeframe `yaml:"timeframe"`
	Pattern            string          `yaml:"pattern" validate:"omitempty,oneof=increasing decreasing volatile flat"`
	InitialPrice       float64         `yaml:"initial_price" validate:"gte=0"`
	VolatilityPercent  float64         `yaml:"volatility_percent" validate:"gte=0"`
	MaxDrawdownPercent float64         `yaml:"max_drawdown_percent" validate:"gte=0"`
	Seed               int64           `yaml:"seed"`
}

// Default returns a config serving a single in-memory data source.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddress:   DefaultListenAddress,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{Level: DefaultLogLevel},
		Backtest: BacktestConfig{
			MaxConcurrentRuns: DefaultMaxConcurrentRuns,
			Timeout:           0,
			Retention:         0,
			Lookback:          0,
			ResultsFolder:     DefaultResultsFolder,
			DefaultDataSource: "",
			DefaultTimeframe:  types.Timeframe1d,
			GapPolicy:         types.GapPolicySkip,
			Slippage:          nil,
			Commission:        nil,
		},
		Algorithms: AlgorithmsConfig{
			Dir:         "",
			CallTimeout: 0,
		},
		DataSources: []DataSourceConfig{
			{Name: string(DataSourceTypeMemory), Type: DataSourceTypeMemory},
		},
	}
}

// Load reads the YAML file at path on top of Default and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config %s", path)
	}

	return Parse(data)
}

// Parse decodes YAML config data on top of Default and validates the result.
func Parse(data []byte) (Config, error) {
	config := Default()

	// a data_sources list in the file replaces the default one
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse config", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate checks the config and the references between its sections.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid configuration", err)
	}

	names := make(map[string]struct{}, len(c.DataSources))
	for _, source := range c.DataSources {
		if _, ok := names[source.Name]; ok {
			return errors.Newf(errors.ErrCodeInvalidConfiguration, "data source %s is defined twice", source.Name)
		}

		names[source.Name] = struct{}{}
	}

	if c.Backtest.DefaultDataSource != "" {
		if _, ok := names[c.Backtest.DefaultDataSource]; !ok {
			return errors.Newf(errors.ErrCodeInvalidConfiguration, "default data source %s is not defined", c.Backtest.DefaultDataSource)
		}
	}

	if c.Backtest.DefaultTimeframe != "" {
		if _, err := types.ParseTimeframe(string(c.Backtest.DefaultTimeframe)); err != nil {
			return err
		}
	}

	return nil
}

// RunDefaults returns the values used to complete run requests.
func (c *Config) RunDefaults() v1.Defaults {
	dataSource := c.Backtest.DefaultDataSource
	if dataSource == "" && len(c.DataSources) > 0 {
		dataSource = c.DataSources[0].Name
	}

	slippage := optional.None[types.SlippageModel]()
	if c.Backtest.Slippage != nil {
		slippage = optional.Some(*c.Backtest.Slippage)
	}

	commission := optional.None[types.CommissionModel]()
	if c.Backtest.Commission != nil {
		commission = optional.Some(*c.Backtest.Commission)
	}

	return v1.Defaults{
		DataSource: dataSource,
		Timeframe:  c.Backtest.DefaultTimeframe,
		GapPolicy:  c.Backtest.GapPolicy,
		Lookback:   c.Backtest.Lookback,
		Timeout:    c.Backtest.Timeout,
		Slippage:   slippage,
		Commission: commission,
	}
}
