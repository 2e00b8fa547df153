package types

import (
	"fmt"
	"os"

	"github.com/moznion/go-optional"
	"gopkg.in/yaml.v3"
)

// MonthlyReturn is the compounded return of one calendar month (UTC).
type MonthlyReturn struct {
	// Month is formatted as 2006-01.
	Month  string  `json:"month"`
	Return float64 `json:"return"`
	// Benchmark is None when no benchmark bars fall in the month.
	Benchmark optional.Option[float64] `json:"benchmark"`
}

// Attribution splits the total return into explanatory parts.
type Attribution struct {
	// MarketReturn is beta times the benchmark return. None without a benchmark.
	MarketReturn optional.Option[float64] `json:"marketReturn"`
	// SelectionReturn is what remains of the total return after the market part.
	SelectionReturn optional.Option[float64] `json:"selectionReturn"`
	// FeeDrag is total commission as a negative fraction of initial capital.
	FeeDrag float64 `json:"feeDrag"`
	// SlippageDrag is total slippage cost as a negative fraction of initial capital.
	SlippageDrag float64 `json:"slippageDrag"`
}

// StatisticsReport holds every number the dashboard summary shows.
// Nullable metrics are None when they are undefined for the input.
type StatisticsReport struct {
	// InsufficientData is true when the equity curve has fewer than 2 points.
	InsufficientData bool                     `json:"insufficientData"`
	TotalReturn      float64                  `json:"totalReturn"`
	AnnualizedReturn float64                  `json:"annualizedReturn"`
	BenchmarkReturn  optional.Option[float64] `json:"benchmarkReturn"`
	Alpha            optional.Option[float64] `json:"alpha"`
	Beta             optional.Option[float64] `json:"beta"`
	SharpeRatio      float64                  `json:"sharpeRatio"`
	SortinoRatio     float64                  `json:"sortinoRatio"`
	MaxDrawdown      float64                  `json:"maxDrawdown"`
	Volatility       float64                  `json:"volatility"`
	WinRate          optional.Option[float64] `json:"winRate"`
	ProfitFactor     optional.Option[float64] `json:"profitFactor"`

	NumberOfTrades        int     `json:"numberOfTrades"`
	NumberOfWinningTrades int     `json:"numberOfWinningTrades"`
	NumberOfLosingTrades  int     `json:"numberOfLosingTrades"`
	TotalFees             float64 `json:"totalFees"`
	TotalSlippage         float64 `json:"totalSlippage"`
	InitialEquity         float64 `json:"initialEquity"`
	FinalEquity           float64 `json:"finalEquity"`

	MonthlyReturns []MonthlyReturn `json:"monthlyReturns"`
	Attribution    Attribution     `json:"attribution"`
}

type monthlyReturnYAML struct {
	Month     string   `yaml:"month"`
	Return    float64  `yaml:"return"`
	Benchmark *float64 `yaml:"benchmark"`
}

type statisticsReportYAML struct {
	InsufficientData      bool                `yaml:"insufficient_data"`
	TotalReturn           float64             `yaml:"total_return"`
	AnnualizedReturn      float64             `yaml:"annualized_return"`
	BenchmarkReturn       *float64            `yaml:"benchmark_return"`
	Alpha                 *float64            `yaml:"alpha"`
	Beta                  *float64            `yaml:"beta"`
	SharpeRatio           float64             `yaml:"sharpe_ratio"`
	SortinoRatio          float64             `yaml:"sortino_ratio"`
	MaxDrawdown           float64             `yaml:"max_drawdown"`
	Volatility            float64             `yaml:"volatility"`
	WinRate               *float64            `yaml:"win_rate"`
	ProfitFactor          *float64            `yaml:"profit_factor"`
	NumberOfTrades        int                 `yaml:"number_of_trades"`
	NumberOfWinningTrades int                 `yaml:"number_of_winning_trades"`
	NumberOfLosingTrades  int                 `yaml:"number_of_losing_trades"`
	TotalFees             float64             `yaml:"total_fees"`
	TotalSlippage         float64             `yaml:"total_slippage"`
	InitialEquity         float64             `yaml:"initial_equity"`
	FinalEquity           float64             `yaml:"final_equity"`
	MonthlyReturns        []monthlyReturnYAML `yaml:"monthly_returns"`
	MarketReturn          *float64            `yaml:"market_return"`
	SelectionReturn       *float64            `yaml:"selection_return"`
	FeeDrag               float64             `yaml:"fee_drag"`
	SlippageDrag          float64             `yaml:"slippage_drag"`
}

func optionalToPtr(o optional.Option[float64]) *float64 {
	if o.IsNone() {
		return nil
	}

	v := o.Unwrap()

	return &v
}

// MarshalYAML writes None values as null.
func (r StatisticsReport) MarshalYAML() (any, error) {
	months := make([]monthlyReturnYAML, 0, len(r.MonthlyReturns))
	for _, m := range r.MonthlyReturns {
		months = append(months, monthlyReturnYAML{
			Month:     m.Month,
			Return:    m.Return,
			Benchmark: optionalToPtr(m.Benchmark),
		})
	}

	return statisticsReportYAML{
		InsufficientData:      r.InsufficientData,
		TotalReturn:           r.TotalReturn,
		AnnualizedReturn:      r.AnnualizedReturn,
		BenchmarkReturn:       optionalToPtr(r.BenchmarkReturn),
		Alpha:                 optionalToPtr(r.Alpha),
		Beta:                  optionalToPtr(r.Beta),
		SharpeRatio:           r.SharpeRatio,
		SortinoRatio:          r.SortinoRatio,
		MaxDrawdown:           r.MaxDrawdown,
		Volatility:            r.Volatility,
		WinRate:               optionalToPtr(r.WinRate),
		ProfitFactor:          optionalToPtr(r.ProfitFactor),
		NumberOfTrades:        r.NumberOfTrades,
		NumberOfWinningTrades: r.NumberOfWinningTrades,
		NumberOfLosingTrades:  r.NumberOfLosingTrades,
		TotalFees:             r.TotalFees,
		TotalSlippage:         r.TotalSlippage,
		InitialEquity:         r.InitialEquity,
		FinalEquity:           r.FinalEquity,
		MonthlyReturns:        months,
		MarketReturn:          optionalToPtr(r.Attribution.MarketReturn),
		SelectionReturn:       optionalToPtr(r.Attribution.SelectionReturn),
		FeeDrag:               r.Attribution.FeeDrag,
		SlippageDrag:          r.Attribution.SlippageDrag,
	}, nil
}

// RunStats is the summary written next to the parquet results of a run.
type RunStats struct {
	// ID is the unique identifier for this backtest run.
	ID          string           `yaml:"id"`
	Symbol      string           `yaml:"symbol"`
	AlgorithmID string           `yaml:"algorithm_id"`
	Benchmark   string           `yaml:"benchmark"`
	Report      StatisticsReport `yaml:"report"`
	// TradesFilePath is the path to the trades parquet file.
	TradesFilePath string `yaml:"trades_file_path"`
	// OrdersFilePath is the path to the orders parquet file.
	OrdersFilePath string `yaml:"orders_file_path"`
	// EquityFilePath is the path to the equity curve parquet file.
	EquityFilePath string `yaml:"equity_file_path"`
}

func WriteRunStats(path string, stats RunStats) error {
	// Marshal the struct to YAML
	data, err := yaml.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal run stats to YAML: %w", err)
	}

	// Write the YAML data to the file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write run stats to file: %w", err)
	}

	return nil
}
