package datasource

import (
	"database/sql"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
)

// SimulationPattern defines the type of price simulation pattern
type SimulationPattern string

const (
	// PatternIncreasing simulates a continuously increasing price trend
	PatternIncreasing SimulationPattern = "increasing"
	// PatternDecreasing simulates a continuously decreasing price trend
	PatternDecreasing SimulationPattern = "decreasing"
	// PatternVolatile simulates a volatile price with maximum drawdown constraint
	PatternVolatile SimulationPattern = "volatile"
	// PatternFlat keeps every price at the initial price
	PatternFlat SimulationPattern = "flat"
)

const (
	// DefaultMinimumPrice is the minimum price floor to prevent negative or zero prices
	DefaultMinimumPrice = 0.01
	// DefaultBaseVolume is the base volume for generating random volume data
	DefaultBaseVolume = 1000000.0

	increasingNoiseBias = 0.3
	decreasingNoiseBias = 0.7
	volatileUpwardBias  = 0.45
)

// GeneratorConfig holds the configuration for generating synthetic bars.
type GeneratorConfig struct {
	Symbol    string
	StartTime time.Time
	Timeframe types.Timeframe
	// NumBars is the number of bars to generate
	NumBars int
	Pattern SimulationPattern
	// InitialPrice is the starting price for the simulation
	InitialPrice float64
	// MaxDrawdownPercent is the maximum allowed drawdown percentage (only used with PatternVolatile)
	MaxDrawdownPercent float64
	// VolatilityPercent is the base volatility percentage for price changes
	VolatilityPercent float64
	// TrendStrength is the per-bar drift for increasing/decreasing patterns (0.01 = 1%)
	TrendStrength float64
	// Seed is the random seed. The same seed always produces the same bars.
	Seed int64
}

// Generator produces deterministic synthetic bars for demos and tests.
type Generator struct {
	config GeneratorConfig
	rng    *rand.Rand
}

// NewGenerator creates a Generator, filling in defaults for unset numeric fields.
func NewGenerator(config GeneratorConfig) *Generator {
	if config.InitialPrice <= 0 {
		config.InitialPrice = 100.0
	}

	if config.TrendStrength <= 0 {
		config.TrendStrength = 0.01
	}

	if config.VolatilityPercent <= 0 {
		config.VolatilityPercent = 2.0
	}

	if config.MaxDrawdownPercent <= 0 {
		config.MaxDrawdownPercent = 10.0
	}

	if config.Timeframe == "" {
		config.Timeframe = types.Timeframe1d
	}

	return &Generator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)), //nolint:gosec // deterministic test data
	}
}

// Generate generates the configured number of bars.
func (g *Generator) Generate() ([]types.Bar, error) {
	if g.config.Symbol == "" {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "symbol is required")
	}

	if g.config.StartTime.IsZero() {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "start time is required")
	}

	if g.config.NumBars <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "number of bars must be positive")
	}

	bars := make([]types.Bar, g.config.NumBars)
	currentPrice := g.config.InitialPrice
	peakPrice := currentPrice
	currentTime := g.config.StartTime.UTC()

	for i := 0; i < g.config.NumBars; i++ {
		var priceChange float64

		switch g.config.Pattern {
		case PatternIncreasing:
			priceChange = g.increasingChange(currentPrice)
		case PatternDecreasing:
			priceChange = g.decreasingChange(currentPrice)
		case PatternVolatile:
			priceChange = g.volatileChange(currentPrice, peakPrice)
		case PatternFlat:
			priceChange = 0
		default:
			return nil, errors.Newf(errors.ErrCodeInvalidParameter, "unknown pattern: %s", g.config.Pattern)
		}

		newPrice := currentPrice + priceChange
		if newPrice <= 0 {
			newPrice = DefaultMinimumPrice
		}

		open := currentPrice
		closePrice := newPrice
		high := math.Max(open, closePrice)
		low := math.Min(open, closePrice)
		volume := DefaultBaseVolume

		if g.config.Pattern != PatternFlat {
			volatilityRange := high * (g.config.VolatilityPercent / 100.0) * 0.5
			high += g.rng.Float64() * volatilityRange
			low -= g.rng.Float64() * volatilityRange
			volume *= 0.5 + g.rng.Float64()
		}

		if low <= 0 {
			low = DefaultMinimumPrice
		}

		bars[i] = types.Bar{
			Symbol: g.config.Symbol,
			Time:   currentTime,
			Open:   roundToDecimals(open, 4),
			High:   roundToDecimals(high, 4),
			Low:    roundToDecimals(low, 4),
			Close:  roundToDecimals(closePrice, 4),
			Volume: roundToDecimals(volume, 2),
		}

		currentPrice = newPrice
		currentTime = g.config.Timeframe.Next(currentTime)

		if currentPrice > peakPrice {
			peakPrice = currentPrice
		}
	}

	return bars, nil
}

func (g *Generator) increasingChange(currentPrice float64) float64 {
	trend := currentPrice * g.config.TrendStrength
	noise := currentPrice * (g.config.VolatilityPercent / 100.0) * (g.rng.Float64() - increasingNoiseBias)

	return trend + noise
}

func (g *Generator) decreasingChange(currentPrice float64) float64 {
	trend := -currentPrice * g.config.TrendStrength
	noise := currentPrice * (g.config.VolatilityPercent / 100.0) * (g.rng.Float64() - decreasingNoiseBias)

	return trend + noise
}

// volatileChange never lets the price fall more than MaxDrawdownPercent below its peak.
func (g *Generator) volatileChange(currentPrice, peakPrice float64) float64 {
	direction := g.rng.Float64() - volatileUpwardBias
	change := currentPrice * (g.config.VolatilityPercent / 100.0) * direction

	newPrice := currentPrice + change
	drawdownFloor := peakPrice - peakPrice*(g.config.MaxDrawdownPercent/100.0)

	if newPrice < drawdownFloor {
		newPrice = drawdownFloor + g.rng.Float64()*(g.config.VolatilityPercent/100.0)*currentPrice
		change = newPrice - currentPrice
	}

	return change
}

// WriteToParquet writes bars to a parquet file readable by DuckDBDataSource.
func WriteToParquet(bars []types.Bar, outputPath string) error {
	if len(bars) == 0 {
		return errors.New(errors.ErrCodeInvalidParameter, "no data to write")
	}

	outputDir := filepath.Dir(outputPath)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return fmt.Errorf("failed to open DuckDB connection: %w", err)
	}
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE market_data (
			time TIMESTAMP,
			symbol VARCHAR,
			open DOUBLE,
			high DOUBLE,
			low DOUBLE,
			close DOUBLE,
			volume DOUBLE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	stmt, err := db.Prepare(`
		INSERT INTO market_data (time, symbol, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err = stmt.Exec(b.Time.UTC(), b.Symbol, b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			return fmt.Errorf("failed to insert data: %w", err)
		}
	}

	_, err = db.Exec(fmt.Sprintf(`COPY market_data TO '%s' (FORMAT PARQUET)`, strings.ReplaceAll(outputPath, "'", "''")))
	if err != nil {
		return fmt.Errorf("failed to export to parquet: %w", err)
	}

	return nil
}

// roundToDecimals rounds a float64 to the specified number of decimal places.
func roundToDecimals(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))

	return math.Round(val*pow) / pow
}
