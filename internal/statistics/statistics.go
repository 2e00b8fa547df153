// Package statistics turns an equity curve and trade log into the
// performance report shown on the dashboard.
package statistics

import (
	"math"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/shopspring/decimal"
)

// Input is everything Calculate reads. Nothing in it is modified.
type Input struct {
	Equity []types.EquityPoint
	Trades []types.Trade
	Fills  []types.Fill
	// Benchmark bars are matched to equity points by timestamp.
	Benchmark []types.Bar
	// RiskFreeRate is annual, for example 0.02 for 2%.
	RiskFreeRate float64
	Timeframe    types.Timeframe
}

// Calculate builds the report. It never fails: undefined metrics are None
// and an equity curve with fewer than 2 points is marked InsufficientData.
func Calculate(in Input) types.StatisticsReport {
	report := emptyReport()
	report.TotalFees, report.TotalSlippage = costs(in.Fills)
	countTrades(&report, in.Trades)

	if len(in.Equity) > 0 {
		report.InitialEquity = in.Equity[0].TotalEquity
		report.FinalEquity = in.Equity[len(in.Equity)-1].TotalEquity
	}

	if report.InitialEquity > 0 {
		report.Attribution.FeeDrag = -report.TotalFees / report.InitialEquity
		report.Attribution.SlippageDrag = -report.TotalSlippage / report.InitialEquity
	}

	if len(in.Equity) < 2 || report.InitialEquity <= 0 {
		report.InsufficientData = true

		return report
	}

	periodsPerYear := in.Timeframe.PeriodsPerYear()
	returns := periodReturns(in.Equity)
	totalPeriods := float64(len(returns))

	report.TotalReturn = report.FinalEquity/report.InitialEquity - 1
	report.AnnualizedReturn = annualize(report.TotalReturn, periodsPerYear, totalPeriods)
	report.Volatility = sampleStdDev(returns) * math.Sqrt(periodsPerYear)
	report.MaxDrawdown = maxDrawdown(in.Equity)

	excess := report.AnnualizedReturn - in.RiskFreeRate
	if report.Volatility != 0 {
		report.SharpeRatio = excess / report.Volatility
	}

	downside := sampleStdDev(negatives(returns)) * math.Sqrt(periodsPerYear)
	if downside != 0 {
		report.SortinoRatio = excess / downside
	}

	bench := alignBenchmark(in.Equity, in.Benchmark)
	if bench.total.IsSome() {
		report.BenchmarkReturn = bench.total

		if beta, ok := computeBeta(bench.strategyReturns, bench.returns); ok {
			annualizedBench := annualize(bench.total.Unwrap(), periodsPerYear, float64(bench.periods))
			report.Beta = optional.Some(beta)
			report.Alpha = optional.Some(report.AnnualizedReturn - beta*annualizedBench)

			market := beta * bench.total.Unwrap()
			report.Attribution.MarketReturn = optional.Some(market)
			report.Attribution.SelectionReturn = optional.Some(report.TotalReturn - market)
		}
	}

	report.MonthlyReturns = monthlyReturns(in.Equity, in.Benchmark)

	return report
}

func emptyReport() types.StatisticsReport {
	return types.StatisticsReport{
		BenchmarkReturn: optional.None[float64](),
		Alpha:           optional.None[float64](),
		Beta:            optional.None[float64](),
		WinRate:         optional.None[float64](),
		ProfitFactor:    optional.None[float64](),
		MonthlyReturns:  []types.MonthlyReturn{},
		Attribution: types.Attribution{
			MarketReturn:    optional.None[float64](),
			SelectionReturn: optional.None[float64](),
		},
	}
}

func costs(fills []types.Fill) (float64, float64) {
	fees := decimal.Zero
	slippage := decimal.Zero

	for _, f := range fills {
		fees = fees.Add(decimal.NewFromFloat(f.Commission))
		slippage = slippage.Add(decimal.NewFromFloat(f.SlippageCost))
	}

	return fees.InexactFloat64(), slippage.InexactFloat64()
}

func countTrades(report *types.StatisticsReport, trades []types.Trade) {
	gross := decimal.Zero
	loss := decimal.Zero

	for _, t := range trades {
		pnl := decimal.NewFromFloat(t.PnL)

		switch {
		case pnl.IsPositive():
			report.NumberOfWinningTrades++
			gross = gross.Add(pnl)
		case pnl.IsNegative():
			report.NumberOfLosingTrades++
			loss = loss.Add(pnl.Abs())
		}
	}

	report.NumberOfTrades = len(trades)

	if len(trades) > 0 {
		report.WinRate = optional.Some(float64(report.NumberOfWinningTrades) / float64(len(trades)))
	}

	if report.NumberOfLosingTrades > 0 && loss.IsPositive() {
		report.ProfitFactor = optional.Some(gross.Div(loss).InexactFloat64())
	}
}

func periodReturns(equity []types.EquityPoint) []float64 {
	returns := make([]float64, 0, len(equity)-1)

	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].TotalEquity
		if prev == 0 {
			returns = append(returns, 0)

			continue
		}

		returns = append(returns, equity[i].TotalEquity/prev-1)
	}

	return returns
}

func annualize(total float64, periodsPerYear float64, periods float64) float64 {
	if periods <= 0 {
		return 0
	}

	if total <= -1 {
		return -1
	}

	return math.Pow(1+total, periodsPerYear/periods) - 1
}

func maxDrawdown(equity []types.EquityPoint) float64 {
	peak := equity[0].TotalEquity
	worst := 0.0

	for _, p := range equity {
		if p.TotalEquity > peak {
			peak = p.TotalEquity
		}

		if peak <= 0 {
			continue
		}

		dd := p.TotalEquity/peak - 1
		if dd < worst {
			worst = dd
		}
	}

	return math.Max(worst, -1)
}

func negatives(returns []float64) []float64 {
	out := make([]float64, 0, len(returns))

	for _, r := range returns {
		if r < 0 {
			out = append(out, r)
		}
	}

	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

// sampleStdDev uses n-1 and returns 0 for fewer than 2 values.
func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	m := mean(values)

	sum := 0.0
	for _, v := range values {
		sum += (v - m) * (v - m)
	}

	return math.Sqrt(sum / float64(len(values)-1))
}

func sampleCovariance(a, b []float64) float64 {
	if len(a) < 2 || len(a) != len(b) {
		return 0
	}

	ma := mean(a)
	mb := mean(b)

	sum := 0.0
	for i := range a {
		sum += (a[i] - ma) * (b[i] - mb)
	}

	return sum / float64(len(a)-1)
}

func computeBeta(strategy, benchmark []float64) (float64, bool) {
	if len(benchmark) < 2 {
		return 0, false
	}

	variance := sampleCovariance(benchmark, benchmark)
	if variance == 0 {
		return 0, false
	}

	return sampleCovariance(strategy, benchmark) / variance, true
}

type benchmarkSeries struct {
	total           optional.Option[float64]
	periods         int
	returns         []float64
	strategyReturns []float64
}

func closesByTime(bars []types.Bar) map[time.Time]float64 {
	closes := make(map[time.Time]float64, len(bars))
	for _, b := range bars {
		closes[b.Time.UTC()] = b.Close
	}

	return closes
}

// alignBenchmark pairs every consecutive equity step with the benchmark step
// over the same timestamps. Steps where either side has no benchmark close are skipped.
func alignBenchmark(equity []types.EquityPoint, bars []types.Bar) benchmarkSeries {
	series := benchmarkSeries{total: optional.None[float64]()}
	if len(bars) == 0 {
		return series
	}

	closes := closesByTime(bars)
	first, last := -1.0, -1.0
	aligned := 0

	for i, p := range equity {
		c, ok := closes[p.Time.UTC()]
		if !ok || c <= 0 {
			continue
		}

		if first < 0 {
			first = c
		}

		last = c
		aligned++

		if i == 0 {
			continue
		}

		prevClose, ok := closes[equity[i-1].Time.UTC()]
		if !ok || prevClose <= 0 || equity[i-1].TotalEquity == 0 {
			continue
		}

		series.returns = append(series.returns, c/prevClose-1)
		series.strategyReturns = append(series.strategyReturns, p.TotalEquity/equity[i-1].TotalEquity-1)
	}

	if aligned >= 2 {
		series.total = optional.Some(last/first - 1)
		series.periods = aligned - 1
	}

	return series
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// monthlyReturns compounds each calendar month from the last value of the
// previous month, or from the first value for the first month.
func monthlyReturns(equity []types.EquityPoint, bars []types.Bar) []types.MonthlyReturn {
	closes := closesByTime(bars)
	months := []types.MonthlyReturn{}

	var (
		current    string
		base       float64
		last       float64
		benchBase  float64
		benchLast  float64
		benchFound bool
	)

	flush := func() {
		r := 0.0
		if base != 0 {
			r = last/base - 1
		}

		bench := optional.None[float64]()
		if benchFound && benchBase > 0 {
			bench = optional.Some(benchLast/benchBase - 1)
		}

		months = append(months, types.MonthlyReturn{Month: current, Return: r, Benchmark: bench})
	}

	for i, p := range equity {
		key := monthKey(p.Time)
		c, hasClose := closes[p.Time.UTC()]

		if i == 0 {
			current, base, last = key, p.TotalEquity, p.TotalEquity
			if hasClose {
				benchBase, benchLast, benchFound = c, c, true
			}

			continue
		}

		if key != current {
			flush()

			current, base = key, last
			benchFound = false

			if benchLast > 0 {
				benchBase = benchLast
			}
		}

		last = p.TotalEquity

		if hasClose {
			if benchBase <= 0 {
				benchBase = c
			}

			benchLast = c
			benchFound = true
		}
	}

	if len(equity) > 0 {
		flush()
	}

	return months
}
