package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rxtech-lab/argo-fund/internal/backtest/engine/engine_v1/writers"
	"github.com/rxtech-lab/argo-fund/internal/logger"
	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/internal/version"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
)

// outputPath is where the bars of ticker are written inside dir.
func outputPath(dir string, ticker string, timeframe types.Timeframe) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.parquet", strings.ToUpper(ticker), timeframe))
}

// downloadAction fetches historical bars from a provider and writes them as
// parquet files that a duckdb data source can serve.
func downloadAction(ctx context.Context, cmd *cli.Command) error {
	ticker := strings.ToUpper(cmd.String("ticker"))
	startDate := cmd.Timestamp("start")
	endDate := cmd.Timestamp("end")

	timeframe, err := types.ParseTimeframe(cmd.String("timeframe"))
	if err != nil {
		return err
	}

	downloadLogger, err := logger.NewLoggerWithLevel(cmd.String("log-level"))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer downloadLogger.Sync() //nolint:errcheck

	provider, err := newProvider(cmd.String("provider"), int(cmd.Int("rate")), downloadLogger)
	if err != nil {
		return err
	}
	defer provider.Close()

	writer, err := writers.NewResultWriter(downloadLogger)
	if err != nil {
		return err
	}
	defer writer.Close()

	log.Printf("Starting download for %s from %s to %s using %s...",
		ticker, startDate.Format(time.DateOnly), endDate.Format(time.DateOnly), provider.Name())

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(fmt.Sprintf("Downloading %s", ticker)),
		progressbar.OptionShowCount(),
	)

	var bars []types.Bar

	for b, err := range provider.FetchBars(ctx, ticker, startDate.UTC(), endDate.UTC(), timeframe) {
		if err != nil {
			return err
		}

		bars = append(bars, b)
		_ = bar.Add(1)
	}

	_ = bar.Finish()

	path := outputPath(cmd.String("data"), ticker, timeframe)
	if err := writer.ExportBars(path, bars); err != nil {
		return err
	}

	log.Printf("Downloaded %d bars to %s", len(bars), path)

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "market",
		Usage:   "Download historical market data as parquet",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "ticker",
				Aliases:  []string{"t"},
				Usage:    "Ticker symbol, e.g. AAPL or BTCUSDT",
				Required: true,
			},
			&cli.TimestampFlag{
				Name:    "start",
				Aliases: []string{"s"},
				Usage:   "Start date in `YYYY-MM-DD` format",
				Config: cli.TimestampConfig{
					Layouts: []string{time.DateOnly},
				},
				Required: true,
			},
			&cli.TimestampFlag{
				Name:    "end",
				Aliases: []string{"e"},
				Usage:   "Exclusive end date in `YYYY-MM-DD` format. Defaults to today.",
				Value:   time.Now(),
				Config: cli.TimestampConfig{
					Layouts: []string{time.DateOnly},
				},
			},
			&cli.StringFlag{
				Name:  "timeframe",
				Usage: "Bar timeframe (1m, 1h, 1d, 1w, 1M)",
				Value: string(types.Timeframe1d),
			},
			&cli.StringFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Usage:   fmt.Sprintf("Data provider (%s, %s)", MarketProviderPolygon, MarketProviderBinance),
				Value:   MarketProviderPolygon,
			},
			&cli.IntFlag{
				Name:  "rate",
				Usage: "Maximum requests per minute, 0 for unlimited",
				Value: 5,
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "Output directory",
				Value:   "data",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
				Value: "warn",
			},
		},
		Action: downloadAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
