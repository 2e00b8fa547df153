// Package writers persists the result of a backtest run: the order log,
// trades and equity curve as parquet files and the report as YAML.
package writers

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-fund/internal/logger"
	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
	"go.uber.org/zap"
)

const (
	OrdersFileName = "orders.parquet"
	TradesFileName = "trades.parquet"
	EquityFileName = "equity.parquet"
	StatsFileName  = "stats.yaml"
)

// ResultWriter stages results in an in-memory DuckDB database and exports
// them with COPY. Writes are serialized.
type ResultWriter struct {
	mu     sync.Mutex
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewResultWriter creates a new instance of ResultWriter.
func NewResultWriter(logger *logger.Logger) (*ResultWriter, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		logger.Error("Failed to open database", zap.Error(err))

		return nil, errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to open database", err)
	}

	if err := db.Ping(); err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))
		db.Close()

		return nil, errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to connect to database", err)
	}

	return &ResultWriter{
		mu:     sync.Mutex{},
		db:     db,
		logger: logger,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

// Write exports result into folder and returns the summary written to stats.yaml.
func (w *ResultWriter) Write(folder string, runID string, config types.BacktestConfig, result *types.RunResult) (types.RunStats, error) {
	if result == nil {
		return types.RunStats{}, errors.Newf(errors.ErrCodeResultWriteFailed, "run %s has no result", runID)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(folder, 0755); err != nil {
		return types.RunStats{}, errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to create result folder", err)
	}

	if err := w.initialize(); err != nil {
		return types.RunStats{}, err
	}

	defer func() {
		if err := w.cleanup(); err != nil {
			w.logger.Warn("Failed to clean up result tables", zap.Error(err))
		}
	}()

	if err := w.insertOrders(result.Orders); err != nil {
		return types.RunStats{}, err
	}

	if err := w.insertTrades(result.Trades); err != nil {
		return types.RunStats{}, err
	}

	if err := w.insertEquity(result.Equity); err != nil {
		return types.RunStats{}, err
	}

	stats := types.RunStats{
		ID:             runID,
		Symbol:         config.Symbol,
		AlgorithmID:    config.AlgorithmID,
		Benchmark:      config.Benchmark,
		Report:         result.Report,
		TradesFilePath: filepath.Join(folder, TradesFileName),
		OrdersFilePath: filepath.Join(folder, OrdersFileName),
		EquityFilePath: filepath.Join(folder, EquityFileName),
	}

	exports := map[string]string{
		"orders": stats.OrdersFilePath,
		"trades": stats.TradesFilePath,
		"equity": stats.EquityFilePath,
	}

	for _, table := range []string{"orders", "trades", "equity"} {
		// Squirrel doesn't support COPY
		if _, err := w.db.Exec(fmt.Sprintf(`COPY %s TO '%s' (FORMAT PARQUET)`, table, exports[table])); err != nil {
			return types.RunStats{}, errors.Wrapf(errors.ErrCodeResultWriteFailed, err, "failed to export %s to parquet", table)
		}
	}

	if err := types.WriteRunStats(filepath.Join(folder, StatsFileName), stats); err != nil {
		return types.RunStats{}, errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to write stats", err)
	}

	w.logger.Info("Successfully exported backtest results",
		zap.String("run_id", runID),
		zap.String("folder", folder),
	)

	return stats, nil
}

// Close closes the database connection.
func (w *ResultWriter) Close() error {
	if w == nil || w.db == nil {
		return nil
	}

	return w.db.Close()
}

func (w *ResultWriter) initialize() error {
	_, err := w.db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			symbol TEXT,
			side TEXT,
			order_type TEXT,
			quantity DOUBLE,
			limit_price DOUBLE,
			created_at_bar INTEGER,
			created_at TIMESTAMP,
			status TEXT,
			reason TEXT,
			message TEXT,
			closed_at TIMESTAMP,
			fill_price DOUBLE,
			commission DOUBLE,
			slippage_cost DOUBLE
		);
		CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			symbol TEXT,
			side TEXT,
			entry_time TIMESTAMP,
			exit_time TIMESTAMP,
			entry_price DOUBLE,
			exit_price DOUBLE,
			quantity DOUBLE,
			pnl DOUBLE,
			trade_return DOUBLE,
			commission DOUBLE
		);
		CREATE TABLE IF NOT EXISTS equity (
			time TIMESTAMP PRIMARY KEY,
			total_equity DOUBLE,
			cash DOUBLE,
			market_value DOUBLE
		);
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to create result tables", err)
	}

	return nil
}

func (w *ResultWriter) cleanup() error {
	// Squirrel doesn't have DROP syntax
	_, err := w.db.Exec(`
		DROP TABLE IF EXISTS orders;
		DROP TABLE IF EXISTS trades;
		DROP TABLE IF EXISTS equity;
	`)

	return err
}

func (w *ResultWriter) insertOrders(entries []types.OrderLogEntry) error {
	for _, entry := range entries {
		order := entry.Order

		var limitPrice, fillPrice, commission, slippageCost any

		if order.LimitPrice.IsSome() {
			limitPrice = order.LimitPrice.Unwrap()
		}

		if entry.Fill != nil {
			fillPrice = entry.Fill.Price
			commission = entry.Fill.Commission
			slippageCost = entry.Fill.SlippageCost
		}

		_, err := w.sq.
			Insert("orders").
			Columns(
				"order_id", "symbol", "side", "order_type", "quantity", "limit_price",
				"created_at_bar", "created_at", "status", "reason", "message",
				"closed_at", "fill_price", "commission", "slippage_cost",
			).
			Values(
				order.OrderID, order.Symbol, string(order.Side), string(order.Type), order.Quantity, limitPrice,
				order.CreatedAtBar, order.CreatedAt, string(order.Status), order.Reason.Reason, order.Reason.Message,
				entry.ClosedAt, fillPrice, commission, slippageCost,
			).
			RunWith(w.db).
			Exec()
		if err != nil {
			return errors.Wrapf(errors.ErrCodeResultWriteFailed, err, "failed to insert order %s", order.OrderID)
		}
	}

	return nil
}

func (w *ResultWriter) insertTrades(trades []types.Trade) error {
	for _, trade := range trades {
		_, err := w.sq.
			Insert("trades").
			Columns(
				"id", "symbol", "side", "entry_time", "exit_time", "entry_price",
				"exit_price", "quantity", "pnl", "trade_return", "commission",
			).
			Values(
				trade.ID, trade.Symbol, string(trade.Side), trade.EntryTime, trade.ExitTime, trade.EntryPrice,
				trade.ExitPrice, trade.Quantity, trade.PnL, trade.Return, trade.Commission,
			).
			RunWith(w.db).
			Exec()
		if err != nil {
			return errors.Wrapf(errors.ErrCodeResultWriteFailed, err, "failed to insert trade %s", trade.ID)
		}
	}

	return nil
}

func (w *ResultWriter) insertEquity(points []types.EquityPoint) error {
	if len(points) == 0 {
		return nil
	}

	query := w.sq.Insert("equity").Columns("time", "total_equity", "cash", "market_value")
	for _, point := range points {
		query = query.Values(point.Time, point.TotalEquity, point.Cash, point.MarketValue)
	}

	if _, err := query.RunWith(w.db).Exec(); err != nil {
		return errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to insert equity curve", err)
	}

	return nil
}
