package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-fund/internal/logger"
	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
	"go.uber.org/zap"
)

// DuckDBDataSource reads bars from parquet files through a DuckDB view and
// resamples them to the requested timeframe.
type DuckDBDataSource struct {
	name   string
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewDataSource creates a new DuckDB data source instance with the specified database path.
// The path parameter specifies the DuckDB database file location, ":memory:" or "" for in-memory.
// This is distinct from Initialize() which loads market data into the database.
func NewDataSource(name string, path string, logger *logger.Logger) (*DuckDBDataSource, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to open duckdb", err)
	}

	// Set DuckDB-specific optimizations
	_, err = db.Exec(`SET threads=4;`)
	if err != nil {
		db.Close()

		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to set DuckDB optimizations", err)
	}

	return &DuckDBDataSource{
		name:   name,
		db:     db,
		logger: logger,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

// Initialize points the market_data view at the parquet files matching path (a glob is allowed).
func (d *DuckDBDataSource) Initialize(path string) error {
	d.logger.Debug("Initializing DuckDB data source", zap.String("path", path))

	// First drop the view if it exists
	_, err := d.db.Exec(`DROP VIEW IF EXISTS market_data;`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to drop existing view", err)
	}

	// Create a view from the parquet file - using raw SQL as Squirrel doesn't support CREATE VIEW
	query := fmt.Sprintf(`
		CREATE VIEW market_data AS
		SELECT time, symbol, open, high, low, close, volume FROM read_parquet('%s');
	`, strings.ReplaceAll(path, "'", "''"))

	_, err = d.db.Exec(query)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to create market data view", err)
	}

	return nil
}

// Name implements DataSource.
func (d *DuckDBDataSource) Name() string {
	return d.name
}

// FetchBars implements DataSource.
func (d *DuckDBDataSource) FetchBars(ctx context.Context, symbol string, start time.Time, end time.Time, timeframe types.Timeframe) iter.Seq2[types.Bar, error] {
	if err := ValidateRange(start, end); err != nil {
		return errorSeq(err)
	}

	return func(yield func(types.Bar, error) bool) {
		query, args, err := d.buildFetchQuery(symbol, start, end, timeframe)
		if err != nil {
			yield(types.Bar{}, err)

			return
		}

		d.logger.Debug("Fetching bars from DuckDB",
			zap.String("symbol", symbol),
			zap.String("timeframe", string(timeframe)),
			zap.String("query", query),
		)

		rows, err := d.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(types.Bar{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query market data", err))

			return
		}
		defer rows.Close()

		for rows.Next() {
			var bar types.Bar

			err := rows.Scan(&bar.Time, &bar.Symbol, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume)
			if err != nil {
				yield(types.Bar{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan row", err))

				return
			}

			bar.Time = bar.Time.UTC()

			if !yield(bar, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(types.Bar{}, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating rows", err))
		}
	}
}

// Symbols returns the distinct symbols present in the loaded files.
func (d *DuckDBDataSource) Symbols(ctx context.Context) ([]string, error) {
	query, args, err := d.sq.
		Select("DISTINCT symbol").
		From("market_data").
		OrderBy("symbol").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build query", err)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query symbols", err)
	}
	defer rows.Close()

	var symbols []string

	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan symbol", err)
		}

		symbols = append(symbols, symbol)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating rows", err)
	}

	return symbols, nil
}

// Close implements DataSource.
func (d *DuckDBDataSource) Close() error {
	if d.db == nil {
		return nil
	}

	return d.db.Close()
}

// buildFetchQuery aggregates raw rows into timeframe buckets. The open is the
// first open in the bucket and the close the last close.
func (d *DuckDBDataSource) buildFetchQuery(symbol string, start time.Time, end time.Time, timeframe types.Timeframe) (string, []interface{}, error) {
	bucket, err := bucketInterval(timeframe)
	if err != nil {
		return "", nil, err
	}

	bucketExpr := fmt.Sprintf("time_bucket(INTERVAL '%s', time)", bucket)

	query, args, err := d.sq.
		Select(
			bucketExpr+" AS bucket_time",
			"symbol",
			"arg_min(open, time) AS open",
			"max(high) AS high",
			"min(low) AS low",
			"arg_max(close, time) AS close",
			"sum(volume) AS volume",
		).
		From("market_data").
		Where(squirrel.And{
			squirrel.Eq{"symbol": symbol},
			squirrel.GtOrEq{"time": start},
			squirrel.Lt{"time": end},
		}).
		GroupBy("bucket_time", "symbol").
		OrderBy("bucket_time ASC").
		ToSql()
	if err != nil {
		return "", nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build query", err)
	}

	return query, args, nil
}

func bucketInterval(timeframe types.Timeframe) (string, error) {
	switch timeframe {
	case types.Timeframe1m:
		return "1 minute", nil
	case types.Timeframe1h:
		return "1 hour", nil
	case types.Timeframe1d:
		return "1 day", nil
	case types.Timeframe1w:
		return "1 week", nil
	case types.Timeframe1M:
		return "1 month", nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidTimeframe, "unsupported timeframe: %s", timeframe)
	}
}
