package writers

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rxtech-lab/argo-fund/internal/types"
	"github.com/rxtech-lab/argo-fund/pkg/errors"
	"go.uber.org/zap"
)

// barBatchSize is the number of rows per INSERT statement.
const barBatchSize = 1000

// ExportBars writes bars to a parquet file at path with the columns the
// duckdb data source reads: time, symbol, open, high, low, close, volume.
func (w *ResultWriter) ExportBars(path string, bars []types.Bar) error {
	if len(bars) == 0 {
		return errors.New(errors.ErrCodeDataUnavailable, "no bars to export")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to create data folder", err)
	}

	_, err := w.db.Exec(`
		CREATE TABLE IF NOT EXISTS market_data (
			time TIMESTAMP,
			symbol TEXT,
			open DOUBLE,
			high DOUBLE,
			low DOUBLE,
			close DOUBLE,
			volume DOUBLE
		);
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to create market data table", err)
	}

	defer func() {
		if _, err := w.db.Exec(`DROP TABLE IF EXISTS market_data;`); err != nil {
			w.logger.Warn("Failed to clean up market data table", zap.Error(err))
		}
	}()

	for start := 0; start < len(bars); start += barBatchSize {
		end := min(start+barBatchSize, len(bars))

		query := w.sq.Insert("market_data").Columns("time", "symbol", "open", "high", "low", "close", "volume")
		for _, bar := range bars[start:end] {
			query = query.Values(bar.Time, bar.Symbol, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
		}

		if _, err := query.RunWith(w.db).Exec(); err != nil {
			return errors.Wrap(errors.ErrCodeResultWriteFailed, "failed to insert bars", err)
		}
	}

	// Squirrel doesn't support COPY
	if _, err := w.db.Exec(fmt.Sprintf(`COPY (SELECT * FROM market_data ORDER BY symbol, time) TO '%s' (FORMAT PARQUET)`, path)); err != nil {
		return errors.Wrapf(errors.ErrCodeResultWriteFailed, err, "failed to export bars to %s", path)
	}

	w.logger.Info("Exported bars",
		zap.String("path", path),
		zap.Int("count", len(bars)),
	)

	return nil
}
