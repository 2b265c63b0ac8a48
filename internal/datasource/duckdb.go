// Package datasource loads historical candles for replay from CSV files
// through an embedded DuckDB instance.
package datasource

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/strikebot-labs/strikebot/internal/logger"
	"github.com/strikebot-labs/strikebot/internal/types"
	"github.com/strikebot-labs/strikebot/pkg/errors"
)

// timestampLayouts are the accepted CSV timestamp formats. Naive
// timestamps are taken as exchange-local time.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// CandleSource reads OHLC candles from a CSV file exposed as a DuckDB
// view.
type CandleSource struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewCSVSource opens an in-memory DuckDB and maps the CSV file into a
// candles view. The file needs timestamp, open, high, low, close columns.
func NewCSVSource(csvPath string, log *logger.Logger) (*CandleSource, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDataSourceFailed, "failed to open duckdb")
	}

	query := fmt.Sprintf(`
		CREATE VIEW candles AS
		SELECT * FROM read_csv_auto('%s', header=true);
	`, csvPath)

	if _, err := db.Exec(query); err != nil {
		db.Close()

		return nil, errors.Wrapf(err, errors.ErrCodeDataSourceFailed, "failed to map csv file %s", csvPath)
	}

	return &CandleSource{db: db, logger: log}, nil
}

// Close releases the database.
func (s *CandleSource) Close() error {
	return s.db.Close()
}

// Count returns the number of rows in the file.
func (s *CandleSource) Count() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM candles").Scan(&count); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeQueryFailed, "count query failed")
	}

	return count, nil
}

// ReadAll returns every candle in time order. Rows with unparsable
// timestamps or non-positive prices are skipped, never fabricated.
func (s *CandleSource) ReadAll() ([]types.Candle, error) {
	query, args, err := s.selectCandles().ToSql()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeQueryFailed, "failed to build query")
	}

	return s.queryCandles(query, args...)
}

// ReadRange returns candles within [start, end] in time order.
func (s *CandleSource) ReadRange(start, end time.Time) ([]types.Candle, error) {
	query, args, err := s.selectCandles().
		Where(sq.GtOrEq{"CAST(timestamp AS TIMESTAMP)": start.In(types.IST).Format("2006-01-02 15:04:05")}).
		Where(sq.LtOrEq{"CAST(timestamp AS TIMESTAMP)": end.In(types.IST).Format("2006-01-02 15:04:05")}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeQueryFailed, "failed to build query")
	}

	return s.queryCandles(query, args...)
}

func (s *CandleSource) selectCandles() sq.SelectBuilder {
	return sq.Select("CAST(timestamp AS VARCHAR)", "open", "high", "low", "close").
		From("candles").
		OrderBy("timestamp ASC")
}

func (s *CandleSource) queryCandles(query string, args ...any) ([]types.Candle, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeQueryFailed, "candle query failed")
	}
	defer rows.Close()

	var out []types.Candle

	skipped := 0

	for rows.Next() {
		var (
			ts                     string
			open, high, low, close float64
		)

		if err := rows.Scan(&ts, &open, &high, &low, &close); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeQueryFailed, "failed to scan candle row")
		}

		parsed, ok := parseTimestamp(ts)
		if !ok || open <= 0 || high <= 0 || low <= 0 || close <= 0 {
			skipped++

			continue
		}

		out = append(out, types.Candle{
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Timestamp: parsed,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeQueryFailed, "candle row iteration failed")
	}

	if skipped > 0 {
		s.logger.Warn("skipped unusable candle rows", zap.Int("count", skipped))
	}

	if len(out) == 0 {
		return nil, errors.New(errors.ErrCodeNoCandleData, "no usable candles in source")
	}

	return out, nil
}

func parseTimestamp(value string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, value, types.IST); err == nil {
			return ts, true
		}
	}

	return time.Time{}, false
}
