// Package storage persists the trade ledger and daily summaries in SQLite.
package storage

import (
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/strikebot-labs/strikebot/internal/types"
	"github.com/strikebot-labs/strikebot/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id    TEXT PRIMARY KEY,
	index_name  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	strike      INTEGER NOT NULL,
	expiry      TEXT NOT NULL,
	entry_time  TIMESTAMP NOT NULL,
	exit_time   TIMESTAMP,
	entry_price REAL NOT NULL,
	exit_price  REAL,
	quantity    INTEGER NOT NULL,
	pnl         REAL NOT NULL DEFAULT 0,
	pnl_points  REAL NOT NULL DEFAULT 0,
	exit_reason TEXT,
	mode        TEXT NOT NULL,
	closed      INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_trades_entry_time ON trades(entry_time);

CREATE TABLE IF NOT EXISTS daily_stats (
	day          TEXT PRIMARY KEY,
	trade_count  INTEGER NOT NULL,
	realized_pnl REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store is the SQLite-backed trade ledger. The connection pool is capped
// at one writer to match SQLite's locking model.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the ledger database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeStorageFailed, "failed to open database %s", path)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()

		return nil, errors.Wrap(err, errors.ErrCodeStorageFailed, "failed to apply schema")
	}

	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveTrade inserts a freshly opened trade.
func (s *Store) SaveTrade(t types.TradeRecord) error {
	query, args, err := sq.Insert("trades").
		Columns("trade_id", "index_name", "kind", "strike", "expiry", "entry_time", "entry_price", "quantity", "mode", "closed").
		Values(t.TradeID, t.IndexName, string(t.Kind), t.Strike, t.Expiry, t.EntryTime, t.EntryPrice, t.Quantity, t.Mode, 0).
		ToSql()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageFailed, "failed to build insert")
	}

	if _, err := s.db.Exec(query, args...); err != nil {
		return errors.Wrapf(err, errors.ErrCodeStorageFailed, "failed to save trade %s", t.TradeID)
	}

	return nil
}

// UpdateTradeExit marks a trade closed with its exit fill and PnL.
func (s *Store) UpdateTradeExit(t types.TradeRecord) error {
	query, args, err := sq.Update("trades").
		Set("exit_time", t.ExitTime).
		Set("exit_price", t.ExitPrice).
		Set("pnl", t.PnL).
		Set("pnl_points", t.PnLPoints).
		Set("exit_reason", t.ExitReason).
		Set("closed", 1).
		Where(sq.Eq{"trade_id": t.TradeID}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageFailed, "failed to build update")
	}

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return errors.Wrapf(err, errors.ErrCodeStorageFailed, "failed to close trade %s", t.TradeID)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return errors.Newf(errors.ErrCodePositionNotFound, "no trade with id %s", t.TradeID)
	}

	return nil
}

// Trades returns the most recent trades, newest first.
func (s *Store) Trades(limit int) ([]types.TradeRecord, error) {
	builder := sq.Select("trade_id", "index_name", "kind", "strike", "expiry", "entry_time", "exit_time", "entry_price", "exit_price", "quantity", "pnl", "pnl_points", "exit_reason", "mode", "closed").
		From("trades").
		OrderBy("entry_time DESC")

	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageFailed, "failed to build select")
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeQueryFailed, "trade query failed")
	}
	defer rows.Close()

	var out []types.TradeRecord

	for rows.Next() {
		var (
			t          types.TradeRecord
			kind       string
			exitTime   sql.NullTime
			exitPrice  sql.NullFloat64
			exitReason sql.NullString
		)

		err := rows.Scan(&t.TradeID, &t.IndexName, &kind, &t.Strike, &t.Expiry, &t.EntryTime, &exitTime,
			&t.EntryPrice, &exitPrice, &t.Quantity, &t.PnL, &t.PnLPoints, &exitReason, &t.Mode, &t.Closed)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeQueryFailed, "failed to scan trade row")
		}

		t.Kind = types.OptionKind(kind)
		t.ExitTime = exitTime.Time
		t.ExitPrice = exitPrice.Float64
		t.ExitReason = exitReason.String

		out = append(out, t)
	}

	return out, rows.Err()
}

// SaveDailyStats upserts the end-of-day counters.
func (s *Store) SaveDailyStats(day time.Time, tradeCount int, realizedPnL float64) error {
	_, err := s.db.Exec(`
		INSERT INTO daily_stats (day, trade_count, realized_pnl) VALUES (?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET trade_count = excluded.trade_count, realized_pnl = excluded.realized_pnl
	`, day.In(types.IST).Format("2006-01-02"), tradeCount, realizedPnL)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageFailed, "failed to save daily stats")
	}

	return nil
}

// DailyStat is one saved day of counters.
type DailyStat struct {
	Day         string  `json:"day"`
	TradeCount  int     `json:"trade_count"`
	RealizedPnL float64 `json:"realized_pnl"`
}

// RecentDailyStats returns saved day counters, newest first.
func (s *Store) RecentDailyStats(limit int) ([]DailyStat, error) {
	builder := sq.Select("day", "trade_count", "realized_pnl").
		From("daily_stats").
		OrderBy("day DESC")

	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageFailed, "failed to build select")
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeQueryFailed, "daily stats query failed")
	}
	defer rows.Close()

	var out []DailyStat

	for rows.Next() {
		var d DailyStat
		if err := rows.Scan(&d.Day, &d.TradeCount, &d.RealizedPnL); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeQueryFailed, "failed to scan daily stats row")
		}

		out = append(out, d)
	}

	return out, rows.Err()
}

// SetSetting upserts one persisted setting.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return errors.Wrapf(err, errors.ErrCodeStorageFailed, "failed to save setting %s", key)
	}

	return nil
}

// Setting reads one persisted setting, ok=false when unset.
func (s *Store) Setting(key string) (string, bool) {
	var value string
	if err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value); err != nil {
		return "", false
	}

	return value, true
}

// Summary aggregates the closed-trade ledger.
type Summary struct {
	TotalTrades int     `json:"total_trades"`
	TotalPnL    float64 `json:"total_pnl"`
	WinRate     float64 `json:"win_rate"`
}

// Summarize computes ledger-wide statistics over closed trades.
func (s *Store) Summarize() (Summary, error) {
	var (
		summary Summary
		wins    int
	)

	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(pnl), 0), COALESCE(SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), 0)
		FROM trades WHERE closed = 1
	`).Scan(&summary.TotalTrades, &summary.TotalPnL, &wins)
	if err != nil {
		return Summary{}, errors.Wrap(err, errors.ErrCodeQueryFailed, "summary query failed")
	}

	if summary.TotalTrades > 0 {
		summary.WinRate = float64(wins) / float64(summary.TotalTrades) * 100
	}

	return summary, nil
}
