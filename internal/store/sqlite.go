package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"vela/internal/domain"
	"vela/internal/risk"
)

// Compile-time interface check.
var _ StateStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS live_state (
	symbol               TEXT PRIMARY KEY,
	has_position         INTEGER NOT NULL,
	direction            TEXT NOT NULL DEFAULT '',
	entry_price          REAL NOT NULL DEFAULT 0,
	entry_time           TEXT NOT NULL DEFAULT '',
	size                 REAL NOT NULL DEFAULT 0,
	stop_price           REAL NOT NULL DEFAULT 0,
	target_price         REAL NOT NULL DEFAULT 0,
	session_date         TEXT NOT NULL DEFAULT '',
	trades_today         INTEGER NOT NULL DEFAULT 0,
	daily_pnl            REAL NOT NULL DEFAULT 0,
	session_start_equity REAL NOT NULL DEFAULT 0,
	peak_equity          REAL NOT NULL DEFAULT 0,
	emergency_stopped    INTEGER NOT NULL DEFAULT 0,
	halted               INTEGER NOT NULL DEFAULT 0,
	updated_at           TEXT NOT NULL
);`

// SQLiteStore is a StateStore backed by a single-table SQLite database,
// one row per symbol.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and ensures the
// schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dbPath, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save upserts the state row for its symbol.
func (s *SQLiteStore) Save(ctx context.Context, st State) error {
	var (
		hasPos                                 int
		direction                              string
		entryPrice, size, stopPrice, targetPrc float64
		entryTime                              string
	)
	if st.Position != nil {
		hasPos = 1
		direction = string(st.Position.Direction)
		entryPrice = st.Position.EntryPrice
		entryTime = st.Position.EntryTime.UTC().Format(time.RFC3339Nano)
		size = st.Position.Size
		stopPrice = st.Position.StopPrice
		targetPrc = st.Position.TargetPrice
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO live_state (
			symbol, has_position, direction, entry_price, entry_time, size,
			stop_price, target_price,
			session_date, trades_today, daily_pnl, session_start_equity,
			peak_equity, emergency_stopped, halted, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.Symbol, hasPos, direction, entryPrice, entryTime, size,
		stopPrice, targetPrc,
		st.Risk.SessionDate, st.Risk.TradesToday, st.Risk.DailyPnL,
		st.Risk.SessionStartEquity, st.Risk.PeakEquity,
		boolInt(st.Risk.EmergencyStopped), boolInt(st.Halted),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving state for %s: %w", st.Symbol, err)
	}
	return nil
}

// Load reads the state row for symbol, or (nil, nil) when absent.
func (s *SQLiteStore) Load(ctx context.Context, symbol string) (*State, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT has_position, direction, entry_price, entry_time, size,
			stop_price, target_price,
			session_date, trades_today, daily_pnl, session_start_equity,
			peak_equity, emergency_stopped, halted, updated_at
		FROM live_state WHERE symbol = ?`, symbol)

	var (
		hasPos, emergencyStopped, halted       int
		direction, entryTime, updatedAt        string
		entryPrice, size, stopPrice, targetPrc float64
		snap                                   risk.Snapshot
	)
	err := row.Scan(&hasPos, &direction, &entryPrice, &entryTime, &size,
		&stopPrice, &targetPrc,
		&snap.SessionDate, &snap.TradesToday, &snap.DailyPnL,
		&snap.SessionStartEquity, &snap.PeakEquity,
		&emergencyStopped, &halted, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading state for %s: %w", symbol, err)
	}
	snap.EmergencyStopped = emergencyStopped != 0

	st := &State{
		Symbol: symbol,
		Risk:   snap,
		Halted: halted != 0,
	}
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		st.UpdatedAt = ts
	}
	if hasPos != 0 {
		et, err := time.Parse(time.RFC3339Nano, entryTime)
		if err != nil {
			return nil, fmt.Errorf("corrupt entry_time for %s: %w", symbol, err)
		}
		st.Position = &domain.Position{
			Symbol:      symbol,
			Direction:   domain.Direction(direction),
			EntryPrice:  entryPrice,
			EntryTime:   et,
			Size:        size,
			StopPrice:   stopPrice,
			TargetPrice: targetPrc,
		}
	}
	return st, nil
}

// Delete removes the state row for symbol. Deleting a missing row is not
// an error.
func (s *SQLiteStore) Delete(ctx context.Context, symbol string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM live_state WHERE symbol = ?`, symbol)
	if err != nil {
		return fmt.Errorf("deleting state for %s: %w", symbol, err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
