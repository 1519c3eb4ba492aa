package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/vitos/strategy_autotrade/internal/domain"
)

// DefaultDSN is a shared in-memory database: the ledger lives only as long
// as the process.
const DefaultDSN = "file:ledger?mode=memory&cache=shared"

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trade_records (
			id INTEGER PRIMARY KEY,
			action TEXT NOT NULL,
			side TEXT NOT NULL,
			price TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			reason TEXT NOT NULL,
			profit TEXT,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TRIGGER IF NOT EXISTS trade_records_no_update
			BEFORE UPDATE ON trade_records
			BEGIN SELECT RAISE(ABORT, 'trade records are append-only'); END;`,
		`CREATE TRIGGER IF NOT EXISTS trade_records_no_delete
			BEFORE DELETE ON trade_records
			BEGIN SELECT RAISE(ABORT, 'trade records are append-only'); END;`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			strategy TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			stopped_at DATETIME NOT NULL,
			trades_opened INTEGER NOT NULL,
			max_trades INTEGER NOT NULL,
			stop_reason TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_stopped_at ON sessions(stopped_at);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// TradeLedger Implementation

func (s *SQLiteStore) Append(ctx context.Context, record domain.TradeRecord) error {
	var profit sql.NullString
	if record.Profit != nil {
		profit = sql.NullString{String: record.Profit.String(), Valid: true}
	}

	query := `INSERT INTO trade_records (id, action, side, price, quantity, reason, profit, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		record.ID, record.Action, record.Side, record.Price.String(), record.Quantity,
		record.Reason, profit, record.Timestamp.UTC())
	return err
}

func (s *SQLiteStore) All(ctx context.Context) ([]domain.TradeRecord, error) {
	query := `SELECT id, action, side, price, quantity, reason, profit, created_at FROM trade_records ORDER BY id DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.TradeRecord
	for rows.Next() {
		var (
			r      domain.TradeRecord
			price  string
			profit sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Action, &r.Side, &price, &r.Quantity, &r.Reason, &profit, &r.Timestamp); err != nil {
			return nil, err
		}
		if r.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("trade %d: bad price %q: %w", r.ID, price, err)
		}
		if profit.Valid {
			p, err := decimal.NewFromString(profit.String)
			if err != nil {
				return nil, fmt.Errorf("trade %d: bad profit %q: %w", r.ID, profit.String, err)
			}
			r.Profit = &p
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// SessionRepository Implementation

func (s *SQLiteStore) SaveSession(ctx context.Context, summary domain.SessionSummary) error {
	query := `INSERT INTO sessions (id, strategy, started_at, stopped_at, trades_opened, max_trades, stop_reason)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		summary.ID, summary.Strategy, summary.StartedAt.UTC(), summary.StoppedAt.UTC(),
		summary.TradesOpened, summary.MaxTrades, summary.StopReason)
	return err
}

func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT id, strategy, started_at, stopped_at, trades_opened, max_trades, stop_reason
			  FROM sessions ORDER BY stopped_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.SessionSummary
	for rows.Next() {
		var (
			ss                   domain.SessionSummary
			startedAt, stoppedAt time.Time
		)
		if err := rows.Scan(&ss.ID, &ss.Strategy, &startedAt, &stoppedAt, &ss.TradesOpened, &ss.MaxTrades, &ss.StopReason); err != nil {
			return nil, err
		}
		ss.StartedAt, ss.StoppedAt = startedAt, stoppedAt
		sessions = append(sessions, ss)
	}
	return sessions, rows.Err()
}
