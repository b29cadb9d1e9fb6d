package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"lp-hedge-bot/internal/state"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// :memory: databases are per connection.
	db.SetMaxOpenConns(1)
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS hedge_actions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts_ms INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			kind TEXT NOT NULL,
			side TEXT NOT NULL DEFAULT '',
			quantity TEXT NOT NULL,
			price TEXT NOT NULL DEFAULT '',
			order_id TEXT NOT NULL DEFAULT '',
			client_order_id TEXT NOT NULL DEFAULT '',
			block_number INTEGER NOT NULL DEFAULT 0,
			dry_run INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS hedge_actions_ts_idx ON hedge_actions (ts_ms DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

func (s *Store) RecordHedge(ctx context.Context, rec state.HedgeRecord) error {
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO hedge_actions
		(ts_ms, symbol, kind, side, quantity, price, order_id, client_order_id, block_number, dry_run, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Time.UnixMilli(), rec.Symbol, rec.Kind, rec.Side, rec.Quantity, rec.Price,
		rec.OrderID, rec.ClientOrderID, int64(rec.BlockNumber), rec.DryRun, rec.Error,
	)
	return err
}

// RecentHedges returns the newest records first.
func (s *Store) RecentHedges(ctx context.Context, limit int) ([]state.HedgeRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `SELECT ts_ms, symbol, kind, side, quantity, price, order_id, client_order_id, block_number, dry_run, error
		FROM hedge_actions ORDER BY ts_ms DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []state.HedgeRecord
	for rows.Next() {
		var (
			rec   state.HedgeRecord
			tsMS  int64
			block int64
		)
		if err := rows.Scan(&tsMS, &rec.Symbol, &rec.Kind, &rec.Side, &rec.Quantity, &rec.Price,
			&rec.OrderID, &rec.ClientOrderID, &block, &rec.DryRun, &rec.Error); err != nil {
			return nil, err
		}
		rec.Time = time.UnixMilli(tsMS).UTC()
		rec.BlockNumber = uint64(block)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
