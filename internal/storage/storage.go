// Package storage is the durable counter layer. The paid throttle bucket
// flushes per-user request counts here on every window rollover, so usage
// survives restarts while the hot path stays in the key/value store.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"relaybot/pkg/logx"
)

// Config configures the SQLite counter store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

const schema = `
CREATE TABLE IF NOT EXISTS paid_requests (
	user_id INTEGER PRIMARY KEY,
	count   INTEGER NOT NULL DEFAULT 0,
	updated TEXT    NOT NULL
);
`

// Store keeps per-user paid-request totals.
type Store struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage migrate: %w", err)
	}

	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AddPaidRequests accumulates count onto the user's total. This is the
// throttle gate's window-reset flush target; count may be 0 (no-op write).
func (s *Store) AddPaidRequests(ctx context.Context, userID int64, count int) error {
	if count <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO paid_requests(user_id, count, updated) VALUES(?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   count = count + excluded.count,
		   updated = excluded.updated`,
		userID, count, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("storage add paid requests: %w", err)
	}
	s.log.Debug("paid requests flushed", logx.Int64("user", userID), logx.Int("count", count))
	return nil
}

// PaidRequests returns the user's accumulated total (0 when unknown).
func (s *Store) PaidRequests(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM paid_requests WHERE user_id = ?`, userID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage read paid requests: %w", err)
	}
	return n, nil
}
