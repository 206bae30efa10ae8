package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// openSQLite opens the local database file and wraps it with our sql adapter
func openSQLite(ctx context.Context, cfg Config, s *Store) (TxRunner, error) {
	if cfg.SQLite.Path == "" {
		return nil, fmt.Errorf("sqlite: empty path")
	}
	if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir %s: %w", dir, err)
		}
	}

	dsn := cfg.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.SQLite.Path, err)
	}

	// a single file behind one *sql.DB; sqlite serializes writers internally so one
	// connection avoids SQLITE_BUSY storms under concurrent repo access
	db.SetMaxOpenConns(1)

	var tracer QueryTracer
	if cfg.SQLite.LogSQL {
		tracer = logTracer(s.Log)
	}

	retries := cfg.SQLite.ConnectRetries
	if retries <= 0 {
		retries = 6
	}
	pingTimeout := cfg.SQLite.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}

	const (
		backoffStart   = 100 * time.Millisecond
		backoffCeiling = 2 * time.Second
	)

	var lastErr error
	backoff := backoffStart
	for range retries {
		toCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		lastErr = db.PingContext(toCtx)
		cancel()

		if lastErr == nil {
			a := newSQLiteAdapter(db, tracer, int64(cfg.SQLite.SlowQueryMs)*1000)
			s.DB = a
			return a, nil
		}
		if ctx.Err() != nil {
			_ = db.Close()
			return nil, ctx.Err()
		}
		time.Sleep(backoff)
		if backoff < backoffCeiling {
			backoff *= 2
			if backoff > backoffCeiling {
				backoff = backoffCeiling
			}
		}
	}

	_ = db.Close()
	return nil, fmt.Errorf("sqlite: ping failed after %d attempts: %w", retries, lastErr)
}
