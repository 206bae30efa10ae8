// Package store provides a unified interface to the local embedded backend
package store

import (
	"context"
	"errors"
	"fmt"

	"suggestfed/internal/platform/logger"
)

// Store is the facade for the embedded backend
// zero value is safe but does nothing
type Store struct {
	// Log is the logger used by subclients
	// zero means a no op zerolog logger
	Log logger.Logger

	// DB is the sqlite seam, nil when disabled
	DB TxRunner
}

// Row exposes the minimal scan contract a single row needs
type Row interface {
	Scan(dest ...any) error
}

// Rows exposes the minimal iteration and scan for a result set
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
	Columns() []string
}

// CommandTag is a tiny interface to inspect command results
type CommandTag interface {
	String() string
	RowsAffected() int64
}

// RowQuerier is the read and write surface repos use for sql
type RowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

// TxRunner wraps transaction execution around a function
type TxRunner interface {
	RowQuerier
	Tx(ctx context.Context, fn func(q RowQuerier) error) error
}

// Pinger is any seam that can report readiness
type Pinger interface{ Ping(context.Context) error }

// Open constructs a Store with the requested backend
// the backend stays nil on the Store when not enabled in cfg
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	s := &Store{}
	if o := buildOptions(opts...); o.log != nil {
		s.Log = *o.log
	}

	// defaults for zero logger to avoid nil checks
	s.Log = s.Log.With().Logger()

	if cfg.SQLite.Enabled {
		db, err := openSQLite(ctx, cfg, s)
		if err != nil {
			return nil, err
		}
		s.DB = db
	}

	return s, nil
}

// Guard verifies all configured seams the Store knows about
func (s *Store) Guard(ctx context.Context) error {
	if s == nil {
		return errors.New("nil store")
	}
	var errs []error
	if s.DB != nil {
		if p, ok := any(s.DB).(Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				errs = append(errs, fmt.Errorf("sqlite: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes the backend gracefully, nil backend is ignored
func (s *Store) Close(ctx context.Context) error {
	var errs []error

	if c, ok := s.DB.(interface{ Close() error }); ok {
		if e := c.Close(); e != nil {
			errs = append(errs, e)
		}
	}

	return errors.Join(errs...)
}
