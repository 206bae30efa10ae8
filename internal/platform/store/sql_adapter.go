package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"suggestfed/internal/platform/logger"

	"github.com/rs/zerolog"
)

// QueryEvent carries the details of a single executed statement
type QueryEvent struct {
	SQL       string
	Args      []any
	ElapsedUS int64
	Err       error
	Slow      bool
}

// QueryTracer receives a QueryEvent once a statement completes
type QueryTracer interface {
	OnQuery(ctx context.Context, ev QueryEvent)
}

// logTracer returns a QueryTracer that writes slow or failed queries through l
func logTracer(l logger.Logger) QueryTracer { return tracer{log: l} }

type tracer struct{ log logger.Logger }

func (t tracer) OnQuery(_ context.Context, ev QueryEvent) {
	var e *zerolog.Event
	switch {
	case ev.Err != nil:
		e = t.log.Error().Err(ev.Err)
	case ev.Slow:
		e = t.log.Warn()
	default:
		e = t.log.Debug()
	}
	e.Str("sql", ev.SQL).Int64("elapsed_us", ev.ElapsedUS).Msg("sqlite query")
}

// sqliteAdapter wraps *sql.DB and implements RowQuerier + TxRunner
// it emits query trace events when a tracer is configured
type sqliteAdapter struct {
	db     *sql.DB
	tracer QueryTracer
	slowUS int64
}

func newSQLiteAdapter(db *sql.DB, tr QueryTracer, slowUS int64) *sqliteAdapter {
	return &sqliteAdapter{db: db, tracer: tr, slowUS: slowUS}
}

func (a *sqliteAdapter) Ping(ctx context.Context) error {
	if a == nil || a.db == nil {
		return errors.New("sqlite: nil adapter")
	}
	return a.db.PingContext(ctx)
}

func (a *sqliteAdapter) Close() error { return a.db.Close() }

func (a *sqliteAdapter) Exec(ctx context.Context, query string, args ...any) (CommandTag, error) {
	start := time.Now()
	res, err := a.db.ExecContext(ctx, query, args...)
	a.emit(ctx, query, args, start, err)
	if err != nil {
		return nil, err
	}
	return resultTag{res}, nil
}

func (a *sqliteAdapter) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	start := time.Now()
	rs, err := a.db.QueryContext(ctx, query, args...)
	a.emit(ctx, query, args, start, err)
	if err != nil {
		return nil, err
	}
	return sqlRows{r: rs}, nil
}

func (a *sqliteAdapter) QueryRow(ctx context.Context, query string, args ...any) Row {
	start := time.Now()
	r := a.db.QueryRowContext(ctx, query, args...)
	return sqlRow{
		r: r,
		after: func(scanErr error) {
			a.emit(ctx, query, args, start, scanErr)
		},
	}
}

func (a *sqliteAdapter) Tx(ctx context.Context, fn func(q RowQuerier) error) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	q := txQuerier{tx: tx, tracer: a.tracer, slowUS: a.slowUS}
	if err := fn(q); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// emit sends a query event to the configured tracer
func (a *sqliteAdapter) emit(ctx context.Context, query string, args []any, start time.Time, err error) {
	if a == nil || a.tracer == nil {
		return
	}
	elapsedUS := time.Since(start).Microseconds()
	slow := a.slowUS >= 0 && elapsedUS >= a.slowUS
	a.tracer.OnQuery(ctx, QueryEvent{SQL: query, Args: args, ElapsedUS: elapsedUS, Err: err, Slow: slow})
}

// adapters for database/sql to our tiny Row/Rows/CommandTag

type sqlRow struct {
	r     *sql.Row
	after func(error)
}

func (x sqlRow) Scan(dst ...any) error {
	err := x.r.Scan(dst...)
	if x.after != nil {
		x.after(err)
	}
	return err
}

type sqlRows struct{ r *sql.Rows }

func (x sqlRows) Next() bool            { return x.r.Next() }
func (x sqlRows) Scan(dst ...any) error { return x.r.Scan(dst...) }
func (x sqlRows) Err() error            { return x.r.Err() }
func (x sqlRows) Close()                { _ = x.r.Close() }
func (x sqlRows) Columns() []string {
	cols, err := x.r.Columns()
	if err != nil {
		return nil
	}
	return cols
}

// resultTag wraps sql.Result so we satisfy our CommandTag interface
// database/sql has no verb-style tag like pgconn's "UPDATE 1", so String
// renders a plain affected-row count; ExecOne reads RowsAffected
type resultTag struct{ r sql.Result }

func (t resultTag) String() string {
	n, err := t.r.RowsAffected()
	if err != nil {
		return "ERR"
	}
	return fmt.Sprintf("%d", n)
}

func (t resultTag) RowsAffected() int64 {
	n, err := t.r.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

// txQuerier uses *sql.Tx to satisfy RowQuerier inside a Tx
// it mirrors sqliteAdapter emit behavior so queries inside transactions are also traced
type txQuerier struct {
	tx     *sql.Tx
	tracer QueryTracer
	slowUS int64
}

func (t txQuerier) Exec(ctx context.Context, query string, args ...any) (CommandTag, error) {
	start := time.Now()
	res, err := t.tx.ExecContext(ctx, query, args...)
	t.emit(ctx, query, args, start, err)
	if err != nil {
		return nil, err
	}
	return resultTag{res}, nil
}

func (t txQuerier) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	start := time.Now()
	rs, err := t.tx.QueryContext(ctx, query, args...)
	t.emit(ctx, query, args, start, err)
	if err != nil {
		return nil, err
	}
	return sqlRows{r: rs}, nil
}

func (t txQuerier) QueryRow(ctx context.Context, query string, args ...any) Row {
	start := time.Now()
	r := t.tx.QueryRowContext(ctx, query, args...)
	return sqlRow{
		r: r,
		after: func(scanErr error) {
			t.emit(ctx, query, args, start, scanErr)
		},
	}
}

func (t txQuerier) emit(ctx context.Context, query string, args []any, start time.Time, err error) {
	if t.tracer == nil {
		return
	}
	elapsedUS := time.Since(start).Microseconds()
	slow := t.slowUS >= 0 && elapsedUS >= t.slowUS
	t.tracer.OnQuery(ctx, QueryEvent{SQL: query, Args: args, ElapsedUS: elapsedUS, Err: err, Slow: slow})
}
