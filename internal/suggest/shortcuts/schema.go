package shortcuts

import (
	"context"
	"fmt"

	"suggestfed/internal/platform/store"
)

// schemaVersion bumps whenever the table shape changes; a mismatch at open
// drops and recreates everything, since the store is purely a cache
const schemaVersion = 1

var ddlStatements = []string{
	`CREATE TABLE IF NOT EXISTS shortcuts (
		intent_key TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		format TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		icon1 TEXT NOT NULL DEFAULT '',
		icon2 TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL DEFAULT '',
		data TEXT NOT NULL DEFAULT '',
		query TEXT NOT NULL DEFAULT '',
		action_msg_call TEXT NOT NULL DEFAULT '',
		extra_data TEXT NOT NULL DEFAULT '',
		component_name TEXT NOT NULL DEFAULT '',
		shortcut_id TEXT NOT NULL DEFAULT '',
		spinner_while_refreshing INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_shortcuts_shortcut_source ON shortcuts(shortcut_id, source)`,

	`CREATE TABLE IF NOT EXISTS clicklog (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		intent_key TEXT NOT NULL REFERENCES shortcuts(intent_key) ON DELETE CASCADE ON UPDATE CASCADE,
		query TEXT NOT NULL,
		hit_time_ms INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_clicklog_query ON clicklog(query)`,
	`CREATE INDEX IF NOT EXISTS idx_clicklog_hit_time ON clicklog(hit_time_ms)`,

	`CREATE TABLE IF NOT EXISTS source_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		time_ms INTEGER NOT NULL,
		click_count INTEGER NOT NULL,
		impression_count INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_source_events_source ON source_events(source)`,
	`CREATE INDEX IF NOT EXISTS idx_source_events_time ON source_events(time_ms)`,

	`CREATE TABLE IF NOT EXISTS source_stats (
		source TEXT PRIMARY KEY,
		total_clicks INTEGER NOT NULL DEFAULT 0,
		total_impressions INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS schema_meta (version INTEGER NOT NULL)`,
}

var dropStatements = []string{
	`DROP TRIGGER IF EXISTS trg_clicklog_purge`,
	`DROP TABLE IF EXISTS clicklog`,
	`DROP TABLE IF EXISTS shortcuts`,
	`DROP TABLE IF EXISTS source_events`,
	`DROP TABLE IF EXISTS source_stats`,
	`DROP TABLE IF EXISTS schema_meta`,
}

// EnsureSchema creates the tables on first use, drops and recreates them on a
// version mismatch (the data is a cache; losing it is acceptable), and
// (re)installs the stat-age purge trigger for the configured maxStatAgeMs
func EnsureSchema(ctx context.Context, db store.TxRunner, maxStatAgeMs int64) error {
	return db.Tx(ctx, func(q store.RowQuerier) error {
		row := q.QueryRow(ctx, `SELECT version FROM schema_meta LIMIT 1`)
		var version int
		err := row.Scan(&version)
		if err != nil || version != schemaVersion {
			for _, stmt := range dropStatements {
				if _, err := q.Exec(ctx, stmt); err != nil {
					return fmt.Errorf("shortcuts: drop schema: %w", err)
				}
			}
			for _, stmt := range ddlStatements {
				if _, err := q.Exec(ctx, stmt); err != nil {
					return fmt.Errorf("shortcuts: create schema: %w", err)
				}
			}
			if _, err := q.Exec(ctx, `DELETE FROM schema_meta`); err != nil {
				return err
			}
			if _, err := q.Exec(ctx, `INSERT INTO schema_meta (version) VALUES (?)`, schemaVersion); err != nil {
				return err
			}
		}

		if _, err := q.Exec(ctx, `DROP TRIGGER IF EXISTS trg_clicklog_purge`); err != nil {
			return fmt.Errorf("shortcuts: drop purge trigger: %w", err)
		}
		trigger := fmt.Sprintf(`
			CREATE TRIGGER trg_clicklog_purge
			AFTER INSERT ON clicklog
			BEGIN
				DELETE FROM clicklog WHERE hit_time_ms < NEW.hit_time_ms - %d;
			END`, maxStatAgeMs)
		if _, err := q.Exec(ctx, trigger); err != nil {
			return fmt.Errorf("shortcuts: install purge trigger: %w", err)
		}
		return nil
	})
}
