// Package shortcuts is the sqlite-backed durable store for shortcuts, click
// history, and source stats: spec'd as ShortcutRepository
package shortcuts

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"suggestfed/internal/platform/logger"
	"suggestfed/internal/platform/store"
	"suggestfed/internal/suggest/domain"
)

// Repository is the durable surface the session layer depends on
type Repository interface {
	GetShortcutsForQuery(ctx context.Context, query string, now time.Time) ([]domain.Shortcut, error)
	ReportStats(ctx context.Context, stats domain.SessionStats, now time.Time)
	GetSourceRanking(ctx context.Context, minImpressions, minClicks int64) ([]domain.SourceStat, error)
	RefreshShortcut(ctx context.Context, source domain.SourceIdentifier, shortcutID string, refreshed *domain.Suggestion)
}

// Config holds the repository's numeric knobs, spec §6
type Config struct {
	MaxStatAgeMs         int64
	MaxSourceEventAgeMs  int64
	MaxShortcutsReturned int
	SpinnerSentinelIcon  string
}

// SQLite is the sqlite-backed Repository implementation
type SQLite struct {
	db  store.TxRunner
	cfg Config
	log logger.Logger
}

// New wraps db with the shortcut repository; call EnsureSchema once at startup
func New(db store.TxRunner, cfg Config, log logger.Logger) *SQLite {
	return &SQLite{db: db, cfg: cfg, log: log}
}

// GetShortcutsForQuery returns the ranked shortcuts matching query, most
// recently touched first then by time-decayed hit score, capped at
// MaxShortcutsReturned. An empty query skips the prefix restriction entirely
func (r *SQLite) GetShortcutsForQuery(ctx context.Context, query string, now time.Time) ([]domain.Shortcut, error) {
	nowMs := now.UnixMilli()
	cutoff := nowMs - r.cfg.MaxStatAgeMs
	denom := r.cfg.MaxStatAgeMs / 1000
	if denom == 0 {
		denom = 1
	}

	var qb strings.Builder
	qb.WriteString(`WITH joined AS (
		SELECT c.intent_key AS intent_key, COUNT(*) AS hits, MAX(c.hit_time_ms) AS last_hit
		FROM clicklog c
		WHERE c.hit_time_ms >= ?`)
	args := []any{cutoff}
	if query != "" {
		qb.WriteString(` AND c.query >= ? AND c.query < ?`)
		args = append(args, query, NextString(query))
	}
	qb.WriteString(` GROUP BY c.intent_key
	)
	SELECT s.intent_key, s.source, s.format, s.title, s.description, s.icon1, s.icon2,
	       s.action, s.data, s.query, s.action_msg_call, s.extra_data, s.component_name,
	       s.shortcut_id, s.spinner_while_refreshing
	FROM joined j
	JOIN shortcuts s ON s.intent_key = j.intent_key
	ORDER BY
	  CASE WHEN j.last_hit = MAX(j.last_hit) OVER () THEN 1 ELSE 0 END DESC,
	  (j.hits * (j.last_hit - ?)) / ? DESC
	LIMIT ?`)
	args = append(args, cutoff, denom, r.cfg.MaxShortcutsReturned)

	rows, err := r.db.Query(ctx, qb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Shortcut
	for rows.Next() {
		var sc domain.Shortcut
		var sourceStr string
		var spinner int
		if err := rows.Scan(&sc.IntentKey, &sourceStr, &sc.Format, &sc.Title, &sc.Description,
			&sc.Icon1, &sc.Icon2, &sc.Action, &sc.Data, &sc.Query, &sc.ActionMsgCall,
			&sc.ExtraData, &sc.ComponentName, &sc.ShortcutID, &spinner); err != nil {
			return nil, err
		}
		src, perr := domain.ParseSourceIdentifier(sourceStr)
		if perr != nil {
			continue
		}
		sc.Source = src
		sc.SpinnerWhileRefreshing = spinner != 0
		if sc.SpinnerWhileRefreshing {
			sc.Icon2 = r.cfg.SpinnerSentinelIcon
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// ReportStats upserts the clicked shortcut and click-log row (if any), records
// one source-event row per impressed source, then prunes and rebuilds the
// source-stats aggregate. Any underlying error is logged, never returned
func (r *SQLite) ReportStats(ctx context.Context, stats domain.SessionStats, now time.Time) {
	nowMs := now.UnixMilli()
	err := r.db.Tx(ctx, func(q store.RowQuerier) error {
		if stats.Clicked != nil && stats.Clicked.ShortcutID != domain.NeverShortcut {
			sc := domain.ShortcutFromSuggestion(*stats.Clicked)
			if err := upsertShortcut(ctx, q, sc); err != nil {
				return err
			}
			if _, err := q.Exec(ctx, `INSERT INTO clicklog (intent_key, query, hit_time_ms) VALUES (?, ?, ?)`,
				sc.IntentKey, stats.Query, nowMs); err != nil {
				return err
			}
		}

		clickedSource := ""
		if stats.Clicked != nil {
			clickedSource = stats.Clicked.Source().String()
		}
		for _, src := range stats.SourceImpressions {
			clicks := 0
			if clickedSource != "" && src.String() == clickedSource {
				clicks = 1
			}
			if _, err := q.Exec(ctx,
				`INSERT INTO source_events (source, time_ms, click_count, impression_count) VALUES (?, ?, ?, 1)`,
				src.String(), nowMs, clicks); err != nil {
				return err
			}
		}

		eventCutoff := nowMs - r.cfg.MaxSourceEventAgeMs
		if _, err := q.Exec(ctx, `DELETE FROM source_events WHERE time_ms < ?`, eventCutoff); err != nil {
			return err
		}
		if _, err := q.Exec(ctx, `DELETE FROM source_stats`); err != nil {
			return err
		}
		_, err := q.Exec(ctx, `
			INSERT INTO source_stats (source, total_clicks, total_impressions)
			SELECT source, SUM(click_count), SUM(impression_count) FROM source_events GROUP BY source`)
		return err
	})
	if err != nil {
		r.log.Error().Err(err).Msg("shortcuts: reportStats failed")
	}
}

// GetSourceRanking returns sources meeting the impression/click floor, ordered
// by click-through rate; the ordering expression stays integer arithmetic
func (r *SQLite) GetSourceRanking(ctx context.Context, minImpressions, minClicks int64) ([]domain.SourceStat, error) {
	rows, err := r.db.Query(ctx, `
		SELECT source, total_clicks, total_impressions
		FROM source_stats
		WHERE total_impressions >= ? AND total_clicks >= ?
		ORDER BY (1000 * total_clicks / total_impressions) DESC`, minImpressions, minClicks)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SourceStat
	for rows.Next() {
		var sourceStr string
		var st domain.SourceStat
		if err := rows.Scan(&sourceStr, &st.TotalClicks, &st.TotalImpressions); err != nil {
			return nil, err
		}
		src, perr := domain.ParseSourceIdentifier(sourceStr)
		if perr != nil {
			continue
		}
		st.Source = src
		out = append(out, st)
	}
	return out, rows.Err()
}

// RefreshShortcut deletes the matching shortcut when refreshed is nil, else
// replaces it in place; a changed intentKey relabels clicklog rows via the
// ON UPDATE CASCADE foreign key. Errors are logged, never returned
func (r *SQLite) RefreshShortcut(ctx context.Context, source domain.SourceIdentifier, shortcutID string, refreshed *domain.Suggestion) {
	err := r.db.Tx(ctx, func(q store.RowQuerier) error {
		if refreshed == nil {
			_, err := q.Exec(ctx, `DELETE FROM shortcuts WHERE shortcut_id = ? AND source = ?`, shortcutID, source.String())
			return err
		}

		row := q.QueryRow(ctx, `SELECT intent_key FROM shortcuts WHERE shortcut_id = ? AND source = ?`,
			shortcutID, source.String())
		var existingKey string
		if err := row.Scan(&existingKey); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}

		sc := domain.ShortcutFromSuggestion(*refreshed)
		if existingKey == sc.IntentKey {
			return upsertShortcut(ctx, q, sc)
		}
		spinner := 0
		if sc.SpinnerWhileRefreshing {
			spinner = 1
		}
		_, err := q.Exec(ctx, `UPDATE shortcuts SET
			intent_key = ?, source = ?, format = ?, title = ?, description = ?, icon1 = ?, icon2 = ?,
			action = ?, data = ?, query = ?, action_msg_call = ?, extra_data = ?, component_name = ?,
			shortcut_id = ?, spinner_while_refreshing = ?
			WHERE intent_key = ?`,
			sc.IntentKey, sc.Source.String(), sc.Format, sc.Title, sc.Description, sc.Icon1, sc.Icon2,
			sc.Action, sc.Data, sc.Query, sc.ActionMsgCall, sc.ExtraData, sc.ComponentName,
			sc.ShortcutID, spinner, existingKey)
		return err
	})
	if err != nil {
		r.log.Error().Err(err).Msg("shortcuts: refreshShortcut failed")
	}
}

func upsertShortcut(ctx context.Context, q store.RowQuerier, sc domain.Shortcut) error {
	spinner := 0
	if sc.SpinnerWhileRefreshing {
		spinner = 1
	}
	_, err := q.Exec(ctx, `
		INSERT INTO shortcuts (
			intent_key, source, format, title, description, icon1, icon2, action, data, query,
			action_msg_call, extra_data, component_name, shortcut_id, spinner_while_refreshing
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(intent_key) DO UPDATE SET
			source = excluded.source, format = excluded.format, title = excluded.title,
			description = excluded.description, icon1 = excluded.icon1, icon2 = excluded.icon2,
			action = excluded.action, data = excluded.data, query = excluded.query,
			action_msg_call = excluded.action_msg_call, extra_data = excluded.extra_data,
			component_name = excluded.component_name, shortcut_id = excluded.shortcut_id,
			spinner_while_refreshing = excluded.spinner_while_refreshing`,
		sc.IntentKey, sc.Source.String(), sc.Format, sc.Title, sc.Description, sc.Icon1, sc.Icon2,
		sc.Action, sc.Data, sc.Query, sc.ActionMsgCall, sc.ExtraData, sc.ComponentName,
		sc.ShortcutID, spinner)
	return err
}
