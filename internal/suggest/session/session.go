// Package session implements SuggestionSession: the per-session orchestrator
// that turns one query into a cursor, wiring the shortcut repository, the
// backer, the session cache, the query multiplexer, and the shortcut
// refresher together (spec.md §4.8)
package session

import (
	"context"
	"sync"
	"time"

	"suggestfed/internal/platform/logger"
	"suggestfed/internal/suggest/backer"
	"suggestfed/internal/suggest/clicklog"
	"suggestfed/internal/suggest/cursor"
	"suggestfed/internal/suggest/domain"
	"suggestfed/internal/suggest/exec"
	"suggestfed/internal/suggest/mux"
	"suggestfed/internal/suggest/refresh"
	"suggestfed/internal/suggest/sessioncache"
	"suggestfed/internal/suggest/shortcuts"
	"suggestfed/internal/suggest/source"
)

// Config holds the per-session numeric knobs from spec §6
type Config struct {
	NumPromotedSources   int
	MaxPromotedSlots     int
	PromotedDeadlineMs   int64
	SourceTimeoutMs      int
	NotifyWindowMs       int64
	PrefillMs            int64
	MaxRefreshResults    int
	RefreshConcurrency   int
	MaxResultsPerSource  int
	WebResultsOverride   int
}

// SuggestionFactory builds the synthetic go-to-website / search-the-web rows
// for a given query; either may return nil to mean "not applicable"
type SuggestionFactory func(query string) *domain.Suggestion

// Deps bundles a Session's collaborators
type Deps struct {
	Repo        shortcuts.Repository
	Sources     func() []source.Source // all enabled sources, this session's identity
	Promotable  []domain.SourceIdentifier
	Unpromotable []domain.SourceIdentifier
	WebSource    domain.SourceIdentifier
	HasWebSource bool
	GoToWebsite  SuggestionFactory
	SearchTheWeb SuggestionFactory
	Mux          *mux.QueryMultiplexer
	Refresher    *refresh.Refresher
	Delayed      *exec.DelayedExecutor
	ClickSink    clicklog.Sink
	Log          logger.Logger
}

// Session is the per-session orchestrator. query(q) is single-threaded with
// respect to itself, enforced by mu
type Session struct {
	mu sync.Mutex

	deps Deps
	cfg  Config
	cache *sessioncache.Cache

	sourceByID map[string]source.Source

	outstanding int
	onClose     func()

	currentCursor *cursor.Cursor
	currentMux    *asyncMux
	started       map[string]bool

	unpromotedFiltered []source.Source
}

// New builds a Session. onClose is invoked once the last cursor closes
func New(deps Deps, cfg Config, onClose func()) *Session {
	s := &Session{
		deps:       deps,
		cfg:        cfg,
		cache:      sessioncache.New(false),
		sourceByID: map[string]source.Source{},
		onClose:    onClose,
		started:    map[string]bool{},
	}
	for _, src := range deps.Sources() {
		s.sourceByID[src.Identifier().String()] = src
	}
	return s
}

func (s *Session) lookup(id domain.SourceIdentifier) (source.Source, bool) {
	src, ok := s.sourceByID[id.String()]
	return src, ok
}

func (s *Session) enabled(id domain.SourceIdentifier) bool {
	_, ok := s.sourceByID[id.String()]
	return ok
}

// Query runs the nine-step query orchestration and returns the new cursor
func (s *Session) Query(ctx context.Context, q string) *cursor.Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	// step 1: shortcuts, filtered to enabled sources only
	rawShortcuts, err := s.deps.Repo.GetShortcutsForQuery(ctx, q, now)
	if err != nil {
		s.deps.Log.Error().Err(err).Str("query", q).Msg("session: GetShortcutsForQuery failed")
		rawShortcuts = nil
	}
	var enabledShortcuts []domain.Shortcut
	for _, sc := range rawShortcuts {
		if s.enabled(sc.Source) {
			enabledShortcuts = append(enabledShortcuts, sc)
		}
	}

	// step 2: split already-refreshed vs needs-refresh; rewrite spinner icon
	var needRefresh []domain.Shortcut
	displayShortcuts := make([]domain.Shortcut, len(enabledShortcuts))
	copy(displayShortcuts, enabledShortcuts)
	for i, sc := range displayShortcuts {
		if icon2, ok := s.cache.IsRefreshed(sc.Source, sc.ShortcutID); ok {
			if sc.SpinnerWhileRefreshing {
				displayShortcuts[i].Icon2 = icon2
			}
			continue
		}
		needRefresh = append(needRefresh, sc)
	}

	// step 3: filter promotable/unpromotable source lists by min length and
	// zero-result-prefix memory
	filter := func(ids []domain.SourceIdentifier) []source.Source {
		var out []source.Source
		for _, id := range ids {
			src, ok := s.lookup(id)
			if !ok {
				continue
			}
			if len(q) < src.MinQueryLength() {
				continue
			}
			if s.cache.HasReportedZeroResultsForPrefix(q, id) {
				continue
			}
			out = append(out, src)
		}
		return out
	}

	promotableFiltered := filter(s.deps.Promotable)
	unpromotableFiltered := filter(s.deps.Unpromotable)
	s.unpromotedFiltered = unpromotableFiltered

	promotedCount := s.cfg.NumPromotedSources
	if promotedCount > len(promotableFiltered) {
		promotedCount = len(promotableFiltered)
	}
	promoted := promotableFiltered[:promotedCount]

	var promotedIDs []domain.SourceIdentifier
	for _, src := range promoted {
		promotedIDs = append(promotedIDs, src.Identifier())
	}

	var allToQuery []domain.SourceIdentifier
	for _, src := range promotableFiltered {
		allToQuery = append(allToQuery, src.Identifier())
	}
	for _, src := range unpromotableFiltered {
		allToQuery = append(allToQuery, src.Identifier())
	}

	// step 4: build the backer
	bk := backer.New(
		displayShortcuts,
		allToQuery,
		promotedIDs,
		s.deps.WebSource,
		s.deps.HasWebSource,
		callFactory(s.deps.GoToWebsite, q),
		callFactory(s.deps.SearchTheWeb, q),
		backer.Config{MaxPromotedSlots: s.cfg.MaxPromotedSlots, PromotedDeadlineMs: s.cfg.PromotedDeadlineMs},
		now,
	)

	s.started = map[string]bool{}

	// step 5: asyncMux wraps the backer
	am := newAsyncMux(ctx, q, bk, s.cache, s.deps.Mux, s.deps.Refresher, s.lookup, func() {
		if s.currentCursor != nil {
			s.currentCursor.OnNewResults(time.Now())
		}
	}, func(id domain.SourceIdentifier) {
		s.mu.Lock()
		s.started[id.String()] = true
		s.mu.Unlock()
	})

	// step 6: new cursor. A short-lived prior cursor's rows are reused as a
	// prefill so the UI has something to show before the first callback
	// fires, gated on the query having grown rather than been cleared
	notifyWindow := time.Duration(s.cfg.NotifyWindowMs) * time.Millisecond
	cur := cursor.New(bk, s.deps.Delayed, q, notifyWindow)

	if prev := s.currentCursor; prev != nil && len(q) > 1 {
		if rows := prev.Suggestions(); len(rows) > 0 {
			cur.Prefill(rows, prev.MoreIndex())
			if s.cfg.PrefillMs > 0 {
				s.deps.Delayed.PostAtTime(func() {
					cur.OnNewResults(time.Now())
				}, now.Add(time.Duration(s.cfg.PrefillMs)*time.Millisecond))
			}
		}
	}

	// step 7: attach listener
	listener := &cursorListener{session: s, query: q, asyncMux: am}
	cur.Attach(listener)

	s.currentCursor = cur
	s.currentMux = am
	s.outstanding++

	// step 8: send off refreshers and promoted queries
	am.sendOffShortcutRefreshers(needRefresh, s.cfg.MaxRefreshResults)
	am.sendOffPromotedSourceQueries(promoted)

	// step 9: force "more" UI after the promoted deadline even if silent
	s.deps.Delayed.PostAtTime(func() {
		cur.OnNewResults(time.Now())
	}, now.Add(time.Duration(s.cfg.PromotedDeadlineMs)*time.Millisecond))

	return cur
}

func callFactory(f SuggestionFactory, q string) *domain.Suggestion {
	if f == nil {
		return nil
	}
	return f(q)
}

// cursorListener implements cursor.Listener, owned by the session
type cursorListener struct {
	session  *Session
	query    string
	asyncMux *asyncMux
}

func (l *cursorListener) OnClose() {
	l.asyncMux.cancel()
	l.session.mu.Lock()
	l.session.outstanding--
	done := l.session.outstanding <= 0
	onClose := l.session.onClose
	l.session.mu.Unlock()
	if done && onClose != nil {
		onClose()
	}
}

func classifyRow(row *domain.Suggestion, started map[string]bool) (impression domain.SourceIdentifier, hasImpression bool) {
	if row == nil {
		return domain.SourceIdentifier{}, false
	}
	if row.Format == backer.FormatCorpusEntry {
		id, err := domain.ParseSourceIdentifier(row.Data)
		if err != nil {
			return domain.SourceIdentifier{}, false
		}
		if !started[id.String()] {
			return domain.SourceIdentifier{}, false
		}
		return id, true
	}
	if row.Format == backer.FormatMoreResults {
		return domain.SourceIdentifier{}, false
	}
	src := row.Source()
	if src.IsZero() {
		return domain.SourceIdentifier{}, false
	}
	return src, true
}

// classifyDisplayedRows classifies every row the UI actually rendered into
// the set of sources that were shown, deduped (spec.md §4.8: "classify each
// displayed row ... add its source to impressions")
func classifyDisplayedRows(rows []domain.Suggestion, started map[string]bool) []domain.SourceIdentifier {
	var impressions []domain.SourceIdentifier
	seen := make(map[string]bool, len(rows))
	for i := range rows {
		id, ok := classifyRow(&rows[i], started)
		if !ok || seen[id.String()] {
			continue
		}
		seen[id.String()] = true
		impressions = append(impressions, id)
	}
	return impressions
}

func (l *cursorListener) OnItemClicked(pos, _ int, row *domain.Suggestion, displayed []domain.Suggestion, _, _ string) {
	l.session.mu.Lock()
	started := make(map[string]bool, len(l.session.started))
	for k, v := range l.session.started {
		started[k] = v
	}
	l.session.mu.Unlock()

	impressions := classifyDisplayedRows(displayed, started)

	var clicked *domain.Suggestion
	if row != nil && !row.Source().IsZero() && row.Shortcuttable() {
		clicked = row
	}

	stats := domain.SessionStats{Query: l.query, Clicked: clicked, SourceImpressions: impressions}
	l.session.deps.Repo.ReportStats(context.Background(), stats, time.Now())

	if l.session.deps.ClickSink != nil {
		l.session.deps.ClickSink.Log(context.Background(), clicklog.Entry{
			Query: l.query, Clicked: clicked, SourceImpressions: impressions, TimeMillis: time.Now().UnixMilli(),
		})
	}
	_ = pos
}

func (l *cursorListener) OnSearch(query string, _ int, displayed []domain.Suggestion) {
	var webClick *domain.Suggestion
	if l.session.deps.HasWebSource {
		sug := domain.NewBuilder(l.session.deps.WebSource).
			Format("builtin/web_search").
			Title(query).
			Action("SEARCH").
			Data(query).
			Query(query).
			ShortcutID("search:" + query).
			Build()
		webClick = &sug
	}

	l.session.mu.Lock()
	started := make(map[string]bool, len(l.session.started))
	for k, v := range l.session.started {
		started[k] = v
	}
	l.session.mu.Unlock()

	impressions := classifyDisplayedRows(displayed, started)

	stats := domain.SessionStats{Query: query, Clicked: webClick, SourceImpressions: impressions}
	l.session.deps.Repo.ReportStats(context.Background(), stats, time.Now())

	if l.session.deps.ClickSink != nil {
		l.session.deps.ClickSink.Log(context.Background(), clicklog.Entry{
			Query: query, Clicked: webClick, SourceImpressions: impressions, TimeMillis: time.Now().UnixMilli(),
		})
	}
}

func (l *cursorListener) OnMoreVisible() {
	l.session.mu.Lock()
	sources := l.session.unpromotedFiltered
	l.session.mu.Unlock()
	l.asyncMux.sendOffAdditionalSourcesQueries(sources)
}
