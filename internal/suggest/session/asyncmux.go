package session

import (
	"context"
	"time"

	"suggestfed/internal/suggest/backer"
	"suggestfed/internal/suggest/domain"
	"suggestfed/internal/suggest/mux"
	"suggestfed/internal/suggest/refresh"
	"suggestfed/internal/suggest/sessioncache"
	"suggestfed/internal/suggest/source"
)

// asyncMux sits between the query/refresh fan-out and the backer: it
// intercepts addSourceResults and refreshShortcut to feed the session cache
// too, then forwards to the backer, and triggers a cursor change notify
type asyncMux struct {
	ctx    context.Context
	query  string
	backer *backer.Backer
	cache  *sessioncache.Cache
	mux    *mux.QueryMultiplexer
	refr   *refresh.Refresher

	lookup  func(domain.SourceIdentifier) (source.Source, bool)
	notify  func()
	onStart func(domain.SourceIdentifier)

	promotedDispatch   *mux.Dispatch
	additionalDispatch *mux.Dispatch
	refreshDispatch    *refresh.Dispatch
	sentAdditional     bool
}

func newAsyncMux(
	ctx context.Context,
	query string,
	b *backer.Backer,
	cache *sessioncache.Cache,
	m *mux.QueryMultiplexer,
	r *refresh.Refresher,
	lookup func(domain.SourceIdentifier) (source.Source, bool),
	notify func(),
	onStart func(domain.SourceIdentifier),
) *asyncMux {
	return &asyncMux{ctx: ctx, query: query, backer: b, cache: cache, mux: m, refr: r, lookup: lookup, notify: notify, onStart: onStart}
}

// OnSourceStart implements mux.Receiver
func (a *asyncMux) OnSourceStart(s domain.SourceIdentifier) {
	a.backer.ReportSourceStarted(s)
	if a.onStart != nil {
		a.onStart(s)
	}
	a.notify()
}

// OnNewSuggestionResult implements mux.Receiver
func (a *asyncMux) OnNewSuggestionResult(s domain.SourceIdentifier, result domain.SuggestionResult) {
	queryAfterZero := false
	if src, ok := a.lookup(s); ok {
		queryAfterZero = src.QueryAfterZeroResults()
	}
	a.cache.ReportSourceResult(a.query, s, result, queryAfterZero)
	a.backer.AddSourceResults(s, result, time.Now())
	a.notify()
}

// RefreshShortcut implements refresh.Receiver
func (a *asyncMux) RefreshShortcut(src domain.SourceIdentifier, shortcutID string, refreshed *domain.Suggestion) {
	icon2 := sessioncache.NoIcon
	if refreshed != nil {
		icon2 = refreshed.Icon2
	}
	a.cache.MarkRefreshed(src, shortcutID, icon2)
	a.backer.RefreshShortcut(src, shortcutID, refreshed)
	a.notify()
}

// sendOffShortcutRefreshers starts validating the shortcuts that need
// refreshing this session
func (a *asyncMux) sendOffShortcutRefreshers(shortcuts []domain.Shortcut, maxResultsToDisplay int) {
	if len(shortcuts) == 0 {
		return
	}
	a.refreshDispatch = a.refr.RefreshAll(a.ctx, shortcuts, maxResultsToDisplay, a.lookup, a)
}

// sendOffPromotedSourceQueries fans the query out to the promoted sources
func (a *asyncMux) sendOffPromotedSourceQueries(sources []source.Source) {
	if len(sources) == 0 {
		return
	}
	a.promotedDispatch = a.mux.Query(a.ctx, a.query, sources, a)
}

// sendOffAdditionalSourcesQueries fans the query out to the remaining
// (unpromoted) sources; a no-op after the first call
func (a *asyncMux) sendOffAdditionalSourcesQueries(sources []source.Source) {
	if a.sentAdditional || len(sources) == 0 {
		return
	}
	a.sentAdditional = true
	a.additionalDispatch = a.mux.Query(a.ctx, a.query, sources, a)
}

// cancel stops every in-flight query and refresh task. Idempotent, since
// each underlying dispatch's own Cancel is idempotent
func (a *asyncMux) cancel() {
	if a.promotedDispatch != nil {
		a.promotedDispatch.Cancel()
	}
	if a.additionalDispatch != nil {
		a.additionalDispatch.Cancel()
	}
	if a.refreshDispatch != nil {
		a.refreshDispatch.Cancel()
	}
}
