// Package refresh implements the ShortcutRefresher: for each shortcut in a
// list, ask its owning source whether it is still valid and update the
// repository accordingly, bounded by a small worker pool
package refresh

import (
	"context"
	"sync"

	"suggestfed/internal/platform/logger"
	"suggestfed/internal/suggest/domain"
	"suggestfed/internal/suggest/source"
)

// Repository is the subset of the shortcut store the refresher writes to
type Repository interface {
	RefreshShortcut(ctx context.Context, src domain.SourceIdentifier, shortcutID string, refreshed *domain.Suggestion)
}

// SourceLookup resolves a shortcut's owning source, or reports it unknown
type SourceLookup func(id domain.SourceIdentifier) (source.Source, bool)

// Receiver is notified as each shortcut's refresh outcome lands, mirroring
// the backer's own refreshShortcut event so it can update its presentation state
type Receiver interface {
	RefreshShortcut(src domain.SourceIdentifier, shortcutID string, refreshed *domain.Suggestion)
}

// Refresher bounds concurrent validateShortcut calls to a small worker pool,
// separate from the per-source query executor
type Refresher struct {
	sem  chan struct{}
	repo Repository
	log  logger.Logger
}

// New builds a Refresher allowing at most concurrency validateShortcut calls
// in flight at once
func New(concurrency int, repo Repository, log logger.Logger) *Refresher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Refresher{sem: make(chan struct{}, concurrency), repo: repo, log: log}
}

// Dispatch is the in-flight handle for one RefreshAll call
type Dispatch struct {
	mu      sync.Mutex
	cancels map[int]context.CancelFunc
	closed  bool
}

// Cancel stops every shortcut refresh still in flight. Idempotent
func (d *Dispatch) Cancel() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	cancels := d.cancels
	d.cancels = map[int]context.CancelFunc{}
	d.mu.Unlock()

	for _, c := range cancels {
		c()
	}
}

// RefreshAll validates each shortcut in list (capped at maxResultsToDisplay)
// against its owning source. Unknown sources invalidate the shortcut
// immediately; otherwise the validation runs on the worker pool and the
// repository/receiver are updated on completion. Any validation error is
// logged and the shortcut is left intact
func (r *Refresher) RefreshAll(ctx context.Context, shortcuts []domain.Shortcut, maxResultsToDisplay int, lookup SourceLookup, recv Receiver) *Dispatch {
	d := &Dispatch{cancels: map[int]context.CancelFunc{}}

	list := shortcuts
	if len(list) > maxResultsToDisplay {
		list = list[:maxResultsToDisplay]
	}
	for i, sc := range list {
		r.refreshOne(ctx, i, sc, lookup, recv, d)
	}
	return d
}

func (r *Refresher) refreshOne(parent context.Context, idx int, sc domain.Shortcut, lookup SourceLookup, recv Receiver, d *Dispatch) {
	src, ok := lookup(sc.Source)
	if !ok {
		r.repo.RefreshShortcut(parent, sc.Source, sc.ShortcutID, nil)
		recv.RefreshShortcut(sc.Source, sc.ShortcutID, nil)
		return
	}

	taskCtx, cancel := context.WithCancel(parent)
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		cancel()
		return
	}
	d.cancels[idx] = cancel
	d.mu.Unlock()

	release := func() {
		d.mu.Lock()
		delete(d.cancels, idx)
		d.mu.Unlock()
	}

	go func() {
		select {
		case r.sem <- struct{}{}:
		case <-taskCtx.Done():
			release()
			return
		}
		defer func() { <-r.sem }()
		defer release()
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error().Interface("panic", rec).Str("shortcut_id", sc.ShortcutID).Msg("refresh: validateShortcut panicked")
			}
		}()

		refreshed, err := src.ValidateShortcut(taskCtx, sc)
		if err != nil {
			r.log.Warn().Err(err).Str("shortcut_id", sc.ShortcutID).Msg("refresh: validateShortcut failed, leaving shortcut intact")
			return
		}
		r.repo.RefreshShortcut(taskCtx, sc.Source, sc.ShortcutID, refreshed)
		recv.RefreshShortcut(sc.Source, sc.ShortcutID, refreshed)
	}()
}
