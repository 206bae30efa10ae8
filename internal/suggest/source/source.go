// Package source defines the capability contract that external suggestion
// sources implement. A source is a black box: the wiring around any real
// per-source integration lives outside this module (see internal/sourcereg)
package source

import (
	"context"

	"suggestfed/internal/suggest/domain"
)

// Source is the capability every suggestion provider exports
type Source interface {
	// Query asks the source for suggestions matching prefix. maxResults caps
	// the suggestions actually returned; queryLimit is an advisory total the
	// source may report back in SuggestionResult.QueryLimit
	Query(ctx context.Context, prefix string, maxResults, queryLimit int) (domain.SuggestionResult, error)

	// ValidateShortcut asks the owning source whether a previously persisted
	// shortcut is still valid. A nil *domain.Suggestion with a nil error means
	// "invalidate this shortcut". An error means the call itself failed
	ValidateShortcut(ctx context.Context, shortcut domain.Shortcut) (*domain.Suggestion, error)

	// Identifier returns the routing key this source is invoked under
	Identifier() domain.SourceIdentifier

	// IsWeb reports whether this is the web-search source; web sources get
	// the web results override limit and are eligible for pin-to-bottom
	IsWeb() bool

	// QueryAfterZeroResults reports whether the session should keep querying
	// this source even after it has returned zero results for a prefix
	QueryAfterZeroResults() bool

	// MinQueryLength is the minimum query length this source accepts; shorter
	// queries are not routed to it at all
	MinQueryLength() int
}
