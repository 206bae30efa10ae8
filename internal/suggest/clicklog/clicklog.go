// Package clicklog defines the click-log egress boundary: a narrow
// interface the session forwards click/search events to, for an external
// analytics collaborator to consume. No collector is wired in this module
package clicklog

import (
	"context"

	"suggestfed/internal/platform/logger"
	"suggestfed/internal/suggest/domain"
)

// Entry is one click or search event, mirroring the SessionStats the
// shortcut repository also consumes
type Entry struct {
	Query             string
	Clicked           *domain.Suggestion
	SourceImpressions []domain.SourceIdentifier
	TimeMillis        int64
}

// Sink receives click-log entries. Implementations must not block the
// caller meaningfully; the session treats this as fire-and-forget
type Sink interface {
	Log(ctx context.Context, entry Entry)
}

// LoggingSink is the stub Sink: it records entries via structured logging
// instead of shipping them to an external analytics system
type LoggingSink struct {
	log logger.Logger
}

// NewLoggingSink builds a Sink that logs every entry at info level
func NewLoggingSink(log logger.Logger) *LoggingSink {
	return &LoggingSink{log: log}
}

// Log implements Sink
func (s *LoggingSink) Log(_ context.Context, entry Entry) {
	ev := s.log.Info().Str("query", entry.Query).Int("impressions", len(entry.SourceImpressions))
	if entry.Clicked != nil {
		ev = ev.Str("clicked_source", entry.Clicked.Source().String()).Str("clicked_title", entry.Clicked.Title)
	}
	ev.Msg("clicklog: entry")
}
