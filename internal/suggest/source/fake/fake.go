// Package fake provides an in-memory source.Source double for tests across
// the suggest packages
package fake

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"suggestfed/internal/suggest/domain"
)

// Source is a configurable fake suggestion source
type Source struct {
	ID      domain.SourceIdentifier
	Web     bool
	AfterZero bool
	MinLen  int

	// Delay simulates work before Query returns
	Delay time.Duration

	mu      sync.Mutex
	results map[string]domain.SuggestionResult
	err     map[string]error

	validate func(ctx context.Context, sc domain.Shortcut) (*domain.Suggestion, error)

	calls int32
}

// New returns a fake source identified by id
func New(id domain.SourceIdentifier) *Source {
	return &Source{ID: id, results: map[string]domain.SuggestionResult{}, err: map[string]error{}}
}

// SetResult configures the result returned for an exact prefix
func (s *Source) SetResult(prefix string, res domain.SuggestionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[prefix] = res
}

// SetError configures an error returned for an exact prefix
func (s *Source) SetError(prefix string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err[prefix] = err
}

// SetValidator overrides ValidateShortcut behavior
func (s *Source) SetValidator(fn func(ctx context.Context, sc domain.Shortcut) (*domain.Suggestion, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validate = fn
}

// Calls returns how many times Query has been invoked
func (s *Source) Calls() int32 { return atomic.LoadInt32(&s.calls) }

// Query implements source.Source
func (s *Source) Query(ctx context.Context, prefix string, maxResults, queryLimit int) (domain.SuggestionResult, error) {
	atomic.AddInt32(&s.calls, 1)

	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return domain.CanceledResult(), ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.err[prefix]; ok {
		return domain.ErrorResult(), err
	}
	if res, ok := s.results[prefix]; ok {
		if len(res.Suggestions) > maxResults {
			res.Suggestions = res.Suggestions[:maxResults]
		}
		if res.QueryLimit == 0 {
			res.QueryLimit = queryLimit
		}
		return res, nil
	}
	return domain.OKResult(nil, 0, queryLimit), nil
}

// ValidateShortcut implements source.Source
func (s *Source) ValidateShortcut(ctx context.Context, sc domain.Shortcut) (*domain.Suggestion, error) {
	s.mu.Lock()
	fn := s.validate
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx, sc)
	}
	sug := sc.ToSuggestion()
	return &sug, nil
}

// Identifier implements source.Source
func (s *Source) Identifier() domain.SourceIdentifier { return s.ID }

// IsWeb implements source.Source
func (s *Source) IsWeb() bool { return s.Web }

// QueryAfterZeroResults implements source.Source
func (s *Source) QueryAfterZeroResults() bool { return s.AfterZero }

// MinQueryLength implements source.Source
func (s *Source) MinQueryLength() int { return s.MinLen }
