// Package backer implements the SourceSuggestionBacker: the presentation
// state machine that assembles a single session+query's suggestion snapshot
// from shortcuts, promoted source results, and the "more results" expander
package backer

import (
	"sync"
	"time"

	"suggestfed/internal/suggest/domain"
)

// Suggestion formats synthesized by the backer itself (not supplied by a source)
const (
	FormatMoreResults = "builtin/more_results"
	FormatCorpusEntry = "builtin/corpus_entry"
)

// BuildMoreSuggestion returns the factory "more results" expander row
func BuildMoreSuggestion() domain.Suggestion {
	return domain.NewBuilder(domain.SourceIdentifier{}).Format(FormatMoreResults).Action("more").Build()
}

// BuildCorpusSuggestion returns a selector row for an unexpanded source in the "more" area
func BuildCorpusSuggestion(src domain.SourceIdentifier) domain.Suggestion {
	return domain.NewBuilder(domain.SourceIdentifier{}).Format(FormatCorpusEntry).Action("corpus").Data(src.String()).Build()
}

// MoreStatus is a source's reporting state as shown in the "more" area
type MoreStatus int

const (
	NotStarted MoreStatus = iota
	InProgress
	Finished
)

func (s MoreStatus) String() string {
	switch s {
	case InProgress:
		return "IN_PROGRESS"
	case Finished:
		return "FINISHED"
	default:
		return "NOT_STARTED"
	}
}

// MoreSource is one row of the "more results" corpus summary
type MoreSource struct {
	Source     domain.SourceIdentifier
	Status     MoreStatus
	NumResults int
	QueryLimit int
}

// Config holds the backer's per-query numeric knobs
type Config struct {
	MaxPromotedSlots   int
	PromotedDeadlineMs int64
}

type sourceState struct {
	pending                bool
	reported               bool
	reportedBeforeDeadline bool
	result                 domain.SuggestionResult
}

// Backer holds the current snapshot state for one session+query
type Backer struct {
	mu sync.Mutex

	shortcuts  []domain.Shortcut
	allSources []domain.SourceIdentifier

	promoted      map[string]bool
	promotedOrder []domain.SourceIdentifier

	hasWebSource bool
	webSource    domain.SourceIdentifier

	goToWebsite  *domain.Suggestion
	searchTheWeb *domain.Suggestion

	cfg        Config
	queryStart time.Time

	states map[string]*sourceState
	dedupe map[string]bool

	pinBottom       *domain.Suggestion
	pinBottomSource domain.SourceIdentifier

	viewedNonPromoted map[string]bool
}

// New builds a Backer seeded with shortcuts and the sources to query this round.
// promoted names the subset whose results get round-robin-mixed above the fold;
// webSource (if ok) identifies the source eligible to emit a pin-to-bottom row
func New(
	shortcuts []domain.Shortcut,
	allSources []domain.SourceIdentifier,
	promoted []domain.SourceIdentifier,
	webSource domain.SourceIdentifier,
	hasWebSource bool,
	goToWebsite, searchTheWeb *domain.Suggestion,
	cfg Config,
	queryStart time.Time,
) *Backer {
	b := &Backer{
		shortcuts:         append([]domain.Shortcut(nil), shortcuts...),
		allSources:        append([]domain.SourceIdentifier(nil), allSources...),
		promoted:          map[string]bool{},
		promotedOrder:     append([]domain.SourceIdentifier(nil), promoted...),
		hasWebSource:      hasWebSource,
		webSource:         webSource,
		goToWebsite:       goToWebsite,
		searchTheWeb:      searchTheWeb,
		cfg:               cfg,
		queryStart:        queryStart,
		states:            map[string]*sourceState{},
		dedupe:            map[string]bool{},
		viewedNonPromoted: map[string]bool{},
	}
	for _, src := range promoted {
		b.promoted[src.String()] = true
	}
	for _, sc := range b.shortcuts {
		b.dedupe[sc.Action+"#"+sc.Data+"#"+sc.Query] = true
	}
	return b
}

func (b *Backer) stateFor(src domain.SourceIdentifier) *sourceState {
	key := src.String()
	st, ok := b.states[key]
	if !ok {
		st = &sourceState{}
		b.states[key] = st
	}
	return st
}

// ReportSourceStarted records that src's query task began executing. Returns
// true iff src is not promoted, so non-promoted corpora can show a spinner
// while the already-displayed list stays put
func (b *Backer) ReportSourceStarted(src domain.SourceIdentifier) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stateFor(src).pending = true
	return !b.promoted[src.String()]
}

// AddSourceResults stores src's result, de-duplicating against suggestions
// already seen (shortcuts seed the de-dup set) and extracting a pin-to-bottom
// suggestion when result comes from the web source and ends in one.
// The stored suggestion list is a fresh copy; the caller's result is untouched
func (b *Backer) AddSourceResults(src domain.SourceIdentifier, result domain.SuggestionResult, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.stateFor(src)
	st.pending = false
	st.reported = true
	st.reportedBeforeDeadline = now.Sub(b.queryStart) < time.Duration(b.cfg.PromotedDeadlineMs)*time.Millisecond

	suggestions := result.Suggestions
	if b.hasWebSource && src == b.webSource && len(suggestions) > 0 && suggestions[len(suggestions)-1].PinToBottom {
		pin := suggestions[len(suggestions)-1]
		b.pinBottom = &pin
		b.pinBottomSource = src
		rest := make([]domain.Suggestion, len(suggestions)-1)
		copy(rest, suggestions[:len(suggestions)-1])
		suggestions = rest
	}

	deduped := make([]domain.Suggestion, 0, len(suggestions))
	for _, s := range suggestions {
		key := s.DedupeKey()
		if b.dedupe[key] {
			continue
		}
		b.dedupe[key] = true
		deduped = append(deduped, s)
	}
	result.Suggestions = deduped
	st.result = result
}

// RefreshShortcut finds the matching shortcut by (source, shortcutID). A nil
// refreshed clears the spinner icon if one was showing (reporting a UI
// change) or reports no change; a non-nil refreshed replaces the row in place
func (b *Backer) RefreshShortcut(src domain.SourceIdentifier, shortcutID string, refreshed *domain.Suggestion) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.shortcuts {
		sc := &b.shortcuts[i]
		if sc.Source != src || sc.ShortcutID != shortcutID {
			continue
		}
		if refreshed == nil {
			if sc.SpinnerWhileRefreshing {
				sc.Icon2 = ""
				return true
			}
			return false
		}
		*sc = domain.ShortcutFromSuggestion(*refreshed)
		return true
	}
	return false
}

type sourceIter struct {
	src       domain.SourceIdentifier
	remaining []domain.Suggestion
	displayed int
}

// roundRobinFill draws up to chunkSize items per iterator per round, looping
// until slots run out or no iterator can contribute
func roundRobinFill(out *[]domain.Suggestion, iters []*sourceIter, slotsRemaining *int, chunkSize int) {
	for *slotsRemaining > 0 {
		progressed := false
		for _, it := range iters {
			if *slotsRemaining <= 0 {
				break
			}
			if len(it.remaining) == 0 {
				continue
			}
			take := chunkSize
			if take > len(it.remaining) {
				take = len(it.remaining)
			}
			if take > *slotsRemaining {
				take = *slotsRemaining
			}
			*out = append(*out, it.remaining[:take]...)
			it.remaining = it.remaining[take:]
			it.displayed += take
			*slotsRemaining -= take
			progressed = true
		}
		if !progressed {
			break
		}
	}
}

func shortcutsToSuggestions(shortcuts []domain.Shortcut) []domain.Suggestion {
	out := make([]domain.Suggestion, len(shortcuts))
	for i, sc := range shortcuts {
		out[i] = sc.ToSuggestion()
	}
	return out
}

// Snapshot rebuilds the full displayed list from the current backer state and
// returns it along with the index of the "more results" row (len(out) if absent)
func (b *Backer) Snapshot(now time.Time, expandMore bool) ([]domain.Suggestion, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []domain.Suggestion
	if b.goToWebsite != nil {
		out = append(out, *b.goToWebsite)
	}
	out = append(out, shortcutsToSuggestions(b.shortcuts)...)

	promotedSlotsAvailable := b.cfg.MaxPromotedSlots - len(b.shortcuts)
	if promotedSlotsAvailable < 0 {
		promotedSlotsAvailable = 0
	}

	iters := map[string]*sourceIter{}
	var step4 []*sourceIter
	for _, src := range b.promotedOrder {
		st := b.states[src.String()]
		if st == nil || !st.reported || !st.reportedBeforeDeadline || len(st.result.Suggestions) == 0 {
			continue
		}
		it := &sourceIter{src: src, remaining: append([]domain.Suggestion(nil), st.result.Suggestions...)}
		iters[src.String()] = it
		step4 = append(step4, it)
	}

	slotsRemaining := promotedSlotsAvailable
	if len(step4) > 0 {
		chunkSize := promotedSlotsAvailable / len(step4)
		if chunkSize < 1 {
			chunkSize = 1
		}
		roundRobinFill(&out, step4, &slotsRemaining, chunkSize)
	}

	pastDeadline := now.Sub(b.queryStart) >= time.Duration(b.cfg.PromotedDeadlineMs)*time.Millisecond
	responded := 0
	for _, src := range b.promotedOrder {
		if st := b.states[src.String()]; st != nil && st.reported {
			responded++
		}
	}
	allResponded := responded >= len(b.promotedOrder)
	showingMore := (pastDeadline || allResponded) && len(b.allSources) > 0

	moreIndex := len(out)

	if showingMore {
		step6 := append([]*sourceIter(nil), step4...)
		for _, src := range b.promotedOrder {
			if _, ok := iters[src.String()]; ok {
				continue
			}
			st := b.states[src.String()]
			if st == nil || !st.reported || len(st.result.Suggestions) == 0 {
				continue
			}
			it := &sourceIter{src: src, remaining: append([]domain.Suggestion(nil), st.result.Suggestions...)}
			iters[src.String()] = it
			step6 = append(step6, it)
		}
		var nonempty []*sourceIter
		for _, it := range step6 {
			if len(it.remaining) > 0 {
				nonempty = append(nonempty, it)
			}
		}
		if len(nonempty) > 0 && slotsRemaining > 0 {
			newChunk := slotsRemaining / len(nonempty)
			if newChunk < 1 {
				newChunk = 1
			}
			roundRobinFill(&out, nonempty, &slotsRemaining, newChunk)
		}

		var moreSources []MoreSource
		for _, src := range b.allSources {
			key := src.String()
			st := b.states[key]
			promotedSrc := b.promoted[key]

			switch {
			case st == nil || (!st.pending && !st.reported):
				moreSources = append(moreSources, MoreSource{Source: src, Status: NotStarted})
			case st.pending && !st.reported:
				moreSources = append(moreSources, MoreSource{Source: src, Status: InProgress})
			case promotedSrc && st.reportedBeforeDeadline:
				total := len(st.result.Suggestions)
				displayed := 0
				if it := iters[key]; it != nil {
					displayed = it.displayed
				}
				if displayed >= total {
					continue
				}
				remCount := st.result.Count - displayed
				remLimit := st.result.QueryLimit - displayed
				if b.hasWebSource && src == b.webSource && b.pinBottom != nil {
					remCount--
					remLimit--
				}
				moreSources = append(moreSources, MoreSource{Source: src, Status: Finished, NumResults: remCount, QueryLimit: remLimit})
			default:
				moreSources = append(moreSources, MoreSource{
					Source: src, Status: Finished,
					NumResults: st.result.Count, QueryLimit: st.result.QueryLimit,
				})
			}
		}

		if b.searchTheWeb != nil {
			out = append(out, *b.searchTheWeb)
		}
		if b.pinBottom != nil {
			if st := b.states[b.pinBottomSource.String()]; st != nil && st.reportedBeforeDeadline {
				out = append(out, *b.pinBottom)
			}
		}

		visible := func(ms MoreSource) bool {
			return ms.NumResults > 0 || ms.Status != Finished || b.viewedNonPromoted[ms.Source.String()]
		}
		anyCorpusVisible := false
		for _, ms := range moreSources {
			if visible(ms) {
				anyCorpusVisible = true
				break
			}
		}

		moreIndex = len(out)
		if anyCorpusVisible {
			out = append(out, BuildMoreSuggestion())
			if expandMore {
				for _, ms := range moreSources {
					if visible(ms) {
						out = append(out, BuildCorpusSuggestion(ms.Source))
						b.viewedNonPromoted[ms.Source.String()] = true
					}
				}
			}
		}
	}

	return out, moreIndex
}
