package sessionmgr

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"suggestfed/internal/platform/logger"
	"suggestfed/internal/suggest/clicklog"
	"suggestfed/internal/suggest/cursor"
	"suggestfed/internal/suggest/domain"
	"suggestfed/internal/suggest/exec"
	"suggestfed/internal/suggest/mux"
	"suggestfed/internal/suggest/refresh"
	"suggestfed/internal/suggest/session"
	"suggestfed/internal/suggest/shortcuts"
	"suggestfed/internal/suggest/source"
)

// SourceProvider is the subset of the source registry the manager depends
// on: the full enabled-source list it partitions on every new session
type SourceProvider interface {
	All() []source.Source
}

// Config holds the manager's per-process ranking/partitioning knobs
type Config struct {
	NumPromotedSources       int
	MinImpressionsForRanking int64
	MinClicksForRanking      int64
	WebSource                domain.SourceIdentifier
	HasWebSource             bool
	Trusted                  TrustLookup
}

// Manager is the single, process-wide entry point the UI calls: it owns
// "the current session" and replaces it whenever a query begins a fresh
// typing session (spec.md §4.9)
type Manager struct {
	mu      sync.Mutex
	current *session.Session

	registry  SourceProvider
	repo      shortcuts.Repository
	cfg       Config
	sessCfg   session.Config
	goToWeb   session.SuggestionFactory
	searchWeb session.SuggestionFactory

	mux       *mux.QueryMultiplexer
	refresher *refresh.Refresher
	delayed   *exec.DelayedExecutor
	clickSink clicklog.Sink
	log       logger.Logger
}

// New builds a Manager. goToWebsite/searchTheWeb may be nil
func New(
	registry SourceProvider,
	repo shortcuts.Repository,
	m *mux.QueryMultiplexer,
	r *refresh.Refresher,
	d *exec.DelayedExecutor,
	clickSink clicklog.Sink,
	cfg Config,
	sessCfg session.Config,
	goToWebsite, searchTheWeb session.SuggestionFactory,
	log logger.Logger,
) *Manager {
	return &Manager{
		registry:  registry,
		repo:      repo,
		mux:       m,
		refresher: r,
		delayed:   d,
		clickSink: clickSink,
		cfg:       cfg,
		sessCfg:   sessCfg,
		goToWeb:   goToWebsite,
		searchWeb: searchTheWeb,
		log:       log,
	}
}

// Query forwards q to the current session, creating one first if there is
// none yet or q is empty (the UI cleared the search box, beginning a fresh
// typing session)
func (m *Manager) Query(ctx context.Context, q string) *cursor.Cursor {
	m.mu.Lock()
	if m.current == nil || q == "" {
		m.current = m.newSessionLocked(ctx)
	}
	s := m.current
	m.mu.Unlock()

	return s.Query(ctx, q)
}

func (m *Manager) newSessionLocked(ctx context.Context) *session.Session {
	sources := m.registry.All()
	var enabled []domain.SourceIdentifier
	for _, src := range sources {
		enabled = append(enabled, src.Identifier())
	}

	ranking, err := m.repo.GetSourceRanking(ctx, m.cfg.MinImpressionsForRanking, m.cfg.MinClicksForRanking)
	if err != nil {
		m.log.Error().Err(err).Msg("sessionmgr: GetSourceRanking failed, ordering with an empty ranking")
		ranking = nil
	}
	var rankedIDs []domain.SourceIdentifier
	for _, stat := range ranking {
		rankedIDs = append(rankedIDs, stat.Source)
	}

	promotable, unpromotable := OrderSources(enabled, m.cfg.WebSource, m.cfg.HasWebSource, rankedIDs, m.cfg.NumPromotedSources, m.cfg.Trusted)

	sessionLog := m.log.With().Str("session_id", uuid.NewString()).Logger()
	sessionLog.Info().Int("promoted", len(promotable)).Int("unpromoted", len(unpromotable)).Msg("sessionmgr: starting session")

	deps := session.Deps{
		Repo:         m.repo,
		Sources:      func() []source.Source { return sources },
		Promotable:   promotable,
		Unpromotable: unpromotable,
		WebSource:    m.cfg.WebSource,
		HasWebSource: m.cfg.HasWebSource,
		GoToWebsite:  m.goToWeb,
		SearchTheWeb: m.searchWeb,
		Mux:          m.mux,
		Refresher:    m.refresher,
		Delayed:      m.delayed,
		ClickSink:    m.clickSink,
		Log:          sessionLog,
	}

	return session.New(deps, m.sessCfg, func() {})
}
