package sessionmgr

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"suggestfed/internal/platform/logger"
	"suggestfed/internal/suggest/clicklog"
	"suggestfed/internal/suggest/domain"
	"suggestfed/internal/suggest/exec"
	"suggestfed/internal/suggest/mux"
	"suggestfed/internal/suggest/refresh"
	"suggestfed/internal/suggest/session"
	"suggestfed/internal/suggest/source"
	"suggestfed/internal/suggest/source/fake"
)

type stubRepo struct{ mu sync.Mutex }

func (r *stubRepo) GetShortcutsForQuery(context.Context, string, time.Time) ([]domain.Shortcut, error) {
	return nil, nil
}
func (r *stubRepo) ReportStats(context.Context, domain.SessionStats, time.Time) {}
func (r *stubRepo) GetSourceRanking(context.Context, int64, int64) ([]domain.SourceStat, error) {
	return nil, nil
}
func (r *stubRepo) RefreshShortcut(context.Context, domain.SourceIdentifier, string, *domain.Suggestion) {
}

type staticProvider struct{ sources []source.Source }

func (p staticProvider) All() []source.Source { return p.sources }

func newTestManager(t *testing.T, sources []source.Source) (*Manager, func()) {
	t.Helper()
	e := exec.NewPerTagExecutor(4, rate.Limit(0))
	d := exec.NewDelayedExecutor()
	m := mux.New(e, d, mux.Config{MaxResultsPerSource: 10, WebResultsOverrideLimit: 10, SourceTimeoutMs: 2000})
	repo := &stubRepo{}
	r := refresh.New(2, repo, *logger.Get())

	mgr := New(
		staticProvider{sources: sources},
		repo,
		m,
		r,
		d,
		clicklog.NewLoggingSink(*logger.Get()),
		Config{NumPromotedSources: len(sources), Trusted: func(domain.SourceIdentifier) bool { return true }},
		session.Config{
			NumPromotedSources:  len(sources),
			MaxPromotedSlots:    len(sources),
			PromotedDeadlineMs:  200,
			SourceTimeoutMs:     2000,
			NotifyWindowMs:      50,
			PrefillMs:           0,
			MaxRefreshResults:   10,
			RefreshConcurrency:  2,
			MaxResultsPerSource: 10,
			WebResultsOverride:  10,
		},
		nil, nil,
		*logger.Get(),
	)
	return mgr, d.Close
}

func TestManager_EmptyQueryStartsFreshSession(t *testing.T) {
	src := fake.New(domain.SourceIdentifier{Package: "pkg", Class: "A"})
	mgr, closeExec := newTestManager(t, []source.Source{src})
	defer closeExec()

	cur1 := mgr.Query(context.Background(), "ab")
	cur2 := mgr.Query(context.Background(), "")
	require.NotSame(t, cur1, cur2)
}

func TestManager_NonEmptyQueryReusesCurrentSession(t *testing.T) {
	src := fake.New(domain.SourceIdentifier{Package: "pkg", Class: "A"})
	mgr, closeExec := newTestManager(t, []source.Source{src})
	defer closeExec()

	mgr.Query(context.Background(), "a")
	mgr.Query(context.Background(), "ab")
	require.NotNil(t, mgr.current)
}
