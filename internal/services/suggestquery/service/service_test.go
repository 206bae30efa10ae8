package service

import (
	"context"
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
	"suggestfed/internal/suggest/sessionmgr"
	"suggestfed/internal/suggest/shortcuts"
	"suggestfed/internal/suggest/source"
	"suggestfed/internal/suggest/source/fake"
)

type fakeRepo struct{}

func (r *fakeRepo) GetShortcutsForQuery(context.Context, string, time.Time) ([]domain.Shortcut, error) {
	return nil, nil
}
func (r *fakeRepo) ReportStats(context.Context, domain.SessionStats, time.Time) {}
func (r *fakeRepo) GetSourceRanking(context.Context, int64, int64) ([]domain.SourceStat, error) {
	return nil, nil
}
func (r *fakeRepo) RefreshShortcut(context.Context, domain.SourceIdentifier, string, *domain.Suggestion) {
}

type staticProvider struct{ sources []source.Source }

func (p staticProvider) All() []source.Source { return p.sources }

func newTestSvc(t *testing.T, sources []source.Source) (*Svc, func()) {
	t.Helper()
	e := exec.NewPerTagExecutor(4, rate.Limit(0))
	d := exec.NewDelayedExecutor()
	m := mux.New(e, d, mux.Config{MaxResultsPerSource: 10, WebResultsOverrideLimit: 10, SourceTimeoutMs: 2000})
	repo := &fakeRepo{}
	var repository shortcuts.Repository = repo
	r := refresh.New(2, repository, *logger.Get())

	mgr := sessionmgr.New(
		staticProvider{sources: sources},
		repository,
		m,
		r,
		d,
		clicklog.NewLoggingSink(*logger.Get()),
		sessionmgr.Config{NumPromotedSources: len(sources), Trusted: func(domain.SourceIdentifier) bool { return true }},
		session.Config{
			NumPromotedSources:  len(sources),
			MaxPromotedSlots:    len(sources),
			PromotedDeadlineMs:  50,
			SourceTimeoutMs:     2000,
			NotifyWindowMs:      10,
			MaxRefreshResults:   10,
			RefreshConcurrency:  2,
			MaxResultsPerSource: 10,
			WebResultsOverride:  10,
		},
		nil, nil,
		*logger.Get(),
	)
	return New(mgr, *logger.Get()), d.Close
}

func TestSvc_SnapshotReturnsSourceResults(t *testing.T) {
	src := fake.New(domain.SourceIdentifier{Package: "pkg", Class: "A"})
	src.SetResult("ab", domain.OKResult([]domain.Suggestion{
		domain.NewBuilder(src.ID).Title("hit").Action("VIEW").Data("1").Build(),
	}, 1, 10))

	svc, closeExec := newTestSvc(t, []source.Source{src})
	defer closeExec()

	cur := svc.Sessions.Query(context.Background(), "ab")
	require.Eventually(t, func() bool {
		return len(cur.Rows()) > 0
	}, time.Second, 5*time.Millisecond)

	out, err := svc.Snapshot(context.Background(), "ab")
	require.NoError(t, err)
	require.Equal(t, "ab", out.Query)
	require.NotEmpty(t, out.Rows)
	require.Equal(t, "hit", out.Rows[0].Title)
}
