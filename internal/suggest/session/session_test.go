package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"suggestfed/internal/platform/logger"
	"suggestfed/internal/suggest/domain"
	"suggestfed/internal/suggest/exec"
	"suggestfed/internal/suggest/mux"
	"suggestfed/internal/suggest/refresh"
	"suggestfed/internal/suggest/source"
	"suggestfed/internal/suggest/source/fake"
)

type fakeRepo struct {
	mu        sync.Mutex
	shortcuts []domain.Shortcut
	reported  []domain.SessionStats
}

func (r *fakeRepo) GetShortcutsForQuery(_ context.Context, _ string, _ time.Time) ([]domain.Shortcut, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Shortcut(nil), r.shortcuts...), nil
}

func (r *fakeRepo) ReportStats(_ context.Context, stats domain.SessionStats, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reported = append(r.reported, stats)
}

func (r *fakeRepo) GetSourceRanking(_ context.Context, _, _ int64) ([]domain.SourceStat, error) {
	return nil, nil
}

func (r *fakeRepo) RefreshShortcut(context.Context, domain.SourceIdentifier, string, *domain.Suggestion) {
}

func (r *fakeRepo) reportedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reported)
}

func newTestSession(t *testing.T, sources []source.Source) (*Session, *fakeRepo, func()) {
	t.Helper()
	repo := &fakeRepo{}

	e := exec.NewPerTagExecutor(4, rate.Limit(0))
	d := exec.NewDelayedExecutor()
	m := mux.New(e, d, mux.Config{MaxResultsPerSource: 10, WebResultsOverrideLimit: 10, SourceTimeoutMs: 2000})
	r := refresh.New(2, repo, *logger.Get())

	var promotable []domain.SourceIdentifier
	for _, src := range sources {
		promotable = append(promotable, src.Identifier())
	}

	deps := Deps{
		Repo:         repo,
		Sources:      func() []source.Source { return sources },
		Promotable:   promotable,
		HasWebSource: false,
		Mux:          m,
		Refresher:    r,
		Delayed:      d,
		Log:          *logger.Get(),
	}
	cfg := Config{
		NumPromotedSources: len(promotable),
		MaxPromotedSlots:   4,
		PromotedDeadlineMs: 50,
		NotifyWindowMs:     10,
	}
	s := New(deps, cfg, func() {})
	return s, repo, d.Close
}

func TestSession_QueryReturnsCursorWithSourceResults(t *testing.T) {
	src := fake.New(domain.SourceIdentifier{Package: "pkg", Class: "A"})
	src.SetResult("ab", domain.OKResult([]domain.Suggestion{
		domain.NewBuilder(src.ID).Title("hit").Action("VIEW").Data("1").Build(),
	}, 1, 10))

	s, _, closeExec := newTestSession(t, []source.Source{src})
	defer closeExec()

	cur := s.Query(context.Background(), "ab")
	require.NotNil(t, cur)

	require.Eventually(t, func() bool {
		return len(cur.Rows()) > 0
	}, time.Second, 5*time.Millisecond)

	rows := cur.Rows()
	require.Equal(t, "hit", rows[0].Title)
}

func TestSession_ClosingLastCursorInvokesOnClose(t *testing.T) {
	src := fake.New(domain.SourceIdentifier{Package: "pkg", Class: "A"})
	src.SetResult("ab", domain.OKResult(nil, 0, 10))

	repo := &fakeRepo{}
	e := exec.NewPerTagExecutor(4, rate.Limit(0))
	d := exec.NewDelayedExecutor()
	defer d.Close()
	m := mux.New(e, d, mux.Config{MaxResultsPerSource: 10, WebResultsOverrideLimit: 10, SourceTimeoutMs: 2000})
	r := refresh.New(2, repo, *logger.Get())

	var mu sync.Mutex
	closedCalled := false
	deps := Deps{
		Repo:       repo,
		Sources:    func() []source.Source { return []source.Source{src} },
		Promotable: []domain.SourceIdentifier{src.Identifier()},
		Mux:        m,
		Refresher:  r,
		Delayed:    d,
		Log:        *logger.Get(),
	}
	cfg := Config{NumPromotedSources: 1, MaxPromotedSlots: 4, PromotedDeadlineMs: 20, NotifyWindowMs: 5}
	s := New(deps, cfg, func() {
		mu.Lock()
		closedCalled = true
		mu.Unlock()
	})

	cur := s.Query(context.Background(), "ab")
	cur.Close()

	mu.Lock()
	got := closedCalled
	mu.Unlock()
	require.True(t, got)
}

func TestSession_OnItemClickedReportsStats(t *testing.T) {
	src := fake.New(domain.SourceIdentifier{Package: "pkg", Class: "A"})
	sug := domain.NewBuilder(src.ID).Title("hit").Action("VIEW").Data("1").ShortcutID("sc-1").Build()
	src.SetResult("ab", domain.OKResult([]domain.Suggestion{sug}, 1, 10))

	s, repo, closeExec := newTestSession(t, []source.Source{src})
	defer closeExec()

	cur := s.Query(context.Background(), "ab")
	require.Eventually(t, func() bool { return len(cur.Rows()) > 0 }, time.Second, 5*time.Millisecond)

	target := cur.Click(time.Now(), 0, 0, "", "")
	require.False(t, target.ExpandedMore)
	require.Eventually(t, func() bool { return repo.reportedCount() > 0 }, time.Second, 5*time.Millisecond)
}

func TestSession_OnItemClickedReportsImpressionsForEveryDisplayedRow(t *testing.T) {
	srcA := fake.New(domain.SourceIdentifier{Package: "pkg", Class: "A"})
	sugA := domain.NewBuilder(srcA.ID).Title("a-hit").Action("VIEW").Data("1").ShortcutID("sc-a").Build()
	srcA.SetResult("ab", domain.OKResult([]domain.Suggestion{sugA}, 1, 10))

	srcB := fake.New(domain.SourceIdentifier{Package: "pkg", Class: "B"})
	sugB := domain.NewBuilder(srcB.ID).Title("b-hit").Action("VIEW").Data("2").ShortcutID("sc-b").Build()
	srcB.SetResult("ab", domain.OKResult([]domain.Suggestion{sugB}, 1, 10))

	s, repo, closeExec := newTestSession(t, []source.Source{srcA, srcB})
	defer closeExec()

	cur := s.Query(context.Background(), "ab")
	require.Eventually(t, func() bool { return len(cur.Rows()) >= 2 }, time.Second, 5*time.Millisecond)

	// click row 0 but report both rows 0 and 1 as having been displayed
	cur.Click(time.Now(), 0, 1, "", "")
	require.Eventually(t, func() bool { return repo.reportedCount() > 0 }, time.Second, 5*time.Millisecond)

	stats := repo.reported[len(repo.reported)-1]
	require.Len(t, stats.SourceImpressions, 2, "a row shown but not clicked still counts as an impression")
}

func TestSession_NegativeClickPositionReportsNoClick(t *testing.T) {
	src := fake.New(domain.SourceIdentifier{Package: "pkg", Class: "A"})
	src.SetResult("ab", domain.OKResult(nil, 0, 10))

	s, repo, closeExec := newTestSession(t, []source.Source{src})
	defer closeExec()

	cur := s.Query(context.Background(), "ab")
	require.Eventually(t, func() bool { return true }, 20*time.Millisecond, 5*time.Millisecond)

	cur.Click(time.Now(), -1, -1, "", "")
	require.Eventually(t, func() bool { return repo.reportedCount() > 0 }, time.Second, 5*time.Millisecond)

	stats := repo.reported[len(repo.reported)-1]
	require.Nil(t, stats.Clicked)
}
