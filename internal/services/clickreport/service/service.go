// Package service contains the click-report workflow: spec §6's gated
// insert into the shortcut repository's click/impression log
package service

import (
	"context"
	"time"

	"suggestfed/internal/platform/logger"
	cdomain "suggestfed/internal/services/clickreport/domain"
	"suggestfed/internal/suggest/domain"
	"suggestfed/internal/suggest/shortcuts"
)

// Config holds the ranking knobs the gate is evaluated against
type Config struct {
	NumPromotedSources       int
	MinImpressionsForRanking int64
	MinClicksForRanking      int64
}

// Service defines the click-report service contract
type Service interface {
	cdomain.ServicePort
}

// Svc implements the click-report service. It has no repo of its own: it
// calls straight into the shortcut repository
type Svc struct {
	Repo shortcuts.Repository
	Cfg  Config
	Log  logger.Logger
}

// New constructs a click-report service
func New(repo shortcuts.Repository, cfg Config, log logger.Logger) *Svc {
	if repo == nil {
		panic("clickreport.Service requires a non nil shortcuts.Repository")
	}
	return &Svc{Repo: repo, Cfg: cfg, Log: log}
}

// ReportClick looks up the current source ranking and ignores the report
// unless the clicked source is in its top NumPromotedSources; suggestions
// pivoted into from non-promoted sources are never shortcutted
func (s *Svc) ReportClick(ctx context.Context, in cdomain.ClickInput) (cdomain.ClickResult, error) {
	src, err := domain.ParseSourceIdentifier(in.Source)
	if err != nil {
		return cdomain.ClickResult{}, err
	}

	ranking, err := s.Repo.GetSourceRanking(ctx, s.Cfg.MinImpressionsForRanking, s.Cfg.MinClicksForRanking)
	if err != nil {
		return cdomain.ClickResult{}, err
	}

	top := s.Cfg.NumPromotedSources
	if top > len(ranking) {
		top = len(ranking)
	}
	accepted := false
	for _, stat := range ranking[:top] {
		if stat.Source == src {
			accepted = true
			break
		}
	}
	if !accepted {
		return cdomain.ClickResult{Accepted: false}, nil
	}

	clicked := domain.NewBuilder(src).
		Title(in.Title).
		Description(in.Description).
		Icon1(in.Icon1).
		Icon2(in.Icon2).
		Action(in.Action).
		Data(in.Data).
		Query(in.Query).
		ExtraData(in.ExtraData).
		ComponentName(in.ComponentName).
		ActionMsgCall(in.ActionMsgCall).
		ShortcutID(in.ShortcutID).
		Build()

	s.Repo.ReportStats(ctx, domain.SessionStats{
		Query:   in.Query,
		Clicked: &clicked,
	}, time.Now())

	return cdomain.ClickResult{Accepted: true}, nil
}

// Ranking returns the current source ranking for the debug listing endpoint
func (s *Svc) Ranking(ctx context.Context) ([]cdomain.RankingRow, error) {
	ranking, err := s.Repo.GetSourceRanking(ctx, s.Cfg.MinImpressionsForRanking, s.Cfg.MinClicksForRanking)
	if err != nil {
		return nil, err
	}
	out := make([]cdomain.RankingRow, len(ranking))
	for i, stat := range ranking {
		out[i] = cdomain.RankingRow{
			Source:           stat.Source.String(),
			TotalClicks:      stat.TotalClicks,
			TotalImpressions: stat.TotalImpressions,
		}
	}
	return out, nil
}
