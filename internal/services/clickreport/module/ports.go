package module

import (
	"context"

	cdomain "suggestfed/internal/services/clickreport/domain"
	csvc "suggestfed/internal/services/clickreport/service"
)

type adaptClickPort struct{ svc csvc.Service }

// ReportClick exposes the gated click-report workflow to other modules
func (a adaptClickPort) ReportClick(ctx context.Context, in cdomain.ClickInput) (cdomain.ClickResult, error) {
	return a.svc.ReportClick(ctx, in)
}

// Ranking exposes the current source ranking to other modules
func (a adaptClickPort) Ranking(ctx context.Context) ([]cdomain.RankingRow, error) {
	return a.svc.Ranking(ctx)
}
