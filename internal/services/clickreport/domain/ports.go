package domain

import "context"

// ServicePort is consumed by the http layer
type ServicePort interface {
	// ReportClick applies the click-report gating rule (§6: only accepted
	// when the clicked source is in the top numPromotedSources of the
	// current ranking) and, if accepted, forwards to the shortcut repository
	ReportClick(ctx context.Context, in ClickInput) (ClickResult, error)

	// Ranking returns the current source ranking, for the debug listing
	// endpoint supplementing the original's diagnostics surface
	Ranking(ctx context.Context) ([]RankingRow, error)
}
