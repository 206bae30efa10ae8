// Package http provides http transport for click-report
package http

import (
	stdhttp "net/http"

	"suggestfed/internal/modkit/httpkit"
	"suggestfed/internal/services/clickreport/domain"
	svc "suggestfed/internal/services/clickreport/service"
)

// Register mounts click-report endpoints on the given router
func Register(r httpkit.Router, s svc.Service) {
	h := &handlers{svc: s}

	httpkit.PostJSON[domain.ClickInput](r, "/", h.reportClick)
	httpkit.Get(r, "/ranking", h.ranking)
}

type handlers struct{ svc svc.Service }

// swagger:route POST /clicks Click reportClick
// @Summary Report a clicked suggestion
// @Tags Click
// @Accept json
// @Produce json
// @Param payload body domain.ClickInput true "click descriptor"
// @Success 200 {object} domain.ClickResult "ok"
// @Router /clicks [post]
func (h *handlers) reportClick(r *stdhttp.Request, in domain.ClickInput) (any, error) {
	return h.svc.ReportClick(r.Context(), in)
}

// swagger:route GET /clicks/ranking Click ranking
// @Summary Current source ranking
// @Tags Click
// @Produce json
// @Success 200 {array} domain.RankingRow "ok"
// @Router /clicks/ranking [get]
func (h *handlers) ranking(r *stdhttp.Request) (any, error) {
	return h.svc.Ranking(r.Context())
}
