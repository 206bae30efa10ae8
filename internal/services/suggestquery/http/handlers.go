// Package http provides http transport for suggest-query
package http

import (
	stdhttp "net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"suggestfed/internal/modkit/httpkit"
	svc "suggestfed/internal/services/suggestquery/service"
)

// lowerQuery folds the query path segment the same way the teacher folds
// user-facing text elsewhere, instead of strings.ToLower
var lowerQuery = cases.Lower(language.Und)

// Register mounts the suggest-query endpoint on the given router
func Register(r httpkit.Router, s svc.Service) {
	h := &handlers{svc: s}
	r.Handle("/{query}", stdhttp.HandlerFunc(h.suggest))
}

type handlers struct{ svc svc.Service }

// suggest serves GET /suggest/{query}. A request carrying the websocket
// upgrade headers is handed to the service's Upgrade path; any other
// request gets one rendered JSON snapshot
//
// @Summary Query suggestions
// @Tags Suggest
// @Produce json
// @Param query path string true "query prefix"
// @Success 200 {object} domain.SuggestOutput "ok"
// @Router /suggest/{query} [get]
func (h *handlers) suggest(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	if r.Method != stdhttp.MethodGet {
		stdhttp.Error(w, "method not allowed", stdhttp.StatusMethodNotAllowed)
		return
	}
	query := lowerQuery.String(chi.URLParam(r, "query"))

	if isUpgrade(r) {
		if err := h.svc.Upgrade(w, r, query); err != nil {
			httpkit.RespondError(w, r, err)
		}
		return
	}

	out, err := h.svc.Snapshot(r.Context(), query)
	if err != nil {
		httpkit.RespondError(w, r, err)
		return
	}
	httpkit.RespondOK(w, r, out)
}

func isUpgrade(r *stdhttp.Request) bool {
	return strings.EqualFold(r.Header.Get("Connection"), "Upgrade") ||
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}
