package module

import (
	"context"
	"net/http"

	qdomain "suggestfed/internal/services/suggestquery/domain"
	qsvc "suggestfed/internal/services/suggestquery/service"
)

type adaptSuggestPort struct{ svc qsvc.Service }

// Snapshot exposes the one-shot query to other modules
func (a adaptSuggestPort) Snapshot(ctx context.Context, query string) (qdomain.SuggestOutput, error) {
	return a.svc.Snapshot(ctx, query)
}

// Upgrade exposes the websocket push path to other modules
func (a adaptSuggestPort) Upgrade(w http.ResponseWriter, r *http.Request, query string) error {
	return a.svc.Upgrade(w, r, query)
}
