package domain

import (
	"context"
	"net/http"
)

// ServicePort is consumed by the http layer
type ServicePort interface {
	// Snapshot runs (or continues) a query session and returns one JSON
	// snapshot, the HTTP analogue of the cursor's first POST_REFRESH
	Snapshot(ctx context.Context, query string) (SuggestOutput, error)

	// Upgrade takes over the connection as a websocket push channel for
	// query, streaming coalesced snapshot updates until the client or
	// server closes it
	Upgrade(w http.ResponseWriter, r *http.Request, query string) error
}
