// Package service contains the suggest-query workflow: turning one HTTP
// request into a session query and either a single JSON snapshot or a
// standing websocket push channel
package service

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"suggestfed/internal/platform/logger"
	qdomain "suggestfed/internal/services/suggestquery/domain"
	"suggestfed/internal/suggest/cursor"
	"suggestfed/internal/suggest/sessionmgr"
)

// Service defines the suggest-query service contract
type Service interface {
	qdomain.ServicePort
}

// Svc implements the suggest-query service. It holds no repo of its own: it
// forwards every query to the session manager, which owns shortcuts and the
// live per-process session
type Svc struct {
	Sessions *sessionmgr.Manager
	Log      logger.Logger
	Upgrader websocket.Upgrader
}

// New constructs a suggest-query service
func New(sessions *sessionmgr.Manager, log logger.Logger) *Svc {
	if sessions == nil {
		panic("suggestquery.Service requires a non nil sessionmgr.Manager")
	}
	return &Svc{Sessions: sessions, Log: log}
}

// Snapshot runs the query and returns one rendered rows snapshot, taken
// after one synchronous requery (via PostRefresh) so the caller sees
// shortcuts/cached data immediately rather than an empty first frame
func (s *Svc) Snapshot(ctx context.Context, query string) (qdomain.SuggestOutput, error) {
	cur := s.Sessions.Query(ctx, query)
	cur.PostRefresh(time.Now(), nil)
	return toOutput(cur), nil
}

// Upgrade takes over the connection as a websocket and pushes a fresh
// snapshot every time the cursor coalesces new results, until the peer or
// server closes it
func (s *Svc) Upgrade(w http.ResponseWriter, r *http.Request, query string) error {
	conn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	cur := s.Sessions.Query(r.Context(), query)
	defer cur.Close()

	push := func() {
		out := toOutput(cur)
		if err := conn.WriteJSON(out); err != nil {
			return
		}
	}
	// onMoreVisible runs synchronously inside the cursor's own lock, so it
	// must never call back into a cursor method; OnChange below (invoked
	// outside the lock) is what actually pushes frames to the client
	cur.PostRefresh(time.Now(), nil)
	push()
	cur.OnChange(push)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}

func toOutput(cur *cursor.Cursor) qdomain.SuggestOutput {
	rows := cur.Rows()
	out := make([]qdomain.SuggestionRow, len(rows))
	for i, r := range rows {
		out[i] = qdomain.SuggestionRow{
			Position:        r.Position,
			Title:           r.Title,
			Description:     r.Description,
			Icon1:           r.Icon1,
			Icon2:           r.Icon2,
			Action:          r.Action,
			Data:            r.Data,
			Query:           r.Query,
			ExtraData:       r.ExtraData,
			ComponentName:   r.ComponentName,
			ShortcutID:      r.ShortcutID,
			BackgroundColor: r.BackgroundColor,
			ActionMsgCall:   r.ActionMsgCall,
		}
	}
	return qdomain.SuggestOutput{Query: cur.Query(), MoreIndex: cur.MoreIndex(), Rows: out}
}
