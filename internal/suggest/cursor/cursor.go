// Package cursor implements the snapshot-streaming protocol a session hands
// to its UI: a private copy of the backer's displayed rows, refreshed and
// coalesced on backer change notifications, plus an out-of-band request/
// response surface for clicks, searches, and "more results" expansion
package cursor

import (
	"sync"
	"time"

	"suggestfed/internal/suggest/domain"
	"suggestfed/internal/suggest/exec"
)

// Snapshotter is the subset of the backer the cursor depends on
type Snapshotter interface {
	Snapshot(now time.Time, expandMore bool) ([]domain.Suggestion, int)
}

// Listener receives the cursor's forwarded user-interaction events, owned by
// the session that created the cursor
type Listener interface {
	OnClose()
	// OnItemClicked reports a click at pos (maxDisplayedPos is the highest
	// position the UI had rendered). row is nil if pos falls outside the
	// current snapshot or is the negative "none displayed" sentinel.
	// displayed is every row from position 0 through maxDisplayedPos that
	// was actually in the snapshot, for impression accounting
	OnItemClicked(pos, maxDisplayedPos int, row *domain.Suggestion, displayed []domain.Suggestion, actionKey, actionMsg string)
	// OnSearch reports a search; displayed is the same shown-rows slice as
	// OnItemClicked, for the same impression accounting
	OnSearch(query string, maxDisplayedPos int, displayed []domain.Suggestion)
	OnMoreVisible()
}

// Row is one columnar row of the streaming protocol; Position is the
// integer "_id" column
type Row struct {
	Position       int
	Title           string
	Description     string
	Icon1           string
	Icon2           string
	Action          string
	Data            string
	Query           string
	ExtraData       string
	ComponentName   string
	ShortcutID      string
	BackgroundColor string
	ActionMsgCall   string
}

func rowFromSuggestion(pos int, s domain.Suggestion) Row {
	return Row{
		Position:        pos,
		Title:           s.Title,
		Description:     s.Description,
		Icon1:           s.Icon1,
		Icon2:           s.Icon2,
		Action:          s.Action,
		Data:            s.Data,
		Query:           s.Query,
		ExtraData:       s.ExtraData,
		ComponentName:   s.ComponentName,
		ShortcutID:      s.ShortcutID,
		BackgroundColor: s.BackgroundColor,
		ActionMsgCall:   s.ActionMsgCall,
	}
}

// Cursor holds a private copy of the backer's suggestions, refreshed on
// requery and streamed to the UI. Internally locked; one lock per instance
type Cursor struct {
	mu sync.Mutex

	backer  Snapshotter
	delayed *exec.DelayedExecutor
	query   string

	notifyWindow time.Duration
	pending      exec.Handle
	notifyFired  bool

	listener Listener

	rows       []domain.Suggestion
	moreIndex  int
	expandMore bool
	closed     bool

	onMoreFirstVisible func(index int)
	moreWasVisible     bool

	onChange func()
}

// New builds a Cursor for query, backed by backer and using delayed for
// coalesced change notifications (one per notifyWindow)
func New(backer Snapshotter, delayed *exec.DelayedExecutor, query string, notifyWindow time.Duration) *Cursor {
	return &Cursor{backer: backer, delayed: delayed, query: query, notifyWindow: notifyWindow}
}

// Attach wires the listener that receives forwarded user-interaction events.
// Must be called before the cursor is used
func (c *Cursor) Attach(listener Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = listener
}

// OnChange registers a callback invoked (off the caller's goroutine, from
// the DelayedExecutor's event loop) whenever a coalesced requery completes.
// The UI layer uses this to know when to re-read Rows()
func (c *Cursor) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Query returns the query this cursor was created for
func (c *Cursor) Query() string {
	return c.query
}

// Prefill seeds the cursor's rows from a previous cursor's snapshot, ahead
// of any requery. Used when the new cursor's own pre-fill set is empty
func (c *Cursor) Prefill(rows []domain.Suggestion, moreIndex int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = append([]domain.Suggestion(nil), rows...)
	c.moreIndex = moreIndex
}

// Suggestions returns the current snapshot's raw suggestions, for seeding a
// successor cursor's Prefill
func (c *Cursor) Suggestions() []domain.Suggestion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Suggestion(nil), c.rows...)
}

// Rows returns the current snapshot as columnar rows
func (c *Cursor) Rows() []Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Row, len(c.rows))
	for i, s := range c.rows {
		out[i] = rowFromSuggestion(i, s)
	}
	return out
}

// MoreIndex returns the index of the "more results" row in the current
// snapshot, or len(rows) if absent
func (c *Cursor) MoreIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moreIndex
}

// displayedRowsLocked returns a copy of the rows the UI had actually
// rendered, bounded by maxDisplayedPos (inclusive) and the current snapshot
// length. Must be called with c.mu held
func (c *Cursor) displayedRowsLocked(maxDisplayedPos int) []domain.Suggestion {
	if maxDisplayedPos < 0 {
		return nil
	}
	n := maxDisplayedPos + 1
	if n > len(c.rows) {
		n = len(c.rows)
	}
	return append([]domain.Suggestion(nil), c.rows[:n]...)
}

func (c *Cursor) requeryLocked(now time.Time) {
	rows, moreIdx := c.backer.Snapshot(now, c.expandMore)
	c.rows = rows
	c.moreIndex = moreIdx

	if moreIdx < len(rows) && !c.moreWasVisible {
		c.moreWasVisible = true
		if cb := c.onMoreFirstVisible; cb != nil {
			c.onMoreFirstVisible = nil
			cb(moreIdx)
		}
	}
}

// OnNewResults is called from the backer off-thread whenever new source
// results or a refreshed shortcut may have changed the snapshot. Coalesces:
// at most one requery fires per notifyWindow
func (c *Cursor) OnNewResults(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.notifyFired {
		return
	}
	c.notifyFired = true
	c.pending = c.delayed.PostAtTime(func() {
		c.mu.Lock()
		c.notifyFired = false
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.requeryLocked(time.Now())
		onChange := c.onChange
		c.mu.Unlock()
		if onChange != nil {
			onChange()
		}
	}, now.Add(c.notifyWindow))
}

// PostRefresh reports whether the backer still has promoted sources in
// flight (more results may still arrive) and, if the "more" row is not yet
// visible, registers onMoreVisible to fire once it is
func (c *Cursor) PostRefresh(now time.Time, onMoreVisible func(index int)) (pending bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requeryLocked(now)
	if c.moreIndex >= len(c.rows) {
		c.onMoreFirstVisible = onMoreVisible
		return true
	}
	return false
}

// ClickTarget describes what the UI should do after a CLICK call
type ClickTarget struct {
	// ExpandedMore is true when the click toggled "more results" expansion;
	// the UI should re-read Rows() and select MoreIndex
	ExpandedMore bool
}

// Click handles a CLICK out-of-band call. Clicking the "more" row toggles
// expansion and requeries; any other position is forwarded to the listener.
// A negative pos is the "no row displayed" sentinel and is forwarded as such
func (c *Cursor) Click(now time.Time, pos, maxDisplayedPos int, actionKey, actionMsg string) ClickTarget {
	c.mu.Lock()

	if pos >= 0 && pos == c.moreIndex && pos < len(c.rows) {
		c.expandMore = true
		c.requeryLocked(now)
		c.mu.Unlock()
		return ClickTarget{ExpandedMore: true}
	}

	var row *domain.Suggestion
	if pos >= 0 && pos < len(c.rows) {
		r := c.rows[pos]
		row = &r
	}
	displayed := c.displayedRowsLocked(maxDisplayedPos)
	listener := c.listener
	c.mu.Unlock()

	if listener != nil {
		listener.OnItemClicked(pos, maxDisplayedPos, row, displayed, actionKey, actionMsg)
	}
	return ClickTarget{}
}

// ThreshHit reports that the "more" row became visible to the UI for the
// first time; forwarded to the listener
func (c *Cursor) ThreshHit() {
	c.mu.Lock()
	listener := c.listener
	c.mu.Unlock()
	if listener != nil {
		listener.OnMoreVisible()
	}
}

// Search handles a SEARCH out-of-band call, forwarded to the listener
func (c *Cursor) Search(query string, maxDisplayedPos int) {
	c.mu.Lock()
	displayed := c.displayedRowsLocked(maxDisplayedPos)
	listener := c.listener
	c.mu.Unlock()
	if listener != nil {
		listener.OnSearch(query, maxDisplayedPos, displayed)
	}
}

// Close handles a CLOSE out-of-band call: cancels any pending coalesced
// notify and forwards to the listener. Idempotent
func (c *Cursor) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.pending.Cancel()
	listener := c.listener
	c.mu.Unlock()

	if listener != nil {
		listener.OnClose()
	}
}
