package domain

// Shortcut is the durable form of a Suggestion: the fields needed to relaunch
// it, keyed by IntentKey. ShortcutID == NeverShortcut is never persisted
type Shortcut struct {
	IntentKey              string
	Source                 SourceIdentifier
	Format                 string
	Title                  string
	Description            string
	Icon1                  string
	Icon2                  string
	Action                 string
	Data                   string
	Query                  string
	ActionMsgCall          string
	ExtraData              string
	ComponentName          string
	ShortcutID             string
	SpinnerWhileRefreshing bool
}

// ToSuggestion renders the shortcut back into a displayable Suggestion
func (sc Shortcut) ToSuggestion() Suggestion {
	return NewBuilder(sc.Source).
		Format(sc.Format).
		Title(sc.Title).
		Description(sc.Description).
		Icon1(sc.Icon1).
		Icon2(sc.Icon2).
		Action(sc.Action).
		Data(sc.Data).
		Query(sc.Query).
		ActionMsgCall(sc.ActionMsgCall).
		ExtraData(sc.ExtraData).
		ComponentName(sc.ComponentName).
		ShortcutID(sc.ShortcutID).
		SpinnerWhileRefreshing(sc.SpinnerWhileRefreshing).
		Build()
}

// ShortcutFromSuggestion derives the durable row for a suggestion the user clicked
func ShortcutFromSuggestion(s Suggestion) Shortcut {
	return Shortcut{
		IntentKey:              s.IntentKey(),
		Source:                 s.Source(),
		Format:                 s.Format,
		Title:                  s.Title,
		Description:            s.Description,
		Icon1:                  s.Icon1,
		Icon2:                  s.Icon2,
		Action:                 s.Action,
		Data:                   s.Data,
		Query:                  s.Query,
		ActionMsgCall:          s.ActionMsgCall,
		ExtraData:              s.ExtraData,
		ComponentName:          s.ComponentName,
		ShortcutID:             s.ShortcutID,
		SpinnerWhileRefreshing: s.SpinnerWhileRefreshing,
	}
}

// ClickLogEntry is one row of the click log, foreign-keyed on IntentKey
type ClickLogEntry struct {
	ID            int64
	IntentKey     string
	Query         string
	HitTimeMillis int64
}

// SourceEvent is one impression/click observation for a source
type SourceEvent struct {
	ID              int64
	Source          SourceIdentifier
	TimeMillis      int64
	ClickCount      int
	ImpressionCount int
}

// SourceStat is the aggregate projection of recent SourceEvent rows, one per source
type SourceStat struct {
	Source          SourceIdentifier
	TotalClicks     int64
	TotalImpressions int64
}

// SessionStats is built by the cursor on click/search and consumed once by the repository
type SessionStats struct {
	Query           string
	Clicked         *Suggestion
	SourceImpressions []SourceIdentifier
}
