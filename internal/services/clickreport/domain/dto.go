// Package domain holds DTOs for the click-report http and service contracts
package domain

// ClickInput is the relaunch descriptor of a clicked suggestion, the wire
// form of the insert the original click-report content provider accepted
type ClickInput struct {
	Source        string `json:"source" validate:"required"`
	Query         string `json:"query"`
	Action        string `json:"action,omitempty"`
	Data          string `json:"data,omitempty"`
	ExtraData     string `json:"extra_data,omitempty"`
	ComponentName string `json:"component_name,omitempty"`
	ActionMsgCall string `json:"action_msg_call,omitempty"`
	Title         string `json:"title,omitempty"`
	Description   string `json:"description,omitempty"`
	Icon1         string `json:"icon1,omitempty"`
	Icon2         string `json:"icon2,omitempty"`
	ShortcutID    string `json:"shortcut_id,omitempty"`
}

// ClickResult reports whether the click was accepted into the shortcut
// repository, gated on the clicked source's ranking standing
type ClickResult struct {
	Accepted bool `json:"accepted"`
}

// RankingRow is one row of the source-ranking debug listing
type RankingRow struct {
	Source           string `json:"source"`
	TotalClicks      int64  `json:"total_clicks"`
	TotalImpressions int64  `json:"total_impressions"`
}
