package sourcereg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"suggestfed/internal/suggest/domain"
)

// httpSuggestion is the wire shape an HTTP-backed source's query endpoint is
// expected to return; it mirrors domain.Suggestion field-for-field since the
// source field is unexported and can't round-trip through encoding/json
type httpSuggestion struct {
	Format                 string `json:"format"`
	Title                  string `json:"title"`
	Description            string `json:"description"`
	Icon1                  string `json:"icon1"`
	Icon2                  string `json:"icon2"`
	Action                 string `json:"action"`
	Data                   string `json:"data"`
	Query                  string `json:"query"`
	ExtraData              string `json:"extraData"`
	ComponentName          string `json:"componentName"`
	ActionMsgCall          string `json:"actionMsgCall"`
	ShortcutID             string `json:"shortcutId"`
	PinToBottom            bool   `json:"pinToBottom"`
	SpinnerWhileRefreshing bool   `json:"spinnerWhileRefreshing"`
	BackgroundColor        string `json:"backgroundColor"`
}

type httpQueryResponse struct {
	Status      string           `json:"status"`
	Suggestions []httpSuggestion `json:"suggestions"`
	QueryLimit  int              `json:"queryLimit"`
}

type httpValidateResponse struct {
	Found      bool           `json:"found"`
	Suggestion httpSuggestion `json:"suggestion"`
}

// HTTPSource adapts a remote HTTP endpoint into a source.Source, the kind the
// registry builds for manifest entries with kind == "http"
type HTTPSource struct {
	id        domain.SourceIdentifier
	endpoint  string
	web       bool
	afterZero bool
	minLen    int
	client    *http.Client
}

// NewHTTPSource builds an HTTPSource from a manifest entry
func NewHTTPSource(e Entry) *HTTPSource {
	return &HTTPSource{
		id:        e.Identifier(),
		endpoint:  e.Endpoint,
		web:       e.Web,
		afterZero: e.AfterZero,
		minLen:    e.MinQueryLength,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (h *HTTPSource) toDomain(s httpSuggestion) domain.Suggestion {
	return domain.NewBuilder(h.id).
		Format(s.Format).
		Title(s.Title).
		Description(s.Description).
		Icon1(s.Icon1).
		Icon2(s.Icon2).
		Action(s.Action).
		Data(s.Data).
		Query(s.Query).
		ExtraData(s.ExtraData).
		ComponentName(s.ComponentName).
		ActionMsgCall(s.ActionMsgCall).
		ShortcutID(s.ShortcutID).
		PinToBottom(s.PinToBottom).
		SpinnerWhileRefreshing(s.SpinnerWhileRefreshing).
		BackgroundColor(s.BackgroundColor).
		Build()
}

// Query implements source.Source
func (h *HTTPSource) Query(ctx context.Context, prefix string, maxResults, queryLimit int) (domain.SuggestionResult, error) {
	u := fmt.Sprintf("%s?q=%s&max=%d&limit=%d", h.endpoint, url.QueryEscape(prefix), maxResults, queryLimit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.ErrorResult(), err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.CanceledResult(), ctx.Err()
		}
		return domain.ErrorResult(), err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.ErrorResult(), fmt.Errorf("sourcereg: %s: unexpected status %d", h.id, resp.StatusCode)
	}

	var out httpQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.ErrorResult(), fmt.Errorf("sourcereg: %s: decode response: %w", h.id, err)
	}

	suggestions := make([]domain.Suggestion, 0, len(out.Suggestions))
	for _, s := range out.Suggestions {
		suggestions = append(suggestions, h.toDomain(s))
	}
	return domain.OKResult(suggestions, len(suggestions), out.QueryLimit), nil
}

// ValidateShortcut implements source.Source
func (h *HTTPSource) ValidateShortcut(ctx context.Context, sc domain.Shortcut) (*domain.Suggestion, error) {
	body, err := json.Marshal(struct {
		IntentKey string `json:"intentKey"`
		Data      string `json:"data"`
		Query     string `json:"query"`
	}{sc.IntentKey, sc.Data, sc.Query})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+"/validate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sourcereg: %s: validate unexpected status %d", h.id, resp.StatusCode)
	}

	var out httpValidateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("sourcereg: %s: decode validate response: %w", h.id, err)
	}
	if !out.Found {
		return nil, nil
	}
	s := h.toDomain(out.Suggestion)
	return &s, nil
}

// Identifier implements source.Source
func (h *HTTPSource) Identifier() domain.SourceIdentifier { return h.id }

// IsWeb implements source.Source
func (h *HTTPSource) IsWeb() bool { return h.web }

// QueryAfterZeroResults implements source.Source
func (h *HTTPSource) QueryAfterZeroResults() bool { return h.afterZero }

// MinQueryLength implements source.Source
func (h *HTTPSource) MinQueryLength() int { return h.minLen }
