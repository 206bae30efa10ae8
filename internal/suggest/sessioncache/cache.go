// Package sessioncache implements the per-session memo of zero-result
// prefixes, already-refreshed shortcuts, and (optionally) per-query source
// results, shared across every query typed within one session
package sessioncache

import (
	"sync"

	"suggestfed/internal/suggest/domain"
)

// NoIcon is the sentinel stored in refreshedShortcuts when a source's
// ValidateShortcut call asked for no icon2 override
const NoIcon = ""

// Cache is the per-session memo described by the backer/session data flow.
// Each of its three maps is guarded independently
type Cache struct {
	zeroMu     sync.RWMutex
	zeroResult map[string]map[string]bool // query -> set<source identifier>

	refreshMu sync.RWMutex
	refreshed map[string]string // "source#shortcutId" -> icon2 (NoIcon if none)

	resultsMu      sync.RWMutex
	resultsCache   map[string]map[string]domain.SuggestionResult // query -> source identifier -> result
	resultsCacheOn bool
}

// New builds an empty Cache. enableResultsCache turns on the optional
// per-query results memo (spec calls it "optional and soft-referenced" —
// Go has no SoftReference equivalent, so this is a plain map with no size
// bound or eviction; the caller may choose not to populate it at all by
// passing false)
func New(enableResultsCache bool) *Cache {
	return &Cache{
		zeroResult:     map[string]map[string]bool{},
		refreshed:      map[string]string{},
		resultsCache:   map[string]map[string]domain.SuggestionResult{},
		resultsCacheOn: enableResultsCache,
	}
}

// HasReportedZeroResultsForPrefix reports whether some strict prefix of q
// previously got a zero-result, non-queryAfterZeroResults answer from src
func (c *Cache) HasReportedZeroResultsForPrefix(q string, src domain.SourceIdentifier) bool {
	c.zeroMu.RLock()
	defer c.zeroMu.RUnlock()

	key := src.String()
	for i := 1; i < len(q); i++ {
		if set, ok := c.zeroResult[q[:i]]; ok && set[key] {
			return true
		}
	}
	return false
}

// ReportSourceResult records result for (query, source). If enabled, writes
// the results cache; if result is OK, empty, and queryAfterZeroResults is
// false, records query as a zero-result prefix for src
func (c *Cache) ReportSourceResult(query string, src domain.SourceIdentifier, result domain.SuggestionResult, queryAfterZeroResults bool) {
	if c.resultsCacheOn {
		c.resultsMu.Lock()
		bySource, ok := c.resultsCache[query]
		if !ok {
			bySource = map[string]domain.SuggestionResult{}
			c.resultsCache[query] = bySource
		}
		bySource[src.String()] = result
		c.resultsMu.Unlock()
	}

	if result.Status == domain.StatusOK && len(result.Suggestions) == 0 && !queryAfterZeroResults {
		c.zeroMu.Lock()
		set, ok := c.zeroResult[query]
		if !ok {
			set = map[string]bool{}
			c.zeroResult[query] = set
		}
		set[src.String()] = true
		c.zeroMu.Unlock()
	}
}

// CachedResult returns a previously cached result for (query, source), if
// the results cache is enabled and populated for that pair
func (c *Cache) CachedResult(query string, src domain.SourceIdentifier) (domain.SuggestionResult, bool) {
	if !c.resultsCacheOn {
		return domain.SuggestionResult{}, false
	}
	c.resultsMu.RLock()
	defer c.resultsMu.RUnlock()
	bySource, ok := c.resultsCache[query]
	if !ok {
		return domain.SuggestionResult{}, false
	}
	result, ok := bySource[src.String()]
	return result, ok
}

func refreshKey(src domain.SourceIdentifier, shortcutID string) string {
	return src.String() + "#" + shortcutID
}

// IsRefreshed reports whether (source, shortcutId) was already refreshed
// this session, returning the icon2 the source asked us to show (NoIcon if
// none)
func (c *Cache) IsRefreshed(src domain.SourceIdentifier, shortcutID string) (icon2 string, ok bool) {
	c.refreshMu.RLock()
	defer c.refreshMu.RUnlock()
	icon2, ok = c.refreshed[refreshKey(src, shortcutID)]
	return icon2, ok
}

// MarkRefreshed records that (source, shortcutId) was refreshed this
// session, remembering icon2 (NoIcon if the source asked for none)
func (c *Cache) MarkRefreshed(src domain.SourceIdentifier, shortcutID, icon2 string) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	c.refreshed[refreshKey(src, shortcutID)] = icon2
}
