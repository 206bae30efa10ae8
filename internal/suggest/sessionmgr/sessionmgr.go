// Package sessionmgr implements orderSources, the source-partitioning
// algorithm the SessionManager runs once per session to decide which
// sources are eligible for promoted (above-the-fold) display
package sessionmgr

import "suggestfed/internal/suggest/domain"

// TrustLookup reports whether a source is on the static cold-start
// allow-list used when no ranking data exists for it yet
type TrustLookup func(id domain.SourceIdentifier) bool

// OrderSources partitions enabled into (promotable, unpromotable):
//  1. The web source, if present, is always promotable first.
//  2. Then up to numPromoted-1 sources taken from ranking, in rank order,
//     unconditionally promotable.
//  3. Then the remaining enabled sources not mentioned in ranking at all,
//     in their enabled-list order, promotable iff trusted.
//  4. Then the rest of ranking (the part not consumed by step 2), in rank
//     order, promotable iff trusted.
func OrderSources(
	enabled []domain.SourceIdentifier,
	webSource domain.SourceIdentifier,
	hasWebSource bool,
	ranking []domain.SourceIdentifier,
	numPromoted int,
	trusted TrustLookup,
) (promotable, unpromotable []domain.SourceIdentifier) {
	pool := map[string]bool{}
	var poolOrder []domain.SourceIdentifier
	for _, id := range enabled {
		key := id.String()
		if pool[key] {
			continue
		}
		pool[key] = true
		poolOrder = append(poolOrder, id)
	}

	inPool := func(id domain.SourceIdentifier) bool { return pool[id.String()] }
	remove := func(id domain.SourceIdentifier) { delete(pool, id.String()) }

	if hasWebSource && inPool(webSource) {
		promotable = append(promotable, webSource)
		remove(webSource)
	}

	rankedSet := map[string]bool{}
	for _, id := range ranking {
		rankedSet[id.String()] = true
	}

	remainingTopSlots := numPromoted - 1
	if remainingTopSlots < 0 {
		remainingTopSlots = 0
	}
	var rankedLeftover []domain.SourceIdentifier
	for _, id := range ranking {
		if !inPool(id) {
			continue
		}
		if remainingTopSlots > 0 {
			promotable = append(promotable, id)
			remove(id)
			remainingTopSlots--
			continue
		}
		rankedLeftover = append(rankedLeftover, id)
	}

	for _, id := range poolOrder {
		if !inPool(id) || rankedSet[id.String()] {
			continue
		}
		if trusted(id) {
			promotable = append(promotable, id)
		} else {
			unpromotable = append(unpromotable, id)
		}
		remove(id)
	}

	for _, id := range rankedLeftover {
		if !inPool(id) {
			continue
		}
		if trusted(id) {
			promotable = append(promotable, id)
		} else {
			unpromotable = append(unpromotable, id)
		}
		remove(id)
	}

	return promotable, unpromotable
}
