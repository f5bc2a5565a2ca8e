package cache

import (
	"sort"
	"strings"

	"github.com/vegardlu/homelab-core/internal/homeassistant"
)

// maxSearchResults caps the number of ranked hits returned by Search.
const maxSearchResults = 15

// Scoring weights. Terms contribute additively per entity; there is no
// cross-entity normalization.
const (
	scoreExactEntityID     = 200
	scoreExactFriendlyName = 150
	scoreAreaExact         = 80
	scoreAreaContains      = 40
	scoreEntityIDContains  = 50
	scoreNameContains      = 50
	scoreDomainPrefix      = 20
)

// synonyms maps Norwegian query tokens to the English terms used in entity
// ids, friendly names and area names. Matching is on exact tokens only.
var synonyms = map[string][]string{
	"stua":     {"living room", "living"},
	"kjøkken":  {"kitchen"},
	"soverom":  {"bedroom"},
	"bad":      {"bathroom"},
	"gang":     {"hallway", "entrance"},
	"lys":      {"light", "switch", "dimmer"},
	"varme":    {"climate", "thermostat", "temperature"},
	"gardiner": {"cover", "blind"},
}

// SearchResult is a scored search hit.
type SearchResult struct {
	Entity homeassistant.EnhancedEntityState
	Score  int
}

// Search ranks all cached entities against a free-text query. The query is
// lowercased and underscore-normalized, tokenized on whitespace, and each
// token that is a known Norwegian synonym also contributes its English
// expansions. Entities scoring above zero are returned in descending score
// order, capped at 15; ties break on entity_id so identical input yields
// identical output.
func (c *Cache) Search(query string) []SearchResult {
	normQuery := homeassistant.NormalizeArea(query)
	if normQuery == "" {
		return nil
	}

	terms := expandTerms(strings.Fields(normQuery))

	var results []SearchResult
	for _, e := range c.entities.Load().list {
		if score := scoreEntity(e, normQuery, terms); score > 0 {
			results = append(results, SearchResult{Entity: e, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Entity.EntityID < results[j].Entity.EntityID
	})

	if len(results) > maxSearchResults {
		results = results[:maxSearchResults]
	}
	return results
}

// expandTerms returns the union of the raw terms and their synonym
// expansions. Raw terms are always kept, even when they expand.
func expandTerms(raw []string) []string {
	terms := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			terms = append(terms, t)
		}
	}
	for _, t := range raw {
		add(t)
		for _, expansion := range synonyms[t] {
			add(expansion)
		}
	}
	return terms
}

// scoreEntity computes the additive score of one entity against the
// normalized query and expanded term set.
func scoreEntity(e homeassistant.EnhancedEntityState, normQuery string, terms []string) int {
	idNorm := homeassistant.NormalizeArea(e.EntityID)
	name := strings.ToLower(e.FriendlyName)
	areaIDNorm := homeassistant.NormalizeArea(e.AreaID)
	areaNameNorm := homeassistant.NormalizeArea(e.Area)

	score := 0
	if idNorm == normQuery {
		score += scoreExactEntityID
	}
	if name == normQuery {
		score += scoreExactFriendlyName
	}

	for _, term := range terms {
		switch {
		case (areaIDNorm != "" && areaIDNorm == term) || (areaNameNorm != "" && areaNameNorm == term):
			score += scoreAreaExact
		case (areaIDNorm != "" && strings.Contains(areaIDNorm, term)) ||
			(areaNameNorm != "" && strings.Contains(areaNameNorm, term)):
			score += scoreAreaContains
		}
		if strings.Contains(idNorm, term) {
			score += scoreEntityIDContains
		}
		if strings.Contains(name, term) {
			score += scoreNameContains
		}
		// Domain-type boost: a term like "light" promotes every light.* id.
		if strings.HasPrefix(e.EntityID, term) {
			score += scoreDomainPrefix
		}
	}
	return score
}
