package memory

import (
	"sort"
	"strings"
	"time"

	"parley/internal/index"
)

// =============================================================================
// RELEVANCE-RANKED RETRIEVAL
// =============================================================================

// RetrieveOptions controls RetrieveSlices. Zero values select the
// defaults: 5 results, 2 per tag, 2 per agent, no filters, no counter
// updates.
type RetrieveOptions struct {
	MaxResults  int
	MaxPerTag   int
	MaxPerAgent int

	// RecencyWindow drops slices older than the window when positive.
	RecencyWindow time.Duration

	// AgentIDs restricts candidates to slices attributed to at least one of
	// these agents.
	AgentIDs []string

	// RequiredTags demands explicit tag overlap. When empty, tags inferred
	// from the query vocabulary are required instead; if nothing can be
	// inferred and IntentFilter is set, intent-tag overlap is required.
	RequiredTags []string

	// IntentFilter is a soft tag set boosted by IntentBoost, and the
	// fallback requirement described above.
	IntentFilter []string

	// Entities demands entity overlap when non-empty.
	Entities []string

	// IntentBoost weights intent-tag matches in the score; 0 means 1.0.
	IntentBoost float64

	// UpdateStats increments the live retrieval counter of selected slices.
	UpdateStats bool

	// UpdateShadow increments the shadow retrieval counter of selected
	// slices.
	UpdateShadow bool
}

// RetrieveResult carries the selected slices plus diagnostic stats.
type RetrieveResult struct {
	Slices     []Slice
	Considered int
	Matched    int
	Latency    time.Duration
}

// RetrieveSlices filters and ranks the accumulated memory against a query.
//
// Scoring per candidate:
//
//	2·tagMatches + intentBoost·intentTagMatches + 2·entityMatches
//	  + 1.5·recencyScore + 1.2·importance + keywordScore − redundancyPenalty
//
// where recencyScore = max(0, 1 − ageDays/30), keywordScore = 0.5 per query
// keyword found in the slice text, and redundancyPenalty =
// min(2, 0.15·priorRetrievals). Selection is greedy over the score-sorted
// list with per-tag and per-agent caps and a source-hash guard.
func (s *Store) RetrieveSlices(query string, opts RetrieveOptions) RetrieveResult {
	start := time.Now()

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	maxPerTag := opts.MaxPerTag
	if maxPerTag <= 0 {
		maxPerTag = 2
	}
	maxPerAgent := opts.MaxPerAgent
	if maxPerAgent <= 0 {
		maxPerAgent = 2
	}
	intentBoost := opts.IntentBoost
	if intentBoost == 0 {
		intentBoost = 1.0
	}

	queryTags := opts.RequiredTags
	requireIntent := false
	if len(queryTags) == 0 {
		queryTags = inferTags(query)
		if len(queryTags) == 0 && len(opts.IntentFilter) > 0 {
			requireIntent = true
		}
	}

	queryKeywords := index.Keywords(query)
	queryEntities := append([]string{}, opts.Entities...)
	queryEntities = append(queryEntities, index.Entities(query, entityLimit)...)

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	type scored struct {
		sl    *Slice
		score float64
	}
	candidates := make([]scored, 0, len(s.slices))

	for _, sl := range s.slices {
		if opts.RecencyWindow > 0 && now.Sub(sl.Timestamp) > opts.RecencyWindow {
			continue
		}
		if len(opts.AgentIDs) > 0 && countOverlap(sl.SourceAgentIDs, opts.AgentIDs) == 0 {
			continue
		}

		tagMatches := countOverlap(sl.Tags, queryTags)
		intentMatches := countOverlap(sl.Tags, opts.IntentFilter)

		if len(queryTags) > 0 && tagMatches == 0 {
			continue
		}
		if requireIntent && intentMatches == 0 {
			continue
		}

		entityMatches := countOverlap(sl.Entities, queryEntities)
		if len(opts.Entities) > 0 && entityMatches == 0 {
			continue
		}

		ageDays := now.Sub(sl.Timestamp).Hours() / 24
		recencyScore := 1 - ageDays/30
		if recencyScore < 0 {
			recencyScore = 0
		}

		lower := strings.ToLower(sl.Text)
		var keywordScore float64
		for _, kw := range queryKeywords {
			if strings.Contains(lower, kw) {
				keywordScore += 0.5
			}
		}

		prior := sl.RetrievalCountShadow
		if opts.UpdateStats {
			prior = sl.RetrievalCount
		}
		redundancy := 0.15 * float64(prior)
		if redundancy > 2 {
			redundancy = 2
		}

		score := 2*float64(tagMatches) +
			intentBoost*float64(intentMatches) +
			2*float64(entityMatches) +
			1.5*recencyScore +
			1.2*sl.ImportanceScore +
			keywordScore -
			redundancy

		candidates = append(candidates, scored{sl: sl, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	perTag := make(map[string]int)
	perAgent := make(map[string]int)
	seenHash := make(map[string]bool)

	result := RetrieveResult{Considered: len(s.slices), Matched: len(candidates)}

	for _, c := range candidates {
		if len(result.Slices) >= maxResults {
			break
		}
		if seenHash[c.sl.SourceHash] {
			continue
		}
		typeTag := string(c.sl.Type)
		if perTag[typeTag] >= maxPerTag {
			continue
		}
		if agentAtCap(c.sl.SourceAgentIDs, perAgent, maxPerAgent) {
			continue
		}

		seenHash[c.sl.SourceHash] = true
		perTag[typeTag]++
		for _, id := range c.sl.SourceAgentIDs {
			perAgent[id]++
		}

		if opts.UpdateStats {
			c.sl.RetrievalCount++
		}
		if opts.UpdateShadow {
			c.sl.RetrievalCountShadow++
		}

		result.Slices = append(result.Slices, *c.sl)
	}

	result.Latency = time.Since(start)
	return result
}

func countOverlap(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(b))
	for _, s := range b {
		set[s] = true
	}
	n := 0
	for _, s := range a {
		if set[s] {
			n++
		}
	}
	return n
}

func agentAtCap(agentIDs []string, perAgent map[string]int, cap int) bool {
	for _, id := range agentIDs {
		if perAgent[id] >= cap {
			return true
		}
	}
	return false
}
