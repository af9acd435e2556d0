package contextstore

import (
	"sort"
	"strings"
	"time"

	"parley/internal/agent"
	"parley/internal/index"
)

// =============================================================================
// RELEVANCE RANKING
// =============================================================================

// Field weights for keyword-overlap scoring. Each weight is multiplied by
// the number of query keywords found in that field.
const (
	weightName         = 15.0
	weightOverview     = 6.0
	weightRequirements = 8.0
	weightParameters   = 7.0
	weightCrossRefs    = 4.0
	weightSource       = 2.0
)

// QueryOptions controls QueryAgents. The zero value means: at most 5
// results, enabled agents only, no minimum score.
type QueryOptions struct {
	// MaxResults caps the result list; 0 means the default of 5.
	MaxResults int

	// IncludeDisabled also scores agents with Enabled=false.
	IncludeDisabled bool

	// MinScore drops results scoring at or below this value.
	MinScore float64
}

// Match is one ranked query result carrying its relevance score.
type Match struct {
	Agent agent.Agent
	Score float64
}

// QueryAgents scores every candidate agent by weighted keyword overlap plus
// a recency bonus, and returns the top matches sorted descending by score.
// Agents with equal scores keep their insertion order. The same inputs
// always yield the same ordering and scores.
func (s *Store) QueryAgents(query string, opts QueryOptions) []Match {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	keywords := index.Keywords(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	matches := make([]Match, 0, len(s.agents))
	for _, a := range s.agents {
		if !opts.IncludeDisabled && !a.Enabled {
			continue
		}
		idx := s.indexes[a.ID]
		if idx == nil {
			continue
		}

		score := scoreAgainstIndex(idx, keywords)
		score += recencyBonus(a.Date, now)

		if score <= opts.MinScore || score <= 0 {
			continue
		}
		matches = append(matches, Match{Agent: a, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches
}

// rankAllActive orders every active agent for budget allocation. With a
// query the order is relevance-descending (zero-score agents trail in
// insertion order); otherwise, when recent is set, parseable dates sort
// newest first and unparsable ones trail.
func (s *Store) rankAllActive(query string, recent bool) []agent.Agent {
	s.mu.RLock()
	active := make([]agent.Agent, 0, len(s.agents))
	indexes := make(map[string]*searchIndex, len(s.agents))
	for _, a := range s.agents {
		if a.Enabled {
			active = append(active, a)
			indexes[a.ID] = s.indexes[a.ID]
		}
	}
	s.mu.RUnlock()

	if query != "" {
		keywords := index.Keywords(query)
		now := time.Now()
		type ranked struct {
			a     agent.Agent
			score float64
		}
		rankedAgents := make([]ranked, len(active))

		for i, a := range active {
			var score float64
			if idx := indexes[a.ID]; idx != nil {
				score = scoreAgainstIndex(idx, keywords) + recencyBonus(a.Date, now)
			}
			rankedAgents[i] = ranked{a: a, score: score}
		}

		sort.SliceStable(rankedAgents, func(i, j int) bool {
			return rankedAgents[i].score > rankedAgents[j].score
		})
		out := make([]agent.Agent, len(rankedAgents))
		for i, r := range rankedAgents {
			out[i] = r.a
		}
		return out
	}

	if recent {
		type dated struct {
			a  agent.Agent
			t  time.Time
			ok bool
		}
		datedAgents := make([]dated, len(active))
		for i, a := range active {
			t, ok := parseAgentDate(a.Date)
			datedAgents[i] = dated{a: a, t: t, ok: ok}
		}
		sort.SliceStable(datedAgents, func(i, j int) bool {
			if datedAgents[i].ok != datedAgents[j].ok {
				return datedAgents[i].ok
			}
			return datedAgents[i].t.After(datedAgents[j].t)
		})
		out := make([]agent.Agent, len(datedAgents))
		for i, d := range datedAgents {
			out[i] = d.a
		}
		return out
	}

	return active
}

func scoreAgainstIndex(idx *searchIndex, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}

	fields := []struct {
		text   string
		weight float64
	}{
		{idx.name, weightName},
		{idx.overview, weightOverview},
		{idx.requirements, weightRequirements},
		{idx.parameters, weightParameters},
		{idx.crossrefs, weightCrossRefs},
		{idx.source, weightSource},
	}

	var score float64
	for _, f := range fields {
		if f.text == "" {
			continue
		}
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(f.text, kw) {
				hits++
			}
		}
		score += f.weight * float64(hits)
	}
	return score
}

// recencyBonus rewards recent meetings: max(0, 5 − daysSince/14), decaying
// to zero after ten weeks. Agents with unparsable dates get no bonus.
func recencyBonus(date string, now time.Time) float64 {
	t, ok := parseAgentDate(date)
	if !ok {
		return 0
	}
	days := now.Sub(t).Hours() / 24
	if days < 0 {
		days = 0
	}
	bonus := 5 - days/14
	if bonus < 0 {
		return 0
	}
	return bonus
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"Jan 2, 2006",
}

func parseAgentDate(date string) (time.Time, bool) {
	date = strings.TrimSpace(date)
	if date == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, date); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
