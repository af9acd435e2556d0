package contextstore

// =============================================================================
// TOKEN-BUDGETED CONTEXT ASSEMBLY
// =============================================================================

// defaultSeparator joins per-agent slices in combined context output.
const defaultSeparator = "\n\n---\n\n"

// lowBudgetFloor is the remaining-token threshold below which the global
// allocator stops adding agents.
const lowBudgetFloor = 100

// CombineOptions controls CombinedContextWithBudget.
type CombineOptions struct {
	// PreferredLevel is the richest tier attempted per agent. The fallback
	// chain is full→standard→summary, standard→summary, or summary alone.
	// Empty means standard.
	PreferredLevel Level

	// Separator between agent slices; empty means a "---" divider.
	Separator string

	// MinRemainingTokens stops allocation once the remaining budget drops
	// below it. 0 disables the early stop.
	MinRemainingTokens int
}

// CombinedContext reports the outcome of a budgeted assembly.
type CombinedContext struct {
	// Context is the assembled text. Its estimated token count never
	// exceeds the requested budget.
	Context string

	// Levels records the tier chosen per included agent id.
	Levels map[string]Level

	// Skipped lists agent ids for which no tier fit.
	Skipped []string

	// RemainingTokens is the unconsumed budget.
	RemainingTokens int
}

// fallbackChain returns the tier chain attempted for a preferred level.
func fallbackChain(preferred Level) []Level {
	switch NormalizeLevel(string(preferred)) {
	case LevelFull:
		return []Level{LevelFull, LevelStandard, LevelSummary}
	case LevelSummary:
		return []Level{LevelSummary}
	default:
		return []Level{LevelStandard, LevelSummary}
	}
}

// CombinedContextWithBudget assembles context for the given agents, in the
// given order, under tokenBudget. For each agent the richest tier of the
// fallback chain that fits the remaining budget is accepted; an agent for
// which nothing fits is skipped entirely. The pass is deterministic and
// never backtracks to re-allocate skipped budget.
func (s *Store) CombinedContextWithBudget(agentIDs []string, tokenBudget int, opts CombineOptions) CombinedContext {
	separator := opts.Separator
	if separator == "" {
		separator = defaultSeparator
	}
	chain := fallbackChain(opts.PreferredLevel)

	result := CombinedContext{
		Levels:          make(map[string]Level),
		RemainingTokens: tokenBudget,
	}

	var parts []string
	for _, id := range agentIDs {
		if opts.MinRemainingTokens > 0 && result.RemainingTokens < opts.MinRemainingTokens {
			result.Skipped = append(result.Skipped, id)
			continue
		}

		a, ok := s.Agent(id)
		if !ok {
			result.Skipped = append(result.Skipped, id)
			continue
		}

		placed := false
		for _, level := range chain {
			text := renderSlice(a, level)
			cost := EstimateTokens(text)
			if len(parts) > 0 {
				cost += EstimateTokens(separator)
			}
			if cost > result.RemainingTokens {
				continue
			}
			parts = append(parts, text)
			result.Levels[id] = level
			result.RemainingTokens -= cost
			placed = true
			break
		}
		if !placed {
			result.Skipped = append(result.Skipped, id)
		}
	}

	result.Context = joinParts(parts, separator)
	return result
}

// BudgetOptions controls ContextWithBudget.
type BudgetOptions struct {
	// Query ranks agents by relevance before allocation.
	Query string

	// PrioritizeRecent ranks agents newest-first when no query is given.
	PrioritizeRecent bool
}

// BudgetResult reports the outcome of the global allocator.
type BudgetResult struct {
	Context         string
	Levels          map[string]Level
	Included        []string
	Skipped         []string
	RemainingTokens int
}

// ContextWithBudget allocates tokenBudget across all active agents: agents
// are ranked (by query relevance, else recency if requested, else insertion
// order) and each greedily receives the richest affordable tier. Allocation
// stops early once the remaining budget drops below 100 tokens.
func (s *Store) ContextWithBudget(tokenBudget int, opts BudgetOptions) BudgetResult {
	ranked := s.rankAllActive(opts.Query, opts.PrioritizeRecent)

	result := BudgetResult{
		Levels:          make(map[string]Level),
		RemainingTokens: tokenBudget,
	}

	var parts []string
	for _, a := range ranked {
		if result.RemainingTokens < lowBudgetFloor {
			result.Skipped = append(result.Skipped, a.ID)
			continue
		}

		placed := false
		for _, level := range []Level{LevelFull, LevelStandard, LevelSummary} {
			text := renderSlice(a, level)
			cost := EstimateTokens(text)
			if len(parts) > 0 {
				cost += EstimateTokens(defaultSeparator)
			}
			if cost > result.RemainingTokens {
				continue
			}
			parts = append(parts, text)
			result.Levels[a.ID] = level
			result.Included = append(result.Included, a.ID)
			result.RemainingTokens -= cost
			placed = true
			break
		}
		if !placed {
			result.Skipped = append(result.Skipped, a.ID)
		}
	}

	result.Context = joinParts(parts, defaultSeparator)
	return result
}

func joinParts(parts []string, separator string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total+len(separator)*(len(parts)-1))
	for i, p := range parts {
		if i > 0 {
			out = append(out, separator...)
		}
		out = append(out, p...)
	}
	return string(out)
}
