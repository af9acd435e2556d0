package contextstore

import (
	"encoding/json"
	"fmt"
	"strings"

	"parley/internal/agent"
)

// =============================================================================
// CONTEXT SLICES
// =============================================================================

// Level is a context slice detail tier.
type Level string

const (
	// LevelSummary includes only the agent name and overview.
	LevelSummary Level = "summary"
	// LevelStandard adds the structured sub-lists as JSON.
	LevelStandard Level = "standard"
	// LevelFull adds the raw source and extended text.
	LevelFull Level = "full"
)

// NormalizeLevel maps an arbitrary string to a Level; unknown values
// default to standard.
func NormalizeLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelSummary:
		return LevelSummary
	case LevelFull:
		return LevelFull
	default:
		return LevelStandard
	}
}

// ContextSlice renders one agent at the given detail tier. It is a pure
// formatting function; the second return is false when the agent id is
// unknown.
func (s *Store) ContextSlice(agentID string, level Level) (string, bool) {
	a, ok := s.Agent(agentID)
	if !ok {
		return "", false
	}
	return renderSlice(a, NormalizeLevel(string(level))), true
}

func renderSlice(a agent.Agent, level Level) string {
	var b strings.Builder

	fmt.Fprintf(&b, "### %s", a.Name())
	if a.Date != "" {
		fmt.Fprintf(&b, " (%s)", a.Date)
	}
	b.WriteByte('\n')
	if ov := a.Overview(); ov != "" {
		b.WriteString(ov)
		b.WriteByte('\n')
	}

	if level == LevelSummary {
		return b.String()
	}

	structured := map[string][]string{
		"requirements":      a.Requirements,
		"design_parameters": a.DesignParameters,
		"cross_references":  a.CrossReferences,
		"compliance_notes":  a.ComplianceNotes,
	}
	// Marshalling a map of string slices cannot fail.
	data, _ := json.MarshalIndent(structured, "", "  ")
	b.WriteString("Structured notes:\n")
	b.Write(data)
	b.WriteByte('\n')

	if level == LevelFull {
		if src := a.Source(); src != "" {
			b.WriteString("Source:\n")
			b.WriteString(src)
			b.WriteByte('\n')
		}
		if a.ExtendedContext != "" {
			b.WriteString("Extended context:\n")
			b.WriteString(a.ExtendedContext)
			b.WriteByte('\n')
		}
	}

	return b.String()
}

// =============================================================================
// TRUNCATION
// =============================================================================

// TruncateText shortens text to at most max characters plus a "..." marker.
// It prefers cutting at the last sentence boundary when that falls past 70%
// of max, then the last word boundary past 80%, then a hard cut.
func TruncateText(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}

	cut := text[:max]

	if idx := lastSentenceEnd(cut); idx >= 0 && float64(idx) >= 0.7*float64(max) {
		return cut[:idx+1] + "..."
	}
	if idx := strings.LastIndexAny(cut, " \t\n"); idx >= 0 && float64(idx) >= 0.8*float64(max) {
		return cut[:idx] + "..."
	}
	return cut + "..."
}

func lastSentenceEnd(s string) int {
	return strings.LastIndexAny(s, ".!?")
}

// truncateWithNote truncates like TruncateText but appends the original
// length so downstream consumers can tell content was dropped.
func truncateWithNote(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	return fmt.Sprintf("%s [truncated, %d chars total]", TruncateText(text, max), len(text))
}
