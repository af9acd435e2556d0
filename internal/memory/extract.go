package memory

import (
	"regexp"
	"strconv"
	"strings"

	"parley/internal/index"
)

// =============================================================================
// STRUCTURED EXTRACTION
// =============================================================================

// sectionRe matches a section heading line announcing one of the structured
// slice categories, with optional markdown decoration and a trailing colon
// or dash.
var sectionRe = regexp.MustCompile(`(?i)^\s*(?:#+\s*)?(?:\*\*)?(requirements?|(?:design\s+)?parameters?|cross[-\s]?ref(?:erence)?s?|compliance(?:\s+notes?)?|calculations?|conflicts?|exceptions?)(?:\s|[:\-]|\*)*$`)

// bulletRe matches a bullet or numbered list line and captures its content.
var bulletRe = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+?)\s*$`)

// sectionType maps a matched heading word to its slice type.
func sectionType(heading string) SliceType {
	h := strings.ToLower(heading)
	switch {
	case strings.HasPrefix(h, "requirement"):
		return TypeRequirement
	case strings.Contains(h, "parameter"):
		return TypeParameter
	case strings.HasPrefix(h, "cross"):
		return TypeCrossRef
	case strings.HasPrefix(h, "compliance"):
		return TypeCompliance
	case strings.HasPrefix(h, "calculation"):
		return TypeCalculation
	case strings.HasPrefix(h, "conflict"):
		return TypeConflict
	case strings.HasPrefix(h, "exception"):
		return TypeException
	}
	return ""
}

// extracted is a not-yet-stored structured fact.
type extracted struct {
	typ  SliceType
	text string
}

// extractStructured scans a response line by line for section headings and
// collects bullet lines under the active heading. Any other non-blank line
// resets the active section. Blank lines are neutral: they neither extend
// nor reset a section.
func extractStructured(response string) []extracted {
	var out []extracted
	var active SliceType

	for _, line := range strings.Split(response, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if m := sectionRe.FindStringSubmatch(line); m != nil {
			active = sectionType(m[1])
			continue
		}
		if m := bulletRe.FindStringSubmatch(line); m != nil {
			if active != "" {
				out = append(out, extracted{typ: active, text: m[1]})
			}
			continue
		}
		active = ""
	}
	return out
}

// =============================================================================
// INTENT TAGGING
// =============================================================================

// intentRules map surface vocabulary to intent tags. Used both to enrich
// extracted slices and to infer required tags from retrieval queries.
var intentRules = []struct {
	re  *regexp.Regexp
	tag string
}{
	{regexp.MustCompile(`(?i)\bdecisions?\b|\bdecided?\b`), "decision"},
	{regexp.MustCompile(`(?i)\bactions?\b`), "action"},
	{regexp.MustCompile(`(?i)\brisks?\b`), "risk"},
	{regexp.MustCompile(`(?i)\bconstraints?\b`), "constraint"},
	{regexp.MustCompile(`(?i)\bentit(?:y|ies)\b`), "entity"},
	{regexp.MustCompile(`(?i)\bopen\s+questions?\b`), "open_question"},
	{regexp.MustCompile(`(?i)\bepisodes?\b`), "episode"},
}

// inferTags returns the intent tags whose vocabulary appears in text.
func inferTags(text string) []string {
	var tags []string
	for _, rule := range intentRules {
		if rule.re.MatchString(text) {
			tags = append(tags, rule.tag)
		}
	}
	return tags
}

// sliceTags builds the tag set for a slice: always its type, plus any
// inferred intent tags.
func sliceTags(typ SliceType, text string) []string {
	tags := []string{string(typ)}
	for _, t := range inferTags(text) {
		if t != string(typ) {
			tags = append(tags, t)
		}
	}
	return tags
}

// =============================================================================
// SUMMARIZATION
// =============================================================================

// summaryLimit bounds the stored response summary.
const summaryLimit = 320

// summarize collapses text to a single-line summary of at most limit
// characters, cutting at a sentence boundary when one falls in the second
// half of the window.
func summarize(text string, limit int) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if len(collapsed) <= limit {
		return collapsed
	}

	cut := collapsed[:limit]
	if idx := strings.LastIndexAny(cut, ".!?"); idx >= limit/2 {
		return cut[:idx+1]
	}
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}

// =============================================================================
// HASHING
// =============================================================================

// HashText computes the de-duplication hash of a slice text: a 32-bit
// rolling multiply-shift over the runes, rendered as "h" plus the absolute
// value. Not cryptographic; collision risk is accepted.
func HashText(text string) string {
	var h int32
	for _, r := range text {
		h = h*31 + int32(r)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return "h" + strconv.FormatInt(v, 10)
}

// estimateTokens mirrors the context store heuristic: ceil(len/4).
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// entityLimit caps extracted entities per slice.
const entityLimit = 8

// buildSlice assembles an unstored slice from its parts. The caller assigns
// the ID and stores it.
func buildSlice(typ SliceType, text string, confidence float64, meta Metadata) *Slice {
	return &Slice{
		Type:            typ,
		Text:            text,
		Tags:            sliceTags(typ, text),
		Entities:        index.Entities(text, entityLimit),
		SourceAgentIDs:  meta.AgentIDs,
		SourceToolIDs:   meta.ToolIDs,
		ImportanceScore: importanceByType[typ],
		Confidence:      confidence,
		TokenEstimate:   estimateTokens(text),
		SourceHash:      HashText(text),
	}
}
