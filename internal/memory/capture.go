package memory

import (
	"strings"
	"time"
)

// =============================================================================
// COMPLETION CAPTURE
// =============================================================================

// Metadata attributes captured slices to their sources.
type Metadata struct {
	AgentIDs []string
	ToolIDs  []string

	// Confidence overrides the default extraction confidence (0.75) when
	// non-zero.
	Confidence float64
}

// defaultConfidence is assigned to structured slices extracted from a
// response.
const defaultConfidence = 0.75

// fallbackConfidence is assigned to the whole-response episode slice stored
// when no structured sections are found.
const fallbackConfidence = 0.3

// CaptureResult reports what a capture stored.
type CaptureResult struct {
	// Slices are copies of the newly stored slices.
	Slices []Slice

	// FallbackUsed is true when no structured sections were found and a
	// single low-confidence episode slice was stored instead.
	FallbackUsed bool
}

// CaptureCompletion records one query/response exchange: it updates the
// rolling turn window and response summary, extracts structured slices from
// the response, and merges them into the state block. A call with both
// query and response empty is a no-op.
func (s *Store) CaptureCompletion(query, response string, meta Metadata) CaptureResult {
	query = strings.TrimSpace(query)
	response = strings.TrimSpace(response)
	if query == "" && response == "" {
		return CaptureResult{}
	}

	confidence := meta.Confidence
	if confidence == 0 {
		confidence = defaultConfidence
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if query != "" {
		s.recentTurns = append(s.recentTurns, query)
		if len(s.recentTurns) > 2 {
			s.recentTurns = s.recentTurns[len(s.recentTurns)-2:]
		}
	}
	if response != "" {
		s.lastSummary = summarize(response, summaryLimit)
	}

	var result CaptureResult
	facts := extractStructured(response)
	if len(facts) == 0 && response != "" {
		// Nothing structured: keep one low-confidence episode slice so the
		// exchange is still discoverable.
		sl := buildSlice(TypeEpisode, summarize(response, summaryLimit), fallbackConfidence, meta)
		s.storeSlice(sl)
		result.FallbackUsed = true
		result.Slices = append(result.Slices, *sl)
		s.log.Debugw("capture fallback", "query_len", len(query), "response_len", len(response))
		return result
	}

	for _, f := range facts {
		sl := buildSlice(f.typ, f.text, confidence, meta)
		s.storeSlice(sl)
		result.Slices = append(result.Slices, *sl)
	}

	s.log.Debugw("capture complete", "slices", len(result.Slices))
	return result
}

// storeSlice assigns an id, timestamps the slice, appends it to the flat
// list and merges it into the state block. Caller holds the lock.
func (s *Store) storeSlice(sl *Slice) {
	s.nextID++
	sl.ID = s.nextID
	sl.Timestamp = time.Now()
	s.slices = append(s.slices, sl)
	s.mergeIntoStateBlock(sl)
}
