// Package memory implements the structured memory layer of the RLM engine:
// it extracts durable facts ("slices") from model responses, maintains a
// compact de-duplicated state block, groups bounded units of work into
// focus episodes, and answers relevance-ranked retrieval queries over the
// accumulated memory.
package memory

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"parley/internal/logging"
)

// SliceType classifies a memory slice.
type SliceType string

const (
	TypeRequirement SliceType = "requirement"
	TypeParameter   SliceType = "parameter"
	TypeCrossRef    SliceType = "crossref"
	TypeCompliance  SliceType = "compliance"
	TypeCalculation SliceType = "calculation"
	TypeConflict    SliceType = "conflict"
	TypeException   SliceType = "exception"
	TypeEpisode     SliceType = "episode"
)

// importanceByType fixes the importance score per slice type. Conflicts and
// exceptions outrank everything else; episodes are background colour.
var importanceByType = map[SliceType]float64{
	TypeRequirement: 0.9,
	TypeParameter:   0.8,
	TypeCrossRef:    0.7,
	TypeCompliance:  0.85,
	TypeCalculation: 0.8,
	TypeConflict:    0.95,
	TypeException:   0.9,
	TypeEpisode:     0.5,
}

// stateCategory maps a slice type to its state-block category name.
var stateCategory = map[SliceType]string{
	TypeRequirement: "requirements",
	TypeParameter:   "parameters",
	TypeCrossRef:    "cross_references",
	TypeCompliance:  "compliance_notes",
	TypeCalculation: "calculations",
	TypeConflict:    "conflicts",
	TypeException:   "exceptions",
	TypeEpisode:     "episodes",
}

// Slice is one atomic structured fact extracted from a model response.
type Slice struct {
	ID                   int64     `json:"id"`
	Type                 SliceType `json:"type"`
	Text                 string    `json:"text"`
	Tags                 []string  `json:"tags"`
	Entities             []string  `json:"entities,omitempty"`
	SourceAgentIDs       []string  `json:"source_agent_ids,omitempty"`
	SourceToolIDs        []string  `json:"source_tool_ids,omitempty"`
	Timestamp            time.Time `json:"timestamp"`
	ImportanceScore      float64   `json:"importance_score"`
	Confidence           float64   `json:"confidence"`
	RetrievalCount       int       `json:"retrieval_count"`
	RetrievalCountShadow int       `json:"retrieval_count_shadow"`
	TokenEstimate        int       `json:"token_estimate"`
	SourceHash           string    `json:"source_hash"`
}

// HasTag reports whether the slice carries the given tag.
func (sl *Slice) HasTag(tag string) bool {
	for _, t := range sl.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// StateEntry is one de-duplicated entry of a state-block category.
type StateEntry struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	SourceHash string    `json:"source_hash"`
	Timestamp  time.Time `json:"timestamp"`
}

// Store is the session memory store. All methods are safe for concurrent
// use; retrieval counters are mutated in place under the store lock.
type Store struct {
	mu     sync.Mutex
	nextID int64
	slices []*Slice

	// stateBlock maps category name to an append-only, hash-deduplicated
	// entry list: the compact "always available" memory surface.
	stateBlock map[string][]StateEntry

	// recentTurns is a rolling window of the last two user turns.
	recentTurns []string
	lastSummary string

	focus    *Episode
	archive  []EpisodeRecord
	episodes EpisodeStats

	log *zap.SugaredLogger
}

// New creates an empty memory store.
func New() *Store {
	return &Store{
		stateBlock: make(map[string][]StateEntry),
		log:        logging.Named(logging.CategoryMemory),
	}
}

// Reset discards all slices, state-block entries, turns, episodes and
// counters. The only way memory is ever deleted.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = 0
	s.slices = nil
	s.stateBlock = make(map[string][]StateEntry)
	s.recentTurns = nil
	s.lastSummary = ""
	s.focus = nil
	s.archive = nil
	s.episodes = EpisodeStats{}
}

// SliceCount returns the number of stored slices.
func (s *Store) SliceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slices)
}

// Slices returns copies of all stored slices.
func (s *Store) Slices() []Slice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Slice, len(s.slices))
	for i, sl := range s.slices {
		out[i] = *sl
	}
	return out
}

// StateBlock returns a copy of the aggregate state block.
func (s *Store) StateBlock() map[string][]StateEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]StateEntry, len(s.stateBlock))
	for cat, entries := range s.stateBlock {
		cp := make([]StateEntry, len(entries))
		copy(cp, entries)
		out[cat] = cp
	}
	return out
}

// RecentTurns returns the rolling window of the last two user turns.
func (s *Store) RecentTurns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.recentTurns))
	copy(out, s.recentTurns)
	return out
}

// LastSummary returns the bounded summary of the latest assistant response.
func (s *Store) LastSummary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSummary
}

// mergeIntoStateBlock appends a slice's text into its category unless an
// entry with the same source hash is already present. Caller holds the lock.
func (s *Store) mergeIntoStateBlock(sl *Slice) {
	category := stateCategory[sl.Type]
	if category == "" {
		category = string(sl.Type)
	}
	for _, e := range s.stateBlock[category] {
		if e.SourceHash == sl.SourceHash {
			return
		}
	}
	s.stateBlock[category] = append(s.stateBlock[category], StateEntry{
		Text:       sl.Text,
		Confidence: sl.Confidence,
		SourceHash: sl.SourceHash,
		Timestamp:  sl.Timestamp,
	})
}
