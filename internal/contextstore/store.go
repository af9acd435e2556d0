// Package contextstore holds the set of loaded meeting agents, indexes them
// for keyword search, ranks them against user queries, and produces context
// slices at multiple detail tiers under a token budget.
//
// The store is read-mostly: LoadAgents replaces all state wholesale and
// rebuilds the per-agent search indexes; nothing mutates individual agents
// afterwards. All methods are safe for concurrent use.
package contextstore

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"parley/internal/agent"
	"parley/internal/index"
	"parley/internal/logging"
)

// Store is the agent context store.
type Store struct {
	mu          sync.RWMutex
	agents      []agent.Agent
	indexes     map[string]*searchIndex
	lastUpdated time.Time
	estimator   Estimator

	log *zap.SugaredLogger
}

// searchIndex is the derived per-agent index: a full lowercase text blob,
// the extracted keyword set, and lowercase per-field blobs for weighted
// scoring.
type searchIndex struct {
	blob     string
	keywords map[string]bool

	name         string
	overview     string
	requirements string
	parameters   string
	crossrefs    string
	source       string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		indexes:   make(map[string]*searchIndex),
		estimator: heuristicEstimator{},
		log:       logging.Named(logging.CategoryContext),
	}
}

// LoadAgents replaces all store state with the given records. Records are
// normalized at this boundary; there is no partial-load mode.
func (s *Store) LoadAgents(agents []agent.Agent) {
	normalized := agent.NormalizeAll(agents)

	indexes := make(map[string]*searchIndex, len(normalized))
	for _, a := range normalized {
		indexes[a.ID] = buildIndex(a)
	}

	s.mu.Lock()
	s.agents = normalized
	s.indexes = indexes
	s.lastUpdated = time.Now()
	s.mu.Unlock()

	s.log.Infow("agents loaded", "total", len(normalized), "active", s.ActiveAgentCount())
}

func buildIndex(a agent.Agent) *searchIndex {
	idx := &searchIndex{
		name:         strings.ToLower(a.Name()),
		overview:     strings.ToLower(a.Overview()),
		requirements: strings.ToLower(strings.Join(a.Requirements, "\n")),
		parameters:   strings.ToLower(strings.Join(a.DesignParameters, "\n")),
		crossrefs:    strings.ToLower(strings.Join(a.CrossReferences, "\n")),
		source:       strings.ToLower(a.Source()),
	}

	var blob strings.Builder
	for _, part := range []string{
		idx.name, idx.overview, idx.requirements, idx.parameters, idx.crossrefs,
		strings.ToLower(strings.Join(a.ComplianceNotes, "\n")),
		strings.ToLower(strings.Join(a.KeyPoints, "\n")),
		strings.ToLower(strings.Join(a.ActionItems, "\n")),
		idx.source,
		strings.ToLower(a.ExtendedContext),
	} {
		if part == "" {
			continue
		}
		blob.WriteString(part)
		blob.WriteByte('\n')
	}
	idx.blob = blob.String()
	idx.keywords = index.KeywordSet(idx.blob)
	return idx
}

// TotalAgents returns the number of loaded agents.
func (s *Store) TotalAgents() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.agents)
}

// ActiveAgentCount returns the number of enabled agents.
func (s *Store) ActiveAgentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.agents {
		if a.Enabled {
			n++
		}
	}
	return n
}

// ActiveAgents returns the enabled agents in insertion order.
func (s *Store) ActiveAgents() []agent.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active := make([]agent.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		if a.Enabled {
			active = append(active, a)
		}
	}
	return active
}

// AllAgents returns every loaded agent in insertion order.
func (s *Store) AllAgents() []agent.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]agent.Agent, len(s.agents))
	copy(out, s.agents)
	return out
}

// AgentNames returns display names of all active agents in insertion order.
func (s *Store) AgentNames() []string {
	active := s.ActiveAgents()
	names := make([]string, len(active))
	for i, a := range active {
		names[i] = a.Name()
	}
	return names
}

// Agent looks up one agent by id.
func (s *Store) Agent(id string) (agent.Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.agents {
		if a.ID == id {
			return a, true
		}
	}
	return agent.Agent{}, false
}

// LastUpdated returns the time of the most recent LoadAgents call.
func (s *Store) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}
