package memory

import (
	"testing"
	"time"
)

// seed stores a slice directly, bypassing extraction.
func seed(s *Store, typ SliceType, text string, tags []string, agentIDs []string) *Slice {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl := buildSlice(typ, text, defaultConfidence, Metadata{AgentIDs: agentIDs})
	if tags != nil {
		sl.Tags = tags
	}
	s.storeSlice(sl)
	return sl
}

func TestRetrieveInferredTagRanking(t *testing.T) {
	s := New()
	seed(s, TypeEpisode, "we agreed on follow ups", []string{"action"}, nil)
	seed(s, TypeRequirement, "system must scale", []string{"requirement"}, nil)

	res := s.RetrieveSlices("action items", RetrieveOptions{})
	if len(res.Slices) == 0 {
		t.Fatal("no slices retrieved")
	}
	if !res.Slices[0].HasTag("action") {
		t.Fatalf("top slice should carry the action tag: %+v", res.Slices[0])
	}
}

func TestRetrieveRequiredTagFilter(t *testing.T) {
	s := New()
	seed(s, TypeRequirement, "must log errors", []string{"requirement"}, nil)
	seed(s, TypeParameter, "timeout is 30s", []string{"parameter"}, nil)

	res := s.RetrieveSlices("anything", RetrieveOptions{RequiredTags: []string{"parameter"}})
	if len(res.Slices) != 1 || res.Slices[0].Type != TypeParameter {
		t.Fatalf("slices = %+v", res.Slices)
	}
}

func TestRetrieveAgentAllowList(t *testing.T) {
	s := New()
	seed(s, TypeRequirement, "from meeting one", []string{"requirement"}, []string{"a1"})
	seed(s, TypeRequirement, "from meeting two", []string{"requirement"}, []string{"a2"})

	res := s.RetrieveSlices("", RetrieveOptions{AgentIDs: []string{"a2"}})
	if len(res.Slices) != 1 || res.Slices[0].SourceAgentIDs[0] != "a2" {
		t.Fatalf("slices = %+v", res.Slices)
	}
}

func TestRetrieveRecencyWindow(t *testing.T) {
	s := New()
	old := seed(s, TypeRequirement, "stale fact", []string{"requirement"}, nil)
	s.mu.Lock()
	old.Timestamp = time.Now().Add(-48 * time.Hour)
	s.mu.Unlock()
	seed(s, TypeRequirement, "fresh fact", []string{"requirement"}, nil)

	res := s.RetrieveSlices("", RetrieveOptions{RecencyWindow: time.Hour})
	if len(res.Slices) != 1 || res.Slices[0].Text != "fresh fact" {
		t.Fatalf("slices = %+v", res.Slices)
	}
}

func TestRetrievePerTagCap(t *testing.T) {
	s := New()
	seed(s, TypeRequirement, "req one", nil, nil)
	seed(s, TypeRequirement, "req two", nil, nil)
	seed(s, TypeRequirement, "req three", nil, nil)

	res := s.RetrieveSlices("", RetrieveOptions{MaxResults: 5})
	if len(res.Slices) != 2 {
		t.Fatalf("per-tag cap violated: got %d slices", len(res.Slices))
	}
}

func TestRetrieveSourceHashDedup(t *testing.T) {
	s := New()
	seed(s, TypeRequirement, "identical text", nil, nil)
	seed(s, TypeParameter, "identical text", nil, nil)

	res := s.RetrieveSlices("", RetrieveOptions{})
	if len(res.Slices) != 1 {
		t.Fatalf("hash dedup failed: %+v", res.Slices)
	}
}

func TestRetrieveCounterUpdates(t *testing.T) {
	s := New()
	seed(s, TypeRequirement, "counted fact", nil, nil)

	s.RetrieveSlices("", RetrieveOptions{UpdateShadow: true})
	s.RetrieveSlices("", RetrieveOptions{UpdateStats: true})

	all := s.Slices()
	if all[0].RetrievalCountShadow != 1 {
		t.Fatalf("shadow counter = %d, want 1", all[0].RetrievalCountShadow)
	}
	if all[0].RetrievalCount != 1 {
		t.Fatalf("live counter = %d, want 1", all[0].RetrievalCount)
	}
}

func TestRetrieveRedundancyPenalty(t *testing.T) {
	s := New()
	worn := seed(s, TypeRequirement, "seen many times", nil, nil)
	s.mu.Lock()
	worn.RetrievalCountShadow = 20
	s.mu.Unlock()
	seed(s, TypeParameter, "never retrieved", nil, nil)

	res := s.RetrieveSlices("", RetrieveOptions{})
	if len(res.Slices) != 2 {
		t.Fatalf("got %d slices", len(res.Slices))
	}
	if res.Slices[0].Text != "never retrieved" {
		t.Fatalf("redundancy penalty did not demote the worn slice: %+v", res.Slices)
	}
}

func TestRetrieveStats(t *testing.T) {
	s := New()
	seed(s, TypeRequirement, "a fact", nil, nil)

	res := s.RetrieveSlices("", RetrieveOptions{})
	if res.Considered != 1 || res.Matched != 1 {
		t.Fatalf("stats = %+v", res)
	}
	if res.Latency < 0 {
		t.Fatalf("latency = %v", res.Latency)
	}
}
