package agent

import (
	"testing"
)

func TestNormalizeAssignsID(t *testing.T) {
	a := Normalize(Agent{DisplayName: "Sprint Planning"})
	if a.ID == "" {
		t.Fatal("expected Normalize to assign an id")
	}
}

func TestNormalizeDisplayNameFallback(t *testing.T) {
	a := Normalize(Agent{ID: "a1", Title: "Q4 Review"})
	if a.DisplayName != "Q4 Review" {
		t.Fatalf("DisplayName = %q, want %q", a.DisplayName, "Q4 Review")
	}

	b := Normalize(Agent{ID: "a2"})
	if b.DisplayName != "a2" {
		t.Fatalf("DisplayName = %q, want %q", b.DisplayName, "a2")
	}
}

func TestNormalizeFillsEmptySlices(t *testing.T) {
	a := Normalize(Agent{ID: "a1"})
	if a.Requirements == nil || a.KeyPoints == nil || a.ActionItems == nil {
		t.Fatal("expected nil sub-lists to become empty slices")
	}
	if len(a.Requirements) != 0 {
		t.Fatalf("Requirements = %v, want empty", a.Requirements)
	}
}

func TestNameAndOverviewFallbacks(t *testing.T) {
	a := Agent{ID: "a1", Summary: "summary text"}
	if a.Name() != "a1" {
		t.Fatalf("Name = %q, want %q", a.Name(), "a1")
	}
	if a.Overview() != "summary text" {
		t.Fatalf("Overview = %q, want %q", a.Overview(), "summary text")
	}

	a.CodeOverview = "overview text"
	if a.Overview() != "overview text" {
		t.Fatalf("Overview = %q, want %q", a.Overview(), "overview text")
	}
}

func TestParseJSONEnabledDefaultsTrue(t *testing.T) {
	data := []byte(`[
		{"id": "a1", "display_name": "Sprint Planning"},
		{"id": "a2", "display_name": "Q4 Review", "enabled": false}
	]`)

	agents, err := ParseJSON(data)
	if err != nil {
		t.Fatalf("ParseJSON failed: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("got %d agents, want 2", len(agents))
	}
	if !agents[0].Enabled {
		t.Fatal("agent without enabled field should default to enabled")
	}
	if agents[1].Enabled {
		t.Fatal("explicitly disabled agent should stay disabled")
	}
}

func TestParseYAML(t *testing.T) {
	data := []byte(`
- id: a1
  display_name: Sprint Planning
  key_points:
    - budget cuts
- id: a2
  enabled: false
`)
	agents, err := ParseYAML(data)
	if err != nil {
		t.Fatalf("ParseYAML failed: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("got %d agents, want 2", len(agents))
	}
	if !agents[0].Enabled || agents[1].Enabled {
		t.Fatalf("enabled defaulting wrong: %v %v", agents[0].Enabled, agents[1].Enabled)
	}
	if len(agents[0].KeyPoints) != 1 {
		t.Fatalf("KeyPoints = %v", agents[0].KeyPoints)
	}
}

func TestParseJSONMalformed(t *testing.T) {
	if _, err := ParseJSON([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestSandboxView(t *testing.T) {
	a := Normalize(Agent{
		ID:          "a1",
		Title:       "Sprint Planning",
		Summary:     "discussed budget cuts",
		ActionItems: []string{"follow up"},
		Enabled:     true,
	})
	v := a.Sandbox()
	if v.DisplayName != "Sprint Planning" {
		t.Fatalf("DisplayName = %q", v.DisplayName)
	}
	if v.Summary != "discussed budget cuts" {
		t.Fatalf("Summary = %q", v.Summary)
	}
	if len(v.ActionItems) != 1 {
		t.Fatalf("ActionItems = %v", v.ActionItems)
	}
}
