package contextstore

import (
	"encoding/json"
	"fmt"
	"time"

	"parley/internal/agent"
)

// =============================================================================
// COMPACT SERIALIZATIONS
// =============================================================================
// Alternate views of the store trading completeness for token footprint.
// All of them truncate source text beyond a character limit, appending a
// marker that preserves the original length.

// DefaultSourceCharLimit bounds raw source text in compact serializations.
const DefaultSourceCharLimit = 800

// compactAgent is the shape used by the compact JSON serializations.
type compactAgent struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Date        string   `json:"date,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	KeyPoints   []string `json:"key_points,omitempty"`
	ActionItems []string `json:"action_items,omitempty"`
	Sentiment   string   `json:"sentiment,omitempty"`
	Source      string   `json:"source,omitempty"`
}

func compactView(a agent.Agent, sourceLimit int) compactAgent {
	return compactAgent{
		ID:          a.ID,
		DisplayName: a.Name(),
		Date:        a.Date,
		Summary:     truncateWithNote(a.Overview(), sourceLimit),
		KeyPoints:   a.KeyPoints,
		ActionItems: a.ActionItems,
		Sentiment:   a.Sentiment,
		Source:      truncateWithNote(a.Source(), sourceLimit),
	}
}

// CompactContext serializes every active agent in compact form. A
// sourceCharLimit of 0 means DefaultSourceCharLimit.
func (s *Store) CompactContext(sourceCharLimit int) string {
	if sourceCharLimit <= 0 {
		sourceCharLimit = DefaultSourceCharLimit
	}

	active := s.ActiveAgents()
	views := make([]compactAgent, len(active))
	for i, a := range active {
		views[i] = compactView(a, sourceCharLimit)
	}

	data, _ := json.MarshalIndent(views, "", "  ")
	return string(data)
}

// RelevantCompactContext serializes the agents most relevant to query, in
// compact form. maxAgents of 0 means 5.
func (s *Store) RelevantCompactContext(query string, maxAgents, sourceCharLimit int) string {
	if sourceCharLimit <= 0 {
		sourceCharLimit = DefaultSourceCharLimit
	}
	matches := s.QueryAgents(query, QueryOptions{MaxResults: maxAgents})

	views := make([]compactAgent, len(matches))
	for i, m := range matches {
		views[i] = compactView(m.Agent, sourceCharLimit)
	}

	data, _ := json.MarshalIndent(views, "", "  ")
	return string(data)
}

// OptimizedREPLContext is the tightest serialization: name, date, and a
// short summary per agent, one line each. Intended for prompt headers, not
// for the sandbox payload.
func (s *Store) OptimizedREPLContext() string {
	active := s.ActiveAgents()
	out := make([]byte, 0, len(active)*80)
	for _, a := range active {
		line := fmt.Sprintf("- %s", a.Name())
		if a.Date != "" {
			line += fmt.Sprintf(" (%s)", a.Date)
		}
		if ov := a.Overview(); ov != "" {
			line += ": " + TruncateText(ov, 160)
		}
		out = append(out, line...)
		out = append(out, '\n')
	}
	return string(out)
}

// =============================================================================
// SANDBOX PAYLOAD
// =============================================================================

// SandboxDocument is the JSON document loaded into the sandbox's context
// variable.
type SandboxDocument struct {
	AgentCount  int                 `json:"agent_count"`
	Agents      []agent.SandboxView `json:"agents"`
	GeneratedAt string              `json:"generated_at"`
}

// DefaultTranscriptCharLimit bounds raw transcripts in the sandbox payload.
// Deliberately generous so grep and search_agents stay useful over long
// meetings.
const DefaultTranscriptCharLimit = 12000

// SandboxPayload serializes all active agents into the document consumed by
// the sandbox helpers, with the default transcript limit. Display names in
// the payload round-trip exactly to AgentNames.
func (s *Store) SandboxPayload() (string, error) {
	return s.SandboxPayloadLimited(DefaultTranscriptCharLimit)
}

// SandboxPayloadLimited serializes all active agents, truncating each
// transcript past transcriptCharLimit with a marker that preserves the
// original length. A limit of 0 means DefaultTranscriptCharLimit.
func (s *Store) SandboxPayloadLimited(transcriptCharLimit int) (string, error) {
	if transcriptCharLimit <= 0 {
		transcriptCharLimit = DefaultTranscriptCharLimit
	}

	active := s.ActiveAgents()
	doc := SandboxDocument{
		AgentCount:  len(active),
		Agents:      make([]agent.SandboxView, len(active)),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for i, a := range active {
		v := a.Sandbox()
		v.Transcript = truncateWithNote(v.Transcript, transcriptCharLimit)
		doc.Agents[i] = v
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to serialize sandbox payload: %w", err)
	}
	return string(data), nil
}
