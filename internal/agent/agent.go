// Package agent defines the analyzed-meeting record consumed by the RLM
// query engine and the single normalization function applied at the import
// boundary. Records arrive from the analysis pipeline (transcription,
// summary, key points, action items, sentiment) and are treated as
// read-mostly after normalization.
package agent

import (
	"github.com/google/uuid"
)

// Agent is one fully-analyzed meeting record usable as a unit of context.
//
// All fields are optional at the boundary; Normalize fills defaults so
// consumers never need ad-hoc nil checks. Payload is opaque pass-through
// data the engine never inspects.
type Agent struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`

	// Date is an ISO-ish date string. It may be unparsable; consumers that
	// need recency must tolerate that.
	Date string `json:"date,omitempty" yaml:"date,omitempty"`

	SourceType string `json:"source_type,omitempty" yaml:"source_type,omitempty"`
	Enabled    bool   `json:"enabled" yaml:"enabled"`

	Summary          string   `json:"summary,omitempty" yaml:"summary,omitempty"`
	CodeOverview     string   `json:"code_overview,omitempty" yaml:"code_overview,omitempty"`
	Requirements     []string `json:"requirements,omitempty" yaml:"requirements,omitempty"`
	DesignParameters []string `json:"design_parameters,omitempty" yaml:"design_parameters,omitempty"`
	CrossReferences  []string `json:"cross_references,omitempty" yaml:"cross_references,omitempty"`
	ComplianceNotes  []string `json:"compliance_notes,omitempty" yaml:"compliance_notes,omitempty"`

	KeyPoints   []string `json:"key_points,omitempty" yaml:"key_points,omitempty"`
	ActionItems []string `json:"action_items,omitempty" yaml:"action_items,omitempty"`
	Sentiment   string   `json:"sentiment,omitempty" yaml:"sentiment,omitempty"`

	SourceText      string `json:"source_text,omitempty" yaml:"source_text,omitempty"`
	Transcript      string `json:"transcript,omitempty" yaml:"transcript,omitempty"`
	ExtendedContext string `json:"extended_context,omitempty" yaml:"extended_context,omitempty"`

	Payload map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// Name returns the best display name available: DisplayName, then Title,
// then the ID.
func (a Agent) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	if a.Title != "" {
		return a.Title
	}
	return a.ID
}

// Overview returns the best short description available.
func (a Agent) Overview() string {
	if a.CodeOverview != "" {
		return a.CodeOverview
	}
	return a.Summary
}

// Source returns the large-text body: SourceText, falling back to the raw
// transcript.
func (a Agent) Source() string {
	if a.SourceText != "" {
		return a.SourceText
	}
	return a.Transcript
}

// Normalize applies boundary defaulting to a single record: a missing ID is
// assigned, nil sub-lists become empty slices, and DisplayName falls back to
// Title or the ID. Malformed records degrade silently rather than failing.
func Normalize(a Agent) Agent {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.DisplayName == "" {
		if a.Title != "" {
			a.DisplayName = a.Title
		} else {
			a.DisplayName = a.ID
		}
	}
	if a.Requirements == nil {
		a.Requirements = []string{}
	}
	if a.DesignParameters == nil {
		a.DesignParameters = []string{}
	}
	if a.CrossReferences == nil {
		a.CrossReferences = []string{}
	}
	if a.ComplianceNotes == nil {
		a.ComplianceNotes = []string{}
	}
	if a.KeyPoints == nil {
		a.KeyPoints = []string{}
	}
	if a.ActionItems == nil {
		a.ActionItems = []string{}
	}
	return a
}

// NormalizeAll normalizes a batch of records.
func NormalizeAll(agents []Agent) []Agent {
	out := make([]Agent, len(agents))
	for i, a := range agents {
		out[i] = Normalize(a)
	}
	return out
}

// =============================================================================
// SANDBOX VIEW
// =============================================================================

// SandboxView is the fixed, flattened shape injected into the sandbox
// context document. Generated analysis code addresses agents exclusively
// through this shape.
type SandboxView struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Title       string   `json:"title"`
	Date        string   `json:"date"`
	SourceType  string   `json:"source_type"`
	Enabled     bool     `json:"enabled"`
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"key_points"`
	ActionItems []string `json:"action_items"`
	Sentiment   string   `json:"sentiment"`
	Transcript  string   `json:"transcript"`
}

// Sandbox converts the record into its sandbox view.
func (a Agent) Sandbox() SandboxView {
	return SandboxView{
		ID:          a.ID,
		DisplayName: a.Name(),
		Title:       a.Title,
		Date:        a.Date,
		SourceType:  a.SourceType,
		Enabled:     a.Enabled,
		Summary:     a.Overview(),
		KeyPoints:   a.KeyPoints,
		ActionItems: a.ActionItems,
		Sentiment:   a.Sentiment,
		Transcript:  a.Transcript,
	}
}
