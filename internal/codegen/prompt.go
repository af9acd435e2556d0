// Package codegen turns user questions into prompts asking the completion
// service for executable analysis code, extracts and validates the returned
// code, and parses execution results back into structured answers.
package codegen

import (
	"fmt"
	"strings"
)

// =============================================================================
// PROMPT CONSTRUCTION
// =============================================================================

// Prompt is a system/user prompt pair for the completion service.
type Prompt struct {
	System string
	User   string
}

// ContextInfo describes the loaded context for prompt construction.
type ContextInfo struct {
	AgentCount int
	AgentNames []string

	// ContextDigest is the budgeted per-agent context assembly, included in
	// the user prompt when non-empty so the model can answer without a
	// sandbox round trip for simple lookups.
	ContextDigest string

	// MemoryState is an optional rendering of the memory state block,
	// included in the user prompt when non-empty.
	MemoryState string
}

// systemPrompt describes the sandbox environment to the model: the shape of
// the injected context document and the helper API the generated code may
// call. Helper names here must stay in lockstep with the sandbox prelude.
const systemPrompt = `You are a code-writing assistant operating inside a sandboxed Go interpreter.

A variable named context holds a JSON document already parsed for you:

  {
    "agent_count": <int>,
    "agents": [
      {
        "id": "...", "display_name": "...", "title": "...", "date": "...",
        "source_type": "...", "enabled": true,
        "summary": "...", "key_points": [...], "action_items": [...],
        "sentiment": "...", "transcript": "..."
      }
    ],
    "generated_at": "..."
  }

These helper functions are pre-defined. Call them directly; do not redefine them:

  partition(text string, chunkSize int) []string
      Word-aware chunking. Never splits mid-word.
  grep(pattern string, text string, flags string) []map[string]interface{}
      Regex line search. Each match has line_number, line, context.
      Flags: "i" for case-insensitive. Invalid pattern yields one {error: ...}.
  search_agents(keyword string) []map[string]interface{}
      Case-insensitive substring search across summary, key points, action
      items and transcript of every enabled agent. Returns excerpts.
  get_agent(id string) map[string]interface{}
      Agent by id, or nil.
  list_agents() []map[string]interface{}
      All enabled agents.
  get_all_action_items() []map[string]interface{}
      {agent, item} pairs across enabled agents.
  get_all_summaries() []map[string]interface{}
      {agent, summary} pairs across enabled agents.
  sub_lm(query string, contextSlice string) string
      Defers a sub-question to the language model. Returns a placeholder
      token that will be substituted with the sub-answer afterwards.
  FINAL(value interface{})
      Declares the final answer. Call exactly once, at the end.
  FINAL_VAR(name string)
      Declares that the named variable holds the final answer.

Respond with a single fenced Go code block. The code runs top-level in a
REPL: write statements directly, no package clause and no func main. Only
the Go standard library subset for strings, sorting and formatting is
available; do not import os, net or similar. Always finish by calling
FINAL(...) or FINAL_VAR(...).`

// maxNamedAgents bounds how many agent names the user prompt lists.
const maxNamedAgents = 5

// BuildPrompt assembles the prompt pair for a query over the given context.
func BuildPrompt(query string, info ContextInfo) Prompt {
	var b strings.Builder

	fmt.Fprintf(&b, "Loaded context: %d agent(s)", info.AgentCount)
	if len(info.AgentNames) > 0 {
		names := info.AgentNames
		overflow := 0
		if len(names) > maxNamedAgents {
			overflow = len(names) - maxNamedAgents
			names = names[:maxNamedAgents]
		}
		fmt.Fprintf(&b, ": %s", strings.Join(names, ", "))
		if overflow > 0 {
			fmt.Fprintf(&b, " (+%d more)", overflow)
		}
	}
	b.WriteString("\n")

	if info.ContextDigest != "" {
		b.WriteString("\nContext digest (budgeted):\n")
		b.WriteString(info.ContextDigest)
		b.WriteString("\n")
	}

	if info.MemoryState != "" {
		b.WriteString("\nAccumulated memory state:\n")
		b.WriteString(info.MemoryState)
		b.WriteString("\n")
	}

	b.WriteString("\nQuestion: ")
	b.WriteString(query)
	b.WriteString("\n\nWrite code that answers the question using the context and helpers, ending with FINAL(...).")

	return Prompt{System: systemPrompt, User: b.String()}
}
