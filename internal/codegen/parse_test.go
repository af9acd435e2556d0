package codegen

import (
	"strings"
	"testing"
)

func TestParseCodeOutputTaggedFence(t *testing.T) {
	output := "Here is the approach.\n```go\nFINAL(\"done\")\n```\ntrailing commentary"
	parsed := ParseCodeOutput(output)

	if !parsed.HasCode {
		t.Fatal("expected code")
	}
	if parsed.Code != `FINAL("done")` {
		t.Fatalf("Code = %q", parsed.Code)
	}
	if parsed.Explanation != "Here is the approach." {
		t.Fatalf("Explanation = %q", parsed.Explanation)
	}
}

func TestParseCodeOutputGenericFenceWithMarker(t *testing.T) {
	output := "```\nitems := list_agents()\nFINAL(len(items))\n```"
	parsed := ParseCodeOutput(output)
	if !parsed.HasCode {
		t.Fatal("generic fence containing FINAL should qualify as code")
	}
	if !strings.Contains(parsed.Code, "list_agents") {
		t.Fatalf("Code = %q", parsed.Code)
	}
}

func TestParseCodeOutputGenericFenceWithoutMarkers(t *testing.T) {
	output := "```\njust some prose inside a fence\n```"
	if parsed := ParseCodeOutput(output); parsed.HasCode {
		t.Fatalf("prose fence treated as code: %+v", parsed)
	}
}

func TestParseCodeOutputRawWithFinalCall(t *testing.T) {
	output := `x := 2 + 2` + "\n" + `FINAL(x)`
	parsed := ParseCodeOutput(output)
	if !parsed.HasCode || parsed.Code != output {
		t.Fatalf("parsed = %+v", parsed)
	}
}

func TestParseCodeOutputNoCode(t *testing.T) {
	if parsed := ParseCodeOutput("I cannot answer that."); parsed.HasCode {
		t.Fatalf("parsed = %+v", parsed)
	}
}

func TestParseFinalAnswerPriority(t *testing.T) {
	// Explicit final wins over stdout and result.
	ans := ParseFinalAnswer(Execution{FinalSet: true, Final: "the answer", Stdout: "noise", Result: 42})
	if !ans.HasAnswer || ans.Answer != "the answer" {
		t.Fatalf("ans = %+v", ans)
	}

	// Then stdout.
	ans = ParseFinalAnswer(Execution{Stdout: "  printed answer \n", Result: 42})
	if !ans.HasAnswer || ans.Answer != "printed answer" {
		t.Fatalf("ans = %+v", ans)
	}

	// Then the stringified result.
	ans = ParseFinalAnswer(Execution{Result: 42})
	if !ans.HasAnswer || ans.Answer != "42" {
		t.Fatalf("ans = %+v", ans)
	}

	// Nothing at all.
	ans = ParseFinalAnswer(Execution{})
	if ans.HasAnswer {
		t.Fatalf("ans = %+v", ans)
	}
}

func TestParseFinalAnswerPassesSubQueriesThrough(t *testing.T) {
	subs := []SubQuery{{Index: 0, Query: "what changed?", ContextSlice: "ctx"}}
	ans := ParseFinalAnswer(Execution{FinalSet: true, Final: "x", SubQueries: subs})
	if len(ans.SubQueries) != 1 || ans.SubQueries[0].Query != "what changed?" {
		t.Fatalf("SubQueries = %+v", ans.SubQueries)
	}
}

func TestBuildPromptListsAgents(t *testing.T) {
	p := BuildPrompt("what happened?", ContextInfo{
		AgentCount: 7,
		AgentNames: []string{"one", "two", "three", "four", "five", "six", "seven"},
	})

	if !strings.Contains(p.User, "7 agent(s)") {
		t.Fatalf("User = %q", p.User)
	}
	if !strings.Contains(p.User, "(+2 more)") {
		t.Fatalf("expected overflow marker: %q", p.User)
	}
	if strings.Contains(p.User, "six") {
		t.Fatalf("agents past the cap should not be named: %q", p.User)
	}
	if !strings.Contains(p.User, "what happened?") {
		t.Fatalf("question missing: %q", p.User)
	}
	if !strings.Contains(p.System, "FINAL(") {
		t.Fatal("system prompt must describe the final-answer call")
	}
}

func TestBuildPromptIncludesMemoryState(t *testing.T) {
	p := BuildPrompt("q", ContextInfo{AgentCount: 1, MemoryState: "- [requirement] must log errors"})
	if !strings.Contains(p.User, "must log errors") {
		t.Fatalf("memory state missing: %q", p.User)
	}
}

func TestBuildPromptIncludesContextDigest(t *testing.T) {
	p := BuildPrompt("q", ContextInfo{
		AgentCount:    1,
		AgentNames:    []string{"Sprint Planning"},
		ContextDigest: "### Sprint Planning\ndiscussed budget cuts",
	})
	if !strings.Contains(p.User, "Context digest (budgeted):") {
		t.Fatalf("digest section missing: %q", p.User)
	}
	if !strings.Contains(p.User, "discussed budget cuts") {
		t.Fatalf("digest content missing: %q", p.User)
	}

	empty := BuildPrompt("q", ContextInfo{AgentCount: 1})
	if strings.Contains(empty.User, "Context digest") {
		t.Fatalf("digest section should be omitted when empty: %q", empty.User)
	}
}
