package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/traefik/yaegi/interp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newReady(t *testing.T) *Executor {
	t.Helper()
	e := New(DefaultConfig())
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(e.Terminate)
	return e
}

func testPayload(t *testing.T) string {
	t.Helper()
	doc := map[string]any{
		"agent_count": 2,
		"agents": []map[string]any{
			{
				"id":           "a1",
				"display_name": "Sprint Planning",
				"enabled":      true,
				"summary":      "discussed budget cuts",
				"key_points":   []string{"cut travel budget"},
				"action_items": []string{"draft new budget"},
				"transcript":   "line one\nbudget line\nline three",
			},
			{
				"id":           "a2",
				"display_name": "Q4 Review",
				"enabled":      false,
				"summary":      "quarterly numbers",
			},
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return string(data)
}

func TestInitializeAndStateTransitions(t *testing.T) {
	e := New(DefaultConfig())
	if e.State() != StateUninitialized {
		t.Fatalf("state = %s", e.State())
	}
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if e.State() != StateReady {
		t.Fatalf("state = %s, want ready", e.State())
	}
	e.Terminate()
	if e.State() != StateTerminated {
		t.Fatalf("state = %s, want terminated", e.State())
	}
}

func TestInitializeTwiceFails(t *testing.T) {
	e := newReady(t)
	if err := e.Initialize(context.Background()); err == nil {
		t.Fatal("second Initialize should fail")
	}
}

func TestInitializeReportsSetupFailurePromptly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReadyTimeout = 5 * time.Second
	e := New(cfg)
	e.interpFactory = func() (*interp.Interpreter, error) {
		return nil, fmt.Errorf("symbol table corrupt")
	}

	start := time.Now()
	err := e.Initialize(context.Background())
	if err == nil {
		t.Fatal("expected setup failure")
	}
	if !strings.Contains(err.Error(), "symbol table corrupt") {
		t.Fatalf("error = %v", err)
	}
	// The failure must surface immediately, not after the ready timeout.
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Initialize blocked for %s", elapsed)
	}
	if e.State() != StateTerminated {
		t.Fatalf("state = %s, want terminated", e.State())
	}
}

func TestExecuteFinalAnswer(t *testing.T) {
	e := newReady(t)

	res, err := e.Execute(context.Background(), `FINAL("forty-two")`, 0)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if !res.FinalSet || res.Final != "forty-two" {
		t.Fatalf("final = %v (set=%v)", res.Final, res.FinalSet)
	}
}

func TestExecuteFinalVarResolution(t *testing.T) {
	e := newReady(t)

	code := "answer := \"resolved\"\nFINAL_VAR(\"answer\")"
	res, err := e.Execute(context.Background(), code, 0)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !res.FinalSet || res.Final != "resolved" {
		t.Fatalf("final = %v (set=%v)", res.Final, res.FinalSet)
	}
}

func TestExecutePartitionRespectsWordBoundaries(t *testing.T) {
	e := newReady(t)

	res, err := e.Execute(context.Background(), `partition("ab cd ef", 3)`, 0)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	chunks, ok := res.Result.([]string)
	if !ok {
		t.Fatalf("result type %T: %+v", res.Result, res)
	}
	if len(chunks) != 3 {
		t.Fatalf("chunks = %v", chunks)
	}
	for _, c := range chunks {
		if len(c) > 3 {
			t.Fatalf("chunk %q exceeds size", c)
		}
	}
}

func TestExecutePartitionKeepsLongWordsWhole(t *testing.T) {
	e := newReady(t)

	res, err := e.Execute(context.Background(), `partition("supercalifragilistic ab", 5)`, 0)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	chunks, ok := res.Result.([]string)
	if !ok || len(chunks) != 2 {
		t.Fatalf("chunks = %v", res.Result)
	}
	if chunks[0] != "supercalifragilistic" {
		t.Fatalf("long word split: %v", chunks)
	}
}

func TestExecuteGrep(t *testing.T) {
	e := newReady(t)

	res, err := e.Execute(context.Background(), `grep("budget", "alpha\nthe budget line\nomega", "")`, 0)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	matches, ok := res.Result.([]map[string]interface{})
	if !ok || len(matches) != 1 {
		t.Fatalf("matches = %#v", res.Result)
	}
	if matches[0]["line_number"] != 2 {
		t.Fatalf("line_number = %v", matches[0]["line_number"])
	}
	ctxText, _ := matches[0]["context"].(string)
	if !strings.Contains(ctxText, "alpha") || !strings.Contains(ctxText, "omega") {
		t.Fatalf("context = %q", ctxText)
	}
}

func TestExecuteGrepInvalidPattern(t *testing.T) {
	e := newReady(t)

	res, err := e.Execute(context.Background(), `grep("(unclosed", "text", "")`, 0)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	matches, ok := res.Result.([]map[string]interface{})
	if !ok || len(matches) != 1 {
		t.Fatalf("matches = %#v", res.Result)
	}
	if _, hasErr := matches[0]["error"]; !hasErr {
		t.Fatalf("expected error entry, got %v", matches[0])
	}
}

func TestContextHelpers(t *testing.T) {
	e := newReady(t)
	if err := e.SetContext(context.Background(), testPayload(t)); err != nil {
		t.Fatalf("SetContext failed: %v", err)
	}

	// Disabled agents are filtered from list_agents.
	res, err := e.Execute(context.Background(), `FINAL(len(list_agents()))`, 0)
	if err != nil || !res.FinalSet {
		t.Fatalf("res = %+v err = %v", res, err)
	}
	if res.Final != 1 {
		t.Fatalf("enabled agent count = %v, want 1", res.Final)
	}

	// get_agent finds disabled agents by id.
	res, err = e.Execute(context.Background(), `a := get_agent("a2")
FINAL(a["display_name"])`, 0)
	if err != nil || res.Final != "Q4 Review" {
		t.Fatalf("res = %+v err = %v", res, err)
	}

	// search_agents finds the keyword in enabled agents only.
	res, err = e.Execute(context.Background(), `FINAL(len(search_agents("budget")))`, 0)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	n, ok := res.Final.(int)
	if !ok || n == 0 {
		t.Fatalf("search hits = %v", res.Final)
	}

	// Action items carry the agent display name.
	res, err = e.Execute(context.Background(), `items := get_all_action_items()
FINAL(items[0]["agent"])`, 0)
	if err != nil || res.Final != "Sprint Planning" {
		t.Fatalf("res = %+v err = %v", res, err)
	}
}

func TestSetContextInvalidPayload(t *testing.T) {
	e := newReady(t)
	if err := e.SetContext(context.Background(), "{not json"); err == nil {
		t.Fatal("expected error for invalid payload")
	}
}

func TestSubQueryRegistration(t *testing.T) {
	e := newReady(t)

	code := "token := sub_lm(\"what changed?\", \"slice text\")\nFINAL(token)"
	res, err := e.Execute(context.Background(), code, 0)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Final != "[SUB_LM:0]" {
		t.Fatalf("final = %v", res.Final)
	}
	if len(res.SubQueries) != 1 {
		t.Fatalf("sub-queries = %+v", res.SubQueries)
	}
	if res.SubQueries[0].Query != "what changed?" || res.SubQueries[0].ContextSlice != "slice text" {
		t.Fatalf("sub-query = %+v", res.SubQueries[0])
	}
}

func TestSetContextClearsFinalState(t *testing.T) {
	e := newReady(t)

	if _, err := e.Execute(context.Background(), `FINAL("stale")`, 0); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if err := e.SetContext(context.Background(), testPayload(t)); err != nil {
		t.Fatalf("SetContext failed: %v", err)
	}

	res, err := e.Execute(context.Background(), `x := 1`, 0)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.FinalSet {
		t.Fatalf("final state leaked across SetContext: %+v", res)
	}
}

func TestExecuteStdoutCapture(t *testing.T) {
	e := newReady(t)

	res, err := e.Execute(context.Background(), `fmt.Println("captured output")`, 0)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(res.Stdout, "captured output") {
		t.Fatalf("stdout = %q", res.Stdout)
	}
}

func TestExecuteRejectsForbiddenImports(t *testing.T) {
	e := newReady(t)

	code := "import \"os\"\nFINAL(os.Getpid())"
	res, err := e.Execute(context.Background(), code, 0)
	if err == nil {
		t.Fatalf("expected import rejection, got %+v", res)
	}
	if !strings.Contains(err.Error(), "os") {
		t.Fatalf("error = %v", err)
	}
}

func TestExecuteEvalError(t *testing.T) {
	e := newReady(t)

	res, err := e.Execute(context.Background(), `this is not go`, 0)
	if err != nil {
		t.Fatalf("eval errors should be reported in the result, got %v", err)
	}
	if res.Success || res.Error == "" {
		t.Fatalf("res = %+v", res)
	}
}

func TestGetVariable(t *testing.T) {
	e := newReady(t)

	if _, err := e.Execute(context.Background(), `observed := 7`, 0); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	v, err := e.GetVariable(context.Background(), "observed")
	if err != nil {
		t.Fatalf("GetVariable failed: %v", err)
	}
	if v != 7 {
		t.Fatalf("v = %v", v)
	}
}

func TestResetDropsUserState(t *testing.T) {
	e := newReady(t)

	if _, err := e.Execute(context.Background(), `leftover := 1`, 0); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if err := e.Reset(context.Background()); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, err := e.GetVariable(context.Background(), "leftover"); err == nil {
		t.Fatal("user state should not survive Reset")
	}

	// Helpers are re-injected.
	res, err := e.Execute(context.Background(), `FINAL(len(partition("a b", 10)))`, 0)
	if err != nil || res.Final != 1 {
		t.Fatalf("res = %+v err = %v", res, err)
	}
}

func TestTerminateRejectsFurtherUse(t *testing.T) {
	e := New(DefaultConfig())
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	e.Terminate()
	e.Terminate() // idempotent

	if _, err := e.Execute(context.Background(), `FINAL(1)`, time.Second); err == nil {
		t.Fatal("Execute after Terminate should fail")
	}
}
