// Package session owns one conversational session: its context store,
// memory store, sandbox controller and completion service, and the Ask
// pipeline tying them together. Sessions are explicit objects; nothing in
// the engine is process-global, so independent sessions can run
// concurrently.
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"parley/internal/agent"
	"parley/internal/codegen"
	"parley/internal/completion"
	"parley/internal/contextstore"
	"parley/internal/logging"
	"parley/internal/memory"
	"parley/internal/repl"
	"parley/internal/sandbox"
)

// Config controls session behaviour.
type Config struct {
	// TokenBudget bounds prompt context assembly.
	TokenBudget int

	// ExecTimeout bounds each sandbox execution.
	ExecTimeout time.Duration

	// MaxSubQueries caps deferred sub_lm calls resolved per Ask.
	MaxSubQueries int

	// LiveRetrievalStats makes memory retrieval bump the live counters
	// instead of the shadow ones.
	LiveRetrievalStats bool
}

// DefaultConfig returns the standard session behaviour.
func DefaultConfig() Config {
	return Config{
		TokenBudget:   6000,
		ExecTimeout:   30 * time.Second,
		MaxSubQueries: 5,
	}
}

// Answer is the outcome of one Ask.
type Answer struct {
	Text        string
	Explanation string
	Code        string

	// NoCode is set when the model produced no executable code and its raw
	// text was used as the answer directly.
	NoCode bool

	Stdout             string
	Stderr             string
	SubQueriesResolved int
	SlicesStored       int
	Usage              completion.Usage

	// Warnings are non-blocking validation notes on the generated code.
	Warnings []string

	// Budget report for the context digest included in the prompt.
	ContextIncluded  []string
	ContextSkipped   []string
	ContextTokens    int
	ContextRemaining int
}

// ErrInvalidCode wraps validation failures; the generated code never ran.
type ErrInvalidCode struct {
	Problems []string
}

func (e *ErrInvalidCode) Error() string {
	return "generated code failed validation: " + strings.Join(e.Problems, "; ")
}

// Session is one live conversation over a set of loaded agents.
type Session struct {
	ID string

	cfg     Config
	Context *contextstore.Store
	Memory  *memory.Store
	ctrl    *repl.Controller
	svc     completion.Service
	log     *zap.SugaredLogger
}

// New creates a session with its own stores. A nil controller gets a
// default sandbox-backed one.
func New(cfg Config, svc completion.Service, ctrl *repl.Controller) *Session {
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = 6000
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = 30 * time.Second
	}
	if cfg.MaxSubQueries <= 0 {
		cfg.MaxSubQueries = 5
	}
	if ctrl == nil {
		ctrl = repl.New(repl.DefaultConfig(), nil)
	}
	return &Session{
		ID:      uuid.NewString(),
		cfg:     cfg,
		Context: contextstore.New(),
		Memory:  memory.New(),
		ctrl:    ctrl,
		svc:     svc,
		log:     logging.Named(logging.CategorySession),
	}
}

// LoadAgents replaces the session's agent set.
func (s *Session) LoadAgents(agents []agent.Agent) {
	s.Context.LoadAgents(agents)
}

// Close tears the sandbox down.
func (s *Session) Close() {
	s.ctrl.Terminate()
}

// Ask runs the full pipeline for one question: context selection and memory
// retrieval, prompt construction, completion, code extraction and
// validation, sandboxed execution, sub-query resolution, and memory capture.
func (s *Session) Ask(ctx context.Context, query string) (Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Answer{}, fmt.Errorf("empty query")
	}

	start := time.Now()
	var ans Answer

	matches := s.Context.QueryAgents(query, contextstore.QueryOptions{})
	agentIDs := make([]string, len(matches))
	for i, m := range matches {
		agentIDs[i] = m.Agent.ID
	}

	retrieved := s.Memory.RetrieveSlices(query, memory.RetrieveOptions{
		UpdateStats:  s.cfg.LiveRetrievalStats,
		UpdateShadow: !s.cfg.LiveRetrievalStats,
	})

	payload, err := s.Context.SandboxPayload()
	if err != nil {
		return ans, err
	}
	if err := s.ctrl.SetContext(ctx, payload); err != nil {
		return ans, fmt.Errorf("failed to load sandbox context: %w", err)
	}

	budget := s.Context.ContextWithBudget(s.cfg.TokenBudget, contextstore.BudgetOptions{Query: query})
	ans.ContextIncluded = budget.Included
	ans.ContextSkipped = budget.Skipped
	ans.ContextRemaining = budget.RemainingTokens
	ans.ContextTokens = s.Context.MeasureTokens(budget.Context)

	prompt := codegen.BuildPrompt(query, codegen.ContextInfo{
		AgentCount:    s.Context.ActiveAgentCount(),
		AgentNames:    s.Context.AgentNames(),
		ContextDigest: budget.Context,
		MemoryState:   s.renderMemoryState(retrieved.Slices),
	})

	res, err := s.svc.Complete(ctx, prompt.System, prompt.User)
	if err != nil {
		return ans, fmt.Errorf("completion failed: %w", err)
	}
	ans.Usage = res.Usage

	parsed := codegen.ParseCodeOutput(res.Text)
	if !parsed.HasCode {
		// No executable code in the response: the text itself is the answer.
		ans.NoCode = true
		ans.Text = strings.TrimSpace(res.Text)
		s.capture(query, ans.Text, agentIDs, &ans)
		return ans, nil
	}
	ans.Code = parsed.Code
	ans.Explanation = parsed.Explanation

	v := codegen.ValidateCode(parsed.Code)
	ans.Warnings = v.Warnings
	if !v.IsValid {
		return ans, &ErrInvalidCode{Problems: v.Errors}
	}

	exec, err := s.ctrl.Execute(ctx, parsed.Code, s.cfg.ExecTimeout)
	if err != nil {
		return ans, fmt.Errorf("execution failed: %w", err)
	}
	ans.Stdout = exec.Stdout
	ans.Stderr = exec.Stderr
	if exec.TimedOut {
		return ans, fmt.Errorf("execution timed out")
	}
	if !exec.Success {
		return ans, fmt.Errorf("sandbox error: %s", exec.Error)
	}

	final := codegen.ParseFinalAnswer(adaptExecution(exec))
	if !final.HasAnswer {
		return ans, fmt.Errorf("execution produced no answer")
	}
	ans.Text = final.Answer

	if len(final.SubQueries) > 0 {
		resolved, n := s.resolveSubQueries(ctx, ans.Text, final.SubQueries, &ans.Usage)
		ans.Text = resolved
		ans.SubQueriesResolved = n
	}

	s.capture(query, ans.Text, agentIDs, &ans)
	s.log.Infow("ask complete", "session", s.ID, "elapsed", time.Since(start),
		"agents", len(agentIDs), "sub_queries", ans.SubQueriesResolved)
	return ans, nil
}

func (s *Session) capture(query, answer string, agentIDs []string, ans *Answer) {
	captured := s.Memory.CaptureCompletion(query, answer, memory.Metadata{AgentIDs: agentIDs})
	ans.SlicesStored = len(captured.Slices)
}

// subQuerySystemPrompt asks for a plain answer; sub-queries never generate
// code of their own.
const subQuerySystemPrompt = `Answer the question directly and concisely using only the provided context. Respond with plain text, no code.`

// resolveSubQueries answers each deferred sub_lm call with a plain
// completion over its context slice and substitutes the answer for the
// placeholder token in the final text. Failed sub-queries leave a bracketed
// note in place of the placeholder.
func (s *Session) resolveSubQueries(ctx context.Context, text string, subs []codegen.SubQuery, usage *completion.Usage) (string, int) {
	if len(subs) > s.cfg.MaxSubQueries {
		s.log.Warnw("capping sub-queries", "requested", len(subs), "cap", s.cfg.MaxSubQueries)
		subs = subs[:s.cfg.MaxSubQueries]
	}

	resolved := 0
	for _, sq := range subs {
		placeholder := fmt.Sprintf("[SUB_LM:%d]", sq.Index)

		user := sq.Query
		if sq.ContextSlice != "" {
			user = "Context:\n" + sq.ContextSlice + "\n\nQuestion: " + sq.Query
		}
		res, err := s.svc.Complete(ctx, subQuerySystemPrompt, user)
		if err != nil {
			s.log.Warnw("sub-query failed", "index", sq.Index, "error", err)
			text = strings.ReplaceAll(text, placeholder, "[sub-query failed]")
			continue
		}
		usage.PromptTokens += res.Usage.PromptTokens
		usage.CompletionTokens += res.Usage.CompletionTokens
		text = strings.ReplaceAll(text, placeholder, strings.TrimSpace(res.Text))
		resolved++
	}
	return text, resolved
}

// adaptExecution maps a sandbox result into the shape the answer parser
// consumes.
func adaptExecution(exec sandbox.ExecResult) codegen.Execution {
	out := codegen.Execution{
		FinalSet: exec.FinalSet,
		Final:    exec.Final,
		Stdout:   exec.Stdout,
		Result:   exec.Result,
	}
	for _, sq := range exec.SubQueries {
		out.SubQueries = append(out.SubQueries, codegen.SubQuery{
			Index:        sq.Index,
			Query:        sq.Query,
			ContextSlice: sq.ContextSlice,
		})
	}
	return out
}

// renderMemoryState builds the prompt's memory section: retrieved slices
// first, then a compact view of the state block.
func (s *Session) renderMemoryState(slices []memory.Slice) string {
	var b strings.Builder

	for _, sl := range slices {
		fmt.Fprintf(&b, "- [%s] %s\n", sl.Type, sl.Text)
	}

	block := s.Memory.StateBlock()
	for _, category := range []string{"requirements", "parameters", "conflicts", "exceptions"} {
		entries := block[category]
		if len(entries) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s:\n", category)
		for _, e := range entries {
			fmt.Fprintf(&b, "  - %s\n", e.Text)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
