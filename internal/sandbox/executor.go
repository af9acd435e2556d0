// Package sandbox runs model-generated analysis code in an embedded Go
// interpreter. Each Executor owns one interpreter instance confined to a
// worker goroutine; callers talk to it through an id-correlated
// request/response channel pair, never by touching the interpreter directly.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"parley/internal/logging"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config controls executor limits.
type Config struct {
	// ReadyTimeout bounds the wait for the worker's ready signal.
	ReadyTimeout time.Duration

	// ExecTimeout is the default per-execution timeout when the caller
	// passes zero.
	ExecTimeout time.Duration

	// OutputLimit caps captured stdout and stderr, each.
	OutputLimit int

	// AllowedImports is the stdlib import whitelist enforced before
	// evaluation. Nil means DefaultAllowedImports.
	AllowedImports map[string]bool
}

// DefaultConfig returns the standard executor limits.
func DefaultConfig() Config {
	return Config{
		ReadyTimeout: 5 * time.Second,
		ExecTimeout:  30 * time.Second,
		OutputLimit:  10 * 1024,
	}
}

// DefaultAllowedImports lists the stdlib packages generated code may import.
// Everything touching the filesystem, network, processes or unsafe memory is
// absent on purpose.
func DefaultAllowedImports() map[string]bool {
	return map[string]bool{
		"strings":         true,
		"strconv":         true,
		"fmt":             true,
		"math":            true,
		"regexp":          true,
		"encoding/json":   true,
		"encoding/base64": true,
		"time":            true,
		"sort":            true,
		"bytes":           true,
		"unicode":         true,
	}
}

// =============================================================================
// STATES AND RESULTS
// =============================================================================

// State is the executor lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateExecuting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateExecuting:
		return "executing"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// SubQuery is one deferred sub_lm call registered during an execution.
type SubQuery struct {
	Index        int
	Query        string
	ContextSlice string
}

// ExecResult reports one execution.
type ExecResult struct {
	Success  bool
	Result   any
	Stdout   string
	Stderr   string
	Error    string
	TimedOut bool

	// FinalSet reports whether the code declared a final answer, either
	// directly or through a resolved FINAL_VAR name.
	FinalSet bool
	Final    any

	SubQueries []SubQuery
}

// ErrTerminated is returned for operations on a terminated executor and for
// requests in flight when termination happens.
var ErrTerminated = fmt.Errorf("sandbox terminated")

// =============================================================================
// MESSAGE PROTOCOL
// =============================================================================

type reqKind int

const (
	reqEval reqKind = iota
	reqLoadContext
	reqGetVar
	reqReset
)

// readySignalID is the reserved correlation id of the worker's unsolicited
// ready signal.
const readySignalID = 0

type request struct {
	id   uint64
	kind reqKind
	code string
}

type response struct {
	id     uint64
	result any
	exec   *ExecResult
	err    error
}

// =============================================================================
// EXECUTOR
// =============================================================================

// Executor is one sandbox instance. Safe for concurrent use, but only one
// execution may be in flight at a time; a second Execute while busy is
// rejected rather than queued.
type Executor struct {
	cfg Config
	log *zap.SugaredLogger

	// interpFactory builds the interpreter; tests substitute failures.
	interpFactory func() (*interp.Interpreter, error)

	mu       sync.Mutex
	state    State
	busy     bool
	nextID   uint64
	pending  map[uint64]chan response
	setupErr error

	reqCh   chan request
	respCh  chan response
	readyCh chan struct{}
	done    chan struct{}

	stdout *capBuffer
	stderr *capBuffer
}

// New creates an uninitialized executor.
func New(cfg Config) *Executor {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 5 * time.Second
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = 30 * time.Second
	}
	if cfg.OutputLimit <= 0 {
		cfg.OutputLimit = 10 * 1024
	}
	if cfg.AllowedImports == nil {
		cfg.AllowedImports = DefaultAllowedImports()
	}
	e := &Executor{
		cfg:     cfg,
		log:     logging.Named(logging.CategorySandbox),
		pending: make(map[uint64]chan response),
		reqCh:   make(chan request),
		respCh:  make(chan response),
		readyCh: make(chan struct{}),
		done:    make(chan struct{}),
		stdout:  newCapBuffer(cfg.OutputLimit),
		stderr:  newCapBuffer(cfg.OutputLimit),
	}
	e.interpFactory = e.newInterpreter
	return e
}

// State returns the current lifecycle state.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Busy reports whether an execution is in flight.
func (e *Executor) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

// Initialize starts the worker, waits for its ready signal, and injects the
// helper prelude. Failure is fatal for this instance; the caller must create
// a fresh executor to retry.
func (e *Executor) Initialize(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateUninitialized {
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("cannot initialize sandbox in state %s", state)
	}
	e.state = StateInitializing
	e.mu.Unlock()

	go e.worker()
	go e.dispatch()

	select {
	case <-e.readyCh:
	case <-e.done:
		// Worker setup failed and already terminated the executor; report
		// the cause without waiting out the ready timeout.
		e.mu.Lock()
		err := e.setupErr
		e.mu.Unlock()
		if err == nil {
			err = ErrTerminated
		}
		return fmt.Errorf("sandbox failed to start: %w", err)
	case <-time.After(e.cfg.ReadyTimeout):
		e.Terminate()
		return fmt.Errorf("sandbox ready signal timed out after %s", e.cfg.ReadyTimeout)
	case <-ctx.Done():
		e.Terminate()
		return fmt.Errorf("sandbox initialization cancelled: %w", ctx.Err())
	}

	e.mu.Lock()
	e.state = StateReady
	e.mu.Unlock()
	e.log.Debugw("sandbox ready")
	return nil
}

// SetContext loads a serialized context document into the sandbox's context
// variable, clearing any final-answer and sub-query state from prior runs.
func (e *Executor) SetContext(ctx context.Context, payload string) error {
	resp, err := e.roundTrip(ctx, request{kind: reqLoadContext, code: payload}, e.cfg.ExecTimeout)
	if err != nil {
		return err
	}
	return resp.err
}

// Execute runs code in the sandbox with output capture, racing it against
// the timeout. On timeout the caller gets a timed-out result but the
// interpreter may keep running; the executor stays busy and the controller
// is expected to destroy and replace it.
func (e *Executor) Execute(ctx context.Context, code string, timeout time.Duration) (ExecResult, error) {
	if timeout <= 0 {
		timeout = e.cfg.ExecTimeout
	}
	if err := e.validateImports(code); err != nil {
		return ExecResult{Error: err.Error()}, err
	}

	e.mu.Lock()
	if e.state == StateTerminated {
		e.mu.Unlock()
		return ExecResult{Error: ErrTerminated.Error()}, ErrTerminated
	}
	if e.busy {
		e.mu.Unlock()
		err := fmt.Errorf("sandbox is busy with a previous execution")
		return ExecResult{Error: err.Error()}, err
	}
	e.busy = true
	e.state = StateExecuting
	e.mu.Unlock()

	resp, err := e.roundTrip(ctx, request{kind: reqEval, code: code}, timeout)
	if err != nil {
		if err == errRoundTripTimeout {
			e.log.Warnw("execution timed out", "timeout", timeout)
			return ExecResult{
				TimedOut: true,
				Error:    fmt.Sprintf("execution timed out after %s", timeout),
			}, nil
		}
		return ExecResult{Error: err.Error()}, err
	}
	if resp.exec == nil {
		return ExecResult{}, fmt.Errorf("malformed sandbox response")
	}
	return *resp.exec, nil
}

// GetVariable evaluates a variable name in the sandbox namespace.
func (e *Executor) GetVariable(ctx context.Context, name string) (any, error) {
	resp, err := e.roundTrip(ctx, request{kind: reqGetVar, code: name}, e.cfg.ExecTimeout)
	if err != nil {
		return nil, err
	}
	return resp.result, resp.err
}

// Reset discards the interpreter and re-injects the helper prelude into a
// fresh one, dropping all user-defined state.
func (e *Executor) Reset(ctx context.Context) error {
	resp, err := e.roundTrip(ctx, request{kind: reqReset}, e.cfg.ExecTimeout)
	if err != nil {
		return err
	}
	return resp.err
}

// Terminate shuts the sandbox down and rejects all in-flight requests.
// Idempotent.
func (e *Executor) Terminate() {
	e.mu.Lock()
	if e.state == StateTerminated {
		e.mu.Unlock()
		return
	}
	e.state = StateTerminated
	pending := e.pending
	e.pending = make(map[uint64]chan response)
	e.busy = false
	close(e.done)
	e.mu.Unlock()

	for id, ch := range pending {
		ch <- response{id: id, err: ErrTerminated}
	}
	e.log.Debugw("sandbox terminated", "rejected", len(pending))
}

// =============================================================================
// ROUND TRIP
// =============================================================================

var errRoundTripTimeout = fmt.Errorf("sandbox request timed out")

// roundTrip assigns a correlation id, registers a pending channel, submits
// the request and waits for the matching response, a timeout, cancellation
// or termination.
func (e *Executor) roundTrip(ctx context.Context, req request, timeout time.Duration) (response, error) {
	e.mu.Lock()
	if e.state == StateTerminated {
		e.mu.Unlock()
		return response{}, ErrTerminated
	}
	e.nextID++
	req.id = e.nextID
	ch := make(chan response, 1)
	e.pending[req.id] = ch
	e.mu.Unlock()

	select {
	case e.reqCh <- req:
	case <-e.done:
		e.dropPending(req.id)
		return response{}, ErrTerminated
	case <-ctx.Done():
		e.dropPending(req.id)
		return response{}, ctx.Err()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.err == ErrTerminated {
			return response{}, ErrTerminated
		}
		return resp, nil
	case <-timer.C:
		e.dropPending(req.id)
		return response{}, errRoundTripTimeout
	case <-ctx.Done():
		e.dropPending(req.id)
		return response{}, ctx.Err()
	}
}

func (e *Executor) dropPending(id uint64) {
	e.mu.Lock()
	delete(e.pending, id)
	e.mu.Unlock()
}

// dispatch routes worker responses to pending callers by id. A response for
// an unknown id is dropped; this is how a late answer to a timed-out
// execution dies quietly.
func (e *Executor) dispatch() {
	for {
		select {
		case resp := <-e.respCh:
			if resp.id == readySignalID {
				select {
				case e.readyCh <- struct{}{}:
				default:
				}
				continue
			}
			e.mu.Lock()
			ch, ok := e.pending[resp.id]
			if ok {
				delete(e.pending, resp.id)
			}
			if resp.exec != nil {
				e.busy = false
				if e.state == StateExecuting {
					e.state = StateReady
				}
			}
			e.mu.Unlock()
			if !ok {
				e.log.Debugw("dropping response for unknown id", "id", resp.id)
				continue
			}
			ch <- resp
		case <-e.done:
			return
		}
	}
}

// =============================================================================
// WORKER
// =============================================================================

// worker owns the interpreter. It creates it, injects the prelude, emits the
// ready signal, then serves requests sequentially until termination.
func (e *Executor) worker() {
	i, err := e.interpFactory()
	if err != nil {
		e.log.Errorw("interpreter setup failed", "error", err)
		e.mu.Lock()
		e.setupErr = err
		e.mu.Unlock()
		e.Terminate()
		return
	}

	select {
	case e.respCh <- response{id: readySignalID}:
	case <-e.done:
		return
	}

	for {
		select {
		case req := <-e.reqCh:
			var resp response
			switch req.kind {
			case reqEval:
				resp = e.handleEval(i, req)
			case reqLoadContext:
				resp = e.handleLoadContext(i, req)
			case reqGetVar:
				resp = e.handleGetVar(i, req)
			case reqReset:
				fresh, rerr := e.interpFactory()
				if rerr == nil {
					i = fresh
				}
				resp = response{id: req.id, err: rerr}
			}
			select {
			case e.respCh <- resp:
			case <-e.done:
				return
			}
		case <-e.done:
			return
		}
	}
}

func (e *Executor) newInterpreter() (*interp.Interpreter, error) {
	i := interp.New(interp.Options{Stdout: e.stdout, Stderr: e.stderr})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib symbols: %w", err)
	}
	if _, err := i.Eval(preludeSource); err != nil {
		return nil, fmt.Errorf("failed to inject helper prelude: %w", err)
	}
	return i, nil
}

func (e *Executor) handleEval(i *interp.Interpreter, req request) response {
	e.stdout.Reset()
	e.stderr.Reset()

	res := &ExecResult{}
	rv, err := i.Eval(req.code)
	if err != nil {
		res.Error = err.Error()
	} else {
		res.Success = true
		if rv.IsValid() && rv.CanInterface() {
			res.Result = rv.Interface()
		}
	}

	res.Stdout = e.stdout.String()
	res.Stderr = e.stderr.String()
	e.readFinalState(i, res)
	return response{id: req.id, exec: res}
}

// readFinalState probes the sandbox globals for the final answer and queued
// sub-queries. A FINAL_VAR name is resolved here, while the namespace that
// defined it is still alive.
func (e *Executor) readFinalState(i *interp.Interpreter, res *ExecResult) {
	if v, err := i.Eval("__final_set"); err == nil && v.IsValid() {
		if set, ok := v.Interface().(bool); ok && set {
			res.FinalSet = true
			if fv, ferr := i.Eval("__final"); ferr == nil && fv.IsValid() && fv.CanInterface() {
				res.Final = fv.Interface()
			}
		}
	}
	if !res.FinalSet {
		if v, err := i.Eval("__final_var"); err == nil && v.IsValid() {
			if name, ok := v.Interface().(string); ok && name != "" {
				if fv, ferr := i.Eval(name); ferr == nil && fv.IsValid() && fv.CanInterface() {
					res.FinalSet = true
					res.Final = fv.Interface()
				}
			}
		}
	}

	v, err := i.Eval("__subqueries")
	if err != nil || !v.IsValid() || !v.CanInterface() {
		return
	}
	raw, ok := v.Interface().([]map[string]interface{})
	if !ok {
		return
	}
	for idx, entry := range raw {
		sq := SubQuery{Index: idx}
		if q, ok := entry["query"].(string); ok {
			sq.Query = q
		}
		if cs, ok := entry["context_slice"].(string); ok {
			sq.ContextSlice = cs
		}
		res.SubQueries = append(res.SubQueries, sq)
	}
}

func (e *Executor) handleLoadContext(i *interp.Interpreter, req request) response {
	call := "__load_context(" + strconv.Quote(req.code) + ")"
	rv, err := i.Eval(call)
	if err != nil {
		return response{id: req.id, err: fmt.Errorf("failed to load context: %w", err)}
	}
	if msg, ok := rv.Interface().(string); ok && msg != "ok" {
		return response{id: req.id, err: fmt.Errorf("failed to load context: %s", msg)}
	}
	return response{id: req.id}
}

func (e *Executor) handleGetVar(i *interp.Interpreter, req request) response {
	rv, err := i.Eval(req.code)
	if err != nil {
		return response{id: req.id, err: fmt.Errorf("variable %q not found: %w", req.code, err)}
	}
	var val any
	if rv.IsValid() && rv.CanInterface() {
		val = rv.Interface()
	}
	return response{id: req.id, result: val}
}

// =============================================================================
// IMPORT VALIDATION
// =============================================================================

// validateImports scans import statements against the whitelist before the
// code reaches the interpreter.
func (e *Executor) validateImports(code string) error {
	var imports []string
	inBlock := false
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "import (") {
			inBlock = true
			continue
		}
		if inBlock {
			if strings.HasPrefix(trimmed, ")") {
				inBlock = false
				continue
			}
			if pkg := importPath(trimmed); pkg != "" {
				imports = append(imports, pkg)
			}
			continue
		}
		if strings.HasPrefix(trimmed, "import ") {
			if pkg := importPath(strings.TrimPrefix(trimmed, "import ")); pkg != "" {
				imports = append(imports, pkg)
			}
		}
	}

	var forbidden []string
	for _, pkg := range imports {
		if !e.cfg.AllowedImports[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports: %s", strings.Join(forbidden, ", "))
	}
	return nil
}

// importPath extracts the quoted path from an import line, tolerating an
// alias prefix.
func importPath(s string) string {
	start := strings.IndexByte(s, '"')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(s[start+1:], '"')
	if end < 0 {
		return ""
	}
	return s[start+1 : start+1+end]
}

// =============================================================================
// OUTPUT CAPTURE
// =============================================================================

// capBuffer is a size-capped, concurrency-safe output buffer. Writes past
// the cap are counted but not stored; String appends a truncation marker
// preserving the original length.
type capBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
	total int
}

func newCapBuffer(limit int) *capBuffer {
	return &capBuffer{limit: limit}
}

func (b *capBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total += len(p)
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			p = p[:room]
		}
		b.buf.Write(p)
	}
	return len(p), nil
}

func (b *capBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.total > b.limit {
		return b.buf.String() + fmt.Sprintf("\n[output truncated, %d bytes total]", b.total)
	}
	return b.buf.String()
}

func (b *capBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
	b.total = 0
}
