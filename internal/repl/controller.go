// Package repl orchestrates the sandbox lifecycle: initialization, context
// loading, execution, reset and termination. It is the surface the session
// layer calls; nothing else talks to the executor directly.
package repl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"parley/internal/logging"
	"parley/internal/sandbox"
)

// Environment is the sandbox surface the controller drives. Satisfied by
// *sandbox.Executor; tests substitute fakes.
type Environment interface {
	Initialize(ctx context.Context) error
	SetContext(ctx context.Context, payload string) error
	Execute(ctx context.Context, code string, timeout time.Duration) (sandbox.ExecResult, error)
	GetVariable(ctx context.Context, name string) (any, error)
	Reset(ctx context.Context) error
	Terminate()
}

// Config controls controller policy.
type Config struct {
	// InitTimeout bounds how long a caller waits on an in-flight
	// initialization started by another caller.
	InitTimeout time.Duration

	// ExecTimeout is the default execution timeout when the caller passes
	// zero.
	ExecTimeout time.Duration
}

// DefaultConfig returns the standard controller policy.
func DefaultConfig() Config {
	return Config{
		InitTimeout: 10 * time.Second,
		ExecTimeout: 30 * time.Second,
	}
}

// Controller owns one sandbox environment and serializes access to it.
// An execution timeout destroys the environment and builds a fresh one,
// reloading the last context payload, so a wedged interpreter can never be
// handed to the next caller.
type Controller struct {
	cfg     Config
	factory func() Environment
	log     *zap.SugaredLogger

	initGroup singleflight.Group

	mu          sync.Mutex
	env         Environment
	initialized bool
	lastPayload string
	hasPayload  bool
}

// New creates a controller building environments with factory. A nil
// factory yields default sandbox executors.
func New(cfg Config, factory func() Environment) *Controller {
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = 10 * time.Second
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = 30 * time.Second
	}
	if factory == nil {
		factory = func() Environment { return sandbox.New(sandbox.DefaultConfig()) }
	}
	return &Controller{
		cfg:     cfg,
		factory: factory,
		log:     logging.Named(logging.CategoryREPL),
	}
}

// Initialize brings the environment up. Concurrent callers share one
// in-flight initialization; a caller that waits longer than InitTimeout for
// someone else's attempt fails with a timeout error without affecting the
// attempt itself.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	resCh := c.initGroup.DoChan("init", func() (any, error) {
		return nil, c.doInitialize(ctx)
	})

	select {
	case res := <-resCh:
		return res.Err
	case <-time.After(c.cfg.InitTimeout):
		return fmt.Errorf("timed out waiting for sandbox initialization after %s", c.cfg.InitTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) doInitialize(ctx context.Context) error {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	env := c.factory()
	if err := env.Initialize(ctx); err != nil {
		env.Terminate()
		return fmt.Errorf("sandbox initialization failed: %w", err)
	}

	c.mu.Lock()
	c.env = env
	c.initialized = true
	c.mu.Unlock()
	return nil
}

// SetContext loads a context payload into the environment and remembers it
// for replay after a rebuild.
func (c *Controller) SetContext(ctx context.Context, payload string) error {
	env, err := c.environment(ctx)
	if err != nil {
		return err
	}
	if err := env.SetContext(ctx, payload); err != nil {
		return err
	}
	c.mu.Lock()
	c.lastPayload = payload
	c.hasPayload = true
	c.mu.Unlock()
	return nil
}

// Execute runs code in the environment. On timeout the environment is torn
// down and rebuilt before the timed-out result is returned, so the caller
// may retry immediately against a clean interpreter.
func (c *Controller) Execute(ctx context.Context, code string, timeout time.Duration) (sandbox.ExecResult, error) {
	if timeout <= 0 {
		timeout = c.cfg.ExecTimeout
	}
	env, err := c.environment(ctx)
	if err != nil {
		return sandbox.ExecResult{}, err
	}

	res, err := env.Execute(ctx, code, timeout)
	if err != nil {
		return res, err
	}
	if res.TimedOut {
		c.log.Warnw("execution timed out, rebuilding sandbox", "timeout", timeout)
		if rerr := c.rebuild(ctx); rerr != nil {
			c.log.Errorw("sandbox rebuild failed", "error", rerr)
		}
	}
	return res, nil
}

// GetVariable reads a variable from the environment namespace.
func (c *Controller) GetVariable(ctx context.Context, name string) (any, error) {
	env, err := c.environment(ctx)
	if err != nil {
		return nil, err
	}
	return env.GetVariable(ctx, name)
}

// Reset re-injects the helper library, dropping user state but keeping the
// environment alive. The remembered context payload is reloaded.
func (c *Controller) Reset(ctx context.Context) error {
	env, err := c.environment(ctx)
	if err != nil {
		return err
	}
	if err := env.Reset(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	payload, has := c.lastPayload, c.hasPayload
	c.mu.Unlock()
	if has {
		return env.SetContext(ctx, payload)
	}
	return nil
}

// Terminate shuts the environment down. The controller may be initialized
// again afterwards.
func (c *Controller) Terminate() {
	c.mu.Lock()
	env := c.env
	c.env = nil
	c.initialized = false
	c.mu.Unlock()
	if env != nil {
		env.Terminate()
	}
}

// rebuild replaces the environment with a fresh initialized one, replaying
// the last context payload.
func (c *Controller) rebuild(ctx context.Context) error {
	c.mu.Lock()
	old := c.env
	c.env = nil
	c.initialized = false
	payload, has := c.lastPayload, c.hasPayload
	c.mu.Unlock()

	if old != nil {
		old.Terminate()
	}
	if err := c.doInitialize(ctx); err != nil {
		return err
	}
	if has {
		return c.SetContext(ctx, payload)
	}
	return nil
}

func (c *Controller) environment(ctx context.Context) (Environment, error) {
	c.mu.Lock()
	env, ok := c.env, c.initialized
	c.mu.Unlock()
	if !ok {
		if err := c.Initialize(ctx); err != nil {
			return nil, err
		}
		c.mu.Lock()
		env, ok = c.env, c.initialized
		c.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("sandbox is not initialized")
		}
	}
	return env, nil
}
