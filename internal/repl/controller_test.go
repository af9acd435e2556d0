package repl

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"parley/internal/sandbox"
)

// fakeEnv is a scriptable Environment.
type fakeEnv struct {
	mu         sync.Mutex
	initErr    error
	execResult sandbox.ExecResult
	execErr    error

	initialized bool
	terminated  bool
	payloads    []string
	executed    []string
}

func (f *fakeEnv) Initialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initErr != nil {
		return f.initErr
	}
	f.initialized = true
	return nil
}

func (f *fakeEnv) SetContext(ctx context.Context, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeEnv) Execute(ctx context.Context, code string, timeout time.Duration) (sandbox.ExecResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, code)
	return f.execResult, f.execErr
}

func (f *fakeEnv) GetVariable(ctx context.Context, name string) (any, error) { return name, nil }
func (f *fakeEnv) Reset(ctx context.Context) error                          { return nil }

func (f *fakeEnv) Terminate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = true
}

func TestInitializeLazilyOnFirstUse(t *testing.T) {
	env := &fakeEnv{}
	c := New(DefaultConfig(), func() Environment { return env })

	if err := c.SetContext(context.Background(), "payload"); err != nil {
		t.Fatalf("SetContext failed: %v", err)
	}
	if !env.initialized {
		t.Fatal("environment should have been initialized on first use")
	}
	if len(env.payloads) != 1 || env.payloads[0] != "payload" {
		t.Fatalf("payloads = %v", env.payloads)
	}
}

func TestInitializeFailureSurfaced(t *testing.T) {
	env := &fakeEnv{initErr: fmt.Errorf("boom")}
	c := New(DefaultConfig(), func() Environment { return env })

	if err := c.Initialize(context.Background()); err == nil {
		t.Fatal("expected initialization error")
	}
	if !env.terminated {
		t.Fatal("failed environment should be terminated")
	}
}

func TestConcurrentInitializeSharesOneAttempt(t *testing.T) {
	var built int32
	c := New(DefaultConfig(), func() Environment {
		atomic.AddInt32(&built, 1)
		return &fakeEnv{}
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Initialize(context.Background()); err != nil {
				t.Errorf("Initialize failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&built); n != 1 {
		t.Fatalf("factory called %d times, want 1", n)
	}
}

func TestExecuteTimeoutRebuildsEnvironment(t *testing.T) {
	var envs []*fakeEnv
	var mu sync.Mutex
	c := New(DefaultConfig(), func() Environment {
		mu.Lock()
		defer mu.Unlock()
		env := &fakeEnv{}
		if len(envs) == 0 {
			env.execResult = sandbox.ExecResult{TimedOut: true, Error: "execution timed out"}
		}
		envs = append(envs, env)
		return env
	})

	if err := c.SetContext(context.Background(), "payload"); err != nil {
		t.Fatalf("SetContext failed: %v", err)
	}

	res, err := c.Execute(context.Background(), "for {}", time.Millisecond)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !res.TimedOut {
		t.Fatalf("res = %+v", res)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(envs) != 2 {
		t.Fatalf("expected a rebuilt environment, have %d", len(envs))
	}
	if !envs[0].terminated {
		t.Fatal("timed-out environment should be terminated")
	}
	// The replacement got the remembered context payload.
	if len(envs[1].payloads) != 1 || envs[1].payloads[0] != "payload" {
		t.Fatalf("replacement payloads = %v", envs[1].payloads)
	}
}

func TestExecuteDelegates(t *testing.T) {
	env := &fakeEnv{execResult: sandbox.ExecResult{Success: true, Final: "ok", FinalSet: true}}
	c := New(DefaultConfig(), func() Environment { return env })

	res, err := c.Execute(context.Background(), `FINAL("ok")`, 0)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !res.FinalSet || res.Final != "ok" {
		t.Fatalf("res = %+v", res)
	}
	if len(env.executed) != 1 {
		t.Fatalf("executed = %v", env.executed)
	}
}

func TestTerminateAllowsReinitialize(t *testing.T) {
	var built int32
	c := New(DefaultConfig(), func() Environment {
		atomic.AddInt32(&built, 1)
		return &fakeEnv{}
	})

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	c.Terminate()
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("re-Initialize failed: %v", err)
	}
	if n := atomic.LoadInt32(&built); n != 2 {
		t.Fatalf("factory called %d times, want 2", n)
	}
}

func TestResetReplaysPayload(t *testing.T) {
	env := &fakeEnv{}
	c := New(DefaultConfig(), func() Environment { return env })

	if err := c.SetContext(context.Background(), "payload"); err != nil {
		t.Fatalf("SetContext failed: %v", err)
	}
	if err := c.Reset(context.Background()); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if len(env.payloads) != 2 {
		t.Fatalf("payloads = %v", env.payloads)
	}
}
