// Package completion defines the external language-model interface the
// engine consumes, plus concrete clients for the Anthropic and Gemini APIs.
// The engine treats completions as single calls: a non-2xx response fails
// that call, and retry policy belongs to the caller, never to this package.
package completion

import (
	"context"
	"fmt"
)

// Usage is the token accounting attached to a completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Result is one completion.
type Result struct {
	Text  string
	Usage Usage
}

// Service is the completion surface the engine calls. Implementations must
// be safe for concurrent use.
type Service interface {
	Complete(ctx context.Context, systemPrompt, userContent string) (Result, error)
}

// StatusError is an HTTP-level completion failure carrying the status code.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("completion request failed with status %d: %s", e.StatusCode, e.Body)
}

// Func adapts a plain function to the Service interface. Used by tests.
type Func func(ctx context.Context, systemPrompt, userContent string) (Result, error)

func (f Func) Complete(ctx context.Context, systemPrompt, userContent string) (Result, error) {
	return f(ctx, systemPrompt, userContent)
}
