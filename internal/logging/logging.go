// Package logging provides categorized structured logging for parley.
// Every subsystem logs through a named child of one shared zap logger, so
// a single Init call controls level and destination for the whole process.
// Before Init (or after InitNop) all loggers are no-ops, which keeps library
// use of parley silent by default.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names used across the codebase. Free-form strings are accepted
// by Named; these constants exist so call sites stay consistent.
const (
	CategoryContext    = "context"
	CategoryMemory     = "memory"
	CategoryCodegen    = "codegen"
	CategorySandbox    = "sandbox"
	CategoryREPL       = "repl"
	CategorySession    = "session"
	CategoryCompletion = "completion"
	CategoryCLI        = "cli"
)

var (
	mu   sync.RWMutex
	base = zap.NewNop()
)

// Init configures the process-wide logger. With debug=true a development
// config (console encoder, DebugLevel) is used, otherwise production JSON
// at InfoLevel. Safe to call more than once; the last call wins.
func Init(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	mu.Lock()
	base = logger
	mu.Unlock()
	return nil
}

// InitNop restores the silent default. Used by tests.
func InitNop() {
	mu.Lock()
	base = zap.NewNop()
	mu.Unlock()
}

// SetLogger installs an externally constructed logger (e.g. a test observer).
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	base = l
	mu.Unlock()
}

// Named returns a sugared logger for the given category.
func Named(category string) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return base.Named(category).Sugar()
}

// Sync flushes buffered log entries. Errors are ignored; stderr sync
// failures on some platforms are expected.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}
