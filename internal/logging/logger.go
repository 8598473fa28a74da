// Package logging owns the process-wide zap logger for smartquery.
// Components ask for a named sub-logger once at construction time and keep it;
// nothing in this package is request-scoped except WithCorrelation.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.RWMutex
	root = zap.NewNop()
)

// Initialize builds the process logger. level is one of debug/info/warn/error;
// anything else falls back to info. When json is false, output uses the
// console encoder (development-friendly).
func Initialize(level string, json bool) error {
	var cfg zap.Config
	if json {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	var lvl zapcore.Level
	switch level {
	case "debug":
		lvl = zapcore.DebugLevel
	case "warn", "warning":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	root = logger
	mu.Unlock()
	return nil
}

// Named returns a child logger for a component ("planner", "orchestrator", ...).
func Named(name string) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.Named(name)
}

// WithCorrelation returns a logger tagged with a per-run correlation ID.
func WithCorrelation(l *zap.Logger, correlationID string) *zap.Logger {
	return l.With(zap.String("correlation_id", correlationID))
}

// Sync flushes buffered log entries. Call at shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

// SetLogger replaces the process logger. Intended for tests.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	root = l
}
