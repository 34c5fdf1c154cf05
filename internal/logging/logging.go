// Package logging provides structured logging for the BBS core.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DebugEnabled controls whether Debug() produces output. Set via the
// -debug flag.
var DebugEnabled bool

var (
	mu  sync.Mutex
	log *zap.Logger = zap.NewNop()
)

// Init installs the process-wide logger. dev selects a human-readable
// console encoder (for -debug runs); otherwise JSON is used.
func Init(dev bool) {
	mu.Lock()
	defer mu.Unlock()

	level := zapcore.InfoLevel
	if DebugEnabled {
		level = zapcore.DebugLevel
	}

	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	log = l
}

// L returns the process-wide structured logger for call sites that want
// fields instead of a Printf-shaped message.
func L() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	return log
}

// Debug logs a message only when DebugEnabled is true.
func Debug(format string, args ...any) {
	if DebugEnabled {
		L().Sugar().Debugf(format, args...)
	}
}

// Info logs an informational message.
func Info(format string, args ...any) {
	L().Sugar().Infof(format, args...)
}

// Warn logs a warning.
func Warn(format string, args ...any) {
	L().Sugar().Warnf(format, args...)
}

// Error logs an error.
func Error(format string, args ...any) {
	L().Sugar().Errorf(format, args...)
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() error {
	return L().Sync()
}
