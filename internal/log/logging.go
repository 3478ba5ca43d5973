// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package log holds the logger shared by all backwalk packages.
package log // import "go.opentelemetry.io/backwalk/internal/log"

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
)

// level backs the handler of the default logger so it can be changed without
// replacing the logger.
var level = func() *slog.LevelVar {
	v := new(slog.LevelVar)
	v.Set(slog.LevelInfo)
	return v
}()

// globalLogger is the [slog.Logger] used within go.opentelemetry.io/backwalk.
// The default logger writes text records to stderr at Info level.
var globalLogger = func() *atomic.Pointer[slog.Logger] {
	p := new(atomic.Pointer[slog.Logger])
	p.Store(newStderrLogger())
	return p
}()

func newStderrLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})).With("component", "backwalk")
}

// SetLogger replaces the global logger with l.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newStderrLogger()
	}
	globalLogger.Store(l)
}

// SetLevel sets the minimum level of the default stderr logger. Loggers
// installed with SetLogger keep their own level.
func SetLevel(l slog.Level) {
	level.Set(l)
}

func getLogger() *slog.Logger {
	return globalLogger.Load()
}

// Enabled reports whether records at l would be emitted.
func Enabled(l slog.Level) bool {
	return getLogger().Enabled(context.Background(), l)
}

func logf(l slog.Level, msg string, args ...any) {
	if !Enabled(l) {
		return
	}
	getLogger().Log(context.Background(), l, fmt.Sprintf(msg, args...))
}

// Debugf logs walk and symbolization details.
func Debugf(msg string, args ...any) {
	logf(slog.LevelDebug, msg, args...)
}

// Warnf logs conditions that degrade results, such as unreadable mappings.
func Warnf(msg string, args ...any) {
	logf(slog.LevelWarn, msg, args...)
}
