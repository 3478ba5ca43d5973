// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package log provides a public logging interface for go.opentelemetry.io/backwalk.
package log // import "go.opentelemetry.io/backwalk/log"

import (
	"log/slog"

	"go.opentelemetry.io/backwalk/internal/log"
)

// SetLevel configures the level of backwalk's default logger.
func SetLevel(level slog.Level) {
	log.SetLevel(level)
}

// SetLogger routes backwalk's log records to l. A nil l restores the default
// stderr logger.
func SetLogger(l *slog.Logger) {
	log.SetLogger(l)
}
