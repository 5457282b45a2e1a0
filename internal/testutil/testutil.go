// Package testutil provides shared test infrastructure: SSE stream
// parsing, deterministic mock models and embedders, and a disposable
// PostgreSQL container with the movies schema applied.
package testutil

import (
	"log/slog"
)

// DiscardLogger returns a slog.Logger that drops all output. Components
// that take the internal/log Logger alias can use log.NewNop() instead;
// both return the same type.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
