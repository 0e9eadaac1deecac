package testutil

import "log/slog"

// DiscardLogger returns a slog.Logger that discards all output. Prefer
// log.NewNop() when the internal/log package is already imported; both
// return the same type.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
