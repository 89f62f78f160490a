// Package logging provides the one helper every layer in this repository
// uses: substitute a process-wide default when a component is constructed
// without an explicit logger.
package logging

import "log/slog"

// Resolve returns logger unless it is nil, in which case it returns
// slog.Default(). Every adapter/application constructor in this repository
// calls this so callers may omit a logger in tests without risking a nil
// dereference.
func Resolve(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
