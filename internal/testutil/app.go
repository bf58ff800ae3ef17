// Package testutil holds test helpers: quiet loggers, Apps wired for
// reproducible runs and recording processes.
package testutil

import (
	"io"
	"log/slog"

	"github.com/thinkerbot/tap-sub003/internal/engine"
)

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// DefaultRunID names the run of an App created without one.
const DefaultRunID = "run-test"

// NewApp creates an App with a fixed run id and a discarding logger.
// Later options override the defaults.
func NewApp(runID string, opts ...engine.Option) *engine.App {
	if runID == "" {
		runID = DefaultRunID
	}
	base := []engine.Option{
		engine.WithRunID(engine.NewFixedGenerator(runID)),
		engine.WithLogger(DiscardLogger()),
	}
	return engine.NewApp(append(base, opts...)...)
}
