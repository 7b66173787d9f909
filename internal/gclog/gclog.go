// Package gclog is the ambient logging stack used throughout this module:
// a thin wrapper around a logiface.Logger[*stumpy.Event], so collector
// diagnostics are structured JSON lines rather than fmt.Printf calls.
package gclog

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger wraps the stumpy-backed logiface logger this package constructs,
// narrowing its surface to what the collector actually needs.
type Logger struct {
	l *logiface.Logger[*stumpy.Event]
}

// New builds a Logger writing newline-delimited JSON to w. A nil w defaults
// to os.Stderr, matching stumpy's own WithStumpy default.
func New(w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{
		l: stumpy.L.New(stumpy.L.WithStumpy(stumpy.WithWriter(w))),
	}
}

// Discard is a Logger that drops every event, used as the zero-config
// default so collectors constructed without an explicit Logger don't pay
// for JSON encoding they never asked for.
func Discard() *Logger {
	return &Logger{l: stumpy.L.New()}
}

// CollectionStart logs the beginning of a collection cycle (spec §4.G
// step 1).
func (g *Logger) CollectionStart(reason string) {
	if g == nil {
		return
	}
	g.l.Debug().Str("reason", reason).Log("gc: collection started")
}

// CollectionDone logs a completed collection cycle's outcome.
func (g *Logger) CollectionDone(collected, uncollectable int, collections int64) {
	if g == nil {
		return
	}
	g.l.Info().
		Int("collected", collected).
		Int("uncollectable", uncollectable).
		Int64("collections", collections).
		Log("gc: collection finished")
}

// Unraisable logs an exception that escaped a finalizer, weakref callback,
// or tp_clear (the collector's default unraisable hook).
func (g *Logger) Unraisable(stage string, recovered any) {
	if g == nil {
		return
	}
	b := g.l.Err()
	if err, ok := recovered.(error); ok {
		b = b.Err(err)
	} else {
		b = b.Interface("recovered", recovered)
	}
	b.Str("stage", stage).Log("gc: unraisable exception")
}

// ThresholdChanged logs a new generation threshold taking effect.
func (g *Logger) ThresholdChanged(threshold uint64) {
	if g == nil {
		return
	}
	g.l.Debug().Uint64("threshold", threshold).Log("gc: threshold recomputed")
}
