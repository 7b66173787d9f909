package gclog

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWritesStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	l.CollectionStart("manual")
	l.CollectionDone(2, 1, 3)
	l.ThresholdChanged(7000)
	l.Unraisable("finalizer", assert.AnError)

	out := buf.String()
	assert.Contains(t, out, "gc: collection started")
	assert.Contains(t, out, "gc: collection finished")
	assert.Contains(t, out, "gc: threshold recomputed")
	assert.Contains(t, out, "gc: unraisable exception")
}

func TestDiscardDoesNotPanic(t *testing.T) {
	l := Discard()
	assert.NotPanics(t, func() {
		l.CollectionStart("heap")
		l.CollectionDone(0, 0, 1)
		l.ThresholdChanged(1)
		l.Unraisable("weakref callback", "boom")
	})
}

func TestNilLoggerIsANoOp(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		l.CollectionStart("manual")
		l.CollectionDone(0, 0, 0)
		l.ThresholdChanged(0)
		l.Unraisable("tp_clear", nil)
	})
}
