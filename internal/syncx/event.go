package syncx

import (
	"sync/atomic"
	"time"

	"github.com/brcgc/brcgc/internal/parkinglot"
)

const (
	eventStateUnlocked  uint64 = 0
	eventStateHasParked uint64 = 1
	eventStateLocked    uint64 = 2 // notified
)

// Event is a one-shot, many-waiter notification built on the shared
// parking lot, mirroring _PyEvent in Python/lock.c.
type Event struct {
	v uint64
}

// Notify wakes every waiter. A second Notify is a silent no-op, matching
// _PyEvent_Notify's commented-out fatal (spec: events may be notified from
// more than one place during shutdown).
func (e *Event) Notify() {
	old := atomic.SwapUint64(&e.v, eventStateLocked)
	if old == eventStateHasParked {
		parkinglot.Default.UnparkAll(&e.v)
	}
}

// Wait blocks until Notify is called.
func (e *Event) Wait() {
	for !e.TimedWait(-1) {
	}
}

// TimedWait blocks until Notify is called or timeout elapses (timeout < 0
// means forever).
func (e *Event) TimedWait(timeout time.Duration) bool {
	v := atomic.LoadUint64(&e.v)
	if v == eventStateLocked {
		return true
	}
	if v == eventStateUnlocked {
		atomic.CompareAndSwapUint64(&e.v, eventStateUnlocked, eventStateHasParked)
	}

	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	parkinglot.Default.Park(&e.v, eventStateHasParked, deadline)

	return atomic.LoadUint64(&e.v) == eventStateLocked
}

// IsSet reports whether Notify has already been called.
func (e *Event) IsSet() bool {
	return atomic.LoadUint64(&e.v) == eventStateLocked
}
