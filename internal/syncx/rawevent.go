package syncx

import (
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/brcgc/brcgc/internal/mthread"
)

const (
	eventUnlocked uintptr = 0
	eventLocked   uintptr = 1 // notified; never a valid thread pointer (pointers are word-aligned)
)

// RawEvent is a one-shot, single-waiter notification built on a per-thread
// semaphore, mirroring _PyRawEvent in Python/lock.c. Timed waits must
// cleanly remove themselves if they lose the race against a concurrent
// Notify (§4.B).
type RawEvent struct {
	v uintptr
}

// Notify wakes the (at most one) waiter. Notifying an already-notified
// RawEvent is an invariant violation.
func (e *RawEvent) Notify() {
	v := atomic.SwapUintptr(&e.v, eventLocked)
	switch v {
	case eventUnlocked:
		return
	case eventLocked:
		fatal("syncx: RawEvent: duplicate notifications")
	default:
		waiter := (*mthread.Thread)(unsafe.Pointer(v))
		waiter.Semaphore().Signal()
	}
}

// Wait blocks self until Notify is called.
func (e *RawEvent) Wait(self *mthread.Thread) {
	for !e.TimedWait(self, -1) {
	}
}

// TimedWait blocks self until Notify is called or timeout elapses
// (timeout < 0 means forever). Returns whether the event was notified.
func (e *RawEvent) TimedWait(self *mthread.Thread, timeout time.Duration) bool {
	selfWord := uintptr(unsafe.Pointer(self))

	if atomic.CompareAndSwapUintptr(&e.v, eventUnlocked, selfWord) {
		if self.Semaphore().Wait(timeout) {
			return true
		}

		// lost the race (timed out): try to remove ourselves as the waiter.
		if atomic.CompareAndSwapUintptr(&e.v, selfWord, eventUnlocked) {
			return false
		}

		// Notify already claimed us (swapped in eventLocked) and signalled
		// our semaphore concurrently with the timeout; consume that
		// signal so it isn't observed by a future, unrelated Wait.
		v := atomic.LoadUintptr(&e.v)
		if v != eventLocked {
			fatal("syncx: RawEvent: invalid state")
		}
		for !self.Semaphore().Wait(-1) {
		}
		return true
	}

	if atomic.LoadUintptr(&e.v) == eventLocked {
		return true
	}
	fatal("syncx: RawEvent: duplicate waiter")
	return false
}

// Reset rearms the event so it can be waited on again. Callers must ensure
// no goroutine is still waiting when Reset is called.
func (e *RawEvent) Reset() {
	atomic.StoreUintptr(&e.v, eventUnlocked)
}
