// Package mthread models a single mutator OS thread's identity, the unit
// every other component keys state on: per-thread heaps (internal/heapwalk),
// the local half of the split refcount (internal/gcobj), stop-the-world
// status (internal/stw), and the waiter stacks inside internal/syncx's raw
// primitives. Go has no first-class OS-thread handle a goroutine can carry
// around (goroutines migrate between Ms), so callers construct exactly one
// *Thread per OS thread they intend to park mutator work on and thread it
// through explicitly - the idiomatic alternative to the thread-local storage
// CPython's PyThreadState relies on.
package mthread

import (
	"sync/atomic"

	"github.com/brcgc/brcgc/internal/parkinglot"
)

// Thread is a mutator's identity, as seen by the collector.
type Thread struct {
	// ID is a small, process-unique, non-zero identifier. Zero is reserved
	// to mean "merged" (no owning thread), matching gcobj.Base.ThreadID's 0
	// convention for objects whose local refcount has been folded into the
	// shared counter.
	ID uint64

	sem parkinglot.Semaphore

	// nextWaiter links this thread onto the intrusive waiter stack of a
	// contended RawMutex, exactly like PyThreadState.os->next_waiter.
	nextWaiter atomic.Pointer[Thread]

	// handoffElem records whether the last wakeup for a RecursiveMutex was a
	// direct (fair) hand-off of ownership, mirroring tstate->handoff_elem.
	handoffElem atomic.Bool
}

// New allocates a Thread with the given id. id must be non-zero and unique
// among concurrently-live threads.
func New(id uint64) *Thread {
	if id == 0 {
		panic("mthread: thread id must be non-zero")
	}
	return &Thread{ID: id, sem: parkinglot.NewSemaphore()}
}

// Semaphore returns the thread's private blocking primitive, used by
// RawMutex/RawEvent slow paths.
func (t *Thread) Semaphore() parkinglot.Semaphore { return t.sem }

// NextWaiter returns the thread linked behind this one on an intrusive
// waiter stack, or nil.
func (t *Thread) NextWaiter() *Thread { return t.nextWaiter.Load() }

// SetNextWaiter links w behind this thread on an intrusive waiter stack.
func (t *Thread) SetNextWaiter(w *Thread) { t.nextWaiter.Store(w) }

// HandoffElem reports whether this thread was just handed lock ownership
// directly by a fair unlock.
func (t *Thread) HandoffElem() bool { return t.handoffElem.Load() }

// SetHandoffElem records whether this thread was handed lock ownership
// directly.
func (t *Thread) SetHandoffElem(v bool) { t.handoffElem.Store(v) }

var finalizing atomic.Pointer[Thread]

// SetFinalizing records the thread running interpreter shutdown, or clears
// it (pass nil). While set, RecursiveMutex.Lock treats that thread as
// already owning every recursive mutex, sidestepping deadlocks against
// mutators that exited without releasing locks (§4.B, §9 "Shutdown quirk").
func SetFinalizing(t *Thread) { finalizing.Store(t) }

// Finalizing returns the thread set by SetFinalizing, or nil.
func Finalizing() *Thread { return finalizing.Load() }
