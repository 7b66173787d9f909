package parkinglot

import "time"

// Semaphore is the per-thread blocking primitive that the "raw" primitives
// in internal/syncx (RawMutex, RawEvent) wait on directly, instead of
// routing through a Lot. Each Thread (see internal/mthread) owns exactly one
// Semaphore for its lifetime; RawMutex/RawEvent slow paths queue the thread
// onto an intrusive waiter stack and then call Wait on its own semaphore,
// matching _PySemaphore_Wait/_PySemaphore_Signal in Python/lock.c.
//
// Unlike Lot, a Semaphore is not cooperative with the collector: acquiring
// or waiting on one never polls eval_breaker, which is what makes RawMutex
// safe to hold across a thread attach/detach boundary (§4.B).
type Semaphore interface {
	// Wait blocks until Signal is called, or timeout elapses (timeout < 0
	// means wait forever). Returns false on timeout.
	Wait(timeout time.Duration) bool
	// Signal wakes a single pending (or future) Wait call. Signals are not
	// additive: signalling twice without an intervening Wait only primes one
	// wakeup, matching a binary semaphore.
	Signal()
}

// NewSemaphore constructs the platform-appropriate Semaphore implementation:
// a futex-backed one on Linux (see semaphore_linux.go), a channel-based one
// elsewhere (see semaphore_other.go).
func NewSemaphore() Semaphore {
	return newPlatformSemaphore()
}
