package syncx

import (
	"sync/atomic"
	"time"

	"github.com/brcgc/brcgc/internal/mthread"
	"github.com/brcgc/brcgc/internal/parkinglot"
)

const (
	recLocked    uint64 = 1
	recHasParked uint64 = 2
	recFlagsMask uint64 = recLocked | recHasParked
)

// RecursiveMutex may be locked repeatedly by the thread that already owns
// it. The owner is encoded as a thread ID in the high bits of the state
// word, with LOCKED/HAS_PARKED flags in the low two bits, following spec
// §4.B and Python/lock.c's _PyRecursiveMutex (which instead ORs in a raw
// _Py_ThreadId(); an integer ID is used here rather than a pointer, which
// keeps the fair-handoff path free of unsafe pointer tagging).
//
// Per the "Shutdown quirk" design note (§9): if SetFinalizing has been
// called with the locking thread, Lock treats the mutex as already owned by
// that thread (recursion only), sidestepping deadlocks against mutators
// that exited without releasing locks during interpreter shutdown.
type RecursiveMutex struct {
	v          uint64
	recursions uint64 // only touched by the owning thread
}

func ownerWord(t *mthread.Thread) uint64 {
	return t.ID << 2
}

// Lock acquires the mutex, blocking if it is held by a different thread.
// Recursive locks by the same thread (or, during shutdown, by the
// finalizing thread) just increment an internal counter.
func (m *RecursiveMutex) Lock(self *mthread.Thread) {
	v := atomic.LoadUint64(&m.v)
	if v&^recFlagsMask == ownerWord(self) && v&recLocked != 0 {
		m.recursions++
		return
	}

	if f := mthread.Finalizing(); f != nil && f == self {
		m.recursions++
		return
	}

	m.lockSlow(self)
}

func (m *RecursiveMutex) lockSlow(self *mthread.Thread) {
	for {
		v := atomic.LoadUint64(&m.v)

		if v&recLocked == 0 {
			newV := ownerWord(self) | (v & recHasParked) | recLocked
			if atomic.CompareAndSwapUint64(&m.v, v, newV) {
				return
			}
			continue
		}

		newV := v
		if v&recHasParked == 0 {
			newV = v | recHasParked
			if !atomic.CompareAndSwapUint64(&m.v, v, newV) {
				continue
			}
		}

		parkinglot.Default.ParkData(&m.v, newV, time.Time{}, self)

		if self.HandoffElem() {
			self.SetHandoffElem(false)
			return
		}
	}
}

// Unlock releases one level of recursion, releasing the mutex entirely once
// the recursion counter reaches zero. Unlocking a mutex this thread does
// not hold is an invariant violation.
func (m *RecursiveMutex) Unlock() {
	if m.recursions > 0 {
		m.recursions--
		return
	}

	for {
		v := atomic.LoadUint64(&m.v)

		if v&recLocked == 0 {
			fatal("syncx: unlocking a RecursiveMutex that is not locked")
		}

		if v&recHasParked != 0 {
			token, more := parkinglot.Default.BeginUnpark(&m.v)
			var newV uint64
			var waiter *mthread.Thread
			if token != nil {
				// Fair hand-off: give the next waiter ownership directly,
				// so it skips straight through lockSlow's CAS on wakeup.
				token.ShouldBeFair = true
				waiter = token.Data.(*mthread.Thread)
				newV = ownerWord(waiter) | recLocked
				if more {
					newV |= recHasParked
				}
			}
			atomic.StoreUint64(&m.v, newV)
			if waiter != nil {
				waiter.SetHandoffElem(true)
			}
			parkinglot.Default.FinishUnpark(token)
			return
		}

		if atomic.CompareAndSwapUint64(&m.v, v, 0) {
			return
		}
	}
}
