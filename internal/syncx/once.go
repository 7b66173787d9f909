package syncx

import (
	"sync/atomic"
	"time"

	"github.com/brcgc/brcgc/internal/parkinglot"
)

const (
	onceUnlocked        uint64 = 0
	onceLocked          uint64 = 1
	onceLockedHasParked uint64 = onceLocked | 2
	onceInitialized     uint64 = 4
)

// OnceFlag runs an initializer exactly once, with the four-state machine
// from spec §4.B: {UNLOCKED, LOCKED, LOCKED|HAS_PARKED, ONCE_INITIALIZED}.
// The first caller to observe UNLOCKED becomes the initializer and must call
// exactly one of Success or Failed; all others block until one of those is
// called. Unlike sync.Once, a failed initialization attempt may be retried
// by a subsequent caller.
type OnceFlag struct {
	v uint64
}

// Begin returns true if the calling goroutine must run the initializer (and
// then call Success or Failed exactly once), or false if initialization has
// already completed.
func (o *OnceFlag) Begin() bool {
	if atomic.CompareAndSwapUint64(&o.v, onceUnlocked, onceLocked) {
		return true
	}
	return o.beginSlow()
}

func (o *OnceFlag) beginSlow() bool {
	for {
		v := atomic.LoadUint64(&o.v)
		if v == onceUnlocked {
			if atomic.CompareAndSwapUint64(&o.v, onceUnlocked, onceLocked) {
				return true
			}
			continue
		}
		if v == onceInitialized {
			return false
		}

		if v&2 == 0 {
			if !atomic.CompareAndSwapUint64(&o.v, v, v|2) {
				continue
			}
			v |= 2
		}

		parkinglot.Default.Park(&o.v, v, time.Time{})
	}
}

// Success marks initialization complete and wakes any parked waiters.
func (o *OnceFlag) Success() {
	old := atomic.SwapUint64(&o.v, onceInitialized)
	if old&onceLocked == 0 {
		fatal("syncx: OnceFlag: Success called without a matching Begin")
	}
	if old&2 != 0 {
		parkinglot.Default.UnparkAll(&o.v)
	}
}

// Failed aborts this initialization attempt, returning the flag to
// UNLOCKED so a later caller may retry, and wakes any parked waiters (who
// will retry via beginSlow).
func (o *OnceFlag) Failed() {
	old := atomic.SwapUint64(&o.v, onceUnlocked)
	if old&onceLocked == 0 {
		fatal("syncx: OnceFlag: Failed called without a matching Begin")
	}
	if old&2 != 0 {
		parkinglot.Default.UnparkAll(&o.v)
	}
}

// Done reports whether initialization has completed.
func (o *OnceFlag) Done() bool {
	return atomic.LoadUint64(&o.v) == onceInitialized
}
