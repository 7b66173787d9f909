package syncx

import (
	"sync/atomic"
	"time"

	"github.com/brcgc/brcgc/internal/parkinglot"
)

// Mutex is shaped like RawMutex (UNLOCKED=0/LOCKED=1) but blocks via the
// shared parkinglot.Default instead of a per-thread semaphore - the variant
// spec §4.B designates for general code, as opposed to code that must run
// across a thread attach/detach boundary.
type Mutex struct {
	state uint64
}

// Lock acquires the mutex, blocking if contended.
func (m *Mutex) Lock() {
	if atomic.CompareAndSwapUint64(&m.state, 0, 1) {
		return
	}
	m.lockSlow()
}

func (m *Mutex) lockSlow() {
	for {
		v := atomic.LoadUint64(&m.state)
		if v == 0 {
			if atomic.CompareAndSwapUint64(&m.state, 0, 1) {
				return
			}
			continue
		}
		parkinglot.Default.Park(&m.state, v, time.Time{})
	}
}

// Unlock releases the mutex. Unlocking an unlocked Mutex is fatal.
func (m *Mutex) Unlock() {
	if !atomic.CompareAndSwapUint64(&m.state, 1, 0) {
		fatal("syncx: unlocking a Mutex that is not locked")
	}
	parkinglot.Default.UnparkOne(&m.state)
}

// TryLock attempts to acquire the mutex without blocking.
func (m *Mutex) TryLock() bool {
	return atomic.CompareAndSwapUint64(&m.state, 0, 1)
}
