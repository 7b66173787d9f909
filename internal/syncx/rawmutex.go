package syncx

import (
	"sync/atomic"
	"unsafe"

	"github.com/brcgc/brcgc/internal/mthread"
)

const (
	wordUnlocked uintptr = 0
	wordLocked   uintptr = 1
)

// RawMutex is a word-sized mutual exclusion lock whose slow path parks the
// calling thread on its own private Semaphore, via an intrusive
// last-in-first-out waiter stack threaded through mthread.Thread. It never
// touches collector state, which is what makes it safe to hold while a
// thread is attaching or detaching (§4.B).
type RawMutex struct {
	v uintptr
}

// Lock acquires m, blocking the calling thread if contended. self must be
// the calling thread's own identity and must not be shared across
// concurrent Lock calls.
func (m *RawMutex) Lock(self *mthread.Thread) {
	if atomic.CompareAndSwapUintptr(&m.v, wordUnlocked, wordLocked) {
		return
	}
	m.lockSlow(self)
}

func (m *RawMutex) lockSlow(self *mthread.Thread) {
	for {
		v := atomic.LoadUintptr(&m.v)

		if v&1 == 0 {
			if atomic.CompareAndSwapUintptr(&m.v, v, v|wordLocked) {
				return
			}
			continue
		}

		next := threadFromWord(v &^ 1)
		self.SetNextWaiter(next)
		newV := uintptr(unsafe.Pointer(self)) | wordLocked
		if !atomic.CompareAndSwapUintptr(&m.v, v, newV) {
			continue
		}

		self.Semaphore().Wait(-1)
	}
}

// Unlock releases m. Unlocking an unlocked RawMutex is an invariant
// violation and is fatal (spec §7: "invariant violations ... fatal, abort
// process").
func (m *RawMutex) Unlock() {
	for {
		v := atomic.LoadUintptr(&m.v)

		if v&1 == 0 {
			fatal("syncx: unlocking a RawMutex that is not locked")
		}

		waiter := threadFromWord(v &^ 1)
		if waiter != nil {
			next := waiter.NextWaiter()
			newV := uintptr(unsafe.Pointer(next))
			if atomic.CompareAndSwapUintptr(&m.v, v, newV) {
				waiter.Semaphore().Signal()
				return
			}
			continue
		}

		if atomic.CompareAndSwapUintptr(&m.v, v, wordUnlocked) {
			return
		}
	}
}

func threadFromWord(v uintptr) *mthread.Thread {
	if v == 0 {
		return nil
	}
	return (*mthread.Thread)(unsafe.Pointer(v))
}
