//go:build linux

package parkinglot

import (
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// futexSemaphore is a binary semaphore backed by the Linux futex syscall,
// grounded in the same golang.org/x/sys/unix dependency eventloop's
// poller_linux.go uses for epoll. state is 0 (empty) or 1 (signalled);
// FUTEX_WAIT/FUTEX_WAKE avoid the overhead of a goroutine-blocking channel
// per wait, at the cost of pinning this goroutine's OS thread while parked.
type futexSemaphore struct {
	state uint32
}

func newPlatformSemaphore() Semaphore {
	return &futexSemaphore{}
}

func (s *futexSemaphore) Wait(timeout time.Duration) bool {
	deadline := time.Time{}
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		if atomic.CompareAndSwapUint32(&s.state, 1, 0) {
			return true
		}

		var ts *unix.Timespec
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return atomic.CompareAndSwapUint32(&s.state, 1, 0)
			}
			t := unix.NsecToTimespec(remaining.Nanoseconds())
			ts = &t
		}

		if err := futexWait(&s.state, 0, ts); err == unix.ETIMEDOUT {
			if atomic.CompareAndSwapUint32(&s.state, 1, 0) {
				return true
			}
			return false
		}
		// EAGAIN (state changed before the kernel could park us) or EINTR:
		// loop back around and re-check state.
	}
}

func (s *futexSemaphore) Signal() {
	atomic.StoreUint32(&s.state, 1)
	_ = futexWake(&s.state, 1)
}

// futexWait and futexWake are thin wrappers over the raw SYS_FUTEX syscall;
// golang.org/x/sys/unix exposes the syscall number but not a FUTEX_WAIT/WAKE
// helper, so the op codes are issued directly, the same way CPython's
// nogil fork's Python/condvar.h drives futex(2) on Linux.
func futexWait(addr *uint32, expected uint32, timeout *unix.Timespec) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(futexWaitPrivate),
		uintptr(expected),
		uintptr(unsafe.Pointer(timeout)),
		0, 0,
	)
	if errno != 0 {
		return errno
	}
	return nil
}

func futexWake(addr *uint32, count int) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(futexWakePrivate),
		uintptr(count),
		0, 0, 0,
	)
	if errno != 0 {
		return errno
	}
	return nil
}

const (
	futexWaitPrivate = 0 | futexPrivateFlag
	futexWakePrivate = 1 | futexPrivateFlag
	futexPrivateFlag = 128
)
