// Package syncx implements the collector's synchronization primitives:
// RawMutex, Mutex, RawEvent, Event, OnceFlag and RecursiveMutex (spec §4.B).
// Each is one word of state with low-bit flags, following
// _examples/original_source/Python/lock.c (the CPython free-threaded/"nogil"
// fork this package's algorithms are grounded on) translated from OS-thread
// identity (PyThreadState) to the explicit *mthread.Thread handle idiomatic
// Go favors over thread-local storage.
//
// RawMutex and RawEvent block on a per-thread Semaphore (internal/parkinglot):
// RawMutex queues waiters on an intrusive stack threaded through
// mthread.Thread.NextWaiter, RawEvent stores its single waiter in its state
// word. Both are safe to use while a thread is detached from the collector (they
// never consult the stop-the-world state). Mutex, Event, OnceFlag and
// RecursiveMutex instead block on the shared address-keyed
// parkinglot.Default, matching spec's description of each primitive.
package syncx
