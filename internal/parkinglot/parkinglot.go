// Package parkinglot implements an address-keyed wait queue, the low-level
// blocking primitive that the synchronization types in internal/syncx build
// on: a contended lock parks the calling goroutine against the memory
// address of its state word, and an unlocker wakes one (or all) waiters
// parked against that same address.
//
// This mirrors CPython's free-threaded-build parking lot
// (Python/parking_lot.c in the nogil fork under _examples/original_source),
// generalized from OS-thread identity to an explicit *Token so it composes
// with goroutines rather than requiring goroutine-local storage.
package parkinglot

import (
	"sync"
	"time"
	"unsafe"
)

// Result is returned by Park, distinguishing a normal wakeup from one that
// raced with a timeout or was never matched to a waiting Notify.
type Result int

const (
	// Unparked means some other goroutine woke this waiter via UnparkOne/UnparkAll.
	Unparked Result = iota
	// Invalid means *addr != expected at the time Park was called, so the
	// caller never actually blocked (the condition it was waiting on already
	// changed).
	Invalid
	// TimedOut means the deadline elapsed before a wakeup arrived.
	TimedOut
)

// Token identifies a parked waiter across the Park/BeginUnpark/FinishUnpark
// handshake. Synchronization primitives that need fair hand-off (the
// recursive mutex) stash data on the token between BeginUnpark and
// FinishUnpark.
type Token struct {
	// ShouldBeFair is set by BeginUnpark's caller before FinishUnpark runs,
	// recording that ownership was handed to this waiter directly. Park does
	// not report it back to the woken waiter; RecursiveMutex signals the
	// hand-off through mthread.Thread.SetHandoffElem instead.
	ShouldBeFair bool
	// Data is arbitrary caller-supplied context attached via ParkData,
	// readable by whoever observes this Token from BeginUnpark. RecursiveMutex
	// uses it to identify which thread is being woken, for direct ownership
	// hand-off.
	Data  any
	woken chan struct{}
}

func newToken() *Token {
	return &Token{woken: make(chan struct{})}
}

type waiter struct {
	token *Token
	next  *waiter
	prev  *waiter
}

type bucket struct {
	mu   sync.Mutex
	head *waiter
	tail *waiter
}

const numBuckets = 251 // prime, matches the small-hashtable sizing used by most parking lot implementations

// Lot is a sharded collection of wait queues keyed by address. The zero
// value is ready to use; a package-level Default instance is shared by
// internal/syncx so unrelated primitives never contend on the same bucket
// lock unless their addresses happen to hash together.
type Lot struct {
	buckets [numBuckets]bucket
}

// Default is the process-wide parking lot used by internal/syncx, matching
// the single global _PyParkingLot instance in the source material.
var Default Lot

func (l *Lot) bucketFor(addr unsafe.Pointer) *bucket {
	h := uintptr(addr)
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	return &l.buckets[h%numBuckets]
}

func (b *bucket) pushBack(w *waiter) {
	w.prev = b.tail
	w.next = nil
	if b.tail != nil {
		b.tail.next = w
	} else {
		b.head = w
	}
	b.tail = w
}

func (b *bucket) remove(w *waiter) {
	if w.prev != nil {
		w.prev.next = w.next
	} else {
		b.head = w.next
	}
	if w.next != nil {
		w.next.prev = w.prev
	} else {
		b.tail = w.prev
	}
	w.prev, w.next = nil, nil
}

// Park checks *addr == expected and, if so, blocks the calling goroutine
// until a matching UnparkOne/UnparkAll/FinishUnpark call wakes it, or until
// deadline elapses (the zero Time means wait forever). It returns Invalid
// immediately, without blocking, if the check fails - the caller's condition
// already changed and it should reload state and retry.
func (l *Lot) Park(addr *uint64, expected uint64, deadline time.Time) Result {
	return l.ParkData(addr, expected, deadline, nil)
}

// ParkData behaves like Park, additionally attaching data to this waiter's
// Token so a concurrent BeginUnpark caller can inspect it (see
// RecursiveMutex's fair hand-off).
func (l *Lot) ParkData(addr *uint64, expected uint64, deadline time.Time, data any) Result {
	if loadAddr(addr) != expected {
		return Invalid
	}

	b := l.bucketFor(unsafe.Pointer(addr))
	w := &waiter{token: newToken()}
	w.token.Data = data

	b.mu.Lock()
	// Re-check under the bucket lock: a concurrent Notify/Unpark between the
	// unlocked load above and taking the lock must not be missed.
	if loadAddr(addr) != expected {
		b.mu.Unlock()
		return Invalid
	}
	b.pushBack(w)
	b.mu.Unlock()

	if deadline.IsZero() {
		<-w.token.woken
		return Unparked
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-w.token.woken:
		return Unparked
	case <-timer.C:
		b.mu.Lock()
		// If woken raced with the timer firing, prefer the wakeup: only
		// remove the waiter from the list if it is still linked (i.e. no
		// Notify has claimed it yet).
		select {
		case <-w.token.woken:
			b.mu.Unlock()
			return Unparked
		default:
			b.remove(w)
			b.mu.Unlock()
			return TimedOut
		}
	}
}

// UnparkAll wakes every waiter currently parked on addr.
func (l *Lot) UnparkAll(addr *uint64) {
	b := l.bucketFor(unsafe.Pointer(addr))
	b.mu.Lock()
	var woken []*waiter
	for w := b.head; w != nil; {
		next := w.next
		b.remove(w)
		woken = append(woken, w)
		w = next
	}
	b.mu.Unlock()
	for _, w := range woken {
		close(w.token.woken)
	}
}

// UnparkOne wakes at most one waiter parked on addr, returning whether a
// waiter was found and whether more remain queued behind it.
func (l *Lot) UnparkOne(addr *uint64) (woke bool, moreWaiters bool) {
	b := l.bucketFor(unsafe.Pointer(addr))
	b.mu.Lock()
	w := b.head
	if w == nil {
		b.mu.Unlock()
		return false, false
	}
	b.remove(w)
	more := b.head != nil
	b.mu.Unlock()
	close(w.token.woken)
	return true, more
}

// BeginUnpark looks up (without waking) the first waiter parked on addr, so
// the caller can decide - before releasing the lock state - whether to hand
// off ownership directly (fair) or merely clear the lock bits and let the
// waiter re-acquire (unfair). The caller must follow up with FinishUnpark,
// passing the same token, exactly once.
//
// This two-phase handshake is what lets RecursiveMutex implement
// should_be_fair: it inspects more-waiters and decides fairness while still
// holding the bucket implicitly reserved, then commits via FinishUnpark.
func (l *Lot) BeginUnpark(addr *uint64) (token *Token, moreWaiters bool) {
	b := l.bucketFor(unsafe.Pointer(addr))
	b.mu.Lock()
	w := b.head
	if w == nil {
		b.mu.Unlock()
		return nil, false
	}
	b.remove(w)
	more := b.head != nil
	b.mu.Unlock()
	return w.token, more
}

// FinishUnpark completes a BeginUnpark handshake, waking the identified
// waiter. Passing a nil token (no waiter was found) is a safe no-op.
func (l *Lot) FinishUnpark(token *Token) {
	if token == nil {
		return
	}
	close(token.woken)
}

func loadAddr(addr *uint64) uint64 {
	return loadAtomic(addr)
}
