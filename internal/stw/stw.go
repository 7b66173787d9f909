// Package stw implements spec §4.F's stop-the-world controller: the
// handshake that quiesces every registered mutator thread so the
// collector can walk the heap without observing partially-updated GC
// header bits (spec invariant 5).
package stw

import (
	"sync"
	"time"

	"github.com/brcgc/brcgc/internal/mthread"
	"github.com/brcgc/brcgc/internal/parkinglot"
	"github.com/brcgc/brcgc/internal/syncx"
)

// Status is a mutator thread's stop-the-world status.
type Status uint64

const (
	// StatusDetached means the thread is not currently running
	// interpreter code (e.g. blocked in a syscall) and need not be
	// waited for.
	StatusDetached Status = iota
	// StatusAttached means the thread is running mutator code normally.
	StatusAttached
	// StatusGC means the thread has seen the stop bit, parked, and is
	// waiting for the collector to restart the world.
	StatusGC
)

// ThreadState is the controller's per-thread bookkeeping: the status word
// mutators poll against and flip, plus the cant_stop_wont_stop flag short
// critical sections use to postpone cooperation.
type ThreadState struct {
	thread           *mthread.Thread
	status           uint64
	cantStopWontStop uint64 // 0/1, CAS'd
}

// Status returns the thread's current status.
func (ts *ThreadState) Status() Status {
	return Status(loadAtomic(&ts.status))
}

// CantStopWontStop reports whether the thread is in a short critical
// section that has deferred cooperation with a pending stop request.
func (ts *ThreadState) CantStopWontStop() bool {
	return loadAtomic(&ts.cantStopWontStop) != 0
}

// BeginCriticalSection sets cant_stop_wont_stop, postponing this thread's
// cooperation with any stop request until EndCriticalSection.
func (ts *ThreadState) BeginCriticalSection() { storeAtomic(&ts.cantStopWontStop, 1) }

// EndCriticalSection clears cant_stop_wont_stop.
func (ts *ThreadState) EndCriticalSection() { storeAtomic(&ts.cantStopWontStop, 0) }

// Controller serializes collectors (via a single stoptheworld_mutex) and
// tracks every attached mutator thread's status.
type Controller struct {
	mu            syncx.Mutex
	pollInterval  time.Duration
	threadsMu     sync.Mutex
	threads       map[uint64]*ThreadState
	stopRequested uint64 // 0/1, atomic
}

// NewController constructs a Controller. pollInterval bounds how often a
// spinning StopTheWorld re-checks thread statuses; 0 selects a small
// default suitable for tests.
func NewController(pollInterval time.Duration) *Controller {
	if pollInterval <= 0 {
		pollInterval = 50 * time.Microsecond
	}
	return &Controller{pollInterval: pollInterval, threads: make(map[uint64]*ThreadState)}
}

// Register attaches t to the controller, returning its ThreadState. Call
// once per mutator thread when it starts running interpreter code.
func (c *Controller) Register(t *mthread.Thread) *ThreadState {
	ts := &ThreadState{thread: t, status: uint64(StatusAttached)}
	c.threadsMu.Lock()
	c.threads[t.ID] = ts
	c.threadsMu.Unlock()
	return ts
}

// Unregister marks t's thread state Detached and removes it from the
// active set. Safe to call whether or not a collection is in progress.
func (c *Controller) Unregister(t *mthread.Thread) {
	c.threadsMu.Lock()
	defer c.threadsMu.Unlock()
	if ts, ok := c.threads[t.ID]; ok {
		storeAtomic(&ts.status, uint64(StatusDetached))
		delete(c.threads, t.ID)
	}
}

// StopRequested reports whether a collector has signaled the global stop
// bit (the eval_breaker state mutators poll).
func (c *Controller) StopRequested() bool {
	return loadAtomic(&c.stopRequested) != 0
}

// PollEvalBreaker is called periodically by mutator code running on ts's
// thread. If a stop has been requested and ts is not in a short critical
// section, it transitions to StatusGC and parks until the collector
// restarts the world, per spec §4.F/§5 ("every mutator thread periodically
// polls eval_breaker").
func (c *Controller) PollEvalBreaker(ts *ThreadState) {
	if !c.StopRequested() || ts.CantStopWontStop() {
		return
	}
	storeAtomic(&ts.status, uint64(StatusGC))
	for c.StopRequested() {
		parkinglot.Default.Park(&ts.status, uint64(StatusGC), time.Time{})
	}
	storeAtomic(&ts.status, uint64(StatusAttached))
}

// StopTheWorld implements spec §4.F's stop sequence. It acquires
// stoptheworld_mutex (serializing collectors - the mutex stays held until
// RestartTheWorld, across the whole stopped phase), refuses to begin if
// requester has cant_stop_wont_stop set, signals the stop bit, and busy-
// waits until every other registered thread has reached StatusGC or
// StatusDetached. Returns false (collection aborts) only on the
// requester's own cant_stop_wont_stop flag; otherwise it blocks until the
// world is stopped and returns true.
func (c *Controller) StopTheWorld(requester *ThreadState) bool {
	if requester != nil && requester.CantStopWontStop() {
		return false
	}
	c.mu.Lock()
	storeAtomic(&c.stopRequested, 1)

	for {
		if c.allStopped(requester) {
			return true
		}
		time.Sleep(c.pollInterval)
	}
}

func (c *Controller) allStopped(requester *ThreadState) bool {
	c.threadsMu.Lock()
	defer c.threadsMu.Unlock()
	for _, ts := range c.threads {
		if requester != nil && ts == requester {
			continue
		}
		switch ts.Status() {
		case StatusGC, StatusDetached:
			continue
		default:
			return false
		}
	}
	return true
}

// RestartTheWorld reverses the handshake: clears the stop bit, wakes every
// parked thread via the parking lot, and releases stoptheworld_mutex.
func (c *Controller) RestartTheWorld() {
	storeAtomic(&c.stopRequested, 0)

	c.threadsMu.Lock()
	threads := make([]*ThreadState, 0, len(c.threads))
	for _, ts := range c.threads {
		threads = append(threads, ts)
	}
	c.threadsMu.Unlock()

	for _, ts := range threads {
		parkinglot.Default.UnparkAll(&ts.status)
	}
	c.mu.Unlock()
}
