package gcobj

import "sync"

// ObjectQueue is a thread's cross-thread decref queue (spec §3, §4.G step 3,
// §5): any thread may Push an object whose refcount it decremented
// remotely; it is drained by the owning thread or, under stop-the-world, by
// the collector's decref-queue pass (spec §4.G step 3). Growth doubles the backing slice, the same doubling strategy
// catrate's ringBuffer uses for its insert-when-full path, simplified here
// to a plain FIFO since, unlike catrate's windows, nothing needs random
// insertion or binary search.
type ObjectQueue struct {
	mu   sync.Mutex
	objs []*Base
}

// Push enqueues obj. Safe to call from any thread.
func (q *ObjectQueue) Push(obj *Base) {
	q.mu.Lock()
	q.objs = append(q.objs, obj)
	q.mu.Unlock()
}

// Drain removes and returns every currently-queued object. Intended to be
// called only by the owning thread (or, under stop-the-world, by the
// collector on the owning thread's behalf).
func (q *ObjectQueue) Drain() []*Base {
	q.mu.Lock()
	objs := q.objs
	q.objs = nil
	q.mu.Unlock()
	return objs
}

// Len reports the number of currently-queued objects.
func (q *ObjectQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.objs)
}
