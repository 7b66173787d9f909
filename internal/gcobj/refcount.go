package gcobj

import "sync/atomic"

// Bit layout for the split (biased) refcount, spec §3/§4.C:
//
//	ref_local:  (count << localShift) | immortalBit
//	ref_shared: (count << sharedShift) | mergedBit | queuedBit
const (
	localImmortalBit uint64 = 1
	localShift              = 1

	sharedQueuedBit uint64 = 1
	sharedMergedBit uint64 = 2
	sharedShift            = 2
)

// Base is embedded by every GC-tracked type. It carries the header, the
// split refcount, the owning thread id, and a pointer to the type's
// function table.
type Base struct {
	Header
	Type *TypeInfo

	refLocal  uint64 // owner-thread-only; STW may also touch it (spec invariant 4)
	refShared uint64 // atomic; remote decrements CAS into this

	// ThreadID is the id of the owning thread, or 0 once merged (spec §3).
	ThreadID uint64
}

// GCHeader implements Object.
func (b *Base) GCHeader() *Header { return &b.Header }

// Immortal reports whether the object is marked immortal; immortal objects
// are never deallocated regardless of refcount (spec §3).
func (b *Base) Immortal() bool { return b.refLocal&localImmortalBit != 0 }

// SetImmortal marks the object immortal.
func (b *Base) SetImmortal() { b.refLocal |= localImmortalBit }

// LocalCount returns the local refcount. Only the owning thread (ThreadID)
// or the collector during STW may call this (spec invariant 4).
func (b *Base) LocalCount() int64 { return int64(b.refLocal >> localShift) }

// IncRefLocal increments the local refcount by one. Owner-thread or STW
// only.
func (b *Base) IncRefLocal() { b.refLocal += 1 << localShift }

// DecRefLocal decrements the local refcount by one, returning the new
// count. Owner-thread or STW only.
func (b *Base) DecRefLocal() int64 {
	b.refLocal -= 1 << localShift
	return b.LocalCount()
}

// SharedCount returns the shared refcount.
func (b *Base) SharedCount() int64 {
	return int64(atomic.LoadUint64(&b.refShared) >> sharedShift)
}

// Merged reports whether the object's local refcount has been folded into
// shared (ThreadID == 0 afterwards).
func (b *Base) Merged() bool {
	return atomic.LoadUint64(&b.refShared)&sharedMergedBit != 0
}

// Queued reports whether the object is queued for deferred dealloc on its
// owning thread's object queue (spec §3, §4.G step 3).
func (b *Base) Queued() bool {
	return atomic.LoadUint64(&b.refShared)&sharedQueuedBit != 0
}

// SetQueued sets or clears the queued bit.
func (b *Base) SetQueued(v bool) {
	for {
		old := atomic.LoadUint64(&b.refShared)
		var newV uint64
		if v {
			newV = old | sharedQueuedBit
		} else {
			newV = old &^ sharedQueuedBit
		}
		if newV == old || atomic.CompareAndSwapUint64(&b.refShared, old, newV) {
			return
		}
	}
}

// IncRefShared atomically increments the shared refcount by one.
func (b *Base) IncRefShared() {
	atomic.AddUint64(&b.refShared, 1<<sharedShift)
}

// DecRefShared atomically decrements the shared refcount by one, returning
// the new shared count. This is how a remote thread records dropping a
// reference it does not own locally.
func (b *Base) DecRefShared() int64 {
	const delta = uint64(1 << sharedShift)
	new := atomic.AddUint64(&b.refShared, ^delta+1) // two's complement: -delta
	return int64(new >> sharedShift)
}

// RefCount returns the logical reference count: local plus shared,
// excluding immortality (spec invariant 4).
func (b *Base) RefCount() int64 {
	return b.LocalCount() + b.SharedCount()
}

// DecRef drops one reference through whichever half of the split refcount is
// currently authoritative, returning the resulting RefCount. Before
// IncrefMerge runs that's the owning thread's local count; once merged, local
// is permanently zero and every further drop - including one tp_clear
// releases against a cycle-mate the collector has already merged - must land
// on shared instead, or it underflows. Callers that don't know which half
// applies (tp_clear implementations releasing a GC-tracked field) should use
// this instead of DecRefLocal/DecRefShared directly.
func (b *Base) DecRef() int64 {
	if b.Merged() {
		return b.DecRefShared() + b.LocalCount()
	}
	return b.DecRefLocal() + b.SharedCount()
}

// IncrefMerge merges the local refcount into the shared refcount, zeros
// local and ThreadID, sets merged, and adds one extra temporary reference -
// the operation the collector uses to assume exclusive ownership of a cycle
// candidate while the world is restarted for weakref callbacks and
// finalizers (spec §4.C, §4.G step 9, testable property 2: total refcount
// is preserved plus exactly one).
//
// Must only be called on a thread that holds the stop-the-world lock, since
// it reads/clears the local half of the refcount.
func IncrefMerge(b *Base) {
	local := uint64(b.LocalCount())
	immortal := b.Immortal()

	b.refLocal = 0
	if immortal {
		b.refLocal = localImmortalBit
	}
	b.ThreadID = 0

	for {
		old := atomic.LoadUint64(&b.refShared)
		cnt := old >> sharedShift
		newCnt := cnt + local + 1
		newV := (newCnt << sharedShift) | sharedMergedBit | (old & sharedQueuedBit)
		if atomic.CompareAndSwapUint64(&b.refShared, old, newV) {
			return
		}
	}
}
