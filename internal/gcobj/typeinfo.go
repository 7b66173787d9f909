package gcobj

// VisitFunc is called by a type's Traverse implementation once per strong
// outgoing reference (spec §4.C invariant: "traverse must visit every
// strong outgoing reference exactly once").
type VisitFunc func(succ *Base) error

// TypeInfo is the function table every collectable type provides (spec §3,
// §4.C). Traverse is mandatory; Clear, Finalize and Del are optional
// capabilities, left nil when unsupported.
type TypeInfo struct {
	Name string

	// Traverse visits every object obj strongly references.
	Traverse func(obj *Base, visit VisitFunc) error

	// Clear breaks obj's outgoing references (tp_clear), used to dismantle
	// a garbage cycle. Nil if the type has no mutable references to clear.
	Clear func(obj *Base) error

	// Finalize runs obj's user-defined finalizer (tp_finalize). Nil if the
	// type has none.
	Finalize func(obj *Base)

	// Del is the legacy finalizer (tp_del): objects with one are routed to
	// gc.garbage instead of being silently cleared (spec §3, §4.G step 8).
	Del func(obj *Base)

	// Untrackable reports whether obj, a container of this type, may be
	// removed from GC tracking because it transitively contains only
	// unboxed values (spec §4.G step 5's maybe_untrack). Nil means never
	// eligible (the common case - only tuple/dict-equivalents implement
	// this).
	Untrackable func(obj *Base) bool

	// RetainOnUnreachable runs once per object during the weakref pass
	// (spec §4.G step 9), generalizing the source's three type-specific
	// retention rules - upgrading a generator's deferred-rc stack slots,
	// retaining a function's code/builtins/globals, releasing a type's
	// per-thread type-id - into a single optional hook, since bytecode
	// evaluation itself is out of scope here. Nil if the type needs no
	// special handling before its cycle is torn down.
	RetainOnUnreachable func(obj *Base)

	// Free releases any non-GC resources obj holds (file descriptors,
	// native buffers) immediately before the allocator reclaims its slot.
	// Nil if the type owns nothing beyond its tracked references.
	Free func(obj *Base)

	// sharedRefCount is the per-thread-merged local refcount for the type
	// object itself: type objects participate in the heap like other
	// objects, and their per-thread local counts are merged into
	// SharedRefCount during the root sweep (spec §4.G step 4).
	sharedRefCount int64
}

// SharedRefCount returns the type object's merged shared refcount, valid
// after the root sweep phase has merged all per-thread contributions.
func (t *TypeInfo) SharedRefCount() int64 { return t.sharedRefCount }

// MergeThreadRefCount folds a per-thread local contribution into the type's
// shared refcount (spec §4.G step 4: "merge each type's per-thread local
// type-object refcount into the type's shared count").
func (t *TypeInfo) MergeThreadRefCount(local int64) {
	t.sharedRefCount += local
}
