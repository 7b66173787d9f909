// Package gcobj implements the tracked-object data model: the GC header
// link/flags, the split local/shared (biased) refcount, and the per-type
// function table (spec §3, §4.C).
//
// The source material (Modules/gcmodule.c in the CPython "nogil" fork under
// _examples/original_source) packs TRACKED/FINALIZED/UNREACHABLE flags and a
// signed gc_refs counter into the same word as the doubly-linked list's
// `prev` pointer, and a NEXT_MASK_UNREACHABLE bit into `next`. That bit
// packing is a C-specific space optimization: tagging a live Go pointer with
// flag bits would hide it from the garbage collector's pointer scanner, so
// Header instead keeps the link pointers honest and carries the flags,
// gc_refs overlay, and the NEXT_MASK_UNREACHABLE bit as separate fields
// (spec §9 design note: "implement as a tagged integer with explicit masked
// accessors" - the accessors are kept, the packing is not).
package gcobj

// flags holds the low-bit flags spec §3 places on `prev`: TRACKED,
// FINALIZED, UNREACHABLE, plus an internal PREV_MASK_COLLECTING-equivalent
// bit (collecting) used to mark membership in the generation currently being
// collected, distinct from the transient UNREACHABLE bit.
type flags uint8

const (
	flagTracked flags = 1 << iota
	flagFinalized
	flagUnreachable
	flagCollecting
)

// Header is the intrusive GC link embedded in every tracked object, plus its
// flags and the gc_refs overlay used while linked into a working list
// (young/unreachable/finalizers) during a collection.
type Header struct {
	prev, next *Header
	flags      flags

	// gcRefs overlays the `prev` pointer conceptually (spec invariant 3): it
	// is only meaningful while the object is linked into a collector working
	// list, between "seed working set" and the end of the cycle. It must be
	// zero at rest.
	gcRefs int64

	// nextUnreachable is the NEXT_MASK_UNREACHABLE bit (spec §9): set only
	// between move_unreachable and clear_unreachable_mask, on objects
	// belonging to the unreachable list.
	nextUnreachable bool

	// owner points back to the Object this header belongs to, so visitors
	// that only see a *Header can recover the object to traverse it.
	owner Object
}

// Object is anything with a GC header: every type the collector tracks
// embeds a Header and exposes it via this method.
type Object interface {
	GCHeader() *Header
}

// Init wires h to its owning object. Called once, by the object's
// constructor, when it is created (the allocator does not call it).
func (h *Header) Init(owner Object) {
	h.owner = owner
}

// Owner returns the object this header belongs to.
func (h *Header) Owner() Object { return h.owner }

// Tracked reports whether TRACKED is set (spec invariant 1).
func (h *Header) Tracked() bool { return h.flags&flagTracked != 0 }

// SetTracked sets or clears TRACKED.
func (h *Header) SetTracked(v bool) { h.setFlag(flagTracked, v) }

// Finalized reports whether FINALIZED is latched.
func (h *Header) Finalized() bool { return h.flags&flagFinalized != 0 }

// SetFinalized latches FINALIZED. It is never unlatched except by
// maybe_untrack-style logic dropping the object from GC's view entirely
// (spec §4.G tie-break: "a tuple/dict successfully untracked ... also loses
// its FINALIZED flag").
func (h *Header) SetFinalized(v bool) { h.setFlag(flagFinalized, v) }

// Unreachable reports whether UNREACHABLE is set. Only meaningful between
// move_unreachable and the end of the current collection (spec invariant 2).
func (h *Header) Unreachable() bool { return h.flags&flagUnreachable != 0 }

// SetUnreachable sets or clears UNREACHABLE.
func (h *Header) SetUnreachable(v bool) { h.setFlag(flagUnreachable, v) }

// Collecting reports whether this object currently belongs to the
// generation being collected (linked into young/unreachable/finalizers).
func (h *Header) Collecting() bool { return h.flags&flagCollecting != 0 }

// SetCollecting sets or clears the collecting bit.
func (h *Header) SetCollecting(v bool) { h.setFlag(flagCollecting, v) }

func (h *Header) setFlag(f flags, v bool) {
	if v {
		h.flags |= f
	} else {
		h.flags &^= f
	}
}

// GCRefs returns the gc_refs overlay. Valid only while Collecting.
func (h *Header) GCRefs() int64 { return h.gcRefs }

// SetGCRefs sets the gc_refs overlay.
func (h *Header) SetGCRefs(v int64) { h.gcRefs = v }

// AddGCRefs adds delta to the gc_refs overlay, returning the new value.
func (h *Header) AddGCRefs(delta int64) int64 {
	h.gcRefs += delta
	return h.gcRefs
}

// NextUnreachable returns the NEXT_MASK_UNREACHABLE bit.
func (h *Header) NextUnreachable() bool { return h.nextUnreachable }

// SetNextUnreachable sets the NEXT_MASK_UNREACHABLE bit.
func (h *Header) SetNextUnreachable(v bool) { h.nextUnreachable = v }

// ClearWorkingState resets everything that only has meaning while the
// object is linked into a collector working list: UNREACHABLE, the
// collecting bit, gc_refs, and NEXT_MASK_UNREACHABLE. TRACKED and FINALIZED
// survive (spec invariant 2, and the "gc_list_clear" open question in §9:
// "preserve TRACKED|FINALIZED and clear UNREACHABLE + working-set bits").
func (h *Header) ClearWorkingState() {
	h.flags &^= flagUnreachable | flagCollecting
	h.gcRefs = 0
	h.nextUnreachable = false
	h.prev, h.next = nil, nil
}
