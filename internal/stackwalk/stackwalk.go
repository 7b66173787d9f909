// Package stackwalk implements spec §4.E: walking each mutator thread's
// register-stack roots during the collector's root sweep. A Go goroutine
// has no addressable register file, so Slot stands in for the tagged word
// spec §4.E describes - a frame's root can be a strong reference, an
// immediate (no object, skipped entirely), or a deferred-refcount
// reference (a strong pointer the stack keeps alive without having bumped
// the object's refcount).
package stackwalk

import "github.com/brcgc/brcgc/internal/gcobj"

// Kind discriminates what a Slot holds.
type Kind int

const (
	// KindImmediate carries no object; the walker skips it entirely.
	KindImmediate Kind = iota
	// KindStrong carries an ordinary strong reference, already reflected
	// in the object's refcount.
	KindStrong
	// KindDeferred carries a deferred-refcount reference: valid only
	// because the stack frame itself keeps the object alive, not
	// reflected in ref_local/ref_shared.
	KindDeferred
)

// Slot is one root-bearing stack location.
type Slot struct {
	Kind Kind
	Obj  *gcobj.Base
}

// Frame is one activation record's set of root slots. Frames nest via
// Saved, mirroring spec §4.E's "and its saved continuations" (generator /
// coroutine frames kept alive by a suspended caller).
type Frame struct {
	Slots []Slot
	Saved []*Frame
}

// Stack is one thread's register stack: a list of active frames, top of
// stack first.
type Stack struct {
	Frames []*Frame
}

// VisitKind selects which of the three root-sweep visitors (spec §4.E)
// the walker is running.
type VisitKind int

const (
	// VisitDecref subtracts internal references; deferred slots are
	// skipped (they were never added to gc_refs in the first place).
	VisitDecref VisitKind = iota
	// VisitIncref marks roots: bumps gc_refs by one per slot, including
	// deferred ones, biasing the analysis toward treating stack-rooted
	// objects as reachable.
	VisitIncref
	// VisitReachable is used during unreachable-set construction to
	// promote zeroed successors back to the young list.
	VisitReachable
)

// Visit is called once per non-immediate slot encountered while walking a
// stack, with the active VisitKind.
type Visit func(kind VisitKind, obj *gcobj.Base)

// Walk visits every root-bearing slot across stack and its saved
// continuations, calling visit with kind for each.
//
// Per spec §4.E: deferred-refcount slots are skipped by VisitDecref and
// counted by VisitIncref; VisitReachable (used only on the unreachable
// working list, never directly on a stack) still receives every
// non-immediate slot.
func Walk(stack *Stack, kind VisitKind, visit Visit) {
	for _, frame := range stack.Frames {
		walkFrame(frame, kind, visit)
	}
}

func walkFrame(frame *Frame, kind VisitKind, visit Visit) {
	for _, slot := range frame.Slots {
		switch slot.Kind {
		case KindImmediate:
			continue
		case KindDeferred:
			if kind == VisitDecref {
				continue
			}
			visit(kind, slot.Obj)
		case KindStrong:
			visit(kind, slot.Obj)
		}
	}
	for _, saved := range frame.Saved {
		walkFrame(saved, kind, visit)
	}
}

// Incref runs VisitIncref over stack, adding one to gc_refs for every
// stack-held object (including deferred ones) so it cannot be collected
// (spec §4.G step 4).
func Incref(stack *Stack) {
	Walk(stack, VisitIncref, func(_ VisitKind, obj *gcobj.Base) {
		obj.GCHeader().AddGCRefs(1)
	})
}
