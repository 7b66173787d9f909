// Package finalize implements spec §4.G step 9/12/13/16/17 and §4.H: weak
// reference control blocks, the queue of callbacks to run once the world
// restarts, finalizer invocation with FINALIZED idempotence, and routing
// uncollectable cycles into the persistent garbage list.
package finalize

import (
	"fmt"
	"sync"

	"github.com/brcgc/brcgc/internal/gcobj"
)

// WeakRef is a weak reference control block. Unlike a real weakref, a Go
// WeakRef does not need an explicit incref/decref dance to survive the
// window between being queued and having its callback invoked: holding it
// in a Go slice (wrcb_to_call) already keeps it reachable for Go's own
// collector, so there is no temporary-reference bookkeeping to model here
// (spec §3 invariant 6's "never freed while still being processed" is
// satisfied for free by Go's memory model).
type WeakRef struct {
	mu       sync.Mutex
	target   *gcobj.Base
	callback func(*WeakRef)
}

// Target returns the referenced object, or nil if it has been cleared
// (either the object died, or this weakref was manually cleared).
func (w *WeakRef) Target() *gcobj.Base {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.target
}

func (w *WeakRef) clear() {
	w.mu.Lock()
	w.target = nil
	w.mu.Unlock()
}

// Registry tracks every live WeakRef, indexed by target, so the collector
// can detach every weakref pointing into the unreachable set (spec §4.G
// step 9).
type Registry struct {
	mu       sync.Mutex
	byTarget map[*gcobj.Base][]*WeakRef
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byTarget: make(map[*gcobj.Base][]*WeakRef)}
}

// NewWeakRef creates a weakref targeting obj with an optional callback,
// invoked (with the weakref, target already nil) once obj dies.
func (r *Registry) NewWeakRef(target *gcobj.Base, callback func(*WeakRef)) *WeakRef {
	w := &WeakRef{target: target, callback: callback}
	r.mu.Lock()
	r.byTarget[target] = append(r.byTarget[target], w)
	r.mu.Unlock()
	return w
}

// DetachAll clears every weakref pointing at target (its wr_object becomes
// nil without running any callback yet) and returns the subset that carry
// a callback, for the caller to append to its wrcb_to_call queue (spec
// §4.G step 9: "For each live weakref pointing at this dying object with a
// callback, incref the weakref and append it to wrcb_to_call").
func (r *Registry) DetachAll(target *gcobj.Base) []*WeakRef {
	r.mu.Lock()
	refs := r.byTarget[target]
	delete(r.byTarget, target)
	r.mu.Unlock()

	var withCallback []*WeakRef
	for _, w := range refs {
		w.clear()
		if w.callback != nil {
			withCallback = append(withCallback, w)
		}
	}
	return withCallback
}

// Unraisable receives an exception-equivalent (a recovered panic) that the
// spec says must be printed rather than propagated. Tests substitute a
// recording implementation.
type Unraisable func(stage string, obj *gcobj.Base, recovered any)

func defaultUnraisable(stage string, obj *gcobj.Base, recovered any) {
	fmt.Printf("gc: unraisable exception in %s for %p: %v\n", stage, obj, recovered)
}

func safeCall(stage string, obj *gcobj.Base, unraisable Unraisable, fn func()) {
	if unraisable == nil {
		unraisable = defaultUnraisable
	}
	defer func() {
		if r := recover(); r != nil {
			unraisable(stage, obj, r)
		}
	}()
	fn()
}

// RunWeakrefCallbacks runs every queued weakref's callback in order (spec
// §4.G step 12). Each callback observes w.Target() == nil, never the dead
// object itself (testable property 5). Exceptions become unraisable.
func RunWeakrefCallbacks(queue []*WeakRef, unraisable Unraisable) {
	for _, w := range queue {
		safeCall("weakref callback", nil, unraisable, func() {
			w.callback(w)
		})
	}
}

// RunFinalizers invokes tp_finalize on every object in objs whose type has
// a Finalize hook and whose FINALIZED bit is not already latched (spec
// §4.G step 13, testable property 4: FINALIZED idempotence - a resurrected
// object's finalizer never runs again in a later collection).
func RunFinalizers(objs []*gcobj.Base, unraisable Unraisable) {
	for _, obj := range objs {
		h := obj.GCHeader()
		if obj.Type.Finalize == nil || h.Finalized() {
			continue
		}
		h.SetFinalized(true)
		safeCall("finalizer", obj, unraisable, func() {
			obj.Type.Finalize(obj)
		})
	}
}

// DeleteGarbage runs tp_clear on every object in finalUnreachable, breaking
// the cycle by releasing each object's GC-tracked fields, unless saveAll is
// set (DEBUG_SAVEALL), in which case objects are appended to garbage
// untouched instead (spec §4.G step 16). It does not itself drop the
// temporary reference step 9's IncrefMerge added or reclaim memory - the
// caller does that afterward, once every object in the batch has had
// tp_clear run, so one object's collection can never race its cycle-mate's.
func DeleteGarbage(finalUnreachable []*gcobj.Base, saveAll bool, garbage *[]*gcobj.Base, unraisable Unraisable) {
	for _, obj := range finalUnreachable {
		if saveAll {
			*garbage = append(*garbage, obj)
			continue
		}
		if obj.Type.Clear == nil {
			continue
		}
		safeCall("tp_clear", obj, unraisable, func() {
			_ = obj.Type.Clear(obj)
		})
	}
}

// PublishLegacyFinalizers appends every object routed to the legacy
// tp_del path (scenario B: cycles with a __del__-bearing member) to
// garbage, where they remain visible to user code as uncollectable (spec
// §4.G step 17).
func PublishLegacyFinalizers(legacy []*gcobj.Base, garbage *[]*gcobj.Base) {
	*garbage = append(*garbage, legacy...)
}
