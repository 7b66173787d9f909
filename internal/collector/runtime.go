package collector

import (
	"sync"

	"github.com/brcgc/brcgc/internal/allocator"
	"github.com/brcgc/brcgc/internal/finalize"
	"github.com/brcgc/brcgc/internal/gcobj"
	"github.com/brcgc/brcgc/internal/mthread"
	"github.com/brcgc/brcgc/internal/stackwalk"
	"github.com/brcgc/brcgc/internal/stw"
)

// ThreadRuntime bundles everything the collector needs about one mutator
// thread: its identity, its stop-the-world status, its cross-thread decref
// queue, its current stack roots, and its per-type local refcount
// contributions (spec §4.G step 4: "merge each type's per-thread local
// type-object refcount into the type's shared count").
type ThreadRuntime struct {
	Thread    *mthread.Thread
	Status    *stw.ThreadState
	Queue     gcobj.ObjectQueue
	Stack     *stackwalk.Stack
	typeLocal map[*gcobj.TypeInfo]int64
	mu        sync.Mutex
}

// AddTypeLocalRef records a local refcount contribution toward ti's
// shared count, attributed to this thread. Mirrors per-thread type-object
// refcounting: types participate in the heap like other objects.
func (tr *ThreadRuntime) AddTypeLocalRef(ti *gcobj.TypeInfo, delta int64) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.typeLocal == nil {
		tr.typeLocal = make(map[*gcobj.TypeInfo]int64)
	}
	tr.typeLocal[ti] += delta
}

func (tr *ThreadRuntime) drainTypeLocal() map[*gcobj.TypeInfo]int64 {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := tr.typeLocal
	tr.typeLocal = nil
	return out
}

// Runtime is the shared state a Collector orchestrates: the allocator
// (heap walker's data source), the stop-the-world controller, every
// registered thread, the weakref registry, and the persistent garbage
// list (spec §2's control-flow summary: "G orchestrates... calls D+E...
// releases STW to call weakref callbacks and finalizers (H)").
type Runtime struct {
	Allocator *allocator.Allocator
	STW       *stw.Controller
	WeakRefs  *finalize.Registry

	mu      sync.Mutex
	threads map[uint64]*ThreadRuntime
	garbage []*gcobj.Base
}

// NewRuntime constructs a Runtime with fresh sub-components.
func NewRuntime() *Runtime {
	return &Runtime{
		Allocator: allocator.New(),
		STW:       stw.NewController(0),
		WeakRefs:  finalize.NewRegistry(),
		threads:   make(map[uint64]*ThreadRuntime),
	}
}

// Attach registers a new mutator thread with every subsystem that tracks
// per-thread state (allocator heap, stop-the-world status, decref queue).
func (rt *Runtime) Attach(id uint64) *ThreadRuntime {
	t := mthread.New(id)
	tr := &ThreadRuntime{
		Thread: t,
		Status: rt.STW.Register(t),
		Stack:  &stackwalk.Stack{},
	}
	rt.Allocator.AttachThread(id)

	rt.mu.Lock()
	rt.threads[id] = tr
	rt.mu.Unlock()
	return tr
}

// Detach unregisters a mutator thread: its heap becomes an abandoned
// segment and its stop-the-world status becomes Detached.
func (rt *Runtime) Detach(id uint64) {
	rt.mu.Lock()
	tr, ok := rt.threads[id]
	delete(rt.threads, id)
	rt.mu.Unlock()
	if !ok {
		return
	}
	rt.STW.Unregister(tr.Thread)
	rt.Allocator.DetachThread(id)
}

// Threads returns a snapshot of every currently-registered thread.
func (rt *Runtime) Threads() []*ThreadRuntime {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]*ThreadRuntime, 0, len(rt.threads))
	for _, tr := range rt.threads {
		out = append(out, tr)
	}
	return out
}

// Garbage returns the persistent gc.garbage list: objects with legacy
// tp_del finalizers, plus anything routed there by DEBUG_SAVEALL.
func (rt *Runtime) Garbage() []*gcobj.Base {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]*gcobj.Base, len(rt.garbage))
	copy(out, rt.garbage)
	return out
}

func (rt *Runtime) appendGarbage(objs []*gcobj.Base) {
	rt.mu.Lock()
	rt.garbage = append(rt.garbage, objs...)
	rt.mu.Unlock()
}
