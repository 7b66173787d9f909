// Package collector implements spec §4.G: the full single-generation,
// refcount-subtraction cycle collector, orchestrating the heap walker
// (internal/heapwalk), stack walker (internal/stackwalk), stop-the-world
// controller (internal/stw), object model (internal/gcobj), and finalizer
// / weakref pipeline (internal/finalize).
package collector

import (
	"os"
	"sync/atomic"

	"github.com/brcgc/brcgc/internal/finalize"
	"github.com/brcgc/brcgc/internal/gcobj"
	"github.com/brcgc/brcgc/internal/gclog"
	"github.com/brcgc/brcgc/internal/heapwalk"
	"github.com/brcgc/brcgc/internal/stackwalk"
	"github.com/brcgc/brcgc/internal/stw"
)

// DebugFlag is the set_debug/get_debug bitmask (spec §6).
type DebugFlag uint32

const (
	DebugStats        DebugFlag = 1 << 0
	DebugCollectable  DebugFlag = 1 << 1
	DebugUncollectable DebugFlag = 1 << 2
	DebugSaveAll      DebugFlag = 1 << 5
)

// Reason selects why a collection was requested (spec §4.G step 1: "if
// reason==HEAP and the live-object count has not reached gc_threshold").
type Reason int

const (
	// ReasonManual is an explicit user call to collect(); it always runs
	// regardless of the threshold.
	ReasonManual Reason = iota
	// ReasonHeap is an allocation-triggered automatic collection; it is
	// skipped if gc_live has not reached the threshold.
	ReasonHeap
)

// Stats is one collection's entry in get_stats()'s history.
type Stats struct {
	Collections   int64
	Collected     int64
	Uncollectable int64
}

// Hooks are the DTrace-probe-equivalent start/stop notifications (spec
// §4.H's invoke_gc_callback, generalized per SPEC_FULL's ambient-stack
// expansion).
type Hooks struct {
	OnStart func(reason Reason)
	OnDone  func(stats Stats)
}

// Config configures a Collector. Every field has a working zero value.
type Config struct {
	// ScalePercent is gc_scale, the PYTHONGC environment knob: threshold =
	// max(7000, live + live*ScalePercent/100). Zero selects the documented
	// default of 100.
	ScalePercent int64

	Hooks Hooks

	// AuditHook is invoked synchronously before GetObjects, GetReferrers,
	// and GetReferents run (SPEC_FULL's generalization of sys.audit).
	AuditHook func(op string, args ...any)

	// Unraisable receives recovered panics from user callbacks (weakref
	// callbacks, finalizers, tp_clear). Nil selects a default that logs
	// through Logger, or prints to stderr when Logger is nil.
	Unraisable finalize.Unraisable

	// StatsHistory bounds how many past collections GetStats retains.
	// Zero selects 1 (spec §6: "get_stats() - List of one dict").
	StatsHistory int

	// Logger receives structured diagnostics for each collection (start,
	// finish, unraisable exceptions, threshold changes). Nil discards them,
	// except unraisable exceptions, which then go to stderr.
	Logger *gclog.Logger
}

// Collector is the public façade's backing implementation: one instance
// per interpreter-equivalent, holding the enable/threshold/debug state
// plus a *Runtime tying together every component.
type Collector struct {
	Runtime *Runtime
	cfg     Config

	collecting uint64 // 0/1, CAS guarded (spec §9 "re-entrancy")
	enabled    uint64 // 0/1
	debug      uint32
	threshold  uint64
	liveCount  int64

	history []Stats
}

// New constructs a Collector with a fresh Runtime and the given Config.
func New(cfg Config) *Collector {
	if cfg.ScalePercent == 0 {
		cfg.ScalePercent = 100
	}
	if cfg.StatsHistory <= 0 {
		cfg.StatsHistory = 1
	}
	unraisableToStderr := cfg.Logger == nil
	if cfg.Logger == nil {
		cfg.Logger = gclog.Discard()
	}
	if cfg.Unraisable == nil {
		logger := cfg.Logger
		if unraisableToStderr {
			logger = gclog.New(os.Stderr)
		}
		cfg.Unraisable = func(stage string, obj *gcobj.Base, recovered any) {
			logger.Unraisable(stage, recovered)
		}
	}
	return &Collector{
		Runtime:   NewRuntime(),
		cfg:       cfg,
		enabled:   1,
		threshold: defaultThreshold,
	}
}

const defaultThreshold = 7000

// Enable/Disable/IsEnabled toggle automatic (ReasonHeap) collection.
func (c *Collector) Enable()  { atomic.StoreUint64(&c.enabled, 1) }
func (c *Collector) Disable() { atomic.StoreUint64(&c.enabled, 0) }
func (c *Collector) IsEnabled() bool { return atomic.LoadUint64(&c.enabled) != 0 }

// SetDebug/GetDebug manipulate the debug bitmask.
func (c *Collector) SetDebug(flags DebugFlag) { atomic.StoreUint32(&c.debug, uint32(flags)) }
func (c *Collector) GetDebug() DebugFlag      { return DebugFlag(atomic.LoadUint32(&c.debug)) }

// SetThreshold sets gc_threshold directly; it persists only until the next
// completed collection recomputes it (spec §9 open question).
func (c *Collector) SetThreshold(t0 int) { atomic.StoreUint64(&c.threshold, uint64(t0)) }

// GetThreshold returns the current threshold.
func (c *Collector) GetThreshold() int { return int(atomic.LoadUint64(&c.threshold)) }

// GetCount returns (live_objects, 0, 0) - a single-generation stand-in for
// CPython's three-generation count tuple (spec §6).
func (c *Collector) GetCount() (int, int, int) {
	return int(atomic.LoadInt64(&c.liveCount)), 0, 0
}

// GetStats returns the bounded collection-history list.
func (c *Collector) GetStats() []Stats {
	out := make([]Stats, len(c.history))
	copy(out, c.history)
	return out
}

// Freeze, Unfreeze, and GetFreezeCount are documented no-ops: this design
// keeps a single generation, so there is nothing to freeze (spec §6, §9).
func (c *Collector) Freeze()          {}
func (c *Collector) Unfreeze()        {}
func (c *Collector) GetFreezeCount() int { return 0 }

// IsTracked reports whether obj's TRACKED bit is set.
func (c *Collector) IsTracked(obj *gcobj.Base) bool { return obj.GCHeader().Tracked() }

// IsFinalized reports whether obj's FINALIZED bit is set.
func (c *Collector) IsFinalized(obj *gcobj.Base) bool { return obj.GCHeader().Finalized() }

// GetObjects returns a snapshot of every currently tracked object.
func (c *Collector) GetObjects() []*gcobj.Base {
	if c.cfg.AuditHook != nil {
		c.cfg.AuditHook("gc.get_objects")
	}
	var out []*gcobj.Base
	heapwalk.ClearVisited(c.Runtime.Allocator)
	heapwalk.Walk(c.Runtime.Allocator, func(obj *gcobj.Base) { out = append(out, obj) })
	return out
}

// GetReferrers returns every tracked object whose traverse visits any of
// targets.
func (c *Collector) GetReferrers(targets ...*gcobj.Base) []*gcobj.Base {
	if c.cfg.AuditHook != nil {
		c.cfg.AuditHook("gc.get_referrers", targets)
	}
	set := make(map[*gcobj.Base]bool, len(targets))
	for _, t := range targets {
		set[t] = true
	}
	var out []*gcobj.Base
	heapwalk.ClearVisited(c.Runtime.Allocator)
	heapwalk.Walk(c.Runtime.Allocator, func(obj *gcobj.Base) {
		if obj.Type == nil || obj.Type.Traverse == nil {
			return
		}
		found := false
		_ = obj.Type.Traverse(obj, func(succ *gcobj.Base) error {
			if set[succ] {
				found = true
			}
			return nil
		})
		if found {
			out = append(out, obj)
		}
	})
	return out
}

// GetReferents traverses each of objs and returns the union of their
// immediate successors.
func (c *Collector) GetReferents(objs ...*gcobj.Base) []*gcobj.Base {
	if c.cfg.AuditHook != nil {
		c.cfg.AuditHook("gc.get_referents", objs)
	}
	var out []*gcobj.Base
	for _, obj := range objs {
		if obj.Type == nil || obj.Type.Traverse == nil {
			continue
		}
		_ = obj.Type.Traverse(obj, func(succ *gcobj.Base) error {
			out = append(out, succ)
			return nil
		})
	}
	return out
}

// computeThreshold is update_gc_threshold (spec §4.G step 1/18):
// max(7000, live + live*scale/100).
func computeThreshold(live, scalePercent int64) uint64 {
	t := live + (live*scalePercent)/100
	if t < defaultThreshold {
		t = defaultThreshold
	}
	return uint64(t)
}

// Collect runs spec §4.G's full 18-step algorithm. requester identifies
// the calling thread to the stop-the-world controller (nil is accepted for
// a thread not separately registered, e.g. a test harness driving the
// collector directly). It returns the number of objects collected plus
// uncollectable, matching spec §6's collect() contract.
func (c *Collector) Collect(requester *stw.ThreadState, reason Reason) int {
	// Step 1: eligibility.
	if reason == ReasonHeap && atomic.LoadInt64(&c.liveCount) < int64(c.GetThreshold()) {
		return 0
	}

	// Step 2: stop the world, then assert collecting via CAS (spec §9 open
	// question: acquire mutex, CAS collecting, release+return 0 on failure).
	if !c.Runtime.STW.StopTheWorld(requester) {
		return 0
	}
	if !atomic.CompareAndSwapUint64(&c.collecting, 0, 1) {
		c.Runtime.STW.RestartTheWorld()
		return 0
	}

	reasonName := "manual"
	if reason == ReasonHeap {
		reasonName = "heap"
	}
	c.cfg.Logger.CollectionStart(reasonName)
	if c.cfg.Hooks.OnStart != nil {
		c.cfg.Hooks.OnStart(reason)
	}

	threads := c.Runtime.Threads()

	// Step 3: drain cross-thread decref queues.
	var toDealloc []*gcobj.Base
	for _, tr := range threads {
		for _, obj := range tr.Queue.Drain() {
			if !obj.GCHeader().Tracked() && obj.RefCount() == 0 {
				toDealloc = append(toDealloc, obj)
			}
		}
	}

	// Step 4: root sweep - merge per-thread type refcounts, mark stack roots.
	for _, tr := range threads {
		for ti, local := range tr.drainTypeLocal() {
			ti.MergeThreadRefCount(local)
		}
		stackwalk.Incref(tr.Stack)
	}

	// Step 5: seed working set.
	young := gcobj.NewList()
	heapwalk.ClearVisited(c.Runtime.Allocator)
	heapwalk.Walk(c.Runtime.Allocator, func(obj *gcobj.Base) {
		if obj.Type != nil && obj.Type.Untrackable != nil && obj.Type.Untrackable(obj) {
			obj.GCHeader().SetTracked(false)
			obj.GCHeader().SetFinalized(false)
			return
		}
		h := obj.GCHeader()
		// Add on top of whatever step 4's stack pass already contributed
		// (spec §4.E deferred-refcount slots), never overwrite it - a
		// cyclic object kept alive only by a deferred-refcount stack slot
		// must not lose that protection here (spec §4.G step 4).
		h.AddGCRefs(obj.RefCount())
		h.SetCollecting(true)
		young.Append(h)
	})

	// Step 6: subtract internal references.
	young.Each(func(h *gcobj.Header) {
		base := gcobj.BaseOf(h)
		if base.Type != nil && base.Type.Traverse != nil {
			_ = base.Type.Traverse(base, visitDecref)
		}
	})

	// Step 7: partition.
	unreachable := gcobj.NewList()
	partition(young, unreachable)
	// Survivors keep nothing of the working set: gc_refs must go back to
	// unobservable and COLLECTING must clear for every tracked object this
	// collection leaves alone (gc_list_clear(&young), gcmodule.c:1680).
	young.Each(func(h *gcobj.Header) {
		h.SetCollecting(false)
		h.ClearWorkingState()
	})

	// Step 8: legacy finalizers.
	finalizers := gcobj.NewList()
	unreachable.Each(func(h *gcobj.Header) {
		base := gcobj.BaseOf(h)
		if base.Type != nil && base.Type.Del != nil {
			h.Unlink()
			h.SetUnreachable(false)
			finalizers.Append(h)
		}
	})
	for h := finalizers.Sentinel().Next(); h != finalizers.Sentinel(); {
		base := gcobj.BaseOf(h)
		if base.Type != nil && base.Type.Traverse != nil {
			_ = base.Type.Traverse(base, func(succ *gcobj.Base) error {
				sh := succ.GCHeader()
				if sh.Unreachable() {
					sh.Unlink()
					sh.SetUnreachable(false)
					finalizers.Append(sh)
				}
				return nil
			})
		}
		h = h.Next()
	}

	// Step 9: weakref pass, still STW.
	var wrcbToCall []*finalize.WeakRef
	unreachable.Each(func(h *gcobj.Header) {
		base := gcobj.BaseOf(h)
		gcobj.IncrefMerge(base)
		if base.Type != nil && base.Type.RetainOnUnreachable != nil {
			base.Type.RetainOnUnreachable(base)
		}
		wrcbToCall = append(wrcbToCall, c.Runtime.WeakRefs.DetachAll(base)...)
	})

	// Step 10: restart the world.
	c.Runtime.STW.RestartTheWorld()

	// Step 11: dealloc untracked zero-ref objects.
	for _, obj := range toDealloc {
		if obj.Type != nil && obj.Type.Free != nil {
			obj.Type.Free(obj)
		}
		c.Runtime.Allocator.Free(obj)
	}

	// Step 12: run weakref callbacks.
	finalize.RunWeakrefCallbacks(wrcbToCall, c.cfg.Unraisable)

	// Step 13: run finalizers.
	var unreachableObjs []*gcobj.Base
	unreachable.Each(func(h *gcobj.Header) { unreachableObjs = append(unreachableObjs, gcobj.BaseOf(h)) })
	finalize.RunFinalizers(unreachableObjs, c.cfg.Unraisable)

	// Step 14: re-stop the world, handle resurrection.
	c.Runtime.STW.StopTheWorld(requester)
	unreachable.Each(func(h *gcobj.Header) {
		base := gcobj.BaseOf(h)
		h.SetGCRefs(base.RefCount() - 1)
	})
	for h := unreachable.Sentinel().Next(); h != unreachable.Sentinel(); h = h.Next() {
		base := gcobj.BaseOf(h)
		if base.Type != nil && base.Type.Traverse != nil {
			_ = base.Type.Traverse(base, visitDecref)
		}
	}
	finalUnreachable := gcobj.NewList()
	partition(unreachable, finalUnreachable)
	// Whatever remains in `unreachable` gained external references: drop
	// the temporary shared reference incref_merge added in step 9.
	unreachable.Each(func(h *gcobj.Header) {
		base := gcobj.BaseOf(h)
		base.DecRefShared()
		h.SetCollecting(false)
		h.ClearWorkingState()
	})
	unreachable.Init()

	// Step 15: restart the world.
	c.Runtime.STW.RestartTheWorld()

	// Step 16: delete garbage.
	saveAll := c.GetDebug()&DebugSaveAll != 0
	var finalUnreachableObjs []*gcobj.Base
	finalUnreachable.Each(func(h *gcobj.Header) { finalUnreachableObjs = append(finalUnreachableObjs, gcobj.BaseOf(h)) })
	var garbage []*gcobj.Base
	finalize.DeleteGarbage(finalUnreachableObjs, saveAll, &garbage, c.cfg.Unraisable)
	finalUnreachable.Each(func(h *gcobj.Header) { h.SetCollecting(false); h.ClearWorkingState() })
	if len(garbage) > 0 {
		c.Runtime.appendGarbage(garbage)
	}
	if !saveAll {
		// delete_garbage's Py_DECREF(op) after tp_clear (gcmodule.c:1442):
		// drop the temporary shared reference step 9's IncrefMerge added,
		// and reclaim whatever tp_clear drove to zero. Objects with
		// outside-the-cycle references of their own stay alive at
		// whatever count remains - tp_clear only severs the edges that
		// made the cycle a cycle.
		for _, obj := range finalUnreachableObjs {
			if obj.DecRefShared() == 0 {
				obj.GCHeader().SetTracked(false)
				if obj.Type != nil && obj.Type.Free != nil {
					obj.Type.Free(obj)
				}
				c.Runtime.Allocator.Free(obj)
			}
		}
	}

	// Step 17: publish legacy-finalizer leftovers.
	var legacyUnreachable []*gcobj.Base
	finalizers.Each(func(h *gcobj.Header) {
		h.SetCollecting(false)
		h.ClearWorkingState()
		legacyUnreachable = append(legacyUnreachable, gcobj.BaseOf(h))
	})
	var legacyObjs []*gcobj.Base
	finalize.PublishLegacyFinalizers(legacyUnreachable, &legacyObjs)
	if len(legacyObjs) > 0 {
		c.Runtime.appendGarbage(legacyObjs)
	}

	// Step 18: update threshold, stats, clear collecting, invoke stop hook.
	collected := len(finalUnreachableObjs)
	uncollectable := len(legacyObjs)
	if saveAll {
		collected = len(garbage)
	}
	atomic.AddInt64(&c.liveCount, -int64(collected))

	stats := Stats{Collections: 1, Collected: int64(collected), Uncollectable: int64(uncollectable)}
	if len(c.history) > 0 {
		stats.Collections += c.history[len(c.history)-1].Collections
	}
	c.history = append(c.history, stats)
	if len(c.history) > c.cfg.StatsHistory {
		c.history = c.history[len(c.history)-c.cfg.StatsHistory:]
	}

	newThreshold := computeThreshold(atomic.LoadInt64(&c.liveCount), c.cfg.ScalePercent)
	atomic.StoreUint64(&c.threshold, newThreshold)
	c.cfg.Logger.ThresholdChanged(newThreshold)
	atomic.StoreUint64(&c.collecting, 0)

	c.cfg.Logger.CollectionDone(collected, uncollectable, stats.Collections)
	if c.cfg.Hooks.OnDone != nil {
		c.cfg.Hooks.OnDone(stats)
	}

	return collected + uncollectable
}

// NotifyAlloc records a new tracked allocation, incrementing gc_live. The
// allocator's caller (normally the runtime's object-construction path)
// invokes this once per newly-tracked object.
func (c *Collector) NotifyAlloc() { atomic.AddInt64(&c.liveCount, 1) }

// ShouldCollect reports whether an allocation-triggered automatic
// collection should run right now, per the current threshold.
func (c *Collector) ShouldCollect() bool {
	return c.IsEnabled() && atomic.LoadInt64(&c.liveCount) >= int64(c.GetThreshold())
}
