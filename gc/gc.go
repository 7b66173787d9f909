// Package gc is the public façade over this module's cycle collector (spec
// §6): a single default Collector plus the per-thread registration calls a
// host program makes from each mutator goroutine it intends to park GC
// bookkeeping on. It mirrors the shape of CPython's gc module - module-level
// functions backed by one process-wide collector - while keeping every
// OS-thread-equivalent explicit, since Go has no thread-local storage to
// hide it in.
package gc

import (
	"os"
	"strconv"
	"sync"

	"github.com/brcgc/brcgc/internal/collector"
	"github.com/brcgc/brcgc/internal/finalize"
	"github.com/brcgc/brcgc/internal/gclog"
	"github.com/brcgc/brcgc/internal/gcobj"
	"github.com/brcgc/brcgc/internal/stw"
)

// WeakRef is a handle to a weak reference registered via NewWeakRef.
type WeakRef = finalize.WeakRef

// Reason selects why a collection is being requested.
type Reason = collector.Reason

const (
	ReasonManual = collector.ReasonManual
	ReasonHeap   = collector.ReasonHeap
)

// DebugFlag is the set_debug/get_debug bitmask.
type DebugFlag = collector.DebugFlag

const (
	DebugStats         = collector.DebugStats
	DebugCollectable   = collector.DebugCollectable
	DebugUncollectable = collector.DebugUncollectable
	DebugSaveAll       = collector.DebugSaveAll
)

// Stats is one collection's entry in GetStats's history.
type Stats = collector.Stats

// Hooks are the start/stop notification pair (spec §4.H's
// invoke_gc_callback).
type Hooks = collector.Hooks

// Option configures a Collector constructed by New, in the teacher's
// functional-options style.
type Option func(*collector.Config)

// WithScalePercent sets gc_scale (the PYTHONGC knob): threshold =
// max(7000, live + live*percent/100).
func WithScalePercent(percent int64) Option {
	return func(c *collector.Config) { c.ScalePercent = percent }
}

// WithHooks installs the DTrace-probe-equivalent start/stop callbacks.
func WithHooks(h Hooks) Option {
	return func(c *collector.Config) { c.Hooks = h }
}

// WithAuditHook installs the sys.audit-equivalent hook invoked before
// GetObjects, GetReferrers, and GetReferents run.
func WithAuditHook(fn func(op string, args ...any)) Option {
	return func(c *collector.Config) { c.AuditHook = fn }
}

// WithUnraisable installs the handler invoked for exceptions that escape a
// finalizer, weakref callback, or tp_clear.
func WithUnraisable(fn func(stage string, obj *gcobj.Base, recovered any)) Option {
	return func(c *collector.Config) { c.Unraisable = fn }
}

// WithStatsHistory bounds how many past collections GetStats retains.
func WithStatsHistory(n int) Option {
	return func(c *collector.Config) { c.StatsHistory = n }
}

// WithLogger installs the structured logger used for collection
// diagnostics. Nil (the default) discards them; unraisable exceptions are
// then written to stderr unless WithUnraisable is set.
func WithLogger(l *gclog.Logger) Option {
	return func(c *collector.Config) { c.Logger = l }
}

// envScalePercent reads PYTHONGC-equivalent environment configuration,
// mirroring the interpreter's own behavior of honoring an env var where a
// programmatic default would otherwise apply (spec §6, §9 open question).
func envScalePercent() (int64, bool) {
	v, ok := os.LookupEnv("BRCGC_SCALE_PERCENT")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Collector is the façade's handle type: every exported method here is a
// thin pass-through to an *internal/collector.Collector, so multiple
// independent collectors (e.g. in tests) never share global state.
type Collector struct {
	c *collector.Collector
}

// New constructs a Collector. BRCGC_SCALE_PERCENT, when set to an integer,
// supplies the initial scale; options then apply in order, so an explicit
// WithScalePercent overrides it.
func New(opts ...Option) *Collector {
	var cfg collector.Config
	if percent, ok := envScalePercent(); ok {
		cfg.ScalePercent = percent
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Collector{c: collector.New(cfg)}
}

// def is the process-wide default collector, constructed lazily so a
// program that never imports gc beyond its types pays nothing for it.
var (
	defOnce sync.Once
	def     *Collector
)

// Default returns the process-wide default Collector.
func Default() *Collector {
	defOnce.Do(func() { def = New() })
	return def
}

// ThreadHandle is what a mutator goroutine holds once registered: its
// stop-the-world status plus the runtime bookkeeping the collector walks.
type ThreadHandle struct {
	id     uint64
	status *stw.ThreadState
	c      *collector.Collector
}

// RegisterThread attaches a new mutator thread with a process-unique,
// non-zero id. Call PollSafepoint periodically (e.g. once per request, or
// once per interpreter-loop iteration) from the same goroutine thereafter,
// and UnregisterThread when the goroutine is about to exit or park
// long-term.
func (gc *Collector) RegisterThread(id uint64) *ThreadHandle {
	tr := gc.c.Runtime.Attach(id)
	return &ThreadHandle{id: id, status: tr.Status, c: gc.c}
}

// UnregisterThread detaches a thread registered with RegisterThread. Its
// heap becomes an abandoned segment, still walked by future collections.
func (gc *Collector) UnregisterThread(h *ThreadHandle) {
	gc.c.Runtime.Detach(h.id)
}

// Track hands obj to the collector's allocator-collaborator heap for this
// thread and marks it TRACKED, then records the allocation against the
// live-object count the threshold is computed from. Callers set obj.Type
// before calling Track; obj must not already be tracked.
func (h *ThreadHandle) Track(obj *gcobj.Base) {
	obj.GCHeader().SetTracked(true)
	h.c.Runtime.Allocator.Alloc(h.id, obj)
	h.c.NotifyAlloc()
}

// NewWeakRef registers a weak reference to target. callback runs once
// target is determined unreachable, with its own Target() already cleared
// to nil (spec §4.H, §4.G step 9/12).
func (gc *Collector) NewWeakRef(target *gcobj.Base, callback func(*WeakRef)) *WeakRef {
	return gc.c.Runtime.WeakRefs.NewWeakRef(target, callback)
}

// PollSafepoint is the eval_breaker-equivalent check a mutator goroutine
// must call at a safepoint (nothing it holds a live Go-level reference to
// outside GC-tracked fields): it parks the calling goroutine for the
// duration of any in-progress stop-the-world collection.
func (h *ThreadHandle) PollSafepoint() { h.c.Runtime.STW.PollEvalBreaker(h.status) }

// Enable/Disable/IsEnabled toggle automatic (allocation-triggered)
// collection.
func (gc *Collector) Enable()        { gc.c.Enable() }
func (gc *Collector) Disable()       { gc.c.Disable() }
func (gc *Collector) IsEnabled() bool { return gc.c.IsEnabled() }

// Collect runs an immediate collection from the calling thread's handle (nil
// is accepted from a goroutine that never registered, e.g. a background
// supervisor). It returns the number of objects collected plus
// uncollectable objects routed to GetGarbage.
func (gc *Collector) Collect(requester *ThreadHandle) int {
	var ts *stw.ThreadState
	if requester != nil {
		ts = requester.status
	}
	return gc.c.Collect(ts, ReasonManual)
}

// SetDebug/GetDebug manipulate the debug bitmask.
func (gc *Collector) SetDebug(flags DebugFlag) { gc.c.SetDebug(flags) }
func (gc *Collector) GetDebug() DebugFlag      { return gc.c.GetDebug() }

// SetThreshold/GetThreshold manipulate gc_threshold directly.
func (gc *Collector) SetThreshold(n int) { gc.c.SetThreshold(n) }
func (gc *Collector) GetThreshold() int  { return gc.c.GetThreshold() }

// GetCount returns (live_objects, 0, 0), a single-generation stand-in for
// the three-generation count tuple.
func (gc *Collector) GetCount() (int, int, int) { return gc.c.GetCount() }

// GetStats returns the bounded collection-history list.
func (gc *Collector) GetStats() []Stats { return gc.c.GetStats() }

// GetObjects returns a snapshot of every currently tracked object.
func (gc *Collector) GetObjects() []*gcobj.Base { return gc.c.GetObjects() }

// IsTracked reports whether obj's TRACKED bit is set.
func (gc *Collector) IsTracked(obj *gcobj.Base) bool { return gc.c.IsTracked(obj) }

// IsFinalized reports whether obj's FINALIZED bit is set.
func (gc *Collector) IsFinalized(obj *gcobj.Base) bool { return gc.c.IsFinalized(obj) }

// GetReferrers returns every tracked object whose traverse visits any of
// targets.
func (gc *Collector) GetReferrers(targets ...*gcobj.Base) []*gcobj.Base {
	return gc.c.GetReferrers(targets...)
}

// GetReferents traverses each of objs and returns the union of their
// immediate successors.
func (gc *Collector) GetReferents(objs ...*gcobj.Base) []*gcobj.Base {
	return gc.c.GetReferents(objs...)
}

// GetGarbage returns the persistent garbage list: objects with legacy
// finalizers, plus anything DEBUG_SAVEALL preserved.
func (gc *Collector) GetGarbage() []*gcobj.Base { return gc.c.Runtime.Garbage() }

// Freeze, Unfreeze, and GetFreezeCount are documented no-ops: a
// single-generation collector has nothing to freeze.
func (gc *Collector) Freeze()           { gc.c.Freeze() }
func (gc *Collector) Unfreeze()         { gc.c.Unfreeze() }
func (gc *Collector) GetFreezeCount() int { return gc.c.GetFreezeCount() }

// NotifyAlloc records a newly tracked allocation against the live-object
// count the threshold is computed from. The allocator's caller invokes
// this once per object it hands off to GC tracking.
func (gc *Collector) NotifyAlloc() { gc.c.NotifyAlloc() }

// MaybeCollect runs an allocation-triggered collection if ShouldCollect
// reports the threshold has been reached, returning the same count Collect
// would (0 if no collection ran).
func (gc *Collector) MaybeCollect(requester *ThreadHandle) int {
	if !gc.c.ShouldCollect() {
		return 0
	}
	var ts *stw.ThreadState
	if requester != nil {
		ts = requester.status
	}
	return gc.c.Collect(ts, ReasonHeap)
}

// module-level convenience wrappers over Default(), matching CPython's
// gc module's flat function surface.

func Enable()                { Default().Enable() }
func Disable()                { Default().Disable() }
func IsEnabled() bool         { return Default().IsEnabled() }
func Collect() int            { return Default().Collect(nil) }
func SetDebug(flags DebugFlag) { Default().SetDebug(flags) }
func GetDebug() DebugFlag      { return Default().GetDebug() }
func GetCount() (int, int, int) { return Default().GetCount() }
func GetStats() []Stats        { return Default().GetStats() }
func GetObjects() []*gcobj.Base { return Default().GetObjects() }
func GetReferrers(targets ...*gcobj.Base) []*gcobj.Base { return Default().GetReferrers(targets...) }
func GetReferents(objs ...*gcobj.Base) []*gcobj.Base    { return Default().GetReferents(objs...) }
func GetGarbage() []*gcobj.Base { return Default().GetGarbage() }
func Freeze()                   { Default().Freeze() }
func Unfreeze()                 { Default().Unfreeze() }
func GetFreezeCount() int       { return Default().GetFreezeCount() }
