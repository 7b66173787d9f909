package collector

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brcgc/brcgc/internal/allocator"
	"github.com/brcgc/brcgc/internal/finalize"
	"github.com/brcgc/brcgc/internal/gcobj"
)

// node is a minimal collectable type: one outgoing strong reference X,
// used to build reference cycles the same way scenario A's a.x=b;b.x=a
// does. It embeds gcobj.Base first, so asNode round-trips via the
// same container_of convention gcobj.BaseOf relies on.
type node struct {
	gcobj.Base
	X *node
}

func asNode(b *gcobj.Base) *node { return (*node)(unsafe.Pointer(b)) }

func nodeTraverse(obj *gcobj.Base, visit gcobj.VisitFunc) error {
	n := asNode(obj)
	if n.X != nil {
		return visit(&n.X.Base)
	}
	return nil
}

func nodeClear(obj *gcobj.Base) error {
	n := asNode(obj)
	if n.X != nil {
		n.X.DecRef()
		n.X = nil
	}
	return nil
}

func newNode(alloc *allocator.Allocator, threadID uint64, ti *gcobj.TypeInfo) *node {
	n := &node{}
	n.Init(n)
	n.Type = ti
	n.GCHeader().SetTracked(true)
	n.IncRefLocal() // the "external reference" the test harness itself holds
	alloc.Alloc(threadID, &n.Base)
	return n
}

func newTestCollector(t *testing.T) (*Collector, uint64) {
	t.Helper()
	c := New(Config{})
	const threadID = 1
	c.Runtime.Allocator.AttachThread(threadID)
	return c, threadID
}

func makeCycle(c *Collector, tid uint64, ti *gcobj.TypeInfo) (a, b *node) {
	a = newNode(c.Runtime.Allocator, tid, ti)
	b = newNode(c.Runtime.Allocator, tid, ti)
	c.NotifyAlloc()
	c.NotifyAlloc()

	a.X = b
	b.IncRefLocal()
	b.X = a
	a.IncRefLocal()

	// Drop all external refs: only the cycle holds them now.
	a.DecRefLocal()
	b.DecRefLocal()
	return a, b
}

func TestScenarioA_SimpleCycleIsCollected(t *testing.T) {
	c, tid := newTestCollector(t)
	ti := &gcobj.TypeInfo{Name: "node", Traverse: nodeTraverse, Clear: nodeClear}

	a, b := makeCycle(c, tid, ti)

	collected := c.Collect(nil, ReasonManual)

	assert.GreaterOrEqual(t, collected, 2)
	assert.Zero(t, a.RefCount())
	assert.Zero(t, b.RefCount())
}

func TestScenarioB_LegacyFinalizerIsUncollectable(t *testing.T) {
	c, tid := newTestCollector(t)
	ti := &gcobj.TypeInfo{Name: "node", Traverse: nodeTraverse, Clear: nodeClear, Del: func(*gcobj.Base) {}}

	a, b := makeCycle(c, tid, ti)

	result := c.Collect(nil, ReasonManual)

	assert.Equal(t, 2, result)
	garbage := c.Runtime.Garbage()
	require.Len(t, garbage, 2)
	assert.Contains(t, garbage, &a.Base)
	assert.Contains(t, garbage, &b.Base)
}

func TestScenarioC_WeakrefCallbackSeesNilTarget(t *testing.T) {
	c, tid := newTestCollector(t)
	ti := &gcobj.TypeInfo{Name: "node", Traverse: nodeTraverse, Clear: nodeClear}

	a, _ := makeCycle(c, tid, ti)

	var calls int
	var sawNilTarget bool
	c.Runtime.WeakRefs.NewWeakRef(&a.Base, func(wr *finalize.WeakRef) {
		calls++
		sawNilTarget = wr.Target() == nil
	})

	c.Collect(nil, ReasonManual)

	assert.Equal(t, 1, calls)
	assert.True(t, sawNilTarget)
}

func TestScenarioF_DebugSaveAllPreservesObjects(t *testing.T) {
	c, tid := newTestCollector(t)
	ti := &gcobj.TypeInfo{Name: "node", Traverse: nodeTraverse, Clear: nodeClear}
	c.SetDebug(DebugSaveAll)

	a, b := makeCycle(c, tid, ti)

	c.Collect(nil, ReasonManual)

	garbage := c.Runtime.Garbage()
	require.Len(t, garbage, 2)
	// Not cleared: the cross-reference must still be intact.
	assert.Equal(t, b, a.X)
	assert.Equal(t, a, b.X)
}

func TestScenarioD_FinalizerResurrectionSurvivesOneCollection(t *testing.T) {
	c, tid := newTestCollector(t)
	var finalizeCalls int
	plain := &gcobj.TypeInfo{Name: "node", Traverse: nodeTraverse, Clear: nodeClear}
	resurrecting := &gcobj.TypeInfo{Name: "node-with-finalizer", Traverse: nodeTraverse, Clear: nodeClear}
	resurrecting.Finalize = func(obj *gcobj.Base) {
		finalizeCalls++
		// Simulate stashing into a module global: an external party now
		// holds a reference this collector didn't know about.
		obj.IncRefShared()
	}

	a := newNode(c.Runtime.Allocator, tid, resurrecting)
	b := newNode(c.Runtime.Allocator, tid, plain)
	c.NotifyAlloc()
	c.NotifyAlloc()
	a.X = b
	b.IncRefLocal()
	b.X = a
	a.IncRefLocal()
	a.DecRefLocal()
	b.DecRefLocal()

	firstResult := c.Collect(nil, ReasonManual)
	assert.Equal(t, 1, finalizeCalls)
	assert.True(t, a.GCHeader().Finalized())
	assert.Positive(t, a.RefCount(), "resurrected object must survive the collection")
	assert.Zero(t, firstResult, "the resurrected cycle must not be reported as collected")

	// Remove the simulated global reference, then collect again.
	a.DecRefShared()
	secondResult := c.Collect(nil, ReasonManual)

	assert.GreaterOrEqual(t, secondResult, 2)
	assert.Equal(t, 1, finalizeCalls, "FINALIZED must prevent a second invocation")
	_ = b
}

func TestGetReferrersAndReferents(t *testing.T) {
	c, tid := newTestCollector(t)
	ti := &gcobj.TypeInfo{Name: "node", Traverse: nodeTraverse, Clear: nodeClear}

	a := newNode(c.Runtime.Allocator, tid, ti)
	b := newNode(c.Runtime.Allocator, tid, ti)
	a.X = b

	referrers := c.GetReferrers(&b.Base)
	require.Len(t, referrers, 1)
	assert.Same(t, &a.Base, referrers[0])

	referents := c.GetReferents(&a.Base)
	require.Len(t, referents, 1)
	assert.Same(t, &b.Base, referents[0])
}

func TestThresholdRecomputedAfterCollection(t *testing.T) {
	c, _ := newTestCollector(t)
	c.SetThreshold(42)
	assert.Equal(t, 42, c.GetThreshold())

	c.Collect(nil, ReasonManual)

	assert.GreaterOrEqual(t, c.GetThreshold(), defaultThreshold)
}

func TestFreezeIsNoOp(t *testing.T) {
	c, _ := newTestCollector(t)
	c.Freeze()
	assert.Zero(t, c.GetFreezeCount())
	c.Unfreeze()
	assert.Zero(t, c.GetFreezeCount())
}
