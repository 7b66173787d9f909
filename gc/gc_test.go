package gc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brcgc/brcgc/internal/gcobj"
)

// node is the same minimal self-referencing type collector's own tests use,
// reproduced here because façade tests exercise only the public surface.
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

func newNode(gc *Collector, h *ThreadHandle, ti *gcobj.TypeInfo) *node {
	n := &node{}
	n.Init(n)
	n.Type = ti
	n.IncRefLocal()
	h.Track(&n.Base)
	return n
}

func TestCollectorCollectsASimpleCycle(t *testing.T) {
	g := New(WithScalePercent(50))
	h := g.RegisterThread(1)
	defer g.UnregisterThread(h)

	ti := &gcobj.TypeInfo{Name: "node", Traverse: nodeTraverse, Clear: nodeClear}
	a := newNode(g, h, ti)
	b := newNode(g, h, ti)
	a.X = b
	b.IncRefLocal()
	b.X = a
	a.IncRefLocal()
	a.DecRefLocal()
	b.DecRefLocal()

	collected := g.Collect(h)

	assert.GreaterOrEqual(t, collected, 2)
	assert.Zero(t, a.RefCount())
	assert.Zero(t, b.RefCount())
}

func TestDefaultCollectorIsProcessWide(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestEnableDisableRoundTrip(t *testing.T) {
	g := New()
	g.Disable()
	assert.False(t, g.IsEnabled())
	g.Enable()
	assert.True(t, g.IsEnabled())
}

func TestAuditHookFiresOnGetObjects(t *testing.T) {
	var ops []string
	g := New(WithAuditHook(func(op string, args ...any) { ops = append(ops, op) }))
	h := g.RegisterThread(1)
	defer g.UnregisterThread(h)

	ti := &gcobj.TypeInfo{Name: "node", Traverse: nodeTraverse, Clear: nodeClear}
	newNode(g, h, ti)

	g.GetObjects()

	require.Contains(t, ops, "gc.get_objects")
}

func TestScaleFromEnvApplies(t *testing.T) {
	t.Setenv("BRCGC_SCALE_PERCENT", "10")
	g := New()
	// threshold hasn't been recomputed by a collection yet, but ScalePercent
	// feeds into the next one: verify it took effect by forcing a
	// recompute via a manual collection and checking it didn't fall back to
	// the WithScalePercent default of 100.
	h := g.RegisterThread(1)
	defer g.UnregisterThread(h)
	// A live count well above the 7000 floor makes the scale visible: 10%
	// gives live+live/10, the default 100% would give 2*live.
	const live = 10000
	for i := 0; i < live; i++ {
		g.NotifyAlloc()
	}
	g.Collect(h)
	assert.Equal(t, live+live*10/100, g.GetThreshold())
	assert.Greater(t, g.GetThreshold(), defaultThresholdFloor)
}

const defaultThresholdFloor = 7000

func TestMaybeCollectRespectsThreshold(t *testing.T) {
	g := New()
	h := g.RegisterThread(1)
	defer g.UnregisterThread(h)
	g.SetThreshold(1 << 30)

	ti := &gcobj.TypeInfo{Name: "node", Traverse: nodeTraverse, Clear: nodeClear}
	newNode(g, h, ti)

	assert.Zero(t, g.MaybeCollect(h))
}
