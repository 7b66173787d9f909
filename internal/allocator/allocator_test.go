package allocator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brcgc/brcgc/internal/gcobj"
)

type fakeObj struct {
	gcobj.Base
}

func newFake() *fakeObj {
	o := &fakeObj{}
	o.Init(o)
	return o
}

func TestAllocAndFree(t *testing.T) {
	a := New()
	a.AttachThread(1)
	obj := newFake()
	a.Alloc(1, &obj.Base)

	heaps := a.LiveHeaps()
	require.Contains(t, heaps, uint64(1))
	assert.Len(t, heaps[1].Bins()[0].Pages(), 1)

	a.Free(&obj.Base)
	assert.Nil(t, heaps[1].Bins()[0].Pages()[0].Blocks()[0])
}

func TestDetachThreadMovesHeapToAbandoned(t *testing.T) {
	a := New()
	a.AttachThread(1)
	obj := newFake()
	a.Alloc(1, &obj.Base)

	a.DetachThread(1)

	assert.Empty(t, a.LiveHeaps())
	abandoned := a.AbandonedHeaps()
	require.Len(t, abandoned, 1)
	assert.False(t, abandoned[0].Visited())
}

func TestAllocOnUnattachedThreadPanics(t *testing.T) {
	a := New()
	obj := newFake()
	assert.Panics(t, func() { a.Alloc(99, &obj.Base) })
}

func TestFreeSearchesAbandonedHeaps(t *testing.T) {
	a := New()
	a.AttachThread(1)
	obj := newFake()
	a.Alloc(1, &obj.Base)
	a.DetachThread(1)

	a.Free(&obj.Base)
	abandoned := a.AbandonedHeaps()
	require.Len(t, abandoned, 1)
	assert.Nil(t, abandoned[0].Bins()[0].Pages()[0].Blocks()[0])
}
