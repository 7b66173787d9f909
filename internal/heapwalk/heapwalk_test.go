package heapwalk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brcgc/brcgc/internal/allocator"
	"github.com/brcgc/brcgc/internal/gcobj"
)

type fakeObj struct {
	gcobj.Base
	name string
}

func newTracked(name string) *fakeObj {
	o := &fakeObj{name: name}
	o.Init(o)
	o.GCHeader().SetTracked(true)
	return o
}

func TestWalkVisitsLiveAndAbandoned(t *testing.T) {
	alloc := allocator.New()
	alloc.AttachThread(1)
	alloc.AttachThread(2)

	a := newTracked("a")
	b := newTracked("b")
	c := newTracked("c")
	alloc.Alloc(1, &a.Base)
	alloc.Alloc(1, &b.Base)
	alloc.Alloc(2, &c.Base)

	alloc.DetachThread(2)

	seen := map[*gcobj.Base]bool{}
	Walk(alloc, func(obj *gcobj.Base) { seen[obj] = true })

	assert.True(t, seen[&a.Base])
	assert.True(t, seen[&b.Base])
	assert.True(t, seen[&c.Base])
	assert.Len(t, seen, 3)
}

func TestWalkSkipsUntracked(t *testing.T) {
	alloc := allocator.New()
	alloc.AttachThread(1)

	tracked := newTracked("tracked")
	untracked := &fakeObj{name: "untracked"}
	untracked.Init(untracked)
	alloc.Alloc(1, &tracked.Base)
	alloc.Alloc(1, &untracked.Base)

	var got []*gcobj.Base
	Walk(alloc, func(obj *gcobj.Base) { got = append(got, obj) })

	require.Len(t, got, 1)
	assert.Same(t, &tracked.Base, got[0])
}

func TestWalkDoesNotDoubleVisitWithoutClear(t *testing.T) {
	alloc := allocator.New()
	alloc.AttachThread(1)
	obj := newTracked("obj")
	alloc.Alloc(1, &obj.Base)

	var firstCount, secondCount int
	Walk(alloc, func(*gcobj.Base) { firstCount++ })
	Walk(alloc, func(*gcobj.Base) { secondCount++ })

	assert.Equal(t, 1, firstCount)
	assert.Equal(t, 0, secondCount, "second walk without ClearVisited must be a no-op")

	ClearVisited(alloc)
	var thirdCount int
	Walk(alloc, func(*gcobj.Base) { thirdCount++ })
	assert.Equal(t, 1, thirdCount)
}

func TestDetachThreadResetsVisited(t *testing.T) {
	alloc := allocator.New()
	alloc.AttachThread(1)
	obj := newTracked("obj")
	alloc.Alloc(1, &obj.Base)

	Walk(alloc, func(*gcobj.Base) {})
	alloc.DetachThread(1)

	var count int
	Walk(alloc, func(*gcobj.Base) { count++ })
	assert.Equal(t, 1, count, "detaching a thread must clear its heap's visited bit")
}
