package stackwalk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brcgc/brcgc/internal/gcobj"
)

type fakeObj struct {
	gcobj.Base
}

func newObj() *fakeObj {
	o := &fakeObj{}
	o.Init(o)
	return o
}

func TestWalkSkipsImmediates(t *testing.T) {
	a := newObj()
	stack := &Stack{Frames: []*Frame{{
		Slots: []Slot{
			{Kind: KindImmediate},
			{Kind: KindStrong, Obj: &a.Base},
		},
	}}}

	var visited []*gcobj.Base
	Walk(stack, VisitReachable, func(_ VisitKind, obj *gcobj.Base) { visited = append(visited, obj) })
	assert.Equal(t, []*gcobj.Base{&a.Base}, visited)
}

func TestVisitDecrefSkipsDeferred(t *testing.T) {
	a := newObj()
	b := newObj()
	stack := &Stack{Frames: []*Frame{{
		Slots: []Slot{
			{Kind: KindDeferred, Obj: &a.Base},
			{Kind: KindStrong, Obj: &b.Base},
		},
	}}}

	var visited []*gcobj.Base
	Walk(stack, VisitDecref, func(_ VisitKind, obj *gcobj.Base) { visited = append(visited, obj) })
	assert.Equal(t, []*gcobj.Base{&b.Base}, visited)
}

func TestVisitIncrefCountsDeferred(t *testing.T) {
	a := newObj()
	stack := &Stack{Frames: []*Frame{{
		Slots: []Slot{{Kind: KindDeferred, Obj: &a.Base}},
	}}}

	var n int
	Walk(stack, VisitIncref, func(_ VisitKind, obj *gcobj.Base) { n++ })
	assert.Equal(t, 1, n)
}

func TestWalkDescendsSavedContinuations(t *testing.T) {
	a := newObj()
	inner := &Frame{Slots: []Slot{{Kind: KindStrong, Obj: &a.Base}}}
	outer := &Frame{Saved: []*Frame{inner}}
	stack := &Stack{Frames: []*Frame{outer}}

	var visited []*gcobj.Base
	Walk(stack, VisitReachable, func(_ VisitKind, obj *gcobj.Base) { visited = append(visited, obj) })
	assert.Equal(t, []*gcobj.Base{&a.Base}, visited)
}

func TestIncrefAddsGCRefs(t *testing.T) {
	a := newObj()
	stack := &Stack{Frames: []*Frame{{
		Slots: []Slot{{Kind: KindStrong, Obj: &a.Base}, {Kind: KindStrong, Obj: &a.Base}},
	}}}

	Incref(stack)
	assert.EqualValues(t, 2, a.GCHeader().GCRefs())
}
