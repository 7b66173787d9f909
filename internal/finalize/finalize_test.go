package finalize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brcgc/brcgc/internal/gcobj"
)

type obj struct {
	gcobj.Base
}

func newObj(ti *gcobj.TypeInfo) *obj {
	o := &obj{}
	o.Init(o)
	o.Type = ti
	return o
}

func TestDetachAllClearsTargetAndReturnsCallbacks(t *testing.T) {
	reg := NewRegistry()
	target := newObj(nil)

	var calledWith *WeakRef
	w1 := reg.NewWeakRef(&target.Base, func(w *WeakRef) { calledWith = w })
	w2 := reg.NewWeakRef(&target.Base, nil)

	withCallback := reg.DetachAll(&target.Base)

	require.Len(t, withCallback, 1)
	assert.Same(t, w1, withCallback[0])
	assert.Nil(t, w1.Target())
	assert.Nil(t, w2.Target())
	assert.Nil(t, calledWith, "callback must not run during DetachAll itself")
}

func TestRunWeakrefCallbacksSeeNilTarget(t *testing.T) {
	reg := NewRegistry()
	target := newObj(nil)
	var observedTarget *gcobj.Base
	var observedNil bool
	w := reg.NewWeakRef(&target.Base, func(wr *WeakRef) {
		observedTarget = wr.Target()
		observedNil = wr.Target() == nil
	})
	queue := reg.DetachAll(&target.Base)
	RunWeakrefCallbacks(queue, nil)

	assert.True(t, observedNil)
	assert.Nil(t, observedTarget)
	_ = w
}

func TestRunFinalizersIdempotent(t *testing.T) {
	var calls int
	ti := &gcobj.TypeInfo{Finalize: func(*gcobj.Base) { calls++ }}
	o := newObj(ti)

	RunFinalizers([]*gcobj.Base{&o.Base}, nil)
	assert.Equal(t, 1, calls)
	assert.True(t, o.GCHeader().Finalized())

	// A later collection must not invoke the finalizer again.
	RunFinalizers([]*gcobj.Base{&o.Base}, nil)
	assert.Equal(t, 1, calls)
}

func TestRunFinalizersRecoversPanic(t *testing.T) {
	ti := &gcobj.TypeInfo{Finalize: func(*gcobj.Base) { panic("boom") }}
	o := newObj(ti)

	var stage string
	var recovered any
	RunFinalizers([]*gcobj.Base{&o.Base}, func(s string, _ *gcobj.Base, r any) {
		stage = s
		recovered = r
	})

	assert.Equal(t, "finalizer", stage)
	assert.Equal(t, "boom", recovered)
	assert.True(t, o.GCHeader().Finalized())
}

func TestDeleteGarbageSaveAll(t *testing.T) {
	var cleared bool
	ti := &gcobj.TypeInfo{Clear: func(*gcobj.Base) error { cleared = true; return nil }}
	o := newObj(ti)

	var garbage []*gcobj.Base
	DeleteGarbage([]*gcobj.Base{&o.Base}, true, &garbage, nil)

	assert.False(t, cleared)
	require.Len(t, garbage, 1)
	assert.Same(t, &o.Base, garbage[0])
}

func TestDeleteGarbageClearsWhenNotSaveAll(t *testing.T) {
	var cleared bool
	ti := &gcobj.TypeInfo{Clear: func(*gcobj.Base) error { cleared = true; return errors.New("ignored") }}
	o := newObj(ti)

	var garbage []*gcobj.Base
	DeleteGarbage([]*gcobj.Base{&o.Base}, false, &garbage, nil)

	assert.True(t, cleared)
	assert.Empty(t, garbage)
}

func TestPublishLegacyFinalizers(t *testing.T) {
	o := newObj(nil)
	var garbage []*gcobj.Base
	PublishLegacyFinalizers([]*gcobj.Base{&o.Base}, &garbage)
	require.Len(t, garbage, 1)
	assert.Same(t, &o.Base, garbage[0])
}
