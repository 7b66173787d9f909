package stw

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brcgc/brcgc/internal/mthread"
)

func TestStopTheWorldWaitsForAllThreads(t *testing.T) {
	c := NewController(time.Millisecond)

	mutatorThread := mthread.New(1)
	mutatorTS := c.Register(mutatorThread)

	var polled int32
	done := make(chan struct{})
	go func() {
		for {
			c.PollEvalBreaker(mutatorTS)
			if atomic.LoadInt32(&polled) == 0 {
				atomic.StoreInt32(&polled, 1)
			}
			select {
			case <-done:
				return
			default:
				time.Sleep(time.Millisecond)
			}
		}
	}()

	requesterThread := mthread.New(2)
	requesterTS := c.Register(requesterThread)

	ok := c.StopTheWorld(requesterTS)
	require.True(t, ok)
	assert.Equal(t, StatusGC, mutatorTS.Status())

	c.RestartTheWorld()
	close(done)

	// After restart the mutator should eventually observe Attached again.
	require.Eventually(t, func() bool {
		return mutatorTS.Status() == StatusAttached
	}, time.Second, time.Millisecond)
}

func TestStopTheWorldTreatsDetachedAsStopped(t *testing.T) {
	c := NewController(time.Millisecond)
	detachedThread := mthread.New(1)
	ts := c.Register(detachedThread)
	c.Unregister(detachedThread)
	_ = ts

	requester := c.Register(mthread.New(2))
	ok := c.StopTheWorld(requester)
	require.True(t, ok)
	c.RestartTheWorld()
}

func TestRequesterCantStopWontStopAborts(t *testing.T) {
	c := NewController(time.Millisecond)
	requester := c.Register(mthread.New(1))
	requester.BeginCriticalSection()

	ok := c.StopTheWorld(requester)
	assert.False(t, ok)
}

func TestSerializesCollectors(t *testing.T) {
	c := NewController(time.Millisecond)
	r1 := c.Register(mthread.New(1))
	r2 := c.Register(mthread.New(2))

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		c.StopTheWorld(r1)
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		c.RestartTheWorld()
	}()
	go func() {
		defer wg.Done()
		time.Sleep(time.Millisecond)
		c.StopTheWorld(r2)
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		c.RestartTheWorld()
	}()
	wg.Wait()

	require.Len(t, order, 2)
	assert.Equal(t, []int{1, 2}, order, "second StopTheWorld must block until the first RestartTheWorld")
}
