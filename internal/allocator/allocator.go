// Package allocator models the segregated-bin, per-thread heap allocator
// that spec §1 places out of scope as an external collaborator: "the core
// only consumes its page-walk interface." This package is that interface's
// test double - a minimal in-module stand-in good enough to drive
// internal/heapwalk and the collector's tests, not a real allocator.
package allocator

import (
	"sync"

	"github.com/brcgc/brcgc/internal/gcobj"
)

const pageCapacity = 64

// Page is one fixed-capacity slab of block slots. A nil slot is free.
type Page struct {
	blocks []*gcobj.Base
}

// Blocks returns the page's block slots (some may be nil).
func (p *Page) Blocks() []*gcobj.Base { return p.blocks }

// Bin is one size-class's list of pages (spec §4.D: "for each bin, for each
// page").
type Bin struct {
	pages []*Page
}

// Pages returns the bin's pages.
func (b *Bin) Pages() []*Page { return b.pages }

func (b *Bin) alloc(obj *gcobj.Base) {
	for _, p := range b.pages {
		for i, slot := range p.blocks {
			if slot == nil {
				p.blocks[i] = obj
				return
			}
		}
	}
	p := &Page{blocks: make([]*gcobj.Base, pageCapacity)}
	p.blocks[0] = obj
	b.pages = append(b.pages, p)
}

func (b *Bin) free(obj *gcobj.Base) bool {
	for _, p := range b.pages {
		for i, slot := range p.blocks {
			if slot == obj {
				p.blocks[i] = nil
				return true
			}
		}
	}
	return false
}

// Heap is one thread's (or one abandoned segment's) GC-tagged heap: a set
// of bins. The visited bit prevents the walker from double-traversing a
// heap that appears in both the live-thread pass and the abandoned-segment
// pass; it is cleared whenever a thread detaches (spec §4.D point 3).
type Heap struct {
	bins    []*Bin
	visited bool
}

func newHeap() *Heap {
	return &Heap{bins: []*Bin{{}}}
}

// Bins returns the heap's bins.
func (h *Heap) Bins() []*Bin { return h.bins }

// Visited reports the walker's visited bit.
func (h *Heap) Visited() bool { return h.visited }

// SetVisited sets the walker's visited bit.
func (h *Heap) SetVisited(v bool) { h.visited = v }

func (h *Heap) alloc(obj *gcobj.Base) {
	h.bins[0].alloc(obj)
}

func (h *Heap) free(obj *gcobj.Base) bool {
	for _, bin := range h.bins {
		if bin.free(obj) {
			return true
		}
	}
	return false
}

// Allocator tracks one Heap per live thread plus a list of abandoned
// heaps (from threads that have since exited), exactly the two sources
// spec §4.D's heap walker must enumerate. It must only be mutated or
// walked while the caller holds the collector's stop-the-world guarantee,
// same as the real allocator spec §4.D describes ("page freelists are not
// stable under concurrent allocation").
type Allocator struct {
	mu         sync.Mutex
	liveHeaps  map[uint64]*Heap
	abandoned  []*Heap
}

// New constructs an empty Allocator.
func New() *Allocator {
	return &Allocator{liveHeaps: make(map[uint64]*Heap)}
}

// AttachThread registers a fresh heap for a newly-attached thread.
func (a *Allocator) AttachThread(threadID uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.liveHeaps[threadID] = newHeap()
}

// DetachThread moves a thread's heap to the abandoned list, clearing its
// visited bit so the next collection's abandoned-segment pass walks it
// (spec §4.D point 3).
func (a *Allocator) DetachThread(threadID uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, ok := a.liveHeaps[threadID]
	if !ok {
		return
	}
	delete(a.liveHeaps, threadID)
	h.visited = false
	a.abandoned = append(a.abandoned, h)
}

// Alloc places obj into threadID's heap.
func (a *Allocator) Alloc(threadID uint64, obj *gcobj.Base) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, ok := a.liveHeaps[threadID]
	if !ok {
		panic("allocator: Alloc on unattached thread")
	}
	h.alloc(obj)
}

// Free removes obj from wherever it currently lives (live or abandoned
// heap).
func (a *Allocator) Free(obj *gcobj.Base) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, h := range a.liveHeaps {
		if h.free(obj) {
			return
		}
	}
	for _, h := range a.abandoned {
		if h.free(obj) {
			return
		}
	}
}

// LiveHeaps returns a snapshot of the live per-thread heaps. Only safe to
// call under stop-the-world.
func (a *Allocator) LiveHeaps() map[uint64]*Heap {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[uint64]*Heap, len(a.liveHeaps))
	for k, v := range a.liveHeaps {
		out[k] = v
	}
	return out
}

// AbandonedHeaps returns a snapshot of the abandoned-segment list. Only
// safe to call under stop-the-world.
func (a *Allocator) AbandonedHeaps() []*Heap {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Heap, len(a.abandoned))
	copy(out, a.abandoned)
	return out
}
