// Package heapwalk implements spec §4.D's heap walker: the routine that
// enumerates every live thread's heap plus every abandoned segment and
// calls back for each GC-tracked object it finds. It is the bridge between
// the external allocator collaborator and the collector's working-set
// seeding phase, grounded the same way eventloop's poller files bridge an external
// OS primitive into the loop's own event queue.
package heapwalk

import (
	"github.com/brcgc/brcgc/internal/allocator"
	"github.com/brcgc/brcgc/internal/gcobj"
)

// Visit is called once per tracked object found during a walk.
type Visit func(obj *gcobj.Base)

// Walk enumerates alloc's live-thread heaps and then its abandoned
// segments, invoking visit for every tracked object. Only objects with
// Header.Tracked() set are visited (spec §4.D: "only tracked containers
// participate; scalars and untracked objects are skipped in place").
//
// Walk must only be called while the caller holds stop-the-world: heap
// contents are not safe to enumerate concurrently with allocation.
func Walk(alloc *allocator.Allocator, visit Visit) {
	for _, heap := range alloc.LiveHeaps() {
		walkHeap(heap, visit)
	}
	for _, heap := range alloc.AbandonedHeaps() {
		walkHeap(heap, visit)
	}
}

func walkHeap(heap *allocator.Heap, visit Visit) {
	if heap.Visited() {
		return
	}
	heap.SetVisited(true)
	for _, bin := range heap.Bins() {
		for _, page := range bin.Pages() {
			for _, blk := range page.Blocks() {
				if blk != nil && blk.GCHeader().Tracked() {
					visit(blk)
				}
			}
		}
	}
}

// ClearVisited resets the visited bit on every heap alloc currently knows
// about, so the next walk starts fresh. The collector calls this before
// every walk: the working-set seed pass of each collection (spec §4.G step
// 5) and the GetObjects/GetReferrers queries.
func ClearVisited(alloc *allocator.Allocator) {
	for _, heap := range alloc.LiveHeaps() {
		heap.SetVisited(false)
	}
	for _, heap := range alloc.AbandonedHeaps() {
		heap.SetVisited(false)
	}
}
