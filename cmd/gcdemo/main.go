// Command gcdemo drives the collector against a synthetic workload: a
// single mutator thread that keeps allocating small reference cycles and
// periodically triggers a collection, printing the resulting stats.
//
// Run with: go run ./cmd/gcdemo -cycles=20 -interval=50ms
package main

import (
	"flag"
	"fmt"
	"os"
	"time"
	"unsafe"

	"github.com/brcgc/brcgc/gc"
	"github.com/brcgc/brcgc/internal/gcobj"
)

type link struct {
	gcobj.Base
	Next *link
}

func asLink(b *gcobj.Base) *link { return (*link)(unsafe.Pointer(b)) }

func traverseLink(obj *gcobj.Base, visit gcobj.VisitFunc) error {
	l := asLink(obj)
	if l.Next != nil {
		return visit(&l.Next.Base)
	}
	return nil
}

func clearLink(obj *gcobj.Base) error {
	l := asLink(obj)
	if l.Next != nil {
		l.Next.DecRef()
		l.Next = nil
	}
	return nil
}

var linkType = &gcobj.TypeInfo{Name: "link", Traverse: traverseLink, Clear: clearLink}

func newLink(h *gc.ThreadHandle) *link {
	l := &link{}
	l.Init(l)
	l.Type = linkType
	l.IncRefLocal()
	h.Track(&l.Base)
	return l
}

func main() {
	cycles := flag.Int("cycles", 20, "number of reference cycles to allocate")
	interval := flag.Duration("interval", 20*time.Millisecond, "pause between allocation batches")
	flag.Parse()

	g := gc.New(gc.WithHooks(gc.Hooks{
		OnStart: func(r gc.Reason) { fmt.Fprintf(os.Stderr, "collection starting (reason=%v)\n", r) },
		OnDone:  func(s gc.Stats) { fmt.Fprintf(os.Stderr, "collection done: %+v\n", s) },
	}))
	h := g.RegisterThread(1)
	defer g.UnregisterThread(h)

	for i := 0; i < *cycles; i++ {
		a := newLink(h)
		b := newLink(h)
		a.Next = b
		b.IncRefLocal()
		b.Next = a
		a.IncRefLocal()
		a.DecRefLocal()
		b.DecRefLocal()

		h.PollSafepoint()
		if g.MaybeCollect(h) > 0 {
			live, _, _ := g.GetCount()
			fmt.Printf("batch %d: live objects now %d\n", i, live)
		}
		time.Sleep(*interval)
	}

	collected := g.Collect(h)
	fmt.Printf("final manual collection reclaimed %d objects\n", collected)
	for _, s := range g.GetStats() {
		fmt.Printf("stats: %+v\n", s)
	}
}
