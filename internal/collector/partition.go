package collector

import "github.com/brcgc/brcgc/internal/gcobj"

// visitDecref is visit_decref (spec §4.G step 6/14): decrement gc_refs on
// any successor still participating in the current collection's working
// lists. Successors outside the collecting set (already merged back into
// the ordinary heap, or never tracked) are left alone.
func visitDecref(succ *gcobj.Base) error {
	h := succ.GCHeader()
	if h.Collecting() {
		h.AddGCRefs(-1)
	}
	return nil
}

// visitReachable is visit_reachable (spec §4.G step 7): called on every
// successor of an object already known to be reachable. A zeroed successor
// is promoted to gc_refs=1; if it had already been moved into dst
// (the unreachable list), it is unlinked and re-appended to src so the
// ongoing front-to-back scan reaches it again.
func visitReachable(succ *gcobj.Base, src *gcobj.List) {
	h := succ.GCHeader()
	if !h.Collecting() || h.GCRefs() > 0 {
		return
	}
	h.SetGCRefs(1)
	if h.Unreachable() {
		h.Unlink()
		h.SetUnreachable(false)
		src.Append(h)
	}
}

// partition implements move_unreachable/deduce_unreachable (spec §4.G
// steps 7 and 14): walk src front-to-back, traversing and promoting the
// successors of any object with gc_refs > 0 (visitReachable may re-append
// promoted objects to src's tail, which this loop picks up naturally since
// it re-reads h.Next() after each traversal); objects still at gc_refs==0
// are unlinked from src, flagged UNREACHABLE, and appended to dst.
//
// The loop terminates when it reaches src's sentinel, by construction: every
// node is either left in place (after traversal) or moved to dst, and
// re-appended nodes are always freshly promoted to gc_refs=1 so they will
// not be re-moved to dst on a later visit.
func partition(src, dst *gcobj.List) {
	h := src.Sentinel().Next()
	for h != src.Sentinel() {
		base := gcobj.BaseOf(h)
		if h.GCRefs() > 0 {
			if base.Type != nil && base.Type.Traverse != nil {
				_ = base.Type.Traverse(base, func(succ *gcobj.Base) error {
					visitReachable(succ, src)
					return nil
				})
			}
			h = h.Next()
		} else {
			next := h.Next()
			h.SetUnreachable(true)
			h.Unlink()
			dst.Append(h)
			h = next
		}
	}
}
