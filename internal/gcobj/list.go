package gcobj

// List is a circular doubly-linked list of Headers with a sentinel node,
// the same shape as CPython's gc_list / PyGC_Head sentinel used for
// young/unreachable/finalizers (spec §4.G). The sentinel's own prev/next
// point into the list; Owner is nil for the sentinel.
type List struct {
	sentinel Header
}

// NewList returns an empty, ready-to-use List.
func NewList() *List {
	l := &List{}
	l.sentinel.prev = &l.sentinel
	l.sentinel.next = &l.sentinel
	return l
}

// Init (re)initializes l to empty. Safe to call on the zero value.
func (l *List) Init() {
	l.sentinel.prev = &l.sentinel
	l.sentinel.next = &l.sentinel
}

// Empty reports whether the list has no elements.
func (l *List) Empty() bool {
	return l.sentinel.next == &l.sentinel
}

// Sentinel returns the list's sentinel header, useful as a loop terminator
// when callers walk Next()/Prev() directly.
func (l *List) Sentinel() *Header { return &l.sentinel }

// Append links h onto the tail of l. h must not already be linked anywhere.
func (l *List) Append(h *Header) {
	tail := l.sentinel.prev
	h.prev = tail
	h.next = &l.sentinel
	tail.next = h
	l.sentinel.prev = h
}

// Unlink removes h from whatever list it is currently linked into.
func (h *Header) Unlink() {
	if h.prev != nil {
		h.prev.next = h.next
	}
	if h.next != nil {
		h.next.prev = h.prev
	}
	h.prev, h.next = nil, nil
}

// Next returns the next header in the list. The last element's next is the
// list's sentinel, so callers walking directly compare against Sentinel();
// an unlinked header returns nil.
func (h *Header) Next() *Header { return h.next }

// Prev returns the previous header in the list.
func (h *Header) Prev() *Header { return h.prev }

// MoveTailTo splices l's entire contents onto the tail of dst, leaving l
// empty. Used by "merge young generation into dst" style operations.
func (l *List) MoveTailTo(dst *List) {
	if l.Empty() {
		return
	}
	first := l.sentinel.next
	last := l.sentinel.prev

	dstTail := dst.sentinel.prev
	dstTail.next = first
	first.prev = dstTail
	last.next = &dst.sentinel
	dst.sentinel.prev = last

	l.Init()
}

// Each calls fn for every header currently in the list, in order. fn may
// unlink the current header (e.g. moving it to another list) but must not
// unlink headers it has not yet visited in a way that corrupts traversal;
// Each captures the next pointer before calling fn to tolerate this.
func (l *List) Each(fn func(h *Header)) {
	for h := l.sentinel.next; h != &l.sentinel; {
		next := h.next
		fn(h)
		h = next
	}
}

// Len counts the elements in l. O(n); intended for tests and stats, not hot
// paths.
func (l *List) Len() int {
	n := 0
	l.Each(func(*Header) { n++ })
	return n
}
