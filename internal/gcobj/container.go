package gcobj

import "unsafe"

// BaseOf recovers the *Base whose embedded Header is h - the container_of
// pattern the collector's working lists rely on, since List only links
// *Header nodes but traversal needs the enclosing *Base to reach its
// TypeInfo. Valid precisely because Base always embeds Header as its first
// field, so h and the enclosing Base share an address; callers must only
// pass headers obtained via (*Base).GCHeader.
func BaseOf(h *Header) *Base {
	return (*Base)(unsafe.Pointer(h))
}
