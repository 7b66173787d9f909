package parkinglot

import "sync/atomic"

// loadAtomic reads addr with acquire semantics. Park's state checks in
// parkinglot.go (via loadAddr) use it.
func loadAtomic(addr *uint64) uint64 {
	return atomic.LoadUint64(addr)
}
