package stw

import "sync/atomic"

func loadAtomic(addr *uint64) uint64 { return atomic.LoadUint64(addr) }

func storeAtomic(addr *uint64, v uint64) { atomic.StoreUint64(addr, v) }
