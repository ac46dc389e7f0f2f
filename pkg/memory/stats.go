package memory

import "sync/atomic"

// Stats is a point-in-time snapshot of the cache's activity counters.
type Stats struct {
	// Hits counts pins satisfied by an already-resident page.
	Hits int64

	// Faults counts pins that required reading the page from disk.
	Faults int64

	// Evictions counts slots reclaimed from a bound page.
	Evictions int64

	// EvictionFlushes counts dirty victims written back during eviction.
	EvictionFlushes int64

	// Flushes counts pages written back by explicit flush calls.
	Flushes int64

	// Pins and Unpins count cursor page bindings and releases.
	Pins   int64
	Unpins int64
}

// cacheStats holds the live counters. All fields are atomics so the hot
// paths never share a lock for bookkeeping.
type cacheStats struct {
	hits            atomic.Int64
	faults          atomic.Int64
	evictions       atomic.Int64
	evictionFlushes atomic.Int64
	flushes         atomic.Int64
	pins            atomic.Int64
	unpins          atomic.Int64
}

func (cs *cacheStats) snapshot() Stats {
	return Stats{
		Hits:            cs.hits.Load(),
		Faults:          cs.faults.Load(),
		Evictions:       cs.evictions.Load(),
		EvictionFlushes: cs.evictionFlushes.Load(),
		Flushes:         cs.flushes.Load(),
		Pins:            cs.pins.Load(),
		Unpins:          cs.unpins.Load(),
	}
}
