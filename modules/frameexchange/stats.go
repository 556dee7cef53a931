package frameexchange

import "sync/atomic"

// Stats is a snapshot of exchange counters.
type Stats struct {
	// Published counts successful Publish calls.
	Published uint64

	// Snapshots counts frames copied out to readers.
	Snapshots uint64

	// Overwrites counts frames replaced before any reader copied them.
	// A high ratio Overwrites/Published means the consumer runs slower than
	// the decoder; that is expected and harmless under latest-wins.
	Overwrites uint64

	// Resizes counts producer resolution changes (canonical re-allocations).
	Resizes uint64

	// ScaledReads counts snapshots that went through resize-on-read.
	ScaledReads uint64
}

// Stats returns the current counters. Lock-free.
func (e *Exchange) Stats() Stats {
	return Stats{
		Published:   atomic.LoadUint64(&e.published),
		Snapshots:   atomic.LoadUint64(&e.snapshots),
		Overwrites:  atomic.LoadUint64(&e.overwrites),
		Resizes:     atomic.LoadUint64(&e.resizes),
		ScaledReads: atomic.LoadUint64(&e.scaledReads),
	}
}
