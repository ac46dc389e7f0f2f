// Package iolimit provides the pluggable throttle consulted during bulk
// flushes. Checkpointing passes a limiter into PageCache.FlushAndForce to cap
// write IOPS so a checkpoint does not saturate the storage device that
// foreground transactions are using.
package iolimit

import (
	"sync/atomic"
	"time"
)

// Limiter is consulted between batches of completed write I/Os during a bulk
// flush. MaybeLimit may block the calling goroutine to pace the flush.
//
// The stamp parameter is an opaque value the limiter returned from its
// previous invocation (or StartStamp for the first call of a flush), letting
// stateful limiters carry bookkeeping across calls without locking.
type Limiter interface {
	// MaybeLimit possibly pauses the caller, given that completedIOs
	// write I/Os have completed since the previous call. It returns the
	// stamp to pass to the next invocation.
	MaybeLimit(previousStamp int64, completedIOs int) int64
}

// StartStamp is the stamp passed to the first MaybeLimit call of a flush.
const StartStamp int64 = 0

// Unlimited returns a limiter that never pauses. FlushAndForce uses it when
// the caller passes a nil limiter.
func Unlimited() Limiter {
	return unlimited{}
}

type unlimited struct{}

func (unlimited) MaybeLimit(previousStamp int64, completedIOs int) int64 {
	return previousStamp
}

// IOPSLimiter paces flushes to a configured number of write I/Os per second.
// It divides time into fixed quanta and sleeps whenever the I/Os completed in
// the current quantum exceed the per-quantum allowance.
//
// The limiter is safe for use by concurrent flushes; the pause accounting is
// kept in atomics so unrelated flushers never block each other except through
// the intended pacing.
type IOPSLimiter struct {
	iopsPerQuantum int64
	quantum        time.Duration

	// state packs the quantum start (unix nanos, upper bits unused) and
	// is paired with the I/O counter for the current quantum.
	quantumStart atomic.Int64
	ioCount      atomic.Int64

	// pauses counts limiter-injected sleeps, for tests and stats.
	pauses atomic.Int64
}

// DefaultQuantum is the pacing window used by NewIOPSLimiter.
const DefaultQuantum = 100 * time.Millisecond

// NewIOPSLimiter creates a limiter that allows at most iops write I/Os per
// second. Values below one I/O per quantum are rounded up so the flush always
// makes progress.
func NewIOPSLimiter(iops int) *IOPSLimiter {
	perQuantum := int64(iops) * int64(DefaultQuantum) / int64(time.Second)
	if perQuantum < 1 {
		perQuantum = 1
	}
	l := &IOPSLimiter{
		iopsPerQuantum: perQuantum,
		quantum:        DefaultQuantum,
	}
	l.quantumStart.Store(time.Now().UnixNano())
	return l
}

// MaybeLimit implements Limiter.
func (l *IOPSLimiter) MaybeLimit(previousStamp int64, completedIOs int) int64 {
	now := time.Now().UnixNano()
	start := l.quantumStart.Load()

	if now-start >= int64(l.quantum) {
		// New quantum: reset the counter. Racing flushers may both
		// reset; the worst case is a slightly generous allowance.
		if l.quantumStart.CompareAndSwap(start, now) {
			l.ioCount.Store(0)
		}
	}

	count := l.ioCount.Add(int64(completedIOs))
	if count <= l.iopsPerQuantum {
		return previousStamp
	}

	// Over budget for this quantum: sleep out the remainder.
	elapsed := time.Duration(now - l.quantumStart.Load())
	if remaining := l.quantum - elapsed; remaining > 0 {
		l.pauses.Add(1)
		time.Sleep(remaining)
	}
	return previousStamp + 1
}

// Pauses returns the number of sleeps this limiter has injected.
func (l *IOPSLimiter) Pauses() int64 {
	return l.pauses.Load()
}
