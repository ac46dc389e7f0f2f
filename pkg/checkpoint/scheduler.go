// Package checkpoint runs periodic background flushes of the page cache.
//
// The scheduler calls PageCache.FlushAndForce on a fixed interval, throttled
// through an I/O limiter so checkpoints do not starve foreground reads. A
// single failed flush is logged and retried on the next tick; a run of
// consecutive failures past the configured tolerance escalates through the
// OnPanic hook, since at that point durability can no longer be promised.
package checkpoint

import (
	"fmt"
	"sync"
	"time"

	"pagecache/pkg/iolimit"
	"pagecache/pkg/logging"
)

// Flusher is the part of the page cache the scheduler drives.
type Flusher interface {
	FlushAndForce(limiter iolimit.Limiter) error
}

// DefaultInterval is the flush interval used when none is configured.
const DefaultInterval = 10 * time.Second

// DefaultFailureTolerance is how many consecutive flush failures are logged
// and retried before the scheduler escalates.
const DefaultFailureTolerance = 10

// Config configures a Scheduler.
type Config struct {
	// Interval between background flushes. Defaults to DefaultInterval.
	Interval time.Duration

	// FailureTolerance is the number of consecutive flush failures to
	// tolerate before escalating. Defaults to DefaultFailureTolerance.
	FailureTolerance int

	// Limiter throttles checkpoint write I/O. Nil means unlimited.
	Limiter iolimit.Limiter

	// OnPanic is invoked when consecutive failures exceed the tolerance.
	// After it returns the scheduler stops. Nil means panic.
	OnPanic func(err error)
}

// Scheduler periodically flushes a page cache in the background.
type Scheduler struct {
	flusher   Flusher
	interval  time.Duration
	tolerance int
	limiter   iolimit.Limiter
	onPanic   func(err error)

	mu      sync.Mutex
	started bool

	stop chan struct{}
	done chan struct{}
}

// NewScheduler builds a scheduler over the given flusher. Call Start to
// begin checkpointing.
func NewScheduler(flusher Flusher, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.FailureTolerance <= 0 {
		cfg.FailureTolerance = DefaultFailureTolerance
	}
	if cfg.Limiter == nil {
		cfg.Limiter = iolimit.Unlimited()
	}
	if cfg.OnPanic == nil {
		cfg.OnPanic = func(err error) {
			panic(fmt.Sprintf("checkpoint: too many consecutive flush failures: %v", err))
		}
	}
	return &Scheduler{
		flusher:   flusher,
		interval:  cfg.Interval,
		tolerance: cfg.FailureTolerance,
		limiter:   cfg.Limiter,
		onPanic:   cfg.OnPanic,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the background flush loop. Starting twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	go s.run()
}

// Stop shuts the scheduler down and waits for an in-flight flush to finish.
// Stopping a scheduler that was never started, or stopping twice, is safe.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	s.mu.Unlock()
	<-s.done
}

// ForceCheckpoint flushes immediately on the caller's goroutine, outside the
// background schedule and without counting against the failure tolerance.
func (s *Scheduler) ForceCheckpoint() error {
	return s.flusher.FlushAndForce(s.limiter)
}

func (s *Scheduler) run() {
	defer close(s.done)

	log := logging.WithComponent("CheckpointScheduler")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		start := time.Now()
		if err := s.flusher.FlushAndForce(s.limiter); err != nil {
			failures++
			log.Error("background flush failed",
				"error", err, "consecutive_failures", failures)
			if failures > s.tolerance {
				s.onPanic(err)
				return
			}
			continue
		}
		failures = 0
		log.Debug("background flush completed", "duration", time.Since(start))
	}
}
