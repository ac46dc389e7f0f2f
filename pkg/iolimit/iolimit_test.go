package iolimit

import (
	"testing"
	"time"
)

func TestUnlimitedNeverPauses(t *testing.T) {
	l := Unlimited()

	start := time.Now()
	stamp := StartStamp
	for i := 0; i < 1000; i++ {
		stamp = l.MaybeLimit(stamp, 64)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("unlimited limiter should not pause, took %v", elapsed)
	}
	if stamp != StartStamp {
		t.Errorf("unlimited limiter should return the stamp unchanged, got %d", stamp)
	}
}

func TestIOPSLimiterPausesWhenOverBudget(t *testing.T) {
	// 100 IOPS allows 10 I/Os per 100ms quantum; report far more.
	l := NewIOPSLimiter(100)

	stamp := StartStamp
	for i := 0; i < 5; i++ {
		stamp = l.MaybeLimit(stamp, 50)
	}

	if l.Pauses() == 0 {
		t.Error("limiter should have paused at least once over budget")
	}
	if stamp == StartStamp {
		t.Error("stamp should advance when the limiter pauses")
	}
}

func TestIOPSLimiterUnderBudget(t *testing.T) {
	l := NewIOPSLimiter(1_000_000)

	stamp := l.MaybeLimit(StartStamp, 10)
	if l.Pauses() != 0 {
		t.Errorf("limiter paused under budget: %d pauses", l.Pauses())
	}
	if stamp != StartStamp {
		t.Errorf("stamp should be unchanged under budget, got %d", stamp)
	}
}

func TestIOPSLimiterMinimumAllowance(t *testing.T) {
	// 1 IOPS rounds the per-quantum allowance up to one I/O so a flush
	// always makes progress.
	l := NewIOPSLimiter(1)
	if l.iopsPerQuantum != 1 {
		t.Errorf("expected per-quantum allowance of 1, got %d", l.iopsPerQuantum)
	}
}
