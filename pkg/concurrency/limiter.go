// Package concurrency provides the worker-slot limiter and failure guard the
// pipeline uses to bound concurrent batch work and to stop rebuild storms in
// watch mode.
package concurrency

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// LimiterMetrics is a point-in-time snapshot of limiter activity.
type LimiterMetrics struct {
	TotalAcquired  int64
	TotalReleased  int64
	PeakConcurrent int64
	TotalWait      time.Duration
}

// Limiter bounds concurrent work with a semaphore. An optional circuit
// breaker refuses new slots while open.
type Limiter struct {
	sem      chan struct{}
	active   int64
	acquired int64
	released int64
	peak     int64
	waitNs   int64
	breaker  *CircuitBreaker
}

// NewLimiter creates a limiter admitting at most maxConcurrent holders.
func NewLimiter(maxConcurrent int) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Limiter{sem: make(chan struct{}, maxConcurrent)}
}

// NewLimiterWithBreaker creates a limiter guarded by the given breaker.
func NewLimiterWithBreaker(maxConcurrent int, breaker *CircuitBreaker) *Limiter {
	l := NewLimiter(maxConcurrent)
	l.breaker = breaker
	return l
}

// Acquire blocks until a slot is free or the context ends.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.breaker != nil && l.breaker.IsOpen() {
		return fmt.Errorf("circuit breaker is open")
	}

	start := time.Now()
	select {
	case l.sem <- struct{}{}:
		atomic.AddInt64(&l.waitNs, time.Since(start).Nanoseconds())
		atomic.AddInt64(&l.acquired, 1)
		l.updatePeak(atomic.AddInt64(&l.active, 1))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot. Releasing without a matching Acquire is a no-op.
func (l *Limiter) Release() {
	select {
	case <-l.sem:
		atomic.AddInt64(&l.active, -1)
		atomic.AddInt64(&l.released, 1)
	default:
	}
}

// Run executes fn while holding a slot, reporting the outcome to the breaker
// when one is attached.
func (l *Limiter) Run(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()

	err := fn()
	if l.breaker != nil {
		if err != nil {
			l.breaker.RecordFailure()
		} else {
			l.breaker.RecordSuccess()
		}
	}
	return err
}

// CurrentActive returns the number of slots currently held.
func (l *Limiter) CurrentActive() int64 {
	return atomic.LoadInt64(&l.active)
}

// Metrics returns a snapshot of limiter activity.
func (l *Limiter) Metrics() LimiterMetrics {
	return LimiterMetrics{
		TotalAcquired:  atomic.LoadInt64(&l.acquired),
		TotalReleased:  atomic.LoadInt64(&l.released),
		PeakConcurrent: atomic.LoadInt64(&l.peak),
		TotalWait:      time.Duration(atomic.LoadInt64(&l.waitNs)),
	}
}

// AverageWait returns the mean time spent waiting for a slot.
func (l *Limiter) AverageWait() time.Duration {
	acquired := atomic.LoadInt64(&l.acquired)
	if acquired == 0 {
		return 0
	}
	return time.Duration(atomic.LoadInt64(&l.waitNs) / acquired)
}

func (l *Limiter) updatePeak(current int64) {
	for {
		peak := atomic.LoadInt64(&l.peak)
		if current <= peak {
			return
		}
		if atomic.CompareAndSwapInt64(&l.peak, peak, current) {
			return
		}
	}
}
