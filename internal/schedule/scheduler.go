// Package schedule provides one-shot timers for proposal start and end
// notifications. Timers live only in process memory; a restart between
// arming and firing drops the notification and the next poll cycle does
// not re-arm it, because the proposal is already marked seen.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Clock abstracts time so tests can drive timers with a fake.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time                         { return time.Now() }
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Action is the work a timer performs when it fires. Errors are logged
// and swallowed; a failed notification is not retried.
type Action func(ctx context.Context) error

// Scheduler arms one-shot timers. Each timer runs in its own goroutine
// and never touches shared state, so concurrent fires cannot conflict.
type Scheduler struct {
	clock Clock
	log   *slog.Logger
	wg    sync.WaitGroup
}

// New creates a Scheduler on the system clock.
func New(log *slog.Logger) *Scheduler {
	return NewWithClock(log, SystemClock{})
}

// NewWithClock creates a Scheduler on an explicit clock.
func NewWithClock(log *slog.Logger, clock Clock) *Scheduler {
	return &Scheduler{clock: clock, log: log}
}

// Arm schedules action to run once at or after fireAt. A fire time in
// the past runs immediately. The timer is dropped, without running, when
// ctx is cancelled first.
func (s *Scheduler) Arm(ctx context.Context, name string, fireAt time.Time, action Action) {
	delay := fireAt.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}

	s.log.Debug("timer armed", "name", name, "fire_at", fireAt, "delay", delay)

	timer := s.clock.After(delay)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case <-ctx.Done():
			s.log.Debug("timer cancelled", "name", name)
			return
		case <-timer:
		}

		if err := action(ctx); err != nil {
			s.log.Error("timer action failed", "name", name, "error", err)
		}
	}()
}

// Wait blocks until every armed timer has fired or been cancelled.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
