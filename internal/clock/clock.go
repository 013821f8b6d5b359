// Package clock abstracts wall-clock time so the timer engine can be driven
// deterministically in tests.
package clock

import (
	"sync"
	"time"
)

type (
	// Clock provides the current time and one-shot timers.
	Clock interface {
		Now() time.Time
		NewTimer(d time.Duration) Timer
	}

	// Timer is the subset of time.Timer the engine relies on.
	Timer interface {
		C() <-chan time.Time
		Stop() bool
	}
)

// System is the real clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

func (System) NewTimer(d time.Duration) Timer {
	return &systemTimer{t: time.NewTimer(d)}
}

type systemTimer struct {
	t *time.Timer
}

func (s *systemTimer) C() <-chan time.Time { return s.t.C }

func (s *systemTimer) Stop() bool { return s.t.Stop() }

// Fake is a manually advanced clock. Timers fire only from Advance or Set,
// or immediately when created with a non-positive duration.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) NewTimer(d time.Duration) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	ft := &fakeTimer{clock: f, deadline: f.now.Add(d), ch: make(chan time.Time, 1)}
	if d <= 0 {
		ft.ch <- f.now
		return ft
	}
	f.timers = append(f.timers, ft)
	return ft
}

// Advance moves the clock forward and fires every timer that became due.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.setLocked(f.now.Add(d))
	f.mu.Unlock()
}

// Set jumps the clock to t, which may be in the past.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.setLocked(t)
	f.mu.Unlock()
}

// Waiters returns the number of armed timers.
func (f *Fake) Waiters() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func (f *Fake) setLocked(t time.Time) {
	f.now = t
	kept := f.timers[:0]
	for _, ft := range f.timers {
		if ft.deadline.After(t) {
			kept = append(kept, ft)
			continue
		}
		select {
		case ft.ch <- t:
		default:
		}
	}
	f.timers = kept
}

func (f *Fake) remove(ft *fakeTimer) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, cur := range f.timers {
		if cur == ft {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			return true
		}
	}
	return false
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	ch       chan time.Time
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) Stop() bool { return t.clock.remove(t) }
