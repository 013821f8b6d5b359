package timer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/LeventeLantos/tweet-scheduler/internal/clock"
)

const maxSleepCap = 60 * time.Second

type op func(s *state)

type Engine struct {
	clock  clock.Clock
	log    zerolog.Logger
	parser cron.Parser

	nextHandle atomic.Uint64
	running    atomic.Bool
	pending    atomic.Int64

	mu    sync.Mutex
	inbox []op
	wake  chan struct{}

	st *state
}

type Option func(*Engine)

func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func New(opts ...Option) *Engine {
	e := &Engine{
		clock:  clock.System{},
		log:    zerolog.Nop(),
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		wake:   make(chan struct{}, 1),
		st:     newState(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ScheduleAt registers fn to run once at or after at. A time in the past
// fires on the next loop iteration.
func (e *Engine) ScheduleAt(at time.Time, fn Func) (Handle, error) {
	b := e.Batch()
	h, err := b.ScheduleAt(at, fn)
	if err != nil {
		return 0, err
	}
	b.Commit()
	return h, nil
}

// ScheduleEvery registers fn to run every interval, first one interval from now.
// The next run is measured from the end of the previous one.
func (e *Engine) ScheduleEvery(interval time.Duration, fn Func) (Handle, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("%w: interval must be > 0", ErrInvalidInput)
	}
	return e.scheduleRecurring(fixedDelay(interval), fn)
}

// ScheduleCron registers fn on a cron spec ("*/5 * * * *", "@every 1m", "@hourly").
func (e *Engine) ScheduleCron(spec string, fn Func) (Handle, error) {
	sched, err := e.parser.Parse(spec)
	if err != nil {
		return 0, fmt.Errorf("%w: cron spec %q: %v", ErrInvalidInput, spec, err)
	}
	return e.scheduleRecurring(sched, fn)
}

func (e *Engine) scheduleRecurring(sched cron.Schedule, fn Func) (Handle, error) {
	if fn == nil {
		return 0, fmt.Errorf("%w: callback must not be nil", ErrInvalidInput)
	}
	first := sched.Next(e.clock.Now())
	if first.IsZero() {
		return 0, fmt.Errorf("%w: schedule never fires", ErrInvalidInput)
	}
	h := e.newHandle()
	e.submit(func(s *state) {
		s.push(&job{handle: h, at: first, fn: fn, sched: sched})
	})
	return h, nil
}

// Cancel removes the job for h. Unknown or already fired handles are ignored.
func (e *Engine) Cancel(h Handle) {
	e.submit(func(s *state) { s.remove(h) })
}

// Pending returns the number of live jobs as last observed by the loop.
func (e *Engine) Pending() int {
	return int(e.pending.Load())
}

// IsRunning reports whether Run is active.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// Sync waits until the loop has applied every request submitted before it.
// It must not be called from a job callback.
func (e *Engine) Sync(ctx context.Context) error {
	done := make(chan struct{})
	e.submit(func(*state) { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run dispatches jobs until ctx is cancelled. Callbacks execute sequentially on
// the calling goroutine.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer e.running.Store(false)

	e.log.Info().Msg("timer engine started")
	defer e.log.Info().Msg("timer engine stopped")

	var tm clock.Timer
	defer func() {
		if tm != nil {
			tm.Stop()
		}
	}()

	for {
		e.drain()
		if !e.fireDue(ctx) {
			return nil
		}

		if tm != nil {
			tm.Stop()
			tm = nil
		}
		var timerC <-chan time.Time
		if next := e.st.peek(); next != nil {
			d := next.at.Sub(e.clock.Now())
			if d > maxSleepCap {
				d = maxSleepCap
			}
			tm = e.clock.NewTimer(d)
			timerC = tm.C()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-e.wake:
		case <-timerC:
		}
	}
}

// fireDue runs every due job in order. The mailbox is drained after each
// callback so requests a callback made are applied before the next job fires.
// It returns false once ctx is done.
func (e *Engine) fireDue(ctx context.Context) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		next := e.st.peek()
		if next == nil || next.at.After(e.clock.Now()) {
			return true
		}

		j := e.st.pop()
		if !j.recurring() {
			delete(e.st.jobs, j.handle)
		}
		e.publish()

		e.call(ctx, j)
		e.drain()

		if j.recurring() && e.st.jobs[j.handle] == j {
			at := j.sched.Next(e.clock.Now())
			if at.IsZero() {
				delete(e.st.jobs, j.handle)
			} else {
				j.at = at
				e.st.push(j)
			}
			e.publish()
		}
	}
}

func (e *Engine) call(ctx context.Context, j *job) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Uint64("handle", uint64(j.handle)).Msg("timer job panic recovered")
		}
	}()
	j.fn(ctx)
}

func (e *Engine) newHandle() Handle {
	return Handle(e.nextHandle.Add(1))
}

func (e *Engine) submit(o op) {
	e.mu.Lock()
	e.inbox = append(e.inbox, o)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) drain() {
	for {
		e.mu.Lock()
		ops := e.inbox
		e.inbox = nil
		e.mu.Unlock()

		if len(ops) == 0 {
			return
		}
		for _, o := range ops {
			o(e.st)
		}
		e.publish()
	}
}

func (e *Engine) publish() {
	e.pending.Store(int64(len(e.st.jobs)))
}
