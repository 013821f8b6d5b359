package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/LeventeLantos/tweet-scheduler/internal/timer"
)

// Scheduler owns the delivery loop: an eager reconcile, a recurring reconcile
// timer and the engine run.
type Scheduler struct {
	engine   *timer.Engine
	rec      *Reconciler
	interval time.Duration
	cronSpec string
	log      zerolog.Logger

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	errs   chan error
}

type Status struct {
	Running       bool       `json:"running"`
	Interval      string     `json:"interval"`
	Schedule      string     `json:"schedule,omitempty"`
	Tracked       int        `json:"tracked"`
	Pending       int        `json:"pending"`
	LastReconcile *time.Time `json:"lastReconcile,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
}

func New(engine *timer.Engine, rec *Reconciler, interval time.Duration, log zerolog.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if engine == nil {
		return nil, errors.New("engine must not be nil")
	}
	if rec == nil {
		return nil, errors.New("reconciler must not be nil")
	}
	return &Scheduler{
		engine:   engine,
		rec:      rec,
		interval: interval,
		log:      log.With().Str("component", "scheduler").Logger(),
		done:     make(chan struct{}),
		errs:     make(chan error, 1),
	}, nil
}

// WithCronSpec reconciles on a cron spec instead of the fixed interval.
func (s *Scheduler) WithCronSpec(spec string) *Scheduler {
	s.cronSpec = spec
	return s
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return timer.ErrAlreadyRunning
	}
	defer s.running.Store(false)
	return s.run(ctx)
}

func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.CompareAndSwap(false, true) {
		return false
	}

	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	done := make(chan struct{})
	s.done = done

	go func() {
		defer close(done)
		defer s.running.Store(false)
		if err := s.run(ctx); err != nil {
			s.log.Error().Err(err).Msg("scheduler exited")
			select {
			case s.errs <- err:
			default:
			}
		}
	}()

	return true
}

func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() || s.cancel == nil {
		return false
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.running.Store(false)

	s.log.Info().Msg("scheduler stopped")
	return true
}

// Errors delivers the error of a loop started with Start that exited on its
// own. A Stop is not reported.
func (s *Scheduler) Errors() <-chan error {
	return s.errs
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) Status() Status {
	st := Status{
		Running:  s.IsRunning(),
		Interval: s.interval.String(),
		Schedule: s.cronSpec,
		Tracked:  len(s.rec.Tracked()),
		Pending:  s.engine.Pending(),
	}
	if at, err := s.rec.LastRun(); !at.IsZero() {
		st.LastReconcile = &at
		if err != nil {
			st.LastError = err.Error()
		}
	}
	return st
}

func (s *Scheduler) run(ctx context.Context) error {
	s.safeTick(ctx)

	var (
		h   timer.Handle
		err error
	)
	if s.cronSpec != "" {
		h, err = s.engine.ScheduleCron(s.cronSpec, s.safeTick)
	} else {
		h, err = s.engine.ScheduleEvery(s.interval, s.safeTick)
	}
	if err != nil {
		return err
	}
	defer s.engine.Cancel(h)

	s.log.Info().Str("interval", s.interval.String()).Str("schedule", s.cronSpec).Msg("scheduler started")
	return s.engine.Run(ctx)
}

func (s *Scheduler) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("reconcile panic recovered")
		}
	}()

	start := time.Now()
	if err := s.rec.Reschedule(ctx); err != nil {
		return
	}
	s.log.Debug().Int64("duration_ms", time.Since(start).Milliseconds()).Msg("reconcile tick completed")
}
