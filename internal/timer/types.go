package timer

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrAlreadyRunning = errors.New("timer engine already running")
)

// Handle identifies a registered job. The zero Handle is never issued.
type Handle uint64

// Func is a job callback. It runs on the engine goroutine.
type Func func(ctx context.Context)

type job struct {
	handle Handle
	at     time.Time
	seq    uint64
	fn     Func
	// sched is nil for one-shot jobs.
	sched cron.Schedule
	index int
}

func (j *job) recurring() bool { return j.sched != nil }

// fixedDelay is a cron.Schedule that keeps the full interval precision.
type fixedDelay time.Duration

func (d fixedDelay) Next(t time.Time) time.Time {
	return t.Add(time.Duration(d))
}
