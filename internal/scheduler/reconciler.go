package scheduler

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/LeventeLantos/tweet-scheduler/internal/metrics"
	"github.com/LeventeLantos/tweet-scheduler/internal/model"
	"github.com/LeventeLantos/tweet-scheduler/internal/timer"
)

// TweetSource is the read side of the record store.
type TweetSource interface {
	Upcoming(ctx context.Context) ([]model.Tweet, error)
	FindByID(ctx context.Context, id int64) (model.Tweet, error)
}

type DeliverFunc func(ctx context.Context, t model.Tweet) error

// Reconciler keeps exactly one engine timer per unsent tweet. Each pass throws
// away every timer it owns and rebuilds the set from the store.
type Reconciler struct {
	engine  *timer.Engine
	store   TweetSource
	deliver DeliverFunc
	log     zerolog.Logger
	now     func() time.Time

	mu      sync.Mutex
	tracked map[int64]timer.Handle
	lastRun time.Time
	lastErr error
}

func NewReconciler(engine *timer.Engine, store TweetSource, deliver DeliverFunc, log zerolog.Logger) (*Reconciler, error) {
	if engine == nil {
		return nil, errors.New("engine must not be nil")
	}
	if store == nil {
		return nil, errors.New("store must not be nil")
	}
	if deliver == nil {
		return nil, errors.New("deliver must not be nil")
	}
	return &Reconciler{
		engine:  engine,
		store:   store,
		deliver: deliver,
		log:     log.With().Str("component", "reconciler").Logger(),
		now:     time.Now,
		tracked: make(map[int64]timer.Handle),
	}, nil
}

// Reschedule runs one reconcile pass. When the store cannot be read the
// current timers are left as they are and the error is returned.
func (r *Reconciler) Reschedule(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tweets, err := r.store.Upcoming(ctx)
	r.lastRun = r.now()
	if err != nil {
		r.lastErr = err
		metrics.ReconcilePasses.WithLabelValues("error").Inc()
		r.log.Error().Err(err).Int("tracked", len(r.tracked)).Msg("reconcile failed, keeping current timers")
		return fmt.Errorf("reconcile: %w", err)
	}

	b := r.engine.Batch()
	for _, h := range r.tracked {
		b.Cancel(h)
	}

	next := make(map[int64]timer.Handle, len(tweets))
	overdue := 0
	for _, t := range tweets {
		if t.Sent {
			continue
		}
		if _, dup := next[t.ID]; dup {
			continue
		}
		if t.Due(r.lastRun) {
			overdue++
		}
		self := new(timer.Handle)
		h, err := b.ScheduleAt(t.SendAt, r.fire(t.ID, self))
		if err != nil {
			// Only a nil callback is rejected, which fire never returns.
			r.log.Error().Err(err).Int64("tweet_id", t.ID).Msg("schedule tweet")
			continue
		}
		*self = h
		next[t.ID] = h
	}
	b.Commit()

	r.tracked = next
	r.lastErr = nil
	metrics.ReconcilePasses.WithLabelValues("ok").Inc()
	metrics.TimersTracked.Set(float64(len(next)))
	r.log.Debug().Int("tracked", len(next)).Int("overdue", overdue).Msg("reconcile completed")
	return nil
}

// fire re-reads the tweet before delivering it, so a tweet deleted or sent
// since the pass that scheduled it is skipped.
func (r *Reconciler) fire(id int64, self *timer.Handle) timer.Func {
	return func(ctx context.Context) {
		r.forget(id, *self)

		t, err := r.store.FindByID(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			r.log.Debug().Int64("tweet_id", id).Msg("tweet gone before delivery")
			return
		}
		if err != nil {
			r.log.Error().Err(err).Int64("tweet_id", id).Msg("load tweet for delivery")
			return
		}
		if t.Sent {
			return
		}

		if err := r.deliver(ctx, t); err != nil {
			r.log.Warn().Err(err).Int64("tweet_id", id).Msg("delivery failed, will retry on next reconcile")
		}
	}
}

func (r *Reconciler) forget(id int64, h timer.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tracked[id] != h {
		return
	}
	delete(r.tracked, id)
	metrics.TimersTracked.Set(float64(len(r.tracked)))
}

// Tracked returns a copy of the tweet id to timer handle map.
func (r *Reconciler) Tracked() map[int64]timer.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.tracked)
}

// LastRun reports when the last pass ran and how it ended.
func (r *Reconciler) LastRun() (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRun, r.lastErr
}
