// Package app wires configuration, storage and delivery into the operations
// exposed by the command line.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/LeventeLantos/tweet-scheduler/internal/api"
	"github.com/LeventeLantos/tweet-scheduler/internal/cache"
	"github.com/LeventeLantos/tweet-scheduler/internal/client"
	"github.com/LeventeLantos/tweet-scheduler/internal/config"
	"github.com/LeventeLantos/tweet-scheduler/internal/model"
	"github.com/LeventeLantos/tweet-scheduler/internal/repo"
	"github.com/LeventeLantos/tweet-scheduler/internal/scheduler"
	"github.com/LeventeLantos/tweet-scheduler/internal/service"
	"github.com/LeventeLantos/tweet-scheduler/internal/timeexpr"
	"github.com/LeventeLantos/tweet-scheduler/internal/timer"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	cfg  *config.Config
	log  zerolog.Logger
	repo repo.TweetRepository
	now  func() time.Time
}

// New opens the record store and installs its schema.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	r, err := repo.Open(ctx, repo.Config{
		Driver:           cfg.Store.Driver,
		SQLitePath:       cfg.Store.SQLitePath,
		PostgresURL:      cfg.Store.PostgresURL,
		MaxMessageLength: cfg.Poster.ContentMax,
	})
	if err != nil {
		return nil, err
	}
	if err := r.Install(ctx); err != nil {
		_ = r.Close()
		return nil, err
	}
	return &App{cfg: cfg, log: log, repo: r, now: time.Now}, nil
}

func (a *App) Close() error {
	return a.repo.Close()
}

// Add schedules message for the time described by when.
func (a *App) Add(ctx context.Context, message, when string) (model.Tweet, error) {
	sendAt, err := timeexpr.Parse(when, a.now())
	if err != nil {
		return model.Tweet{}, err
	}
	t, err := a.repo.Create(ctx, message, sendAt)
	if err != nil {
		return model.Tweet{}, err
	}
	a.log.Debug().Int64("tweet_id", t.ID).Time("send_at", t.SendAt).Msg("tweet added")
	return t, nil
}

// List returns every tweet that has not been sent yet.
func (a *App) List(ctx context.Context) ([]model.Tweet, error) {
	return a.repo.Upcoming(ctx)
}

func (a *App) Delete(ctx context.Context, id int64) error {
	return a.repo.Delete(ctx, id)
}

func (a *App) Sent(ctx context.Context, limit int) ([]model.Tweet, error) {
	return a.repo.ListSent(ctx, limit, 0)
}

// Run delivers tweets until ctx is cancelled. Empty username or password fall
// back to the configured credentials.
func (a *App) Run(ctx context.Context, username, password string) error {
	posterCfg := a.cfg.Poster.WithCredentials(username, password)
	if err := posterCfg.RequireCredentials(); err != nil {
		return err
	}

	ledger, closeLedger, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	defer closeLedger()

	poster := service.NewPoster(
		client.NewStatusClient(posterCfg.URL, posterCfg.Username, posterCfg.Password, posterCfg.Timeout),
		a.repo,
		posterCfg.ContentMax,
	).
		WithLedger(ledger).
		WithTimeout(posterCfg.Timeout).
		WithLogger(a.log.With().Str("component", "poster").Logger())

	engine := timer.New(timer.WithLogger(a.log.With().Str("component", "timer").Logger()))

	rec, err := scheduler.NewReconciler(engine, a.repo, poster.Deliver, a.log)
	if err != nil {
		return err
	}
	sched, err := scheduler.New(engine, rec, a.cfg.Scheduler.Interval, a.log)
	if err != nil {
		return err
	}
	sched.WithCronSpec(a.cfg.Scheduler.Schedule)

	var srv *http.Server
	srvErr := make(chan error, 1)
	if addr := a.cfg.Server.Address; addr != "" {
		srv = &http.Server{
			Addr:              addr,
			Handler:           api.Router(api.NewHandler(sched, a.repo), a.log.With().Str("component", "http").Logger()),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.log.Info().Str("addr", addr).Msg("http server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				srvErr <- err
			}
		}()
	}

	if !sched.Start() {
		return errors.New("scheduler already running")
	}
	a.log.Info().
		Str("store", a.cfg.Store.Driver).
		Str("interval", a.cfg.Scheduler.Interval.String()).
		Bool("redis", a.cfg.Redis.Enabled).
		Msg("tweet scheduler running")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-srvErr:
		runErr = fmt.Errorf("http server: %w", runErr)
	case runErr = <-sched.Errors():
		runErr = fmt.Errorf("scheduler: %w", runErr)
	}

	sched.Stop()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Warn().Err(err).Msg("http server shutdown")
		}
	}
	return runErr
}

func (a *App) openLedger(ctx context.Context) (cache.DeliveryLedger, func(), error) {
	rc := a.cfg.Redis
	if !rc.Enabled {
		return cache.NopLedger{}, func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     rc.Address,
		Password: rc.Password,
		DB:       rc.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", rc.Address, err)
	}

	owner := uuid.NewString()
	a.log.Info().Str("addr", rc.Address).Str("owner", owner).Msg("delivery ledger enabled")

	ledger := cache.NewRedisLedger(rdb, rc.TTL, owner).WithClaimTTL(rc.ClaimTTL)
	return ledger, func() { _ = rdb.Close() }, nil
}
