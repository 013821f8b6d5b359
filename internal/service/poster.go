package service

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/LeventeLantos/tweet-scheduler/internal/cache"
	"github.com/LeventeLantos/tweet-scheduler/internal/metrics"
	"github.com/LeventeLantos/tweet-scheduler/internal/model"
)

const defaultPostTimeout = 10 * time.Second

type PostClient interface {
	Post(ctx context.Context, message string) (remoteID string, err error)
}

// DeliveryStore is the part of the record store the poster writes to.
type DeliveryStore interface {
	MarkSent(ctx context.Context, id int64, remoteID string) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

// Poster delivers a single tweet. A record is marked sent only after the
// posting API confirmed it.
type Poster struct {
	client     PostClient
	store      DeliveryStore
	ledger     cache.DeliveryLedger
	contentMax int
	timeout    time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

func NewPoster(client PostClient, store DeliveryStore, contentMax int) *Poster {
	if contentMax <= 0 {
		contentMax = model.MaxMessageLength
	}
	return &Poster{
		client:     client,
		store:      store,
		ledger:     cache.NopLedger{},
		contentMax: contentMax,
		timeout:    defaultPostTimeout,
		now:        time.Now,
		log:        zerolog.Nop(),
	}
}

func (p *Poster) WithLedger(l cache.DeliveryLedger) *Poster {
	if l != nil {
		p.ledger = l
	}
	return p
}

func (p *Poster) WithTimeout(d time.Duration) *Poster {
	if d > 0 {
		p.timeout = d
	}
	return p
}

func (p *Poster) WithLogger(log zerolog.Logger) *Poster {
	p.log = log
	return p
}

func (p *Poster) WithNow(now func() time.Time) *Poster {
	if now != nil {
		p.now = now
	}
	return p
}

// Deliver posts t unless a receipt shows it already went out or another worker
// holds its claim. Post failures are recorded on the tweet and returned wrapped
// in model.ErrPostFailure; the tweet stays unsent.
func (p *Poster) Deliver(ctx context.Context, t model.Tweet) error {
	if t.Sent {
		return nil
	}
	log := p.log.With().Int64("tweet_id", t.ID).Logger()

	if n := utf8.RuneCountInString(t.Message); n > p.contentMax {
		reason := fmt.Sprintf("content exceeds %d chars", p.contentMax)
		metrics.TweetsFailed.WithLabelValues("validation").Inc()
		p.fail(ctx, log, t.ID, reason)
		return fmt.Errorf("%w: tweet %d: %s", model.ErrValidation, t.ID, reason)
	}

	remoteID, ok, err := p.ledger.Receipt(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("lookup receipt for tweet %d: %w", t.ID, err)
	}
	if ok {
		metrics.TweetsSkipped.WithLabelValues("receipt").Inc()
		log.Info().Str("remote_id", remoteID).Msg("tweet already posted, marking sent")
		return p.store.MarkSent(ctx, t.ID, remoteID)
	}

	claimed, err := p.ledger.Claim(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("claim tweet %d: %w", t.ID, err)
	}
	if !claimed {
		metrics.TweetsSkipped.WithLabelValues("claimed").Inc()
		log.Debug().Msg("tweet claimed by another worker")
		return nil
	}
	defer func() {
		if err := p.ledger.Release(context.WithoutCancel(ctx), t.ID); err != nil {
			log.Warn().Err(err).Msg("release claim failed")
		}
	}()

	postCtx, cancel := context.WithTimeout(ctx, p.timeout)
	start := time.Now()
	remoteID, err = p.client.Post(postCtx, t.Message)
	cancel()
	metrics.PostLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.TweetsFailed.WithLabelValues("post").Inc()
		p.fail(ctx, log, t.ID, err.Error())
		return fmt.Errorf("%w: tweet %d: %w", model.ErrPostFailure, t.ID, err)
	}

	if err := p.ledger.StoreSent(ctx, t.ID, remoteID, p.now()); err != nil {
		log.Warn().Err(err).Msg("store receipt failed")
	}
	if err := p.store.MarkSent(ctx, t.ID, remoteID); err != nil {
		metrics.TweetsFailed.WithLabelValues("store").Inc()
		log.Error().Err(err).Str("remote_id", remoteID).Msg("tweet posted but mark sent failed")
		return err
	}

	metrics.TweetsPosted.Inc()
	log.Info().Str("remote_id", remoteID).Msg("tweet posted")
	return nil
}

func (p *Poster) fail(ctx context.Context, log zerolog.Logger, id int64, reason string) {
	log.Warn().Str("reason", reason).Msg("tweet delivery failed")
	if err := p.store.MarkFailed(ctx, id, reason); err != nil {
		log.Error().Err(err).Msg("mark failed")
	}
}
