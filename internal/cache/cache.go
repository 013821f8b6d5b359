package cache

import (
	"context"
	"time"
)

// DeliveryLedger remembers confirmed posts outside the record store and lets
// concurrent schedulers claim a tweet before posting it.
type DeliveryLedger interface {
	Receipt(ctx context.Context, tweetID int64) (remoteID string, ok bool, err error)
	StoreSent(ctx context.Context, tweetID int64, remoteID string, sentAt time.Time) error
	Claim(ctx context.Context, tweetID int64) (bool, error)
	Release(ctx context.Context, tweetID int64) error
}

// NopLedger is used when no Redis is configured: every claim succeeds and no
// receipts are kept.
type NopLedger struct{}

func (NopLedger) Receipt(context.Context, int64) (string, bool, error) { return "", false, nil }

func (NopLedger) StoreSent(context.Context, int64, string, time.Time) error { return nil }

func (NopLedger) Claim(context.Context, int64) (bool, error) { return true, nil }

func (NopLedger) Release(context.Context, int64) error { return nil }
