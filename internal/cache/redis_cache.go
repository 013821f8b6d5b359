package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultClaimTTL = time.Minute

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLedger struct {
	rdb      *redis.Client
	ttl      time.Duration
	claimTTL time.Duration
	owner    string
}

// NewRedisLedger keeps receipts for ttl. owner identifies this process in
// claim keys so only the claimer can release them.
func NewRedisLedger(rdb *redis.Client, ttl time.Duration, owner string) *RedisLedger {
	return &RedisLedger{rdb: rdb, ttl: ttl, claimTTL: defaultClaimTTL, owner: owner}
}

// WithClaimTTL bounds how long a crashed claimer can block a tweet.
func (c *RedisLedger) WithClaimTTL(ttl time.Duration) *RedisLedger {
	c.claimTTL = ttl
	return c
}

type sentValue struct {
	RemoteID string    `json:"remoteId"`
	SentAt   time.Time `json:"sentAt"`
}

func receiptKey(id int64) string { return fmt.Sprintf("tweet:%d", id) }

func claimKey(id int64) string { return fmt.Sprintf("tweet:%d:claim", id) }

func (c *RedisLedger) StoreSent(ctx context.Context, tweetID int64, remoteID string, sentAt time.Time) error {
	b, err := json.Marshal(sentValue{
		RemoteID: remoteID,
		SentAt:   sentAt.UTC(),
	})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, receiptKey(tweetID), b, c.ttl).Err()
}

func (c *RedisLedger) Receipt(ctx context.Context, tweetID int64) (string, bool, error) {
	raw, err := c.rdb.Get(ctx, receiptKey(tweetID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	var v sentValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false, fmt.Errorf("decode receipt %s: %w", receiptKey(tweetID), err)
	}
	return v.RemoteID, true, nil
}

func (c *RedisLedger) Claim(ctx context.Context, tweetID int64) (bool, error) {
	return c.rdb.SetNX(ctx, claimKey(tweetID), c.owner, c.claimTTL).Result()
}

func (c *RedisLedger) Release(ctx context.Context, tweetID int64) error {
	return releaseScript.Run(ctx, c.rdb, []string{claimKey(tweetID)}, c.owner).Err()
}
