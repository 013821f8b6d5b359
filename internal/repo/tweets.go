package repo

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/LeventeLantos/tweet-scheduler/internal/model"
)

type TweetRepository interface {
	Install(ctx context.Context) error
	Create(ctx context.Context, message string, sendAt time.Time) (model.Tweet, error)
	Upcoming(ctx context.Context) ([]model.Tweet, error)
	FindByID(ctx context.Context, id int64) (model.Tweet, error)
	Delete(ctx context.Context, id int64) error
	MarkSent(ctx context.Context, id int64, remoteID string) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	ListSent(ctx context.Context, limit, offset int) ([]model.Tweet, error)
	Close() error
}

func validateMessage(message string, max int) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: message must not be empty", model.ErrValidation)
	}
	if n := utf8.RuneCountInString(message); n > max {
		return fmt.Errorf("%w: message is %d chars, limit is %d", model.ErrValidation, n, max)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", model.ErrStoreUnavailable, op, err)
}

func notFound(id int64) error {
	return fmt.Errorf("%w: tweet %d", model.ErrNotFound, id)
}

func pageArgs(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
