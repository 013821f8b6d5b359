package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/LeventeLantos/tweet-scheduler/internal/model"
)

type Config struct {
	Driver           string
	SQLitePath       string
	PostgresURL      string
	MaxMessageLength int
}

// Open connects to the configured store. The schema is not installed; call
// Install before use.
func Open(ctx context.Context, cfg Config) (TweetRepository, error) {
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = model.MaxMessageLength
	}

	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "sqlite", "sqlite3":
		return NewSQLiteTweetRepo(ctx, cfg.SQLitePath, cfg.MaxMessageLength)
	case "postgres", "postgresql", "pgx":
		return NewPostgresTweetRepo(ctx, cfg.PostgresURL, cfg.MaxMessageLength)
	default:
		return nil, fmt.Errorf("unknown store driver: %q", cfg.Driver)
	}
}
