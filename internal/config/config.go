package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
)

type Config struct {
	Store     StoreConfig
	Poster    PosterConfig
	Scheduler SchedulerConfig
	Redis     RedisConfig
	Server    ServerConfig
	Log       LogConfig
}

type StoreConfig struct {
	Driver      string `env:"STORE_DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"tweets.db"`
	PostgresURL string `env:"POSTGRES_URL"`
}

type PosterConfig struct {
	URL        string        `env:"POSTER_URL" envDefault:"https://api.twitter.com/1.1/statuses/update.json"`
	Username   string        `env:"POSTER_USERNAME"`
	Password   string        `env:"POSTER_PASSWORD"`
	Timeout    time.Duration `env:"POST_TIMEOUT" envDefault:"10s"`
	ContentMax int           `env:"CONTENT_MAX" envDefault:"140"`
}

type SchedulerConfig struct {
	Interval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1m"`
	Schedule string        `env:"RECONCILE_SCHEDULE"`
}

type RedisConfig struct {
	Enabled  bool          `env:"-"`
	Address  string        `env:"REDIS_ADDR"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	TTL      time.Duration `env:"REDIS_TTL" envDefault:"24h"`
	ClaimTTL time.Duration `env:"REDIS_CLAIM_TTL" envDefault:"1m"`
}

type ServerConfig struct {
	Address string `env:"HTTP_ADDR"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
}

func LoadAll() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Redis.Enabled = cfg.Redis.Address != ""

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WithCredentials overrides the env credentials with non-empty arguments.
func (p PosterConfig) WithCredentials(username, password string) PosterConfig {
	if username != "" {
		p.Username = username
	}
	if password != "" {
		p.Password = password
	}
	return p
}

func (p PosterConfig) RequireCredentials() error {
	var errs []error
	if strings.TrimSpace(p.Username) == "" {
		errs = append(errs, errors.New("missing poster username: pass it to run or set POSTER_USERNAME"))
	}
	if p.Password == "" {
		errs = append(errs, errors.New("missing poster password: pass it to run or set POSTER_PASSWORD"))
	}
	return joinErrors(errs)
}

func validate(cfg *Config) error {
	var errs []error

	switch strings.ToLower(cfg.Store.Driver) {
	case "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Store.SQLitePath) == "" {
			errs = append(errs, errors.New("SQLITE_PATH must not be empty"))
		}
	case "postgres", "postgresql", "pgx":
		if cfg.Store.PostgresURL == "" {
			errs = append(errs, errors.New("missing required env var: POSTGRES_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be sqlite or postgres, got %q", cfg.Store.Driver))
	}

	if cfg.Poster.URL == "" {
		errs = append(errs, errors.New("POSTER_URL must not be empty"))
	}
	if cfg.Poster.Timeout <= 0 {
		errs = append(errs, errors.New("POST_TIMEOUT must be > 0"))
	}
	if cfg.Poster.ContentMax <= 0 {
		errs = append(errs, errors.New("CONTENT_MAX must be > 0"))
	}

	if cfg.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("RECONCILE_INTERVAL must be > 0"))
	}
	if spec := cfg.Scheduler.Schedule; spec != "" {
		parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(spec); err != nil {
			errs = append(errs, fmt.Errorf("RECONCILE_SCHEDULE %q: %w", spec, err))
		}
	}

	if cfg.Redis.Enabled {
		if cfg.Redis.TTL <= 0 {
			errs = append(errs, errors.New("REDIS_TTL must be > 0"))
		}
		if cfg.Redis.ClaimTTL <= 0 {
			errs = append(errs, errors.New("REDIS_CLAIM_TTL must be > 0"))
		}
		if cfg.Redis.DB < 0 {
			errs = append(errs, errors.New("REDIS_DB must be >= 0"))
		}
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be console or json, got %q", cfg.Log.Format))
	}

	return joinErrors(errs)
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
