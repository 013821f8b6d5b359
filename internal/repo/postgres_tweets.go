package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/LeventeLantos/tweet-scheduler/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS tweets (
	id         BIGSERIAL PRIMARY KEY,
	message    TEXT        NOT NULL,
	send_at    TIMESTAMPTZ NOT NULL,
	sent       BOOLEAN     NOT NULL DEFAULT FALSE,
	attempts   INTEGER     NOT NULL DEFAULT 0,
	last_error TEXT,
	sent_at    TIMESTAMPTZ,
	remote_id  TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_tweets_unsent ON tweets (send_at) WHERE NOT sent;
`

type PostgresTweetRepo struct {
	db     *sql.DB
	maxLen int
}

func NewPostgresTweetRepo(ctx context.Context, url string, maxLen int) (*PostgresTweetRepo, error) {
	if url == "" {
		return nil, errors.New("postgres url is required")
	}
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, unavailable("open postgres", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, unavailable("ping postgres", err)
	}
	return &PostgresTweetRepo{db: db, maxLen: maxLen}, nil
}

func (r *PostgresTweetRepo) Install(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, postgresSchema); err != nil {
		return unavailable("install schema", err)
	}
	return nil
}

func (r *PostgresTweetRepo) Create(ctx context.Context, message string, sendAt time.Time) (model.Tweet, error) {
	if err := validateMessage(message, r.maxLen); err != nil {
		return model.Tweet{}, err
	}

	t := model.Tweet{Message: message}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO tweets (message, send_at)
		VALUES ($1, $2)
		RETURNING id, send_at, created_at
	`, message, sendAt.UTC()).Scan(&t.ID, &t.SendAt, &t.CreatedAt)
	if err != nil {
		return model.Tweet{}, unavailable("create tweet", err)
	}
	t.SendAt = t.SendAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func (r *PostgresTweetRepo) Upcoming(ctx context.Context) ([]model.Tweet, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, message, send_at, sent, attempts, last_error, sent_at, remote_id, created_at
		FROM tweets
		WHERE NOT sent
		ORDER BY send_at ASC, id ASC
	`)
	if err != nil {
		return nil, unavailable("query upcoming", err)
	}
	defer rows.Close()

	return collectPostgres(rows, "query upcoming")
}

func (r *PostgresTweetRepo) FindByID(ctx context.Context, id int64) (model.Tweet, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, message, send_at, sent, attempts, last_error, sent_at, remote_id, created_at
		FROM tweets
		WHERE id = $1
	`, id)

	t, err := scanPostgres(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Tweet{}, notFound(id)
	}
	if err != nil {
		return model.Tweet{}, unavailable("find tweet", err)
	}
	return t, nil
}

func (r *PostgresTweetRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tweets WHERE id = $1`, id)
	if err != nil {
		return unavailable("delete tweet", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("delete tweet", err)
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

func (r *PostgresTweetRepo) MarkSent(ctx context.Context, id int64, remoteID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tweets
		SET sent = TRUE,
		    sent_at = now(),
		    remote_id = $2
		WHERE id = $1 AND NOT sent
	`, id, nullString(remoteID))
	if err != nil {
		return unavailable("mark sent", err)
	}
	return r.checkUpdated(ctx, res, id)
}

func (r *PostgresTweetRepo) MarkFailed(ctx context.Context, id int64, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tweets
		SET attempts = attempts + 1,
		    last_error = $2
		WHERE id = $1 AND NOT sent
	`, id, reason)
	if err != nil {
		return unavailable("mark failed", err)
	}
	return r.checkUpdated(ctx, res, id)
}

func (r *PostgresTweetRepo) ListSent(ctx context.Context, limit, offset int) ([]model.Tweet, error) {
	limit, offset = pageArgs(limit, offset)

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, message, send_at, sent, attempts, last_error, sent_at, remote_id, created_at
		FROM tweets
		WHERE sent
		ORDER BY sent_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, unavailable("list sent", err)
	}
	defer rows.Close()

	return collectPostgres(rows, "list sent")
}

func (r *PostgresTweetRepo) Close() error {
	return r.db.Close()
}

func (r *PostgresTweetRepo) checkUpdated(ctx context.Context, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("rows affected", err)
	}
	if n > 0 {
		return nil
	}
	_, err = r.FindByID(ctx, id)
	return err
}

func scanPostgres(s rowScanner) (model.Tweet, error) {
	var (
		t        model.Tweet
		lastErr  sql.NullString
		sentAt   sql.NullTime
		remoteID sql.NullString
	)
	if err := s.Scan(&t.ID, &t.Message, &t.SendAt, &t.Sent, &t.Attempts, &lastErr, &sentAt, &remoteID, &t.CreatedAt); err != nil {
		return model.Tweet{}, err
	}

	t.SendAt = t.SendAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	if lastErr.Valid {
		s := lastErr.String
		t.LastError = &s
	}
	if sentAt.Valid {
		ts := sentAt.Time.UTC()
		t.SentAt = &ts
	}
	if remoteID.Valid {
		s := remoteID.String
		t.RemoteID = &s
	}
	return t, nil
}

func collectPostgres(rows *sql.Rows, op string) ([]model.Tweet, error) {
	var out []model.Tweet
	for rows.Next() {
		t, err := scanPostgres(rows)
		if err != nil {
			return nil, unavailable(op, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return out, nil
}
