package repo

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/LeventeLantos/tweet-scheduler/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tweets (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	message    TEXT    NOT NULL,
	send_at    INTEGER NOT NULL,
	sent       INTEGER NOT NULL DEFAULT 0,
	attempts   INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	sent_at    INTEGER,
	remote_id  TEXT,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tweets_unsent ON tweets(sent, send_at);
`

// SQLiteTweetRepo stores tweets in a local SQLite file. Timestamps are kept as
// unix milliseconds in UTC.
type SQLiteTweetRepo struct {
	db     *sql.DB
	maxLen int
}

func NewSQLiteTweetRepo(ctx context.Context, path string, maxLen int) (*SQLiteTweetRepo, error) {
	if path == "" {
		path = "tweets.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, unavailable("create store dir", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, unavailable("open sqlite", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, unavailable("ping sqlite", err)
	}
	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, unavailable("pragma", err)
		}
	}

	return &SQLiteTweetRepo{db: db, maxLen: maxLen}, nil
}

func (r *SQLiteTweetRepo) Install(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqliteSchema); err != nil {
		return unavailable("install schema", err)
	}
	return nil
}

func (r *SQLiteTweetRepo) Create(ctx context.Context, message string, sendAt time.Time) (model.Tweet, error) {
	if err := validateMessage(message, r.maxLen); err != nil {
		return model.Tweet{}, err
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO tweets (message, send_at, sent, created_at)
		VALUES (?, ?, 0, ?)
	`, message, sendAt.UTC().UnixMilli(), now.UnixMilli())
	if err != nil {
		return model.Tweet{}, unavailable("create tweet", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Tweet{}, unavailable("create tweet", err)
	}

	return model.Tweet{
		ID:        id,
		Message:   message,
		SendAt:    time.UnixMilli(sendAt.UTC().UnixMilli()).UTC(),
		CreatedAt: time.UnixMilli(now.UnixMilli()).UTC(),
	}, nil
}

func (r *SQLiteTweetRepo) Upcoming(ctx context.Context) ([]model.Tweet, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, message, send_at, sent, attempts, last_error, sent_at, remote_id, created_at
		FROM tweets
		WHERE sent = 0
		ORDER BY send_at ASC, id ASC
	`)
	if err != nil {
		return nil, unavailable("query upcoming", err)
	}
	defer rows.Close()

	return collectSQLite(rows, "query upcoming")
}

func (r *SQLiteTweetRepo) FindByID(ctx context.Context, id int64) (model.Tweet, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, message, send_at, sent, attempts, last_error, sent_at, remote_id, created_at
		FROM tweets
		WHERE id = ?
	`, id)

	t, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Tweet{}, notFound(id)
	}
	if err != nil {
		return model.Tweet{}, unavailable("find tweet", err)
	}
	return t, nil
}

func (r *SQLiteTweetRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tweets WHERE id = ?`, id)
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

// MarkSent flips sent once. Marking an already sent tweet is a no-op.
func (r *SQLiteTweetRepo) MarkSent(ctx context.Context, id int64, remoteID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tweets
		SET sent = 1,
		    sent_at = ?,
		    remote_id = ?
		WHERE id = ? AND sent = 0
	`, time.Now().UTC().UnixMilli(), nullString(remoteID), id)
	if err != nil {
		return unavailable("mark sent", err)
	}
	return r.checkUpdated(ctx, res, id)
}

func (r *SQLiteTweetRepo) MarkFailed(ctx context.Context, id int64, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tweets
		SET attempts = attempts + 1,
		    last_error = ?
		WHERE id = ? AND sent = 0
	`, reason, id)
	if err != nil {
		return unavailable("mark failed", err)
	}
	return r.checkUpdated(ctx, res, id)
}

func (r *SQLiteTweetRepo) ListSent(ctx context.Context, limit, offset int) ([]model.Tweet, error) {
	limit, offset = pageArgs(limit, offset)

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, message, send_at, sent, attempts, last_error, sent_at, remote_id, created_at
		FROM tweets
		WHERE sent = 1
		ORDER BY sent_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, unavailable("list sent", err)
	}
	defer rows.Close()

	return collectSQLite(rows, "list sent")
}

func (r *SQLiteTweetRepo) Close() error {
	return r.db.Close()
}

// checkUpdated distinguishes "already sent" (fine) from "deleted" (not found)
// when a conditional update touched no rows.
func (r *SQLiteTweetRepo) checkUpdated(ctx context.Context, res sql.Result, id int64) error {
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(s rowScanner) (model.Tweet, error) {
	var (
		t         model.Tweet
		sendAt    int64
		sent      int64
		lastErr   sql.NullString
		sentAt    sql.NullInt64
		remoteID  sql.NullString
		createdAt int64
	)
	if err := s.Scan(&t.ID, &t.Message, &sendAt, &sent, &t.Attempts, &lastErr, &sentAt, &remoteID, &createdAt); err != nil {
		return model.Tweet{}, err
	}

	t.SendAt = time.UnixMilli(sendAt).UTC()
	t.Sent = sent != 0
	t.CreatedAt = time.UnixMilli(createdAt).UTC()
	if lastErr.Valid {
		msg := lastErr.String
		t.LastError = &msg
	}
	if sentAt.Valid {
		ts := time.UnixMilli(sentAt.Int64).UTC()
		t.SentAt = &ts
	}
	if remoteID.Valid {
		id := remoteID.String
		t.RemoteID = &id
	}
	return t, nil
}

func collectSQLite(rows *sql.Rows, op string) ([]model.Tweet, error) {
	var out []model.Tweet
	for rows.Next() {
		t, err := scanSQLite(rows)
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

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
