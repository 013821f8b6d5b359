package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/LeventeLantos/tweet-scheduler/internal/model"
)

func newSQLiteRepo(t *testing.T) *SQLiteTweetRepo {
	t.Helper()

	ctx := context.Background()
	r, err := NewSQLiteTweetRepo(ctx, filepath.Join(t.TempDir(), "tweets.db"), model.MaxMessageLength)
	if err != nil {
		t.Fatalf("NewSQLiteTweetRepo() error: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })

	if err := r.Install(ctx); err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	return r
}

func TestSQLite_InstallIsIdempotent(t *testing.T) {
	t.Parallel()

	r := newSQLiteRepo(t)
	ctx := context.Background()

	if _, err := r.Create(ctx, "hello", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := r.Install(ctx); err != nil {
		t.Fatalf("second Install() error: %v", err)
	}

	items, err := r.Upcoming(ctx)
	if err != nil {
		t.Fatalf("Upcoming() error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected existing row to survive reinstall, got %d rows", len(items))
	}
}

func TestSQLite_PragmasApplied(t *testing.T) {
	t.Parallel()

	r := newSQLiteRepo(t)
	ctx := context.Background()

	var busy int
	if err := r.db.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busy); err != nil {
		t.Fatalf("read busy_timeout: %v", err)
	}
	if busy != 5000 {
		t.Fatalf("expected busy_timeout 5000, got %d", busy)
	}

	var mode string
	if err := r.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("read journal_mode: %v", err)
	}
	if !strings.EqualFold(mode, "wal") {
		t.Fatalf("expected wal journal mode, got %q", mode)
	}
}

func TestSQLite_CreateMessageLengthBoundary(t *testing.T) {
	t.Parallel()

	r := newSQLiteRepo(t)
	ctx := context.Background()
	at := time.Now().Add(time.Hour)

	if _, err := r.Create(ctx, strings.Repeat("a", 140), at); err != nil {
		t.Fatalf("expected 140 chars to be accepted, got %v", err)
	}

	_, err := r.Create(ctx, strings.Repeat("a", 141), at)
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation for 141 chars, got %v", err)
	}

	// Limit counts characters, not bytes.
	if _, err := r.Create(ctx, strings.Repeat("é", 140), at); err != nil {
		t.Fatalf("expected 140 multibyte chars to be accepted, got %v", err)
	}

	if _, err := r.Create(ctx, "   ", at); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation for blank message, got %v", err)
	}

	items, err := r.Upcoming(ctx)
	if err != nil {
		t.Fatalf("Upcoming() error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected rejected messages not to be persisted, got %d rows", len(items))
	}
}

func TestSQLite_CreateAssignsIDsAndRoundTripsTime(t *testing.T) {
	t.Parallel()

	r := newSQLiteRepo(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 2, 18, 30, 0, 0, time.UTC)

	first, err := r.Create(ctx, "hello", at)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if first.ID != 1 {
		t.Fatalf("expected first id 1, got %d", first.ID)
	}
	if first.Sent {
		t.Fatalf("expected new tweet to be unsent")
	}

	got, err := r.FindByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("FindByID() error: %v", err)
	}
	if got.Message != "hello" || !got.SendAt.Equal(at) || got.Sent {
		t.Fatalf("unexpected tweet: %+v", got)
	}
}

func TestSQLite_UpcomingIncludesOverdueAndExcludesSent(t *testing.T) {
	t.Parallel()

	r := newSQLiteRepo(t)
	ctx := context.Background()
	now := time.Now()

	overdue, _ := r.Create(ctx, "overdue", now.Add(-time.Hour))
	future, _ := r.Create(ctx, "future", now.Add(time.Hour))
	done, _ := r.Create(ctx, "done", now.Add(-2*time.Hour))

	if err := r.MarkSent(ctx, done.ID, "remote-1"); err != nil {
		t.Fatalf("MarkSent() error: %v", err)
	}

	items, err := r.Upcoming(ctx)
	if err != nil {
		t.Fatalf("Upcoming() error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 upcoming, got %d: %+v", len(items), items)
	}

	ids := map[int64]bool{}
	for _, it := range items {
		ids[it.ID] = true
	}
	if !ids[overdue.ID] || !ids[future.ID] || ids[done.ID] {
		t.Fatalf("unexpected upcoming set: %+v", items)
	}
}

func TestSQLite_DeleteAndNotFound(t *testing.T) {
	t.Parallel()

	r := newSQLiteRepo(t)
	ctx := context.Background()

	if err := r.Delete(ctx, 999999); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting unknown id, got %v", err)
	}
	if _, err := r.FindByID(ctx, 999999); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound finding unknown id, got %v", err)
	}

	tw, _ := r.Create(ctx, "bye", time.Now().Add(time.Hour))
	if err := r.Delete(ctx, tw.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := r.FindByID(ctx, tw.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected deleted tweet to be gone, got %v", err)
	}
}

func TestSQLite_MarkSentNeverReverts(t *testing.T) {
	t.Parallel()

	r := newSQLiteRepo(t)
	ctx := context.Background()

	tw, _ := r.Create(ctx, "once", time.Now())

	if err := r.MarkSent(ctx, tw.ID, "first"); err != nil {
		t.Fatalf("MarkSent() error: %v", err)
	}
	if err := r.MarkSent(ctx, tw.ID, "second"); err != nil {
		t.Fatalf("second MarkSent() should be a no-op, got %v", err)
	}
	if err := r.MarkFailed(ctx, tw.ID, "late failure"); err != nil {
		t.Fatalf("MarkFailed() on sent tweet should be a no-op, got %v", err)
	}

	got, err := r.FindByID(ctx, tw.ID)
	if err != nil {
		t.Fatalf("FindByID() error: %v", err)
	}
	if !got.Sent {
		t.Fatalf("expected tweet to stay sent")
	}
	if got.RemoteID == nil || *got.RemoteID != "first" {
		t.Fatalf("expected remote id from first send, got %v", got.RemoteID)
	}
	if got.SentAt == nil {
		t.Fatalf("expected sent_at to be set")
	}
	if got.Attempts != 0 || got.LastError != nil {
		t.Fatalf("expected failure bookkeeping untouched, got attempts=%d lastError=%v", got.Attempts, got.LastError)
	}

	if err := r.MarkSent(ctx, 424242, "x"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestSQLite_MarkFailedKeepsTweetPending(t *testing.T) {
	t.Parallel()

	r := newSQLiteRepo(t)
	ctx := context.Background()

	tw, _ := r.Create(ctx, "flaky", time.Now())

	for i := 0; i < 2; i++ {
		if err := r.MarkFailed(ctx, tw.ID, "api down"); err != nil {
			t.Fatalf("MarkFailed() error: %v", err)
		}
	}

	got, err := r.FindByID(ctx, tw.ID)
	if err != nil {
		t.Fatalf("FindByID() error: %v", err)
	}
	if got.Sent {
		t.Fatalf("failed tweet must stay unsent")
	}
	if got.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", got.Attempts)
	}
	if got.LastError == nil || *got.LastError != "api down" {
		t.Fatalf("unexpected last error: %v", got.LastError)
	}

	items, _ := r.Upcoming(ctx)
	if len(items) != 1 {
		t.Fatalf("expected failed tweet to remain upcoming, got %d", len(items))
	}
}

func TestSQLite_ListSent(t *testing.T) {
	t.Parallel()

	r := newSQLiteRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tw, _ := r.Create(ctx, "m", time.Now())
		if err := r.MarkSent(ctx, tw.ID, ""); err != nil {
			t.Fatalf("MarkSent() error: %v", err)
		}
	}
	_, _ = r.Create(ctx, "pending", time.Now())

	all, err := r.ListSent(ctx, 0, -1)
	if err != nil {
		t.Fatalf("ListSent() error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 sent, got %d", len(all))
	}
	for _, it := range all {
		if it.RemoteID != nil {
			t.Fatalf("expected empty remote id to be stored as NULL, got %q", *it.RemoteID)
		}
	}

	page, err := r.ListSent(ctx, 2, 2)
	if err != nil {
		t.Fatalf("ListSent() error: %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("expected 1 item on second page, got %d", len(page))
	}
}

func TestSQLite_UnwritablePathIsStoreUnavailable(t *testing.T) {
	t.Parallel()

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	_, err := NewSQLiteTweetRepo(context.Background(), filepath.Join(blocker, "sub", "tweets.db"), 140)
	if !errors.Is(err, model.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestSQLite_ClosedStoreIsStoreUnavailable(t *testing.T) {
	t.Parallel()

	r := newSQLiteRepo(t)
	_ = r.Close()

	if _, err := r.Upcoming(context.Background()); !errors.Is(err, model.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable after close, got %v", err)
	}
}
