package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/LeventeLantos/tweet-scheduler/internal/clock"
	"github.com/LeventeLantos/tweet-scheduler/internal/model"
	"github.com/LeventeLantos/tweet-scheduler/internal/timer"
)

var epoch = time.Date(2026, 2, 2, 18, 0, 0, 0, time.UTC)

// memStore is an in-memory TweetSource that also records deliveries.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	tweets map[int64]model.Tweet
	err    error

	delivered chan int64
	sentLog   []int64
}

func newMemStore() *memStore {
	return &memStore{tweets: map[int64]model.Tweet{}, delivered: make(chan int64, 64)}
}

func (m *memStore) add(message string, sendAt time.Time) model.Tweet {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t := model.Tweet{ID: m.nextID, Message: message, SendAt: sendAt}
	m.tweets[t.ID] = t
	return t
}

func (m *memStore) remove(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tweets, id)
}

func (m *memStore) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *memStore) Upcoming(context.Context) ([]model.Tweet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []model.Tweet
	for _, t := range m.tweets {
		if !t.Sent {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) FindByID(_ context.Context, id int64) (model.Tweet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return model.Tweet{}, m.err
	}
	t, ok := m.tweets[id]
	if !ok {
		return model.Tweet{}, fmt.Errorf("%w: tweet %d", model.ErrNotFound, id)
	}
	return t, nil
}

// deliver marks the tweet sent, the way a successful Poster would.
func (m *memStore) deliver(_ context.Context, t model.Tweet) error {
	m.mu.Lock()
	cur := m.tweets[t.ID]
	cur.Sent = true
	m.tweets[t.ID] = cur
	m.sentLog = append(m.sentLog, t.ID)
	m.mu.Unlock()

	m.delivered <- t.ID
	return nil
}

func (m *memStore) sentCount(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, got := range m.sentLog {
		if got == id {
			n++
		}
	}
	return n
}

func (m *memStore) unsent() []model.Tweet {
	ts, _ := m.Upcoming(context.Background())
	return ts
}

func waitDelivered(t *testing.T, m *memStore, id int64) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-m.delivered:
			if got == id {
				return
			}
		case <-deadline:
			t.Fatalf("timeout waiting for delivery of tweet %d", id)
		}
	}
}

type fixture struct {
	clk    *clock.Fake
	engine *timer.Engine
	store  *memStore
	rec    *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(epoch)
	engine := timer.New(timer.WithClock(clk))
	store := newMemStore()
	rec, err := NewReconciler(engine, store, store.deliver, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewReconciler: %v", err)
	}
	rec.now = clk.Now
	return &fixture{clk: clk, engine: engine, store: store, rec: rec}
}

func (f *fixture) runEngine(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Errorf("engine did not stop")
		}
	})
}

// settle waits until the engine applied every pending request and fired
// everything due at the current fake time.
func (f *fixture) settle(t *testing.T) {
	t.Helper()
	fired := make(chan struct{})
	if _, err := f.engine.ScheduleAt(f.clk.Now(), func(context.Context) { close(fired) }); err != nil {
		t.Fatalf("ScheduleAt: %v", err)
	}
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("engine did not settle")
	}
	if err := f.engine.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}
