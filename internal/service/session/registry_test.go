package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a settable clock for registry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func TestRegistry_CreateGetRemove(t *testing.T) {
	r := NewRegistry(nil)

	s, err := r.Create("a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ID != "a" {
		t.Errorf("expected id 'a', got %s", s.ID)
	}

	if _, err := r.Create("a"); !errors.Is(err, ErrExists) {
		t.Errorf("expected ErrExists on duplicate, got %v", err)
	}

	got, ok := r.Get("a")
	if !ok || got != s {
		t.Error("expected Get to return the created session")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 session, got %d", r.Len())
	}

	removed, ok := r.Remove("a")
	if !ok || removed != s {
		t.Error("expected first Remove to return the session")
	}
	if _, ok := r.Remove("a"); ok {
		t.Error("expected second Remove to report not found")
	}
	if _, ok := r.Get("a"); ok {
		t.Error("expected session gone after Remove")
	}
}

func TestRegistry_ConcurrentRemove_FirstCallerWins(t *testing.T) {
	r := NewRegistry(nil)
	r.Create("a")

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.Remove("a"); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one winner, got %d", wins)
	}
}

func TestSweeper_RemovesOnlyExpired(t *testing.T) {
	clock := &fakeClock{now: testEpoch}
	r := NewRegistry(clock.Now)

	r.Create("A")
	clock.Set(testEpoch.Add(20 * time.Minute))
	r.Create("B")

	var torn []string
	sw := NewSweeper(r, 5*time.Minute, 30*time.Minute, func(id string) {
		torn = append(torn, id)
		r.Remove(id)
	})

	swept := sw.Sweep(testEpoch.Add(31 * time.Minute))

	if len(swept) != 1 || swept[0] != "A" {
		t.Errorf("expected only A swept, got %v", swept)
	}
	if len(torn) != 1 || torn[0] != "A" {
		t.Errorf("expected teardown called for A only, got %v", torn)
	}
	if _, ok := r.Get("A"); ok {
		t.Error("expected A removed")
	}
	if _, ok := r.Get("B"); !ok {
		t.Error("expected B kept")
	}
}

func TestRegistry_Expired_BoundaryIsExclusive(t *testing.T) {
	r := NewRegistry(func() time.Time { return testEpoch })
	r.Create("a")

	if got := r.Expired(testEpoch.Add(30*time.Minute), 30*time.Minute); len(got) != 0 {
		t.Errorf("expected session at exactly max age to be kept, got %v", got)
	}
	if got := r.Expired(testEpoch.Add(30*time.Minute+time.Second), 30*time.Minute); len(got) != 1 {
		t.Errorf("expected session past max age to expire, got %v", got)
	}
}

func TestSweeper_Run(t *testing.T) {
	r := NewRegistry(func() time.Time { return testEpoch })
	r.Create("old")

	done := make(chan string, 1)
	sw := NewSweeper(r, 10*time.Millisecond, time.Nanosecond, func(id string) {
		if _, ok := r.Remove(id); ok {
			done <- id
		}
	})
	// Registry clock is frozen at creation time; advance it for the sweep.
	r.now = func() time.Time { return testEpoch.Add(time.Hour) }

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- sw.Run(ctx) }()

	select {
	case id := <-done:
		if id != "old" {
			t.Errorf("expected 'old' swept, got %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sweep")
	}

	cancel()
	if err := <-errc; err != nil {
		t.Errorf("expected nil error on cancel, got %v", err)
	}
}

func TestNewSweeper_Defaults(t *testing.T) {
	sw := NewSweeper(NewRegistry(nil), 0, 0, func(string) {})
	if sw.interval != DefaultSweepInterval {
		t.Errorf("expected default interval, got %v", sw.interval)
	}
	if sw.maxAge != DefaultMaxAge {
		t.Errorf("expected default max age, got %v", sw.maxAge)
	}
}
