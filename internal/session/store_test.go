package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/campusaid/campusaid/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestStore(cfg Config) *Store {
	if cfg.MaxSessions == 0 {
		cfg.MaxSessions = 100
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = time.Hour
	}
	return NewStore(cfg, log.NewNop())
}

func TestGetOrCreate(t *testing.T) {
	s := newTestStore(Config{})

	if created := s.GetOrCreate("s1"); !created {
		t.Error("GetOrCreate(new) = false, want true")
	}
	if created := s.GetOrCreate("s1"); created {
		t.Error("GetOrCreate(existing) = true, want false")
	}

	stats := s.Stats()
	if stats.TotalSessions != 1 {
		t.Errorf("TotalSessions = %d, want 1", stats.TotalSessions)
	}
}

func TestAppendTurnAndHistory(t *testing.T) {
	s := newTestStore(Config{})

	s.AppendTurn("s1", "what is the tuition deadline?", "The deadline is the first day of the semester.", nil)
	s.AppendTurn("s1", "and for part-time students?", "The same deadline applies.", nil)

	history, ok := s.History("s1", 0)
	if !ok {
		t.Fatal("History() ok = false, want true")
	}
	if len(history) != 4 {
		t.Fatalf("len(history) = %d, want 4", len(history))
	}
	if history[0].Role != RoleUser || history[1].Role != RoleAssistant {
		t.Errorf("roles = %q, %q, want user, assistant", history[0].Role, history[1].Role)
	}
	if history[2].Content != "and for part-time students?" {
		t.Errorf("history[2].Content = %q", history[2].Content)
	}
}

func TestHistory_Window(t *testing.T) {
	s := newTestStore(Config{})
	for i := range 5 {
		s.AppendTurn("s1", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i), nil)
	}

	history, ok := s.History("s1", 4)
	if !ok {
		t.Fatal("History() ok = false")
	}
	if len(history) != 4 {
		t.Fatalf("len(history) = %d, want 4", len(history))
	}
	// Last two turns, oldest first.
	if history[0].Content != "q3" || history[3].Content != "a4" {
		t.Errorf("window = [%q ... %q], want [q3 ... a4]", history[0].Content, history[3].Content)
	}
}

func TestHistory_UnknownSession(t *testing.T) {
	s := newTestStore(Config{})
	if _, ok := s.History("missing", 0); ok {
		t.Error("History(unknown) ok = true, want false")
	}
}

func TestSummary(t *testing.T) {
	s := newTestStore(Config{})

	if got := s.Summary("missing"); got != "No conversation history found." {
		t.Errorf("Summary(unknown) = %q", got)
	}

	s.GetOrCreate("s1")
	if got := s.Summary("s1"); got != "No previous conversation history." {
		t.Errorf("Summary(empty) = %q", got)
	}

	s.AppendTurn("s1", "hello", "hi there", nil)
	got := s.Summary("s1")
	if !strings.Contains(got, "2 total messages (1 from user, 1 responses)") {
		t.Errorf("Summary() = %q, want message counts", got)
	}
	if !strings.Contains(got, "session duration:") {
		t.Errorf("Summary() = %q, want duration", got)
	}
}

func TestSummary_DurationFormat(t *testing.T) {
	s := newTestStore(Config{})
	base := time.Now()
	s.now = func() time.Time { return base }
	s.AppendTurn("s1", "q", "a", nil)

	s.now = func() time.Time { return base.Add(42 * time.Second) }
	if got := s.Summary("s1"); !strings.HasSuffix(got, "session duration: 42s") {
		t.Errorf("Summary() = %q, want 42s suffix", got)
	}

	s.now = func() time.Time { return base.Add(3*time.Minute + 5*time.Second) }
	if got := s.Summary("s1"); !strings.HasSuffix(got, "session duration: 3m 5s") {
		t.Errorf("Summary() = %q, want 3m 5s suffix", got)
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(Config{})
	s.AppendTurn("s1", "q", "a", nil)

	if !s.Clear("s1") {
		t.Error("Clear(existing) = false, want true")
	}
	history, ok := s.History("s1", 0)
	if !ok {
		t.Error("session should survive Clear")
	}
	if len(history) != 0 {
		t.Errorf("len(history) = %d after Clear, want 0", len(history))
	}

	if s.Clear("missing") {
		t.Error("Clear(unknown) = true, want false")
	}
}

func TestCleanup_IdleTimeout(t *testing.T) {
	s := newTestStore(Config{IdleTimeout: time.Hour})
	base := time.Now()
	s.now = func() time.Time { return base }

	s.AppendTurn("stale", "q", "a", nil)

	s.now = func() time.Time { return base.Add(30 * time.Minute) }
	s.AppendTurn("fresh", "q", "a", nil)

	s.now = func() time.Time { return base.Add(90 * time.Minute) }
	if removed := s.Cleanup(); removed != 1 {
		t.Errorf("Cleanup() = %d, want 1", removed)
	}
	if _, ok := s.History("stale", 0); ok {
		t.Error("stale session survived cleanup")
	}
	if _, ok := s.History("fresh", 0); !ok {
		t.Error("fresh session removed by cleanup")
	}
}

func TestCleanup_Idempotent(t *testing.T) {
	s := newTestStore(Config{IdleTimeout: time.Hour})
	base := time.Now()
	s.now = func() time.Time { return base }
	s.AppendTurn("s1", "q", "a", nil)

	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	if removed := s.Cleanup(); removed != 1 {
		t.Errorf("first Cleanup() = %d, want 1", removed)
	}
	if removed := s.Cleanup(); removed != 0 {
		t.Errorf("second Cleanup() = %d, want 0", removed)
	}
}

func TestEvictLRU_OverCap(t *testing.T) {
	s := newTestStore(Config{MaxSessions: 3})
	base := time.Now()

	for i := range 4 {
		s.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		s.GetOrCreate(fmt.Sprintf("s%d", i))
	}

	stats := s.Stats()
	if stats.TotalSessions != 3 {
		t.Fatalf("TotalSessions = %d, want 3", stats.TotalSessions)
	}
	// s0 is the least recently active.
	if _, ok := s.History("s0", 0); ok {
		t.Error("s0 should have been evicted")
	}
	if _, ok := s.History("s3", 0); !ok {
		t.Error("s3 should have survived")
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(Config{MaxSessions: 50, IdleTimeout: 2 * time.Hour})

	stats := s.Stats()
	if stats.TotalSessions != 0 || stats.TotalMessages != 0 {
		t.Errorf("empty store stats = %+v", stats)
	}
	if stats.MaxSessions != 50 {
		t.Errorf("MaxSessions = %d, want 50", stats.MaxSessions)
	}
	if stats.SessionTimeoutHours != 2 {
		t.Errorf("SessionTimeoutHours = %v, want 2", stats.SessionTimeoutHours)
	}

	s.AppendTurn("s1", "q", "a", nil)
	s.AppendTurn("s1", "q2", "a2", nil)
	s.AppendTurn("s2", "q", "a", nil)

	stats = s.Stats()
	if stats.TotalSessions != 2 {
		t.Errorf("TotalSessions = %d, want 2", stats.TotalSessions)
	}
	if stats.TotalMessages != 6 {
		t.Errorf("TotalMessages = %d, want 6", stats.TotalMessages)
	}
	if stats.AverageMessagesPerSession != 3 {
		t.Errorf("AverageMessagesPerSession = %v, want 3", stats.AverageMessagesPerSession)
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := newTestStore(Config{MaxSessions: 10})

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i%4)
			for range 25 {
				s.AppendTurn(id, "q", "a", nil)
				s.History(id, 8)
				s.Summary(id)
				s.Stats()
			}
		}(i)
	}
	wg.Wait()

	stats := s.Stats()
	if stats.TotalSessions != 4 {
		t.Errorf("TotalSessions = %d, want 4", stats.TotalSessions)
	}
	if stats.TotalMessages != 400 {
		t.Errorf("TotalMessages = %d, want 400", stats.TotalMessages)
	}
}

func TestRunCleanup_StopsOnCancel(t *testing.T) {
	s := newTestStore(Config{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.RunCleanup(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunCleanup did not stop after cancel")
	}
}
