// Package session implements the in-memory conversation store.
//
// Sessions hold chat history keyed by an opaque client-provided id. The
// store enforces an idle timeout and a total session cap with
// least-recently-active eviction. Nothing is persisted; a restart clears
// all conversations, which is acceptable for this service's continuity
// model (the id is a continuity token, not an identity).
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/campusaid/campusaid/internal/log"
)

// Entry is a single message in a session's history.
type Entry struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Roles used in history entries.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Stats is a point-in-time snapshot of the store, shaped for the
// /api/memory/stats payload.
type Stats struct {
	TotalSessions             int     `json:"total_sessions"`
	TotalMessages             int     `json:"total_messages"`
	AverageMessagesPerSession float64 `json:"average_messages_per_session"`
	OldestSessionAgeSeconds   float64 `json:"oldest_session_age_seconds"`
	NewestSessionAgeSeconds   float64 `json:"newest_session_age_seconds"`
	MaxSessions               int     `json:"max_sessions"`
	SessionTimeoutHours       float64 `json:"session_timeout_hours"`
}

// record is one session's state. Entries and activity are guarded by the
// record's own mutex so long appends do not block unrelated sessions.
type record struct {
	mu           sync.Mutex
	createdAt    time.Time
	lastActivity time.Time
	entries      []Entry
}

// Store is a concurrency-safe in-memory session store.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*record
	maxSessions int
	idleTimeout time.Duration
	logger      log.Logger

	// now is swappable for tests.
	now func() time.Time
}

// Config holds store limits.
type Config struct {
	// MaxSessions caps the store; exceeding it evicts the least recently
	// active sessions.
	MaxSessions int

	// IdleTimeout expires sessions with no activity during Cleanup.
	IdleTimeout time.Duration
}

// NewStore creates a session store. Logger must not be nil.
func NewStore(cfg Config, logger log.Logger) *Store {
	return &Store{
		sessions:    make(map[string]*record),
		maxSessions: cfg.MaxSessions,
		idleTimeout: cfg.IdleTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// GetOrCreate ensures a session exists and marks it active.
// Returns true when the session was newly created.
func (s *Store) GetOrCreate(id string) bool {
	now := s.now()

	s.mu.Lock()
	r, ok := s.sessions[id]
	if !ok {
		r = &record{createdAt: now, lastActivity: now}
		s.sessions[id] = r
		over := len(s.sessions) - s.maxSessions
		s.mu.Unlock()
		if over > 0 {
			s.evictLRU(over)
		}
		s.logger.Debug("session created", "session_id", id)
		return true
	}
	s.mu.Unlock()

	r.mu.Lock()
	r.lastActivity = now
	r.mu.Unlock()
	return false
}

// AppendTurn records one user message and the assistant response,
// creating the session if it does not exist.
func (s *Store) AppendTurn(id, userMsg, assistantMsg string, metadata map[string]any) {
	s.GetOrCreate(id)
	now := s.now()

	s.mu.RLock()
	r := s.sessions[id]
	s.mu.RUnlock()
	if r == nil {
		// Evicted between GetOrCreate and the read; the turn is lost,
		// which matches losing the session itself.
		return
	}

	r.mu.Lock()
	r.entries = append(r.entries,
		Entry{Role: RoleUser, Content: userMsg, Timestamp: now},
		Entry{Role: RoleAssistant, Content: assistantMsg, Timestamp: now, Metadata: metadata},
	)
	r.lastActivity = now
	r.mu.Unlock()
}

// History returns up to max most recent entries for the session, oldest
// first. Unknown sessions yield a nil slice and ok=false.
func (s *Store) History(id string, max int) ([]Entry, bool) {
	s.mu.RLock()
	r := s.sessions[id]
	s.mu.RUnlock()
	if r == nil {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.entries
	if max > 0 && len(entries) > max {
		entries = entries[len(entries)-max:]
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, true
}

// Summary returns a one-line description of the session's history.
func (s *Store) Summary(id string) string {
	s.mu.RLock()
	r := s.sessions[id]
	s.mu.RUnlock()
	if r == nil {
		return "No conversation history found."
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) == 0 {
		return "No previous conversation history."
	}

	users := 0
	for _, e := range r.entries {
		if e.Role == RoleUser {
			users++
		}
	}
	assistants := len(r.entries) - users

	duration := s.now().Sub(r.createdAt)
	var span string
	if duration < time.Minute {
		span = fmt.Sprintf("%ds", int(duration.Seconds()))
	} else {
		span = fmt.Sprintf("%dm %ds", int(duration.Minutes()), int(duration.Seconds())%60)
	}

	return fmt.Sprintf("Conversation context: %d total messages (%d from user, %d responses), session duration: %s",
		len(r.entries), users, assistants, span)
}

// Clear truncates a session's history while keeping the session alive.
// Returns false when the session does not exist.
func (s *Store) Clear(id string) bool {
	s.mu.RLock()
	r := s.sessions[id]
	s.mu.RUnlock()
	if r == nil {
		return false
	}

	r.mu.Lock()
	r.entries = nil
	r.lastActivity = s.now()
	r.mu.Unlock()

	s.logger.Debug("session cleared", "session_id", id)
	return true
}

// Cleanup removes idle-expired sessions and enforces the session cap.
// Returns the number of sessions removed. Safe to call repeatedly.
func (s *Store) Cleanup() int {
	cutoff := s.now().Add(-s.idleTimeout)

	s.mu.Lock()
	removed := 0
	for id, r := range s.sessions {
		r.mu.Lock()
		expired := r.lastActivity.Before(cutoff)
		r.mu.Unlock()
		if expired {
			delete(s.sessions, id)
			removed++
		}
	}
	over := len(s.sessions) - s.maxSessions
	s.mu.Unlock()

	if over > 0 {
		removed += s.evictLRU(over)
	}
	if removed > 0 {
		s.logger.Info("session cleanup", "removed", removed)
	}
	return removed
}

// evictLRU removes the n least recently active sessions.
func (s *Store) evictLRU(n int) int {
	type candidate struct {
		id           string
		lastActivity time.Time
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]candidate, 0, len(s.sessions))
	for id, r := range s.sessions {
		r.mu.Lock()
		candidates = append(candidates, candidate{id: id, lastActivity: r.lastActivity})
		r.mu.Unlock()
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastActivity.Before(candidates[j].lastActivity)
	})

	if n > len(candidates) {
		n = len(candidates)
	}
	for _, c := range candidates[:n] {
		delete(s.sessions, c.id)
		s.logger.Debug("session evicted", "session_id", c.id)
	}
	return n
}

// Stats returns a snapshot of store-wide counters.
func (s *Store) Stats() Stats {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		TotalSessions:       len(s.sessions),
		MaxSessions:         s.maxSessions,
		SessionTimeoutHours: s.idleTimeout.Hours(),
	}

	var oldest, newest time.Time
	for _, r := range s.sessions {
		r.mu.Lock()
		st.TotalMessages += len(r.entries)
		created := r.createdAt
		r.mu.Unlock()

		if oldest.IsZero() || created.Before(oldest) {
			oldest = created
		}
		if newest.IsZero() || created.After(newest) {
			newest = created
		}
	}

	if st.TotalSessions > 0 {
		st.AverageMessagesPerSession = float64(st.TotalMessages) / float64(st.TotalSessions)
		st.OldestSessionAgeSeconds = now.Sub(oldest).Seconds()
		st.NewestSessionAgeSeconds = now.Sub(newest).Seconds()
	}
	return st
}

// RunCleanup runs Cleanup every interval until ctx is canceled.
// Intended to run in its own goroutine for the server's lifetime.
func (s *Store) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}
