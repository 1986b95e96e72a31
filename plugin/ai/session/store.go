package session

import (
	"log/slog"
	"sync"
	"time"
)

// PromptFunc returns the system prompt seeded into new sessions of a channel.
type PromptFunc func(Channel) string

// Store is the in-memory session registry.
// The map is guarded by its own lock; turn sequences are guarded per session.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	prompt PromptFunc
	now    func() time.Time
}

// NewStore creates a new session store.
func NewStore(prompt PromptFunc) *Store {
	if prompt == nil {
		prompt = func(Channel) string { return "" }
	}
	return &Store{
		sessions: make(map[string]*Session),
		prompt:   prompt,
		now:      time.Now,
	}
}

// GetOrCreate returns the session for id, creating it seeded with the system turn
// when it does not exist. Concurrent callers with the same unseen id observe one session.
func (s *Store) GetOrCreate(id string, channel Channel) (*Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess, false
	}
	sess = newSession(id, channel, s.prompt(channel), s.now())
	s.sessions[id] = sess
	slog.Debug("session created", slog.String("session_id", id), slog.String("channel", string(channel)))
	return sess, true
}

// Acquire resolves id and returns its session with the session lock held.
// If the session is evicted while the caller waits for the lock, a fresh one is resolved.
func (s *Store) Acquire(id string, channel Channel) (*Session, bool) {
	for {
		sess, created := s.GetOrCreate(id, channel)
		sess.Lock()
		if !sess.Closed() {
			sess.Touch(s.now())
			return sess, created
		}
		sess.Unlock()
	}
}

// Get returns the session for id.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Delete evicts the session for id. Requests already holding its lock finish normally.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
		sess.closed.Store(true)
	}
	s.mu.Unlock()

	if ok {
		slog.Debug("session deleted", slog.String("session_id", id))
	}
	return ok
}

// Sweep evicts sessions idle for longer than idleTTL.
// Sessions whose lock is held are skipped and reconsidered on the next sweep.
func (s *Store) Sweep(idleTTL time.Duration) int {
	s.mu.RLock()
	candidates := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		candidates = append(candidates, sess)
	}
	s.mu.RUnlock()

	cutoff := s.now().Add(-idleTTL)
	evicted := 0
	for _, sess := range candidates {
		if !sess.TryLock() {
			continue
		}
		if sess.LastActive().Before(cutoff) {
			s.mu.Lock()
			if cur, ok := s.sessions[sess.id]; ok && cur == sess {
				delete(s.sessions, sess.id)
				sess.closed.Store(true)
				evicted++
			}
			s.mu.Unlock()
		}
		sess.Unlock()
	}
	return evicted
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
