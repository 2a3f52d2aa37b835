package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/meshcore/core"
)

// InMemoryStore is a volatile registry of sessions kept in a process local
// map. It is safe for concurrent access. Sessions live until removed or until
// the process exits.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewInMemoryStore constructs an empty in‑memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*Session)}
}

// Add stores sess under its id.
func (s *InMemoryStore) Add(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID()] = sess
}

// Get returns the session with the given id.
func (s *InMemoryStore) Get(sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[sessionID]; ok {
		return sess, nil
	}
	return nil, fmt.Errorf("%w: unknown session %q", core.ErrInvalidState, sessionID)
}

// Remove deletes the session with the given id. Unknown ids are ignored.
func (s *InMemoryStore) Remove(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// List returns every stored session, oldest first.
func (s *InMemoryStore) List() []*Session {
	s.mu.RLock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Started().Equal(out[j].Started()) {
			return out[i].ID() < out[j].ID()
		}
		return out[i].Started().Before(out[j].Started())
	})
	return out
}

// Reports returns the report of every stored session, oldest first.
func (s *InMemoryStore) Reports() []Report {
	sessions := s.List()
	out := make([]Report, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Report())
	}
	return out
}
