package identity

import (
	"context"
	"sync"
	"time"

	"github.com/campuskeep/campuskeep/pkg/policy"
)

// MemorySessionStore is the in-process session backend used in tests and
// single-node development.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time
}

// NewMemorySessionStore creates an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]Session),
		now:      time.Now,
	}
}

// Resolve implements Resolver.
func (s *MemorySessionStore) Resolve(ctx context.Context, token string) (policy.Subject, error) {
	if err := ctx.Err(); err != nil {
		return policy.Subject{}, err
	}
	s.mu.RLock()
	session, ok := s.sessions[token]
	s.mu.RUnlock()
	if token == "" || !ok {
		return policy.Subject{}, ErrUnauthenticated
	}
	return subjectFromSession(session, s.now())
}

// Put stores a session under the token.
func (s *MemorySessionStore) Put(token string, session Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = session
}

// Delete removes a session, logging the subject out.
func (s *MemorySessionStore) Delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}
