package sessions

import (
	"context"
	"sync"
)

// Store holds the Session of a single execution context (one inbound request on the
// web server, or one terminal client process).
type Store struct {
	mu        sync.RWMutex
	session   Session
	destroyed bool
}

// New creates an empty, unauthenticated store
func New() *Store {
	return &Store{session: Session{Flags: map[AccessFlag]bool{}}}
}

// Get returns a snapshot of the current session
func (s *Store) Get() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.clone()
}

// Set merges p into the session. An authenticated session always carries a user id
// and username; a merge that would break that leaves the session unauthenticated.
func (s *Store) Set(p Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	p.apply(&s.session)
	if s.session.IsAuthenticated && (s.session.UserID == "" || s.session.Username == "") {
		s.session.IsAuthenticated = false
	}
}

// Clear resets every field, flags included, to the unauthenticated defaults
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = Session{Flags: map[AccessFlag]bool{}}
}

// Destroy clears the store at context teardown. Later writes are ignored.
func (s *Store) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = Session{Flags: map[AccessFlag]bool{}}
	s.destroyed = true
}

// Grant sets a one-time access flag. Only called after the backend accepted the
// action that unlocks the route.
func (s *Store) Grant(flag AccessFlag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	s.session.Flags[flag] = true
}

// HasFlag reports whether flag is currently granted
func (s *Store) HasFlag(flag AccessFlag) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Flags[flag]
}

// Consume resets flag and reports whether it was set
func (s *Store) Consume(flag AccessFlag) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	granted := s.session.Flags[flag]
	delete(s.session.Flags, flag)
	return granted
}

type storeKey struct{}

// NewContext returns a copy of ctx carrying store
func NewContext(ctx context.Context, store *Store) context.Context {
	return context.WithValue(ctx, storeKey{}, store)
}

// FromContext returns the store attached to ctx, if any
func FromContext(ctx context.Context) (*Store, bool) {
	store, ok := ctx.Value(storeKey{}).(*Store)
	return store, ok
}
