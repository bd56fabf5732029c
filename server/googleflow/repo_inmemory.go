package googleflow

import (
	"sync"
	"time"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface.
// Expired flows are dropped on write.
type InMemoryRepo struct {
	mu    sync.Mutex
	ttl   time.Duration
	flows map[string]Flow
}

var _ Repo = (*InMemoryRepo)(nil)

func NewInMemoryRepo(ttl time.Duration) *InMemoryRepo {
	return &InMemoryRepo{
		ttl:   ttl,
		flows: make(map[string]Flow),
	}
}

func (r *InMemoryRepo) Upsert(state string, flow Flow) error {
	if state == "" {
		return ErrEmptyState
	}
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = NowTimeFunc()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	r.flows[state] = flow
	return nil
}

func (r *InMemoryRepo) Take(state string) (Flow, error) {
	if state == "" {
		return Flow{}, ErrEmptyState
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	flow, ok := r.flows[state]
	delete(r.flows, state)
	if !ok || r.expired(flow) {
		return Flow{}, ErrStateNotFound
	}
	return flow, nil
}

// Len is the number of pending flows, expired ones included
func (r *InMemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

func (r *InMemoryRepo) expired(flow Flow) bool {
	return NowTimeFunc().Sub(flow.CreatedAt) > r.ttl
}

func (r *InMemoryRepo) sweepLocked() {
	for state, flow := range r.flows {
		if r.expired(flow) {
			delete(r.flows, state)
		}
	}
}
