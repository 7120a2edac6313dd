package session

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrExists = errors.New("session already exists")

// Registry owns the lifetime of every Session. It performs no upstream I/O;
// callers end upstream sessions before removing.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewRegistry creates an empty registry. A nil clock uses time.Now.
func NewRegistry(clock func() time.Time) *Registry {
	if clock == nil {
		clock = time.Now
	}
	return &Registry{
		sessions: make(map[string]*Session),
		now:      clock,
	}
}

// Now returns the registry clock's current time.
func (r *Registry) Now() time.Time {
	return r.now()
}

// Create inserts a fresh idle Session for id.
func (r *Registry) Create(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return nil, ErrExists
	}
	s := New(id, r.now())
	r.sessions[id] = s
	return s, nil
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove unmaps id. Only the first of concurrent callers gets the Session
// back with ok=true.
func (r *Registry) Remove(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Expired returns, in sorted order, the ids of sessions older than maxAge at now.
func (r *Registry) Expired(now time.Time, maxAge time.Duration) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, s := range r.sessions {
		if s.Age(now) > maxAge {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
