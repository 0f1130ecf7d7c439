package session

import (
	"context"
	"sync"
	"time"
)

type MemoryRepo struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{sessions: make(map[string]Session)}
}

func (r *MemoryRepo) Create(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = *s
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (r *MemoryRepo) Touch(_ context.Context, id, refreshHash string, at time.Time) error {
	return r.update(id, func(s *Session) {
		if refreshHash != "" {
			s.RefreshHash = refreshHash
		}
		s.RefreshedAt = at.UTC()
	})
}

func (r *MemoryRepo) Revoke(_ context.Context, id string) error {
	return r.update(id, func(s *Session) { s.Revoked = true })
}

func (r *MemoryRepo) update(id string, fn func(s *Session)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	fn(&s)
	r.sessions[id] = s
	return nil
}
