package profile

import (
	"context"
	"sync"

	"custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// InMemoryStore keeps profiles in a map guarded by a RWMutex.
type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[domain.ActorID]*ActorProfile
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{profiles: make(map[domain.ActorID]*ActorProfile)}
}

func (s *InMemoryStore) Get(_ context.Context, id domain.ActorID) (*ActorProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*ActorProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ActorProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemoryStore) Save(_ context.Context, p *ActorProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.profiles[p.ID] = &cp
	return nil
}
