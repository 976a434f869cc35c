package delivery

import (
	"context"
	"sync"
	"time"

	"custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// InMemoryStore keeps deliveries in a map guarded by a RWMutex.
type InMemoryStore struct {
	mu         sync.RWMutex
	deliveries map[domain.DeliveryID]*Delivery
	order      []domain.DeliveryID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{deliveries: make(map[domain.DeliveryID]*Delivery)}
}

func (s *InMemoryStore) Create(_ context.Context, d *Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deliveries[d.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *d
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.deliveries[d.ID] = &cp
	s.order = append(s.order, d.ID)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.DeliveryID) (*Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deliveries[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *InMemoryStore) Update(_ context.Context, d *Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deliveries[d.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *d
	s.deliveries[d.ID] = &cp
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, id domain.DeliveryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deliveries[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.deliveries, id)
	for i, other := range s.order {
		if other == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Delivery, 0, len(s.order))
	for _, id := range s.order {
		if d, ok := s.deliveries[id]; ok {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemoryStore) CountByPatientProduct(_ context.Context, patient domain.PatientID, product domain.ProductID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, d := range s.deliveries {
		if d.PatientID == patient && d.ProductID == product {
			n++
		}
	}
	return n, nil
}
