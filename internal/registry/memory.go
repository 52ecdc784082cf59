package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a map-backed Store used by unit tests and local tooling.
type MemoryStore struct {
	mu        sync.RWMutex
	resources map[uuid.UUID]Resource
	clients   map[uuid.UUID]Client
	patients  map[uuid.UUID]Patient
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		resources: make(map[uuid.UUID]Resource),
		clients:   make(map[uuid.UUID]Client),
		patients:  make(map[uuid.UUID]Patient),
	}
}

func (s *MemoryStore) AddClient(c Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ID] = c
}

func (s *MemoryStore) AddPatient(p Patient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[p.ID] = p
}

func (s *MemoryStore) AddResource(r Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[r.ID] = r
}

func (s *MemoryStore) GetResource(_ context.Context, id uuid.UUID) (*Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[id]
	if !ok {
		return nil, ErrResourceNotFound
	}
	return &r, nil
}

func (s *MemoryStore) GetClient(_ context.Context, id uuid.UUID) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, ErrClientNotFound
	}
	return &c, nil
}

func (s *MemoryStore) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (s *MemoryStore) CreateResource(_ context.Context, kind ResourceKind, name string) (*Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	r := Resource{
		ID:        uuid.New(),
		Kind:      kind,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.resources[r.ID] = r
	return &r, nil
}

func (s *MemoryStore) ListResources(_ context.Context, kind *ResourceKind) ([]Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Resource
	for _, r := range s.resources {
		if kind != nil && r.Kind != *kind {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *MemoryStore) RetireResource(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.resources[id]
	if !ok {
		return ErrResourceNotFound
	}
	r.Retired = true
	r.UpdatedAt = time.Now()
	s.resources[id] = r
	return nil
}
