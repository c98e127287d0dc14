package api

import (
	"slices"
	"sync"
)

const defaultStoreCapacity = 256

// GenerationStore keeps the most recent finished generations by id. The
// oldest entry is evicted once capacity is reached.
type GenerationStore struct {
	mu       sync.Mutex
	capacity int
	order    []string
	byID     map[string]GenerateResponse
}

func NewGenerationStore(capacity int) *GenerationStore {
	if capacity <= 0 {
		capacity = defaultStoreCapacity
	}
	return &GenerationStore{
		capacity: capacity,
		byID:     make(map[string]GenerateResponse),
	}
}

func (s *GenerationStore) Save(resp GenerateResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[resp.ID]; !ok {
		s.order = append(s.order, resp.ID)
	}
	s.byID[resp.ID] = resp
	for len(s.order) > s.capacity {
		delete(s.byID, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *GenerationStore) Get(id string) (GenerateResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, ok := s.byID[id]
	return resp, ok
}

func (s *GenerationStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	if i := slices.Index(s.order, id); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	return true
}

func (s *GenerationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
