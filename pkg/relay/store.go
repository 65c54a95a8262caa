package relay

import (
	"sort"
	"sync"
)

// Store is the process-wide table of requests. Reads are open to everyone;
// the unexported mutators are reserved for Controller and Cleanup.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	latest  string
}

func NewStore() *Store {
	return &Store{entries: map[string]*entry{}}
}

// Get returns a copy of the request with the given id.
func (s *Store) Get(id string) (Request, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return Request{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.req, true
}

// Latest returns the id of the most recently created request still in the store.
func (s *Store) Latest() (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.latest != ""
}

func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// List returns copies of all requests, oldest first.
func (s *Store) List() []Request {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]Request, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.req)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) lookup(id string) (*entry, bool) {
	if s == nil || id == "" {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

func (s *Store) insert(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.req.ID] = e
	s.latest = e.req.ID
}

func (s *Store) remove(id string) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	delete(s.entries, id)
	if s.latest == id {
		s.latest = ""
	}
	return e, true
}
