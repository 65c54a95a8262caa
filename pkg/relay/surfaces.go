package relay

import "sync"

// Surfaces maps a display surface to the one request currently shown on it.
type Surfaces struct {
	mu     sync.Mutex
	active map[string]string
}

func NewSurfaces() *Surfaces {
	return &Surfaces{active: map[string]string{}}
}

// Swap makes requestID the active request of surface and returns the one it replaced.
func (s *Surfaces) Swap(surface, requestID string) (string, bool) {
	if s == nil || surface == "" {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.active[surface]
	s.active[surface] = requestID
	return prev, ok && prev != requestID
}

// Release clears surface if it still points at requestID.
func (s *Surfaces) Release(surface, requestID string) {
	if s == nil || surface == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[surface] == requestID {
		delete(s.active, surface)
	}
}

func (s *Surfaces) Active(surface string) (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.active[surface]
	return id, ok
}
