package device

import "sync"

// CapabilityStore is the host platform's capability storage, reduced to the
// narrow surface the engine needs. Set reports whether the stored value
// actually changed so callers can fire change hooks.
type CapabilityStore interface {
	Get(name string) (any, bool)
	Set(name string, value any) bool
	Snapshot() map[string]any
}

// MemoryStore is the in-process CapabilityStore used by the daemon and by
// tests.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]any
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]any)}
}

func (s *MemoryStore) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[name]
	return value, ok
}

func (s *MemoryStore) Set(name string, value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if previous, ok := s.values[name]; ok && previous == value {
		return false
	}
	s.values[name] = value
	return true
}

func (s *MemoryStore) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for name, value := range s.values {
		out[name] = value
	}
	return out
}
