package settings

import "sync"

// MemoryStore is an in-memory Store for tests. Observer delivery is
// synchronous so tests stay deterministic.
type MemoryStore struct {
	mu        sync.Mutex
	values    map[string]string
	observers map[string]map[uint64]func(string)
	next      uint64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:    make(map[string]string),
		observers: make(map[string]map[uint64]func(string)),
	}
}

func (s *MemoryStore) Get(key, def string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	old, had := s.values[key]
	s.values[key] = value
	var fns []func(string)
	if !had || old != value {
		for _, fn := range s.observers[key] {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(value)
	}
	return nil
}

func (s *MemoryStore) Observe(key, def string, fn func(string)) (cancel func()) {
	s.mu.Lock()
	if s.observers[key] == nil {
		s.observers[key] = make(map[uint64]func(string))
	}
	id := s.next
	s.next++
	s.observers[key][id] = fn
	s.mu.Unlock()

	fn(s.Get(key, def))

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers[key], id)
			s.mu.Unlock()
		})
	}
}
