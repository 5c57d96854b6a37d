package cache

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. Insertion order is tracked explicitly
// so Trim can evict first-inserted entries.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
	}
}

func (s *MemoryStore) Get(ctx context.Context, url string) (*Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[url]
	if !ok {
		return nil, false, nil
	}
	return copyEntry(entry), true, nil
}

func (s *MemoryStore) Put(ctx context.Context, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.URL]; !exists {
		s.order = append(s.order, entry.URL)
	}
	s.entries[entry.URL] = copyEntry(entry)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.remove(url)
	return nil
}

func (s *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, len(s.order))
	copy(keys, s.order)
	return keys, nil
}

func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*Entry)
	s.order = nil
	return nil
}

func (s *MemoryStore) Trim(ctx context.Context, max int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for len(s.entries) > max && len(s.order) > 0 {
		s.remove(s.order[0])
		deleted++
	}
	return deleted, nil
}

// remove expects s.mu held for writing.
func (s *MemoryStore) remove(url string) {
	if _, ok := s.entries[url]; !ok {
		return
	}
	delete(s.entries, url)
	for i, key := range s.order {
		if key == url {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func copyEntry(entry *Entry) *Entry {
	dup := &Entry{
		URL:      entry.URL,
		Status:   entry.Status,
		Header:   entry.Header.Clone(),
		Body:     make([]byte, len(entry.Body)),
		StoredAt: entry.StoredAt,
	}
	copy(dup.Body, entry.Body)
	return dup
}

// MemoryRegistry keeps named MemoryStores. Used by tests and by daemons
// configured without a persistence path.
type MemoryRegistry struct {
	mu     sync.Mutex
	stores map[string]*MemoryStore
}

var _ Registry = (*MemoryRegistry)(nil)

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{stores: make(map[string]*MemoryStore)}
}

func (r *MemoryRegistry) Store(name string) Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	store, ok := r.stores[name]
	if !ok {
		store = NewMemoryStore()
		r.stores[name] = store
	}
	return store
}

func (r *MemoryRegistry) Names(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	return names, nil
}

func (r *MemoryRegistry) Drop(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.stores, name)
	return nil
}

func (r *MemoryRegistry) Close() error {
	return nil
}
