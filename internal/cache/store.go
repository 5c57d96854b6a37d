package cache

import (
	"context"
	"net/http"
	"time"
)

// Entry is one cached GET response, keyed by the full request URL.
type Entry struct {
	URL      string
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// Store is a named collection of cached responses. Keys enumerate in
// insertion order; overwriting an existing key keeps its original slot, so
// eviction by key order is FIFO on first insertion, not true LRU.
type Store interface {
	Get(ctx context.Context, url string) (*Entry, bool, error)
	Put(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, url string) error
	Keys(ctx context.Context) ([]string, error)
	Len(ctx context.Context) (int, error)
	Clear(ctx context.Context) error

	// Trim deletes the oldest-inserted entries until at most max remain.
	// Returns the number of entries deleted.
	Trim(ctx context.Context, max int) (int, error)
}

// Registry hands out named stores and tracks which names exist, so a new
// deployment can drop stores left behind by the previous version.
type Registry interface {
	Store(name string) Store
	Names(ctx context.Context) ([]string, error)
	Drop(ctx context.Context, name string) error
	Close() error
}
