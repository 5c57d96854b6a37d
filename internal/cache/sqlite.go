// Package cache provides the named response stores behind the offline
// gateway's routing strategies. Stores are keyed by full request URL and
// enumerate in insertion order; the bounded API store evicts FIFO.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	store     TEXT    NOT NULL,
	key_hash  TEXT    NOT NULL,
	url       TEXT    NOT NULL,
	status    INTEGER NOT NULL,
	headers   BLOB    NOT NULL,
	body      BLOB    NOT NULL,
	stored_at INTEGER NOT NULL,
	UNIQUE (store, key_hash)
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_store_seq ON cache_entries (store, seq);
`

// SQLiteRegistry persists cache stores in a single SQLite file so the
// API-data store survives daemon restarts, the way browser cache storage
// survives page sessions.
type SQLiteRegistry struct {
	db *sql.DB
}

var _ Registry = (*SQLiteRegistry)(nil)

// OpenSQLiteRegistry opens (or creates) the cache database at path.
func OpenSQLiteRegistry(path string) (*SQLiteRegistry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("cache path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping cache db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	return &SQLiteRegistry{db: db}, nil
}

func (r *SQLiteRegistry) Store(name string) Store {
	return &SQLiteStore{db: r.db, name: name}
}

func (r *SQLiteRegistry) Names(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT store FROM cache_entries`)
	if err != nil {
		return nil, fmt.Errorf("list store names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan store name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *SQLiteRegistry) Drop(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE store = ?`, name)
	if err != nil {
		return fmt.Errorf("drop store %q: %w", name, err)
	}
	return nil
}

func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}

// SQLiteStore is a named view over the shared cache database.
type SQLiteStore struct {
	db   *sql.DB
	name string
}

var _ Store = (*SQLiteStore)(nil)

func hashKey(url string) string {
	return strconv.FormatUint(xxhash.Sum64String(url), 16)
}

func (s *SQLiteStore) Get(ctx context.Context, url string) (*Entry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT url, status, headers, body, stored_at FROM cache_entries WHERE store = ? AND key_hash = ?`,
		s.name, hashKey(url),
	)

	var (
		entry      Entry
		rawHeaders []byte
		storedAt   int64
	)
	err := row.Scan(&entry.URL, &entry.Status, &rawHeaders, &entry.Body, &storedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}

	var headers map[string][]string
	if err := json.Unmarshal(rawHeaders, &headers); err != nil {
		return nil, false, fmt.Errorf("decode cached headers: %w", err)
	}
	entry.Header = http.Header(headers)
	entry.StoredAt = time.UnixMilli(storedAt).UTC()
	return &entry, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, entry *Entry) error {
	rawHeaders, err := json.Marshal(map[string][]string(entry.Header))
	if err != nil {
		return fmt.Errorf("encode cached headers: %w", err)
	}

	// On conflict the row keeps its seq, so an overwrite keeps its original
	// insertion slot in the eviction order.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (store, key_hash, url, status, headers, body, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (store, key_hash) DO UPDATE SET
			url = excluded.url,
			status = excluded.status,
			headers = excluded.headers,
			body = excluded.body,
			stored_at = excluded.stored_at`,
		s.name, hashKey(entry.URL), entry.URL, entry.Status, rawHeaders, entry.Body,
		entry.StoredAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, url string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE store = ? AND key_hash = ?`,
		s.name, hashKey(url),
	)
	if err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url FROM cache_entries WHERE store = ? ORDER BY seq ASC`, s.name,
	)
	if err != nil {
		return nil, fmt.Errorf("list cache keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan cache key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cache_entries WHERE store = ?`, s.name,
	)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE store = ?`, s.name)
	if err != nil {
		return fmt.Errorf("clear cache store: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Trim(ctx context.Context, max int) (int, error) {
	count, err := s.Len(ctx)
	if err != nil {
		return 0, err
	}
	excess := count - max
	if excess <= 0 {
		return 0, nil
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM cache_entries WHERE seq IN (
			SELECT seq FROM cache_entries WHERE store = ? ORDER BY seq ASC LIMIT ?
		)`, s.name, excess,
	)
	if err != nil {
		return 0, fmt.Errorf("trim cache store: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(deleted), nil
}
