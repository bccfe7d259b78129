// Package bookstore persists book context snapshots and unit pass versions.
// It is the pipeline's view of the external persistence collaborators: a
// JSON-file backend for local runs and a Postgres backend selected by DSN,
// behind one Store type.
package bookstore

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"bookforge/internal/memory"
)

// EnvPostgresDSN selects the Postgres backend when set.
const EnvPostgresDSN = "CONTEXT_STORE_PG_DSN"

// UnitVersion is one saved pass output for a (book, unit) pair.
type UnitVersion struct {
	BookID    string    `json:"book_id"`
	Unit      int       `json:"unit"`
	Seq       int       `json:"seq"`
	Stage     string    `json:"stage"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// VersionStore saves pass versions and reads the latest one back. The core
// never owns the full schema; this is the "save version / read latest"
// surface of the external repository.
type VersionStore interface {
	SaveVersion(ctx context.Context, bookID string, unit int, stage, body string) error
	LatestVersion(ctx context.Context, bookID string, unit int) (UnitVersion, bool, error)
}

// Store implements memory.Store and VersionStore over a file tree or a
// Postgres database. Context reads go through a small LRU cache.
type Store struct {
	root string
	pg   *pgBackend

	mu           sync.Mutex
	contextCache *lru.Cache[string, memory.Snapshot]
}

var _ memory.Store = (*Store)(nil)
var _ VersionStore = (*Store)(nil)

// New returns a file-backed store rooted at root.
func New(root string) *Store {
	cache, _ := lru.New[string, memory.Snapshot](128)
	return &Store{root: root, contextCache: cache}
}

// NewPostgres returns a Postgres-backed store.
func NewPostgres(dsn string) (*Store, error) {
	pg, err := newPGBackend(dsn)
	if err != nil {
		return nil, err
	}
	cache, _ := lru.New[string, memory.Snapshot](128)
	return &Store{pg: pg, contextCache: cache}, nil
}

// NewFromEnv picks the Postgres backend when CONTEXT_STORE_PG_DSN is set and
// reachable, otherwise the file backend at root.
func NewFromEnv(root string) *Store {
	dsn := strings.TrimSpace(os.Getenv(EnvPostgresDSN))
	if dsn == "" {
		return New(root)
	}
	s, err := NewPostgres(dsn)
	if err != nil {
		return New(root)
	}
	return s
}

// Close releases the database handle, if any.
func (s *Store) Close() error {
	if s.pg != nil {
		return s.pg.close()
	}
	return nil
}

// SaveContext persists the snapshot and refreshes the read cache.
func (s *Store) SaveContext(ctx context.Context, bookID string, snap memory.Snapshot) error {
	var err error
	if s.pg != nil {
		err = s.pg.saveContext(ctx, bookID, snap)
	} else {
		err = s.saveContextFile(bookID, snap)
	}
	if err == nil {
		s.contextCache.Add(bookID, snap)
	}
	return err
}

// LoadContext reads the latest snapshot for bookID.
func (s *Store) LoadContext(ctx context.Context, bookID string) (memory.Snapshot, bool, error) {
	if snap, ok := s.contextCache.Get(bookID); ok {
		return snap, true, nil
	}
	if s.pg != nil {
		snap, ok, err := s.pg.loadContext(ctx, bookID)
		if err == nil && ok {
			s.contextCache.Add(bookID, snap)
		}
		return snap, ok, err
	}
	snap, ok, err := s.loadContextFile(bookID)
	if err == nil && ok {
		s.contextCache.Add(bookID, snap)
	}
	return snap, ok, err
}

// SaveVersion appends one pass output for (bookID, unit).
func (s *Store) SaveVersion(ctx context.Context, bookID string, unit int, stage, body string) error {
	if s.pg != nil {
		return s.pg.saveVersion(ctx, bookID, unit, stage, body)
	}
	return s.saveVersionFile(bookID, unit, stage, body)
}

// LatestVersion reads the most recent saved version for (bookID, unit).
func (s *Store) LatestVersion(ctx context.Context, bookID string, unit int) (UnitVersion, bool, error) {
	if s.pg != nil {
		return s.pg.latestVersion(ctx, bookID, unit)
	}
	return s.latestVersionFile(bookID, unit)
}
