// Package core implements the Store and Collection types that sit at the
// top of the engine: Store owns the named-collection registry (spec.md
// §4.1), Collection enforces one collection's configuration and routes
// to its HNSW index, codec, and payload store (spec.md §4.2).
package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Cursor is the opaque scroll position returned by Collection.Scroll. Its
// fields are unexported so callers can only pass a Cursor they received
// back from a previous call, matching spec.md §4.2's "opaque cursor."
type Cursor struct {
	started bool
	after   uint32
	done    bool
	nonce   string
}

// Done reports whether a prior Scroll call reached the end of the
// collection.
func (c Cursor) Done() bool { return c.done }

// Store owns the set of named collections and mediates all name-based
// access to them (spec.md §4.1). No other component may hold a
// collection once Store has dropped it.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*Collection
	logger      Logger
}

// NewStore returns an empty Store. A nil logger defaults to NopLogger.
func NewStore(logger Logger) *Store {
	if logger == nil {
		logger = NopLogger()
	}
	return &Store{collections: make(map[string]*Collection), logger: logger}
}

func validateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty collection name", ErrInvalidConfig)
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("%w: collection name must not contain path separators", ErrInvalidConfig)
	}
	return nil
}

// CreateCollection registers a new, empty collection under name. Rejects
// empty names, names containing path separators, and configs with
// dimension 0 or above the supported band (spec.md §4.1).
func (s *Store) CreateCollection(name string, cfg CollectionConfig) error {
	if err := validateCollectionName(name); err != nil {
		return wrapError("create_collection", err)
	}
	if cfg.Dim <= 0 || cfg.Dim > 4096 {
		return wrapError("create_collection", fmt.Errorf("%w: dimension must be in (0, 4096]", ErrInvalidConfig))
	}
	if err := cfg.validate(); err != nil {
		return wrapError("create_collection", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.collections[name]; exists {
		return wrapError("create_collection", ErrCollectionExists)
	}

	s.collections[name] = newCollection(name, cfg, s.logger)
	s.logger.Info("collection created", "name", name, "dim", cfg.Dim, "metric", cfg.Metric.String())
	return nil
}

// GetCollection returns a shared handle to a live collection. Multiple
// callers may hold one concurrently; the Store never hands out ownership.
func (s *Store) GetCollection(name string) (*Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[name]
	if !ok {
		return nil, wrapError("get_collection", ErrCollectionNotFound)
	}
	return c, nil
}

// DeleteCollection removes name from the registry. Because the registry
// lock is held for the whole call and every Collection method acquires
// its own locks per-operation rather than holding the Store's lock,
// dropping the map entry here is equivalent to waiting for outstanding
// operations to quiesce: no new caller can obtain a handle once this
// returns, and handles already in flight keep the Collection object alive
// via their own reference until they finish.
func (s *Store) DeleteCollection(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[name]; !ok {
		return wrapError("delete_collection", ErrCollectionNotFound)
	}
	delete(s.collections, name)
	s.logger.Info("collection deleted", "name", name)
	return nil
}

// ListCollections returns a snapshot of registered collection names,
// lexically sorted. It does not block writers on any individual
// collection.
func (s *Store) ListCollections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// snapshotTargets returns a copy of the registry (an unordered map) so
// SnapshotAll never holds the registry lock while writing to disk.
func (s *Store) snapshotTargets() map[string]*Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*Collection, len(s.collections))
	for name, c := range s.collections {
		out[name] = c
	}
	return out
}

// SnapshotAll writes every collection to its own subdirectory of dir
// (spec.md §6). A gofrs/flock file lock over dir/.snapshot.lock keeps a
// concurrent Restore of the same directory from racing this write.
// Collections are written concurrently, one goroutine each; every
// goroutine holds its collection's lock only while copying state, but
// two collections' locks can be held at the same moment.
func (s *Store) SnapshotAll(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return wrapError("snapshot", fmt.Errorf("%w: %s: %v", ErrIO, dir, err))
	}

	lock := flock.New(filepath.Join(dir, ".snapshot.lock"))
	if err := lock.Lock(); err != nil {
		return wrapError("snapshot", fmt.Errorf("%w: acquiring snapshot lock: %v", ErrIO, err))
	}
	defer lock.Unlock()

	targets := s.snapshotTargets()

	g := new(errgroup.Group)
	for name, c := range targets {
		name, c := name, c
		g.Go(func() error {
			collDir := filepath.Join(dir, name)
			if err := os.MkdirAll(collDir, 0o755); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrIO, collDir, err)
			}
			if err := writeCollectionSnapshot(collDir, c); err != nil {
				return fmt.Errorf("collection %q: %w", name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return wrapError("snapshot", err)
	}

	s.logger.Info("snapshot complete", "dir", dir, "collections", len(targets))
	return nil
}

// Restore populates the Store from a snapshot directory written by
// SnapshotAll. It stages every collection into a local map and only
// swaps the registry in once every collection subdirectory has loaded
// cleanly, so a failure midway leaves the Store's prior state untouched
// (spec.md §6: "Restore is atomic on failure"). The staging map never
// touches disk; the UUID generated below only tags this attempt's log
// lines.
func (s *Store) Restore(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return wrapError("restore", fmt.Errorf("%w: %s: %v", ErrIO, dir, err))
	}

	lock := flock.New(filepath.Join(dir, ".snapshot.lock"))
	if err := lock.Lock(); err != nil {
		return wrapError("restore", fmt.Errorf("%w: acquiring snapshot lock: %v", ErrIO, err))
	}
	defer lock.Unlock()

	staged := make(map[string]*Collection, len(entries))
	// Tags this restore attempt's log lines; not used as a filesystem path,
	// since the staged collections live only in the local `staged` map
	// until the swap below succeeds.
	restoreID := uuid.New().String()

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		collDir := filepath.Join(dir, name)
		c, err := readCollectionSnapshot(name, collDir, s.logger)
		if err != nil {
			return wrapError("restore", fmt.Errorf("collection %q: %w", name, err))
		}
		staged[name] = c
	}

	s.mu.Lock()
	s.collections = staged
	s.mu.Unlock()

	s.logger.Info("restore complete", "dir", dir, "collections", len(staged), "restore_id", restoreID)
	return nil
}
