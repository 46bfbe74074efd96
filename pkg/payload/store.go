// Package payload owns the mapping between a collection's external,
// caller-supplied string IDs and the dense internal indices the HNSW
// graph and codec layers operate on, plus the JSON payload attached to
// each point and the tombstone bookkeeping for soft deletes.
package payload

import (
	"errors"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/liliang-cn/vectorcore/internal/encoding"
)

var (
	// ErrNotFound is returned when an external ID has no mapping.
	ErrNotFound = errors.New("payload: id not found")
	// ErrAlreadyExists is returned by Insert when the external ID is
	// already live.
	ErrAlreadyExists = errors.New("payload: id already exists")
)

// Record is a stored point's external identity and payload, addressed by
// its internal index.
type Record struct {
	ExternalID string
	Payload    encoding.Payload
}

// Store maps external IDs to internal indices and holds each point's
// payload, guarded by a single RWMutex — the teacher's store.go takes the
// same "one lock protects the whole map" approach for its in-memory
// embedding cache rather than lock striping, since payload operations are
// cheap relative to HNSW graph traversal.
type Store struct {
	mu sync.RWMutex

	nextInternal uint32
	toInternal   map[string]uint32
	toExternal   map[uint32]string
	payloads     map[uint32]encoding.Payload

	live       *roaring.Bitmap
	tombstones *roaring.Bitmap
}

// New returns an empty payload store.
func New() *Store {
	return &Store{
		toInternal: make(map[string]uint32),
		toExternal: make(map[uint32]string),
		payloads:   make(map[uint32]encoding.Payload),
		live:       roaring.New(),
		tombstones: roaring.New(),
	}
}

// Insert allocates a fresh internal index for externalID and stores its
// payload. Returns ErrAlreadyExists if the ID is currently live.
func (s *Store) Insert(externalID string, p encoding.Payload) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if internal, ok := s.toInternal[externalID]; ok && s.live.Contains(internal) {
		return 0, ErrAlreadyExists
	}

	internal := s.nextInternal
	s.nextInternal++
	s.toInternal[externalID] = internal
	s.toExternal[internal] = externalID
	s.payloads[internal] = p
	s.live.Add(internal)
	s.tombstones.Remove(internal)
	return internal, nil
}

// Update replaces the payload of a live external ID in place, preserving
// its internal index.
func (s *Store) Update(externalID string, p encoding.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	internal, ok := s.toInternal[externalID]
	if !ok || !s.live.Contains(internal) {
		return ErrNotFound
	}
	s.payloads[internal] = p
	return nil
}

// Delete tombstones externalID, keeping its internal index permanently
// reserved so stale HNSW edges that still reference it resolve to "dead"
// instead of being silently reused by a future insert.
func (s *Store) Delete(externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	internal, ok := s.toInternal[externalID]
	if !ok || !s.live.Contains(internal) {
		return ErrNotFound
	}
	s.live.Remove(internal)
	s.tombstones.Add(internal)
	return nil
}

// Get returns the external ID and payload for an internal index, only if
// it is currently live.
func (s *Store) Get(internal uint32) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.live.Contains(internal) {
		return Record{}, false
	}
	return Record{ExternalID: s.toExternal[internal], Payload: s.payloads[internal]}, true
}

// GetByExternalID resolves an external ID to its internal index and
// record, only if live.
func (s *Store) GetByExternalID(externalID string) (uint32, Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	internal, ok := s.toInternal[externalID]
	if !ok || !s.live.Contains(internal) {
		return 0, Record{}, false
	}
	return internal, Record{ExternalID: externalID, Payload: s.payloads[internal]}, true
}

// InternalID resolves a live external ID to its internal index.
func (s *Store) InternalID(externalID string) (uint32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	internal, ok := s.toInternal[externalID]
	if !ok || !s.live.Contains(internal) {
		return 0, false
	}
	return internal, true
}

// IsLive reports whether an internal index currently holds a non-deleted
// point. Used by the HNSW layer to skip tombstoned nodes during search.
func (s *Store) IsLive(internal uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live.Contains(internal)
}

// IsTombstoned reports whether an internal index was deleted and has not
// been reclaimed by compaction.
func (s *Store) IsTombstoned(internal uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tombstones.Contains(internal)
}

// Count returns the number of live points.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.live.GetCardinality())
}

// TombstoneCount returns the number of tombstoned (soft-deleted, not yet
// reclaimed) internal indices.
func (s *Store) TombstoneCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.tombstones.GetCardinality())
}

// TombstoneRatio returns the fraction of all ever-allocated internal
// indices that are currently tombstoned. Collection.Optimize does not
// consult it; Optimize always compacts.
func (s *Store) TombstoneRatio() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := s.live.GetCardinality() + s.tombstones.GetCardinality()
	if total == 0 {
		return 0
	}
	return float64(s.tombstones.GetCardinality()) / float64(total)
}

// Filter returns the sorted, live internal indices whose payload matches
// expr. A nil expr matches every live point.
func (s *Store) Filter(expr *Expression) ([]uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]uint32, 0, s.live.GetCardinality())
	it := s.live.Iterator()
	for it.HasNext() {
		internal := it.Next()
		ok, err := Match(expr, s.payloads[internal])
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, internal)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i] < matched[j] })
	return matched, nil
}

// Scroll returns up to limit live internal indices in ascending order
// starting strictly after afterInternal, and whether more remain. The
// cursor encoding (opaque to this package) lives in pkg/core.
func (s *Store) Scroll(afterInternal uint32, limit int) (ids []uint32, hasMore bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it := s.live.Iterator()
	it.AdvanceIfNeeded(afterInternal + 1)
	out := make([]uint32, 0, limit)
	for it.HasNext() && len(out) < limit {
		out = append(out, it.Next())
	}
	return out, it.HasNext()
}

// ScrollFromStart is Scroll's first-page variant: it includes internal
// index 0 instead of treating it as "after" a zero-value cursor.
func (s *Store) ScrollFromStart(limit int) (ids []uint32, hasMore bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it := s.live.Iterator()
	out := make([]uint32, 0, limit)
	for it.HasNext() && len(out) < limit {
		out = append(out, it.Next())
	}
	return out, it.HasNext()
}
