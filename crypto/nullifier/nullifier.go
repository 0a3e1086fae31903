// Package nullifier implements the bounded, scope-tagged nullifier set
// used to reject replayed zero-knowledge proofs and double-spent notes.
//
// Unlike a sparse-Merkle-tree nullifier tracker (which proves inclusion
// and non-inclusion cryptographically), this set only needs membership
// semantics: a (nullifier, scope) pair is either present or not. It is
// therefore a capacity-capped hash set with FIFO eviction, coupled to
// the Merkle root each nullifier was recorded against so that a
// nullifier is never evicted while its root is still in the accepted
// window (see Set.EvictForRoot).
package nullifier

import (
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// MinCapacity is the minimum set capacity the registry requires.
const MinCapacity = 1 << 20

// Key uniquely identifies a recorded fact: the same nullifier value under
// a different scope is a distinct key.
type Key struct {
	Nullifier fr.Element
	Scope     fr.Element
}

type entry struct {
	key  Key
	root fr.Element
}

// Set is a bounded, scope-tagged, insert-only nullifier set with FIFO
// eviction keyed to the Merkle root each entry was recorded against.
type Set struct {
	mu       sync.RWMutex
	present  map[Key]int // key -> position in order, for O(1) membership + removal bookkeeping
	order    []entry     // insertion order, oldest first
	byRoot   map[fr.Element][]Key
	capacity int
}

// New creates a nullifier set with the given capacity. Capacity is
// clamped up to MinCapacity if a smaller value is given, per the
// specification's minimum.
func New(capacity int) *Set {
	if capacity < MinCapacity {
		capacity = MinCapacity
	}
	return &Set{
		present:  make(map[Key]int),
		byRoot:   make(map[fr.Element][]Key),
		capacity: capacity,
	}
}

// Contains reports whether (nullifier, scope) has already been recorded.
func (s *Set) Contains(nullifier, scope fr.Element) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.present[Key{Nullifier: nullifier, Scope: scope}]
	return ok
}

// Insert records (nullifier, scope) against the root it was verified
// under. Returns false without modifying the set if the key is already
// present (callers must have already checked Contains under the same
// writer acquisition per the ordering invariant — this is a defensive
// re-check, not the primary replay guard).
func (s *Set) Insert(nullifier, scope, root fr.Element) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key{Nullifier: nullifier, Scope: scope}
	if _, exists := s.present[key]; exists {
		return false
	}

	if len(s.order) >= s.capacity {
		s.evictOldestLocked()
	}

	s.order = append(s.order, entry{key: key, root: root})
	s.present[key] = len(s.order) - 1
	s.byRoot[root] = append(s.byRoot[root], key)
	return true
}

// evictOldestLocked evicts the single oldest entry. Caller must hold
// s.mu. This is the capacity backstop; the coupled EvictForRoot path is
// the normal eviction mechanism in production use.
func (s *Set) evictOldestLocked() {
	if len(s.order) == 0 {
		return
	}
	oldest := s.order[0]
	s.order = s.order[1:]
	delete(s.present, oldest.key)
	s.removeFromRootBucketLocked(oldest.root, oldest.key)
	s.reindexLocked()
}

// EvictForRoot removes every nullifier recorded against root. Callers
// (the Merkle accumulator's accepted-roots window) must invoke this
// exactly when root falls out of the accepted window, so a nullifier is
// never evicted while its root is still accepted — breaking that
// coupling would allow the corresponding proof to be replayed.
func (s *Set) EvictForRoot(root fr.Element) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, ok := s.byRoot[root]
	if !ok {
		return 0
	}
	delete(s.byRoot, root)

	removed := make(map[Key]struct{}, len(keys))
	for _, k := range keys {
		delete(s.present, k)
		removed[k] = struct{}{}
	}

	filtered := s.order[:0]
	for _, e := range s.order {
		if _, gone := removed[e.key]; gone {
			continue
		}
		filtered = append(filtered, e)
	}
	s.order = filtered
	s.reindexLocked()
	return len(keys)
}

func (s *Set) removeFromRootBucketLocked(root fr.Element, key Key) {
	bucket := s.byRoot[root]
	for i, k := range bucket {
		if k == key {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(s.byRoot, root)
	} else {
		s.byRoot[root] = bucket
	}
}

func (s *Set) reindexLocked() {
	for i, e := range s.order {
		s.present[e.key] = i
	}
}

// Len returns the number of recorded (nullifier, scope) pairs.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Capacity returns the configured capacity cap.
func (s *Set) Capacity() int {
	return s.capacity
}
