package poseidon

import (
	"errors"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Depth is the fixed depth of the identity and note Merkle accumulators.
const Depth = 20

// maxLeaves is 2^Depth.
const maxLeaves = 1 << Depth

// Tree errors.
var (
	ErrTreeFull     = errors.New("poseidon: tree is full")
	ErrTreeBadIndex = errors.New("poseidon: index out of range")
)

// zeroHashes[i] is the root of an empty subtree of height i (0 = leaf).
var (
	zeroHashes     [Depth + 1]fr.Element
	zeroHashesOnce sync.Once
)

func ensureZeroHashes() {
	zeroHashesOnce.Do(func() {
		zeroHashes[0] = Hash(DomainMerkleLeaf)
		for i := 1; i <= Depth; i++ {
			zeroHashes[i] = HashPair(zeroHashes[i-1], zeroHashes[i-1])
		}
	})
}

// ZeroHash returns the root of an empty subtree of the given height.
func ZeroHash(height int) fr.Element {
	ensureZeroHashes()
	return zeroHashes[height]
}

// Proof is a Merkle inclusion proof: the sibling at each level from leaf
// to root, together with which side the sibling sits on.
type Proof struct {
	Index    uint64
	Siblings [Depth]fr.Element
}

// Tree is an append-only Poseidon Merkle accumulator of fixed depth 20.
// It is safe for concurrent use; callers needing the ordering guarantees
// in the concurrency model (check-root -> check-nullifier -> verify ->
// insert) must still hold their own writer lock across that sequence, as
// the tree only serializes its own internal mutation.
type Tree struct {
	mu       sync.RWMutex
	leaves   []fr.Element
	filledAt [Depth]fr.Element
	nextIdx  uint64
	root     fr.Element
}

// NewTree creates a new empty Merkle tree.
func NewTree() *Tree {
	ensureZeroHashes()
	return &Tree{
		leaves: make([]fr.Element, 0, 1024),
		root:   zeroHashes[Depth],
	}
}

// Root returns the current root.
func (t *Tree) Root() fr.Element {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// Size returns the number of leaves appended so far.
func (t *Tree) Size() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nextIdx
}

// Contains reports whether leaf already exists in the tree (linear scan;
// callers holding a commitment index should prefer tracking indices
// themselves — this exists for duplicate-detection on register paths
// with modest tree sizes).
func (t *Tree) Contains(leaf fr.Element) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, l := range t.leaves {
		if l.Equal(&leaf) {
			return true
		}
	}
	return false
}

// Append inserts a new leaf and returns its index and the updated root.
func (t *Tree) Append(leaf fr.Element) (uint64, fr.Element, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.nextIdx >= maxLeaves {
		return 0, fr.Element{}, ErrTreeFull
	}

	idx := t.nextIdx
	t.leaves = append(t.leaves, leaf)
	t.nextIdx++
	t.root = t.incrementalRoot(idx, leaf)
	return idx, t.root, nil
}

// incrementalRoot recomputes the root after inserting leaf at index,
// using the filled-subtree cache so each append is O(Depth). Caller
// must hold t.mu.
func (t *Tree) incrementalRoot(index uint64, leaf fr.Element) fr.Element {
	current := leaf
	for level := 0; level < Depth; level++ {
		if index%2 == 0 {
			t.filledAt[level] = current
			current = HashPair(current, zeroHashes[level])
		} else {
			current = HashPair(t.filledAt[level], current)
		}
		index /= 2
	}
	return current
}

// Proof builds the inclusion proof for the leaf at the given index
// against the current root. This rebuilds each layer from the stored
// leaves, which is adequate for the tree sizes this daemon runs with
// (bounded at 2^20 identities/notes).
func (t *Tree) Proof(index uint64) (*Proof, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if index >= t.nextIdx {
		return nil, ErrTreeBadIndex
	}

	proof := &Proof{Index: index}

	n := t.nextIdx
	layer := make([]fr.Element, n)
	copy(layer, t.leaves[:n])
	idx := index

	for level := 0; level < Depth; level++ {
		if len(layer)%2 != 0 {
			layer = append(layer, zeroHashes[level])
		}

		sibIdx := idx ^ 1
		if sibIdx < uint64(len(layer)) {
			proof.Siblings[level] = layer[sibIdx]
		} else {
			proof.Siblings[level] = zeroHashes[level]
		}

		next := make([]fr.Element, len(layer)/2)
		for i := 0; i < len(layer); i += 2 {
			next[i/2] = HashPair(layer[i], layer[i+1])
		}
		layer = next
		idx /= 2
	}
	return proof, nil
}

// Verify checks a Merkle inclusion proof for leaf against root.
func Verify(leaf fr.Element, proof *Proof, root fr.Element) bool {
	if proof == nil {
		return false
	}

	current := leaf
	idx := proof.Index
	for level := 0; level < Depth; level++ {
		sibling := proof.Siblings[level]
		if idx%2 == 0 {
			current = HashPair(current, sibling)
		} else {
			current = HashPair(sibling, current)
		}
		idx /= 2
	}
	return current.Equal(&root)
}
