// Package mixer implements the shielded note mixer: a Poseidon2
// commitment tree of deposited notes plus nullifier-guarded, Groth16-
// verified spends.
//
// Structurally this mirrors privacy/identity's registry container (one
// reader-writer lock over tree + accepted-roots window + nullifier set),
// following the same commitment_tree.go container shape — the two
// packages share it deliberately, since both are guarded by a single
// reader-writer lock per container, but they are kept separate because
// their public-input schemas and failure semantics differ.
package mixer

import (
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/nonos/nonosd/crypto/groth16"
	"github.com/nonos/nonosd/crypto/nullifier"
	"github.com/nonos/nonosd/crypto/poseidon"
)

// Error is a sentinel mixer error.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrFull          Error = "mixer: note tree full"
	ErrUnknownRoot   Error = "mixer: merkle root not in accepted window"
	ErrReplay        Error = "mixer: nullifier already recorded"
	ErrVkNotLoaded   Error = "mixer: verifying key not loaded"
	ErrMalformed     Error = "mixer: malformed proof"
	ErrInvalidProof  Error = "mixer: proof failed verification"
)

// Mode mirrors identity.Mode: development (VK optional, advisory) vs
// production (VK required).
type Mode int

const (
	ModeDevelopment Mode = iota
	ModeProduction
)

// SpendRequest carries the public data and proof for a spend.
type SpendRequest struct {
	MerkleRoot fr.Element
	Nullifier  fr.Element
	Recipient  fr.Element
	Fee        fr.Element
	Proof      *groth16.Proof
}

// SpendResult is the outcome of Spend.
type SpendResult struct {
	Success bool
	Reason  Error
	TxHash  [32]byte
}

// Mixer is the shielded note mixer container.
type Mixer struct {
	mu sync.RWMutex

	tree    *poseidon.Tree
	roots   *poseidon.AcceptedRoots
	nullSet *nullifier.Set

	mode       Mode
	vk         *groth16.VerifyingKey
	spentCount uint64

	txHashSeed func(merkleRoot, nullifierVal fr.Element) [32]byte
}

// New creates an empty mixer. txHashSeed derives the tx_hash identifier
// emitted on a successful spend; callers inject it so the derivation can
// be swapped (e.g. to include a block number) without touching Spend.
func New(txHashSeed func(merkleRoot, nullifierVal fr.Element) [32]byte) *Mixer {
	m := &Mixer{
		tree:       poseidon.NewTree(),
		roots:      poseidon.NewAcceptedRoots(),
		nullSet:    nullifier.New(0),
		mode:       ModeDevelopment,
		txHashSeed: txHashSeed,
	}
	m.roots.Push(m.tree.Root())
	return m
}

// pushRoot publishes root to the accepted-roots window and, if that push
// evicts a root, evicts every nullifier recorded against it in the same
// lock acquisition — a nullifier must never outlive the root it was
// verified against, or the spend it guards could be replayed.
func (m *Mixer) pushRoot(root fr.Element) {
	if evicted, ok := m.roots.Push(root); ok {
		m.nullSet.EvictForRoot(evicted)
	}
}

// SetMode latches the mixer's lifecycle mode.
func (m *Mixer) SetMode(mode Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
}

// LoadVerifyingKey installs the processed Groth16 verifying key used by
// Spend.
func (m *Mixer) LoadVerifyingKey(vk *groth16.VerifyingKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vk = vk
}

// Deposit appends the caller-supplied note commitment to the note Merkle
// tree and publishes the new root to the note accepted-roots window.
func (m *Mixer) Deposit(commitment fr.Element) (index uint64, root fr.Element, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tree.Size() >= (1 << poseidon.Depth) {
		return 0, fr.Element{}, ErrFull
	}
	index, root, err = m.tree.Append(commitment)
	if err != nil {
		return 0, fr.Element{}, err
	}
	m.pushRoot(root)
	return index, root, nil
}

// Spend verifies and records a shielded spend per the ordered contract:
// unknown-root rejection, replay rejection, VK-loaded/dev-advisory
// branch, Groth16 verification over [merkle_root, nullifier, recipient,
// fee], then nullifier recording and tx_hash emission.
func (m *Mixer) Spend(req SpendRequest) SpendResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.roots.IsAccepted(req.MerkleRoot) {
		return SpendResult{Success: false, Reason: ErrUnknownRoot}
	}

	// The mixer's nullifier set is not scope-tagged; spends use a fixed
	// zero scope so the same Set type can be reused as-is.
	var scope fr.Element
	if m.nullSet.Contains(req.Nullifier, scope) {
		return SpendResult{Success: false, Reason: ErrReplay}
	}

	if m.vk == nil {
		if m.mode == ModeProduction {
			return SpendResult{Success: false, Reason: ErrVkNotLoaded}
		}
		m.nullSet.Insert(req.Nullifier, scope, req.MerkleRoot)
		m.spentCount++
		return SpendResult{Success: true, TxHash: m.deriveTxHash(req)}
	}

	if err := groth16.ValidateProof(req.Proof); err != nil {
		return SpendResult{Success: false, Reason: ErrMalformed}
	}

	publicInputs := []fr.Element{req.MerkleRoot, req.Nullifier, req.Recipient, req.Fee}
	ok, err := groth16.Verify(m.vk, req.Proof, publicInputs)
	if err != nil || !ok {
		return SpendResult{Success: false, Reason: ErrInvalidProof}
	}

	m.nullSet.Insert(req.Nullifier, scope, req.MerkleRoot)
	m.spentCount++
	return SpendResult{Success: true, TxHash: m.deriveTxHash(req)}
}

func (m *Mixer) deriveTxHash(req SpendRequest) [32]byte {
	if m.txHashSeed != nil {
		return m.txHashSeed(req.MerkleRoot, req.Nullifier)
	}
	combined := poseidon.Hash(poseidon.DomainNullifier, req.MerkleRoot, req.Nullifier)
	return poseidon.BytesLE(combined)
}

// NoteCount returns the number of deposited notes.
func (m *Mixer) NoteCount() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Size()
}

// SpentCount returns the number of successful spends.
func (m *Mixer) SpentCount() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.spentCount
}

// Root returns the note tree's current root.
func (m *Mixer) Root() fr.Element {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Root()
}
