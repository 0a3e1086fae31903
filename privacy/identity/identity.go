// Package identity implements the zero-knowledge identity registry: a
// Poseidon2 commitment tree plus Groth16-verified scope-bound proofs of
// membership.
//
// The container shape — a single reader-writer lock guarding the tree,
// the accepted-roots window, and the nullifier set, with writers
// (register/verify-success) serialized and readers running in parallel —
// follows the commitment-tree container in pkg/crypto/commitment_tree.go,
// generalized from a plain Merkle accumulator to the full registry
// contract.
package identity

import (
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/nonos/nonosd/crypto/groth16"
	"github.com/nonos/nonosd/crypto/nullifier"
	"github.com/nonos/nonosd/crypto/poseidon"
)

// Mode selects the registry's lifecycle state. It is latched via SetMode
// and intended to be flipped exactly once at boot.
type Mode int

const (
	ModeDevelopment Mode = iota
	ModeProduction
)

func (m Mode) String() string {
	if m == ModeProduction {
		return "production"
	}
	return "development"
}

// Reason enumerates the outcome of verify_proof beyond plain Valid/Invalid.
type Reason string

const (
	ReasonValid           Reason = "valid"
	ReasonInvalid         Reason = "invalid"
	ReasonUnknownRoot     Reason = "unknown_root"
	ReasonReplay          Reason = "replay"
	ReasonVkNotLoaded     Reason = "vk_not_loaded"
	ReasonDevAdvisory     Reason = "development_mode_advisory"
	ReasonMalformedProof  Reason = "malformed_proof"
)

// VerificationResult is the outcome of verify_proof.
type VerificationResult struct {
	Valid            bool
	Reason           Reason
	NullifierRecorded bool
}

// Commitment records a registered identity commitment and its tree index.
type Commitment struct {
	Value        fr.Element
	Index        uint64
	RegisteredAt int64
}

// Errors returned by Register.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrFull      Error = "identity: registry full"
	ErrDuplicate Error = "identity: duplicate commitment"
	ErrNotFound  Error = "identity: commitment not found"
)

// Registry is the ZK identity registry container.
type Registry struct {
	mu sync.RWMutex

	tree      *poseidon.Tree
	roots     *poseidon.AcceptedRoots
	nullSet   *nullifier.Set
	byCommit  map[fr.Element]Commitment

	mode Mode
	vk   *groth16.VerifyingKey

	now func() int64
}

// New creates an empty registry. now supplies the clock used to stamp
// RegisteredAt; callers inject it so tests and the daemon can control
// time explicitly.
func New(now func() int64) *Registry {
	r := &Registry{
		tree:     poseidon.NewTree(),
		roots:    poseidon.NewAcceptedRoots(),
		nullSet:  nullifier.New(0),
		byCommit: make(map[fr.Element]Commitment),
		mode:     ModeDevelopment,
		now:      now,
	}
	r.roots.Push(r.tree.Root())
	return r
}

// pushRoot publishes root to the accepted-roots window and, if that push
// evicts a root, evicts every nullifier recorded against it in the same
// lock acquisition — a nullifier must never outlive the root it was
// verified against, or the proof it guards could be replayed.
func (r *Registry) pushRoot(root fr.Element) {
	if evicted, ok := r.roots.Push(root); ok {
		r.nullSet.EvictForRoot(evicted)
	}
}

// SetMode latches the registry's lifecycle mode. Intended to be called
// exactly once at boot.
func (r *Registry) SetMode(m Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = m
}

// Mode returns the current lifecycle mode.
func (r *Registry) Mode() Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// LoadVerifyingKey installs the processed Groth16 verifying key used by
// verify_proof.
func (r *Registry) LoadVerifyingKey(vk *groth16.VerifyingKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vk = vk
}

// RegisterIdentity computes commitment = poseidon2(secret, blinding),
// rejects duplicates, appends it to the identity tree, and publishes the
// resulting root into the accepted-roots window.
func (r *Registry) RegisterIdentity(secret, blinding fr.Element) (Commitment, error) {
	commitment := poseidon.Hash(poseidon.DomainCommitment, secret, blinding)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byCommit[commitment]; exists {
		return Commitment{}, ErrDuplicate
	}
	if r.tree.Size() >= (1 << poseidon.Depth) {
		return Commitment{}, ErrFull
	}

	index, root, err := r.tree.Append(commitment)
	if err != nil {
		return Commitment{}, err
	}
	r.pushRoot(root)

	c := Commitment{Value: commitment, Index: index}
	if r.now != nil {
		c.RegisteredAt = r.now()
	}
	r.byCommit[commitment] = c
	return c, nil
}

// CurrentRoot returns the identity tree's current root.
func (r *Registry) CurrentRoot() fr.Element {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.Root()
}

// IsRootAccepted reports whether root is within the 256-entry FIFO
// acceptance window.
func (r *Registry) IsRootAccepted(root fr.Element) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roots.IsAccepted(root)
}

// GetProof returns the Merkle inclusion proof for commitment against the
// current root.
func (r *Registry) GetProof(commitment fr.Element) (*poseidon.Proof, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byCommit[commitment]
	if !ok {
		return nil, ErrNotFound
	}
	return r.tree.Proof(c.Index)
}

// VerifyProof runs the six-step verification contract: unknown-root
// rejection, replay rejection, VK-loaded/dev-advisory branch, proof
// deserialization, public-input assembly, and the Groth16 pairing check.
func (r *Registry) VerifyProof(proof *groth16.Proof, merkleRoot, nullifierVal, scope fr.Element, signalHash *fr.Element) VerificationResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.roots.IsAccepted(merkleRoot) {
		return VerificationResult{Valid: false, Reason: ReasonUnknownRoot}
	}
	if r.nullSet.Contains(nullifierVal, scope) {
		return VerificationResult{Valid: false, Reason: ReasonReplay}
	}

	if r.vk == nil {
		if r.mode == ModeProduction {
			return VerificationResult{Valid: false, Reason: ReasonVkNotLoaded}
		}
		r.nullSet.Insert(nullifierVal, scope, merkleRoot)
		return VerificationResult{Valid: true, Reason: ReasonDevAdvisory, NullifierRecorded: true}
	}

	if err := groth16.ValidateProof(proof); err != nil {
		return VerificationResult{Valid: false, Reason: ReasonMalformedProof}
	}

	publicInputs := []fr.Element{merkleRoot, nullifierVal, scope}
	if signalHash != nil {
		publicInputs = append(publicInputs, *signalHash)
	}

	ok, err := groth16.Verify(r.vk, proof, publicInputs)
	if err != nil || !ok {
		return VerificationResult{Valid: false, Reason: ReasonInvalid}
	}

	r.nullSet.Insert(nullifierVal, scope, merkleRoot)
	return VerificationResult{Valid: true, Reason: ReasonValid, NullifierRecorded: true}
}

// IdentityCount returns the number of registered commitments.
func (r *Registry) IdentityCount() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.Size()
}
