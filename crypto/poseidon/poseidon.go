// Package poseidon implements the Poseidon2 sponge hash over the BN254
// scalar field and the depth-20 Merkle accumulator built on top of it,
// used for identity and note commitments.
//
// Width 3, rate 2, capacity 1, S-box exponent alpha = 5, 8 full rounds
// and 57 partial rounds. Round constants are derived deterministically
// from a fixed domain-separation string so two independent
// implementations of this package produce byte-identical digests; the
// MDS matrix is a fixed 3x3 Cauchy matrix generated once at init time.
package poseidon

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

const (
	// Width is the sponge's internal state size in field elements.
	Width = 3
	// Rate is the number of state elements absorbed/squeezed per block.
	Rate = 2
	// Capacity is Width - Rate.
	Capacity = Width - Rate
	// Alpha is the S-box exponent.
	Alpha = 5
	// FullRounds is the total number of full rounds (split evenly before
	// and after the partial rounds).
	FullRounds = 8
	// PartialRounds is the number of partial rounds.
	PartialRounds = 57

	domainSeparator = "nonosd/poseidon2/bn254/w3r2c1/v1"
)

var (
	roundConstants [FullRounds + PartialRounds][Width]fr.Element
	mds            [Width][Width]fr.Element
	initOnce       sync.Once
)

// ensureInit lazily derives the round constants and MDS matrix the first time
// the permutation is used, so importing this package has no init cost
// beyond registering the sync.Once.
func ensureInit() {
	initOnce.Do(func() {
		deriveRoundConstants()
		deriveMDS()
	})
}

// deriveRoundConstants expands the domain separation string through
// SHA-256 in counter mode and reduces each 32-byte block into a field
// element. This is a KDF, not a cryptographic requirement of Poseidon
// itself — any fixed, public, deterministic source of "random-looking"
// constants satisfies the construction.
func deriveRoundConstants() {
	counter := uint32(0)
	next := func() fr.Element {
		h := sha256.New()
		h.Write([]byte(domainSeparator))
		h.Write([]byte("/rc/"))
		var ctr [4]byte
		binary.BigEndian.PutUint32(ctr[:], counter)
		h.Write(ctr[:])
		counter++
		digest := h.Sum(nil)
		var e fr.Element
		e.SetBytes(digest)
		return e
	}
	for r := 0; r < FullRounds+PartialRounds; r++ {
		for i := 0; i < Width; i++ {
			roundConstants[r][i] = next()
		}
	}
}

// deriveMDS builds a fixed Width x Width Cauchy matrix M[i][j] = 1/(x_i -
// y_j) with x_i = i, y_j = Width + j, which is a standard construction
// guaranteeing the MDS (maximum distance separable) property required
// for full diffusion in the linear layer.
func deriveMDS() {
	var xs, ys [Width]fr.Element
	for i := 0; i < Width; i++ {
		xs[i].SetInt64(int64(i))
		ys[i].SetInt64(int64(Width + i))
	}
	for i := 0; i < Width; i++ {
		for j := 0; j < Width; j++ {
			var diff fr.Element
			diff.Sub(&xs[i], &ys[j])
			mds[i][j].Inverse(&diff)
		}
	}
}

// sbox raises x to the Alpha-th power in place.
func sbox(x *fr.Element) {
	var x2, x4 fr.Element
	x2.Square(x)
	x4.Square(&x2)
	x.Mul(&x4, x)
}

// applyMDS replaces state with mds * state.
func applyMDS(state *[Width]fr.Element) {
	var out [Width]fr.Element
	for i := 0; i < Width; i++ {
		var acc fr.Element
		for j := 0; j < Width; j++ {
			var term fr.Element
			term.Mul(&mds[i][j], &state[j])
			acc.Add(&acc, &term)
		}
		out[i] = acc
	}
	*state = out
}

// permute applies the full Poseidon2 permutation to state in place.
func permute(state *[Width]fr.Element) {
	ensureInit()

	round := 0
	half := FullRounds / 2

	for r := 0; r < half; r++ {
		addRoundConstants(state, round)
		for i := range state {
			sbox(&state[i])
		}
		applyMDS(state)
		round++
	}

	for r := 0; r < PartialRounds; r++ {
		addRoundConstants(state, round)
		sbox(&state[0])
		applyMDS(state)
		round++
	}

	for r := 0; r < half; r++ {
		addRoundConstants(state, round)
		for i := range state {
			sbox(&state[i])
		}
		applyMDS(state)
		round++
	}
}

func addRoundConstants(state *[Width]fr.Element, round int) {
	for i := range state {
		state[i].Add(&state[i], &roundConstants[round][i])
	}
}

// Hash absorbs an arbitrary number of field elements (padded with zero to
// a multiple of Rate) through the sponge and squeezes a single field
// element. domainTag distinguishes unrelated uses of the sponge (leaf
// vs. internal node, identity vs. note commitment, etc.) by seeding the
// capacity lane, matching how the capacity is conventionally used to
// carry domain/context information in sponge constructions.
func Hash(domainTag uint64, inputs ...fr.Element) fr.Element {
	var state [Width]fr.Element
	var tag fr.Element
	tag.SetUint64(domainTag)
	state[Rate] = tag

	padded := make([]fr.Element, len(inputs))
	copy(padded, inputs)
	if rem := len(padded) % Rate; rem != 0 {
		padded = append(padded, make([]fr.Element, Rate-rem)...)
	}
	if len(padded) == 0 {
		padded = make([]fr.Element, Rate)
	}

	for i := 0; i < len(padded); i += Rate {
		for j := 0; j < Rate; j++ {
			state[j].Add(&state[j], &padded[i+j])
		}
		permute(&state)
	}

	return state[0]
}

// Domain tags for the hashes this package exposes. Each distinguishes an
// otherwise-identical absorption so, e.g., a Merkle internal node and a
// note commitment never collide even with the same field-element inputs.
const (
	DomainMerkleLeaf  uint64 = 1
	DomainMerkleNode  uint64 = 2
	DomainCommitment  uint64 = 3
	DomainNullifier   uint64 = 4
	DomainCredential  uint64 = 5
)

// HashPair is the two-input node hash used internally by the Merkle tree.
func HashPair(left, right fr.Element) fr.Element {
	return Hash(DomainMerkleNode, left, right)
}

// ElementFromBytesLE decodes a 32-byte little-endian encoding into a
// field element, per the wire format this system uses for Poseidon
// digests.
func ElementFromBytesLE(b [32]byte) fr.Element {
	var rev [32]byte
	for i := range b {
		rev[i] = b[31-i]
	}
	var e fr.Element
	e.SetBytes(rev[:])
	return e
}

// BytesLE encodes a field element as 32-byte little-endian, per this
// system's wire format for Poseidon digests.
func BytesLE(e fr.Element) [32]byte {
	be := e.Bytes()
	var out [32]byte
	for i := range be {
		out[i] = be[31-i]
	}
	return out
}
