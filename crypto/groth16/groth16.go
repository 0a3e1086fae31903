// Package groth16 verifies Groth16 zkSNARK proofs over the BN254 curve
// using gnark-crypto's pairing primitives directly, without pulling in
// the full gnark circuit-compiler/prover stack — this daemon only ever
// verifies.
//
// Pluggable-backend shape (Backend interface, package-level getter/
// setter) follows proofs/groth16_verifier.go, which does the same for a
// BLS12-381 precompile-backed verifier; here the verification itself is
// gnark-crypto's bn254.PairingCheck rather than hand-rolled field
// arithmetic over precompile byte encodings, since gnark-crypto already
// exposes typed curve points and a multi-pairing check.
package groth16

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

var (
	ErrNilProof      = errors.New("groth16: nil proof")
	ErrNilVK         = errors.New("groth16: nil verifying key")
	ErrNoIC          = errors.New("groth16: no IC points")
	ErrICMismatch    = errors.New("groth16: IC length mismatch")
	ErrPairingFailed = errors.New("groth16: pairing check failed")
)

// Proof holds the three BN254 group elements that make up a Groth16
// proof.
type Proof struct {
	A bn254.G1Affine
	B bn254.G2Affine
	C bn254.G1Affine
}

// VerifyingKey holds the processed Groth16 verifying key. IC[0] is the
// constant term; IC[1:] pair one-to-one with the public input vector.
type VerifyingKey struct {
	Alpha bn254.G1Affine
	Beta  bn254.G2Affine
	Gamma bn254.G2Affine
	Delta bn254.G2Affine
	IC    []bn254.G1Affine
}

// Backend defines pluggable Groth16 verification so a future hardware-
// accelerated or batched verifier can be swapped in without touching
// callers.
type Backend interface {
	Verify(vk *VerifyingKey, proof *Proof, publicInputs []fr.Element) (bool, error)
	Name() string
}

var (
	backendMu      sync.RWMutex
	activeBackend  Backend
	defaultBackend = &PairingBackend{}
)

// DefaultBackend returns the currently active Backend, defaulting to the
// gnark-crypto pairing-based implementation.
func DefaultBackend() Backend {
	backendMu.RLock()
	defer backendMu.RUnlock()
	if activeBackend != nil {
		return activeBackend
	}
	return defaultBackend
}

// SetBackend overrides the active Backend.
func SetBackend(b Backend) {
	backendMu.Lock()
	defer backendMu.Unlock()
	activeBackend = b
}

// --- Validation ---

func ValidateProof(proof *Proof) error {
	if proof == nil {
		return ErrNilProof
	}
	return nil
}

func ValidateVerifyingKey(vk *VerifyingKey) error {
	if vk == nil {
		return ErrNilVK
	}
	if len(vk.IC) == 0 {
		return ErrNoIC
	}
	return nil
}

// --- PairingBackend ---

// PairingBackend verifies Groth16 proofs via the standard pairing
// equation e(A,B) = e(Alpha,Beta) * e(IC,Gamma) * e(C,Delta), rearranged
// to the single multi-pairing check
// e(-A,B) * e(Alpha,Beta) * e(IC,Gamma) * e(C,Delta) == 1.
type PairingBackend struct{}

func (b *PairingBackend) Name() string { return "gnark-crypto-bn254-pairing" }

func (b *PairingBackend) Verify(vk *VerifyingKey, proof *Proof, publicInputs []fr.Element) (bool, error) {
	if err := ValidateProof(proof); err != nil {
		return false, err
	}
	if err := ValidateVerifyingKey(vk); err != nil {
		return false, err
	}
	if len(vk.IC) != len(publicInputs)+1 {
		return false, fmt.Errorf("%w: got %d inputs, need %d", ErrICMismatch, len(publicInputs), len(vk.IC)-1)
	}

	ic, err := computeIC(vk.IC, publicInputs)
	if err != nil {
		return false, fmt.Errorf("groth16: IC computation: %w", err)
	}

	var negA bn254.G1Affine
	negA.Neg(&proof.A)

	ok, err := bn254.PairingCheck(
		[]bn254.G1Affine{negA, vk.Alpha, ic, proof.C},
		[]bn254.G2Affine{proof.B, vk.Beta, vk.Gamma, vk.Delta},
	)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPairingFailed, err)
	}
	return ok, nil
}

// computeIC evaluates IC[0] + sum(publicInputs[i] * IC[i+1]).
func computeIC(ic []bn254.G1Affine, inputs []fr.Element) (bn254.G1Affine, error) {
	var acc bn254.G1Jac
	acc.FromAffine(&ic[0])

	for i, input := range inputs {
		var scalar big.Int
		input.BigInt(&scalar)

		var term bn254.G1Jac
		term.FromAffine(&ic[i+1])
		term.ScalarMultiplication(&term, &scalar)

		acc.AddAssign(&term)
	}

	var result bn254.G1Affine
	result.FromJacobian(&acc)
	return result, nil
}

// Verify is the package-level convenience wrapper around the active
// backend.
func Verify(vk *VerifyingKey, proof *Proof, publicInputs []fr.Element) (bool, error) {
	return DefaultBackend().Verify(vk, proof, publicInputs)
}
