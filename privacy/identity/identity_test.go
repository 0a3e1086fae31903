package identity

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/nonos/nonosd/crypto/poseidon"
)

func elem(n int64) fr.Element {
	var e fr.Element
	e.SetInt64(n)
	return e
}

func fixedClock() int64 { return 1000 }

func TestRegistry_RegisterIdentityComputesCommitment(t *testing.T) {
	r := New(fixedClock)
	secret, blinding := elem(0x11), elem(0x22)

	c, err := r.RegisterIdentity(secret, blinding)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if c.Index != 0 {
		t.Fatalf("expected index 0, got %d", c.Index)
	}

	want := poseidon.Hash(poseidon.DomainCommitment, secret, blinding)
	if !c.Value.Equal(&want) {
		t.Fatal("commitment should equal poseidon2(secret, blinding)")
	}
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	r := New(fixedClock)
	secret, blinding := elem(0x11), elem(0x22)

	if _, err := r.RegisterIdentity(secret, blinding); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if _, err := r.RegisterIdentity(secret, blinding); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestRegistry_RootAcceptedAfterRegister(t *testing.T) {
	r := New(fixedClock)
	if r.IsRootAccepted(r.CurrentRoot()) != true {
		t.Fatal("empty-tree root should be accepted at boot")
	}

	_, err := r.RegisterIdentity(elem(1), elem(2))
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	root := r.CurrentRoot()
	if !r.IsRootAccepted(root) {
		t.Fatal("root after registration should be accepted")
	}
}

func TestRegistry_VerifyProofUnknownRoot(t *testing.T) {
	r := New(fixedClock)
	res := r.VerifyProof(nil, elem(999), elem(1), elem(2), nil)
	if res.Valid || res.Reason != ReasonUnknownRoot {
		t.Fatalf("expected UnknownRoot, got %+v", res)
	}
}

func TestRegistry_VerifyProofDevelopmentModeAdvisory(t *testing.T) {
	r := New(fixedClock)
	r.SetMode(ModeDevelopment)
	root := r.CurrentRoot()

	res := r.VerifyProof(nil, root, elem(1), elem(2), nil)
	if !res.Valid || res.Reason != ReasonDevAdvisory || !res.NullifierRecorded {
		t.Fatalf("expected dev advisory valid result, got %+v", res)
	}
}

func TestRegistry_VerifyProofReplayRejected(t *testing.T) {
	r := New(fixedClock)
	r.SetMode(ModeDevelopment)
	root := r.CurrentRoot()
	nullifierVal, scope := elem(1), elem(2)

	first := r.VerifyProof(nil, root, nullifierVal, scope, nil)
	if !first.Valid {
		t.Fatalf("first verify should succeed, got %+v", first)
	}

	second := r.VerifyProof(nil, root, nullifierVal, scope, nil)
	if second.Valid || second.Reason != ReasonReplay {
		t.Fatalf("expected Replay on second verify, got %+v", second)
	}
}

func TestRegistry_VerifyProofProductionRejectsWithoutVK(t *testing.T) {
	r := New(fixedClock)
	r.SetMode(ModeProduction)
	root := r.CurrentRoot()

	res := r.VerifyProof(nil, root, elem(1), elem(2), nil)
	if res.Valid || res.Reason != ReasonVkNotLoaded {
		t.Fatalf("expected VkNotLoaded, got %+v", res)
	}
}

func TestRegistry_GetProofVerifiesAgainstCurrentRoot(t *testing.T) {
	r := New(fixedClock)
	secret, blinding := elem(5), elem(6)
	c, err := r.RegisterIdentity(secret, blinding)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	proof, err := r.GetProof(c.Value)
	if err != nil {
		t.Fatalf("get proof failed: %v", err)
	}
	if !poseidon.Verify(c.Value, proof, r.CurrentRoot()) {
		t.Fatal("proof should verify against current root")
	}
}

func TestRegistry_NullifierEvictedWhenRootLeavesWindow(t *testing.T) {
	r := New(fixedClock)
	root0 := r.CurrentRoot()
	nullifierVal, scope := elem(7), elem(8)

	res := r.VerifyProof(nil, root0, nullifierVal, scope, nil)
	if !res.Valid {
		t.Fatalf("initial verify should succeed, got %+v", res)
	}
	if !r.nullSet.Contains(nullifierVal, scope) {
		t.Fatal("nullifier should be recorded after a valid verify")
	}

	for i := 0; i < poseidon.WindowSize; i++ {
		if _, err := r.RegisterIdentity(elem(int64(9000+i)), elem(int64(9500+i))); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}

	if r.IsRootAccepted(root0) {
		t.Fatal("root0 should have fallen out of the accepted window")
	}
	if r.nullSet.Contains(nullifierVal, scope) {
		t.Fatal("nullifier recorded against an evicted root must also be evicted")
	}
}

func TestRegistry_GetProofNotFound(t *testing.T) {
	r := New(fixedClock)
	if _, err := r.GetProof(elem(42)); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
