package vault

import (
	"bytes"
	"testing"
)

func TestSplitReconstruct_RoundTrip(t *testing.T) {
	secret := []byte("the quick brown fox browser cookie jar")
	shares, err := Split(secret, 3, 5, nil)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if len(shares) != 5 {
		t.Fatalf("expected 5 shares, got %d", len(shares))
	}

	got, err := Reconstruct(shares[:3], 3)
	if err != nil {
		t.Fatalf("reconstruct failed: %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Fatalf("reconstructed secret mismatch: got %q want %q", got, secret)
	}
}

func TestSplitReconstruct_AnyKSubsetWorks(t *testing.T) {
	secret := []byte{1, 2, 3, 4, 5}
	shares, err := Split(secret, 2, 4, nil)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}

	subset := []Share{shares[1], shares[3]}
	got, err := Reconstruct(subset, 2)
	if err != nil {
		t.Fatalf("reconstruct failed: %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Fatal("any k-subset should reconstruct exactly")
	}
}

func TestReconstruct_RejectsZeroIndex(t *testing.T) {
	shares := []Share{{Index: 0, Bytes: []byte{1}}, {Index: 1, Bytes: []byte{2}}}
	if _, err := Reconstruct(shares, 2); err != ErrZeroIndex {
		t.Fatalf("expected ErrZeroIndex, got %v", err)
	}
}

func TestReconstruct_RejectsDuplicateIndex(t *testing.T) {
	shares := []Share{{Index: 1, Bytes: []byte{1}}, {Index: 1, Bytes: []byte{2}}}
	if _, err := Reconstruct(shares, 2); err != ErrDuplicateIndex {
		t.Fatalf("expected ErrDuplicateIndex, got %v", err)
	}
}

func TestReconstruct_RejectsLengthMismatch(t *testing.T) {
	shares := []Share{{Index: 1, Bytes: []byte{1, 2}}, {Index: 2, Bytes: []byte{1}}}
	if _, err := Reconstruct(shares, 2); err != ErrLengthMismatch {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestReconstruct_RejectsTooFewShares(t *testing.T) {
	shares := []Share{{Index: 1, Bytes: []byte{1}}}
	if _, err := Reconstruct(shares, 2); err != ErrTooFewShares {
		t.Fatalf("expected ErrTooFewShares, got %v", err)
	}
}

func TestSplit_RejectsInvalidThreshold(t *testing.T) {
	if _, err := Split([]byte("x"), 0, 5, nil); err != ErrInvalidThreshold {
		t.Fatalf("expected ErrInvalidThreshold for k=0, got %v", err)
	}
	if _, err := Split([]byte("x"), 6, 5, nil); err != ErrInvalidThreshold {
		t.Fatalf("expected ErrInvalidThreshold for k>n, got %v", err)
	}
}

func TestSplit_PairsNodeIDs(t *testing.T) {
	shares, err := Split([]byte("x"), 1, 2, []string{"node-a", "node-b"})
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if shares[0].NodeID != "node-a" || shares[1].NodeID != "node-b" {
		t.Fatalf("node IDs not paired correctly: %+v", shares)
	}
}
