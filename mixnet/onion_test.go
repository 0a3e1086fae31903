package mixnet

import (
	"bytes"
	"testing"
)

func newHop(t *testing.T, id string) (Hop, [32]byte) {
	t.Helper()
	priv, pub, err := generateX25519Keypair()
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	return Hop{NodeID: id, PublicKey: pub}, priv
}

func TestOnion_SingleHopRoundTrip(t *testing.T) {
	hop, priv := newHop(t, "exit")
	var requestID [32]byte
	requestID[0] = 1

	payload := []byte("hello mixnet")
	pkt, err := BuildOnion([]Hop{hop}, payload, requestID)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	layer, err := PeelLayer(pkt, priv, requestID)
	if err != nil {
		t.Fatalf("peel failed: %v", err)
	}
	if !layer.Routing.IsExit() {
		t.Fatal("single-hop path should be marked exit")
	}
	if !bytes.Equal(layer.Forward, payload) {
		t.Fatalf("forwarded payload mismatch: got %q want %q", layer.Forward, payload)
	}
}

func TestOnion_MultiHopRoundTrip(t *testing.T) {
	hop1, priv1 := newHop(t, "relay1")
	hop2, priv2 := newHop(t, "relay2")
	hop3, priv3 := newHop(t, "exit")
	var requestID [32]byte
	requestID[5] = 9

	payload := []byte("onion payload across three hops")
	pkt, err := BuildOnion([]Hop{hop1, hop2, hop3}, payload, requestID)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	layer1, err := PeelLayer(pkt, priv1, requestID)
	if err != nil {
		t.Fatalf("peel hop1 failed: %v", err)
	}
	if layer1.Routing.IsExit() || !layer1.HasNextHop {
		t.Fatal("hop1 should not be exit and should carry a next hop")
	}

	pkt2 := &Packet{EphemeralPublic: layer1.NextHopEphemeral, EncryptedPayload: layer1.Forward}
	layer2, err := PeelLayer(pkt2, priv2, requestID)
	if err != nil {
		t.Fatalf("peel hop2 failed: %v", err)
	}
	if layer2.Routing.IsExit() || !layer2.HasNextHop {
		t.Fatal("hop2 should not be exit and should carry a next hop")
	}

	pkt3 := &Packet{EphemeralPublic: layer2.NextHopEphemeral, EncryptedPayload: layer2.Forward}
	layer3, err := PeelLayer(pkt3, priv3, requestID)
	if err != nil {
		t.Fatalf("peel hop3 failed: %v", err)
	}
	if !layer3.Routing.IsExit() {
		t.Fatal("hop3 should be the exit layer")
	}
	if !bytes.Equal(layer3.Forward, payload) {
		t.Fatalf("final payload mismatch: got %q want %q", layer3.Forward, payload)
	}
}

func TestOnion_OversizedPayloadRejected(t *testing.T) {
	hop, _ := newHop(t, "exit")
	var requestID [32]byte
	big := make([]byte, MaxPayloadSize+1)

	if _, err := BuildOnion([]Hop{hop}, big, requestID); err != ErrOversizedPayload {
		t.Fatalf("expected ErrOversizedPayload, got %v", err)
	}
}

func TestOnion_EmptyPathRejected(t *testing.T) {
	var requestID [32]byte
	if _, err := BuildOnion(nil, []byte("x"), requestID); err != ErrEmptyPath {
		t.Fatalf("expected ErrEmptyPath, got %v", err)
	}
}

func TestOnion_WrongKeyFailsDecryption(t *testing.T) {
	hop, _ := newHop(t, "exit")
	wrongPriv, _, err := generateX25519Keypair()
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	var requestID [32]byte

	pkt, err := BuildOnion([]Hop{hop}, []byte("secret"), requestID)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if _, err := PeelLayer(pkt, wrongPriv, requestID); err != ErrDecryptFailed {
		t.Fatalf("expected ErrDecryptFailed for wrong key, got %v", err)
	}
}
