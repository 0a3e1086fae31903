// Package mixnet implements the onion-packet mix relay: per-hop layer
// encryption with X25519 + BLAKE3 key derivation + AES-256-GCM, and a
// pooled, jitter-delayed, Fisher-Yates-shuffled batch forwarding stage.
//
// The layered-secret-then-derive-keys shape follows the same pattern as
// p2p/handshake_ecies.go (ECDH shared secret, then DeriveSecrets derives
// the frame AES/MAC keys); here the curve is X25519 rather than
// secp256k1, the derivation is BLAKE3's keyed-derive mode rather than
// SHA3-based DeriveFrameKeys, and there is no persistent session — each
// hop of each packet gets a fresh ephemeral keypair, matching an
// onion-routing model rather than devp2p's long-lived encrypted
// transport.
package mixnet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/curve25519"
)

const (
	// MaxPayloadSize is the largest payload accepted at construct time.
	MaxPayloadSize = 8 * 1024

	routingInfoSize = 40
	nonceSize       = 12
	layerKeySize    = 32

	layerKeyDomain = "nonos-mixnet-layer-key"
)

// Errors returned by packet construction and layer processing.
var (
	ErrOversizedPayload = errors.New("mixnet: payload exceeds maximum size")
	ErrEmptyPath        = errors.New("mixnet: path must have at least one hop")
	ErrDecryptFailed    = errors.New("mixnet: layer decryption failed")
	ErrShortPacket      = errors.New("mixnet: packet too short to contain routing info")
)

// Flags on RoutingInfo.
const (
	FlagExit byte = 1 << 0
)

// NodeID is the fixed 32-byte address of a relay, carried as next_node
// inside RoutingInfo so a relay peeling a layer learns which physical
// node to forward to next — not just the ephemeral DH key for that hop.
type NodeID [32]byte

// DeriveNodeID derives a wire NodeID from a relay's human-readable
// identifier via BLAKE3, so Hop.NodeID can be carried inside RoutingInfo's
// fixed-size next_node field regardless of how long the name is.
func DeriveNodeID(name string) NodeID {
	return NodeID(blake3.Sum256([]byte(name)))
}

// RoutingInfo is the fixed 40-byte header carried in plaintext at the
// front of every decrypted layer: the next hop's NodeID, a flags byte,
// and 7 reserved bytes. NextNode is the zero NodeID on the exit layer.
type RoutingInfo struct {
	NextNode NodeID
	Flags    byte
	Reserved [7]byte
}

// Marshal encodes RoutingInfo to its fixed 40-byte wire form:
// next_node[0:32] || flags[32] || reserved[33:40].
func (ri RoutingInfo) Marshal() [routingInfoSize]byte {
	var out [routingInfoSize]byte
	copy(out[0:32], ri.NextNode[:])
	out[32] = ri.Flags
	copy(out[33:40], ri.Reserved[:])
	return out
}

// UnmarshalRoutingInfo decodes a 40-byte prefix into a RoutingInfo.
func UnmarshalRoutingInfo(b []byte) (RoutingInfo, error) {
	if len(b) < routingInfoSize {
		return RoutingInfo{}, ErrShortPacket
	}
	var ri RoutingInfo
	copy(ri.NextNode[:], b[0:32])
	ri.Flags = b[32]
	copy(ri.Reserved[:], b[33:40])
	return ri, nil
}

func (ri RoutingInfo) IsExit() bool { return ri.Flags&FlagExit != 0 }

// Hop identifies one relay in a path: its routable NodeID and its static
// X25519 public key.
type Hop struct {
	NodeID    string
	PublicKey [32]byte
}

// Packet is the wire form handed between relays: the ephemeral public
// key used for this hop's ECDH, plus the encrypted payload
// (nonce || ciphertext+tag).
type Packet struct {
	EphemeralPublic  [32]byte
	EncryptedPayload []byte
}

// BuildOnion layer-encrypts payload for delivery through path, iterating
// from the last (exit) hop to the first so each successive layer wraps
// the one built before it. requestID ties all layers to one logical
// request for key derivation purposes.
func BuildOnion(path []Hop, payload []byte, requestID [32]byte) (*Packet, error) {
	if len(path) == 0 {
		return nil, ErrEmptyPath
	}
	if len(payload) > MaxPayloadSize {
		return nil, ErrOversizedPayload
	}

	inner := payload
	var innerEphemeral *[32]byte

	for i := len(path) - 1; i >= 0; i-- {
		hop := path[i]

		ephPriv, ephPub, err := generateX25519Keypair()
		if err != nil {
			return nil, err
		}

		shared, err := curve25519.X25519(ephPriv[:], hop.PublicKey[:])
		if err != nil {
			return nil, err
		}
		layerKey := deriveLayerKey(shared, requestID)

		var ri RoutingInfo
		if i == len(path)-1 {
			ri.Flags = FlagExit
		} else {
			ri.NextNode = DeriveNodeID(path[i+1].NodeID)
		}
		riBytes := ri.Marshal()

		plaintext := make([]byte, 0, routingInfoSize+32+len(inner))
		plaintext = append(plaintext, riBytes[:]...)
		if innerEphemeral != nil {
			plaintext = append(plaintext, innerEphemeral[:]...)
		}
		plaintext = append(plaintext, inner...)

		ciphertext, err := sealLayer(layerKey, ephPub, plaintext)
		if err != nil {
			return nil, err
		}

		inner = ciphertext
		innerEphemeral = &ephPub
	}

	return &Packet{EphemeralPublic: *innerEphemeral, EncryptedPayload: inner}, nil
}

// DecryptedLayer is the result of peeling one onion layer.
type DecryptedLayer struct {
	Routing RoutingInfo
	// NextNodeID is the physical relay to forward to, copied from
	// Routing.NextNode. Only meaningful when HasNextHop is true.
	NextNodeID NodeID
	// NextHopEphemeral is the ephemeral X25519 public key the next hop
	// needs to decrypt its own layer. Set when Routing is not an exit
	// layer.
	NextHopEphemeral [32]byte
	HasNextHop       bool
	// Forward is the remaining onion to send on (non-exit), or the final
	// plaintext payload (exit).
	Forward []byte
}

// PeelLayer decrypts one layer of pkt using the local node's static
// X25519 private key, deriving the same layer key the sender computed
// for this hop.
func PeelLayer(pkt *Packet, staticPriv [32]byte, requestID [32]byte) (*DecryptedLayer, error) {
	shared, err := curve25519.X25519(staticPriv[:], pkt.EphemeralPublic[:])
	if err != nil {
		return nil, err
	}
	layerKey := deriveLayerKey(shared, requestID)

	plaintext, err := openLayer(layerKey, pkt.EphemeralPublic, pkt.EncryptedPayload)
	if err != nil {
		return nil, ErrDecryptFailed
	}

	ri, err := UnmarshalRoutingInfo(plaintext)
	if err != nil {
		return nil, err
	}
	rest := plaintext[routingInfoSize:]

	dl := &DecryptedLayer{Routing: ri}
	if ri.IsExit() {
		dl.Forward = rest
		return dl, nil
	}

	if len(rest) < 32 {
		return nil, ErrShortPacket
	}
	dl.NextNodeID = ri.NextNode
	copy(dl.NextHopEphemeral[:], rest[:32])
	dl.HasNextHop = true
	dl.Forward = rest[32:]
	return dl, nil
}

func generateX25519Keypair() (priv, pub [32]byte, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return priv, pub, err
	}
	// Clamp per RFC 7748.
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pubSlice, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return priv, pub, err
	}
	copy(pub[:], pubSlice)
	return priv, pub, nil
}

func deriveLayerKey(shared []byte, requestID [32]byte) []byte {
	material := make([]byte, 0, len(shared)+len(requestID))
	material = append(material, shared...)
	material = append(material, requestID[:]...)

	h := blake3.NewDeriveKey(layerKeyDomain)
	h.Write(material)
	key := make([]byte, layerKeySize)
	h.Sum(key[:0])
	return key
}

func sealLayer(key []byte, aad [32]byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := gcm.Seal(nil, nonce, plaintext, aad[:])
	return append(nonce, out...), nil
}

func openLayer(key []byte, aad [32]byte, encrypted []byte) ([]byte, error) {
	if len(encrypted) < nonceSize {
		return nil, ErrShortPacket
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, err
	}
	nonce := encrypted[:nonceSize]
	ciphertext := encrypted[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, aad[:])
}
