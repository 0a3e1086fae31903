// Package credentials implements the local, symmetric-key credential
// store: BLAKE3 commitments over (value, salt), keyed-MAC proofs of
// possession, and optional ed25519 issuer signatures.
//
// Credentials are deliberately not ZK-bound to the identity tree — they
// serve first-party policy gating (age, residency, membership) in the
// host application, not cross-context anonymous proof. BLAKE3 usage here
// follows the pack's BLAKE3-for-content-hashing idiom (parsdao-pars'
// dex package hashes pool state the same way, via blake3.New()); the
// keyed MAC uses BLAKE3's native key parameter rather than a separate
// HMAC construction.
package credentials

import (
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

// Error is a sentinel credential-store error.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrNotFound        Error = "credentials: not found"
	ErrExpired         Error = "credentials: expired"
	ErrSignatureFailed Error = "credentials: issuer signature verification failed"
)

const saltSize = 32

// StoredCredential is a persisted credential fact.
type StoredCredential struct {
	Type       string
	Value      []byte
	Commitment [32]byte
	Salt       [32]byte
	Issuer     ed25519.PublicKey
	Signature  []byte
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Proof is a time-bound proof of possession derived from a stored
// credential, without revealing value or salt to the verifier ahead of
// time.
type Proof struct {
	Type      string
	Commitment [32]byte
	MAC       [32]byte
	Challenge [32]byte
	ExpiresAt time.Time
	IssuerSig []byte
}

// Store holds credentials and outstanding proofs keyed by commitment.
type Store struct {
	mu           sync.RWMutex
	masterSecret []byte
	creds        map[[32]byte]StoredCredential
	proofs       map[[32]byte]Proof
	now          func() time.Time
}

// New creates a credential store. masterSecret keys the MAC used by
// create_proof/verify; now supplies the clock for expiry checks.
func New(masterSecret []byte, now func() time.Time) *Store {
	return &Store{
		masterSecret: masterSecret,
		creds:        make(map[[32]byte]StoredCredential),
		proofs:       make(map[[32]byte]Proof),
		now:          now,
	}
}

func commitmentOf(value, salt []byte) [32]byte {
	h := blake3.New()
	h.Write(value)
	h.Write(salt)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func randomBytes32() ([32]byte, error) {
	var b [32]byte
	_, err := rand.Read(b[:])
	return b, err
}

// Store persists a new credential: a random salt is generated and
// commitment = BLAKE3(value || salt).
func (s *Store) Store(credType string, value []byte, ttl time.Duration) (StoredCredential, error) {
	salt, err := randomBytes32()
	if err != nil {
		return StoredCredential{}, err
	}
	commitment := commitmentOf(value, salt[:])

	sc := StoredCredential{
		Type:       credType,
		Value:      append([]byte(nil), value...),
		Commitment: commitment,
		Salt:       salt,
		CreatedAt:  s.now(),
		ExpiresAt:  s.now().Add(ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[commitment] = sc
	return sc, nil
}

// StoreSigned persists a credential plus an issuer's detached signature
// over the credential value. The signature is checked against issuer
// before anything is stored; a bad signature returns ErrSignatureFailed.
func (s *Store) StoreSigned(credType string, value []byte, issuer ed25519.PublicKey, signature []byte, ttl time.Duration) (StoredCredential, error) {
	salt, err := randomBytes32()
	if err != nil {
		return StoredCredential{}, err
	}
	commitment := commitmentOf(value, salt[:])

	if !ed25519.Verify(issuer, value, signature) {
		return StoredCredential{}, ErrSignatureFailed
	}

	sc := StoredCredential{
		Type:       credType,
		Value:      append([]byte(nil), value...),
		Commitment: commitment,
		Salt:       salt,
		Issuer:     issuer,
		Signature:  signature,
		CreatedAt:  s.now(),
		ExpiresAt:  s.now().Add(ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[commitment] = sc
	return sc, nil
}

// CreateProof generates a random challenge and derives
// mac = BLAKE3_keyed(master_secret; salt || value || challenge) for the
// credential at commitment.
func (s *Store) CreateProof(commitment [32]byte, ttl time.Duration) (Proof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.creds[commitment]
	if !ok {
		return Proof{}, ErrNotFound
	}
	if s.now().After(sc.ExpiresAt) {
		return Proof{}, ErrExpired
	}

	challenge, err := randomBytes32()
	if err != nil {
		return Proof{}, err
	}

	mac := s.keyedMAC(sc.Salt[:], sc.Value, challenge[:])

	p := Proof{
		Type:       sc.Type,
		Commitment: commitment,
		MAC:        mac,
		Challenge:  challenge,
		ExpiresAt:  s.now().Add(ttl),
		IssuerSig:  sc.Signature,
	}
	s.proofs[commitment] = p
	return p, nil
}

func (s *Store) keyedMAC(salt, value, challenge []byte) [32]byte {
	var key [32]byte
	copy(key[:], s.masterSecret)
	h, _ := blake3.NewKeyed(key[:])
	h.Write(salt)
	h.Write(value)
	h.Write(challenge)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Verify recomputes the commitment and MAC from value and salt and
// checks both against proof, rejecting expired proofs.
func (s *Store) Verify(proof Proof, value []byte, salt [32]byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.now().After(proof.ExpiresAt) {
		return false
	}

	wantCommitment := commitmentOf(value, salt[:])
	if wantCommitment != proof.Commitment {
		return false
	}

	wantMAC := s.keyedMAC(salt[:], value, proof.Challenge[:])
	return wantMAC == proof.MAC
}

// CleanupExpired removes expired credentials and proofs, returning the
// counts of each removed.
func (s *Store) CleanupExpired() (credsRemoved, proofsRemoved int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, c := range s.creds {
		if now.After(c.ExpiresAt) {
			delete(s.creds, k)
			credsRemoved++
		}
	}
	for k, p := range s.proofs {
		if now.After(p.ExpiresAt) {
			delete(s.proofs, k)
			proofsRemoved++
		}
	}
	return credsRemoved, proofsRemoved
}

// Count returns the number of stored credentials.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.creds)
}
