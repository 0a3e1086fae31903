// Package cache implements the private content cache: a content-
// addressed, BLAKE3-committed, AES-GCM-encrypted store with TTL-based
// and capacity-based eviction plus a batch-retrieve entry point shaped
// to resemble a PIR query (batching is not part of the base cache
// contract, but a content-cache equivalent issues multi-key reads as a
// single round trip, which this mirrors without implementing real
// private information retrieval).
//
// The bounded in-memory map + single-lock eviction shape follows
// core/rawdb/memorydb.go's in-memory KV store idiom.
package cache

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

const itemKeyDomain = "nonos-content-cache-item-key"

var ErrIntegrityFailed = errors.New("cache: decrypted content fails commitment check")

type entry struct {
	ciphertext []byte // nonce || ciphertext+tag
	createdAt  time.Time
	expiresAt  time.Time
}

// Cache is an encrypted, content-addressed, TTL-evicting cache.
type Cache struct {
	mu        sync.Mutex
	masterKey []byte
	items     map[[32]byte]entry
	capacity  int
}

// New creates a cache bounded to capacity items, keyed under masterKey.
func New(masterKey []byte, capacity int) *Cache {
	return &Cache{
		masterKey: masterKey,
		items:     make(map[[32]byte]entry),
		capacity:  capacity,
	}
}

// Store computes commitment = BLAKE3(content), encrypts content under a
// per-item key derived from the master key and commitment, and inserts
// it. If the cache is at capacity, the oldest expired item is evicted;
// if none are expired, the oldest by CreatedAt is evicted.
func (c *Cache) Store(content []byte, ttl time.Duration) ([32]byte, error) {
	commitment := blake3.Sum256(content)
	itemKey := deriveItemKey(c.masterKey, commitment)

	ciphertext, err := sealItem(itemKey, content)
	if err != nil {
		return commitment, err
	}

	now := time.Now()
	e := entry{ciphertext: ciphertext, createdAt: now, expiresAt: now.Add(ttl)}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[commitment]; !exists && len(c.items) >= c.capacity && c.capacity > 0 {
		c.evictOneLocked()
	}
	c.items[commitment] = e
	return commitment, nil
}

// Retrieve returns the plaintext for commitment, or ok=false if unknown
// or expired. On hit, it re-verifies BLAKE3(plaintext) == commitment,
// since that integrity check is independent of AES-GCM's own tag.
func (c *Cache) Retrieve(commitment [32]byte) (plaintext []byte, ok bool) {
	c.mu.Lock()
	e, found := c.items[commitment]
	c.mu.Unlock()
	if !found {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		return nil, false
	}

	itemKey := deriveItemKey(c.masterKey, commitment)
	plain, err := openItem(itemKey, e.ciphertext)
	if err != nil {
		return nil, false
	}
	if blake3.Sum256(plain) != commitment {
		return nil, false
	}
	return plain, true
}

// BatchRetrieve resolves multiple commitments in one call; it behaves
// exactly like calling Retrieve for each, batched so a caller issuing
// many lookups does so in a single round trip.
func (c *Cache) BatchRetrieve(commitments [][32]byte) map[[32]byte][]byte {
	out := make(map[[32]byte][]byte, len(commitments))
	for _, commitment := range commitments {
		if plain, ok := c.Retrieve(commitment); ok {
			out[commitment] = plain
		}
	}
	return out
}

// CleanupExpired removes expired entries and returns the count removed.
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for k, e := range c.items {
		if now.After(e.expiresAt) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

// evictOneLocked evicts the oldest expired item, or if none are
// expired, the oldest by CreatedAt. Caller must hold c.mu.
func (c *Cache) evictOneLocked() {
	now := time.Now()

	var oldestExpiredKey [32]byte
	haveExpired := false
	var oldestExpiredAt time.Time

	var oldestKey [32]byte
	haveAny := false
	var oldestAt time.Time

	for k, e := range c.items {
		if now.After(e.expiresAt) {
			if !haveExpired || e.createdAt.Before(oldestExpiredAt) {
				oldestExpiredKey, oldestExpiredAt, haveExpired = k, e.createdAt, true
			}
		}
		if !haveAny || e.createdAt.Before(oldestAt) {
			oldestKey, oldestAt, haveAny = k, e.createdAt, true
		}
	}

	if haveExpired {
		delete(c.items, oldestExpiredKey)
		return
	}
	if haveAny {
		delete(c.items, oldestKey)
	}
}

// Count returns the number of stored items.
func (c *Cache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func deriveItemKey(masterKey []byte, commitment [32]byte) []byte {
	material := make([]byte, 0, len(masterKey)+32)
	material = append(material, masterKey...)
	material = append(material, commitment[:]...)

	h := blake3.NewDeriveKey(itemKeyDomain)
	h.Write(material)
	key := make([]byte, 32)
	h.Sum(key[:0])
	return key
}

func sealItem(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return append(nonce, gcm.Seal(nil, nonce, plaintext, nil)...), nil
}

func openItem(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	ns := gcm.NonceSize()
	if len(data) < ns {
		return nil, errors.New("cache: ciphertext too short")
	}
	return gcm.Open(nil, data[:ns], data[ns:], nil)
}
