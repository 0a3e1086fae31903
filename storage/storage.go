// Package storage is the durable KV layer: a set of named "trees" over a
// single backing key space, a schema-version record with a linear
// migration chain, chunked pruning for range-keyed trees, and an
// authenticated-encryption hook for the secrets tree.
//
// Follows core/rawdb/key_value_store.go (KVStore interface,
// MemoryKVStore, WriteBatch) for the backing store shape and
// core/rawdb/schema.go for the prefix/key-encoding idiom (tree name as a
// byte-string prefix, big-endian-encoded numeric key suffixes for
// range-scanned trees). The versioned-open pattern follows
// core/rawdb/database.go's "read a metadata record on open, upgrade or
// refuse" convention.
package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

// CurrentSchemaVersion is the schema version this build knows how to open
// or migrate to.
const CurrentSchemaVersion uint32 = 1

const schemaVersionKey = "__schema_version__"

// Tree names, per the persisted layout.
const (
	TreeSchema    = "schema"
	TreeIdentity  = "identity"
	TreePeers     = "peers"
	TreeMetrics   = "metrics"
	TreeEpochs    = "epochs"
	TreeConfig    = "config"
	TreeClaims    = "claims"
	TreeSecrets   = "secrets"
	TreeAuditLog  = "audit_log"
)

var knownTrees = []string{
	TreeSchema, TreeIdentity, TreePeers, TreeMetrics, TreeEpochs,
	TreeConfig, TreeClaims, TreeSecrets, TreeAuditLog,
}

// Errors.
var (
	ErrNotFound        = errors.New("storage: key not found")
	ErrSchemaTooNew    = errors.New("storage: on-disk schema version is newer than this build supports")
	ErrUnknownTree     = errors.New("storage: unknown tree name")
	ErrDecryptFailed   = errors.New("storage: secret decryption failed")
)

// Migration records one step of the schema migration chain.
type Migration struct {
	From       uint32    `json:"from"`
	To         uint32    `json:"to"`
	At         time.Time `json:"at"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
}

// schemaRecord is the value stored under the schema tree's
// __schema_version__ key.
type schemaRecord struct {
	Version       uint32      `json:"version"`
	CreatedAt     time.Time   `json:"created_at"`
	LastMigration *time.Time  `json:"last_migration,omitempty"`
	Migrations    []Migration `json:"migrations"`
}

// MigrationFunc upgrades the store from one schema version to the next.
type MigrationFunc func(s *Store) error

// Entry is a single stored value plus its raw key, used for range scans.
type Entry struct {
	Key   []byte
	Value []byte
}

// memTree is an in-memory named tree: a sorted-on-read map of keys to
// opaque byte values, scoped to one logical tree name.
type memTree struct {
	data map[string][]byte
}

func newMemTree() *memTree {
	return &memTree{data: make(map[string][]byte)}
}

// Store is the durable KV layer. It owns one memTree per named tree, a
// clock, and an optional secrets-encryption key.
type Store struct {
	mu    sync.RWMutex
	trees map[string]*memTree
	now   func() time.Time

	secretsKey []byte // derives per-key AES-GCM keys; nil -> pass-through (in-clear)

	migrations map[uint32]MigrationFunc
}

// Option configures a new Store.
type Option func(*Store)

// WithClock overrides the store's time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSecretsKey enables authenticated encryption (AES-256-GCM under a
// BLAKE3-derived key, mirroring the cache package's per-item key
// derivation) for the secrets tree. Without this option, secret writes
// are pass-through in-clear, exactly as documented on the EncryptionKeys
// hook: the implementer decided to wire real encryption here rather than
// leave it pass-through (see DESIGN.md's Open Question decisions).
func WithSecretsKey(masterKey []byte) Option {
	return func(s *Store) { s.secretsKey = masterKey }
}

// New opens a store, running the schema open/migrate/refuse sequence.
// If no schema record exists, CurrentSchemaVersion is written. If the
// on-disk version is older, registered migrations run in order. If it is
// newer, New refuses with ErrSchemaTooNew.
func New(migrations map[uint32]MigrationFunc, opts ...Option) (*Store, error) {
	s := &Store{
		trees:      make(map[string]*memTree),
		now:        time.Now,
		migrations: migrations,
	}
	for _, name := range knownTrees {
		s.trees[name] = newMemTree()
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.openSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) openSchema() error {
	raw, ok := s.trees[TreeSchema].data[schemaVersionKey]
	if !ok {
		rec := schemaRecord{Version: CurrentSchemaVersion, CreatedAt: s.now()}
		return s.putSchemaRecord(rec)
	}

	var rec schemaRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return err
	}
	if rec.Version > CurrentSchemaVersion {
		return ErrSchemaTooNew
	}
	for rec.Version < CurrentSchemaVersion {
		fn, ok := s.migrations[rec.Version]
		if !ok {
			// No migration registered for this step; stay at the
			// recorded version rather than silently skipping ahead.
			break
		}
		start := s.now()
		err := fn(s)
		elapsed := s.now().Sub(start)
		to := rec.Version + 1
		rec.Migrations = append(rec.Migrations, Migration{
			From: rec.Version, To: to, At: start,
			DurationMs: elapsed.Milliseconds(), Success: err == nil,
		})
		if err != nil {
			_ = s.putSchemaRecord(rec)
			return err
		}
		rec.Version = to
		now := s.now()
		rec.LastMigration = &now
	}
	return s.putSchemaRecord(rec)
}

func (s *Store) putSchemaRecord(rec schemaRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.trees[TreeSchema].data[schemaVersionKey] = raw
	return nil
}

// SchemaVersion returns the currently recorded schema version.
func (s *Store) SchemaVersion() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.trees[TreeSchema].data[schemaVersionKey]
	if !ok {
		return 0
	}
	var rec schemaRecord
	_ = json.Unmarshal(raw, &rec)
	return rec.Version
}

func (s *Store) tree(name string) (*memTree, error) {
	t, ok := s.trees[name]
	if !ok {
		return nil, ErrUnknownTree
	}
	return t, nil
}

// Get reads a raw value from the named tree.
func (s *Store) Get(tree string, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.tree(tree)
	if err != nil {
		return nil, err
	}
	v, ok := t.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

// Put writes a raw value into the named tree.
func (s *Store) Put(tree string, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.tree(tree)
	if err != nil {
		return err
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	t.data[string(key)] = cp
	return nil
}

// Delete removes a key from the named tree.
func (s *Store) Delete(tree string, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.tree(tree)
	if err != nil {
		return err
	}
	delete(t.data, string(key))
	return nil
}

// Scan returns all entries in the named tree whose key lies in
// [start, end) in ascending key order. A nil end means "no upper bound".
func (s *Store) Scan(tree string, start, end []byte) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.tree(tree)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for k, v := range t.data {
		kb := []byte(k)
		if start != nil && string(kb) < string(start) {
			continue
		}
		if end != nil && string(kb) >= string(end) {
			continue
		}
		vc := make([]byte, len(v))
		copy(vc, v)
		out = append(out, Entry{Key: kb, Value: vc})
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i].Key) < string(out[j].Key) })
	return out, nil
}

// pruneChunkSize bounds each range-delete batch, to cap write
// amplification on a real disk-backed engine.
const pruneChunkSize = 1000

// PruneOlderThan deletes every entry in the named tree whose key, when
// parsed as an 8-byte big-endian millisecond timestamp prefix, is less
// than cutoff. Intended for the metrics and audit_log trees, which are
// keyed by timestamp per the persisted layout. Deletions are chunked
// into batches of pruneChunkSize. Returns the total number of entries
// removed.
func (s *Store) PruneOlderThan(tree string, cutoff time.Time) (int, error) {
	cutoffMs := uint64(cutoff.UnixMilli())
	total := 0
	for {
		n, err := s.pruneChunk(tree, cutoffMs, pruneChunkSize)
		if err != nil {
			return total, err
		}
		total += n
		if n < pruneChunkSize {
			return total, nil
		}
	}
}

func (s *Store) pruneChunk(tree string, cutoffMs uint64, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.tree(tree)
	if err != nil {
		return 0, err
	}
	var victims []string
	for k := range t.data {
		kb := []byte(k)
		if len(kb) < 8 {
			continue
		}
		ts := binary.BigEndian.Uint64(kb[:8])
		if ts < cutoffMs {
			victims = append(victims, k)
			if len(victims) >= limit {
				break
			}
		}
	}
	for _, k := range victims {
		delete(t.data, k)
	}
	return len(victims), nil
}

// TimestampKey builds a big-endian-millisecond-timestamp-prefixed key,
// for range-scanned trees (metrics, audit_log).
func TimestampKey(t time.Time, suffix []byte) []byte {
	key := make([]byte, 8+len(suffix))
	binary.BigEndian.PutUint64(key[:8], uint64(t.UnixMilli()))
	copy(key[8:], suffix)
	return key
}

// --- secrets tree: authenticated encryption hook ---

const secretKeyDomain = "nonos-storage-secret-key"

// PutSecret writes a secret value, encrypting it under the store's
// secrets key (if configured — otherwise pass-through in-clear, per the
// documented EncryptionKeys contract), and appends an audit-log entry.
func (s *Store) PutSecret(key []byte, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := value
	if s.secretsKey != nil {
		sealed, err := s.sealSecret(key, value)
		if err != nil {
			return err
		}
		stored = sealed
	}
	cp := make([]byte, len(stored))
	copy(cp, stored)
	s.trees[TreeSecrets].data[string(key)] = cp

	auditKey := TimestampKey(s.now(), key)
	s.trees[TreeAuditLog].data[string(auditKey)] = []byte("put")
	return nil
}

// GetSecret reads and, if a secrets key is configured, decrypts a secret
// value written by PutSecret.
func (s *Store) GetSecret(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, ok := s.trees[TreeSecrets].data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	if s.secretsKey == nil {
		cp := make([]byte, len(raw))
		copy(cp, raw)
		return cp, nil
	}
	return s.openSecret(key, raw)
}

func (s *Store) deriveSecretKey(key []byte) []byte {
	h := blake3.NewDeriveKey(secretKeyDomain)
	h.Write(s.secretsKey)
	h.Write(key)
	out := make([]byte, 32)
	h.Sum(out[:0])
	return out
}

func (s *Store) sealSecret(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.deriveSecretKey(key))
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
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	return append(nonce, sealed...), nil
}

func (s *Store) openSecret(key, stored []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.deriveSecretKey(key))
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(stored) < gcm.NonceSize() {
		return nil, ErrDecryptFailed
	}
	nonce, ciphertext := stored[:gcm.NonceSize()], stored[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plain, nil
}

// AuditLogEntries returns every audit-log entry recorded since (and
// including) since, in ascending timestamp order.
func (s *Store) AuditLogEntries(since time.Time) ([]Entry, error) {
	return s.Scan(TreeAuditLog, TimestampKey(since, nil), nil)
}
