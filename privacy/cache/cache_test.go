package cache

import (
	"bytes"
	"testing"
	"time"
)

func TestCache_StoreAndRetrieve(t *testing.T) {
	c := New([]byte("master-key"), 10)
	content := []byte("cached content")

	commitment, err := c.Store(content, time.Hour)
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}

	got, ok := c.Retrieve(commitment)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("content mismatch: got %q want %q", got, content)
	}
}

func TestCache_RetrieveUnknownMisses(t *testing.T) {
	c := New([]byte("master-key"), 10)
	var bogus [32]byte
	if _, ok := c.Retrieve(bogus); ok {
		t.Fatal("expected miss for unknown commitment")
	}
}

func TestCache_RetrieveExpiredMisses(t *testing.T) {
	c := New([]byte("master-key"), 10)
	commitment, _ := c.Store([]byte("stale"), -time.Minute)
	if _, ok := c.Retrieve(commitment); ok {
		t.Fatal("expected miss for expired entry")
	}
}

func TestCache_BatchRetrieve(t *testing.T) {
	c := New([]byte("master-key"), 10)
	c1, _ := c.Store([]byte("one"), time.Hour)
	c2, _ := c.Store([]byte("two"), time.Hour)

	results := c.BatchRetrieve([][32]byte{c1, c2})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !bytes.Equal(results[c1], []byte("one")) || !bytes.Equal(results[c2], []byte("two")) {
		t.Fatal("batch retrieve content mismatch")
	}
}

func TestCache_EvictsOldestWhenFull(t *testing.T) {
	c := New([]byte("master-key"), 2)
	c1, _ := c.Store([]byte("first"), time.Hour)
	time.Sleep(time.Millisecond)
	_, _ = c.Store([]byte("second"), time.Hour)
	time.Sleep(time.Millisecond)
	_, _ = c.Store([]byte("third"), time.Hour)

	if c.Count() != 2 {
		t.Fatalf("expected capacity-bounded count of 2, got %d", c.Count())
	}
	if _, ok := c.Retrieve(c1); ok {
		t.Fatal("oldest item should have been evicted")
	}
}

func TestCache_CleanupExpired(t *testing.T) {
	c := New([]byte("master-key"), 10)
	c.Store([]byte("a"), -time.Minute)
	c.Store([]byte("b"), time.Hour)

	removed := c.CleanupExpired()
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if c.Count() != 1 {
		t.Fatalf("expected 1 remaining, got %d", c.Count())
	}
}
