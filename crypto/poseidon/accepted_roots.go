package poseidon

import (
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// WindowSize is the number of historical roots kept acceptable for proof
// verification.
const WindowSize = 256

// AcceptedRoots is a FIFO window of historical Merkle roots. A proof is
// valid against any root currently in the window; the oldest root is
// evicted once the window overflows.
type AcceptedRoots struct {
	mu     sync.RWMutex
	roots  []fr.Element // ring buffer contents, oldest first
	lookup map[fr.Element]struct{}
}

// NewAcceptedRoots creates an empty accepted-roots window.
func NewAcceptedRoots() *AcceptedRoots {
	return &AcceptedRoots{
		roots:  make([]fr.Element, 0, WindowSize),
		lookup: make(map[fr.Element]struct{}, WindowSize),
	}
}

// Push adds a new root to the window, evicting the oldest entry if the
// window is full. Must be called under the same writer acquisition that
// mutates the corresponding Merkle tree, so tree mutation and root
// acceptance are observed together.
//
// When Push evicts a root it returns that root and ok=true. Callers that
// also maintain a nullifier.Set keyed to these roots (privacy/identity,
// privacy/mixer) must feed the evicted root into Set.EvictForRoot in the
// same writer acquisition, so a nullifier is never evicted while its root
// is still accepted — see nullifier.Set.EvictForRoot.
func (a *AcceptedRoots) Push(root fr.Element) (evicted fr.Element, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.roots) >= WindowSize {
		evicted = a.roots[0]
		ok = true
		a.roots = a.roots[1:]
		delete(a.lookup, evicted)
	}
	a.roots = append(a.roots, root)
	a.lookup[root] = struct{}{}
	return evicted, ok
}

// IsAccepted reports whether root is currently in the window.
func (a *AcceptedRoots) IsAccepted(root fr.Element) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.lookup[root]
	return ok
}

// Current returns the most recently pushed root, or the zero element if
// the window is empty.
func (a *AcceptedRoots) Current() fr.Element {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.roots) == 0 {
		return fr.Element{}
	}
	return a.roots[len(a.roots)-1]
}

// Oldest returns the oldest root still in the window, and whether the
// window is non-empty.
func (a *AcceptedRoots) Oldest() (fr.Element, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.roots) == 0 {
		return fr.Element{}, false
	}
	return a.roots[0], true
}

// Len returns the number of roots currently in the window.
func (a *AcceptedRoots) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.roots)
}
