// mixbatch.go implements the mix-batch policy: pooling decrypted-but-
// not-forwarded packets with random jitter, then flushing them in
// Fisher-Yates-shuffled order once the pool reaches its minimum size.
//
// The concurrency shape — a single lock guarding pool mutation so a
// flush is atomic with respect to concurrent decrypts — follows the same
// discipline as the FullHandshake channel/waitgroup coordination in
// p2p/handshake_ecies.go, adapted from "coordinate two goroutines for
// one handshake" to "coordinate N decrypting goroutines against one
// shared pool."
//
// The forward/exit dispatch itself is a pair of callback slots set once
// at construction, guarded by their own lock so SetForwardCallback and
// SetExitCallback can be called before or after Enqueue starts flushing.
package mixnet

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"
	"sync"
	"time"
)

// PooledPacket is a decrypted layer waiting to be forwarded, along with
// its residual jitter delay.
type PooledPacket struct {
	Layer       *DecryptedLayer
	ReadyAt     time.Time
	enqueuedSeq uint64
}

// BatchConfig configures the mix pool.
type BatchConfig struct {
	MinPoolSize int
	MaxDelayMs  int
}

// ForwardFunc hands a re-wrapped onion packet to the transport responsible
// for reaching the next physical relay. ExitFunc hands the fully-peeled
// payload to whatever consumes traffic that terminates at this node. Both
// are set once at construction via SetForwardCallback/SetExitCallback and
// must be safe for concurrent use: a flush dispatches its whole batch from
// one goroutine, and multiple flushes can be in flight at once.
type ForwardFunc func(NodeID, *Packet)
type ExitFunc func(payload []byte)

// Pool accumulates decrypted packets and releases them in shuffled,
// jitter-respecting order once it reaches MinPoolSize.
type Pool struct {
	mu      sync.Mutex
	cfg     BatchConfig
	pending []PooledPacket
	seq     uint64

	cbMu      sync.RWMutex
	forwardFn ForwardFunc
	exitFn    ExitFunc
}

// NewPool creates a mix pool with the given configuration.
func NewPool(cfg BatchConfig) *Pool {
	return &Pool{cfg: cfg}
}

// SetForwardCallback installs the function invoked for each flushed
// packet whose layer is not an exit layer. Replaces any previously set
// callback.
func (p *Pool) SetForwardCallback(fn ForwardFunc) {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()
	p.forwardFn = fn
}

// SetExitCallback installs the function invoked for each flushed packet
// whose layer is an exit layer. Replaces any previously set callback.
func (p *Pool) SetExitCallback(fn ExitFunc) {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()
	p.exitFn = fn
}

// Enqueue adds a decrypted layer to the pool with a random jitter delay
// in [0, MaxDelayMs]. If the pool has reached MinPoolSize, it is
// shuffled and flushed atomically with respect to concurrent Enqueue
// calls, and the flushed batch is returned; otherwise returns nil.
func (p *Pool) Enqueue(layer *DecryptedLayer) ([]PooledPacket, error) {
	delay, err := randomJitter(p.cfg.MaxDelayMs)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	p.pending = append(p.pending, PooledPacket{
		Layer:       layer,
		ReadyAt:     time.Now().Add(delay),
		enqueuedSeq: p.seq,
	})

	if len(p.pending) < p.cfg.MinPoolSize {
		return nil, nil
	}

	batch := p.pending
	p.pending = nil
	if err := shufflePackets(batch); err != nil {
		// Restore the pool rather than lose packets on a CSPRNG failure.
		p.pending = batch
		return nil, err
	}
	go p.dispatchBatch(batch)
	return batch, nil
}

// dispatchBatch waits out each packet's residual jitter delay and then
// hands it to the forward or exit callback depending on whether PeelLayer
// marked its layer as an exit. A non-exit packet is re-wrapped as a
// Packet addressed to the hop that follows NextHopEphemeral, since the
// onion already carries that hop's ephemeral key for its own decryption.
// Packets are dropped silently when no callback is registered, matching
// an idle pool that nothing has wired up yet.
func (p *Pool) dispatchBatch(batch []PooledPacket) {
	p.cbMu.RLock()
	forwardFn, exitFn := p.forwardFn, p.exitFn
	p.cbMu.RUnlock()
	if forwardFn == nil && exitFn == nil {
		return
	}

	for _, pp := range batch {
		if d := time.Until(pp.ReadyAt); d > 0 {
			time.Sleep(d)
		}
		layer := pp.Layer
		if layer == nil {
			continue
		}
		if layer.Routing.IsExit() {
			if exitFn != nil {
				exitFn(layer.Forward)
			}
			continue
		}
		if layer.HasNextHop && forwardFn != nil {
			forwardFn(layer.NextNodeID, &Packet{
				EphemeralPublic:  layer.NextHopEphemeral,
				EncryptedPayload: layer.Forward,
			})
		}
	}
}

// Len reports the current pool size.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func randomJitter(maxDelayMs int) (time.Duration, error) {
	if maxDelayMs <= 0 {
		return 0, nil
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(maxDelayMs)+1))
	if err != nil {
		return 0, err
	}
	return time.Duration(n.Int64()) * time.Millisecond, nil
}

// shufflePackets performs a CSPRNG-driven Fisher-Yates shuffle in place.
func shufflePackets(pkts []PooledPacket) error {
	for i := len(pkts) - 1; i > 0; i-- {
		j, err := randomIndex(i + 1)
		if err != nil {
			return err
		}
		pkts[i], pkts[j] = pkts[j], pkts[i]
	}
	return nil
}

func randomIndex(n int) (int, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(buf[:])
	return int(v % uint64(n)), nil
}
