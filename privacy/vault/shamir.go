// Package vault implements Shamir secret sharing over GF(2^8) for
// distributed browser-cookie custody: splitting a secret into n shares
// of which any k reconstruct it exactly, and any k-1 reveal nothing.
//
// The field arithmetic (log/exp/multiplication tables, Lagrange
// interpolation) follows pkg/das/erasure/galois_field.go, narrowed from
// that file's general erasure-coding toolkit to just what Shamir needs
// (poly eval at a CSPRNG-chosen point, interpolation at x=0) and
// re-keyed to modulus 0x11b (the AES/Rijndael polynomial) rather than
// the erasure-coding polynomial 0x11d.
package vault

import (
	"crypto/rand"
	"sync"
)

// GF256 is an element of GF(2^8) with modulus 0x11b.
type GF256 uint8

const (
	gf256Modulus   = 0x11b
	gf256Order     = 255
	gf256Generator = 3
)

var (
	gf256LogTable [256]uint8
	gf256ExpTable [512]uint8
	gf256InitOnce sync.Once
)

func initGF256Tables() {
	gf256InitOnce.Do(func() {
		var x uint16 = 1
		for i := 0; i < gf256Order; i++ {
			gf256ExpTable[i] = uint8(x)
			gf256LogTable[x] = uint8(i)
			x ^= x << 1 // multiply by gf256Generator (3)
			if x&0x100 != 0 {
				x ^= gf256Modulus
			}
		}
		for i := 0; i < gf256Order; i++ {
			gf256ExpTable[i+gf256Order] = gf256ExpTable[i]
		}
	})
}

func gf256Add(a, b GF256) GF256 { return a ^ b }

func gf256Mul(a, b GF256) GF256 {
	if a == 0 || b == 0 {
		return 0
	}
	initGF256Tables()
	logSum := uint16(gf256LogTable[a]) + uint16(gf256LogTable[b])
	if logSum >= gf256Order {
		logSum -= gf256Order
	}
	return GF256(gf256ExpTable[logSum])
}

func gf256Div(a, b GF256) GF256 {
	if b == 0 {
		panic("vault/gf256: division by zero")
	}
	if a == 0 {
		return 0
	}
	initGF256Tables()
	logA := uint16(gf256LogTable[a])
	logB := uint16(gf256LogTable[b])
	logResult := (logA + gf256Order - logB) % gf256Order
	return GF256(gf256ExpTable[logResult])
}

// polyEval evaluates coeffs (constant term first) at x via Horner's
// method.
func polyEval(coeffs []GF256, x GF256) GF256 {
	result := coeffs[len(coeffs)-1]
	for i := len(coeffs) - 2; i >= 0; i-- {
		result = gf256Add(gf256Mul(result, x), coeffs[i])
	}
	return result
}

// Error is a sentinel vault error.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrInvalidThreshold Error = "vault: threshold/share count out of range"
	ErrZeroIndex        Error = "vault: share index must not be zero"
	ErrDuplicateIndex   Error = "vault: duplicate share index"
	ErrLengthMismatch   Error = "vault: share length mismatch"
	ErrTooFewShares     Error = "vault: fewer shares than threshold"
)

// Share is one participant's share of a split secret.
type Share struct {
	Index  byte
	NodeID string
	Bytes  []byte
}

// Split divides secret into n shares of which any k reconstruct it.
// 1 <= k <= n <= 255. nodeIDs, if provided, must have length n and is
// paired one-to-one with share indices 1..n.
func Split(secret []byte, k, n int, nodeIDs []string) ([]Share, error) {
	if k < 1 || n < k || n > 255 {
		return nil, ErrInvalidThreshold
	}
	if nodeIDs != nil && len(nodeIDs) != n {
		return nil, ErrInvalidThreshold
	}

	shares := make([]Share, n)
	for i := 0; i < n; i++ {
		shares[i].Index = byte(i + 1)
		if nodeIDs != nil {
			shares[i].NodeID = nodeIDs[i]
		}
		shares[i].Bytes = make([]byte, len(secret))
	}

	coeffs := make([]GF256, k)
	for pos, b := range secret {
		coeffs[0] = GF256(b)
		if err := randomCoeffs(coeffs[1:]); err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			shares[i].Bytes[pos] = byte(polyEval(coeffs, GF256(shares[i].Index)))
		}
	}
	return shares, nil
}

func randomCoeffs(dst []GF256) error {
	if len(dst) == 0 {
		return nil
	}
	buf := make([]byte, len(dst))
	if _, err := rand.Read(buf); err != nil {
		return err
	}
	for i, b := range buf {
		dst[i] = GF256(b)
	}
	return nil
}

// Reconstruct recovers the secret from at least k shares via Lagrange
// interpolation at x = 0.
func Reconstruct(shares []Share, k int) ([]byte, error) {
	if len(shares) < k {
		return nil, ErrTooFewShares
	}
	use := shares[:k]

	seen := make(map[byte]struct{}, k)
	length := -1
	for _, s := range use {
		if s.Index == 0 {
			return nil, ErrZeroIndex
		}
		if _, dup := seen[s.Index]; dup {
			return nil, ErrDuplicateIndex
		}
		seen[s.Index] = struct{}{}
		if length == -1 {
			length = len(s.Bytes)
		} else if len(s.Bytes) != length {
			return nil, ErrLengthMismatch
		}
	}

	secret := make([]byte, length)
	xs := make([]GF256, k)
	for i, s := range use {
		xs[i] = GF256(s.Index)
	}

	for pos := 0; pos < length; pos++ {
		ys := make([]GF256, k)
		for i, s := range use {
			ys[i] = GF256(s.Bytes[pos])
		}
		secret[pos] = byte(interpolateAtZero(xs, ys))
	}
	return secret, nil
}

// interpolateAtZero evaluates the Lagrange interpolant through (xs, ys)
// at x = 0, which is all Shamir reconstruction needs.
func interpolateAtZero(xs, ys []GF256) GF256 {
	var result GF256
	n := len(xs)
	for i := 0; i < n; i++ {
		num := GF256(1)
		den := GF256(1)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			// numerator term: (0 - xs[j]) = xs[j] in char-2 field
			num = gf256Mul(num, xs[j])
			den = gf256Mul(den, gf256Add(xs[i], xs[j]))
		}
		term := gf256Mul(ys[i], gf256Div(num, den))
		result = gf256Add(result, term)
	}
	return result
}
