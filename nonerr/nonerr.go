// Package nonerr defines the error-kind taxonomy surfaced to callers
// across the daemon, modeled the way the rawdb package defines sentinel
// errors (Err* = errors.New(...)), but additionally exposing a Kind so
// the HTTP adapter boundary can map to status codes without re-parsing
// error strings.
package nonerr

import (
	"errors"
	"fmt"
)

// Kind classifies the category of failure.
type Kind int

const (
	// Crypto covers hash/signature/encryption failure and malformed
	// proof bytes.
	Crypto Kind = iota
	InvalidKey
	InvalidSignature
	InvalidAddress
	InvalidMnemonic
	// Network covers TCP dial, SOCKS handshake, RPC transport failures.
	Network
	// Storage covers KV I/O, serialization, and schema mismatch.
	Storage
	// Staking covers on-chain call failure or revert.
	Staking
	// Contract is an alias category for external contract adapter errors.
	Contract
	// Config covers validation failure at boot.
	Config
	// Internal covers invariant violations; callers should treat these
	// as fatal rather than retry.
	Internal
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case Crypto:
		return "Crypto"
	case InvalidKey:
		return "InvalidKey"
	case InvalidSignature:
		return "InvalidSignature"
	case InvalidAddress:
		return "InvalidAddress"
	case InvalidMnemonic:
		return "InvalidMnemonic"
	case Network:
		return "Network"
	case Storage:
		return "Storage"
	case Staking:
		return "Staking"
	case Contract:
		return "Contract"
	case Config:
		return "Config"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with a Kind for classification at the
// adapter boundary.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

// New creates a new Error with the given kind and message.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Wrap creates a new Error with the given kind and message, wrapping
// cause so errors.Is/errors.As/errors.Unwrap traverse through it.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{kind: kind, msg: msg, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Kind returns the error's classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// KindOf extracts the Kind from err if it is (or wraps) a *nonerr.Error,
// and returns (Internal, false) otherwise — callers that don't recognize
// an error should treat it as an invariant violation, not retry it.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.kind, true
	}
	return Internal, false
}

// Retryable reports whether the error kind is eligible for retry per the
// daemon's retry policy: only claim submission and transient network
// dials retry; cryptographic rejections, schema-version mismatches, and
// invariant violations never retry.
func Retryable(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	switch kind {
	case Network, Staking, Contract:
		return true
	default:
		return false
	}
}
