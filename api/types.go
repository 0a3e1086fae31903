// Package api defines the wire contracts for nonosd's request/response
// surface: typed request/response structs plus a Handler whose methods
// implement each contract by calling straight into the identity, mixer,
// rewards, and metrics subsystems. It does not run an HTTP server or
// router — the listener, routing, and middleware stack are treated as an
// external collaborator and specified only at this boundary, the way
// pkg/rpc/method_registry.go separates method dispatch from the
// transport that carries it.
//
// All hex-encoded fields accept an optional "0x" prefix. 32-byte
// Poseidon-domain fields (secret, blinding, commitment, merkle_root,
// nullifier, recipient, fee, scope, signal_hash) are little-endian per
// crypto/poseidon's wire format; on-chain integer amounts are standard
// big-endian hex.
package api

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"

	"github.com/nonos/nonosd/crypto/groth16"
	"github.com/nonos/nonosd/crypto/poseidon"
	"github.com/nonos/nonosd/nonerr"
)

// Hex32 is a 32-byte little-endian Poseidon field element, marshaled as a
// "0x"-prefixed hex string.
type Hex32 fr.Element

func (h Hex32) MarshalJSON() ([]byte, error) {
	b := poseidon.BytesLE(fr.Element(h))
	return json.Marshal("0x" + hex.EncodeToString(b[:]))
}

func (h *Hex32) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	e, err := decodeHex32(s)
	if err != nil {
		return err
	}
	*h = Hex32(e)
	return nil
}

// Element returns the underlying field element.
func (h Hex32) Element() fr.Element { return fr.Element(h) }

// FromElement wraps a field element as a Hex32 for a response struct.
func FromElement(e fr.Element) Hex32 { return Hex32(e) }

func decodeHex32(s string) (fr.Element, error) {
	raw, err := decodeHexBytes(s)
	if err != nil {
		return fr.Element{}, err
	}
	if len(raw) != 32 {
		return fr.Element{}, fmt.Errorf("api: expected 32 bytes, got %d", len(raw))
	}
	var b [32]byte
	copy(b[:], raw)
	return poseidon.ElementFromBytesLE(b), nil
}

func decodeHexBytes(s string) ([]byte, error) {
	s = trimHex(s)
	return hex.DecodeString(s)
}

func trimHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// hexProof carries a Groth16 proof as a "0x"-prefixed hex string: A and C
// as G1 uncompressed points, B as a G2 uncompressed point, concatenated.
type hexProof string

// BN254's base field Fp is 32 bytes, same width as the Fr scalar field
// used elsewhere in this package; G1Affine.Marshal is two Fp coordinates
// uncompressed, G2Affine.Marshal is four (Fp2 has two Fp limbs per
// coordinate).
const (
	sizeG1Marshal = 64
	sizeG2Marshal = 128
	sizeProof     = sizeG1Marshal + sizeG2Marshal + sizeG1Marshal
)

func decodeProof(s hexProof) (*groth16.Proof, error) {
	raw, err := decodeHexBytes(string(s))
	if err != nil {
		return nil, fmt.Errorf("api: malformed proof hex: %w", err)
	}
	if len(raw) != sizeProof {
		return nil, fmt.Errorf("api: proof must be %d bytes, got %d", sizeProof, len(raw))
	}

	var proof groth16.Proof
	if err := proof.A.Unmarshal(raw[:sizeG1Marshal]); err != nil {
		return nil, fmt.Errorf("api: decode proof.A: %w", err)
	}
	if err := proof.B.Unmarshal(raw[sizeG1Marshal : sizeG1Marshal+sizeG2Marshal]); err != nil {
		return nil, fmt.Errorf("api: decode proof.B: %w", err)
	}
	if err := proof.C.Unmarshal(raw[sizeG1Marshal+sizeG2Marshal:]); err != nil {
		return nil, fmt.Errorf("api: decode proof.C: %w", err)
	}
	return &proof, nil
}

func encodeProof(p *groth16.Proof) hexProof {
	buf := make([]byte, 0, sizeProof)
	buf = append(buf, p.A.Marshal()...)
	buf = append(buf, p.B.Marshal()...)
	buf = append(buf, p.C.Marshal()...)
	return hexProof("0x" + hex.EncodeToString(buf))
}

// hexUint256 carries an on-chain integer amount as big-endian hex.
type hexUint256 string

func decodeHexUint256(s hexUint256) (*uint256.Int, error) {
	trimmed := trimHex(string(s))
	if trimmed == "" {
		trimmed = "0"
	}
	bi, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return nil, fmt.Errorf("api: invalid hex integer %q", string(s))
	}
	v, overflow := uint256.FromBig(bi)
	if overflow {
		return nil, fmt.Errorf("api: integer %q overflows 256 bits", string(s))
	}
	return v, nil
}

func encodeHexUint256(v *uint256.Int) hexUint256 {
	if v == nil {
		return "0x0"
	}
	return hexUint256("0x" + v.ToBig().Text(16))
}

// ErrorDetail is the body of every failed response: {error:{code,message,status}}.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// ErrorResponse wraps an ErrorDetail under the "error" key, matching the
// wire envelope every endpoint uses on failure.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

func (e *ErrorDetail) Error() string { return e.Message }

// badRequest builds a 400 ErrorDetail for a malformed request body.
func badRequest(context string, err error) *ErrorDetail {
	return &ErrorDetail{Code: "bad_request", Message: fmt.Sprintf("%s: %v", context, err), Status: 400}
}

// fromErr classifies err (expected to be or wrap a *nonerr.Error) into an
// ErrorDetail, so the adapter boundary never has to re-parse error
// strings to pick a status code.
func fromErr(context string, err error) *ErrorDetail {
	kind, known := nonerr.KindOf(err)
	status := 500
	code := "internal"
	if known {
		code = strings.ToLower(kind.String())
		switch kind {
		case nonerr.Config:
			status = 400
		case nonerr.Network, nonerr.Staking, nonerr.Contract:
			status = 502
		case nonerr.Crypto, nonerr.InvalidKey, nonerr.InvalidSignature, nonerr.InvalidAddress, nonerr.InvalidMnemonic:
			status = 400
		case nonerr.Storage:
			status = 500
		default:
			status = 500
		}
	}
	return &ErrorDetail{Code: code, Message: fmt.Sprintf("%s: %v", context, err), Status: status}
}

// --- privacy/identity ---

type IdentityRegisterRequest struct {
	Secret   hexString `json:"secret"`
	Blinding hexString `json:"blinding"`
}

type IdentityRegisterResponse struct {
	Commitment Hex32  `json:"commitment"`
	Index      uint64 `json:"index"`
	MerkleRoot Hex32  `json:"merkle_root"`
}

type IdentityVerifyRequest struct {
	Proof      hexProof   `json:"proof"`
	MerkleRoot hexString  `json:"merkle_root"`
	Nullifier  hexString  `json:"nullifier"`
	Scope      hexString  `json:"scope"`
	SignalHash *hexString `json:"signal_hash,omitempty"`
}

type IdentityVerifyResponse struct {
	Valid             bool   `json:"valid"`
	Reason            string `json:"reason,omitempty"`
	NullifierRecorded bool   `json:"nullifier_recorded"`
}

type IdentityRootResponse struct {
	Root Hex32 `json:"root"`
}

// hexString is a plain "0x"-prefixed hex field decoded into a field
// element on demand; used for request fields so malformed hex reports a
// field-specific error rather than a bulk JSON-unmarshal failure.
type hexString string

func (h hexString) element() (fr.Element, error) { return decodeHex32(string(h)) }

// --- privacy/mixer ---

type MixerDepositRequest struct {
	Secret     hexString `json:"secret"`
	Amount     hexString `json:"amount"`
	Randomness hexString `json:"randomness"`
}

type MixerDepositResponse struct {
	Commitment Hex32  `json:"commitment"`
	Index      uint64 `json:"index"`
	MerkleRoot Hex32  `json:"merkle_root"`
}

type MixerSpendRequest struct {
	MerkleRoot hexString `json:"merkle_root"`
	Nullifier  hexString `json:"nullifier"`
	Recipient  hexString `json:"recipient"`
	Fee        hexString `json:"fee"`
	Proof      hexProof  `json:"proof"`
}

type MixerSpendResponse struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
	TxHash  string `json:"tx_hash,omitempty"`
}

// --- staking ---
//
// nonosd does not implement the staking contract; these reflect the
// node's own locally tracked stake/tier and compute off-chain reward
// estimates from it. stake/unstake/approve do not themselves submit an
// on-chain transaction — that boundary is rewards.ContractAdapter.

type StakingInfoResponse struct {
	Stake  hexUint256 `json:"stake"`
	Tier   string     `json:"tier"`
	Streak int        `json:"streak"`
}

type StakingBalanceResponse struct {
	Stake hexUint256 `json:"stake"`
}

type StakingTierResponse struct {
	Tier       string  `json:"tier"`
	Multiplier float64 `json:"multiplier"`
}

type StakeRequest struct {
	Amount hexUint256 `json:"amount"`
}

type StakeResponse struct {
	Stake hexUint256 `json:"stake"`
}

type UnstakeRequest struct {
	Amount hexUint256 `json:"amount"`
}

type UnstakeResponse struct {
	Stake hexUint256 `json:"stake"`
}

type ApproveRequest struct {
	Amount hexUint256 `json:"amount"`
}

type ApproveResponse struct {
	Approved bool       `json:"approved"`
	Amount   hexUint256 `json:"amount"`
}

type SetTierRequest struct {
	Tier string `json:"tier"`
}

type SetTierResponse struct {
	Tier string `json:"tier"`
}

// --- rewards ---

type RewardsPendingResponse struct {
	Pending float64 `json:"pending"`
}

type RewardClaimView struct {
	Epoch  uint64  `json:"epoch"`
	Amount float64 `json:"amount"`
	At     int64   `json:"at"`
}

type RewardsHistoryResponse struct {
	Claims []RewardClaimView `json:"claims"`
}

type RewardsAPYResponse struct {
	APY float64 `json:"apy"`
}

type ClaimRequest struct {
	Retries int `json:"retries,omitempty"`
}

type ClaimResponse struct {
	Success bool `json:"success"`
}

type AutoClaimEnableRequest struct {
	Threshold float64 `json:"threshold"`
}

type AutoClaimEnableResponse struct {
	Enabled   bool    `json:"enabled"`
	Threshold float64 `json:"threshold"`
}

type AutoClaimDisableResponse struct {
	Enabled bool `json:"enabled"`
}
