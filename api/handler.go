package api

import (
	"context"
	"encoding/hex"
	"math/big"
	"net/http"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"

	"github.com/nonos/nonosd/crypto/poseidon"
	"github.com/nonos/nonosd/metrics"
	"github.com/nonos/nonosd/node"
	"github.com/nonos/nonosd/privacy/identity"
	"github.com/nonos/nonosd/privacy/mixer"
	"github.com/nonos/nonosd/rewards"
)

// DefaultEmissionSchedule is nonosd's default daily-emission curve,
// consumed by the rewards endpoints. Operators that need a different
// curve construct a Handler and overwrite Schedule directly.
var DefaultEmissionSchedule = rewards.EmissionSchedule{Y1: 10000, Decay: 0.70, Floor: 500}

// Handler implements every contract in this package by calling straight
// into a *node.Node's subsystems. It holds the one piece of state none
// of those subsystems track on their own: this node's own staking
// position, since nonosd reflects a single staker (itself) rather than
// a multi-account ledger.
//
// Method-per-endpoint dispatch on a struct wrapping the constructed
// subsystems follows pkg/rpc/method_registry.go's MethodRegistry, minus
// the name-indexed registration table, since this package deliberately
// does not wire up the transport that would dispatch by method name.
type Handler struct {
	node *node.Node

	mu                 sync.Mutex
	staker             *rewards.StakerState
	schedule           rewards.EmissionSchedule
	epochLengthDays    uint64
	totalNetworkWeight float64
}

// NewHandler constructs a Handler over n. The node's own stake starts at
// zero/Bronze; callers normally drive it to a real value via Stake
// before rewards accrue.
func NewHandler(n *node.Node) *Handler {
	return &Handler{
		node: n,
		staker: &rewards.StakerState{
			Stake: uint256.NewInt(0),
			Tier:  rewards.Bronze,
		},
		schedule:        DefaultEmissionSchedule,
		epochLengthDays: 7,
	}
}

// SetNetworkWeight installs the total network stake weight an external
// observer of on-chain state has reported; EstimateAPY and EpochReward
// are meaningless without it. nonosd has no consensus view of its own,
// so this is expected to be fed in from outside.
func (h *Handler) SetNetworkWeight(w float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.totalNetworkWeight = w
}

// --- privacy/identity ---

func (h *Handler) RegisterIdentity(req IdentityRegisterRequest) (*IdentityRegisterResponse, *ErrorDetail) {
	secret, err := req.Secret.element()
	if err != nil {
		return nil, badRequest("secret", err)
	}
	blinding, err := req.Blinding.element()
	if err != nil {
		return nil, badRequest("blinding", err)
	}

	c, regErr := h.node.Identity.RegisterIdentity(secret, blinding)
	if regErr != nil {
		return nil, fromErr("register_identity", regErr)
	}
	h.node.WorkEpoch.Add(metrics.CategoryRegistryOps, 1)
	return &IdentityRegisterResponse{
		Commitment: FromElement(c.Value),
		Index:      c.Index,
		MerkleRoot: FromElement(h.node.Identity.CurrentRoot()),
	}, nil
}

func (h *Handler) VerifyIdentity(req IdentityVerifyRequest) (*IdentityVerifyResponse, *ErrorDetail) {
	proof, err := decodeProof(req.Proof)
	if err != nil {
		return nil, badRequest("proof", err)
	}
	merkleRoot, err := req.MerkleRoot.element()
	if err != nil {
		return nil, badRequest("merkle_root", err)
	}
	nullifierVal, err := req.Nullifier.element()
	if err != nil {
		return nil, badRequest("nullifier", err)
	}
	scope, err := req.Scope.element()
	if err != nil {
		return nil, badRequest("scope", err)
	}
	var signalHash *fr.Element
	if req.SignalHash != nil {
		v, err := req.SignalHash.element()
		if err != nil {
			return nil, badRequest("signal_hash", err)
		}
		signalHash = &v
	}

	result := h.node.Identity.VerifyProof(proof, merkleRoot, nullifierVal, scope, signalHash)
	h.node.WorkEpoch.Add(metrics.CategoryZKProofs, 1)

	resp := &IdentityVerifyResponse{
		Valid:             result.Valid,
		NullifierRecorded: result.NullifierRecorded,
	}
	if result.Reason != identity.ReasonValid {
		resp.Reason = string(result.Reason)
	}
	return resp, nil
}

func (h *Handler) IdentityRoot() *IdentityRootResponse {
	return &IdentityRootResponse{Root: FromElement(h.node.Identity.CurrentRoot())}
}

// --- privacy/mixer ---

func (h *Handler) MixerDeposit(req MixerDepositRequest) (*MixerDepositResponse, *ErrorDetail) {
	secret, err := req.Secret.element()
	if err != nil {
		return nil, badRequest("secret", err)
	}
	amount, err := req.Amount.element()
	if err != nil {
		return nil, badRequest("amount", err)
	}
	randomness, err := req.Randomness.element()
	if err != nil {
		return nil, badRequest("randomness", err)
	}

	commitment := poseidon.Hash(poseidon.DomainCommitment, secret, amount, randomness)
	index, root, depErr := h.node.Mixer.Deposit(commitment)
	if depErr != nil {
		return nil, fromErr("mixer_deposit", depErr)
	}
	h.node.WorkEpoch.Add(metrics.CategoryMixerOps, 1)
	return &MixerDepositResponse{
		Commitment: FromElement(commitment),
		Index:      index,
		MerkleRoot: FromElement(root),
	}, nil
}

func (h *Handler) MixerSpend(req MixerSpendRequest) (*MixerSpendResponse, *ErrorDetail) {
	merkleRoot, err := req.MerkleRoot.element()
	if err != nil {
		return nil, badRequest("merkle_root", err)
	}
	nullifierVal, err := req.Nullifier.element()
	if err != nil {
		return nil, badRequest("nullifier", err)
	}
	recipient, err := req.Recipient.element()
	if err != nil {
		return nil, badRequest("recipient", err)
	}
	fee, err := req.Fee.element()
	if err != nil {
		return nil, badRequest("fee", err)
	}
	proof, err := decodeProof(req.Proof)
	if err != nil {
		return nil, badRequest("proof", err)
	}

	result := h.node.Mixer.Spend(mixer.SpendRequest{
		MerkleRoot: merkleRoot,
		Nullifier:  nullifierVal,
		Recipient:  recipient,
		Fee:        fee,
		Proof:      proof,
	})
	h.node.WorkEpoch.Add(metrics.CategoryMixerOps, 1)

	resp := &MixerSpendResponse{Success: result.Success}
	if !result.Success {
		resp.Reason = string(result.Reason)
		return resp, nil
	}
	resp.TxHash = "0x" + hex.EncodeToString(result.TxHash[:])
	return resp, nil
}

// --- staking ---
//
// nonosd does not implement the staking contract; these endpoints
// reflect the node's own locally tracked stake/tier and compute
// off-chain reward estimates from it.

func (h *Handler) StakingInfo() *StakingInfoResponse {
	h.mu.Lock()
	defer h.mu.Unlock()
	return &StakingInfoResponse{
		Stake:  encodeHexUint256(h.staker.Stake),
		Tier:   tierName(h.staker.Tier),
		Streak: h.staker.Streak,
	}
}

func (h *Handler) StakingBalance() *StakingBalanceResponse {
	h.mu.Lock()
	defer h.mu.Unlock()
	return &StakingBalanceResponse{Stake: encodeHexUint256(h.staker.Stake)}
}

func (h *Handler) StakingTier() *StakingTierResponse {
	h.mu.Lock()
	defer h.mu.Unlock()
	return &StakingTierResponse{
		Tier:       tierName(h.staker.Tier),
		Multiplier: rewards.TierMultiplier(h.staker.Tier),
	}
}

func (h *Handler) Stake(req StakeRequest) (*StakeResponse, *ErrorDetail) {
	amount, err := decodeHexUint256(req.Amount)
	if err != nil {
		return nil, badRequest("amount", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.staker.Stake = new(uint256.Int).Add(h.staker.Stake, amount)
	return &StakeResponse{Stake: encodeHexUint256(h.staker.Stake)}, nil
}

func (h *Handler) Unstake(req UnstakeRequest) (*UnstakeResponse, *ErrorDetail) {
	amount, err := decodeHexUint256(req.Amount)
	if err != nil {
		return nil, badRequest("amount", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if amount.Cmp(h.staker.Stake) > 0 {
		return nil, &ErrorDetail{Code: "insufficient_stake", Message: "unstake amount exceeds current stake", Status: 400}
	}
	h.staker.Stake = new(uint256.Int).Sub(h.staker.Stake, amount)
	return &UnstakeResponse{Stake: encodeHexUint256(h.staker.Stake)}, nil
}

// Approve acknowledges an allowance request; nonosd does not submit the
// on-chain approval itself, it only records the operator's stated
// intent (the boundary to the real contract is rewards.ContractAdapter).
func (h *Handler) Approve(req ApproveRequest) (*ApproveResponse, *ErrorDetail) {
	amount, err := decodeHexUint256(req.Amount)
	if err != nil {
		return nil, badRequest("amount", err)
	}
	return &ApproveResponse{Approved: true, Amount: encodeHexUint256(amount)}, nil
}

func (h *Handler) SetTier(req SetTierRequest) (*SetTierResponse, *ErrorDetail) {
	tier, ok := parseTierName(req.Tier)
	if !ok {
		return nil, &ErrorDetail{Code: "bad_request", Message: "unknown tier: " + req.Tier, Status: 400}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.staker.Tier = tier
	return &SetTierResponse{Tier: tierName(tier)}, nil
}

// --- rewards ---

func (h *Handler) RewardsPending() *RewardsPendingResponse {
	h.mu.Lock()
	defer h.mu.Unlock()
	return &RewardsPendingResponse{Pending: h.staker.PendingRewards}
}

func (h *Handler) RewardsHistory() *RewardsHistoryResponse {
	h.mu.Lock()
	defer h.mu.Unlock()
	claims := make([]RewardClaimView, len(h.staker.ClaimHistory))
	for i, c := range h.staker.ClaimHistory {
		claims[i] = RewardClaimView{Epoch: c.Epoch, Amount: c.Amount, At: c.At.Unix()}
	}
	return &RewardsHistoryResponse{Claims: claims}
}

func (h *Handler) RewardsAPY() *RewardsAPYResponse {
	h.mu.Lock()
	defer h.mu.Unlock()

	epoch := h.node.WorkEpoch.EpochNumber()
	epochReward, _ := h.projectedEpochRewardLocked(epoch)
	epochsPerYear := float64(365) / float64(h.epochLengthDays)
	return &RewardsAPYResponse{APY: rewards.EstimateAPY(epochReward, stakeToFloat(h.staker.Stake), epochsPerYear)}
}

// projectedEpochRewardLocked computes this epoch's reward and the
// quality score it was derived from, without mutating staker state.
// Caller must hold h.mu.
func (h *Handler) projectedEpochRewardLocked(epoch uint64) (reward, quality float64) {
	epochEmission := h.schedule.EpochEmission(epoch * h.epochLengthDays)
	weight := rewards.StakeWeight(h.staker.Stake, h.staker.Tier)
	quality = h.node.WorkEpoch.TotalWorkScore() / 100
	totalWeight := h.totalNetworkWeight
	if totalWeight <= 0 {
		totalWeight = weight
	}
	return rewards.EpochReward(epochEmission, weight, totalWeight, quality, h.staker.Streak), quality
}

// accrueLocked folds the current epoch's reward into pending rewards and
// advances the streak. Caller must hold h.mu.
func (h *Handler) accrueLocked(epoch uint64) {
	reward, quality := h.projectedEpochRewardLocked(epoch)
	h.staker.PendingRewards += reward
	h.staker.Streak = rewards.AdvanceStreak(h.staker.Streak, quality)
}

func (h *Handler) Claim(ctx context.Context, req ClaimRequest) (*ClaimResponse, *ErrorDetail) {
	h.mu.Lock()
	defer h.mu.Unlock()

	epoch := h.node.WorkEpoch.EpochNumber()
	h.accrueLocked(epoch)

	var claimErr error
	if req.Retries > 1 {
		claimErr = h.node.Rewards.ClaimWithRetry(ctx, h.staker, epoch, req.Retries)
	} else {
		claimErr = h.node.Rewards.Claim(ctx, h.staker, epoch)
	}
	if claimErr != nil {
		return nil, fromErr("claim", claimErr)
	}
	return &ClaimResponse{Success: true}, nil
}

func (h *Handler) EnableAutoClaim(req AutoClaimEnableRequest) *AutoClaimEnableResponse {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.staker.AutoClaimOn = true
	h.staker.AutoClaimThresh = req.Threshold
	return &AutoClaimEnableResponse{Enabled: true, Threshold: req.Threshold}
}

func (h *Handler) DisableAutoClaim() *AutoClaimDisableResponse {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.staker.AutoClaimOn = false
	return &AutoClaimDisableResponse{Enabled: false}
}

// CheckAutoClaim runs rewards.Engine.CheckAutoClaim against this node's
// stake, accruing the current epoch's reward first. Intended to be
// called periodically by a supervised task, not by an inbound request.
func (h *Handler) CheckAutoClaim(ctx context.Context) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	epoch := h.node.WorkEpoch.EpochNumber()
	h.accrueLocked(epoch)
	return h.node.Rewards.CheckAutoClaim(ctx, h.staker, epoch)
}

// --- observability ---

// MetricsPrometheusHandler returns the http.Handler backing
// GET /metrics/prometheus; mounting it on a listener is the outer HTTP
// surface's job, not this package's.
func (h *Handler) MetricsPrometheusHandler() http.Handler {
	return h.node.Prometheus.Handler()
}

// --- helpers ---

func stakeToFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}

func tierName(t rewards.Tier) string {
	switch t {
	case rewards.Bronze:
		return "bronze"
	case rewards.Silver:
		return "silver"
	case rewards.Gold:
		return "gold"
	case rewards.Platinum:
		return "platinum"
	case rewards.Diamond:
		return "diamond"
	default:
		return "bronze"
	}
}

func parseTierName(s string) (rewards.Tier, bool) {
	switch s {
	case "bronze":
		return rewards.Bronze, true
	case "silver":
		return rewards.Silver, true
	case "gold":
		return rewards.Gold, true
	case "platinum":
		return rewards.Platinum, true
	case "diamond":
		return rewards.Diamond, true
	default:
		return rewards.Bronze, false
	}
}
