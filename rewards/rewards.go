// Package rewards computes the stake-weighted epoch emission schedule
// and drives the claim pipeline against an external staking contract.
//
// The integer-square-root weighting and pure-computation-engine shape
// follow consensus/block_rewards.go (BlockRewardEngine.ComputeBlockRewards
// / brIsqrt), re-targeted from per-validator attestation rewards to
// per-staker epoch rewards; the claim-retry exponential backoff follows
// the teacher's pkg/node/service_registry_recovery.go NextBackoff idiom
// (base delay doubling), the same idiom supervisor.backoffDelay
// generalizes to four restart policies.
package rewards

import (
	"context"
	"math"
	"math/big"
	"time"

	"github.com/holiman/uint256"

	"github.com/nonos/nonosd/nonerr"
)

// Tier is a staking tier with a fixed reward multiplier.
type Tier int

const (
	Bronze Tier = iota
	Silver
	Gold
	Platinum
	Diamond
)

// TierMultiplier maps a tier to its fixed reward multiplier, Bronze..Diamond
// spanning 1.0..3.0.
func TierMultiplier(t Tier) float64 {
	switch t {
	case Bronze:
		return 1.0
	case Silver:
		return 1.5
	case Gold:
		return 2.0
	case Platinum:
		return 2.5
	case Diamond:
		return 3.0
	default:
		return 1.0
	}
}

// EmissionSchedule parameters: initial daily emission, decay, and floor.
type EmissionSchedule struct {
	Y1    float64 // initial daily emission
	Decay float64 // per-year decay factor, e.g. 0.70
	Floor float64 // minimum daily emission
}

// DailyEmission returns the emission for day d (from genesis):
// max(Y1 * decay^(d/365), floor).
func (s EmissionSchedule) DailyEmission(day uint64) float64 {
	exp := float64(day) / 365.0
	emission := s.Y1 * math.Pow(s.Decay, exp)
	if emission < s.Floor {
		return s.Floor
	}
	return emission
}

// EpochEmission sums the daily emission over 7 consecutive days starting
// at startDay.
func (s EmissionSchedule) EpochEmission(startDay uint64) float64 {
	var total float64
	for d := startDay; d < startDay+7; d++ {
		total += s.DailyEmission(d)
	}
	return total
}

// StakeWeight computes weight(stake, tier) = sqrt(stake) * tier_multiplier.
// Square-root dampening is a deliberate anti-whale property.
func StakeWeight(stake *uint256.Int, tier Tier) float64 {
	return math.Sqrt(uint256ToFloat(stake)) * TierMultiplier(tier)
}

// uint256ToFloat converts a uint256 amount to a float64 for the purposes
// of the reward formula (the formula is inherently lossy — sqrt and
// tier-multiplier weighting are not integer-exact operations).
func uint256ToFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}

// StakerState tracks one staker's accruing reward state across epochs.
type StakerState struct {
	Stake           *uint256.Int
	Tier            Tier
	Streak          int
	PendingRewards  float64
	ClaimHistory    []RewardClaim
	LastClaimEpoch  uint64
	AutoClaimOn     bool
	AutoClaimThresh float64
}

// RewardClaim records a successful claim.
type RewardClaim struct {
	Epoch  uint64
	Amount float64
	At     time.Time
}

// clamp01 clamps q to [0, 1].
func clamp01(q float64) float64 {
	if q < 0 {
		return 0
	}
	if q > 1 {
		return 1
	}
	return q
}

// streakMultiplier returns 1 + min(streak, 5) * 0.05.
func streakMultiplier(streak int) float64 {
	capped := streak
	if capped > 5 {
		capped = 5
	}
	return 1 + float64(capped)*0.05
}

// EpochReward computes a single staker's reward for an epoch:
// epoch_emission * (weight / total_network_weight) * clamp(quality,0,1)
// * (1 + min(streak,5)*0.05).
func EpochReward(epochEmission, weight, totalNetworkWeight, quality float64, streak int) float64 {
	if totalNetworkWeight <= 0 {
		return 0
	}
	return epochEmission * (weight / totalNetworkWeight) * clamp01(quality) * streakMultiplier(streak)
}

// AdvanceStreak updates a staker's streak per quality >= 0.8 -> +1, else
// reset to 0.
func AdvanceStreak(streak int, quality float64) int {
	if quality >= 0.8 {
		return streak + 1
	}
	return 0
}

// ContractAdapter is the minimal interface to the external staking
// contract. nonosd never embeds a full chain client — it talks to the
// staking/reward contract only through this boundary (spec §1
// Non-goals: "does not implement the staking contract").
type ContractAdapter interface {
	ClaimRewards(ctx context.Context, epoch uint64, amount float64) (txHash [32]byte, err error)
}

// Engine drives the claim pipeline for a set of stakers.
type Engine struct {
	contract ContractAdapter
	sleep    func(time.Duration)
}

// NewEngine creates a reward engine backed by the given contract
// adapter. sleep is injected so retry backoff is testable without real
// delays.
func NewEngine(contract ContractAdapter, sleep func(time.Duration)) *Engine {
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Engine{contract: contract, sleep: sleep}
}

// Claim submits a claim_rewards transaction for the staker's pending
// balance at epoch. On success it zeros pending rewards and appends a
// RewardClaim record. On failure, pending rewards are left untouched so
// they remain eligible for retry.
func (e *Engine) Claim(ctx context.Context, s *StakerState, epoch uint64) error {
	if s.PendingRewards <= 0 {
		return nil
	}
	amount := s.PendingRewards
	_, err := e.contract.ClaimRewards(ctx, epoch, amount)
	if err != nil {
		return nonerr.Wrap(nonerr.Staking, "claim_rewards failed", err)
	}
	s.PendingRewards = 0
	s.LastClaimEpoch = epoch
	s.ClaimHistory = append(s.ClaimHistory, RewardClaim{Epoch: epoch, Amount: amount})
	return nil
}

// ClaimWithRetry retries Claim up to n times with exponential backoff
// (1, 2, 4, ... seconds), stopping early on success or on a
// non-retryable error.
func (e *Engine) ClaimWithRetry(ctx context.Context, s *StakerState, epoch uint64, n int) error {
	var lastErr error
	backoff := time.Second
	for attempt := 0; attempt < n; attempt++ {
		lastErr = e.Claim(ctx, s, epoch)
		if lastErr == nil {
			return nil
		}
		if !nonerr.Retryable(lastErr) {
			return lastErr
		}
		if attempt < n-1 {
			e.sleep(backoff)
			backoff *= 2
		}
	}
	return lastErr
}

// CheckAutoClaim issues a claim iff auto-claim is enabled and pending
// rewards meet the configured threshold.
func (e *Engine) CheckAutoClaim(ctx context.Context, s *StakerState, epoch uint64) (claimed bool, err error) {
	if !s.AutoClaimOn || s.PendingRewards < s.AutoClaimThresh {
		return false, nil
	}
	if err := e.Claim(ctx, s, epoch); err != nil {
		return false, err
	}
	return true, nil
}

// EstimateAPY projects an annualized yield from a single epoch's reward,
// the number of epochs per year, and current stake (supplemented feature — not in the
// distilled contract, useful to surface via the metrics/API layer).
func EstimateAPY(epochReward, stake float64, epochsPerYear float64) float64 {
	if stake <= 0 {
		return 0
	}
	return (epochReward * epochsPerYear) / stake
}
