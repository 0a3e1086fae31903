package api

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/nonos/nonosd/crypto/groth16"
	"github.com/nonos/nonosd/crypto/poseidon"
	"github.com/nonos/nonosd/node"
)

func elem(n int64) fr.Element {
	var e fr.Element
	e.SetInt64(n)
	return e
}

func hexOfElement(e fr.Element) hexString {
	b := poseidon.BytesLE(e)
	return hexString("0x" + hex.EncodeToString(b[:]))
}

func hexOf(n int64) hexString {
	return hexOfElement(elem(n))
}

// zeroProof is a syntactically well-formed (all-zero) proof; in
// development mode verification never runs the pairing check on it
// unless a verifying key is loaded, so it only needs to decode cleanly.
func zeroProof() *groth16.Proof {
	return &groth16.Proof{}
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	n, err := node.New(node.DefaultConfig())
	if err != nil {
		t.Fatalf("node.New: %v", err)
	}
	return NewHandler(n)
}

func TestHandler_RegisterIdentityRoundTrip(t *testing.T) {
	h := newTestHandler(t)
	resp, errd := h.RegisterIdentity(IdentityRegisterRequest{
		Secret:   hexOf(1),
		Blinding: hexOf(2),
	})
	if errd != nil {
		t.Fatalf("register identity: %+v", errd)
	}
	if resp.Index != 0 {
		t.Fatalf("expected index 0, got %d", resp.Index)
	}
	if resp.MerkleRoot != FromElement(h.node.Identity.CurrentRoot()) {
		t.Fatal("response root should match registry's current root")
	}
}

func TestHandler_RegisterIdentityDuplicateRejected(t *testing.T) {
	h := newTestHandler(t)
	req := IdentityRegisterRequest{Secret: hexOf(1), Blinding: hexOf(2)}
	if _, errd := h.RegisterIdentity(req); errd != nil {
		t.Fatalf("first register: %+v", errd)
	}
	_, errd := h.RegisterIdentity(req)
	if errd == nil {
		t.Fatal("expected duplicate commitment to be rejected")
	}
	if errd.Status != 400 && errd.Status != 500 {
		t.Fatalf("unexpected status for duplicate: %d", errd.Status)
	}
}

func TestHandler_RegisterIdentityBadHexRejected(t *testing.T) {
	h := newTestHandler(t)
	_, errd := h.RegisterIdentity(IdentityRegisterRequest{
		Secret:   "not-hex",
		Blinding: hexOf(2),
	})
	if errd == nil || errd.Status != 400 {
		t.Fatalf("expected 400 bad_request, got %+v", errd)
	}
}

func TestHandler_IdentityRootMatchesRegistry(t *testing.T) {
	h := newTestHandler(t)
	if h.IdentityRoot().Root != FromElement(h.node.Identity.CurrentRoot()) {
		t.Fatal("root mismatch before any registration")
	}
	h.RegisterIdentity(IdentityRegisterRequest{Secret: hexOf(3), Blinding: hexOf(4)})
	if h.IdentityRoot().Root != FromElement(h.node.Identity.CurrentRoot()) {
		t.Fatal("root mismatch after registration")
	}
}

func TestHandler_VerifyIdentityUnknownRoot(t *testing.T) {
	h := newTestHandler(t)
	resp, errd := h.VerifyIdentity(IdentityVerifyRequest{
		Proof:      encodeProof(zeroProof()),
		MerkleRoot: hexOf(999),
		Nullifier:  hexOf(1),
		Scope:      hexOf(2),
	})
	if errd != nil {
		t.Fatalf("unexpected error: %+v", errd)
	}
	if resp.Valid {
		t.Fatal("expected invalid for unknown root")
	}
	if resp.Reason != "unknown_root" {
		t.Fatalf("expected unknown_root reason, got %q", resp.Reason)
	}
}

func TestHandler_VerifyIdentityDevelopmentModeAdvisory(t *testing.T) {
	h := newTestHandler(t)
	reg, errd := h.RegisterIdentity(IdentityRegisterRequest{Secret: hexOf(5), Blinding: hexOf(6)})
	if errd != nil {
		t.Fatalf("register: %+v", errd)
	}

	resp, errd := h.VerifyIdentity(IdentityVerifyRequest{
		Proof:      encodeProof(zeroProof()),
		MerkleRoot: hexOfElement(reg.MerkleRoot.Element()),
		Nullifier:  hexOf(42),
		Scope:      hexOf(7),
	})
	if errd != nil {
		t.Fatalf("verify: %+v", errd)
	}
	if !resp.Valid || resp.Reason != "development_mode_advisory" || !resp.NullifierRecorded {
		t.Fatalf("expected development-mode advisory accept, got %+v", resp)
	}
}

func TestHandler_MixerDepositAndSpendDevelopmentMode(t *testing.T) {
	h := newTestHandler(t)
	dep, errd := h.MixerDeposit(MixerDepositRequest{
		Secret:     hexOf(10),
		Amount:     hexOf(100),
		Randomness: hexOf(11),
	})
	if errd != nil {
		t.Fatalf("deposit: %+v", errd)
	}
	if dep.Index != 0 {
		t.Fatalf("expected index 0, got %d", dep.Index)
	}

	spend, errd := h.MixerSpend(MixerSpendRequest{
		MerkleRoot: hexOfElement(dep.MerkleRoot.Element()),
		Nullifier:  hexOf(20),
		Recipient:  hexOf(21),
		Fee:        hexOf(1),
		Proof:      encodeProof(zeroProof()),
	})
	if errd != nil {
		t.Fatalf("spend: %+v", errd)
	}
	if !spend.Success {
		t.Fatalf("expected spend success in development mode, got %+v", spend)
	}
	if spend.TxHash == "" {
		t.Fatal("expected non-empty tx_hash on success")
	}
}

func TestHandler_MixerSpendUnknownRootRejected(t *testing.T) {
	h := newTestHandler(t)
	spend, errd := h.MixerSpend(MixerSpendRequest{
		MerkleRoot: hexOf(999),
		Nullifier:  hexOf(1),
		Recipient:  hexOf(2),
		Fee:        hexOf(3),
		Proof:      encodeProof(zeroProof()),
	})
	if errd != nil {
		t.Fatalf("unexpected error: %+v", errd)
	}
	if spend.Success || spend.Reason != "mixer: merkle root not in accepted window" {
		t.Fatalf("expected unknown-root rejection, got %+v", spend)
	}
}

func TestHandler_StakeAndUnstake(t *testing.T) {
	h := newTestHandler(t)
	stakeResp, errd := h.Stake(StakeRequest{Amount: "0x64"})
	if errd != nil {
		t.Fatalf("stake: %+v", errd)
	}
	if stakeResp.Stake != "0x64" {
		t.Fatalf("expected stake 0x64, got %s", stakeResp.Stake)
	}

	info := h.StakingInfo()
	if info.Stake != "0x64" || info.Tier != "bronze" {
		t.Fatalf("unexpected staking info: %+v", info)
	}

	unstakeResp, errd := h.Unstake(UnstakeRequest{Amount: "0x32"})
	if errd != nil {
		t.Fatalf("unstake: %+v", errd)
	}
	if unstakeResp.Stake != "0x32" {
		t.Fatalf("expected remaining stake 0x32, got %s", unstakeResp.Stake)
	}
}

func TestHandler_UnstakeMoreThanStakedRejected(t *testing.T) {
	h := newTestHandler(t)
	h.Stake(StakeRequest{Amount: "0x10"})
	_, errd := h.Unstake(UnstakeRequest{Amount: "0x20"})
	if errd == nil || errd.Code != "insufficient_stake" {
		t.Fatalf("expected insufficient_stake error, got %+v", errd)
	}
}

func TestHandler_SetTierUnknownRejected(t *testing.T) {
	h := newTestHandler(t)
	_, errd := h.SetTier(SetTierRequest{Tier: "emerald"})
	if errd == nil || errd.Status != 400 {
		t.Fatalf("expected 400 for unknown tier, got %+v", errd)
	}
}

func TestHandler_SetTierChangesMultiplier(t *testing.T) {
	h := newTestHandler(t)
	if _, errd := h.SetTier(SetTierRequest{Tier: "gold"}); errd != nil {
		t.Fatalf("set tier: %+v", errd)
	}
	tier := h.StakingTier()
	if tier.Tier != "gold" || tier.Multiplier != 2.0 {
		t.Fatalf("expected gold/2.0, got %+v", tier)
	}
}

func TestHandler_ApproveDoesNotMutateStake(t *testing.T) {
	h := newTestHandler(t)
	resp, errd := h.Approve(ApproveRequest{Amount: "0x5"})
	if errd != nil {
		t.Fatalf("approve: %+v", errd)
	}
	if !resp.Approved {
		t.Fatal("expected approved true")
	}
	if h.StakingBalance().Stake != "0x0" {
		t.Fatal("approve must not change the tracked stake")
	}
}

func TestHandler_RewardsPendingStartsZero(t *testing.T) {
	h := newTestHandler(t)
	if h.RewardsPending().Pending != 0 {
		t.Fatal("expected zero pending rewards on a fresh handler")
	}
}

func TestHandler_RewardsHistoryEmptyInitially(t *testing.T) {
	h := newTestHandler(t)
	if len(h.RewardsHistory().Claims) != 0 {
		t.Fatal("expected empty claim history on a fresh handler")
	}
}

func TestHandler_ClaimWithNoPendingRewardsSucceedsTrivially(t *testing.T) {
	h := newTestHandler(t)
	resp, errd := h.Claim(context.Background(), ClaimRequest{})
	if errd != nil {
		t.Fatalf("claim: %+v", errd)
	}
	if !resp.Success {
		t.Fatal("expected trivial success when nothing is pending")
	}
}

func TestHandler_EnableAndDisableAutoClaim(t *testing.T) {
	h := newTestHandler(t)
	enable := h.EnableAutoClaim(AutoClaimEnableRequest{Threshold: 10})
	if !enable.Enabled || enable.Threshold != 10 {
		t.Fatalf("unexpected enable response: %+v", enable)
	}
	disable := h.DisableAutoClaim()
	if disable.Enabled {
		t.Fatal("expected auto-claim disabled")
	}
}

func TestHandler_RewardsAPYNonNegative(t *testing.T) {
	h := newTestHandler(t)
	h.Stake(StakeRequest{Amount: "0x64"})
	apy := h.RewardsAPY()
	if apy.APY < 0 {
		t.Fatalf("expected non-negative APY, got %f", apy.APY)
	}
}

func TestHandler_MetricsPrometheusHandlerNotNil(t *testing.T) {
	h := newTestHandler(t)
	if h.MetricsPrometheusHandler() == nil {
		t.Fatal("expected a non-nil prometheus handler")
	}
}
