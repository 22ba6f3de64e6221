package vault

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"pairvault/core/types"
	"pairvault/native/claims"
)

// mergedPair registers a 6/6 identity pair, seeds the reserve with 1000 and
// merges 100 so the pair carries 100 of early-exited notional.
func mergedPair(t *testing.T, feesBps uint64) (*harness, types.PairKey) {
	t.Helper()
	h := newHarness(t, 6, feesBps)
	key := h.register("identity", 6, 6)
	h.deposit(bob, 1_000)
	h.giveClaims(alice, 100, 100)
	if _, err := h.vault.Merge(context.Background(), alice, key, u(100), alice); err != nil {
		t.Fatalf("merge: %v", err)
	}
	return h, key
}

func TestStartSettlementSweepsEscrowToConfigurator(t *testing.T) {
	h, key := mergedPair(t, 0)
	before := h.totalAssets()

	if _, err := h.vault.StartSettlement(alice, key); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	res, err := h.vault.StartSettlement(owner, key)
	if err != nil {
		t.Fatalf("start settlement: %v", err)
	}
	if res.SweptLegA.Uint64() != 100 || res.SweptLegB.Uint64() != 100 {
		t.Fatalf("unexpected sweep: %+v", res)
	}
	if got := h.claimBalance(yesX, owner); got != 100 {
		t.Fatalf("owner leg A = %d, want 100", got)
	}
	if got := h.claimBalance(noY, vaultAddr); got != 0 {
		t.Fatalf("escrow leg B = %d, want 0", got)
	}
	if after := h.totalAssets(); after != before {
		t.Fatalf("sweeping escrow moved reported value from %d to %d", before, after)
	}
	if _, err := h.vault.StartSettlement(owner, key); !errors.Is(err, ErrTransfersPaused) {
		t.Fatalf("expected ErrTransfersPaused on second start, got %v", err)
	}
	if err := h.vault.RemovePair(owner, key); !errors.Is(err, ErrCannotRemoveWithPendingAmount) {
		t.Fatalf("expected ErrCannotRemoveWithPendingAmount, got %v", err)
	}
}

func TestReportLossMintsNoFee(t *testing.T) {
	h, key := mergedPair(t, 1_000)
	if _, err := h.vault.ReportOutcome(owner, key, u(50)); !errors.Is(err, ErrPairNotPaused) {
		t.Fatalf("expected ErrPairNotPaused, got %v", err)
	}
	if _, err := h.vault.StartSettlement(owner, key); err != nil {
		t.Fatalf("start settlement: %v", err)
	}
	h.fund(owner, 50)
	res, err := h.vault.ReportOutcome(owner, key, u(50))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if res.Loss.Uint64() != 50 || !res.Profit.IsZero() || !res.Fee.IsZero() || !res.FeeShares.IsZero() {
		t.Fatalf("unexpected report: %+v", res)
	}
	if got := h.shares(feeRecipient); got != 0 {
		t.Fatalf("fee recipient shares = %d, want 0", got)
	}
	if got := h.earlyExited(key); got != 0 {
		t.Fatalf("early exited = %d, want 0", got)
	}
	if got := h.totalAssets(); got != 950 {
		t.Fatalf("reported value = %d, want 950", got)
	}
	p, _, _ := h.vault.Pair(key)
	if p.Paused {
		t.Fatalf("pair should be active after report")
	}
	h.checkInvariants()
}

func TestReportProfitMintsFeeNetOfProfit(t *testing.T) {
	h, key := mergedPair(t, 1_000)
	if _, err := h.vault.StartSettlement(owner, key); err != nil {
		t.Fatalf("start settlement: %v", err)
	}
	h.fund(owner, 150)
	res, err := h.vault.ReportOutcome(owner, key, u(150))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if res.Fee.Uint64() != 5 || res.Profit.Uint64() != 45 || !res.Loss.IsZero() {
		t.Fatalf("unexpected report: profit=%s fee=%s loss=%s", res.Profit.Dec(), res.Fee.Dec(), res.Loss.Dec())
	}
	// 5 * (1000 + 1) / (1050 + 1)
	if res.FeeShares.Uint64() != 4 {
		t.Fatalf("fee shares = %d, want 4", res.FeeShares.Uint64())
	}
	if got := h.shares(feeRecipient); got != 4 {
		t.Fatalf("fee recipient shares = %d, want 4", got)
	}
	h.checkInvariants()
}

func TestReportRequiresAllowedPair(t *testing.T) {
	h, key := mergedPair(t, 0)
	missing := key
	missing[31] ^= 0x01
	if _, err := h.vault.ReportOutcome(owner, missing, u(1)); !errors.Is(err, ErrPairNotAllowed) {
		t.Fatalf("expected ErrPairNotAllowed, got %v", err)
	}
}

func TestReportAndRemove(t *testing.T) {
	h, key := mergedPair(t, 0)
	if _, err := h.vault.StartSettlement(owner, key); err != nil {
		t.Fatalf("start settlement: %v", err)
	}
	h.fund(owner, 100)
	if _, err := h.vault.ReportAndRemove(owner, key, u(100)); err != nil {
		t.Fatalf("report and remove: %v", err)
	}
	if _, ok, err := h.vault.Pair(key); err != nil || ok {
		t.Fatalf("pair should be erased: ok=%v err=%v", ok, err)
	}
	if count, _ := h.vault.PairCount(); count != 0 {
		t.Fatalf("pair count = %d, want 0", count)
	}
	if got := h.totalAssets(); got != 1_000 {
		t.Fatalf("reported value = %d, want 1000", got)
	}
	if err := h.vault.RemovePair(owner, key); !errors.Is(err, ErrPairNotAllowed) {
		t.Fatalf("expected ErrPairNotAllowed on second removal, got %v", err)
	}
	h.checkInvariants()
}

func TestRemovePairGuards(t *testing.T) {
	h, key := mergedPair(t, 0)
	if err := h.vault.RemovePair(owner, key); !errors.Is(err, ErrCannotRemoveWithPendingAmount) {
		t.Fatalf("expected ErrCannotRemoveWithPendingAmount, got %v", err)
	}

	fresh := newHarness(t, 6, 0)
	freshKey := fresh.register("identity", 6, 6)
	if _, err := fresh.vault.StartSettlement(owner, freshKey); err != nil {
		t.Fatalf("start settlement: %v", err)
	}
	if err := fresh.vault.RemovePair(owner, freshKey); !errors.Is(err, ErrCannotRemoveWhilePaused) {
		t.Fatalf("expected ErrCannotRemoveWhilePaused, got %v", err)
	}
	if _, err := fresh.vault.ReportOutcome(owner, freshKey, u(0)); err != nil {
		t.Fatalf("zero report: %v", err)
	}
	if err := fresh.vault.RemovePair(bob, freshKey); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := fresh.vault.RemovePair(owner, freshKey); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := fresh.vault.RemovePair(owner, freshKey); !errors.Is(err, ErrPairNotAllowed) {
		t.Fatalf("expected ErrPairNotAllowed, got %v", err)
	}
}

// Escrow is held per leg, not per pair: starting settlement on one pair takes
// every unit of a leg it shares with another pair.
func TestStartSettlementSweepsSharedLegAcrossPairs(t *testing.T) {
	h, first := mergedPair(t, 0)
	noZ := types.LegID{Ledger: ledgerY, Series: common.HexToHash("0x03")}
	second, err := h.vault.RegisterPair(owner, LegConfig{Leg: yesX, Decimals: 6}, LegConfig{Leg: noZ, Decimals: 6}, "identity")
	if err != nil {
		t.Fatalf("register second pair: %v", err)
	}
	h.giveClaims(carol, 50, 0)
	if err := h.claims.Mint(noZ, carol, u(50)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := h.vault.Merge(context.Background(), carol, second, u(50), carol); err != nil {
		t.Fatalf("merge second pair: %v", err)
	}
	if got := h.claimBalance(yesX, vaultAddr); got != 150 {
		t.Fatalf("escrow of shared leg = %d, want 150", got)
	}

	if _, err := h.vault.StartSettlement(owner, first); err != nil {
		t.Fatalf("start settlement: %v", err)
	}
	if got := h.claimBalance(yesX, owner); got != 150 {
		t.Fatalf("owner received %d of the shared leg, want 150", got)
	}
	if got := h.claimBalance(noZ, vaultAddr); got != 50 {
		t.Fatalf("unshared leg of second pair = %d, want 50", got)
	}
	if got := h.earlyExited(second); got != 50 {
		t.Fatalf("second pair early exited = %d, want 50", got)
	}

	h.fund(alice, 50)
	if _, err := h.vault.Split(context.Background(), alice, second, u(50), alice); !errors.Is(err, claims.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance splitting the swept pair, got %v", err)
	}
}
