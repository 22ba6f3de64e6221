package vault

import (
	"context"
	"testing"
)

// FuzzMergeSplitAccounting merges an arbitrary amount through the identity
// oracle, then splits back half as much again so part of the split is
// realised as profit. Escrow for the excess is minted straight to the vault.
func FuzzMergeSplitAccounting(f *testing.F) {
	f.Add(uint64(1), uint16(0))
	f.Add(uint64(999_999), uint16(5_000))
	f.Add(uint64(123_456_789_012), uint16(1_234))
	f.Fuzz(func(t *testing.T, amount uint64, feeSeed uint16) {
		amount = amount%(1_000_000_000_000_000_000-1) + 1
		fees := uint64(feeSeed) % (MaxFeesBps + 1)

		h := newHarness(t, 6, fees)
		key := h.register("identity", 6, 6)
		h.deposit(bob, 2_000_000_000_000_000_000)
		h.giveClaims(alice, amount, amount)

		merged, err := h.vault.Merge(context.Background(), alice, key, u(amount), alice)
		if err != nil {
			t.Fatalf("merge %d: %v", amount, err)
		}
		if merged.Payout.Uint64() > amount {
			t.Fatalf("payout %d exceeds amount %d", merged.Payout.Uint64(), amount)
		}
		h.checkInvariants()

		extra := amount / 2
		if extra > 0 {
			if err := h.claims.Mint(yesX, vaultAddr, u(extra)); err != nil {
				t.Fatalf("mint escrow: %v", err)
			}
			if err := h.claims.Mint(noY, vaultAddr, u(extra)); err != nil {
				t.Fatalf("mint escrow: %v", err)
			}
		}
		h.fund(alice, extra)
		splitAmount := amount + extra
		split, err := h.vault.Split(context.Background(), alice, key, u(splitAmount), alice)
		if err != nil {
			t.Fatalf("split %d: %v", splitAmount, err)
		}
		if split.Outcome.Uint64() > splitAmount {
			t.Fatalf("outcome %d exceeds amount %d", split.Outcome.Uint64(), splitAmount)
		}
		if split.Profit.Uint64() != extra {
			t.Fatalf("profit %d, want %d", split.Profit.Uint64(), extra)
		}
		if split.Fee.Uint64() > split.Profit.Uint64() {
			t.Fatalf("fee %d exceeds profit %d", split.Fee.Uint64(), split.Profit.Uint64())
		}
		if got := h.earlyExited(key); got != 0 {
			t.Fatalf("early exited %d after full split", got)
		}
		if got := h.collateral(alice); got != 0 {
			t.Fatalf("alice collateral %d after spending it all", got)
		}
		if got := h.claimBalance(yesX, alice); got != splitAmount {
			t.Fatalf("alice leg A %d, want %d", got, splitAmount)
		}
		h.checkInvariants()
	})
}
