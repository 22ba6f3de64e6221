package vault

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"pairvault/core/events"
	"pairvault/core/types"
)

func TestRegisterPairCanonicalisesLegs(t *testing.T) {
	h := newHarness(t, 6, 0)
	// Supply the legs in reverse order; decimals must follow their leg.
	key, err := h.vault.RegisterPair(owner, LegConfig{Leg: noY, Decimals: 18}, LegConfig{Leg: yesX, Decimals: 6}, "identity")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	p, ok, err := h.vault.Pair(key)
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if p.LegA != yesX || p.LegB != noY {
		t.Fatalf("legs not canonical: %s %s", p.LegA, p.LegB)
	}
	if p.DecimalsA != 6 || p.DecimalsB != 18 {
		t.Fatalf("decimals did not follow legs: %d %d", p.DecimalsA, p.DecimalsB)
	}
	if !p.Allowed || p.Paused || !p.EarlyExited.IsZero() || p.Oracle != "identity" {
		t.Fatalf("unexpected fresh config: %+v", p)
	}

	for _, pair := range [][2]types.LegID{{yesX, noY}, {noY, yesX}} {
		allowed, err := h.vault.IsPairAllowed(pair[0], pair[1])
		if err != nil || !allowed {
			t.Fatalf("IsPairAllowed(%s, %s) = %v, %v", pair[0], pair[1], allowed, err)
		}
	}
	if allowed, _ := h.vault.IsPairAllowed(yesX, yesX); allowed {
		t.Fatalf("identical legs reported as allowed")
	}

	if _, err := h.vault.RegisterPair(owner, LegConfig{Leg: yesX, Decimals: 6}, LegConfig{Leg: noY, Decimals: 6}, "identity"); !errors.Is(err, ErrAlreadyAllowed) {
		t.Fatalf("expected ErrAlreadyAllowed, got %v", err)
	}
	evts := h.events.Events()
	if len(evts) == 0 {
		t.Fatalf("expected registration event")
	}
	reg, ok := evts[len(evts)-1].(events.PairRegistered)
	if !ok || reg.Pair != key {
		t.Fatalf("unexpected last event %#v", evts[len(evts)-1])
	}
	binding, _ := h.oracles.Binding(reg.Oracle)
	p, _, err = h.vault.Pair(key)
	if err != nil || p.OracleBinding != binding || reg.Binding != binding {
		t.Fatalf("pair binding %s event binding %s, want %s (%v)", p.OracleBinding, reg.Binding, binding, err)
	}
}

func TestRegisterPairValidation(t *testing.T) {
	h := newHarness(t, 6, 0)
	cases := []struct {
		name   string
		caller common.Address
		a, b   LegConfig
		oracle string
		want   error
	}{
		{"non owner", alice, LegConfig{Leg: yesX}, LegConfig{Leg: noY}, "identity", ErrUnauthorized},
		{"identical legs", owner, LegConfig{Leg: yesX}, LegConfig{Leg: yesX}, "identity", ErrInvalidLeg},
		{"empty leg", owner, LegConfig{}, LegConfig{Leg: noY}, "identity", ErrInvalidLeg},
		{"decimals too large", owner, LegConfig{Leg: yesX, Decimals: 37}, LegConfig{Leg: noY}, "identity", ErrInvalidLeg},
		{"unknown oracle", owner, LegConfig{Leg: yesX}, LegConfig{Leg: noY}, "missing", ErrUnknownOracle},
	}
	for _, tc := range cases {
		if _, err := h.vault.RegisterPair(tc.caller, tc.a, tc.b, tc.oracle); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if count, _ := h.vault.PairCount(); count != 0 {
		t.Fatalf("failed registrations left %d pairs", count)
	}
}

func TestPairsInclusiveRange(t *testing.T) {
	h := newHarness(t, 6, 0)
	var keys []types.PairKey
	for i := byte(1); i <= 3; i++ {
		leg := types.LegID{Ledger: ledgerY, Series: common.BytesToHash([]byte{0x10 + i})}
		key, err := h.vault.RegisterPair(owner, LegConfig{Leg: yesX, Decimals: 6}, LegConfig{Leg: leg, Decimals: 6}, "identity")
		if err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
		keys = append(keys, key)
	}
	all, err := h.vault.Pairs(0, 2)
	if err != nil {
		t.Fatalf("pairs: %v", err)
	}
	if len(all) != 3 || all[0].Key != keys[0] || all[2].Key != keys[2] {
		t.Fatalf("unexpected listing: %d entries", len(all))
	}
	one, err := h.vault.Pairs(1, 1)
	if err != nil || len(one) != 1 || one[0].Key != keys[1] {
		t.Fatalf("single entry listing failed: %v", err)
	}
	for _, r := range [][2]uint64{{0, 3}, {2, 1}} {
		if _, err := h.vault.Pairs(r[0], r[1]); !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("Pairs(%d, %d): expected ErrInvalidRange, got %v", r[0], r[1], err)
		}
	}

	// Removing the first entry moves the last one into its slot.
	if err := h.vault.RemovePair(owner, keys[0]); err != nil {
		t.Fatalf("remove: %v", err)
	}
	rest, err := h.vault.Pairs(0, 1)
	if err != nil {
		t.Fatalf("pairs after removal: %v", err)
	}
	if rest[0].Key != keys[2] || rest[1].Key != keys[1] {
		t.Fatalf("unexpected order after removal")
	}
	if _, err := h.vault.Pairs(0, 2); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange past the end, got %v", err)
	}
	h.checkInvariants()
}

func TestInvariantDetectsDrift(t *testing.T) {
	h, key := mergedPair(t, 0)
	p, _, _ := h.vault.Pair(key)
	p.EarlyExited = u(1)
	if err := h.vault.putPair(p); err != nil {
		t.Fatalf("put pair: %v", err)
	}
	if err := h.vault.CheckInvariants(); !errors.Is(err, ErrInvariantViolated) {
		t.Fatalf("expected ErrInvariantViolated, got %v", err)
	}
}
