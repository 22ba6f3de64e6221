// core/genesis/spec_test.go
package genesis

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"pairvault/core/state"
	"pairvault/native/bank"
	"pairvault/native/claims"
	"pairvault/native/reserve"
	"pairvault/native/vault"
	"pairvault/storage"
)

const (
	usdcAddr    = "0x000000000000000000000000000000000000d001"
	ledgerAddr  = "0x000000000000000000000000000000000000a0a0"
	reserveAddr = "0x000000000000000000000000000000000000e001"
	ownerAddr   = "0x0000000000000000000000000000000000000001"
	holderAddr  = "0x00000000000000000000000000000000000000b1"
	vaultAddr   = "0x0000000000000000000000000000000000000f00"
)

func sampleSpec() GenesisSpec {
	return GenesisSpec{
		Tokens:   []TokenSpec{{Address: usdcAddr, Symbol: "USDC", Decimals: 6}},
		Ledgers:  []LedgerSpec{{Address: ledgerAddr, Name: "market-x"}},
		Reserves: []ReserveSpec{{Address: reserveAddr, Asset: usdcAddr, Name: "usdc-yield"}},
		Vault: VaultSpec{
			Owner:        ownerAddr,
			FeeRecipient: ownerAddr,
			FeesBps:      250,
			Reserve:      reserveAddr,
			Collateral:   usdcAddr,
		},
		Alloc: map[string]map[string]string{
			holderAddr: {usdcAddr: "1000000"},
		},
	}
}

func targets() Targets {
	mgr := state.NewManager(storage.NewMemDB())
	b := bank.NewEngine()
	b.SetState(mgr)
	c := claims.NewEngine()
	c.SetState(mgr)
	r := reserve.NewEngine()
	r.SetState(mgr)
	r.SetBank(b)
	v := vault.NewEngine(common.HexToAddress(vaultAddr))
	v.SetState(mgr)
	v.SetClaims(c)
	v.SetReserves(vault.ReserveFunc(func(addr common.Address) (vault.Reserve, error) {
		h, err := r.At(addr)
		if err != nil {
			return nil, err
		}
		return h, nil
	}))
	return Targets{Bank: b, Claims: c, Reserve: r, Vault: v}
}

func TestLoadGenesisSpecAndApply(t *testing.T) {
	spec := sampleSpec()
	raw, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("marshal spec: %v", err)
	}
	path := filepath.Join(t.TempDir(), "genesis.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write spec: %v", err)
	}

	loaded, err := LoadGenesisSpec(path)
	if err != nil {
		t.Fatalf("load spec: %v", err)
	}
	if got := loaded.CollateralDecimals(); got != 6 {
		t.Fatalf("collateral decimals = %d, want 6", got)
	}

	tg := targets()
	if err := Apply(loaded, tg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	bal, err := tg.Bank.BalanceOf(common.HexToAddress(usdcAddr), common.HexToAddress(holderAddr))
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Uint64() != 1_000_000 {
		t.Fatalf("holder balance = %d, want 1000000", bal.Uint64())
	}
	settings, err := tg.Vault.Settings()
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if settings.FeesBps != 250 || settings.CollateralDecimals != 6 || settings.Owner != common.HexToAddress(ownerAddr) {
		t.Fatalf("unexpected settings: %+v", settings)
	}
	ledgers, err := tg.Claims.Ledgers()
	if err != nil || len(ledgers) != 1 {
		t.Fatalf("ledgers = %d (%v), want 1", len(ledgers), err)
	}

	if err := Apply(loaded, tg); err == nil {
		t.Fatalf("expected second apply to fail")
	}
}

func TestLoadGenesisSpecRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	if err := os.WriteFile(path, []byte(`{"chainId": 1}`), 0o644); err != nil {
		t.Fatalf("write spec: %v", err)
	}
	if _, err := LoadGenesisSpec(path); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestValidateCrossReferences(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*GenesisSpec)
		want   string
	}{
		{"fee above cap", func(s *GenesisSpec) { s.Vault.FeesBps = vault.MaxFeesBps + 1 }, "feesBps"},
		{"unknown collateral", func(s *GenesisSpec) { s.Vault.Collateral = holderAddr }, "vault.collateral"},
		{"unknown reserve", func(s *GenesisSpec) { s.Vault.Reserve = holderAddr }, "vault.reserve"},
		{"reserve asset mismatch", func(s *GenesisSpec) {
			s.Tokens = append(s.Tokens, TokenSpec{Address: "0x000000000000000000000000000000000000d002", Symbol: "DAI", Decimals: 18})
			s.Reserves[0].Asset = "0x000000000000000000000000000000000000d002"
		}, "holds"},
		{"bad amount", func(s *GenesisSpec) { s.Alloc[holderAddr][usdcAddr] = "-5" }, "invalid amount"},
		{"zero owner", func(s *GenesisSpec) { s.Vault.Owner = "0x0000000000000000000000000000000000000000" }, "zero address"},
		{"decimals", func(s *GenesisSpec) { s.Tokens[0].Decimals = 40 }, "decimals"},
	}
	for _, tc := range cases {
		spec := sampleSpec()
		tc.mutate(&spec)
		err := spec.Validate()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
}
