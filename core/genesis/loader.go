// core/genesis/loader.go
package genesis

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"pairvault/native/bank"
	"pairvault/native/claims"
	"pairvault/native/reserve"
	"pairvault/native/vault"
)

// Targets are the engines genesis writes through. They must share one state
// backend so the caller can commit the result atomically.
type Targets struct {
	Bank    *bank.Engine
	Claims  *claims.Engine
	Reserve *reserve.Engine
	Vault   *vault.Engine
}

// Apply writes the spec through the engines in a deterministic order.
func Apply(spec *GenesisSpec, t Targets) error {
	if spec == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	if t.Bank == nil || t.Claims == nil || t.Reserve == nil || t.Vault == nil {
		return fmt.Errorf("genesis targets incomplete")
	}
	if err := spec.Validate(); err != nil {
		return err
	}

	// 1) Tokens (sorted)
	tokens := append([]TokenSpec(nil), spec.Tokens...)
	sort.Slice(tokens, func(i, j int) bool {
		return common.HexToAddress(tokens[i].Address).Cmp(common.HexToAddress(tokens[j].Address)) < 0
	})
	for _, tok := range tokens {
		if err := t.Bank.CreateToken(common.HexToAddress(tok.Address), tok.Symbol, tok.Decimals); err != nil {
			return fmt.Errorf("token %s: %w", tok.Address, err)
		}
	}

	// 2) Claim ledgers
	for _, ledger := range spec.Ledgers {
		if err := t.Claims.AddLedger(common.HexToAddress(ledger.Address), ledger.Name); err != nil {
			return fmt.Errorf("ledger %s: %w", ledger.Address, err)
		}
	}

	// 3) Reserves
	for _, res := range spec.Reserves {
		if err := t.Reserve.Create(common.HexToAddress(res.Address), common.HexToAddress(res.Asset), res.Name); err != nil {
			return fmt.Errorf("reserve %s: %w", res.Address, err)
		}
	}

	// 4) Balances (already sorted by Validate)
	for _, a := range spec.alloc {
		if err := t.Bank.Mint(a.token, a.holder, a.amount); err != nil {
			return fmt.Errorf("alloc %s/%s: %w", a.holder.Hex(), a.token.Hex(), err)
		}
	}

	// 5) Vault settings
	collateral := common.HexToAddress(spec.Vault.Collateral)
	t.Vault.SetCollateral(t.Bank.Handle(collateral))
	err := t.Vault.Initialize(vault.Settings{
		Owner:              common.HexToAddress(spec.Vault.Owner),
		FeeRecipient:       common.HexToAddress(spec.Vault.FeeRecipient),
		FeesBps:            spec.Vault.FeesBps,
		Reserve:            common.HexToAddress(spec.Vault.Reserve),
		Collateral:         collateral,
		CollateralDecimals: spec.CollateralDecimals(),
	})
	if err != nil {
		return fmt.Errorf("initialize vault: %w", err)
	}
	return nil
}
