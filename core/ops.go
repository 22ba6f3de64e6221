package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairvault/core/genesis"
	"pairvault/core/types"
	"pairvault/native/vault"
)

// PairSeed is a pair registered by Bootstrap when it is not allowed yet.
type PairSeed struct {
	LegA   vault.LegConfig
	LegB   vault.LegConfig
	Oracle string
}

// Initialized reports whether genesis has been applied.
func (n *Node) Initialized(ctx context.Context) (bool, error) {
	initialized := false
	err := n.View(ctx, func(_ context.Context, m *Modules) error {
		_, err := m.Vault.Settings()
		switch {
		case err == nil:
			initialized = true
		case errors.Is(err, vault.ErrNotInitialized):
		default:
			return err
		}
		return nil
	})
	return initialized, err
}

// Bootstrap applies spec when the vault has never been initialised and then
// registers every seed pair that is not allowed yet on behalf of the owner.
// Running it again against an initialised database only adds missing pairs.
func (n *Node) Bootstrap(ctx context.Context, spec *genesis.GenesisSpec, seeds []PairSeed) error {
	return n.Update(ctx, "bootstrap", func(_ context.Context, m *Modules) error {
		settings, err := m.Vault.Settings()
		if errors.Is(err, vault.ErrNotInitialized) {
			if spec == nil {
				return fmt.Errorf("genesis spec required for an empty database")
			}
			err = genesis.Apply(spec, genesis.Targets{Bank: m.Bank, Claims: m.Claims, Reserve: m.Reserve, Vault: m.Vault})
			if err != nil {
				return err
			}
			settings, err = m.Vault.Settings()
		}
		if err != nil {
			return err
		}
		for _, seed := range seeds {
			allowed, err := m.Vault.IsPairAllowed(seed.LegA.Leg, seed.LegB.Leg)
			if err != nil {
				return err
			}
			if allowed {
				continue
			}
			if _, err := m.Vault.RegisterPair(settings.Owner, seed.LegA, seed.LegB, seed.Oracle); err != nil {
				return fmt.Errorf("register %s/%s: %w", seed.LegA.Leg, seed.LegB.Leg, err)
			}
		}
		return nil
	})
}

func (n *Node) RegisterPair(ctx context.Context, caller common.Address, legA, legB vault.LegConfig, oracleName string) (types.PairKey, error) {
	var key types.PairKey
	err := n.Update(ctx, "register_pair", func(_ context.Context, m *Modules) error {
		var err error
		key, err = m.Vault.RegisterPair(caller, legA, legB, oracleName)
		return err
	})
	return key, err
}

func (n *Node) RemovePair(ctx context.Context, caller common.Address, key types.PairKey) error {
	return n.Update(ctx, "remove_pair", func(_ context.Context, m *Modules) error {
		return m.Vault.RemovePair(caller, key)
	})
}

func (n *Node) Merge(ctx context.Context, caller common.Address, key types.PairKey, amount *uint256.Int, dest common.Address) (*vault.MergeResult, error) {
	var res *vault.MergeResult
	err := n.Update(ctx, "merge", func(ctx context.Context, m *Modules) error {
		var err error
		res, err = m.Vault.Merge(ctx, caller, key, amount, dest)
		return err
	})
	return res, err
}

func (n *Node) Split(ctx context.Context, caller common.Address, key types.PairKey, amount *uint256.Int, dest common.Address) (*vault.SplitResult, error) {
	var res *vault.SplitResult
	err := n.Update(ctx, "split", func(ctx context.Context, m *Modules) error {
		var err error
		res, err = m.Vault.Split(ctx, caller, key, amount, dest)
		return err
	})
	return res, err
}

func (n *Node) StartSettlement(ctx context.Context, caller common.Address, key types.PairKey) (*vault.SettlementResult, error) {
	var res *vault.SettlementResult
	err := n.Update(ctx, "start_settlement", func(_ context.Context, m *Modules) error {
		var err error
		res, err = m.Vault.StartSettlement(caller, key)
		return err
	})
	return res, err
}

// ReportOutcome reconciles a paused pair. With remove set the pair is also
// dropped from the registry in the same operation.
func (n *Node) ReportOutcome(ctx context.Context, caller common.Address, key types.PairKey, settled *uint256.Int, remove bool) (*vault.ReportResult, error) {
	var res *vault.ReportResult
	op := "report"
	if remove {
		op = "report_and_remove"
	}
	err := n.Update(ctx, op, func(_ context.Context, m *Modules) error {
		var err error
		if remove {
			res, err = m.Vault.ReportAndRemove(caller, key, settled)
		} else {
			res, err = m.Vault.ReportOutcome(caller, key, settled)
		}
		return err
	})
	return res, err
}

func (n *Node) Deposit(ctx context.Context, caller common.Address, assets *uint256.Int, receiver common.Address) (*uint256.Int, error) {
	var shares *uint256.Int
	err := n.Update(ctx, "deposit", func(_ context.Context, m *Modules) error {
		var err error
		shares, err = m.Vault.Deposit(caller, assets, receiver)
		return err
	})
	return shares, err
}

func (n *Node) Withdraw(ctx context.Context, caller common.Address, assets *uint256.Int, receiver, owner common.Address) (*uint256.Int, error) {
	var shares *uint256.Int
	err := n.Update(ctx, "withdraw", func(_ context.Context, m *Modules) error {
		var err error
		shares, err = m.Vault.Withdraw(caller, assets, receiver, owner)
		return err
	})
	return shares, err
}

func (n *Node) Redeem(ctx context.Context, caller common.Address, shares *uint256.Int, receiver, owner common.Address) (*uint256.Int, error) {
	var assets *uint256.Int
	err := n.Update(ctx, "redeem", func(_ context.Context, m *Modules) error {
		var err error
		assets, err = m.Vault.Redeem(caller, shares, receiver, owner)
		return err
	})
	return assets, err
}

func (n *Node) SetFeesPercentage(ctx context.Context, caller common.Address, bps uint64) error {
	return n.Update(ctx, "set_fees", func(_ context.Context, m *Modules) error {
		return m.Vault.SetFeesPercentage(caller, bps)
	})
}

func (n *Node) SetFeeRecipient(ctx context.Context, caller, recipient common.Address) error {
	return n.Update(ctx, "set_fee_recipient", func(_ context.Context, m *Modules) error {
		return m.Vault.SetFeeRecipient(caller, recipient)
	})
}

func (n *Node) TransferOwnership(ctx context.Context, caller, next common.Address) error {
	return n.Update(ctx, "transfer_ownership", func(_ context.Context, m *Modules) error {
		return m.Vault.TransferOwnership(caller, next)
	})
}

func (n *Node) MigrateReserve(ctx context.Context, caller, next common.Address) (*uint256.Int, error) {
	var moved *uint256.Int
	err := n.Update(ctx, "migrate_reserve", func(_ context.Context, m *Modules) error {
		var err error
		moved, err = m.Vault.MigrateReserve(caller, next)
		return err
	})
	return moved, err
}

// Collaborator helpers. These drive the bank, claim ledgers and reserves the
// vault talks to so a standalone deployment can be exercised end to end.

func (n *Node) ApproveCollateral(ctx context.Context, owner, spender common.Address, amount *uint256.Int) error {
	return n.Update(ctx, "approve_collateral", func(_ context.Context, m *Modules) error {
		s, err := m.Vault.Settings()
		if err != nil {
			return err
		}
		return m.Bank.Approve(s.Collateral, owner, spender, amount)
	})
}

func (n *Node) SetClaimApproval(ctx context.Context, ledger, owner, operator common.Address, approved bool) error {
	return n.Update(ctx, "approve_claims", func(_ context.Context, m *Modules) error {
		return m.Claims.SetApprovalForAll(ledger, owner, operator, approved)
	})
}

func (n *Node) MintCollateral(ctx context.Context, to common.Address, amount *uint256.Int) error {
	return n.Update(ctx, "mint_collateral", func(_ context.Context, m *Modules) error {
		s, err := m.Vault.Settings()
		if err != nil {
			return err
		}
		return m.Bank.Mint(s.Collateral, to, amount)
	})
}

func (n *Node) MintClaims(ctx context.Context, leg types.LegID, to common.Address, amount *uint256.Int) error {
	return n.Update(ctx, "mint_claims", func(_ context.Context, m *Modules) error {
		return m.Claims.Mint(leg, to, amount)
	})
}

func (n *Node) AccrueReserve(ctx context.Context, reserveAddr common.Address, amount *uint256.Int) error {
	return n.Update(ctx, "accrue_reserve", func(_ context.Context, m *Modules) error {
		return m.Reserve.Accrue(reserveAddr, amount)
	})
}

// Read helpers.

func (n *Node) Summary(ctx context.Context) (*vault.Summary, error) {
	var out *vault.Summary
	err := n.View(ctx, func(_ context.Context, m *Modules) error {
		var err error
		out, err = m.Vault.Summary()
		return err
	})
	return out, err
}

func (n *Node) Pair(ctx context.Context, key types.PairKey) (*vault.PairConfig, bool, error) {
	var (
		out   *vault.PairConfig
		found bool
	)
	err := n.View(ctx, func(_ context.Context, m *Modules) error {
		var err error
		out, found, err = m.Vault.Pair(key)
		return err
	})
	return out, found, err
}

func (n *Node) IsPairAllowed(ctx context.Context, legA, legB types.LegID) (bool, error) {
	var allowed bool
	err := n.View(ctx, func(_ context.Context, m *Modules) error {
		var err error
		allowed, err = m.Vault.IsPairAllowed(legA, legB)
		return err
	})
	return allowed, err
}

func (n *Node) PairCount(ctx context.Context) (uint64, error) {
	var count uint64
	err := n.View(ctx, func(_ context.Context, m *Modules) error {
		var err error
		count, err = m.Vault.PairCount()
		return err
	})
	return count, err
}

func (n *Node) Pairs(ctx context.Context, start, end uint64) ([]*vault.PairConfig, error) {
	var out []*vault.PairConfig
	err := n.View(ctx, func(_ context.Context, m *Modules) error {
		var err error
		out, err = m.Vault.Pairs(start, end)
		return err
	})
	return out, err
}

func (n *Node) EstimateMerge(ctx context.Context, key types.PairKey, amount *uint256.Int) (*vault.MergeResult, error) {
	var out *vault.MergeResult
	err := n.View(ctx, func(ctx context.Context, m *Modules) error {
		var err error
		out, err = m.Vault.EstimateMerge(ctx, key, amount)
		return err
	})
	return out, err
}

func (n *Node) EstimateSplit(ctx context.Context, key types.PairKey, amount *uint256.Int) (*vault.SplitResult, error) {
	var out *vault.SplitResult
	err := n.View(ctx, func(ctx context.Context, m *Modules) error {
		var err error
		out, err = m.Vault.EstimateSplit(ctx, key, amount)
		return err
	})
	return out, err
}

func (n *Node) SharesOf(ctx context.Context, holder common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := n.View(ctx, func(_ context.Context, m *Modules) error {
		var err error
		out, err = m.Vault.SharesOf(holder)
		return err
	})
	return out, err
}

func (n *Node) ConvertToShares(ctx context.Context, assets *uint256.Int) (*uint256.Int, error) {
	var out *uint256.Int
	err := n.View(ctx, func(_ context.Context, m *Modules) error {
		var err error
		out, err = m.Vault.ConvertToShares(assets)
		return err
	})
	return out, err
}

func (n *Node) ConvertToAssets(ctx context.Context, shares *uint256.Int) (*uint256.Int, error) {
	var out *uint256.Int
	err := n.View(ctx, func(_ context.Context, m *Modules) error {
		var err error
		out, err = m.Vault.ConvertToAssets(shares)
		return err
	})
	return out, err
}

// CollateralBalance returns holder's balance of the vault collateral.
func (n *Node) CollateralBalance(ctx context.Context, holder common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := n.View(ctx, func(_ context.Context, m *Modules) error {
		s, err := m.Vault.Settings()
		if err != nil {
			return err
		}
		out, err = m.Bank.BalanceOf(s.Collateral, holder)
		return err
	})
	return out, err
}

func (n *Node) ClaimBalance(ctx context.Context, leg types.LegID, holder common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := n.View(ctx, func(_ context.Context, m *Modules) error {
		var err error
		out, err = m.Claims.BalanceOf(leg, holder)
		return err
	})
	return out, err
}

// CollateralAllowance returns how much of owner's collateral spender may pull.
func (n *Node) CollateralAllowance(ctx context.Context, owner, spender common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := n.View(ctx, func(_ context.Context, m *Modules) error {
		s, err := m.Vault.Settings()
		if err != nil {
			return err
		}
		out, err = m.Bank.Allowance(s.Collateral, owner, spender)
		return err
	})
	return out, err
}
