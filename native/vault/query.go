package vault

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairvault/core/types"
	nativecommon "pairvault/native/common"
	"pairvault/native/oracle"
)

// Settings returns a copy of the vault-wide settings.
func (e *Engine) Settings() (*Settings, error) {
	return e.loadSettings()
}

// TotalAssets returns the reported total value shares are priced against.
func (e *Engine) TotalAssets() (*uint256.Int, error) {
	s, err := e.loadSettings()
	if err != nil {
		return nil, err
	}
	return e.reportedTotalValue(s)
}

// SharesOf returns the vault share balance of holder.
func (e *Engine) SharesOf(holder common.Address) (*uint256.Int, error) {
	return e.sharesOf(holder)
}

// ConvertToShares prices assets in shares, rounding down.
func (e *Engine) ConvertToShares(assets *uint256.Int) (*uint256.Int, error) {
	s, err := e.loadSettings()
	if err != nil {
		return nil, err
	}
	total, err := e.reportedTotalValue(s)
	if err != nil {
		return nil, err
	}
	return sharesFor(assets, s.TotalShares, total, nativecommon.RoundDown)
}

// ConvertToAssets prices shares in assets, rounding down.
func (e *Engine) ConvertToAssets(shares *uint256.Int) (*uint256.Int, error) {
	s, err := e.loadSettings()
	if err != nil {
		return nil, err
	}
	total, err := e.reportedTotalValue(s)
	if err != nil {
		return nil, err
	}
	return assetsFor(shares, s.TotalShares, total, nativecommon.RoundDown)
}

// EstimateMerge previews a Merge without touching state.
func (e *Engine) EstimateMerge(ctx context.Context, key types.PairKey, amount *uint256.Int) (*MergeResult, error) {
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	p, err := e.activePair(key)
	if err != nil {
		return nil, err
	}
	s, err := e.loadSettings()
	if err != nil {
		return nil, err
	}
	legA, legB, err := e.legAmounts(s, p, amount, nativecommon.RoundUp)
	if err != nil {
		return nil, err
	}
	payout, err := e.quote(ctx, p, amount, oracle.Merge)
	if err != nil {
		return nil, err
	}
	return &MergeResult{Payout: payout, LegAmountA: legA, LegAmountB: legB}, nil
}

// EstimateSplit previews the claims a Split would push out.
func (e *Engine) EstimateSplit(ctx context.Context, key types.PairKey, amount *uint256.Int) (*SplitResult, error) {
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	p, err := e.activePair(key)
	if err != nil {
		return nil, err
	}
	s, err := e.loadSettings()
	if err != nil {
		return nil, err
	}
	outcome, err := e.quote(ctx, p, amount, oracle.Split)
	if err != nil {
		return nil, err
	}
	legA, legB, err := e.legAmounts(s, p, outcome, nativecommon.RoundDown)
	if err != nil {
		return nil, err
	}
	result := &SplitResult{Outcome: outcome, LegAmountA: legA, LegAmountB: legB, Profit: new(uint256.Int), Fee: new(uint256.Int), FeeShares: new(uint256.Int)}
	if p.EarlyExited.Lt(amount) {
		result.Profit = new(uint256.Int).Sub(amount, p.EarlyExited)
		if result.Fee, err = feeFor(result.Profit, s.FeesBps); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Summary returns a snapshot of settings and totals.
func (e *Engine) Summary() (*Summary, error) {
	s, err := e.loadSettings()
	if err != nil {
		return nil, err
	}
	held, err := e.reserveHeld(s)
	if err != nil {
		return nil, err
	}
	total, err := e.reportedTotalValue(s)
	if err != nil {
		return nil, err
	}
	count, err := e.PairCount()
	if err != nil {
		return nil, err
	}
	return &Summary{Settings: s, TotalAssets: total, ReserveHeld: held, PairCount: count}, nil
}
