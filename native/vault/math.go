package vault

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	nativecommon "pairvault/native/common"
)

// toLegAmount rescales a collateral-decimal amount into a leg's native scale.
// Scaling up is exact; scaling down honours the requested rounding.
func toLegAmount(amount *uint256.Int, collateralDecimals, legDecimals uint8, rounding nativecommon.Rounding) (*uint256.Int, error) {
	if legDecimals > collateralDecimals {
		factor, err := nativecommon.Pow10(legDecimals - collateralDecimals)
		if err != nil {
			return nil, mathErr(err)
		}
		out, overflow := new(uint256.Int).MulOverflow(nativecommon.Clone(amount), factor)
		if overflow {
			return nil, ErrOverflow
		}
		return out, nil
	}
	factor, err := nativecommon.Pow10(collateralDecimals - legDecimals)
	if err != nil {
		return nil, mathErr(err)
	}
	out, err := nativecommon.MulDiv(amount, uint256.NewInt(1), factor, rounding)
	return out, mathErr(err)
}

// feeFor returns profit*feesBps/FeeDenominator rounded down.
func feeFor(profit *uint256.Int, feesBps uint64) (*uint256.Int, error) {
	fee, err := nativecommon.ApplyBps(profit, feesBps)
	return fee, mathErr(err)
}

// sharesFor converts assets into vault shares against the reported total
// value with a virtual offset of one share and one unit of assets.
func sharesFor(assets, totalShares, totalAssets *uint256.Int, rounding nativecommon.Rounding) (*uint256.Int, error) {
	num, err := nativecommon.Add(totalShares, uint256.NewInt(1))
	if err != nil {
		return nil, ErrOverflow
	}
	den, err := nativecommon.Add(totalAssets, uint256.NewInt(1))
	if err != nil {
		return nil, ErrOverflow
	}
	out, err := nativecommon.MulDiv(assets, num, den, rounding)
	return out, mathErr(err)
}

func assetsFor(shares, totalShares, totalAssets *uint256.Int, rounding nativecommon.Rounding) (*uint256.Int, error) {
	num, err := nativecommon.Add(totalAssets, uint256.NewInt(1))
	if err != nil {
		return nil, ErrOverflow
	}
	den, err := nativecommon.Add(totalShares, uint256.NewInt(1))
	if err != nil {
		return nil, ErrOverflow
	}
	out, err := nativecommon.MulDiv(shares, num, den, rounding)
	return out, mathErr(err)
}

func mathErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, nativecommon.ErrMathOverflow) || errors.Is(err, nativecommon.ErrDivisionByZero) {
		return fmt.Errorf("%w: %v", ErrOverflow, err)
	}
	return err
}
