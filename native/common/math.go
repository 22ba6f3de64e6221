package common

import (
	"errors"

	"github.com/holiman/uint256"
)

// BasisPoints is the denominator for every percentage expressed in bps.
const BasisPoints = 10_000

var (
	ErrDivisionByZero = errors.New("division by zero")
	ErrMathOverflow   = errors.New("arithmetic overflow")
)

// Rounding selects how MulDiv treats a non-zero remainder.
type Rounding uint8

const (
	RoundDown Rounding = iota
	RoundUp
)

// MulDiv returns x*y/d with full 512-bit intermediate precision.
func MulDiv(x, y, d *uint256.Int, rounding Rounding) (*uint256.Int, error) {
	if d == nil || d.IsZero() {
		return nil, ErrDivisionByZero
	}
	out, overflow := new(uint256.Int).MulDivOverflow(Clone(x), Clone(y), d)
	if overflow {
		return nil, ErrMathOverflow
	}
	if rounding == RoundUp {
		rem := new(uint256.Int).MulMod(Clone(x), Clone(y), d)
		if !rem.IsZero() {
			if out, overflow = new(uint256.Int).AddOverflow(out, uint256.NewInt(1)); overflow {
				return nil, ErrMathOverflow
			}
		}
	}
	return out, nil
}

// Add returns a+b or ErrMathOverflow.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(Clone(a), Clone(b))
	if overflow {
		return nil, ErrMathOverflow
	}
	return out, nil
}

// Pow10 returns 10^exp. Exponents above 77 overflow 256 bits.
func Pow10(exp uint8) (*uint256.Int, error) {
	if exp > 77 {
		return nil, ErrMathOverflow
	}
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(exp))), nil
}

// ApplyBps returns amount*bps/BasisPoints rounded down.
func ApplyBps(amount *uint256.Int, bps uint64) (*uint256.Int, error) {
	return MulDiv(amount, uint256.NewInt(bps), uint256.NewInt(BasisPoints), RoundDown)
}
