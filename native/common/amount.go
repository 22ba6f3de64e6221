package common

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// ErrAmountOverflow is returned when a stored amount does not fit in 256 bits.
var ErrAmountOverflow = errors.New("amount exceeds 256 bits")

// ToStored converts an in-memory amount into the RLP-friendly representation
// persisted by the state manager.
func ToStored(v *uint256.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v.ToBig()
}

// FromStored converts a persisted amount back into a 256-bit integer. Nil
// values decode as zero.
func FromStored(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, ErrAmountOverflow
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return out, nil
}

// Zero returns a fresh zero amount.
func Zero() *uint256.Int { return new(uint256.Int) }

// Clone copies v, treating nil as zero.
func Clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
