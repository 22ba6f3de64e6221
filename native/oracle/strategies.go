package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"pairvault/core/types"
	nativecommon "pairvault/native/common"
)

const secondsPerYear = 365 * 24 * 60 * 60

// Identity returns the requested amount unchanged in both directions.
type Identity struct{}

func (Identity) Quote(_ context.Context, req Request) (*uint256.Int, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	return nativecommon.Clone(req.Amount), nil
}

// FixedDiscount haircuts each direction by a constant number of basis points.
type FixedDiscount struct {
	MergeBps uint64
	SplitBps uint64
}

func (f FixedDiscount) Quote(_ context.Context, req Request) (*uint256.Int, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	bps := f.MergeBps
	if req.Operation == Split {
		bps = f.SplitBps
	}
	if bps > nativecommon.BasisPoints {
		return nil, fmt.Errorf("%w: discount %d bps", ErrInvalidDefinition, bps)
	}
	return nativecommon.ApplyBps(req.Amount, nativecommon.BasisPoints-bps)
}

// TimeDecay discounts by simple interest at an annualised rate over the time
// left until expiry. Merge pays amount/(1+r·t); Split hands out amount·(1+r·t)
// claim units. Both round down.
type TimeDecay struct {
	RateBps uint64
	Expiry  time.Time
	Now     func() time.Time
}

func (d TimeDecay) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

func (d TimeDecay) Quote(_ context.Context, req Request) (*uint256.Int, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	remaining := d.Expiry.Unix() - d.now().Unix()
	if remaining <= 0 {
		return nil, ErrMarketAlreadyExpired
	}
	base := new(uint256.Int).Mul(uint256.NewInt(secondsPerYear), uint256.NewInt(nativecommon.BasisPoints))
	accrued, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(d.RateBps), uint256.NewInt(uint64(remaining)))
	if overflow {
		return nil, nativecommon.ErrMathOverflow
	}
	grown, err := nativecommon.Add(base, accrued)
	if err != nil {
		return nil, err
	}
	if req.Operation == Merge {
		return nativecommon.MulDiv(req.Amount, base, grown, nativecommon.RoundDown)
	}
	return nativecommon.MulDiv(req.Amount, grown, base, nativecommon.RoundDown)
}

// PairTable dispatches to a per-pair strategy and refuses pairs it does not
// know.
type PairTable map[types.PairKey]Quoter

func (t PairTable) Quote(ctx context.Context, req Request) (*uint256.Int, error) {
	q, ok := t[req.Pair]
	if !ok || q == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPair, req.Pair.Hex())
	}
	return q.Quote(ctx, req)
}

func validate(req Request) error {
	if req.Operation != Merge && req.Operation != Split {
		return ErrUnknownOperation
	}
	if req.Amount == nil {
		return fmt.Errorf("%w: nil amount", ErrInvalidDefinition)
	}
	return nil
}
