package vault

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairvault/core/events"
	"pairvault/core/types"
	nativecommon "pairvault/native/common"
)

// StartSettlement pauses an active pair and sweeps the vault's entire balance
// of both legs to the caller for off-system redemption.
func (e *Engine) StartSettlement(caller common.Address, key types.PairKey) (*SettlementResult, error) {
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	s, err := e.loadSettings()
	if err != nil {
		return nil, err
	}
	if err := e.requireOwner(s, caller); err != nil {
		return nil, err
	}
	p, err := e.activePair(key)
	if err != nil {
		return nil, err
	}
	p.Paused = true
	if err := e.putPair(p); err != nil {
		return nil, err
	}

	ledger, err := e.claimLedger()
	if err != nil {
		return nil, err
	}
	result := &SettlementResult{}
	if result.SweptLegA, err = e.sweep(ledger, p.LegA, caller); err != nil {
		return nil, err
	}
	if result.SweptLegB, err = e.sweep(ledger, p.LegB, caller); err != nil {
		return nil, err
	}
	e.emit(events.SettlementStarted{
		Pair:      key,
		Recipient: caller,
		SweptLegA: nativecommon.Clone(result.SweptLegA),
		SweptLegB: nativecommon.Clone(result.SweptLegB),
	})
	return result, nil
}

func (e *Engine) sweep(ledger ClaimTransfer, leg types.LegID, to common.Address) (*uint256.Int, error) {
	bal, err := ledger.BalanceOf(leg, e.address)
	if err != nil {
		return nil, err
	}
	if err := e.pushClaims(to, leg, bal); err != nil {
		return nil, err
	}
	return bal, nil
}

// ReportOutcome reconciles a paused pair. settled collateral is pulled from the
// caller into the reserve; any excess over the early-exited notional is profit
// charged the fee, any shortfall is a loss borne by depositors.
func (e *Engine) ReportOutcome(caller common.Address, key types.PairKey, settled *uint256.Int) (*ReportResult, error) {
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	s, err := e.loadSettings()
	if err != nil {
		return nil, err
	}
	if err := e.requireOwner(s, caller); err != nil {
		return nil, err
	}
	return e.reportOutcome(s, caller, key, settled)
}

func (e *Engine) reportOutcome(s *Settings, caller common.Address, key types.PairKey, settled *uint256.Int) (*ReportResult, error) {
	p, err := e.loadPair(key)
	if err != nil {
		return nil, err
	}
	if p == nil || !p.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrPairNotAllowed, key.Hex())
	}
	if !p.Paused {
		return nil, fmt.Errorf("%w: %s", ErrPairNotPaused, key.Hex())
	}
	settled = nativecommon.Clone(settled)

	if err := e.pullCollateral(caller, settled); err != nil {
		return nil, err
	}
	if err := e.depositToReserve(s, settled); err != nil {
		return nil, err
	}

	early := nativecommon.Clone(p.EarlyExited)
	result := &ReportResult{
		Settled:     settled,
		EarlyExited: early,
		Profit:      new(uint256.Int),
		Loss:        new(uint256.Int),
		Fee:         new(uint256.Int),
		FeeShares:   new(uint256.Int),
	}
	var gross *uint256.Int
	if settled.Gt(early) {
		gross = new(uint256.Int).Sub(settled, early)
	} else {
		result.Loss = new(uint256.Int).Sub(early, settled)
	}

	if err := e.applyEarlyExited(s, p, early, false); err != nil {
		return nil, err
	}
	p.Paused = false
	if err := e.putPair(p); err != nil {
		return nil, err
	}

	if gross != nil {
		if result.Fee, err = feeFor(gross, s.FeesBps); err != nil {
			return nil, err
		}
		if result.FeeShares, err = e.mintFee(s, result.Fee); err != nil {
			return nil, err
		}
		result.Profit = new(uint256.Int).Sub(gross, result.Fee)
	}

	e.emit(events.Report{
		Pair:        key,
		Settled:     nativecommon.Clone(settled),
		EarlyExited: nativecommon.Clone(early),
		Profit:      nativecommon.Clone(result.Profit),
		Loss:        nativecommon.Clone(result.Loss),
		Fee:         nativecommon.Clone(result.Fee),
		FeeShares:   nativecommon.Clone(result.FeeShares),
	})
	return result, nil
}

// ReportAndRemove reconciles a paused pair and erases it in one step.
func (e *Engine) ReportAndRemove(caller common.Address, key types.PairKey, settled *uint256.Int) (*ReportResult, error) {
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	s, err := e.loadSettings()
	if err != nil {
		return nil, err
	}
	if err := e.requireOwner(s, caller); err != nil {
		return nil, err
	}
	result, err := e.reportOutcome(s, caller, key, settled)
	if err != nil {
		return nil, err
	}
	if err := e.removePair(key); err != nil {
		return nil, err
	}
	return result, nil
}
