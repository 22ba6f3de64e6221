package vault

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairvault/core/events"
)

// SetFeesPercentage updates the fee charged on realised profit.
func (e *Engine) SetFeesPercentage(caller common.Address, bps uint64) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	s, err := e.loadSettings()
	if err != nil {
		return err
	}
	if err := e.requireOwner(s, caller); err != nil {
		return err
	}
	if bps > MaxFeesBps {
		return fmt.Errorf("%w: %d bps above %d", ErrFeeTooHigh, bps, MaxFeesBps)
	}
	old := s.FeesBps
	s.FeesBps = bps
	if err := e.putSettings(s); err != nil {
		return err
	}
	e.emit(events.FeesUpdated{OldBps: old, NewBps: bps})
	return nil
}

// SetFeeRecipient changes who receives fee shares.
func (e *Engine) SetFeeRecipient(caller, recipient common.Address) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	s, err := e.loadSettings()
	if err != nil {
		return err
	}
	if err := e.requireOwner(s, caller); err != nil {
		return err
	}
	if recipient == (common.Address{}) {
		return ErrInvalidAddress
	}
	old := s.FeeRecipient
	s.FeeRecipient = recipient
	if err := e.putSettings(s); err != nil {
		return err
	}
	e.emit(events.FeeRecipientUpdated{Old: old, New: recipient})
	return nil
}

// TransferOwnership hands the configurator role to next.
func (e *Engine) TransferOwnership(caller, next common.Address) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	s, err := e.loadSettings()
	if err != nil {
		return err
	}
	if err := e.requireOwner(s, caller); err != nil {
		return err
	}
	if next == (common.Address{}) {
		return ErrInvalidAddress
	}
	s.Owner = next
	if err := e.putSettings(s); err != nil {
		return err
	}
	e.emit(events.OwnershipTransferred{Previous: caller, Next: next})
	return nil
}

// MigrateReserve moves the vault's whole reserve position into the reserve at
// next, which must hold the same collateral asset. It returns the assets moved.
func (e *Engine) MigrateReserve(caller, next common.Address) (*uint256.Int, error) {
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
	if next == (common.Address{}) || next == s.Reserve {
		return nil, ErrInvalidAddress
	}
	target, err := e.reserveAt(next)
	if err != nil {
		return nil, err
	}
	if err := checkAsset(target, s.Collateral); err != nil {
		return nil, err
	}
	current, err := e.reserveAt(s.Reserve)
	if err != nil {
		return nil, err
	}
	shares, err := current.BalanceOf(e.address)
	if err != nil {
		return nil, err
	}
	assets := new(uint256.Int)
	if !shares.IsZero() {
		if assets, err = current.Redeem(e.address, shares, e.address, e.address); err != nil {
			return nil, err
		}
	}
	old := s.Reserve
	s.Reserve = next
	if err := e.putSettings(s); err != nil {
		return nil, err
	}
	if err := e.depositToReserve(s, assets); err != nil {
		return nil, err
	}
	e.emit(events.ReserveMigrated{Old: old, New: next, Assets: assets.Clone()})
	return assets, nil
}
