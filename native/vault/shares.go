package vault

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairvault/core/events"
	nativecommon "pairvault/native/common"
)

// Deposit pulls assets from caller into the reserve and mints shares to
// receiver priced against the reported total value before the inflow.
func (e *Engine) Deposit(caller common.Address, assets *uint256.Int, receiver common.Address) (*uint256.Int, error) {
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if assets == nil || assets.IsZero() {
		return nil, ErrInvalidAmount
	}
	if caller == e.address {
		return nil, ErrInvalidAddress
	}
	if receiver == (common.Address{}) {
		receiver = caller
	}
	s, err := e.loadSettings()
	if err != nil {
		return nil, err
	}
	total, err := e.reportedTotalValue(s)
	if err != nil {
		return nil, err
	}
	shares, err := sharesFor(assets, s.TotalShares, total, nativecommon.RoundDown)
	if err != nil {
		return nil, err
	}
	if shares.IsZero() {
		return nil, fmt.Errorf("%w: deposit of %s mints no shares", ErrInvalidAmount, assets.Dec())
	}
	if err := e.pullCollateral(caller, assets); err != nil {
		return nil, err
	}
	if err := e.depositToReserve(s, assets); err != nil {
		return nil, err
	}
	if err := e.mintShares(s, receiver, shares); err != nil {
		return nil, err
	}
	e.emit(events.Deposit{Caller: caller, Receiver: receiver, Assets: nativecommon.Clone(assets), Shares: nativecommon.Clone(shares)})
	return shares, nil
}

// Withdraw burns the shares worth assets, rounded up, from owner and pays the
// assets to receiver. It returns the shares burned.
func (e *Engine) Withdraw(caller common.Address, assets *uint256.Int, receiver, owner common.Address) (*uint256.Int, error) {
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if assets == nil || assets.IsZero() {
		return nil, ErrInvalidAmount
	}
	s, err := e.loadSettings()
	if err != nil {
		return nil, err
	}
	total, err := e.reportedTotalValue(s)
	if err != nil {
		return nil, err
	}
	shares, err := sharesFor(assets, s.TotalShares, total, nativecommon.RoundUp)
	if err != nil {
		return nil, err
	}
	if err := e.exit(s, caller, receiver, owner, shares, assets); err != nil {
		return nil, err
	}
	return shares, nil
}

// Redeem burns shares from owner and pays their value, rounded down, to
// receiver. It returns the assets paid.
func (e *Engine) Redeem(caller common.Address, shares *uint256.Int, receiver, owner common.Address) (*uint256.Int, error) {
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if shares == nil || shares.IsZero() {
		return nil, ErrInvalidAmount
	}
	s, err := e.loadSettings()
	if err != nil {
		return nil, err
	}
	total, err := e.reportedTotalValue(s)
	if err != nil {
		return nil, err
	}
	assets, err := assetsFor(shares, s.TotalShares, total, nativecommon.RoundDown)
	if err != nil {
		return nil, err
	}
	if assets.IsZero() {
		return nil, fmt.Errorf("%w: redeeming %s shares pays nothing", ErrInvalidAmount, shares.Dec())
	}
	if err := e.exit(s, caller, receiver, owner, shares, assets); err != nil {
		return nil, err
	}
	return assets, nil
}

// exit takes assets out of the reserve, burns shares and pays receiver.
func (e *Engine) exit(s *Settings, caller, receiver, owner common.Address, shares, assets *uint256.Int) error {
	if owner == (common.Address{}) {
		owner = caller
	}
	if caller != owner {
		return fmt.Errorf("%w: %s is not the share owner", ErrUnauthorized, caller.Hex())
	}
	if receiver == (common.Address{}) {
		receiver = owner
	}
	bal, err := e.sharesOf(owner)
	if err != nil {
		return err
	}
	if bal.Lt(shares) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientShares, bal.Dec(), shares.Dec())
	}
	res, err := e.reserveAt(s.Reserve)
	if err != nil {
		return err
	}
	if _, err := res.Withdraw(e.address, assets, e.address, e.address); err != nil {
		return err
	}
	if err := e.burnShares(s, owner, shares); err != nil {
		return err
	}
	token, err := e.token()
	if err != nil {
		return err
	}
	if err := token.Transfer(e.address, receiver, assets); err != nil {
		return err
	}
	e.emit(events.Withdraw{Caller: caller, Receiver: receiver, Owner: owner, Assets: nativecommon.Clone(assets), Shares: nativecommon.Clone(shares)})
	return nil
}
