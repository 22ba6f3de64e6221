package reserve

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairvault/core/events"
	"pairvault/native/bank"
	nativecommon "pairvault/native/common"
)

var (
	errNilState = errors.New("reserve: state not configured")
	errNilBank  = errors.New("reserve: bank not configured")

	ErrUnknownReserve        = errors.New("reserve: unknown reserve")
	ErrReserveExists         = errors.New("reserve: reserve already exists")
	ErrInsufficientShares    = errors.New("reserve: insufficient shares")
	ErrInsufficientLiquidity = errors.New("reserve: insufficient liquidity")
	ErrZeroShares            = errors.New("reserve: deposit too small to mint shares")
	ErrUnauthorized          = errors.New("reserve: caller is not the share owner")
	ErrInvalidAddress        = errors.New("reserve: invalid address")
)

const moduleName = "reserve"

// Info is the public view of a reserve.
type Info struct {
	Address     common.Address
	Asset       common.Address
	Name        string
	TotalShares *uint256.Int
	TotalAssets *uint256.Int
}

type storedReserve struct {
	Address     common.Address
	Asset       common.Address
	Name        string
	TotalShares *big.Int
}

// Engine runs any number of share vaults, each holding one bank token. The
// assets of a reserve are whatever the bank credits to the reserve address, so
// yield shows up as extra balance without minting shares.
type Engine struct {
	state  nativecommon.KVState
	bank   *bank.Engine
	pauses nativecommon.PauseView
}

func NewEngine() *Engine { return &Engine{} }

func (e *Engine) SetState(state nativecommon.KVState) { e.state = state }

func (e *Engine) SetBank(b *bank.Engine) { e.bank = b }

func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

func metaKey(addr common.Address) []byte {
	return append([]byte("reserve/meta/"), addr.Bytes()...)
}

func sharesKey(addr, holder common.Address) []byte {
	key := append([]byte("reserve/shares/"), addr.Bytes()...)
	return append(key, holder.Bytes()...)
}

// Create registers a reserve at addr over the asset token.
func (e *Engine) Create(addr, asset common.Address, name string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.bank == nil {
		return errNilBank
	}
	if addr == (common.Address{}) || asset == (common.Address{}) {
		return ErrInvalidAddress
	}
	if _, err := e.bank.Token(asset); err != nil {
		return err
	}
	ok, err := e.state.KVGet(metaKey(addr), nil)
	if err != nil {
		return err
	}
	if ok {
		return ErrReserveExists
	}
	return e.state.KVPut(metaKey(addr), storedReserve{Address: addr, Asset: asset, Name: name, TotalShares: big.NewInt(0)})
}

// At returns a handle bound to the reserve deployed at addr.
func (e *Engine) At(addr common.Address) (*Vault, error) {
	if _, err := e.load(addr); err != nil {
		return nil, err
	}
	return &Vault{engine: e, address: addr}, nil
}

func (e *Engine) load(addr common.Address) (*storedReserve, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.bank == nil {
		return nil, errNilBank
	}
	var stored storedReserve
	ok, err := e.state.KVGet(metaKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReserve, addr.Hex())
	}
	return &stored, nil
}

// Accrue credits freshly minted asset to the reserve, raising the value of
// every outstanding share.
func (e *Engine) Accrue(addr common.Address, amount *uint256.Int) error {
	stored, err := e.load(addr)
	if err != nil {
		return err
	}
	return e.bank.Credit(stored.Asset, addr, amount, events.SupplyReasonYield)
}

// Vault is a handle over a single reserve.
type Vault struct {
	engine  *Engine
	address common.Address
}

func (v *Vault) Address() common.Address { return v.address }

func (v *Vault) Asset() (common.Address, error) {
	stored, err := v.engine.load(v.address)
	if err != nil {
		return common.Address{}, err
	}
	return stored.Asset, nil
}

// Info returns the reserve's metadata and totals.
func (v *Vault) Info() (*Info, error) {
	stored, totalShares, totalAssets, err := v.totals()
	if err != nil {
		return nil, err
	}
	return &Info{Address: stored.Address, Asset: stored.Asset, Name: stored.Name, TotalShares: totalShares, TotalAssets: totalAssets}, nil
}

func (v *Vault) totals() (*storedReserve, *uint256.Int, *uint256.Int, error) {
	stored, err := v.engine.load(v.address)
	if err != nil {
		return nil, nil, nil, err
	}
	shares, err := nativecommon.FromStored(stored.TotalShares)
	if err != nil {
		return nil, nil, nil, err
	}
	assets, err := v.engine.bank.BalanceOf(stored.Asset, v.address)
	if err != nil {
		return nil, nil, nil, err
	}
	return stored, shares, assets, nil
}

// TotalAssets returns the asset balance held by the reserve.
func (v *Vault) TotalAssets() (*uint256.Int, error) {
	_, _, assets, err := v.totals()
	return assets, err
}

// BalanceOf returns the share balance of holder.
func (v *Vault) BalanceOf(holder common.Address) (*uint256.Int, error) {
	if _, err := v.engine.load(v.address); err != nil {
		return nil, err
	}
	return v.readShares(holder)
}

func (v *Vault) readShares(holder common.Address) (*uint256.Int, error) {
	var stored big.Int
	ok, err := v.engine.state.KVGet(sharesKey(v.address, holder), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	return nativecommon.FromStored(&stored)
}

func (v *Vault) writeShares(holder common.Address, amount *uint256.Int) error {
	key := sharesKey(v.address, holder)
	if amount.IsZero() {
		return v.engine.state.KVDelete(key)
	}
	return v.engine.state.KVPut(key, nativecommon.ToStored(amount))
}

func (v *Vault) setTotalShares(stored *storedReserve, total *uint256.Int) error {
	stored.TotalShares = nativecommon.ToStored(total)
	return v.engine.state.KVPut(metaKey(v.address), stored)
}

// toShares converts assets with one virtual share and one virtual asset so an
// empty reserve starts at a 1:1 rate.
func toShares(assets, totalShares, totalAssets *uint256.Int, rounding nativecommon.Rounding) (*uint256.Int, error) {
	num, err := nativecommon.Add(totalShares, uint256.NewInt(1))
	if err != nil {
		return nil, err
	}
	den, err := nativecommon.Add(totalAssets, uint256.NewInt(1))
	if err != nil {
		return nil, err
	}
	return nativecommon.MulDiv(assets, num, den, rounding)
}

func toAssets(shares, totalShares, totalAssets *uint256.Int, rounding nativecommon.Rounding) (*uint256.Int, error) {
	num, err := nativecommon.Add(totalAssets, uint256.NewInt(1))
	if err != nil {
		return nil, err
	}
	den, err := nativecommon.Add(totalShares, uint256.NewInt(1))
	if err != nil {
		return nil, err
	}
	return nativecommon.MulDiv(shares, num, den, rounding)
}

func (v *Vault) PreviewDeposit(assets *uint256.Int) (*uint256.Int, error) {
	_, shares, total, err := v.totals()
	if err != nil {
		return nil, err
	}
	return toShares(assets, shares, total, nativecommon.RoundDown)
}

func (v *Vault) PreviewWithdraw(assets *uint256.Int) (*uint256.Int, error) {
	_, shares, total, err := v.totals()
	if err != nil {
		return nil, err
	}
	return toShares(assets, shares, total, nativecommon.RoundUp)
}

func (v *Vault) PreviewRedeem(shares *uint256.Int) (*uint256.Int, error) {
	_, supply, total, err := v.totals()
	if err != nil {
		return nil, err
	}
	return toAssets(shares, supply, total, nativecommon.RoundDown)
}

// Deposit pulls assets from caller, which must have approved the reserve, and
// mints shares to receiver.
func (v *Vault) Deposit(caller common.Address, assets *uint256.Int, receiver common.Address) (*uint256.Int, error) {
	if err := nativecommon.Guard(v.engine.pauses, moduleName); err != nil {
		return nil, err
	}
	if receiver == (common.Address{}) {
		return nil, ErrInvalidAddress
	}
	stored, supply, total, err := v.totals()
	if err != nil {
		return nil, err
	}
	shares, err := toShares(assets, supply, total, nativecommon.RoundDown)
	if err != nil {
		return nil, err
	}
	if shares.IsZero() && !assets.IsZero() {
		return nil, ErrZeroShares
	}
	if err := v.engine.bank.TransferFrom(stored.Asset, v.address, caller, v.address, assets); err != nil {
		return nil, err
	}
	if err := v.mint(stored, supply, receiver, shares); err != nil {
		return nil, err
	}
	return shares, nil
}

// Withdraw burns the shares worth assets from owner and sends the assets to
// receiver. It returns the shares burned.
func (v *Vault) Withdraw(caller common.Address, assets *uint256.Int, receiver, owner common.Address) (*uint256.Int, error) {
	if err := nativecommon.Guard(v.engine.pauses, moduleName); err != nil {
		return nil, err
	}
	stored, supply, total, err := v.totals()
	if err != nil {
		return nil, err
	}
	if assets.Gt(total) {
		return nil, fmt.Errorf("%w: requested %s, available %s", ErrInsufficientLiquidity, assets.Dec(), total.Dec())
	}
	shares, err := toShares(assets, supply, total, nativecommon.RoundUp)
	if err != nil {
		return nil, err
	}
	if err := v.exit(stored, supply, caller, owner, receiver, shares, assets); err != nil {
		return nil, err
	}
	return shares, nil
}

// Redeem burns shares from owner and sends their value to receiver. It
// returns the assets paid out.
func (v *Vault) Redeem(caller common.Address, shares *uint256.Int, receiver, owner common.Address) (*uint256.Int, error) {
	if err := nativecommon.Guard(v.engine.pauses, moduleName); err != nil {
		return nil, err
	}
	stored, supply, total, err := v.totals()
	if err != nil {
		return nil, err
	}
	assets, err := toAssets(shares, supply, total, nativecommon.RoundDown)
	if err != nil {
		return nil, err
	}
	if assets.Gt(total) {
		return nil, fmt.Errorf("%w: requested %s, available %s", ErrInsufficientLiquidity, assets.Dec(), total.Dec())
	}
	if err := v.exit(stored, supply, caller, owner, receiver, shares, assets); err != nil {
		return nil, err
	}
	return assets, nil
}

func (v *Vault) mint(stored *storedReserve, supply *uint256.Int, receiver common.Address, shares *uint256.Int) error {
	bal, err := v.readShares(receiver)
	if err != nil {
		return err
	}
	nextSupply, err := nativecommon.Add(supply, shares)
	if err != nil {
		return err
	}
	if err := v.setTotalShares(stored, nextSupply); err != nil {
		return err
	}
	return v.writeShares(receiver, new(uint256.Int).Add(bal, shares))
}

func (v *Vault) exit(stored *storedReserve, supply *uint256.Int, caller, owner, receiver common.Address, shares, assets *uint256.Int) error {
	if caller != owner {
		return ErrUnauthorized
	}
	if receiver == (common.Address{}) {
		return ErrInvalidAddress
	}
	bal, err := v.readShares(owner)
	if err != nil {
		return err
	}
	if bal.Lt(shares) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientShares, bal.Dec(), shares.Dec())
	}
	if err := v.writeShares(owner, new(uint256.Int).Sub(bal, shares)); err != nil {
		return err
	}
	if err := v.setTotalShares(stored, new(uint256.Int).Sub(supply, shares)); err != nil {
		return err
	}
	return v.engine.bank.Transfer(stored.Asset, v.address, receiver, assets)
}
