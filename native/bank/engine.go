package bank

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairvault/core/events"
	nativecommon "pairvault/native/common"
)

var (
	errNilState = errors.New("bank: state not configured")

	ErrUnknownToken          = errors.New("bank: unknown token")
	ErrTokenExists           = errors.New("bank: token already exists")
	ErrInsufficientBalance   = errors.New("bank: insufficient balance")
	ErrInsufficientAllowance = errors.New("bank: insufficient allowance")
	ErrInvalidAddress        = errors.New("bank: invalid address")
	ErrOverflow              = errors.New("bank: amount overflow")
)

const moduleName = "bank"

// TokenMeta describes a fungible collateral token tracked by the bank.
type TokenMeta struct {
	Address     common.Address
	Symbol      string
	Decimals    uint8
	TotalSupply *uint256.Int
}

type storedToken struct {
	Address     common.Address
	Symbol      string
	Decimals    uint8
	TotalSupply *big.Int
}

// Engine keeps balances and allowances for every token it knows about.
type Engine struct {
	state   nativecommon.KVState
	pauses  nativecommon.PauseView
	emitter events.Emitter
}

// NewEngine creates a bank engine without state. Callers must bind state via
// SetState before use.
func NewEngine() *Engine { return &Engine{emitter: events.NoopEmitter{}} }

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state nativecommon.KVState) { e.state = state }

// SetPauses wires the pause view consulted before transfers.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(evt)
	}
}

func tokenKey(token common.Address) []byte {
	return append([]byte("bank/token/"), token.Bytes()...)
}

func balanceKey(token, holder common.Address) []byte {
	key := append([]byte("bank/balance/"), token.Bytes()...)
	return append(key, holder.Bytes()...)
}

func allowanceKey(token, owner, spender common.Address) []byte {
	key := append([]byte("bank/allowance/"), token.Bytes()...)
	key = append(key, owner.Bytes()...)
	return append(key, spender.Bytes()...)
}

// CreateToken registers a new token with zero supply.
func (e *Engine) CreateToken(token common.Address, symbol string, decimals uint8) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if token == (common.Address{}) {
		return ErrInvalidAddress
	}
	ok, err := e.state.KVGet(tokenKey(token), nil)
	if err != nil {
		return err
	}
	if ok {
		return ErrTokenExists
	}
	return e.state.KVPut(tokenKey(token), storedToken{Address: token, Symbol: symbol, Decimals: decimals, TotalSupply: big.NewInt(0)})
}

// Token returns the metadata of a registered token.
func (e *Engine) Token(token common.Address) (*TokenMeta, error) {
	stored, err := e.loadToken(token)
	if err != nil {
		return nil, err
	}
	supply, err := nativecommon.FromStored(stored.TotalSupply)
	if err != nil {
		return nil, err
	}
	return &TokenMeta{Address: stored.Address, Symbol: stored.Symbol, Decimals: stored.Decimals, TotalSupply: supply}, nil
}

func (e *Engine) loadToken(token common.Address) (*storedToken, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var stored storedToken
	ok, err := e.state.KVGet(tokenKey(token), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	return &stored, nil
}

func (e *Engine) readAmount(key []byte) (*uint256.Int, error) {
	var stored big.Int
	ok, err := e.state.KVGet(key, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	return nativecommon.FromStored(&stored)
}

func (e *Engine) writeAmount(key []byte, v *uint256.Int) error {
	if v.IsZero() {
		return e.state.KVDelete(key)
	}
	return e.state.KVPut(key, nativecommon.ToStored(v))
}

// BalanceOf returns holder's balance of token.
func (e *Engine) BalanceOf(token, holder common.Address) (*uint256.Int, error) {
	if _, err := e.loadToken(token); err != nil {
		return nil, err
	}
	return e.readAmount(balanceKey(token, holder))
}

// Allowance returns how much spender may move on behalf of owner.
func (e *Engine) Allowance(token, owner, spender common.Address) (*uint256.Int, error) {
	if _, err := e.loadToken(token); err != nil {
		return nil, err
	}
	return e.readAmount(allowanceKey(token, owner, spender))
}

// Approve sets the allowance of spender over owner's balance.
func (e *Engine) Approve(token, owner, spender common.Address, amount *uint256.Int) error {
	if _, err := e.loadToken(token); err != nil {
		return err
	}
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrInvalidAddress
	}
	return e.writeAmount(allowanceKey(token, owner, spender), nativecommon.Clone(amount))
}

// Transfer moves amount of token from one holder to another.
func (e *Engine) Transfer(token, from, to common.Address, amount *uint256.Int) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if _, err := e.loadToken(token); err != nil {
		return err
	}
	return e.move(token, from, to, nativecommon.Clone(amount))
}

// TransferFrom moves amount from `from` to `to` consuming spender's allowance.
// Spending one's own balance needs no allowance.
func (e *Engine) TransferFrom(token, spender, from, to common.Address, amount *uint256.Int) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if _, err := e.loadToken(token); err != nil {
		return err
	}
	amt := nativecommon.Clone(amount)
	if spender != from {
		key := allowanceKey(token, from, spender)
		allowance, err := e.readAmount(key)
		if err != nil {
			return err
		}
		if allowance.Lt(amt) {
			return ErrInsufficientAllowance
		}
		if err := e.writeAmount(key, new(uint256.Int).Sub(allowance, amt)); err != nil {
			return err
		}
	}
	return e.move(token, from, to, amt)
}

func (e *Engine) move(token, from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrInvalidAddress
	}
	if amount.IsZero() {
		return nil
	}
	fromKey := balanceKey(token, from)
	fromBal, err := e.readAmount(fromKey)
	if err != nil {
		return err
	}
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromBal.Dec(), amount.Dec())
	}
	if err := e.writeAmount(fromKey, new(uint256.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	toKey := balanceKey(token, to)
	toBal, err := e.readAmount(toKey)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(toBal, amount)
	if overflow {
		return ErrOverflow
	}
	if err := e.writeAmount(toKey, next); err != nil {
		return err
	}
	e.emit(events.Transfer{Token: token, From: from, To: to, Amount: nativecommon.Clone(amount)})
	return nil
}

// Mint credits new supply to holder.
func (e *Engine) Mint(token, to common.Address, amount *uint256.Int) error {
	return e.Credit(token, to, amount, events.SupplyReasonMint)
}

// Credit mints new supply to holder and records why.
func (e *Engine) Credit(token, to common.Address, amount *uint256.Int, reason string) error {
	stored, err := e.loadToken(token)
	if err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrInvalidAddress
	}
	amt := nativecommon.Clone(amount)
	supply, err := nativecommon.FromStored(stored.TotalSupply)
	if err != nil {
		return err
	}
	nextSupply, overflow := new(uint256.Int).AddOverflow(supply, amt)
	if overflow {
		return ErrOverflow
	}
	key := balanceKey(token, to)
	bal, err := e.readAmount(key)
	if err != nil {
		return err
	}
	stored.TotalSupply = nativecommon.ToStored(nextSupply)
	if err := e.state.KVPut(tokenKey(token), stored); err != nil {
		return err
	}
	if err := e.writeAmount(key, new(uint256.Int).Add(bal, amt)); err != nil {
		return err
	}
	e.emit(events.TokenSupply{Token: token, Holder: to, Total: nextSupply, Delta: amt, Reason: reason})
	return nil
}

// Handle binds the engine to a single token so callers can treat it as a
// plain collateral token.
func (e *Engine) Handle(token common.Address) *Token {
	return &Token{engine: e, address: token}
}

// Token is a single-token view over the bank engine.
type Token struct {
	engine  *Engine
	address common.Address
}

func (t *Token) Address() common.Address { return t.address }

func (t *Token) BalanceOf(holder common.Address) (*uint256.Int, error) {
	return t.engine.BalanceOf(t.address, holder)
}

func (t *Token) Approve(owner, spender common.Address, amount *uint256.Int) error {
	return t.engine.Approve(t.address, owner, spender, amount)
}

func (t *Token) Transfer(from, to common.Address, amount *uint256.Int) error {
	return t.engine.Transfer(t.address, from, to, amount)
}

func (t *Token) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	return t.engine.TransferFrom(t.address, spender, from, to, amount)
}

func (t *Token) Mint(to common.Address, amount *uint256.Int) error {
	return t.engine.Mint(t.address, to, amount)
}
