package claims

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairvault/core/events"
	"pairvault/core/types"
	nativecommon "pairvault/native/common"
)

var (
	errNilState = errors.New("claims: state not configured")

	ErrUnknownLedger       = errors.New("claims: unknown ledger")
	ErrLedgerExists        = errors.New("claims: ledger already registered")
	ErrInsufficientBalance = errors.New("claims: insufficient balance")
	ErrNotApproved         = errors.New("claims: operator not approved")
	ErrInvalidAddress      = errors.New("claims: invalid address")
	ErrLengthMismatch      = errors.New("claims: legs and amounts length mismatch")
	ErrOverflow            = errors.New("claims: amount overflow")
)

const moduleName = "claims"

// Receiver is implemented by holders that want to vet inbound transfers.
// Returning an error aborts the transfer.
type Receiver interface {
	OnClaimReceived(operator, from common.Address, leg types.LegID, amount *uint256.Int, data []byte) error
	OnClaimBatchReceived(operator, from common.Address, legs []types.LegID, amounts []*uint256.Int, data []byte) error
}

// Ledger describes a claim ledger known to the engine.
type Ledger struct {
	Address common.Address
	Name    string
}

// Engine tracks claim balances for every (ledger, series, holder) triple and
// operator approvals per ledger.
type Engine struct {
	state     nativecommon.KVState
	pauses    nativecommon.PauseView
	receivers map[common.Address]Receiver
	emitter   events.Emitter
}

// NewEngine creates a claims engine without state.
func NewEngine() *Engine {
	return &Engine{receivers: make(map[common.Address]Receiver), emitter: events.NoopEmitter{}}
}

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

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state nativecommon.KVState) { e.state = state }

// SetPauses wires the pause view consulted before transfers.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// RegisterReceiver installs the inbound transfer hook for holder.
func (e *Engine) RegisterReceiver(holder common.Address, r Receiver) {
	if r == nil {
		delete(e.receivers, holder)
		return
	}
	e.receivers[holder] = r
}

var ledgerIndexKey = []byte("claims/ledgers")

func ledgerKey(ledger common.Address) []byte {
	return append([]byte("claims/ledger/"), ledger.Bytes()...)
}

func balanceKey(leg types.LegID, holder common.Address) []byte {
	key := append([]byte("claims/balance/"), leg.Ledger.Bytes()...)
	key = append(key, leg.Series.Bytes()...)
	return append(key, holder.Bytes()...)
}

func approvalKey(ledger, owner, operator common.Address) []byte {
	key := append([]byte("claims/approval/"), ledger.Bytes()...)
	key = append(key, owner.Bytes()...)
	return append(key, operator.Bytes()...)
}

// AddLedger registers a claim ledger.
func (e *Engine) AddLedger(ledger common.Address, name string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if ledger == (common.Address{}) {
		return ErrInvalidAddress
	}
	ok, err := e.state.KVGet(ledgerKey(ledger), nil)
	if err != nil {
		return err
	}
	if ok {
		return ErrLedgerExists
	}
	if err := e.state.KVPut(ledgerKey(ledger), Ledger{Address: ledger, Name: name}); err != nil {
		return err
	}
	return e.state.KVAppend(ledgerIndexKey, ledger.Bytes())
}

// Ledgers lists every registered ledger in registration order.
func (e *Engine) Ledgers() ([]Ledger, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var raw [][]byte
	if err := e.state.KVGetList(ledgerIndexKey, &raw); err != nil {
		return nil, err
	}
	out := make([]Ledger, 0, len(raw))
	for _, addr := range raw {
		var l Ledger
		if _, err := e.state.KVGet(ledgerKey(common.BytesToAddress(addr)), &l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (e *Engine) requireLedger(ledger common.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	ok, err := e.state.KVGet(ledgerKey(ledger), nil)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLedger, ledger.Hex())
	}
	return nil
}

func (e *Engine) readBalance(leg types.LegID, holder common.Address) (*uint256.Int, error) {
	var stored big.Int
	ok, err := e.state.KVGet(balanceKey(leg, holder), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	return nativecommon.FromStored(&stored)
}

func (e *Engine) writeBalance(leg types.LegID, holder common.Address, v *uint256.Int) error {
	if v.IsZero() {
		return e.state.KVDelete(balanceKey(leg, holder))
	}
	return e.state.KVPut(balanceKey(leg, holder), nativecommon.ToStored(v))
}

// BalanceOf returns holder's balance of the given claim series.
func (e *Engine) BalanceOf(leg types.LegID, holder common.Address) (*uint256.Int, error) {
	if err := e.requireLedger(leg.Ledger); err != nil {
		return nil, err
	}
	return e.readBalance(leg, holder)
}

// SetApprovalForAll lets operator move every series owner holds on ledger.
func (e *Engine) SetApprovalForAll(ledger, owner, operator common.Address, approved bool) error {
	if err := e.requireLedger(ledger); err != nil {
		return err
	}
	if owner == operator {
		return ErrInvalidAddress
	}
	if !approved {
		return e.state.KVDelete(approvalKey(ledger, owner, operator))
	}
	return e.state.KVPut(approvalKey(ledger, owner, operator), true)
}

// IsApprovedForAll reports whether operator may act for owner on ledger.
func (e *Engine) IsApprovedForAll(ledger, owner, operator common.Address) (bool, error) {
	if err := e.requireLedger(ledger); err != nil {
		return false, err
	}
	var approved bool
	if _, err := e.state.KVGet(approvalKey(ledger, owner, operator), &approved); err != nil {
		return false, err
	}
	return approved, nil
}

func (e *Engine) authorize(ledger, operator, from common.Address) error {
	if operator == from {
		return nil
	}
	approved, err := e.IsApprovedForAll(ledger, from, operator)
	if err != nil {
		return err
	}
	if !approved {
		return ErrNotApproved
	}
	return nil
}

func (e *Engine) move(leg types.LegID, from, to common.Address, amount *uint256.Int) error {
	fromBal, err := e.readBalance(leg, from)
	if err != nil {
		return err
	}
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, need %s", ErrInsufficientBalance, from.Hex(), fromBal.Dec(), leg, amount.Dec())
	}
	if err := e.writeBalance(leg, from, new(uint256.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	toBal, err := e.readBalance(leg, to)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(toBal, amount)
	if overflow {
		return ErrOverflow
	}
	return e.writeBalance(leg, to, next)
}

// SafeTransferFrom moves amount of leg from `from` to `to` on behalf of
// operator, then invokes the recipient's hook when one is registered.
func (e *Engine) SafeTransferFrom(operator, from, to common.Address, leg types.LegID, amount *uint256.Int, data []byte) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrInvalidAddress
	}
	if err := e.requireLedger(leg.Ledger); err != nil {
		return err
	}
	if err := e.authorize(leg.Ledger, operator, from); err != nil {
		return err
	}
	amt := nativecommon.Clone(amount)
	if err := e.move(leg, from, to, amt); err != nil {
		return err
	}
	if r, ok := e.receivers[to]; ok {
		if err := r.OnClaimReceived(operator, from, leg, nativecommon.Clone(amt), data); err != nil {
			return err
		}
	}
	e.emit(events.ClaimTransfer{Operator: operator, From: from, To: to, Leg: leg, Amount: amt})
	return nil
}

// SafeBatchTransferFrom moves several series in one call and notifies the
// recipient once with the full batch.
func (e *Engine) SafeBatchTransferFrom(operator, from, to common.Address, legs []types.LegID, amounts []*uint256.Int, data []byte) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if len(legs) != len(amounts) {
		return ErrLengthMismatch
	}
	if to == (common.Address{}) {
		return ErrInvalidAddress
	}
	copies := make([]*uint256.Int, len(amounts))
	for i, leg := range legs {
		if err := e.requireLedger(leg.Ledger); err != nil {
			return err
		}
		if err := e.authorize(leg.Ledger, operator, from); err != nil {
			return err
		}
		copies[i] = nativecommon.Clone(amounts[i])
		if err := e.move(leg, from, to, copies[i]); err != nil {
			return err
		}
	}
	if r, ok := e.receivers[to]; ok {
		if err := r.OnClaimBatchReceived(operator, from, legs, copies, data); err != nil {
			return err
		}
	}
	for i, leg := range legs {
		e.emit(events.ClaimTransfer{Operator: operator, From: from, To: to, Leg: leg, Amount: copies[i]})
	}
	return nil
}

// Mint issues new claim units of leg to holder.
func (e *Engine) Mint(leg types.LegID, to common.Address, amount *uint256.Int) error {
	if err := e.requireLedger(leg.Ledger); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrInvalidAddress
	}
	bal, err := e.readBalance(leg, to)
	if err != nil {
		return err
	}
	amt := nativecommon.Clone(amount)
	next, overflow := new(uint256.Int).AddOverflow(bal, amt)
	if overflow {
		return ErrOverflow
	}
	if err := e.writeBalance(leg, to, next); err != nil {
		return err
	}
	e.emit(events.ClaimTransfer{To: to, Leg: leg, Amount: amt})
	return nil
}
