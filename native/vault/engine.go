package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairvault/core/events"
	"pairvault/core/types"
	nativecommon "pairvault/native/common"
	"pairvault/native/oracle"
)

const moduleName = "vault"

// CollateralToken is the fungible asset deposits and payouts are made in.
type CollateralToken interface {
	Address() common.Address
	BalanceOf(holder common.Address) (*uint256.Int, error)
	Approve(owner, spender common.Address, amount *uint256.Int) error
	Transfer(from, to common.Address, amount *uint256.Int) error
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
}

// Reserve is the yield-bearing share vault idle collateral sits in.
type Reserve interface {
	Address() common.Address
	Asset() (common.Address, error)
	Deposit(caller common.Address, assets *uint256.Int, receiver common.Address) (*uint256.Int, error)
	Withdraw(caller common.Address, assets *uint256.Int, receiver, owner common.Address) (*uint256.Int, error)
	Redeem(caller common.Address, shares *uint256.Int, receiver, owner common.Address) (*uint256.Int, error)
	PreviewRedeem(shares *uint256.Int) (*uint256.Int, error)
	BalanceOf(holder common.Address) (*uint256.Int, error)
}

// ReserveDirectory resolves reserve addresses, including migration targets.
type ReserveDirectory interface {
	Reserve(addr common.Address) (Reserve, error)
}

// ReserveFunc adapts a lookup function to ReserveDirectory.
type ReserveFunc func(addr common.Address) (Reserve, error)

func (f ReserveFunc) Reserve(addr common.Address) (Reserve, error) { return f(addr) }

// ClaimTransfer moves claim units between holders.
type ClaimTransfer interface {
	BalanceOf(leg types.LegID, holder common.Address) (*uint256.Int, error)
	SafeTransferFrom(operator, from, to common.Address, leg types.LegID, amount *uint256.Int, data []byte) error
}

// OracleDirectory resolves the strategy name bound to a pair together with
// the commitment to its parameters.
type OracleDirectory interface {
	Lookup(name string) (oracle.Quoter, bool)
	Binding(name string) (common.Hash, bool)
}

// Engine implements pair registration, early exits, splits, settlement and
// share accounting for a single vault address. All collaborators are injected
// so the node can bind a fresh engine to each speculative state overlay.
type Engine struct {
	address    common.Address
	state      nativecommon.KVState
	emitter    events.Emitter
	pauses     nativecommon.PauseView
	collateral CollateralToken
	reserves   ReserveDirectory
	claims     ClaimTransfer
	oracles    OracleDirectory

	guard   nativecommon.ReentrancyGuard
	pulling bool
}

// NewEngine creates an engine acting as the vault account at address.
func NewEngine(address common.Address) *Engine {
	return &Engine{address: address, emitter: events.NoopEmitter{}}
}

// Address returns the vault account.
func (e *Engine) Address() common.Address { return e.address }

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state nativecommon.KVState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the module pause view consulted by user operations.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

func (e *Engine) SetCollateral(token CollateralToken) { e.collateral = token }

func (e *Engine) SetReserves(dir ReserveDirectory) { e.reserves = dir }

func (e *Engine) SetClaims(c ClaimTransfer) { e.claims = c }

func (e *Engine) SetOracles(dir OracleDirectory) { e.oracles = dir }

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// enter takes the reentrancy guard for a mutating entry point.
func (e *Engine) enter() (func(), error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	release, err := e.guard.Enter()
	if err != nil {
		return nil, ErrReentrantCall
	}
	return release, nil
}

// Initialize stores the vault-wide settings. It may only run once.
func (e *Engine) Initialize(s Settings) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	if _, err := e.loadSettings(); err == nil {
		return ErrAlreadyInitialized
	} else if !errors.Is(err, ErrNotInitialized) {
		return err
	}
	if s.Owner == (common.Address{}) || s.FeeRecipient == (common.Address{}) || s.Collateral == (common.Address{}) {
		return ErrInvalidAddress
	}
	if s.FeesBps > MaxFeesBps {
		return ErrFeeTooHigh
	}
	if s.CollateralDecimals > MaxDecimals {
		return fmt.Errorf("%w: collateral decimals %d", ErrInvalidAmount, s.CollateralDecimals)
	}
	if e.collateral != nil && e.collateral.Address() != s.Collateral {
		return ErrAssetMismatch
	}
	res, err := e.reserveAt(s.Reserve)
	if err != nil {
		return err
	}
	if err := checkAsset(res, s.Collateral); err != nil {
		return err
	}
	s.TotalEarlyExited = new(uint256.Int)
	s.TotalShares = new(uint256.Int)
	return e.putSettings(&s)
}

func checkAsset(res Reserve, collateral common.Address) error {
	asset, err := res.Asset()
	if err != nil {
		return err
	}
	if asset != collateral {
		return fmt.Errorf("%w: reserve asset %s, collateral %s", ErrAssetMismatch, asset.Hex(), collateral.Hex())
	}
	return nil
}

func (e *Engine) reserveAt(addr common.Address) (Reserve, error) {
	if e.reserves == nil {
		return nil, errors.New("vault: reserve directory not configured")
	}
	return e.reserves.Reserve(addr)
}

func (e *Engine) token() (CollateralToken, error) {
	if e.collateral == nil {
		return nil, errors.New("vault: collateral token not configured")
	}
	return e.collateral, nil
}

func (e *Engine) claimLedger() (ClaimTransfer, error) {
	if e.claims == nil {
		return nil, errors.New("vault: claim transfer not configured")
	}
	return e.claims, nil
}

func (e *Engine) quoter(name string) (oracle.Quoter, common.Hash, error) {
	if e.oracles == nil {
		return nil, common.Hash{}, fmt.Errorf("%w: %s", ErrUnknownOracle, name)
	}
	q, ok := e.oracles.Lookup(name)
	if !ok || q == nil {
		return nil, common.Hash{}, fmt.Errorf("%w: %s", ErrUnknownOracle, name)
	}
	binding, ok := e.oracles.Binding(name)
	if !ok {
		return nil, common.Hash{}, fmt.Errorf("%w: %s", ErrUnknownOracle, name)
	}
	return q, binding, nil
}

// reportedTotalValue is the early-exited notional plus the redeemable value of
// the vault's reserve position. Claim escrow never contributes.
func (e *Engine) reportedTotalValue(s *Settings) (*uint256.Int, error) {
	held, err := e.reserveHeld(s)
	if err != nil {
		return nil, err
	}
	total, overflow := new(uint256.Int).AddOverflow(s.TotalEarlyExited, held)
	if overflow {
		return nil, ErrOverflow
	}
	return total, nil
}

func (e *Engine) reserveHeld(s *Settings) (*uint256.Int, error) {
	res, err := e.reserveAt(s.Reserve)
	if err != nil {
		return nil, err
	}
	shares, err := res.BalanceOf(e.address)
	if err != nil {
		return nil, err
	}
	return res.PreviewRedeem(shares)
}

// applyEarlyExited is the single place pair and vault-wide early-exited
// counters change. Both records are persisted before returning.
func (e *Engine) applyEarlyExited(s *Settings, p *PairConfig, delta *uint256.Int, increase bool) error {
	pair := nativecommon.Clone(p.EarlyExited)
	total := nativecommon.Clone(s.TotalEarlyExited)
	if increase {
		var overflow bool
		if pair, overflow = new(uint256.Int).AddOverflow(pair, delta); overflow {
			return ErrOverflow
		}
		if total, overflow = new(uint256.Int).AddOverflow(total, delta); overflow {
			return ErrOverflow
		}
	} else {
		if pair.Lt(delta) || total.Lt(delta) {
			return fmt.Errorf("%w: decrement %s exceeds pair %s / total %s", ErrInvariantViolated, delta.Dec(), pair.Dec(), total.Dec())
		}
		pair = new(uint256.Int).Sub(pair, delta)
		total = new(uint256.Int).Sub(total, delta)
	}
	p.EarlyExited = pair
	s.TotalEarlyExited = total
	if err := e.putPair(p); err != nil {
		return err
	}
	return e.putSettings(s)
}

// depositToReserve forwards collateral held by the vault into the reserve.
func (e *Engine) depositToReserve(s *Settings, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	token, err := e.token()
	if err != nil {
		return err
	}
	res, err := e.reserveAt(s.Reserve)
	if err != nil {
		return err
	}
	if err := token.Approve(e.address, res.Address(), amount); err != nil {
		return err
	}
	_, err = res.Deposit(e.address, amount, e.address)
	return err
}

// pullCollateral moves amount from caller to the vault using the caller's
// allowance.
func (e *Engine) pullCollateral(from common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	token, err := e.token()
	if err != nil {
		return err
	}
	return token.TransferFrom(e.address, from, e.address, amount)
}

// mintFee prices fee at the current share rate and credits the shares to the
// fee recipient.
func (e *Engine) mintFee(s *Settings, fee *uint256.Int) (*uint256.Int, error) {
	if fee.IsZero() {
		return new(uint256.Int), nil
	}
	total, err := e.reportedTotalValue(s)
	if err != nil {
		return nil, err
	}
	shares, err := sharesFor(fee, s.TotalShares, total, nativecommon.RoundDown)
	if err != nil {
		return nil, err
	}
	if err := e.mintShares(s, s.FeeRecipient, shares); err != nil {
		return nil, err
	}
	return shares, nil
}

// activePair loads key and checks it can trade.
func (e *Engine) activePair(key types.PairKey) (*PairConfig, error) {
	p, err := e.loadPair(key)
	if err != nil {
		return nil, err
	}
	if p == nil || !p.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrPairNotAllowed, key.Hex())
	}
	if p.Paused {
		return nil, fmt.Errorf("%w: %s", ErrTransfersPaused, key.Hex())
	}
	return p, nil
}

func (e *Engine) quote(ctx context.Context, p *PairConfig, amount *uint256.Int, op oracle.Operation) (*uint256.Int, error) {
	q, binding, err := e.quoter(p.Oracle)
	if err != nil {
		return nil, err
	}
	if binding != p.OracleBinding {
		return nil, fmt.Errorf("%w: %s", ErrOracleChanged, p.Oracle)
	}
	out, err := q.Quote(ctx, oracle.Request{Pair: p.Key, LegA: p.LegA, LegB: p.LegB, Amount: nativecommon.Clone(amount), Operation: op})
	if err != nil {
		return nil, fmt.Errorf("vault: %s quote: %w", op, err)
	}
	if out == nil {
		return nil, fmt.Errorf("vault: %s quote returned no amount", op)
	}
	return out, nil
}

func (e *Engine) legAmounts(s *Settings, p *PairConfig, amount *uint256.Int, rounding nativecommon.Rounding) (*uint256.Int, *uint256.Int, error) {
	a, err := toLegAmount(amount, s.CollateralDecimals, p.DecimalsA, rounding)
	if err != nil {
		return nil, nil, err
	}
	b, err := toLegAmount(amount, s.CollateralDecimals, p.DecimalsB, rounding)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// Merge exits a matched claim position early. The caller's legs, rounded up
// to their native scale, move into escrow and the oracle-quoted payout is
// withdrawn from the reserve straight to destination. A zero destination pays
// the caller.
func (e *Engine) Merge(ctx context.Context, caller common.Address, key types.PairKey, amount *uint256.Int, destination common.Address) (*MergeResult, error) {
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	if caller == e.address {
		return nil, ErrInvalidAddress
	}
	if destination == (common.Address{}) {
		destination = caller
	}
	if destination == e.address {
		return nil, ErrInvalidAddress
	}
	p, err := e.activePair(key)
	if err != nil {
		return nil, err
	}
	s, err := e.loadSettings()
	if err != nil {
		return nil, err
	}
	legA, legB, err := e.legAmounts(s, p, amount, nativecommon.RoundUp)
	if err != nil {
		return nil, err
	}
	payout, err := e.quote(ctx, p, amount, oracle.Merge)
	if err != nil {
		return nil, err
	}

	if err := e.applyEarlyExited(s, p, payout, true); err != nil {
		return nil, err
	}

	if err := e.pullClaims(caller, p.LegA, legA); err != nil {
		return nil, err
	}
	if err := e.pullClaims(caller, p.LegB, legB); err != nil {
		return nil, err
	}
	if !payout.IsZero() {
		res, err := e.reserveAt(s.Reserve)
		if err != nil {
			return nil, err
		}
		if _, err := res.Withdraw(e.address, payout, destination, e.address); err != nil {
			return nil, err
		}
	}

	e.emit(events.Merge{
		Pair:        key,
		Caller:      caller,
		Destination: destination,
		Amount:      nativecommon.Clone(amount),
		Payout:      nativecommon.Clone(payout),
		LegAmountA:  nativecommon.Clone(legA),
		LegAmountB:  nativecommon.Clone(legB),
	})
	return &MergeResult{Payout: payout, LegAmountA: legA, LegAmountB: legB}, nil
}

// Split converts collateral back into a matched claim position. Collateral in
// excess of the pair's early-exited notional is realised as profit and charged
// the fee immediately.
func (e *Engine) Split(ctx context.Context, caller common.Address, key types.PairKey, amount *uint256.Int, destination common.Address) (*SplitResult, error) {
	release, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	if caller == e.address {
		return nil, ErrInvalidAddress
	}
	if destination == (common.Address{}) {
		destination = caller
	}
	if destination == e.address {
		return nil, ErrInvalidAddress
	}
	p, err := e.activePair(key)
	if err != nil {
		return nil, err
	}
	s, err := e.loadSettings()
	if err != nil {
		return nil, err
	}
	outcome, err := e.quote(ctx, p, amount, oracle.Split)
	if err != nil {
		return nil, err
	}
	legA, legB, err := e.legAmounts(s, p, outcome, nativecommon.RoundDown)
	if err != nil {
		return nil, err
	}

	if err := e.pullCollateral(caller, amount); err != nil {
		return nil, err
	}
	if err := e.depositToReserve(s, amount); err != nil {
		return nil, err
	}

	result := &SplitResult{Profit: new(uint256.Int), Fee: new(uint256.Int), FeeShares: new(uint256.Int)}
	if !p.EarlyExited.Lt(amount) {
		if err := e.applyEarlyExited(s, p, amount, false); err != nil {
			return nil, err
		}
	} else {
		result.Profit = new(uint256.Int).Sub(amount, p.EarlyExited)
		if err := e.applyEarlyExited(s, p, nativecommon.Clone(p.EarlyExited), false); err != nil {
			return nil, err
		}
		if result.Fee, err = feeFor(result.Profit, s.FeesBps); err != nil {
			return nil, err
		}
		if result.FeeShares, err = e.mintFee(s, result.Fee); err != nil {
			return nil, err
		}
		e.emit(events.SplitProfit{
			Pair:      key,
			Profit:    nativecommon.Clone(result.Profit),
			Fee:       nativecommon.Clone(result.Fee),
			FeeShares: nativecommon.Clone(result.FeeShares),
		})
	}

	if err := e.pushClaims(destination, p.LegA, legA); err != nil {
		return nil, err
	}
	if err := e.pushClaims(destination, p.LegB, legB); err != nil {
		return nil, err
	}
	result.Outcome, result.LegAmountA, result.LegAmountB = outcome, legA, legB

	e.emit(events.Split{
		Pair:        key,
		Caller:      caller,
		Destination: destination,
		Amount:      nativecommon.Clone(amount),
		Outcome:     nativecommon.Clone(outcome),
		LegAmountA:  nativecommon.Clone(legA),
		LegAmountB:  nativecommon.Clone(legB),
	})
	return result, nil
}

// pullClaims moves claims from holder into escrow with the vault as operator.
// The receiver hook only accepts the transfer while this flag is set.
func (e *Engine) pullClaims(holder common.Address, leg types.LegID, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	ledger, err := e.claimLedger()
	if err != nil {
		return err
	}
	e.pulling = true
	defer func() { e.pulling = false }()
	return ledger.SafeTransferFrom(e.address, holder, e.address, leg, amount, nil)
}

func (e *Engine) pushClaims(to common.Address, leg types.LegID, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	ledger, err := e.claimLedger()
	if err != nil {
		return err
	}
	return ledger.SafeTransferFrom(e.address, e.address, to, leg, amount, nil)
}

// OnClaimReceived accepts inbound claims only while the vault is pulling them
// itself.
func (e *Engine) OnClaimReceived(operator, _ common.Address, _ types.LegID, _ *uint256.Int, _ []byte) error {
	if e == nil || !e.pulling || operator != e.address {
		return ErrUnsolicitedTransfer
	}
	return nil
}

// OnClaimBatchReceived rejects every batched inbound transfer.
func (e *Engine) OnClaimBatchReceived(common.Address, common.Address, []types.LegID, []*uint256.Int, []byte) error {
	return ErrBatchTransferRejected
}
