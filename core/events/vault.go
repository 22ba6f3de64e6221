package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairvault/core/types"
)

const (
	// TypePairRegistered is emitted when a configurator allows a new pair.
	TypePairRegistered = "vault.pair.registered"
	// TypePairRemoved is emitted when a pair is erased from the registry.
	TypePairRemoved = "vault.pair.removed"
	// TypeMerge is emitted when a holder exits a matched position early.
	TypeMerge = "vault.merge"
	// TypeSplit is emitted when collateral is converted back into claims.
	TypeSplit = "vault.split"
	// TypeSplitProfit is emitted when a split realises profit over the pair's
	// early-exited notional.
	TypeSplitProfit = "vault.split.profit"
	// TypeSettlementStarted is emitted when a pair is paused and its escrow
	// swept out for redemption.
	TypeSettlementStarted = "vault.settlement.started"
	// TypeReport is emitted when a settlement outcome is reconciled.
	TypeReport = "vault.report"
	// TypeDeposit is emitted when collateral is exchanged for vault shares.
	TypeDeposit = "vault.deposit"
	// TypeWithdraw is emitted when vault shares are burned for collateral.
	TypeWithdraw = "vault.withdraw"
	// TypeFeesUpdated is emitted when the fee rate changes.
	TypeFeesUpdated = "vault.fees.updated"
	// TypeFeeRecipientUpdated is emitted when the fee recipient changes.
	TypeFeeRecipientUpdated = "vault.fee_recipient.updated"
	// TypeReserveMigrated is emitted after the yield reserve is swapped.
	TypeReserveMigrated = "vault.reserve.migrated"
	// TypeOwnershipTransferred is emitted when the configurator role moves.
	TypeOwnershipTransferred = "vault.ownership.transferred"
)

type PairRegistered struct {
	Pair      types.PairKey
	LegA      types.LegID
	LegB      types.LegID
	DecimalsA uint8
	DecimalsB uint8
	Oracle    string
	Binding   common.Hash
}

func (PairRegistered) EventType() string { return TypePairRegistered }

func (e PairRegistered) Event() *types.Event {
	return &types.Event{
		Type: TypePairRegistered,
		Attributes: map[string]string{
			"pair":          e.Pair.Hex(),
			"legA":          e.LegA.String(),
			"legB":          e.LegB.String(),
			"decimalsA":     strconv.Itoa(int(e.DecimalsA)),
			"decimalsB":     strconv.Itoa(int(e.DecimalsB)),
			"oracle":        e.Oracle,
			"oracleBinding": e.Binding.Hex(),
		},
	}
}

type PairRemoved struct {
	Pair types.PairKey
}

func (PairRemoved) EventType() string { return TypePairRemoved }

func (e PairRemoved) Event() *types.Event {
	return &types.Event{Type: TypePairRemoved, Attributes: map[string]string{"pair": e.Pair.Hex()}}
}

// Merge records an early exit. LegAmountA and LegAmountB are in the legs'
// native decimals.
type Merge struct {
	Pair        types.PairKey
	Caller      common.Address
	Destination common.Address
	Amount      *uint256.Int
	Payout      *uint256.Int
	LegAmountA  *uint256.Int
	LegAmountB  *uint256.Int
}

func (Merge) EventType() string { return TypeMerge }

func (e Merge) Event() *types.Event {
	return &types.Event{
		Type: TypeMerge,
		Attributes: map[string]string{
			"pair":        e.Pair.Hex(),
			"caller":      addressString(e.Caller),
			"destination": addressString(e.Destination),
			"amount":      amountString(e.Amount),
			"payout":      amountString(e.Payout),
			"legAmountA":  amountString(e.LegAmountA),
			"legAmountB":  amountString(e.LegAmountB),
		},
	}
}

type Split struct {
	Pair        types.PairKey
	Caller      common.Address
	Destination common.Address
	Amount      *uint256.Int
	Outcome     *uint256.Int
	LegAmountA  *uint256.Int
	LegAmountB  *uint256.Int
}

func (Split) EventType() string { return TypeSplit }

func (e Split) Event() *types.Event {
	return &types.Event{
		Type: TypeSplit,
		Attributes: map[string]string{
			"pair":        e.Pair.Hex(),
			"caller":      addressString(e.Caller),
			"destination": addressString(e.Destination),
			"amount":      amountString(e.Amount),
			"outcome":     amountString(e.Outcome),
			"legAmountA":  amountString(e.LegAmountA),
			"legAmountB":  amountString(e.LegAmountB),
		},
	}
}

type SplitProfit struct {
	Pair      types.PairKey
	Profit    *uint256.Int
	Fee       *uint256.Int
	FeeShares *uint256.Int
}

func (SplitProfit) EventType() string { return TypeSplitProfit }

func (e SplitProfit) Event() *types.Event {
	return &types.Event{
		Type: TypeSplitProfit,
		Attributes: map[string]string{
			"pair":      e.Pair.Hex(),
			"profit":    amountString(e.Profit),
			"fee":       amountString(e.Fee),
			"feeShares": amountString(e.FeeShares),
		},
	}
}

type SettlementStarted struct {
	Pair      types.PairKey
	Recipient common.Address
	SweptLegA *uint256.Int
	SweptLegB *uint256.Int
}

func (SettlementStarted) EventType() string { return TypeSettlementStarted }

func (e SettlementStarted) Event() *types.Event {
	return &types.Event{
		Type: TypeSettlementStarted,
		Attributes: map[string]string{
			"pair":      e.Pair.Hex(),
			"recipient": addressString(e.Recipient),
			"sweptLegA": amountString(e.SweptLegA),
			"sweptLegB": amountString(e.SweptLegB),
		},
	}
}

// Report records a reconciliation. Exactly one of Profit and Loss is non-zero
// unless the settlement matched the early-exited notional.
type Report struct {
	Pair        types.PairKey
	Settled     *uint256.Int
	EarlyExited *uint256.Int
	Profit      *uint256.Int
	Loss        *uint256.Int
	Fee         *uint256.Int
	FeeShares   *uint256.Int
}

func (Report) EventType() string { return TypeReport }

func (e Report) Event() *types.Event {
	return &types.Event{
		Type: TypeReport,
		Attributes: map[string]string{
			"pair":        e.Pair.Hex(),
			"settled":     amountString(e.Settled),
			"earlyExited": amountString(e.EarlyExited),
			"profit":      amountString(e.Profit),
			"loss":        amountString(e.Loss),
			"fee":         amountString(e.Fee),
			"feeShares":   amountString(e.FeeShares),
		},
	}
}

type Deposit struct {
	Caller   common.Address
	Receiver common.Address
	Assets   *uint256.Int
	Shares   *uint256.Int
}

func (Deposit) EventType() string { return TypeDeposit }

func (e Deposit) Event() *types.Event {
	return &types.Event{
		Type: TypeDeposit,
		Attributes: map[string]string{
			"caller":   addressString(e.Caller),
			"receiver": addressString(e.Receiver),
			"assets":   amountString(e.Assets),
			"shares":   amountString(e.Shares),
		},
	}
}

type Withdraw struct {
	Caller   common.Address
	Receiver common.Address
	Owner    common.Address
	Assets   *uint256.Int
	Shares   *uint256.Int
}

func (Withdraw) EventType() string { return TypeWithdraw }

func (e Withdraw) Event() *types.Event {
	return &types.Event{
		Type: TypeWithdraw,
		Attributes: map[string]string{
			"caller":   addressString(e.Caller),
			"receiver": addressString(e.Receiver),
			"owner":    addressString(e.Owner),
			"assets":   amountString(e.Assets),
			"shares":   amountString(e.Shares),
		},
	}
}

type FeesUpdated struct {
	OldBps uint64
	NewBps uint64
}

func (FeesUpdated) EventType() string { return TypeFeesUpdated }

func (e FeesUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeFeesUpdated,
		Attributes: map[string]string{
			"oldBps": strconv.FormatUint(e.OldBps, 10),
			"newBps": strconv.FormatUint(e.NewBps, 10),
		},
	}
}

type FeeRecipientUpdated struct {
	Old common.Address
	New common.Address
}

func (FeeRecipientUpdated) EventType() string { return TypeFeeRecipientUpdated }

func (e FeeRecipientUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeFeeRecipientUpdated,
		Attributes: map[string]string{
			"old": addressString(e.Old),
			"new": addressString(e.New),
		},
	}
}

type ReserveMigrated struct {
	Old    common.Address
	New    common.Address
	Assets *uint256.Int
}

func (ReserveMigrated) EventType() string { return TypeReserveMigrated }

func (e ReserveMigrated) Event() *types.Event {
	return &types.Event{
		Type: TypeReserveMigrated,
		Attributes: map[string]string{
			"old":    addressString(e.Old),
			"new":    addressString(e.New),
			"assets": amountString(e.Assets),
		},
	}
}

type OwnershipTransferred struct {
	Previous common.Address
	Next     common.Address
}

func (OwnershipTransferred) EventType() string { return TypeOwnershipTransferred }

func (e OwnershipTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeOwnershipTransferred,
		Attributes: map[string]string{
			"previous": addressString(e.Previous),
			"next":     addressString(e.Next),
		},
	}
}
