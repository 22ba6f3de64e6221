package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairvault/core/types"
)

const (
	// TypeTransfer is emitted for collateral token balance movements.
	TypeTransfer = "bank.transfer"
	// TypeClaimTransfer is emitted when claim units change hands.
	TypeClaimTransfer = "claims.transfer"
)

type Transfer struct {
	Token  common.Address
	From   common.Address
	To     common.Address
	Amount *uint256.Int
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{
		"token":  e.Token.Hex(),
		"amount": amountString(e.Amount),
	}
	if from := addressString(e.From); from != "" {
		attrs["from"] = from
	}
	if to := addressString(e.To); to != "" {
		attrs["to"] = to
	}
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}

// ClaimTransfer records a claim movement. A zero From marks issuance.
type ClaimTransfer struct {
	Operator common.Address
	From     common.Address
	To       common.Address
	Leg      types.LegID
	Amount   *uint256.Int
}

func (ClaimTransfer) EventType() string { return TypeClaimTransfer }

func (e ClaimTransfer) Event() *types.Event {
	attrs := map[string]string{
		"leg":    e.Leg.String(),
		"amount": amountString(e.Amount),
	}
	if op := addressString(e.Operator); op != "" {
		attrs["operator"] = op
	}
	if from := addressString(e.From); from != "" {
		attrs["from"] = from
	}
	if to := addressString(e.To); to != "" {
		attrs["to"] = to
	}
	return &types.Event{Type: TypeClaimTransfer, Attributes: attrs}
}
