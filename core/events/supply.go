package events

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairvault/core/types"
)

const (
	// TypeTokenSupply is emitted whenever a token supply changes.
	TypeTokenSupply = "bank.supply"

	// SupplyReasonMint identifies mint driven supply increases.
	SupplyReasonMint = "mint"
	// SupplyReasonYield identifies yield credited to a reserve.
	SupplyReasonYield = "yield"
)

// TokenSupply captures a supply delta for a collateral token.
type TokenSupply struct {
	Token  common.Address
	Holder common.Address
	Total  *uint256.Int
	Delta  *uint256.Int
	Reason string
}

func (TokenSupply) EventType() string { return TypeTokenSupply }

// Event renders the structured supply change event for downstream consumers.
func (e TokenSupply) Event() *types.Event {
	attrs := map[string]string{
		"token": e.Token.Hex(),
		"total": amountString(e.Total),
		"delta": amountString(e.Delta),
	}
	if holder := addressString(e.Holder); holder != "" {
		attrs["holder"] = holder
	}
	if reason := strings.TrimSpace(e.Reason); reason != "" {
		attrs["reason"] = reason
	}
	return &types.Event{Type: TypeTokenSupply, Attributes: attrs}
}
