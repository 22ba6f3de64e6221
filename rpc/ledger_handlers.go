package rpc

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"pairvault/core/types"
	"pairvault/gateway/middleware"
)

// Helpers driving the bank, claim ledgers and reserves behind the vault.
// Approvals act for the authenticated caller; minting and accrual need the
// admin scope.

type claimsApproveParams struct {
	Ledger   string `json:"ledger"`
	Operator string `json:"operator,omitempty"`
	Approved *bool  `json:"approved,omitempty"`
}

// handleClaimsApprove sets the caller's operator approval on a ledger. The
// operator defaults to the vault and approval defaults to true.
func (s *Server) handleClaimsApprove(ctx context.Context, caller *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	var p claimsApproveParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	ledger, err := parseAddress("ledger", p.Ledger, true)
	if err != nil {
		return nil, err
	}
	operator, err := parseAddress("operator", p.Operator, false)
	if err != nil {
		return nil, err
	}
	if operator == (common.Address{}) {
		operator = s.node.VaultAddress()
	}
	approved := true
	if p.Approved != nil {
		approved = *p.Approved
	}
	if err := s.node.SetClaimApproval(ctx, ledger, caller.Address, operator, approved); err != nil {
		return nil, err
	}
	return map[string]interface{}{"ledger": ledger, "operator": operator, "approved": approved}, nil
}

type bankApproveParams struct {
	Spender string `json:"spender,omitempty"`
	Amount  string `json:"amount"`
}

// handleBankApprove sets the caller's collateral allowance. The spender
// defaults to the vault.
func (s *Server) handleBankApprove(ctx context.Context, caller *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	var p bankApproveParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	spender, err := parseAddress("spender", p.Spender, false)
	if err != nil {
		return nil, err
	}
	if spender == (common.Address{}) {
		spender = s.node.VaultAddress()
	}
	if err := s.node.ApproveCollateral(ctx, caller.Address, spender, amount); err != nil {
		return nil, err
	}
	return map[string]interface{}{"spender": spender, "allowance": amount}, nil
}

type mintParams struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) handleBankMint(ctx context.Context, _ *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	var p mintParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	to, err := parseAddress("to", p.To, true)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.node.MintCollateral(ctx, to, amount); err != nil {
		return nil, err
	}
	return map[string]interface{}{"to": to, "minted": amount}, nil
}

type claimsMintParams struct {
	Ledger string `json:"ledger"`
	Series string `json:"series"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) handleClaimsMint(ctx context.Context, _ *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	var p claimsMintParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	leg, err := parseLeg(p.Ledger, p.Series)
	if err != nil {
		return nil, err
	}
	to, err := parseAddress("to", p.To, true)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.node.MintClaims(ctx, leg, to, amount); err != nil {
		return nil, err
	}
	return map[string]interface{}{"leg": leg, "to": to, "minted": amount}, nil
}

type accrueParams struct {
	Reserve string `json:"reserve"`
	Amount  string `json:"amount"`
}

func (s *Server) handleReserveAccrue(ctx context.Context, _ *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	var p accrueParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	reserveAddr, err := parseAddress("reserve", p.Reserve, true)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.node.AccrueReserve(ctx, reserveAddr, amount); err != nil {
		return nil, err
	}
	return map[string]interface{}{"reserve": reserveAddr, "accrued": amount}, nil
}

type claimsBalanceParams struct {
	Ledger string `json:"ledger"`
	Series string `json:"series"`
	Holder string `json:"holder"`
}

func (s *Server) handleClaimsBalance(ctx context.Context, _ *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	var p claimsBalanceParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	leg, err := parseLeg(p.Ledger, p.Series)
	if err != nil {
		return nil, err
	}
	holder, err := parseAddress("holder", p.Holder, true)
	if err != nil {
		return nil, err
	}
	balance, err := s.node.ClaimBalance(ctx, leg, holder)
	if err != nil {
		return nil, err
	}
	return map[string]*uint256.Int{"balance": balance}, nil
}

func parseLeg(ledgerRaw, seriesRaw string) (types.LegID, error) {
	ledger, err := parseAddress("ledger", ledgerRaw, true)
	if err != nil {
		return types.LegID{}, err
	}
	series, err := hexutil.Decode(strings.TrimSpace(seriesRaw))
	if err != nil {
		return types.LegID{}, invalidParams("series: %v", err)
	}
	if len(series) > common.HashLength {
		return types.LegID{}, invalidParams("series longer than %d bytes", common.HashLength)
	}
	return types.LegID{Ledger: ledger, Series: common.BytesToHash(series)}, nil
}
