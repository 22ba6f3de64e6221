package rpc

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairvault/config"
	"pairvault/core/types"
	"pairvault/gateway/middleware"
)

type exitParams struct {
	Pair        string `json:"pair"`
	Amount      string `json:"amount"`
	Destination string `json:"destination,omitempty"`
}

func (p exitParams) parse() (types.PairKey, *uint256.Int, common.Address, error) {
	key, err := parsePairKey(p.Pair)
	if err != nil {
		return key, nil, common.Address{}, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return key, nil, common.Address{}, err
	}
	dest, err := parseAddress("destination", p.Destination, false)
	return key, amount, dest, err
}

// handleMerge pays collateral for a matched set of claims before settlement.
func (s *Server) handleMerge(ctx context.Context, caller *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	var p exitParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	key, amount, dest, err := p.parse()
	if err != nil {
		return nil, err
	}
	return s.node.Merge(ctx, caller.Address, key, amount, dest)
}

// handleSplit sells escrowed claims back for collateral.
func (s *Server) handleSplit(ctx context.Context, caller *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	var p exitParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	key, amount, dest, err := p.parse()
	if err != nil {
		return nil, err
	}
	return s.node.Split(ctx, caller.Address, key, amount, dest)
}

type sharesParams struct {
	Assets   string `json:"assets,omitempty"`
	Shares   string `json:"shares,omitempty"`
	Receiver string `json:"receiver,omitempty"`
	Owner    string `json:"owner,omitempty"`
}

func (p sharesParams) parties() (common.Address, common.Address, error) {
	receiver, err := parseAddress("receiver", p.Receiver, false)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	owner, err := parseAddress("owner", p.Owner, false)
	return receiver, owner, err
}

func (s *Server) handleDeposit(ctx context.Context, caller *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	var p sharesParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	assets, err := parseAmount("assets", p.Assets)
	if err != nil {
		return nil, err
	}
	receiver, _, err := p.parties()
	if err != nil {
		return nil, err
	}
	shares, err := s.node.Deposit(ctx, caller.Address, assets, receiver)
	if err != nil {
		return nil, err
	}
	return map[string]*uint256.Int{"shares": shares}, nil
}

func (s *Server) handleWithdraw(ctx context.Context, caller *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	var p sharesParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	assets, err := parseAmount("assets", p.Assets)
	if err != nil {
		return nil, err
	}
	receiver, owner, err := p.parties()
	if err != nil {
		return nil, err
	}
	shares, err := s.node.Withdraw(ctx, caller.Address, assets, receiver, owner)
	if err != nil {
		return nil, err
	}
	return map[string]*uint256.Int{"shares": shares}, nil
}

func (s *Server) handleRedeem(ctx context.Context, caller *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	var p sharesParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	shares, err := parseAmount("shares", p.Shares)
	if err != nil {
		return nil, err
	}
	receiver, owner, err := p.parties()
	if err != nil {
		return nil, err
	}
	assets, err := s.node.Redeem(ctx, caller.Address, shares, receiver, owner)
	if err != nil {
		return nil, err
	}
	return map[string]*uint256.Int{"assets": assets}, nil
}

type registerPairParams struct {
	LegA   legParams `json:"legA"`
	LegB   legParams `json:"legB"`
	Oracle string    `json:"oracle"`
}

func (s *Server) handleRegisterPair(ctx context.Context, caller *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	var p registerPairParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	legA, legB, err := parseLegs(p.LegA, p.LegB)
	if err != nil {
		return nil, err
	}
	key, err := s.node.RegisterPair(ctx, caller.Address, legA, legB, p.Oracle)
	if err != nil {
		return nil, err
	}
	return map[string]types.PairKey{"pair": key}, nil
}

type pairParams struct {
	Pair string `json:"pair"`
}

func (s *Server) handleRemovePair(ctx context.Context, caller *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	var p pairParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	key, err := parsePairKey(p.Pair)
	if err != nil {
		return nil, err
	}
	if err := s.node.RemovePair(ctx, caller.Address, key); err != nil {
		return nil, err
	}
	return map[string]types.PairKey{"removed": key}, nil
}

func (s *Server) handleStartSettlement(ctx context.Context, caller *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	var p pairParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	key, err := parsePairKey(p.Pair)
	if err != nil {
		return nil, err
	}
	return s.node.StartSettlement(ctx, caller.Address, key)
}

type reportParams struct {
	Pair    string `json:"pair"`
	Settled string `json:"settled"`
}

func (s *Server) handleReportOutcome(ctx context.Context, caller *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	return s.report(ctx, caller, params, false)
}

func (s *Server) handleReportAndRemove(ctx context.Context, caller *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	return s.report(ctx, caller, params, true)
}

func (s *Server) report(ctx context.Context, caller *middleware.Identity, params []json.RawMessage, remove bool) (interface{}, error) {
	var p reportParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	key, err := parsePairKey(p.Pair)
	if err != nil {
		return nil, err
	}
	settled, err := parseAmount("settled", p.Settled)
	if err != nil {
		return nil, err
	}
	return s.node.ReportOutcome(ctx, caller.Address, key, settled, remove)
}

// feesParams accepts either whole basis points or a rate string such as
// "2.5%" or "250bps".
type feesParams struct {
	Bps  *uint64 `json:"bps,omitempty"`
	Rate string  `json:"rate,omitempty"`
}

func (s *Server) handleSetFeesPercentage(ctx context.Context, caller *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	var p feesParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	var bps uint64
	switch {
	case p.Bps != nil && p.Rate != "":
		return nil, invalidParams("bps and rate are mutually exclusive")
	case p.Bps != nil:
		bps = *p.Bps
	case p.Rate != "":
		parsed, err := config.ParseBps(p.Rate)
		if err != nil {
			return nil, invalidParams("%v", err)
		}
		bps = parsed
	default:
		return nil, invalidParams("bps or rate required")
	}
	if err := s.node.SetFeesPercentage(ctx, caller.Address, bps); err != nil {
		return nil, err
	}
	return map[string]uint64{"feesBps": bps}, nil
}

type addressParams struct {
	Address string `json:"address"`
}

func (s *Server) handleSetFeeRecipient(ctx context.Context, caller *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	var p addressParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	recipient, err := parseAddress("address", p.Address, true)
	if err != nil {
		return nil, err
	}
	if err := s.node.SetFeeRecipient(ctx, caller.Address, recipient); err != nil {
		return nil, err
	}
	return map[string]common.Address{"feeRecipient": recipient}, nil
}

func (s *Server) handleTransferOwnership(ctx context.Context, caller *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	var p addressParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	next, err := parseAddress("address", p.Address, true)
	if err != nil {
		return nil, err
	}
	if err := s.node.TransferOwnership(ctx, caller.Address, next); err != nil {
		return nil, err
	}
	return map[string]common.Address{"owner": next}, nil
}

type migrateResult struct {
	Reserve common.Address `json:"reserve"`
	Moved   *uint256.Int   `json:"moved"`
}

func (s *Server) handleMigrateReserve(ctx context.Context, caller *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	var p addressParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	next, err := parseAddress("address", p.Address, true)
	if err != nil {
		return nil, err
	}
	moved, err := s.node.MigrateReserve(ctx, caller.Address, next)
	if err != nil {
		return nil, err
	}
	return &migrateResult{Reserve: next, Moved: moved}, nil
}
