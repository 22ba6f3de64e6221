package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairvault/core/types"
	"pairvault/gateway/middleware"
	"pairvault/integrations/eventlog"
	"pairvault/native/vault"
)

var errEventsDisabled = errors.New("rpc: event index not configured")

func (s *Server) handleSummary(ctx context.Context, _ *middleware.Identity, _ []json.RawMessage) (interface{}, error) {
	return s.node.Summary(ctx)
}

func (s *Server) handlePair(ctx context.Context, _ *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	var p pairParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	key, err := parsePairKey(p.Pair)
	if err != nil {
		return nil, err
	}
	cfg, found, err := s.node.Pair(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errPairNotFound
	}
	return cfg, nil
}

type rangeParams struct {
	Start uint64  `json:"start"`
	End   *uint64 `json:"end,omitempty"`
}

// handlePairs lists registry entries between the inclusive bounds. A missing
// end reads to the last pair.
func (s *Server) handlePairs(ctx context.Context, _ *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	var p rangeParams
	if len(params) > 0 {
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
	}
	if p.End != nil {
		return s.node.Pairs(ctx, p.Start, *p.End)
	}
	count, err := s.node.PairCount(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 || p.Start >= count {
		return []*vault.PairConfig{}, nil
	}
	return s.node.Pairs(ctx, p.Start, count-1)
}

func (s *Server) handlePairCount(ctx context.Context, _ *middleware.Identity, _ []json.RawMessage) (interface{}, error) {
	count, err := s.node.PairCount(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]uint64{"count": count}, nil
}

type allowedParams struct {
	LegA legParams `json:"legA"`
	LegB legParams `json:"legB"`
}

func (s *Server) handleIsPairAllowed(ctx context.Context, _ *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	var p allowedParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	legA, legB, err := parseLegs(p.LegA, p.LegB)
	if err != nil {
		return nil, err
	}
	allowed, err := s.node.IsPairAllowed(ctx, legA.Leg, legB.Leg)
	if err != nil {
		return nil, err
	}
	key, err := types.NewPairKey(legA.Leg, legB.Leg)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	return map[string]interface{}{"pair": key, "allowed": allowed}, nil
}

type estimateParams struct {
	Pair   string `json:"pair"`
	Amount string `json:"amount"`
}

func (p estimateParams) parse() (types.PairKey, *uint256.Int, error) {
	key, err := parsePairKey(p.Pair)
	if err != nil {
		return key, nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	return key, amount, err
}

func (s *Server) handleEstimateMerge(ctx context.Context, _ *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	var p estimateParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	key, amount, err := p.parse()
	if err != nil {
		return nil, err
	}
	return s.node.EstimateMerge(ctx, key, amount)
}

func (s *Server) handleEstimateSplit(ctx context.Context, _ *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	var p estimateParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	key, amount, err := p.parse()
	if err != nil {
		return nil, err
	}
	return s.node.EstimateSplit(ctx, key, amount)
}

type balanceParams struct {
	Holder string `json:"holder"`
}

// BalanceResponse is a holder's position in the vault.
type BalanceResponse struct {
	Holder     common.Address `json:"holder"`
	Shares     *uint256.Int   `json:"shares"`
	Assets     *uint256.Int   `json:"assets"`
	Collateral *uint256.Int   `json:"collateral"`
	Allowance  *uint256.Int   `json:"allowance"`
}

func (s *Server) handleBalance(ctx context.Context, _ *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	var p balanceParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	holder, err := parseAddress("holder", p.Holder, true)
	if err != nil {
		return nil, err
	}
	resp := &BalanceResponse{Holder: holder}
	if resp.Shares, err = s.node.SharesOf(ctx, holder); err != nil {
		return nil, err
	}
	if resp.Assets, err = s.node.ConvertToAssets(ctx, resp.Shares); err != nil {
		return nil, err
	}
	if resp.Collateral, err = s.node.CollateralBalance(ctx, holder); err != nil {
		return nil, err
	}
	if resp.Allowance, err = s.node.CollateralAllowance(ctx, holder, s.node.VaultAddress()); err != nil {
		return nil, err
	}
	return resp, nil
}

type eventsParams struct {
	Type  string `json:"type,omitempty"`
	Pair  string `json:"pair,omitempty"`
	After uint64 `json:"after,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// handleEvents pages through the event index.
func (s *Server) handleEvents(ctx context.Context, _ *middleware.Identity, params []json.RawMessage) (interface{}, error) {
	if s.events == nil {
		return nil, errEventsDisabled
	}
	var p eventsParams
	if len(params) > 0 {
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
	}
	if p.Limit < 0 {
		return nil, invalidParams("limit must not be negative")
	}
	q := eventlog.Query{Type: p.Type, After: p.After, Limit: p.Limit}
	if p.Pair != "" {
		key, err := parsePairKey(p.Pair)
		if err != nil {
			return nil, err
		}
		q.Pair = key.Hex()
	}
	return s.events.List(ctx, q)
}
