package vault

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairvault/core/events"
	"pairvault/core/types"
)

func (e *Engine) requireOwner(s *Settings, caller common.Address) error {
	if caller != s.Owner {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	return nil
}

// RegisterPair allows a new pair bound to the named oracle strategy. Legs may
// be supplied in either order.
func (e *Engine) RegisterPair(caller common.Address, legA, legB LegConfig, oracleName string) (types.PairKey, error) {
	release, err := e.enter()
	if err != nil {
		return types.PairKey{}, err
	}
	defer release()
	s, err := e.loadSettings()
	if err != nil {
		return types.PairKey{}, err
	}
	if err := e.requireOwner(s, caller); err != nil {
		return types.PairKey{}, err
	}
	if legA.Leg.IsZero() || legB.Leg.IsZero() {
		return types.PairKey{}, fmt.Errorf("%w: empty leg", ErrInvalidLeg)
	}
	if legA.Decimals > MaxDecimals || legB.Decimals > MaxDecimals {
		return types.PairKey{}, fmt.Errorf("%w: decimals above %d", ErrInvalidLeg, MaxDecimals)
	}
	key, err := types.NewPairKey(legA.Leg, legB.Leg)
	if err != nil {
		if errors.Is(err, types.ErrIdenticalLegs) {
			return types.PairKey{}, fmt.Errorf("%w: %v", ErrInvalidLeg, err)
		}
		return types.PairKey{}, err
	}
	existing, err := e.loadPair(key)
	if err != nil {
		return types.PairKey{}, err
	}
	if existing != nil && existing.Allowed {
		return types.PairKey{}, fmt.Errorf("%w: %s", ErrAlreadyAllowed, key.Hex())
	}
	_, binding, err := e.quoter(oracleName)
	if err != nil {
		return types.PairKey{}, err
	}

	first, second := legA, legB
	if _, _, swapped := types.CanonicalLegs(legA.Leg, legB.Leg); swapped {
		first, second = legB, legA
	}
	p := &PairConfig{
		Key:           key,
		Allowed:       true,
		LegA:          first.Leg,
		LegB:          second.Leg,
		DecimalsA:     first.Decimals,
		DecimalsB:     second.Decimals,
		Oracle:        oracleName,
		OracleBinding: binding,
		EarlyExited:   new(uint256.Int),
	}
	if err := e.putPair(p); err != nil {
		return types.PairKey{}, err
	}
	if err := e.state.KVAppend(pairIndexKey, key.Bytes()); err != nil {
		return types.PairKey{}, err
	}
	e.emit(events.PairRegistered{
		Pair:      key,
		LegA:      p.LegA,
		LegB:      p.LegB,
		DecimalsA: p.DecimalsA,
		DecimalsB: p.DecimalsB,
		Oracle:    oracleName,
		Binding:   binding,
	})
	return key, nil
}

// RemovePair erases a zeroed, unpaused pair.
func (e *Engine) RemovePair(caller common.Address, key types.PairKey) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()
	s, err := e.loadSettings()
	if err != nil {
		return err
	}
	if err := e.requireOwner(s, caller); err != nil {
		return err
	}
	return e.removePair(key)
}

func (e *Engine) removePair(key types.PairKey) error {
	p, err := e.loadPair(key)
	if err != nil {
		return err
	}
	if p == nil || !p.Allowed {
		return fmt.Errorf("%w: %s", ErrPairNotAllowed, key.Hex())
	}
	if !p.EarlyExited.IsZero() {
		return fmt.Errorf("%w: %s outstanding", ErrCannotRemoveWithPendingAmount, p.EarlyExited.Dec())
	}
	if p.Paused {
		return ErrCannotRemoveWhilePaused
	}
	if err := e.deletePair(key); err != nil {
		return err
	}
	e.emit(events.PairRemoved{Pair: key})
	return nil
}

// Pair returns the configuration stored under key.
func (e *Engine) Pair(key types.PairKey) (*PairConfig, bool, error) {
	p, err := e.loadPair(key)
	if err != nil {
		return nil, false, err
	}
	if p == nil {
		return nil, false, nil
	}
	return p, true, nil
}

// IsPairAllowed canonicalises the legs and reports whether the pair is
// registered. Identical legs never form a pair.
func (e *Engine) IsPairAllowed(legA, legB types.LegID) (bool, error) {
	key, err := types.NewPairKey(legA, legB)
	if err != nil {
		return false, nil
	}
	p, err := e.loadPair(key)
	if err != nil {
		return false, err
	}
	return p != nil && p.Allowed, nil
}

// PairCount returns the number of registered pairs.
func (e *Engine) PairCount() (uint64, error) {
	keys, err := e.pairIndex()
	if err != nil {
		return 0, err
	}
	return uint64(len(keys)), nil
}

// Pairs lists registered pairs between the inclusive index bounds.
func (e *Engine) Pairs(start, end uint64) ([]*PairConfig, error) {
	keys, err := e.pairIndex()
	if err != nil {
		return nil, err
	}
	count := uint64(len(keys))
	if end >= count || start > end {
		return nil, fmt.Errorf("%w: [%d, %d] with %d pairs", ErrInvalidRange, start, end, count)
	}
	out := make([]*PairConfig, 0, end-start+1)
	for _, key := range keys[start : end+1] {
		p, err := e.loadPair(key)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, fmt.Errorf("%w: index references missing pair %s", ErrInvariantViolated, key.Hex())
		}
		out = append(out, p)
	}
	return out, nil
}
