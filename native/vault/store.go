package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairvault/core/types"
	nativecommon "pairvault/native/common"
)

var (
	settingsKey  = []byte("vault/settings")
	pairIndexKey = []byte("vault/pairs")
)

func pairKey(key types.PairKey) []byte {
	return append([]byte("vault/pair/"), key.Bytes()...)
}

func sharesKey(holder common.Address) []byte {
	return append([]byte("vault/shares/"), holder.Bytes()...)
}

func (e *Engine) loadSettings() (*Settings, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var stored storedSettings
	ok, err := e.state.KVGet(settingsKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return stored.decode()
}

func (e *Engine) putSettings(s *Settings) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.KVPut(settingsKey, newStoredSettings(s))
}

// loadPair returns the stored configuration or nil when the key was never
// registered or has been removed.
func (e *Engine) loadPair(key types.PairKey) (*PairConfig, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var stored storedPair
	ok, err := e.state.KVGet(pairKey(key), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return stored.decode(key)
}

func (e *Engine) putPair(p *PairConfig) error {
	return e.state.KVPut(pairKey(p.Key), newStoredPair(p))
}

func (e *Engine) deletePair(key types.PairKey) error {
	if err := e.state.KVDelete(pairKey(key)); err != nil {
		return err
	}
	_, err := e.state.KVRemove(pairIndexKey, key.Bytes())
	return err
}

func (e *Engine) pairIndex() ([]types.PairKey, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var raw [][]byte
	if err := e.state.KVGetList(pairIndexKey, &raw); err != nil {
		return nil, err
	}
	keys := make([]types.PairKey, len(raw))
	for i, b := range raw {
		keys[i] = types.PairKey(common.BytesToHash(b))
	}
	return keys, nil
}

func (e *Engine) sharesOf(holder common.Address) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var stored big.Int
	ok, err := e.state.KVGet(sharesKey(holder), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	return nativecommon.FromStored(&stored)
}

func (e *Engine) putShares(holder common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return e.state.KVDelete(sharesKey(holder))
	}
	return e.state.KVPut(sharesKey(holder), nativecommon.ToStored(amount))
}

// mintShares credits shares to holder and persists the new supply.
func (e *Engine) mintShares(s *Settings, holder common.Address, shares *uint256.Int) error {
	if shares.IsZero() {
		return nil
	}
	bal, err := e.sharesOf(holder)
	if err != nil {
		return err
	}
	nextSupply, overflow := new(uint256.Int).AddOverflow(s.TotalShares, shares)
	if overflow {
		return ErrOverflow
	}
	s.TotalShares = nextSupply
	if err := e.putSettings(s); err != nil {
		return err
	}
	return e.putShares(holder, new(uint256.Int).Add(bal, shares))
}

func (e *Engine) burnShares(s *Settings, holder common.Address, shares *uint256.Int) error {
	bal, err := e.sharesOf(holder)
	if err != nil {
		return err
	}
	if bal.Lt(shares) {
		return ErrInsufficientShares
	}
	if s.TotalShares.Lt(shares) {
		return ErrInvariantViolated
	}
	s.TotalShares = new(uint256.Int).Sub(s.TotalShares, shares)
	if err := e.putSettings(s); err != nil {
		return err
	}
	return e.putShares(holder, new(uint256.Int).Sub(bal, shares))
}
