package types

import (
	"bytes"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrIdenticalLegs is returned when both legs of a pair refer to the same
// claim series.
var ErrIdenticalLegs = errors.New("pair: legs must reference distinct claim series")

// LegID identifies one claim series on a specific claim ledger.
type LegID struct {
	Ledger common.Address `json:"ledger"`
	Series common.Hash    `json:"series"`
}

// Compare orders legs by ledger bytes first and series bytes second.
func (l LegID) Compare(other LegID) int {
	if c := bytes.Compare(l.Ledger.Bytes(), other.Ledger.Bytes()); c != 0 {
		return c
	}
	return bytes.Compare(l.Series.Bytes(), other.Series.Bytes())
}

// IsZero reports whether the leg is unset.
func (l LegID) IsZero() bool {
	return l.Ledger == (common.Address{}) && l.Series == (common.Hash{})
}

func (l LegID) String() string {
	return l.Ledger.Hex() + "/" + l.Series.Hex()
}

// PairKey is the order independent identity of two complementary legs.
type PairKey common.Hash

func (k PairKey) Hex() string { return common.Hash(k).Hex() }

func (k PairKey) String() string { return k.Hex() }

func (k PairKey) Bytes() []byte { return common.Hash(k).Bytes() }

// MarshalText encodes the key as 0x-prefixed hex.
func (k PairKey) MarshalText() ([]byte, error) {
	return common.Hash(k).MarshalText()
}

// UnmarshalText decodes a 0x-prefixed hex key.
func (k *PairKey) UnmarshalText(input []byte) error {
	var h common.Hash
	if err := h.UnmarshalText(input); err != nil {
		return err
	}
	*k = PairKey(h)
	return nil
}

// HexToPairKey parses a hex string into a key. Invalid input yields the zero
// key.
func HexToPairKey(s string) PairKey {
	return PairKey(common.HexToHash(s))
}

// CanonicalLegs returns the two legs in ascending order together with a flag
// reporting whether the inputs were swapped.
func CanonicalLegs(a, b LegID) (LegID, LegID, bool) {
	if a.Compare(b) > 0 {
		return b, a, true
	}
	return a, b, false
}

// NewPairKey derives the key for the unordered pair {a, b}.
func NewPairKey(a, b LegID) (PairKey, error) {
	if a.Compare(b) == 0 {
		return PairKey{}, ErrIdenticalLegs
	}
	first, second, _ := CanonicalLegs(a, b)
	buf := make([]byte, 0, 2*(common.AddressLength+common.HashLength))
	buf = append(buf, first.Ledger.Bytes()...)
	buf = append(buf, first.Series.Bytes()...)
	buf = append(buf, second.Ledger.Bytes()...)
	buf = append(buf, second.Series.Bytes()...)
	return PairKey(ethcrypto.Keccak256Hash(buf)), nil
}
