package oracle

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// Kind names a built-in strategy.
type Kind string

const (
	KindIdentity      Kind = "identity"
	KindFixedDiscount Kind = "fixed_discount"
	KindTimeDecay     Kind = "time_decay"
)

// Definition is the configuration form of a named strategy instance.
type Definition struct {
	Name     string
	Kind     Kind
	MergeBps uint64
	SplitBps uint64
	RateBps  uint64
	Expiry   time.Time
}

type canonicalDefinition struct {
	Name     string
	Kind     string
	MergeBps uint64
	SplitBps uint64
	RateBps  uint64
	Expiry   uint64
}

// Binding is the keccak hash of the definition's RLP-encoded canonical form.
// Parameters the kind ignores are zeroed so they never change the binding.
func (d Definition) Binding() (common.Hash, error) {
	c := canonicalDefinition{Name: strings.TrimSpace(d.Name), Kind: strings.ToLower(string(d.Kind))}
	switch Kind(c.Kind) {
	case KindIdentity, "":
		c.Kind = string(KindIdentity)
	case KindFixedDiscount:
		c.MergeBps, c.SplitBps = d.MergeBps, d.SplitBps
	case KindTimeDecay:
		c.RateBps = d.RateBps
		if !d.Expiry.IsZero() && d.Expiry.Unix() > 0 {
			c.Expiry = uint64(d.Expiry.Unix())
		}
	default:
		return common.Hash{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidDefinition, d.Kind)
	}
	encoded, err := rlp.EncodeToBytes(c)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

// Build instantiates the strategy. now may be nil to use the wall clock.
func (d Definition) Build(now func() time.Time) (Quoter, error) {
	switch Kind(strings.ToLower(string(d.Kind))) {
	case KindIdentity, "":
		return Identity{}, nil
	case KindFixedDiscount:
		if d.MergeBps > 10_000 || d.SplitBps > 10_000 {
			return nil, fmt.Errorf("%w: %s discount above 100%%", ErrInvalidDefinition, d.Name)
		}
		return FixedDiscount{MergeBps: d.MergeBps, SplitBps: d.SplitBps}, nil
	case KindTimeDecay:
		if d.Expiry.IsZero() {
			return nil, fmt.Errorf("%w: %s requires an expiry", ErrInvalidDefinition, d.Name)
		}
		return TimeDecay{RateBps: d.RateBps, Expiry: d.Expiry, Now: now}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidDefinition, d.Kind)
	}
}

// BuildRegistry registers every definition. The identity strategy is always
// available under its kind name unless a definition claims it.
func BuildRegistry(defs []Definition, now func() time.Time) (*Registry, error) {
	reg := NewRegistry()
	for _, def := range defs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: missing name", ErrInvalidDefinition)
		}
		def.Name = name
		if err := reg.RegisterDefinition(def, now); err != nil {
			return nil, err
		}
	}
	if _, ok := reg.Lookup(string(KindIdentity)); !ok {
		identity := Definition{Name: string(KindIdentity), Kind: KindIdentity}
		if err := reg.RegisterDefinition(identity, now); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
