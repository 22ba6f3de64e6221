package oracle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"pairvault/core/types"
)

var (
	ErrMarketAlreadyExpired = errors.New("oracle: market already expired")
	ErrUnknownPair          = errors.New("oracle: unknown pair")
	ErrUnknownOperation     = errors.New("oracle: unknown operation")
	ErrDuplicateOracle      = errors.New("oracle: strategy name already registered")
	ErrInvalidDefinition    = errors.New("oracle: invalid definition")
)

// Operation distinguishes the two quote directions.
type Operation uint8

const (
	// Merge quotes collateral paid out for a matched claim position.
	Merge Operation = iota + 1
	// Split quotes claim units handed out for collateral.
	Split
)

func (o Operation) String() string {
	switch o {
	case Merge:
		return "merge"
	case Split:
		return "split"
	default:
		return fmt.Sprintf("operation(%d)", uint8(o))
	}
}

// Request carries everything a strategy may price on. Amount is expressed in
// collateral decimals.
type Request struct {
	Pair      types.PairKey
	LegA      types.LegID
	LegB      types.LegID
	Amount    *uint256.Int
	Operation Operation
}

// Quoter prices a request. Implementations must not mutate vault state.
type Quoter interface {
	Quote(ctx context.Context, req Request) (*uint256.Int, error)
}

// QuoterFunc adapts a plain function to the Quoter interface.
type QuoterFunc func(ctx context.Context, req Request) (*uint256.Int, error)

func (f QuoterFunc) Quote(ctx context.Context, req Request) (*uint256.Int, error) {
	return f(ctx, req)
}

// Registry resolves strategy names bound to pairs at registration time. Each
// entry carries a binding hash committing to its parameters so a pair can
// detect a strategy that was redefined under the same name.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	quoter  Quoter
	binding common.Hash
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register binds name to q. Built-in strategies commit to their parameters
// exactly as RegisterDefinition would; any other quoter commits to its name
// and Go type only.
func (r *Registry) Register(name string, q Quoter) error {
	if q == nil {
		return ErrInvalidDefinition
	}
	if def, ok := definitionOf(name, q); ok {
		binding, err := def.Binding()
		if err != nil {
			return err
		}
		return r.register(name, q, binding)
	}
	return r.register(name, q, crypto.Keccak256Hash([]byte("quoter"), []byte(name), []byte(fmt.Sprintf("%T", q))))
}

func definitionOf(name string, q Quoter) (Definition, bool) {
	switch v := q.(type) {
	case Identity:
		return Definition{Name: name, Kind: KindIdentity}, true
	case FixedDiscount:
		return Definition{Name: name, Kind: KindFixedDiscount, MergeBps: v.MergeBps, SplitBps: v.SplitBps}, true
	case TimeDecay:
		return Definition{Name: name, Kind: KindTimeDecay, RateBps: v.RateBps, Expiry: v.Expiry}, true
	default:
		return Definition{}, false
	}
}

// RegisterDefinition builds def and binds it under def.Name with a binding
// derived from its canonical parameters.
func (r *Registry) RegisterDefinition(def Definition, now func() time.Time) error {
	q, err := def.Build(now)
	if err != nil {
		return err
	}
	binding, err := def.Binding()
	if err != nil {
		return err
	}
	return r.register(strings.TrimSpace(def.Name), q, binding)
}

func (r *Registry) register(name string, q Quoter, binding common.Hash) error {
	if name == "" || q == nil {
		return ErrInvalidDefinition
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateOracle, name)
	}
	r.entries[name] = entry{quoter: q, binding: binding}
	return nil
}

// Lookup returns the strategy registered under name.
func (r *Registry) Lookup(name string) (Quoter, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.quoter, ok
}

// Binding returns the parameter commitment of the strategy under name.
func (r *Registry) Binding(name string) (common.Hash, bool) {
	if r == nil {
		return common.Hash{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.binding, ok
}

// Names lists registered strategies in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
