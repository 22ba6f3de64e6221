package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"pairvault/core/types"
	"pairvault/native/oracle"
	"pairvault/native/vault"
)

var (
	bpsScale   = decimal.NewFromInt(10_000)
	percentBps = decimal.NewFromInt(100)
)

// PairsFile is the YAML bootstrap document listing oracle strategies and the
// pairs bound to them.
type PairsFile struct {
	Oracles []OracleSpec `yaml:"oracles"`
	Pairs   []PairSpec   `yaml:"pairs"`
}

// OracleSpec describes one named strategy. Rates and discounts accept a
// fraction ("0.05"), a percentage ("5%") or basis points ("500bps").
type OracleSpec struct {
	Name          string `yaml:"name"`
	Kind          string `yaml:"kind"`
	MergeDiscount string `yaml:"mergeDiscount"`
	SplitDiscount string `yaml:"splitDiscount"`
	Rate          string `yaml:"rate"`
	Expiry        string `yaml:"expiry"`
}

type LegSpec struct {
	Ledger   string `yaml:"ledger"`
	Series   string `yaml:"series"`
	Decimals uint8  `yaml:"decimals"`
}

type PairSpec struct {
	LegA   LegSpec `yaml:"legA"`
	LegB   LegSpec `yaml:"legB"`
	Oracle string  `yaml:"oracle"`
}

// LoadPairs reads and validates the pair bootstrap file.
func LoadPairs(path string) (*PairsFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pairs file %q: %w", path, err)
	}
	var file PairsFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode pairs file %q: %w", path, err)
	}
	if _, err := file.Definitions(); err != nil {
		return nil, err
	}
	if err := file.validatePairs(); err != nil {
		return nil, err
	}
	return &file, nil
}

// ParseBps converts a human-readable rate into whole basis points.
func ParseBps(raw string) (uint64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	var (
		value decimal.Decimal
		err   error
	)
	switch {
	case strings.HasSuffix(s, "bps"):
		value, err = decimal.NewFromString(strings.TrimSpace(strings.TrimSuffix(s, "bps")))
	case strings.HasSuffix(s, "%"):
		value, err = decimal.NewFromString(strings.TrimSpace(strings.TrimSuffix(s, "%")))
		value = value.Mul(percentBps)
	default:
		value, err = decimal.NewFromString(s)
		value = value.Mul(bpsScale)
	}
	if err != nil {
		return 0, fmt.Errorf("rate %q: %w", raw, err)
	}
	if value.IsNegative() {
		return 0, fmt.Errorf("rate %q must not be negative", raw)
	}
	if !value.Equal(value.Truncate(0)) {
		return 0, fmt.Errorf("rate %q does not resolve to whole basis points", raw)
	}
	return uint64(value.IntPart()), nil
}

// Definitions converts the oracle specs into strategy definitions.
func (f *PairsFile) Definitions() ([]oracle.Definition, error) {
	seen := make(map[string]struct{}, len(f.Oracles))
	defs := make([]oracle.Definition, 0, len(f.Oracles))
	for i, spec := range f.Oracles {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			return nil, fmt.Errorf("oracles[%d]: name required", i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("oracles[%d]: duplicate name %q", i, name)
		}
		seen[name] = struct{}{}
		def := oracle.Definition{Name: name, Kind: oracle.Kind(strings.TrimSpace(spec.Kind))}
		var err error
		if def.MergeBps, err = ParseBps(spec.MergeDiscount); err != nil {
			return nil, fmt.Errorf("oracles[%s].mergeDiscount: %w", name, err)
		}
		if def.SplitBps, err = ParseBps(spec.SplitDiscount); err != nil {
			return nil, fmt.Errorf("oracles[%s].splitDiscount: %w", name, err)
		}
		if def.RateBps, err = ParseBps(spec.Rate); err != nil {
			return nil, fmt.Errorf("oracles[%s].rate: %w", name, err)
		}
		if expiry := strings.TrimSpace(spec.Expiry); expiry != "" {
			if def.Expiry, err = time.Parse(time.RFC3339, expiry); err != nil {
				return nil, fmt.Errorf("oracles[%s].expiry: %w", name, err)
			}
		}
		if _, err := def.Build(nil); err != nil {
			return nil, fmt.Errorf("oracles[%s]: %w", name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (f *PairsFile) validatePairs() error {
	known := map[string]struct{}{string(oracle.KindIdentity): {}}
	for _, spec := range f.Oracles {
		known[strings.TrimSpace(spec.Name)] = struct{}{}
	}
	for i, pair := range f.Pairs {
		if _, ok := known[strings.TrimSpace(pair.Oracle)]; !ok {
			return fmt.Errorf("pairs[%d]: unknown oracle %q", i, pair.Oracle)
		}
		if _, _, err := pair.Legs(); err != nil {
			return fmt.Errorf("pairs[%d]: %w", i, err)
		}
	}
	return nil
}

// Legs parses both leg descriptions.
func (p PairSpec) Legs() (vault.LegConfig, vault.LegConfig, error) {
	a, err := p.LegA.parse()
	if err != nil {
		return vault.LegConfig{}, vault.LegConfig{}, fmt.Errorf("legA: %w", err)
	}
	b, err := p.LegB.parse()
	if err != nil {
		return vault.LegConfig{}, vault.LegConfig{}, fmt.Errorf("legB: %w", err)
	}
	if a.Leg == b.Leg {
		return vault.LegConfig{}, vault.LegConfig{}, types.ErrIdenticalLegs
	}
	return a, b, nil
}

func (l LegSpec) parse() (vault.LegConfig, error) {
	if !common.IsHexAddress(l.Ledger) {
		return vault.LegConfig{}, fmt.Errorf("ledger %q is not a hex address", l.Ledger)
	}
	series, err := hexutil.Decode(strings.TrimSpace(l.Series))
	if err != nil {
		return vault.LegConfig{}, fmt.Errorf("series %q: %w", l.Series, err)
	}
	if len(series) > common.HashLength {
		return vault.LegConfig{}, fmt.Errorf("series %q longer than %d bytes", l.Series, common.HashLength)
	}
	if l.Decimals > vault.MaxDecimals {
		return vault.LegConfig{}, fmt.Errorf("decimals %d above %d", l.Decimals, vault.MaxDecimals)
	}
	return vault.LegConfig{
		Leg:      types.LegID{Ledger: common.HexToAddress(l.Ledger), Series: common.BytesToHash(series)},
		Decimals: l.Decimals,
	}, nil
}
