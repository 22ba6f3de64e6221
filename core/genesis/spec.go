// core/genesis/spec.go
package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairvault/native/vault"
)

// GenesisSpec seeds a fresh vault database: the collateral tokens, claim
// ledgers and yield reserves the vault talks to, opening balances, and the
// vault-wide settings.
type GenesisSpec struct {
	Tokens   []TokenSpec                  `json:"tokens"`
	Ledgers  []LedgerSpec                 `json:"ledgers"`
	Reserves []ReserveSpec                `json:"reserves"`
	Vault    VaultSpec                    `json:"vault"`
	Alloc    map[string]map[string]string `json:"alloc"` // holder -> token -> amount

	alloc []allocation
}

type TokenSpec struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

type LedgerSpec struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

type ReserveSpec struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
	Name    string `json:"name"`
}

type VaultSpec struct {
	Owner        string `json:"owner"`
	FeeRecipient string `json:"feeRecipient"`
	FeesBps      uint64 `json:"feesBps"`
	Reserve      string `json:"reserve"`
	Collateral   string `json:"collateral"`
}

type allocation struct {
	holder common.Address
	token  common.Address
	amount *uint256.Int
}

func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec GenesisSpec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

func parseAddress(field, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s: %q is not a hex address", field, raw)
	}
	addr := common.HexToAddress(raw)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s: zero address", field)
	}
	return addr, nil
}

// Validate checks cross references and parses the allocation table.
func (s *GenesisSpec) Validate() error {
	if s == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	tokens := make(map[common.Address]TokenSpec, len(s.Tokens))
	for i, tok := range s.Tokens {
		addr, err := parseAddress(fmt.Sprintf("tokens[%d].address", i), tok.Address)
		if err != nil {
			return err
		}
		if _, dup := tokens[addr]; dup {
			return fmt.Errorf("tokens[%d]: duplicate token %s", i, addr.Hex())
		}
		if tok.Decimals > vault.MaxDecimals {
			return fmt.Errorf("tokens[%d]: decimals %d above %d", i, tok.Decimals, vault.MaxDecimals)
		}
		tokens[addr] = tok
	}
	for i, ledger := range s.Ledgers {
		if _, err := parseAddress(fmt.Sprintf("ledgers[%d].address", i), ledger.Address); err != nil {
			return err
		}
	}
	reserves := make(map[common.Address]common.Address, len(s.Reserves))
	for i, res := range s.Reserves {
		addr, err := parseAddress(fmt.Sprintf("reserves[%d].address", i), res.Address)
		if err != nil {
			return err
		}
		asset, err := parseAddress(fmt.Sprintf("reserves[%d].asset", i), res.Asset)
		if err != nil {
			return err
		}
		if _, ok := tokens[asset]; !ok {
			return fmt.Errorf("reserves[%d]: unknown asset %s", i, asset.Hex())
		}
		reserves[addr] = asset
	}

	if _, err := parseAddress("vault.owner", s.Vault.Owner); err != nil {
		return err
	}
	if _, err := parseAddress("vault.feeRecipient", s.Vault.FeeRecipient); err != nil {
		return err
	}
	if s.Vault.FeesBps > vault.MaxFeesBps {
		return fmt.Errorf("vault.feesBps %d above %d", s.Vault.FeesBps, vault.MaxFeesBps)
	}
	collateral, err := parseAddress("vault.collateral", s.Vault.Collateral)
	if err != nil {
		return err
	}
	if _, ok := tokens[collateral]; !ok {
		return fmt.Errorf("vault.collateral: unknown token %s", collateral.Hex())
	}
	reserve, err := parseAddress("vault.reserve", s.Vault.Reserve)
	if err != nil {
		return err
	}
	asset, ok := reserves[reserve]
	if !ok {
		return fmt.Errorf("vault.reserve: unknown reserve %s", reserve.Hex())
	}
	if asset != collateral {
		return fmt.Errorf("vault.reserve: holds %s, collateral is %s", asset.Hex(), collateral.Hex())
	}

	s.alloc = s.alloc[:0]
	holders := make([]string, 0, len(s.Alloc))
	for holder := range s.Alloc {
		holders = append(holders, holder)
	}
	sort.Strings(holders)
	for _, rawHolder := range holders {
		holder, err := parseAddress(fmt.Sprintf("alloc[%q]", rawHolder), rawHolder)
		if err != nil {
			return err
		}
		balances := s.Alloc[rawHolder]
		rawTokens := make([]string, 0, len(balances))
		for tok := range balances {
			rawTokens = append(rawTokens, tok)
		}
		sort.Strings(rawTokens)
		for _, rawToken := range rawTokens {
			token, err := parseAddress(fmt.Sprintf("alloc[%q][%q]", rawHolder, rawToken), rawToken)
			if err != nil {
				return err
			}
			if _, ok := tokens[token]; !ok {
				return fmt.Errorf("alloc[%q]: unknown token %s", rawHolder, token.Hex())
			}
			amount, err := uint256.FromDecimal(strings.TrimSpace(balances[rawToken]))
			if err != nil {
				return fmt.Errorf("alloc[%q][%q]: invalid amount %q: %w", rawHolder, rawToken, balances[rawToken], err)
			}
			s.alloc = append(s.alloc, allocation{holder: holder, token: token, amount: amount})
		}
	}
	return nil
}

// CollateralDecimals returns the decimals of the vault's collateral token.
func (s *GenesisSpec) CollateralDecimals() uint8 {
	collateral := common.HexToAddress(s.Vault.Collateral)
	for _, tok := range s.Tokens {
		if common.HexToAddress(tok.Address) == collateral {
			return tok.Decimals
		}
	}
	return 0
}
