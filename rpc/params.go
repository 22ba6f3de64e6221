package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairvault/config"
	"pairvault/core/types"
	"pairvault/native/vault"
)

// paramsError marks a request the caller got wrong before any state was read.
type paramsError struct {
	msg string
}

func (e *paramsError) Error() string { return e.msg }

func invalidParams(format string, args ...interface{}) error {
	return &paramsError{msg: fmt.Sprintf(format, args...)}
}

// decodeParams decodes the single params object of a call into dst.
func decodeParams(params []json.RawMessage, dst interface{}) error {
	if len(params) != 1 {
		return invalidParams("expected a single params object")
	}
	dec := json.NewDecoder(bytes.NewReader(params[0]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return invalidParams("invalid params: %v", err)
	}
	return nil
}

// parseAmount parses a base-10 unsigned integer.
func parseAmount(field, raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, invalidParams("%s required", field)
	}
	value, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, invalidParams("%s: %v", field, err)
	}
	return value, nil
}

// parseAddress parses a hex address. An empty optional value yields the zero
// address.
func parseAddress(field, raw string, required bool) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if required {
			return common.Address{}, invalidParams("%s required", field)
		}
		return common.Address{}, nil
	}
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, invalidParams("%s: %q is not a hex address", field, raw)
	}
	return common.HexToAddress(trimmed), nil
}

func parsePairKey(raw string) (types.PairKey, error) {
	var key types.PairKey
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return key, invalidParams("pair required")
	}
	if err := key.UnmarshalText([]byte(trimmed)); err != nil {
		return key, invalidParams("pair: %v", err)
	}
	return key, nil
}

type legParams struct {
	Ledger   string `json:"ledger"`
	Series   string `json:"series"`
	Decimals uint8  `json:"decimals"`
}

func (l legParams) spec() config.LegSpec {
	return config.LegSpec{Ledger: strings.TrimSpace(l.Ledger), Series: strings.TrimSpace(l.Series), Decimals: l.Decimals}
}

// parseLegs validates both legs with the same rules as the pairs file.
func parseLegs(a, b legParams) (vault.LegConfig, vault.LegConfig, error) {
	legA, legB, err := config.PairSpec{LegA: a.spec(), LegB: b.spec()}.Legs()
	if err != nil {
		return vault.LegConfig{}, vault.LegConfig{}, invalidParams("%v", err)
	}
	return legA, legB, nil
}
