package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairvault/core/types"
	nativecommon "pairvault/native/common"
)

const (
	// FeeDenominator is the basis for FeesBps.
	FeeDenominator = nativecommon.BasisPoints
	// MaxFeesBps caps the fee at half of the denominator.
	MaxFeesBps = FeeDenominator / 2
	// MaxDecimals bounds owner-asserted leg and collateral scales.
	MaxDecimals = 36
)

// LegConfig is the registration input for one side of a pair.
type LegConfig struct {
	Leg      types.LegID `json:"leg"`
	Decimals uint8       `json:"decimals"`
}

// PairConfig is the registry entry for an allowed pair. LegA and LegB are
// stored in canonical order and each decimals field follows its leg.
type PairConfig struct {
	Key       types.PairKey `json:"key"`
	Allowed   bool          `json:"allowed"`
	Paused    bool          `json:"paused"`
	LegA      types.LegID   `json:"legA"`
	LegB      types.LegID   `json:"legB"`
	DecimalsA uint8         `json:"decimalsA"`
	DecimalsB uint8         `json:"decimalsB"`
	Oracle    string        `json:"oracle"`

	// OracleBinding commits to the strategy parameters in force when the
	// pair was registered.
	OracleBinding common.Hash  `json:"oracleBinding"`
	EarlyExited   *uint256.Int `json:"earlyExited"`
}

// Clone returns a deep copy of the configuration.
func (p *PairConfig) Clone() *PairConfig {
	if p == nil {
		return nil
	}
	clone := *p
	clone.EarlyExited = nativecommon.Clone(p.EarlyExited)
	return &clone
}

// Settings holds the vault-wide configuration and aggregate counters.
type Settings struct {
	Owner              common.Address `json:"owner"`
	FeeRecipient       common.Address `json:"feeRecipient"`
	FeesBps            uint64         `json:"feesBps"`
	Reserve            common.Address `json:"reserve"`
	Collateral         common.Address `json:"collateral"`
	CollateralDecimals uint8          `json:"collateralDecimals"`
	TotalEarlyExited   *uint256.Int   `json:"totalEarlyExited"`
	TotalShares        *uint256.Int   `json:"totalShares"`
}

// Clone returns a deep copy of the settings.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	clone := *s
	clone.TotalEarlyExited = nativecommon.Clone(s.TotalEarlyExited)
	clone.TotalShares = nativecommon.Clone(s.TotalShares)
	return &clone
}

// MergeResult reports what an early exit paid and pulled. Leg amounts follow
// the pair's canonical leg order.
type MergeResult struct {
	Payout     *uint256.Int `json:"payout"`
	LegAmountA *uint256.Int `json:"legAmountA"`
	LegAmountB *uint256.Int `json:"legAmountB"`
}

// SplitResult reports the claims pushed out and any profit realised.
type SplitResult struct {
	Outcome    *uint256.Int `json:"outcome"`
	LegAmountA *uint256.Int `json:"legAmountA"`
	LegAmountB *uint256.Int `json:"legAmountB"`
	Profit     *uint256.Int `json:"profit"`
	Fee        *uint256.Int `json:"fee"`
	FeeShares  *uint256.Int `json:"feeShares"`
}

// ReportResult reports the reconciliation of a settled pair. Profit is net of
// the fee.
type ReportResult struct {
	Settled     *uint256.Int `json:"settled"`
	EarlyExited *uint256.Int `json:"earlyExited"`
	Profit      *uint256.Int `json:"profit"`
	Loss        *uint256.Int `json:"loss"`
	Fee         *uint256.Int `json:"fee"`
	FeeShares   *uint256.Int `json:"feeShares"`
}

// SettlementResult reports the escrow swept out when a settlement starts.
type SettlementResult struct {
	SweptLegA *uint256.Int `json:"sweptLegA"`
	SweptLegB *uint256.Int `json:"sweptLegB"`
}

// Summary is a read-only snapshot of the vault.
type Summary struct {
	Settings    *Settings    `json:"settings"`
	TotalAssets *uint256.Int `json:"totalAssets"`
	ReserveHeld *uint256.Int `json:"reserveHeld"`
	PairCount   uint64       `json:"pairCount"`
}

type storedPair struct {
	Allowed       bool
	Paused        bool
	LegA          types.LegID
	LegB          types.LegID
	DecimalsA     uint8
	DecimalsB     uint8
	Oracle        string
	OracleBinding common.Hash
	EarlyExited   *big.Int
}

type storedSettings struct {
	Owner              common.Address
	FeeRecipient       common.Address
	FeesBps            uint64
	Reserve            common.Address
	Collateral         common.Address
	CollateralDecimals uint8
	TotalEarlyExited   *big.Int
	TotalShares        *big.Int
}

func newStoredPair(p *PairConfig) storedPair {
	return storedPair{
		Allowed:       p.Allowed,
		Paused:        p.Paused,
		LegA:          p.LegA,
		LegB:          p.LegB,
		DecimalsA:     p.DecimalsA,
		DecimalsB:     p.DecimalsB,
		Oracle:        p.Oracle,
		OracleBinding: p.OracleBinding,
		EarlyExited:   nativecommon.ToStored(p.EarlyExited),
	}
}

func (s storedPair) decode(key types.PairKey) (*PairConfig, error) {
	early, err := nativecommon.FromStored(s.EarlyExited)
	if err != nil {
		return nil, err
	}
	return &PairConfig{
		Key:           key,
		Allowed:       s.Allowed,
		Paused:        s.Paused,
		LegA:          s.LegA,
		LegB:          s.LegB,
		DecimalsA:     s.DecimalsA,
		DecimalsB:     s.DecimalsB,
		Oracle:        s.Oracle,
		OracleBinding: s.OracleBinding,
		EarlyExited:   early,
	}, nil
}

func newStoredSettings(s *Settings) storedSettings {
	return storedSettings{
		Owner:              s.Owner,
		FeeRecipient:       s.FeeRecipient,
		FeesBps:            s.FeesBps,
		Reserve:            s.Reserve,
		Collateral:         s.Collateral,
		CollateralDecimals: s.CollateralDecimals,
		TotalEarlyExited:   nativecommon.ToStored(s.TotalEarlyExited),
		TotalShares:        nativecommon.ToStored(s.TotalShares),
	}
}

func (s storedSettings) decode() (*Settings, error) {
	early, err := nativecommon.FromStored(s.TotalEarlyExited)
	if err != nil {
		return nil, err
	}
	shares, err := nativecommon.FromStored(s.TotalShares)
	if err != nil {
		return nil, err
	}
	return &Settings{
		Owner:              s.Owner,
		FeeRecipient:       s.FeeRecipient,
		FeesBps:            s.FeesBps,
		Reserve:            s.Reserve,
		Collateral:         s.Collateral,
		CollateralDecimals: s.CollateralDecimals,
		TotalEarlyExited:   early,
		TotalShares:        shares,
	}, nil
}
