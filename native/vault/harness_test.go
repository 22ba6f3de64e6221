package vault

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairvault/core/events"
	"pairvault/core/state"
	"pairvault/core/types"
	"pairvault/native/bank"
	"pairvault/native/claims"
	"pairvault/native/oracle"
	"pairvault/native/reserve"
	"pairvault/storage"
)

var (
	vaultAddr    = common.HexToAddress("0x0000000000000000000000000000000000000f00")
	owner        = common.HexToAddress("0x0000000000000000000000000000000000000001")
	feeRecipient = common.HexToAddress("0x0000000000000000000000000000000000000002")
	alice        = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob          = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	carol        = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	usdc         = common.HexToAddress("0x000000000000000000000000000000000000d001")
	dai          = common.HexToAddress("0x000000000000000000000000000000000000d002")
	reserveA     = common.HexToAddress("0x000000000000000000000000000000000000e001")
	reserveB     = common.HexToAddress("0x000000000000000000000000000000000000e002")
	reserveDai   = common.HexToAddress("0x000000000000000000000000000000000000e003")
	ledgerX      = common.HexToAddress("0x000000000000000000000000000000000000a0a0")
	ledgerY      = common.HexToAddress("0x000000000000000000000000000000000000b0b0")

	yesX = types.LegID{Ledger: ledgerX, Series: common.HexToHash("0x01")}
	noY  = types.LegID{Ledger: ledgerY, Series: common.HexToHash("0x02")}
)

type harness struct {
	t       *testing.T
	bank    *bank.Engine
	claims  *claims.Engine
	reserve *reserve.Engine
	oracles *oracle.Registry
	vault   *Engine
	events  *events.Buffer
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func newHarness(t *testing.T, collateralDecimals uint8, feesBps uint64) *harness {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())

	b := bank.NewEngine()
	b.SetState(mgr)
	if err := b.CreateToken(usdc, "USDC", collateralDecimals); err != nil {
		t.Fatalf("create usdc: %v", err)
	}
	if err := b.CreateToken(dai, "DAI", 18); err != nil {
		t.Fatalf("create dai: %v", err)
	}

	c := claims.NewEngine()
	c.SetState(mgr)
	for _, ledger := range []common.Address{ledgerX, ledgerY} {
		if err := c.AddLedger(ledger, ledger.Hex()); err != nil {
			t.Fatalf("add ledger: %v", err)
		}
	}

	r := reserve.NewEngine()
	r.SetState(mgr)
	r.SetBank(b)
	for addr, asset := range map[common.Address]common.Address{reserveA: usdc, reserveB: usdc, reserveDai: dai} {
		if err := r.Create(addr, asset, addr.Hex()); err != nil {
			t.Fatalf("create reserve: %v", err)
		}
	}

	reg := oracle.NewRegistry()
	if err := reg.Register("identity", oracle.Identity{}); err != nil {
		t.Fatalf("register oracle: %v", err)
	}
	if err := reg.Register("flat", oracle.FixedDiscount{MergeBps: 1_000}); err != nil {
		t.Fatalf("register oracle: %v", err)
	}

	buf := &events.Buffer{}
	v := NewEngine(vaultAddr)
	v.SetState(mgr)
	v.SetEmitter(buf)
	v.SetCollateral(b.Handle(usdc))
	v.SetReserves(ReserveFunc(func(addr common.Address) (Reserve, error) {
		h, err := r.At(addr)
		if err != nil {
			return nil, err
		}
		return h, nil
	}))
	v.SetClaims(c)
	v.SetOracles(reg)
	c.RegisterReceiver(vaultAddr, v)

	err := v.Initialize(Settings{
		Owner:              owner,
		FeeRecipient:       feeRecipient,
		FeesBps:            feesBps,
		Reserve:            reserveA,
		Collateral:         usdc,
		CollateralDecimals: collateralDecimals,
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return &harness{t: t, bank: b, claims: c, reserve: r, oracles: reg, vault: v, events: buf}
}

func (h *harness) register(oracleName string, decA, decB uint8) types.PairKey {
	h.t.Helper()
	key, err := h.vault.RegisterPair(owner, LegConfig{Leg: yesX, Decimals: decA}, LegConfig{Leg: noY, Decimals: decB}, oracleName)
	if err != nil {
		h.t.Fatalf("register pair: %v", err)
	}
	return key
}

// fund mints collateral to holder and approves the vault to pull it.
func (h *harness) fund(holder common.Address, amount uint64) {
	h.t.Helper()
	if err := h.bank.Mint(usdc, holder, u(amount)); err != nil {
		h.t.Fatalf("mint collateral: %v", err)
	}
	if err := h.bank.Approve(usdc, holder, vaultAddr, new(uint256.Int).SetAllOne()); err != nil {
		h.t.Fatalf("approve collateral: %v", err)
	}
}

// giveClaims mints both legs to holder and approves the vault as operator.
func (h *harness) giveClaims(holder common.Address, amountX, amountY uint64) {
	h.t.Helper()
	if err := h.claims.Mint(yesX, holder, u(amountX)); err != nil {
		h.t.Fatalf("mint claims: %v", err)
	}
	if err := h.claims.Mint(noY, holder, u(amountY)); err != nil {
		h.t.Fatalf("mint claims: %v", err)
	}
	for _, ledger := range []common.Address{ledgerX, ledgerY} {
		if err := h.claims.SetApprovalForAll(ledger, holder, vaultAddr, true); err != nil {
			h.t.Fatalf("approve claims: %v", err)
		}
	}
}

func (h *harness) deposit(holder common.Address, amount uint64) {
	h.t.Helper()
	h.fund(holder, amount)
	if _, err := h.vault.Deposit(holder, u(amount), holder); err != nil {
		h.t.Fatalf("deposit: %v", err)
	}
}

func (h *harness) collateral(holder common.Address) uint64 {
	h.t.Helper()
	bal, err := h.bank.BalanceOf(usdc, holder)
	if err != nil {
		h.t.Fatalf("collateral balance: %v", err)
	}
	return bal.Uint64()
}

func (h *harness) claimBalance(leg types.LegID, holder common.Address) uint64 {
	h.t.Helper()
	bal, err := h.claims.BalanceOf(leg, holder)
	if err != nil {
		h.t.Fatalf("claim balance: %v", err)
	}
	return bal.Uint64()
}

func (h *harness) totalAssets() uint64 {
	h.t.Helper()
	total, err := h.vault.TotalAssets()
	if err != nil {
		h.t.Fatalf("total assets: %v", err)
	}
	return total.Uint64()
}

func (h *harness) earlyExited(key types.PairKey) uint64 {
	h.t.Helper()
	p, ok, err := h.vault.Pair(key)
	if err != nil || !ok {
		h.t.Fatalf("pair lookup: ok=%v err=%v", ok, err)
	}
	return p.EarlyExited.Uint64()
}

func (h *harness) shares(holder common.Address) uint64 {
	h.t.Helper()
	s, err := h.vault.SharesOf(holder)
	if err != nil {
		h.t.Fatalf("shares: %v", err)
	}
	return s.Uint64()
}

func (h *harness) checkInvariants() {
	h.t.Helper()
	if err := h.vault.CheckInvariants(); err != nil {
		h.t.Fatalf("invariants: %v", err)
	}
}

func (h *harness) eventTypes() []string {
	var out []string
	for _, evt := range h.events.Events() {
		out = append(out, evt.EventType())
	}
	return out
}
