package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"pairvault/core/events"
	"pairvault/core/genesis"
	"pairvault/core/types"
	"pairvault/native/claims"
	"pairvault/native/oracle"
	"pairvault/native/vault"
	"pairvault/storage"
)

var (
	testVault   = common.HexToAddress("0x0000000000000000000000000000000000000f00")
	testOwner   = common.HexToAddress("0x0000000000000000000000000000000000000001")
	testUSDC    = common.HexToAddress("0x000000000000000000000000000000000000d001")
	testReserve = common.HexToAddress("0x000000000000000000000000000000000000e001")
	testLedgerX = common.HexToAddress("0x000000000000000000000000000000000000a0a0")
	testLedgerY = common.HexToAddress("0x000000000000000000000000000000000000b0b0")
	testBob     = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	testAlice   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testCarol   = common.HexToAddress("0x00000000000000000000000000000000000000c1")

	yesLeg = types.LegID{Ledger: testLedgerX, Series: common.HexToHash("0x01")}
	noLeg  = types.LegID{Ledger: testLedgerY, Series: common.HexToHash("0x02")}
)

func testGenesis() *genesis.GenesisSpec {
	return &genesis.GenesisSpec{
		Tokens: []genesis.TokenSpec{{Address: testUSDC.Hex(), Symbol: "USDC", Decimals: 6}},
		Ledgers: []genesis.LedgerSpec{
			{Address: testLedgerX.Hex(), Name: "market-x"},
			{Address: testLedgerY.Hex(), Name: "market-y"},
		},
		Reserves: []genesis.ReserveSpec{{Address: testReserve.Hex(), Asset: testUSDC.Hex(), Name: "usdc-yield"}},
		Vault: genesis.VaultSpec{
			Owner:        testOwner.Hex(),
			FeeRecipient: testOwner.Hex(),
			FeesBps:      1_000,
			Reserve:      testReserve.Hex(),
			Collateral:   testUSDC.Hex(),
		},
		Alloc: map[string]map[string]string{
			testBob.Hex(): {testUSDC.Hex(): "1000000"},
		},
	}
}

func testSeeds() []PairSeed {
	return []PairSeed{{
		LegA:   vault.LegConfig{Leg: yesLeg, Decimals: 6},
		LegB:   vault.LegConfig{Leg: noLeg, Decimals: 6},
		Oracle: string(oracle.KindIdentity),
	}}
}

func newTestNode(t *testing.T, db storage.Database, sink events.Emitter) *Node {
	t.Helper()
	reg, err := oracle.BuildRegistry(nil, time.Now)
	require.NoError(t, err)
	node, err := NewNode(db, Options{VaultAddress: testVault, Oracles: reg, Emitter: sink})
	require.NoError(t, err)
	return node
}

// fundedNode bootstraps a vault with one pair and 1 USDC of bob's liquidity.
func fundedNode(t *testing.T, sink events.Emitter) (*Node, types.PairKey) {
	t.Helper()
	ctx := context.Background()
	node := newTestNode(t, storage.NewMemDB(), sink)
	require.NoError(t, node.Bootstrap(ctx, testGenesis(), testSeeds()))
	require.NoError(t, node.ApproveCollateral(ctx, testBob, testVault, uint256.NewInt(1_000_000)))
	_, err := node.Deposit(ctx, testBob, uint256.NewInt(1_000_000), testBob)
	require.NoError(t, err)

	key, err := types.NewPairKey(yesLeg, noLeg)
	require.NoError(t, err)
	return node, key
}

func giveClaims(t *testing.T, node *Node, holder common.Address, amount uint64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, node.MintClaims(ctx, yesLeg, holder, uint256.NewInt(amount)))
	require.NoError(t, node.MintClaims(ctx, noLeg, holder, uint256.NewInt(amount)))
	require.NoError(t, node.SetClaimApproval(ctx, testLedgerX, holder, testVault, true))
	require.NoError(t, node.SetClaimApproval(ctx, testLedgerY, holder, testVault, true))
}

func countType(evts []events.Event, eventType string) int {
	n := 0
	for _, evt := range evts {
		if evt.EventType() == eventType {
			n++
		}
	}
	return n
}

func TestNewNodeRejectsMissingInputs(t *testing.T) {
	_, err := NewNode(nil, Options{VaultAddress: testVault})
	require.Error(t, err)
	_, err = NewNode(storage.NewMemDB(), Options{})
	require.Error(t, err)
}

func TestBootstrapRequiresGenesisOnEmptyDatabase(t *testing.T) {
	node := newTestNode(t, storage.NewMemDB(), nil)
	require.Error(t, node.Bootstrap(context.Background(), nil, testSeeds()))

	initialized, err := node.Initialized(context.Background())
	require.NoError(t, err)
	require.False(t, initialized)
}

func TestMergeCommitsAndFlushesEvents(t *testing.T) {
	ctx := context.Background()
	sink := &events.Buffer{}
	node, key := fundedNode(t, sink)
	giveClaims(t, node, testAlice, 100)
	sink.Reset()

	res, err := node.Merge(ctx, testAlice, key, uint256.NewInt(100), common.Address{})
	require.NoError(t, err)
	require.Equal(t, uint64(100), res.Payout.Uint64())

	flushed := sink.Events()
	require.Equal(t, 1, countType(flushed, events.TypeMerge))
	require.Equal(t, 2, countType(flushed, events.TypeClaimTransfer))

	bal, err := node.CollateralBalance(ctx, testAlice)
	require.NoError(t, err)
	require.Equal(t, uint64(100), bal.Uint64())

	escrowed, err := node.ClaimBalance(ctx, yesLeg, testVault)
	require.NoError(t, err)
	require.Equal(t, uint64(100), escrowed.Uint64())

	summary, err := node.Summary(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(100), summary.Settings.TotalEarlyExited.Uint64())
	require.Equal(t, uint64(1), summary.PairCount)
}

func TestFailedMergeLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	sink := &events.Buffer{}
	node, key := fundedNode(t, sink)

	// Carol holds claims but never approved the vault as operator.
	require.NoError(t, node.MintClaims(ctx, yesLeg, testCarol, uint256.NewInt(50)))
	require.NoError(t, node.MintClaims(ctx, noLeg, testCarol, uint256.NewInt(50)))
	sink.Reset()

	_, err := node.Merge(ctx, testCarol, key, uint256.NewInt(50), common.Address{})
	require.ErrorIs(t, err, claims.ErrNotApproved)
	require.Empty(t, sink.Events())

	summary, err := node.Summary(ctx)
	require.NoError(t, err)
	require.True(t, summary.Settings.TotalEarlyExited.IsZero())

	bal, err := node.CollateralBalance(ctx, testCarol)
	require.NoError(t, err)
	require.True(t, bal.IsZero())
	held, err := node.ClaimBalance(ctx, yesLeg, testCarol)
	require.NoError(t, err)
	require.Equal(t, uint64(50), held.Uint64())
}

func TestUpdateDiscardsWritesOnError(t *testing.T) {
	ctx := context.Background()
	sink := &events.Buffer{}
	node, _ := fundedNode(t, sink)
	sink.Reset()

	boom := errors.New("boom")
	err := node.Update(ctx, "test", func(_ context.Context, m *Modules) error {
		if err := m.Bank.Mint(testUSDC, testCarol, uint256.NewInt(5)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, sink.Events())

	bal, err := node.CollateralBalance(ctx, testCarol)
	require.NoError(t, err)
	require.True(t, bal.IsZero())
}

func TestViewDropsWrites(t *testing.T) {
	ctx := context.Background()
	node, _ := fundedNode(t, nil)

	err := node.View(ctx, func(_ context.Context, m *Modules) error {
		return m.Bank.Mint(testUSDC, testCarol, uint256.NewInt(5))
	})
	require.NoError(t, err)

	bal, err := node.CollateralBalance(ctx, testCarol)
	require.NoError(t, err)
	require.True(t, bal.IsZero())
}

func TestSplitAfterMergeReleasesEscrow(t *testing.T) {
	ctx := context.Background()
	node, key := fundedNode(t, nil)
	giveClaims(t, node, testAlice, 100)
	_, err := node.Merge(ctx, testAlice, key, uint256.NewInt(100), common.Address{})
	require.NoError(t, err)

	require.NoError(t, node.MintCollateral(ctx, testCarol, uint256.NewInt(100)))
	require.NoError(t, node.ApproveCollateral(ctx, testCarol, testVault, uint256.NewInt(100)))
	estimate, err := node.EstimateSplit(ctx, key, uint256.NewInt(100))
	require.NoError(t, err)

	res, err := node.Split(ctx, testCarol, key, uint256.NewInt(100), common.Address{})
	require.NoError(t, err)
	require.Equal(t, estimate.Outcome, res.Outcome)
	require.True(t, res.Profit.IsZero())

	legs, err := node.ClaimBalance(ctx, noLeg, testCarol)
	require.NoError(t, err)
	require.Equal(t, uint64(100), legs.Uint64())

	summary, err := node.Summary(ctx)
	require.NoError(t, err)
	require.True(t, summary.Settings.TotalEarlyExited.IsZero())
}

func TestBootstrapPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	node := newTestNode(t, db, nil)
	require.NoError(t, node.Bootstrap(ctx, testGenesis(), testSeeds()))
	db.Close()

	db, err = storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db.Close()
	node = newTestNode(t, db, nil)

	initialized, err := node.Initialized(ctx)
	require.NoError(t, err)
	require.True(t, initialized)

	// A second bootstrap neither re-applies genesis nor duplicates pairs.
	require.NoError(t, node.Bootstrap(ctx, testGenesis(), testSeeds()))
	count, err := node.PairCount(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)

	bal, err := node.CollateralBalance(ctx, testBob)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), bal.Uint64())
}

func TestRedefinedOracleIsRefusedAfterReopen(t *testing.T) {
	ctx := context.Background()
	db := storage.NewMemDB()
	openWith := func(mergeBps uint64) *Node {
		reg, err := oracle.BuildRegistry([]oracle.Definition{{Name: "flat", Kind: oracle.KindFixedDiscount, MergeBps: mergeBps}}, time.Now)
		require.NoError(t, err)
		node, err := NewNode(db, Options{VaultAddress: testVault, Oracles: reg})
		require.NoError(t, err)
		return node
	}
	seeds := testSeeds()
	seeds[0].Oracle = "flat"

	node := openWith(0)
	require.NoError(t, node.Bootstrap(ctx, testGenesis(), seeds))
	require.NoError(t, node.ApproveCollateral(ctx, testBob, testVault, uint256.NewInt(1_000_000)))
	_, err := node.Deposit(ctx, testBob, uint256.NewInt(1_000_000), testBob)
	require.NoError(t, err)
	giveClaims(t, node, testAlice, 100)
	key, err := types.NewPairKey(yesLeg, noLeg)
	require.NoError(t, err)
	est, err := node.EstimateMerge(ctx, key, uint256.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, uint64(100), est.Payout.Uint64())

	// Same name, different discount: the pair stays bound to what it was
	// registered with.
	node = openWith(5_000)
	require.NoError(t, node.Bootstrap(ctx, nil, seeds))
	_, err = node.EstimateMerge(ctx, key, uint256.NewInt(100))
	require.ErrorIs(t, err, vault.ErrOracleChanged)
	_, err = node.Merge(ctx, testAlice, key, uint256.NewInt(100), common.Address{})
	require.ErrorIs(t, err, vault.ErrOracleChanged)
	bal, err := node.CollateralBalance(ctx, testAlice)
	require.NoError(t, err)
	require.True(t, bal.IsZero())

	node = openWith(0)
	res, err := node.Merge(ctx, testAlice, key, uint256.NewInt(100), common.Address{})
	require.NoError(t, err)
	require.Equal(t, uint64(100), res.Payout.Uint64())
}
