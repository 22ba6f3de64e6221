package eventlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"pairvault/core/events"
	"pairvault/core/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "events.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ", nil)
	require.ErrorIs(t, err, ErrPathRequired)
}

func TestEmitIndexesEventsInOrder(t *testing.T) {
	store := openTestStore(t)
	pair := types.HexToPairKey("0x01")
	other := types.HexToPairKey("0x02")

	store.Emit(events.FeesUpdated{OldBps: 0, NewBps: 100})
	store.Emit(events.PairRemoved{Pair: pair})
	store.Emit(events.SplitProfit{Pair: pair, Profit: uint256.NewInt(10), Fee: uint256.NewInt(1), FeeShares: uint256.NewInt(1)})
	store.Emit(events.PairRemoved{Pair: other})

	page, err := store.List(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, page.Entries, 4)
	require.Zero(t, page.Next)
	require.Equal(t, events.TypeFeesUpdated, page.Entries[0].Type)
	require.Equal(t, "100", page.Entries[0].Attributes["newBps"])
	for i := 1; i < len(page.Entries); i++ {
		require.Greater(t, page.Entries[i].Seq, page.Entries[i-1].Seq)
	}

	byPair, err := store.List(context.Background(), Query{Pair: pair.Hex()})
	require.NoError(t, err)
	require.Len(t, byPair.Entries, 2)
	require.Equal(t, events.TypeSplitProfit, byPair.Entries[1].Type)

	byType, err := store.List(context.Background(), Query{Type: events.TypePairRemoved})
	require.NoError(t, err)
	require.Len(t, byType.Entries, 2)
}

func TestListPaginates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := store.Append(ctx, events.NewEnvelope(events.FeesUpdated{NewBps: uint64(i)}, time.Now()))
		require.NoError(t, err)
	}

	first, err := store.List(ctx, Query{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Entries, 2)
	require.NotZero(t, first.Next)

	second, err := store.List(ctx, Query{Limit: 2, After: first.Next})
	require.NoError(t, err)
	require.Len(t, second.Entries, 2)
	require.Equal(t, "2", second.Entries[0].Attributes["newBps"])

	last, err := store.List(ctx, Query{Limit: 2, After: second.Next})
	require.NoError(t, err)
	require.Len(t, last.Entries, 1)
	require.Zero(t, last.Next)
}
