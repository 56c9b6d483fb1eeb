package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomeFromPnL(t *testing.T) {
	assert.Equal(t, OutcomeRug, OutcomeFromPnL(-95))
	assert.Equal(t, OutcomeRug, OutcomeFromPnL(-80))
	assert.Equal(t, OutcomeLoser, OutcomeFromPnL(-30))
	assert.Equal(t, OutcomeBreakeven, OutcomeFromPnL(-5))
	assert.Equal(t, OutcomeBreakeven, OutcomeFromPnL(12))
	assert.Equal(t, OutcomeWinner, OutcomeFromPnL(50))
	assert.Equal(t, OutcomeWinner, OutcomeFromPnL(400))
}

func TestMemoryStore_InsertIfAbsent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.InsertIfAbsent(ctx, Record{
		Creator: "creator1", TokenMint: "mint1", FundingSource: "funder1",
	}))
	// Duplicate mint: first row wins.
	require.NoError(t, store.InsertIfAbsent(ctx, Record{
		Creator: "creator2", TokenMint: "mint1", FundingSource: "funder2",
	}))

	n, err := store.CountCreatorsSharingFunder(ctx, "funder1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.CountCreatorsSharingFunder(ctx, "funder2")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMemoryStore_SharedFunderCounts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.InsertIfAbsent(ctx, Record{Creator: "c1", TokenMint: "m1", FundingSource: "funder"}))
	require.NoError(t, store.InsertIfAbsent(ctx, Record{Creator: "c2", TokenMint: "m2", FundingSourceHop2: "funder"}))
	require.NoError(t, store.InsertIfAbsent(ctx, Record{Creator: "c1", TokenMint: "m3", FundingSource: "funder"}))

	// c1 counted once despite two tokens.
	n, err := store.CountCreatorsSharingFunder(ctx, "funder")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryStore_OutcomeAndRugCounts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.InsertIfAbsent(ctx, Record{Creator: "c1", TokenMint: "m1", FundingSource: "funder"}))
	require.NoError(t, store.InsertIfAbsent(ctx, Record{Creator: "c1", TokenMint: "m2", FundingSource: "funder"}))
	require.NoError(t, store.InsertIfAbsent(ctx, Record{Creator: "c2", TokenMint: "m3", FundingSource: "other"}))

	require.NoError(t, store.UpdateOutcome(ctx, "m1", OutcomeRug, -97))
	require.NoError(t, store.UpdateOutcome(ctx, "m2", OutcomeWinner, 220))
	require.NoError(t, store.UpdateOutcome(ctx, "m3", OutcomeRug, -88))

	n, err := store.CountRugsForCreator(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.CountRugsSharingFunder(ctx, "funder")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.CountRugsSharingFunder(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Unknown mint update is a no-op, not an error.
	require.NoError(t, store.UpdateOutcome(ctx, "missing", OutcomeRug, -99))
}
