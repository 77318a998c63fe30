package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-history-lab/internal/domain"
	"market-history-lab/internal/idhash"
	"market-history-lab/internal/storage"
)

func TestFillJournal_InsertBulkAndGetAll(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	journal := NewFillJournal(pool)

	// Out of chain order on purpose; reads must come back ordered.
	fills := []*domain.FillEvent{
		testFill(2, 0, 0, 120),
		testFill(1, 0, 1, 60),
		testFill(1, 0, 0, 60),
	}
	require.NoError(t, journal.InsertBulk(ctx, fills))

	got, err := journal.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, uint64(1), got[0].BlockHeight)
	assert.Equal(t, 0, got[0].OpIndex)
	assert.Equal(t, uint64(1), got[1].BlockHeight)
	assert.Equal(t, 1, got[1].OpIndex)
	assert.Equal(t, uint64(2), got[2].BlockHeight)

	// Field round-trip on the first fill.
	want := testFill(1, 0, 0, 60)
	assert.Equal(t, want.FillID, got[0].FillID)
	assert.Equal(t, want.BlockTime, got[0].BlockTime)
	assert.Equal(t, want.PaysAssetID, got[0].PaysAssetID)
	assert.Equal(t, want.PaysAmount, got[0].PaysAmount)
	assert.Equal(t, want.ReceivesAssetID, got[0].ReceivesAssetID)
	assert.Equal(t, want.ReceivesAmount, got[0].ReceivesAmount)
}

func TestFillJournal_DuplicateFillID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	journal := NewFillJournal(pool)

	fill := testFill(1, 0, 0, 60)
	require.NoError(t, journal.InsertBulk(ctx, []*domain.FillEvent{fill}))

	err := journal.InsertBulk(ctx, []*domain.FillEvent{testFill(1, 0, 0, 60)})
	require.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestFillJournal_DuplicatePosition(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	journal := NewFillJournal(pool)

	require.NoError(t, journal.InsertBulk(ctx, []*domain.FillEvent{testFill(1, 0, 0, 60)}))

	// Same chain position under a different fill_id.
	dup := testFill(1, 0, 0, 60)
	dup.FillID = "different-id"
	err := journal.InsertBulk(ctx, []*domain.FillEvent{dup})
	require.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestFillJournal_BulkRollsBackOnDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	journal := NewFillJournal(pool)

	require.NoError(t, journal.InsertBulk(ctx, []*domain.FillEvent{testFill(1, 0, 0, 60)}))

	batch := []*domain.FillEvent{
		testFill(2, 0, 0, 120), // fresh
		testFill(1, 0, 0, 60),  // duplicate
	}
	err := journal.InsertBulk(ctx, batch)
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := journal.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1, "failed batch must not leave partial writes")
}

func TestFillJournal_GetByHeightRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	journal := NewFillJournal(pool)

	require.NoError(t, journal.InsertBulk(ctx, []*domain.FillEvent{
		testFill(1, 0, 0, 60),
		testFill(2, 0, 0, 120),
		testFill(3, 0, 0, 180),
		testFill(5, 0, 0, 300),
	}))

	got, err := journal.GetByHeightRange(ctx, 2, 3)
	require.NoError(t, err)
	require.Len(t, got, 2, "range bounds are inclusive")
	assert.Equal(t, uint64(2), got[0].BlockHeight)
	assert.Equal(t, uint64(3), got[1].BlockHeight)

	empty, err := journal.GetByHeightRange(ctx, 10, 20)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFillJournal_MaxHeight(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	journal := NewFillJournal(pool)

	height, err := journal.MaxHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), height, "empty journal reports height 0")

	require.NoError(t, journal.InsertBulk(ctx, []*domain.FillEvent{
		testFill(7, 0, 0, 420),
		testFill(3, 0, 0, 180),
	}))

	height, err = journal.MaxHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), height)
}

// testFill builds a journaled fill at the given chain position.
func testFill(height uint64, txIndex, opIndex int, blockTime int64) *domain.FillEvent {
	return &domain.FillEvent{
		FillID:          idhash.ComputeFillID(height, txIndex, opIndex),
		BlockHeight:     height,
		TxIndex:         txIndex,
		OpIndex:         opIndex,
		BlockTime:       blockTime,
		PaysAssetID:     1,
		PaysAmount:      100,
		ReceivesAssetID: 2,
		ReceivesAmount:  250,
	}
}
