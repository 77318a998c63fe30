package replay

import (
	"context"
	"testing"

	"market-history-lab/internal/domain"
	"market-history-lab/internal/idhash"
	"market-history-lab/internal/storage/memory"
)

// collectObserver records the blocks it receives.
type collectObserver struct {
	blocks []*domain.Block
}

func (o *collectObserver) OnBlockApplied(_ context.Context, b *domain.Block) error {
	o.blocks = append(o.blocks, b)
	return nil
}

func journalFill(height uint64, txIndex, opIndex int, blockTime int64, pays, receives domain.AssetAmount) *domain.FillEvent {
	return &domain.FillEvent{
		FillID:          idhash.ComputeFillID(height, txIndex, opIndex),
		BlockHeight:     height,
		TxIndex:         txIndex,
		OpIndex:         opIndex,
		BlockTime:       blockTime,
		PaysAssetID:     pays.AssetID,
		PaysAmount:      pays.Amount,
		ReceivesAssetID: receives.AssetID,
		ReceivesAmount:  receives.Amount,
	}
}

func TestRunner_RebuildsBlocks(t *testing.T) {
	ctx := context.Background()
	journal := memory.NewFillJournal()

	a12 := domain.AssetAmount{AssetID: 1, Amount: 5}
	a21 := domain.AssetAmount{AssetID: 2, Amount: 10}

	fills := []*domain.FillEvent{
		// Block 1: two transactions, second one holds two fills.
		journalFill(1, 0, 0, 60, a12, a21),
		journalFill(1, 2, 1, 60, a21, a12),
		journalFill(1, 2, 3, 60, a12, a21),
		// Block 3: one fill (block 2 had none and was never journaled).
		journalFill(3, 0, 0, 185, a12, a21),
	}
	if err := journal.InsertBulk(ctx, fills); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	obs := &collectObserver{}
	result, err := NewRunner(journal).Run(ctx, obs)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Blocks != 2 || result.Fills != 4 {
		t.Errorf("Expected 2 blocks / 4 fills, got %d/%d", result.Blocks, result.Fills)
	}
	if len(obs.blocks) != 2 {
		t.Fatalf("Expected 2 rebuilt blocks, got %d", len(obs.blocks))
	}

	first := obs.blocks[0]
	if first.Height != 1 || first.Timestamp != 60 {
		t.Errorf("Block 0: expected height 1 time 60, got %d/%d", first.Height, first.Timestamp)
	}
	if len(first.Transactions) != 2 {
		t.Fatalf("Block 0: expected 2 transactions, got %d", len(first.Transactions))
	}
	if len(first.Transactions[0].Operations) != 1 || len(first.Transactions[1].Operations) != 2 {
		t.Errorf("Block 0: expected op counts [1 2], got [%d %d]",
			len(first.Transactions[0].Operations), len(first.Transactions[1].Operations))
	}

	second := obs.blocks[1]
	if second.Height != 3 || second.Timestamp != 185 {
		t.Errorf("Block 1: expected height 3 time 185, got %d/%d", second.Height, second.Timestamp)
	}

	// Operations come back as fill operations with the journaled legs.
	op, ok := first.Transactions[0].Operations[0].(*domain.FillOrderOperation)
	if !ok {
		t.Fatalf("Expected fill operation, got %T", first.Transactions[0].Operations[0])
	}
	if op.Pays != a12 || op.Receives != a21 {
		t.Errorf("Expected pays %+v receives %+v, got %+v/%+v", a12, a21, op.Pays, op.Receives)
	}
}

func TestRunner_RunRange(t *testing.T) {
	ctx := context.Background()
	journal := memory.NewFillJournal()

	a12 := domain.AssetAmount{AssetID: 1, Amount: 2}
	a21 := domain.AssetAmount{AssetID: 2, Amount: 4}

	fills := []*domain.FillEvent{
		journalFill(1, 0, 0, 60, a12, a21),
		journalFill(2, 0, 0, 120, a12, a21),
		journalFill(3, 0, 0, 180, a12, a21),
		journalFill(4, 0, 0, 240, a12, a21),
	}
	if err := journal.InsertBulk(ctx, fills); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	obs := &collectObserver{}
	result, err := NewRunner(journal).RunRange(ctx, 2, 3, obs)
	if err != nil {
		t.Fatalf("RunRange failed: %v", err)
	}

	if result.Blocks != 2 {
		t.Fatalf("Expected 2 blocks in range, got %d", result.Blocks)
	}
	if obs.blocks[0].Height != 2 || obs.blocks[1].Height != 3 {
		t.Errorf("Expected heights [2 3], got [%d %d]", obs.blocks[0].Height, obs.blocks[1].Height)
	}
}

func TestRunner_EmptyJournal(t *testing.T) {
	ctx := context.Background()
	journal := memory.NewFillJournal()

	obs := &collectObserver{}
	result, err := NewRunner(journal).Run(ctx, obs)
	if err != nil {
		t.Fatalf("Empty replay should not error: %v", err)
	}
	if result.Blocks != 0 || result.Fills != 0 {
		t.Errorf("Expected empty result, got %+v", result)
	}
}

func TestGroupBlocks_PreservesOperationOrder(t *testing.T) {
	a12 := domain.AssetAmount{AssetID: 1, Amount: 1}
	a21 := domain.AssetAmount{AssetID: 2, Amount: 1}

	fills := []*domain.FillEvent{
		journalFill(5, 0, 0, 300, a12, a21),
		journalFill(5, 0, 1, 300, a21, a12),
		journalFill(5, 1, 0, 300, a12, a21),
	}

	blocks := GroupBlocks(fills)
	if len(blocks) != 1 {
		t.Fatalf("Expected 1 block, got %d", len(blocks))
	}

	ops := blocks[0].AppliedOperations()
	if len(ops) != 3 {
		t.Fatalf("Expected 3 operations, got %d", len(ops))
	}
	first := ops[0].(*domain.FillOrderOperation)
	secondOp := ops[1].(*domain.FillOrderOperation)
	if first.Pays.AssetID != 1 || secondOp.Pays.AssetID != 2 {
		t.Error("Operations not in journal order")
	}
}
