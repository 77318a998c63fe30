package chain

import (
	"context"
	"errors"
	"fmt"

	"market-history-lab/internal/domain"
	"market-history-lab/internal/idhash"
	"market-history-lab/internal/observability"
	"market-history-lab/internal/storage"
)

// Recorder journals every fill operation of each committed block. Both
// symmetric sides of a match are journaled with their (height, tx, op)
// position, so a journal replay walks the exact operation stream the live
// chain produced, dedup filter included.
type Recorder struct {
	journal storage.FillJournal
}

// NewRecorder creates a Recorder writing to the given journal.
func NewRecorder(journal storage.FillJournal) *Recorder {
	return &Recorder{journal: journal}
}

// OnBlockApplied extracts and journals the block's fill operations as one
// atomic batch. A duplicate-key result means the block was already
// journaled (a re-applied block) and is treated as success.
// Implements Observer.
func (r *Recorder) OnBlockApplied(ctx context.Context, block *domain.Block) error {
	var fills []*domain.FillEvent
	for txIdx := range block.Transactions {
		for opIdx, op := range block.Transactions[txIdx].Operations {
			fill, ok := op.(*domain.FillOrderOperation)
			if !ok {
				continue
			}
			fills = append(fills, &domain.FillEvent{
				FillID:          idhash.ComputeFillID(block.Height, txIdx, opIdx),
				BlockHeight:     block.Height,
				TxIndex:         txIdx,
				OpIndex:         opIdx,
				BlockTime:       block.Timestamp,
				PaysAssetID:     fill.Pays.AssetID,
				PaysAmount:      fill.Pays.Amount,
				ReceivesAssetID: fill.Receives.AssetID,
				ReceivesAmount:  fill.Receives.Amount,
			})
		}
	}
	if len(fills) == 0 {
		return nil
	}

	if err := r.journal.InsertBulk(ctx, fills); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil
		}
		return fmt.Errorf("journal %d fills at height %d: %w", len(fills), block.Height, err)
	}
	observability.RecordFillsJournaled(len(fills))
	return nil
}

// Ensure Recorder implements Observer
var _ Observer = (*Recorder)(nil)
