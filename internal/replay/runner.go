package replay

import (
	"context"
	"fmt"

	"market-history-lab/internal/chain"
	"market-history-lab/internal/domain"
	"market-history-lab/internal/storage"
)

// Result summarizes one replay pass.
type Result struct {
	Blocks int
	Fills  int
}

// Runner loads fills from the journal and replays the rebuilt blocks through
// an observer in deterministic order.
type Runner struct {
	journal storage.FillJournal
}

// NewRunner creates a replay runner over a fill journal.
func NewRunner(journal storage.FillJournal) *Runner {
	return &Runner{journal: journal}
}

// Run replays the whole journal through the observer.
func (r *Runner) Run(ctx context.Context, obs chain.Observer) (*Result, error) {
	fills, err := r.journal.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	return r.replay(ctx, fills, obs)
}

// RunRange replays journaled fills with fromHeight <= height <= toHeight.
func (r *Runner) RunRange(ctx context.Context, fromHeight, toHeight uint64, obs chain.Observer) (*Result, error) {
	fills, err := r.journal.GetByHeightRange(ctx, fromHeight, toHeight)
	if err != nil {
		return nil, fmt.Errorf("load journal range [%d, %d]: %w", fromHeight, toHeight, err)
	}
	return r.replay(ctx, fills, obs)
}

func (r *Runner) replay(ctx context.Context, fills []*domain.FillEvent, obs chain.Observer) (*Result, error) {
	if err := ValidateFillOrdering(fills); err != nil {
		return nil, err
	}
	blocks := GroupBlocks(fills)
	for _, b := range blocks {
		if err := obs.OnBlockApplied(ctx, b); err != nil {
			return nil, fmt.Errorf("replay block %d: %w", b.Height, err)
		}
	}
	return &Result{Blocks: len(blocks), Fills: len(fills)}, nil
}

// GroupBlocks rebuilds committed blocks from journaled fills, which must be
// in chain-position order. Only fill operations were journaled, so rebuilt
// transactions carry just those; application order within each block is
// preserved by the grouping.
func GroupBlocks(fills []*domain.FillEvent) []*domain.Block {
	var blocks []*domain.Block
	var cur *domain.Block
	curTx := -1

	for _, f := range fills {
		if cur == nil || f.BlockHeight != cur.Height {
			cur = &domain.Block{Height: f.BlockHeight, Timestamp: f.BlockTime}
			blocks = append(blocks, cur)
			curTx = -1
		}
		if f.TxIndex != curTx {
			cur.Transactions = append(cur.Transactions, domain.Transaction{})
			curTx = f.TxIndex
		}
		tx := &cur.Transactions[len(cur.Transactions)-1]
		tx.Operations = append(tx.Operations, f.ToOperation())
	}
	return blocks
}
