package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"market-history-lab/internal/domain"
	"market-history-lab/internal/storage"
)

type fillPosition struct {
	height  uint64
	txIndex int
	opIndex int
}

// FillJournal is the in-memory fill journal, used by tests and by binaries
// running without PostgreSQL. Fills are kept ordered by chain position.
type FillJournal struct {
	mu    sync.RWMutex
	fills []*domain.FillEvent
	byID  map[string]struct{}
	byPos map[fillPosition]struct{}
}

// Compile-time interface check.
var _ storage.FillJournal = (*FillJournal)(nil)

// NewFillJournal creates an empty fill journal.
func NewFillJournal() *FillJournal {
	return &FillJournal{
		byID:  make(map[string]struct{}),
		byPos: make(map[fillPosition]struct{}),
	}
}

// InsertBulk appends fills atomically: the whole batch is validated and
// checked for duplicates (against the journal and within the batch) before
// anything is committed.
func (j *FillJournal) InsertBulk(_ context.Context, fills []*domain.FillEvent) error {
	if len(fills) == 0 {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	seenID := make(map[string]struct{}, len(fills))
	seenPos := make(map[fillPosition]struct{}, len(fills))
	for _, f := range fills {
		if err := validateFill(f); err != nil {
			return err
		}
		pos := fillPosition{height: f.BlockHeight, txIndex: f.TxIndex, opIndex: f.OpIndex}
		if _, ok := j.byID[f.FillID]; ok {
			return fmt.Errorf("%w: fill %s", storage.ErrDuplicateKey, f.FillID)
		}
		if _, ok := j.byPos[pos]; ok {
			return fmt.Errorf("%w: fill position %d/%d/%d", storage.ErrDuplicateKey, pos.height, pos.txIndex, pos.opIndex)
		}
		if _, ok := seenID[f.FillID]; ok {
			return fmt.Errorf("%w: fill %s repeated within batch", storage.ErrDuplicateKey, f.FillID)
		}
		if _, ok := seenPos[pos]; ok {
			return fmt.Errorf("%w: fill position %d/%d/%d repeated within batch", storage.ErrDuplicateKey, pos.height, pos.txIndex, pos.opIndex)
		}
		seenID[f.FillID] = struct{}{}
		seenPos[pos] = struct{}{}
	}

	for _, f := range fills {
		c := *f
		j.fills = append(j.fills, &c)
		j.byID[f.FillID] = struct{}{}
		j.byPos[fillPosition{height: f.BlockHeight, txIndex: f.TxIndex, opIndex: f.OpIndex}] = struct{}{}
	}
	sort.Slice(j.fills, func(a, b int) bool {
		return lessPosition(j.fills[a], j.fills[b])
	})
	return nil
}

// GetByHeightRange retrieves fills with fromHeight <= BlockHeight <= toHeight,
// ordered by (height, tx_index, op_index) ASC.
func (j *FillJournal) GetByHeightRange(_ context.Context, fromHeight, toHeight uint64) ([]*domain.FillEvent, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var out []*domain.FillEvent
	for _, f := range j.fills {
		if f.BlockHeight < fromHeight || f.BlockHeight > toHeight {
			continue
		}
		c := *f
		out = append(out, &c)
	}
	return out, nil
}

// GetAll retrieves every journaled fill in chain-position order.
func (j *FillJournal) GetAll(_ context.Context) ([]*domain.FillEvent, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]*domain.FillEvent, 0, len(j.fills))
	for _, f := range j.fills {
		c := *f
		out = append(out, &c)
	}
	return out, nil
}

// MaxHeight returns the highest journaled block height, or 0 when empty.
func (j *FillJournal) MaxHeight(_ context.Context) (uint64, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if len(j.fills) == 0 {
		return 0, nil
	}
	return j.fills[len(j.fills)-1].BlockHeight, nil
}

func lessPosition(a, b *domain.FillEvent) bool {
	if a.BlockHeight != b.BlockHeight {
		return a.BlockHeight < b.BlockHeight
	}
	if a.TxIndex != b.TxIndex {
		return a.TxIndex < b.TxIndex
	}
	return a.OpIndex < b.OpIndex
}

func validateFill(f *domain.FillEvent) error {
	if f == nil {
		return fmt.Errorf("%w: fill is nil", storage.ErrInvalidInput)
	}
	if f.FillID == "" {
		return fmt.Errorf("%w: fill_id is required", storage.ErrInvalidInput)
	}
	if f.TxIndex < 0 || f.OpIndex < 0 {
		return fmt.Errorf("%w: negative position index", storage.ErrInvalidInput)
	}
	if f.BlockTime < 0 {
		return fmt.Errorf("%w: negative block time", storage.ErrInvalidInput)
	}
	if f.PaysAmount <= 0 || f.ReceivesAmount <= 0 {
		return fmt.Errorf("%w: fill amounts must be positive", storage.ErrInvalidInput)
	}
	return nil
}
