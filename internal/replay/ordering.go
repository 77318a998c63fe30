// Package replay rebuilds committed blocks from the fill journal and feeds
// them back through block observers in the exact order the chain applied
// them, so bucket state can be reconstructed deterministically.
package replay

import (
	"fmt"
	"sort"

	"market-history-lab/internal/domain"
)

// SortFills orders fills by (height ASC, tx_index ASC, op_index ASC), the
// order the chain applied them in.
func SortFills(fills []*domain.FillEvent) {
	sort.Slice(fills, func(i, j int) bool {
		return compareFills(fills[i], fills[j]) < 0
	})
}

// ValidateFillOrdering checks that fills are in strictly ascending chain
// position. Positions are unique in the journal, so an equal neighbor is a
// duplicate and just as invalid as a regression.
func ValidateFillOrdering(fills []*domain.FillEvent) error {
	for i := 1; i < len(fills); i++ {
		if compareFills(fills[i-1], fills[i]) >= 0 {
			return fmt.Errorf("%w: position %d/%d/%d not after %d/%d/%d",
				ErrInvalidOrdering,
				fills[i].BlockHeight, fills[i].TxIndex, fills[i].OpIndex,
				fills[i-1].BlockHeight, fills[i-1].TxIndex, fills[i-1].OpIndex)
		}
	}
	return nil
}

// compareFills returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (height ASC, tx_index ASC, op_index ASC).
func compareFills(a, b *domain.FillEvent) int {
	if a.BlockHeight != b.BlockHeight {
		if a.BlockHeight < b.BlockHeight {
			return -1
		}
		return 1
	}
	if a.TxIndex != b.TxIndex {
		if a.TxIndex < b.TxIndex {
			return -1
		}
		return 1
	}
	if a.OpIndex != b.OpIndex {
		if a.OpIndex < b.OpIndex {
			return -1
		}
		return 1
	}
	return 0
}
