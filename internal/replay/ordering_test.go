package replay

import (
	"errors"
	"testing"

	"market-history-lab/internal/domain"
)

func fillAt(height uint64, txIndex, opIndex int) *domain.FillEvent {
	return &domain.FillEvent{
		FillID:          "f",
		BlockHeight:     height,
		TxIndex:         txIndex,
		OpIndex:         opIndex,
		BlockTime:       int64(height) * 60,
		PaysAssetID:     1,
		PaysAmount:      1,
		ReceivesAssetID: 2,
		ReceivesAmount:  1,
	}
}

func TestSortFills(t *testing.T) {
	fills := []*domain.FillEvent{
		fillAt(3, 0, 0),
		fillAt(1, 1, 0),
		fillAt(1, 0, 2),
		fillAt(1, 0, 1),
		fillAt(2, 0, 0),
	}

	SortFills(fills)

	want := [][3]int{{1, 0, 1}, {1, 0, 2}, {1, 1, 0}, {2, 0, 0}, {3, 0, 0}}
	for i, w := range want {
		f := fills[i]
		if f.BlockHeight != uint64(w[0]) || f.TxIndex != w[1] || f.OpIndex != w[2] {
			t.Errorf("Fill %d: expected %v, got %d/%d/%d", i, w, f.BlockHeight, f.TxIndex, f.OpIndex)
		}
	}

	if err := ValidateFillOrdering(fills); err != nil {
		t.Errorf("Sorted fills should validate: %v", err)
	}
}

func TestValidateFillOrdering_Regression(t *testing.T) {
	fills := []*domain.FillEvent{
		fillAt(2, 0, 0),
		fillAt(1, 0, 0),
	}

	if err := ValidateFillOrdering(fills); !errors.Is(err, ErrInvalidOrdering) {
		t.Errorf("Expected ErrInvalidOrdering, got %v", err)
	}
}

func TestValidateFillOrdering_DuplicatePosition(t *testing.T) {
	fills := []*domain.FillEvent{
		fillAt(1, 0, 0),
		fillAt(1, 0, 0),
	}

	if err := ValidateFillOrdering(fills); !errors.Is(err, ErrInvalidOrdering) {
		t.Errorf("Duplicate position should be invalid, got %v", err)
	}
}

func TestValidateFillOrdering_EmptyAndSingle(t *testing.T) {
	if err := ValidateFillOrdering(nil); err != nil {
		t.Errorf("Empty slice should validate: %v", err)
	}
	if err := ValidateFillOrdering([]*domain.FillEvent{fillAt(1, 0, 0)}); err != nil {
		t.Errorf("Single fill should validate: %v", err)
	}
}
