package domain

// FillEvent is the journaled form of one fill operation: its position in the
// chain plus the aggregation-relevant amounts. Both symmetric sides of a
// match are journaled; deduplication happens at aggregation time, so a
// replay of the journal walks the same filter path as live processing.
type FillEvent struct {
	FillID      string // deterministic position hash, see idhash.ComputeFillID
	BlockHeight uint64
	TxIndex     int   // transaction position within the block
	OpIndex     int   // operation position within the transaction
	BlockTime   int64 // block timestamp, epoch seconds

	PaysAssetID     AssetID
	PaysAmount      int64
	ReceivesAssetID AssetID
	ReceivesAmount  int64
}

// ToOperation reconstructs the fill operation this event was journaled from.
// Order, account and fee fields are not journaled because aggregation
// ignores them; they come back as zero values.
func (f *FillEvent) ToOperation() *FillOrderOperation {
	return &FillOrderOperation{
		Pays:     AssetAmount{AssetID: f.PaysAssetID, Amount: f.PaysAmount},
		Receives: AssetAmount{AssetID: f.ReceivesAssetID, Amount: f.ReceivesAmount},
	}
}
