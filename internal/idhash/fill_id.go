package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeFillID computes a deterministic fill_id using SHA256.
// Formula: SHA256(block_height|tx_index|op_index)
// Returns hex-encoded hash (64 characters).
//
// The id depends only on the fill's position in the chain, so journaling the
// same block twice produces the same ids and the journal's duplicate check
// makes re-ingestion idempotent.
func ComputeFillID(blockHeight uint64, txIndex, opIndex int) string {
	data := fmt.Sprintf("%d|%d|%d", blockHeight, txIndex, opIndex)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
