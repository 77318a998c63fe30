package domain

// Transaction groups the operations applied atomically by one transaction.
type Transaction struct {
	Operations []Operation
}

// Block is one committed block as delivered by the host: a strictly
// increasing height, the block timestamp in epoch seconds, and the
// transactions in application order.
type Block struct {
	Height       uint64
	Timestamp    int64
	Transactions []Transaction
}

// AppliedOperations flattens the block's operations in application order:
// transaction order first, then operation order within each transaction.
// This is the exact sequence the block-applied notification hands to
// observers.
func (b *Block) AppliedOperations() []Operation {
	n := 0
	for i := range b.Transactions {
		n += len(b.Transactions[i].Operations)
	}
	ops := make([]Operation, 0, n)
	for i := range b.Transactions {
		ops = append(ops, b.Transactions[i].Operations...)
	}
	return ops
}
