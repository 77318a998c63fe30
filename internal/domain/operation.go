package domain

// Operation is one state transition applied by a block. The variant set is
// closed: concrete types mark themselves via isOperation, and consumers
// dispatch with a type switch.
type Operation interface {
	isOperation()
}

// FillOrderOperation records one side of a matched trade: the order owner
// pays one asset and receives the other. Every match emits two of these,
// one per counterparty, with pays and receives swapped.
type FillOrderOperation struct {
	OrderID   uint64
	AccountID AccountID
	Pays      AssetAmount
	Receives  AssetAmount
	Fee       AssetAmount
}

// LimitOrderCreateOperation places a limit order on the book.
type LimitOrderCreateOperation struct {
	SellerID     AccountID
	AmountToSell AssetAmount
	MinToReceive AssetAmount
	Fee          AssetAmount
}

// LimitOrderCancelOperation cancels an open limit order.
type LimitOrderCancelOperation struct {
	OrderID          uint64
	FeePayingAccount AccountID
	Fee              AssetAmount
}

// TransferOperation moves an amount between two accounts.
type TransferOperation struct {
	From   AccountID
	To     AccountID
	Amount AssetAmount
	Fee    AssetAmount
}

// WitnessCreateOperation registers a new block producer. It belongs to the
// witness evaluator framework; market history carries it through untouched.
type WitnessCreateOperation struct {
	WitnessAccount  AccountID
	URL             string
	BlockSigningKey string // base58 ed25519 point, see ParseSigningKey
}

// WitnessWithdrawPayOperation pays out a block producer's accrued fees.
type WitnessWithdrawPayOperation struct {
	WitnessAccount AccountID
	To             AccountID
	Amount         AssetAmount
}

func (*FillOrderOperation) isOperation()          {}
func (*LimitOrderCreateOperation) isOperation()   {}
func (*LimitOrderCancelOperation) isOperation()   {}
func (*TransferOperation) isOperation()           {}
func (*WitnessCreateOperation) isOperation()      {}
func (*WitnessWithdrawPayOperation) isOperation() {}

var (
	_ Operation = (*FillOrderOperation)(nil)
	_ Operation = (*LimitOrderCreateOperation)(nil)
	_ Operation = (*LimitOrderCancelOperation)(nil)
	_ Operation = (*TransferOperation)(nil)
	_ Operation = (*WitnessCreateOperation)(nil)
	_ Operation = (*WitnessWithdrawPayOperation)(nil)
)
