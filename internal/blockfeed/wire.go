package blockfeed

import (
	"encoding/json"
	"fmt"

	"market-history-lab/internal/domain"
)

const (
	jsonRPCVersion        = "2.0"
	methodSubscribeBlocks = "subscribe_blocks"
	methodBlockApplied    = "block_applied"
)

// Operation type tags on the wire.
const (
	opTypeFillOrder        = "fill_order"
	opTypeLimitOrderCreate = "limit_order_create"
	opTypeLimitOrderCancel = "limit_order_cancel"
	opTypeTransfer         = "transfer"
	opTypeWitnessCreate    = "witness_create"
	opTypeWitnessWithdraw  = "witness_withdraw_pay"
)

// JSON-RPC message frames

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcSubscribeResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      uint64    `json:"id"`
	Result  int64     `json:"result"` // subscription ID
	Error   *rpcError `json:"error,omitempty"`
}

type rpcNotification struct {
	JSONRPC string              `json:"jsonrpc"`
	Method  string              `json:"method"`
	Params  *blockAppliedParams `json:"params"`
}

type blockAppliedParams struct {
	Subscription int64     `json:"subscription"`
	Result       wireBlock `json:"result"`
}

type subscribeParams struct {
	StartHeight uint64 `json:"start_height"`
}

// Block payload

type wireBlock struct {
	Height       uint64            `json:"height"`
	Timestamp    int64             `json:"timestamp"`
	Transactions []wireTransaction `json:"transactions"`
}

type wireTransaction struct {
	Operations []wireOperation `json:"operations"`
}

// wireOperation is a tagged envelope: Type selects the payload struct Data
// decodes into.
type wireOperation struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type wireAmount struct {
	AssetID uint64 `json:"asset_id"`
	Amount  int64  `json:"amount"`
}

func (a wireAmount) toDomain() domain.AssetAmount {
	return domain.AssetAmount{AssetID: domain.AssetID(a.AssetID), Amount: a.Amount}
}

type wireFillOrder struct {
	OrderID   uint64     `json:"order_id"`
	AccountID uint64     `json:"account_id"`
	Pays      wireAmount `json:"pays"`
	Receives  wireAmount `json:"receives"`
	Fee       wireAmount `json:"fee"`
}

type wireLimitOrderCreate struct {
	SellerID     uint64     `json:"seller_id"`
	AmountToSell wireAmount `json:"amount_to_sell"`
	MinToReceive wireAmount `json:"min_to_receive"`
	Fee          wireAmount `json:"fee"`
}

type wireLimitOrderCancel struct {
	OrderID          uint64     `json:"order_id"`
	FeePayingAccount uint64     `json:"fee_paying_account"`
	Fee              wireAmount `json:"fee"`
}

type wireTransfer struct {
	From   uint64     `json:"from"`
	To     uint64     `json:"to"`
	Amount wireAmount `json:"amount"`
	Fee    wireAmount `json:"fee"`
}

type wireWitnessCreate struct {
	WitnessAccount  uint64 `json:"witness_account"`
	URL             string `json:"url"`
	BlockSigningKey string `json:"block_signing_key"`
}

type wireWitnessWithdrawPay struct {
	WitnessAccount uint64     `json:"witness_account"`
	To             uint64     `json:"to"`
	Amount         wireAmount `json:"amount"`
}

// decodeBlock converts a wire block into the domain form, rejecting unknown
// operation types, malformed payloads and witness keys that are not valid
// ed25519 points.
func decodeBlock(wb *wireBlock) (*domain.Block, error) {
	block := &domain.Block{
		Height:       wb.Height,
		Timestamp:    wb.Timestamp,
		Transactions: make([]domain.Transaction, 0, len(wb.Transactions)),
	}
	for ti := range wb.Transactions {
		wt := &wb.Transactions[ti]
		tx := domain.Transaction{Operations: make([]domain.Operation, 0, len(wt.Operations))}
		for oi, wo := range wt.Operations {
			op, err := decodeOperation(wo)
			if err != nil {
				return nil, fmt.Errorf("tx %d op %d: %w", ti, oi, err)
			}
			tx.Operations = append(tx.Operations, op)
		}
		block.Transactions = append(block.Transactions, tx)
	}
	return block, nil
}

func decodeOperation(wo wireOperation) (domain.Operation, error) {
	switch wo.Type {
	case opTypeFillOrder:
		var p wireFillOrder
		if err := json.Unmarshal(wo.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", wo.Type, err)
		}
		return &domain.FillOrderOperation{
			OrderID:   p.OrderID,
			AccountID: domain.AccountID(p.AccountID),
			Pays:      p.Pays.toDomain(),
			Receives:  p.Receives.toDomain(),
			Fee:       p.Fee.toDomain(),
		}, nil

	case opTypeLimitOrderCreate:
		var p wireLimitOrderCreate
		if err := json.Unmarshal(wo.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", wo.Type, err)
		}
		return &domain.LimitOrderCreateOperation{
			SellerID:     domain.AccountID(p.SellerID),
			AmountToSell: p.AmountToSell.toDomain(),
			MinToReceive: p.MinToReceive.toDomain(),
			Fee:          p.Fee.toDomain(),
		}, nil

	case opTypeLimitOrderCancel:
		var p wireLimitOrderCancel
		if err := json.Unmarshal(wo.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", wo.Type, err)
		}
		return &domain.LimitOrderCancelOperation{
			OrderID:          p.OrderID,
			FeePayingAccount: domain.AccountID(p.FeePayingAccount),
			Fee:              p.Fee.toDomain(),
		}, nil

	case opTypeTransfer:
		var p wireTransfer
		if err := json.Unmarshal(wo.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", wo.Type, err)
		}
		return &domain.TransferOperation{
			From:   domain.AccountID(p.From),
			To:     domain.AccountID(p.To),
			Amount: p.Amount.toDomain(),
			Fee:    p.Fee.toDomain(),
		}, nil

	case opTypeWitnessCreate:
		var p wireWitnessCreate
		if err := json.Unmarshal(wo.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", wo.Type, err)
		}
		if _, err := domain.ParseSigningKey(p.BlockSigningKey); err != nil {
			return nil, fmt.Errorf("%s signing key: %w", wo.Type, err)
		}
		return &domain.WitnessCreateOperation{
			WitnessAccount:  domain.AccountID(p.WitnessAccount),
			URL:             p.URL,
			BlockSigningKey: p.BlockSigningKey,
		}, nil

	case opTypeWitnessWithdraw:
		var p wireWitnessWithdrawPay
		if err := json.Unmarshal(wo.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", wo.Type, err)
		}
		return &domain.WitnessWithdrawPayOperation{
			WitnessAccount: domain.AccountID(p.WitnessAccount),
			To:             domain.AccountID(p.To),
			Amount:         p.Amount.toDomain(),
		}, nil

	default:
		return nil, fmt.Errorf("unknown operation type %q", wo.Type)
	}
}
