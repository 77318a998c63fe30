package blockfeed

import (
	"bytes"
	"encoding/json"
	"testing"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"

	"market-history-lab/internal/domain"
)

func TestDecodeBlock_AllOperationTypes(t *testing.T) {
	key := validSigningKey(t)

	wb := &wireBlock{
		Height:    42,
		Timestamp: 1700000000,
		Transactions: []wireTransaction{
			{Operations: []wireOperation{
				mustEnvelope(t, opTypeFillOrder, wireFillOrder{
					OrderID:   9,
					AccountID: 3,
					Pays:      wireAmount{AssetID: 1, Amount: 100},
					Receives:  wireAmount{AssetID: 2, Amount: 250},
					Fee:       wireAmount{AssetID: 1, Amount: 1},
				}),
				mustEnvelope(t, opTypeLimitOrderCreate, wireLimitOrderCreate{
					SellerID:     3,
					AmountToSell: wireAmount{AssetID: 1, Amount: 500},
					MinToReceive: wireAmount{AssetID: 2, Amount: 1000},
				}),
				mustEnvelope(t, opTypeLimitOrderCancel, wireLimitOrderCancel{
					OrderID:          9,
					FeePayingAccount: 3,
				}),
			}},
			{Operations: []wireOperation{
				mustEnvelope(t, opTypeTransfer, wireTransfer{
					From:   3,
					To:     4,
					Amount: wireAmount{AssetID: 2, Amount: 77},
				}),
				mustEnvelope(t, opTypeWitnessCreate, wireWitnessCreate{
					WitnessAccount:  5,
					URL:             "https://witness.example",
					BlockSigningKey: key,
				}),
				mustEnvelope(t, opTypeWitnessWithdraw, wireWitnessWithdrawPay{
					WitnessAccount: 5,
					To:             6,
					Amount:         wireAmount{AssetID: 1, Amount: 9000},
				}),
			}},
		},
	}

	block, err := decodeBlock(wb)
	require.NoError(t, err)
	require.Equal(t, uint64(42), block.Height)
	require.Equal(t, int64(1700000000), block.Timestamp)
	require.Len(t, block.Transactions, 2)
	require.Len(t, block.Transactions[0].Operations, 3)
	require.Len(t, block.Transactions[1].Operations, 3)

	fill, ok := block.Transactions[0].Operations[0].(*domain.FillOrderOperation)
	require.True(t, ok, "first operation should be a fill")
	require.Equal(t, uint64(9), fill.OrderID)
	require.Equal(t, domain.AccountID(3), fill.AccountID)
	require.Equal(t, domain.AssetAmount{AssetID: 1, Amount: 100}, fill.Pays)
	require.Equal(t, domain.AssetAmount{AssetID: 2, Amount: 250}, fill.Receives)

	create, ok := block.Transactions[0].Operations[1].(*domain.LimitOrderCreateOperation)
	require.True(t, ok)
	require.Equal(t, domain.AssetAmount{AssetID: 1, Amount: 500}, create.AmountToSell)

	cancel, ok := block.Transactions[0].Operations[2].(*domain.LimitOrderCancelOperation)
	require.True(t, ok)
	require.Equal(t, uint64(9), cancel.OrderID)

	transfer, ok := block.Transactions[1].Operations[0].(*domain.TransferOperation)
	require.True(t, ok)
	require.Equal(t, domain.AccountID(4), transfer.To)

	witness, ok := block.Transactions[1].Operations[1].(*domain.WitnessCreateOperation)
	require.True(t, ok)
	require.Equal(t, key, witness.BlockSigningKey)

	withdraw, ok := block.Transactions[1].Operations[2].(*domain.WitnessWithdrawPayOperation)
	require.True(t, ok)
	require.Equal(t, int64(9000), withdraw.Amount.Amount)
}

func TestDecodeBlock_UnknownOperationType(t *testing.T) {
	wb := &wireBlock{
		Height:    1,
		Timestamp: 60,
		Transactions: []wireTransaction{
			{Operations: []wireOperation{{Type: "asset_issue", Data: json.RawMessage(`{}`)}}},
		},
	}

	_, err := decodeBlock(wb)
	require.Error(t, err)
	require.Contains(t, err.Error(), `unknown operation type "asset_issue"`)
}

func TestDecodeBlock_MalformedPayload(t *testing.T) {
	wb := &wireBlock{
		Height:    1,
		Timestamp: 60,
		Transactions: []wireTransaction{
			{Operations: []wireOperation{{Type: opTypeFillOrder, Data: json.RawMessage(`{"pays":"zzz"}`)}}},
		},
	}

	_, err := decodeBlock(wb)
	require.Error(t, err)
	require.Contains(t, err.Error(), "tx 0 op 0")
}

func TestDecodeBlock_RejectsInvalidWitnessKey(t *testing.T) {
	short := base58.Encode([]byte{1, 2, 3})
	wb := &wireBlock{
		Height:    1,
		Timestamp: 60,
		Transactions: []wireTransaction{
			{Operations: []wireOperation{
				mustEnvelope(t, opTypeWitnessCreate, wireWitnessCreate{
					WitnessAccount:  5,
					BlockSigningKey: short,
				}),
			}},
		},
	}

	_, err := decodeBlock(wb)
	require.Error(t, err)
	require.Contains(t, err.Error(), "signing key")
}

// mustEnvelope wraps a payload struct into a tagged wire operation.
func mustEnvelope(t *testing.T, opType string, payload interface{}) wireOperation {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return wireOperation{Type: opType, Data: data}
}

// validSigningKey derives a well-formed ed25519 public point and encodes it
// the way witness registrations carry it.
func validSigningKey(t *testing.T) string {
	t.Helper()
	seed := bytes.Repeat([]byte{7}, 32)
	scalar, err := edwards25519.NewScalar().SetBytesWithClamping(seed)
	require.NoError(t, err)
	point := new(edwards25519.Point).ScalarBaseMult(scalar)
	return base58.Encode(point.Bytes())
}
