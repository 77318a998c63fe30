package markethistory

import (
	"testing"

	"market-history-lab/internal/domain"
)

func TestExtractTradeFill_CanonicalOrientation(t *testing.T) {
	// Canonical side: pays the lower-id asset, receives the higher-id one.
	op := &domain.FillOrderOperation{
		Pays:     domain.AssetAmount{AssetID: 1, Amount: 5},
		Receives: domain.AssetAmount{AssetID: 2, Amount: 10},
	}

	fill, ok := ExtractTradeFill(op)
	if !ok {
		t.Fatal("Canonical fill should be kept")
	}
	if fill.Base.AssetID != 1 || fill.Base.Amount != 5 {
		t.Errorf("Expected base 1/5, got %d/%d", fill.Base.AssetID, fill.Base.Amount)
	}
	if fill.Quote.AssetID != 2 || fill.Quote.Amount != 10 {
		t.Errorf("Expected quote 2/10, got %d/%d", fill.Quote.AssetID, fill.Quote.Amount)
	}

	price := fill.Price()
	if price.BaseAmount != 5 || price.QuoteAmount != 10 {
		t.Errorf("Expected price 5/10, got %d/%d", price.BaseAmount, price.QuoteAmount)
	}
}

func TestExtractTradeFill_DiscardsSymmetricSide(t *testing.T) {
	// The counterparty side of the same match: pays and receives swapped.
	op := &domain.FillOrderOperation{
		Pays:     domain.AssetAmount{AssetID: 2, Amount: 10},
		Receives: domain.AssetAmount{AssetID: 1, Amount: 5},
	}

	if _, ok := ExtractTradeFill(op); ok {
		t.Error("Symmetric duplicate should be discarded")
	}
}

func TestExtractTradeFill_DiscardsSameAsset(t *testing.T) {
	op := &domain.FillOrderOperation{
		Pays:     domain.AssetAmount{AssetID: 3, Amount: 5},
		Receives: domain.AssetAmount{AssetID: 3, Amount: 5},
	}

	if _, ok := ExtractTradeFill(op); ok {
		t.Error("Same-asset fill should be discarded")
	}
}

func TestExtractTradeFill_DiscardsNonPositiveAmounts(t *testing.T) {
	tests := []struct {
		name     string
		pays     int64
		receives int64
	}{
		{"zero pays", 0, 10},
		{"zero receives", 5, 0},
		{"negative pays", -5, 10},
		{"negative receives", 5, -10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := &domain.FillOrderOperation{
				Pays:     domain.AssetAmount{AssetID: 1, Amount: tt.pays},
				Receives: domain.AssetAmount{AssetID: 2, Amount: tt.receives},
			}
			if _, ok := ExtractTradeFill(op); ok {
				t.Error("Fill with non-positive amount should be discarded")
			}
		})
	}
}

func TestExtractTradeFill_IgnoresOtherOperations(t *testing.T) {
	ops := []domain.Operation{
		&domain.TransferOperation{
			From:   1,
			To:     2,
			Amount: domain.AssetAmount{AssetID: 1, Amount: 100},
		},
		&domain.LimitOrderCreateOperation{
			SellerID:     1,
			AmountToSell: domain.AssetAmount{AssetID: 1, Amount: 100},
			MinToReceive: domain.AssetAmount{AssetID: 2, Amount: 200},
		},
		&domain.LimitOrderCancelOperation{OrderID: 7, FeePayingAccount: 1},
		&domain.WitnessCreateOperation{WitnessAccount: 3},
	}

	for _, op := range ops {
		if _, ok := ExtractTradeFill(op); ok {
			t.Errorf("Operation %T should not yield a trade", op)
		}
	}
}
