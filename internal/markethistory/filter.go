package markethistory

import "market-history-lab/internal/domain"

// TradeFill is one deduplicated, canonically oriented trade: the pair's
// lower-id asset leg as Base and the higher-id leg as Quote.
type TradeFill struct {
	Base  domain.AssetAmount
	Quote domain.AssetAmount
}

// Price returns the trade price as the base/quote amount ratio.
func (t TradeFill) Price() domain.Price {
	return domain.Price{BaseAmount: t.Base.Amount, QuoteAmount: t.Quote.Amount}
}

// ExtractTradeFill filters one applied operation down to an aggregatable
// trade. Every matched order emits two symmetric fill operations, one per
// counterparty with pays and receives swapped; exactly one of them has
// pays.AssetID < receives.AssetID, and only that one is kept, so each trade
// is counted once. Non-fill operations, the symmetric duplicate, same-asset
// fills and non-positive amounts all report false.
func ExtractTradeFill(op domain.Operation) (TradeFill, bool) {
	fill, ok := op.(*domain.FillOrderOperation)
	if !ok {
		return TradeFill{}, false
	}
	if fill.Pays.AssetID >= fill.Receives.AssetID {
		return TradeFill{}, false
	}
	if fill.Pays.Amount <= 0 || fill.Receives.Amount <= 0 {
		return TradeFill{}, false
	}
	return TradeFill{Base: fill.Pays, Quote: fill.Receives}, true
}
