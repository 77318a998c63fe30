package domain

// AssetID identifies an asset on the chain. Ids are assigned once at asset
// creation and never change, so their numeric order is stable. The market
// history dedup rule (keep the fill whose pays asset id is below its
// receives asset id) relies on that stability.
type AssetID uint64

// AccountID identifies an account on the chain.
type AccountID uint64

// AssetAmount is an integer quantity of one asset, in asset-precision units.
type AssetAmount struct {
	AssetID AssetID
	Amount  int64
}
