package domain

// Common bucket resolutions, in seconds.
const (
	BucketMinute     uint32 = 60
	BucketFiveMinute uint32 = 300
	BucketHour       uint32 = 3600
	BucketDay        uint32 = 86400
)

// BucketKey identifies one aggregation bucket: a trading pair in canonical
// orientation (Base < Quote), a resolution, and the interval start.
// Keys order lexicographically by (Base, Quote, BucketSeconds, OpenTime),
// which makes every pair/resolution group a contiguous, open-time-sorted
// range; eviction depends on that.
type BucketKey struct {
	Base          AssetID
	Quote         AssetID
	BucketSeconds uint32
	OpenTime      int64
}

// Cmp orders keys lexicographically by (Base, Quote, BucketSeconds,
// OpenTime). Returns -1, 0 or 1.
func (k BucketKey) Cmp(o BucketKey) int {
	if k.Base != o.Base {
		if k.Base < o.Base {
			return -1
		}
		return 1
	}
	if k.Quote != o.Quote {
		if k.Quote < o.Quote {
			return -1
		}
		return 1
	}
	if k.BucketSeconds != o.BucketSeconds {
		if k.BucketSeconds < o.BucketSeconds {
			return -1
		}
		return 1
	}
	if k.OpenTime != o.OpenTime {
		if k.OpenTime < o.OpenTime {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether k orders before o.
func (k BucketKey) Less(o BucketKey) bool {
	return k.Cmp(o) < 0
}

// SameSeries reports whether o addresses the same pair and resolution,
// ignoring the interval start.
func (k BucketKey) SameSeries(o BucketKey) bool {
	return k.Base == o.Base && k.Quote == o.Quote && k.BucketSeconds == o.BucketSeconds
}

// SeriesStart returns the lowest possible key of k's pair/resolution group,
// the starting point for an ascending eviction or query scan.
func (k BucketKey) SeriesStart() BucketKey {
	return BucketKey{Base: k.Base, Quote: k.Quote, BucketSeconds: k.BucketSeconds, OpenTime: 0}
}

// BucketOpenTime returns the start of the interval containing ts:
// floor(ts / bucketSeconds) * bucketSeconds. ts must be non-negative and
// bucketSeconds positive.
func BucketOpenTime(ts int64, bucketSeconds uint32) int64 {
	d := int64(bucketSeconds)
	return ts / d * d
}

// BucketRecord is the OHLC and volume aggregate for one key. Prices are
// stored as base/quote amount pairs, never as floats. A record is created by
// the first trade of its interval and mutated in place by later ones; the
// Open pair is never touched after creation.
type BucketRecord struct {
	Key BucketKey

	OpenBase   int64
	OpenQuote  int64
	CloseBase  int64
	CloseQuote int64
	HighBase   int64
	HighQuote  int64
	LowBase    int64
	LowQuote   int64

	BaseVolume  int64
	QuoteVolume int64
}

// NewBucketRecord opens a bucket with its first trade: all four prices start
// at the trade price and the volumes at the trade's amount legs.
func NewBucketRecord(key BucketKey, trade Price) *BucketRecord {
	return &BucketRecord{
		Key:         key,
		OpenBase:    trade.BaseAmount,
		OpenQuote:   trade.QuoteAmount,
		CloseBase:   trade.BaseAmount,
		CloseQuote:  trade.QuoteAmount,
		HighBase:    trade.BaseAmount,
		HighQuote:   trade.QuoteAmount,
		LowBase:     trade.BaseAmount,
		LowQuote:    trade.QuoteAmount,
		BaseVolume:  trade.BaseAmount,
		QuoteVolume: trade.QuoteAmount,
	}
}

// ApplyTrade folds one more trade into the bucket. The trade price doubles
// as the traded amounts: its base and quote legs accumulate into the
// volumes, close follows the trade, and high/low move when the
// cross-multiplied comparison says the trade set a new extreme.
func (r *BucketRecord) ApplyTrade(trade Price) {
	r.BaseVolume += trade.BaseAmount
	r.QuoteVolume += trade.QuoteAmount
	r.CloseBase = trade.BaseAmount
	r.CloseQuote = trade.QuoteAmount
	if r.HighPrice().Less(trade) {
		r.HighBase = trade.BaseAmount
		r.HighQuote = trade.QuoteAmount
	}
	if trade.Less(r.LowPrice()) {
		r.LowBase = trade.BaseAmount
		r.LowQuote = trade.QuoteAmount
	}
}

// OpenPrice returns the first trade price of the interval.
func (r *BucketRecord) OpenPrice() Price {
	return Price{BaseAmount: r.OpenBase, QuoteAmount: r.OpenQuote}
}

// ClosePrice returns the most recent trade price of the interval.
func (r *BucketRecord) ClosePrice() Price {
	return Price{BaseAmount: r.CloseBase, QuoteAmount: r.CloseQuote}
}

// HighPrice returns the highest trade price seen in the interval.
func (r *BucketRecord) HighPrice() Price {
	return Price{BaseAmount: r.HighBase, QuoteAmount: r.HighQuote}
}

// LowPrice returns the lowest trade price seen in the interval.
func (r *BucketRecord) LowPrice() Price {
	return Price{BaseAmount: r.LowBase, QuoteAmount: r.LowQuote}
}
