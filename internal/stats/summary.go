// Package stats computes windowed pair statistics from bucket records. All
// arithmetic is exact: volumes are integer sums and every price, the VWAP
// included, stays a ratio of integer amounts.
package stats

import (
	"errors"
	"fmt"
	"sort"

	"market-history-lab/internal/domain"
)

// ErrNoBuckets is returned when there is nothing to summarize.
var ErrNoBuckets = errors.New("no buckets available for summary")

// ErrMixedSeries is returned when the input spans more than one pair or
// duration.
var ErrMixedSeries = errors.New("buckets span multiple series")

// PairSummary aggregates one pair/duration series over a window of buckets.
type PairSummary struct {
	Base          domain.AssetID
	Quote         domain.AssetID
	BucketSeconds uint32

	Buckets       int
	FirstOpenTime int64
	LastOpenTime  int64

	Open  domain.Price
	Close domain.Price
	High  domain.Price
	Low   domain.Price

	BaseVolume  int64
	QuoteVolume int64
}

// VWAP returns the volume-weighted average price of the window: total base
// volume against total quote volume, exact by construction.
func (s *PairSummary) VWAP() domain.Price {
	return domain.Price{BaseAmount: s.BaseVolume, QuoteAmount: s.QuoteVolume}
}

// Summarize folds bucket records of one series into a PairSummary. Records
// are sorted by OpenTime before computing order-dependent fields, so callers
// may pass them in any order. Returns ErrNoBuckets on empty input and
// ErrMixedSeries if the records disagree on pair or duration.
func Summarize(recs []*domain.BucketRecord) (*PairSummary, error) {
	if len(recs) == 0 {
		return nil, ErrNoBuckets
	}

	sorted := make([]*domain.BucketRecord, len(recs))
	copy(sorted, recs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Key.OpenTime < sorted[j].Key.OpenTime
	})

	first := sorted[0]
	summary := &PairSummary{
		Base:          first.Key.Base,
		Quote:         first.Key.Quote,
		BucketSeconds: first.Key.BucketSeconds,
		FirstOpenTime: first.Key.OpenTime,
		LastOpenTime:  sorted[len(sorted)-1].Key.OpenTime,
		Open:          first.OpenPrice(),
		Close:         sorted[len(sorted)-1].ClosePrice(),
		High:          first.HighPrice(),
		Low:           first.LowPrice(),
	}

	for _, rec := range sorted {
		if !rec.Key.SameSeries(first.Key) {
			return nil, fmt.Errorf("%w: %d/%d duration=%d vs %d/%d duration=%d",
				ErrMixedSeries,
				first.Key.Base, first.Key.Quote, first.Key.BucketSeconds,
				rec.Key.Base, rec.Key.Quote, rec.Key.BucketSeconds)
		}
		summary.Buckets++
		summary.BaseVolume += rec.BaseVolume
		summary.QuoteVolume += rec.QuoteVolume
		if summary.High.Less(rec.HighPrice()) {
			summary.High = rec.HighPrice()
		}
		if rec.LowPrice().Less(summary.Low) {
			summary.Low = rec.LowPrice()
		}
	}

	return summary, nil
}
