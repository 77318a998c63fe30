// Package query is the read surface over the bucket store: candle ranges
// and point-in-time close price lookups.
package query

import (
	"context"
	"fmt"
	"time"

	"market-history-lab/internal/domain"
	"market-history-lab/internal/observability"
	"market-history-lab/internal/storage"
)

// HistoryService answers market history queries from a bucket store. It is
// safe for concurrent use when the underlying store is.
type HistoryService struct {
	store storage.BucketStore
}

// NewHistoryService creates a HistoryService over the given store.
func NewHistoryService(store storage.BucketStore) *HistoryService {
	return &HistoryService{store: store}
}

// Buckets returns the buckets of one pair and duration with
// from <= OpenTime <= to, ordered by OpenTime ASC. The pair must be
// canonically oriented (base < quote) and the duration positive;
// storage.ErrInvalidInput otherwise. An empty range is not an error.
func (s *HistoryService) Buckets(ctx context.Context, base, quote domain.AssetID, bucketSeconds uint32, from, to int64) (recs []*domain.BucketRecord, err error) {
	start := time.Now()
	defer func() { observability.RecordQuery("buckets", time.Since(start).Seconds(), err) }()

	if err := validateSeries(base, quote, bucketSeconds); err != nil {
		return nil, err
	}
	recs, err = s.store.GetRange(ctx, base, quote, bucketSeconds, from, to)
	if err != nil {
		return nil, fmt.Errorf("get range: %w", err)
	}
	return recs, nil
}

// ClosePriceAt returns the close price of the latest bucket with
// OpenTime <= at: the most recent trade price as of that moment at the
// given resolution. storage.ErrNotFound when no bucket precedes at.
func (s *HistoryService) ClosePriceAt(ctx context.Context, base, quote domain.AssetID, bucketSeconds uint32, at int64) (price domain.Price, err error) {
	start := time.Now()
	defer func() { observability.RecordQuery("close_price_at", time.Since(start).Seconds(), err) }()

	if err := validateSeries(base, quote, bucketSeconds); err != nil {
		return domain.Price{}, err
	}

	seriesStart := domain.BucketKey{Base: base, Quote: quote, BucketSeconds: bucketSeconds}
	var last *domain.BucketRecord
	err = s.store.AscendFrom(ctx, seriesStart, func(rec *domain.BucketRecord) bool {
		if !rec.Key.SameSeries(seriesStart) || rec.Key.OpenTime > at {
			return false
		}
		last = rec
		return true
	})
	if err != nil {
		return domain.Price{}, fmt.Errorf("scan series: %w", err)
	}
	if last == nil {
		return domain.Price{}, fmt.Errorf("%w: no bucket at or before %d for %d/%d duration=%d",
			storage.ErrNotFound, at, base, quote, bucketSeconds)
	}
	return last.ClosePrice(), nil
}

func validateSeries(base, quote domain.AssetID, bucketSeconds uint32) error {
	if base >= quote {
		return fmt.Errorf("%w: pair must be canonically oriented, base %d not below quote %d",
			storage.ErrInvalidInput, base, quote)
	}
	if bucketSeconds == 0 {
		return fmt.Errorf("%w: bucket duration must be positive", storage.ErrInvalidInput)
	}
	return nil
}
