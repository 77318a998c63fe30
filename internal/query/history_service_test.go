package query

import (
	"context"
	"errors"
	"testing"

	"market-history-lab/internal/domain"
	"market-history-lab/internal/storage"
	"market-history-lab/internal/storage/memory"
)

func seedBuckets(t *testing.T) *memory.BucketStore {
	t.Helper()
	ctx := context.Background()
	store := memory.NewBucketStore()

	// Minute series for pair 1/2 at opens 60, 120, 300 with close prices
	// 2/1, 3/1, 1/2; plus one bucket of another pair and one of another
	// duration as noise.
	seeds := []struct {
		key   domain.BucketKey
		price domain.Price
	}{
		{domain.BucketKey{Base: 1, Quote: 2, BucketSeconds: 60, OpenTime: 60}, domain.Price{BaseAmount: 2, QuoteAmount: 1}},
		{domain.BucketKey{Base: 1, Quote: 2, BucketSeconds: 60, OpenTime: 120}, domain.Price{BaseAmount: 3, QuoteAmount: 1}},
		{domain.BucketKey{Base: 1, Quote: 2, BucketSeconds: 60, OpenTime: 300}, domain.Price{BaseAmount: 1, QuoteAmount: 2}},
		{domain.BucketKey{Base: 1, Quote: 3, BucketSeconds: 60, OpenTime: 120}, domain.Price{BaseAmount: 9, QuoteAmount: 1}},
		{domain.BucketKey{Base: 1, Quote: 2, BucketSeconds: 3600, OpenTime: 0}, domain.Price{BaseAmount: 7, QuoteAmount: 1}},
	}
	for _, s := range seeds {
		if err := store.Insert(ctx, domain.NewBucketRecord(s.key, s.price)); err != nil {
			t.Fatalf("Insert %+v failed: %v", s.key, err)
		}
	}
	return store
}

func TestHistoryService_Buckets(t *testing.T) {
	ctx := context.Background()
	svc := NewHistoryService(seedBuckets(t))

	recs, err := svc.Buckets(ctx, 1, 2, 60, 60, 300)
	if err != nil {
		t.Fatalf("Buckets failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("Expected 3 buckets, got %d", len(recs))
	}
	wantOpens := []int64{60, 120, 300}
	for i, rec := range recs {
		if rec.Key.OpenTime != wantOpens[i] {
			t.Errorf("Bucket %d: expected open %d, got %d", i, wantOpens[i], rec.Key.OpenTime)
		}
	}

	// Range ends are inclusive on both sides.
	recs, err = svc.Buckets(ctx, 1, 2, 60, 120, 120)
	if err != nil {
		t.Fatalf("Buckets failed: %v", err)
	}
	if len(recs) != 1 || recs[0].Key.OpenTime != 120 {
		t.Errorf("Expected exactly the bucket at 120, got %+v", recs)
	}

	// Empty window is a valid empty result.
	recs, err = svc.Buckets(ctx, 1, 2, 60, 121, 299)
	if err != nil {
		t.Fatalf("Buckets failed: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("Expected no buckets, got %d", len(recs))
	}
}

func TestHistoryService_BucketsValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewHistoryService(seedBuckets(t))

	if _, err := svc.Buckets(ctx, 2, 1, 60, 0, 100); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Reversed pair should be invalid, got %v", err)
	}
	if _, err := svc.Buckets(ctx, 1, 1, 60, 0, 100); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Same-asset pair should be invalid, got %v", err)
	}
	if _, err := svc.Buckets(ctx, 1, 2, 0, 0, 100); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Zero duration should be invalid, got %v", err)
	}
}

func TestHistoryService_ClosePriceAt(t *testing.T) {
	ctx := context.Background()
	svc := NewHistoryService(seedBuckets(t))

	// Exactly on a bucket open.
	price, err := svc.ClosePriceAt(ctx, 1, 2, 60, 120)
	if err != nil {
		t.Fatalf("ClosePriceAt failed: %v", err)
	}
	if price.BaseAmount != 3 || price.QuoteAmount != 1 {
		t.Errorf("Expected close 3/1, got %d/%d", price.BaseAmount, price.QuoteAmount)
	}

	// Between buckets: the latest one at or before wins.
	price, err = svc.ClosePriceAt(ctx, 1, 2, 60, 299)
	if err != nil {
		t.Fatalf("ClosePriceAt failed: %v", err)
	}
	if price.BaseAmount != 3 || price.QuoteAmount != 1 {
		t.Errorf("Expected close 3/1 just before 300, got %d/%d", price.BaseAmount, price.QuoteAmount)
	}

	// Far in the future: the last bucket's close.
	price, err = svc.ClosePriceAt(ctx, 1, 2, 60, 1<<40)
	if err != nil {
		t.Fatalf("ClosePriceAt failed: %v", err)
	}
	if price.BaseAmount != 1 || price.QuoteAmount != 2 {
		t.Errorf("Expected close 1/2, got %d/%d", price.BaseAmount, price.QuoteAmount)
	}
}

func TestHistoryService_ClosePriceAt_NotFound(t *testing.T) {
	ctx := context.Background()
	svc := NewHistoryService(seedBuckets(t))

	// Before the first bucket of the series.
	if _, err := svc.ClosePriceAt(ctx, 1, 2, 60, 59); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound before first bucket, got %v", err)
	}

	// Unknown series.
	if _, err := svc.ClosePriceAt(ctx, 4, 9, 60, 1000); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown pair, got %v", err)
	}
}
