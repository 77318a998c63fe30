package memory

import (
	"context"
	"errors"
	"testing"

	"market-history-lab/internal/domain"
	"market-history-lab/internal/storage"
)

func testRecord(base, quote domain.AssetID, bucketSeconds uint32, openTime int64) *domain.BucketRecord {
	key := domain.BucketKey{Base: base, Quote: quote, BucketSeconds: bucketSeconds, OpenTime: openTime}
	return domain.NewBucketRecord(key, domain.Price{BaseAmount: 2, QuoteAmount: 1})
}

func TestBucketStoreInsertGet(t *testing.T) {
	store := NewBucketStore()
	ctx := context.Background()

	rec := testRecord(1, 2, 60, 120)
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := store.Get(ctx, rec.Key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if *got != *rec {
		t.Errorf("Get = %+v, want %+v", got, rec)
	}

	// The store hands out copies: mutating the returned record must not
	// change stored state.
	got.BaseVolume = 999
	again, err := store.Get(ctx, rec.Key)
	if err != nil {
		t.Fatalf("Get after mutation: %v", err)
	}
	if again.BaseVolume != rec.BaseVolume {
		t.Errorf("stored record mutated through returned copy: volume %d", again.BaseVolume)
	}

	_, err = store.Get(ctx, domain.BucketKey{Base: 1, Quote: 2, BucketSeconds: 60, OpenTime: 180})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestBucketStoreInsertDuplicate(t *testing.T) {
	store := NewBucketStore()
	ctx := context.Background()

	rec := testRecord(1, 2, 60, 120)
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := store.Insert(ctx, rec); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("second Insert = %v, want ErrDuplicateKey", err)
	}
}

func TestBucketStoreInsertValidation(t *testing.T) {
	store := NewBucketStore()
	ctx := context.Background()

	tests := []struct {
		name string
		rec  *domain.BucketRecord
	}{
		{name: "nil record", rec: nil},
		{name: "zero bucket seconds", rec: testRecord(1, 2, 0, 0)},
		{name: "non-canonical pair", rec: testRecord(2, 1, 60, 0)},
		{name: "equal assets", rec: testRecord(2, 2, 60, 0)},
		{name: "misaligned open time", rec: testRecord(1, 2, 60, 90)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.Insert(ctx, tt.rec); !errors.Is(err, storage.ErrInvalidInput) {
				t.Errorf("Insert = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestBucketStoreUpdate(t *testing.T) {
	store := NewBucketStore()
	ctx := context.Background()

	rec := testRecord(1, 2, 60, 120)
	if err := store.Update(ctx, rec); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Update missing = %v, want ErrNotFound", err)
	}

	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	rec.ApplyTrade(domain.Price{BaseAmount: 3, QuoteAmount: 1})
	if err := store.Update(ctx, rec); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := store.Get(ctx, rec.Key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.BaseVolume != 5 || got.CloseBase != 3 {
		t.Errorf("update not applied: %+v", got)
	}
}

func TestBucketStoreRemove(t *testing.T) {
	store := NewBucketStore()
	ctx := context.Background()

	rec := testRecord(1, 2, 60, 120)
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := store.Remove(ctx, rec.Key); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := store.Get(ctx, rec.Key); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get after Remove = %v, want ErrNotFound", err)
	}
	if err := store.Remove(ctx, rec.Key); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second Remove = %v, want ErrNotFound", err)
	}
}

func TestBucketStoreAscendFrom(t *testing.T) {
	store := NewBucketStore()
	ctx := context.Background()

	// Inserted out of order on purpose.
	for _, rec := range []*domain.BucketRecord{
		testRecord(1, 2, 60, 180),
		testRecord(1, 3, 60, 0),
		testRecord(1, 2, 60, 60),
		testRecord(1, 2, 300, 0),
		testRecord(1, 2, 60, 120),
	} {
		if err := store.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert %+v: %v", rec.Key, err)
		}
	}

	var visited []int64
	from := domain.BucketKey{Base: 1, Quote: 2, BucketSeconds: 60, OpenTime: 0}
	err := store.AscendFrom(ctx, from, func(rec *domain.BucketRecord) bool {
		if !rec.Key.SameSeries(from) {
			return false
		}
		visited = append(visited, rec.Key.OpenTime)
		return true
	})
	if err != nil {
		t.Fatalf("AscendFrom: %v", err)
	}

	want := []int64{60, 120, 180}
	if len(visited) != len(want) {
		t.Fatalf("visited %v, want %v", visited, want)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Fatalf("visited %v, want %v", visited, want)
		}
	}

	// Early stop.
	count := 0
	err = store.AscendFrom(ctx, domain.BucketKey{}, func(rec *domain.BucketRecord) bool {
		count++
		return count < 2
	})
	if err != nil {
		t.Fatalf("AscendFrom: %v", err)
	}
	if count != 2 {
		t.Errorf("visited %d records after early stop, want 2", count)
	}
}

func TestBucketStoreGetRange(t *testing.T) {
	store := NewBucketStore()
	ctx := context.Background()

	for _, openTime := range []int64{0, 60, 120, 180, 240} {
		if err := store.Insert(ctx, testRecord(1, 2, 60, openTime)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	// Same pair, different resolution; must never leak into the range.
	if err := store.Insert(ctx, testRecord(1, 2, 300, 0)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := store.GetRange(ctx, 1, 2, 60, 60, 180)
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("GetRange returned %d records, want 3", len(got))
	}
	for i, want := range []int64{60, 120, 180} {
		if got[i].Key.OpenTime != want {
			t.Errorf("record %d open time = %d, want %d", i, got[i].Key.OpenTime, want)
		}
	}

	empty, err := store.GetRange(ctx, 1, 2, 60, 300, 600)
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("GetRange outside data returned %d records, want 0", len(empty))
	}
}
