package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"market-history-lab/internal/domain"
	"market-history-lab/internal/storage"
)

// BucketStore is the in-memory ordered bucket index: a slice kept sorted by
// key with binary-search lookups. Range iteration over one pair/resolution
// group is a contiguous walk, which is what eviction and queries need.
//
// The chain applies blocks on a single goroutine, but the query surface
// reads concurrently, so access is guarded by a RWMutex. All records cross
// the boundary as copies.
type BucketStore struct {
	mu   sync.RWMutex
	recs []*domain.BucketRecord // sorted by Key ascending
}

// Compile-time interface check.
var _ storage.BucketStore = (*BucketStore)(nil)

// NewBucketStore creates an empty bucket store.
func NewBucketStore() *BucketStore {
	return &BucketStore{}
}

// Get retrieves the record with exactly the given key.
func (s *BucketStore) Get(_ context.Context, key domain.BucketKey) (*domain.BucketRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.search(key)
	if i >= len(s.recs) || s.recs[i].Key != key {
		return nil, fmt.Errorf("%w: bucket %+v", storage.ErrNotFound, key)
	}
	return copyRecord(s.recs[i]), nil
}

// Insert adds a new record at its sorted position.
func (s *BucketStore) Insert(_ context.Context, rec *domain.BucketRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.search(rec.Key)
	if i < len(s.recs) && s.recs[i].Key == rec.Key {
		return fmt.Errorf("%w: bucket %+v", storage.ErrDuplicateKey, rec.Key)
	}

	s.recs = append(s.recs, nil)
	copy(s.recs[i+1:], s.recs[i:])
	s.recs[i] = copyRecord(rec)
	return nil
}

// Update replaces the stored record with the same key.
func (s *BucketStore) Update(_ context.Context, rec *domain.BucketRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.search(rec.Key)
	if i >= len(s.recs) || s.recs[i].Key != rec.Key {
		return fmt.Errorf("%w: bucket %+v", storage.ErrNotFound, rec.Key)
	}
	s.recs[i] = copyRecord(rec)
	return nil
}

// Remove deletes the record with the given key.
func (s *BucketStore) Remove(_ context.Context, key domain.BucketKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.search(key)
	if i >= len(s.recs) || s.recs[i].Key != key {
		return fmt.Errorf("%w: bucket %+v", storage.ErrNotFound, key)
	}
	s.recs = append(s.recs[:i], s.recs[i+1:]...)
	return nil
}

// AscendFrom visits records with key >= from in ascending key order. fn
// receives copies and must not call back into the store; mutation during
// iteration would self-deadlock on the read lock.
func (s *BucketStore) AscendFrom(_ context.Context, from domain.BucketKey, fn func(rec *domain.BucketRecord) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := s.search(from); i < len(s.recs); i++ {
		if !fn(copyRecord(s.recs[i])) {
			return nil
		}
	}
	return nil
}

// GetRange retrieves one pair/resolution group's records with
// fromOpen <= OpenTime <= toOpen, ordered by OpenTime ASC.
func (s *BucketStore) GetRange(_ context.Context, base, quote domain.AssetID, bucketSeconds uint32, fromOpen, toOpen int64) ([]*domain.BucketRecord, error) {
	series := domain.BucketKey{Base: base, Quote: quote, BucketSeconds: bucketSeconds}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.BucketRecord
	for i := s.search(domain.BucketKey{Base: base, Quote: quote, BucketSeconds: bucketSeconds, OpenTime: fromOpen}); i < len(s.recs); i++ {
		rec := s.recs[i]
		if !rec.Key.SameSeries(series) || rec.Key.OpenTime > toOpen {
			break
		}
		out = append(out, copyRecord(rec))
	}
	return out, nil
}

// search returns the position of the first stored record with key >= key.
// Callers must hold the mutex.
func (s *BucketStore) search(key domain.BucketKey) int {
	return sort.Search(len(s.recs), func(i int) bool {
		return !s.recs[i].Key.Less(key)
	})
}

func copyRecord(rec *domain.BucketRecord) *domain.BucketRecord {
	c := *rec
	return &c
}

func validateRecord(rec *domain.BucketRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: record is nil", storage.ErrInvalidInput)
	}
	if rec.Key.BucketSeconds == 0 {
		return fmt.Errorf("%w: bucket seconds must be positive", storage.ErrInvalidInput)
	}
	if rec.Key.Base >= rec.Key.Quote {
		return fmt.Errorf("%w: pair %d/%d is not in canonical orientation", storage.ErrInvalidInput, rec.Key.Base, rec.Key.Quote)
	}
	if rec.Key.OpenTime < 0 {
		return fmt.Errorf("%w: open time must be non-negative", storage.ErrInvalidInput)
	}
	if rec.Key.OpenTime != domain.BucketOpenTime(rec.Key.OpenTime, rec.Key.BucketSeconds) {
		return fmt.Errorf("%w: open time %d is not aligned to %ds intervals", storage.ErrInvalidInput, rec.Key.OpenTime, rec.Key.BucketSeconds)
	}
	if rec.BaseVolume < 0 || rec.QuoteVolume < 0 {
		return fmt.Errorf("%w: volumes must be non-negative", storage.ErrInvalidInput)
	}
	return nil
}
