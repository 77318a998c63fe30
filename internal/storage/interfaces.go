package storage

import (
	"context"

	"market-history-lab/internal/domain"
)

// BucketStore is the ordered index of market history buckets. Keys order
// lexicographically by (Base, Quote, BucketSeconds, OpenTime); implementations
// must preserve that total order for AscendFrom, since eviction scans one
// pair/resolution group as a contiguous prefix.
//
// Implementations return copies: a record obtained from the store is never
// aliased to its stored state, and mutations only land through Update.
type BucketStore interface {
	// Get retrieves the record with exactly the given key.
	// Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, key domain.BucketKey) (*domain.BucketRecord, error)

	// Insert adds a new record. Returns ErrDuplicateKey if its key exists and
	// ErrInvalidInput if the record is malformed.
	Insert(ctx context.Context, rec *domain.BucketRecord) error

	// Update replaces the stored record with the same key.
	// Returns ErrNotFound if it does not exist.
	Update(ctx context.Context, rec *domain.BucketRecord) error

	// Remove deletes the record with the given key.
	// Returns ErrNotFound if it does not exist.
	Remove(ctx context.Context, key domain.BucketKey) error

	// AscendFrom visits records with key >= from in ascending key order until
	// fn returns false or the records run out. fn receives a copy. The store
	// must not be mutated from inside fn; collect keys first, mutate after.
	AscendFrom(ctx context.Context, from domain.BucketKey, fn func(rec *domain.BucketRecord) bool) error

	// GetRange retrieves the records of one pair/resolution group with
	// fromOpen <= OpenTime <= toOpen, ordered by OpenTime ASC.
	GetRange(ctx context.Context, base, quote domain.AssetID, bucketSeconds uint32, fromOpen, toOpen int64) ([]*domain.BucketRecord, error)
}

// FillJournal is the durable, append-only record of fill operations as
// applied by the chain, the source stream deterministic replay rebuilds
// bucket state from. Both symmetric sides of every match are journaled.
type FillJournal interface {
	// InsertBulk appends fills atomically. Returns ErrDuplicateKey if any
	// fill_id or (height, tx_index, op_index) position already exists.
	InsertBulk(ctx context.Context, fills []*domain.FillEvent) error

	// GetByHeightRange retrieves fills with fromHeight <= BlockHeight <= toHeight,
	// ordered by (height, tx_index, op_index) ASC.
	GetByHeightRange(ctx context.Context, fromHeight, toHeight uint64) ([]*domain.FillEvent, error)

	// GetAll retrieves every journaled fill, ordered by (height, tx_index, op_index) ASC.
	GetAll(ctx context.Context) ([]*domain.FillEvent, error)

	// MaxHeight returns the highest journaled block height, or 0 when empty.
	MaxHeight(ctx context.Context) (uint64, error)
}

// BucketArchive is the long-term analytical sink for buckets the aggregation
// engine has evicted from its bounded working index.
type BucketArchive interface {
	// ArchiveBulk appends evicted records as one batch.
	ArchiveBulk(ctx context.Context, recs []*domain.BucketRecord) error

	// GetRange retrieves archived records of one pair/resolution group with
	// fromOpen <= OpenTime <= toOpen, ordered by OpenTime ASC.
	GetRange(ctx context.Context, base, quote domain.AssetID, bucketSeconds uint32, fromOpen, toOpen int64) ([]*domain.BucketRecord, error)
}
