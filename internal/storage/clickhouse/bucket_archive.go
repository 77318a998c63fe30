package clickhouse

import (
	"context"
	"fmt"

	"market-history-lab/internal/domain"
	"market-history-lab/internal/storage"
)

// BucketArchive implements storage.BucketArchive using ClickHouse. The table
// is a ReplacingMergeTree keyed by (base, quote, bucket_seconds, open_time),
// so re-archiving a bucket after a replay collapses to one row instead of
// failing.
type BucketArchive struct {
	conn *Conn
}

// NewBucketArchive creates a new BucketArchive.
func NewBucketArchive(conn *Conn) *BucketArchive {
	return &BucketArchive{conn: conn}
}

// Compile-time interface check.
var _ storage.BucketArchive = (*BucketArchive)(nil)

// ArchiveBulk appends evicted records as one batch.
func (s *BucketArchive) ArchiveBulk(ctx context.Context, recs []*domain.BucketRecord) error {
	if len(recs) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO bucket_archive (
			base, quote, bucket_seconds, open_time,
			open_base, open_quote, close_base, close_quote,
			high_base, high_quote, low_base, low_quote,
			base_volume, quote_volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, rec := range recs {
		err = batch.Append(
			uint64(rec.Key.Base), uint64(rec.Key.Quote), rec.Key.BucketSeconds, rec.Key.OpenTime,
			rec.OpenBase, rec.OpenQuote, rec.CloseBase, rec.CloseQuote,
			rec.HighBase, rec.HighQuote, rec.LowBase, rec.LowQuote,
			rec.BaseVolume, rec.QuoteVolume,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetRange retrieves archived records of one pair/resolution group with
// fromOpen <= open_time <= toOpen, ordered by open_time ASC.
func (s *BucketArchive) GetRange(ctx context.Context, base, quote domain.AssetID, bucketSeconds uint32, fromOpen, toOpen int64) ([]*domain.BucketRecord, error) {
	query := `
		SELECT
			base, quote, bucket_seconds, open_time,
			open_base, open_quote, close_base, close_quote,
			high_base, high_quote, low_base, low_quote,
			base_volume, quote_volume
		FROM bucket_archive FINAL
		WHERE base = ? AND quote = ? AND bucket_seconds = ?
			AND open_time >= ? AND open_time <= ?
		ORDER BY open_time ASC
	`

	rows, err := s.conn.Query(ctx, query,
		uint64(base), uint64(quote), bucketSeconds, fromOpen, toOpen)
	if err != nil {
		return nil, fmt.Errorf("query archived buckets: %w", err)
	}
	defer rows.Close()

	return scanBuckets(rows)
}

// chRows abstracts driver rows for scanning.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanBuckets scans multiple rows into bucket records.
func scanBuckets(rows chRows) ([]*domain.BucketRecord, error) {
	var recs []*domain.BucketRecord

	for rows.Next() {
		var rec domain.BucketRecord
		var base, quote uint64

		err := rows.Scan(
			&base, &quote, &rec.Key.BucketSeconds, &rec.Key.OpenTime,
			&rec.OpenBase, &rec.OpenQuote, &rec.CloseBase, &rec.CloseQuote,
			&rec.HighBase, &rec.HighQuote, &rec.LowBase, &rec.LowQuote,
			&rec.BaseVolume, &rec.QuoteVolume,
		)
		if err != nil {
			return nil, fmt.Errorf("scan bucket row: %w", err)
		}

		rec.Key.Base = domain.AssetID(base)
		rec.Key.Quote = domain.AssetID(quote)
		recs = append(recs, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bucket rows: %w", err)
	}

	return recs, nil
}
