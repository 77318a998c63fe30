package markethistory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"market-history-lab/internal/chain"
	"market-history-lab/internal/domain"
	"market-history-lab/internal/observability"
	"market-history-lab/internal/storage"
)

// EvictionSink receives the buckets each eviction pass removed from the
// working store, oldest first. The engine runs synchronously inside block
// application, so implementations must not block; hand the batch off and
// return.
type EvictionSink interface {
	BucketsEvicted(recs []*domain.BucketRecord)
}

// Options for creating an Engine.
type Options struct {
	Config Config
	Store  storage.BucketStore
	Logger *log.Logger

	// Sink receives evicted buckets. Nil discards them.
	Sink EvictionSink
}

// Engine folds settled trades into OHLC buckets. It observes block
// application: for every applied fill operation that survives the dedup
// filter it opens or updates one bucket per tracked duration, then evicts
// buckets that fell behind the retention cutoff.
type Engine struct {
	cfg    Config
	store  storage.BucketStore
	logger *log.Logger
	sink   EvictionSink
}

// NewEngine creates an Engine. The configuration is copied, normalized and
// validated here; it cannot change afterward.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("bucket store is required")
	}
	cfg := opts.Config
	cfg.BucketSeconds = append([]uint32(nil), cfg.BucketSeconds...)
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[markethistory] ", log.LstdFlags)
	}
	return &Engine{
		cfg:    cfg,
		store:  opts.Store,
		logger: logger,
		sink:   opts.Sink,
	}, nil
}

// Config returns the normalized configuration the engine runs with.
func (e *Engine) Config() Config {
	return e.cfg
}

// OnBlockApplied aggregates one committed block.
// Implements chain.Observer.
func (e *Engine) OnBlockApplied(ctx context.Context, block *domain.Block) error {
	if !e.cfg.Enabled() {
		return nil
	}

	start := time.Now()
	aggregated := 0
	skipped := 0

	for _, op := range block.AppliedOperations() {
		fill, ok := ExtractTradeFill(op)
		if !ok {
			// Count only fills dropped by the filter, not unrelated operations.
			if _, isFill := op.(*domain.FillOrderOperation); isFill {
				skipped++
				observability.RecordFillSkipped()
			}
			continue
		}
		if err := e.aggregate(ctx, fill, block.Timestamp); err != nil {
			return fmt.Errorf("aggregate fill at height %d: %w", block.Height, err)
		}
		aggregated++
		observability.RecordFillAggregated()
	}

	observability.RecordBlockApplied(block.Height, block.Timestamp, time.Since(start).Seconds())
	if aggregated > 0 || skipped > 0 {
		e.logger.Printf("block %d: aggregated %d fills, skipped %d", block.Height, aggregated, skipped)
	}
	return nil
}

// aggregate routes one trade into the bucket of every tracked duration and
// runs the retention pass on each touched pair/duration group. now is the
// block timestamp and decides both the bucket interval and the cutoff.
func (e *Engine) aggregate(ctx context.Context, fill TradeFill, now int64) error {
	trade := fill.Price()
	for _, d := range e.cfg.BucketSeconds {
		key := domain.BucketKey{
			Base:          fill.Base.AssetID,
			Quote:         fill.Quote.AssetID,
			BucketSeconds: d,
			OpenTime:      domain.BucketOpenTime(now, d),
		}

		rec, err := e.store.Get(ctx, key)
		switch {
		case err == nil:
			rec.ApplyTrade(trade)
			if err := e.store.Update(ctx, rec); err != nil {
				return fmt.Errorf("update bucket %d/%d open=%d: %w", key.Base, key.Quote, key.OpenTime, err)
			}
			observability.RecordBucketUpdated(d)
		case errors.Is(err, storage.ErrNotFound):
			if err := e.store.Insert(ctx, domain.NewBucketRecord(key, trade)); err != nil {
				return fmt.Errorf("insert bucket %d/%d open=%d: %w", key.Base, key.Quote, key.OpenTime, err)
			}
			observability.RecordBucketCreated(d)
		default:
			return fmt.Errorf("get bucket %d/%d open=%d: %w", key.Base, key.Quote, key.OpenTime, err)
		}

		if err := e.evictStale(ctx, key, now); err != nil {
			return fmt.Errorf("evict %d/%d duration=%d: %w", key.Base, key.Quote, d, err)
		}
	}
	return nil
}

// evictStale removes buckets of key's pair/duration group whose interval
// start fell behind the retention cutoff. The cutoff trails the block
// timestamp by MaxHistory whole intervals, so the group keeps a sliding
// window of recent history however long the chain has run. MaxHistory zero
// means unbounded retention.
func (e *Engine) evictStale(ctx context.Context, key domain.BucketKey, now int64) error {
	if e.cfg.MaxHistory == 0 {
		return nil
	}
	cutoff := now - int64(key.BucketSeconds)*int64(e.cfg.MaxHistory)
	if cutoff <= 0 {
		return nil
	}

	// Collect first, remove after: the store must not be mutated mid-scan.
	var stale []*domain.BucketRecord
	err := e.store.AscendFrom(ctx, key.SeriesStart(), func(rec *domain.BucketRecord) bool {
		if !rec.Key.SameSeries(key) || rec.Key.OpenTime >= cutoff {
			return false
		}
		stale = append(stale, rec)
		return true
	})
	if err != nil {
		return fmt.Errorf("scan group: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	for _, rec := range stale {
		if err := e.store.Remove(ctx, rec.Key); err != nil {
			return fmt.Errorf("remove bucket open=%d: %w", rec.Key.OpenTime, err)
		}
	}
	observability.RecordBucketsEvicted(key.BucketSeconds, len(stale))
	e.logger.Printf("evicted %d buckets of %d/%d duration=%d before %d",
		len(stale), key.Base, key.Quote, key.BucketSeconds, cutoff)

	if e.sink != nil {
		e.sink.BucketsEvicted(stale)
	}
	return nil
}

// Ensure Engine implements chain.Observer
var _ chain.Observer = (*Engine)(nil)
