// Package archive moves evicted buckets into long-term analytical storage.
// The eviction hook must never block block application, so records are
// queued and written in batches from a background worker; when the queue is
// full the newest records are dropped and counted, never waited on.
package archive

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"market-history-lab/internal/domain"
	"market-history-lab/internal/markethistory"
	"market-history-lab/internal/observability"
	"market-history-lab/internal/storage"
)

// Defaults used when Options leaves the tuning fields zero.
const (
	DefaultBufferSize    = 4096
	DefaultBatchSize     = 256
	DefaultFlushInterval = 2 * time.Second

	writeTimeout = 10 * time.Second
)

// Options for creating an Archiver.
type Options struct {
	Store  storage.BucketArchive
	Logger *log.Logger

	// BufferSize caps the in-flight queue; overflow is dropped.
	BufferSize int
	// BatchSize is the largest batch handed to one ArchiveBulk call.
	BatchSize int
	// FlushInterval bounds how long a partial batch may wait.
	FlushInterval time.Duration
}

// Archiver buffers evicted buckets and drains them into a BucketArchive.
type Archiver struct {
	store      storage.BucketArchive
	logger     *log.Logger
	queue      chan *domain.BucketRecord
	batchSize  int
	flushEvery time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewArchiver creates an Archiver and starts its drain worker.
func NewArchiver(opts Options) *Archiver {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[archive] ", log.LstdFlags)
	}
	bufferSize := opts.BufferSize
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	flushEvery := opts.FlushInterval
	if flushEvery <= 0 {
		flushEvery = DefaultFlushInterval
	}

	a := &Archiver{
		store:      opts.Store,
		logger:     logger,
		queue:      make(chan *domain.BucketRecord, bufferSize),
		batchSize:  batchSize,
		flushEvery: flushEvery,
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// BucketsEvicted enqueues evicted buckets without blocking. Records that do
// not fit the queue, or arrive after Close, are dropped and counted.
// Implements markethistory.EvictionSink.
func (a *Archiver) BucketsEvicted(recs []*domain.BucketRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		observability.RecordArchiveDropped(len(recs))
		return
	}

	dropped := 0
	for _, rec := range recs {
		select {
		case a.queue <- rec:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		observability.RecordArchiveDropped(dropped)
		a.logger.Printf("queue full, dropped %d of %d evicted buckets", dropped, len(recs))
	}
	observability.UpdateArchiveQueueSize(len(a.queue))
}

// Close stops intake, drains everything queued and waits for the worker.
func (a *Archiver) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	a.wg.Wait()
}

func (a *Archiver) run() {
	defer a.wg.Done()

	batch := make([]*domain.BucketRecord, 0, a.batchSize)
	flush := time.NewTicker(a.flushEvery)
	defer flush.Stop()

	writeBatch := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := a.store.ArchiveBulk(ctx, batch)
		cancel()
		if err != nil {
			// Best effort: the batch is dropped, the live store already
			// evicted these records.
			observability.RecordArchiveWriteError()
			a.logger.Printf("archive batch of %d failed: %v", len(batch), err)
		} else {
			observability.RecordBucketsArchived(len(batch))
		}
		batch = batch[:0]
		observability.UpdateArchiveQueueSize(len(a.queue))
	}

	for {
		select {
		case rec, ok := <-a.queue:
			if !ok {
				writeBatch()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= a.batchSize {
				writeBatch()
			}
		case <-flush.C:
			writeBatch()
		}
	}
}

// Ensure Archiver implements markethistory.EvictionSink
var _ markethistory.EvictionSink = (*Archiver)(nil)
