// Package chain simulates the host blockchain: block validation, the
// committed-block notification observers subscribe to, and the recorder that
// journals fill operations for replay.
package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"market-history-lab/internal/domain"
)

// ErrNonIncreasingHeight is returned when a block does not extend the chain.
var ErrNonIncreasingHeight = errors.New("block height must be strictly increasing")

// ErrInvalidTimestamp is returned for a non-positive block timestamp.
var ErrInvalidTimestamp = errors.New("block timestamp must be positive")

// ErrTimestampRegression is returned when a block's timestamp is below the
// last committed one.
var ErrTimestampRegression = errors.New("block timestamp must not decrease")

// Observer receives committed blocks. OnBlockApplied is called once per
// block, serially, in height order, on the applying goroutine. An error
// aborts the apply and the block does not commit.
type Observer interface {
	OnBlockApplied(ctx context.Context, block *domain.Block) error
}

// Chain is the simulated host. It validates incoming blocks and fans each
// committed one out to its observers. Application is serialized: one block
// is fully observed before the next begins.
type Chain struct {
	mu        sync.Mutex
	observers []Observer
	height    uint64
	timestamp int64
}

// New creates an empty chain at height 0.
func New() *Chain {
	return &Chain{}
}

// Subscribe registers an observer. Observers are notified in subscription
// order.
func (c *Chain) Subscribe(obs Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, obs)
}

// Height returns the height of the last committed block, 0 before any.
func (c *Chain) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// Timestamp returns the timestamp of the last committed block, 0 before any.
func (c *Chain) Timestamp() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timestamp
}

// ApplyBlock validates and commits one block: height strictly above the last
// committed one, timestamp positive and non-decreasing. Observers run
// serially on the caller's goroutine; the first observer error aborts the
// apply, nothing commits, and the same block may be retried.
func (c *Chain) ApplyBlock(ctx context.Context, block *domain.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if block.Height <= c.height {
		return fmt.Errorf("height %d after %d: %w", block.Height, c.height, ErrNonIncreasingHeight)
	}
	if block.Timestamp <= 0 {
		return fmt.Errorf("height %d timestamp %d: %w", block.Height, block.Timestamp, ErrInvalidTimestamp)
	}
	if block.Timestamp < c.timestamp {
		return fmt.Errorf("height %d timestamp %d before %d: %w",
			block.Height, block.Timestamp, c.timestamp, ErrTimestampRegression)
	}

	for _, obs := range c.observers {
		if err := obs.OnBlockApplied(ctx, block); err != nil {
			return fmt.Errorf("apply block %d: %w", block.Height, err)
		}
	}

	c.height = block.Height
	c.timestamp = block.Timestamp
	return nil
}
