// Package markethistory derives OHLC market history from settled trades.
// Fill operations observed during block application are deduplicated,
// oriented canonically, and folded into fixed-duration buckets held in a
// bounded, ordered store.
package markethistory

import (
	"errors"
	"fmt"
	"sort"

	"market-history-lab/internal/domain"
)

// DefaultMaxHistory is the per-pair bucket retention used when no explicit
// value is configured: the newest 1000 intervals of each tracked duration.
const DefaultMaxHistory uint32 = 1000

// ErrZeroBucketSeconds is returned by Validate for a zero tracked duration.
var ErrZeroBucketSeconds = errors.New("bucket duration must be positive")

// Config controls which bucket resolutions are maintained and how many
// buckets of each are retained. It is fixed at engine construction.
type Config struct {
	// BucketSeconds is the set of tracked bucket durations in seconds.
	// Empty disables aggregation entirely.
	BucketSeconds []uint32

	// MaxHistory bounds how many buckets of each duration are retained per
	// pair. Zero disables eviction; aggregation continues unbounded.
	MaxHistory uint32
}

// DefaultConfig returns the stock configuration: minute, five-minute, hour
// and day buckets with DefaultMaxHistory retention.
func DefaultConfig() Config {
	return Config{
		BucketSeconds: []uint32{
			domain.BucketMinute,
			domain.BucketFiveMinute,
			domain.BucketHour,
			domain.BucketDay,
		},
		MaxHistory: DefaultMaxHistory,
	}
}

// Normalize sorts the tracked durations ascending and drops duplicates,
// in place.
func (c *Config) Normalize() {
	if len(c.BucketSeconds) == 0 {
		return
	}
	sort.Slice(c.BucketSeconds, func(i, j int) bool {
		return c.BucketSeconds[i] < c.BucketSeconds[j]
	})
	out := c.BucketSeconds[:1]
	for _, d := range c.BucketSeconds[1:] {
		if d != out[len(out)-1] {
			out = append(out, d)
		}
	}
	c.BucketSeconds = out
}

// Validate rejects configurations with a zero bucket duration. An empty
// duration set is valid: it turns aggregation off.
func (c Config) Validate() error {
	for _, d := range c.BucketSeconds {
		if d == 0 {
			return fmt.Errorf("bucket_seconds %v: %w", c.BucketSeconds, ErrZeroBucketSeconds)
		}
	}
	return nil
}

// Enabled reports whether any durations are tracked.
func (c Config) Enabled() bool {
	return len(c.BucketSeconds) > 0
}
