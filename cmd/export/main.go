// Package main exports journaled market history for chart tooling: it
// rebuilds bucket state from the fill journal and writes one CSV per
// pair/duration series plus a Markdown summary into the output directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"market-history-lab/internal/domain"
	"market-history-lab/internal/export"
	"market-history-lab/internal/markethistory"
	"market-history-lab/internal/replay"
	"market-history-lab/internal/stats"
	"market-history-lab/internal/storage"
	"market-history-lab/internal/storage/memory"
	pgstore "market-history-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string for the fill journal")
	outputDir := flag.String("output-dir", "output", "Output directory for generated files")
	durations := flag.String("durations", "60,300,3600,86400", "Comma-separated bucket durations in seconds (must match the live engine)")
	maxHistory := flag.Uint("max-history", uint(markethistory.DefaultMaxHistory), "Buckets retained per pair and duration (must match the live engine)")
	flag.Parse()

	ctx := context.Background()

	// Validate flags
	if *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn is required")
		os.Exit(1)
	}
	bucketSeconds, err := parseDurations(*durations)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid --durations: %v\n", err)
		os.Exit(1)
	}
	cfg := markethistory.Config{
		BucketSeconds: bucketSeconds,
		MaxHistory:    uint32(*maxHistory),
	}

	// Connect to the journal
	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()
	journal := pgstore.NewFillJournal(pool)

	// Rebuild bucket state into a fresh in-memory index
	store := memory.NewBucketStore()
	engine, err := markethistory.NewEngine(markethistory.Options{
		Config: cfg,
		Store:  store,
		Logger: log.New(io.Discard, "", 0),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating engine: %v\n", err)
		os.Exit(1)
	}

	result, err := replay.NewRunner(journal).Run(ctx, engine)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error replaying journal: %v\n", err)
		os.Exit(1)
	}

	// Ensure output directory exists
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	series, err := collectSeries(ctx, store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error scanning rebuilt index: %v\n", err)
		os.Exit(1)
	}

	// One CSV per series, plus the summary over all of them
	var summaries []*stats.PairSummary
	var written []string
	for _, sr := range series {
		name := fmt.Sprintf("buckets_%d_%d_%ds.csv", sr.key.Base, sr.key.Quote, sr.key.BucketSeconds)
		path := filepath.Join(*outputDir, name)
		if err := os.WriteFile(path, []byte(export.RenderBucketsCSV(sr.recs)), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", path, err)
			os.Exit(1)
		}
		written = append(written, path)

		summary, err := stats.Summarize(sr.recs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error summarizing %s: %v\n", name, err)
			os.Exit(1)
		}
		summaries = append(summaries, summary)
	}

	summaryPath := filepath.Join(*outputDir, "SUMMARY.md")
	if err := os.WriteFile(summaryPath, []byte(export.RenderSummaryMarkdown(summaries, time.Now())), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", summaryPath, err)
		os.Exit(1)
	}
	written = append(written, summaryPath)

	fmt.Printf("Exported %d blocks, %d fills into %d series:\n", result.Blocks, result.Fills, len(series))
	for _, p := range written {
		fmt.Printf("  - %s\n", p)
	}
}

// seriesRecords holds one pair/duration series in open-time order.
type seriesRecords struct {
	key  domain.BucketKey
	recs []*domain.BucketRecord
}

// collectSeries walks the rebuilt index and groups records by series. The
// walk is in key order, so records within one series arrive ordered by open
// time and the series themselves come out sorted.
func collectSeries(ctx context.Context, store storage.BucketStore) ([]*seriesRecords, error) {
	var out []*seriesRecords
	err := store.AscendFrom(ctx, domain.BucketKey{}, func(rec *domain.BucketRecord) bool {
		if len(out) == 0 || !rec.Key.SameSeries(out[len(out)-1].key) {
			out = append(out, &seriesRecords{key: rec.Key})
		}
		cur := out[len(out)-1]
		cur.recs = append(cur.recs, rec)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// parseDurations parses a comma-separated list of bucket durations in seconds.
func parseDurations(s string) ([]uint32, error) {
	var out []uint32
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("duration %q: %w", part, err)
		}
		out = append(out, uint32(d))
	}
	return out, nil
}
