// Package main runs the aggregating node. A block source (the synthetic
// chain or a remote node's websocket stream) drives the simulated chain,
// which journals fill operations and folds them into OHLC buckets. Evicted
// buckets are archived to ClickHouse when configured.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"market-history-lab/internal/archive"
	"market-history-lab/internal/blockfeed"
	"market-history-lab/internal/chain"
	"market-history-lab/internal/markethistory"
	"market-history-lab/internal/observability"
	"market-history-lab/internal/replay"
	"market-history-lab/internal/storage"
	chstore "market-history-lab/internal/storage/clickhouse"
	"market-history-lab/internal/storage/memory"
	"market-history-lab/internal/storage/migrations"
	pgstore "market-history-lab/internal/storage/postgres"
	"market-history-lab/internal/tradesim"
)

func main() {
	// Parse flags (env vars as defaults)
	source := flag.String("source", "sim", "Block source: sim or ws")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("CHAIN_WS_ENDPOINT"), "Remote node websocket endpoint (ws source)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string for the fill journal")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for the bucket archive (empty to disable)")
	durations := flag.String("durations", "60,300,3600,86400", "Comma-separated bucket durations in seconds")
	maxHistory := flag.Uint("max-history", uint(markethistory.DefaultMaxHistory), "Buckets retained per pair and duration (0 disables eviction)")
	seed := flag.Int64("seed", 1, "Generator seed (sim source)")
	simInterval := flag.Duration("sim-interval", 500*time.Millisecond, "Delay between generated blocks (sim source)")
	useMemory := flag.Bool("use-memory", false, "Use an in-memory fill journal instead of PostgreSQL")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[node] ", log.LstdFlags|log.Lshortfile)

	bucketSeconds, err := parseDurations(*durations)
	if err != nil {
		logger.Fatalf("Invalid --durations: %v", err)
	}
	cfg := markethistory.Config{
		BucketSeconds: bucketSeconds,
		MaxHistory:    uint32(*maxHistory),
	}

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to signal main goroutine completion
	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	err = run(ctx, logger, cfg, *source, *wsEndpoint, *postgresDSN, *clickhouseDSN, *seed, *simInterval, *useMemory)

	// Signal completion to shutdown handler
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// run wires the journal, the archive and the aggregation engine into a chain
// and drives it from the selected source until ctx is cancelled.
func run(ctx context.Context, logger *log.Logger, cfg markethistory.Config, source, wsEndpoint, postgresDSN, clickhouseDSN string, seed int64, simInterval time.Duration, useMemory bool) error {
	// Require --postgres-dsn unless --use-memory is explicitly set
	if !useMemory && postgresDSN == "" {
		return fmt.Errorf("--postgres-dsn is required (use --use-memory for an in-memory journal)")
	}

	var journal storage.FillJournal = memory.NewFillJournal()
	if !useMemory {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("run postgres migrations: %w", err)
		}
		journal = pgstore.NewFillJournal(pool)
	}

	// Archive evicted buckets to ClickHouse when configured. The archiver is
	// closed before the connection: its queue drains into the store first.
	var sink markethistory.EvictionSink
	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			return fmt.Errorf("run clickhouse migrations: %w", err)
		}
		defer conn.Close()

		archiver := archive.NewArchiver(archive.Options{
			Store:  chstore.NewBucketArchive(conn),
			Logger: logger,
		})
		defer archiver.Close()
		sink = archiver
	}

	store := memory.NewBucketStore()
	engine, err := markethistory.NewEngine(markethistory.Options{
		Config: cfg,
		Store:  store,
		Sink:   sink,
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	// Rebuild the live index from the journal before going live, so a
	// restarted node serves the same buckets it would have kept running.
	lastHeight, err := journal.MaxHeight(ctx)
	if err != nil {
		return fmt.Errorf("read journal height: %w", err)
	}
	if lastHeight > 0 {
		logger.Printf("Rebuilding bucket state from journal (up to height %d)...", lastHeight)
		result, err := replay.NewRunner(journal).Run(ctx, engine)
		if err != nil {
			return fmt.Errorf("replay journal: %w", err)
		}
		logger.Printf("Rebuilt %d blocks, %d fills", result.Blocks, result.Fills)
	}

	// Journal first, aggregate second: a later replay of the journal walks
	// the same operation stream the engine saw.
	host := chain.New()
	host.Subscribe(chain.NewRecorder(journal))
	host.Subscribe(engine)

	switch source {
	case "sim":
		// Continue the chain clock from the journal tail so replayed buckets
		// and newly generated blocks share one time line.
		var startTime int64
		if lastHeight > 0 {
			tail, err := journal.GetByHeightRange(ctx, lastHeight, lastHeight)
			if err != nil {
				return fmt.Errorf("read journal tail: %w", err)
			}
			if len(tail) > 0 {
				startTime = tail[0].BlockTime + tradesim.DefaultBlockInterval
			}
		}
		return runSim(ctx, logger, host, seed, lastHeight, startTime, simInterval)
	case "ws":
		return runFollow(ctx, logger, host, wsEndpoint, lastHeight)
	default:
		return fmt.Errorf("unknown source: %s", source)
	}
}

// runSim drives the chain from the deterministic trade generator.
func runSim(ctx context.Context, logger *log.Logger, host *chain.Chain, seed int64, startHeight uint64, startTime int64, interval time.Duration) error {
	gen := tradesim.NewGenerator(tradesim.Options{
		Seed:        seed,
		StartHeight: startHeight,
		StartTime:   startTime,
	})
	logger.Printf("Generating blocks from height %d every %v (seed %d, %d pairs)",
		startHeight+1, interval, seed, len(gen.Pairs()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			block := gen.NextBlock()
			if err := host.ApplyBlock(ctx, block); err != nil {
				return fmt.Errorf("apply block %d: %w", block.Height, err)
			}
		}
	}
}

// runFollow streams blocks from a remote node into the chain.
func runFollow(ctx context.Context, logger *log.Logger, host *chain.Chain, endpoint string, lastHeight uint64) error {
	if endpoint == "" {
		return fmt.Errorf("--ws-endpoint is required for the ws source")
	}

	follower, err := blockfeed.NewFollower(blockfeed.Options{
		Endpoint:    endpoint,
		Sink:        host,
		LastApplied: lastHeight,
	})
	if err != nil {
		return fmt.Errorf("create follower: %w", err)
	}

	logger.Printf("Following block stream at %s from height %d", endpoint, lastHeight+1)
	return follower.Run(ctx)
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
