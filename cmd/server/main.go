// Package main runs the market history query server. An embedded synthetic
// chain feeds the aggregation engine continuously, and the resulting bucket
// history is served over HTTP: candle ranges, point-in-time close prices and
// windowed pair summaries.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"market-history-lab/internal/chain"
	"market-history-lab/internal/domain"
	"market-history-lab/internal/markethistory"
	"market-history-lab/internal/observability"
	"market-history-lab/internal/query"
	"market-history-lab/internal/stats"
	"market-history-lab/internal/storage"
	"market-history-lab/internal/storage/memory"
	"market-history-lab/internal/tradesim"
)

// Server bundles the embedded pipeline with its HTTP query surface.
type Server struct {
	host    *chain.Chain
	store   storage.BucketStore
	history *query.HistoryService
	cfg     markethistory.Config
	logger  *log.Logger
	started time.Time
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	durations := flag.String("durations", "60,300,3600,86400", "Comma-separated bucket durations in seconds")
	maxHistory := flag.Uint("max-history", uint(markethistory.DefaultMaxHistory), "Buckets retained per pair and duration (0 disables eviction)")
	seed := flag.Int64("seed", 1, "Deterministic generator seed")
	simInterval := flag.Duration("sim-interval", 1*time.Second, "Delay between generated blocks")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	bucketSeconds, err := parseDurations(*durations)
	if err != nil {
		logger.Fatalf("Invalid --durations: %v", err)
	}
	cfg := markethistory.Config{
		BucketSeconds: bucketSeconds,
		MaxHistory:    uint32(*maxHistory),
	}

	store := memory.NewBucketStore()

	// Engine activity is visible through /metrics; the process log stays
	// with the HTTP lifecycle.
	engine, err := markethistory.NewEngine(markethistory.Options{
		Config: cfg,
		Store:  store,
		Logger: log.New(io.Discard, "", 0),
	})
	if err != nil {
		logger.Fatalf("Create engine: %v", err)
	}

	host := chain.New()
	host.Subscribe(engine)

	server := &Server{
		host:    host,
		store:   store,
		history: query.NewHistoryService(store),
		cfg:     engine.Config(),
		logger:  logger,
		started: time.Now(),
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to signal completion
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

	// Start HTTP server
	go server.startHTTPServer(*listenAddr)

	// Drive the embedded chain
	err = server.runSim(ctx, *seed, *simInterval)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// runSim drives the embedded chain from the deterministic trade generator.
func (s *Server) runSim(ctx context.Context, seed int64, interval time.Duration) error {
	gen := tradesim.NewGenerator(tradesim.Options{Seed: seed})
	s.logger.Printf("Generating blocks every %v (seed %d, %d pairs)", interval, seed, len(gen.Pairs()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			block := gen.NextBlock()
			if err := s.host.ApplyBlock(ctx, block); err != nil {
				return fmt.Errorf("apply block %d: %w", block.Height, err)
			}
		}
	}
}

// startHTTPServer serves health, status, metrics and the query API.
func (s *Server) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Status and query API
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/api/buckets", s.handleBuckets)
	mux.HandleFunc("/api/price", s.handlePrice)
	mux.HandleFunc("/api/summary", s.handleSummary)

	s.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status        string   `json:"status"`
	Uptime        string   `json:"uptime"`
	ChainHeight   uint64   `json:"chain_height"`
	ChainTime     int64    `json:"chain_time"`
	BucketSeconds []uint32 `json:"bucket_seconds"`
	MaxHistory    uint32   `json:"max_history"`
	Buckets       int      `json:"buckets"`
	Series        int      `json:"series"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	buckets, series, err := countIndex(r.Context(), s.store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, StatusResponse{
		Status:        "running",
		Uptime:        time.Since(s.started).String(),
		ChainHeight:   s.host.Height(),
		ChainTime:     s.host.Timestamp(),
		BucketSeconds: s.cfg.BucketSeconds,
		MaxHistory:    s.cfg.MaxHistory,
		Buckets:       buckets,
		Series:        series,
	})
}

// bucketJSON is the wire form of one bucket. The integer amount pairs are
// authoritative; the float price fields are derived for display.
type bucketJSON struct {
	Base          domain.AssetID `json:"base"`
	Quote         domain.AssetID `json:"quote"`
	BucketSeconds uint32         `json:"bucket_seconds"`
	OpenTime      int64          `json:"open_time"`

	OpenBase   int64 `json:"open_base"`
	OpenQuote  int64 `json:"open_quote"`
	CloseBase  int64 `json:"close_base"`
	CloseQuote int64 `json:"close_quote"`
	HighBase   int64 `json:"high_base"`
	HighQuote  int64 `json:"high_quote"`
	LowBase    int64 `json:"low_base"`
	LowQuote   int64 `json:"low_quote"`

	BaseVolume  int64 `json:"base_volume"`
	QuoteVolume int64 `json:"quote_volume"`

	Open  float64 `json:"open"`
	Close float64 `json:"close"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
}

func toBucketJSON(rec *domain.BucketRecord) bucketJSON {
	return bucketJSON{
		Base:          rec.Key.Base,
		Quote:         rec.Key.Quote,
		BucketSeconds: rec.Key.BucketSeconds,
		OpenTime:      rec.Key.OpenTime,
		OpenBase:      rec.OpenBase,
		OpenQuote:     rec.OpenQuote,
		CloseBase:     rec.CloseBase,
		CloseQuote:    rec.CloseQuote,
		HighBase:      rec.HighBase,
		HighQuote:     rec.HighQuote,
		LowBase:       rec.LowBase,
		LowQuote:      rec.LowQuote,
		BaseVolume:    rec.BaseVolume,
		QuoteVolume:   rec.QuoteVolume,
		Open:          rec.OpenPrice().Float64(),
		Close:         rec.ClosePrice().Float64(),
		High:          rec.HighPrice().Float64(),
		Low:           rec.LowPrice().Float64(),
	}
}

// handleBuckets returns the buckets of one series within [from, to].
// GET /api/buckets?base=1&quote=2&duration=60&from=0&to=1600003600
func (s *Server) handleBuckets(w http.ResponseWriter, r *http.Request) {
	base, quote, duration, err := parseSeriesParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	from, err := parseInt64Param(r, "from", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseInt64Param(r, "to", math.MaxInt64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	recs, err := s.history.Buckets(r.Context(), base, quote, duration, from, to)
	if err != nil {
		writeQueryError(w, err)
		return
	}

	out := make([]bucketJSON, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toBucketJSON(rec))
	}
	writeJSON(w, out)
}

// priceJSON is the wire form of a point-in-time price.
type priceJSON struct {
	BaseAmount  int64   `json:"base_amount"`
	QuoteAmount int64   `json:"quote_amount"`
	Price       float64 `json:"price"`
	At          int64   `json:"at"`
}

// handlePrice returns the close price of the latest bucket at or before the
// requested time. at defaults to the chain's current time.
// GET /api/price?base=1&quote=2&duration=60&at=1600003600
func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	base, quote, duration, err := parseSeriesParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	at, err := parseInt64Param(r, "at", s.host.Timestamp())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	price, err := s.history.ClosePriceAt(r.Context(), base, quote, duration, at)
	if err != nil {
		writeQueryError(w, err)
		return
	}

	writeJSON(w, priceJSON{
		BaseAmount:  price.BaseAmount,
		QuoteAmount: price.QuoteAmount,
		Price:       price.Float64(),
		At:          at,
	})
}

// summaryJSON is the wire form of a windowed pair summary.
type summaryJSON struct {
	Base          domain.AssetID `json:"base"`
	Quote         domain.AssetID `json:"quote"`
	BucketSeconds uint32         `json:"bucket_seconds"`

	Buckets       int   `json:"buckets"`
	FirstOpenTime int64 `json:"first_open_time"`
	LastOpenTime  int64 `json:"last_open_time"`

	Open  float64 `json:"open"`
	Close float64 `json:"close"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`

	BaseVolume  int64   `json:"base_volume"`
	QuoteVolume int64   `json:"quote_volume"`
	VWAP        float64 `json:"vwap"`
}

// handleSummary returns windowed statistics of one series.
// GET /api/summary?base=1&quote=2&duration=60&from=0&to=1600003600
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	base, quote, duration, err := parseSeriesParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	from, err := parseInt64Param(r, "from", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseInt64Param(r, "to", math.MaxInt64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	recs, err := s.history.Buckets(r.Context(), base, quote, duration, from, to)
	if err != nil {
		writeQueryError(w, err)
		return
	}

	summary, err := stats.Summarize(recs)
	if err != nil {
		if errors.Is(err, stats.ErrNoBuckets) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, summaryJSON{
		Base:          summary.Base,
		Quote:         summary.Quote,
		BucketSeconds: summary.BucketSeconds,
		Buckets:       summary.Buckets,
		FirstOpenTime: summary.FirstOpenTime,
		LastOpenTime:  summary.LastOpenTime,
		Open:          summary.Open.Float64(),
		Close:         summary.Close.Float64(),
		High:          summary.High.Float64(),
		Low:           summary.Low.Float64(),
		BaseVolume:    summary.BaseVolume,
		QuoteVolume:   summary.QuoteVolume,
		VWAP:          summary.VWAP().Float64(),
	})
}

// parseSeriesParams reads the base, quote and duration query parameters.
func parseSeriesParams(r *http.Request) (domain.AssetID, domain.AssetID, uint32, error) {
	base, err := parseUint64Param(r, "base")
	if err != nil {
		return 0, 0, 0, err
	}
	quote, err := parseUint64Param(r, "quote")
	if err != nil {
		return 0, 0, 0, err
	}
	raw := r.URL.Query().Get("duration")
	if raw == "" {
		return 0, 0, 0, fmt.Errorf("missing query parameter %q", "duration")
	}
	duration, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("query parameter %q: %w", "duration", err)
	}
	return domain.AssetID(base), domain.AssetID(quote), uint32(duration), nil
}

// parseUint64Param reads a required uint64 query parameter.
func parseUint64Param(r *http.Request, name string) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("missing query parameter %q", name)
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("query parameter %q: %w", name, err)
	}
	return v, nil
}

// parseInt64Param reads an optional int64 query parameter.
func parseInt64Param(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("query parameter %q: %w", name, err)
	}
	return v, nil
}

// writeQueryError maps query-layer sentinel errors onto HTTP statuses.
func writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// countIndex tallies the live index: total buckets and distinct series.
func countIndex(ctx context.Context, store storage.BucketStore) (buckets, series int, err error) {
	var last domain.BucketKey
	err = store.AscendFrom(ctx, domain.BucketKey{}, func(rec *domain.BucketRecord) bool {
		buckets++
		if buckets == 1 || !rec.Key.SameSeries(last) {
			series++
			last = rec.Key
		}
		return true
	})
	return buckets, series, err
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

// envOr returns the environment value of key, or def when unset.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
