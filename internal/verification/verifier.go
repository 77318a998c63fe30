// Package verification checks that live bucket state matches a deterministic
// rebuild from the fill journal. All bucket fields are integers, so the
// comparison is exact: any difference is a divergence.
package verification

import (
	"context"
	"fmt"
	"io"
	"log"

	"market-history-lab/internal/domain"
	"market-history-lab/internal/markethistory"
	"market-history-lab/internal/replay"
	"market-history-lab/internal/storage"
	"market-history-lab/internal/storage/memory"
)

// FieldDivergence represents a mismatch between live and replayed values.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // live value
	Actual   interface{} // replayed value
}

// BucketResult contains the divergences of one bucket key.
type BucketResult struct {
	Key         domain.BucketKey
	Divergences []FieldDivergence
}

// Report contains the outcome of one verification pass.
type Report struct {
	LiveBuckets     int
	ReplayedBuckets int
	MatchedBuckets  int

	Divergent       []BucketResult     // keys present on both sides with differing fields
	MissingInReplay []domain.BucketKey // live keys the rebuild did not produce
	ExtraInReplay   []domain.BucketKey // rebuilt keys absent from the live store
}

// Match reports whether the live store and the rebuild agree exactly.
func (r *Report) Match() bool {
	return len(r.Divergent) == 0 && len(r.MissingInReplay) == 0 && len(r.ExtraInReplay) == 0
}

// Verifier replays the fill journal into a fresh in-memory store through an
// aggregation engine configured like the live one, then compares the rebuilt
// buckets against the live store key by key.
type Verifier struct {
	journal storage.FillJournal
	live    storage.BucketStore
	cfg     markethistory.Config
}

// NewVerifier creates a Verifier. cfg must be the configuration the live
// engine ran with, or the rebuild diverges by construction.
func NewVerifier(journal storage.FillJournal, live storage.BucketStore, cfg markethistory.Config) *Verifier {
	return &Verifier{journal: journal, live: live, cfg: cfg}
}

// VerifyAll rebuilds bucket state from the whole journal and compares it
// with the live store.
func (v *Verifier) VerifyAll(ctx context.Context) (*Report, error) {
	rebuilt := memory.NewBucketStore()
	eng, err := markethistory.NewEngine(markethistory.Options{
		Config: v.cfg,
		Store:  rebuilt,
		Logger: log.New(io.Discard, "", 0),
	})
	if err != nil {
		return nil, fmt.Errorf("configure rebuild engine: %w", err)
	}

	if _, err := replay.NewRunner(v.journal).Run(ctx, eng); err != nil {
		return nil, fmt.Errorf("replay journal: %w", err)
	}

	liveRecs, err := collectAll(ctx, v.live)
	if err != nil {
		return nil, fmt.Errorf("scan live store: %w", err)
	}
	replayedRecs, err := collectAll(ctx, rebuilt)
	if err != nil {
		return nil, fmt.Errorf("scan rebuilt store: %w", err)
	}

	report := &Report{
		LiveBuckets:     len(liveRecs),
		ReplayedBuckets: len(replayedRecs),
	}

	// Both slices are in ascending key order; merge-walk them.
	i, j := 0, 0
	for i < len(liveRecs) || j < len(replayedRecs) {
		switch {
		case j >= len(replayedRecs) || (i < len(liveRecs) && liveRecs[i].Key.Less(replayedRecs[j].Key)):
			report.MissingInReplay = append(report.MissingInReplay, liveRecs[i].Key)
			i++
		case i >= len(liveRecs) || replayedRecs[j].Key.Less(liveRecs[i].Key):
			report.ExtraInReplay = append(report.ExtraInReplay, replayedRecs[j].Key)
			j++
		default:
			divergences := CompareBucketRecords(liveRecs[i], replayedRecs[j])
			if len(divergences) == 0 {
				report.MatchedBuckets++
			} else {
				report.Divergent = append(report.Divergent, BucketResult{
					Key:         liveRecs[i].Key,
					Divergences: divergences,
				})
			}
			i++
			j++
		}
	}

	return report, nil
}

// CompareBucketRecords compares two records of the same key field by field.
// Every field is an exact integer; there is no tolerance.
func CompareBucketRecords(live, replayed *domain.BucketRecord) []FieldDivergence {
	fields := []struct {
		name           string
		live, replayed int64
	}{
		{"OpenBase", live.OpenBase, replayed.OpenBase},
		{"OpenQuote", live.OpenQuote, replayed.OpenQuote},
		{"CloseBase", live.CloseBase, replayed.CloseBase},
		{"CloseQuote", live.CloseQuote, replayed.CloseQuote},
		{"HighBase", live.HighBase, replayed.HighBase},
		{"HighQuote", live.HighQuote, replayed.HighQuote},
		{"LowBase", live.LowBase, replayed.LowBase},
		{"LowQuote", live.LowQuote, replayed.LowQuote},
		{"BaseVolume", live.BaseVolume, replayed.BaseVolume},
		{"QuoteVolume", live.QuoteVolume, replayed.QuoteVolume},
	}

	var divergences []FieldDivergence
	for _, f := range fields {
		if f.live != f.replayed {
			divergences = append(divergences, FieldDivergence{
				Field:    f.name,
				Expected: f.live,
				Actual:   f.replayed,
			})
		}
	}
	return divergences
}

func collectAll(ctx context.Context, store storage.BucketStore) ([]*domain.BucketRecord, error) {
	var recs []*domain.BucketRecord
	err := store.AscendFrom(ctx, domain.BucketKey{}, func(rec *domain.BucketRecord) bool {
		recs = append(recs, rec)
		return true
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}
