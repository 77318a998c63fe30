// Package export renders bucket history for chart tooling: CSV for the raw
// series and Markdown for pair summaries. Exact integer amount pairs are
// always emitted; float columns are derived for display only.
package export

import (
	"fmt"
	"strings"

	"market-history-lab/internal/domain"
)

// RenderBucketsCSV renders bucket records as a CSV string. Records are
// emitted in the order given; callers pass ordered ranges.
func RenderBucketsCSV(recs []*domain.BucketRecord) string {
	var sb strings.Builder

	// Header
	sb.WriteString("base,quote,bucket_seconds,open_time,")
	sb.WriteString("open_base,open_quote,close_base,close_quote,")
	sb.WriteString("high_base,high_quote,low_base,low_quote,")
	sb.WriteString("base_volume,quote_volume,")
	sb.WriteString("open,close,high,low\n")

	// Rows
	for _, r := range recs {
		sb.WriteString(fmt.Sprintf("%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%.6f,%.6f,%.6f,%.6f\n",
			r.Key.Base,
			r.Key.Quote,
			r.Key.BucketSeconds,
			r.Key.OpenTime,
			r.OpenBase,
			r.OpenQuote,
			r.CloseBase,
			r.CloseQuote,
			r.HighBase,
			r.HighQuote,
			r.LowBase,
			r.LowQuote,
			r.BaseVolume,
			r.QuoteVolume,
			r.OpenPrice().Float64(),
			r.ClosePrice().Float64(),
			r.HighPrice().Float64(),
			r.LowPrice().Float64(),
		))
	}

	return sb.String()
}
