package export

import (
	"fmt"
	"strings"
	"time"

	"market-history-lab/internal/stats"
)

// RenderSummaryMarkdown renders pair summaries as a Markdown report.
func RenderSummaryMarkdown(summaries []*stats.PairSummary, generatedAt time.Time) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Market History Summary\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", generatedAt.UTC().Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Series: %d\n\n", len(summaries)))

	// Per-series table
	sb.WriteString("## Pair Series\n\n")
	if len(summaries) == 0 {
		sb.WriteString("No pair data available.\n")
		return sb.String()
	}

	sb.WriteString("| Pair | Duration | Buckets | Window | Open | Close | High | Low | Base Volume | Quote Volume | VWAP |\n")
	sb.WriteString("|------|----------|---------|--------|------|-------|------|-----|-------------|--------------|------|\n")
	for _, s := range summaries {
		sb.WriteString(fmt.Sprintf("| %d/%d | %ds | %d | %d..%d | %.6f | %.6f | %.6f | %.6f | %d | %d | %.6f |\n",
			s.Base, s.Quote,
			s.BucketSeconds,
			s.Buckets,
			s.FirstOpenTime, s.LastOpenTime,
			s.Open.Float64(),
			s.Close.Float64(),
			s.High.Float64(),
			s.Low.Float64(),
			s.BaseVolume,
			s.QuoteVolume,
			s.VWAP().Float64(),
		))
	}
	sb.WriteString("\n")

	return sb.String()
}
