// Package report turns accumulated revenue into the final keyword
// performance table.
package report

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/vinceanalytics/keywords/internal/attr"
)

// Header of the performance table, tab separated.
const Header = "Search Engine Domain\tSearch Keyword\tRevenue"

type Row struct {
	Domain  string
	Keyword string
	Revenue float64
}

// Result is everything one run produces.
type Result struct {
	Rows  []Row
	Stats attr.Stats
}

// Materialize orders accumulated revenue into the final table and completes
// the run statistics from it. Rows sort by revenue descending; equal revenue
// falls back to domain then keyword ascending so reruns come out byte
// identical.
func Materialize(acc *attr.RevenueAccumulator, stats attr.Stats) *Result {
	rows := make([]Row, 0, acc.Len())
	acc.Each(func(k attr.ReferralKey, revenue float64) {
		rows = append(rows, Row{Domain: k.Domain, Keyword: k.Keyword, Revenue: revenue})
	})
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Revenue != rows[j].Revenue {
			return rows[i].Revenue > rows[j].Revenue
		}
		if rows[i].Domain != rows[j].Domain {
			return rows[i].Domain < rows[j].Domain
		}
		return rows[i].Keyword < rows[j].Keyword
	})
	stats.UniqueKeywords = len(rows)
	var total float64
	for i := range rows {
		total += rows[i].Revenue
	}
	stats.TotalRevenue = total
	return &Result{Rows: rows, Stats: stats}
}

// WriteTSV renders the table with revenue fixed to two decimals. The header
// is always written, even when the table is empty.
func (r *Result) WriteTSV(w io.Writer) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(Header)
	bw.WriteByte('\n')
	for i := range r.Rows {
		row := &r.Rows[i]
		fmt.Fprintf(bw, "%s\t%s\t%.2f\n", row.Domain, row.Keyword, row.Revenue)
	}
	return bw.Flush()
}

// DefaultName is the conventional report file name for a run date.
func DefaultName(t time.Time) string {
	return t.Format("2006-01-02") + "_SearchKeywordPerformance.tab"
}
