// Package attr implements first touch revenue attribution as two bounded
// memory passes over the same hit export. The first pass pins every visitor
// to the search referral that brought them; the second charges each purchase
// to that referral. Holding only the visitor index and the per keyword sums
// keeps a run flat in memory regardless of input size.
package attr

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/vinceanalytics/keywords/internal/extract"
	"github.com/vinceanalytics/keywords/internal/hits"
	"github.com/vinceanalytics/keywords/internal/log"
)

// Stats describes one complete run. UniqueKeywords and TotalRevenue come from
// the materialized table, the rest from the second pass.
type Stats struct {
	RowsProcessed  int64
	RowsSkipped    int64
	PurchasesFound int64
	UniqueKeywords int
	TotalRevenue   float64
}

type referral struct {
	ip  string
	key ReferralKey
}

// BuildIndex runs the first pass: every record whose referrer resolves to a
// recognized search engine claims the visitor's first touch, in input order.
func BuildIndex(ctx context.Context, src *hits.Source, idx *ReferralIndex, workers int) error {
	start := time.Now()
	stats, err := forEach(ctx, src, workers,
		func(r arrow.Record) []referral {
			ips := hits.Strings(r, hits.IP)
			refs := hits.Strings(r, hits.Referrer)
			var out []referral
			for i := 0; i < int(r.NumRows()); i++ {
				domain, keyword := extract.DomainKeyword(refs.Value(i))
				if !extract.IsEngine(domain) {
					continue
				}
				out = append(out, referral{
					ip:  ips.Value(i),
					key: ReferralKey{Domain: domain, Keyword: keyword},
				})
			}
			return out
		},
		func(rs []referral) {
			for _, r := range rs {
				idx.Insert(r.ip, r.key)
			}
		},
	)
	if err != nil {
		return fmt.Errorf("building referral index: %w", err)
	}
	log.Ctx(ctx).Info().
		Int64("rows", stats.Rows).
		Int("visitors", idx.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("referral index built")
	return nil
}

type purchase struct {
	ip      string
	revenue float64
}

type batchRevenue struct {
	rows      int64
	purchases []purchase
}

// Aggregate runs the second pass over the same input, charging every
// attributable purchase to the visitor's first referral. The index must be
// complete before this starts. RowsProcessed counts every data row in the
// input, identifier skipped rows included.
func Aggregate(ctx context.Context, src *hits.Source, idx *ReferralIndex, acc *RevenueAccumulator, workers int) (Stats, error) {
	var stats Stats
	start := time.Now()
	scan, err := forEach(ctx, src, workers,
		func(r arrow.Record) batchRevenue {
			ips := hits.Strings(r, hits.IP)
			events := hits.Strings(r, hits.EventList)
			products := hits.Strings(r, hits.ProductList)
			br := batchRevenue{rows: r.NumRows()}
			for i := 0; i < int(r.NumRows()); i++ {
				if !extract.IsPurchase(events.Value(i)) {
					continue
				}
				rev := extract.Revenue(products.Value(i))
				if rev <= 0 {
					continue
				}
				br.purchases = append(br.purchases, purchase{ip: ips.Value(i), revenue: rev})
			}
			return br
		},
		func(br batchRevenue) {
			stats.RowsProcessed += br.rows
			for _, p := range br.purchases {
				key, ok := idx.Lookup(p.ip)
				if !ok {
					continue
				}
				acc.Add(key, p.revenue)
				stats.PurchasesFound++
			}
		},
	)
	if err != nil {
		return stats, fmt.Errorf("aggregating revenue: %w", err)
	}
	stats.RowsProcessed += scan.Skipped
	stats.RowsSkipped = scan.Skipped
	log.Ctx(ctx).Info().
		Int64("rows", stats.RowsProcessed).
		Int64("purchases", stats.PurchasesFound).
		Int("keywords", acc.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("revenue aggregated")
	return stats, nil
}

// Run executes both passes in order against fresh state and returns the
// loaded accumulator. Callers materialize the table from it.
func Run(ctx context.Context, src *hits.Source, workers int) (*RevenueAccumulator, Stats, error) {
	idx := NewReferralIndex()
	if err := BuildIndex(ctx, src, idx, workers); err != nil {
		return nil, Stats{}, err
	}
	acc := NewRevenueAccumulator()
	stats, err := Aggregate(ctx, src, idx, acc, workers)
	if err != nil {
		return nil, stats, err
	}
	return acc, stats, nil
}
