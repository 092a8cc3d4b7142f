package attr

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vinceanalytics/keywords/internal/hits"
)

const header = "ip\treferrer\tevent_list\tproduct_list\n"

func source(t *testing.T, rows string, batch int64) *hits.Source {
	t.Helper()
	data := header + rows
	return hits.NewSource(func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(data)), nil
	}, batch)
}

func TestFirstReferralWins(t *testing.T) {
	src := source(t, strings.Join([]string{
		"1.1.1.1\thttp://www.google.com/search?q=ipod\t\t",
		"1.1.1.1\thttp://www.bing.com/search?q=zune\t\t",
		"1.1.1.1\t\t1\tA;B;1;100;",
	}, "\n"), 0)

	idx := NewReferralIndex()
	require.NoError(t, BuildIndex(context.Background(), src, idx, 1))
	require.Equal(t, 1, idx.Len())
	key, ok := idx.Lookup("1.1.1.1")
	require.True(t, ok)
	require.Equal(t, ReferralKey{Domain: "www.google.com", Keyword: "ipod"}, key)
}

func TestInsertIsWriteOnce(t *testing.T) {
	idx := NewReferralIndex()
	idx.Insert("a", ReferralKey{Domain: "google.com", Keyword: "x"})
	idx.Insert("a", ReferralKey{Domain: "bing.com", Keyword: "y"})
	key, ok := idx.Lookup("a")
	require.True(t, ok)
	require.Equal(t, "google.com", key.Domain)
	require.Equal(t, 1, idx.Len())

	_, ok = idx.Lookup("b")
	require.False(t, ok)
}

func TestPurchaseWithoutReferralIsDropped(t *testing.T) {
	src := source(t, strings.Join([]string{
		"1.1.1.1\thttp://www.esshopzilla.com/\t\t",
		"1.1.1.1\t\t1\tA;B;1;100;",
		"2.2.2.2\t\t1\tA;B;1;50;",
	}, "\n"), 0)

	acc, stats, err := runAll(t, src, 1)
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.RowsProcessed)
	require.Equal(t, int64(0), stats.PurchasesFound)
	require.Equal(t, 0, acc.Len())
}

func TestZeroRevenueAndNonPurchaseEvents(t *testing.T) {
	src := source(t, strings.Join([]string{
		"1.1.1.1\thttp://www.google.com/search?q=ipod\t\t",
		// event 2 is not a purchase even with revenue present
		"1.1.1.1\t\t2\tA;B;1;100;",
		// purchase event with an empty revenue field contributes nothing
		"1.1.1.1\t\t1\tA;B;1;;",
	}, "\n"), 0)

	acc, stats, err := runAll(t, src, 1)
	require.NoError(t, err)
	require.Equal(t, int64(0), stats.PurchasesFound)
	require.Equal(t, 0, acc.Len())
}

func TestAccumulatorSums(t *testing.T) {
	acc := NewRevenueAccumulator()
	key := ReferralKey{Domain: "google.com", Keyword: "ipod"}
	acc.Add(key, 100)
	acc.Add(key, 50.5)
	acc.Add(ReferralKey{Domain: "bing.com", Keyword: "zune"}, 10)
	require.Equal(t, 2, acc.Len())

	sums := map[ReferralKey]float64{}
	acc.Each(func(k ReferralKey, v float64) { sums[k] = v })
	require.Equal(t, 150.5, sums[key])
}

func TestRowsProcessedCountsSkippedRows(t *testing.T) {
	src := source(t, strings.Join([]string{
		"1.1.1.1\thttp://www.google.com/search?q=ipod\t\t",
		"\thttp://www.google.com/search?q=lost\t\t",
		"1.1.1.1\t\t1\tA;B;1;25;",
	}, "\n"), 0)

	_, stats, err := runAll(t, src, 1)
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.RowsProcessed)
	require.Equal(t, int64(1), stats.RowsSkipped)
	require.Equal(t, int64(1), stats.PurchasesFound)
}

// The canonical four row scenario: two visitors arrive from google and bing,
// both buy later in the session.
func TestRunScenario(t *testing.T) {
	src := hits.NewSource(hits.File("testdata/hits.tsv"), 0)

	acc, stats, err := Run(context.Background(), src, 1)
	require.NoError(t, err)
	require.Equal(t, int64(4), stats.RowsProcessed)
	require.Equal(t, int64(2), stats.PurchasesFound)
	require.Equal(t, 2, acc.Len())

	sums := map[ReferralKey]float64{}
	acc.Each(func(k ReferralKey, v float64) { sums[k] = v })
	require.Equal(t, 290.0, sums[ReferralKey{Domain: "www.google.com", Keyword: "ipod"}])
	require.Equal(t, 250.0, sums[ReferralKey{Domain: "www.bing.com", Keyword: "zune"}])
}

// Worker counts must not change results: effects apply in batch order behind
// a sequence gate.
func TestRunParallelMatchesSequential(t *testing.T) {
	var rows []string
	// interleave referrals and purchases across many small batches, with a
	// late conflicting referral that must lose
	rows = append(rows,
		"9.9.9.9\thttp://www.google.com/search?q=first\t\t",
		"9.9.9.9\thttp://www.bing.com/search?q=second\t\t",
	)
	for i := 0; i < 97; i++ {
		rows = append(rows,
			"9.9.9.9\t\t1\tA;B;1;3;",
			"8.8.8.8\thttp://search.yahoo.com/search?p=cd+player\t\t",
			"8.8.8.8\t\t1\tA;B;1;7;",
		)
	}
	data := strings.Join(rows, "\n")

	baseline, bstats, err := runAll(t, source(t, data, 8), 1)
	require.NoError(t, err)

	for _, workers := range []int{2, 4} {
		acc, stats, err := runAll(t, source(t, data, 8), workers)
		require.NoError(t, err)
		require.Equal(t, bstats, stats)
		require.Equal(t, sums(baseline), sums(acc))
	}
}

func runAll(t *testing.T, src *hits.Source, workers int) (*RevenueAccumulator, Stats, error) {
	t.Helper()
	return Run(context.Background(), src, workers)
}

func sums(acc *RevenueAccumulator) map[ReferralKey]float64 {
	m := map[ReferralKey]float64{}
	acc.Each(func(k ReferralKey, v float64) { m[k] = v })
	return m
}
