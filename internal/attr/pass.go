package attr

import (
	"context"
	"sync"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/vinceanalytics/keywords/internal/hits"
	"golang.org/x/sync/errgroup"
)

// forEach drives one scan of src. extract turns a record into a pass specific
// partial result on a worker goroutine and must not touch shared state; apply
// folds partials into shared state and always runs on one goroutine in record
// order, so batch effects land exactly as a sequential scan would produce
// them no matter how many workers run.
func forEach[T any](ctx context.Context, src *hits.Source, workers int, extract func(arrow.Record) T, apply func(T)) (hits.ScanStats, error) {
	if workers <= 1 {
		return src.Scan(ctx, func(r arrow.Record) error {
			apply(extract(r))
			return nil
		})
	}

	type job struct {
		seq int64
		rec arrow.Record
	}
	type out struct {
		seq int64
		val T
	}
	jobs := make(chan job, workers)
	outs := make(chan out, workers)

	g, gctx := errgroup.WithContext(ctx)
	var stats hits.ScanStats
	g.Go(func() error {
		defer close(jobs)
		var seq int64
		s, err := src.Scan(gctx, func(r arrow.Record) error {
			r.Retain()
			select {
			case jobs <- job{seq: seq, rec: r}:
				seq++
				return nil
			case <-gctx.Done():
				r.Release()
				return gctx.Err()
			}
		})
		stats = s
		return err
	})

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			defer wg.Done()
			for j := range jobs {
				v := extract(j.rec)
				j.rec.Release()
				select {
				case outs <- out{seq: j.seq, val: v}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(outs)
	}()

	g.Go(func() error {
		pending := make(map[int64]T)
		var next int64
		for o := range outs {
			pending[o.seq] = o.val
			for {
				v, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				apply(v)
				next++
			}
		}
		return nil
	})
	err := g.Wait()
	return stats, err
}
