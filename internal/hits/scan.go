package hits

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/memory"
	"github.com/klauspost/compress/gzip"
	"github.com/vinceanalytics/keywords/internal/log"
)

// DefaultBatchSize is how many rows a scan buffers before handing a record to
// the consumer. Half a million rows of four string columns keeps a full pass
// over a multi gigabyte export inside a modest, flat memory ceiling.
const DefaultBatchSize = 500_000

// Rows in hit exports can carry very long referrer URLs and product lists.
const maxLineSize = 16 << 20

var ErrMissingColumns = errors.New("hits: input is missing required columns")

// OpenFunc yields a fresh reader over the raw input. Every scan calls it
// once, so one Source can drive any number of passes over identical data.
type OpenFunc func() (io.ReadCloser, error)

// File returns an opener for a local path. A .gz suffix is decompressed on
// the fly, which is how large exports usually arrive.
func File(path string) OpenFunc {
	return func() (io.ReadCloser, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		if !strings.HasSuffix(path, ".gz") {
			return f, nil
		}
		z, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &gzFile{Reader: z, f: f}, nil
	}
}

type gzFile struct {
	*gzip.Reader
	f *os.File
}

func (z *gzFile) Close() error {
	err := z.Reader.Close()
	if e := z.f.Close(); err == nil {
		err = e
	}
	return err
}

// Source scans TSV hit exports into record batches. It holds no open file
// between scans.
type Source struct {
	open  OpenFunc
	batch int64
	mem   memory.Allocator
}

func NewSource(open OpenFunc, batch int64) *Source {
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &Source{open: open, batch: batch, mem: memory.NewGoAllocator()}
}

// ScanStats summarizes one complete scan.
type ScanStats struct {
	Rows    int64 // data rows delivered in records
	Skipped int64 // data rows dropped for a missing ip
}

// Scan streams the whole input as records of at most the batch size, calling
// f once per record in input order. Records are released after f returns, so
// f retains or copies anything it keeps. Short rows degrade to empty fields;
// rows without an ip are counted and dropped since nothing can join them.
func (s *Source) Scan(ctx context.Context, f func(arrow.Record) error) (stats ScanStats, err error) {
	r, err := s.open()
	if err != nil {
		return stats, fmt.Errorf("hits: opening input: %w", err)
	}
	defer r.Close()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return stats, fmt.Errorf("hits: reading header: %w", err)
		}
		return stats, fmt.Errorf("%w: empty input", ErrMissingColumns)
	}
	hdr := strings.TrimPrefix(line(sc), "\ufeff")
	idx, err := resolve(strings.Split(hdr, "\t"))
	if err != nil {
		return stats, err
	}

	b := NewBuilder(s.mem)
	defer b.Release()
	flush := func() error {
		rec := b.NewRecord()
		defer rec.Release()
		return f(rec)
	}
	lg := log.Ctx(ctx)
	n := int64(1)
	for sc.Scan() {
		n++
		row := strings.Split(line(sc), "\t")
		h := Hit{
			IP:          field(row, idx[IP]),
			Referrer:    field(row, idx[Referrer]),
			EventList:   field(row, idx[EventList]),
			ProductList: field(row, idx[ProductList]),
		}
		if h.IP == "" {
			stats.Skipped++
			lg.Debug().Int64("line", n).Msg("skipping row without an ip")
			continue
		}
		b.Append(&h)
		stats.Rows++
		if int64(b.Len()) >= s.batch {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("hits: reading input: %w", err)
	}
	if b.Len() > 0 {
		if err := flush(); err != nil {
			return stats, err
		}
	}
	if stats.Skipped > 0 {
		lg.Warn().Int64("skipped", stats.Skipped).Msg("dropped rows without an ip")
	}
	return stats, nil
}

// line strips the \r that Windows produced exports leave behind.
func line(sc *bufio.Scanner) string {
	return strings.TrimSuffix(sc.Text(), "\r")
}

// field is forgiving about short rows: anything past the edge is empty.
func field(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func resolve(header []string) (idx [len(Columns)]int, err error) {
	var missing []string
	for i, want := range Columns {
		idx[i] = -1
		for pos, name := range header {
			if name == want {
				idx[i] = pos
				break
			}
		}
		if idx[i] < 0 {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return idx, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return idx, nil
}
