// Package hits turns raw hit level TSV exports into arrow record batches.
// Only the four columns attribution needs survive the scan; everything else
// in the export is ignored.
package hits

import (
	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
	"github.com/apache/arrow/go/v15/arrow/memory"
)

// Required input columns, resolved by name from the header row.
const (
	ColIP          = "ip"
	ColReferrer    = "referrer"
	ColEventList   = "event_list"
	ColProductList = "product_list"
)

// Column positions inside batch records.
const (
	IP = iota
	Referrer
	EventList
	ProductList
)

var Columns = [...]string{ColIP, ColReferrer, ColEventList, ColProductList}

// Hit is one visitor interaction reduced to the fields attribution reads.
type Hit struct {
	IP          string
	Referrer    string
	EventList   string
	ProductList string
}

func Schema() *arrow.Schema {
	fields := make([]arrow.Field, len(Columns))
	for i, name := range Columns {
		fields[i] = arrow.Field{Name: name, Type: arrow.BinaryTypes.String}
	}
	return arrow.NewSchema(fields, nil)
}

// Builder accumulates hits into an arrow record, one UTF-8 column per field.
// The same builder keeps appending across NewRecord calls.
type Builder struct {
	build *array.RecordBuilder
	cols  [len(Columns)]*array.StringBuilder
}

func NewBuilder(mem memory.Allocator) *Builder {
	b := array.NewRecordBuilder(mem, Schema())
	r := &Builder{build: b}
	for i := range r.cols {
		r.cols[i] = b.Field(i).(*array.StringBuilder)
	}
	return r
}

func (b *Builder) Append(h *Hit) {
	b.cols[IP].Append(h.IP)
	b.cols[Referrer].Append(h.Referrer)
	b.cols[EventList].Append(h.EventList)
	b.cols[ProductList].Append(h.ProductList)
}

func (b *Builder) Len() int {
	return b.cols[IP].Len()
}

// NewRecord flushes buffered hits into a record the caller must Release.
func (b *Builder) NewRecord() arrow.Record {
	return b.build.NewRecord()
}

func (b *Builder) Release() {
	b.build.Release()
}

// Strings returns column i of a record built here. All columns are plain
// string arrays.
func Strings(r arrow.Record, i int) *array.String {
	return r.Column(i).(*array.String)
}
