package pipeline

import (
	"context"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

var nSchema = arrow.NewSchema([]arrow.Field{{Name: "n", Type: arrow.PrimitiveTypes.Int64}}, nil)

// intTable builds a single-column int64 table.
func intTable(mem memory.Allocator, vals ...int64) arrow.Table {
	b := array.NewInt64Builder(mem)
	defer b.Release()
	b.AppendValues(vals, nil)
	arr := b.NewArray()
	defer arr.Release()
	rec := array.NewRecord(nSchema, []arrow.Array{arr}, int64(len(vals)))
	defer rec.Release()
	return array.NewTableFromRecords(nSchema, []arrow.Record{rec})
}

func ints(tbl arrow.Table) []int64 {
	var out []int64
	for _, chunk := range tbl.Column(0).Data().Chunks() {
		out = append(out, chunk.(*array.Int64).Int64Values()...)
	}
	return out
}

// mapInts returns a step producing a new table with fn applied to each value.
func mapInts(mem memory.Allocator, fn func(int64) int64) Step {
	return func(ctx context.Context, in arrow.Table) (arrow.Table, error) {
		vals := ints(in)
		for i := range vals {
			vals[i] = fn(vals[i])
		}
		return intTable(mem, vals...), nil
	}
}

func equalInts(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// hookObserver implements Observer with optional hooks for testing.
type hookObserver struct {
	beforePipeline func(ctx context.Context, runID, name string, input arrow.Table) error
	afterPipeline  func(ctx context.Context, runID string, result arrow.Table, err error) error
	beforeStep     func(ctx context.Context, runID string, index int, input arrow.Table) error
	afterStep      func(ctx context.Context, runID string, index int, input, output arrow.Table, stepErr error, d time.Duration) error
}

func (h *hookObserver) BeforePipeline(ctx context.Context, runID, name string, input arrow.Table) error {
	if h.beforePipeline != nil {
		return h.beforePipeline(ctx, runID, name, input)
	}
	return nil
}

func (h *hookObserver) AfterPipeline(ctx context.Context, runID string, result arrow.Table, err error) error {
	if h.afterPipeline != nil {
		return h.afterPipeline(ctx, runID, result, err)
	}
	return nil
}

func (h *hookObserver) BeforeStep(ctx context.Context, runID string, index int, input arrow.Table) error {
	if h.beforeStep != nil {
		return h.beforeStep(ctx, runID, index, input)
	}
	return nil
}

func (h *hookObserver) AfterStep(ctx context.Context, runID string, index int, input, output arrow.Table, stepErr error, d time.Duration) error {
	if h.afterStep != nil {
		return h.afterStep(ctx, runID, index, input, output, stepErr, d)
	}
	return nil
}
