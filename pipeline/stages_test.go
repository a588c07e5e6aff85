package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

func TestIdentity(t *testing.T) {
	in := intTable(memory.DefaultAllocator, 1, 2, 3)
	defer in.Release()
	out, err := Identity()(context.Background(), in)
	if err != nil {
		t.Fatalf("Identity: err = %v", err)
	}
	if out != in {
		t.Errorf("Identity: got %v", out)
	}
}

func TestTap(t *testing.T) {
	ctx := context.Background()
	in := intTable(memory.DefaultAllocator, 5)
	defer in.Release()

	var seenCtx context.Context
	var seenInput arrow.Table
	stage := Tap(func(c context.Context, tbl arrow.Table) {
		seenCtx = c
		seenInput = tbl
	})
	out, err := stage(ctx, in)
	if err != nil {
		t.Fatalf("Tap: err = %v", err)
	}
	if seenCtx != ctx || seenInput != in {
		t.Errorf("Tap: fn called with ctx=%v input=%v", seenCtx, seenInput)
	}
	if out != in {
		t.Errorf("Tap: want input back, got %v", out)
	}
}

func TestValidate_Pass(t *testing.T) {
	in := intTable(memory.DefaultAllocator, 1)
	defer in.Release()
	stage := Validate(func(tbl arrow.Table) bool { return tbl.NumCols() == 1 }, "one column")
	out, err := stage(context.Background(), in)
	if err != nil {
		t.Errorf("Validate: err = %v", err)
	}
	if out != in {
		t.Errorf("Validate: got %v", out)
	}
}

func TestValidate_Fail(t *testing.T) {
	in := intTable(memory.DefaultAllocator, 1)
	defer in.Release()
	stage := Validate(func(tbl arrow.Table) bool { return tbl.NumRows() > 5 }, "need more rows")
	_, err := stage(context.Background(), in)
	if err == nil {
		t.Fatal("Validate: expected error")
	}
	if err.Error() != "need more rows" {
		t.Errorf("Validate: error %q", err.Error())
	}
}

func TestValidate_DefaultMessage(t *testing.T) {
	in := intTable(memory.DefaultAllocator, 1)
	defer in.Release()
	_, err := Validate(func(arrow.Table) bool { return false }, "")(context.Background(), in)
	if err == nil || err.Error() != "validation failed" {
		t.Errorf("Validate: got %v", err)
	}
}

func TestRequireRows(t *testing.T) {
	in := intTable(memory.DefaultAllocator, 1, 2)
	defer in.Release()
	if _, err := RequireRows(2)(context.Background(), in); err != nil {
		t.Errorf("RequireRows(2): err = %v", err)
	}
	if _, err := RequireRows(3)(context.Background(), in); err == nil {
		t.Error("RequireRows(3): expected error")
	}
}

func TestConform(t *testing.T) {
	in := intTable(memory.DefaultAllocator, 1)
	defer in.Release()
	ctx := context.Background()

	withMeta := arrow.NewSchema([]arrow.Field{{
		Name:     "n",
		Type:     arrow.PrimitiveTypes.Int64,
		Metadata: arrow.NewMetadata([]string{"role"}, []string{"numerical"}),
	}}, nil)
	if _, err := Conform(withMeta)(ctx, in); err != nil {
		t.Errorf("Conform: metadata should be ignored, got %v", err)
	}

	cases := map[string]*arrow.Schema{
		"name": arrow.NewSchema([]arrow.Field{{Name: "m", Type: arrow.PrimitiveTypes.Int64}}, nil),
		"type": arrow.NewSchema([]arrow.Field{{Name: "n", Type: arrow.PrimitiveTypes.Int32}}, nil),
		"count": arrow.NewSchema([]arrow.Field{
			{Name: "n", Type: arrow.PrimitiveTypes.Int64},
			{Name: "extra", Type: arrow.BinaryTypes.String},
		}, nil),
	}
	for name, schema := range cases {
		_, err := Conform(schema)(ctx, in)
		if !errors.Is(err, ErrSchemaDrift) {
			t.Errorf("Conform(%s): expected ErrSchemaDrift, got %v", name, err)
		}
	}
}

func TestWithTimeout(t *testing.T) {
	in := intTable(memory.DefaultAllocator, 1)
	defer in.Release()
	slow := func(ctx context.Context, in arrow.Table) (arrow.Table, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return in, nil
		}
	}
	_, err := WithTimeout(slow, 10*time.Millisecond)(context.Background(), in)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WithTimeout: expected DeadlineExceeded, got %v", err)
	}
}

func TestMapRecords(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	in := intTable(mem, 1, 2, 3)
	defer in.Release()

	negate := MapRecords(func(ctx context.Context, rec arrow.Record) (arrow.Record, error) {
		col := rec.Column(0).(*array.Int64)
		b := array.NewInt64Builder(mem)
		defer b.Release()
		for i := 0; i < col.Len(); i++ {
			b.Append(-col.Value(i))
		}
		arr := b.NewArray()
		defer arr.Release()
		return array.NewRecord(rec.Schema(), []arrow.Array{arr}, int64(arr.Len())), nil
	})
	out, err := negate(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Release()
	if got := ints(out); !equalInts(got, []int64{-1, -2, -3}) {
		t.Errorf("MapRecords: got %v", got)
	}
}

func TestMapRecords_Error(t *testing.T) {
	in := intTable(memory.DefaultAllocator, 1)
	defer in.Release()
	errConvert := errors.New("bad batch")
	stage := MapRecords(func(ctx context.Context, rec arrow.Record) (arrow.Record, error) {
		return nil, errConvert
	})
	if _, err := stage(context.Background(), in); !errors.Is(err, errConvert) {
		t.Errorf("MapRecords: expected wrapped error, got %v", err)
	}
}

type fakeIO struct {
	tables  map[string]arrow.Table
	written map[string]int64
	schemas map[string]*arrow.Schema
}

func (f *fakeIO) ReadTable(ctx context.Context, path string, schema *arrow.Schema) (arrow.Table, error) {
	tbl, ok := f.tables[path]
	if !ok {
		return nil, errors.New("not found")
	}
	f.schemas[path] = schema
	tbl.Retain()
	return tbl, nil
}

func (f *fakeIO) WriteTable(ctx context.Context, path string, tbl arrow.Table) error {
	f.written[path] = tbl.NumRows()
	return nil
}

func TestLoadStore(t *testing.T) {
	src := intTable(memory.DefaultAllocator, 1, 2, 3)
	defer src.Release()
	io := &fakeIO{
		tables:  map[string]arrow.Table{"in.csv": src},
		written: map[string]int64{},
		schemas: map[string]*arrow.Schema{},
	}
	p := &Pipeline{
		Name:   "copy",
		Source: Load(io, "in.csv", nSchema),
		Steps:  []Step{Conform(nSchema), Store(io, "out.csv")},
	}
	out, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	out.Release()
	if io.schemas["in.csv"] != nSchema {
		t.Error("Load should pass the schema to the reader")
	}
	if io.written["out.csv"] != 3 {
		t.Errorf("Store: wrote %d rows, want 3", io.written["out.csv"])
	}

	_, err = Load(io, "missing.csv", nSchema)(context.Background())
	if err == nil {
		t.Error("Load: expected error for missing file")
	}
}
