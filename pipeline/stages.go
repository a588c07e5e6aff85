// Package pipeline: standard steps for loading, checking and storing tables.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// ErrSchemaDrift is returned by Conform when a table's schema differs from
// the expected one.
var ErrSchemaDrift = errors.New("table schema differs from expected schema")

// TableReader reads a file into a table shaped by schema.
type TableReader interface {
	ReadTable(ctx context.Context, path string, schema *arrow.Schema) (arrow.Table, error)
}

// TableWriter writes a table to a file.
type TableWriter interface {
	WriteTable(ctx context.Context, path string, tbl arrow.Table) error
}

// Identity returns a step that passes the input through unchanged.
func Identity() Step {
	return func(ctx context.Context, in arrow.Table) (arrow.Table, error) {
		return in, nil
	}
}

// Tap returns a step that calls fn(ctx, in) then passes the input through.
// Use for logging or side effects without changing the table.
func Tap(fn func(context.Context, arrow.Table)) Step {
	return func(ctx context.Context, in arrow.Table) (arrow.Table, error) {
		fn(ctx, in)
		return in, nil
	}
}

// Validate returns a step that passes the input through only if predicate
// holds. Otherwise it fails with errMsg.
func Validate(predicate func(arrow.Table) bool, errMsg string) Step {
	if errMsg == "" {
		errMsg = "validation failed"
	}
	return func(ctx context.Context, in arrow.Table) (arrow.Table, error) {
		if !predicate(in) {
			return nil, errors.New(errMsg)
		}
		return in, nil
	}
}

// RequireRows fails when the table has fewer than least rows.
func RequireRows(least int64) Step {
	return func(ctx context.Context, in arrow.Table) (arrow.Table, error) {
		if n := in.NumRows(); n < least {
			return nil, fmt.Errorf("require rows: got %d, want at least %d", n, least)
		}
		return in, nil
	}
}

// Conform returns a step that fails with ErrSchemaDrift unless the table's
// schema has exactly the fields of schema, in order, with the same types.
// Field metadata is not compared.
func Conform(schema *arrow.Schema) Step {
	return func(ctx context.Context, in arrow.Table) (arrow.Table, error) {
		got := in.Schema()
		if got.NumFields() != schema.NumFields() {
			return nil, fmt.Errorf("%w: got %d fields, want %d", ErrSchemaDrift, got.NumFields(), schema.NumFields())
		}
		for i, want := range schema.Fields() {
			f := got.Field(i)
			if f.Name != want.Name {
				return nil, fmt.Errorf("%w: field %d is %q, want %q", ErrSchemaDrift, i, f.Name, want.Name)
			}
			if !arrow.TypeEqual(f.Type, want.Type) {
				return nil, fmt.Errorf("%w: field %q is %s, want %s", ErrSchemaDrift, f.Name, f.Type, want.Type)
			}
		}
		return in, nil
	}
}

// WithTimeout wraps inner so it runs with a context deadline of now+timeout.
func WithTimeout(inner Step, timeout time.Duration) Step {
	return func(ctx context.Context, in arrow.Table) (arrow.Table, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return inner(ctx, in)
	}
}

// MapRecords returns a step that applies convert to each record batch of the
// input and assembles the results into a new table. convert returns a record
// owned by the step; all outputs must share one schema.
func MapRecords(convert func(ctx context.Context, rec arrow.Record) (arrow.Record, error)) Step {
	return func(ctx context.Context, in arrow.Table) (arrow.Table, error) {
		tr := array.NewTableReader(in, -1)
		defer tr.Release()

		var (
			out    []arrow.Record
			schema *arrow.Schema
		)
		defer func() {
			for _, r := range out {
				r.Release()
			}
		}()
		for i := 0; tr.Next(); i++ {
			rec, err := convert(ctx, tr.Record())
			if err != nil {
				return nil, fmt.Errorf("maprecords[%d]: %w", i, err)
			}
			if schema == nil {
				schema = rec.Schema()
			} else if !schema.Equal(rec.Schema()) {
				rec.Release()
				return nil, fmt.Errorf("maprecords[%d]: %w", i, ErrSchemaDrift)
			}
			out = append(out, rec)
		}
		if schema == nil {
			schema = in.Schema()
		}
		return array.NewTableFromRecords(schema, out), nil
	}
}

// Load returns a source reading path with schema enforced.
func Load(r TableReader, path string, schema *arrow.Schema) Source {
	return func(ctx context.Context) (arrow.Table, error) {
		tbl, err := r.ReadTable(ctx, path, schema)
		if err != nil {
			return nil, fmt.Errorf("load %q: %w", path, err)
		}
		return tbl, nil
	}
}

// Store returns a step that writes the input to path and passes it through.
func Store(w TableWriter, path string) Step {
	return func(ctx context.Context, in arrow.Table) (arrow.Table, error) {
		if err := w.WriteTable(ctx, path, in); err != nil {
			return nil, fmt.Errorf("store %q: %w", path, err)
		}
		return in, nil
	}
}
