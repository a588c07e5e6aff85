package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/util"
	"go.uber.org/zap"
)

// csvFallback returns the CSV path used in place of an IPC file when arrow
// interop is disabled, or ErrArrowDisabled if falling back is not allowed.
func (s *Session) csvFallback(path string) (string, error) {
	if !s.arrowFallback {
		return "", fmt.Errorf("%q: %w", path, ErrArrowDisabled)
	}
	alt := strings.TrimSuffix(path, filepath.Ext(path)) + ".csv"
	s.logger.Warn("arrow interop disabled, falling back to csv",
		zap.String("path", path),
		zap.String("fallback", alt))
	return alt, nil
}

// WriteIPC writes tbl as an Arrow IPC file compressed with the session's
// serializer.
func (s *Session) WriteIPC(ctx context.Context, path string, tbl arrow.Table) error {
	if !s.arrowEnabled {
		alt, err := s.csvFallback(path)
		if err != nil {
			return fmt.Errorf("write ipc %w", err)
		}
		return s.WriteCSV(ctx, alt, tbl)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write ipc: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write ipc: %w", err)
	}
	if err := s.writeIPC(ctx, f, tbl); err != nil {
		f.Close()
		return fmt.Errorf("write ipc %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write ipc %q: %w", path, err)
	}
	s.logger.Debug("wrote ipc",
		zap.String("path", path),
		zap.Int64("rows", tbl.NumRows()),
		zap.String("serializer", string(s.serializer)))
	return nil
}

func (s *Session) writeIPC(ctx context.Context, f *os.File, tbl arrow.Table) error {
	opts := []ipc.Option{ipc.WithSchema(tbl.Schema()), ipc.WithAllocator(s.mem)}
	switch s.serializer {
	case SerializerLZ4:
		opts = append(opts, ipc.WithLZ4())
	case SerializerZstd:
		opts = append(opts, ipc.WithZstd())
	}
	w, err := ipc.NewFileWriter(f, opts...)
	if err != nil {
		return err
	}
	tr := array.NewTableReader(tbl, int64(s.batchRows))
	defer tr.Release()
	for tr.Next() {
		if err := ctx.Err(); err != nil {
			w.Close()
			return err
		}
		if err := w.Write(tr.Record()); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

// ReadIPC reads an Arrow IPC file. When schema is non-nil the file's fields
// must match it by name and type; the error wraps ErrSchemaMismatch otherwise.
func (s *Session) ReadIPC(ctx context.Context, path string, schema *arrow.Schema) (arrow.Table, error) {
	if !s.arrowEnabled {
		alt, err := s.csvFallback(path)
		if err != nil {
			return nil, fmt.Errorf("read ipc %w", err)
		}
		return s.ReadCSV(ctx, alt, schema)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read ipc: %w", err)
	}
	defer f.Close()

	r, err := ipc.NewFileReader(f, ipc.WithAllocator(s.mem))
	if err != nil {
		return nil, fmt.Errorf("read ipc %q: %w", path, err)
	}
	defer r.Close()

	if schema != nil {
		if err := sameShape(r.Schema(), schema); err != nil {
			return nil, fmt.Errorf("read ipc %q: %w", path, err)
		}
	}

	var (
		recs []arrow.Record
		size int64
	)
	defer func() {
		for _, rec := range recs {
			rec.Release()
		}
	}()
	for i := 0; i < r.NumRecords(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("read ipc %q: %w", path, err)
		}
		rec, err := r.Record(i)
		if err != nil {
			return nil, fmt.Errorf("read ipc %q: record %d: %w", path, i, err)
		}
		rec.Retain()
		recs = append(recs, rec)
		size += util.TotalRecordSize(rec)
		if s.maxResultSize > 0 && uint64(size) > s.maxResultSize {
			return nil, fmt.Errorf("read ipc %q: %w (%d bytes, limit %d)", path, ErrResultTooLarge, size, s.maxResultSize)
		}
	}
	return array.NewTableFromRecords(r.Schema(), recs), nil
}

func sameShape(got, want *arrow.Schema) error {
	if got.NumFields() != want.NumFields() {
		return fmt.Errorf("%w: %d fields, want %d", ErrSchemaMismatch, got.NumFields(), want.NumFields())
	}
	for i, w := range want.Fields() {
		g := got.Field(i)
		if g.Name != w.Name || !arrow.TypeEqual(g.Type, w.Type) {
			return fmt.Errorf("%w: field %d is %s %s, want %s %s", ErrSchemaMismatch, i, g.Name, g.Type, w.Name, w.Type)
		}
	}
	return nil
}
