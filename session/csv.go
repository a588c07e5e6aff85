package session

import (
	"bufio"
	"context"
	stdcsv "encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/util"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ReadCSV reads a CSV file with a header row into a table shaped by schema.
// The header must list the schema's field names in order and every value must
// parse as its field's type; otherwise the error wraps ErrSchemaMismatch.
// Empty cells are null.
func (s *Session) ReadCSV(ctx context.Context, path string, schema *arrow.Schema) (arrow.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	header, err := checkHeader(br, schema)
	if err != nil {
		return nil, fmt.Errorf("read csv %q: %w", path, err)
	}

	// The header goes back in front of the stream so rows of the wrong width
	// fail with csv.ErrFieldCount.
	r := csv.NewReader(io.MultiReader(strings.NewReader(header), br), schema,
		csv.WithHeader(true),
		csv.WithAllocator(s.mem),
		csv.WithChunk(s.batchRows),
		csv.WithNullReader(true, ""),
	)
	defer r.Release()

	var (
		recs []arrow.Record
		size int64
	)
	defer func() {
		for _, rec := range recs {
			rec.Release()
		}
	}()
	for r.Next() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("read csv %q: %w", path, err)
		}
		rec := r.Record()
		rec.Retain()
		recs = append(recs, rec)
		size += util.TotalRecordSize(rec)
		if s.maxResultSize > 0 && uint64(size) > s.maxResultSize {
			return nil, fmt.Errorf("read csv %q: %w (%d bytes, limit %d)", path, ErrResultTooLarge, size, s.maxResultSize)
		}
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read csv %q: %w: %w", path, ErrSchemaMismatch, err)
	}
	tbl := array.NewTableFromRecords(schema, recs)
	s.logger.Debug("read csv",
		zap.String("path", path),
		zap.Int64("rows", tbl.NumRows()),
		zap.Int64("bytes", size))
	return tbl, nil
}

// checkHeader consumes the header line of br and compares it to schema. It
// returns the line without a leading byte order mark.
func checkHeader(br *bufio.Reader, schema *arrow.Schema) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("%w: missing header", ErrSchemaMismatch)
		}
		return "", err
	}
	line = strings.TrimPrefix(line, "\ufeff")
	header, err := stdcsv.NewReader(strings.NewReader(line)).Read()
	if err != nil {
		return "", fmt.Errorf("%w: header: %w", ErrSchemaMismatch, err)
	}
	fields := schema.Fields()
	if len(header) != len(fields) {
		return "", fmt.Errorf("%w: header has %d columns, schema has %d", ErrSchemaMismatch, len(header), len(fields))
	}
	for i, f := range fields {
		if header[i] != f.Name {
			return "", fmt.Errorf("%w: column %d is %q, want %q", ErrSchemaMismatch, i, header[i], f.Name)
		}
	}
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	return line, nil
}

// ReadCSVs reads every path with schema, at most ShufflePartitions files at a
// time. Tables are returned in path order; on error none are returned.
func (s *Session) ReadCSVs(ctx context.Context, schema *arrow.Schema, paths ...string) ([]arrow.Table, error) {
	tables := make([]arrow.Table, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.shufflePartitions)
	for i, p := range paths {
		g.Go(func() error {
			tbl, err := s.ReadCSV(gctx, p, schema)
			if err != nil {
				return err
			}
			tables[i] = tbl
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, t := range tables {
			if t != nil {
				t.Release()
			}
		}
		return nil, err
	}
	return tables, nil
}

// WriteCSV writes tbl to path with a header row, creating parent directories.
// Nulls are written as empty cells.
func (s *Session) WriteCSV(ctx context.Context, path string, tbl arrow.Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	if err := s.writeCSV(ctx, f, tbl); err != nil {
		f.Close()
		return fmt.Errorf("write csv %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write csv %q: %w", path, err)
	}
	s.logger.Debug("wrote csv", zap.String("path", path), zap.Int64("rows", tbl.NumRows()))
	return nil
}

func (s *Session) writeCSV(ctx context.Context, w io.Writer, tbl arrow.Table) error {
	if tbl.NumRows() == 0 {
		// The Arrow writer emits the header with the first record only.
		hw := stdcsv.NewWriter(w)
		if err := hw.Write(fieldNames(tbl.Schema())); err != nil {
			return err
		}
		hw.Flush()
		return hw.Error()
	}
	cw := csv.NewWriter(w, tbl.Schema(), csv.WithHeader(true), csv.WithNullWriter(""))
	tr := array.NewTableReader(tbl, int64(s.batchRows))
	defer tr.Release()
	for tr.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := cw.Write(tr.Record()); err != nil {
			return err
		}
	}
	if err := cw.Flush(); err != nil {
		return err
	}
	return cw.Error()
}

func fieldNames(schema *arrow.Schema) []string {
	names := make([]string, 0, schema.NumFields())
	for _, f := range schema.Fields() {
		names = append(names, f.Name)
	}
	return names
}
