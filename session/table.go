package session

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// Format is a table file format, chosen by file extension.
type Format int

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatIPC
)

// FormatOf returns the format implied by path's extension: .csv is CSV;
// .arrow, .ipc and .feather are Arrow IPC.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV
	case ".arrow", ".ipc", ".feather":
		return FormatIPC
	default:
		return FormatUnknown
	}
}

// ReadTable reads path with schema enforced, dispatching on FormatOf.
func (s *Session) ReadTable(ctx context.Context, path string, schema *arrow.Schema) (arrow.Table, error) {
	switch FormatOf(path) {
	case FormatCSV:
		return s.ReadCSV(ctx, path, schema)
	case FormatIPC:
		return s.ReadIPC(ctx, path, schema)
	default:
		return nil, fmt.Errorf("read %q: unsupported file format", path)
	}
}

// WriteTable writes tbl to path, dispatching on FormatOf.
func (s *Session) WriteTable(ctx context.Context, path string, tbl arrow.Table) error {
	switch FormatOf(path) {
	case FormatCSV:
		return s.WriteCSV(ctx, path, tbl)
	case FormatIPC:
		return s.WriteIPC(ctx, path, tbl)
	default:
		return fmt.Errorf("write %q: unsupported file format", path)
	}
}
