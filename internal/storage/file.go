package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/IshaanNene/markbook/internal/types"
)

// FileSink writes a finished collection to a local file instead of
// posting it to the collector server. The format follows the file
// extension: .csv, .jsonl, or JSON for anything else.
type FileSink struct {
	path   string
	format string
	logger *slog.Logger
}

// NewFileSink creates a sink for outputPath, creating its directory.
func NewFileSink(outputPath string, logger *slog.Logger) (*FileSink, error) {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	format := "json"
	switch strings.ToLower(filepath.Ext(outputPath)) {
	case ".csv":
		format = "csv"
	case ".jsonl":
		format = "jsonl"
	}

	return &FileSink{
		path:   outputPath,
		format: format,
		logger: logger.With("component", format+"_sink"),
	}, nil
}

func (s *FileSink) Name() string { return s.format }

// Submit writes records, replacing any previous file, and returns the
// number written.
func (s *FileSink) Submit(ctx context.Context, records []types.Record) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f, err := os.Create(s.path)
	if err != nil {
		return 0, s.wrap(fmt.Errorf("create output file: %w", err))
	}
	defer f.Close()

	switch s.format {
	case "csv":
		err = writeCSV(f, records)
	case "jsonl":
		enc := json.NewEncoder(f)
		for _, rec := range records {
			if err = enc.Encode(rec); err != nil {
				break
			}
		}
	default:
		if records == nil {
			records = []types.Record{}
		}
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		err = enc.Encode(records)
	}
	if err != nil {
		return 0, s.wrap(fmt.Errorf("encode %s: %w", s.format, err))
	}
	if err := f.Close(); err != nil {
		return 0, s.wrap(err)
	}

	s.logger.Info("collection written", "path", s.path, "records", len(records))
	return len(records), nil
}

func writeCSV(f *os.File, records []types.Record) error {
	w := csv.NewWriter(f)
	if err := w.Write(types.FlatColumns); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}
	for _, rec := range records {
		flat := rec.ToFlatMap()
		row := make([]string, len(types.FlatColumns))
		for i, col := range types.FlatColumns {
			row[i] = flat[col]
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func (s *FileSink) wrap(err error) error {
	return &types.StorageError{Backend: s.format, Err: err}
}
