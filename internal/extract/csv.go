package extract

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"graphetl/internal/models"
	"graphetl/internal/schema"
)

// openCSV opens a CSV reader with the configured delimiter.
func (s *FileSource) openCSV(path string) (*os.File, *csv.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("source %s: %w", s.name, err)
	}
	r := csv.NewReader(f)
	if s.cfg.Delimiter != "" {
		// The delimiter may be a multi-byte rune, e.g. a full-width "；".
		delim, _ := utf8.DecodeRuneInString(s.cfg.Delimiter)
		r.Comma = delim
	}
	r.FieldsPerRecord = -1 // short rows become missing values, not errors
	return f, r, nil
}

// peekCSV reads the header plus a bounded sample of rows to infer kinds.
func (s *FileSource) peekCSV(path string) ([]string, []schema.Kind, error) {
	f, r, err := s.openCSV(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("source %s, file %s: %w", s.name, path, ErrNoHeader)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("source %s: reading header of %s: %w", s.name, path, err)
	}

	kinds := make([]schema.Kind, len(header))
	settled := make([]bool, len(header))
	for row := 0; row < inferSampleRows; row++ {
		cells, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("source %s: sampling %s: %w", s.name, path, err)
		}
		for i := range header {
			if i >= len(cells) || cells[i] == "" {
				continue
			}
			guess := schema.InferKind(cells[i])
			if !settled[i] {
				kinds[i] = guess
				settled[i] = true
			} else {
				kinds[i] = combineInferred(kinds[i], guess)
			}
		}
	}
	return header, kinds, nil
}

// streamCSV emits every data row of one CSV file.
func (s *FileSource) streamCSV(ctx context.Context, path string, scan *fileScan, spec SelectSpec, out chan<- *models.Record) (int64, error) {
	f, r, err := s.openCSV(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	// Skip the header row.
	if _, err := r.Read(); err != nil {
		return 0, fmt.Errorf("source %s: reading header of %s: %w", s.name, path, err)
	}

	var skipped int64
	for {
		cells, err := r.Read()
		if errors.Is(err, io.EOF) {
			return skipped, nil
		}
		if err != nil {
			return skipped, fmt.Errorf("source %s: reading %s: %w", s.name, path, err)
		}

		rec := rowToRecord(scan, spec, cells)
		if rec == nil {
			skipped++
			continue
		}
		if err := send(ctx, out, rec); err != nil {
			return skipped, err
		}
	}
}
