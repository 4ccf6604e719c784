package extract

import (
	"context"
	"fmt"

	"graphetl/internal/models"
	"graphetl/internal/schema"

	"github.com/xuri/excelize/v2"
)

// sheetName resolves the configured sheet, defaulting to the workbook's
// first sheet.
func (s *FileSource) sheetName(f *excelize.File) (string, error) {
	if s.cfg.Sheet != "" {
		return s.cfg.Sheet, nil
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("source %s: workbook has no sheets", s.name)
	}
	return sheets[0], nil
}

// peekXLSX reads the header row plus a bounded sample of rows to infer kinds.
func (s *FileSource) peekXLSX(path string) ([]string, []schema.Kind, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("source %s: opening %s: %w", s.name, path, err)
	}
	defer f.Close()

	sheet, err := s.sheetName(f)
	if err != nil {
		return nil, nil, err
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("source %s: reading sheet %s of %s: %w", s.name, sheet, path, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil, fmt.Errorf("source %s, file %s: %w", s.name, path, ErrNoHeader)
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("source %s: reading header of %s: %w", s.name, path, err)
	}

	kinds := make([]schema.Kind, len(header))
	settled := make([]bool, len(header))
	for sampled := 0; sampled < inferSampleRows && rows.Next(); sampled++ {
		cells, err := rows.Columns()
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

// streamXLSX emits every data row of the selected sheet.
func (s *FileSource) streamXLSX(ctx context.Context, path string, scan *fileScan, spec SelectSpec, out chan<- *models.Record) (int64, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return 0, fmt.Errorf("source %s: opening %s: %w", s.name, path, err)
	}
	defer f.Close()

	sheet, err := s.sheetName(f)
	if err != nil {
		return 0, err
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return 0, fmt.Errorf("source %s: reading sheet %s of %s: %w", s.name, sheet, path, err)
	}
	defer rows.Close()

	// Skip the header row.
	if !rows.Next() {
		return 0, nil
	}
	if _, err := rows.Columns(); err != nil {
		return 0, fmt.Errorf("source %s: reading header of %s: %w", s.name, path, err)
	}

	var skipped int64
	for rows.Next() {
		cells, err := rows.Columns()
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
	return skipped, rows.Error()
}
