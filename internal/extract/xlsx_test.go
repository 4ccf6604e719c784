package extract

import (
	"context"
	"path/filepath"
	"testing"

	"graphetl/internal/config"
	"graphetl/internal/schema"

	"github.com/xuri/excelize/v2"
)

// writeWorkbook builds a two-sheet workbook: papers on the first sheet,
// people on a named second sheet.
func writeWorkbook(t *testing.T, dir string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	papers := [][]interface{}{
		{"doi", "title", "year"},
		{"d:1", "First", "1999"},
		{"d:2", "Second", "2001"},
	}
	for i, row := range papers {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("Failed to fill Sheet1: %v", err)
		}
	}

	if _, err := f.NewSheet("People"); err != nil {
		t.Fatalf("Failed to add People sheet: %v", err)
	}
	people := [][]interface{}{
		{"orcid", "name", "score"},
		{"p:1", "Ada", "0.5"},
		{"", "Nobody", "1.5"},
	}
	for i, row := range people {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("People", cell, &row); err != nil {
			t.Fatalf("Failed to fill People sheet: %v", err)
		}
	}

	path := filepath.Join(dir, "sources.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("Failed to save workbook: %v", err)
	}
	return path
}

func TestXLSXSourceDefaultsToFirstSheet(t *testing.T) {
	path := writeWorkbook(t, t.TempDir())

	src := NewFileSource("papers", config.SourceXLSX, config.FileConfig{Path: path}, nil)
	spec := SelectSpec{URIKey: "doi"}

	fields, err := src.Fields(context.Background(), spec)
	if err != nil {
		t.Fatalf("Fields() error = %v", err)
	}
	want := map[string]schema.Kind{
		"title": schema.KindString,
		"year":  schema.KindInt,
	}
	if len(fields) != len(want) {
		t.Fatalf("Expected %d fields, got %d: %v", len(want), len(fields), fields)
	}
	for _, f := range fields {
		if f.Kind != want[f.Name] {
			t.Errorf("Field %s: expected kind %s, got %s", f.Name, want[f.Name], f.Kind)
		}
		if !f.Inferred() {
			t.Errorf("Field %s should be marked as inferred", f.Name)
		}
	}

	recs, skipped := collect(t, src, spec)
	if len(recs) != 2 {
		t.Fatalf("Expected 2 records from the first sheet, got %d", len(recs))
	}
	if skipped != 0 {
		t.Errorf("Expected no skipped rows, got %d", skipped)
	}
	if recs[0].URI != "d:1" || recs[0].Values["title"] != "First" {
		t.Errorf("Unexpected first record %+v", recs[0])
	}
	if recs[0].Values["year"] != int64(1999) {
		t.Errorf("Expected year parsed as int, got %#v", recs[0].Values["year"])
	}
}

func TestXLSXSourceSelectsConfiguredSheet(t *testing.T) {
	path := writeWorkbook(t, t.TempDir())

	src := NewFileSource("people", config.SourceXLSX,
		config.FileConfig{Path: path, Sheet: "People"}, nil)
	spec := SelectSpec{URIKey: "orcid"}

	fields, err := src.Fields(context.Background(), spec)
	if err != nil {
		t.Fatalf("Fields() error = %v", err)
	}
	want := map[string]schema.Kind{
		"name":  schema.KindString,
		"score": schema.KindFloat,
	}
	if len(fields) != len(want) {
		t.Fatalf("Expected %d fields, got %d: %v", len(want), len(fields), fields)
	}
	for _, f := range fields {
		if f.Kind != want[f.Name] {
			t.Errorf("Field %s: expected kind %s, got %s", f.Name, want[f.Name], f.Kind)
		}
	}

	recs, skipped := collect(t, src, spec)
	if len(recs) != 1 {
		t.Fatalf("Expected 1 record from the People sheet, got %d", len(recs))
	}
	if skipped != 1 {
		t.Errorf("Expected the row without an orcid to be skipped, got %d", skipped)
	}
	if recs[0].URI != "p:1" || recs[0].Values["name"] != "Ada" {
		t.Errorf("Unexpected record %+v", recs[0])
	}
}

func TestXLSXSourceUnknownSheetFails(t *testing.T) {
	path := writeWorkbook(t, t.TempDir())

	src := NewFileSource("people", config.SourceXLSX,
		config.FileConfig{Path: path, Sheet: "Missing"}, nil)
	if _, err := src.Fields(context.Background(), SelectSpec{URIKey: "orcid"}); err == nil {
		t.Fatal("Expected an error for an unknown sheet")
	}
}
