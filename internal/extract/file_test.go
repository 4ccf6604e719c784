package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"graphetl/internal/config"
	"graphetl/internal/models"
	"graphetl/internal/schema"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func collect(t *testing.T, src Source, spec SelectSpec) ([]*models.Record, int64) {
	t.Helper()
	out := make(chan *models.Record, 64)
	done := make(chan struct{})
	var recs []*models.Record
	go func() {
		defer close(done)
		for rec := range out {
			recs = append(recs, rec)
		}
	}()
	skipped, err := src.Stream(context.Background(), spec, out)
	close(out)
	<-done
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	return recs, skipped
}

func TestFileSourceFieldsInfersKinds(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "papers.csv", "doi,title,year,score\nd:1,First,1999,0.5\nd:2,Second,2001,1.5\n")

	src := NewFileSource("papers", config.SourceCSV,
		config.FileConfig{Path: filepath.Join(dir, "papers.csv"), Delimiter: ","}, nil)

	fields, err := src.Fields(context.Background(), SelectSpec{URIKey: "doi"})
	if err != nil {
		t.Fatalf("Fields() error = %v", err)
	}

	want := map[string]schema.Kind{
		"title": schema.KindString,
		"year":  schema.KindInt,
		"score": schema.KindFloat,
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
}

func TestFileSourceStreamSkipsRowsWithoutURI(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "papers.csv", "doi,title\nd:1,First\n,NoIdentity\nd:3,Third\n")

	src := NewFileSource("papers", config.SourceCSV,
		config.FileConfig{Path: filepath.Join(dir, "papers.csv"), Delimiter: ","}, nil)
	spec := SelectSpec{URIKey: "doi"}
	if _, err := src.Fields(context.Background(), spec); err != nil {
		t.Fatalf("Fields() error = %v", err)
	}

	recs, skipped := collect(t, src, spec)
	if len(recs) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(recs))
	}
	if skipped != 1 {
		t.Errorf("Expected 1 skipped row, got %d", skipped)
	}
	if recs[0].URI != "d:1" || recs[0].Values["title"] != "First" {
		t.Errorf("Unexpected first record %+v", recs[0])
	}
}

func TestFileSourceMultiByteDelimiter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "papers.csv", "doi；title；year\nd:1；First；1999\n")

	src := NewFileSource("papers", config.SourceCSV,
		config.FileConfig{Path: filepath.Join(dir, "papers.csv"), Delimiter: "；"}, nil)
	spec := SelectSpec{URIKey: "doi"}

	fields, err := src.Fields(context.Background(), spec)
	if err != nil {
		t.Fatalf("Fields() error = %v", err)
	}
	if len(fields) != 2 {
		t.Fatalf("Expected 2 fields with a full-width delimiter, got %v", fields)
	}

	recs, _ := collect(t, src, spec)
	if len(recs) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(recs))
	}
	if recs[0].URI != "d:1" || recs[0].Values["title"] != "First" {
		t.Errorf("Unexpected record %+v", recs[0])
	}
	if recs[0].Values["year"] != int64(1999) {
		t.Errorf("Expected year parsed as int, got %#v", recs[0].Values["year"])
	}
}

func TestFileSourceGlobCombinesFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "cites-a.csv", "citing,cited\nd:1,d:2\n")
	writeFile(t, dir, "cites-b.csv", "citing,cited\nd:2,d:3\nd:4,\n")
	writeFile(t, dir, "other.txt", "not a csv")

	src := NewFileSource("citations", config.SourceCSV,
		config.FileConfig{Path: filepath.Join(dir, "cites-*.csv"), Delimiter: ","}, nil)
	spec := SelectSpec{StartKey: "citing", EndKey: "cited"}

	recs, skipped := collect(t, src, spec)
	if len(recs) != 2 {
		t.Fatalf("Expected 2 records across both files, got %d", len(recs))
	}
	if skipped != 1 {
		t.Errorf("Expected 1 skipped row, got %d", skipped)
	}
	if recs[0].StartURI != "d:1" || recs[0].EndURI != "d:2" {
		t.Errorf("Unexpected first record %+v", recs[0])
	}

	// The manifest sees both matched files.
	files := src.Files(spec)
	if len(files) != 2 {
		t.Fatalf("Expected 2 staged files, got %d", len(files))
	}
}

func TestFileSourceHeaderMismatchFails(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.csv", "doi,title\nd:1,x\n")
	writeFile(t, dir, "b.csv", "doi,name\nd:2,y\n")

	src := NewFileSource("papers", config.SourceCSV,
		config.FileConfig{Path: filepath.Join(dir, "*.csv"), Delimiter: ","}, nil)
	if _, err := src.Fields(context.Background(), SelectSpec{URIKey: "doi"}); err == nil {
		t.Fatal("Expected an error for mismatched headers")
	}
}

func TestFileSourceRenameAndAllowList(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "people.csv", "orcid,homepage,junk\np:1,https://x,ignored\n")

	src := NewFileSource("profiles", config.SourceCSV,
		config.FileConfig{Path: filepath.Join(dir, "people.csv"), Delimiter: ","}, nil)
	spec := SelectSpec{
		URIKey: "orcid",
		Fields: []string{"homepage"},
		Rename: map[string]string{"homepage": "website"},
	}

	fields, err := src.Fields(context.Background(), spec)
	if err != nil {
		t.Fatalf("Fields() error = %v", err)
	}
	if len(fields) != 1 || fields[0].Name != "website" {
		t.Fatalf("Expected a single renamed field, got %v", fields)
	}

	recs, _ := collect(t, src, spec)
	if len(recs) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(recs))
	}
	if recs[0].Values["website"] != "https://x" {
		t.Errorf("Expected renamed property, got %v", recs[0].Values)
	}
	if _, ok := recs[0].Values["junk"]; ok {
		t.Error("Expected junk column to be dropped by the allow-list")
	}
}

func TestFileSourceMissingFile(t *testing.T) {
	src := NewFileSource("papers", config.SourceCSV,
		config.FileConfig{Path: filepath.Join(t.TempDir(), "absent.csv")}, nil)
	if _, err := src.Fields(context.Background(), SelectSpec{URIKey: "doi"}); err == nil {
		t.Fatal("Expected an error for a missing file")
	}
}
