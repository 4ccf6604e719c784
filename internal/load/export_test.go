package load

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"graphetl/internal/models"
	"graphetl/internal/schema"
	"graphetl/internal/staging"
)

func stagedStore(t *testing.T) *staging.SQLiteStore {
	t.Helper()
	ctx := context.Background()

	store, err := staging.Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	nt := &models.NodeType{
		Label: "Person",
		Fields: []schema.Field{
			schema.NewField("name", schema.KindString, "warehouse"),
			schema.NewField("birth_year", schema.KindInt, "warehouse"),
		},
		Sources: []string{"warehouse"},
	}
	if err := store.InitNodeTable(ctx, nt); err != nil {
		t.Fatalf("InitNodeTable() error = %v", err)
	}
	if _, _, err := store.InsertNodes(ctx, "Person", []*models.Record{
		{URI: "p:1", Values: map[string]interface{}{"name": "Ada", "birth_year": int64(1815)}},
		{URI: "p:2", Values: map[string]interface{}{"name": "Alan"}},
	}); err != nil {
		t.Fatalf("InsertNodes() error = %v", err)
	}

	rt := &models.RelationshipType{
		Type: "KNOWS", StartLabel: "Person", EndLabel: "Person",
		Fields:  []schema.Field{schema.NewField("since", schema.KindInt, "warehouse")},
		Sources: []string{"warehouse"},
	}
	if err := store.InitRelTable(ctx, rt); err != nil {
		t.Fatalf("InitRelTable() error = %v", err)
	}
	if _, err := store.InsertRels(ctx, "KNOWS", []*models.Record{
		{StartURI: "p:1", EndURI: "p:2", Values: map[string]interface{}{"since": int64(1840)}},
	}); err != nil {
		t.Fatalf("InsertRels() error = %v", err)
	}

	return store
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return rows
}

func TestExportWritesAdminImportLayout(t *testing.T) {
	store := stagedStore(t)
	dir := t.TempDir()

	exporter := NewExporter(store, dir, 10, "test-run")
	report, err := exporter.Export(context.Background())
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	if report.Nodes["Person"] != 2 {
		t.Errorf("Expected 2 exported Person rows, got %d", report.Nodes["Person"])
	}
	if report.Rels["KNOWS"] != 1 {
		t.Errorf("Expected 1 exported KNOWS row, got %d", report.Rels["KNOWS"])
	}

	nodes := readCSV(t, filepath.Join(dir, "nodes_Person.csv"))
	wantHeader := []string{"uri:ID", "name", "birth_year:long", ":LABEL"}
	for i, col := range wantHeader {
		if nodes[0][i] != col {
			t.Errorf("Node header column %d: expected %s, got %s", i, col, nodes[0][i])
		}
	}
	if nodes[1][0] != "p:1" || nodes[1][1] != "Ada" || nodes[1][2] != "1815" || nodes[1][3] != "Person" {
		t.Errorf("Unexpected first node row %v", nodes[1])
	}
	// Missing values export as empty cells.
	if nodes[2][2] != "" {
		t.Errorf("Expected empty birth_year for p:2, got %q", nodes[2][2])
	}

	rels := readCSV(t, filepath.Join(dir, "rels_KNOWS.csv"))
	wantRelHeader := []string{":START_ID", ":END_ID", "since:long", ":TYPE"}
	for i, col := range wantRelHeader {
		if rels[0][i] != col {
			t.Errorf("Rel header column %d: expected %s, got %s", i, col, rels[0][i])
		}
	}
	if rels[1][0] != "p:1" || rels[1][1] != "p:2" || rels[1][3] != "KNOWS" {
		t.Errorf("Unexpected relationship row %v", rels[1])
	}

	args, err := os.ReadFile(filepath.Join(dir, "import.args"))
	if err != nil {
		t.Fatalf("Failed to read import.args: %v", err)
	}
	want := "--nodes=nodes_Person.csv\n--relationships=rels_KNOWS.csv\n"
	if string(args) != want {
		t.Errorf("Unexpected import.args content:\n%s", args)
	}
}

func TestFormatCell(t *testing.T) {
	cases := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{int64(7), "7"},
		{2.5, "2.5"},
		{true, "true"},
	}
	for _, c := range cases {
		if got := formatCell(c.in); got != c.want {
			t.Errorf("formatCell(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
