package load

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"graphetl/internal/models"
	"graphetl/internal/schema"
	"graphetl/internal/staging"
	"graphetl/pkg/logger"
)

// ExportReport summarizes one CSV export.
type ExportReport struct {
	Dir      string
	Files    []string
	Nodes    map[string]int64
	Rels     map[string]int64
	Duration time.Duration
}

// Exporter writes the staged graph as CSV files in the layout consumed by
// `neo4j-admin database import`, for graphs too large to MERGE over bolt.
type Exporter struct {
	store staging.Store
	dir   string
	batch int
	log   *logger.Logger
}

// NewExporter creates an Exporter writing into dir.
func NewExporter(store staging.Store, dir string, batchSize int, runID string) *Exporter {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Exporter{
		store: store,
		dir:   dir,
		batch: batchSize,
		log:   logger.New("exporter", runID),
	}
}

// Export writes one nodes_<label>.csv per node type, one rels_<type>.csv per
// relationship type and an import.args file listing them as neo4j-admin
// flags.
func (e *Exporter) Export(ctx context.Context) (*ExportReport, error) {
	started := time.Now()
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}

	report := &ExportReport{
		Dir:   e.dir,
		Nodes: make(map[string]int64),
		Rels:  make(map[string]int64),
	}

	nodeTypes, err := e.store.NodeTypes(ctx)
	if err != nil {
		return nil, err
	}
	relTypes, err := e.store.RelTypes(ctx)
	if err != nil {
		return nil, err
	}

	var args []string
	for _, nt := range nodeTypes {
		name := fmt.Sprintf("nodes_%s.csv", nt.Label)
		n, err := e.exportNodes(ctx, nt, filepath.Join(e.dir, name))
		if err != nil {
			return nil, fmt.Errorf("exporting node type %s: %w", nt.Label, err)
		}
		report.Nodes[nt.Label] = n
		report.Files = append(report.Files, name)
		args = append(args, "--nodes="+name)
		e.log.WithField("label", nt.Label).Info(fmt.Sprintf("exported %d rows to %s", n, name))
	}
	for _, rt := range relTypes {
		name := fmt.Sprintf("rels_%s.csv", rt.Type)
		n, err := e.exportRels(ctx, rt, filepath.Join(e.dir, name))
		if err != nil {
			return nil, fmt.Errorf("exporting relationship type %s: %w", rt.Type, err)
		}
		report.Rels[rt.Type] = n
		report.Files = append(report.Files, name)
		args = append(args, "--relationships="+name)
		e.log.WithField("type", rt.Type).Info(fmt.Sprintf("exported %d rows to %s", n, name))
	}

	if err := e.writeArgs(args); err != nil {
		return nil, err
	}
	report.Files = append(report.Files, "import.args")

	report.Duration = time.Since(started)
	return report, nil
}

func (e *Exporter) exportNodes(ctx context.Context, nt *models.NodeType, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	w := csv.NewWriter(f)

	header := make([]string, 0, len(nt.Fields)+2)
	header = append(header, "uri:ID")
	for _, field := range nt.Fields {
		header = append(header, headerCell(field))
	}
	header = append(header, ":LABEL")
	if err := w.Write(header); err != nil {
		return 0, err
	}

	var total int64
	err = e.store.ScanNodes(ctx, nt.Label, e.batch, func(recs []*models.Record) error {
		row := make([]string, len(header))
		for _, rec := range recs {
			row[0] = rec.URI
			for i, field := range nt.Fields {
				row[i+1] = formatCell(rec.Values[field.Name])
			}
			row[len(row)-1] = nt.Label
			if err := w.Write(row); err != nil {
				return err
			}
			total++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return 0, err
	}
	return total, f.Close()
}

func (e *Exporter) exportRels(ctx context.Context, rt *models.RelationshipType, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	w := csv.NewWriter(f)

	header := make([]string, 0, len(rt.Fields)+3)
	header = append(header, ":START_ID", ":END_ID")
	for _, field := range rt.Fields {
		header = append(header, headerCell(field))
	}
	header = append(header, ":TYPE")
	if err := w.Write(header); err != nil {
		return 0, err
	}

	var total int64
	err = e.store.ScanRels(ctx, rt.Type, e.batch, func(recs []*models.Record) error {
		row := make([]string, len(header))
		for _, rec := range recs {
			row[0] = rec.StartURI
			row[1] = rec.EndURI
			for i, field := range rt.Fields {
				row[i+2] = formatCell(rec.Values[field.Name])
			}
			row[len(row)-1] = rt.Type
			if err := w.Write(row); err != nil {
				return err
			}
			total++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return 0, err
	}
	return total, f.Close()
}

// writeArgs writes the flag list to hand to `neo4j-admin database import`.
func (e *Exporter) writeArgs(args []string) error {
	f, err := os.Create(filepath.Join(e.dir, "import.args"))
	if err != nil {
		return err
	}
	defer f.Close()
	for _, arg := range args {
		if _, err := fmt.Fprintln(f, arg); err != nil {
			return err
		}
	}
	return f.Close()
}

// headerCell renders one admin-import header column. String columns carry
// no tag because string is the importer default.
func headerCell(field schema.Field) string {
	tag := field.Kind.AdminImportTag()
	if tag == "string" {
		return field.Name
	}
	return field.Name + ":" + tag
}

// formatCell renders one value for admin import. Missing values become
// empty cells.
func formatCell(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
