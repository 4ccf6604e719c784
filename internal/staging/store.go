package staging

import (
	"context"
	"time"

	"graphetl/internal/models"
)

// Run statuses recorded in the manifest.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// RunInfo is one row of the run manifest.
type RunInfo struct {
	RunID      string
	DBName     string
	DBVersion  string
	Author     string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
}

// TableStat records how one staging table was fed by one source during a run.
type TableStat struct {
	RunID        string
	Kind         string // "node" or "relationship"
	Name         string // label or relationship type
	Source       string
	Rows         int64
	Skipped      int64
	File         string // input file, flat-file sources only
	FileModified *time.Time
}

// Store is the staging database: one table per node type and per
// relationship type, plus the run manifest. Rows from every source are
// merged here before anything touches the graph database.
type Store interface {
	InitNodeTable(ctx context.Context, nt *models.NodeType) error
	InitRelTable(ctx context.Context, rt *models.RelationshipType) error

	InsertNodes(ctx context.Context, label string, recs []*models.Record) (inserted, merged int64, err error)
	InsertRels(ctx context.Context, relType string, recs []*models.Record) (int64, error)

	NodeCount(ctx context.Context, label string) (int64, error)
	RelCount(ctx context.Context, relType string) (int64, error)

	// ScanNodes and ScanRels walk a staged table in batches, invoking fn for
	// each batch until the table is exhausted or fn returns an error.
	ScanNodes(ctx context.Context, label string, batch int, fn func([]*models.Record) error) error
	ScanRels(ctx context.Context, relType string, batch int, fn func([]*models.Record) error) error

	// NodeTypes and RelTypes reconstruct the staged type metadata, so load
	// and export can run in a separate process from the build.
	NodeTypes(ctx context.Context) ([]*models.NodeType, error)
	RelTypes(ctx context.Context) ([]*models.RelationshipType, error)

	// Run manifest.
	BeginRun(ctx context.Context, run *RunInfo) error
	FinishRun(ctx context.Context, runID, status string) error
	RecordTable(ctx context.Context, stat *TableStat) error
	Runs(ctx context.Context) ([]*RunInfo, error)
	TableStats(ctx context.Context, runID string) ([]*TableStat, error)

	Close() error
}
