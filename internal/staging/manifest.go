package staging

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"graphetl/internal/models"
)

// BeginRun records the start of a build in the manifest.
func (s *SQLiteStore) BeginRun(ctx context.Context, run *RunInfo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO etl_runs (run_id, db_name, db_version, author, started_at, status) VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID, run.DBName, run.DBVersion, run.Author, run.StartedAt, StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.RunID, err)
	}
	return nil
}

// FinishRun closes out a run with a terminal status.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE etl_runs SET finished_at = CURRENT_TIMESTAMP, status = ? WHERE run_id = ?`,
		status, runID,
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", runID, err)
	}
	return nil
}

// RecordTable appends one per-source staging statistic to the manifest.
func (s *SQLiteStore) RecordTable(ctx context.Context, stat *TableStat) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO etl_tables (run_id, kind, name, source, rows, skipped, file, file_modified) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		stat.RunID, stat.Kind, stat.Name, stat.Source, stat.Rows, stat.Skipped, stat.File, stat.FileModified,
	)
	if err != nil {
		return fmt.Errorf("recording table stat for %s: %w", stat.Name, err)
	}
	return nil
}

// Runs lists all recorded runs, newest first.
func (s *SQLiteStore) Runs(ctx context.Context) ([]*RunInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, db_name, db_version, author, started_at, finished_at, status FROM etl_runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunInfo
	for rows.Next() {
		run := &RunInfo{}
		var finished sql.NullTime
		if err := rows.Scan(&run.RunID, &run.DBName, &run.DBVersion, &run.Author, &run.StartedAt, &finished, &run.Status); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// TableStats lists the per-source staging statistics of one run.
func (s *SQLiteStore) TableStats(ctx context.Context, runID string) ([]*TableStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, kind, name, source, rows, skipped, file, file_modified FROM etl_tables WHERE run_id = ? ORDER BY kind, name, source`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("listing table stats: %w", err)
	}
	defer rows.Close()

	var stats []*TableStat
	for rows.Next() {
		stat := &TableStat{}
		var file sql.NullString
		var modified sql.NullTime
		if err := rows.Scan(&stat.RunID, &stat.Kind, &stat.Name, &stat.Source, &stat.Rows, &stat.Skipped, &file, &modified); err != nil {
			return nil, fmt.Errorf("scanning table stat: %w", err)
		}
		stat.File = file.String
		if modified.Valid {
			t := modified.Time
			stat.FileModified = &t
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

func sortNodeTypes(types []*models.NodeType) {
	sort.Slice(types, func(i, j int) bool { return types[i].Label < types[j].Label })
}

func sortRelTypes(types []*models.RelationshipType) {
	sort.Slice(types, func(i, j int) bool { return types[i].Type < types[j].Type })
}

var _ Store = (*SQLiteStore)(nil)
