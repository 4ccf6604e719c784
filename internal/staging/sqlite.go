package staging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"graphetl/internal/models"
	"graphetl/internal/schema"

	_ "github.com/mattn/go-sqlite3"
)

// reservedColumns are the identity columns of staging tables; property
// fields may not shadow them.
var reservedColumns = map[string]bool{
	"uri":       true,
	"start_uri": true,
	"end_uri":   true,
}

// SQLiteStore implements Store on a single SQLite file per build.
type SQLiteStore struct {
	db *sql.DB

	nodeTypes map[string]*models.NodeType
	relTypes  map[string]*models.RelationshipType
}

// Open opens (or creates) a staging database and ensures the manifest
// tables exist.
func Open(path string) (*SQLiteStore, error) {
	dsn := path
	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		dsn = path + "?_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening staging database %s: %w", path, err)
	}
	// A single connection keeps transactions serialized and makes the
	// in-memory DSN usable in tests.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:        db,
		nodeTypes: make(map[string]*models.NodeType),
		relTypes:  make(map[string]*models.RelationshipType),
	}
	if err := s.ensureManifest(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.loadTypes(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) ensureManifest() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS etl_runs (
			run_id      TEXT PRIMARY KEY,
			db_name     TEXT NOT NULL,
			db_version  TEXT NOT NULL,
			author      TEXT,
			started_at  TIMESTAMP NOT NULL,
			finished_at TIMESTAMP,
			status      TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS etl_tables (
			run_id        TEXT NOT NULL,
			kind          TEXT NOT NULL,
			name          TEXT NOT NULL,
			source        TEXT NOT NULL,
			rows          INTEGER NOT NULL,
			skipped       INTEGER NOT NULL,
			file          TEXT,
			file_modified TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS etl_types (
			kind        TEXT NOT NULL,
			name        TEXT NOT NULL,
			start_label TEXT,
			end_label   TEXT,
			fields      TEXT NOT NULL,
			sources     TEXT NOT NULL,
			PRIMARY KEY (kind, name)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating manifest tables: %w", err)
		}
	}
	return nil
}

// loadTypes reconstructs type metadata persisted by a previous build, so
// load/export/inspect can run without re-planning.
func (s *SQLiteStore) loadTypes() error {
	rows, err := s.db.Query(`SELECT kind, name, start_label, end_label, fields, sources FROM etl_types`)
	if err != nil {
		return fmt.Errorf("reading staged types: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, name, fieldsJSON, sourcesJSON string
		var startLabel, endLabel sql.NullString
		if err := rows.Scan(&kind, &name, &startLabel, &endLabel, &fieldsJSON, &sourcesJSON); err != nil {
			return fmt.Errorf("scanning staged type: %w", err)
		}

		var fields []schema.Field
		if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
			return fmt.Errorf("decoding fields of staged type %s: %w", name, err)
		}
		var sources []string
		if err := json.Unmarshal([]byte(sourcesJSON), &sources); err != nil {
			return fmt.Errorf("decoding sources of staged type %s: %w", name, err)
		}

		if kind == "node" {
			s.nodeTypes[name] = &models.NodeType{Label: name, Fields: fields, Sources: sources}
		} else {
			s.relTypes[name] = &models.RelationshipType{
				Type: name, StartLabel: startLabel.String, EndLabel: endLabel.String,
				Fields: fields, Sources: sources,
			}
		}
	}
	return rows.Err()
}

// checkFields validates every identifier that will be interpolated into DDL.
func checkFields(name string, fields []schema.Field) error {
	if err := schema.CheckIdent(name); err != nil {
		return err
	}
	for _, f := range fields {
		if err := schema.CheckIdent(f.Name); err != nil {
			return err
		}
		if reservedColumns[strings.ToLower(f.Name)] {
			return fmt.Errorf("field name %q collides with a staging identity column", f.Name)
		}
	}
	return nil
}

func (s *SQLiteStore) saveType(kind, name, startLabel, endLabel string, fields []schema.Field, sources []string) error {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encoding fields of %s: %w", name, err)
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("encoding sources of %s: %w", name, err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO etl_types (kind, name, start_label, end_label, fields, sources) VALUES (?, ?, ?, ?, ?, ?)`,
		kind, name, startLabel, endLabel, string(fieldsJSON), string(sourcesJSON),
	)
	if err != nil {
		return fmt.Errorf("recording staged type %s: %w", name, err)
	}
	return nil
}

// InitNodeTable creates the staging table for one node type. An existing
// table from an earlier build is dropped first: each build starts from an
// empty table, so rows that vanished from a source cannot survive a rebuild
// and refreshed values are not shadowed by the first-writer-wins upsert.
func (s *SQLiteStore) InitNodeTable(ctx context.Context, nt *models.NodeType) error {
	if err := checkFields(nt.Label, nt.Fields); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS "node_%s"`, nt.Label)); err != nil {
		return fmt.Errorf("dropping stale node table for %s: %w", nt.Label, err)
	}
	cols := []string{`"uri" TEXT PRIMARY KEY`}
	for _, f := range nt.Fields {
		cols = append(cols, fmt.Sprintf("%q %s", f.Name, f.Kind.SQLiteType()))
	}
	ddl := fmt.Sprintf(`CREATE TABLE "node_%s" (%s)`, nt.Label, strings.Join(cols, ", "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating node table for %s: %w", nt.Label, err)
	}

	if err := s.saveType("node", nt.Label, "", "", nt.Fields, nt.Sources); err != nil {
		return err
	}
	s.nodeTypes[nt.Label] = nt
	return nil
}

// InitRelTable creates the staging table for one relationship type,
// dropping any table left over from an earlier build.
func (s *SQLiteStore) InitRelTable(ctx context.Context, rt *models.RelationshipType) error {
	if err := checkFields(rt.Type, rt.Fields); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS "rel_%s"`, rt.Type)); err != nil {
		return fmt.Errorf("dropping stale relationship table for %s: %w", rt.Type, err)
	}
	cols := []string{`"start_uri" TEXT NOT NULL`, `"end_uri" TEXT NOT NULL`}
	for _, f := range rt.Fields {
		cols = append(cols, fmt.Sprintf("%q %s", f.Name, f.Kind.SQLiteType()))
	}
	ddl := fmt.Sprintf(`CREATE TABLE "rel_%s" (%s)`, rt.Type, strings.Join(cols, ", "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating relationship table for %s: %w", rt.Type, err)
	}
	idx := fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS "idx_rel_%s_pair" ON "rel_%s" (start_uri, end_uri)`, rt.Type, rt.Type)
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("indexing relationship table for %s: %w", rt.Type, err)
	}

	if err := s.saveType("relationship", rt.Type, rt.StartLabel, rt.EndLabel, rt.Fields, rt.Sources); err != nil {
		return err
	}
	s.relTypes[rt.Type] = rt
	return nil
}

// InsertNodes upserts a batch of node records inside one transaction.
// The merge is first-writer-wins per column: a later source only fills
// columns the earlier sources left NULL. The inserted/merged split is
// derived from the table's row count delta.
func (s *SQLiteStore) InsertNodes(ctx context.Context, label string, recs []*models.Record) (int64, int64, error) {
	nt, ok := s.nodeTypes[label]
	if !ok {
		return 0, 0, fmt.Errorf("node table for %s was never initialized", label)
	}
	if len(recs) == 0 {
		return 0, 0, nil
	}

	before, err := s.NodeCount(ctx, label)
	if err != nil {
		return 0, 0, err
	}

	colNames := []string{`"uri"`}
	updates := make([]string, 0, len(nt.Fields))
	for _, f := range nt.Fields {
		colNames = append(colNames, fmt.Sprintf("%q", f.Name))
		updates = append(updates, fmt.Sprintf("%q = COALESCE(%q, excluded.%q)", f.Name, f.Name, f.Name))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(colNames)), ", ")

	stmt := fmt.Sprintf(`INSERT INTO "node_%s" (%s) VALUES (%s) ON CONFLICT(uri) DO NOTHING`,
		label, strings.Join(colNames, ", "), placeholders)
	if len(updates) > 0 {
		stmt = fmt.Sprintf(`INSERT INTO "node_%s" (%s) VALUES (%s) ON CONFLICT(uri) DO UPDATE SET %s`,
			label, strings.Join(colNames, ", "), placeholders, strings.Join(updates, ", "))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("beginning staging transaction: %w", err)
	}
	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		tx.Rollback()
		return 0, 0, fmt.Errorf("preparing node upsert for %s: %w", label, err)
	}

	for _, rec := range recs {
		args := make([]interface{}, 0, len(nt.Fields)+1)
		args = append(args, rec.URI)
		for _, f := range nt.Fields {
			args = append(args, toSQLite(rec.Values[f.Name], f.Kind))
		}
		if _, err := prepared.ExecContext(ctx, args...); err != nil {
			prepared.Close()
			tx.Rollback()
			return 0, 0, fmt.Errorf("staging node %s/%s: %w", label, rec.URI, err)
		}
	}
	prepared.Close()
	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("committing node batch for %s: %w", label, err)
	}

	after, err := s.NodeCount(ctx, label)
	if err != nil {
		return 0, 0, err
	}
	inserted := after - before
	merged := int64(len(recs)) - inserted
	return inserted, merged, nil
}

// InsertRels inserts a batch of relationship records inside one transaction.
// Duplicate (start, end) pairs within a type are dropped by the unique
// index; the count of surviving rows is returned.
func (s *SQLiteStore) InsertRels(ctx context.Context, relType string, recs []*models.Record) (int64, error) {
	rt, ok := s.relTypes[relType]
	if !ok {
		return 0, fmt.Errorf("relationship table for %s was never initialized", relType)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	before, err := s.RelCount(ctx, relType)
	if err != nil {
		return 0, err
	}

	colNames := []string{`"start_uri"`, `"end_uri"`}
	for _, f := range rt.Fields {
		colNames = append(colNames, fmt.Sprintf("%q", f.Name))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(colNames)), ", ")
	stmt := fmt.Sprintf(`INSERT OR IGNORE INTO "rel_%s" (%s) VALUES (%s)`,
		relType, strings.Join(colNames, ", "), placeholders)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning staging transaction: %w", err)
	}
	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("preparing relationship insert for %s: %w", relType, err)
	}

	for _, rec := range recs {
		args := make([]interface{}, 0, len(rt.Fields)+2)
		args = append(args, rec.StartURI, rec.EndURI)
		for _, f := range rt.Fields {
			args = append(args, toSQLite(rec.Values[f.Name], f.Kind))
		}
		if _, err := prepared.ExecContext(ctx, args...); err != nil {
			prepared.Close()
			tx.Rollback()
			return 0, fmt.Errorf("staging relationship %s: %w", relType, err)
		}
	}
	prepared.Close()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing relationship batch for %s: %w", relType, err)
	}

	after, err := s.RelCount(ctx, relType)
	if err != nil {
		return 0, err
	}
	return after - before, nil
}

func (s *SQLiteStore) NodeCount(ctx context.Context, label string) (int64, error) {
	if err := schema.CheckIdent(label); err != nil {
		return 0, err
	}
	var n int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM "node_%s"`, label)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting staged %s nodes: %w", label, err)
	}
	return n, nil
}

func (s *SQLiteStore) RelCount(ctx context.Context, relType string) (int64, error) {
	if err := schema.CheckIdent(relType); err != nil {
		return 0, err
	}
	var n int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM "rel_%s"`, relType)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting staged %s relationships: %w", relType, err)
	}
	return n, nil
}

// ScanNodes walks a staged node table in URI order, invoking fn per batch.
func (s *SQLiteStore) ScanNodes(ctx context.Context, label string, batch int, fn func([]*models.Record) error) error {
	nt, ok := s.nodeTypes[label]
	if !ok {
		return fmt.Errorf("node table for %s was never initialized", label)
	}

	cols := []string{`"uri"`}
	for _, f := range nt.Fields {
		cols = append(cols, fmt.Sprintf("%q", f.Name))
	}
	query := fmt.Sprintf(`SELECT %s FROM "node_%s" ORDER BY uri`, strings.Join(cols, ", "), label)

	return s.scan(ctx, query, batch, func(values []interface{}) *models.Record {
		rec := &models.Record{
			URI:    stringOf(values[0]),
			Values: make(map[string]interface{}, len(nt.Fields)),
		}
		for i, f := range nt.Fields {
			if v := fromSQLite(values[i+1], f.Kind); v != nil {
				rec.Values[f.Name] = v
			}
		}
		return rec
	}, fn)
}

// ScanRels walks a staged relationship table, invoking fn per batch.
func (s *SQLiteStore) ScanRels(ctx context.Context, relType string, batch int, fn func([]*models.Record) error) error {
	rt, ok := s.relTypes[relType]
	if !ok {
		return fmt.Errorf("relationship table for %s was never initialized", relType)
	}

	cols := []string{`"start_uri"`, `"end_uri"`}
	for _, f := range rt.Fields {
		cols = append(cols, fmt.Sprintf("%q", f.Name))
	}
	query := fmt.Sprintf(`SELECT %s FROM "rel_%s" ORDER BY start_uri, end_uri`, strings.Join(cols, ", "), relType)

	return s.scan(ctx, query, batch, func(values []interface{}) *models.Record {
		rec := &models.Record{
			StartURI: stringOf(values[0]),
			EndURI:   stringOf(values[1]),
			Values:   make(map[string]interface{}, len(rt.Fields)),
		}
		for i, f := range rt.Fields {
			if v := fromSQLite(values[i+2], f.Kind); v != nil {
				rec.Values[f.Name] = v
			}
		}
		return rec
	}, fn)
}

// scan runs a query and feeds decoded records to fn in batches.
func (s *SQLiteStore) scan(ctx context.Context, query string, batch int, decode func([]interface{}) *models.Record, fn func([]*models.Record) error) error {
	if batch <= 0 {
		batch = 500
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("scanning staged table: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	pending := make([]*models.Record, 0, batch)
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("decoding staged row: %w", err)
		}

		pending = append(pending, decode(values))
		if len(pending) == batch {
			if err := fn(pending); err != nil {
				return err
			}
			pending = pending[:0]
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(pending) > 0 {
		return fn(pending)
	}
	return nil
}

func (s *SQLiteStore) NodeTypes(ctx context.Context) ([]*models.NodeType, error) {
	out := make([]*models.NodeType, 0, len(s.nodeTypes))
	for _, nt := range s.nodeTypes {
		out = append(out, nt)
	}
	sortNodeTypes(out)
	return out, nil
}

func (s *SQLiteStore) RelTypes(ctx context.Context) ([]*models.RelationshipType, error) {
	out := make([]*models.RelationshipType, 0, len(s.relTypes))
	for _, rt := range s.relTypes {
		out = append(out, rt)
	}
	sortRelTypes(out)
	return out, nil
}

// toSQLite converts a record value into the driver-friendly form.
func toSQLite(v interface{}, kind schema.Kind) interface{} {
	if v == nil {
		return nil
	}
	if kind == schema.KindBool {
		if b, ok := v.(bool); ok {
			if b {
				return int64(1)
			}
			return int64(0)
		}
	}
	return v
}

// fromSQLite converts a scanned value back into the record form for a kind.
func fromSQLite(v interface{}, kind schema.Kind) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case int64:
		if kind == schema.KindBool {
			return val != 0
		}
		if kind == schema.KindFloat {
			return float64(val)
		}
		return val
	case []byte:
		if kind == schema.KindBytes {
			return val
		}
		return string(val)
	case time.Time:
		return val
	default:
		return v
	}
}

func stringOf(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
