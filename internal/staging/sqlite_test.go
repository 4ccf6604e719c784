package staging

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"graphetl/internal/models"
	"graphetl/internal/schema"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func personType() *models.NodeType {
	return &models.NodeType{
		Label: "Person",
		Fields: []schema.Field{
			schema.NewField("name", schema.KindString, "warehouse"),
			schema.NewField("birth_year", schema.KindInt, "warehouse"),
			schema.NewField("active", schema.KindBool, "profiles"),
		},
		Sources: []string{"warehouse", "profiles"},
	}
}

func TestInsertNodesFirstSourceWins(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	require.NoError(t, store.InitNodeTable(ctx, personType()))

	inserted, merged, err := store.InsertNodes(ctx, "Person", []*models.Record{
		{URI: "p:1", Values: map[string]interface{}{"name": "Ada"}},
		{URI: "p:2", Values: map[string]interface{}{"name": "Alan", "birth_year": int64(1912)}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), inserted)
	require.Equal(t, int64(0), merged)

	// A second source re-describes p:1: existing values stay, gaps fill in.
	inserted, merged, err = store.InsertNodes(ctx, "Person", []*models.Record{
		{URI: "p:1", Values: map[string]interface{}{"name": "A. Lovelace", "birth_year": int64(1815), "active": false}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), inserted)
	require.Equal(t, int64(1), merged)

	var got []*models.Record
	require.NoError(t, store.ScanNodes(ctx, "Person", 10, func(batch []*models.Record) error {
		got = append(got, batch...)
		return nil
	}))
	require.Len(t, got, 2)

	p1 := got[0]
	require.Equal(t, "p:1", p1.URI)
	require.Equal(t, "Ada", p1.Values["name"])
	require.Equal(t, int64(1815), p1.Values["birth_year"])
	require.Equal(t, false, p1.Values["active"])
}

func TestInsertRelsDropsDuplicatePairs(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	rt := &models.RelationshipType{
		Type: "KNOWS", StartLabel: "Person", EndLabel: "Person",
		Fields:  []schema.Field{schema.NewField("since", schema.KindInt, "warehouse")},
		Sources: []string{"warehouse"},
	}
	require.NoError(t, store.InitRelTable(ctx, rt))

	n, err := store.InsertRels(ctx, "KNOWS", []*models.Record{
		{StartURI: "p:1", EndURI: "p:2", Values: map[string]interface{}{"since": int64(1999)}},
		{StartURI: "p:1", EndURI: "p:2", Values: map[string]interface{}{"since": int64(2001)}},
		{StartURI: "p:2", EndURI: "p:1", Values: map[string]interface{}{}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	count, err := store.RelCount(ctx, "KNOWS")
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

func TestInitNodeTableRejectsReservedColumns(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	err := store.InitNodeTable(ctx, &models.NodeType{
		Label:  "Bad",
		Fields: []schema.Field{schema.NewField("uri", schema.KindString, "x")},
	})
	require.Error(t, err)
}

func TestInitNodeTableRejectsHostileIdentifiers(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	err := store.InitNodeTable(ctx, &models.NodeType{
		Label:  `P"; DROP TABLE etl_runs; --`,
		Fields: nil,
	})
	require.Error(t, err)
}

func TestInitNodeTableTruncatesPreviousBuild(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	require.NoError(t, store.InitNodeTable(ctx, personType()))

	_, _, err := store.InsertNodes(ctx, "Person", []*models.Record{
		{URI: "p:1", Values: map[string]interface{}{"name": "Ada"}},
		{URI: "p:2", Values: map[string]interface{}{"name": "Alan"}},
	})
	require.NoError(t, err)

	// Re-initializing for a new build starts from an empty table, so rows
	// gone from the source do not linger and values can be replaced.
	require.NoError(t, store.InitNodeTable(ctx, personType()))
	count, err := store.NodeCount(ctx, "Person")
	require.NoError(t, err)
	require.Equal(t, int64(0), count)

	inserted, merged, err := store.InsertNodes(ctx, "Person", []*models.Record{
		{URI: "p:1", Values: map[string]interface{}{"name": "Ada King"}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), inserted)
	require.Equal(t, int64(0), merged)

	var got []*models.Record
	require.NoError(t, store.ScanNodes(ctx, "Person", 10, func(batch []*models.Record) error {
		got = append(got, batch...)
		return nil
	}))
	require.Len(t, got, 1)
	require.Equal(t, "Ada King", got[0].Values["name"])
}

func TestTypesSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "staging.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.InitNodeTable(ctx, personType()))
	_, _, err = store.InsertNodes(ctx, "Person", []*models.Record{
		{URI: "p:1", Values: map[string]interface{}{"name": "Ada"}},
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// A fresh process (load or export) sees the staged types and rows.
	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	types, err := reopened.NodeTypes(ctx)
	require.NoError(t, err)
	require.Len(t, types, 1)
	require.Equal(t, "Person", types[0].Label)
	require.Len(t, types[0].Fields, 3)
	require.Equal(t, schema.KindInt, types[0].Fields[1].Kind)

	count, err := reopened.NodeCount(ctx, "Person")
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestRunManifest(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	started := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.BeginRun(ctx, &RunInfo{
		RunID: "run-1", DBName: "pubgraph", DBVersion: "1.0", Author: "tester", StartedAt: started,
	}))
	modified := started.Add(-time.Hour)
	require.NoError(t, store.RecordTable(ctx, &TableStat{
		RunID: "run-1", Kind: "node", Name: "Person", Source: "warehouse",
		Rows: 10, Skipped: 2, File: "people.csv", FileModified: &modified,
	}))
	require.NoError(t, store.FinishRun(ctx, "run-1", StatusFinished))

	runs, err := store.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "run-1", runs[0].RunID)
	require.Equal(t, StatusFinished, runs[0].Status)
	require.NotNil(t, runs[0].FinishedAt)

	stats, err := store.TableStats(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.Equal(t, int64(10), stats[0].Rows)
	require.Equal(t, int64(2), stats[0].Skipped)
	require.Equal(t, "people.csv", stats[0].File)
	require.NotNil(t, stats[0].FileModified)
}
