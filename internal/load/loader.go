package load

import (
	"context"
	"fmt"
	"time"

	neo4jdb "graphetl/internal/database/neo4j"
	"graphetl/internal/models"
	"graphetl/internal/schema"
	"graphetl/internal/staging"
	"graphetl/pkg/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Report summarizes one load into Neo4j.
type Report struct {
	Nodes    map[string]int64 // nodes written per label
	Rels     map[string]int64 // relationships written per type
	Dangling int64            // staged relationships whose endpoint node was absent
	Duration time.Duration
}

// Loader writes the staged graph into Neo4j with batched MERGE statements,
// so loading the same staging database twice leaves the graph unchanged.
type Loader struct {
	client *neo4jdb.Neo4jClient
	store  staging.Store
	batch  int
	log    *logger.Logger
}

// NewLoader creates a Loader reading from store and writing through client.
func NewLoader(client *neo4jdb.Neo4jClient, store staging.Store, batchSize int, runID string) *Loader {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Loader{
		client: client,
		store:  store,
		batch:  batchSize,
		log:    logger.New("loader", runID),
	}
}

// Load writes every staged node type and relationship type into Neo4j.
// Nodes go first so relationships can match their endpoints.
func (l *Loader) Load(ctx context.Context) (*Report, error) {
	started := time.Now()
	report := &Report{
		Nodes: make(map[string]int64),
		Rels:  make(map[string]int64),
	}

	nodeTypes, err := l.store.NodeTypes(ctx)
	if err != nil {
		return nil, err
	}
	relTypes, err := l.store.RelTypes(ctx)
	if err != nil {
		return nil, err
	}

	for _, nt := range nodeTypes {
		n, err := l.loadNodes(ctx, nt)
		if err != nil {
			return nil, fmt.Errorf("loading node type %s: %w", nt.Label, err)
		}
		report.Nodes[nt.Label] = n
		l.log.WithField("label", nt.Label).Info(fmt.Sprintf("loaded %d %s nodes", n, nt.Label))
	}

	for _, rt := range relTypes {
		linked, dangling, err := l.loadRels(ctx, rt)
		if err != nil {
			return nil, fmt.Errorf("loading relationship type %s: %w", rt.Type, err)
		}
		report.Rels[rt.Type] = linked
		report.Dangling += dangling
		if dangling > 0 {
			l.log.WithField("type", rt.Type).Warn(fmt.Sprintf("%d %s relationships reference nodes that were never staged", dangling, rt.Type))
		}
	}

	report.Duration = time.Since(started)
	return report, nil
}

// loadNodes ensures the uniqueness constraint for a label and merges every
// staged row by uri.
func (l *Loader) loadNodes(ctx context.Context, nt *models.NodeType) (int64, error) {
	if err := schema.CheckIdent(nt.Label); err != nil {
		return 0, err
	}

	constraint := fmt.Sprintf(
		"CREATE CONSTRAINT IF NOT EXISTS FOR (n:`%s`) REQUIRE n.uri IS UNIQUE", nt.Label)
	if _, err := l.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		_, err := tx.Run(ctx, constraint, nil)
		return nil, err
	}); err != nil {
		return 0, err
	}

	query := fmt.Sprintf(
		"UNWIND $rows AS row MERGE (n:`%s` {uri: row.uri}) SET n += row.props RETURN count(n) AS written", nt.Label)

	var total int64
	err := l.store.ScanNodes(ctx, nt.Label, l.batch, func(recs []*models.Record) error {
		rows := make([]map[string]interface{}, 0, len(recs))
		for _, rec := range recs {
			rows = append(rows, map[string]interface{}{
				"uri":   rec.URI,
				"props": properties(rec),
			})
		}
		written, err := l.runCount(ctx, query, map[string]interface{}{"rows": rows})
		if err != nil {
			return err
		}
		total += written
		return nil
	})
	return total, err
}

// loadRels merges staged relationships, counting the rows whose endpoint
// match found nothing.
func (l *Loader) loadRels(ctx context.Context, rt *models.RelationshipType) (linked, dangling int64, err error) {
	for _, ident := range []string{rt.Type, rt.StartLabel, rt.EndLabel} {
		if err := schema.CheckIdent(ident); err != nil {
			return 0, 0, err
		}
	}

	// Rows without both endpoints fall out of the MATCH and never reach the
	// count, which is exactly the dangling-reference tally.
	query := fmt.Sprintf(
		"UNWIND $rows AS row"+
			" MATCH (a:`%s` {uri: row.start}) MATCH (b:`%s` {uri: row.end})"+
			" MERGE (a)-[r:`%s`]->(b) SET r += row.props"+
			" RETURN count(r) AS written",
		rt.StartLabel, rt.EndLabel, rt.Type)

	err = l.store.ScanRels(ctx, rt.Type, l.batch, func(recs []*models.Record) error {
		rows := make([]map[string]interface{}, 0, len(recs))
		for _, rec := range recs {
			rows = append(rows, map[string]interface{}{
				"start": rec.StartURI,
				"end":   rec.EndURI,
				"props": properties(rec),
			})
		}
		written, err := l.runCount(ctx, query, map[string]interface{}{"rows": rows})
		if err != nil {
			return err
		}
		linked += written
		dangling += int64(len(recs)) - written
		return nil
	})
	return linked, dangling, err
}

// runCount executes a write query returning a single integer column.
func (l *Loader) runCount(ctx context.Context, query string, params map[string]interface{}) (int64, error) {
	result, err := l.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		return record.Values[0], nil
	})
	if err != nil {
		return 0, err
	}
	n, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected count result %T", result)
	}
	return n, nil
}

// properties returns the non-nil property values of a record. Null values
// are dropped rather than sent: SET n += {k: null} would erase properties
// another source already filled in.
func properties(rec *models.Record) map[string]interface{} {
	props := make(map[string]interface{}, len(rec.Values))
	for k, v := range rec.Values {
		if v == nil {
			continue
		}
		props[k] = v
	}
	return props
}
