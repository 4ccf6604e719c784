package builder

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"graphetl/internal/config"
	"graphetl/internal/database/kafka"
	miniodb "graphetl/internal/database/minio"
	mongodb "graphetl/internal/database/mongo"
	mysqldb "graphetl/internal/database/mysql"
	redisdb "graphetl/internal/database/redis"
	"graphetl/internal/dedupe"
	"graphetl/internal/events"
	"graphetl/internal/extract"
	"graphetl/internal/models"
	"graphetl/internal/schema"
	"graphetl/internal/staging"
	"graphetl/pkg/logger"
	"graphetl/pkg/ratelimiter"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// defaultTrackerCapacity bounds the in-memory seen-URI cache when Redis is
// not configured.
const defaultTrackerCapacity = 1 << 20

// EventSink receives build events for out-of-process consumers.
type EventSink interface {
	Publish(ctx context.Context, event *models.BuildEvent) error
}

// Plan is the harmonized output schema computed by peeking every source,
// before anything is staged.
type Plan struct {
	Nodes []*models.NodeType
	Rels  []*models.RelationshipType
}

// Report summarizes one finished build.
type Report struct {
	RunID    string
	Nodes    map[string]int64 // staged rows per node label
	Merged   map[string]int64 // rows merged into an existing URI per label
	Rels     map[string]int64 // staged rows per relationship type
	Skipped  int64            // rows dropped for missing identity
	Overlap  int64            // rows whose URI was already seen this build
	Duration time.Duration
}

// Builder orchestrates a build: process configuration, connect sources,
// harmonize schemas, initialize staging tables, stream every source into
// staging and write the run manifest.
type Builder struct {
	cfg   *config.Config
	log   *logger.Logger
	runID string

	sources  map[string]extract.Source
	store    staging.Store
	tracker  dedupe.Tracker
	sink     EventSink
	progress chan<- models.BuildEvent
	limiter  ratelimiter.RateLimiter
	workers  int

	ownStore bool
	cleanups []func()
}

// Option customizes a Builder; tests use these to inject fakes.
type Option func(*Builder)

// WithSource pre-registers a connected source, bypassing Connect for it.
func WithSource(name string, src extract.Source) Option {
	return func(b *Builder) { b.sources[name] = src }
}

// WithStore uses the given staging store instead of opening one from config.
func WithStore(store staging.Store) Option {
	return func(b *Builder) { b.store = store }
}

// WithTracker replaces the seen-URI tracker.
func WithTracker(t dedupe.Tracker) Option {
	return func(b *Builder) { b.tracker = t }
}

// WithSink attaches an event sink (Kafka in production).
func WithSink(sink EventSink) Option {
	return func(b *Builder) { b.sink = sink }
}

// WithProgress attaches a progress channel for the CLI.
func WithProgress(ch chan<- models.BuildEvent) Option {
	return func(b *Builder) { b.progress = ch }
}

// WithWorkers bounds how many node/relationship types stage concurrently.
func WithWorkers(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// New creates a Builder for one run.
func New(cfg *config.Config, opts ...Option) *Builder {
	runID := uuid.New().String()
	b := &Builder{
		cfg:     cfg,
		log:     logger.New("builder", runID),
		runID:   runID,
		sources: make(map[string]extract.Source),
		workers: 4,
	}
	if cfg.Throttle.RowsPerSecond > 0 {
		b.limiter = ratelimiter.NewTokenBucket(cfg.Throttle.RowsPerSecond, cfg.Throttle.Burst)
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RunID returns the run identifier stamped on events and the manifest.
func (b *Builder) RunID() string { return b.runID }

// referencedSources returns the names of sources actually bound by a node
// or relationship type. Configured-but-unused sources are not connected.
func (b *Builder) referencedSources() map[string]bool {
	refs := make(map[string]bool)
	for _, node := range b.cfg.Nodes {
		for name := range node.Sources {
			refs[name] = true
		}
	}
	for _, rel := range b.cfg.Relationships {
		for name := range rel.Sources {
			refs[name] = true
		}
	}
	return refs
}

// Connect establishes connections to every referenced source plus the
// optional backends. A referenced source that cannot be reached aborts the
// build: a partial graph staged from half the sources is worse than an
// error.
func (b *Builder) Connect(ctx context.Context) error {
	var fetcher extract.ObjectFetcher
	if b.cfg.MinIO != nil {
		client, err := miniodb.GetClient(ctx, b.cfg.MinIO)
		if err != nil {
			return err
		}
		mf, err := extract.NewMinIOFetcher(client)
		if err != nil {
			return err
		}
		fetcher = mf
		b.cleanups = append(b.cleanups, func() { mf.Cleanup() })
	}

	refs := b.referencedSources()
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, ok := b.sources[name]; ok {
			continue // injected
		}
		sc, ok := b.cfg.Sources[name]
		if !ok {
			return fmt.Errorf("source %q is referenced but not configured", name)
		}

		b.log.WithField("source", name).Info("connecting source")
		switch sc.Type {
		case config.SourceMySQL:
			db, err := mysqldb.Connect(&sc.MySQL)
			if err != nil {
				return fmt.Errorf("connecting source %s: %w", name, err)
			}
			b.sources[name] = extract.NewMySQLSource(name, db)
		case config.SourceMongoDB:
			client, err := mongodb.Connect(ctx, &sc.Mongo)
			if err != nil {
				return fmt.Errorf("connecting source %s: %w", name, err)
			}
			b.sources[name] = extract.NewMongoSource(name, client, sc.Mongo.Database, sc.Mongo.SampleSize)
		case config.SourceCSV, config.SourceXLSX:
			if strings.HasPrefix(sc.File.Path, "minio://") && fetcher == nil {
				return fmt.Errorf("source %s uses a minio:// path but no minio section is configured", name)
			}
			b.sources[name] = extract.NewFileSource(name, sc.Type, sc.File, fetcher)
		default:
			return fmt.Errorf("source %s has unsupported type %q", name, sc.Type)
		}
	}

	// Optional backends degrade to in-process fallbacks with a warning.
	if b.tracker == nil {
		if b.cfg.Redis != nil {
			client, err := redisdb.GetClient(ctx, b.cfg.Redis)
			if err != nil {
				b.log.Warn(fmt.Sprintf("redis unavailable, falling back to in-memory tracker: %v", err))
			} else {
				b.tracker = dedupe.NewRedisTracker(client, b.runID)
			}
		}
		if b.tracker == nil {
			tracker, err := dedupe.NewLRUTracker(defaultTrackerCapacity)
			if err != nil {
				return err
			}
			b.tracker = tracker
		}
	}

	if b.sink == nil && b.cfg.Kafka != nil {
		client, err := kafka.GetClient(b.cfg.Kafka)
		if err != nil {
			b.log.Warn(fmt.Sprintf("kafka unavailable, build events stay local: %v", err))
		} else {
			b.sink = events.NewPublisher(client)
		}
	}

	return nil
}

// Close releases every connection the builder owns.
func (b *Builder) Close(ctx context.Context) {
	for name, src := range b.sources {
		if err := src.Close(ctx); err != nil {
			b.log.WithField("source", name).Warn(fmt.Sprintf("closing source: %v", err))
		}
	}
	for _, cleanup := range b.cleanups {
		cleanup()
	}
	if b.store != nil && b.ownStore {
		b.store.Close()
	}
}

// nodeSpec converts a node-source binding into an extraction spec.
func nodeSpec(binding config.NodeSourceConfig) extract.SelectSpec {
	return extract.SelectSpec{
		Table:  binding.Table,
		IDKey:  binding.IDKey,
		URIKey: binding.URIKey,
		Fields: binding.Fields,
		Rename: binding.Rename,
	}
}

// relSpec converts a relationship-source binding into an extraction spec.
func relSpec(binding config.RelSourceConfig) extract.SelectSpec {
	return extract.SelectSpec{
		Table:    binding.Table,
		StartKey: binding.StartKey,
		EndKey:   binding.EndKey,
		Fields:   binding.Fields,
		Rename:   binding.Rename,
	}
}

// Plan peeks every source and harmonizes the fields of every node and
// relationship type. It reads no data rows.
func (b *Builder) Plan(ctx context.Context) (*Plan, error) {
	plan := &Plan{}

	labels := sortedKeys(b.cfg.Nodes)
	for _, label := range labels {
		node := b.cfg.Nodes[label]
		var all []schema.Field
		sourceNames := node.NodeSourceOrder()
		for _, srcName := range sourceNames {
			src, ok := b.sources[srcName]
			if !ok {
				return nil, fmt.Errorf("node type %s: source %s is not connected", label, srcName)
			}
			fields, err := src.Fields(ctx, nodeSpec(node.Sources[srcName]))
			if err != nil {
				return nil, fmt.Errorf("node type %s: %w", label, err)
			}
			all = append(all, fields...)
		}
		merged, err := schema.Merge(all)
		if err != nil {
			return nil, fmt.Errorf("node type %s: %w", label, err)
		}
		plan.Nodes = append(plan.Nodes, &models.NodeType{Label: label, Fields: merged, Sources: sourceNames})
		b.emit(ctx, models.BuildEvent{
			Stage: models.StagePlan, Label: label,
			Message: fmt.Sprintf("node type %s: %d fields from %d sources", label, len(merged), len(sourceNames)),
		})
	}

	relTypes := sortedKeys(b.cfg.Relationships)
	for _, relType := range relTypes {
		rel := b.cfg.Relationships[relType]
		var all []schema.Field
		sourceNames := rel.RelSourceOrder()
		for _, srcName := range sourceNames {
			src, ok := b.sources[srcName]
			if !ok {
				return nil, fmt.Errorf("relationship type %s: source %s is not connected", relType, srcName)
			}
			fields, err := src.Fields(ctx, relSpec(rel.Sources[srcName]))
			if err != nil {
				return nil, fmt.Errorf("relationship type %s: %w", relType, err)
			}
			all = append(all, fields...)
		}
		merged, err := schema.Merge(all)
		if err != nil {
			return nil, fmt.Errorf("relationship type %s: %w", relType, err)
		}
		plan.Rels = append(plan.Rels, &models.RelationshipType{
			Type: relType, StartLabel: rel.StartNode, EndLabel: rel.EndNode,
			Fields: merged, Sources: sourceNames,
		})
		b.emit(ctx, models.BuildEvent{
			Stage: models.StagePlan, Label: relType,
			Message: fmt.Sprintf("relationship type %s: %d fields from %d sources", relType, len(merged), len(sourceNames)),
		})
	}

	return plan, nil
}

// Build runs the full pipeline: plan, initialize staging, stream every
// source into staging and close out the manifest.
func (b *Builder) Build(ctx context.Context) (*Report, error) {
	started := time.Now()

	// 1. Harmonize schemas across all sources.
	plan, err := b.Plan(ctx)
	if err != nil {
		return nil, err
	}

	// 2. Open the staging database and initialize one table per type.
	if b.store == nil {
		store, err := staging.Open(b.cfg.Staging.Path)
		if err != nil {
			return nil, err
		}
		b.store = store
		b.ownStore = true
	}
	for _, nt := range plan.Nodes {
		if err := b.store.InitNodeTable(ctx, nt); err != nil {
			return nil, err
		}
	}
	for _, rt := range plan.Rels {
		if err := b.store.InitRelTable(ctx, rt); err != nil {
			return nil, err
		}
	}

	if err := b.store.BeginRun(ctx, &staging.RunInfo{
		RunID:     b.runID,
		DBName:    b.cfg.Database.Name,
		DBVersion: b.cfg.Database.Version,
		Author:    b.cfg.Database.Author,
		StartedAt: started,
	}); err != nil {
		return nil, err
	}

	report := &Report{
		RunID:  b.runID,
		Nodes:  make(map[string]int64),
		Merged: make(map[string]int64),
		Rels:   make(map[string]int64),
	}

	// 3. Stage node types; each type's sources run sequentially so the
	// first-wins merge order is stable, types fan out across workers.
	if err := b.stageNodes(ctx, plan, report); err != nil {
		b.store.FinishRun(ctx, b.runID, staging.StatusFailed)
		b.emit(ctx, models.BuildEvent{Stage: models.StageFailed, Message: err.Error()})
		return nil, err
	}

	// 4. Stage relationship types.
	if err := b.stageRels(ctx, plan, report); err != nil {
		b.store.FinishRun(ctx, b.runID, staging.StatusFailed)
		b.emit(ctx, models.BuildEvent{Stage: models.StageFailed, Message: err.Error()})
		return nil, err
	}

	if err := b.store.FinishRun(ctx, b.runID, staging.StatusFinished); err != nil {
		return nil, err
	}
	if b.tracker != nil {
		b.tracker.Reset(ctx)
	}

	report.Duration = time.Since(started)
	b.emit(ctx, models.BuildEvent{
		Stage:   models.StageDone,
		Message: fmt.Sprintf("staged %d node types and %d relationship types in %s", len(plan.Nodes), len(plan.Rels), report.Duration),
	})
	return report, nil
}

func (b *Builder) stageNodes(ctx context.Context, plan *Plan, report *Report) error {
	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.workers)

	results := make(chan stageResult, len(plan.Nodes)*4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for res := range results {
			report.Nodes[res.name] += res.rows
			report.Merged[res.name] += res.merged
			report.Skipped += res.skipped
			report.Overlap += res.overlap
		}
	}()

	for _, nt := range plan.Nodes {
		nt := nt
		eg.Go(func() error {
			node := b.cfg.Nodes[nt.Label]
			for _, srcName := range nt.Sources {
				res, err := b.stageOne(gCtx, b.sources[srcName], nodeSpec(node.Sources[srcName]), nt.Label, "node")
				if err != nil {
					return fmt.Errorf("staging node type %s from %s: %w", nt.Label, srcName, err)
				}
				results <- res
			}
			return nil
		})
	}

	err := eg.Wait()
	close(results)
	<-done
	return err
}

func (b *Builder) stageRels(ctx context.Context, plan *Plan, report *Report) error {
	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.workers)

	results := make(chan stageResult, len(plan.Rels)*4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for res := range results {
			report.Rels[res.name] += res.rows
			report.Skipped += res.skipped
		}
	}()

	for _, rt := range plan.Rels {
		rt := rt
		eg.Go(func() error {
			rel := b.cfg.Relationships[rt.Type]
			for _, srcName := range rt.Sources {
				res, err := b.stageOne(gCtx, b.sources[srcName], relSpec(rel.Sources[srcName]), rt.Type, "relationship")
				if err != nil {
					return fmt.Errorf("staging relationship type %s from %s: %w", rt.Type, srcName, err)
				}
				results <- res
			}
			return nil
		})
	}

	err := eg.Wait()
	close(results)
	<-done
	return err
}

type stageResult struct {
	name    string
	rows    int64
	merged  int64
	skipped int64
	overlap int64
}

// stageOne streams one (type, source) binding into its staging table.
func (b *Builder) stageOne(ctx context.Context, src extract.Source, spec extract.SelectSpec, name, kind string) (stageResult, error) {
	res := stageResult{name: name}
	isNode := kind == "node"

	recs := make(chan *models.Record, 256)
	streamErr := make(chan error, 1)
	var skipped int64
	go func() {
		n, err := src.Stream(ctx, spec, recs)
		skipped = n
		streamErr <- err
		close(recs)
	}()

	batch := make([]*models.Record, 0, b.cfg.Staging.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if isNode {
			inserted, merged, err := b.store.InsertNodes(ctx, name, batch)
			if err != nil {
				return err
			}
			res.rows += inserted + merged
			res.merged += merged
		} else {
			n, err := b.store.InsertRels(ctx, name, batch)
			if err != nil {
				return err
			}
			res.rows += n
		}
		batch = batch[:0]
		return nil
	}

	for rec := range recs {
		if err := ratelimiter.Wait(ctx, b.limiter); err != nil {
			return res, err
		}
		if isNode && b.tracker != nil {
			seen, err := b.tracker.Seen(ctx, name, rec.URI)
			if err != nil {
				b.log.Warn(fmt.Sprintf("uri tracker degraded: %v", err))
			} else if seen {
				res.overlap++
			}
		}
		batch = append(batch, rec)
		if len(batch) >= b.cfg.Staging.BatchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := <-streamErr; err != nil {
		return res, err
	}
	if err := flush(); err != nil {
		return res, err
	}
	res.skipped = skipped

	b.recordManifest(ctx, src, spec, name, kind, res)
	b.emit(ctx, models.BuildEvent{
		Stage: models.StageStage, Label: name, Source: src.Name(),
		Rows: res.rows, Skipped: res.skipped,
		Message: fmt.Sprintf("staged %d rows of %s from %s (%d skipped)", res.rows, name, src.Name(), res.skipped),
	})
	return res, nil
}

// recordManifest writes the per-source staging statistics, including file
// provenance for flat-file sources.
func (b *Builder) recordManifest(ctx context.Context, src extract.Source, spec extract.SelectSpec, name, kind string, res stageResult) {
	stats := []*staging.TableStat{{
		RunID: b.runID, Kind: kind, Name: name, Source: src.Name(),
		Rows: res.rows, Skipped: res.skipped,
	}}

	if fs, ok := src.(*extract.FileSource); ok {
		files := fs.Files(spec)
		if len(files) > 0 {
			stats = stats[:0]
			for _, f := range files {
				modified := f.Modified
				stat := &staging.TableStat{
					RunID: b.runID, Kind: kind, Name: name, Source: src.Name(),
					Rows: res.rows, Skipped: res.skipped, File: f.Path,
				}
				if !modified.IsZero() {
					stat.FileModified = &modified
				}
				stats = append(stats, stat)
			}
		}
	}

	for _, stat := range stats {
		if err := b.store.RecordTable(ctx, stat); err != nil {
			b.log.Warn(fmt.Sprintf("recording manifest for %s: %v", name, err))
		}
	}
}

// emit fans a build event out to the progress channel and the event sink.
// Event delivery is best-effort and never fails a build.
func (b *Builder) emit(ctx context.Context, event models.BuildEvent) {
	event.RunID = b.runID
	event.Timestamp = time.Now()

	if b.progress != nil {
		select {
		case b.progress <- event:
		case <-ctx.Done():
		}
	}
	if b.sink != nil {
		if err := b.sink.Publish(ctx, &event); err != nil {
			b.log.Warn(fmt.Sprintf("publishing build event: %v", err))
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
