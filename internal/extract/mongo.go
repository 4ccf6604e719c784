package extract

import (
	"context"
	"fmt"
	"sort"
	"time"

	"graphetl/internal/models"
	"graphetl/internal/schema"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSource extracts documents from one configured MongoDB database.
// Document databases carry no declared schema, so field discovery samples a
// bounded number of documents and unions their keys.
type MongoSource struct {
	name       string
	client     *mongo.Client
	database   string
	sampleSize int
}

// NewMongoSource wraps a connected client.
func NewMongoSource(name string, client *mongo.Client, database string, sampleSize int) *MongoSource {
	if sampleSize <= 0 {
		sampleSize = 100
	}
	return &MongoSource{name: name, client: client, database: database, sampleSize: sampleSize}
}

func (s *MongoSource) Name() string { return s.name }

func (s *MongoSource) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Fields samples documents from the collection and maps the union of their
// keys to harmonized fields. Field order is sorted by name because document
// key order is not meaningful.
func (s *MongoSource) Fields(ctx context.Context, spec SelectSpec) ([]schema.Field, error) {
	coll := s.client.Database(s.database).Collection(spec.Table)

	cursor, err := coll.Find(ctx, bson.D{}, options.Find().SetLimit(int64(s.sampleSize)))
	if err != nil {
		return nil, fmt.Errorf("source %s: sampling collection %s: %w", s.name, spec.Table, err)
	}
	defer cursor.Close(ctx)

	kinds := make(map[string]schema.Kind)
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("source %s: decoding sample document: %w", s.name, err)
		}
		for key, value := range flattenDoc(doc) {
			guess := schema.KindFromBSON(value)
			if prev, seen := kinds[key]; seen {
				kinds[key] = combineInferred(prev, guess)
			} else {
				kinds[key] = guess
			}
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("source %s: sampling collection %s: %w", s.name, spec.Table, err)
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("source %s: collection %s is empty, cannot infer fields", s.name, spec.Table)
	}

	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	sort.Strings(names)

	var fields []schema.Field
	for _, name := range names {
		if !spec.keep(name) {
			continue
		}
		fields = append(fields, schema.NewField(spec.property(name), kinds[name], s.name))
	}
	return fields, nil
}

// Stream walks the whole collection with a cursor and emits one Record per
// document.
func (s *MongoSource) Stream(ctx context.Context, spec SelectSpec, out chan<- *models.Record) (int64, error) {
	coll := s.client.Database(s.database).Collection(spec.Table)

	cursor, err := coll.Find(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("source %s: reading collection %s: %w", s.name, spec.Table, err)
	}
	defer cursor.Close(ctx)

	var skipped int64
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return skipped, fmt.Errorf("source %s: decoding document: %w", s.name, err)
		}

		flat := flattenDoc(doc)
		rec := &models.Record{Values: make(map[string]interface{}, len(flat))}
		for key, value := range flat {
			v := normalizeBSONValue(value)
			switch {
			case !spec.IsRelation() && key == spec.URIKey:
				rec.URI = stringify(v)
			case spec.IsRelation() && key == spec.StartKey:
				rec.StartURI = stringify(v)
			case spec.IsRelation() && key == spec.EndKey:
				rec.EndURI = stringify(v)
			case spec.keep(key):
				if v != nil {
					rec.Values[spec.property(key)] = v
				}
			}
		}

		if incomplete(spec, rec) {
			skipped++
			continue
		}
		if err := send(ctx, out, rec); err != nil {
			return skipped, err
		}
	}
	if err := cursor.Err(); err != nil {
		return skipped, fmt.Errorf("source %s: cursor on %s: %w", s.name, spec.Table, err)
	}
	return skipped, nil
}

// flattenDoc flattens nested documents one level deep ("parent_child").
// The underscore join keeps the flattened names valid property identifiers.
// Deeper nesting is rendered with %v; graph properties are scalar.
func flattenDoc(doc bson.M) map[string]interface{} {
	flat := make(map[string]interface{}, len(doc))
	for key, value := range doc {
		if nested, ok := value.(bson.M); ok {
			for childKey, childValue := range nested {
				flat[key+"_"+childKey] = childValue
			}
			continue
		}
		flat[key] = value
	}
	return flat
}

// normalizeBSONValue converts BSON-specific types into plain Go values.
func normalizeBSONValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time()
	case primitive.Decimal128:
		return val.String()
	case primitive.Binary:
		return val.Data
	case primitive.A:
		return fmt.Sprintf("%v", []interface{}(val))
	case bson.M:
		return fmt.Sprintf("%v", map[string]interface{}(val))
	case int32:
		return int64(val)
	case int:
		return int64(val)
	case time.Time:
		return val
	default:
		return v
	}
}
