package extract

import (
	"context"
	"errors"

	"graphetl/internal/models"
	"graphetl/internal/schema"
)

// ErrNoHeader is returned when a flat file has no header row to name fields.
var ErrNoHeader = errors.New("source has no header row")

// SelectSpec binds one node or relationship type to a table, collection or
// file inside a source. It is derived from the node/relationship sections of
// the build configuration.
type SelectSpec struct {
	Table    string            // table, collection or file path override
	IDKey    string            // source-local primary key column
	URIKey   string            // node identity column (node bindings only)
	StartKey string            // start-node URI column (relationship bindings only)
	EndKey   string            // end-node URI column (relationship bindings only)
	Fields   []string          // optional allow-list of property columns
	Rename   map[string]string // optional source column -> graph property rename
}

// IsRelation reports whether the spec binds a relationship type.
func (s SelectSpec) IsRelation() bool { return s.StartKey != "" }

// keyColumn reports whether the column carries identity rather than a
// property. Identity columns are read but never emitted as properties.
func (s SelectSpec) keyColumn(name string) bool {
	if s.IsRelation() {
		return name == s.StartKey || name == s.EndKey
	}
	return name == s.URIKey
}

// keep applies the optional field allow-list.
func (s SelectSpec) keep(name string) bool {
	if s.keyColumn(name) {
		return false
	}
	if len(s.Fields) == 0 {
		return true
	}
	for _, f := range s.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// property maps a source column name to its graph property name.
func (s SelectSpec) property(name string) string {
	if renamed, ok := s.Rename[name]; ok {
		return renamed
	}
	return name
}

// Source is one connected data source. Fields "peeks" into the source to
// discover the columns (and their kinds) a spec would produce; Stream emits
// every row of the spec as a Record.
//
// Stream must honor ctx cancellation and must not close out (the caller owns
// the channel). Rows without a usable URI (or start/end URI for relations)
// are skipped and counted, not failed.
type Source interface {
	Name() string
	Fields(ctx context.Context, spec SelectSpec) ([]schema.Field, error)
	Stream(ctx context.Context, spec SelectSpec, out chan<- *models.Record) (skipped int64, err error)
	Close(ctx context.Context) error
}

// send delivers one record unless the context ends first.
func send(ctx context.Context, out chan<- *models.Record, rec *models.Record) error {
	select {
	case out <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
