package schema

import "fmt"

// Kind is the harmonized datatype of a field after it has been mapped out of
// a source-specific type system. Every source (MySQL column types, BSON
// values, CSV cells, XLSX cells) is reduced to one of these before merging.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindTime
	KindBytes
)

// String returns the lowercase name used in logs and the run manifest.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindBytes:
		return "bytes"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// SQLiteType returns the staging column type for the kind.
func (k Kind) SQLiteType() string {
	switch k {
	case KindInt, KindBool:
		return "INTEGER"
	case KindFloat:
		return "REAL"
	case KindTime:
		return "TIMESTAMP"
	case KindBytes:
		return "BLOB"
	default:
		return "TEXT"
	}
}

// AdminImportTag returns the type tag used in CSV headers consumed by
// `neo4j-admin database import` (e.g. "age:int").
func (k Kind) AdminImportTag() string {
	switch k {
	case KindInt:
		return "long"
	case KindFloat:
		return "double"
	case KindBool:
		return "boolean"
	case KindTime:
		return "datetime"
	default:
		return "string"
	}
}

// Field describes one harmonized column of a node or relationship type.
type Field struct {
	Name     string `json:"name"` // property name in the graph
	Kind     Kind   `json:"kind"`
	Nullable bool   `json:"nullable"`
	Source   string `json:"source"` // name of the source the field was first seen in
	inferred bool   // kind came from weak CSV/XLSX cell inference
}

// NewField constructs a strongly typed field.
func NewField(name string, kind Kind, source string) Field {
	return Field{Name: name, Kind: kind, Nullable: true, Source: source}
}

// NewInferredField constructs a field whose kind was guessed from cell
// contents. Inferred kinds lose against declared kinds during merging.
func NewInferredField(name string, kind Kind, source string) Field {
	return Field{Name: name, Kind: kind, Nullable: true, Source: source, inferred: true}
}

// Inferred reports whether the field's kind came from cell inference.
func (f Field) Inferred() bool { return f.inferred }
