package schema

import (
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// csvTimeLayouts are the formats recognized by cell inference, checked in
// order. RFC3339 first because date-only strings also parse as its prefix.
var csvTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// InferKind guesses the kind of a flat-file cell. An empty cell carries no
// information and reports KindString. The guess is weak: merging lets any
// declared kind override it (see Merge).
func InferKind(raw string) Kind {
	if raw == "" {
		return KindString
	}
	if raw == "true" || raw == "false" || raw == "TRUE" || raw == "FALSE" {
		return KindBool
	}
	if _, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return KindInt
	}
	if _, err := strconv.ParseFloat(raw, 64); err == nil {
		return KindFloat
	}
	for _, layout := range csvTimeLayouts {
		if _, err := time.Parse(layout, raw); err == nil {
			return KindTime
		}
	}
	return KindString
}

// ParseCell converts a flat-file cell into the Go value for a kind.
// An empty cell is nil (missing value). A cell that does not parse as the
// target kind degrades to its string form rather than failing the row.
func ParseCell(raw string, kind Kind) interface{} {
	if raw == "" {
		return nil
	}
	switch kind {
	case KindInt:
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return v
		}
	case KindFloat:
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
	case KindBool:
		if v, err := strconv.ParseBool(raw); err == nil {
			return v
		}
	case KindTime:
		for _, layout := range csvTimeLayouts {
			if v, err := time.Parse(layout, raw); err == nil {
				return v
			}
		}
	}
	return raw
}

// KindFromBSON maps a decoded BSON value to a harmonized kind. Unknown or
// composite values fall back to KindString (they are rendered with %v).
func KindFromBSON(v interface{}) Kind {
	switch v.(type) {
	case bool:
		return KindBool
	case int32, int64, int:
		return KindInt
	case float32, float64:
		return KindFloat
	case primitive.DateTime, time.Time:
		return KindTime
	case primitive.Binary, []byte:
		return KindBytes
	case string, primitive.ObjectID:
		return KindString
	default:
		return KindString
	}
}
