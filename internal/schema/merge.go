package schema

import (
	"errors"
	"fmt"
)

// ErrKindConflict is returned when two sources declare the same field with
// kinds that cannot be harmonized.
var ErrKindConflict = errors.New("field kind conflict")

// Merge harmonizes the field lists of every source feeding one node or
// relationship type into a single column set.
//
// Duplicate names are combined under these rules:
//   - identical kinds merge as-is
//   - KindInt widens to KindFloat when the other source declares a float
//   - an inferred kind (flat-file cell guess) yields to any declared kind
//   - anything else is a conflict and fails the whole merge
//
// Field order is first-seen order, so the result is deterministic for a
// given source order.
func Merge(fields []Field) ([]Field, error) {
	merged := make([]Field, 0, len(fields))
	index := make(map[string]int, len(fields))

	for _, f := range fields {
		i, seen := index[f.Name]
		if !seen {
			index[f.Name] = len(merged)
			merged = append(merged, f)
			continue
		}

		combined, err := combine(merged[i], f)
		if err != nil {
			return nil, err
		}
		merged[i] = combined
	}

	return merged, nil
}

// combine resolves one duplicate field pair. The existing field keeps its
// position and Source attribution unless the newcomer's kind wins.
func combine(a, b Field) (Field, error) {
	if a.Kind == b.Kind {
		a.inferred = a.inferred && b.inferred
		return a, nil
	}

	// Numeric widening goes both directions.
	if (a.Kind == KindInt && b.Kind == KindFloat) || (a.Kind == KindFloat && b.Kind == KindInt) {
		a.Kind = KindFloat
		a.inferred = a.inferred && b.inferred
		return a, nil
	}

	// A declared kind beats a cell-inferred one.
	if a.inferred && !b.inferred {
		a.Kind = b.Kind
		a.inferred = false
		return a, nil
	}
	if b.inferred && !a.inferred {
		return a, nil
	}

	return Field{}, fmt.Errorf("%w: field %q is %s in %s but %s in %s",
		ErrKindConflict, a.Name, a.Kind, a.Source, b.Kind, b.Source)
}
