package extract

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestFlattenDoc(t *testing.T) {
	flat := flattenDoc(bson.M{
		"name": "Ada",
		"contact": bson.M{
			"email": "ada@example.org",
			"city":  "London",
		},
	})

	if flat["name"] != "Ada" {
		t.Errorf("Expected top-level key to survive, got %v", flat["name"])
	}
	if flat["contact_email"] != "ada@example.org" {
		t.Errorf("Expected nested key to flatten with underscore, got %v", flat)
	}
	if _, ok := flat["contact"]; ok {
		t.Error("Expected the nested document itself to be replaced")
	}
}

func TestNormalizeBSONValue(t *testing.T) {
	oid := primitive.NewObjectID()
	if got := normalizeBSONValue(oid); got != oid.Hex() {
		t.Errorf("Expected ObjectID hex, got %v", got)
	}

	dt := primitive.NewDateTimeFromTime(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	got := normalizeBSONValue(dt)
	if ts, ok := got.(time.Time); !ok || ts.Year() != 2024 {
		t.Errorf("Expected DateTime to become time.Time, got %v (%T)", got, got)
	}

	if got := normalizeBSONValue(int32(7)); got != int64(7) {
		t.Errorf("Expected int32 to widen to int64, got %v (%T)", got, got)
	}
	if got := normalizeBSONValue(nil); got != nil {
		t.Errorf("Expected nil to pass through, got %v", got)
	}
}
